package xreload

import "sync"

// hookList 是可取消订阅的回调列表，按注册顺序调用。
type hookList[F any] struct {
	mu      sync.Mutex
	nextID  uint64
	entries []hookEntry[F]
}

type hookEntry[F any] struct {
	id uint64
	fn F
}

// add 注册回调，返回的函数取消注册（可重复调用）。
func (h *hookList[F]) add(fn F) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.entries = append(h.entries, hookEntry[F]{id: id, fn: fn})
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			for i, e := range h.entries {
				if e.id == id {
					h.entries = append(h.entries[:i:i], h.entries[i+1:]...)
					return
				}
			}
		})
	}
}

// snapshot 返回当前回调的副本，调用方在锁外执行。
func (h *hookList[F]) snapshot() []F {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == 0 {
		return nil
	}
	out := make([]F, len(h.entries))
	for i, e := range h.entries {
		out[i] = e.fn
	}
	return out
}
