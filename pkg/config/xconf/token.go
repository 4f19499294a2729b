package xconf

import "sync"

// changeToken 是一次性的变更令牌实现。
type changeToken struct {
	mu        sync.Mutex
	fired     bool
	nextID    uint64
	callbacks []tokenCallback
}

type tokenCallback struct {
	id uint64
	fn func()
}

func newChangeToken() *changeToken {
	return &changeToken{}
}

// HasChanged 报告令牌是否已触发。
func (t *changeToken) HasChanged() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fired
}

// RegisterChangeCallback 注册回调。令牌已触发时同步调用 fn。
func (t *changeToken) RegisterChangeCallback(fn func()) func() {
	if fn == nil {
		return func() {}
	}

	t.mu.Lock()
	if t.fired {
		t.mu.Unlock()
		fn()
		return func() {}
	}
	t.nextID++
	id := t.nextID
	t.callbacks = append(t.callbacks, tokenCallback{id: id, fn: fn})
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, cb := range t.callbacks {
			if cb.id == id {
				t.callbacks = append(t.callbacks[:i], t.callbacks[i+1:]...)
				return
			}
		}
	}
}

// fire 触发令牌，按注册顺序在调用方 goroutine 中执行回调。
// 重复调用无效果。回调在锁外执行，可以安全地重新注册到新令牌。
func (t *changeToken) fire() {
	t.mu.Lock()
	if t.fired {
		t.mu.Unlock()
		return
	}
	t.fired = true
	callbacks := t.callbacks
	t.callbacks = nil
	t.mu.Unlock()

	for _, cb := range callbacks {
		cb.fn()
	}
}
