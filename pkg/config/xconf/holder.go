package xconf

import "sync"

// Holder 持有进程的根配置，只允许赋值一次。
//
// Holder 需要显式创建并通过参数传递给使用方，
// 不提供包级全局实例。零值可用。
type Holder struct {
	mu  sync.RWMutex
	cfg Config
}

// Set 设置根配置。第二次调用返回 ErrAlreadySet，nil 返回 ErrNotSet。
func (h *Holder) Set(cfg Config) error {
	if cfg == nil {
		return ErrNotSet
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cfg != nil {
		return ErrAlreadySet
	}
	h.cfg = cfg
	return nil
}

// Get 返回根配置以及是否已设置。
func (h *Holder) Get() (Config, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg, h.cfg != nil
}

// MustGet 返回根配置，未设置时 panic。
func (h *Holder) MustGet() Config {
	cfg, ok := h.Get()
	if !ok {
		panic(ErrNotSet)
	}
	return cfg
}

// IsSet 报告根配置是否已设置。
func (h *Holder) IsSet() bool {
	_, ok := h.Get()
	return ok
}
