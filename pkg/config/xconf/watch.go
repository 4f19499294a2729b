package xconf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchCallback 配置变更回调函数。
// 每次尝试重载后调用，err 表示重载是否成功。
// 重载成功时变更令牌已经触发，订阅了 ReloadToken 的组件已完成各自的处理。
type WatchCallback func(cfg Config, err error)

// k8sDataLink 是 K8s 卷挂载中指向当前数据目录的符号链接。
// ConfigMap/Secret 更新时 kubelet 原子地切换这个链接，配置文件本身不产生事件。
const k8sDataLink = "..data"

// Watcher 监视配置文件所在目录，文件变化时经防抖后调用 Reload。
type Watcher struct {
	cfg      *koanfConfig
	fs       *fsnotify.Watcher
	callback WatchCallback
	debounce time.Duration
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
	pending *time.Timer // 防抖中的重载，Stop 时取消
}

// WatchOption 监视器配置选项
type WatchOption func(*watchOptions)

type watchOptions struct {
	debounce time.Duration
	logger   *slog.Logger
}

// WithDebounce 设置防抖时间，默认 100ms。非正值被忽略。
// 防抖窗口内的多个事件只触发一次重载。
func WithDebounce(d time.Duration) WatchOption {
	return func(o *watchOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// WithWatchLogger 设置监视器日志，默认 slog.Default()。
func WithWatchLogger(logger *slog.Logger) WatchOption {
	return func(o *watchOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Watch 创建配置文件监视器
//
// 重载成功后 ReloadToken 被触发，基于 Section 的订阅者（如 xreload.Proxy）随之更新。
// callback 可以为 nil。只接受 New 创建的 Config。
//
// 监视的是文件所在目录：编辑器的先删后建、rename 式原子写入，
// 以及 K8s 卷挂载的 ..data 链接切换都会被识别为配置更新。
//
//	cfg, _ := xconf.New("/etc/app/config.yaml")
//	w, err := xconf.Watch(cfg, func(c xconf.Config, err error) {
//	    if err != nil {
//	        slog.Error("reload failed", "error", err)
//	    }
//	})
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//	w.StartAsync()
func Watch(cfg Config, callback WatchCallback, opts ...WatchOption) (*Watcher, error) {
	kc, ok := cfg.(*koanfConfig)
	if !ok {
		return nil, ErrUnsupportedConfig
	}
	if kc.kind != sourceFile {
		return nil, ErrNotFromFile
	}
	if kc.path == "" {
		return nil, ErrEmptyPath
	}

	o := &watchOptions{debounce: 100 * time.Millisecond, logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("xconf: failed to create watcher: %w", err)
	}
	dir := filepath.Dir(kc.path)
	if err := fsw.Add(dir); err != nil {
		return nil, errors.Join(
			fmt.Errorf("xconf: failed to watch directory %s: %w", dir, err),
			fsw.Close(),
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		cfg:      kc,
		fs:       fsw,
		callback: callback,
		debounce: o.debounce,
		logger:   o.logger.With(slog.String("path", kc.path)),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start 在当前 goroutine 中运行监视循环，直到 Stop。重复调用无效。
func (w *Watcher) Start() {
	if w.begin() {
		w.loop()
	}
}

// StartAsync 在新 goroutine 中运行监视循环。
// running 标志在启动 goroutine 之前设置，紧随其后的 Stop 不会漏掉它。
func (w *Watcher) StartAsync() {
	if w.begin() {
		go w.loop()
	}
}

func (w *Watcher) begin() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running || w.ctx.Err() != nil {
		return false
	}
	w.running = true
	return true
}

// Stop 停止监视。可重复调用。
// 返回后不会再有新的重载被调度；在回调中调用 Stop 不会死锁。
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ctx.Err() != nil {
		return nil
	}
	if w.pending != nil {
		w.pending.Stop()
		w.pending = nil
	}
	w.cancel()
	w.running = false
	return w.fs.Close()
}

func (w *Watcher) loop() {
	name := filepath.Base(w.cfg.path)
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if isConfigUpdate(ev, name) {
				w.schedule()
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("xconf: watch error", slog.Any("error", err))
			w.notify(fmt.Errorf("xconf: watch error: %w", err))
		}
	}
}

// isConfigUpdate 判断事件是否可能改变了配置文件的内容。
func isConfigUpdate(ev fsnotify.Event, name string) bool {
	base := filepath.Base(ev.Name)
	if base != name && base != k8sDataLink {
		return false
	}
	// Write: 原地修改；Create: 先删后建或链接切换；Rename: 临时文件 rename 覆盖
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

// schedule 重置防抖定时器。
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ctx.Err() != nil {
		return
	}
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	if w.ctx.Err() != nil {
		return
	}
	err := w.cfg.Reload()
	if err != nil {
		w.logger.Error("xconf: reload failed", slog.Any("error", err))
	} else {
		w.logger.Debug("xconf: config reloaded")
	}
	w.notify(err)
}

func (w *Watcher) notify(err error) {
	if w.callback != nil {
		w.callback(w.cfg, err)
	}
}

// WatchConfig 为 Config 增加文件监视能力。
type WatchConfig interface {
	Config

	// Watch 监视配置文件变更
	Watch(callback WatchCallback, opts ...WatchOption) (*Watcher, error)
}

// Watch 实现 WatchConfig 接口
func (c *koanfConfig) Watch(callback WatchCallback, opts ...WatchOption) (*Watcher, error) {
	return Watch(c, callback, opts...)
}
