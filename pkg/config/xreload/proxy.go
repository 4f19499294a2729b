package xreload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/omeyang/xbind/pkg/config/xbind"
	"github.com/omeyang/xbind/pkg/config/xconf"
)

// Reloadable 是热重载代理的检查接口。
//
// Proxy[T] 和嵌入 *Proxy[T] 的转发包装都实现该接口，
// 调用方通过 Inspect 从能力接口值取回它。
type Reloadable[T any] interface {
	// Current 返回当前活动实例。
	Current() T

	// Generation 返回当前实例的代数，初始构建为 1，每次成功重建加 1。
	Generation() uint64

	// ForceReload 同步重建实例，忽略配置是否变化。
	ForceReload(ctx context.Context) error

	// OnReloading 注册重建前回调，参数为仍在服务的旧实例。
	OnReloading(fn func(old T)) (cancel func())

	// OnReloaded 注册替换后回调，参数为新实例。
	OnReloaded(fn func(current T)) (cancel func())

	// OnReloadFailed 注册重建失败回调。
	OnReloadFailed(fn func(err error)) (cancel func())

	// Close 关闭代理和当前实例。
	Close() error
}

// Inspect 返回 v 背后的热重载代理。v 不是代理时返回 false。
func Inspect[T any](v T) (Reloadable[T], bool) {
	r, ok := any(v).(Reloadable[T])
	return r, ok
}

// Builder 根据配置节点的快照构建实例。
type Builder[T any] func(sec xconf.Section) (T, error)

// Proxy 持有由配置节点构建的实例，并在配置变化时重建、原子替换。
//
// 读取（Current）无锁；重建通过互斥锁串行化。
// 回调在持有重建锁时同步执行，回调中不能调用 ForceReload 或 Close。
type Proxy[T any] struct {
	sec   xconf.Section
	build Builder[T]
	opts  *options

	current    atomic.Pointer[T]
	generation atomic.Uint64
	closed     atomic.Bool

	mu          sync.Mutex // 串行化重建和关闭
	fingerprint uint64     // 最近一次成功构建的快照摘要，受 mu 保护

	watchMu    sync.Mutex
	unregister func()

	reloading hookList[func(T)]
	reloaded  hookList[func(T)]
	failed    hookList[func(error)]

	metrics *Metrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

var _ Reloadable[any] = (*Proxy[any])(nil)

// New 创建代理，使用 xbind.Bind[T] 从 sec 构建实例。
//
// 初始构建失败时返回 xbind 的 *BindError。
func New[T any](sec xconf.Section, opts ...Option) (*Proxy[T], error) {
	o := applyOptions(opts)
	bindOpts := o.bindOpts
	return newProxy(sec, func(s xconf.Section) (T, error) {
		return xbind.Bind[T](s, bindOpts...)
	}, o)
}

// NewWithBuilder 创建代理，使用自定义构建函数。
func NewWithBuilder[T any](sec xconf.Section, build Builder[T], opts ...Option) (*Proxy[T], error) {
	if build == nil {
		return nil, ErrNilBuilder
	}
	return newProxy(sec, build, applyOptions(opts))
}

// Create 创建代理并返回能力接口类型的转发包装。
//
// wrap 通常是 xproxygen 生成的构造函数，包装的每个方法在入口读取一次 Current()。
// 调用方通过 Inspect 取回代理本身。
func Create[T any](sec xconf.Section, wrap func(*Proxy[T]) T, opts ...Option) (T, error) {
	var zero T
	if wrap == nil {
		return zero, ErrNilWrapper
	}
	p, err := New[T](sec, opts...)
	if err != nil {
		return zero, err
	}
	return wrap(p), nil
}

func newProxy[T any](sec xconf.Section, build Builder[T], o *options) (*Proxy[T], error) {
	if sec == nil {
		return nil, ErrNilSection
	}
	metrics, err := NewMetrics(o.meterProvider)
	if err != nil {
		return nil, err
	}

	p := &Proxy[T]{
		sec:     sec,
		build:   build,
		opts:    o,
		metrics: metrics,
		tracer:  getTracer(o.tracerProvider),
		logger:  o.logger.With(slog.String(attrProxy, o.name)),
	}

	// 先订阅再构建：构建期间到达的变更会在构建完成后重建。
	p.watch()

	p.mu.Lock()
	snap := sec.Snapshot()
	inst, err := build(snap)
	if err != nil {
		p.mu.Unlock()
		p.closed.Store(true)
		p.stopWatch()
		return nil, err
	}
	p.current.Store(&inst)
	p.generation.Store(1)
	p.fingerprint = fingerprint(snap)
	p.mu.Unlock()

	p.metrics.RecordGeneration(context.Background(), o.name, 1)
	return p, nil
}

// =============================================================================
// 读取
// =============================================================================

// Current 返回当前活动实例。
func (p *Proxy[T]) Current() T {
	return *p.current.Load()
}

// Generation 返回当前实例的代数。
func (p *Proxy[T]) Generation() uint64 {
	return p.generation.Load()
}

// Section 返回代理监听的配置节点。
func (p *Proxy[T]) Section() xconf.Section {
	return p.sec
}

// Closed 报告代理是否已关闭。
func (p *Proxy[T]) Closed() bool {
	return p.closed.Load()
}

// =============================================================================
// 回调
// =============================================================================

// OnReloading 注册重建前回调。fn 为 nil 时返回空操作的取消函数。
func (p *Proxy[T]) OnReloading(fn func(old T)) func() {
	if fn == nil {
		return func() {}
	}
	return p.reloading.add(fn)
}

// OnReloaded 注册替换后回调。
func (p *Proxy[T]) OnReloaded(fn func(current T)) func() {
	if fn == nil {
		return func() {}
	}
	return p.reloaded.add(fn)
}

// OnReloadFailed 注册重建失败回调。
// 变更信号触发的失败只能通过该回调和日志观察到。
func (p *Proxy[T]) OnReloadFailed(fn func(err error)) func() {
	if fn == nil {
		return func() {}
	}
	return p.failed.add(fn)
}

// =============================================================================
// 重建
// =============================================================================

// watch 在当前变更令牌上注册回调。令牌只触发一次，每次触发后需要重新注册。
func (p *Proxy[T]) watch() {
	unregister := p.sec.ReloadToken().RegisterChangeCallback(p.onChange)

	p.watchMu.Lock()
	defer p.watchMu.Unlock()
	if p.closed.Load() {
		unregister()
		return
	}
	p.unregister = unregister
}

func (p *Proxy[T]) stopWatch() {
	p.watchMu.Lock()
	unregister := p.unregister
	p.unregister = nil
	p.watchMu.Unlock()
	if unregister != nil {
		unregister()
	}
}

// onChange 在投递变更通知的 goroutine 中执行。
func (p *Proxy[T]) onChange() {
	if p.closed.Load() {
		return
	}
	p.watch()
	// 失败已记录日志并通知订阅者
	_ = p.reload(context.Background(), triggerChange, false) //nolint:errcheck // 见 OnReloadFailed
}

// ForceReload 同步重建实例。
//
// 返回时新实例已生效，或者重建失败、旧实例继续服务（返回包装 ErrReloadBuildFailure 的错误）。
// 代理已关闭时返回 ErrClosed。
func (p *Proxy[T]) ForceReload(ctx context.Context) error {
	return p.reload(ctx, triggerForce, true)
}

func (p *Proxy[T]) reload(ctx context.Context, trigger string, force bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		return ErrClosed
	}

	snap := p.sec.Snapshot()
	fp := fingerprint(snap)
	if !force && fp == p.fingerprint {
		p.logger.Debug("xreload: configuration unchanged, skipping rebuild",
			slog.String("path", p.sec.Path()))
		p.metrics.RecordReload(ctx, p.opts.name, trigger, statusSkipped, 0)
		return nil
	}

	ctx, span := startSpan(ctx, p.tracer, spanNameReload,
		attribute.String(attrProxy, p.opts.name),
		attribute.String(attrTrigger, trigger),
		attribute.String("xreload.path", p.sec.Path()),
	)
	defer span.End()

	start := time.Now()
	old := p.Current()
	for _, fn := range p.reloading.snapshot() {
		fn(old)
	}

	next, err := p.build(snap)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrReloadBuildFailure, err)
		setSpanError(span, err)
		p.metrics.RecordReload(ctx, p.opts.name, trigger, statusFailure, time.Since(start))
		p.logger.Error("xreload: rebuild failed, keeping previous instance",
			slog.String("path", p.sec.Path()),
			slog.String("trigger", trigger),
			slog.Any("error", err))
		for _, fn := range p.failed.snapshot() {
			fn(err)
		}
		return err
	}

	if p.opts.carryOver {
		p.carryOver(next, old, snap)
	}

	p.current.Store(&next)
	gen := p.generation.Add(1)
	p.fingerprint = fp
	for _, fn := range p.reloaded.snapshot() {
		fn(next)
	}

	// 替换对读者可见之后才释放旧实例
	if !sameInstance(old, next) {
		p.dispose(old)
	}

	span.SetAttributes(attribute.Int64("xreload.generation", int64(gen))) //nolint:gosec // 代数不会超过 int64
	setSpanOK(span)
	p.metrics.RecordReload(ctx, p.opts.name, trigger, statusSuccess, time.Since(start))
	p.metrics.RecordGeneration(ctx, p.opts.name, gen)
	p.logger.Info("xreload: instance rebuilt",
		slog.String("path", p.sec.Path()),
		slog.String("trigger", trigger),
		slog.Uint64("generation", gen))
	return nil
}

// carryOver 把旧实例中新配置未提及的调用方状态复制到新实例。
// 仅当两者是同一结构体的指针时生效。
func (p *Proxy[T]) carryOver(next, old T, snap xconf.Section) {
	nv, ov := reflect.ValueOf(any(next)), reflect.ValueOf(any(old))
	if !nv.IsValid() || !ov.IsValid() || nv.Type() != ov.Type() {
		return
	}
	if nv.Kind() != reflect.Pointer || nv.Type().Elem().Kind() != reflect.Struct || nv.IsNil() || ov.IsNil() {
		return
	}
	n, err := xbind.CarryOver(nv.Interface(), ov.Interface(), snap, p.opts.bindOpts...)
	if err != nil {
		p.logger.Warn("xreload: carry over failed",
			slog.String("path", p.sec.Path()),
			slog.Any("error", err))
		return
	}
	if n > 0 {
		p.logger.Debug("xreload: carried over caller state",
			slog.String("path", p.sec.Path()),
			slog.Int("fields", n))
	}
}

func (p *Proxy[T]) dispose(inst T) {
	c, ok := any(inst).(io.Closer)
	if !ok || isNilValue(inst) {
		return
	}
	if err := c.Close(); err != nil {
		p.logger.Warn("xreload: failed to close superseded instance",
			slog.String("path", p.sec.Path()),
			slog.Any("error", err))
	}
}

// Close 关闭代理：取消变更订阅并关闭当前实例（如果实现了 io.Closer）。
// 之后的变更信号被忽略，ForceReload 返回 ErrClosed。重复调用返回 nil。
func (p *Proxy[T]) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.stopWatch()

	// 等待进行中的重建完成
	p.mu.Lock()
	defer p.mu.Unlock()

	inst := p.Current()
	c, ok := any(inst).(io.Closer)
	if !ok || isNilValue(inst) {
		return nil
	}
	if err := c.Close(); err != nil {
		return fmt.Errorf("xreload: close current instance: %w", err)
	}
	return nil
}

// sameInstance 报告两个值是否指向同一个对象。只比较引用类型。
func sameInstance[T any](a, b T) bool {
	av, bv := reflect.ValueOf(any(a)), reflect.ValueOf(any(b))
	if !av.IsValid() || !bv.IsValid() || av.Type() != bv.Type() {
		return false
	}
	switch av.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return av.Pointer() == bv.Pointer()
	case reflect.Slice:
		return av.Pointer() == bv.Pointer() && av.Len() == bv.Len()
	}
	return false
}

func isNilValue[T any](v T) bool {
	rv := reflect.ValueOf(any(v))
	if !rv.IsValid() {
		return true
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.Interface, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
