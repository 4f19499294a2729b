package xreload

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xbind/pkg/config/xbind"
	"github.com/omeyang/xbind/pkg/config/xconf"
)

// =============================================================================
// 构建
// =============================================================================

func TestNew_InitialBuild(t *testing.T) {
	cfg := newConfig(t, "svc:\n  bar: 5\n")

	p, err := New[*service](cfg.Section("svc"))
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 5, p.Current().Bar)
	assert.Equal(t, uint64(1), p.Generation())
	assert.False(t, p.Closed())
	assert.Equal(t, "svc", p.Section().Path())
}

func TestNew_InitialBuildFailure(t *testing.T) {
	cfg := newConfig(t, "svc:\n  bar: five\n")

	p, err := New[*service](cfg.Section("svc"))
	require.Error(t, err)
	assert.Nil(t, p)

	var be *xbind.BindError
	require.ErrorAs(t, err, &be)
	assert.ErrorIs(t, err, xbind.ErrConversionFailure)
	assert.Equal(t, xbind.ReasonConversionFailed, be.Reason)
	assert.NotErrorIs(t, err, ErrReloadBuildFailure)

	// 失败的代理不再订阅变更
	load(t, cfg, "svc:\n  bar: 6\n")
}

func TestNew_NilArguments(t *testing.T) {
	cfg := newConfig(t, "svc:\n  bar: 5\n")

	_, err := New[*service](nil)
	assert.ErrorIs(t, err, ErrNilSection)

	_, err = NewWithBuilder[*service](cfg.Section("svc"), nil)
	assert.ErrorIs(t, err, ErrNilBuilder)

	_, err = Create[greeter](cfg.Section("svc"), nil)
	assert.ErrorIs(t, err, ErrNilWrapper)
}

func TestNewWithBuilder(t *testing.T) {
	cfg := newConfig(t, "name: alpha\n")

	var builds atomic.Int32
	p, err := NewWithBuilder(cfg.Section("name"), func(sec xconf.Section) (string, error) {
		builds.Add(1)
		v, _ := sec.Value()
		return "hello " + v, nil
	})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "hello alpha", p.Current())

	load(t, cfg, "name: beta\n")
	assert.Equal(t, "hello beta", p.Current())
	assert.Equal(t, int32(2), builds.Load())
	assert.Equal(t, uint64(2), p.Generation())
}

// =============================================================================
// 热重载
// =============================================================================

func TestProxy_ReloadAtomicity(t *testing.T) {
	cfg := newConfig(t, "svc:\n  bar: 5\n")
	p, err := New[*service](cfg.Section("svc"))
	require.NoError(t, err)
	defer p.Close()

	first := p.Current()

	var events []string
	p.OnReloading(func(old *service) {
		assert.Same(t, first, old)
		assert.Same(t, first, p.Current(), "old instance is still current while rebuilding")
		events = append(events, "reloading")
	})
	p.OnReloaded(func(current *service) {
		assert.NotSame(t, first, current)
		assert.Equal(t, 6, current.Bar)
		assert.Same(t, current, p.Current())
		events = append(events, "reloaded")
	})

	load(t, cfg, "svc:\n  bar: 6\n")

	assert.NotSame(t, first, p.Current())
	assert.Equal(t, 6, p.Current().Bar)
	assert.Equal(t, []string{"reloading", "reloaded"}, events)
	assert.Equal(t, uint64(2), p.Generation())

	// 令牌已重新注册，后续变更继续生效
	load(t, cfg, "svc:\n  bar: 7\n")
	assert.Equal(t, 7, p.Current().Bar)
	assert.Equal(t, []string{"reloading", "reloaded", "reloading", "reloaded"}, events)
}

func TestProxy_StatePreservation(t *testing.T) {
	cfg := newConfig(t, "svc:\n  bar: 5\n")
	p, err := New[*service](cfg.Section("svc"))
	require.NoError(t, err)
	defer p.Close()

	p.Current().Field = "abc"

	load(t, cfg, "svc:\n  bar: 6\n")
	assert.Equal(t, 6, p.Current().Bar)
	assert.Equal(t, "abc", p.Current().Field)

	load(t, cfg, "svc:\n  bar: 6\n  field: xyz\n")
	assert.Equal(t, "xyz", p.Current().Field)
}

func TestProxy_StatePreservationWithTypeHint(t *testing.T) {
	cat := xbind.NewCatalog().Name("svc", reflect.TypeFor[service]()).Freeze()
	cfg := newConfig(t, "svc:\n  type: svc\n  value:\n    bar: 5\n")
	p, err := New[greeter](cfg.Section("svc"), WithBindOptions(xbind.WithCatalog(cat)))
	require.NoError(t, err)
	defer p.Close()

	s, ok := p.Current().(*service)
	require.True(t, ok)
	s.Field = "abc"

	load(t, cfg, "svc:\n  type: svc\n  value:\n    bar: 6\n")
	assert.Equal(t, 6, p.Current().Level())
	assert.Equal(t, "abc", p.Current().Greet())

	load(t, cfg, "svc:\n  type: svc\n  value:\n    bar: 7\n    field: xyz\n")
	assert.Equal(t, 7, p.Current().Level())
	assert.Equal(t, "xyz", p.Current().Greet())

	require.NoError(t, p.ForceReload(context.Background()))
	assert.Equal(t, 7, p.Current().Level())
	assert.Equal(t, uint64(4), p.Generation())
}

func TestProxy_CarryOverDisabled(t *testing.T) {
	cfg := newConfig(t, "svc:\n  bar: 5\n")
	p, err := New[*service](cfg.Section("svc"), WithCarryOver(false))
	require.NoError(t, err)
	defer p.Close()

	p.Current().Field = "abc"
	load(t, cfg, "svc:\n  bar: 6\n")
	assert.Empty(t, p.Current().Field)
}

func TestProxy_CarryOverThroughInterface(t *testing.T) {
	cfg := newConfig(t, "svc:\n  bar: 5\n")
	p, err := New[greeter](cfg.Section("svc"), greeterDefaults(t))
	require.NoError(t, err)
	defer p.Close()

	s, ok := p.Current().(*service)
	require.True(t, ok)
	s.Field = "kept"

	load(t, cfg, "svc:\n  bar: 6\n")
	assert.Equal(t, "kept", p.Current().Greet())
	assert.Equal(t, 6, p.Current().Level())
}

func TestProxy_DisposalOrdering(t *testing.T) {
	cfg := newConfig(t, "svc:\n  bar: 5\n")
	p, err := New[*service](cfg.Section("svc"))
	require.NoError(t, err)

	first := p.Current()
	p.OnReloaded(func(*service) {
		assert.False(t, first.disposed(), "superseded instance is disposed after the swap")
	})

	load(t, cfg, "svc:\n  bar: 6\n")
	second := p.Current()

	assert.True(t, first.disposed())
	assert.False(t, second.disposed())

	require.NoError(t, p.Close())
	assert.True(t, second.disposed())
	assert.Equal(t, int32(1), first.closes.Load(), "close only disposes the current instance")
	assert.Equal(t, int32(1), second.closes.Load())
}

func TestProxy_NoOpReload(t *testing.T) {
	cfg := newConfig(t, "svc:\n  bar: 5\nother: 1\n")
	p, err := New[*service](cfg.Section("svc"))
	require.NoError(t, err)
	defer p.Close()

	first := p.Current()
	var fired atomic.Int32
	p.OnReloading(func(*service) { fired.Add(1) })

	load(t, cfg, "svc:\n  bar: 5\nother: 2\n")
	load(t, cfg, "svc:\n  bar: 5\nother: 3\nextra: true\n")

	assert.Same(t, first, p.Current())
	assert.Equal(t, uint64(1), p.Generation())
	assert.Zero(t, fired.Load())
	assert.False(t, first.disposed())
}

func TestProxy_ForceReload(t *testing.T) {
	cfg := newConfig(t, "svc:\n  bar: 5\n")
	p, err := New[*service](cfg.Section("svc"))
	require.NoError(t, err)
	defer p.Close()

	first := p.Current()
	require.NoError(t, p.ForceReload(context.Background()))

	assert.NotSame(t, first, p.Current(), "force reload ignores the fingerprint")
	assert.Equal(t, 5, p.Current().Bar)
	assert.Equal(t, uint64(2), p.Generation())
	assert.True(t, first.disposed())
}

func TestProxy_ReloadFailureKeepsInstance(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cfg := newConfig(t, "svc:\n  bar: 5\n")
	p, err := New[*service](cfg.Section("svc"), WithLogger(logger), WithName("svc"))
	require.NoError(t, err)
	defer p.Close()

	first := p.Current()
	var failures []error
	p.OnReloadFailed(func(err error) { failures = append(failures, err) })

	load(t, cfg, "svc:\n  bar: six\n")

	assert.Same(t, first, p.Current())
	assert.False(t, first.disposed())
	assert.Equal(t, uint64(1), p.Generation())
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], ErrReloadBuildFailure)
	assert.ErrorIs(t, failures[0], xbind.ErrConversionFailure)
	assert.Equal(t, xbind.ReasonConversionFailed, xbind.ReasonOf(failures[0]))
	assert.Contains(t, buf.String(), "rebuild failed")
	assert.Contains(t, buf.String(), `"xreload.proxy":"svc"`)

	// 显式重建同样失败，错误同步返回
	err = p.ForceReload(context.Background())
	require.ErrorIs(t, err, ErrReloadBuildFailure)
	assert.Len(t, failures, 2)

	// 配置修复后恢复
	load(t, cfg, "svc:\n  bar: 6\n")
	assert.Equal(t, 6, p.Current().Bar)
	assert.Equal(t, uint64(2), p.Generation())
	assert.True(t, first.disposed())
}

func TestProxy_Close(t *testing.T) {
	cfg := newConfig(t, "svc:\n  bar: 5\n")
	p, err := New[*service](cfg.Section("svc"))
	require.NoError(t, err)

	current := p.Current()
	require.NoError(t, p.Close())
	assert.True(t, p.Closed())
	assert.True(t, current.disposed())

	load(t, cfg, "svc:\n  bar: 6\n")
	assert.Same(t, current, p.Current(), "signals after close are ignored")
	assert.Equal(t, uint64(1), p.Generation())

	assert.ErrorIs(t, p.ForceReload(context.Background()), ErrClosed)
	assert.NoError(t, p.Close())
	assert.Equal(t, int32(1), current.closes.Load())
}

type failingCloser struct {
	Bar int
}

func (f *failingCloser) Close() error {
	return errors.New("boom")
}

func TestProxy_CloseErrors(t *testing.T) {
	cfg := newConfig(t, "svc:\n  bar: 5\n")
	p, err := New[*failingCloser](cfg.Section("svc"))
	require.NoError(t, err)

	// 旧实例关闭失败不影响重建
	require.NoError(t, p.ForceReload(context.Background()))
	assert.Equal(t, uint64(2), p.Generation())

	err = p.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestProxy_HookCancel(t *testing.T) {
	cfg := newConfig(t, "svc:\n  bar: 5\n")
	p, err := New[*service](cfg.Section("svc"))
	require.NoError(t, err)
	defer p.Close()

	var a, b atomic.Int32
	cancelA := p.OnReloaded(func(*service) { a.Add(1) })
	p.OnReloaded(func(*service) { b.Add(1) })
	nop := p.OnReloaded(nil)
	nop()

	require.NoError(t, p.ForceReload(context.Background()))
	cancelA()
	cancelA()
	require.NoError(t, p.ForceReload(context.Background()))

	assert.Equal(t, int32(1), a.Load())
	assert.Equal(t, int32(2), b.Load())
}

// =============================================================================
// 转发包装
// =============================================================================

func TestCreate_ForwardingWrapper(t *testing.T) {
	cfg := newConfig(t, "svc:\n  bar: 5\n  field: hi\n")

	g, err := Create(cfg.Section("svc"), wrapGreeter, greeterDefaults(t))
	require.NoError(t, err)

	assert.Equal(t, "hi", g.Greet())
	assert.Equal(t, 5, g.Level())

	r, ok := Inspect(g)
	require.True(t, ok)
	defer r.Close()

	before := r.Current()
	load(t, cfg, "svc:\n  bar: 6\n  field: hey\n")

	assert.Equal(t, "hey", g.Greet(), "calls go to the new instance")
	assert.Equal(t, 6, g.Level())
	assert.NotSame(t, before, r.Current())
	assert.Equal(t, uint64(2), r.Generation())
}

func TestCreate_InitialFailure(t *testing.T) {
	cfg := newConfig(t, "svc:\n  bar: 5\n")

	// 没有默认类型时接口无法构建
	_, err := Create(cfg.Section("svc"), wrapGreeter)
	require.Error(t, err)
	assert.ErrorIs(t, err, xbind.ErrInvalidTargetShape)
}

func TestInspect_NotAProxy(t *testing.T) {
	_, ok := Inspect[greeter](&service{})
	assert.False(t, ok)
}

// =============================================================================
// 并发
// =============================================================================

func TestProxy_ConcurrentReaders(t *testing.T) {
	cfg := newConfig(t, "svc:\n  bar: 1\n")
	p, err := New[*service](cfg.Section("svc"))
	require.NoError(t, err)
	defer p.Close()

	var done atomic.Bool
	var g errgroup.Group
	for range 8 {
		g.Go(func() error {
			for !done.Load() {
				s := p.Current()
				if s == nil || s.Bar < 1 || s.Bar > 50 {
					return errors.New("observed a partially built instance")
				}
			}
			return nil
		})
	}

	for i := 2; i <= 50; i++ {
		load(t, cfg, "svc:\n  bar: "+strconv.Itoa(i)+"\n")
	}
	done.Store(true)
	require.NoError(t, g.Wait())

	assert.Equal(t, 50, p.Current().Bar)
	assert.Equal(t, uint64(50), p.Generation())
}

func TestProxy_ConcurrentReloadsAreSerialized(t *testing.T) {
	cfg := newConfig(t, "svc:\n  bar: 1\n")

	var running, maxRunning atomic.Int32
	var mu sync.Mutex
	p, err := NewWithBuilder(cfg.Section("svc"), func(sec xconf.Section) (*service, error) {
		n := running.Add(1)
		defer running.Add(-1)
		mu.Lock()
		if n > maxRunning.Load() {
			maxRunning.Store(n)
		}
		mu.Unlock()
		time.Sleep(time.Millisecond)
		return xbind.Bind[*service](sec)
	})
	require.NoError(t, err)
	defer p.Close()

	var succeeded atomic.Int32
	p.OnReloaded(func(*service) { succeeded.Add(1) })

	var g errgroup.Group
	for i := range 10 {
		g.Go(func() error {
			if i%2 == 0 {
				return p.ForceReload(context.Background())
			}
			return cfg.Load([]byte("svc:\n  bar: " + strconv.Itoa(i) + "\n"))
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), maxRunning.Load())
	assert.Equal(t, uint64(1)+uint64(succeeded.Load()), p.Generation())
}
