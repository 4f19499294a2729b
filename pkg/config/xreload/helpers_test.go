package xreload

import (
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omeyang/xbind/pkg/config/xbind"
	"github.com/omeyang/xbind/pkg/config/xconf"
)

// greeter 是测试用的能力接口。
type greeter interface {
	Greet() string
	Level() int
}

// service 由配置中的 bar 构建；Field 和 Owner 可由调用方在构建后修改。
type service struct {
	Bar   int
	Field string
	Owner string

	closes atomic.Int32
}

func (s *service) Greet() string { return s.Field }
func (s *service) Level() int    { return s.Bar }

func (s *service) Close() error {
	s.closes.Add(1)
	return nil
}

func (s *service) disposed() bool {
	return s.closes.Load() > 0
}

var greeterType = reflect.TypeFor[greeter]()

// greeterProxy 是手写的转发包装：每个方法在入口读取一次 Current()。
type greeterProxy struct {
	*Proxy[greeter]
}

func (g greeterProxy) Greet() string { return g.Current().Greet() }
func (g greeterProxy) Level() int    { return g.Current().Level() }

func wrapGreeter(p *Proxy[greeter]) greeter {
	return greeterProxy{p}
}

func greeterDefaults(t testing.TB) Option {
	t.Helper()
	reg, err := xbind.NewTypeRegistry().For(greeterType, reflect.TypeFor[*service]()).Build()
	require.NoError(t, err)
	return WithBindOptions(xbind.WithDefaultTypes(reg))
}

func newConfig(t testing.TB, yaml string) xconf.Config {
	t.Helper()
	cfg, err := xconf.NewFromBytes([]byte(yaml), xconf.FormatYAML)
	require.NoError(t, err)
	return cfg
}

func load(t testing.TB, cfg xconf.Config, yaml string) {
	t.Helper()
	require.NoError(t, cfg.Load([]byte(yaml)))
}
