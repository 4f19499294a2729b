package xreload

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/omeyang/xbind/pkg/config/xbind"
)

// Option 配置 Proxy 的选项函数。
type Option func(*options)

type options struct {
	logger         *slog.Logger
	name           string
	bindOpts       []xbind.Option
	carryOver      bool
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

func defaultOptions() *options {
	return &options{
		logger:    slog.Default(),
		name:      "xreload",
		carryOver: true,
	}
}

func applyOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// WithLogger 设置日志记录器。
//
// 记录重建成功（Info）、无变化跳过（Debug）和失败（Error）。
// 默认使用 slog.Default()。
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithName 设置代理名称，用于日志、指标和 span 属性。默认值为 "xreload"。
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithBindOptions 设置构建实例时传给 xbind 的选项（Catalog、注册表、Resolver 等）。
// 状态保留（CarryOver）使用同一组选项识别配置键。
func WithBindOptions(opts ...xbind.Option) Option {
	copied := append([]xbind.Option(nil), opts...)
	return func(o *options) {
		o.bindOpts = append(o.bindOpts, copied...)
	}
}

// WithCarryOver 设置重建后是否把调用方修改过、新配置未提及的标量字段复制到新实例。
// 默认开启，仅对结构体指针实例生效。
func WithCarryOver(enabled bool) Option {
	return func(o *options) {
		o.carryOver = enabled
	}
}

// WithMeterProvider 设置 MeterProvider。未设置时不记录指标。
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithTracerProvider 设置 TracerProvider。未设置时使用全局 TracerProvider。
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}
