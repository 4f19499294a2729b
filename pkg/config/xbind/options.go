package xbind

import "log/slog"

// Option 配置一次绑定调用。
type Option func(*options)

type options struct {
	catalog  *Catalog
	types    *TypeRegistry
	convs    *ConverterRegistry
	resolver Resolver
	logger   *slog.Logger
}

func defaultOptions() *options {
	return &options{
		catalog: emptyCatalog,
		logger:  slog.Default(),
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

// WithCatalog 设置元数据表。Catalog 在第一次绑定时被冻结。
func WithCatalog(c *Catalog) Option {
	return func(o *options) {
		if c != nil {
			o.catalog = c
		}
	}
}

// WithDefaultTypes 设置本次调用的默认类型映射。
func WithDefaultTypes(r *TypeRegistry) Option {
	return func(o *options) {
		o.types = r
	}
}

// WithConverters 设置本次调用的转换函数映射。
func WithConverters(r *ConverterRegistry) Option {
	return func(o *options) {
		o.convs = r
	}
}

// WithResolver 设置构造函数参数的后备来源。
func WithResolver(r Resolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}

// WithLogger 设置日志记录器，用于记录被忽略的配置键（Debug 级别）。
// 默认使用 slog.Default()。
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
