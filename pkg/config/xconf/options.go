package xconf

import "time"

// Options 定义配置加载选项。
type Options struct {
	// Delim 配置键的分隔符，默认为 "."。
	Delim string

	// Tag 结构体标签名，用于 Unmarshal，默认为 "koanf"。
	Tag string

	// RemoteTimeout 远程来源（etcd、ConfigMap、Redis）单次读取的超时时间，默认 5s。
	RemoteTimeout time.Duration

	// RemoteAttempts 远程读取的总尝试次数（包含首次），默认 3。
	RemoteAttempts uint

	// RemoteRetryDelay 远程读取失败后的重试间隔，默认 100ms。
	RemoteRetryDelay time.Duration

	// BreakerFailures 连续失败多少次后熔断远程读取，0 表示不启用熔断。
	BreakerFailures uint32

	// BreakerTimeout 熔断打开后多久进入半开状态，默认 30s。
	BreakerTimeout time.Duration
}

// Option 定义配置选项函数类型。
type Option func(*Options)

// defaultOptions 返回默认配置选项。
func defaultOptions() *Options {
	return &Options{
		Delim:            ".",
		Tag:              "koanf",
		RemoteTimeout:    5 * time.Second,
		RemoteAttempts:   3,
		RemoteRetryDelay: 100 * time.Millisecond,
		BreakerTimeout:   30 * time.Second,
	}
}

// WithDelim 设置配置键分隔符。
// 默认为 "."，例如 "app.server.port"。
func WithDelim(delim string) Option {
	return func(o *Options) {
		if delim != "" {
			o.Delim = delim
		}
	}
}

// WithTag 设置结构体标签名。
// 默认为 "koanf"，用于 Unmarshal 时的字段映射。
func WithTag(tag string) Option {
	return func(o *Options) {
		o.Tag = tag
	}
}

// WithRemoteTimeout 设置远程来源单次读取超时。非正值被忽略。
func WithRemoteTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.RemoteTimeout = d
		}
	}
}

// WithRemoteRetry 设置远程读取的总尝试次数和重试间隔。
// attempts 为 0 时保持默认值。
func WithRemoteRetry(attempts uint, delay time.Duration) Option {
	return func(o *Options) {
		if attempts > 0 {
			o.RemoteAttempts = attempts
		}
		if delay >= 0 {
			o.RemoteRetryDelay = delay
		}
	}
}

// WithRemoteBreaker 为远程读取启用熔断：连续 failures 次读取失败（重试耗尽）后，
// 在 openTimeout 内的 Reload 直接失败，不再访问远程来源。
// failures 为 0 时关闭熔断；openTimeout 非正时保持默认值。
func WithRemoteBreaker(failures uint32, openTimeout time.Duration) Option {
	return func(o *Options) {
		o.BreakerFailures = failures
		if openTimeout > 0 {
			o.BreakerTimeout = openTimeout
		}
	}
}
