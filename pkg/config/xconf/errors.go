package xconf

import "errors"

// 配置加载和解析相关错误。
var (
	// ErrEmptyPath 表示配置文件路径为空。
	ErrEmptyPath = errors.New("xconf: empty config path")

	// ErrUnsupportedFormat 表示不支持的配置格式。
	ErrUnsupportedFormat = errors.New("xconf: unsupported config format")

	// ErrLoadFailed 表示配置加载失败。
	ErrLoadFailed = errors.New("xconf: failed to load config")

	// ErrParseFailed 表示配置解析失败。
	ErrParseFailed = errors.New("xconf: failed to parse config")

	// ErrUnmarshalFailed 表示配置反序列化失败。
	ErrUnmarshalFailed = errors.New("xconf: failed to unmarshal config")

	// ErrNotFromFile 表示操作要求 Config 来自文件。
	ErrNotFromFile = errors.New("xconf: config is not created from file")

	// ErrNotReloadable 表示 Config 来自字节数据，只能通过 Load 更新。
	ErrNotReloadable = errors.New("xconf: cannot reload config created from bytes")

	// ErrNotLoadable 表示 Config 不是从字节数据创建的，不支持 Load。
	ErrNotLoadable = errors.New("xconf: load is only supported for configs created from bytes")

	// ErrNilClient 表示远程来源（etcd、K8s、Redis）的客户端为空。
	ErrNilClient = errors.New("xconf: client is nil")

	// ErrNotFromConfigMap 表示操作要求 Config 来自 K8s ConfigMap。
	ErrNotFromConfigMap = errors.New("xconf: config is not created from configmap")

	// ErrKeyNotFound 表示远程来源中不存在指定的键（ConfigMap 数据键、Redis 键）。
	ErrKeyNotFound = errors.New("xconf: source key not found")

	// ErrNotFromRedis 表示操作要求 Config 来自 Redis。
	ErrNotFromRedis = errors.New("xconf: config is not created from redis")

	// ErrEmptySchedule 表示轮询计划为空。
	ErrEmptySchedule = errors.New("xconf: empty poll schedule")

	// ErrNotFromEtcd 表示操作要求 Config 来自 etcd。
	ErrNotFromEtcd = errors.New("xconf: config is not created from etcd")

	// ErrUnsupportedConfig 表示传入的 Config 不是本包创建的实现。
	ErrUnsupportedConfig = errors.New("xconf: unsupported config type")

	// ErrAlreadySet 表示 Holder 已经被赋值。
	ErrAlreadySet = errors.New("xconf: holder already set")

	// ErrNotSet 表示 Holder 尚未被赋值。
	ErrNotSet = errors.New("xconf: holder not set")
)
