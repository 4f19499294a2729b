package xconf

import "github.com/knadh/koanf/v2"

// Format 定义配置文件格式。
type Format string

// 支持的配置格式。
const (
	// FormatYAML YAML 格式（推荐用于 K8s ConfigMap）。
	FormatYAML Format = "yaml"

	// FormatJSON JSON 格式。
	FormatJSON Format = "json"
)

// Config 定义配置接口。
// 只提供增值功能，基础操作请直接使用 Client() 返回的 koanf 实例。
type Config interface {
	// Client 返回底层的 koanf 实例。
	// 返回值是调用时刻的快照，Reload/Load 之后需要重新获取。
	Client() *koanf.Koanf

	// Unmarshal 将指定路径的配置反序列化到目标结构体。
	// path 为空字符串时反序列化整个配置。
	// 使用 mapstructure 进行反序列化。
	Unmarshal(path string, target any) error

	// MustUnmarshal 与 Unmarshal 相同，但失败时 panic。
	// 适用于程序启动时的必要配置加载。
	MustUnmarshal(path string, target any)

	// Root 返回配置树根节点的实时视图。
	Root() Section

	// Section 返回指定路径（以 Delim 分隔）节点的实时视图。
	// 路径不存在时返回 Exists() 为 false 的空节点，而不是 nil。
	Section(path string) Section

	// ReloadToken 返回当前的变更令牌。
	// 每次成功的 Reload/Load 都会触发当前令牌并换上新令牌。
	ReloadToken() ChangeToken

	// Reload 从数据源重新加载配置。
	// 此方法是并发安全的，对字节来源返回 ErrNotReloadable。
	Reload() error

	// Load 用新的字节数据替换配置内容。
	// 仅对 NewFromBytes 创建的 Config 有效，适用于 ConfigMap 推送等场景。
	Load(data []byte) error

	// Path 返回配置文件路径。
	// 从字节数据创建的 Config 返回空字符串，etcd 来源返回键前缀，
	// ConfigMap 来源返回 "namespace/name/key"，Redis 来源返回键名。
	Path() string

	// Format 返回配置格式。
	Format() Format
}

// Section 是配置树中某个节点的视图。
//
// 叶子节点持有字符串值；分支节点持有有序子节点。
// 子节点名称恰为 0..n-1 的分支称为列表节点。
// 子节点查找不区分大小写。
type Section interface {
	// Key 返回节点自身的键名（路径最后一段）。根节点返回空字符串。
	Key() string

	// Path 返回从根开始、以 Delim 连接的完整路径。
	Path() string

	// Value 返回叶子值。分支节点、null 值或不存在的节点返回 ("", false)。
	Value() (string, bool)

	// Exists 报告节点是否存在（有值或有子节点）。
	Exists() bool

	// Get 返回相对路径 key 对应的叶子值。
	Get(key string) (string, bool)

	// Section 返回相对路径 key 对应的子节点视图。
	Section(key string) Section

	// Children 按顺序返回直接子节点。
	Children() []Section

	// Snapshot 返回固定在当前配置树上的视图，后续重载不会改变它读到的内容。
	Snapshot() Section

	// ReloadToken 返回所属配置的当前变更令牌。
	ReloadToken() ChangeToken
}

// ChangeToken 变更令牌。
//
// 每个令牌至多触发一次；调用方需要在回调中重新获取令牌并注册，
// 才能收到后续变更通知。
type ChangeToken interface {
	// HasChanged 报告令牌是否已经触发。
	HasChanged() bool

	// RegisterChangeCallback 注册触发回调，返回取消注册函数。
	// 对已触发的令牌注册时，回调会被同步立即调用。
	RegisterChangeCallback(fn func()) (unregister func())
}
