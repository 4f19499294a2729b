package xconf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// sourceKind 标识配置数据来源。
type sourceKind int

const (
	sourceFile sourceKind = iota
	sourceBytes
	sourceEtcd
	sourceConfigMap
	sourceRedis
)

// configState 是一次加载的结果：koanf 实例和对应的配置树。
// 两者总是一起替换，读者看到的永远是同一次加载的数据。
type configState struct {
	k    *koanf.Koanf
	tree *node
}

// koanfConfig 是 Config 接口的 koanf 实现。
type koanfConfig struct {
	state  atomic.Pointer[configState]
	token  atomic.Pointer[changeToken]
	mu     sync.Mutex // 串行化 Reload/Load，防止配置回退
	path   string
	format Format
	opts   *Options
	kind   sourceKind
	etcd   *etcdSource
	cm     *configMapSource
	redis  *redisSource
}

// New 从文件路径创建配置实例。
// 根据文件扩展名自动检测格式（.yaml/.yml 或 .json）。
func New(path string, opts ...Option) (Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	format, err := detectFormat(path)
	if err != nil {
		return nil, err
	}

	c := newConfig(sourceFile, format, opts)
	c.path = path

	k, err := c.readFile()
	if err != nil {
		return nil, err
	}
	c.install(k)
	return c, nil
}

// NewFromBytes 从字节数据创建配置实例。
// 需要显式指定格式，适用于 K8s ConfigMap 等场景。
//
// 空数据处理：
//   - 空数据（len(data) == 0）会创建一个空配置实例
//   - 与 New 行为一致：New 允许读取空文件，NewFromBytes 也允许空数据
//   - 之后可以通过 Load 推送新内容，并触发变更令牌
func NewFromBytes(data []byte, format Format, opts ...Option) (Config, error) {
	if !isValidFormat(format) {
		return nil, ErrUnsupportedFormat
	}

	c := newConfig(sourceBytes, format, opts)
	k, err := c.parse(data)
	if err != nil {
		return nil, err
	}
	c.install(k)
	return c, nil
}

func newConfig(kind sourceKind, format Format, opts []Option) *koanfConfig {
	options := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	c := &koanfConfig{
		format: format,
		opts:   options,
		kind:   kind,
	}
	c.token.Store(newChangeToken())
	return c
}

// Client 返回当前的 koanf 实例。
func (c *koanfConfig) Client() *koanf.Koanf {
	return c.state.Load().k
}

// Unmarshal 将指定路径的配置反序列化到目标结构体。
func (c *koanfConfig) Unmarshal(path string, target any) error {
	if err := c.Client().UnmarshalWithConf(path, target, koanf.UnmarshalConf{
		Tag: c.opts.Tag,
	}); err != nil {
		return fmt.Errorf("%w: %w", ErrUnmarshalFailed, err)
	}
	return nil
}

// MustUnmarshal 与 Unmarshal 相同，但失败时 panic。
func (c *koanfConfig) MustUnmarshal(path string, target any) {
	if err := c.Unmarshal(path, target); err != nil {
		panic(err)
	}
}

// Root 返回根节点视图。
func (c *koanfConfig) Root() Section {
	return &section{cfg: c}
}

// Section 返回指定路径的节点视图。
func (c *koanfConfig) Section(path string) Section {
	return &section{cfg: c, segments: splitPath(path, c.opts.Delim)}
}

// ReloadToken 返回当前变更令牌。
func (c *koanfConfig) ReloadToken() ChangeToken {
	return c.token.Load()
}

// Reload 重新加载配置。
// 从字节数据创建的 Config 返回 ErrNotReloadable，应使用 Load。
func (c *koanfConfig) Reload() error {
	var load func() (*koanf.Koanf, error)
	switch c.kind {
	case sourceFile:
		load = c.readFile
	case sourceEtcd:
		load = c.etcd.fetch
	case sourceConfigMap:
		load = c.cm.fetch
	case sourceRedis:
		load = c.redis.fetch
	default:
		return ErrNotReloadable
	}

	c.mu.Lock()
	k, err := load()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	old := c.install(k)
	c.mu.Unlock()

	// 在锁外触发回调，回调中再次调用 Reload/Load 不会死锁
	old.fire()
	return nil
}

// Load 用新数据替换字节配置的内容。
// 解析失败时保持原配置不变，也不会触发变更令牌。
func (c *koanfConfig) Load(data []byte) error {
	if c.kind != sourceBytes {
		return ErrNotLoadable
	}

	k, err := c.parse(data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	old := c.install(k)
	c.mu.Unlock()

	old.fire()
	return nil
}

// Path 返回配置来源路径：文件路径、etcd 前缀、"namespace/name/key" 或 Redis 键。
func (c *koanfConfig) Path() string {
	return c.path
}

// Format 返回配置格式。
func (c *koanfConfig) Format() Format {
	return c.format
}

// install 原子替换配置状态并换上新令牌，返回需要触发的旧令牌。
// 调用方负责在释放 mu 后调用旧令牌的 fire。
func (c *koanfConfig) install(k *koanf.Koanf) *changeToken {
	c.state.Store(&configState{k: k, tree: buildTree(k.Raw())})
	return c.token.Swap(newChangeToken())
}

// =============================================================================
// 内部辅助函数
// =============================================================================

// readFile 读取并解析配置文件。
func (c *koanfConfig) readFile() (*koanf.Koanf, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	return c.parse(data)
}

// parse 将字节数据解析为新的 koanf 实例，空数据得到空配置。
func (c *koanfConfig) parse(data []byte) (*koanf.Koanf, error) {
	k := koanf.New(c.opts.Delim)
	if len(data) == 0 {
		return k, nil
	}
	if err := loadData(k, data, c.format); err != nil {
		return nil, err
	}
	return k, nil
}

// detectFormat 根据文件扩展名检测配置格式。
func detectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %s", ErrUnsupportedFormat, ext)
	}
}

// isValidFormat 检查格式是否有效。
func isValidFormat(format Format) bool {
	switch format {
	case FormatYAML, FormatJSON:
		return true
	default:
		return false
	}
}

// loadData 加载数据到 koanf 实例。
func loadData(k *koanf.Koanf, data []byte, format Format) error {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return ErrUnsupportedFormat
	}

	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	return nil
}
