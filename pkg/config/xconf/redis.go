package xconf

import (
	"context"
	"errors"
	"fmt"

	"github.com/knadh/koanf/v2"
	"github.com/redis/go-redis/v9"
)

// RedisClient 定义 Redis 来源需要的最小操作集合。
// redis.UniversalClient（*redis.Client、*redis.ClusterClient 等）实现了此接口。
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

var _ RedisClient = (redis.UniversalClient)(nil)

// redisSource 记录 Redis 来源的键。
type redisSource struct {
	client  RedisClient
	key     string
	parse   func([]byte) (*koanf.Koanf, error)
	fetcher *remoteFetcher
}

// NewFromRedis 从 Redis 字符串键创建配置实例，键的值是 format 格式的完整配置文档。
//
// 读取失败时按 RemoteAttempts/RemoteRetryDelay 重试；键不存在返回 ErrKeyNotFound，不重试。
// 返回的 Config 支持 Reload，配合 WatchRedis 实现热更新。
func NewFromRedis(ctx context.Context, client RedisClient, key string, format Format, opts ...Option) (Config, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if key == "" {
		return nil, ErrEmptyPath
	}
	if !isValidFormat(format) {
		return nil, ErrUnsupportedFormat
	}

	c := newConfig(sourceRedis, format, opts)
	c.path = key
	c.redis = &redisSource{
		client:  client,
		key:     key,
		parse:   c.parse,
		fetcher: newRemoteFetcher("xconf-redis:"+key, c.opts),
	}

	k, err := c.redis.fetchContext(ctx)
	if err != nil {
		return nil, err
	}
	c.install(k)
	return c, nil
}

func (s *redisSource) fetch() (*koanf.Koanf, error) {
	return s.fetchContext(context.Background())
}

func (s *redisSource) fetchContext(ctx context.Context) (*koanf.Koanf, error) {
	return s.fetcher.fetch(ctx, s.get, nil)
}

func (s *redisSource) get(ctx context.Context) (*koanf.Koanf, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: redis %s", ErrKeyNotFound, s.key)
	}
	if err != nil {
		return nil, err
	}
	return s.parse(data)
}

// WatchRedis 订阅 channel，每收到一条消息重新读取配置键。
//
// 发布方约定先 SET 配置键再 PUBLISH 到 channel，消息内容不被使用。
// 此方法阻塞直到 ctx 取消或订阅关闭，通常应在 goroutine 中调用。
// 每次重载的结果通过 callback（可为 nil）报告。
func WatchRedis(ctx context.Context, cfg Config, channel string, callback WatchCallback) error {
	kc, ok := cfg.(*koanfConfig)
	if !ok {
		return ErrUnsupportedConfig
	}
	if kc.kind != sourceRedis {
		return ErrNotFromRedis
	}
	if channel == "" {
		return ErrEmptyPath
	}

	ps := kc.redis.client.Subscribe(ctx, channel)
	defer func() { _ = ps.Close() }() //nolint:errcheck // 退出路径，关闭错误无可处理

	// 等待订阅确认，之后发布的消息不会丢失
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("xconf: redis subscribe %s: %w", channel, err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			err := kc.Reload()
			if callback != nil {
				callback(cfg, err)
			}
		}
	}
}
