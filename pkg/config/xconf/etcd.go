package xconf

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf/v2"
	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FormatEtcd 表示配置来自 etcd 键空间，叶子值为各键的原始字符串。
const FormatEtcd Format = "etcd"

// EtcdClient 定义 etcd 来源需要的最小操作集合。
// *clientv3.Client 实现了此接口。
type EtcdClient interface {
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Watch(ctx context.Context, key string, opts ...clientv3.OpOption) clientv3.WatchChan
}

// 确保 *clientv3.Client 实现 EtcdClient 接口（编译时检查）
var _ EtcdClient = (*clientv3.Client)(nil)

// etcdSource 记录 etcd 来源的连接信息。
type etcdSource struct {
	client  EtcdClient
	prefix  string
	opts    *Options
	fetcher *remoteFetcher
}

// NewFromEtcd 从 etcd 键前缀创建配置实例。
//
// prefix 下的键按 "/" 拆分为路径段，例如前缀 "/app/" 下的
// "/app/server/port" 对应配置路径 "server.port"。
// 读取失败时按 RemoteAttempts/RemoteRetryDelay 重试，WithRemoteBreaker 可启用熔断。
//
// 返回的 Config 支持 Reload（重新读取整个前缀），配合 WatchEtcd 实现热更新。
func NewFromEtcd(ctx context.Context, client EtcdClient, prefix string, opts ...Option) (Config, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if prefix == "" {
		return nil, ErrEmptyPath
	}

	c := newConfig(sourceEtcd, FormatEtcd, opts)
	c.path = prefix
	c.etcd = &etcdSource{
		client:  client,
		prefix:  prefix,
		opts:    c.opts,
		fetcher: newRemoteFetcher("xconf-etcd:"+prefix, c.opts),
	}

	k, err := c.etcd.fetchContext(ctx)
	if err != nil {
		return nil, err
	}
	c.install(k)
	return c, nil
}

// fetch 使用后台 context 读取整个前缀，供 Reload 使用。
func (s *etcdSource) fetch() (*koanf.Koanf, error) {
	return s.fetchContext(context.Background())
}

// fetchContext 读取前缀下全部键并构造 koanf 实例。
func (s *etcdSource) fetchContext(ctx context.Context) (*koanf.Koanf, error) {
	return s.fetcher.fetch(ctx, s.get, retryableEtcd)
}

// retryableEtcd 报告 etcd 错误是否值得重试。鉴权和参数错误重试也不会成功。
func retryableEtcd(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.InvalidArgument:
		return false
	}
	return true
}

func (s *etcdSource) get(ctx context.Context) (*koanf.Koanf, error) {
	resp, err := s.client.Get(ctx, s.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	k := koanf.New(s.opts.Delim)
	for _, kv := range resp.Kvs {
		path := s.keyPath(string(kv.Key))
		if path == "" {
			continue
		}
		if err := k.Set(path, string(kv.Value)); err != nil {
			return nil, fmt.Errorf("%w: key %s: %w", ErrParseFailed, kv.Key, err)
		}
	}
	return k, nil
}

// keyPath 把 etcd 键转换为以 Delim 连接的配置路径。
func (s *etcdSource) keyPath(key string) string {
	rel := strings.TrimPrefix(key, s.prefix)
	return strings.Join(splitPath(rel, "/"), s.opts.Delim)
}

// WatchEtcd 监视 etcd 前缀并在每次变更后重载配置。
//
// 此方法阻塞直到 ctx 取消或 watch 通道关闭，通常应在 goroutine 中调用。
// 每个 watch 响应触发一次 Reload，callback（可为 nil）接收重载结果；
// watch 本身的错误（如 compaction）也会通过 callback 报告。
func WatchEtcd(ctx context.Context, cfg Config, callback WatchCallback) error {
	kc, ok := cfg.(*koanfConfig)
	if !ok {
		return ErrUnsupportedConfig
	}
	if kc.kind != sourceEtcd {
		return ErrNotFromEtcd
	}

	ch := kc.etcd.client.Watch(ctx, kc.etcd.prefix, clientv3.WithPrefix())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case resp, ok := <-ch:
			if !ok {
				return nil
			}
			if err := resp.Err(); err != nil {
				if callback != nil {
					callback(cfg, fmt.Errorf("xconf: etcd watch error: %w", err))
				}
				if resp.Canceled {
					return errors.Join(ctx.Err(), err)
				}
				continue
			}
			if len(resp.Events) == 0 {
				continue
			}
			err := kc.Reload()
			if callback != nil {
				callback(cfg, err)
			}
		}
	}
}
