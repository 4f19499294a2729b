package xconf

import (
	"context"
	"fmt"

	"github.com/knadh/koanf/v2"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
)

// configMapSource 记录 ConfigMap 来源的定位信息。
type configMapSource struct {
	client    kubernetes.Interface
	namespace string
	name      string
	key       string
	parse     func([]byte) (*koanf.Koanf, error)
	fetcher   *remoteFetcher
}

// NewFromConfigMap 从 K8s ConfigMap 的一个数据键创建配置实例。
//
// 格式由 key 的扩展名决定（如 "app.yaml"、"app.json"），
// 键同时在 Data 和 BinaryData 中查找。namespace 为空时使用 "default"。
// 读取失败时按 RemoteAttempts/RemoteRetryDelay 重试；NotFound 和 Forbidden 不重试。
//
// 前置条件：ServiceAccount 需要 ConfigMap 的 get/watch 权限。
//
// 返回的 Config 支持 Reload（重新读取 ConfigMap），配合 WatchConfigMap 实现热更新。
func NewFromConfigMap(ctx context.Context, client kubernetes.Interface, namespace, name, key string, opts ...Option) (Config, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if name == "" || key == "" {
		return nil, ErrEmptyPath
	}
	if namespace == "" {
		namespace = metav1.NamespaceDefault
	}
	format, err := detectFormat(key)
	if err != nil {
		return nil, err
	}

	c := newConfig(sourceConfigMap, format, opts)
	c.path = namespace + "/" + name + "/" + key
	c.cm = &configMapSource{
		client:    client,
		namespace: namespace,
		name:      name,
		key:       key,
		parse:     c.parse,
		fetcher:   newRemoteFetcher("xconf-configmap:"+c.path, c.opts),
	}

	k, err := c.cm.fetchContext(ctx)
	if err != nil {
		return nil, err
	}
	c.install(k)
	return c, nil
}

// fetch 使用后台 context 读取 ConfigMap，供 Reload 使用。
func (s *configMapSource) fetch() (*koanf.Koanf, error) {
	return s.fetchContext(context.Background())
}

func (s *configMapSource) fetchContext(ctx context.Context) (*koanf.Koanf, error) {
	return s.fetcher.fetch(ctx, s.get, func(err error) bool {
		return !apierrors.IsNotFound(err) && !apierrors.IsForbidden(err)
	})
}

func (s *configMapSource) get(ctx context.Context) (*koanf.Koanf, error) {
	cm, err := s.client.CoreV1().ConfigMaps(s.namespace).Get(ctx, s.name, metav1.GetOptions{})
	if err != nil {
		return nil, err
	}
	return s.decode(cm)
}

// decode 取出数据键并解析。
func (s *configMapSource) decode(cm *corev1.ConfigMap) (*koanf.Koanf, error) {
	if v, ok := cm.Data[s.key]; ok {
		return s.parse([]byte(v))
	}
	if b, ok := cm.BinaryData[s.key]; ok {
		return s.parse(b)
	}
	return nil, fmt.Errorf("%w: %s/%s[%s]", ErrKeyNotFound, s.namespace, s.name, s.key)
}

// WatchConfigMap 监视 ConfigMap 并在每次修改后替换配置。
//
// 此方法阻塞直到 ctx 取消或 watch 通道关闭，通常应在 goroutine 中调用；
// 通道关闭（API Server 超时断开）时返回 nil，调用方可以重新调用。
// 新内容直接取自 watch 事件，不会再次访问 API Server。
// 每个 Added/Modified 事件的结果通过 callback（可为 nil）报告；
// ConfigMap 被删除或 watch 出错时报告错误并保留当前配置。
func WatchConfigMap(ctx context.Context, cfg Config, callback WatchCallback) error {
	kc, ok := cfg.(*koanfConfig)
	if !ok {
		return ErrUnsupportedConfig
	}
	if kc.kind != sourceConfigMap {
		return ErrNotFromConfigMap
	}
	s := kc.cm

	w, err := s.client.CoreV1().ConfigMaps(s.namespace).Watch(ctx, metav1.ListOptions{
		FieldSelector: fields.OneTermEqualSelector("metadata.name", s.name).String(),
	})
	if err != nil {
		return fmt.Errorf("xconf: configmap watch: %w", err)
	}
	defer w.Stop()

	report := func(err error) {
		if callback != nil {
			callback(cfg, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.ResultChan():
			if !ok {
				return nil
			}
			switch ev.Type {
			case watch.Added, watch.Modified:
				cm, ok := ev.Object.(*corev1.ConfigMap)
				if !ok {
					continue
				}
				report(kc.applyConfigMap(cm))
			case watch.Deleted:
				report(fmt.Errorf("%w: configmap %s/%s deleted", ErrLoadFailed, s.namespace, s.name))
			case watch.Error:
				report(fmt.Errorf("xconf: configmap watch error: %w", apierrors.FromObject(ev.Object)))
			}
		}
	}
}

// applyConfigMap 用事件中的 ConfigMap 替换配置并触发变更令牌。
func (c *koanfConfig) applyConfigMap(cm *corev1.ConfigMap) error {
	k, err := c.cm.decode(cm)
	if err != nil {
		return err
	}

	c.mu.Lock()
	old := c.install(k)
	c.mu.Unlock()

	old.fire()
	return nil
}
