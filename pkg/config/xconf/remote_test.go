package xconf

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func TestRemoteBreaker_OpensAfterFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockEtcdClient(ctrl)

	gomock.InOrder(
		client.EXPECT().Get(gomock.Any(), "/app/", gomock.Any()).
			Return(etcdResponse(map[string]string{"/app/level": "1"}), nil),
		client.EXPECT().Get(gomock.Any(), "/app/", gomock.Any()).
			Return(nil, errors.New("unavailable")).Times(2),
	)

	cfg, err := NewFromEtcd(context.Background(), client, "/app/",
		WithRemoteRetry(1, 0), WithRemoteBreaker(2, time.Hour))
	require.NoError(t, err)

	assert.ErrorIs(t, cfg.Reload(), ErrLoadFailed)
	assert.ErrorIs(t, cfg.Reload(), ErrLoadFailed)

	// 熔断打开后不再访问 etcd
	err = cfg.Reload()
	assert.ErrorIs(t, err, ErrLoadFailed)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)

	v, _ := cfg.Root().Get("level")
	assert.Equal(t, "1", v, "failed reloads keep the previous tree")
}

func TestRemoteBreaker_HalfOpenRecovers(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := NewMockEtcdClient(ctrl)

	gomock.InOrder(
		client.EXPECT().Get(gomock.Any(), "/app/", gomock.Any()).
			Return(etcdResponse(map[string]string{"/app/level": "1"}), nil),
		client.EXPECT().Get(gomock.Any(), "/app/", gomock.Any()).
			Return(nil, errors.New("unavailable")),
		client.EXPECT().Get(gomock.Any(), "/app/", gomock.Any()).
			Return(etcdResponse(map[string]string{"/app/level": "2"}), nil),
	)

	cfg, err := NewFromEtcd(context.Background(), client, "/app/",
		WithRemoteRetry(1, 0), WithRemoteBreaker(1, 20*time.Millisecond))
	require.NoError(t, err)

	assert.ErrorIs(t, cfg.Reload(), ErrLoadFailed)
	assert.ErrorIs(t, cfg.Reload(), gobreaker.ErrOpenState)

	require.Eventually(t, func() bool {
		return cfg.Reload() == nil
	}, time.Second, 5*time.Millisecond)
	v, _ := cfg.Root().Get("level")
	assert.Equal(t, "2", v)
}

func TestRemoteBreaker_DataErrorsDoNotTrip(t *testing.T) {
	ctx := context.Background()
	client := fake.NewSimpleClientset(&corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "app", Namespace: "prod"},
		Data:       map[string]string{"app.yaml": "level: 1\n"},
	})

	cfg, err := NewFromConfigMap(ctx, client, "prod", "app", "app.yaml",
		WithRemoteRetry(1, 0), WithRemoteBreaker(1, time.Hour))
	require.NoError(t, err)

	_, err = client.CoreV1().ConfigMaps("prod").Update(ctx, &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "app", Namespace: "prod"},
		Data:       map[string]string{"app.yaml": "level: [1\n"},
	}, metav1.UpdateOptions{})
	require.NoError(t, err)

	for range 3 {
		err := cfg.Reload()
		assert.ErrorIs(t, err, ErrParseFailed)
		assert.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}
	assert.Equal(t, 4, countGets(client))
}

func TestRemoteFetcher_NoBreakerByDefault(t *testing.T) {
	f := newRemoteFetcher("test", defaultOptions())
	assert.Nil(t, f.breaker)

	o := defaultOptions()
	WithRemoteBreaker(3, 0)(o)
	assert.Equal(t, uint32(3), o.BreakerFailures)
	assert.Equal(t, 30*time.Second, o.BreakerTimeout)
	assert.NotNil(t, newRemoteFetcher("test", o).breaker)
}
