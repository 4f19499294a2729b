package xconf

import (
	"context"
	"errors"
	"fmt"

	retry "github.com/avast/retry-go/v5"
	"github.com/knadh/koanf/v2"
	"github.com/sony/gobreaker/v2"
)

// remoteFetcher 为远程来源的读取提供超时、重试和可选的熔断。
type remoteFetcher struct {
	opts    *Options
	breaker *gobreaker.CircuitBreaker[*koanf.Koanf]
}

// newRemoteFetcher 创建读取器。BreakerFailures 为 0 时不启用熔断。
func newRemoteFetcher(name string, opts *Options) *remoteFetcher {
	f := &remoteFetcher{opts: opts}
	if opts.BreakerFailures > 0 {
		threshold := opts.BreakerFailures
		f.breaker = gobreaker.NewCircuitBreaker[*koanf.Koanf](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Timeout:     opts.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			// 数据本身的错误（键缺失、解析失败）不代表远程来源不可用
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrParseFailed) || errors.Is(err, ErrKeyNotFound)
			},
		})
	}
	return f
}

// fetch 执行 get，失败时按 RemoteAttempts/RemoteRetryDelay 重试。
// retryable 为 nil 时所有错误都重试。
func (f *remoteFetcher) fetch(ctx context.Context, get func(ctx context.Context) (*koanf.Koanf, error),
	retryable func(error) bool) (*koanf.Koanf, error) {
	attempt := func() (*koanf.Koanf, error) {
		var k *koanf.Koanf
		err := retry.New(
			retry.Context(ctx),
			retry.Attempts(f.opts.RemoteAttempts),
			retry.Delay(f.opts.RemoteRetryDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(func(err error) bool {
				if errors.Is(err, ErrParseFailed) || errors.Is(err, ErrKeyNotFound) {
					return false
				}
				return retryable == nil || retryable(err)
			}),
		).Do(func() error {
			getCtx, cancel := context.WithTimeout(ctx, f.opts.RemoteTimeout)
			defer cancel()
			got, err := get(getCtx)
			if err != nil {
				return err
			}
			k = got
			return nil
		})
		if err != nil {
			return nil, err
		}
		return k, nil
	}

	var (
		k   *koanf.Koanf
		err error
	)
	if f.breaker != nil {
		k, err = f.breaker.Execute(attempt)
	} else {
		k, err = attempt()
	}
	if err != nil {
		if errors.Is(err, ErrParseFailed) || errors.Is(err, ErrKeyNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	return k, nil
}
