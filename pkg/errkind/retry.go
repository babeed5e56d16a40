package errkind

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// 瞬时错误的重试上限。
const (
	MaxTries    = 5
	MaxInterval = 10 * time.Second
)

// Retry 执行 op，对 Transient 错误做指数退避重试，最多 MaxTries 次，单次等待不超过 MaxInterval。
// 非 Transient 错误立即返回。
func Retry[T any](ctx context.Context, op func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = MaxInterval
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !Transient.Has(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(MaxTries))
}

// RetryDo 是没有返回值的 Retry。
func RetryDo(ctx context.Context, op func() error) error {
	_, err := Retry(ctx, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}
