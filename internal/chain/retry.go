package chain

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	"go.uber.org/zap"
)

// withRetry runs a read with small backoff. Delays double only while the
// provider keeps answering with rate-limit errors; reverts fail immediately.
func withRetry[T any](ctx context.Context, c *Client, method string, fn func() (T, error)) (T, error) {
	var out T
	attempts := c.Attempts
	if attempts == 0 {
		attempts = 1
	}
	err := retry.Do(
		func() error {
			v, err := fn()
			if err != nil {
				return err
			}
			out = v
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(c.Delay),
		retry.MaxDelay(5*time.Second),
		retry.DelayType(rateLimitDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			if n+1 >= attempts {
				return
			}
			c.log.Debug("rpc retry", zap.String("method", method), zap.Uint("attempt", n+1), zap.Error(err))
			if c.OnRetry != nil {
				c.OnRetry(method)
			}
		}),
	)
	return out, err
}

func rateLimitDelay(n uint, err error, cfg *retry.Config) time.Duration {
	if IsRateLimit(err) {
		return retry.BackOffDelay(n, err, cfg)
	}
	return retry.FixedDelay(n, err, cfg)
}

func retryable(err error) bool {
	if err == nil || IsRevert(err) {
		return false
	}
	return !isContextErr(err)
}
