package delivery

import (
	"context"
	"time"
)

// RetryPolicy bounds direct transfer attempts.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
}

// FixedRetry waits the same delay between every attempt.
func FixedRetry(attempts int, delay time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		Backoff:     func(int) time.Duration { return delay },
		Sleep:       sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs op until it succeeds or attempts run out, sleeping between attempts
// only. It returns the number of attempts made and the last error.
func (p RetryPolicy) Do(ctx context.Context, op func(attempt int) error) (int, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var err error
	for i := 1; i <= attempts; i++ {
		if err = op(i); err == nil {
			return i, nil
		}
		if i == attempts {
			break
		}
		if p.Backoff != nil {
			if serr := sleep(ctx, p.Backoff(i)); serr != nil {
				return i, serr
			}
		}
	}
	return attempts, err
}
