package generation

import (
	"context"
	"slices"
	"time"
)

// Policy bounds the retries applied to a single provider call.
type Policy struct {
	// MaxAttempts is the maximum number of calls, including the first one.
	MaxAttempts int
	// BaseDelay is the delay before the second call.
	BaseDelay time.Duration
	// MaxDelay caps any single delay.
	MaxDelay time.Duration
	// Retryable lists the error kinds that may be retried.
	Retryable []ErrorKind
}

// DefaultPolicy returns the policy used for provider invocation:
// 3 attempts, 1s base delay, rate-limit and transient errors retryable.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Retryable:   []ErrorKind{KindRateLimited, KindTransient},
	}
}

// Backoff returns the delay to wait after the given failed attempt
// (1-based): min(MaxDelay, BaseDelay * 2^(attempt-1)).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Schedule returns every delay the policy can produce, in order.
// Its sum is the upper bound of time spent sleeping between retries.
func (p Policy) Schedule() []time.Duration {
	n := p.attempts() - 1
	out := make([]time.Duration, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, p.Backoff(i))
	}
	return out
}

// IsRetryable reports whether errors of the given kind may be retried.
func (p Policy) IsRetryable(kind ErrorKind) bool {
	return slices.Contains(p.Retryable, kind)
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Sleeper waits for d or until ctx is done, whichever comes first.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper, backed by a timer.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retry calls fn until it succeeds, fails with a non-retryable error, or the
// policy's attempts are used up. It returns the number of calls made. The last
// error is returned unchanged so its kind survives for fallback decisions.
func Retry[T any](ctx context.Context, p Policy, sleep Sleeper, fn func(context.Context) (T, error)) (T, int, error) {
	var zero T
	if sleep == nil {
		sleep = Sleep
	}
	maxAttempts := p.attempts()

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return zero, attempt - 1, cancelled(ctx, "", "retry")
		}

		v, err := fn(ctx)
		if err == nil {
			return v, attempt, nil
		}
		if ctx.Err() != nil {
			return zero, attempt, cancelled(ctx, "", "retry")
		}
		if attempt >= maxAttempts || !p.IsRetryable(KindOf(err)) {
			return zero, attempt, err
		}

		if serr := sleep(ctx, p.Backoff(attempt)); serr != nil {
			return zero, attempt, cancelled(ctx, "", "retry")
		}
	}
}
