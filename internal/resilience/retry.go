package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy decides how often a failing call is repeated and how long to wait
// in between.
type Policy struct {
	// Label names the call in retry logs, e.g. "store upsert".
	Label string
	// Attempts is the total number of calls, first one included. Default 3.
	Attempts int
	// Delay returns the wait after the given 1-based failed attempt.
	// Default Exponential(500ms, 30s).
	Delay func(failed int) time.Duration
	// Retryable reports whether an error is worth another attempt.
	// Default IsTransient.
	Retryable func(error) bool
	// Clock performs the waits. Default RealClock.
	Clock Clock
}

func (p Policy) withDefaults() Policy {
	if p.Attempts <= 0 {
		p.Attempts = 3
	}
	if p.Delay == nil {
		p.Delay = Exponential(500*time.Millisecond, 30*time.Second)
	}
	if p.Retryable == nil {
		p.Retryable = IsTransient
	}
	if p.Clock == nil {
		p.Clock = RealClock{}
	}
	return p
}

// Linear waits failed × base: base, 2·base, 3·base and so on.
func Linear(base time.Duration) func(int) time.Duration {
	return func(failed int) time.Duration { return time.Duration(failed) * base }
}

// Exponential doubles base after each failure up to limit, spreading each
// wait by up to a quarter in either direction.
func Exponential(base, limit time.Duration) func(int) time.Duration {
	return func(failed int) time.Duration {
		d := base
		for i := 1; i < failed && d < limit; i++ {
			d *= 2
		}
		d = min(d, limit)
		spread := float64(d) / 4
		return max(0, d+time.Duration((rand.Float64()*2-1)*spread))
	}
}

// Always treats every error as retryable.
func Always(err error) bool { return err != nil }

// Retry calls fn until it succeeds, returns an error p does not retry, or
// runs out of attempts. Cancellation of ctx ends it at once.
func Retry(ctx context.Context, p Policy, fn func(context.Context) error) error {
	_, err := RetryValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryValue is Retry for calls that produce a value.
func RetryValue[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	p = p.withDefaults()
	for failed := 1; ; failed++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || failed >= p.Attempts || !p.Retryable(err) {
			return v, err
		}

		wait := p.Delay(failed)
		zap.L().Warn("resilience: retrying",
			zap.String("call", p.Label),
			zap.Int("attempt", failed),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if p.Clock.Sleep(ctx, wait) != nil {
			return v, err
		}
	}
}
