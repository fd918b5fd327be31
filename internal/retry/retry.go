// Package retry runs operations with exponential backoff and jitter.
//
// Classification is delegated to services.IsRetryable: errors that report
// Retryable() decide for themselves, transient and timeout markers retry,
// everything else is final. Errors may also expose RetryAfter() to carry a
// server-provided wait, which replaces the computed backoff for that step.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"murmur/internal/services"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 500 * time.Millisecond
	defaultMaxDelay    = 30 * time.Second
	defaultFactor      = 2.0
	defaultJitter      = 0.25
)

// Policy controls how many times an operation runs and how long to wait
// between attempts.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Factor      float64
	// Jitter adds up to this fraction of the computed delay so parallel
	// workers do not retry in lockstep.
	Jitter float64

	// Sleep overrides how waits are performed. Tests use this to record
	// delays instead of sleeping.
	Sleep func(time.Duration)
}

// DefaultPolicy returns the backoff used when a component does not carry its
// own retry settings.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
		Factor:      defaultFactor,
		Jitter:      defaultJitter,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.Factor < 1 {
		p.Factor = defaultFactor
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

type retryAfterHint interface {
	RetryAfter() time.Duration
}

// Do runs fn until it succeeds, fails with a final error, exhausts the
// attempt budget, or ctx ends. Context cancellation is returned as-is so
// callers can distinguish it from operation failure.
func Do(ctx context.Context, policy Policy, op string, fn func(context.Context) error) error {
	_, err := DoValue(ctx, policy, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, policy Policy, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	p := policy.normalized()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		value, err := fn(ctx)
		if err == nil {
			return value, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		if !services.IsRetryable(err) {
			return zero, err
		}
		lastErr = err
		if attempt == p.MaxAttempts {
			break
		}
		if sleepErr := p.sleep(ctx, p.delay(attempt, retryAfter(err))); sleepErr != nil {
			return zero, sleepErr
		}
	}
	return zero, fmt.Errorf("%s: failed after %d attempts: %w", op, p.MaxAttempts, lastErr)
}

// delay computes the wait after the given 1-based attempt. A positive hint
// from the server wins over the exponential schedule; both are capped.
func (p Policy) delay(attempt int, hint time.Duration) time.Duration {
	if hint > 0 {
		if hint > p.MaxDelay {
			return p.MaxDelay
		}
		return hint
	}
	exp := math.Min(
		float64(p.BaseDelay)*math.Pow(p.Factor, float64(attempt-1)),
		float64(p.MaxDelay),
	)
	if p.Jitter > 0 {
		exp += rand.Float64() * exp * p.Jitter
	}
	if capped := float64(p.MaxDelay); exp > capped {
		exp = capped
	}
	return time.Duration(exp)
}

func (p Policy) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if p.Sleep != nil {
		p.Sleep(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func retryAfter(err error) time.Duration {
	var hint retryAfterHint
	if errors.As(err, &hint) {
		if d := hint.RetryAfter(); d > 0 {
			return d
		}
	}
	return 0
}
