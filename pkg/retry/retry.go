// Package retry implements bounded exponential backoff with jitter for
// gateway calls that fail transiently.
package retry

import (
	"context"
	"log"
	"math"
	"math/rand"
	"strings"
	"time"

	"execution-core/pkg/exchanges/common"
)

// retryableKeywords mark an error message as transient when the error
// type itself carries no classification.
var retryableKeywords = []string{
	"timeout",
	"connection",
	"network",
	"rate limit",
	"temporary",
	"service unavailable",
	"503",
	"502",
	"504",
}

// Observer is invoked before each retry sleep with the attempt number
// (1-based), the error that caused it and the chosen delay.
type Observer func(attempt int, err error, delay time.Duration)

// Policy describes a retry schedule. The zero value is not usable;
// construct with NewPolicy.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	OnRetry     Observer
}

// NewPolicy returns a policy with the default schedule: 3 attempts,
// 1s base delay doubling per attempt, capped at 30s.
func NewPolicy() *Policy {
	return &Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2.0,
		MaxDelay:    30 * time.Second,
	}
}

// Delay computes the backoff before retry attempt number attempt
// (0-based): min(base*multiplier^attempt, cap), scaled by a uniform
// jitter factor in [0.5, 1.0).
func (p *Policy) Delay(attempt int) time.Duration {
	base := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt))
	if capped := float64(p.MaxDelay); base > capped {
		base = capped
	}
	jitter := 0.5 + rand.Float64()*0.5
	return time.Duration(base * jitter)
}

// Retryable reports whether err is worth retrying: transient gateway
// errors by type, otherwise by message keyword. Definitive rejections
// are never retried.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if common.IsRejected(err) {
		return false
	}
	if common.IsTransient(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, kw := range retryableKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

// Do runs fn up to MaxAttempts times, sleeping between attempts. The
// final error is returned unwrapped.
func (p *Policy) Do(fn func() error) error {
	return p.DoCtx(context.Background(), func(context.Context) error { return fn() })
}

// DoCtx is Do with cancellation: a done context aborts both the sleep
// and further attempts.
func (p *Policy) DoCtx(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts-1 {
			break
		}
		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, lastErr, delay)
		} else {
			log.Printf("retry: attempt %d/%d failed: %v (next in %s)", attempt+1, p.MaxAttempts, lastErr, delay)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// DoValue runs fn with the policy's schedule and returns its value.
func DoValue[T any](ctx context.Context, p *Policy, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := p.DoCtx(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
