package common

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle paces outgoing API calls with a token bucket and accounts
// request weight against the venue's per-window allowance.
type Throttle struct {
	limiter *rate.Limiter

	mu            sync.Mutex
	usedWeight    int
	weightLimit   int
	lastReset     time.Time
	resetInterval time.Duration
}

// NewThrottle creates a throttle.
// rps/burst shape the local token bucket; weightLimit is the maximum
// request weight the venue allows per resetInterval (e.g. 2400/min for
// Binance USDT futures).
func NewThrottle(rps float64, burst int, weightLimit int, resetInterval time.Duration) *Throttle {
	return &Throttle{
		limiter:       rate.NewLimiter(rate.Limit(rps), burst),
		weightLimit:   weightLimit,
		resetInterval: resetInterval,
		lastReset:     time.Now(),
	}
}

// Acquire blocks until a request slot is available or ctx is done,
// then records weight against the current window. When accumulated
// weight is near the venue limit it backs off an extra window fraction
// before taking the token.
func (t *Throttle) Acquire(ctx context.Context, weight int) error {
	if _, _, pct := t.Usage(); pct >= 90 {
		select {
		case <-time.After(t.resetInterval / 10):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	t.spend(weight)
	return nil
}

func (t *Throttle) spend(weight int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if time.Since(t.lastReset) >= t.resetInterval {
		t.usedWeight = 0
		t.lastReset = time.Now()
	}
	t.usedWeight += weight

	percentage := float64(t.usedWeight) / float64(t.weightLimit) * 100
	if percentage >= 95 {
		log.Printf("gateway: rate limit critical: %d/%d (%.1f%%) - approaching ban threshold", t.usedWeight, t.weightLimit, percentage)
	} else if percentage >= 80 {
		log.Printf("gateway: rate limit warning: %d/%d (%.1f%%)", t.usedWeight, t.weightLimit, percentage)
	}
}

// Usage returns current weight usage for the active window.
func (t *Throttle) Usage() (used int, limit int, percentage float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if time.Since(t.lastReset) >= t.resetInterval {
		return 0, t.weightLimit, 0
	}
	return t.usedWeight, t.weightLimit, float64(t.usedWeight) / float64(t.weightLimit) * 100
}
