package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"execution-core/pkg/exchanges/common"
)

func fastPolicy() *Policy {
	p := NewPolicy()
	p.BaseDelay = time.Millisecond
	p.MaxDelay = 5 * time.Millisecond
	return p
}

func TestDelayBounds(t *testing.T) {
	p := NewPolicy()
	p.BaseDelay = 100 * time.Millisecond
	p.Multiplier = 2.0
	p.MaxDelay = 300 * time.Millisecond

	cases := []struct {
		attempt int
		max     time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 300 * time.Millisecond}, // capped
		{5, 300 * time.Millisecond},
	}
	for _, tc := range cases {
		for i := 0; i < 50; i++ {
			d := p.Delay(tc.attempt)
			if d < tc.max/2 || d > tc.max {
				t.Fatalf("attempt %d: delay %s outside [%s, %s]", tc.attempt, d, tc.max/2, tc.max)
			}
		}
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient type", common.Transient("submit", errors.New("boom")), true},
		{"rejected type", &common.RejectedError{Op: "submit", Code: -2010, Reason: "insufficient balance"}, false},
		{"timeout keyword", errors.New("request timeout exceeded"), true},
		{"connection keyword", errors.New("connection reset by peer"), true},
		{"rate limit keyword", errors.New("Rate Limit hit"), true},
		{"503", errors.New("http 503"), true},
		{"plain error", errors.New("invalid quantity"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Retryable(tc.err); got != tc.want {
				t.Fatalf("Retryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	p := fastPolicy()
	calls := 0
	err := p.Do(func() error {
		calls++
		if calls < 3 {
			return common.Transient("submit", errors.New("reset"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() = %v, want nil", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	p := fastPolicy()
	calls := 0
	want := &common.RejectedError{Op: "submit", Code: -2010, Reason: "insufficient balance"}
	err := p.Do(func() error {
		calls++
		return want
	})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, want) && err != error(want) {
		t.Fatalf("Do() = %v, want %v", err, want)
	}
}

func TestDoReturnsFinalError(t *testing.T) {
	p := fastPolicy()
	p.MaxAttempts = 2
	calls := 0
	err := p.Do(func() error {
		calls++
		return common.Transient("submit", errors.New("reset"))
	})
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	if !common.IsTransient(err) {
		t.Fatalf("Do() = %v, want transient final error", err)
	}
}

func TestObserverSeesEachRetry(t *testing.T) {
	p := fastPolicy()
	var attempts []int
	p.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}
	_ = p.Do(func() error {
		return errors.New("timeout")
	})
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Fatalf("observer attempts = %v, want [1 2]", attempts)
	}
}

func TestDoCtxHonorsCancellation(t *testing.T) {
	p := NewPolicy()
	p.BaseDelay = time.Hour // sleep must be interrupted, not waited out
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.DoCtx(ctx, func(context.Context) error {
			return common.Transient("submit", errors.New("reset"))
		})
	}()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("DoCtx() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("DoCtx did not return after cancellation")
	}
}

func TestDoValue(t *testing.T) {
	p := fastPolicy()
	calls := 0
	v, err := DoValue(context.Background(), p, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, common.Transient("query", errors.New("timeout"))
		}
		return 42, nil
	})
	if err != nil || v != 42 {
		t.Fatalf("DoValue() = (%d, %v), want (42, nil)", v, err)
	}
}
