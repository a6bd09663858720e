package remote

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFetcherBackoffSchedule(t *testing.T) {
	f := NewFetcher(3, 2*time.Second)
	var delays []time.Duration
	f.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	var attempts []int
	opErr := errors.New("connection refused")
	err := f.Do(context.Background(), func(attempt, max int) {
		if max != 3 {
			t.Fatalf("expected max 3, got %d", max)
		}
		attempts = append(attempts, attempt)
	}, func(ctx context.Context) error {
		return opErr
	})

	var exhausted *FetchExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected FetchExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 3 || !errors.Is(err, opErr) {
		t.Fatalf("unexpected error detail: %+v", exhausted)
	}
	if len(attempts) != 3 || attempts[0] != 1 || attempts[2] != 3 {
		t.Fatalf("unexpected attempt sequence: %v", attempts)
	}

	// delay before retry n is baseDelay × n, and no delay after the last try
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay %d: got %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestFetcherStopsOnSuccess(t *testing.T) {
	f := NewFetcher(3, time.Second)
	var slept int
	f.sleep = func(ctx context.Context, d time.Duration) error {
		slept++
		return nil
	}

	calls := 0
	err := f.Do(context.Background(), nil, func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 || slept != 1 {
		t.Fatalf("expected 2 calls and 1 sleep, got %d/%d", calls, slept)
	}
}

func TestFetcherAbortsOnContextCancel(t *testing.T) {
	f := NewFetcher(3, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	f.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	calls := 0
	err := f.Do(ctx, nil, func(ctx context.Context) error {
		calls++
		return errors.New("down")
	})
	var exhausted *FetchExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected FetchExhaustedError, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("cancelled fetch must not keep trying, got %d calls", calls)
	}
}

func TestFetcherDefaults(t *testing.T) {
	f := NewFetcher(0, 0)
	if f.maxAttempts != 3 || f.baseDelay != 2*time.Second {
		t.Fatalf("unexpected defaults: attempts=%d delay=%v", f.maxAttempts, f.baseDelay)
	}
}
