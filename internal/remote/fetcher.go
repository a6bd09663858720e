package remote

import (
	"context"
	"fmt"
	"time"
)

// FetchExhaustedError is returned once every attempt has failed.
type FetchExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *FetchExhaustedError) Error() string {
	return fmt.Sprintf("remote: fetch exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *FetchExhaustedError) Unwrap() error { return e.LastErr }

// Fetcher performs a network read with bounded retries. The delay before
// retry n is baseDelay × n, matching the backoff the question endpoint
// expects from clients. The sleep function is injectable so tests can run
// the schedule without real delays.
type Fetcher struct {
	maxAttempts int
	baseDelay   time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewFetcher(maxAttempts int, baseDelay time.Duration) *Fetcher {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	return &Fetcher{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		sleep:       sleepContext,
	}
}

// Do runs op up to maxAttempts times. onAttempt, when non-nil, is invoked
// with (attempt, maxAttempts) before each try so callers can surface
// retry progress.
func (f *Fetcher) Do(ctx context.Context, onAttempt func(attempt, max int), op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		if onAttempt != nil {
			onAttempt(attempt, f.maxAttempts)
		}
		if err := op(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt < f.maxAttempts {
			if err := f.sleep(ctx, f.baseDelay*time.Duration(attempt)); err != nil {
				return &FetchExhaustedError{Attempts: attempt, LastErr: lastErr}
			}
		}
	}
	return &FetchExhaustedError{Attempts: f.maxAttempts, LastErr: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
