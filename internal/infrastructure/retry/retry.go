// Package retry provides bounded exponential backoff for calls to
// external channel and carrier APIs.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted wraps the last error once all attempts are spent.
// Callers distinguish it from fatal errors to decide whether an order
// goes to FAILED or is rejected outright.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Classifier reports whether an error is worth another attempt
type Classifier func(err error) bool

// Policy controls attempt count, backoff shape and the total time an
// operation may keep retrying.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxElapsed   time.Duration
	Retryable    Classifier

	// sleep and now are swappable in tests
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewPolicy builds a policy with the given attempt budget and backoff
// bounds. maxElapsed caps total retry time; zero means unbounded.
func NewPolicy(maxAttempts int, initialDelay, maxDelay, maxElapsed time.Duration, retryable Classifier) *Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Policy{
		MaxAttempts:  maxAttempts,
		InitialDelay: initialDelay,
		MaxDelay:     maxDelay,
		MaxElapsed:   maxElapsed,
		Retryable:    retryable,
		sleep:        sleepCtx,
		now:          time.Now,
	}
}

// Execute runs op until it succeeds, returns a non-retryable error, or
// either the attempt budget or MaxElapsed is spent. Backoff doubles
// per attempt up to MaxDelay.
func (p *Policy) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	start := p.now()
	delay := p.InitialDelay
	attempts := 0
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		attempts = attempt
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}
		if p.MaxElapsed > 0 && p.now().Sub(start)+delay >= p.MaxElapsed {
			break
		}
		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrExhausted, attempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

// IsExhausted reports whether err means the retry budget was spent
func IsExhausted(err error) bool {
	return errors.Is(err, ErrExhausted)
}
