package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/nvandessel/labkit/internal/fault"
)

// Backoff bounds a retried operation. The zero value makes one attempt.
type Backoff struct {
	Attempts int           // total tries, including the first
	Base     time.Duration // delay before the second try; doubles after each
	Max      time.Duration // cap on a single delay; 0 means no cap
}

// DefaultBackoff suits remote blob stores.
var DefaultBackoff = Backoff{Attempts: 3, Base: 50 * time.Millisecond, Max: time.Second}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Retry returns the inner error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err}
}

// Retry calls fn until it succeeds, returns a Permanent error, ctx ends or
// the attempts run out. Running out yields a RetryExhausted fault wrapping
// the last error.
func Retry(ctx context.Context, b Backoff, fn func(ctx context.Context) error) error {
	attempts := max(b.Attempts, 1)
	delay := b.Base

	var err error
	for i := 1; ; i++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		var p permanentError
		if errors.As(err, &p) {
			return p.err
		}
		if i >= attempts {
			break
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(ctx.Err(), err)
		case <-t.C:
		}
		delay *= 2
		if b.Max > 0 && delay > b.Max {
			delay = b.Max
		}
	}

	if attempts == 1 {
		return err
	}
	e := fault.RetryExhausted(attempts, "giving up")
	e.Err = err
	return e
}
