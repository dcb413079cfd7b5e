package repeat

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrRetryLimit is returned by Wait once the backoff gives up.
var ErrRetryLimit = errors.New("retry limit exceeded")

// Waiter tracks the number of attempts and waits for a duration of time based
// on the number of attempts.
type Waiter struct {
	backOff backoff.BackOff
}

func NewWaiter(backOff backoff.BackOff) *Waiter {
	// Initialize the backoff here, so we don't have to remember to do it in
	// other places.
	if e, ok := backOff.(*backoff.ExponentialBackOff); ok {
		e.Clock = backoff.SystemClock
		e.Stop = backoff.Stop
		if e.MaxInterval == 0 {
			panic("exponential backoff requires a maximum interval")
		}
	}
	backOff.Reset()
	return &Waiter{backOff: backOff}
}

// NewFixedWaiter waits the same interval every time. A maxAttempts of zero
// waits forever.
func NewFixedWaiter(interval time.Duration, maxAttempts uint64) *Waiter {
	var b backoff.BackOff = backoff.NewConstantBackOff(interval)
	if maxAttempts > 0 {
		b = backoff.WithMaxRetries(b, maxAttempts)
	}
	return NewWaiter(b)
}

// Reset sets the number of attempts to 0, so that the next call to Wait sleeps
// for the minimum duration.
func (b Waiter) Reset() {
	b.backOff.Reset()
}

// Wait blocks for the duration of delay calculated by BackOff, or until the
// context is done.
// Returns an error when the context is done, or the retry limit is reached.
// Otherwise, returns nil when the timer waited the full duration.
func (b Waiter) Wait(ctx context.Context) error {
	delay := b.backOff.NextBackOff()
	if delay == backoff.Stop {
		return ErrRetryLimit
	}
	timer := time.NewTimer(delay)
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	}
}

// Until calls check, waiting between calls, until check reports done or
// returns an error. Errors from the waiter, a done context or the retry limit,
// are returned as is.
func Until(ctx context.Context, w *Waiter, check func(context.Context) (bool, error)) error {
	for {
		done, err := check(ctx)
		if err != nil || done {
			return err
		}

		if err := w.Wait(ctx); err != nil {
			return err
		}
	}
}
