package repeat

import (
	"context"
	"time"
)

// Every calls run once per interval until ctx is done, and then returns the
// context error. The first call happens after one interval. The interval is
// measured from the end of the previous call, so calls never overlap.
func Every(ctx context.Context, interval time.Duration, run func(context.Context)) error {
	w := NewFixedWaiter(interval, 0)
	for {
		if err := w.Wait(ctx); err != nil {
			return err
		}
		run(ctx)
	}
}
