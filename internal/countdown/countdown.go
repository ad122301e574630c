// Package countdown implements the simulated workload: a timer that ticks
// once per second from a task's duration down to zero.
package countdown

import (
	"context"
	"time"
)

// Step is the interval between two ticks.
const Step = time.Second

// Clock suspends the caller for d or until ctx is done.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type RealClock struct{}

func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// TickFunc receives the number of seconds left before each step.
type TickFunc func(remaining int)

// Run counts down from seconds to zero. The context is checked once per
// step; if it is done, Run returns its error without finishing.
func Run(ctx context.Context, clock Clock, seconds int, onTick TickFunc) error {
	if clock == nil {
		clock = RealClock{}
	}
	for remaining := seconds; remaining > 0; remaining-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		if onTick != nil {
			onTick(remaining)
		}
		if err := clock.Sleep(ctx, Step); err != nil {
			return err
		}
	}
	return nil
}
