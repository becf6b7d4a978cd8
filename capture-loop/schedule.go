package captureloop

import (
	"context"
	"time"
)

// Clock tells the loop what time it is.
type Clock interface {
	Now() time.Time
}

// Sleeper blocks between captures. It returns ctx.Err() if ctx ends first.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// SystemClock returns the wall clock.
func SystemClock() Clock {
	return systemClock{}
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TimerSleeper returns a Sleeper backed by time.Timer.
func TimerSleeper() Sleeper {
	return timerSleeper{}
}
