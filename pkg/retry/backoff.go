package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// longestWait bounds any computed delay so large attempt numbers cannot overflow
const longestWait = float64(time.Hour)

// BackoffStrategy maps a failed attempt (1-based) to the wait before the next one
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff waits BaseDelay after the first failure and multiplies
// the wait by Multiplier for every further one, up to MaxDelay. The result is
// then spread by up to JitterFactor of itself in either direction so parallel
// workers do not retry in lockstep.
type ExponentialBackoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64
}

// DefaultExponentialBackoff is used when no retry configuration is given
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
		JitterFactor: 0.2,
	}
}

func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}

	growth := math.Max(b.Multiplier, 1)
	wait := float64(b.BaseDelay) * math.Pow(growth, float64(attempt-1))
	if b.MaxDelay > 0 {
		wait = math.Min(wait, float64(b.MaxDelay))
	}
	wait = math.Min(wait, longestWait)

	if b.JitterFactor > 0 {
		wait *= 1 + b.JitterFactor*(2*rand.Float64()-1)
	}
	return time.Duration(math.Max(wait, 0))
}

// ConstantBackoff waits the same Delay after every failure
type ConstantBackoff struct {
	Delay time.Duration
}

func (b *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return b.Delay
}

// Wait sleeps for d unless ctx ends first, in which case ctx.Err() is returned
func Wait(ctx context.Context, d time.Duration) error {
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
