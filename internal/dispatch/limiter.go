package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// DefaultConcurrency is the number of sends allowed in flight at once.
const DefaultConcurrency = 5

// ErrAdmission is returned when a task could not be admitted by the limiter.
// It is never produced by the task itself.
var ErrAdmission = errors.New("dispatch: limiter admission failed")

// Limiter bounds concurrent sends with a FIFO semaphore and optionally
// paces them with a token bucket.
type Limiter struct {
	sem     *semaphore.Weighted
	ceiling int
	rate    *rate.Limiter
}

// NewLimiter creates a limiter admitting at most ceiling tasks at once.
// A positive perSecond additionally caps the task start rate.
func NewLimiter(ceiling int, perSecond float64) *Limiter {
	if ceiling < 1 {
		ceiling = DefaultConcurrency
	}
	l := &Limiter{
		sem:     semaphore.NewWeighted(int64(ceiling)),
		ceiling: ceiling,
	}
	if perSecond > 0 {
		burst := int(math.Ceil(perSecond))
		l.rate = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return l
}

// Ceiling returns the maximum number of concurrently running tasks.
func (l *Limiter) Ceiling() int {
	return l.ceiling
}

// Do runs task once a slot is free and returns the task's own error.
// The slot is released when the task returns, panics included.
func (l *Limiter) Do(ctx context.Context, task func(context.Context) error) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %w", ErrAdmission, err)
	}
	defer l.sem.Release(1)

	if l.rate != nil {
		if err := l.rate.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrAdmission, err)
		}
	}
	return task(ctx)
}
