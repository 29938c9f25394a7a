// Package scheduler runs jobs in fixed-delay loops: the next run starts one interval after
// the previous run finished.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Job is one periodic unit of work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Loop repeats a Job until its context ends.
type Loop struct {
	job   Job
	clock Clock
	sleep SleepFunc

	// MaxRuns stops the loop after this many runs; 0 means run until cancelled.
	MaxRuns int
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock sets the time source used for run timestamps.
func WithClock(c Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// WithSleep sets the primitive used to wait between runs.
func WithSleep(s SleepFunc) Option {
	return func(l *Loop) { l.sleep = s }
}

// WithFakeClock wires both the clock and sleep of l to c.
func WithFakeClock(c *FakeClock) Option {
	return func(l *Loop) {
		l.clock = c
		l.sleep = c.Sleep
	}
}

// NewLoop creates a loop for job.
func NewLoop(job Job, opts ...Option) *Loop {
	l := &Loop{job: job, clock: RealClock, sleep: Sleep}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns the job name.
func (l *Loop) Name() string { return l.job.Name }

// Run executes the job, waits Interval, and repeats. Job errors are logged and the loop
// keeps its cadence. With a zero interval the job runs once. Run returns nil when the
// context is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	logger := log.With().Str("job", l.job.Name).Logger()
	logger.Info().Dur("interval", l.job.Interval).Msg("Loop started")

	for runs := 1; ; runs++ {
		started := l.clock.Now()
		err := l.job.Run(ctx)
		finished := l.clock.Now()

		switch {
		case err == nil:
			logger.Debug().Dur("took", finished.Sub(started)).Msg("Run finished")
		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			logger.Info().Msg("Run canceled by shutdown")
			return nil
		default:
			logger.Error().Err(err).Dur("took", finished.Sub(started)).Msg("Run failed, retrying at the normal interval")
		}

		if l.job.Interval <= 0 {
			logger.Info().Msg("One-shot run completed")
			return nil
		}
		if l.MaxRuns > 0 && runs >= l.MaxRuns {
			return nil
		}

		logger.Debug().Time("next_run", finished.Add(l.job.Interval)).Msg("Waiting for next run")
		if err := l.sleep(ctx, l.job.Interval); err != nil {
			logger.Info().Msg("Loop stopped")
			return nil
		}
	}
}

// RunAll runs every loop in its own goroutine and waits for all of them to return.
func RunAll(ctx context.Context, loops ...*Loop) {
	var wg sync.WaitGroup
	for _, l := range loops {
		wg.Add(1)
		go func(l *Loop) {
			defer wg.Done()
			l.Run(ctx)
		}(l)
	}
	wg.Wait()
}
