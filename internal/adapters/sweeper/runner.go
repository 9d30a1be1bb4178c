// Package sweeper runs the periodic timeout sweep over non-completed jobs.
package sweeper

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"time"
)

// defaultInterval is used when no sweep interval is configured.
const defaultInterval = time.Minute

// TimeoutSweeper is the engine operation the runner drives on each tick.
type TimeoutSweeper interface {
	CheckAndProcessTimedOutJobs(ctx context.Context) (int, error)
}

// Runner invokes the timeout sweep at a fixed interval until its context is
// cancelled.
type Runner struct {
	sweeper  TimeoutSweeper
	interval time.Duration
	logger   *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Sweeper  TimeoutSweeper // Required
	Interval time.Duration  // Optional: defaults to one minute
	Logger   *slog.Logger   // Optional: structured logger
}

// NewRunner creates a new sweep runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Sweeper == nil {
		return nil, errors.New("timeout sweeper is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "sweep_runner")
	}

	return &Runner{
		sweeper:  opts.Sweeper,
		interval: opts.Interval,
		logger:   logger,
	}, nil
}

// Run starts the sweep loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (r *Runner) Run(ctx context.Context) error {
	if r.logger != nil {
		r.logger.InfoContext(ctx, "starting timeout sweep runner", "interval", r.interval)
	}

	// Jitter so multiple instances starting together do not sweep in lockstep.
	r.waitWithJitter(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			if r.logger != nil {
				r.logger.InfoContext(ctx, "timeout sweep runner stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			r.sweepOnce(ctx)
		}
	}
}

// sweepOnce runs one pass; failures are logged and the loop keeps running.
func (r *Runner) sweepOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := r.sweeper.CheckAndProcessTimedOutJobs(ctx); err != nil {
		if isContextCancellation(err) {
			return
		}
		if r.logger != nil {
			r.logger.ErrorContext(ctx, "timeout sweep failed", "error", err)
		}
	}
}

// waitWithJitter delays up to 10% of the interval before the first sweep.
func (r *Runner) waitWithJitter(ctx context.Context) {
	maxJitter := int64(r.interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// If crypto/rand fails, skip jitter rather than failing startup.
		if r.logger != nil {
			r.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
