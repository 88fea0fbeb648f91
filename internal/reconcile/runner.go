package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/jobsync/pkg/models"
)

// Passer runs a single reconciliation pass.
type Passer interface {
	Reconcile(ctx context.Context, batchSize int) (Result, error)
}

// Locker grants a lease that expires on its own after ttl.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Recorder stores the outcome of the latest pass.
type Recorder interface {
	RecordRefresh(ctx context.Context, status models.RefreshStatus) error
}

// RunnerOptions groups dependencies for Runner.
type RunnerOptions struct {
	Passer    Passer   // Required
	Locker    Locker   // Optional: without it every instance runs every pass
	LockKey   string   // Required when Locker is set
	Recorder  Recorder // Optional
	Interval  time.Duration
	BatchSize int
	Logger    *slog.Logger
}

// Runner reconciles the most recent records on a fixed interval.
type Runner struct {
	opts   RunnerOptions
	logger *slog.Logger
}

func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Passer == nil {
		return nil, errors.New("passer is required")
	}
	if opts.Interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	if opts.BatchSize <= 0 && opts.BatchSize != All {
		return nil, ErrInvalidBatch
	}
	if opts.Locker != nil && opts.LockKey == "" {
		return nil, errors.New("lock key is required with a locker")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{opts: opts, logger: logger.With("component", "reconcile_runner")}, nil
}

// Run performs a pass immediately, then one per interval, until ctx is
// cancelled. Returns nil on graceful shutdown.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reconcile runner",
		"interval", r.opts.Interval, "batch", r.opts.BatchSize)

	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "reconcile runner stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	release := func() {}
	if r.opts.Locker != nil {
		// After a successful pass the lease is left to expire so no other
		// instance passes within this interval. A failed pass releases it.
		ttl := r.opts.Interval * 9 / 10
		unlock, ok, err := r.opts.Locker.TryLock(ctx, r.opts.LockKey, ttl)
		if err != nil {
			r.logger.WarnContext(ctx, "reconcile lock unavailable, skipping pass", "error", err)
			return
		}
		if !ok {
			r.logger.DebugContext(ctx, "reconcile pass held by another instance")
			return
		}
		release = unlock
	}

	start := time.Now()
	res, err := r.opts.Passer.Reconcile(ctx, r.opts.BatchSize)
	if err != nil {
		release()
		if ctx.Err() != nil {
			return
		}
	}

	if r.opts.Recorder != nil {
		if rerr := r.opts.Recorder.RecordRefresh(ctx, NewRefreshStatus(start, res, err)); rerr != nil {
			r.logger.WarnContext(ctx, "failed to record refresh status", "error", rerr)
		}
	}
}

// NewRefreshStatus summarizes a pass that began at start.
func NewRefreshStatus(start time.Time, res Result, err error) models.RefreshStatus {
	status := models.RefreshStatus{
		At:       start.UTC(),
		OK:       err == nil,
		Checked:  res.Checked,
		Updated:  res.Updated,
		Deleted:  res.Deleted,
		Failed:   res.Failed,
		Duration: time.Since(start).Milliseconds(),
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}
