// Package jobs is the query surface over tracked jobs. Reads refresh the
// stored records from the queue before returning them.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kiranshivaraju/jobsync/internal/reconcile"
	"github.com/kiranshivaraju/jobsync/internal/store"
	"github.com/kiranshivaraju/jobsync/pkg/models"
)

var (
	ErrInvalidLimit = errors.New("limit must be positive")
	ErrInvalidJob   = errors.New("invalid job")
)

// Reconciler is the subset of reconcile.Reconciler the service drives.
type Reconciler interface {
	Reconcile(ctx context.Context, batchSize int) (reconcile.Result, error)
	ReconcileRecords(ctx context.Context, recs []*models.JobRecord) (reconcile.Result, error)
	Drain(ctx context.Context) (reconcile.Result, error)
}

// StatusStore keeps the outcome of the latest refresh.
type StatusStore interface {
	RecordRefresh(ctx context.Context, status models.RefreshStatus) error
	LastRefresh(ctx context.Context) (*models.RefreshStatus, error)
}

// Options groups dependencies for Service.
type Options struct {
	Store        store.Store           // Required
	Queue        models.QueueConnector // Required
	Reconciler   Reconciler            // Required
	Status       StatusStore           // Optional
	LookupWindow int
	CallTimeout  time.Duration
	Logger       *slog.Logger
}

// Service fronts the job store.
type Service struct {
	store        store.Store
	queue        models.QueueConnector
	reconciler   Reconciler
	status       StatusStore
	lookupWindow int
	callTimeout  time.Duration
	logger       *slog.Logger
}

func NewService(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Queue == nil {
		return nil, errors.New("queue connector is required")
	}
	if opts.Reconciler == nil {
		return nil, errors.New("reconciler is required")
	}
	s := &Service{
		store:        opts.Store,
		queue:        opts.Queue,
		reconciler:   opts.Reconciler,
		status:       opts.Status,
		lookupWindow: opts.LookupWindow,
		callTimeout:  opts.CallTimeout,
		logger:       opts.Logger,
	}
	if s.lookupWindow <= 0 {
		s.lookupWindow = 100
	}
	if s.callTimeout <= 0 {
		s.callTimeout = 5 * time.Second
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "jobs_service")
	return s, nil
}

// ListRecent refreshes the limit most recent records, then returns them most
// recent first. When the queue cannot be reached the stored rows are still
// returned together with an error wrapping models.ErrQueueUnavailable.
func (s *Service) ListRecent(ctx context.Context, limit int) ([]*models.JobRecord, reconcile.Result, error) {
	if limit <= 0 {
		return nil, reconcile.Result{}, fmt.Errorf("%w: got %d", ErrInvalidLimit, limit)
	}

	res, refreshErr := s.refreshRecent(ctx, limit)
	if refreshErr != nil && !isStale(refreshErr) {
		return nil, res, refreshErr
	}

	recs, err := s.store.SelectRecent(ctx, store.RecentQuery{Limit: limit})
	if err != nil {
		return nil, res, err
	}
	return recs, res, refreshErr
}

// GetByID refreshes the lookup window, then reads the record. A record older
// than the window is refreshed on its own and read again. Returns
// store.ErrNotFound when the record does not exist or was pruned.
func (s *Service) GetByID(ctx context.Context, id int64) (*models.JobRecord, reconcile.Result, error) {
	res, refreshErr := s.refreshRecent(ctx, s.lookupWindow)
	if refreshErr != nil && !isStale(refreshErr) {
		return nil, res, refreshErr
	}

	rec, err := s.store.SelectByID(ctx, id)
	if err != nil {
		return nil, res, err
	}
	if refreshErr != nil || res.OldestID == 0 || rec.ID >= res.OldestID {
		return rec, res, refreshErr
	}

	single, err := s.reconciler.ReconcileRecords(ctx, []*models.JobRecord{rec})
	res.Merge(single)
	if err != nil {
		if isStale(err) {
			return rec, res, fmt.Errorf("refresh: %w", err)
		}
		return nil, res, err
	}

	rec, err = s.store.SelectByID(ctx, id)
	if err != nil {
		return nil, res, err
	}
	return rec, res, nil
}

// Insert starts tracking rec if the queue knows its handle. The run state and
// progress are taken from the queue. An unknown handle is silently discarded:
// Insert returns nil, nil.
func (s *Service) Insert(ctx context.Context, rec *models.JobRecord) (*models.JobRecord, error) {
	if rec == nil || strings.TrimSpace(rec.Handle) == "" {
		return nil, fmt.Errorf("%w: handle is required", ErrInvalidJob)
	}

	sess, err := s.queue.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	st, err := sess.JobStatus(callCtx, rec.Handle)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", rec.Handle, err)
	}
	if !st.Known {
		s.logger.InfoContext(ctx, "discarding job unknown to queue", "handle", rec.Handle)
		return nil, nil
	}

	created, err := s.store.Insert(ctx, &models.JobRecord{
		Handle:      rec.Handle,
		Running:     st.Running,
		Numerator:   st.Numerator,
		Denominator: models.GuardDenominator(st.Denominator),
		Name:        rec.Name,
		Owner:       rec.Owner,
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "tracking job", "job_id", created.ID, "handle", created.Handle)
	return created, nil
}

// Patch lists the fields an Update changes. Nil fields are left alone.
type Patch struct {
	Running     *bool   `json:"running"`
	Numerator   *int64  `json:"numerator"`
	Denominator *int64  `json:"denominator"`
	Name        *string `json:"name"`
	Owner       *string `json:"owner"`
}

func (p Patch) options() ([]store.UpdateOption, error) {
	var opts []store.UpdateOption
	if p.Running != nil {
		opts = append(opts, store.WithRunning(*p.Running))
	}
	if p.Numerator != nil {
		if *p.Numerator < 0 {
			return nil, fmt.Errorf("%w: numerator must not be negative", ErrInvalidJob)
		}
		opts = append(opts, store.WithNumerator(*p.Numerator))
	}
	if p.Denominator != nil {
		if *p.Denominator < 0 {
			return nil, fmt.Errorf("%w: denominator must not be negative", ErrInvalidJob)
		}
		opts = append(opts, store.WithDenominator(models.GuardDenominator(*p.Denominator)))
	}
	if p.Name != nil {
		opts = append(opts, store.WithName(*p.Name))
	}
	if p.Owner != nil {
		opts = append(opts, store.WithOwner(*p.Owner))
	}
	return opts, nil
}

// Update writes p to the record without refreshing it. Updating a record that
// no longer exists is a no-op.
func (s *Service) Update(ctx context.Context, id int64, p Patch) error {
	opts, err := p.options()
	if err != nil {
		return err
	}
	return s.store.Update(ctx, id, opts...)
}

// Delete removes every record matching c without refreshing.
func (s *Service) Delete(ctx context.Context, c store.Criteria) (int64, error) {
	return s.store.Delete(ctx, c)
}

// ClearAll empties the store. It succeeds whether or not anything was stored.
func (s *Service) ClearAll(ctx context.Context) error {
	if _, err := s.reconciler.Drain(ctx); err != nil {
		return fmt.Errorf("clear jobs: %w", err)
	}
	return nil
}

// Refresh runs one reconciliation pass over the batchSize most recent records
// (or every record for reconcile.All) and records its outcome.
func (s *Service) Refresh(ctx context.Context, batchSize int) (reconcile.Result, error) {
	start := time.Now()
	res, err := s.reconciler.Reconcile(ctx, batchSize)
	s.record(ctx, reconcile.NewRefreshStatus(start, res, err))
	if err != nil {
		return res, fmt.Errorf("refresh: %w", err)
	}
	return res, nil
}

// refreshRecent reconciles the n most recent records. Each record pruned on
// the way lets an older one into the window, so further pages below the
// oldest id seen are reconciled until n surviving records were covered or the
// store runs out. The combined outcome is recorded once.
func (s *Service) refreshRecent(ctx context.Context, n int) (reconcile.Result, error) {
	start := time.Now()
	res, err := s.reconciler.Reconcile(ctx, n)

	requested, fetched := n, res.Checked
	for err == nil && fetched == requested && res.Checked-res.Deleted < n {
		requested = n - (res.Checked - res.Deleted)

		var page []*models.JobRecord
		page, err = s.store.SelectRecent(ctx, store.RecentQuery{Limit: requested, BeforeID: res.OldestID})
		if err != nil || len(page) == 0 {
			break
		}
		fetched = len(page)

		var more reconcile.Result
		more, err = s.reconciler.ReconcileRecords(ctx, page)
		res.Merge(more)
		res.Pages++
	}

	s.record(ctx, reconcile.NewRefreshStatus(start, res, err))
	if err != nil {
		return res, fmt.Errorf("refresh: %w", err)
	}
	return res, nil
}

// LastRefresh returns the latest recorded refresh, or nil if none was recorded.
func (s *Service) LastRefresh(ctx context.Context) (*models.RefreshStatus, error) {
	if s.status == nil {
		return nil, nil
	}
	return s.status.LastRefresh(ctx)
}

func (s *Service) record(ctx context.Context, status models.RefreshStatus) {
	if s.status == nil {
		return
	}
	if err := s.status.RecordRefresh(ctx, status); err != nil {
		s.logger.WarnContext(ctx, "failed to record refresh status", "error", err)
	}
}

// isStale reports whether a refresh failed only because the queue is
// unreachable, in which case stored rows may still be served.
func isStale(err error) bool {
	return errors.Is(err, models.ErrQueueUnavailable) && !errors.Is(err, store.ErrStorage)
}
