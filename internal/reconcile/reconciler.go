// Package reconcile brings stored job records in line with the live status
// reported by the job queue.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/jobsync/internal/store"
	"github.com/kiranshivaraju/jobsync/pkg/models"
	"golang.org/x/sync/errgroup"
)

// All selects every stored record, walked in pages of Options.PageSize.
const All = -1

var ErrInvalidBatch = errors.New("batch size must be positive or All")

// Options tunes a Reconciler. Zero values fall back to defaults.
type Options struct {
	PageSize    int
	Workers     int
	CallTimeout time.Duration
	Logger      *slog.Logger
}

const (
	defaultPageSize    = 25
	defaultWorkers     = 1
	defaultCallTimeout = 5 * time.Second
)

// Result summarizes one reconciliation pass.
type Result struct {
	Checked  int       `json:"checked"`
	Updated  int       `json:"updated"`
	Deleted  int       `json:"deleted"`
	Failed   int       `json:"failed"`
	Pages    int       `json:"pages"`
	OldestID int64     `json:"oldest_id,omitempty"`
	Failures []Failure `json:"failures,omitempty"`
}

// Failure is a record whose status could not be fetched. The record is left
// untouched.
type Failure struct {
	JobID  int64  `json:"job_id"`
	Handle string `json:"handle"`
	Err    error  `json:"-"`
}

// Merge folds the counts and failures of o into r. Pages are left alone.
func (r *Result) Merge(o Result) {
	r.Checked += o.Checked
	r.Updated += o.Updated
	r.Deleted += o.Deleted
	r.Failed += o.Failed
	r.Failures = append(r.Failures, o.Failures...)
	if o.OldestID != 0 && (r.OldestID == 0 || o.OldestID < r.OldestID) {
		r.OldestID = o.OldestID
	}
}

// Reconciler queries the queue for each stored record and prunes or updates it.
// It is safe for concurrent use; concurrent passes race last-writer-wins.
type Reconciler struct {
	store       store.Store
	queue       models.QueueConnector
	pageSize    int
	workers     int
	callTimeout time.Duration
	logger      *slog.Logger
}

func New(st store.Store, queue models.QueueConnector, opts Options) *Reconciler {
	r := &Reconciler{
		store:       st,
		queue:       queue,
		pageSize:    opts.PageSize,
		workers:     opts.Workers,
		callTimeout: opts.CallTimeout,
		logger:      opts.Logger,
	}
	if r.pageSize <= 0 {
		r.pageSize = defaultPageSize
	}
	if r.workers <= 0 {
		r.workers = defaultWorkers
	}
	if r.callTimeout <= 0 {
		r.callTimeout = defaultCallTimeout
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Reconcile runs one pass over the batchSize most recent records, or over
// every record when batchSize is All.
func (r *Reconciler) Reconcile(ctx context.Context, batchSize int) (Result, error) {
	if batchSize <= 0 && batchSize != All {
		return Result{}, fmt.Errorf("%w: got %d", ErrInvalidBatch, batchSize)
	}

	logger := r.logger.With("pass_id", uuid.NewString(), "batch", batchSize)
	start := time.Now()

	p := &pass{r: r, logger: logger}
	defer p.close()

	var res Result
	var err error
	if batchSize == All {
		res, err = p.walkAll(ctx)
	} else {
		res, err = p.page(ctx, store.RecentQuery{Limit: batchSize})
		res.Pages = 1
	}

	logPass(ctx, logger, "reconcile pass", res, err, time.Since(start))
	return res, err
}

// ReconcileRecords runs one pass over recs, in the order given.
func (r *Reconciler) ReconcileRecords(ctx context.Context, recs []*models.JobRecord) (Result, error) {
	logger := r.logger.With("pass_id", uuid.NewString(), "records", len(recs))
	p := &pass{r: r, logger: logger}
	defer p.close()

	res, err := p.apply(ctx, recs)
	logPass(ctx, logger, "reconcile records", res, err, 0)
	return res, err
}

// Drain deletes every stored record, one page of most recent records at a
// time, until a page comes back empty. The queue is not consulted.
func (r *Reconciler) Drain(ctx context.Context) (Result, error) {
	var res Result
	for {
		recs, err := r.store.SelectRecent(ctx, store.RecentQuery{Limit: r.pageSize})
		res.Pages++
		if err != nil {
			return res, err
		}
		if len(recs) == 0 {
			break
		}
		for _, rec := range recs {
			n, err := r.store.Delete(ctx, store.Criteria{ID: rec.ID})
			if err != nil {
				return res, err
			}
			res.Checked++
			res.Deleted += int(n)
		}
	}
	r.logger.InfoContext(ctx, "drained job store", "deleted", res.Deleted, "pages", res.Pages)
	return res, nil
}

func logPass(ctx context.Context, logger *slog.Logger, msg string, res Result, err error, elapsed time.Duration) {
	attrs := []any{
		"checked", res.Checked,
		"updated", res.Updated,
		"deleted", res.Deleted,
		"failed", res.Failed,
		"pages", res.Pages,
	}
	if elapsed > 0 {
		attrs = append(attrs, "duration_ms", elapsed.Milliseconds())
	}
	if err != nil {
		logger.ErrorContext(ctx, msg+" failed", append(attrs, "error", err)...)
		return
	}
	if res.Failed > 0 {
		logger.WarnContext(ctx, msg+" completed with failures", attrs...)
		return
	}
	logger.InfoContext(ctx, msg+" completed", attrs...)
}

// pass holds the queue sessions opened for one reconciliation pass.
type pass struct {
	r      *Reconciler
	logger *slog.Logger

	// first is opened lazily on the first non-empty page; if it cannot be
	// opened the whole pass is aborted.
	first models.QueueSession
}

func (p *pass) close() {
	if p.first != nil {
		_ = p.first.Close()
		p.first = nil
	}
}

func (p *pass) walkAll(ctx context.Context) (Result, error) {
	var res Result
	q := store.RecentQuery{Limit: p.r.pageSize}
	for {
		pageRes, err := p.page(ctx, q)
		res.Pages++
		res.Merge(pageRes)
		if err != nil {
			return res, err
		}
		if pageRes.Checked == 0 {
			return res, nil
		}
		q.BeforeID = pageRes.OldestID
	}
}

func (p *pass) page(ctx context.Context, q store.RecentQuery) (Result, error) {
	recs, err := p.r.store.SelectRecent(ctx, q)
	if err != nil {
		return Result{}, err
	}
	return p.apply(ctx, recs)
}

type outcome struct {
	status models.JobStatus
	err    error
}

// apply fetches the status of every record then writes the results back
// sequentially in the order of recs. One write per record.
func (p *pass) apply(ctx context.Context, recs []*models.JobRecord) (Result, error) {
	var res Result
	if len(recs) == 0 {
		return res, nil
	}

	outcomes, err := p.fetch(ctx, recs)
	if err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	for i, rec := range recs {
		res.Checked++
		if res.OldestID == 0 || rec.ID < res.OldestID {
			res.OldestID = rec.ID
		}

		o := outcomes[i]
		switch {
		case o.err != nil:
			res.Failed++
			res.Failures = append(res.Failures, Failure{JobID: rec.ID, Handle: rec.Handle, Err: o.err})
			p.logger.WarnContext(ctx, "job status lookup failed",
				"job_id", rec.ID, "handle", rec.Handle, "error", o.err)

		case !o.status.Known:
			n, err := p.r.store.Delete(ctx, store.Criteria{ID: rec.ID})
			if err != nil {
				return res, err
			}
			res.Deleted += int(n)

		default:
			// Only progress is refreshed here. The running flag is written on
			// insert but deliberately left alone by reconciliation.
			err := p.r.store.Update(ctx, rec.ID,
				store.WithProgress(o.status.Numerator, models.GuardDenominator(o.status.Denominator)))
			if err != nil {
				return res, err
			}
			res.Updated++
		}
	}
	return res, nil
}

// fetch queries the queue for every record using up to Workers sessions.
func (p *pass) fetch(ctx context.Context, recs []*models.JobRecord) ([]outcome, error) {
	if p.first == nil {
		sess, err := p.r.queue.Connect(ctx)
		if err != nil {
			if !errors.Is(err, models.ErrQueueUnavailable) {
				err = fmt.Errorf("%w: %w", models.ErrQueueUnavailable, err)
			}
			return nil, err
		}
		p.first = sess
	}

	outcomes := make([]outcome, len(recs))
	work := make(chan int, len(recs))
	for i := range recs {
		work <- i
	}
	close(work)

	workers := min(p.r.workers, len(recs))

	var g errgroup.Group
	g.SetLimit(workers)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			wk := &worker{p: p}
			if w == 0 {
				wk.sess = p.first
			} else {
				sess, err := p.r.queue.Connect(ctx)
				if err != nil {
					p.logger.WarnContext(ctx, "extra queue session unavailable, running with fewer workers",
						"worker", w, "error", err)
					return nil
				}
				wk.sess = sess
				defer wk.close()
			}

			for i := range work {
				st, err := wk.status(ctx, recs[i].Handle)
				outcomes[i] = outcome{status: st, err: err}
			}

			if w == 0 {
				// The first session outlives this fetch and is closed by the pass.
				p.first = wk.sess
			}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes, nil
}

// worker owns one queue session for the duration of a fetch.
type worker struct {
	p    *pass
	sess models.QueueSession
}

func (w *worker) close() {
	if w.sess != nil {
		_ = w.sess.Close()
		w.sess = nil
	}
}

func (w *worker) status(ctx context.Context, handle string) (models.JobStatus, error) {
	if w.sess == nil {
		sess, err := w.p.r.queue.Connect(ctx)
		if err != nil {
			return models.JobStatus{}, err
		}
		w.sess = sess
	}

	callCtx, cancel := context.WithTimeout(ctx, w.p.r.callTimeout)
	defer cancel()

	st, err := w.sess.JobStatus(callCtx, handle)
	if err != nil {
		// After a timeout or transport failure the session may still have a
		// reply in flight; drop it and reconnect on the next call.
		if errors.Is(err, models.ErrQueueTimeout) || errors.Is(err, models.ErrQueueUnavailable) {
			w.close()
		}
		return models.JobStatus{}, err
	}
	return st, nil
}
