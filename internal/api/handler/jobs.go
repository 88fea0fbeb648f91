package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/jobsync/internal/api/response"
	"github.com/kiranshivaraju/jobsync/internal/jobs"
	"github.com/kiranshivaraju/jobsync/internal/reconcile"
	"github.com/kiranshivaraju/jobsync/internal/store"
	"github.com/kiranshivaraju/jobsync/pkg/models"
)

const (
	defaultListLimit = 25
	maxListLimit     = 500
)

// JobService defines the interface the job handlers depend on.
type JobService interface {
	ListRecent(ctx context.Context, limit int) ([]*models.JobRecord, reconcile.Result, error)
	GetByID(ctx context.Context, id int64) (*models.JobRecord, reconcile.Result, error)
	Insert(ctx context.Context, rec *models.JobRecord) (*models.JobRecord, error)
	Update(ctx context.Context, id int64, p jobs.Patch) error
	Delete(ctx context.Context, c store.Criteria) (int64, error)
	ClearAll(ctx context.Context) error
	Refresh(ctx context.Context, batchSize int) (reconcile.Result, error)
	LastRefresh(ctx context.Context) (*models.RefreshStatus, error)
}

type jobResponse struct {
	*models.JobRecord
	Percent float64 `json:"percent"`
}

func toJobResponse(rec *models.JobRecord) jobResponse {
	return jobResponse{JobRecord: rec, Percent: rec.Percent()}
}

type failureResponse struct {
	JobID  int64  `json:"job_id"`
	Handle string `json:"handle"`
	Error  string `json:"error"`
}

type refreshMeta struct {
	Status   string            `json:"status"`
	Checked  int               `json:"checked"`
	Updated  int               `json:"updated"`
	Deleted  int               `json:"deleted"`
	Failed   int               `json:"failed"`
	Error    string            `json:"error,omitempty"`
	Failures []failureResponse `json:"failures,omitempty"`
}

// newRefreshMeta reports "ok", "partial" when some lookups failed, or
// "failed" when the pass could not run.
func newRefreshMeta(res reconcile.Result, err error) refreshMeta {
	m := refreshMeta{
		Status:  "ok",
		Checked: res.Checked,
		Updated: res.Updated,
		Deleted: res.Deleted,
		Failed:  res.Failed,
	}
	if res.Failed > 0 {
		m.Status = "partial"
	}
	for _, f := range res.Failures {
		m.Failures = append(m.Failures, failureResponse{JobID: f.JobID, Handle: f.Handle, Error: f.Err.Error()})
	}
	if err != nil {
		m.Status = "failed"
		m.Error = "job queue unavailable"
	}
	return m
}

// NewListJobsHandler returns an http.HandlerFunc for GET /api/v1/jobs.
func NewListJobsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultListLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > maxListLimit {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"limit must be an integer between 1 and 500", nil)
				return
			}
			limit = n
		}

		recs, res, err := svc.ListRecent(r.Context(), limit)
		if err != nil && (recs == nil || !errors.Is(err, models.ErrQueueUnavailable)) {
			writeServiceError(w, r, err)
			return
		}

		data := make([]jobResponse, 0, len(recs))
		for _, rec := range recs {
			data = append(data, toJobResponse(rec))
		}
		response.WithMeta(w, data, map[string]any{
			"limit":   limit,
			"count":   len(data),
			"refresh": newRefreshMeta(res, err),
		})
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		rec, res, err := svc.GetByID(r.Context(), id)
		if err != nil && (rec == nil || !errors.Is(err, models.ErrQueueUnavailable)) {
			writeServiceError(w, r, err)
			return
		}

		response.WithMeta(w, toJobResponse(rec), map[string]any{
			"refresh": newRefreshMeta(res, err),
		})
	}
}

// NewCreateJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
// A handle the queue does not know is accepted but not tracked (202).
func NewCreateJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Handle string `json:"handle"`
			Name   string `json:"name"`
			Owner  string `json:"owner"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		req.Handle = strings.TrimSpace(req.Handle)
		if req.Handle == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "handle is required", nil)
			return
		}

		rec, err := svc.Insert(r.Context(), &models.JobRecord{Handle: req.Handle, Name: req.Name, Owner: req.Owner})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if rec == nil {
			response.Accepted(w, map[string]any{"handle": req.Handle, "tracked": false})
			return
		}
		response.Created(w, toJobResponse(rec))
	}
}

// NewUpdateJobHandler returns an http.HandlerFunc for PATCH /api/v1/jobs/{jobID}.
func NewUpdateJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		var patch jobs.Patch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if err := svc.Update(r.Context(), id, patch); err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, map[string]any{"id": id, "updated": true})
	}
}

// NewDeleteJobHandler returns an http.HandlerFunc for DELETE /api/v1/jobs/{jobID}.
func NewDeleteJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDParam(w, r)
		if !ok {
			return
		}
		n, err := svc.Delete(r.Context(), store.Criteria{ID: id})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, map[string]any{"deleted": n})
	}
}

// NewDeleteJobsHandler returns an http.HandlerFunc for DELETE /api/v1/jobs.
// Filters come from the query string; at least one is required.
func NewDeleteJobsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		c := store.Criteria{Handle: q.Get("handle")}
		if v := q.Get("running"); v != "" {
			running, err := strconv.ParseBool(v)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "running must be a boolean", nil)
				return
			}
			c.Running = &running
		}
		if c.Handle == "" && c.Running == nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"at least one of handle or running is required", nil)
			return
		}

		n, err := svc.Delete(r.Context(), c)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, map[string]any{"deleted": n})
	}
}

// NewClearJobsHandler returns an http.HandlerFunc for POST /api/v1/jobs/clear.
func NewClearJobsHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.ClearAll(r.Context()); err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, map[string]any{"cleared": true})
	}
}

// NewReconcileHandler returns an http.HandlerFunc for POST /api/v1/jobs/reconcile.
// The batch query parameter is a positive count or "all".
func NewReconcileHandler(svc JobService, defaultBatch int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batch := defaultBatch
		switch v := r.URL.Query().Get("batch"); v {
		case "":
		case "all":
			batch = reconcile.All
		default:
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					`batch must be a positive integer or "all"`, nil)
				return
			}
			batch = n
		}

		res, err := svc.Refresh(r.Context(), batch)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, newRefreshMeta(res, nil))
	}
}

// NewRefreshStatusHandler returns an http.HandlerFunc for GET /api/v1/jobs/refresh.
func NewRefreshStatusHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := svc.LastRefresh(r.Context())
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if status == nil {
			response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "No refresh has been recorded yet", nil)
			return
		}
		response.JSON(w, status)
	}
}

func jobIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "jobID"), 10, 64)
	if err != nil || id < 1 {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "jobID must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

// writeServiceError maps service and adapter errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Job not found", nil)
	case errors.Is(err, jobs.ErrInvalidJob), errors.Is(err, jobs.ErrInvalidLimit),
		errors.Is(err, reconcile.ErrInvalidBatch), errors.Is(err, store.ErrEmptyCriteria):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	case errors.Is(err, store.ErrDuplicateHandle):
		response.Error(w, http.StatusConflict, "DUPLICATE_HANDLE", "Job handle is already tracked", nil)
	case errors.Is(err, store.ErrStorage):
		slog.ErrorContext(r.Context(), "storage error", "path", r.URL.Path, "error", err)
		response.Error(w, http.StatusInternalServerError, "STORAGE_ERROR", "The job store is unavailable", nil)
	case errors.Is(err, models.ErrQueueTimeout):
		response.Error(w, http.StatusGatewayTimeout, "QUEUE_TIMEOUT", "The job queue did not answer in time", nil)
	case errors.Is(err, models.ErrQueueUnavailable), errors.Is(err, models.ErrQueueProtocol):
		response.Error(w, http.StatusBadGateway, "QUEUE_UNAVAILABLE", "The job queue is not available", nil)
	default:
		slog.ErrorContext(r.Context(), "unexpected error", "path", r.URL.Path, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}
