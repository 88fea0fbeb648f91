package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/jobsync/internal/api/middleware"
	"github.com/kiranshivaraju/jobsync/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc
	ListJobs      http.HandlerFunc
	GetJob        http.HandlerFunc
	CreateJob     http.HandlerFunc
	UpdateJob     http.HandlerFunc
	DeleteJob     http.HandlerFunc
	DeleteJobs    http.HandlerFunc
	ClearJobs     http.HandlerFunc
	ReconcileJobs http.HandlerFunc
	RefreshStatus http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Group(func(r chi.Router) {
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Get("/api/v1/jobs", orNotImplemented(deps.ListJobs))
		r.Post("/api/v1/jobs", orNotImplemented(deps.CreateJob))
		r.Delete("/api/v1/jobs", orNotImplemented(deps.DeleteJobs))

		r.Post("/api/v1/jobs/clear", orNotImplemented(deps.ClearJobs))
		r.Post("/api/v1/jobs/reconcile", orNotImplemented(deps.ReconcileJobs))
		r.Get("/api/v1/jobs/refresh", orNotImplemented(deps.RefreshStatus))

		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.GetJob))
		r.Patch("/api/v1/jobs/{jobID}", orNotImplemented(deps.UpdateJob))
		r.Delete("/api/v1/jobs/{jobID}", orNotImplemented(deps.DeleteJob))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
