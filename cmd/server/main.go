// Package main is the entrypoint for the jobsync API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/jobsync/internal/api"
	"github.com/kiranshivaraju/jobsync/internal/api/handler"
	mw "github.com/kiranshivaraju/jobsync/internal/api/middleware"
	"github.com/kiranshivaraju/jobsync/internal/api/response"
	"github.com/kiranshivaraju/jobsync/internal/cache"
	"github.com/kiranshivaraju/jobsync/internal/config"
	"github.com/kiranshivaraju/jobsync/internal/jobs"
	"github.com/kiranshivaraju/jobsync/internal/queue"
	"github.com/kiranshivaraju/jobsync/internal/reconcile"
	"github.com/kiranshivaraju/jobsync/internal/store"
	"github.com/kiranshivaraju/jobsync/pkg/models"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, failing fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"database_driver", cfg.Database.Driver,
		"queue_driver", cfg.Queue.Driver,
		"env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open the job store
	st, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer closeStore()

	// 3. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 4. Create queue connector
	q, err := queue.NewConnector(cfg.Queue, redisCache.Client())
	if err != nil {
		return fmt.Errorf("create queue connector: %w", err)
	}
	if err := q.Ping(ctx); err != nil {
		// Reads still serve stored rows while the queue is down.
		slog.Warn("job queue unreachable at startup", "queue", q.Name(), "error", err)
	}
	slog.Info("queue connector initialized", "queue", q.Name())

	// 5. Reconciler and job service
	reconciler := reconcile.New(st, q, reconcile.Options{
		PageSize:    cfg.Reconcile.PageSize,
		Workers:     cfg.Reconcile.Workers,
		CallTimeout: cfg.Queue.Timeout,
		Logger:      slog.Default(),
	})

	svc, err := jobs.NewService(jobs.Options{
		Store:        st,
		Queue:        q,
		Reconciler:   reconciler,
		Status:       redisCache,
		LookupWindow: cfg.Reconcile.LookupWindow,
		CallTimeout:  cfg.Queue.Timeout,
		Logger:       slog.Default(),
	})
	if err != nil {
		return fmt.Errorf("create job service: %w", err)
	}

	// 6. Background refresh loop
	runnerDone := make(chan struct{})
	if cfg.Reconcile.Interval > 0 {
		runner, err := reconcile.NewRunner(reconcile.RunnerOptions{
			Passer:    reconciler,
			Locker:    redisCache,
			LockKey:   cache.ReconcileLockKey(),
			Recorder:  redisCache,
			Interval:  cfg.Reconcile.Interval,
			BatchSize: cfg.Reconcile.BatchSize,
			Logger:    slog.Default(),
		})
		if err != nil {
			return fmt.Errorf("create reconcile runner: %w", err)
		}
		go func() {
			defer close(runnerDone)
			if err := runner.Run(ctx); err != nil {
				slog.Error("reconcile runner stopped", "error", err)
			}
		}()
	} else {
		close(runnerDone)
		slog.Info("background reconciliation disabled")
	}

	// 7. Build router with dependencies
	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(redisCache, cfg.RateLimit.RequestsPerMinute),

		HealthHandler: healthHandler(st, redisCache, q),
		ListJobs:      handler.NewListJobsHandler(svc),
		GetJob:        handler.NewGetJobHandler(svc),
		CreateJob:     handler.NewCreateJobHandler(svc),
		UpdateJob:     handler.NewUpdateJobHandler(svc),
		DeleteJob:     handler.NewDeleteJobHandler(svc),
		DeleteJobs:    handler.NewDeleteJobsHandler(svc),
		ClearJobs:     handler.NewClearJobsHandler(svc),
		ReconcileJobs: handler.NewReconcileHandler(svc, cfg.Reconcile.BatchSize),
		RefreshStatus: handler.NewRefreshStatusHandler(svc),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		stop()
		<-runnerDone
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	<-runnerDone

	slog.Info("server stopped gracefully")
	return nil
}

// openStore connects the configured store driver. The returned func releases
// the underlying connections.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, func(), error) {
	switch cfg.Driver {
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		slog.Info("sqlite store opened")
		return s, func() { _ = s.Close() }, nil
	case "postgres":
		pool, err := store.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		slog.Info("database connected")

		if err := store.RunMigrations(cfg.URL, cfg.MigrationsDir); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		slog.Info("database migrations applied")
		return store.NewPostgresStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// healthHandler checks database, cache and queue connectivity.
func healthHandler(s store.Store, c cache.Cache, q models.QueueConnector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
			"queue":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}
		if err := q.Ping(r.Context()); err != nil {
			checks["queue"] = "degraded"
		}

		for _, v := range checks {
			if v != "ok" {
				response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
					"One or more services degraded", checks)
				return
			}
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
