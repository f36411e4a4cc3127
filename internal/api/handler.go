// Package api serves rendered dashboard pages and cache controls over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pricedash/pricedash/internal/archive"
	"github.com/pricedash/pricedash/internal/cache"
	"github.com/pricedash/pricedash/internal/config"
	"github.com/pricedash/pricedash/internal/dashboard"
	"github.com/pricedash/pricedash/internal/observability"
	"github.com/pricedash/pricedash/internal/pages"
	"github.com/pricedash/pricedash/internal/warehouse"
)

type ReadinessCheck func(ctx context.Context) error

type DashboardService interface {
	Pages() pages.Set
	RenderPage(ctx context.Context, slug string) (dashboard.Page, error)
	RenderAll(ctx context.Context) dashboard.Dashboard
	Entry(ctx context.Context, slug string) (pages.Descriptor, cache.Entry, error)
	CacheStatus() []cache.Status
	Refresh(ctx context.Context, table string) ([]cache.Status, error)
}

type SnapshotArchive interface {
	Snapshots(ctx context.Context, table string) ([]archive.Snapshot, error)
	Open(ctx context.Context, table, name string) (io.ReadCloser, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Dashboard         DashboardService
	Archive           SnapshotArchive
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("GET /v1/dashboard", func(w http.ResponseWriter, r *http.Request) {
		handleDashboard(deps, w, r)
	})
	protected.HandleFunc("GET /v1/pages", func(w http.ResponseWriter, r *http.Request) {
		handleListPages(deps, w, r)
	})
	protected.HandleFunc("GET /v1/pages/{page}", func(w http.ResponseWriter, r *http.Request) {
		handleGetPage(deps, w, r)
	})
	protected.HandleFunc("GET /v1/pages/{page}/export", func(w http.ResponseWriter, r *http.Request) {
		handleExportPage(deps, w, r)
	})
	protected.HandleFunc("GET /v1/cache", func(w http.ResponseWriter, r *http.Request) {
		handleCacheStatus(deps, w, r)
	})
	protected.HandleFunc("POST /v1/cache/refresh", func(w http.ResponseWriter, r *http.Request) {
		handleCacheRefresh(deps, w, r)
	})
	protected.HandleFunc("GET /v1/archive/{table}", func(w http.ResponseWriter, r *http.Request) {
		handleListSnapshots(deps, w, r)
	})
	protected.HandleFunc("GET /v1/archive/{table}/{snapshot}", func(w http.ResponseWriter, r *http.Request) {
		handleGetSnapshot(deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for _, pattern := range []string{
		"GET /v1/dashboard",
		"GET /v1/pages",
		"GET /v1/pages/{page}",
		"GET /v1/pages/{page}/export",
		"GET /v1/cache",
		"POST /v1/cache/refresh",
		"GET /v1/archive/{table}",
		"GET /v1/archive/{table}/{snapshot}",
	} {
		mux.Handle(pattern, protectedHandler)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	middlewares = append(middlewares, observability.RecoverMiddleware(deps.Logger))
	return chain(mux, middlewares...)
}

type Acquirer interface {
	Acquire(ctx context.Context) (*warehouse.Conn, error)
}

// CheckWarehouse reports ready once any connection strategy passes its probe.
func CheckWarehouse(provider Acquirer) ReadinessCheck {
	return func(ctx context.Context) error {
		conn, err := provider.Acquire(ctx)
		if err != nil {
			return err
		}
		return conn.Release()
	}
}

func CheckPages(set pages.Set) ReadinessCheck {
	return func(_ context.Context) error {
		if len(set.Pages) == 0 {
			return errors.New("no dashboard pages are configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
