package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/pricedash/pricedash/internal/auth"
	"github.com/pricedash/pricedash/internal/dashboard"
)

func handleCacheStatus(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Dashboard == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DASHBOARD_NOT_CONFIGURED", "dashboard service is not configured", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": deps.Dashboard.CacheStatus()})
}

// handleCacheRefresh forces a refetch of one table, or of every table when
// the table query parameter is absent.
func handleCacheRefresh(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Dashboard == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DASHBOARD_NOT_CONFIGURED", "dashboard service is not configured", false, nil)
		return
	}
	if err := auth.RequireRole(r.Context(), auth.RoleCacheAdmin); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, map[string]any{"required_role": auth.RoleCacheAdmin})
		return
	}

	table := strings.TrimSpace(r.URL.Query().Get("table"))
	entries, err := deps.Dashboard.Refresh(r.Context(), table)
	if err != nil {
		if errors.Is(err, dashboard.ErrTableNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "TABLE_NOT_FOUND", err.Error(), false, map[string]any{"table": table})
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "REFRESH_FAILED", err.Error(), true, map[string]any{"table": table})
		return
	}
	if deps.Logger != nil {
		deps.Logger.InfoContext(r.Context(), "cache refreshed", "table", table, "entries", len(entries))
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
