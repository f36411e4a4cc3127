package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/pricedash/pricedash/internal/archive"
	"github.com/pricedash/pricedash/internal/dashboard"
)

type pageSummary struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	Table string `json:"table"`
}

func handleListPages(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Dashboard == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DASHBOARD_NOT_CONFIGURED", "dashboard service is not configured", false, nil)
		return
	}
	set := deps.Dashboard.Pages()
	items := make([]pageSummary, 0, len(set.Pages))
	for _, desc := range set.Pages {
		items = append(items, pageSummary{Slug: desc.Slug, Title: desc.Title, Table: desc.Table})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"title":    set.Title,
		"subtitle": set.Subtitle,
		"pages":    items,
	})
}

func handleGetPage(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Dashboard == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DASHBOARD_NOT_CONFIGURED", "dashboard service is not configured", false, nil)
		return
	}
	slug := r.PathValue("page")
	page, err := deps.Dashboard.RenderPage(r.Context(), slug)
	if err != nil {
		writePageError(w, r, slug, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func handleDashboard(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Dashboard == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DASHBOARD_NOT_CONFIGURED", "dashboard service is not configured", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, deps.Dashboard.RenderAll(r.Context()))
}

// handleExportPage streams the page's cached table as a Parquet file.
func handleExportPage(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Dashboard == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "DASHBOARD_NOT_CONFIGURED", "dashboard service is not configured", false, nil)
		return
	}
	slug := r.PathValue("page")
	desc, entry, err := deps.Dashboard.Entry(r.Context(), slug)
	if err != nil {
		writePageError(w, r, slug, err)
		return
	}
	if entry.Data.Empty() {
		extra := map[string]any{"page": slug, "table": desc.Table}
		if entry.Err != nil {
			extra["cause"] = entry.Err.Error()
		}
		writeError(r.Context(), w, http.StatusConflict, "NO_DATA", "table has no rows to export", true, extra)
		return
	}
	body, err := archive.EncodeDataset(entry.Data)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "EXPORT_FAILED", err.Error(), false, map[string]any{"page": slug})
		return
	}
	w.Header().Set("Content-Type", archive.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", desc.Slug+".parquet"))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = bytes.NewReader(body).WriteTo(w)
}

func writePageError(w http.ResponseWriter, r *http.Request, slug string, err error) {
	if errors.Is(err, dashboard.ErrPageNotFound) {
		writeError(r.Context(), w, http.StatusNotFound, "PAGE_NOT_FOUND", err.Error(), false, map[string]any{"page": slug})
		return
	}
	writeError(r.Context(), w, http.StatusInternalServerError, "PAGE_RENDER_FAILED", err.Error(), true, map[string]any{"page": slug})
}
