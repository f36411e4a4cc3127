package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/pricedash/pricedash/internal/archive"
	"github.com/pricedash/pricedash/internal/storage"
)

func handleListSnapshots(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Archive == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", "snapshot archive is not enabled", false, nil)
		return
	}
	table := r.PathValue("table")
	snapshots, err := deps.Archive.Snapshots(r.Context(), table)
	if err != nil {
		writeArchiveError(w, r, err, map[string]any{"table": table})
		return
	}
	if snapshots == nil {
		snapshots = []archive.Snapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"table": table, "snapshots": snapshots})
}

func handleGetSnapshot(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Archive == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", "snapshot archive is not enabled", false, nil)
		return
	}
	table := r.PathValue("table")
	name := r.PathValue("snapshot")
	body, err := deps.Archive.Open(r.Context(), table, name)
	if err != nil {
		writeArchiveError(w, r, err, map[string]any{"table": table, "snapshot": name})
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", archive.ContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil && deps.Logger != nil {
		deps.Logger.WarnContext(r.Context(), "snapshot stream interrupted", "table", table, "snapshot", name, "error", err)
	}
}

// writeArchiveError maps archive failures to client errors for bad names and
// missing objects, and to a retryable 502 for everything else.
func writeArchiveError(w http.ResponseWriter, r *http.Request, err error, extra map[string]any) {
	switch {
	case errors.Is(err, archive.ErrInvalidTable):
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_TABLE", err.Error(), false, extra)
	case errors.Is(err, archive.ErrInvalidSnapshot):
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_SNAPSHOT", err.Error(), false, extra)
	case errors.Is(err, storage.ErrObjectNotFound):
		writeError(r.Context(), w, http.StatusNotFound, "SNAPSHOT_NOT_FOUND", err.Error(), false, extra)
	default:
		writeError(r.Context(), w, http.StatusBadGateway, "ARCHIVE_UNAVAILABLE", err.Error(), true, extra)
	}
}
