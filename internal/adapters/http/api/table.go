package api

import (
	"bytes"
	"net/http"

	"github.com/okian/boxboard/internal/domain/table"
	"github.com/okian/boxboard/pkg/metrics"
)

// TableHandler serves the table engine's render model of a snapshot.
type TableHandler struct {
	deps Dependencies
}

// NewTableHandler creates a new table handler.
func NewTableHandler(deps Dependencies) *TableHandler {
	return &TableHandler{deps: deps}
}

// model loads the snapshot and applies the sort and dir query parameters.
// A dir without sort re-sorts the default column.
func (h *TableHandler) model(r *http.Request) (*table.Model, string, error) {
	seasonID, statKey, err := target(r)
	if err != nil {
		return nil, "", err
	}
	res, err := h.deps.Leaderboard(r.Context(), seasonID, statKey)
	if err != nil {
		return nil, "", err
	}
	m, err := table.Build(res.Stored.Snapshot, nil)
	if err != nil {
		return nil, "", err
	}

	q := r.URL.Query()
	key, rawDir := q.Get("sort"), q.Get("dir")
	if key == "" && rawDir == "" {
		return m, res.Stored.ETag, nil
	}
	dir, err := table.ParseDirection(rawDir)
	if err != nil {
		return nil, "", err
	}
	if key == "" && m.Main != nil {
		key, _, _ = m.Main.Active()
	}
	if err := m.Sort(key, dir); err != nil {
		return nil, "", err
	}
	return m, res.Stored.ETag, nil
}

// HandleGetTable handles GET /leaderboards/{season}/{stat}/table.
func (h *TableHandler) HandleGetTable(w http.ResponseWriter, r *http.Request) {
	m, etag, err := h.model(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.Header().Set("X-Snapshot-ETag", quoteETag(etag))
	writeJSON(w, http.StatusOK, m.View())
}

// HandleGetView handles GET /leaderboards/{season}/{stat}/view.
func (h *TableHandler) HandleGetView(w http.ResponseWriter, r *http.Request) {
	m, etag, err := h.model(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	var buf bytes.Buffer
	if err := table.RenderHTML(&buf, m); err != nil {
		metrics.RecordTableRenderError()
		writeError(r.Context(), w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Snapshot-ETag", quoteETag(etag))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
