package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/okian/boxboard/internal/domain/freshness"
	"github.com/okian/boxboard/internal/domain/model"
)

// AdminHandler handles operator actions: refresh, rebuild and rollback.
type AdminHandler struct {
	deps Dependencies
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps Dependencies) *AdminHandler {
	return &AdminHandler{deps: deps}
}

type queuedResponse struct {
	Status   string   `json:"status"`
	SeasonID int      `json:"season_id"`
	StatKeys []string `json:"stat_keys"`
}

func (h *AdminHandler) schedule(r *http.Request, seasonID int, keys []string, reason string) error {
	for _, key := range keys {
		if err := h.deps.Schedule(r.Context(), seasonID, key, reason); err != nil {
			if errors.Is(err, freshness.ErrUnknownStatKey) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrBackpressure, err)
		}
	}
	return nil
}

// HandleRefresh handles POST /leaderboards/{season}/{stat}/refresh.
// With async=true the rebuild is queued and 202 returned.
func (h *AdminHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	seasonID, statKey, err := target(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if async(r) {
		if err := h.schedule(r, seasonID, []string{statKey}, model.ReasonManual); err != nil {
			writeError(r.Context(), w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, queuedResponse{Status: "queued", SeasonID: seasonID, StatKeys: []string{statKey}})
		return
	}
	st, err := h.deps.Refresh(r.Context(), seasonID, statKey)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.Header().Set("ETag", quoteETag(st.ETag))
	writeJSON(w, http.StatusOK, st.Snapshot)
}

// statKeys reads repeated stat_key parameters; comma lists are split.
func statKeys(r *http.Request) []string {
	var out []string
	for _, v := range r.URL.Query()["stat_key"] {
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				out = append(out, k)
			}
		}
	}
	return out
}

// HandleRebuild handles POST /leaderboards/{season}/rebuild.
func (h *AdminHandler) HandleRebuild(w http.ResponseWriter, r *http.Request) {
	seasonID, _, err := target(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	keys := statKeys(r)
	if async(r) {
		if len(keys) == 0 {
			keys = h.deps.StatKeys()
		}
		if len(keys) == 0 {
			writeError(r.Context(), w, fmt.Errorf("%w: stat_key is required when no keys are configured", ErrBadRequest))
			return
		}
		if err := h.deps.ScheduleRebuild(r.Context(), seasonID, keys); err != nil {
			if !errors.Is(err, freshness.ErrUnknownStatKey) {
				err = fmt.Errorf("%w: %v", ErrBackpressure, err)
			}
			writeError(r.Context(), w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, queuedResponse{Status: "queued", SeasonID: seasonID, StatKeys: keys})
		return
	}
	res, err := h.deps.Rebuild(r.Context(), seasonID, keys...)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleRebuildProgress handles GET /leaderboards/{season}/rebuild/progress.
func (h *AdminHandler) HandleRebuildProgress(w http.ResponseWriter, r *http.Request) {
	seasonID, _, err := target(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	p, err := h.deps.Progress(r.Context(), seasonID)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, p)
}

type rollbackResponse struct {
	Deleted  int     `json:"deleted"`
	Restored version `json:"restored"`
}

// HandleRollback handles POST /leaderboards/{season}/{stat}/rollback?etag=.
func (h *AdminHandler) HandleRollback(w http.ResponseWriter, r *http.Request) {
	seasonID, statKey, err := target(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	etag := strings.Trim(strings.TrimSpace(r.URL.Query().Get("etag")), `"`)
	if etag == "" {
		writeError(r.Context(), w, fmt.Errorf("%w: etag is required", ErrBadRequest))
		return
	}
	st, deleted, err := h.deps.Rollback(r.Context(), seasonID, statKey, etag)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, rollbackResponse{Deleted: deleted, Restored: versionOf(st)})
}
