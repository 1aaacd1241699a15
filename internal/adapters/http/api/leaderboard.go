package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/okian/boxboard/internal/domain/snapshot"
)

// LeaderboardHandler serves stored snapshots.
type LeaderboardHandler struct {
	deps Dependencies
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps Dependencies) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps}
}

// HandleGetLeaderboard handles GET /leaderboards/{season}/{stat}.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	seasonID, statKey, err := target(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	res, err := h.deps.Leaderboard(r.Context(), seasonID, statKey)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.Header().Set("X-Cache", string(res.Outcome))
	if notModified(w, r, res.Stored.ETag) {
		return
	}
	writeJSON(w, http.StatusOK, res.Stored.Snapshot)
}

type seasonResponse struct {
	SeasonID     int                           `json:"season_id"`
	Leaderboards map[string]*snapshot.Snapshot `json:"leaderboards"`
	Missing      []string                      `json:"missing"`
}

// HandleGetSeason handles GET /leaderboards/{season}/all.
func (h *LeaderboardHandler) HandleGetSeason(w http.ResponseWriter, r *http.Request) {
	seasonID, _, err := target(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	res, err := h.deps.Season(r.Context(), seasonID)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	if notModified(w, r, combinedETag(res.Leaderboards, res.Missing)) {
		return
	}
	docs := make(map[string]*snapshot.Snapshot, len(res.Leaderboards))
	for key, st := range res.Leaderboards {
		docs[key] = st.Snapshot
	}
	writeJSON(w, http.StatusOK, seasonResponse{
		SeasonID:     seasonID,
		Leaderboards: docs,
		Missing:      res.Missing,
	})
}

// version summarizes one stored snapshot without its payload.
type version struct {
	ID               uuid.UUID              `json:"id"`
	ETag             string                 `json:"etag"`
	BuiltAt          time.Time              `json:"built_at"`
	SchemaVersion    int                    `json:"schema_version"`
	FormatterVersion int                    `json:"formatter_version"`
	Rows             int                    `json:"rows"`
	Manifest         snapshot.BuildManifest `json:"manifest"`
}

func versionOf(st snapshot.Stored) version {
	v := version{ID: st.ID, ETag: st.ETag, Manifest: st.Manifest}
	if s := st.Snapshot; s != nil {
		v.BuiltAt = s.BuiltAt
		v.SchemaVersion = s.SchemaVersion
		v.FormatterVersion = s.FormatterVersion
		v.Rows = len(s.Rows)
	}
	return v
}

// HandleGetHistory handles GET /leaderboards/{season}/{stat}/history.
func (h *LeaderboardHandler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	seasonID, statKey, err := target(r)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	list, err := h.deps.History(r.Context(), seasonID, statKey)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	out := make([]version, len(list))
	for i, st := range list {
		out[i] = versionOf(st)
	}
	writeJSON(w, http.StatusOK, out)
}
