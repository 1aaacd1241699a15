// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/okian/boxboard/internal/domain/freshness"
	"github.com/okian/boxboard/internal/domain/progress"
	"github.com/okian/boxboard/internal/domain/snapshot"
	"github.com/okian/boxboard/pkg/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Leaderboard serves one key, rebuilding it when needed.
	Leaderboard(ctx context.Context, seasonID int, statKey string) (freshness.Result, error)
	Season(ctx context.Context, seasonID int) (freshness.SeasonResult, error)

	Refresh(ctx context.Context, seasonID int, statKey string) (snapshot.Stored, error)
	Rebuild(ctx context.Context, seasonID int, statKeys ...string) (freshness.BatchResult, error)

	// Schedule queues a background refresh. Errors other than an unknown
	// stat key mean the queue refused the job.
	Schedule(ctx context.Context, seasonID int, statKey, reason string) error
	// ScheduleRebuild queues every key of a season and tracks the run.
	ScheduleRebuild(ctx context.Context, seasonID int, statKeys []string) error
	Progress(ctx context.Context, seasonID int) (progress.Progress, error)

	History(ctx context.Context, seasonID int, statKey string) ([]snapshot.Stored, error)
	Rollback(ctx context.Context, seasonID int, statKey, etag string) (snapshot.Stored, int, error)

	StatKeys() []string
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	leaderboardHandler *LeaderboardHandler
	tableHandler       *TableHandler
	adminHandler       *AdminHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		leaderboardHandler: NewLeaderboardHandler(deps),
		tableHandler:       NewTableHandler(deps),
		adminHandler:       NewAdminHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /leaderboards/{season}/all", MetricsMiddleware(s.leaderboardHandler.HandleGetSeason, "season"))
	mux.HandleFunc("POST /leaderboards/{season}/rebuild", MetricsMiddleware(s.adminHandler.HandleRebuild, "rebuild"))
	mux.HandleFunc("GET /leaderboards/{season}/rebuild/progress", MetricsMiddleware(s.adminHandler.HandleRebuildProgress, "rebuild_progress"))
	mux.HandleFunc("GET /leaderboards/{season}/{stat}", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("GET /leaderboards/{season}/{stat}/history", MetricsMiddleware(s.leaderboardHandler.HandleGetHistory, "history"))
	mux.HandleFunc("GET /leaderboards/{season}/{stat}/table", MetricsMiddleware(s.tableHandler.HandleGetTable, "table"))
	mux.HandleFunc("GET /leaderboards/{season}/{stat}/view", MetricsMiddleware(s.tableHandler.HandleGetView, "view"))
	mux.HandleFunc("POST /leaderboards/{season}/{stat}/refresh", MetricsMiddleware(s.adminHandler.HandleRefresh, "refresh"))
	mux.HandleFunc("POST /leaderboards/{season}/{stat}/rollback", MetricsMiddleware(s.adminHandler.HandleRollback, "rollback"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError translates err to its status and code. 5xx responses are
// logged; canceled requests are not.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status, code := classify(err)
	if rw, ok := w.(*responseWriter); ok {
		rw.errorCode = code
	}
	if status >= http.StatusInternalServerError {
		logger.Get().Named("api").Error(ctx, "request failed",
			logger.String("code", code),
			logger.Error(err))
	}
	writeJSON(w, status, errorResponse{Code: code, Message: err.Error()})
}

// target reads the {season} and optional {stat} path values.
func target(r *http.Request) (int, string, error) {
	raw := r.PathValue("season")
	seasonID, err := strconv.Atoi(raw)
	if err != nil || seasonID < 0 {
		return 0, "", fmt.Errorf("%w: invalid season %q", ErrBadRequest, raw)
	}
	return seasonID, strings.TrimSpace(r.PathValue("stat")), nil
}

// async reports whether the caller asked for the work to be queued.
func async(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("async"))
	return err == nil && v
}
