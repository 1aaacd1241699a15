// Package service wires the snapshot store, compute provider, freshness
// controller and refresh workers into the dependencies required by the HTTP
// API and the operator CLI.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/boxboard/internal/adapters/compute"
	refreshqueue "github.com/okian/boxboard/internal/adapters/mq/queue"
	workerpool "github.com/okian/boxboard/internal/adapters/mq/worker"
	"github.com/okian/boxboard/internal/adapters/repository"
	"github.com/okian/boxboard/internal/config"
	"github.com/okian/boxboard/internal/domain/dedupe"
	"github.com/okian/boxboard/internal/domain/freshness"
	"github.com/okian/boxboard/internal/domain/model"
	"github.com/okian/boxboard/internal/domain/normalize"
	"github.com/okian/boxboard/internal/domain/progress"
	"github.com/okian/boxboard/internal/domain/snapshot"
	"github.com/okian/boxboard/pkg/logger"
	"github.com/okian/boxboard/pkg/metrics"
)

const builderName = "boxboard"

// Service implements the API dependencies for the leaderboard snapshot cache.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Core components
	store        repository.Store
	ownsStore    bool
	provider     freshness.Provider
	providerName string
	controller   *freshness.Controller
	deduper      dedupe.Deduper
	queue        *refreshqueue.InMemoryQueue
	pool         *workerpool.Pool
	progress     *progress.Tracker

	now func() time.Time

	// State
	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// New constructs a new Service. Components are created by Start.
func New(opts ...Option) *Service {
	s := &Service{
		cfg: config.New(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store and starts the refresh workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	cfg := s.cfg

	s.logger.Info(ctx, "starting snapshot service...",
		logger.String("store_driver", cfg.StoreDriver),
		logger.Duration("ttl", cfg.TTL),
	)

	if s.store == nil {
		store, err := s.openStore(ctx)
		if err != nil {
			return err
		}
		s.store = store
		s.ownsStore = true
	}
	if s.provider == nil {
		minLatency, maxLatency := cfg.ComputeLatency()
		s.provider = compute.NewFileProvider(cfg.ComputeDir, compute.WithLatencyRange(minLatency, maxLatency))
		s.providerName = "file:" + cfg.ComputeDir
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.PendingLimit), dedupe.WithClock(s.now))
	s.queue = refreshqueue.NewInMemoryQueue(refreshqueue.WithCapacity(cfg.RefreshQueueSize))
	s.progress = progress.NewTracker(progress.WithClock(s.now))

	copts := []freshness.Option{
		freshness.WithTTL(cfg.TTL),
		freshness.WithNormalizer(normalize.New(
			normalize.WithVersions(cfg.SchemaVersion, cfg.FormatterVersion),
			normalize.WithClock(s.now),
		)),
		freshness.WithClock(s.now),
		freshness.WithStatKeys(cfg.StatKeys...),
		freshness.WithBatchConcurrency(cfg.BatchConcurrency),
		freshness.WithBuilder(builderName),
		freshness.WithProviderName(s.providerName),
	}
	if cfg.StaleWhileRevalidate {
		copts = append(copts, freshness.WithRevalidator(s))
	}
	controller, err := freshness.New(s.store, s.provider, copts...)
	if err != nil {
		s.closeStore(ctx)
		return fmt.Errorf("create freshness controller: %w", err)
	}
	s.controller = controller

	// workers outlive the request that started the service
	poolCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool = workerpool.NewPool(cfg.RefreshWorkerCount, s.queue, controller,
		workerpool.WithReleaser(s.deduper),
		workerpool.WithObserver(s.progress),
		workerpool.WithClock(s.now),
	)
	s.pool.Start(poolCtx)

	s.started = true
	s.logger.Info(ctx, "snapshot service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", cfg.RefreshQueueSize),
		logger.Bool("staleWhileRevalidate", cfg.StaleWhileRevalidate),
		logger.Any("statKeys", controller.StatKeys()),
	)
	return nil
}

func (s *Service) openStore(ctx context.Context) (repository.Store, error) {
	opts := []repository.Option{repository.WithRetention(s.cfg.Retention)}
	switch s.cfg.StoreDriver {
	case config.DriverSQLite:
		store, err := repository.OpenSQLite(ctx, s.cfg.SQLitePath, opts...)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		s.logger.Info(ctx, "using sqlite store", logger.String("path", s.cfg.SQLitePath))
		return store, nil
	default:
		s.logger.Info(ctx, "using memory store")
		return repository.NewMemoryStore(opts...), nil
	}
}

// Stop drains the refresh workers and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping snapshot service...")

	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.closeStore(ctx)

	s.started = false
	s.logger.Info(ctx, "snapshot service stopped")
}

// closeStore closes the store. A store opened from config is dropped so a
// later Start opens a new one.
func (s *Service) closeStore(ctx context.Context) {
	if s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "closing store", logger.Error(err))
	}
	if s.ownsStore {
		s.store = nil
		s.ownsStore = false
	}
}

func (s *Service) ready() (*freshness.Controller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.controller, nil
}

// Revalidate queues a background rebuild of a stale key. Bursts for the same
// key collapse onto the job already pending. It returns false when the job
// could not be queued.
func (s *Service) Revalidate(ctx context.Context, seasonID int, statKey string) bool {
	return s.schedule(ctx, seasonID, statKey, model.ReasonStale) == nil
}

// Schedule queues a background rebuild of one key for reason.
func (s *Service) Schedule(ctx context.Context, seasonID int, statKey, reason string) error {
	c, err := s.ready()
	if err != nil {
		return err
	}
	if !c.Known(statKey) {
		return fmt.Errorf("%w: %q", freshness.ErrUnknownStatKey, statKey)
	}
	return s.schedule(ctx, seasonID, statKey, reason)
}

func (s *Service) schedule(ctx context.Context, seasonID int, statKey, reason string) error {
	job := model.NewRefreshJob(seasonID, statKey, reason, s.now())
	switch s.deduper.Mark(ctx, job.Key()) {
	case dedupe.AlreadyPending:
		metrics.RecordRefreshCoalesced()
		s.logger.Debug(ctx, "refresh already pending", logger.String("key", job.Key()))
		return nil
	case dedupe.Full:
		return fmt.Errorf("%w: pending limit reached", ErrQueueFull)
	}
	if !s.queue.Enqueue(ctx, job) {
		s.deduper.Clear(ctx, job.Key())
		return ErrQueueFull
	}
	s.logger.Debug(ctx, "refresh queued",
		logger.String("key", job.Key()),
		logger.String("reason", reason),
		logger.String("job", job.ID.String()),
	)
	return nil
}

// ScheduleRebuild queues a forced rebuild of every key in statKeys and starts
// the season's progress record. When a key cannot be queued it and the keys
// after it are recorded as failed and the error is returned.
func (s *Service) ScheduleRebuild(ctx context.Context, seasonID int, statKeys []string) error {
	c, err := s.ready()
	if err != nil {
		return err
	}
	for _, key := range statKeys {
		if !c.Known(key) {
			return fmt.Errorf("%w: %q", freshness.ErrUnknownStatKey, key)
		}
	}

	s.progress.Begin(seasonID, statKeys)
	for i, key := range statKeys {
		if err := s.schedule(ctx, seasonID, key, model.ReasonWarm); err != nil {
			for _, rest := range statKeys[i:] {
				s.progress.Record(seasonID, rest, err)
			}
			return err
		}
	}
	s.logger.Info(ctx, "season rebuild queued",
		logger.Int("season_id", seasonID),
		logger.Int("keys", len(statKeys)))
	return nil
}

// Progress returns the state of the season's latest queued rebuild.
func (s *Service) Progress(_ context.Context, seasonID int) (progress.Progress, error) {
	if _, err := s.ready(); err != nil {
		return progress.Progress{}, err
	}
	return s.progress.Get(seasonID), nil
}

// Leaderboard returns the snapshot for (seasonID, statKey), rebuilding it
// when missing or stale.
func (s *Service) Leaderboard(ctx context.Context, seasonID int, statKey string) (freshness.Result, error) {
	c, err := s.ready()
	if err != nil {
		return freshness.Result{}, err
	}
	return c.GetOrRefresh(ctx, seasonID, statKey)
}

// Season returns the snapshot of every stat key in the season.
func (s *Service) Season(ctx context.Context, seasonID int) (freshness.SeasonResult, error) {
	c, err := s.ready()
	if err != nil {
		return freshness.SeasonResult{}, err
	}
	return c.GetAll(ctx, seasonID)
}

// Refresh rebuilds one key now regardless of its age.
func (s *Service) Refresh(ctx context.Context, seasonID int, statKey string) (snapshot.Stored, error) {
	c, err := s.ready()
	if err != nil {
		return snapshot.Stored{}, err
	}
	return c.Refresh(ctx, seasonID, statKey)
}

// keyLister is implemented by providers that can enumerate their stat keys.
type keyLister interface {
	StatKeys(seasonID int) ([]string, error)
}

// Rebuild force-rebuilds statKeys of a season. With none given it uses the
// configured keys, or the keys the provider has data for.
func (s *Service) Rebuild(ctx context.Context, seasonID int, statKeys ...string) (freshness.BatchResult, error) {
	c, err := s.ready()
	if err != nil {
		return freshness.BatchResult{}, err
	}
	if len(statKeys) == 0 && len(c.StatKeys()) == 0 {
		if lister, ok := s.provider.(keyLister); ok {
			keys, err := lister.StatKeys(seasonID)
			if err != nil {
				return freshness.BatchResult{}, fmt.Errorf("list stat keys: %w", err)
			}
			statKeys = keys
		}
	}
	return c.RebuildAll(ctx, seasonID, statKeys...), nil
}

// History lists the stored versions of a key, newest first.
func (s *Service) History(ctx context.Context, seasonID int, statKey string) ([]snapshot.Stored, error) {
	c, err := s.ready()
	if err != nil {
		return nil, err
	}
	return c.History(ctx, seasonID, statKey)
}

// Rollback makes the version with etag the latest again.
func (s *Service) Rollback(ctx context.Context, seasonID int, statKey, etag string) (snapshot.Stored, int, error) {
	c, err := s.ready()
	if err != nil {
		return snapshot.Stored{}, 0, err
	}
	return c.Rollback(ctx, seasonID, statKey, etag)
}

// StatKeys returns the configured stat keys.
func (s *Service) StatKeys() []string {
	c, err := s.ready()
	if err != nil {
		return s.cfg.CleanStatKeys()
	}
	return c.StatKeys()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":              s.started,
		"storeDriver":          s.cfg.StoreDriver,
		"ttl":                  s.cfg.TTL.String(),
		"staleWhileRevalidate": s.cfg.StaleWhileRevalidate,
		"workerCount":          s.cfg.RefreshWorkerCount,
		"queueSize":            s.cfg.RefreshQueueSize,
	}
	if !s.started {
		return stats
	}

	queueLen := s.queue.Len(context.Background())
	processed, failed := s.pool.Stats()
	stats["statKeys"] = s.controller.StatKeys()
	stats["cache"] = s.controller.Stats()
	stats["queueLength"] = queueLen
	stats["pendingRefreshes"] = s.deduper.Size()
	stats["refreshesProcessed"] = processed
	stats["refreshesFailed"] = failed

	metrics.UpdateQueueSize(queueLen)
	metrics.UpdateWorkerCount(s.pool.Size())
	return stats
}

// Size returns the number of refreshes pending in the background.
func (s *Service) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}
