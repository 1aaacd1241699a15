// Package freshness decides when a cached leaderboard snapshot is served and
// when it is rebuilt.
package freshness

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/okian/boxboard/internal/adapters/repository"
	"github.com/okian/boxboard/internal/domain/normalize"
	"github.com/okian/boxboard/internal/domain/snapshot"
	"github.com/okian/boxboard/pkg/logger"
	"github.com/okian/boxboard/pkg/metrics"
)

const (
	// DefaultTTL is how long a snapshot is served before it is rebuilt.
	DefaultTTL = 6 * time.Hour

	DefaultBatchConcurrency = 4

	component = "freshness"
)

// Provider computes the un-normalized leaderboard for a (season, stat key).
// It may be arbitrarily slow.
type Provider interface {
	Compute(ctx context.Context, seasonID int, statKey string) (*normalize.ComputeResult, error)
}

// Revalidator accepts a background rebuild request for a stale key. It
// returns false when the request could not be queued, in which case the
// caller rebuilds synchronously.
type Revalidator interface {
	Revalidate(ctx context.Context, seasonID int, statKey string) bool
}

// Outcome tells how a GetOrRefresh call was satisfied.
type Outcome string

const (
	OutcomeHit   Outcome = "hit"
	OutcomeMiss  Outcome = "miss"
	OutcomeStale Outcome = "stale"
)

// Result is a served snapshot together with how it was obtained.
type Result struct {
	Stored  snapshot.Stored
	Outcome Outcome
}

// BatchResult reports a multi-key rebuild; one key failing never aborts the
// others.
type BatchResult struct {
	SeasonID int               `json:"season_id"`
	Built    []string          `json:"built"`
	Failed   []string          `json:"failed"`
	Errors   map[string]string `json:"errors,omitempty"`
}

// SeasonResult is the bulk read of every stat key in a season. Missing lists
// the keys whose snapshot could not be served.
type SeasonResult struct {
	Leaderboards map[string]snapshot.Stored
	Missing      []string
}

// Stats are running counters of the controller.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Stale     int64 `json:"stale"`
	Builds    int64 `json:"builds"`
	Failures  int64 `json:"failures"`
	Coalesced int64 `json:"coalesced"`
}

type lookupState int

const (
	stateMissing lookupState = iota
	stateMismatch
	stateStale
	stateFresh
)

// Controller serves snapshots from the store and rebuilds them through the
// provider when they are missing, stale or produced by other versions.
// Rebuilds of one key are single-flighted.
type Controller struct {
	store            repository.Store
	provider         Provider
	normalizer       *normalize.Normalizer
	revalidator      Revalidator
	ttl              time.Duration
	now              func() time.Time
	statKeys         []string
	known            map[string]struct{}
	batchConcurrency int
	builder          string
	providerName     string
	logger           logger.Logger

	group singleflight.Group

	hits      atomic.Int64
	misses    atomic.Int64
	stale     atomic.Int64
	builds    atomic.Int64
	failures  atomic.Int64
	coalesced atomic.Int64
}

// New creates a Controller over store and provider.
func New(store repository.Store, provider Provider, opts ...Option) (*Controller, error) {
	if store == nil {
		return nil, ErrMissingStore
	}
	if provider == nil {
		return nil, ErrMissingProvider
	}
	c := &Controller{
		store:            store,
		provider:         provider,
		normalizer:       normalize.New(),
		ttl:              DefaultTTL,
		now:              time.Now,
		batchConcurrency: DefaultBatchConcurrency,
		builder:          "controller",
		providerName:     fmt.Sprintf("%T", provider),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named(component)
	}
	return c, nil
}

func (c *Controller) setStatKeys(keys []string) {
	c.statKeys = c.statKeys[:0]
	c.known = make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, dup := c.known[k]; dup {
			continue
		}
		c.known[k] = struct{}{}
		c.statKeys = append(c.statKeys, k)
	}
}

// StatKeys returns the configured stat-key set in configuration order.
func (c *Controller) StatKeys() []string {
	return slices.Clone(c.statKeys)
}

// TTL returns the freshness window.
func (c *Controller) TTL() time.Duration { return c.ttl }

// Versions returns the schema and formatter versions a served snapshot must carry.
func (c *Controller) Versions() (schema, formatter int) {
	return c.normalizer.Versions()
}

// Known reports whether statKey may be requested. With no configured set,
// any non-empty key is accepted.
func (c *Controller) Known(statKey string) bool {
	if statKey == "" {
		return false
	}
	if len(c.known) == 0 {
		return true
	}
	_, ok := c.known[statKey]
	return ok
}

func (c *Controller) checkKey(statKey string) error {
	if !c.Known(statKey) {
		return fmt.Errorf("%w: %q", ErrUnknownStatKey, statKey)
	}
	return nil
}

// GetOrRefresh returns the snapshot for (seasonID, statKey), rebuilding it
// synchronously when it is missing, older than the TTL, or stamped with other
// versions. Concurrent callers on the same key share one rebuild.
func (c *Controller) GetOrRefresh(ctx context.Context, seasonID int, statKey string) (Result, error) {
	if err := c.checkKey(statKey); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	st, state := c.lookup(ctx, seasonID, statKey)
	switch state {
	case stateFresh:
		c.hits.Add(1)
		metrics.RecordSnapshotLookup(metrics.LookupHit)
		c.logger.Debug(ctx, "snapshot cache hit",
			logger.Int("season_id", seasonID),
			logger.String("stat_key", statKey),
			logger.String("etag", st.ETag))
		return Result{Stored: st, Outcome: OutcomeHit}, nil
	case stateStale:
		c.stale.Add(1)
		metrics.RecordSnapshotLookup(metrics.LookupStale)
		if c.revalidator != nil && c.revalidator.Revalidate(ctx, seasonID, statKey) {
			return Result{Stored: st, Outcome: OutcomeStale}, nil
		}
	case stateMismatch:
		c.misses.Add(1)
		metrics.RecordSnapshotLookup(metrics.LookupVersionMismatch)
	default:
		c.misses.Add(1)
		metrics.RecordSnapshotLookup(metrics.LookupMiss)
	}

	st, err := c.build(ctx, seasonID, statKey, false)
	if err != nil {
		return Result{}, err
	}
	return Result{Stored: st, Outcome: OutcomeMiss}, nil
}

// Refresh rebuilds (seasonID, statKey) regardless of age. It joins a rebuild
// already in flight for the key instead of starting a second one.
func (c *Controller) Refresh(ctx context.Context, seasonID int, statKey string) (snapshot.Stored, error) {
	if err := c.checkKey(statKey); err != nil {
		return snapshot.Stored{}, err
	}
	return c.build(ctx, seasonID, statKey, true)
}

// Revalidate rebuilds a key only if it is still not fresh. Background
// workers call it so that coalesced or late jobs do not rebuild twice.
func (c *Controller) Revalidate(ctx context.Context, seasonID int, statKey string) (snapshot.Stored, error) {
	if err := c.checkKey(statKey); err != nil {
		return snapshot.Stored{}, err
	}
	return c.build(ctx, seasonID, statKey, false)
}

// RebuildAll force-rebuilds every given stat key (the configured set when
// none are given) for the season. Each key's outcome is recorded
// independently.
func (c *Controller) RebuildAll(ctx context.Context, seasonID int, statKeys ...string) BatchResult {
	if len(statKeys) == 0 {
		statKeys = c.statKeys
	}
	errs := make([]error, len(statKeys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.batchConcurrency)
	for i, key := range statKeys {
		g.Go(func() error {
			_, errs[i] = c.Refresh(gctx, seasonID, key)
			return nil
		})
	}
	_ = g.Wait()

	res := BatchResult{SeasonID: seasonID, Built: []string{}, Failed: []string{}}
	for i, key := range statKeys {
		metrics.RecordBatchOutcome(errs[i] == nil)
		if errs[i] == nil {
			res.Built = append(res.Built, key)
			continue
		}
		res.Failed = append(res.Failed, key)
		if res.Errors == nil {
			res.Errors = make(map[string]string)
		}
		res.Errors[key] = errs[i].Error()
	}

	c.logger.Info(ctx, "season rebuild finished",
		logger.Int("season_id", seasonID),
		logger.Int("built", len(res.Built)),
		logger.Int("failed", len(res.Failed)))
	return res
}

// GetAll serves every configured stat key of the season, or every stored key
// when no set is configured. Keys whose snapshot cannot be built are listed
// in Missing rather than failing the call.
func (c *Controller) GetAll(ctx context.Context, seasonID int) (SeasonResult, error) {
	if err := ctx.Err(); err != nil {
		return SeasonResult{}, err
	}
	heads, err := c.store.LatestForSeason(ctx, seasonID)
	if err != nil {
		c.logger.Warn(ctx, "season lookup failed, falling back to per-key reads",
			logger.Int("season_id", seasonID),
			logger.Error(err))
		heads = nil
	}

	keys := c.statKeys
	if len(keys) == 0 {
		for k := range heads {
			keys = append(keys, k)
		}
		slices.Sort(keys)
	}

	out := SeasonResult{Leaderboards: make(map[string]snapshot.Stored, len(keys))}
	var (
		mu      sync.Mutex
		missing = make([]bool, len(keys))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.batchConcurrency)
	for i, key := range keys {
		if st, ok := heads[key]; ok && c.classify(st) == stateFresh {
			c.hits.Add(1)
			metrics.RecordSnapshotLookup(metrics.LookupHit)
			mu.Lock()
			out.Leaderboards[key] = st
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			res, err := c.GetOrRefresh(gctx, seasonID, key)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				missing[i] = true
				return nil
			}
			out.Leaderboards[key] = res.Stored
			return nil
		})
	}
	_ = g.Wait()

	out.Missing = []string{}
	for i, key := range keys {
		if missing[i] {
			out.Missing = append(out.Missing, key)
		}
	}
	return out, nil
}

// History returns the stored versions of a key, newest first.
func (c *Controller) History(ctx context.Context, seasonID int, statKey string) ([]snapshot.Stored, error) {
	if err := c.checkKey(statKey); err != nil {
		return nil, err
	}
	return c.store.List(ctx, seasonID, statKey)
}

// Rollback makes the stored version with etag the latest again by deleting
// every newer version. The restored snapshot is still subject to the TTL.
func (c *Controller) Rollback(ctx context.Context, seasonID int, statKey, etag string) (snapshot.Stored, int, error) {
	if err := c.checkKey(statKey); err != nil {
		return snapshot.Stored{}, 0, err
	}
	n, err := c.store.DeleteAfter(ctx, seasonID, statKey, etag)
	if err != nil {
		return snapshot.Stored{}, 0, err
	}
	st, err := c.store.Latest(ctx, seasonID, statKey)
	if err != nil {
		return snapshot.Stored{}, n, err
	}
	c.logger.Info(ctx, "snapshot rolled back",
		logger.Int("season_id", seasonID),
		logger.String("stat_key", statKey),
		logger.String("etag", etag),
		logger.Int("deleted", n))
	return st, n, nil
}

// Stats returns a copy of the running counters.
func (c *Controller) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Stale:     c.stale.Load(),
		Builds:    c.builds.Load(),
		Failures:  c.failures.Load(),
		Coalesced: c.coalesced.Load(),
	}
}

func (c *Controller) lookup(ctx context.Context, seasonID int, statKey string) (snapshot.Stored, lookupState) {
	st, err := c.store.Latest(ctx, seasonID, statKey)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			c.logger.Warn(ctx, "snapshot unreadable, treating as miss",
				logger.Int("season_id", seasonID),
				logger.String("stat_key", statKey),
				logger.Error(err))
		}
		return snapshot.Stored{}, stateMissing
	}
	state := c.classify(st)
	if state == stateMismatch {
		schema, formatter := c.Versions()
		c.logger.Info(ctx, "snapshot version mismatch, treating as miss",
			logger.Int("season_id", seasonID),
			logger.String("stat_key", statKey),
			logger.Error(ErrVersionMismatch),
			logger.Int("stored_schema", st.Snapshot.SchemaVersion),
			logger.Int("stored_formatter", st.Snapshot.FormatterVersion),
			logger.Int("schema", schema),
			logger.Int("formatter", formatter))
	}
	return st, state
}

func (c *Controller) classify(st snapshot.Stored) lookupState {
	if st.Snapshot == nil {
		return stateMissing
	}
	if !st.Snapshot.Matches(c.Versions()) {
		return stateMismatch
	}
	if st.Snapshot.Age(c.now()) < c.ttl {
		return stateFresh
	}
	return stateStale
}

// build runs one rebuild per key at a time. Unless forced, the flight first
// re-reads the store so callers arriving just after a rebuild reuse it. The
// rebuild itself ignores caller cancellation; a caller that gives up only
// stops waiting.
func (c *Controller) build(ctx context.Context, seasonID int, statKey string, force bool) (snapshot.Stored, error) {
	flightKey := strconv.Itoa(seasonID) + "/" + statKey
	ch := c.group.DoChan(flightKey, func() (any, error) {
		bctx := context.WithoutCancel(ctx)
		if !force {
			if st, err := c.store.Latest(bctx, seasonID, statKey); err == nil && c.classify(st) == stateFresh {
				return st, nil
			}
		}
		return c.rebuild(bctx, seasonID, statKey)
	})

	select {
	case <-ctx.Done():
		return snapshot.Stored{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.coalesced.Add(1)
			metrics.RecordBuildCoalesced()
		}
		if res.Err != nil {
			return snapshot.Stored{}, res.Err
		}
		return res.Val.(snapshot.Stored), nil
	}
}

func (c *Controller) rebuild(ctx context.Context, seasonID int, statKey string) (snapshot.Stored, error) {
	start := time.Now()
	c.builds.Add(1)

	raw, err := c.provider.Compute(ctx, seasonID, statKey)
	if err != nil {
		c.fail(ctx, metrics.BuildComputeFailed, start, seasonID, statKey, err)
		return snapshot.Stored{}, fmt.Errorf("%w: %s season %d: %w", ErrBuildFailed, statKey, seasonID, err)
	}
	snap, err := c.normalizer.Normalize(seasonID, statKey, raw)
	if err != nil {
		c.fail(ctx, metrics.BuildInvalidResult, start, seasonID, statKey, err)
		return snapshot.Stored{}, err
	}

	elapsed := time.Since(start)
	manifest := snapshot.BuildManifest{
		BuildID:    uuid.New(),
		SeasonID:   seasonID,
		StatKey:    statKey,
		Builder:    c.builder,
		Provider:   c.providerName,
		BuiltAt:    snap.BuiltAt,
		DurationMS: elapsed.Milliseconds(),
	}
	stored, err := c.store.Save(ctx, snap, manifest)
	if err != nil {
		c.fail(ctx, metrics.BuildStoreFailed, start, seasonID, statKey, err)
		return snapshot.Stored{}, fmt.Errorf("save snapshot %s season %d: %w", statKey, seasonID, err)
	}

	metrics.RecordSnapshotBuild(metrics.BuildSuccess, msSince(start))
	c.logger.Info(ctx, "snapshot rebuilt",
		logger.Int("season_id", seasonID),
		logger.String("stat_key", statKey),
		logger.String("etag", stored.ETag),
		logger.Int("rows", len(snap.Rows)),
		logger.Duration("took", elapsed))
	return stored, nil
}

func (c *Controller) fail(ctx context.Context, status string, start time.Time, seasonID int, statKey string, err error) {
	c.failures.Add(1)
	metrics.RecordSnapshotBuild(status, msSince(start))
	metrics.RecordErrorByComponent(component, status)
	c.logger.Error(ctx, "snapshot build failed",
		logger.Int("season_id", seasonID),
		logger.String("stat_key", statKey),
		logger.String("status", status),
		logger.Error(err))
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
