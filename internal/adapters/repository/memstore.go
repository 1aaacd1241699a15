package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/boxboard/internal/domain/snapshot"
	"github.com/okian/boxboard/pkg/logger"
	"github.com/okian/boxboard/pkg/metrics"
)

const memoryDriver = "memory"

// record is one stored snapshot kept in canonical encoded form so readers
// always get their own decoded copy.
type record struct {
	id       uuid.UUID
	etag     string
	payload  []byte
	manifest snapshot.BuildManifest
	builtAt  time.Time
}

// MemoryStore is an in-process Store. It is constructed once and injected;
// tests build a fresh one each.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[snapshot.Key][]record // newest first
	total     int
	retention int
	closed    bool
	logger    logger.Logger
}

// NewMemoryStore creates an empty in-memory snapshot store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := newOptions("store.memory", opts)
	return &MemoryStore{
		records:   make(map[snapshot.Key][]record),
		retention: o.retention,
		logger:    o.logger,
	}
}

func (m *MemoryStore) Save(ctx context.Context, s *snapshot.Snapshot, manifest snapshot.BuildManifest) (snapshot.Stored, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOpLatency(memoryDriver, "save", sinceMs(start)) }()

	if err := ctx.Err(); err != nil {
		return snapshot.Stored{}, err
	}
	if err := snapshot.Validate(s); err != nil {
		return snapshot.Stored{}, err
	}
	payload, etag, err := snapshot.EncodeWithETag(s)
	if err != nil {
		return snapshot.Stored{}, err
	}
	rec := record{
		id:       uuid.New(),
		etag:     etag,
		payload:  payload,
		manifest: manifest,
		builtAt:  s.BuiltAt,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return snapshot.Stored{}, ErrClosed
	}
	key := s.Key()
	list := append([]record{rec}, m.records[key]...)
	sort.SliceStable(list, func(i, j int) bool { return list[i].builtAt.After(list[j].builtAt) })
	pruned := 0
	if len(list) > m.retention {
		pruned = len(list) - m.retention
		list = list[:m.retention:m.retention]
	}
	m.records[key] = list
	m.total += 1 - pruned
	total := m.total
	m.mu.Unlock()

	metrics.UpdateSnapshotsStored(total)
	if pruned > 0 {
		metrics.RecordSnapshotsPruned(pruned)
		m.logger.Info(ctx, "pruned snapshots",
			logger.Int("season_id", key.SeasonID),
			logger.String("stat_key", key.StatKey),
			logger.Int("pruned", pruned),
			logger.Int("retention", m.retention))
	}
	return rec.stored()
}

func (m *MemoryStore) Latest(ctx context.Context, seasonID int, statKey string) (snapshot.Stored, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOpLatency(memoryDriver, "latest", sinceMs(start)) }()

	if err := ctx.Err(); err != nil {
		return snapshot.Stored{}, err
	}
	if statKey == "" {
		return snapshot.Stored{}, ErrInvalidKey
	}
	m.mu.RLock()
	list := m.records[snapshot.Key{SeasonID: seasonID, StatKey: statKey}]
	var rec record
	found := len(list) > 0
	if found {
		rec = list[0]
	}
	m.mu.RUnlock()
	if !found {
		return snapshot.Stored{}, ErrNotFound
	}
	return rec.stored()
}

func (m *MemoryStore) List(ctx context.Context, seasonID int, statKey string) ([]snapshot.Stored, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	list := append([]record(nil), m.records[snapshot.Key{SeasonID: seasonID, StatKey: statKey}]...)
	m.mu.RUnlock()

	out := make([]snapshot.Stored, 0, len(list))
	for _, rec := range list {
		st, err := rec.stored()
		if err != nil {
			m.logger.Warn(ctx, "skipping unreadable snapshot", logger.String("etag", rec.etag), logger.Error(err))
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

func (m *MemoryStore) LatestForSeason(ctx context.Context, seasonID int) (map[string]snapshot.Stored, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	heads := make([]record, 0)
	for key, list := range m.records {
		if key.SeasonID == seasonID && len(list) > 0 {
			heads = append(heads, list[0])
		}
	}
	m.mu.RUnlock()

	out := make(map[string]snapshot.Stored, len(heads))
	for _, rec := range heads {
		st, err := rec.stored()
		if err != nil {
			continue
		}
		out[st.Snapshot.StatKey] = st
	}
	return out, nil
}

func (m *MemoryStore) DeleteAfter(ctx context.Context, seasonID int, statKey, etag string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	key := snapshot.Key{SeasonID: seasonID, StatKey: statKey}

	m.mu.Lock()
	list := m.records[key]
	idx := -1
	for i, rec := range list {
		if rec.etag == etag {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return 0, fmt.Errorf("%w: etag %s for %d/%s", ErrNotFound, etag, seasonID, statKey)
	}
	m.records[key] = append([]record(nil), list[idx:]...)
	m.total -= idx
	total := m.total
	m.mu.Unlock()

	metrics.UpdateSnapshotsStored(total)
	metrics.RecordSnapshotsPruned(idx)
	if idx > 0 {
		m.logger.Info(ctx, "rolled back snapshots",
			logger.Int("season_id", seasonID),
			logger.String("stat_key", statKey),
			logger.String("etag", etag),
			logger.Int("deleted", idx))
	}
	return idx, nil
}

// Close drops every stored snapshot; later calls fail with ErrClosed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.records = make(map[snapshot.Key][]record)
	m.total = 0
	return nil
}

// Count returns how many snapshots are held across all keys.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.total
}

func (r record) stored() (snapshot.Stored, error) {
	s, err := snapshot.Decode(r.payload)
	if err != nil {
		return snapshot.Stored{}, fmt.Errorf("%w: %v", ErrDecodeSnapshot, err)
	}
	return snapshot.Stored{ID: r.id, ETag: r.etag, Snapshot: s, Manifest: r.manifest}, nil
}

func sinceMs(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
