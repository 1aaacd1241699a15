// Package dedupe coalesces background refresh requests per cache key.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const defaultMaxSize = 10000

// Result of a Mark call.
type Result int

const (
	// Marked means the caller now owns the pending slot and must Clear it.
	Marked Result = iota
	// AlreadyPending means a refresh for the key is already queued or running.
	AlreadyPending
	// Full means the tracker is at capacity and the key was not recorded.
	Full
)

// Deduper tracks which keys have a refresh pending so that bursts of stale
// reads queue at most one job per key.
type Deduper interface {
	// Mark atomically records key as pending unless it already is.
	Mark(ctx context.Context, key string) Result

	// Clear releases key once its refresh finished or could not be queued.
	Clear(ctx context.Context, key string)

	// Pending reports whether key is currently marked.
	Pending(ctx context.Context, key string) bool

	Size() int64
}

type inMemoryDeduper struct {
	mu      sync.Mutex
	pending map[string]time.Time // key -> marked at
	maxSize int                  // <= 0 means unbounded
	size    atomic.Int64
	now     func() time.Time
}

// NewInMemoryDeduper creates an in-process deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		pending: make(map[string]time.Time),
		maxSize: defaultMaxSize,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) Mark(_ context.Context, key string) Result {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.pending[key]; ok {
		return AlreadyPending
	}
	if d.maxSize > 0 && len(d.pending) >= d.maxSize {
		return Full
	}
	d.pending[key] = d.now()
	d.size.Add(1)
	return Marked
}

func (d *inMemoryDeduper) Clear(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.pending[key]; ok {
		delete(d.pending, key)
		d.size.Add(-1)
	}
}

func (d *inMemoryDeduper) Pending(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// Size returns the number of pending keys.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
