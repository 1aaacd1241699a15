// Package progress tracks background season rebuilds so callers that queued
// one can follow it to completion.
package progress

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// Messages of a season's progress record.
const (
	MessageIdle     = "Idle"
	MessageQueued   = "Queued"
	MessageComplete = "Complete"
)

// Progress is the state of the latest background rebuild of a season.
type Progress struct {
	SeasonID  int               `json:"season_id"`
	Total     int               `json:"total"`
	Built     []string          `json:"built"`
	Failed    []string          `json:"failed"`
	Errors    map[string]string `json:"errors,omitempty"`
	Percent   int               `json:"percent"`
	Message   string            `json:"message"`
	Done      bool              `json:"done"`
	LastError string            `json:"last_error,omitempty"`
	StartedAt time.Time         `json:"started_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type run struct {
	p       Progress
	pending map[string]struct{}
}

// Tracker keeps one progress record per season. Starting a rebuild replaces
// the season's previous record.
type Tracker struct {
	mu      sync.Mutex
	seasons map[int]*run
	now     func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		seasons: make(map[int]*run),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Begin starts tracking a rebuild of statKeys. Duplicate keys count once.
func (t *Tracker) Begin(seasonID int, statKeys []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	r := &run{
		p: Progress{
			SeasonID:  seasonID,
			Built:     []string{},
			Failed:    []string{},
			Message:   MessageQueued,
			StartedAt: now,
			UpdatedAt: now,
		},
		pending: make(map[string]struct{}, len(statKeys)),
	}
	for _, k := range statKeys {
		r.pending[k] = struct{}{}
	}
	r.p.Total = len(r.pending)
	if r.p.Total == 0 {
		r.p.Percent, r.p.Message, r.p.Done = 100, MessageComplete, true
	}
	t.seasons[seasonID] = r
}

// Record marks statKey finished. Keys that are not part of the season's
// running rebuild are ignored, so plain stale revalidations do not count.
func (t *Tracker) Record(seasonID int, statKey string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.seasons[seasonID]
	if !ok {
		return
	}
	if _, pending := r.pending[statKey]; !pending {
		return
	}
	delete(r.pending, statKey)

	p := &r.p
	if err != nil {
		p.Failed = append(p.Failed, statKey)
		if p.Errors == nil {
			p.Errors = make(map[string]string)
		}
		p.Errors[statKey] = err.Error()
		p.LastError = err.Error()
	} else {
		p.Built = append(p.Built, statKey)
	}

	finished := len(p.Built) + len(p.Failed)
	p.Percent = finished * 100 / p.Total
	p.UpdatedAt = t.now()
	switch {
	case len(r.pending) > 0 && err != nil:
		p.Message = fmt.Sprintf("Failed on %s (%d/%d)", statKey, finished, p.Total)
	case len(r.pending) > 0:
		p.Message = fmt.Sprintf("Built %s (%d/%d)", statKey, finished, p.Total)
	case len(p.Failed) > 0:
		p.Done = true
		p.Message = fmt.Sprintf("Complete with %d failed", len(p.Failed))
	default:
		p.Done = true
		p.Message = MessageComplete
	}
}

// Get returns a copy of the season's record, or an idle one when no rebuild
// was queued.
func (t *Tracker) Get(seasonID int) Progress {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, ok := t.seasons[seasonID]
	if !ok {
		return Progress{SeasonID: seasonID, Built: []string{}, Failed: []string{}, Message: MessageIdle}
	}
	p := r.p
	p.Built = slices.Clone(p.Built)
	p.Failed = slices.Clone(p.Failed)
	if p.Errors != nil {
		errs := make(map[string]string, len(p.Errors))
		for k, v := range p.Errors {
			errs[k] = v
		}
		p.Errors = errs
	}
	return p
}
