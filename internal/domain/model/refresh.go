// Package model contains domain models passed between layers.
package model

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Reasons a refresh job was queued.
const (
	ReasonStale  = "stale"
	ReasonManual = "manual"
	ReasonWarm   = "warm"
)

// RefreshJob asks the worker pool to rebuild one leaderboard snapshot in the
// background.
type RefreshJob struct {
	ID         uuid.UUID
	SeasonID   int
	StatKey    string
	Reason     string
	EnqueuedAt time.Time
}

// NewRefreshJob creates a job for (seasonID, statKey) stamped with now.
func NewRefreshJob(seasonID int, statKey, reason string, now time.Time) RefreshJob {
	return RefreshJob{
		ID:         uuid.New(),
		SeasonID:   seasonID,
		StatKey:    statKey,
		Reason:     reason,
		EnqueuedAt: now,
	}
}

// Key identifies the cache slot the job refreshes; jobs with equal keys are
// interchangeable.
func (j RefreshJob) Key() string {
	return strconv.Itoa(j.SeasonID) + "/" + j.StatKey
}

// Wait returns how long the job has been queued at now.
func (j RefreshJob) Wait(now time.Time) time.Duration {
	if j.EnqueuedAt.IsZero() {
		return 0
	}
	return now.Sub(j.EnqueuedAt)
}

// Forced reports whether the job rebuilds regardless of the snapshot's age.
// Only stale revalidations may be skipped when the key became fresh.
func (j RefreshJob) Forced() bool {
	return j.Reason != ReasonStale
}
