// Package repository persists leaderboard snapshots.
package repository

import (
	"context"

	"github.com/okian/boxboard/internal/domain/snapshot"
)

// DefaultRetention is how many snapshots are kept per (season, stat key).
const DefaultRetention = 3

// Store persists immutable snapshots keyed by (season, stat key).
//
// Writes for the same key are linearized by the implementation. Stored
// snapshots are never mutated; they disappear only through retention pruning
// or DeleteAfter.
type Store interface {
	// Save encodes s canonically, stores it under its etag and prunes the
	// key down to the retention count, oldest built_at first.
	Save(ctx context.Context, s *snapshot.Snapshot, manifest snapshot.BuildManifest) (snapshot.Stored, error)

	// Latest returns the newest snapshot for the key.
	// Returns ErrNotFound when none is stored and ErrDecodeSnapshot when the
	// newest payload cannot be read back.
	Latest(ctx context.Context, seasonID int, statKey string) (snapshot.Stored, error)

	// List returns the stored snapshots for the key, newest first.
	List(ctx context.Context, seasonID int, statKey string) ([]snapshot.Stored, error)

	// LatestForSeason returns the newest readable snapshot per stat key.
	LatestForSeason(ctx context.Context, seasonID int) (map[string]snapshot.Stored, error)

	// DeleteAfter removes every snapshot newer than the one with etag, making
	// it the latest again. Returns the number removed, or ErrNotFound when
	// etag is not stored for the key.
	DeleteAfter(ctx context.Context, seasonID int, statKey, etag string) (int, error)

	Close() error
}
