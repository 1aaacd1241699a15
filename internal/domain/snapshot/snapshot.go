// Package snapshot defines the persisted leaderboard payload and its
// canonical encoding.
package snapshot

import (
	"time"

	"github.com/google/uuid"

	"github.com/okian/boxboard/internal/domain/value"
)

// Default versions of the payload contract. Bumping either invalidates every
// stored snapshot.
const (
	DefaultSchemaVersion    = 1
	DefaultFormatterVersion = 1

	DefaultTotalsLabel = "Totals"
)

// Alignment of a column's cells.
const (
	AlignLeft   = "left"
	AlignRight  = "right"
	AlignCenter = "center"
)

// Direction of a sort key.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Valid reports whether d is asc or desc.
func (d Direction) Valid() bool { return d == Asc || d == Desc }

// Column describes one column of a table. Key is unique within a table.
type Column struct {
	Key      string       `json:"key"`
	Label    string       `json:"label"`
	Align    string       `json:"align,omitempty"`
	Group    string       `json:"group,omitempty"`
	ValueKey string       `json:"value_key,omitempty"`
	Sortable *bool        `json:"sortable,omitempty"`
	Format   value.Format `json:"format,omitempty"`
	Width    string       `json:"width,omitempty"`
}

// IsSortable reports whether the column can be sorted; unset means true.
func (c Column) IsSortable() bool {
	return c.Sortable == nil || *c.Sortable
}

// Bool returns a pointer to b, for Column.Sortable.
func Bool(b bool) *bool { return &b }

// Metric is one cell: the display text plus the typed sortable value.
// Raw is nil when the cell has no usable value.
type Metric struct {
	Text string       `json:"text"`
	Raw  *value.Value `json:"raw"`
}

// Empty reports whether the cell has no typed value.
func (m Metric) Empty() bool { return m.Raw == nil }

// Row is one body row.
type Row struct {
	Rank    string            `json:"rank,omitempty"`
	Display map[string]string `json:"display,omitempty"`
	Metrics map[string]Metric `json:"metrics"`
}

// Totals is the aggregate row of a table, keyed to the table's columns.
type Totals struct {
	Label   string            `json:"label"`
	Display map[string]string `json:"display,omitempty"`
	Metrics map[string]Metric `json:"metrics"`
}

// SortKey is one (column, direction) entry of a default sort.
type SortKey struct {
	Column    string    `json:"column"`
	Direction Direction `json:"direction"`
}

// Table is the shape shared by the auxiliary table and practice section
// tables.
type Table struct {
	TableID     string    `json:"table_id,omitempty"`
	Columns     []Column  `json:"columns_manifest"`
	Rows        []Row     `json:"rows"`
	Totals      *Totals   `json:"totals,omitempty"`
	DefaultSort []SortKey `json:"default_sort,omitempty"`
}

// HasData reports whether the table has at least one body row.
func (t *Table) HasData() bool { return t != nil && len(t.Rows) > 0 }

// PracticeSection is a named block rendered independently; a nil or empty
// Table renders EmptyMessage instead.
type PracticeSection struct {
	Key          string `json:"key"`
	Title        string `json:"title"`
	Table        *Table `json:"table,omitempty"`
	EmptyMessage string `json:"empty_message,omitempty"`
}

// PracticeSections groups practice-derived sections with a shared as-of note.
type PracticeSections struct {
	Main     []PracticeSection `json:"main"`
	Aux      []PracticeSection `json:"aux,omitempty"`
	AsOfNote string            `json:"as_of_note,omitempty"`
	AsOfDate string            `json:"as_of_date,omitempty"`
}

// Snapshot is the immutable, versioned leaderboard payload for one
// (season, stat key) pair.
type Snapshot struct {
	SchemaVersion    int               `json:"schema_version"`
	FormatterVersion int               `json:"formatter_version"`
	SeasonID         int               `json:"season_id"`
	StatKey          string            `json:"stat_key"`
	BuiltAt          time.Time         `json:"built_at"`
	TableID          string            `json:"table_id"`
	Variant          string            `json:"variant,omitempty"`
	Columns          []Column          `json:"columns_manifest"`
	Rows             []Row             `json:"rows"`
	Totals           *Totals           `json:"totals,omitempty"`
	AuxTable         *Table            `json:"aux_table,omitempty"`
	Practice         *PracticeSections `json:"practice,omitempty"`
	DefaultSort      []SortKey         `json:"default_sort,omitempty"`
}

// Key identifies the cache slot of the snapshot.
func (s *Snapshot) Key() Key {
	return Key{SeasonID: s.SeasonID, StatKey: s.StatKey}
}

// HasData reports whether the main table has rows or any practice section
// has data.
func (s *Snapshot) HasData() bool {
	if s == nil {
		return false
	}
	if len(s.Rows) > 0 {
		return true
	}
	if s.Practice != nil {
		for _, list := range [][]PracticeSection{s.Practice.Main, s.Practice.Aux} {
			for _, sec := range list {
				if sec.Table.HasData() {
					return true
				}
			}
		}
	}
	return false
}

// Matches reports whether the snapshot was produced by the given versions.
func (s *Snapshot) Matches(schemaVersion, formatterVersion int) bool {
	return s.SchemaVersion == schemaVersion && s.FormatterVersion == formatterVersion
}

// Age returns how long ago the snapshot was built.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.BuiltAt)
}

// Key is a (season, stat key) cache slot.
type Key struct {
	SeasonID int
	StatKey  string
}

// BuildManifest describes how a stored snapshot was produced. It is stored
// alongside the payload and does not contribute to the etag.
type BuildManifest struct {
	BuildID    uuid.UUID `json:"build_id"`
	SeasonID   int       `json:"season_id"`
	StatKey    string    `json:"stat_key"`
	Builder    string    `json:"builder"`
	Provider   string    `json:"provider"`
	BuiltAt    time.Time `json:"built_at"`
	DurationMS int64     `json:"duration_ms"`
}

// Stored is a persisted snapshot with its store identity.
type Stored struct {
	ID       uuid.UUID     `json:"id"`
	ETag     string        `json:"etag"`
	Snapshot *Snapshot     `json:"snapshot"`
	Manifest BuildManifest `json:"manifest"`
}
