// Package table turns snapshots into render models with grouped headers and
// client-visible sorting.
package table

import (
	"time"

	"github.com/okian/boxboard/internal/domain/normalize"
	"github.com/okian/boxboard/internal/domain/snapshot"
	"github.com/okian/boxboard/pkg/metrics"
)

// DefaultEmptyMessage is shown for tables and practice sections without rows
// when they supply no message of their own.
const DefaultEmptyMessage = "No data available."

// Table is the render model of one table. Rows are shared with the snapshot
// and never modified; sorting only reorders the view.
type Table struct {
	ID      string
	Columns []snapshot.Column

	rows   []snapshot.Row
	order  []int
	totals *snapshot.Totals
	index  map[string]int

	activeKey string
	activeDir snapshot.Direction
}

// Model is the render model of a whole snapshot.
type Model struct {
	SeasonID int
	StatKey  string
	Variant  string
	BuiltAt  time.Time

	Main     *Table
	Aux      *Table
	Practice *Practice
}

// Practice is the render model of practice sections.
type Practice struct {
	Main     []Section
	Aux      []Section
	AsOfNote string
	AsOfDate string
}

// Section renders either its table or its empty message; AsOf decorates the
// section header.
type Section struct {
	Key          string
	Title        string
	AsOf         string
	Table        *Table
	EmptyMessage string
}

// Build creates the render model of s. Local column definitions are joined
// by key: they win on metadata, the snapshot's manifest wins on order, and
// local columns the manifest does not list are ignored.
func Build(s *snapshot.Snapshot, local []snapshot.Column) (*Model, error) {
	if s == nil || (len(s.Columns) == 0 && s.Practice == nil) {
		metrics.RecordTableRenderError()
		return nil, ErrNoData
	}

	m := &Model{
		SeasonID: s.SeasonID,
		StatKey:  s.StatKey,
		Variant:  s.Variant,
		BuiltAt:  s.BuiltAt,
	}
	if len(s.Columns) > 0 {
		m.Main = newTable(s.TableID, s.Columns, s.Rows, s.Totals, s.DefaultSort, local)
	}
	if s.AuxTable != nil && len(s.AuxTable.Columns) > 0 {
		m.Aux = newTable(s.AuxTable.TableID, s.AuxTable.Columns, s.AuxTable.Rows, s.AuxTable.Totals, s.AuxTable.DefaultSort, local)
	}
	if s.Practice != nil {
		m.Practice = buildPractice(s.Practice, local)
	}
	return m, nil
}

// Sort sorts the main table. See Table.Sort.
func (m *Model) Sort(key string, dir snapshot.Direction) error {
	if m.Main == nil {
		return ErrNoData
	}
	return m.Main.Sort(key, dir)
}

func newTable(id string, manifest []snapshot.Column, rows []snapshot.Row, totals *snapshot.Totals, defaults []snapshot.SortKey, local []snapshot.Column) *Table {
	t := &Table{
		ID:      id,
		Columns: mergeLocal(manifest, local),
		rows:    rows,
		totals:  totals,
	}
	t.index = make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		t.index[c.Key] = i
	}
	t.order = identity(len(rows))
	t.applyDefaults(defaults)
	return t
}

// applyDefaults sorts by the first usable default_sort entry; the usable
// entries after it break ties in order. Unknown or unsortable columns are
// skipped.
func (t *Table) applyDefaults(defaults []snapshot.SortKey) {
	keys := make([]snapshot.SortKey, 0, len(defaults))
	for _, sk := range defaults {
		if c, ok := t.Column(sk.Column); !ok || !c.IsSortable() {
			continue
		}
		if !sk.Direction.Valid() {
			sk.Direction = snapshot.Asc
		}
		keys = append(keys, sk)
	}
	if len(keys) == 0 {
		return
	}
	_ = t.sortBy(keys[0].Column, keys[0].Direction, keys[1:]...)
}

func mergeLocal(manifest, local []snapshot.Column) []snapshot.Column {
	byKey := make(map[string]snapshot.Column, len(local))
	for _, c := range local {
		byKey[c.Key] = c
	}
	out := make([]snapshot.Column, len(manifest))
	for i, c := range manifest {
		if l, ok := byKey[c.Key]; ok {
			c = normalize.Overlay(c, l)
		}
		if c.Label == "" {
			c.Label = c.Key
		}
		out[i] = c
	}
	return out
}

func buildPractice(p *snapshot.PracticeSections, local []snapshot.Column) *Practice {
	out := &Practice{AsOfNote: p.AsOfNote, AsOfDate: p.AsOfDate}
	convert := func(in []snapshot.PracticeSection) []Section {
		secs := make([]Section, 0, len(in))
		for _, sec := range in {
			s := Section{
				Key:          sec.Key,
				Title:        sec.Title,
				AsOf:         asOf(p.AsOfNote, p.AsOfDate),
				EmptyMessage: sec.EmptyMessage,
			}
			if sec.Table.HasData() && len(sec.Table.Columns) > 0 {
				s.Table = newTable(sec.Table.TableID, sec.Table.Columns, sec.Table.Rows, sec.Table.Totals, sec.Table.DefaultSort, local)
			}
			if s.EmptyMessage == "" {
				s.EmptyMessage = DefaultEmptyMessage
			}
			secs = append(secs, s)
		}
		return secs
	}
	out.Main = convert(p.Main)
	out.Aux = convert(p.Aux)
	return out
}

func asOf(note, date string) string {
	switch {
	case note != "":
		return note
	case date != "":
		return "As of " + date
	default:
		return ""
	}
}

// Len is the number of body rows.
func (t *Table) Len() int { return len(t.order) }

// Empty reports whether the table has no body rows.
func (t *Table) Empty() bool { return len(t.order) == 0 }

// Rows returns the body rows in current display order.
func (t *Table) Rows() []snapshot.Row {
	out := make([]snapshot.Row, len(t.order))
	for i, idx := range t.order {
		out[i] = t.rows[idx]
	}
	return out
}

// Totals returns the totals row, which always renders last.
func (t *Table) Totals() *snapshot.Totals { return t.totals }

// Active returns the active sort column and direction, if any.
func (t *Table) Active() (string, snapshot.Direction, bool) {
	return t.activeKey, t.activeDir, t.activeKey != ""
}

// Column returns the column with key.
func (t *Table) Column(key string) (snapshot.Column, bool) {
	i, ok := t.index[key]
	if !ok {
		return snapshot.Column{}, false
	}
	return t.Columns[i], true
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
