package normalize

import "github.com/okian/boxboard/internal/domain/snapshot"

// ComputeResult is the un-normalized bundle a compute provider returns.
//
// Columns holds full column definitions; Manifest is an optional abbreviated
// list whose order wins when both are present. Rows may mix any RawRow shape.
type ComputeResult struct {
	TableID     string
	Variant     string
	Columns     []snapshot.Column
	Manifest    []snapshot.Column
	Rows        []RawRow
	Totals      RawRow
	TotalsLabel string
	DefaultSort []snapshot.SortKey
	Aux         *ComputeResult
	Practice    *Practice
}

// empty reports whether the result carries nothing a table can be built from.
func (r *ComputeResult) empty() bool {
	return r == nil || (len(r.Columns) == 0 && len(r.Manifest) == 0 && len(r.Rows) == 0 && r.Totals == nil)
}

// Practice is the raw form of snapshot.PracticeSections.
type Practice struct {
	Main     []PracticeSection
	Aux      []PracticeSection
	AsOfNote string
	AsOfDate string
}

// PracticeSection is one raw practice section; a nil Table renders as empty.
type PracticeSection struct {
	Key          string
	Title        string
	Table        *ComputeResult
	EmptyMessage string
}

// RawRow is one of RichRow, KeyedRow or PositionalRow.
type RawRow interface {
	rawRow()
}

// RichRow already carries a Metric per column. Metrics with a nil Raw get one
// derived from Fields[value_key] or parsed from their text.
type RichRow struct {
	Rank    string
	Display map[string]string
	Metrics map[string]snapshot.Metric
	Fields  map[string]any
}

// KeyedRow carries raw scalars by column key; value_key fields live in the
// same map.
type KeyedRow struct {
	Rank    string
	Display map[string]string
	Values  map[string]any
}

// PositionalRow carries raw scalars aligned with the column definitions (or
// the manifest when no definitions are given).
type PositionalRow struct {
	Rank    string
	Display map[string]string
	Values  []any
}

func (RichRow) rawRow()       {}
func (KeyedRow) rawRow()      {}
func (PositionalRow) rawRow() {}

// cell is a row value reduced to text plus an optional pre-typed source.
type cell struct {
	text   string
	source any
	metric *snapshot.Metric
	// scalar is the non-string value text was synthesized from.
	scalar any
}

// scalarCell holds v as text, keeping non-string scalars for display.
func scalarCell(v any) cell {
	ce := cell{text: stringify(v)}
	switch v.(type) {
	case nil, string:
	default:
		ce.scalar = v
	}
	return ce
}

type adapted struct {
	rank    string
	display map[string]string
	cells   map[string]cell
}

// adapt reduces any row shape to cells keyed by column key. positional lists
// the column keys positional values align with.
func adapt(row RawRow, cols []snapshot.Column, positional []string) adapted {
	switch r := row.(type) {
	case RichRow:
		return adaptRich(r, cols)
	case *RichRow:
		return adaptRich(*r, cols)
	case KeyedRow:
		return adaptKeyed(r, cols)
	case *KeyedRow:
		return adaptKeyed(*r, cols)
	case PositionalRow:
		return adaptPositional(r, cols, positional)
	case *PositionalRow:
		return adaptPositional(*r, cols, positional)
	}
	return adapted{cells: map[string]cell{}}
}

func adaptRich(r RichRow, cols []snapshot.Column) adapted {
	out := adapted{rank: r.Rank, display: r.Display, cells: make(map[string]cell, len(cols))}
	for _, c := range cols {
		var ce cell
		if m, ok := r.Metrics[c.Key]; ok {
			ce.text = m.Text
			ce.metric = &m
		} else if v, ok := r.Fields[c.Key]; ok {
			ce = scalarCell(v)
		}
		if c.ValueKey != "" {
			if v, ok := r.Fields[c.ValueKey]; ok {
				ce.source = v
			}
		}
		out.cells[c.Key] = ce
	}
	return out
}

func adaptKeyed(r KeyedRow, cols []snapshot.Column) adapted {
	out := adapted{rank: r.Rank, display: r.Display, cells: make(map[string]cell, len(cols))}
	for _, c := range cols {
		var ce cell
		if v, ok := r.Values[c.Key]; ok {
			ce = scalarCell(v)
		}
		if c.ValueKey != "" {
			if v, ok := r.Values[c.ValueKey]; ok && v != nil {
				ce.source = v
			}
		}
		out.cells[c.Key] = ce
	}
	return out
}

func adaptPositional(r PositionalRow, cols []snapshot.Column, positional []string) adapted {
	byKey := make(map[string]any, len(positional))
	for i, key := range positional {
		if i < len(r.Values) {
			byKey[key] = r.Values[i]
		}
	}
	return adaptKeyed(KeyedRow{Rank: r.Rank, Display: r.Display, Values: byKey}, cols)
}
