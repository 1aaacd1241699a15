// Package normalize turns raw compute results into canonical snapshots.
package normalize

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/okian/boxboard/internal/domain/snapshot"
	"github.com/okian/boxboard/internal/domain/value"
)

// Normalizer builds snapshots stamped with its contract versions.
type Normalizer struct {
	schemaVersion    int
	formatterVersion int
	now              func() time.Time
}

// New creates a Normalizer with the default versions and the wall clock.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		schemaVersion:    snapshot.DefaultSchemaVersion,
		formatterVersion: snapshot.DefaultFormatterVersion,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Versions returns the schema and formatter versions stamped on snapshots.
func (n *Normalizer) Versions() (schema, formatter int) {
	return n.schemaVersion, n.formatterVersion
}

// Normalize converts raw into a Snapshot for (seasonID, statKey). It fails
// with ErrInvalidComputeResult when raw has neither columns nor rows nor
// practice sections; an empty but well-formed result yields a zero-row
// snapshot.
func (n *Normalizer) Normalize(seasonID int, statKey string, raw *ComputeResult) (*snapshot.Snapshot, error) {
	if statKey == "" {
		return nil, fmt.Errorf("%w: empty stat key", ErrInvalidComputeResult)
	}
	if raw.empty() && (raw == nil || raw.Practice == nil) {
		return nil, fmt.Errorf("%w: no columns and no rows for %s", ErrInvalidComputeResult, statKey)
	}

	tableID := raw.TableID
	if tableID == "" {
		tableID = "leaderboard-" + statKey
	}
	primary := normalizeTable(raw, tableID)

	s := &snapshot.Snapshot{
		SchemaVersion:    n.schemaVersion,
		FormatterVersion: n.formatterVersion,
		SeasonID:         seasonID,
		StatKey:          statKey,
		BuiltAt:          snapshot.TruncateTime(n.now()),
		TableID:          tableID,
		Variant:          raw.Variant,
		Columns:          primary.Columns,
		Rows:             primary.Rows,
		Totals:           primary.Totals,
		DefaultSort:      primary.DefaultSort,
	}
	if !raw.Aux.empty() {
		auxID := raw.Aux.TableID
		if auxID == "" {
			auxID = tableID + "-aux"
		}
		aux := normalizeTable(raw.Aux, auxID)
		s.AuxTable = &aux
	}
	if raw.Practice != nil {
		s.Practice = normalizePractice(raw.Practice, tableID)
	}
	return s, nil
}

func normalizeTable(raw *ComputeResult, tableID string) snapshot.Table {
	cols := mergeColumns(raw.Columns, raw.Manifest)
	if len(cols) == 0 {
		cols = deriveColumns(raw.Rows)
	}
	positional := positionalKeys(raw, cols)

	rows := make([]adapted, 0, len(raw.Rows))
	for _, r := range raw.Rows {
		if r == nil {
			continue
		}
		rows = append(rows, adapt(r, cols, positional))
	}
	var totals *adapted
	if raw.Totals != nil {
		t := adapt(raw.Totals, cols, positional)
		totals = &t
	}

	for i := range cols {
		if cols[i].Label == "" {
			cols[i].Label = cols[i].Key
		}
		if !cols[i].Format.Valid() {
			cols[i].Format = value.InferFormat(samples(rows, cols[i].Key))
		}
	}

	t := snapshot.Table{
		TableID:     tableID,
		Columns:     cols,
		Rows:        make([]snapshot.Row, 0, len(rows)),
		DefaultSort: defaultSort(raw.DefaultSort, cols),
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, snapshot.Row{
			Rank:    r.rank,
			Display: cloneStrings(r.display),
			Metrics: metrics(r, cols),
		})
	}
	if totals != nil {
		label := raw.TotalsLabel
		if label == "" {
			label = totals.display["label"]
		}
		if label == "" {
			label = snapshot.DefaultTotalsLabel
		}
		t.Totals = &snapshot.Totals{
			Label:   label,
			Display: cloneStrings(totals.display),
			Metrics: metrics(*totals, cols),
		}
	}
	return t
}

func normalizePractice(p *Practice, tableID string) *snapshot.PracticeSections {
	out := &snapshot.PracticeSections{AsOfNote: p.AsOfNote, AsOfDate: p.AsOfDate}
	convert := func(list []PracticeSection, prefix string) []snapshot.PracticeSection {
		secs := make([]snapshot.PracticeSection, 0, len(list))
		for i, sec := range list {
			key := sec.Key
			if key == "" {
				key = prefix + strconv.Itoa(i)
			}
			ps := snapshot.PracticeSection{Key: key, Title: sec.Title, EmptyMessage: sec.EmptyMessage}
			if !sec.Table.empty() {
				id := sec.Table.TableID
				if id == "" {
					id = tableID + "-" + key
				}
				t := normalizeTable(sec.Table, id)
				ps.Table = &t
			}
			secs = append(secs, ps)
		}
		return secs
	}
	out.Main = convert(p.Main, "main-")
	if len(p.Aux) > 0 {
		out.Aux = convert(p.Aux, "aux-")
	}
	return out
}

// metrics builds a Metric for every column. An existing typed Raw is kept;
// otherwise Raw comes from the value_key source, then from a non-string
// scalar, then from the text. Text that is empty or was synthesized from a
// scalar is rendered from Raw in the column's format.
func metrics(r adapted, cols []snapshot.Column) map[string]snapshot.Metric {
	out := make(map[string]snapshot.Metric, len(cols))
	for _, c := range cols {
		ce := r.cells[c.Key]
		m := snapshot.Metric{Text: ce.text}
		if ce.metric != nil && ce.metric.Raw != nil {
			raw := *ce.metric.Raw
			m.Raw = &raw
		}
		if m.Raw == nil && ce.source != nil {
			if v, ok := value.Coerce(ce.source, c.Format); ok {
				m.Raw = &v
			}
		}
		if m.Raw == nil && ce.scalar != nil {
			if v, ok := value.Coerce(ce.scalar, c.Format); ok {
				m.Raw = &v
			}
		}
		if m.Raw == nil {
			if v, ok := value.Parse(ce.text, c.Format); ok {
				m.Raw = &v
			}
		}
		if m.Raw != nil && (m.Text == "" || ce.scalar != nil) {
			m.Text = value.Display(*m.Raw, c.Format)
		}
		out[c.Key] = m
	}
	return out
}

// mergeColumns orders by manifest when present, with definition metadata
// overriding the manifest's. Definitions missing from the manifest are
// appended in their own order.
func mergeColumns(defs, manifest []snapshot.Column) []snapshot.Column {
	defs = dedupeColumns(defs)
	manifest = dedupeColumns(manifest)
	if len(manifest) == 0 {
		return defs
	}
	byKey := make(map[string]snapshot.Column, len(defs))
	for _, d := range defs {
		byKey[d.Key] = d
	}
	out := make([]snapshot.Column, 0, len(manifest)+len(defs))
	used := make(map[string]struct{}, len(manifest))
	for _, m := range manifest {
		if d, ok := byKey[m.Key]; ok {
			m = Overlay(m, d)
		}
		used[m.Key] = struct{}{}
		out = append(out, m)
	}
	for _, d := range defs {
		if _, ok := used[d.Key]; !ok {
			out = append(out, d)
		}
	}
	return out
}

// Overlay copies every field set on top onto base.
func Overlay(base, top snapshot.Column) snapshot.Column {
	if top.Label != "" {
		base.Label = top.Label
	}
	if top.Align != "" {
		base.Align = top.Align
	}
	if top.Group != "" {
		base.Group = top.Group
	}
	if top.ValueKey != "" {
		base.ValueKey = top.ValueKey
	}
	if top.Sortable != nil {
		s := *top.Sortable
		base.Sortable = &s
	}
	if top.Format != "" {
		base.Format = top.Format
	}
	if top.Width != "" {
		base.Width = top.Width
	}
	return base
}

func dedupeColumns(cols []snapshot.Column) []snapshot.Column {
	out := make([]snapshot.Column, 0, len(cols))
	seen := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		if c.Key == "" {
			continue
		}
		if _, dup := seen[c.Key]; dup {
			continue
		}
		seen[c.Key] = struct{}{}
		if c.Sortable != nil {
			s := *c.Sortable
			c.Sortable = &s
		}
		out = append(out, c)
	}
	return out
}

// deriveColumns invents columns from row keys when the result carries rows
// but no column list.
func deriveColumns(rows []RawRow) []snapshot.Column {
	keys := map[string]struct{}{}
	width := 0
	for _, r := range rows {
		switch x := r.(type) {
		case KeyedRow:
			for k := range x.Values {
				keys[k] = struct{}{}
			}
		case *KeyedRow:
			for k := range x.Values {
				keys[k] = struct{}{}
			}
		case RichRow:
			for k := range x.Metrics {
				keys[k] = struct{}{}
			}
		case *RichRow:
			for k := range x.Metrics {
				keys[k] = struct{}{}
			}
		case PositionalRow:
			width = max(width, len(x.Values))
		case *PositionalRow:
			width = max(width, len(x.Values))
		}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	for i := 0; i < width; i++ {
		k := "col_" + strconv.Itoa(i+1)
		if _, ok := keys[k]; !ok {
			sorted = append(sorted, k)
		}
	}
	cols := make([]snapshot.Column, 0, len(sorted))
	for _, k := range sorted {
		cols = append(cols, snapshot.Column{Key: k})
	}
	return cols
}

// positionalKeys is the key order positional values align with: the
// definitions when given, else the merged columns.
func positionalKeys(raw *ComputeResult, merged []snapshot.Column) []string {
	src := dedupeColumns(raw.Columns)
	if len(src) == 0 {
		src = merged
	}
	keys := make([]string, len(src))
	for i, c := range src {
		keys[i] = c.Key
	}
	return keys
}

func samples(rows []adapted, key string) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if t := r.cells[key].text; t != "" {
			out = append(out, t)
		}
	}
	return out
}

// defaultSort drops entries naming unknown columns and defaults the
// direction to ascending.
func defaultSort(keys []snapshot.SortKey, cols []snapshot.Column) []snapshot.SortKey {
	if len(keys) == 0 {
		return nil
	}
	known := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		known[c.Key] = struct{}{}
	}
	out := make([]snapshot.SortKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := known[k.Column]; !ok {
			continue
		}
		if !k.Direction.Valid() {
			k.Direction = snapshot.Asc
		}
		out = append(out, k)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func cloneStrings(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}
