package normalize

import (
	"fmt"
	"strings"

	"github.com/okian/boxboard/internal/domain/snapshot"
	"github.com/okian/boxboard/internal/domain/value"
)

// Accepted spellings for each concept in a loosely-typed compute document.
var (
	columnKeys   = []string{"columns", "column_defs"}
	manifestKeys = []string{"columns_manifest", "manifest"}
	rowKeys      = []string{"rows", "leaderboard", "data"}
	totalsKeys   = []string{"totals", "team_totals"}
	auxKeys      = []string{"aux_table", "aux"}
	practiceKeys = []string{"practice", "sections"}
	sortKeys     = []string{"default_sort", "sort"}
	tableIDKeys  = []string{"table_id", "id"}

	// displayFields are copied from keyed rows into Row.Display.
	displayFields = []string{"player", "name", "number", "team", "label"}
)

// DecodeComputeResult adapts a decoded JSON/YAML document into a
// ComputeResult. Column definitions may live at the top level or under
// "config"; rows may be keyed maps, positional lists, or rich rows carrying
// a "metrics" map.
func DecodeComputeResult(doc map[string]any) (*ComputeResult, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidComputeResult)
	}
	r := &ComputeResult{
		TableID:     str(first(doc, tableIDKeys...)),
		Variant:     str(doc["variant"]),
		TotalsLabel: str(doc["totals_label"]),
	}

	colSrc := first(doc, columnKeys...)
	if colSrc == nil {
		if cfg, isMap := asMap(doc["config"]); isMap {
			colSrc = first(cfg, columnKeys...)
			if r.TableID == "" {
				r.TableID = str(first(cfg, tableIDKeys...))
			}
		}
	}
	var ok bool
	if r.Columns, ok = decodeColumns(colSrc); !ok {
		return nil, fmt.Errorf("%w: columns must be a list", ErrInvalidComputeResult)
	}
	if r.Manifest, ok = decodeColumns(first(doc, manifestKeys...)); !ok {
		return nil, fmt.Errorf("%w: columns manifest must be a list", ErrInvalidComputeResult)
	}

	if src := first(doc, rowKeys...); src != nil {
		list, isList := asList(src)
		if !isList {
			return nil, fmt.Errorf("%w: rows must be a list", ErrInvalidComputeResult)
		}
		for i, item := range list {
			row, ok := decodeRow(item)
			if !ok {
				return nil, fmt.Errorf("%w: row %d has unsupported shape %T", ErrInvalidComputeResult, i, item)
			}
			r.Rows = append(r.Rows, row)
		}
	}

	if src := first(doc, totalsKeys...); src != nil {
		row, ok := decodeRow(src)
		if !ok {
			return nil, fmt.Errorf("%w: totals has unsupported shape %T", ErrInvalidComputeResult, src)
		}
		r.Totals = row
		if r.TotalsLabel == "" {
			if m, isMap := asMap(src); isMap {
				r.TotalsLabel = str(first(m, "label", "player"))
			}
		}
	}

	r.DefaultSort = decodeSort(first(doc, sortKeys...))

	if src := first(doc, auxKeys...); src != nil {
		m, isMap := asMap(src)
		if !isMap {
			return nil, fmt.Errorf("%w: aux table must be a map", ErrInvalidComputeResult)
		}
		aux, err := DecodeComputeResult(m)
		if err != nil {
			return nil, fmt.Errorf("aux table: %w", err)
		}
		r.Aux = aux
	}

	if src := first(doc, practiceKeys...); src != nil {
		p, err := decodePractice(src)
		if err != nil {
			return nil, err
		}
		r.Practice = p
	}
	return r, nil
}

func decodeColumns(src any) ([]snapshot.Column, bool) {
	if src == nil {
		return nil, true
	}
	list, ok := asList(src)
	if !ok {
		return nil, false
	}
	cols := make([]snapshot.Column, 0, len(list))
	for _, item := range list {
		switch x := item.(type) {
		case string:
			cols = append(cols, snapshot.Column{Key: x})
		default:
			m, ok := asMap(item)
			if !ok {
				continue
			}
			c := snapshot.Column{
				Key:      str(first(m, "key", "id")),
				Label:    str(first(m, "label", "title", "name")),
				Align:    strings.ToLower(str(m["align"])),
				Group:    str(first(m, "group", "group_label")),
				ValueKey: str(m["value_key"]),
				Format:   value.Format(strings.ToLower(str(first(m, "format", "type")))),
				Width:    str(m["width"]),
			}
			if b, ok := m["sortable"].(bool); ok {
				c.Sortable = snapshot.Bool(b)
			}
			cols = append(cols, c)
		}
	}
	return cols, true
}

func decodeRow(src any) (RawRow, bool) {
	if list, ok := asList(src); ok {
		return PositionalRow{Values: list}, true
	}
	m, ok := asMap(src)
	if !ok {
		return nil, false
	}
	rank := str(m["rank"])
	display := decodeDisplay(m)

	if metricsSrc, ok := asMap(m["metrics"]); ok {
		row := RichRow{Rank: rank, Display: display, Metrics: make(map[string]snapshot.Metric, len(metricsSrc)), Fields: map[string]any{}}
		for k, v := range metricsSrc {
			row.Metrics[k] = decodeMetric(v)
		}
		if fields, ok := asMap(first(m, "fields", "values")); ok {
			for k, v := range fields {
				row.Fields[k] = v
			}
		}
		for k, v := range m {
			if k == "metrics" || k == "display" || k == "fields" || k == "values" {
				continue
			}
			if _, set := row.Fields[k]; !set {
				row.Fields[k] = v
			}
		}
		return row, true
	}
	if list, ok := asList(m["values"]); ok {
		return PositionalRow{Rank: rank, Display: display, Values: list}, true
	}
	values := make(map[string]any, len(m))
	for k, v := range m {
		if k == "display" {
			continue
		}
		values[k] = v
	}
	return KeyedRow{Rank: rank, Display: display, Values: values}, true
}

func decodeDisplay(m map[string]any) map[string]string {
	out := map[string]string{}
	if d, ok := asMap(m["display"]); ok {
		for k, v := range d {
			if s := stringify(v); s != "" {
				out[k] = s
			}
		}
		return out
	}
	for _, k := range displayFields {
		if s := stringify(m[k]); s != "" {
			out[k] = s
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// decodeMetric accepts {text, raw} maps or a bare scalar. Numeric raws are
// kept; a string raw stands in for missing text and is parsed later.
func decodeMetric(src any) snapshot.Metric {
	m, ok := asMap(src)
	if !ok {
		return snapshot.Metric{Text: stringify(src)}
	}
	out := snapshot.Metric{Text: stringify(first(m, "text", "display"))}
	switch raw := m["raw"].(type) {
	case nil:
	case string:
		if out.Text == "" {
			out.Text = raw
		}
	default:
		if v, ok := value.FromScalar(raw); ok {
			out.Raw = &v
		}
	}
	return out
}

// decodeSort accepts [{column, direction}], [[column, direction]], a single
// map, or a bare column name where a leading "-" means descending.
func decodeSort(src any) []snapshot.SortKey {
	if src == nil {
		return nil
	}
	if s, ok := src.(string); ok {
		return []snapshot.SortKey{sortKey(s, "")}
	}
	if m, ok := asMap(src); ok {
		return []snapshot.SortKey{sortKey(str(first(m, "column", "key")), str(first(m, "direction", "dir", "order")))}
	}
	list, ok := asList(src)
	if !ok {
		return nil
	}
	out := make([]snapshot.SortKey, 0, len(list))
	for _, item := range list {
		switch x := item.(type) {
		case string:
			out = append(out, sortKey(x, ""))
		default:
			if m, ok := asMap(item); ok {
				out = append(out, sortKey(str(first(m, "column", "key")), str(first(m, "direction", "dir", "order"))))
			} else if pair, ok := asList(item); ok && len(pair) > 0 {
				dir := ""
				if len(pair) > 1 {
					dir = str(pair[1])
				}
				out = append(out, sortKey(str(pair[0]), dir))
			}
		}
	}
	return out
}

func sortKey(column, dir string) snapshot.SortKey {
	d := snapshot.Direction(strings.ToLower(strings.TrimSpace(dir)))
	if strings.HasPrefix(column, "-") {
		column = column[1:]
		if d == "" {
			d = snapshot.Desc
		}
	}
	switch d {
	case "descending":
		d = snapshot.Desc
	case "ascending", "":
		d = snapshot.Asc
	}
	return snapshot.SortKey{Column: column, Direction: d}
}

func decodePractice(src any) (*Practice, error) {
	m, ok := asMap(src)
	if !ok {
		return nil, fmt.Errorf("%w: practice must be a map", ErrInvalidComputeResult)
	}
	p := &Practice{
		AsOfNote: str(first(m, "as_of_note", "as_of")),
		AsOfDate: str(m["as_of_date"]),
	}
	var err error
	if p.Main, err = decodeSections(m["main"]); err != nil {
		return nil, err
	}
	if p.Aux, err = decodeSections(m["aux"]); err != nil {
		return nil, err
	}
	return p, nil
}

func decodeSections(src any) ([]PracticeSection, error) {
	if src == nil {
		return nil, nil
	}
	list, ok := asList(src)
	if !ok {
		return nil, fmt.Errorf("%w: practice sections must be a list", ErrInvalidComputeResult)
	}
	out := make([]PracticeSection, 0, len(list))
	for _, item := range list {
		m, ok := asMap(item)
		if !ok {
			continue
		}
		sec := PracticeSection{
			Key:          str(m["key"]),
			Title:        str(first(m, "title", "label")),
			EmptyMessage: str(first(m, "empty_message", "empty")),
		}
		tableSrc, hasTable := asMap(m["table"])
		if !hasTable && (first(m, columnKeys...) != nil || first(m, rowKeys...) != nil) {
			tableSrc, hasTable = m, true
		}
		if hasTable {
			t, err := DecodeComputeResult(tableSrc)
			if err != nil {
				return nil, fmt.Errorf("practice section %q: %w", sec.Key, err)
			}
			sec.Table = t
		}
		out = append(out, sec)
	}
	return out, nil
}

func first(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func asMap(v any) (map[string]any, bool) {
	switch x := v.(type) {
	case map[string]any:
		return x, true
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[stringify(k)] = val
		}
		return out, true
	}
	return nil, false
}

func asList(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []map[string]any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = x[i]
		}
		return out, true
	case []string:
		out := make([]any, len(x))
		for i := range x {
			out[i] = x[i]
		}
		return out, true
	}
	return nil, false
}

func str(v any) string {
	return strings.TrimSpace(stringify(v))
}
