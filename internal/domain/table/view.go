package table

import (
	"time"

	"github.com/okian/boxboard/internal/domain/snapshot"
)

// HeaderCell is one header cell. Group cells have no Key and span their
// member columns; ungrouped columns span both header rows when groups exist.
type HeaderCell struct {
	Key      string             `json:"key,omitempty"`
	Label    string             `json:"label"`
	ColSpan  int                `json:"colspan"`
	RowSpan  int                `json:"rowspan"`
	Align    string             `json:"align,omitempty"`
	Width    string             `json:"width,omitempty"`
	Sortable bool               `json:"sortable"`
	Group    bool               `json:"group,omitempty"`
	Sort     snapshot.Direction `json:"sort,omitempty"`
}

// Cell is one rendered body or totals cell.
type Cell struct {
	Key   string `json:"key"`
	Text  string `json:"text"`
	Align string `json:"align,omitempty"`
	Empty bool   `json:"empty,omitempty"`
}

// RowView is one rendered row. Label leads the row: the player for body
// rows, the totals label for totals.
type RowView struct {
	Rank    string            `json:"rank,omitempty"`
	Display map[string]string `json:"display,omitempty"`
	Label   string            `json:"label,omitempty"`
	Cells   []Cell            `json:"cells"`
}

// TableView is the serializable form of a Table in display order.
type TableView struct {
	ID           string            `json:"table_id"`
	Labeled      bool              `json:"labeled,omitempty"`
	Header       [][]HeaderCell    `json:"header"`
	Columns      []snapshot.Column `json:"columns"`
	Rows         []RowView         `json:"rows"`
	Totals       *RowView          `json:"totals,omitempty"`
	Sort         *snapshot.SortKey `json:"sort,omitempty"`
	EmptyMessage string            `json:"empty_message,omitempty"`
}

// Span is the number of rendered columns, label column included.
func (tv TableView) Span() int {
	if tv.Labeled {
		return len(tv.Columns) + 1
	}
	return len(tv.Columns)
}

// labelKeys are the display keys that name a row, in lookup order.
var labelKeys = []string{"player", "player_name", "name"}

func rowLabel(display map[string]string) string {
	for _, k := range labelKeys {
		if v := display[k]; v != "" {
			return v
		}
	}
	return ""
}

// SectionView is the serializable form of a practice Section.
type SectionView struct {
	Key          string     `json:"key"`
	Title        string     `json:"title"`
	AsOf         string     `json:"as_of,omitempty"`
	Table        *TableView `json:"table,omitempty"`
	EmptyMessage string     `json:"empty_message,omitempty"`
}

// PracticeView is the serializable form of Practice.
type PracticeView struct {
	Main     []SectionView `json:"main"`
	Aux      []SectionView `json:"aux,omitempty"`
	AsOfNote string        `json:"as_of_note,omitempty"`
	AsOfDate string        `json:"as_of_date,omitempty"`
}

// View is the serializable render model handed to presentation layers.
type View struct {
	SeasonID int           `json:"season_id"`
	StatKey  string        `json:"stat_key"`
	Variant  string        `json:"variant,omitempty"`
	BuiltAt  time.Time     `json:"built_at"`
	Table    *TableView    `json:"table,omitempty"`
	Aux      *TableView    `json:"aux_table,omitempty"`
	Practice *PracticeView `json:"practice,omitempty"`
}

// View renders the model in its current order.
func (m *Model) View() View {
	v := View{
		SeasonID: m.SeasonID,
		StatKey:  m.StatKey,
		Variant:  m.Variant,
		BuiltAt:  m.BuiltAt,
	}
	if m.Main != nil {
		tv := m.Main.View()
		v.Table = &tv
	}
	if m.Aux != nil {
		tv := m.Aux.View()
		v.Aux = &tv
	}
	if m.Practice != nil {
		v.Practice = &PracticeView{
			Main:     sectionViews(m.Practice.Main),
			Aux:      sectionViews(m.Practice.Aux),
			AsOfNote: m.Practice.AsOfNote,
			AsOfDate: m.Practice.AsOfDate,
		}
	}
	return v
}

func sectionViews(in []Section) []SectionView {
	out := make([]SectionView, 0, len(in))
	for _, s := range in {
		sv := SectionView{Key: s.Key, Title: s.Title, AsOf: s.AsOf}
		if s.Table != nil {
			tv := s.Table.View()
			sv.Table = &tv
		} else {
			sv.EmptyMessage = s.EmptyMessage
		}
		out = append(out, sv)
	}
	return out
}

// View renders the table in its current order.
func (t *Table) View() TableView {
	tv := TableView{
		ID:      t.ID,
		Header:  t.Header(),
		Columns: t.Columns,
		Rows:    make([]RowView, 0, len(t.order)),
	}
	for _, idx := range t.order {
		r := t.rows[idx]
		rv := RowView{
			Rank:    r.Rank,
			Display: r.Display,
			Label:   rowLabel(r.Display),
			Cells:   t.cells(r.Metrics),
		}
		tv.Labeled = tv.Labeled || rv.Label != ""
		tv.Rows = append(tv.Rows, rv)
	}
	if t.totals != nil {
		label := t.totals.Label
		if label == "" {
			label = snapshot.DefaultTotalsLabel
		}
		tv.Labeled = true
		tv.Totals = &RowView{
			Label:   label,
			Display: t.totals.Display,
			Cells:   t.cells(t.totals.Metrics),
		}
	}
	if key, dir, ok := t.Active(); ok {
		tv.Sort = &snapshot.SortKey{Column: key, Direction: dir}
	}
	if t.Empty() {
		tv.EmptyMessage = DefaultEmptyMessage
	}
	return tv
}

func (t *Table) cells(metrics map[string]snapshot.Metric) []Cell {
	out := make([]Cell, len(t.Columns))
	for i, c := range t.Columns {
		m := metrics[c.Key]
		out[i] = Cell{Key: c.Key, Text: m.Text, Align: c.Align, Empty: m.Empty()}
	}
	return out
}

// Header returns one header row when no column is grouped, else two: a top
// row with a cell per group run or ungrouped column, and a bottom row with
// the grouped columns' own cells.
func (t *Table) Header() [][]HeaderCell {
	grouped := false
	for _, c := range t.Columns {
		if c.Group != "" {
			grouped = true
			break
		}
	}
	if !grouped {
		row := make([]HeaderCell, len(t.Columns))
		for i, c := range t.Columns {
			row[i] = t.columnCell(c, 1)
		}
		return [][]HeaderCell{row}
	}

	var top, bottom []HeaderCell
	for i := 0; i < len(t.Columns); {
		c := t.Columns[i]
		if c.Group == "" {
			top = append(top, t.columnCell(c, 2))
			i++
			continue
		}
		j := i
		for j < len(t.Columns) && t.Columns[j].Group == c.Group {
			bottom = append(bottom, t.columnCell(t.Columns[j], 1))
			j++
		}
		top = append(top, HeaderCell{
			Label:   c.Group,
			ColSpan: j - i,
			RowSpan: 1,
			Align:   snapshot.AlignCenter,
			Group:   true,
		})
		i = j
	}
	return [][]HeaderCell{top, bottom}
}

func (t *Table) columnCell(c snapshot.Column, rowSpan int) HeaderCell {
	hc := HeaderCell{
		Key:      c.Key,
		Label:    c.Label,
		ColSpan:  1,
		RowSpan:  rowSpan,
		Align:    c.Align,
		Width:    c.Width,
		Sortable: c.IsSortable(),
	}
	if c.Key == t.activeKey {
		hc.Sort = t.activeDir
	}
	return hc
}
