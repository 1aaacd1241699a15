package table

import (
	"fmt"
	"slices"
	"strings"

	"github.com/okian/boxboard/internal/domain/snapshot"
	"github.com/okian/boxboard/internal/domain/value"
	"github.com/okian/boxboard/pkg/metrics"
)

// ParseDirection reads a direction query value. An empty string means
// toggle and is returned as "".
func ParseDirection(s string) (snapshot.Direction, error) {
	d := snapshot.Direction(strings.ToLower(strings.TrimSpace(s)))
	if d == "" || d.Valid() {
		return d, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

// Sort reorders the body rows by the column key. An empty dir toggles: the
// active column flips, any other column starts ascending. Totals are never
// moved and tied rows keep their original order. Cells without a typed value
// sort last ascending and first descending.
func (t *Table) Sort(key string, dir snapshot.Direction) error {
	if dir == "" {
		dir = snapshot.Asc
		if key == t.activeKey && t.activeDir == snapshot.Asc {
			dir = snapshot.Desc
		}
	}
	if !dir.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDirection, dir)
	}
	if err := t.sortBy(key, dir); err != nil {
		return err
	}
	metrics.RecordTableSort()
	return nil
}

// sortBy orders the rows by key, then by each tie-breaker. The active column
// is key alone.
func (t *Table) sortBy(key string, dir snapshot.Direction, ties ...snapshot.SortKey) error {
	col, ok := t.Column(key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, key)
	}
	if !col.IsSortable() {
		return fmt.Errorf("%w: %q", ErrNotSortable, key)
	}

	order := identity(len(t.rows))
	slices.SortStableFunc(order, func(a, b int) int {
		ra, rb := t.rows[a], t.rows[b]
		if c := compareCells(raw(ra, key), raw(rb, key), dir); c != 0 {
			return c
		}
		for _, tk := range ties {
			if c := compareCells(raw(ra, tk.Column), raw(rb, tk.Column), tk.Direction); c != 0 {
				return c
			}
		}
		return 0
	})
	t.order = order
	t.activeKey = key
	t.activeDir = dir
	return nil
}

func raw(r snapshot.Row, key string) *value.Value {
	m, ok := r.Metrics[key]
	if !ok {
		return nil
	}
	return m.Raw
}

func compareCells(a, b *value.Value, dir snapshot.Direction) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		if dir == snapshot.Desc {
			return -1
		}
		return 1
	case b == nil:
		if dir == snapshot.Desc {
			return 1
		}
		return -1
	}
	c := value.Compare(*a, *b)
	if dir == snapshot.Desc {
		return -c
	}
	return c
}
