package table

import "errors"

var (
	// ErrNoData means the snapshot cannot be rendered at all (missing or
	// without a column manifest). A zero-row table is not an error.
	ErrNoData = errors.New("no data")

	ErrUnknownColumn    = errors.New("unknown sort column")
	ErrNotSortable      = errors.New("column is not sortable")
	ErrInvalidDirection = errors.New("invalid sort direction")
)
