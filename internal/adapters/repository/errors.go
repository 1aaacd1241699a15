package repository

import "errors"

// Sentinel kinds for snapshot store errors.
var (
	ErrNotFound       = errors.New("snapshot not found")
	ErrDecodeSnapshot = errors.New("stored snapshot unreadable")
	ErrClosed         = errors.New("snapshot store closed")
	ErrInvalidKey     = errors.New("invalid snapshot key")
)
