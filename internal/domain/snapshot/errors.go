package snapshot

import "errors"

var (
	ErrNilSnapshot    = errors.New("nil snapshot")
	ErrInvalidPayload = errors.New("invalid snapshot payload")
)
