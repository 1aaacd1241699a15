package freshness

import "errors"

var (
	// ErrBuildFailed wraps a Compute Provider failure during a rebuild. The
	// previously stored snapshot is left in place.
	ErrBuildFailed = errors.New("snapshot build failed")

	// ErrVersionMismatch marks a stored snapshot produced by different schema
	// or formatter versions. It is handled as a cache miss and never returned
	// to callers.
	ErrVersionMismatch = errors.New("snapshot version mismatch")

	// ErrUnknownStatKey is returned for stat keys outside the configured set.
	ErrUnknownStatKey = errors.New("unknown stat key")

	ErrMissingStore    = errors.New("freshness controller requires a store")
	ErrMissingProvider = errors.New("freshness controller requires a compute provider")
)
