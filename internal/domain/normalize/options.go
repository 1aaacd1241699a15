package normalize

import "time"

// Option applies a configuration option to the Normalizer.
type Option func(*Normalizer)

// WithVersions sets the schema and formatter versions stamped on snapshots.
func WithVersions(schema, formatter int) Option {
	return func(n *Normalizer) {
		if schema > 0 {
			n.schemaVersion = schema
		}
		if formatter > 0 {
			n.formatterVersion = formatter
		}
	}
}

// WithClock sets the clock used for built_at.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}
