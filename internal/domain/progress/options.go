package progress

import "time"

// Option applies a configuration option to the Tracker.
type Option func(*Tracker)

// WithClock sets the clock used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}
