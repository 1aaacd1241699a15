package repository

import "github.com/okian/boxboard/pkg/logger"

type options struct {
	retention int
	logger    logger.Logger
}

func newOptions(name string, opts []Option) options {
	o := options{retention: DefaultRetention}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named(name)
	}
	return o
}

// Option applies a configuration option to a snapshot store.
type Option func(*options)

// WithRetention sets how many snapshots are kept per key. Values below 1 are
// raised to 1.
func WithRetention(n int) Option {
	return func(o *options) {
		o.retention = max(n, 1)
	}
}

// WithLogger sets the store's logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
