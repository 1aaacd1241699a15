package freshness

import (
	"time"

	"github.com/okian/boxboard/internal/domain/normalize"
	"github.com/okian/boxboard/pkg/logger"
)

// Option applies a configuration option to the Controller.
type Option func(*Controller)

// WithTTL sets the maximum age at which a snapshot is served without a rebuild.
func WithTTL(ttl time.Duration) Option {
	return func(c *Controller) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithNormalizer sets the normalizer, and with it the expected schema and
// formatter versions.
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(c *Controller) {
		if n != nil {
			c.normalizer = n
		}
	}
}

// WithClock sets the clock used for age checks and build timing.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithStatKeys restricts the controller to a known stat-key set. The set is
// also what RebuildAll and GetAll iterate.
func WithStatKeys(keys ...string) Option {
	return func(c *Controller) {
		c.setStatKeys(keys)
	}
}

// WithRevalidator enables stale-while-revalidate: stale hits are served as is
// and handed to r for a background rebuild.
func WithRevalidator(r Revalidator) Option {
	return func(c *Controller) {
		c.revalidator = r
	}
}

// WithBatchConcurrency bounds how many keys RebuildAll and GetAll build at once.
func WithBatchConcurrency(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.batchConcurrency = n
		}
	}
}

// WithBuilder names who triggers builds in the build manifest.
func WithBuilder(name string) Option {
	return func(c *Controller) {
		if name != "" {
			c.builder = name
		}
	}
}

// WithProviderName names the compute provider in the build manifest.
func WithProviderName(name string) Option {
	return func(c *Controller) {
		if name != "" {
			c.providerName = name
		}
	}
}

// WithLogger sets the controller's logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}
