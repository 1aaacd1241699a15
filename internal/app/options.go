package service

import (
	"time"

	"github.com/okian/boxboard/internal/adapters/repository"
	"github.com/okian/boxboard/internal/config"
	"github.com/okian/boxboard/internal/domain/freshness"
	"github.com/okian/boxboard/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the configuration the service is built from.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithStore injects a snapshot store instead of opening one from config.
// The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithProvider injects a compute provider instead of the fixture provider.
func WithProvider(name string, p freshness.Provider) Option {
	return func(s *Service) {
		if p != nil {
			s.provider = p
			s.providerName = name
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
