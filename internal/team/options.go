package team

import (
	"time"

	"github.com/Iron-Ham/crew/internal/event"
	"github.com/Iron-Ham/crew/internal/logging"
	"github.com/Iron-Ham/crew/internal/statefs"
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithBus publishes phase and shutdown events to bus.
func WithBus(bus *event.Bus) Option {
	return func(m *Manager) { m.bus = bus }
}

// WithLockOptions overrides the lock timings.
func WithLockOptions(opts statefs.LockOptions) Option {
	return func(m *Manager) { m.lockOpts = opts }
}

// WithCache shares a config cache between managers. Without it each
// Manager keeps a private cache.
func WithCache(cache *ConfigCache) Option {
	return func(m *Manager) {
		if cache != nil {
			m.cache = cache
		}
	}
}
