package monitor

import (
	"time"

	"github.com/Iron-Ham/crew/internal/event"
	"github.com/Iron-Ham/crew/internal/logging"
	"github.com/Iron-Ham/crew/internal/scaling"
)

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithBus publishes worker.stopped and scaling.advised events to bus.
func WithBus(bus *event.Bus) Option {
	return func(m *Monitor) { m.bus = bus }
}

// WithClock overrides the time source used for liveness.
func WithClock(clock func() time.Time) Option {
	return func(m *Monitor) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithInterval sets the time between ticks in Run.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithLivenessThreshold overrides the team policy's liveness threshold.
func WithLivenessThreshold(d time.Duration) Option {
	return func(m *Monitor) { m.threshold = d }
}

// WithVerification makes the phase controller hold in team-verify while
// pending reports true.
func WithVerification(pending func() bool) Option {
	return func(m *Monitor) { m.verificationPending = pending }
}

// WithScaler enables scaling advice on every tick.
func WithScaler(p *scaling.Policy) Option {
	return func(m *Monitor) { m.scaler = p }
}

// WithMaxConcurrency bounds the parallel per-worker reads of a snapshot.
func WithMaxConcurrency(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.maxConcurrency = n
		}
	}
}

// WithOnTick registers a callback that receives every snapshot Run takes.
func WithOnTick(fn func(Snapshot)) Option {
	return func(m *Monitor) { m.onTick = fn }
}
