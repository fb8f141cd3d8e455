package mailbox

import (
	"time"

	"github.com/Iron-Ham/crew/internal/event"
	"github.com/Iron-Ham/crew/internal/logging"
	"github.com/Iron-Ham/crew/internal/notify"
	"github.com/Iron-Ham/crew/internal/statefs"
)

// Option configures a Mailbox.
type Option func(*Mailbox)

// WithBus attaches an event bus. A MailboxMessageEvent is published for
// every stored message and a MailboxNotifiedEvent for every first notify.
func WithBus(bus *event.Bus) Option {
	return func(m *Mailbox) { m.bus = bus }
}

// WithNotifier sets the alert channel used by MarkNotified.
func WithNotifier(n notify.Notifier) Option {
	return func(m *Mailbox) {
		if n != nil {
			m.notifier = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Mailbox) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the time source for message stamps.
func WithClock(clock func() time.Time) Option {
	return func(m *Mailbox) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithLockOptions overrides the inbox lock timings.
func WithLockOptions(opts statefs.LockOptions) Option {
	return func(m *Mailbox) { m.lockOpts = opts }
}

// WithRoster sets the source of broadcast recipients. By default every
// worker with a directory under the team is a recipient.
func WithRoster(roster func() ([]string, error)) Option {
	return func(m *Mailbox) {
		if roster != nil {
			m.roster = roster
		}
	}
}

// WithPollInterval sets how often Watch re-reads the inbox when no
// filesystem notification arrives. Zero or negative values are ignored.
func WithPollInterval(d time.Duration) Option {
	return func(m *Mailbox) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}
