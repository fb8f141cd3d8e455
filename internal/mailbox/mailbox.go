package mailbox

import (
	"fmt"
	"time"

	"github.com/gobwas/glob"
	"github.com/oklog/ulid/v2"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/event"
	"github.com/Iron-Ham/crew/internal/logging"
	"github.com/Iron-Ham/crew/internal/notify"
	"github.com/Iron-Ham/crew/internal/statefs"
)

const (
	// defaultPollInterval is the default fallback interval for Watch.
	defaultPollInterval = 500 * time.Millisecond
)

// Mailbox sends, lists, and marks messages for the workers of one team.
type Mailbox struct {
	layout       statefs.Layout
	team         string
	lockOpts     statefs.LockOptions
	clock        func() time.Time
	bus          *event.Bus
	notifier     notify.Notifier
	logger       *logging.Logger
	roster       func() ([]string, error)
	pollInterval time.Duration
}

// New returns a Mailbox for team under layout.
func New(layout statefs.Layout, team string, opts ...Option) (*Mailbox, error) {
	if err := statefs.ValidateName("team", team); err != nil {
		return nil, fmt.Errorf("%w: %v", crewerrors.ErrInvalidInput, err)
	}
	m := &Mailbox{
		layout:       layout,
		team:         team,
		lockOpts:     statefs.DefaultLockOptions(),
		clock:        time.Now,
		notifier:     notify.Nop,
		logger:       logging.NopLogger(),
		pollInterval: defaultPollInterval,
	}
	m.roster = func() ([]string, error) { return statefs.ListDirs(layout.WorkersDir(team)) }
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("mailbox").WithTeam(team)
	return m, nil
}

func (m *Mailbox) now() time.Time { return m.clock().UTC() }

func (m *Mailbox) newID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}

// Send appends a message to the recipient's inbox. ID and CreatedAt are
// assigned; Type defaults to MessageText.
func (m *Mailbox) Send(msg Message) (Message, error) {
	now := m.now()
	msg.ID = m.newID(now)
	msg.CreatedAt = now
	msg.Broadcast = false
	if err := m.prepare(&msg); err != nil {
		return Message{}, err
	}
	if err := m.deliver(msg); err != nil {
		return Message{}, err
	}
	m.logger.Info("message sent", "id", msg.ID, "from", msg.From, "to", msg.To, "type", string(msg.Type))
	return msg, nil
}

// Broadcast sends msg to every roster member matching pattern except the
// sender. An empty pattern matches everyone. All copies share one id. The
// returned slice holds the copies that were stored; a failure for one
// recipient does not stop delivery to the others.
func (m *Mailbox) Broadcast(msg Message, pattern string) ([]Message, error) {
	if pattern == "" {
		pattern = "*"
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: recipient pattern %q: %v", crewerrors.ErrInvalidInput, pattern, err)
	}
	roster, err := m.roster()
	if err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}

	now := m.now()
	msg.ID = m.newID(now)
	msg.CreatedAt = now
	msg.Broadcast = true

	var sent []Message
	var errs []error
	for _, worker := range roster {
		if worker == msg.From || !g.Match(worker) {
			continue
		}
		cp := msg
		cp.To = worker
		if err := m.prepare(&cp); err != nil {
			return sent, err
		}
		if err := m.deliver(cp); err != nil {
			errs = append(errs, fmt.Errorf("deliver to %s: %w", worker, err))
			continue
		}
		sent = append(sent, cp)
	}
	m.logger.Info("message broadcast", "id", msg.ID, "from", msg.From, "pattern", pattern, "recipients", len(sent))
	return sent, crewerrors.Join(errs...)
}

// prepare fills defaults and validates a new message.
func (m *Mailbox) prepare(msg *Message) error {
	if msg.Type == "" {
		msg.Type = MessageText
	}
	msg.Delivered, msg.DeliveredAt = false, nil
	msg.Notified, msg.NotifiedAt = false, nil
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", crewerrors.ErrInvalidInput, err)
	}
	return nil
}

func (m *Mailbox) deliver(msg Message) error {
	err := m.update(msg.To, func(in *Inbox) error {
		in.Messages = append(in.Messages, msg)
		return nil
	})
	if err != nil {
		return err
	}
	m.bus.Publish(event.NewMailboxMessageEvent(m.team, msg.ID, msg.From, msg.To, msg.Broadcast))
	return nil
}

// List returns the messages in worker's inbox in arrival order.
func (m *Mailbox) List(worker string, opts ListOptions) ([]Message, error) {
	in, err := m.read(worker)
	if err != nil {
		return nil, err
	}
	var out []Message
	for i := range in.Messages {
		if opts.match(&in.Messages[i]) {
			out = append(out, in.Messages[i])
		}
	}
	return out, nil
}

// read loads an inbox. A missing inbox is empty.
func (m *Mailbox) read(worker string) (Inbox, error) {
	if err := statefs.ValidateName("worker", worker); err != nil {
		return Inbox{}, fmt.Errorf("%w: %v", crewerrors.ErrInvalidInput, err)
	}
	in := Inbox{Worker: worker}
	err := statefs.ReadJSON(m.layout.InboxPath(m.team, worker), "inbox", &in)
	if err != nil && !crewerrors.IsNotFound(err) {
		return Inbox{}, err
	}
	if in.Worker != worker {
		return Inbox{}, crewerrors.NewStateError("inbox belongs to "+in.Worker, crewerrors.ErrMalformedState).
			WithPath(m.layout.InboxPath(m.team, worker)).WithEntity("inbox")
	}
	return in, nil
}

// errUnchanged lets an update callback skip the write.
var errUnchanged = crewerrors.New("inbox unchanged")

// update performs a read-modify-write of one inbox under its lock.
func (m *Mailbox) update(worker string, fn func(*Inbox) error) error {
	return statefs.WithLock(m.layout.LockPath(m.team, "inbox", worker), m.lockOpts, func() error {
		in, err := m.read(worker)
		if err != nil {
			return err
		}
		if err := fn(&in); err != nil {
			if crewerrors.Is(err, errUnchanged) {
				return nil
			}
			return err
		}
		return statefs.WriteJSON(m.layout.InboxPath(m.team, worker), in)
	})
}

func writeInbox(path string, in *Inbox) error {
	return statefs.WriteJSON(path, in)
}
