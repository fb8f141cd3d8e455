package dispatch

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/event"
	"github.com/Iron-Ham/crew/internal/logging"
	"github.com/Iron-Ham/crew/internal/notify"
	"github.com/Iron-Ham/crew/internal/statefs"
)

// Queue stores the dispatch requests of one team.
type Queue struct {
	layout   statefs.Layout
	team     string
	lockOpts statefs.LockOptions
	clock    func() time.Time
	bus      *event.Bus
	notifier notify.Notifier
	logger   *logging.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(q *Queue) {
		if clock != nil {
			q.clock = clock
		}
	}
}

// WithBus publishes dispatch events to bus.
func WithBus(bus *event.Bus) Option {
	return func(q *Queue) { q.bus = bus }
}

// WithNotifier sets the alert channel used by MarkNotified.
func WithNotifier(n notify.Notifier) Option {
	return func(q *Queue) {
		if n != nil {
			q.notifier = n
		}
	}
}

// WithLockOptions overrides the lock timings.
func WithLockOptions(opts statefs.LockOptions) Option {
	return func(q *Queue) { q.lockOpts = opts }
}

// New returns a Queue for team under layout.
func New(layout statefs.Layout, team string, opts ...Option) (*Queue, error) {
	if err := statefs.ValidateName("team", team); err != nil {
		return nil, fmt.Errorf("%w: %v", crewerrors.ErrInvalidInput, err)
	}
	q := &Queue{
		layout:   layout,
		team:     team,
		lockOpts: statefs.DefaultLockOptions(),
		clock:    time.Now,
		notifier: notify.Nop,
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.WithComponent("dispatch").WithTeam(team)
	return q, nil
}

func (q *Queue) now() time.Time { return q.clock().UTC() }

// Enqueue files a new pending request. ID, status, flags, timestamps, and
// history are assigned; Transport defaults to TransportAny.
func (q *Queue) Enqueue(req Request) (Request, error) {
	now := q.now()
	req.ID = uuid.NewString()
	req.Status = StatusPending
	req.Delivered, req.DeliveredAt = false, nil
	req.Notified, req.NotifiedAt = false, nil
	req.CreatedAt = now
	req.UpdatedAt = now
	req.History = []Transition{}
	if req.Transport == "" {
		req.Transport = TransportAny
	}
	if err := req.Validate(); err != nil {
		return Request{}, fmt.Errorf("%w: %v", crewerrors.ErrInvalidInput, err)
	}

	path := q.layout.DispatchPath(q.team, req.ID)
	err := statefs.WithLock(q.lockPath(req.ID), q.lockOpts, func() error {
		return statefs.WriteJSON(path, req)
	})
	if err != nil {
		return Request{}, err
	}
	q.logger.Info("dispatch enqueued", "id", req.ID, "kind", string(req.Kind), "from", req.From)
	q.bus.Publish(event.NewDispatchEnqueuedEvent(q.team, req.ID, string(req.Kind), req.From))
	return req, nil
}

func (q *Queue) lockPath(id string) string {
	return q.layout.LockPath(q.team, "dispatch", id)
}

// Read loads a request. A missing request yields an error matching
// ErrNotFound.
func (q *Queue) Read(id string) (Request, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Request{}, fmt.Errorf("%w: request id %q: %v", crewerrors.ErrInvalidInput, id, err)
	}
	var req Request
	path := q.layout.DispatchPath(q.team, id)
	if err := statefs.ReadJSON(path, "dispatch request", &req); err != nil {
		return Request{}, err
	}
	if req.ID != id {
		return Request{}, crewerrors.NewStateError(fmt.Sprintf("file holds request %q", req.ID), crewerrors.ErrMalformedState).
			WithPath(path).WithEntity("dispatch request")
	}
	return req, nil
}

// ListOptions filters List results. Zero values match everything.
type ListOptions struct {
	Status Status
	From   string
	Kind   Kind
}

func (o ListOptions) match(r *Request) bool {
	return (o.Status == "" || r.Status == o.Status) &&
		(o.From == "" || r.From == o.From) &&
		(o.Kind == "" || r.Kind == o.Kind)
}

// List returns matching requests, oldest first. Unreadable requests are
// skipped and their errors joined into the returned error.
func (q *Queue) List(opts ListOptions) ([]Request, error) {
	ids, err := statefs.ListJSON(q.layout.DispatchDir(q.team))
	if err != nil {
		return nil, err
	}
	var out []Request
	var errs []error
	for _, id := range ids {
		req, err := q.Read(id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if opts.match(&req) {
			out = append(out, req)
		}
	}
	slices.SortFunc(out, func(a, b Request) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, crewerrors.Join(errs...)
}

// errUnchanged lets an update callback skip the write.
var errUnchanged = crewerrors.New("request unchanged")

// update performs a read-modify-write of one request under its lock.
func (q *Queue) update(id string, fn func(*Request) error) (Request, error) {
	var out Request
	err := statefs.WithLock(q.lockPath(id), q.lockOpts, func() error {
		req, err := q.Read(id)
		if err != nil {
			return err
		}
		if err := fn(&req); err != nil {
			if crewerrors.Is(err, errUnchanged) {
				out = req
				return nil
			}
			return err
		}
		req.UpdatedAt = q.now()
		if err := req.Validate(); err != nil {
			return fmt.Errorf("%w: %v", crewerrors.ErrInvalidInput, err)
		}
		if err := statefs.WriteJSON(q.layout.DispatchPath(q.team, id), req); err != nil {
			return err
		}
		out = req
		return nil
	})
	return out, err
}

// Transition records a decision on a pending request. by names the
// decider; reason is kept in the history. Requests in a terminal status
// cannot change.
func (q *Queue) Transition(id string, to Status, by, reason string) (Request, error) {
	var from Status
	req, err := q.update(id, func(r *Request) error {
		from = r.Status
		if !CanTransition(from, to) {
			return fmt.Errorf("dispatch request %s: %s -> %s: %w", id, from, to, crewerrors.ErrInvalidTransition)
		}
		at := q.now()
		if n := len(r.History); n > 0 && at.Before(r.History[n-1].At) {
			at = r.History[n-1].At
		}
		if at.Before(r.CreatedAt) {
			at = r.CreatedAt
		}
		r.History = append(r.History, Transition{From: from, To: to, At: at, By: by, Reason: reason})
		r.Status = to
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	q.logger.Info("dispatch transitioned", "id", id, "from", string(from), "to", string(to), "by", by)
	q.bus.Publish(event.NewDispatchTransitionedEvent(q.team, id, string(from), string(to)))
	return req, nil
}

// Approve transitions a request to approved.
func (q *Queue) Approve(id, by, reason string) (Request, error) {
	return q.Transition(id, StatusApproved, by, reason)
}

// Deny transitions a request to denied.
func (q *Queue) Deny(id, by, reason string) (Request, error) {
	return q.Transition(id, StatusDenied, by, reason)
}

// Cancel transitions a request to cancelled.
func (q *Queue) Cancel(id, by, reason string) (Request, error) {
	return q.Transition(id, StatusCancelled, by, reason)
}

// MarkDelivered records that the decision reached the requesting worker.
// Marking twice is a no-op.
func (q *Queue) MarkDelivered(id string) (Request, error) {
	return q.update(id, func(r *Request) error {
		if r.Delivered {
			return errUnchanged
		}
		now := q.now()
		r.Delivered = true
		r.DeliveredAt = &now
		return nil
	})
}

// MarkNotified issues the out-of-band alert for a request and records it.
// The notified flag is persisted before the notifier runs and rolled back
// if it fails, so the alert fires at most once. The returned bool reports
// whether this call fired it.
func (q *Queue) MarkNotified(ctx context.Context, id string) (Request, bool, error) {
	fired := false
	req, err := q.update(id, func(r *Request) error {
		if r.Notified {
			return errUnchanged
		}
		now := q.now()
		r.Notified = true
		r.NotifiedAt = &now
		r.UpdatedAt = now
		path := q.layout.DispatchPath(q.team, id)
		if err := statefs.WriteJSON(path, r); err != nil {
			return err
		}

		alert := notify.Alert{
			Kind:    notify.KindDispatch,
			Team:    q.team,
			ID:      r.ID,
			From:    r.From,
			Summary: fmt.Sprintf("%s request %s", r.Kind, r.Status),
		}
		if err := q.notifier.Notify(ctx, alert); err != nil {
			r.Notified = false
			r.NotifiedAt = nil
			if rbErr := statefs.WriteJSON(path, r); rbErr != nil {
				q.logger.Error("rollback of notified flag failed", "id", id, "error", rbErr.Error())
			}
			return fmt.Errorf("notify %s: %w", id, err)
		}
		fired = true
		return errUnchanged
	})
	if err != nil {
		return Request{}, false, err
	}
	if fired {
		q.logger.Info("dispatch notified", "id", id)
	}
	return req, fired, nil
}
