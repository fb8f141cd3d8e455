package taskstore

import (
	"fmt"
	"time"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/event"
	"github.com/Iron-Ham/crew/internal/logging"
	"github.com/Iron-Ham/crew/internal/statefs"
)

// Store reads and mutates the tasks of one team. Separate Store values,
// including ones in other processes, may operate on the same team
// concurrently; exclusion comes from per-task lock files.
type Store struct {
	layout   statefs.Layout
	team     string
	lockOpts statefs.LockOptions
	clock    func() time.Time
	lease    time.Duration
	bus      *event.Bus
	logger   *logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for claim and update stamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithBus publishes task events to bus after each successful write.
func WithBus(bus *event.Bus) Option {
	return func(s *Store) { s.bus = bus }
}

// WithLockOptions overrides the lock timings.
func WithLockOptions(opts statefs.LockOptions) Option {
	return func(s *Store) { s.lockOpts = opts }
}

// WithLease sets how long a claim stays valid without renewal. Zero means
// claims never expire.
func WithLease(d time.Duration) Option {
	return func(s *Store) {
		if d >= 0 {
			s.lease = d
		}
	}
}

// New returns a Store for team under layout.
func New(layout statefs.Layout, team string, opts ...Option) (*Store, error) {
	if err := statefs.ValidateName("team", team); err != nil {
		return nil, fmt.Errorf("%w: %v", crewerrors.ErrInvalidInput, err)
	}
	s := &Store{
		layout:   layout,
		team:     team,
		lockOpts: statefs.DefaultLockOptions(),
		clock:    time.Now,
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("taskstore").WithTeam(team)
	return s, nil
}

// Team returns the team this store operates on.
func (s *Store) Team() string { return s.team }

func (s *Store) now() time.Time { return s.clock().UTC() }

func (s *Store) lockPath(id string) string {
	return s.layout.LockPath(s.team, "task", id)
}

// Create persists a new pending task. Dependencies need not exist yet.
func (s *Store) Create(t Task) (Task, error) {
	now := s.now()
	t.Status = StatusPending
	t.Claim = nil
	t.LastWorker = ""
	t.Attempts = 0
	t.CreatedAt = now
	t.UpdatedAt = now
	if err := t.Validate(); err != nil {
		return Task{}, crewerrors.NewTaskError("create", fmt.Errorf("%w: %v", crewerrors.ErrInvalidInput, err)).
			WithTaskID(t.ID)
	}

	path := s.layout.TaskPath(s.team, t.ID)
	err := statefs.WithLock(s.lockPath(t.ID), s.lockOpts, func() error {
		if statefs.Exists(path) {
			return crewerrors.NewTaskError("create", fmt.Errorf("%w: task already exists", crewerrors.ErrInvalidInput)).
				WithTaskID(t.ID)
		}
		return statefs.WriteJSON(path, t)
	})
	if err != nil {
		return Task{}, err
	}
	s.logger.Info("task created", "task_id", t.ID, "depends_on", t.DependsOn)
	return t, nil
}

// Read loads a task. A missing file yields an error matching
// ErrTaskNotFound; an unparsable one, ErrMalformedState.
func (s *Store) Read(id string) (Task, error) {
	if err := statefs.ValidateName("task", id); err != nil {
		return Task{}, crewerrors.NewTaskError("read", fmt.Errorf("%w: %v", crewerrors.ErrInvalidInput, err))
	}
	var t Task
	if err := statefs.ReadJSON(s.layout.TaskPath(s.team, id), "task", &t); err != nil {
		if crewerrors.IsNotFound(err) {
			return Task{}, crewerrors.NewTaskError("read", crewerrors.ErrTaskNotFound).WithTaskID(id)
		}
		return Task{}, err
	}
	if t.ID != id {
		return Task{}, crewerrors.NewStateError(fmt.Sprintf("file holds task %q", t.ID), crewerrors.ErrMalformedState).
			WithPath(s.layout.TaskPath(s.team, id)).WithEntity("task")
	}
	return t, nil
}

// List returns every readable task sorted by id. Tasks that fail to decode
// are skipped and their errors joined into the returned error, so one
// corrupt file does not hide its siblings.
func (s *Store) List() ([]Task, error) {
	ids, err := statefs.ListJSON(s.layout.TasksDir(s.team))
	if err != nil {
		return nil, err
	}
	tasks := make([]Task, 0, len(ids))
	var errs []error
	for _, id := range ids {
		t, err := s.Read(id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, crewerrors.Join(errs...)
}

// Counts aggregates the status of every readable task.
func (s *Store) Counts() (Counts, error) {
	tasks, err := s.List()
	return Tally(tasks), err
}

// Update applies fn to a task under its lock. fn may edit the description,
// dependencies, and priority; status and claim changes must go through
// Claim, Release, or Transition and are rejected here.
func (s *Store) Update(id string, fn func(*Task) error) (Task, error) {
	return s.mutate(id, func(t *Task) error {
		before := *t
		if err := fn(t); err != nil {
			return err
		}
		t.ID = before.ID
		t.CreatedAt = before.CreatedAt
		if t.Status != before.Status || t.ClaimedBy() != before.ClaimedBy() || t.Attempts != before.Attempts {
			return crewerrors.NewTaskError("update", fmt.Errorf("%w: status and claim are not editable", crewerrors.ErrInvalidInput)).
				WithTaskID(id)
		}
		return nil
	})
}

// mutate runs a read-modify-write of one task under its lock. Nothing is
// written when fn fails or the result does not validate.
func (s *Store) mutate(id string, fn func(*Task) error) (Task, error) {
	var out Task
	err := statefs.WithLock(s.lockPath(id), s.lockOpts, func() error {
		t, err := s.Read(id)
		if err != nil {
			return err
		}
		if err := fn(&t); err != nil {
			return err
		}
		t.UpdatedAt = s.now()
		if err := t.Validate(); err != nil {
			return crewerrors.NewTaskError("validate", fmt.Errorf("%w: %v", crewerrors.ErrInvalidInput, err)).
				WithTaskID(id)
		}
		if err := statefs.WriteJSON(s.layout.TaskPath(s.team, id), t); err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}
