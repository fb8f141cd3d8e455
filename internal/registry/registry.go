package registry

import (
	"fmt"
	"os"
	"time"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/logging"
	"github.com/Iron-Ham/crew/internal/statefs"
)

// Registry reads and writes worker records for one team.
type Registry struct {
	layout   statefs.Layout
	team     string
	lockOpts statefs.LockOptions
	clock    func() time.Time
	logger   *logging.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides the time source for heartbeats and status stamps.
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithLockOptions overrides the lock timings.
func WithLockOptions(opts statefs.LockOptions) Option {
	return func(r *Registry) { r.lockOpts = opts }
}

// New returns a Registry for team under layout.
func New(layout statefs.Layout, team string, opts ...Option) (*Registry, error) {
	if err := statefs.ValidateName("team", team); err != nil {
		return nil, fmt.Errorf("%w: %v", crewerrors.ErrInvalidInput, err)
	}
	r := &Registry{
		layout:   layout,
		team:     team,
		lockOpts: statefs.DefaultLockOptions(),
		clock:    time.Now,
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("registry").WithTeam(team)
	return r, nil
}

// Team returns the team name.
func (r *Registry) Team() string { return r.team }

func (r *Registry) now() time.Time { return r.clock().UTC() }

// Now returns the registry's current time, for liveness checks that must
// agree with the stamps it writes.
func (r *Registry) Now() time.Time { return r.now() }

func checkWorker(worker string) error {
	if err := statefs.ValidateName("worker", worker); err != nil {
		return fmt.Errorf("%w: %v", crewerrors.ErrInvalidInput, err)
	}
	return nil
}

// WriteIdentity records a worker joining the team. It fails if the worker
// already has an identity.
func (r *Registry) WriteIdentity(id Identity) (Identity, error) {
	if err := checkWorker(id.Name); err != nil {
		return Identity{}, err
	}
	id.Team = r.team
	if id.JoinedAt.IsZero() {
		id.JoinedAt = r.now()
	}
	if id.PID == 0 {
		id.PID = os.Getpid()
	}
	if id.Host == "" {
		id.Host, _ = os.Hostname()
	}
	if err := id.Validate(); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", crewerrors.ErrInvalidInput, err)
	}

	path := r.layout.IdentityPath(r.team, id.Name)
	err := statefs.WithLock(r.layout.LockPath(r.team, "worker", id.Name), r.lockOpts, func() error {
		if statefs.Exists(path) {
			return fmt.Errorf("worker %s already joined: %w", id.Name, crewerrors.ErrInvalidInput)
		}
		return statefs.WriteJSON(path, id)
	})
	if err != nil {
		return Identity{}, err
	}
	r.logger.Info("worker joined", "worker", id.Name, "index", id.Index, "role", id.Role)
	return id, nil
}

// ReadIdentity loads a worker's identity.
func (r *Registry) ReadIdentity(worker string) (Identity, error) {
	var id Identity
	if err := checkWorker(worker); err != nil {
		return id, err
	}
	err := statefs.ReadJSON(r.layout.IdentityPath(r.team, worker), "identity", &id)
	return id, err
}

// Heartbeat bumps a worker's turn counter and last-seen stamp. Concurrent
// beats for the same worker are serialized, so turns are never lost or
// repeated.
func (r *Registry) Heartbeat(worker string) (Heartbeat, error) {
	if err := checkWorker(worker); err != nil {
		return Heartbeat{}, err
	}
	var hb Heartbeat
	path := r.layout.HeartbeatPath(r.team, worker)
	err := statefs.WithLock(r.layout.LockPath(r.team, "heartbeat", worker), r.lockOpts, func() error {
		prev, err := r.ReadHeartbeat(worker)
		if err != nil && !crewerrors.IsNotFound(err) {
			return err
		}
		hb = Heartbeat{Worker: worker, LastSeen: r.now(), Turn: prev.Turn + 1}
		if hb.LastSeen.Before(prev.LastSeen) {
			hb.LastSeen = prev.LastSeen
		}
		return statefs.WriteJSON(path, hb)
	})
	if err != nil {
		return Heartbeat{}, err
	}
	r.logger.Debug("heartbeat", "worker", worker, "turn", hb.Turn)
	return hb, nil
}

// ReadHeartbeat loads a worker's heartbeat. A worker that never beat yields
// an error matching ErrNotFound.
func (r *Registry) ReadHeartbeat(worker string) (Heartbeat, error) {
	var hb Heartbeat
	if err := checkWorker(worker); err != nil {
		return hb, err
	}
	err := statefs.ReadJSON(r.layout.HeartbeatPath(r.team, worker), "heartbeat", &hb)
	return hb, err
}

// WriteStatus replaces a worker's status record.
func (r *Registry) WriteStatus(st Status) (Status, error) {
	if err := checkWorker(st.Worker); err != nil {
		return Status{}, err
	}
	st.UpdatedAt = r.now()
	if err := st.Validate(); err != nil {
		return Status{}, fmt.Errorf("%w: %v", crewerrors.ErrInvalidInput, err)
	}
	if err := statefs.WriteJSON(r.layout.StatusPath(r.team, st.Worker), st); err != nil {
		return Status{}, err
	}
	r.logger.Debug("status", "worker", st.Worker, "state", string(st.State), "task_id", st.TaskID)
	return st, nil
}

// ReadStatus loads a worker's status record.
func (r *Registry) ReadStatus(worker string) (Status, error) {
	var st Status
	if err := checkWorker(worker); err != nil {
		return st, err
	}
	err := statefs.ReadJSON(r.layout.StatusPath(r.team, worker), "status", &st)
	return st, err
}

// ListWorkers returns the names of workers that have a directory, sorted.
func (r *Registry) ListWorkers() ([]string, error) {
	return statefs.ListDirs(r.layout.WorkersDir(r.team))
}
