package monitor

import (
	"context"
	"fmt"
	"runtime"
	"time"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/event"
	"github.com/Iron-Ham/crew/internal/logging"
	"github.com/Iron-Ham/crew/internal/phase"
	"github.com/Iron-Ham/crew/internal/registry"
	"github.com/Iron-Ham/crew/internal/scaling"
	"github.com/Iron-Ham/crew/internal/taskstore"
	"github.com/Iron-Ham/crew/internal/team"
)

// DefaultInterval is the time between ticks when none is configured.
const DefaultInterval = 2 * time.Second

// Monitor watches one team.
type Monitor struct {
	tasks  *taskstore.Store
	reg    *registry.Registry
	team   *team.Manager
	scaler *scaling.Policy
	bus    *event.Bus
	logger *logging.Logger
	clock  func() time.Time
	onTick func(Snapshot)

	interval            time.Duration
	threshold           time.Duration
	verificationPending func() bool
	maxConcurrency      int
}

// New returns a Monitor over the given stores, which must all belong to
// the same team.
func New(tasks *taskstore.Store, reg *registry.Registry, mgr *team.Manager, opts ...Option) (*Monitor, error) {
	if tasks == nil || reg == nil || mgr == nil {
		return nil, fmt.Errorf("%w: monitor needs a task store, registry, and team manager", crewerrors.ErrInvalidInput)
	}
	if tasks.Team() != mgr.Team() || reg.Team() != mgr.Team() {
		return nil, fmt.Errorf("%w: stores belong to different teams", crewerrors.ErrInvalidInput)
	}
	m := &Monitor{
		tasks:          tasks,
		reg:            reg,
		team:           mgr,
		logger:         logging.NopLogger(),
		clock:          time.Now,
		interval:       DefaultInterval,
		maxConcurrency: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("monitor").WithTeam(mgr.Team())
	return m, nil
}

// Tick takes a snapshot, reclaims the claims of dead workers, reconciles
// the phase, and evaluates scaling. The returned snapshot reflects the
// state after those steps.
func (m *Monitor) Tick(ctx context.Context) (Snapshot, error) {
	snap, err := m.Snapshot(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	reclaimed := 0
	for i := range snap.Workers {
		w := &snap.Workers[i]
		if w.Liveness != LivenessDead {
			continue
		}
		n, err := m.stopWorker(w)
		if err != nil {
			m.logger.Error("reclaiming dead worker failed", "worker", w.Name, "error", err)
			snap.Errors = append(snap.Errors, err.Error())
		}
		reclaimed += n
	}
	if reclaimed > 0 {
		counts, err := m.tasks.Counts()
		if err != nil {
			snap.Errors = append(snap.Errors, err.Error())
		}
		snap.Counts = counts
	}

	opts := phase.InferOptions{}
	if m.verificationPending != nil {
		opts.VerificationPending = m.verificationPending()
	}
	st, err := m.team.ReconcilePhase(phase.Counts{
		Pending:    snap.Counts.Pending,
		Blocked:    snap.Counts.Blocked,
		InProgress: snap.Counts.InProgress,
		Failed:     snap.Counts.Failed,
	}, opts)
	if err != nil {
		return snap, fmt.Errorf("reconcile phase: %w", err)
	}
	snap.setPhase(st)

	if m.scaler != nil {
		d := m.scaler.Evaluate(snap.Counts, snap.Alive)
		snap.Scaling = &d
		if d.Action != scaling.ActionNone {
			m.logger.Info("scaling advised", "action", d.Action.String(), "delta", d.Delta, "reason", d.Reason)
			m.bus.Publish(event.NewScalingAdvisedEvent(snap.Team, d.Action.String(), d.Delta, d.Reason, snap.Alive))
		}
	}
	return snap, nil
}

// stopWorker releases a dead worker's claims and, the first time this
// death is seen, marks the worker stopped and publishes worker.stopped.
func (m *Monitor) stopWorker(w *WorkerSummary) (int, error) {
	var released []string
	if len(w.Claims) > 0 {
		ids, err := m.tasks.ReleaseClaimsOf(w.Name)
		released = ids
		if err != nil {
			return len(released), err
		}
		w.Claims = nil
	}
	if w.reported() {
		if len(released) > 0 {
			m.logger.Warn("reclaimed late claims of stopped worker", "worker", w.Name, "tasks", released)
		}
		return len(released), nil
	}

	st, err := m.reg.WriteStatus(registry.Status{
		Worker: w.Name,
		State:  registry.StateStopped,
		Detail: fmt.Sprintf("heartbeat stale for %s", w.Age.Round(time.Second)),
	})
	if err != nil {
		return len(released), err
	}
	w.Status = &st
	if released == nil {
		released = []string{}
	}
	m.logger.Warn("worker stopped", "worker", w.Name, "last_seen", w.LastSeen, "reclaimed", released)
	m.bus.Publish(event.NewWorkerStoppedEvent(m.team.Team(), w.Name, w.LastSeen, released))
	return len(released), nil
}

// Run ticks until ctx is done. Tick failures are logged and retried on the
// next tick. It returns nil when ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("monitor started", "interval", m.interval)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		snap, err := m.Tick(ctx)
		switch {
		case ctx.Err() != nil:
			m.logger.Info("monitor stopped")
			return nil
		case err != nil:
			m.logger.Error("monitor tick failed", "error", err)
		case m.onTick != nil:
			m.onTick(snap)
		}
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}
