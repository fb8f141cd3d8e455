package monitor

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/phase"
	"github.com/Iron-Ham/crew/internal/registry"
	"github.com/Iron-Ham/crew/internal/scaling"
	"github.com/Iron-Ham/crew/internal/taskstore"
)

// Liveness classifies a worker's heartbeat.
type Liveness string

const (
	LivenessAlive Liveness = "alive"
	LivenessDead  Liveness = "dead"
	// LivenessUnknown means the worker never beat or its heartbeat is
	// unreadable. A worker that never beat but has held a claim for
	// longer than the liveness threshold is dead instead.
	LivenessUnknown Liveness = "unknown"
)

// WorkerSummary is the monitor's view of one worker.
type WorkerSummary struct {
	Name     string           `json:"name"`
	OnRoster bool             `json:"on_roster"`
	Liveness Liveness         `json:"liveness"`
	LastSeen time.Time        `json:"last_seen,omitzero"`
	Age      time.Duration    `json:"age,omitempty"`
	Turn     uint64           `json:"turn,omitempty"`
	Status   *registry.Status `json:"status,omitempty"`
	Claims   []string         `json:"claims,omitempty"`
	Err      string           `json:"error,omitempty"`
}

// reported reports whether the monitor already recorded this worker's
// current death.
func (w WorkerSummary) reported() bool {
	return w.Status != nil && w.Status.State == registry.StateStopped && !w.Status.UpdatedAt.Before(w.LastSeen)
}

// deadSinceClaim marks a claim holder that never beat as dead once its
// oldest claim is older than threshold.
func (w *WorkerSummary) deadSinceClaim(claimedAt, now time.Time, threshold time.Duration) {
	if w.Liveness != LivenessUnknown || w.Err != "" || claimedAt.IsZero() {
		return
	}
	if age := now.Sub(claimedAt); age > threshold {
		w.Liveness = LivenessDead
		w.Age = age
	}
}

// Snapshot aggregates the team's state at one instant.
type Snapshot struct {
	Team           string            `json:"team"`
	TakenAt        time.Time         `json:"taken_at"`
	Phase          phase.Phase       `json:"phase"`
	FixAttempt     int               `json:"fix_attempt"`
	MaxFixAttempts int               `json:"max_fix_attempts"`
	FixExhausted   bool              `json:"fix_exhausted,omitempty"`
	Counts         taskstore.Counts  `json:"counts"`
	Workers        []WorkerSummary   `json:"workers"`
	Alive          int               `json:"alive"`
	Dead           int               `json:"dead"`
	Scaling        *scaling.Decision `json:"scaling,omitempty"`
	// Errors lists problems that did not prevent the snapshot, such as an
	// unreadable task file.
	Errors []string `json:"errors,omitempty"`
}

func (s *Snapshot) setPhase(st phase.State) {
	s.Phase = st.CurrentPhase
	s.FixAttempt = st.CurrentFixAttempt
	s.MaxFixAttempts = st.MaxFixAttempts
	s.FixExhausted = st.FixExhausted
}

// Snapshot reads the team's current state. Only an unreadable team config
// fails it; other read problems are listed in Snapshot.Errors.
func (m *Monitor) Snapshot(ctx context.Context) (Snapshot, error) {
	cfg, err := m.team.ReadConfig()
	if err != nil {
		return Snapshot{}, err
	}
	now := m.clock().UTC()
	threshold := m.threshold
	if threshold <= 0 {
		threshold = cfg.Policy.LivenessThreshold()
	}
	snap := Snapshot{Team: m.team.Team(), TakenAt: now, Phase: phase.PhaseExec, Workers: []WorkerSummary{}}

	tasks, err := m.tasks.List()
	if err != nil {
		snap.Errors = append(snap.Errors, err.Error())
	}
	snap.Counts = taskstore.Tally(tasks)
	claims := make(map[string][]string)
	oldestClaim := make(map[string]time.Time)
	for _, t := range tasks {
		if holder := t.ClaimedBy(); holder != "" {
			claims[holder] = append(claims[holder], t.ID)
			if at, ok := oldestClaim[holder]; !ok || t.Claim.ClaimedAt.Before(at) {
				oldestClaim[holder] = t.Claim.ClaimedAt
			}
		}
	}

	names, err := m.reg.ListWorkers()
	if err != nil {
		snap.Errors = append(snap.Errors, err.Error())
	}
	roster := cfg.WorkerNames()
	names = append(names, roster...)
	for holder := range claims {
		names = append(names, holder)
	}
	slices.Sort(names)
	names = slices.Compact(names)

	p := pool.NewWithResults[WorkerSummary]().WithContext(ctx).WithMaxGoroutines(m.maxConcurrency)
	for _, name := range names {
		p.Go(func(context.Context) (WorkerSummary, error) {
			ws := m.summarize(name, now, threshold)
			ws.OnRoster = slices.Contains(roster, name)
			ws.Claims = claims[name]
			if since, ok := oldestClaim[name]; ok {
				ws.deadSinceClaim(since, now, threshold)
			}
			return ws, nil
		})
	}
	workers, err := p.Wait()
	if err != nil {
		return Snapshot{}, err
	}
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	slices.SortFunc(workers, func(a, b WorkerSummary) int { return strings.Compare(a.Name, b.Name) })
	snap.Workers = workers
	for _, w := range workers {
		switch w.Liveness {
		case LivenessAlive:
			snap.Alive++
		case LivenessDead:
			snap.Dead++
		}
	}

	st, err := m.team.ReadPhase()
	switch {
	case err == nil:
		snap.setPhase(st)
	case !crewerrors.IsNotFound(err):
		snap.Errors = append(snap.Errors, err.Error())
	}
	return snap, nil
}

// summarize reads one worker's heartbeat and status.
func (m *Monitor) summarize(name string, now time.Time, threshold time.Duration) WorkerSummary {
	ws := WorkerSummary{Name: name, Liveness: LivenessUnknown}
	hb, err := m.reg.ReadHeartbeat(name)
	switch {
	case err == nil:
		ws.LastSeen = hb.LastSeen
		ws.Age = hb.Age(now)
		ws.Turn = hb.Turn
		if registry.IsAlive(hb, now, threshold) {
			ws.Liveness = LivenessAlive
		} else {
			ws.Liveness = LivenessDead
		}
	case !crewerrors.IsNotFound(err):
		ws.Err = err.Error()
	}

	st, err := m.reg.ReadStatus(name)
	switch {
	case err == nil:
		ws.Status = &st
	case !crewerrors.IsNotFound(err) && ws.Err == "":
		ws.Err = err.Error()
	}
	return ws
}
