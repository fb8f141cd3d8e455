package registry

import (
	"fmt"
	"time"

	"github.com/Iron-Ham/crew/internal/statefs"
)

// Identity is written once when a worker joins a team.
type Identity struct {
	Name          string    `json:"name"`
	Team          string    `json:"team"`
	Index         int       `json:"index"`
	Role          string    `json:"role,omitempty"`
	AssignedTasks []string  `json:"assigned_tasks,omitempty"`
	PID           int       `json:"pid,omitempty"`
	Host          string    `json:"host,omitempty"`
	JoinedAt      time.Time `json:"joined_at"`
}

// Validate checks the invariants of a decoded identity.
func (id *Identity) Validate() error {
	if err := statefs.ValidateName("worker", id.Name); err != nil {
		return err
	}
	if id.Index < 0 {
		return fmt.Errorf("worker %s: negative index %d", id.Name, id.Index)
	}
	return nil
}

// Heartbeat is the liveness signal of a worker. Turn increases by one on
// every beat and LastSeen never moves backwards.
type Heartbeat struct {
	Worker   string    `json:"worker"`
	LastSeen time.Time `json:"last_seen"`
	Turn     uint64    `json:"turn"`
}

// Validate checks the invariants of a decoded heartbeat.
func (h *Heartbeat) Validate() error {
	return statefs.ValidateName("worker", h.Worker)
}

// Age returns how long ago the heartbeat was recorded.
func (h Heartbeat) Age(now time.Time) time.Duration {
	return now.Sub(h.LastSeen)
}

// IsAlive reports whether a worker with heartbeat hb counts as alive at now.
// A heartbeat older than threshold means the worker is dead.
func IsAlive(hb Heartbeat, now time.Time, threshold time.Duration) bool {
	return hb.Age(now) <= threshold
}

// State is a worker's self-reported activity.
type State string

const (
	StateIdle    State = "idle"
	StateWorking State = "working"
	StateStopped State = "stopped"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	return s == StateIdle || s == StateWorking || s == StateStopped
}

// Status is the worker's most recent self-reported state.
type Status struct {
	Worker    string    `json:"worker"`
	State     State     `json:"state"`
	Detail    string    `json:"detail,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the invariants of a decoded status.
func (s *Status) Validate() error {
	if err := statefs.ValidateName("worker", s.Worker); err != nil {
		return err
	}
	if !s.State.Valid() {
		return fmt.Errorf("worker %s: unknown state %q", s.Worker, s.State)
	}
	return nil
}
