package taskstore

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Iron-Ham/crew/internal/statefs"
)

// Status is the lifecycle state of a task.
type Status string

const (
	// StatusPending indicates the task is waiting to be claimed.
	StatusPending Status = "pending"
	// StatusInProgress indicates a worker holds a claim on the task.
	StatusInProgress Status = "in_progress"
	// StatusBlocked indicates the claimant gave up until something external
	// changes. The task must be moved back to pending to be claimed again.
	StatusBlocked Status = "blocked"
	// StatusCompleted indicates the task finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the task failed. It may be retried.
	StatusFailed Status = "failed"
)

// String returns the string representation of the status.
func (s Status) String() string { return string(s) }

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusBlocked, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether s is completed or failed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// transitions lists the status changes Transition accepts.
var transitions = map[Status][]Status{
	StatusPending:    {StatusInProgress},
	StatusInProgress: {StatusCompleted, StatusFailed, StatusBlocked},
	StatusBlocked:    {StatusPending},
	StatusFailed:     {StatusPending},
}

// CanTransition reports whether from -> to is a permitted status change.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// Claim records which worker owns an in-progress task.
type Claim struct {
	Worker    string    `json:"worker"`
	ClaimedAt time.Time `json:"claimed_at"`
	// LeaseExpiresAt is nil when claims never expire.
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`
}

// Expired reports whether the claim lease has run out at now.
func (c *Claim) Expired(now time.Time) bool {
	return c.LeaseExpiresAt != nil && !now.Before(*c.LeaseExpiresAt)
}

// Task is the persisted form of team/<team>/tasks/<id>.json.
type Task struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Status      Status   `json:"status"`
	DependsOn   []string `json:"depends_on,omitempty"`
	// Priority orders tasks within the same dependency level; lower first.
	Priority int    `json:"priority"`
	Claim    *Claim `json:"claim,omitempty"`
	// LastWorker is the worker that held the most recent claim.
	LastWorker string    `json:"last_worker,omitempty"`
	Attempts   int       `json:"attempts"`
	Result     string    `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Validate checks the invariants of a decoded task.
func (t *Task) Validate() error {
	if err := statefs.ValidateName("task", t.ID); err != nil {
		return err
	}
	if !t.Status.Valid() {
		return fmt.Errorf("task %s: unknown status %q", t.ID, t.Status)
	}
	if t.Status == StatusInProgress && (t.Claim == nil || t.Claim.Worker == "") {
		return fmt.Errorf("task %s: in_progress without a claim", t.ID)
	}
	if t.Status != StatusInProgress && t.Claim != nil {
		return fmt.Errorf("task %s: %s task carries a claim", t.ID, t.Status)
	}
	if t.Attempts < 0 {
		return errors.New("attempts must not be negative")
	}
	for _, dep := range t.DependsOn {
		if dep == t.ID {
			return fmt.Errorf("task %s depends on itself", t.ID)
		}
		if err := statefs.ValidateName("dependency", dep); err != nil {
			return err
		}
	}
	return nil
}

// ClaimedBy returns the current claimant, or "" when unclaimed.
func (t *Task) ClaimedBy() string {
	if t.Claim == nil {
		return ""
	}
	return t.Claim.Worker
}

// Counts aggregates tasks by status.
type Counts struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Blocked    int `json:"blocked"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
}

func (c *Counts) add(s Status) {
	c.Total++
	switch s {
	case StatusPending:
		c.Pending++
	case StatusInProgress:
		c.InProgress++
	case StatusBlocked:
		c.Blocked++
	case StatusCompleted:
		c.Completed++
	case StatusFailed:
		c.Failed++
	}
}

// Tally counts tasks by status.
func Tally(tasks []Task) Counts {
	var c Counts
	for i := range tasks {
		c.add(tasks[i].Status)
	}
	return c
}

// ReadinessReport explains whether a task may be claimed.
type ReadinessReport struct {
	TaskID string `json:"task_id"`
	Ready  bool   `json:"ready"`
	// Missing lists dependency ids with no task file.
	Missing []string `json:"missing,omitempty"`
	// Incomplete lists dependencies that exist but are not completed.
	Incomplete []string `json:"incomplete,omitempty"`
}

// TransitionOptions carries the optional data recorded with a transition.
type TransitionOptions struct {
	// Worker identifies the caller. Leaving in_progress requires it to match
	// the claimant when set; entering in_progress requires it.
	Worker string
	// Result is recorded on completion.
	Result string
	// Error is recorded on failure or block.
	Error string
}
