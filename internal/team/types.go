package team

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Iron-Ham/crew/internal/phase"
	"github.com/Iron-Ham/crew/internal/statefs"
)

// SchemaVersion is the config schema written by this release.
const SchemaVersion = 2

// Worker describes one member of the roster.
type Worker struct {
	Name          string   `json:"name" yaml:"name"`
	Index         int      `json:"index" yaml:"index"`
	Role          string   `json:"role,omitempty" yaml:"role,omitempty"`
	AssignedTasks []string `json:"assigned_tasks,omitempty" yaml:"assigned_tasks,omitempty"`
}

// Policy holds the team-wide limits. Durations are stored in milliseconds.
type Policy struct {
	MaxWorkers          int                      `json:"max_workers" yaml:"max_workers"`
	MaxFixAttempts      int                      `json:"max_fix_attempts" yaml:"max_fix_attempts"`
	OnFixExhausted      phase.FixExhaustedAction `json:"on_fix_exhausted" yaml:"on_fix_exhausted"`
	CarryFixAttempts    bool                     `json:"carry_fix_attempts,omitempty" yaml:"carry_fix_attempts,omitempty"`
	LockTimeoutMS       int64                    `json:"lock_timeout_ms" yaml:"lock_timeout_ms"`
	LockStaleAfterMS    int64                    `json:"lock_stale_after_ms" yaml:"lock_stale_after_ms"`
	LivenessThresholdMS int64                    `json:"liveness_threshold_ms" yaml:"liveness_threshold_ms"`
	ClaimLeaseMS        int64                    `json:"claim_lease_ms,omitempty" yaml:"claim_lease_ms,omitempty"`
}

// LockOptions returns the lock timings the policy asks for.
func (p Policy) LockOptions() statefs.LockOptions {
	opts := statefs.DefaultLockOptions()
	if p.LockTimeoutMS > 0 {
		opts.Timeout = time.Duration(p.LockTimeoutMS) * time.Millisecond
	}
	if p.LockStaleAfterMS > 0 {
		opts.StaleAfter = time.Duration(p.LockStaleAfterMS) * time.Millisecond
	}
	return opts
}

// LivenessThreshold is the heartbeat age past which a worker is dead.
func (p Policy) LivenessThreshold() time.Duration {
	return time.Duration(p.LivenessThresholdMS) * time.Millisecond
}

// ClaimLease is how long a claim stays exclusive without renewal. Zero
// means claims never expire.
func (p Policy) ClaimLease() time.Duration {
	return time.Duration(p.ClaimLeaseMS) * time.Millisecond
}

// PhasePolicy returns the phase controller settings.
func (p Policy) PhasePolicy() phase.Policy {
	return phase.Policy{OnFixExhausted: p.OnFixExhausted, CarryFixAttempts: p.CarryFixAttempts}
}

// Config is the persisted form of team/<team>/config.json.
type Config struct {
	SchemaVersion int       `json:"schema_version"`
	Name          string    `json:"name"`
	Leader        string    `json:"leader"`
	Workers       []Worker  `json:"workers"`
	Policy        Policy    `json:"policy"`
	Revision      int       `json:"revision"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	// Extra carries fields from older configs that this release does not
	// interpret. They are preserved on every save.
	Extra map[string]json.RawMessage `json:"extra,omitempty"`
}

// Validate checks schema version, names, policy values, and roster
// uniqueness.
func (c *Config) Validate() error {
	if c.SchemaVersion != SchemaVersion {
		return fmt.Errorf("schema_version %d, want %d", c.SchemaVersion, SchemaVersion)
	}
	if err := statefs.ValidateName("team", c.Name); err != nil {
		return err
	}
	if c.Leader != "" {
		if err := statefs.ValidateName("leader", c.Leader); err != nil {
			return err
		}
	}
	if err := validatePolicy(c.Policy); err != nil {
		return err
	}
	if len(c.Workers) > c.Policy.MaxWorkers {
		return fmt.Errorf("%d workers exceed max_workers %d", len(c.Workers), c.Policy.MaxWorkers)
	}
	names := make(map[string]bool, len(c.Workers))
	indexes := make(map[int]bool, len(c.Workers))
	for _, w := range c.Workers {
		if err := statefs.ValidateName("worker", w.Name); err != nil {
			return err
		}
		if names[w.Name] {
			return fmt.Errorf("duplicate worker %q", w.Name)
		}
		if w.Index < 0 || indexes[w.Index] {
			return fmt.Errorf("worker %q has invalid or duplicate index %d", w.Name, w.Index)
		}
		names[w.Name], indexes[w.Index] = true, true
	}
	if c.Revision < 0 {
		return fmt.Errorf("negative revision")
	}
	return nil
}

// Worker returns the roster entry named name.
func (c *Config) Worker(name string) (Worker, bool) {
	for _, w := range c.Workers {
		if w.Name == name {
			return w, true
		}
	}
	return Worker{}, false
}

// WorkerNames returns the roster names in roster order.
func (c *Config) WorkerNames() []string {
	names := make([]string, len(c.Workers))
	for i, w := range c.Workers {
		names[i] = w.Name
	}
	return names
}

func (c *Config) nextIndex() int {
	next := 0
	for _, w := range c.Workers {
		if w.Index >= next {
			next = w.Index + 1
		}
	}
	return next
}
