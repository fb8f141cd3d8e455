package phase

import (
	"fmt"
	"time"
)

// Phase is a team lifecycle stage.
type Phase string

const (
	PhaseExec      Phase = "team-exec"
	PhaseVerify    Phase = "team-verify"
	PhaseFix       Phase = "team-fix"
	PhaseComplete  Phase = "complete"
	PhaseFailed    Phase = "failed"
	PhaseCancelled Phase = "cancelled"
)

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseExec, PhaseVerify, PhaseFix, PhaseComplete, PhaseFailed, PhaseCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether p ends the team's work. complete may still be
// reopened; failed and cancelled may not.
func (p Phase) IsTerminal() bool {
	return p == PhaseComplete || p.IsSticky()
}

// IsSticky reports whether Reconcile leaves p alone.
func (p Phase) IsSticky() bool {
	return p == PhaseFailed || p == PhaseCancelled
}

// hops lists the phases reachable in a single step.
var hops = map[Phase][]Phase{
	PhaseExec:     {PhaseVerify},
	PhaseVerify:   {PhaseFix, PhaseComplete, PhaseExec},
	PhaseFix:      {PhaseExec, PhaseVerify, PhaseComplete},
	PhaseComplete: {PhaseExec, PhaseVerify, PhaseFix},
}

// path returns the shortest hop sequence from -> to, excluding from. It
// returns nil when to is unreachable or equal to from.
func path(from, to Phase) []Phase {
	if from == to {
		return nil
	}
	prev := map[Phase]Phase{from: from}
	queue := []Phase{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range hops[cur] {
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = cur
			if next == to {
				var out []Phase
				for p := to; p != from; p = prev[p] {
					out = append([]Phase{p}, out...)
				}
				return out
			}
			queue = append(queue, next)
		}
	}
	return nil
}

// Counts are the task totals the phase is inferred from.
type Counts struct {
	Pending    int `json:"pending"`
	Blocked    int `json:"blocked"`
	InProgress int `json:"in_progress"`
	Failed     int `json:"failed"`
}

// InferOptions adjusts target inference.
type InferOptions struct {
	// VerificationPending holds the team in team-verify once all work is
	// done and nothing failed.
	VerificationPending bool
}

// InferTarget returns the phase the team should be in for counts: exec
// while any work remains, fix when only failures remain, verify when a
// verification is pending, complete otherwise.
func InferTarget(c Counts, opts InferOptions) Phase {
	switch {
	case c.Pending+c.Blocked+c.InProgress > 0:
		return PhaseExec
	case c.Failed > 0:
		return PhaseFix
	case opts.VerificationPending:
		return PhaseVerify
	default:
		return PhaseComplete
	}
}

// Transition records one phase hop.
type Transition struct {
	From   Phase     `json:"from"`
	To     Phase     `json:"to"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// State is the persisted form of team/<team>/phase.json.
type State struct {
	CurrentPhase      Phase        `json:"current_phase"`
	MaxFixAttempts    int          `json:"max_fix_attempts"`
	CurrentFixAttempt int          `json:"current_fix_attempt"`
	FixExhausted      bool         `json:"fix_exhausted,omitempty"`
	Transitions       []Transition `json:"transitions"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// NewState returns the initial state of a team: team-exec with no history.
func NewState(maxFixAttempts int, now time.Time) State {
	return State{
		CurrentPhase:   PhaseExec,
		MaxFixAttempts: maxFixAttempts,
		Transitions:    []Transition{},
		UpdatedAt:      now,
	}
}

// Validate checks the invariants of a decoded state: known phases, a
// history chain starting at team-exec and ending at the current phase, and
// non-decreasing timestamps.
func (s *State) Validate() error {
	if !s.CurrentPhase.Valid() {
		return fmt.Errorf("unknown phase %q", s.CurrentPhase)
	}
	if s.MaxFixAttempts < 0 || s.CurrentFixAttempt < 0 {
		return fmt.Errorf("fix attempt counters must not be negative")
	}
	cur := PhaseExec
	var last time.Time
	for i, tr := range s.Transitions {
		if tr.From != cur || !tr.To.Valid() || tr.To == tr.From {
			return fmt.Errorf("transition %d %s->%s does not continue from %s", i, tr.From, tr.To, cur)
		}
		if tr.At.Before(last) {
			return fmt.Errorf("transition %d goes back in time", i)
		}
		cur, last = tr.To, tr.At
	}
	if cur != s.CurrentPhase {
		return fmt.Errorf("current phase %s disagrees with history ending at %s", s.CurrentPhase, cur)
	}
	return nil
}

// clone returns a copy whose history does not alias s.
func (s State) clone() State {
	s.Transitions = append([]Transition(nil), s.Transitions...)
	return s
}

// hop appends a transition to next, keeping timestamps non-decreasing.
func (s *State) hop(next Phase, now time.Time, reason string) {
	if n := len(s.Transitions); n > 0 && now.Before(s.Transitions[n-1].At) {
		now = s.Transitions[n-1].At
	}
	s.Transitions = append(s.Transitions, Transition{From: s.CurrentPhase, To: next, At: now, Reason: reason})
	s.CurrentPhase = next
	s.UpdatedAt = now
}

// Hops returns the transitions in s that are not in before, i.e. the hops
// added by a Reconcile or SetTerminal call.
func (s State) Hops(before State) []Transition {
	if len(s.Transitions) <= len(before.Transitions) {
		return nil
	}
	return s.Transitions[len(before.Transitions):]
}
