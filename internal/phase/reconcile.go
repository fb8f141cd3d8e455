package phase

import (
	"fmt"
	"time"
)

// FixExhaustedAction decides what happens when the team would enter
// team-fix with no fix attempts left.
type FixExhaustedAction string

const (
	// OnFixExhaustedHold enters team-fix without counting an attempt and sets
	// FixExhausted so the leader can intervene.
	OnFixExhaustedHold FixExhaustedAction = "hold"
	// OnFixExhaustedFail moves the team to failed.
	OnFixExhaustedFail FixExhaustedAction = "fail"
)

// Valid reports whether a is a known action. The empty value means hold.
func (a FixExhaustedAction) Valid() bool {
	return a == "" || a == OnFixExhaustedHold || a == OnFixExhaustedFail
}

// Policy tunes Reconcile.
type Policy struct {
	OnFixExhausted FixExhaustedAction
	// CarryFixAttempts keeps the fix attempt counter across the
	// fix -> exec -> verify -> fix loop, so MaxFixAttempts bounds how many
	// times the team cycles through team-fix. Without it the counter resets
	// whenever the team leaves team-fix and only a single fix pass counts.
	CarryFixAttempts bool
}

// Hop reasons recorded in the transition history.
const (
	ReasonReconcile    = "reconcile"
	ReasonReopen       = "reopen"
	ReasonFixExhausted = "fix attempts exhausted"
)

// Reconcile moves s toward target along the shortest legal path and
// returns the new state. It never fails: a sticky current phase, an unknown
// or sticky target, or a target equal to the current phase all return an
// unchanged copy. s itself is not modified.
func Reconcile(s State, target Phase, now time.Time, policy Policy) State {
	out := s.clone()
	if out.CurrentPhase.IsSticky() || !target.Valid() || target.IsSticky() || out.CurrentPhase == target {
		return out
	}

	steps := path(out.CurrentPhase, target)
	for _, next := range steps {
		reason := ReasonReconcile
		if out.CurrentPhase == PhaseComplete {
			reason = ReasonReopen
			out.CurrentFixAttempt = 0
			out.FixExhausted = false
		}

		switch {
		case next == PhaseFix && out.exhausted():
			if policy.OnFixExhausted == OnFixExhaustedFail {
				out.hop(PhaseFailed, now, ReasonFixExhausted)
				return out
			}
			out.FixExhausted = true
			reason = ReasonFixExhausted
		case next == PhaseFix:
			out.CurrentFixAttempt++
		case next == PhaseComplete:
			out.CurrentFixAttempt = 0
			out.FixExhausted = false
		case out.CurrentPhase == PhaseFix && !policy.CarryFixAttempts:
			out.CurrentFixAttempt = 0
			out.FixExhausted = false
		}
		out.hop(next, now, reason)
	}
	return out
}

func (s *State) exhausted() bool {
	return s.MaxFixAttempts > 0 && s.CurrentFixAttempt >= s.MaxFixAttempts
}

// SetTerminal moves s to failed or cancelled regardless of the task counts.
// Setting the phase the team is already in is a no-op.
func SetTerminal(s State, to Phase, reason string, now time.Time) (State, error) {
	if !to.IsSticky() {
		return s, fmt.Errorf("%s is not a terminal phase that can be set directly", to)
	}
	out := s.clone()
	if out.CurrentPhase == to {
		return out, nil
	}
	if out.CurrentPhase.IsSticky() {
		return s, fmt.Errorf("team is already %s", out.CurrentPhase)
	}
	out.hop(to, now, reason)
	return out, nil
}
