package team

import (
	"fmt"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/event"
	"github.com/Iron-Ham/crew/internal/phase"
	"github.com/Iron-Ham/crew/internal/statefs"
)

// ReadPhase loads phase.json.
func (m *Manager) ReadPhase() (phase.State, error) {
	var st phase.State
	if err := statefs.ReadJSON(m.layout.PhasePath(m.team), "team phase", &st); err != nil {
		return phase.State{}, err
	}
	return st, nil
}

// UpdatePhase applies fn to the persisted phase under the phase lock. A
// missing phase document starts from team-exec. The document is rewritten
// only when fn changed it, and one phase.changed event is published per
// recorded hop.
func (m *Manager) UpdatePhase(fn func(phase.State) (phase.State, error)) (phase.State, error) {
	path := m.layout.PhasePath(m.team)
	var cur, next phase.State
	err := statefs.WithLock(m.layout.LockPath(m.team, "phase"), m.lockOpts, func() error {
		var err error
		cur, err = m.ReadPhase()
		switch {
		case crewerrors.IsNotFound(err):
			cfg, cfgErr := m.ReadConfig()
			if cfgErr != nil {
				return cfgErr
			}
			cur = phase.NewState(cfg.Policy.MaxFixAttempts, m.now())
		case err != nil:
			return err
		}

		next, err = fn(cur)
		if err != nil {
			return err
		}
		if err := next.Validate(); err != nil {
			return fmt.Errorf("%w: %v", crewerrors.ErrInvalidInput, err)
		}
		if samePhaseState(cur, next) && statefs.Exists(path) {
			return nil
		}
		return statefs.WriteJSON(path, next)
	})
	if err != nil {
		return phase.State{}, err
	}
	for _, hop := range next.Hops(cur) {
		m.logger.Info("phase changed", "from", string(hop.From), "to", string(hop.To), "reason", hop.Reason)
		m.bus.Publish(event.NewPhaseChangedEvent(m.team, string(hop.From), string(hop.To)))
	}
	return next, nil
}

func samePhaseState(a, b phase.State) bool {
	return a.CurrentPhase == b.CurrentPhase &&
		a.MaxFixAttempts == b.MaxFixAttempts &&
		a.CurrentFixAttempt == b.CurrentFixAttempt &&
		a.FixExhausted == b.FixExhausted &&
		len(a.Transitions) == len(b.Transitions)
}

// ReconcilePhase infers the target phase from counts and advances the
// persisted phase toward it under the team's policy.
func (m *Manager) ReconcilePhase(counts phase.Counts, opts phase.InferOptions) (phase.State, error) {
	cfg, err := m.ReadConfig()
	if err != nil {
		return phase.State{}, err
	}
	target := phase.InferTarget(counts, opts)
	return m.UpdatePhase(func(st phase.State) (phase.State, error) {
		st.MaxFixAttempts = cfg.Policy.MaxFixAttempts
		return phase.Reconcile(st, target, m.now(), cfg.Policy.PhasePolicy()), nil
	})
}

// SetPhaseTerminal moves the team to failed or cancelled.
func (m *Manager) SetPhaseTerminal(to phase.Phase, reason string) (phase.State, error) {
	return m.UpdatePhase(func(st phase.State) (phase.State, error) {
		next, err := phase.SetTerminal(st, to, reason, m.now())
		if err != nil {
			return phase.State{}, fmt.Errorf("%w: %v", crewerrors.ErrInvalidTransition, err)
		}
		return next, nil
	})
}
