package team

import (
	"fmt"

	"github.com/Iron-Ham/crew/internal/phase"
)

// Policy defaults and bounds.
const (
	AbsoluteMaxWorkers         = 32
	DefaultMaxWorkers          = 5
	DefaultMaxFixAttempts      = 3
	DefaultLockTimeoutMS       = 5_000
	DefaultLockStaleAfterMS    = 30_000
	DefaultLivenessThresholdMS = 30_000
	DefaultOnFixExhausted      = phase.OnFixExhaustedHold
	minLivenessThresholdMS     = 1_000
	minLockTimeoutMS           = 10
)

// DefaultPolicy returns NormalizePolicy of the zero policy.
func DefaultPolicy() Policy {
	return NormalizePolicy(Policy{})
}

// NormalizePolicy fills unset fields with defaults and clamps MaxWorkers to
// [1, AbsoluteMaxWorkers]. It never fails; values it cannot interpret are
// replaced by their defaults.
func NormalizePolicy(p Policy) Policy {
	switch {
	case p.MaxWorkers == 0:
		p.MaxWorkers = DefaultMaxWorkers
	case p.MaxWorkers < 1:
		p.MaxWorkers = 1
	case p.MaxWorkers > AbsoluteMaxWorkers:
		p.MaxWorkers = AbsoluteMaxWorkers
	}
	if p.MaxFixAttempts <= 0 {
		p.MaxFixAttempts = DefaultMaxFixAttempts
	}
	if p.OnFixExhausted == "" || !p.OnFixExhausted.Valid() {
		p.OnFixExhausted = DefaultOnFixExhausted
	}
	if p.LockTimeoutMS <= 0 {
		p.LockTimeoutMS = DefaultLockTimeoutMS
	} else if p.LockTimeoutMS < minLockTimeoutMS {
		p.LockTimeoutMS = minLockTimeoutMS
	}
	if p.LockStaleAfterMS <= 0 {
		p.LockStaleAfterMS = DefaultLockStaleAfterMS
	}
	if p.LivenessThresholdMS <= 0 {
		p.LivenessThresholdMS = DefaultLivenessThresholdMS
	} else if p.LivenessThresholdMS < minLivenessThresholdMS {
		p.LivenessThresholdMS = minLivenessThresholdMS
	}
	if p.ClaimLeaseMS < 0 {
		p.ClaimLeaseMS = 0
	}
	return p
}

func validatePolicy(p Policy) error {
	if p.MaxWorkers < 1 || p.MaxWorkers > AbsoluteMaxWorkers {
		return fmt.Errorf("max_workers %d outside [1, %d]", p.MaxWorkers, AbsoluteMaxWorkers)
	}
	if p.MaxFixAttempts < 0 {
		return fmt.Errorf("negative max_fix_attempts")
	}
	if !p.OnFixExhausted.Valid() {
		return fmt.Errorf("unknown on_fix_exhausted %q", p.OnFixExhausted)
	}
	if p.LockTimeoutMS < 0 || p.LockStaleAfterMS < 0 || p.LivenessThresholdMS < 0 || p.ClaimLeaseMS < 0 {
		return fmt.Errorf("negative duration in policy")
	}
	return nil
}
