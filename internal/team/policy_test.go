package team

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Iron-Ham/crew/internal/phase"
)

func TestNormalizePolicy(t *testing.T) {
	tests := []struct {
		name  string
		in    Policy
		check func(t *testing.T, p Policy)
	}{
		{"defaults", Policy{}, func(t *testing.T, p Policy) {
			assert.Equal(t, DefaultMaxWorkers, p.MaxWorkers)
			assert.Equal(t, DefaultMaxFixAttempts, p.MaxFixAttempts)
			assert.Equal(t, phase.OnFixExhaustedHold, p.OnFixExhausted)
			assert.Equal(t, int64(DefaultLockTimeoutMS), p.LockTimeoutMS)
			assert.Equal(t, int64(DefaultLivenessThresholdMS), p.LivenessThresholdMS)
			assert.Zero(t, p.ClaimLeaseMS)
		}},
		{"clamp high", Policy{MaxWorkers: 500}, func(t *testing.T, p Policy) {
			assert.Equal(t, AbsoluteMaxWorkers, p.MaxWorkers)
		}},
		{"clamp low", Policy{MaxWorkers: -2}, func(t *testing.T, p Policy) {
			assert.Equal(t, 1, p.MaxWorkers)
		}},
		{"unknown action", Policy{OnFixExhausted: "panic"}, func(t *testing.T, p Policy) {
			assert.Equal(t, phase.OnFixExhaustedHold, p.OnFixExhausted)
		}},
		{"tiny durations", Policy{LivenessThresholdMS: 5, LockTimeoutMS: 1, ClaimLeaseMS: -1}, func(t *testing.T, p Policy) {
			assert.Equal(t, int64(minLivenessThresholdMS), p.LivenessThresholdMS)
			assert.Equal(t, int64(minLockTimeoutMS), p.LockTimeoutMS)
			assert.Zero(t, p.ClaimLeaseMS)
		}},
		{"explicit values kept", Policy{MaxWorkers: 7, MaxFixAttempts: 1, OnFixExhausted: phase.OnFixExhaustedFail, ClaimLeaseMS: 60_000}, func(t *testing.T, p Policy) {
			assert.Equal(t, 7, p.MaxWorkers)
			assert.Equal(t, 1, p.MaxFixAttempts)
			assert.Equal(t, phase.OnFixExhaustedFail, p.OnFixExhausted)
			assert.Equal(t, time.Minute, p.ClaimLease())
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NormalizePolicy(tt.in)
			tt.check(t, p)
			assert.NoError(t, validatePolicy(p))
			assert.Equal(t, p, NormalizePolicy(p), "normalize is idempotent")
		})
	}
}

func TestPolicyConversions(t *testing.T) {
	p := NormalizePolicy(Policy{LockTimeoutMS: 250, LockStaleAfterMS: 9000, LivenessThresholdMS: 15_000, CarryFixAttempts: true})
	opts := p.LockOptions()
	assert.Equal(t, 250*time.Millisecond, opts.Timeout)
	assert.Equal(t, 9*time.Second, opts.StaleAfter)
	assert.Equal(t, 15*time.Second, p.LivenessThreshold())
	assert.Equal(t, phase.Policy{OnFixExhausted: phase.OnFixExhaustedHold, CarryFixAttempts: true}, p.PhasePolicy())
}
