package scaling

import (
	"fmt"
	"sync"
	"time"

	"github.com/Iron-Ham/crew/internal/taskstore"
)

// Default policy values.
const (
	defaultMinWorkers         = 1
	defaultMaxWorkers         = 8
	defaultScaleUpThreshold   = 2
	defaultScaleDownThreshold = 1
	defaultCooldownPeriod     = 30 * time.Second
)

// ReasonCooldown is the reason given while the cooldown suppresses advice.
const ReasonCooldown = "cooldown period active"

// Option configures a Policy.
type Option func(*Policy)

// WithMinWorkers sets the roster size scale-down never goes below.
func WithMinWorkers(n int) Option {
	return func(p *Policy) { p.minWorkers = n }
}

// WithMaxWorkers sets the roster size scale-up never exceeds.
func WithMaxWorkers(n int) Option {
	return func(p *Policy) { p.maxWorkers = n }
}

// WithScaleUpThreshold sets the pending task count above which scaling up
// is recommended, provided pending work also outnumbers running work.
func WithScaleUpThreshold(n int) Option {
	return func(p *Policy) { p.scaleUpThreshold = n }
}

// WithScaleDownThreshold sets the in-progress count at or below which an
// idle backlog recommends scaling down.
func WithScaleDownThreshold(n int) Option {
	return func(p *Policy) { p.scaleDownThreshold = n }
}

// WithCooldownPeriod sets the minimum time between recommendations.
func WithCooldownPeriod(d time.Duration) Option {
	return func(p *Policy) { p.cooldownPeriod = d }
}

// WithClock overrides the time source used for the cooldown.
func WithClock(clock func() time.Time) Option {
	return func(p *Policy) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// Policy holds the scaling rules and the time of the last recommendation.
type Policy struct {
	mu                 sync.Mutex
	minWorkers         int
	maxWorkers         int
	scaleUpThreshold   int
	scaleDownThreshold int
	cooldownPeriod     time.Duration
	clock              func() time.Time
	lastDecisionTime   time.Time
}

// NewPolicy creates a Policy with the given options. Unset options use
// defaults.
func NewPolicy(opts ...Option) *Policy {
	p := &Policy{
		minWorkers:         defaultMinWorkers,
		maxWorkers:         defaultMaxWorkers,
		scaleUpThreshold:   defaultScaleUpThreshold,
		scaleDownThreshold: defaultScaleDownThreshold,
		cooldownPeriod:     defaultCooldownPeriod,
		clock:              time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Evaluate compares the backlog in counts with the number of live workers.
// Blocked tasks are not counted as backlog since no worker can start them.
func (p *Policy) Evaluate(counts taskstore.Counts, liveWorkers int) Decision {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock()
	if !p.lastDecisionTime.IsZero() && now.Sub(p.lastDecisionTime) < p.cooldownPeriod {
		return Decision{Action: ActionNone, Reason: ReasonCooldown}
	}

	pending, running := counts.Pending, counts.InProgress
	if pending > p.scaleUpThreshold && pending > running && liveWorkers < p.maxWorkers {
		delta := min(pending-running, p.maxWorkers-liveWorkers)
		if delta > 0 {
			p.lastDecisionTime = now
			return Decision{
				Action: ActionScaleUp,
				Delta:  delta,
				Reason: fmt.Sprintf("%d pending tasks with %d running (threshold: %d)", pending, running, p.scaleUpThreshold),
			}
		}
	}

	// Shrink one worker at a time.
	if pending == 0 && running <= p.scaleDownThreshold && liveWorkers > p.minWorkers {
		p.lastDecisionTime = now
		return Decision{
			Action: ActionScaleDown,
			Delta:  -1,
			Reason: fmt.Sprintf("no pending tasks with %d running (threshold: %d)", running, p.scaleDownThreshold),
		}
	}

	return Decision{Action: ActionNone, Reason: "no scaling needed"}
}
