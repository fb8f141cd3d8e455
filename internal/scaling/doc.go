// Package scaling recommends growing or shrinking a team's roster from its
// task backlog.
//
// A [Policy] compares pending and in-progress task counts against the
// number of live workers and returns a [Decision]. Decisions are advice:
// the monitor publishes them and the leader applies them through
// team.Manager.AddWorker and RemoveWorker. A cooldown keeps successive
// recommendations from thrashing the roster.
//
//	policy := scaling.NewPolicy(
//	    scaling.WithMinWorkers(1),
//	    scaling.WithMaxWorkers(cfg.Policy.MaxWorkers),
//	    scaling.WithCooldownPeriod(time.Minute),
//	)
//	d := policy.Evaluate(counts, live)
//
// Policy is safe for concurrent use.
package scaling
