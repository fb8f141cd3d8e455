// Package phase derives and advances a team's lifecycle phase.
//
// Everything here is pure: functions take explicit inputs, including the
// current time, and return new values. Persisting the result is the
// caller's job.
//
// [InferTarget] maps aggregate task counts to the phase the team should be
// in. [Reconcile] walks the current phase toward that target one legal hop
// at a time, recording each hop:
//
//	team-exec ──> team-verify ──> complete
//	                 │   ^            │
//	                 v   │            │ reopen (any non-terminal)
//	              team-fix <──────────┘
//
// team-fix may also return to team-exec when failed tasks are retried.
// failed and cancelled are only set through [SetTerminal] and are sticky.
package phase
