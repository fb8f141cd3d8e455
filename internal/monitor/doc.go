// Package monitor is the leader-side control loop of a team.
//
// Each tick takes a [Snapshot] of the team: task counts, the liveness of
// every known worker, and the persisted phase. Workers whose heartbeat is
// older than the liveness threshold are declared dead; their claims are
// released back to pending and a worker.stopped event is published once per
// death. The task counts then drive the phase controller and the scaling
// advisor.
//
// Snapshots are derived data. Nothing reads them back; the state directory
// remains the only source of truth.
package monitor
