// Package taskstore persists a team's task list as one JSON file per task
// and implements claiming, release, status transitions, and readiness.
//
// Every read-modify-write of a task runs under that task's lock file, so
// two workers racing to claim the same task observe exactly one success.
// Readiness is derived on demand: a task is ready when every dependency
// exists and is completed. A dependency id with no task file is reported
// in [ReadinessReport.Missing] rather than treated as an error.
//
// Status transitions:
//
//	pending ──claim──> in_progress ──> completed | failed | blocked
//	blocked ──> pending
//	failed  ──retry──> pending
//
// Tasks are never deleted; completed and failed are terminal unless a
// failed task is retried.
package taskstore
