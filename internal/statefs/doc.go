// Package statefs is the storage primitive every crew store is built on.
//
// The team state directory is the only medium shared between worker, leader,
// and monitor processes, so every mutation goes through two operations:
//
//   - [WriteAtomic] writes to a temporary sibling and renames it into place.
//     Readers observe either the previous or the new content, never a
//     partial file, even if the writer crashes mid-write.
//   - [WithLock] runs a critical section while holding an exclusive,
//     timeout-bounded lock file. Locks held past their stale age (or whose
//     holder process has exited) are reclaimed so a crashed holder cannot
//     deadlock the team.
//
// [ReadJSON] is the matching read side: a missing file surfaces as
// [errors.ErrNotFound] and unparsable or unknown-shaped content as
// [errors.ErrMalformedState], never as a silently zeroed value.
//
// [Layout] maps entities to paths:
//
//	<root>/team/<team>/config.json
//	<root>/team/<team>/phase.json
//	<root>/team/<team>/shutdown.json
//	<root>/team/<team>/tasks/<taskId>.json
//	<root>/team/<team>/workers/<worker>/{identity,heartbeat,status,inbox,shutdown-ack}.json
//	<root>/team/<team>/dispatch/<requestId>.json
//	<root>/team/<team>/.locks/*.lock
package statefs
