// Package team manages the team-wide state of a crew: the schema-versioned
// team config, its policy, the worker roster, the persisted phase, and the
// shutdown handshake between the leader and its workers.
//
// A [Manager] is bound to one team under a state root. Roster changes run
// inside [Manager.WithScalingLock] so concurrent scale requests serialize.
// Configs written by older releases are upgraded in place by
// [MigrateV1ToV2]; see migrate.go for the accepted legacy shape.
//
// Shutdown is a two-sided handshake. The leader writes a request with
// [Manager.WriteShutdownRequest] and waits in [Manager.AwaitShutdown]; each
// targeted worker answers with [Manager.WriteShutdownAck]. A forced request
// completes without waiting, leaving any in-flight claims to be reclaimed
// once the holder's heartbeat goes stale.
package team
