// Package event provides an in-process pub-sub bus for crew components.
//
// Stores publish an [Event] after each successful state change so that the
// monitor, CLI, and notification hooks inside the same process can react
// without polling. The bus is purely local: other processes learn about
// changes by reading the state directory.
//
// Event types follow "category.action":
//
//   - task.claimed, task.released, task.transitioned
//   - worker.stopped
//   - phase.changed
//   - mailbox.message, mailbox.notified
//   - dispatch.enqueued, dispatch.transitioned
//   - shutdown.requested, shutdown.completed
//   - scaling.advised
//
// A nil *Bus is valid and drops every event, so stores can publish
// unconditionally.
package event
