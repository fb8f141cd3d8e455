// Package mailbox implements per-worker inboxes for a crew team.
//
// Each worker's inbox is a single JSON document,
// team/<team>/workers/<worker>/inbox.json, rewritten atomically under the
// inbox lock on every change. Messages are append-only; the only mutations
// after a send are the delivered and notified flags.
//
// Delivered and notified are tracked independently. Delivered means the
// recipient consumed the message. Notified means an out-of-band alert was
// issued through a [notify.Notifier]. Both marks are idempotent, and the
// notifier is never invoked twice for the same message.
//
// # Broadcast
//
// [Mailbox.Broadcast] writes a copy of the message, sharing one id, into the
// inbox of every roster member whose name matches a glob pattern, except
// the sender.
//
// # Watching
//
// [Mailbox.Watch] hands undelivered messages to a callback as they arrive.
// It reacts to filesystem notifications on the worker directory and also
// polls, so missed or unsupported notifications only add latency.
package mailbox
