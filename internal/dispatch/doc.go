// Package dispatch implements leader-mediated requests: a worker files a
// request (an approval ask, a permission prompt, a plan review) and the
// leader decides it.
//
// Each request lives in team/<team>/dispatch/<id>.json. Status moves from
// pending to exactly one of approved, denied, or cancelled, and never
// leaves a terminal status. Every change is appended to the request's
// history. Like mailbox messages, requests carry independent delivered and
// notified flags, and the notifier fires at most once per request.
package dispatch
