package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a "category.action" identifier.
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeTaskClaimed          = "task.claimed"
	TypeTaskReleased         = "task.released"
	TypeTaskTransitioned     = "task.transitioned"
	TypeWorkerStopped        = "worker.stopped"
	TypePhaseChanged         = "phase.changed"
	TypeMailboxMessage       = "mailbox.message"
	TypeMailboxNotified      = "mailbox.notified"
	TypeDispatchEnqueued     = "dispatch.enqueued"
	TypeDispatchTransitioned = "dispatch.transitioned"
	TypeShutdownRequested    = "shutdown.requested"
	TypeShutdownCompleted    = "shutdown.completed"
	TypeScalingAdvised       = "scaling.advised"
)

// baseEvent provides common fields for all events.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Task Events
// -----------------------------------------------------------------------------

// TaskClaimedEvent is emitted after a worker successfully claims a task.
type TaskClaimedEvent struct {
	baseEvent
	Team   string
	TaskID string
	Worker string
}

// NewTaskClaimedEvent creates a TaskClaimedEvent.
func NewTaskClaimedEvent(team, taskID, worker string) TaskClaimedEvent {
	return TaskClaimedEvent{
		baseEvent: newBaseEvent(TypeTaskClaimed),
		Team:      team,
		TaskID:    taskID,
		Worker:    worker,
	}
}

// TaskReleasedEvent is emitted when a claim is cleared, either voluntarily
// or by reclamation after the holder died.
type TaskReleasedEvent struct {
	baseEvent
	Team      string
	TaskID    string
	Worker    string // previous claim holder
	Reclaimed bool
}

// NewTaskReleasedEvent creates a TaskReleasedEvent.
func NewTaskReleasedEvent(team, taskID, worker string, reclaimed bool) TaskReleasedEvent {
	return TaskReleasedEvent{
		baseEvent: newBaseEvent(TypeTaskReleased),
		Team:      team,
		TaskID:    taskID,
		Worker:    worker,
		Reclaimed: reclaimed,
	}
}

// TaskTransitionedEvent is emitted after a task status change.
type TaskTransitionedEvent struct {
	baseEvent
	Team   string
	TaskID string
	From   string
	To     string
}

// NewTaskTransitionedEvent creates a TaskTransitionedEvent.
func NewTaskTransitionedEvent(team, taskID, from, to string) TaskTransitionedEvent {
	return TaskTransitionedEvent{
		baseEvent: newBaseEvent(TypeTaskTransitioned),
		Team:      team,
		TaskID:    taskID,
		From:      from,
		To:        to,
	}
}

// -----------------------------------------------------------------------------
// Worker and Phase Events
// -----------------------------------------------------------------------------

// WorkerStoppedEvent is emitted by the monitor once per detected worker death.
type WorkerStoppedEvent struct {
	baseEvent
	Team          string
	Worker        string
	LastSeen      time.Time
	ReclaimedTask []string
}

// NewWorkerStoppedEvent creates a WorkerStoppedEvent.
func NewWorkerStoppedEvent(team, worker string, lastSeen time.Time, reclaimed []string) WorkerStoppedEvent {
	return WorkerStoppedEvent{
		baseEvent:     newBaseEvent(TypeWorkerStopped),
		Team:          team,
		Worker:        worker,
		LastSeen:      lastSeen,
		ReclaimedTask: reclaimed,
	}
}

// PhaseChangedEvent is emitted for every phase hop the monitor persists.
type PhaseChangedEvent struct {
	baseEvent
	Team string
	From string
	To   string
}

// NewPhaseChangedEvent creates a PhaseChangedEvent.
func NewPhaseChangedEvent(team, from, to string) PhaseChangedEvent {
	return PhaseChangedEvent{
		baseEvent: newBaseEvent(TypePhaseChanged),
		Team:      team,
		From:      from,
		To:        to,
	}
}

// -----------------------------------------------------------------------------
// Messaging Events
// -----------------------------------------------------------------------------

// MailboxMessageEvent is emitted when a message lands in a worker inbox.
type MailboxMessageEvent struct {
	baseEvent
	Team      string
	MessageID string
	From      string
	To        string
	Broadcast bool
}

// NewMailboxMessageEvent creates a MailboxMessageEvent.
func NewMailboxMessageEvent(team, messageID, from, to string, broadcast bool) MailboxMessageEvent {
	return MailboxMessageEvent{
		baseEvent: newBaseEvent(TypeMailboxMessage),
		Team:      team,
		MessageID: messageID,
		From:      from,
		To:        to,
		Broadcast: broadcast,
	}
}

// MailboxNotifiedEvent is emitted the first time a message is marked notified.
type MailboxNotifiedEvent struct {
	baseEvent
	Team      string
	MessageID string
	Worker    string
}

// NewMailboxNotifiedEvent creates a MailboxNotifiedEvent.
func NewMailboxNotifiedEvent(team, messageID, worker string) MailboxNotifiedEvent {
	return MailboxNotifiedEvent{
		baseEvent: newBaseEvent(TypeMailboxNotified),
		Team:      team,
		MessageID: messageID,
		Worker:    worker,
	}
}

// -----------------------------------------------------------------------------
// Dispatch Events
// -----------------------------------------------------------------------------

// DispatchEnqueuedEvent is emitted when a worker files a dispatch request.
type DispatchEnqueuedEvent struct {
	baseEvent
	Team      string
	RequestID string
	Kind      string
	From      string
}

// NewDispatchEnqueuedEvent creates a DispatchEnqueuedEvent.
func NewDispatchEnqueuedEvent(team, requestID, kind, from string) DispatchEnqueuedEvent {
	return DispatchEnqueuedEvent{
		baseEvent: newBaseEvent(TypeDispatchEnqueued),
		Team:      team,
		RequestID: requestID,
		Kind:      kind,
		From:      from,
	}
}

// DispatchTransitionedEvent is emitted after a leader decision on a request.
type DispatchTransitionedEvent struct {
	baseEvent
	Team      string
	RequestID string
	From      string
	To        string
}

// NewDispatchTransitionedEvent creates a DispatchTransitionedEvent.
func NewDispatchTransitionedEvent(team, requestID, from, to string) DispatchTransitionedEvent {
	return DispatchTransitionedEvent{
		baseEvent: newBaseEvent(TypeDispatchTransitioned),
		Team:      team,
		RequestID: requestID,
		From:      from,
		To:        to,
	}
}

// -----------------------------------------------------------------------------
// Shutdown Events
// -----------------------------------------------------------------------------

// ShutdownRequestedEvent is emitted when the leader writes a shutdown request.
type ShutdownRequestedEvent struct {
	baseEvent
	Team    string
	Targets []string
	Force   bool
}

// NewShutdownRequestedEvent creates a ShutdownRequestedEvent.
func NewShutdownRequestedEvent(team string, targets []string, force bool) ShutdownRequestedEvent {
	return ShutdownRequestedEvent{
		baseEvent: newBaseEvent(TypeShutdownRequested),
		Team:      team,
		Targets:   targets,
		Force:     force,
	}
}

// ShutdownCompletedEvent is emitted when the leader stops waiting for acks.
type ShutdownCompletedEvent struct {
	baseEvent
	Team    string
	Acked   []string
	Missing []string
	Forced  bool
}

// NewShutdownCompletedEvent creates a ShutdownCompletedEvent.
func NewShutdownCompletedEvent(team string, acked, missing []string, forced bool) ShutdownCompletedEvent {
	return ShutdownCompletedEvent{
		baseEvent: newBaseEvent(TypeShutdownCompleted),
		Team:      team,
		Acked:     acked,
		Missing:   missing,
		Forced:    forced,
	}
}

// -----------------------------------------------------------------------------
// Scaling Events
// -----------------------------------------------------------------------------

// ScalingAdvisedEvent is emitted when the monitor recommends a roster change.
type ScalingAdvisedEvent struct {
	baseEvent
	Team        string
	Action      string
	Delta       int
	Reason      string
	LiveWorkers int
}

// NewScalingAdvisedEvent creates a ScalingAdvisedEvent.
func NewScalingAdvisedEvent(team, action string, delta int, reason string, live int) ScalingAdvisedEvent {
	return ScalingAdvisedEvent{
		baseEvent:   newBaseEvent(TypeScalingAdvised),
		Team:        team,
		Action:      action,
		Delta:       delta,
		Reason:      reason,
		LiveWorkers: live,
	}
}
