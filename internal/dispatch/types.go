package dispatch

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/crew/internal/statefs"
)

// Kind identifies what a worker is asking for.
type Kind string

const (
	KindApproval   Kind = "approval"
	KindPermission Kind = "permission"
	KindPlanReview Kind = "plan-review"
	KindQuestion   Kind = "question"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindApproval, KindPermission, KindPlanReview, KindQuestion:
		return true
	}
	return false
}

// Status is the decision state of a request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusDenied    Status = "denied"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s.IsTerminal()
}

// IsTerminal reports whether s is a final decision.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusDenied || s == StatusCancelled
}

// CanTransition reports whether a request may move from one status to
// another. Only pending requests can change.
func CanTransition(from, to Status) bool {
	return from == StatusPending && to.IsTerminal()
}

// Transport is the delivery channel a worker prefers for the decision.
type Transport string

const (
	TransportAny      Transport = "any"
	TransportMailbox  Transport = "mailbox"
	TransportExternal Transport = "external"
)

// Valid reports whether t is a known transport.
func (t Transport) Valid() bool {
	return t == TransportAny || t == TransportMailbox || t == TransportExternal
}

// Transition is one entry of a request's audit history.
type Transition struct {
	From   Status    `json:"from"`
	To     Status    `json:"to"`
	At     time.Time `json:"at"`
	By     string    `json:"by,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

// Request is the persisted form of team/<team>/dispatch/<id>.json.
type Request struct {
	ID          string       `json:"id"`
	Kind        Kind         `json:"kind"`
	From        string       `json:"from"`
	TaskID      string       `json:"task_id,omitempty"`
	Status      Status       `json:"status"`
	Transport   Transport    `json:"transport"`
	Payload     string       `json:"payload"`
	Delivered   bool         `json:"delivered"`
	DeliveredAt *time.Time   `json:"delivered_at,omitempty"`
	Notified    bool         `json:"notified"`
	NotifiedAt  *time.Time   `json:"notified_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	History     []Transition `json:"history"`
}

// Validate checks the invariants of a decoded request, including that its
// history is a legal chain ending at the current status.
func (r *Request) Validate() error {
	if _, err := uuid.Parse(r.ID); err != nil {
		return fmt.Errorf("request id %q: %w", r.ID, err)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("request %s: unknown kind %q", r.ID, r.Kind)
	}
	if err := statefs.ValidateName("worker", r.From); err != nil {
		return err
	}
	if r.TaskID != "" {
		if err := statefs.ValidateName("task", r.TaskID); err != nil {
			return err
		}
	}
	if !r.Status.Valid() {
		return fmt.Errorf("request %s: unknown status %q", r.ID, r.Status)
	}
	if !r.Transport.Valid() {
		return fmt.Errorf("request %s: unknown transport %q", r.ID, r.Transport)
	}
	if r.Delivered != (r.DeliveredAt != nil) || r.Notified != (r.NotifiedAt != nil) {
		return fmt.Errorf("request %s: flag and timestamp disagree", r.ID)
	}

	current := StatusPending
	last := r.CreatedAt
	for i, tr := range r.History {
		if tr.From != current || !CanTransition(tr.From, tr.To) {
			return fmt.Errorf("request %s: history entry %d %s->%s is not a legal step from %s", r.ID, i, tr.From, tr.To, current)
		}
		if tr.At.Before(last) {
			return fmt.Errorf("request %s: history entry %d goes back in time", r.ID, i)
		}
		current, last = tr.To, tr.At
	}
	if current != r.Status {
		return fmt.Errorf("request %s: status %s disagrees with history ending at %s", r.ID, r.Status, current)
	}
	return nil
}
