package mailbox

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Iron-Ham/crew/internal/statefs"
)

// MessageType identifies the kind of message.
type MessageType string

const (
	// MessageText is free-form conversation.
	MessageText MessageType = "text"

	// MessageQuestion requests help from the recipient.
	MessageQuestion MessageType = "question"

	// MessageAnswer responds to a question.
	MessageAnswer MessageType = "answer"

	// MessageStatus provides a progress update.
	MessageStatus MessageType = "status"

	// MessageWarning alerts the recipient about a potential issue.
	MessageWarning MessageType = "warning"

	// MessageHandoff passes a task or finding to the recipient.
	MessageHandoff MessageType = "handoff"

	// MessageShutdown asks the recipient to wind down.
	MessageShutdown MessageType = "shutdown"
)

var validMessageTypes = map[MessageType]bool{
	MessageText:     true,
	MessageQuestion: true,
	MessageAnswer:   true,
	MessageStatus:   true,
	MessageWarning:  true,
	MessageHandoff:  true,
	MessageShutdown: true,
}

// ValidateMessageType reports whether t is a known message type.
func ValidateMessageType(t MessageType) bool {
	return validMessageTypes[t]
}

// Message is one entry in a worker inbox.
type Message struct {
	ID          string      `json:"id"`
	From        string      `json:"from"`
	To          string      `json:"to"`
	Broadcast   bool        `json:"broadcast,omitempty"`
	Type        MessageType `json:"type"`
	Body        string      `json:"body"`
	CreatedAt   time.Time   `json:"created_at"`
	Delivered   bool        `json:"delivered"`
	DeliveredAt *time.Time  `json:"delivered_at,omitempty"`
	Notified    bool        `json:"notified"`
	NotifiedAt  *time.Time  `json:"notified_at,omitempty"`
}

// Validate checks the invariants of a message.
func (m *Message) Validate() error {
	if _, err := ulid.ParseStrict(m.ID); err != nil {
		return fmt.Errorf("message id %q: %w", m.ID, err)
	}
	if err := statefs.ValidateName("sender", m.From); err != nil {
		return err
	}
	if err := statefs.ValidateName("recipient", m.To); err != nil {
		return err
	}
	if !ValidateMessageType(m.Type) {
		return fmt.Errorf("message %s: unknown type %q", m.ID, m.Type)
	}
	if m.Delivered != (m.DeliveredAt != nil) {
		return fmt.Errorf("message %s: delivered flag and timestamp disagree", m.ID)
	}
	if m.Notified != (m.NotifiedAt != nil) {
		return fmt.Errorf("message %s: notified flag and timestamp disagree", m.ID)
	}
	return nil
}

// Inbox is the persisted form of a worker's inbox.json.
type Inbox struct {
	Worker   string    `json:"worker"`
	Messages []Message `json:"messages"`
}

// Validate checks every message and that ids are unique.
func (in *Inbox) Validate() error {
	if err := statefs.ValidateName("worker", in.Worker); err != nil {
		return err
	}
	seen := make(map[string]bool, len(in.Messages))
	for i := range in.Messages {
		msg := &in.Messages[i]
		if err := msg.Validate(); err != nil {
			return err
		}
		if msg.To != in.Worker {
			return fmt.Errorf("message %s addressed to %s stored in inbox of %s", msg.ID, msg.To, in.Worker)
		}
		if seen[msg.ID] {
			return fmt.Errorf("duplicate message id %s", msg.ID)
		}
		seen[msg.ID] = true
	}
	return nil
}

func (in *Inbox) find(id string) *Message {
	for i := range in.Messages {
		if in.Messages[i].ID == id {
			return &in.Messages[i]
		}
	}
	return nil
}

// ListOptions filters List results.
type ListOptions struct {
	// Undelivered restricts the result to messages not yet delivered.
	Undelivered bool
	// Unnotified restricts the result to messages not yet notified.
	Unnotified bool
}

func (o ListOptions) match(m *Message) bool {
	if o.Undelivered && m.Delivered {
		return false
	}
	if o.Unnotified && m.Notified {
		return false
	}
	return true
}
