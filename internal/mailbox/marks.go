package mailbox

import (
	"context"
	"fmt"
	"strings"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/event"
	"github.com/Iron-Ham/crew/internal/notify"
)

func messageNotFound(worker, id string) error {
	return fmt.Errorf("message %s in inbox of %s: %w", id, worker, crewerrors.ErrNotFound)
}

// MarkDelivered records that worker consumed message id. Marking an
// already delivered message is a no-op.
func (m *Mailbox) MarkDelivered(worker, id string) (Message, error) {
	var out Message
	err := m.update(worker, func(in *Inbox) error {
		msg := in.find(id)
		if msg == nil {
			return messageNotFound(worker, id)
		}
		if msg.Delivered {
			out = *msg
			return errUnchanged
		}
		now := m.now()
		msg.Delivered = true
		msg.DeliveredAt = &now
		out = *msg
		return nil
	})
	if err != nil {
		return Message{}, err
	}
	return out, nil
}

// MarkNotified issues the out-of-band alert for message id and records it.
// The alert fires at most once per message: the notified flag is persisted
// before the notifier runs and rolled back only if the notifier fails. The
// returned bool reports whether this call fired the alert.
func (m *Mailbox) MarkNotified(ctx context.Context, worker, id string) (Message, bool, error) {
	var out Message
	fired := false
	err := m.update(worker, func(in *Inbox) error {
		msg := in.find(id)
		if msg == nil {
			return messageNotFound(worker, id)
		}
		out = *msg
		if msg.Notified {
			return errUnchanged
		}

		now := m.now()
		msg.Notified = true
		msg.NotifiedAt = &now
		path := m.layout.InboxPath(m.team, worker)
		if err := writeInbox(path, in); err != nil {
			return err
		}

		alert := notify.Alert{
			Kind:    notify.KindMessage,
			Team:    m.team,
			ID:      msg.ID,
			From:    msg.From,
			To:      msg.To,
			Summary: summarize(msg.Body),
		}
		if err := m.notifier.Notify(ctx, alert); err != nil {
			msg.Notified = false
			msg.NotifiedAt = nil
			if rbErr := writeInbox(path, in); rbErr != nil {
				m.logger.Error("rollback of notified flag failed", "id", id, "error", rbErr.Error())
			}
			return fmt.Errorf("notify %s: %w", id, err)
		}
		out = *msg
		fired = true
		return errUnchanged
	})
	if err != nil {
		return Message{}, false, err
	}
	if fired {
		m.logger.Info("message notified", "id", id, "worker", worker)
		m.bus.Publish(event.NewMailboxNotifiedEvent(m.team, id, worker))
	}
	return out, fired, nil
}

// summarize trims a body to a one-line alert summary.
func summarize(body string) string {
	const maxRunes = 120
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[:i]
	}
	if r := []rune(body); len(r) > maxRunes {
		return string(r[:maxRunes]) + "..."
	}
	return body
}
