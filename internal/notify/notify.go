// Package notify defines the out-of-band alert channel invoked when a
// mailbox message or dispatch request is marked notified.
//
// Delivery mechanisms (terminal injection, chat relays) live outside crew;
// they plug in by implementing [Notifier]. The stores guarantee a Notifier
// is called at most once per message or request.
package notify

import (
	"context"

	"github.com/Iron-Ham/crew/internal/logging"
)

// Kind distinguishes what an alert is about.
type Kind string

const (
	KindMessage  Kind = "message"
	KindDispatch Kind = "dispatch"
)

// Alert describes one notification.
type Alert struct {
	Kind    Kind
	Team    string
	ID      string
	From    string
	To      string
	Summary string
}

// Notifier delivers an alert. An error leaves the entity un-notified so a
// later MarkNotified can retry.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// Func adapts a function to the Notifier interface.
type Func func(ctx context.Context, alert Alert) error

// Notify calls f.
func (f Func) Notify(ctx context.Context, alert Alert) error { return f(ctx, alert) }

// LogNotifier records alerts in the log instead of delivering them.
type LogNotifier struct {
	Logger *logging.Logger
}

// Notify logs the alert at info level.
func (n LogNotifier) Notify(_ context.Context, alert Alert) error {
	logger := n.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	logger.Info("notification",
		"kind", string(alert.Kind),
		"team", alert.Team,
		"id", alert.ID,
		"from", alert.From,
		"to", alert.To,
		"summary", alert.Summary)
	return nil
}

// Nop discards every alert.
var Nop Notifier = Func(func(context.Context, Alert) error { return nil })
