package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/mailbox"
)

func msgCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "msg",
		Aliases: []string{"mail"},
		Short:   "Send and read worker mailboxes",
	}
	cmd.AddCommand(
		msgSendCmd(a),
		msgBroadcastCmd(a),
		msgListCmd(a),
		msgAckCmd(a),
	)
	return cmd
}

func parseMessageType(s string) (mailbox.MessageType, error) {
	t := mailbox.MessageType(s)
	if !mailbox.ValidateMessageType(t) {
		return "", fmt.Errorf("%w: unknown message type %q", crewerrors.ErrInvalidInput, s)
	}
	return t, nil
}

func msgSendCmd(a *app) *cobra.Command {
	var typ string
	cmd := &cobra.Command{
		Use:   "send <to> <body>...",
		Short: "Send a message to one worker",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseMessageType(typ)
			if err != nil {
				return err
			}
			from, err := a.workerName("")
			if err != nil {
				return err
			}
			mb, err := a.mailbox()
			if err != nil {
				return err
			}
			msg, err := mb.Send(mailbox.Message{
				From: from,
				To:   args[0],
				Type: t,
				Body: strings.Join(args[1:], " "),
			})
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(cmd, msg)
			}
			newPrinter(cmd).line("Sent %s to %s", msg.ID, msg.To)
			return nil
		},
	}
	cmd.Flags().StringVar(&typ, "type", string(mailbox.MessageText), "message type: text, question, answer, status, warning, handoff, shutdown")
	return cmd
}

func msgBroadcastCmd(a *app) *cobra.Command {
	var typ, pattern string
	cmd := &cobra.Command{
		Use:   "broadcast <body>...",
		Short: "Send a message to every matching worker except the sender",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseMessageType(typ)
			if err != nil {
				return err
			}
			from, err := a.workerName("")
			if err != nil {
				return err
			}
			mb, err := a.mailbox()
			if err != nil {
				return err
			}
			sent, err := mb.Broadcast(mailbox.Message{
				From: from,
				Type: t,
				Body: strings.Join(args, " "),
			}, pattern)
			if a.jsonOut {
				if jerr := writeJSON(cmd, sent); jerr != nil {
					return jerr
				}
				return err
			}
			recipients := make([]string, 0, len(sent))
			for _, m := range sent {
				recipients = append(recipients, m.To)
			}
			newPrinter(cmd).line("Broadcast to %d worker(s): %s", len(sent), orDash(strings.Join(recipients, ", ")))
			return err
		},
	}
	cmd.Flags().StringVar(&typ, "type", string(mailbox.MessageText), "message type")
	cmd.Flags().StringVar(&pattern, "pattern", "*", "glob selecting recipients")
	return cmd
}

func msgListCmd(a *app) *cobra.Command {
	var (
		opts  mailbox.ListOptions
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "list [worker]",
		Short: "List a worker's inbox",
		Long: `List a worker's inbox, oldest first. With --watch, keep printing
messages as they arrive until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			explicit := ""
			if len(args) == 1 {
				explicit = args[0]
			}
			worker, err := a.workerName(explicit)
			if err != nil {
				return err
			}
			mb, err := a.mailbox()
			if err != nil {
				return err
			}
			p := newPrinter(cmd)

			if watch {
				ctx, stop := signalContext(cmd)
				defer stop()
				return mb.Watch(ctx, worker, func(m mailbox.Message) {
					if a.jsonOut {
						if err := writeJSON(cmd, m); err != nil {
							a.logger.Warn("writing message failed", "error", err)
						}
						return
					}
					printMessage(p, m)
				})
			}

			msgs, err := mb.List(worker, opts)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(cmd, msgs)
			}
			if len(msgs) == 0 {
				p.line("No messages")
				return nil
			}
			for _, m := range msgs {
				printMessage(p, m)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.Undelivered, "undelivered", false, "only messages not yet delivered")
	cmd.Flags().BoolVar(&opts.Unnotified, "unnotified", false, "only messages not yet notified")
	cmd.Flags().BoolVar(&watch, "watch", false, "follow the inbox")
	return cmd
}

func printMessage(p *printer, m mailbox.Message) {
	flags := ""
	if !m.Delivered {
		flags = " " + p.style(warnStyle, "new")
	}
	p.line("%s %s %s -> %s [%s]%s", m.CreatedAt.Format("15:04:05"), p.style(labelStyle, m.ID), m.From, m.To, m.Type, flags)
	p.line("  %s", m.Body)
}

func msgAckCmd(a *app) *cobra.Command {
	var notify bool
	cmd := &cobra.Command{
		Use:   "ack <id>",
		Short: "Mark a message in the caller's inbox as delivered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			worker, err := a.workerName("")
			if err != nil {
				return err
			}
			mb, err := a.mailbox()
			if err != nil {
				return err
			}
			msg, err := mb.MarkDelivered(worker, args[0])
			if err != nil {
				return err
			}
			if notify {
				ctx, stop := signalContext(cmd)
				defer stop()
				if msg, _, err = mb.MarkNotified(ctx, worker, args[0]); err != nil {
					return err
				}
			}
			if a.jsonOut {
				return writeJSON(cmd, msg)
			}
			newPrinter(cmd).line("Acknowledged %s", msg.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&notify, "notify", false, "also mark the message notified")
	return cmd
}
