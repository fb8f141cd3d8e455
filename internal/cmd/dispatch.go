package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/crew/internal/dispatch"
	crewerrors "github.com/Iron-Ham/crew/internal/errors"
)

func dispatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "File and decide approval, permission, and review requests",
	}
	cmd.AddCommand(
		dispatchRequestCmd(a),
		dispatchListCmd(a),
		dispatchShowCmd(a),
		dispatchDecideCmd(a, "approve", dispatch.StatusApproved),
		dispatchDecideCmd(a, "deny", dispatch.StatusDenied),
		dispatchDecideCmd(a, "cancel", dispatch.StatusCancelled),
	)
	return cmd
}

func dispatchRequestCmd(a *app) *cobra.Command {
	var kind, taskID, transport string
	cmd := &cobra.Command{
		Use:   "request <payload>...",
		Short: "File a pending request from the calling worker",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k := dispatch.Kind(kind)
			if !k.Valid() {
				return fmt.Errorf("%w: unknown kind %q", crewerrors.ErrInvalidInput, kind)
			}
			from, err := a.workerName("")
			if err != nil {
				return err
			}
			q, err := a.queue()
			if err != nil {
				return err
			}
			req, err := q.Enqueue(dispatch.Request{
				Kind:      k,
				From:      from,
				TaskID:    taskID,
				Transport: dispatch.Transport(transport),
				Payload:   strings.Join(args, " "),
			})
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(cmd, req)
			}
			newPrinter(cmd).line("Filed %s request %s", req.Kind, req.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&kind, "kind", "k", string(dispatch.KindApproval), "approval, permission, plan-review, or question")
	cmd.Flags().StringVar(&taskID, "task", "", "task the request concerns")
	cmd.Flags().StringVar(&transport, "transport", string(dispatch.TransportAny), "preferred decision channel: any, mailbox, external")
	return cmd
}

func dispatchListCmd(a *app) *cobra.Command {
	var status, from, kind string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := dispatch.ListOptions{
				Status: dispatch.Status(status),
				From:   from,
				Kind:   dispatch.Kind(kind),
			}
			if opts.Status != "" && !opts.Status.Valid() {
				return fmt.Errorf("%w: unknown status %q", crewerrors.ErrInvalidInput, status)
			}
			if opts.Kind != "" && !opts.Kind.Valid() {
				return fmt.Errorf("%w: unknown kind %q", crewerrors.ErrInvalidInput, kind)
			}
			q, err := a.queue()
			if err != nil {
				return err
			}
			reqs, listErr := q.List(opts)
			if a.jsonOut {
				if err := writeJSON(cmd, reqs); err != nil {
					return err
				}
				return listErr
			}

			p := newPrinter(cmd)
			if len(reqs) == 0 {
				p.line("No requests")
				return listErr
			}
			rows := make([][]string, 0, len(reqs))
			for _, r := range reqs {
				rows = append(rows, []string{
					r.ID,
					string(r.Kind),
					r.From,
					orDash(r.TaskID),
					p.state(string(r.Status)),
					r.Payload,
				})
			}
			p.table([]string{"ID", "KIND", "FROM", "TASK", "STATUS", "PAYLOAD"}, rows)
			return listErr
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "only requests with this status")
	cmd.Flags().StringVar(&from, "from", "", "only requests from this worker")
	cmd.Flags().StringVarP(&kind, "kind", "k", "", "only requests of this kind")
	return cmd
}

func dispatchShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a request and its decision history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := a.queue()
			if err != nil {
				return err
			}
			r, err := q.Read(args[0])
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(cmd, r)
			}
			p := newPrinter(cmd)
			p.header("Request " + r.ID)
			p.field("Kind", r.Kind)
			p.field("From", r.From)
			p.field("Task", orDash(r.TaskID))
			p.field("Status", p.state(string(r.Status)))
			p.field("Transport", r.Transport)
			p.field("Payload", r.Payload)
			p.field("Created", r.CreatedAt.Format("2006-01-02 15:04:05"))
			for _, tr := range r.History {
				p.line("  %s %s -> %s by %s %s", tr.At.Format("15:04:05"), tr.From, tr.To, orDash(tr.By), tr.Reason)
			}
			return nil
		},
	}
}

// dispatchDecideCmd builds approve, deny, and cancel. The decider defaults
// to the selected worker, or the team leader when none is selected.
func dispatchDecideCmd(a *app, verb string, to dispatch.Status) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   verb + " <id>",
		Short: fmt.Sprintf("Mark a pending request %s", to),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			by := a.cfg.Worker.Name
			if by == "" {
				mgr, err := a.manager()
				if err != nil {
					return err
				}
				cfg, err := mgr.ReadConfig()
				if err != nil {
					return err
				}
				by = cfg.Leader
			}
			q, err := a.queue()
			if err != nil {
				return err
			}
			r, err := q.Transition(args[0], to, by, reason)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(cmd, r)
			}
			p := newPrinter(cmd)
			p.line("%s is %s", r.ID, p.state(string(r.Status)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "reason recorded with the decision")
	return cmd
}
