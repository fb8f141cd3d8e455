package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/registry"
	"github.com/Iron-Ham/crew/internal/team"
)

func shutdownCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shutdown",
		Short: "Coordinate an orderly team shutdown",
		Long: `Coordinate an orderly shutdown. The leader files a request, each targeted
worker releases its claims and acknowledges, and the leader awaits the
acknowledgements before cleaning up.`,
	}
	cmd.AddCommand(
		shutdownRequestCmd(a),
		shutdownAckCmd(a),
		shutdownAwaitCmd(a),
	)
	return cmd
}

func shutdownRequestCmd(a *app) *cobra.Command {
	var (
		target string
		force  bool
		reason string
	)
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Ask workers to shut down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			by := a.cfg.Worker.Name
			if by == "" {
				cfg, err := mgr.ReadConfig()
				if err != nil {
					return err
				}
				by = cfg.Leader
			}
			req, err := mgr.WriteShutdownRequest(team.ShutdownOptions{
				Target:      target,
				Force:       force,
				Reason:      reason,
				RequestedBy: by,
			})
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(cmd, req)
			}
			newPrinter(cmd).line("Shutdown %s requested for %s", req.ID, strings.Join(req.Workers, ", "))
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "worker name or glob (default: every worker)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "do not wait for acknowledgements")
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "reason shown to workers")
	return cmd
}

func shutdownAckCmd(a *app) *cobra.Command {
	var detail string
	cmd := &cobra.Command{
		Use:   "ack",
		Short: "Release the caller's claims and acknowledge the pending shutdown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			worker, err := a.workerName("")
			if err != nil {
				return err
			}
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			if _, pending, err := mgr.PendingShutdown(worker); err != nil {
				return err
			} else if !pending {
				return fmt.Errorf("%w: no pending shutdown for %s", crewerrors.ErrNotFound, worker)
			}
			tasks, err := a.tasks()
			if err != nil {
				return err
			}
			released, releaseErr := tasks.ReleaseClaimsOf(worker)
			ack := team.ShutdownAck{Status: team.AckClean, Detail: detail, ReleasedTasks: released}
			switch {
			case releaseErr != nil:
				ack.Status = team.AckAbandoned
				ack.Detail = releaseErr.Error()
				a.logger.Warn("releasing claims failed", "worker", worker, "error", releaseErr)
			case len(released) > 0:
				ack.Status = team.AckReleased
			}
			ack, err = mgr.WriteShutdownAck(worker, ack)
			if err != nil {
				return err
			}

			reg, err := a.registry()
			if err != nil {
				return err
			}
			if _, err := reg.WriteStatus(registry.Status{Worker: worker, State: registry.StateStopped, Detail: "shutdown"}); err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(cmd, ack)
			}
			p := newPrinter(cmd)
			p.line("%s acknowledged shutdown %s: %s", worker, ack.RequestID, p.state(string(ack.Status)))
			if len(released) > 0 {
				p.field("Released", strings.Join(released, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&detail, "detail", "", "free-form detail for the leader")
	return cmd
}

func shutdownAwaitCmd(a *app) *cobra.Command {
	var timeout, poll time.Duration
	cmd := &cobra.Command{
		Use:   "await",
		Short: "Wait until every targeted worker has acknowledged",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("timeout") {
				timeout = a.cfg.Shutdown.Timeout()
			}
			if !cmd.Flags().Changed("poll") {
				poll = a.cfg.Shutdown.PollInterval()
			}
			ctx, stop := signalContext(cmd)
			defer stop()
			res, waitErr := mgr.AwaitShutdown(ctx, team.AwaitOptions{PollInterval: poll, Timeout: timeout})
			if a.jsonOut {
				if err := writeJSON(cmd, res); err != nil {
					return err
				}
				return waitErr
			}

			p := newPrinter(cmd)
			if res.RequestID != "" {
				p.header("Shutdown " + res.RequestID)
				for _, w := range res.Acked {
					ack := res.Acks[w]
					p.line("  %s %s %s", w, p.state(string(ack.Status)), strings.Join(ack.ReleasedTasks, ","))
				}
				for _, w := range res.Missing {
					if msg, ok := res.Errors[w]; ok {
						p.line("  %s %s %s", w, p.state("error"), msg)
						continue
					}
					p.line("  %s %s", w, p.state("pending"))
				}
				if res.Forced {
					p.line("Forced; not waiting for the remaining workers")
				}
			}
			return waitErr
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (default: shutdown.timeout_seconds)")
	cmd.Flags().DurationVar(&poll, "poll", 0, "time between checks (default: shutdown.poll_interval_ms)")
	return cmd
}
