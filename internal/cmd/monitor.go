package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/crew/internal/dispatch"
	"github.com/Iron-Ham/crew/internal/logging"
	"github.com/Iron-Ham/crew/internal/monitor"
	"github.com/Iron-Ham/crew/internal/scaling"
)

// monitor opens a Monitor over the selected team with the configured
// interval and verification gate. Liveness uses the team policy.
func (a *app) monitor(opts ...monitor.Option) (*monitor.Monitor, error) {
	mgr, err := a.manager()
	if err != nil {
		return nil, err
	}
	tasks, err := a.tasks()
	if err != nil {
		return nil, err
	}
	reg, err := a.registry()
	if err != nil {
		return nil, err
	}
	base := []monitor.Option{
		monitor.WithLogger(a.logger),
		monitor.WithBus(a.events()),
		monitor.WithInterval(a.cfg.Monitor.PollInterval()),
	}
	if a.cfg.Monitor.VerificationRequired {
		q, err := a.queue()
		if err != nil {
			return nil, err
		}
		base = append(base, monitor.WithVerification(func() bool {
			return !verified(q, a.logger)
		}))
	}
	return monitor.New(tasks, reg, mgr, append(base, opts...)...)
}

// verified reports whether any plan-review request has been approved.
func verified(q *dispatch.Queue, logger *logging.Logger) bool {
	reqs, err := q.List(dispatch.ListOptions{Kind: dispatch.KindPlanReview, Status: dispatch.StatusApproved})
	if err != nil {
		logger.Warn("listing plan reviews failed", "error", err)
	}
	return len(reqs) > 0
}

func monitorCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Watch liveness, reclaim dead workers' tasks, and drive the phase",
	}
	cmd.AddCommand(
		monitorRunCmd(a),
		monitorTickCmd(a),
		monitorSnapshotCmd(a),
	)
	return cmd
}

func monitorRunCmd(a *app) *cobra.Command {
	var advise bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Tick until interrupted",
		Long: `Tick every monitor.poll_interval_ms until interrupted. Each tick reads
heartbeats, marks dead workers stopped and returns their claimed tasks to
pending, and reconciles the phase against the task board.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			p := newPrinter(cmd)
			opts := []monitor.Option{
				monitor.WithOnTick(func(snap monitor.Snapshot) {
					if a.jsonOut {
						if err := writeJSON(cmd, snap); err != nil {
							a.logger.Warn("writing snapshot failed", "error", err)
						}
						return
					}
					p.line("%s %s", snap.TakenAt.Format("15:04:05"), summarizeSnapshot(p, snap))
				}),
			}
			if advise {
				policy := a.policy(mgr)
				opts = append(opts, monitor.WithScaler(scaling.NewPolicy(
					scaling.WithMaxWorkers(policy.MaxWorkers),
				)))
			}
			mon, err := a.monitor(opts...)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()
			return mon.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&advise, "advise", true, "publish scaling advice each tick")
	return cmd
}

func monitorTickCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run a single monitor pass and print the snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mon, err := a.monitor()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()
			snap, err := mon.Tick(ctx)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(cmd, snap)
			}
			renderSnapshot(newPrinter(cmd), snap)
			return nil
		},
	}
}

func monitorSnapshotCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Print the current snapshot without reclaiming or reconciling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mon, err := a.monitor()
			if err != nil {
				return err
			}
			snap, err := mon.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(cmd, snap)
			}
			renderSnapshot(newPrinter(cmd), snap)
			return nil
		},
	}
}

func summarizeSnapshot(p *printer, snap monitor.Snapshot) string {
	c := snap.Counts
	s := fmt.Sprintf("%s tasks %d/%d done, %d in progress, %d pending; workers %d alive, %d dead",
		p.state(string(snap.Phase)), c.Completed, c.Total, c.InProgress, c.Pending, snap.Alive, snap.Dead)
	if snap.Scaling != nil && snap.Scaling.Delta != 0 {
		s += fmt.Sprintf("; advise %s %+d", snap.Scaling.Action, snap.Scaling.Delta)
	}
	return s
}
