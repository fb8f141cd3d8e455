package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/registry"
	"github.com/Iron-Ham/crew/internal/team"
)

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func workerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Join the team and report liveness",
	}
	cmd.AddCommand(
		workerJoinCmd(a),
		workerHeartbeatCmd(a),
		workerStatusCmd(a),
	)
	return cmd
}

func workerJoinCmd(a *app) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "join [worker]",
		Short: "Record the worker's identity",
		Long: `Record the worker's identity, mark it idle, and send a first heartbeat.
A worker that is not on the roster yet is added to it, subject to the
team's max_workers.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			explicit := ""
			if len(args) == 1 {
				explicit = args[0]
			}
			name, err := a.workerName(explicit)
			if err != nil {
				return err
			}
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			cfg, err := mgr.ReadConfig()
			if err != nil {
				return err
			}
			member, ok := cfg.Worker(name)
			if !ok {
				if cfg, err = mgr.AddWorker(team.Worker{Name: name, Role: role}); err != nil {
					return err
				}
				member, _ = cfg.Worker(name)
			}
			if role == "" {
				role = member.Role
			}

			reg, err := a.registry()
			if err != nil {
				return err
			}
			id, err := reg.WriteIdentity(registry.Identity{
				Name:          name,
				Index:         member.Index,
				Role:          role,
				AssignedTasks: member.AssignedTasks,
			})
			if err != nil {
				return err
			}
			if _, err := reg.WriteStatus(registry.Status{Worker: name, State: registry.StateIdle}); err != nil {
				return err
			}
			if _, err := reg.Heartbeat(name); err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(cmd, id)
			}
			newPrinter(cmd).line("%s joined team %s as worker %d", id.Name, id.Team, id.Index)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role of the worker")
	return cmd
}

func workerHeartbeatCmd(a *app) *cobra.Command {
	var loop bool
	cmd := &cobra.Command{
		Use:   "heartbeat",
		Short: "Bump the calling worker's heartbeat",
		Long: `Bump the calling worker's heartbeat once, or with --loop keep beating at
heartbeat.interval_ms until interrupted or until a shutdown request
targets the worker.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, err := a.workerName("")
			if err != nil {
				return err
			}
			reg, err := a.registry()
			if err != nil {
				return err
			}
			p := newPrinter(cmd)
			if !loop {
				hb, err := reg.Heartbeat(name)
				if err != nil {
					return err
				}
				if a.jsonOut {
					return writeJSON(cmd, hb)
				}
				p.line("%s turn %d", hb.Worker, hb.Turn)
				return nil
			}

			mgr, err := a.manager()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd)
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			hbr := registry.NewHeartbeater(reg, name, a.cfg.Heartbeat.Interval(), func(hb registry.Heartbeat) {
				req, pending, err := mgr.PendingShutdown(name)
				if err != nil {
					a.logger.Warn("reading shutdown request failed", "error", err)
					return
				}
				if pending {
					p.line("Shutdown requested (%s); stopping heartbeat", orDash(req.Reason))
					cancel()
				}
			})
			return hbr.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&loop, "loop", false, "keep beating until interrupted")
	return cmd
}

func workerStatusCmd(a *app) *cobra.Command {
	var (
		set    string
		taskID string
		detail string
	)
	cmd := &cobra.Command{
		Use:   "status [worker]",
		Short: "Show a worker, or set the caller's status with --set",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := a.registry()
			if err != nil {
				return err
			}

			if set != "" {
				name, err := a.workerName("")
				if err != nil {
					return err
				}
				st, err := reg.WriteStatus(registry.Status{
					Worker: name,
					State:  registry.State(set),
					TaskID: taskID,
					Detail: detail,
				})
				if err != nil {
					return err
				}
				if a.jsonOut {
					return writeJSON(cmd, st)
				}
				newPrinter(cmd).line("%s is %s", st.Worker, st.State)
				return nil
			}

			explicit := ""
			if len(args) == 1 {
				explicit = args[0]
			}
			name, err := a.workerName(explicit)
			if err != nil {
				return err
			}
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			return showWorker(cmd, a, reg, name, a.policy(mgr).LivenessThreshold())
		},
	}
	cmd.Flags().StringVar(&set, "set", "", "set the caller's state: idle, working, stopped")
	cmd.Flags().StringVar(&taskID, "task", "", "task the caller is working on (with --set)")
	cmd.Flags().StringVar(&detail, "detail", "", "free-form detail (with --set)")
	return cmd
}

func showWorker(cmd *cobra.Command, a *app, reg *registry.Registry, name string, threshold time.Duration) error {
	type view struct {
		Identity  *registry.Identity  `json:"identity,omitempty"`
		Heartbeat *registry.Heartbeat `json:"heartbeat,omitempty"`
		Status    *registry.Status    `json:"status,omitempty"`
		Alive     bool                `json:"alive"`
	}
	var v view
	found := false
	if id, err := reg.ReadIdentity(name); err == nil {
		v.Identity, found = &id, true
	} else if !crewerrors.IsNotFound(err) {
		return err
	}
	if hb, err := reg.ReadHeartbeat(name); err == nil {
		v.Heartbeat, found = &hb, true
		v.Alive = registry.IsAlive(hb, reg.Now(), threshold)
	} else if !crewerrors.IsNotFound(err) {
		return err
	}
	if st, err := reg.ReadStatus(name); err == nil {
		v.Status, found = &st, true
	} else if !crewerrors.IsNotFound(err) {
		return err
	}
	if !found {
		return fmt.Errorf("worker %s: %w", name, crewerrors.ErrNotFound)
	}
	if a.jsonOut {
		return writeJSON(cmd, v)
	}

	p := newPrinter(cmd)
	p.header("Worker " + name)
	if v.Identity != nil {
		p.field("Index", v.Identity.Index)
		p.field("Role", orDash(v.Identity.Role))
		p.field("Joined", v.Identity.JoinedAt.Format("2006-01-02 15:04:05"))
	}
	if v.Heartbeat != nil {
		liveness := "dead"
		if v.Alive {
			liveness = "alive"
		}
		p.field("Liveness", p.state(liveness))
		p.field("Last seen", ago(v.Heartbeat.LastSeen, reg.Now()))
		p.field("Turn", v.Heartbeat.Turn)
	}
	if v.Status != nil {
		p.field("State", p.state(string(v.Status.State)))
		if v.Status.TaskID != "" {
			p.field("Task", v.Status.TaskID)
		}
		if v.Status.Detail != "" {
			p.field("Detail", v.Status.Detail)
		}
	}
	return nil
}
