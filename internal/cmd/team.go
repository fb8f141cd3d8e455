package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/crew/internal/monitor"
	"github.com/Iron-Ham/crew/internal/phase"
	"github.com/Iron-Ham/crew/internal/team"
)

func teamCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "team",
		Short: "Create, inspect, scale, and remove teams",
	}
	cmd.AddCommand(
		teamInitCmd(a),
		teamStatusCmd(a),
		teamCleanupCmd(a),
		teamMigrateCmd(a),
		teamScaleUpCmd(a),
		teamScaleDownCmd(a),
		teamStopCmd(a, "fail", phase.PhaseFailed),
		teamStopCmd(a, "cancel", phase.PhaseCancelled),
	)
	return cmd
}

func teamInitCmd(a *app) *cobra.Command {
	var (
		manifestPath string
		leader       string
		workers      []string
		maxWorkers   int
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a team",
		Long: `Initialize the team's state directory, config, and phase document.

With --manifest, the team name, leader, roster, policy, and seed tasks
are read from a YAML manifest:

  team: alpha
  leader: lead
  policy:
    max_workers: 4
  workers:
    - name: w1
  tasks:
    - id: build
      description: compile everything
    - id: test
      description: run the suite
      depends_on: [build]

Policy fields the manifest leaves unset come from the crew config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				cfg      team.Config
				manifest *team.Manifest
			)
			if manifestPath != "" {
				var err error
				manifest, err = team.LoadManifest(manifestPath)
				if err != nil {
					return err
				}
				cfg = manifest.Config()
				cfg.Policy = a.cfg.Policy(manifest.Policy)
				if a.cfg.Team.Name == "" {
					a.cfg.Team.Name = manifest.Team
				}
			} else {
				cfg.Leader = leader
				for _, w := range workers {
					cfg.Workers = append(cfg.Workers, team.Worker{Name: w})
				}
				cfg.Policy = a.cfg.Policy(team.Policy{MaxWorkers: maxWorkers})
			}
			if cmd.Flags().Changed("leader") {
				cfg.Leader = leader
			}

			mgr, err := a.manager()
			if err != nil {
				return err
			}
			created, err := mgr.Init(cfg)
			if err != nil {
				return err
			}

			seeded := 0
			if manifest != nil && len(manifest.Tasks) > 0 {
				tasks, err := a.tasks()
				if err != nil {
					return err
				}
				for _, seed := range manifest.Tasks {
					if _, err := tasks.Create(seed.Task()); err != nil {
						return fmt.Errorf("seed task %s: %w", seed.ID, err)
					}
					seeded++
				}
			}

			if a.jsonOut {
				return writeJSON(cmd, created)
			}
			p := newPrinter(cmd)
			p.line("Initialized team %s at %s", created.Name, a.layout().TeamDir(created.Name))
			p.field("Leader", created.Leader)
			p.field("Workers", orDash(strings.Join(created.WorkerNames(), ", ")))
			p.field("Max workers", created.Policy.MaxWorkers)
			if seeded > 0 {
				p.field("Seeded tasks", seeded)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "YAML team manifest")
	cmd.Flags().StringVar(&leader, "leader", "lead", "leader name")
	cmd.Flags().StringSliceVar(&workers, "workers", nil, "initial roster (comma-separated)")
	cmd.Flags().IntVar(&maxWorkers, "max-workers", 0, fmt.Sprintf("roster limit (default %d, max %d)", team.DefaultMaxWorkers, team.AbsoluteMaxWorkers))
	return cmd
}

func teamStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the team's phase, tasks, and workers",
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

func renderSnapshot(p *printer, snap monitor.Snapshot) {
	p.header("Team " + snap.Team)
	phaseLine := p.state(string(snap.Phase))
	if snap.FixAttempt > 0 || snap.FixExhausted {
		phaseLine += fmt.Sprintf(" (fix attempt %d/%d", snap.FixAttempt, snap.MaxFixAttempts)
		if snap.FixExhausted {
			phaseLine += ", " + p.state("exhausted")
		}
		phaseLine += ")"
	}
	p.field("Phase", phaseLine)
	c := snap.Counts
	p.field("Tasks", fmt.Sprintf("%d total: %d pending, %d in progress, %d blocked, %d completed, %d failed",
		c.Total, c.Pending, c.InProgress, c.Blocked, c.Completed, c.Failed))
	p.field("Workers", fmt.Sprintf("%d alive, %d dead", snap.Alive, snap.Dead))
	if snap.Scaling != nil {
		p.field("Scaling", fmt.Sprintf("%s (%s)", snap.Scaling.Action, snap.Scaling.Reason))
	}

	if len(snap.Workers) > 0 {
		p.line("")
		rows := make([][]string, 0, len(snap.Workers))
		for _, w := range snap.Workers {
			state := "-"
			if w.Status != nil {
				state = string(w.Status.State)
			}
			roster := ""
			if w.OnRoster {
				roster = "*"
			}
			rows = append(rows, []string{
				w.Name + roster,
				p.state(string(w.Liveness)),
				ago(w.LastSeen, snap.TakenAt),
				p.state(state),
				orDash(strings.Join(w.Claims, ",")),
			})
		}
		p.table([]string{"WORKER", "LIVENESS", "LAST SEEN", "STATE", "CLAIMS"}, rows)
	}

	for _, e := range snap.Errors {
		p.line("%s %s", p.style(badStyle, "error:"), e)
	}
}

func teamCleanupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove all of the team's state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			if err := mgr.Cleanup(); err != nil {
				return err
			}
			newPrinter(cmd).line("Removed team %s", mgr.Team())
			return nil
		},
	}
}

func teamMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade a legacy team config to the current schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			cfg, migrated, err := mgr.Migrate()
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(cmd, cfg)
			}
			p := newPrinter(cmd)
			if migrated {
				p.line("Migrated team %s to schema %d", cfg.Name, cfg.SchemaVersion)
			} else {
				p.line("Team %s already uses schema %d", cfg.Name, cfg.SchemaVersion)
			}
			return nil
		},
	}
}

func teamScaleUpCmd(a *app) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "scale-up <worker>...",
		Short: "Add workers to the roster",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			var cfg team.Config
			for _, name := range args {
				cfg, err = mgr.AddWorker(team.Worker{Name: name, Role: role})
				if err != nil {
					return err
				}
			}
			if a.jsonOut {
				return writeJSON(cmd, cfg)
			}
			newPrinter(cmd).line("Roster (%d/%d): %s", len(cfg.Workers), cfg.Policy.MaxWorkers, strings.Join(cfg.WorkerNames(), ", "))
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role recorded for the new workers")
	return cmd
}

func teamScaleDownCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scale-down <worker>...",
		Short: "Remove workers from the roster",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			var cfg team.Config
			for _, name := range args {
				cfg, err = mgr.RemoveWorker(name)
				if err != nil {
					return err
				}
			}
			if a.jsonOut {
				return writeJSON(cmd, cfg)
			}
			newPrinter(cmd).line("Roster (%d/%d): %s", len(cfg.Workers), cfg.Policy.MaxWorkers, orDash(strings.Join(cfg.WorkerNames(), ", ")))
			return nil
		},
	}
}

// teamStopCmd builds fail and cancel, which end the team regardless of the
// task board. The monitor leaves these phases alone.
func teamStopCmd(a *app, verb string, to phase.Phase) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   verb,
		Short: fmt.Sprintf("Move the team to %s", to),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager()
			if err != nil {
				return err
			}
			st, err := mgr.SetPhaseTerminal(to, reason)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(cmd, st)
			}
			p := newPrinter(cmd)
			p.line("Team %s is %s", mgr.Team(), p.state(string(st.CurrentPhase)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "", "reason recorded in the phase history")
	return cmd
}
