package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/taskstore"
)

func taskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage the team's task board",
	}
	cmd.AddCommand(
		taskCreateCmd(a),
		taskListCmd(a),
		taskShowCmd(a),
		taskClaimCmd(a),
		taskClaimNextCmd(a),
		taskReleaseCmd(a),
		taskTransitionCmd(a),
	)
	return cmd
}

func taskCreateCmd(a *app) *cobra.Command {
	var (
		description string
		dependsOn   []string
		priority    int
	)
	cmd := &cobra.Command{
		Use:   "create <id>",
		Short: "Create a pending task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := a.tasks()
			if err != nil {
				return err
			}
			t, err := tasks.Create(taskstore.Task{
				ID:          args[0],
				Description: description,
				DependsOn:   dependsOn,
				Priority:    priority,
			})
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(cmd, t)
			}
			newPrinter(cmd).line("Created task %s", t.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "what the task is")
	cmd.Flags().StringSliceVar(&dependsOn, "depends-on", nil, "ids of tasks that must complete first")
	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "lower runs first among tasks at the same dependency level")
	return cmd
}

func taskListCmd(a *app) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" && !taskstore.Status(status).Valid() {
				return fmt.Errorf("%w: unknown status %q", crewerrors.ErrInvalidInput, status)
			}
			tasks, err := a.tasks()
			if err != nil {
				return err
			}
			all, listErr := tasks.List()
			list := make([]taskstore.Task, 0, len(all))
			for _, t := range all {
				if status == "" || t.Status == taskstore.Status(status) {
					list = append(list, t)
				}
			}
			if a.jsonOut {
				if err := writeJSON(cmd, list); err != nil {
					return err
				}
				return listErr
			}

			p := newPrinter(cmd)
			if len(list) == 0 {
				p.line("No tasks")
			} else {
				rows := make([][]string, 0, len(list))
				for _, t := range list {
					rows = append(rows, []string{
						t.ID,
						p.state(string(t.Status)),
						orDash(t.ClaimedBy()),
						strconv.Itoa(t.Priority),
						orDash(strings.Join(t.DependsOn, ",")),
						t.Description,
					})
				}
				p.table([]string{"ID", "STATUS", "CLAIM", "PRIO", "DEPENDS ON", "DESCRIPTION"}, rows)
			}
			return listErr
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "only show tasks with this status")
	return cmd
}

func taskShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task and whether it can be claimed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := a.tasks()
			if err != nil {
				return err
			}
			t, err := tasks.Read(args[0])
			if err != nil {
				return err
			}
			report, err := tasks.Readiness(t.ID)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(cmd, struct {
					Task      taskstore.Task            `json:"task"`
					Readiness taskstore.ReadinessReport `json:"readiness"`
				}{t, report})
			}

			p := newPrinter(cmd)
			p.header("Task " + t.ID)
			p.field("Status", p.state(string(t.Status)))
			p.field("Description", orDash(t.Description))
			p.field("Priority", t.Priority)
			p.field("Depends on", orDash(strings.Join(t.DependsOn, ", ")))
			if t.Claim != nil {
				claim := t.Claim.Worker + " since " + t.Claim.ClaimedAt.Format("2006-01-02 15:04:05")
				if t.Claim.LeaseExpiresAt != nil {
					claim += ", lease until " + t.Claim.LeaseExpiresAt.Format("15:04:05")
				}
				p.field("Claim", claim)
			}
			p.field("Attempts", t.Attempts)
			if t.Result != "" {
				p.field("Result", t.Result)
			}
			if t.Error != "" {
				p.field("Error", t.Error)
			}
			ready := p.style(okStyle, "yes")
			if !report.Ready {
				ready = p.style(warnStyle, "no")
				if len(report.Missing) > 0 {
					ready += " (missing: " + strings.Join(report.Missing, ", ") + ")"
				}
				if len(report.Incomplete) > 0 {
					ready += " (waiting on: " + strings.Join(report.Incomplete, ", ") + ")"
				}
			}
			p.field("Ready", ready)
			return nil
		},
	}
}

func taskClaimCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "claim <id>",
		Short: "Claim a task for the calling worker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			worker, err := a.workerName("")
			if err != nil {
				return err
			}
			tasks, err := a.tasks()
			if err != nil {
				return err
			}
			t, err := tasks.Claim(args[0], worker)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(cmd, t)
			}
			newPrinter(cmd).line("%s claimed %s", worker, t.ID)
			return nil
		},
	}
}

func taskClaimNextCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "claim-next",
		Short: "Claim the next ready task for the calling worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			worker, err := a.workerName("")
			if err != nil {
				return err
			}
			tasks, err := a.tasks()
			if err != nil {
				return err
			}
			t, err := tasks.ClaimNext(worker)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(cmd, t)
			}
			p := newPrinter(cmd)
			if t == nil {
				p.line("No task available")
				return nil
			}
			p.line("%s claimed %s", worker, t.ID)
			return nil
		},
	}
}

func taskReleaseCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "release <id>",
		Short: "Return a claimed task to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			worker := ""
			if !force {
				var err error
				if worker, err = a.workerName(""); err != nil {
					return err
				}
			}
			tasks, err := a.tasks()
			if err != nil {
				return err
			}
			t, err := tasks.Release(args[0], worker)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(cmd, t)
			}
			newPrinter(cmd).line("Released %s", t.ID)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "release whoever holds the claim")
	return cmd
}

func taskTransitionCmd(a *app) *cobra.Command {
	var result, errText string
	cmd := &cobra.Command{
		Use:   "transition <id> <status>",
		Short: "Move a task to a new status",
		Long: `Move a task to a new status. Allowed moves:

  pending     -> in_progress (same as claim)
  in_progress -> completed | failed | blocked
  blocked     -> pending
  failed      -> pending (retry)

When a worker is selected, leaving in_progress requires it to hold the
claim. Use "task release" to return a claimed task to pending.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to := taskstore.Status(args[1])
			if !to.Valid() {
				return fmt.Errorf("%w: unknown status %q", crewerrors.ErrInvalidInput, args[1])
			}
			tasks, err := a.tasks()
			if err != nil {
				return err
			}
			t, err := tasks.Transition(args[0], to, taskstore.TransitionOptions{
				Worker: a.cfg.Worker.Name,
				Result: result,
				Error:  errText,
			})
			if err != nil {
				return err
			}
			if a.jsonOut {
				return writeJSON(cmd, t)
			}
			newPrinter(cmd).line("%s is %s", t.ID, t.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&result, "result", "", "result recorded on completion")
	cmd.Flags().StringVar(&errText, "error", "", "error recorded on failure or block")
	return cmd
}
