package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/crew/internal/config"
	"github.com/Iron-Ham/crew/internal/logging"
)

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd builds the crew command tree. Each call returns an independent
// tree with its own configuration, so tests can run commands side by side.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "crew",
		Short: "Coordinate a team of agent workers through shared state",
		Long: `Crew keeps a team of cooperating agent processes in sync through a
shared directory: a task board with dependency-aware claims, a worker
registry with heartbeats, per-worker mailboxes, a dispatch queue for
leader decisions, and a phase controller driven by a monitor.

Every command reads and writes files under the state root, so any
number of processes on the same machine can take part.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (default is $XDG_CONFIG_HOME/crew/config.yaml)")
	flags.String("root", "", "state root directory (default \".crew\")")
	flags.StringP("team", "t", "", "team name")
	flags.StringP("worker", "w", "", "worker name of the caller")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&a.jsonOut, "json", false, "print machine-readable JSON")
	_ = a.v.BindPFlag("state.root", flags.Lookup("root"))
	_ = a.v.BindPFlag("team.name", flags.Lookup("team"))
	_ = a.v.BindPFlag("worker.name", flags.Lookup("worker"))
	_ = a.v.BindPFlag("logging.level", flags.Lookup("log-level"))

	rootCmd.AddCommand(
		teamCmd(a),
		taskCmd(a),
		workerCmd(a),
		msgCmd(a),
		dispatchCmd(a),
		monitorCmd(a),
		shutdownCmd(a),
	)
	return rootCmd
}

// load resolves configuration and the logger before any subcommand runs.
func (a *app) load(cmd *cobra.Command) error {
	if err := config.Setup(a.v, a.cfgFile); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := config.Load(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if cfg.Logging.Dir == "" {
		a.logger = logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Logging.Level)
	} else {
		a.logger, err = logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
		if err != nil {
			return err
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}
	a.root = cfg.State.ResolveRoot(cwd)
	return nil
}

func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Close()
	}
}
