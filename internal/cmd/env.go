package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/crew/internal/config"
	"github.com/Iron-Ham/crew/internal/dispatch"
	crewerrors "github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/event"
	"github.com/Iron-Ham/crew/internal/logging"
	"github.com/Iron-Ham/crew/internal/mailbox"
	"github.com/Iron-Ham/crew/internal/notify"
	"github.com/Iron-Ham/crew/internal/registry"
	"github.com/Iron-Ham/crew/internal/statefs"
	"github.com/Iron-Ham/crew/internal/taskstore"
	"github.com/Iron-Ham/crew/internal/team"
)

// app carries what every command needs: resolved configuration, the logger,
// and an event bus shared by the stores a command opens.
type app struct {
	v       *viper.Viper
	cfgFile string
	jsonOut bool

	cfg    *config.Config
	logger *logging.Logger
	root   string
	bus    *event.Bus
}

func (a *app) layout() statefs.Layout {
	return statefs.NewLayout(a.root)
}

func (a *app) events() *event.Bus {
	if a.bus == nil {
		a.bus = event.NewBus(a.logger)
	}
	return a.bus
}

// teamName returns the selected team or an error telling the user how to
// select one.
func (a *app) teamName() (string, error) {
	if a.cfg.Team.Name == "" {
		return "", fmt.Errorf("%w: no team selected (use --team or CREW_TEAM_NAME)", crewerrors.ErrInvalidInput)
	}
	return a.cfg.Team.Name, nil
}

// workerName returns the calling worker, preferring an explicit argument.
func (a *app) workerName(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if a.cfg.Worker.Name == "" {
		return "", fmt.Errorf("%w: no worker selected (use --worker or CREW_WORKER_NAME)", crewerrors.ErrInvalidInput)
	}
	return a.cfg.Worker.Name, nil
}

func (a *app) manager() (*team.Manager, error) {
	name, err := a.teamName()
	if err != nil {
		return nil, err
	}
	return team.NewManager(a.layout(), name,
		team.WithLogger(a.logger),
		team.WithBus(a.events()),
		team.WithLockOptions(a.lockOptions(name)),
	)
}

// lockOptions returns the lock timings every store of team uses. The team
// policy decides them so that all processes agree on when a lock is stale;
// the configured defaults apply until the team has a config.
func (a *app) lockOptions(name string) statefs.LockOptions {
	p := a.cfg.Policy(team.Policy{})
	if mgr, err := team.NewManager(a.layout(), name, team.WithLogger(a.logger)); err == nil {
		if cfg, err := mgr.ReadConfig(); err == nil {
			p = cfg.Policy
		}
	}
	opts := p.LockOptions()
	if retry := a.cfg.Lock.LockOptions().RetryInterval; retry > 0 {
		opts.RetryInterval = retry
	}
	return opts
}

// policy returns the team's stored policy, falling back to the configured
// defaults when the team has no config yet.
func (a *app) policy(mgr *team.Manager) team.Policy {
	cfg, err := mgr.ReadConfig()
	if err != nil {
		return a.cfg.Policy(team.Policy{})
	}
	return cfg.Policy
}

func (a *app) tasks() (*taskstore.Store, error) {
	mgr, err := a.manager()
	if err != nil {
		return nil, err
	}
	p := a.policy(mgr)
	return taskstore.New(a.layout(), mgr.Team(),
		taskstore.WithLogger(a.logger),
		taskstore.WithBus(a.events()),
		taskstore.WithLockOptions(a.lockOptions(mgr.Team())),
		taskstore.WithLease(p.ClaimLease()),
	)
}

func (a *app) registry() (*registry.Registry, error) {
	name, err := a.teamName()
	if err != nil {
		return nil, err
	}
	return registry.New(a.layout(), name,
		registry.WithLogger(a.logger),
		registry.WithLockOptions(a.lockOptions(name)),
	)
}

// notifier logs alerts; external delivery channels plug in here.
func (a *app) notifier() notify.Notifier {
	return notify.LogNotifier{Logger: a.logger.WithComponent("notify")}
}

func (a *app) mailbox() (*mailbox.Mailbox, error) {
	mgr, err := a.manager()
	if err != nil {
		return nil, err
	}
	return mailbox.New(a.layout(), mgr.Team(),
		mailbox.WithLogger(a.logger),
		mailbox.WithBus(a.events()),
		mailbox.WithNotifier(a.notifier()),
		mailbox.WithLockOptions(a.lockOptions(mgr.Team())),
		mailbox.WithRoster(func() ([]string, error) {
			cfg, err := mgr.ReadConfig()
			if err != nil {
				return nil, err
			}
			joined, err := statefs.ListDirs(a.layout().WorkersDir(mgr.Team()))
			if err != nil {
				return nil, err
			}
			names := append(cfg.WorkerNames(), joined...)
			slices.Sort(names)
			return slices.Compact(names), nil
		}),
	)
}

func (a *app) queue() (*dispatch.Queue, error) {
	name, err := a.teamName()
	if err != nil {
		return nil, err
	}
	return dispatch.New(a.layout(), name,
		dispatch.WithLogger(a.logger),
		dispatch.WithBus(a.events()),
		dispatch.WithNotifier(a.notifier()),
		dispatch.WithLockOptions(a.lockOptions(name)),
	)
}
