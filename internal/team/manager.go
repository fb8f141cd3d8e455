package team

import (
	"fmt"
	"os"
	"time"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/event"
	"github.com/Iron-Ham/crew/internal/logging"
	"github.com/Iron-Ham/crew/internal/phase"
	"github.com/Iron-Ham/crew/internal/statefs"
)

// Manager owns the team-wide documents of one team.
type Manager struct {
	layout   statefs.Layout
	team     string
	lockOpts statefs.LockOptions
	clock    func() time.Time
	bus      *event.Bus
	cache    *ConfigCache
	logger   *logging.Logger
}

// NewManager returns a Manager for team under layout.
func NewManager(layout statefs.Layout, team string, opts ...Option) (*Manager, error) {
	if err := statefs.ValidateName("team", team); err != nil {
		return nil, fmt.Errorf("%w: %v", crewerrors.ErrInvalidInput, err)
	}
	m := &Manager{
		layout:   layout,
		team:     team,
		lockOpts: statefs.DefaultLockOptions(),
		clock:    time.Now,
		cache:    NewConfigCache(),
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("team").WithTeam(team)
	return m, nil
}

// Team returns the team name.
func (m *Manager) Team() string { return m.team }

func (m *Manager) now() time.Time { return m.clock().UTC() }

// Exists reports whether the team has a config on disk.
func (m *Manager) Exists() bool {
	return statefs.Exists(m.layout.ConfigPath(m.team))
}

// Init creates the team directory tree, its config, and an initial phase
// document in team-exec. Workers are indexed by roster position. Init
// fails with ErrInvalidInput if the team already exists.
func (m *Manager) Init(cfg Config) (Config, error) {
	if cfg.Name == "" {
		cfg.Name = m.team
	}
	if cfg.Name != m.team {
		return Config{}, fmt.Errorf("%w: config names team %q, manager is for %q", crewerrors.ErrInvalidInput, cfg.Name, m.team)
	}
	now := m.now()
	cfg.SchemaVersion = SchemaVersion
	cfg.Policy = NormalizePolicy(cfg.Policy)
	cfg.Revision = 1
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	workers := make([]Worker, len(cfg.Workers))
	for i, w := range cfg.Workers {
		w.Index = i
		workers[i] = w
	}
	cfg.Workers = workers
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %v", crewerrors.ErrInvalidInput, err)
	}

	path := m.layout.ConfigPath(m.team)
	err := statefs.WithLock(m.layout.LockPath(m.team, "config"), m.lockOpts, func() error {
		if statefs.Exists(path) {
			return fmt.Errorf("%w: team %q already initialized", crewerrors.ErrInvalidInput, m.team)
		}
		for _, dir := range []string{m.layout.TasksDir(m.team), m.layout.WorkersDir(m.team), m.layout.DispatchDir(m.team)} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", dir, err)
			}
		}
		st := phase.NewState(cfg.Policy.MaxFixAttempts, now)
		if err := statefs.WriteJSON(m.layout.PhasePath(m.team), st); err != nil {
			return err
		}
		return statefs.WriteJSON(path, cfg)
	})
	if err != nil {
		return Config{}, err
	}
	m.cache.Invalidate(path)
	m.logger.Info("team initialized", "workers", len(cfg.Workers), "max_workers", cfg.Policy.MaxWorkers)
	return cfg, nil
}

// readConfigFile decodes config.json, migrating legacy shapes in memory.
func (m *Manager) readConfigFile() (Config, bool, error) {
	path := m.layout.ConfigPath(m.team)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, false, crewerrors.NewStateError("read team config", crewerrors.ErrNotFound).
				WithPath(path).WithEntity("team config")
		}
		return Config{}, false, crewerrors.NewStateError("read team config", err).WithPath(path).WithEntity("team config")
	}
	cfg, migrated, err := decodeConfig(data, m.now())
	if err != nil {
		if crewerrors.Is(err, crewerrors.ErrMalformedState) {
			return Config{}, false, crewerrors.NewStateError(err.Error(), crewerrors.ErrMalformedState).
				WithPath(path).WithEntity("team config")
		}
		return Config{}, false, fmt.Errorf("%s: %w", path, err)
	}
	if cfg.Name != m.team {
		return Config{}, false, crewerrors.NewStateError(fmt.Sprintf("file holds team %q", cfg.Name), crewerrors.ErrMalformedState).
			WithPath(path).WithEntity("team config")
	}
	return cfg, migrated, nil
}

// ReadConfig returns the team config. A legacy config is migrated in
// memory; Migrate persists the upgrade.
func (m *Manager) ReadConfig() (Config, error) {
	return m.cache.Load(m.layout.ConfigPath(m.team), func() (Config, error) {
		cfg, _, err := m.readConfigFile()
		return cfg, err
	})
}

// SaveConfig replaces the team config. cfg.Revision must equal the
// revision on disk; the saved config carries the next revision. Policy
// values are normalized before validation.
func (m *Manager) SaveConfig(cfg Config) (Config, error) {
	path := m.layout.ConfigPath(m.team)
	var saved Config
	err := statefs.WithLock(m.layout.LockPath(m.team, "config"), m.lockOpts, func() error {
		cur, _, err := m.readConfigFile()
		if err != nil {
			return err
		}
		if cfg.Revision != cur.Revision {
			return fmt.Errorf("%w: stale config revision %d, current is %d", crewerrors.ErrInvalidInput, cfg.Revision, cur.Revision)
		}
		cfg.SchemaVersion = SchemaVersion
		cfg.Name = m.team
		cfg.Policy = NormalizePolicy(cfg.Policy)
		cfg.Revision = cur.Revision + 1
		cfg.CreatedAt = cur.CreatedAt
		cfg.UpdatedAt = m.now()
		if cfg.Workers == nil {
			cfg.Workers = []Worker{}
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%w: %v", crewerrors.ErrInvalidInput, err)
		}
		saved = cfg
		return statefs.WriteJSON(path, cfg)
	})
	m.cache.Invalidate(path)
	if err != nil {
		return Config{}, err
	}
	m.logger.Debug("team config saved", "revision", saved.Revision)
	return saved, nil
}

// Migrate rewrites a legacy config in the current schema. It reports
// whether a migration happened; a current config is left untouched.
func (m *Manager) Migrate() (Config, bool, error) {
	path := m.layout.ConfigPath(m.team)
	var (
		cfg      Config
		migrated bool
	)
	err := statefs.WithLock(m.layout.LockPath(m.team, "config"), m.lockOpts, func() error {
		var err error
		cfg, migrated, err = m.readConfigFile()
		if err != nil || !migrated {
			return err
		}
		cfg.Revision = 1
		return statefs.WriteJSON(path, cfg)
	})
	m.cache.Invalidate(path)
	if err != nil {
		return Config{}, false, err
	}
	if migrated {
		m.logger.Info("team config migrated", "schema_version", SchemaVersion)
	}
	return cfg, migrated, nil
}

// Cleanup removes every file of the team. Removing a team that does not
// exist is not an error.
func (m *Manager) Cleanup() error {
	dir := m.layout.TeamDir(m.team)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove %s: %w", dir, err)
	}
	m.cache.Invalidate(m.layout.ConfigPath(m.team))
	m.logger.Info("team state removed")
	return nil
}
