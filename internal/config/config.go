package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/phase"
	"github.com/Iron-Ham/crew/internal/statefs"
	"github.com/Iron-Ham/crew/internal/team"
)

// EnvPrefix is the prefix of environment variables that override config keys,
// e.g. CREW_LOCK_TIMEOUT_MS for lock.timeout_ms.
const EnvPrefix = "CREW"

// Config represents the complete crew configuration
type Config struct {
	State     StateConfig     `mapstructure:"state"`
	Team      TeamConfig      `mapstructure:"team"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Lock      LockConfig      `mapstructure:"lock"`
	Liveness  LivenessConfig  `mapstructure:"liveness"`
	Heartbeat HeartbeatConfig `mapstructure:"heartbeat"`
	Claim     ClaimConfig     `mapstructure:"claim"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Phase     PhaseConfig     `mapstructure:"phase"`
	Shutdown  ShutdownConfig  `mapstructure:"shutdown"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// StateConfig controls where team state lives
type StateConfig struct {
	// Root is the directory holding team/<name>/... (default: ".crew").
	// Supports ~ for home directory expansion.
	Root string `mapstructure:"root"`
}

// TeamConfig selects the team commands operate on
type TeamConfig struct {
	Name string `mapstructure:"name"`
}

// WorkerConfig identifies the calling worker
type WorkerConfig struct {
	// Name is this process's worker name. Commands that act on behalf of a
	// worker (claim, heartbeat, ack) require it.
	Name string `mapstructure:"name"`
}

// LockConfig controls lock acquisition for every store
type LockConfig struct {
	// TimeoutMs is how long to wait for a lock before failing (default: 5000)
	TimeoutMs int `mapstructure:"timeout_ms"`
	// StaleAfterMs is the age past which a held lock may be reclaimed (default: 30000)
	StaleAfterMs int `mapstructure:"stale_after_ms"`
	// RetryIntervalMs is the base delay between acquisition attempts (default: 25)
	RetryIntervalMs int `mapstructure:"retry_interval_ms"`
}

// LivenessConfig controls when a worker counts as dead
type LivenessConfig struct {
	// ThresholdSeconds is the heartbeat age past which a worker is dead (default: 30)
	ThresholdSeconds int `mapstructure:"threshold_seconds"`
}

// HeartbeatConfig controls the worker heartbeat loop
type HeartbeatConfig struct {
	// IntervalMs is the time between heartbeats (default: 5000)
	IntervalMs int `mapstructure:"interval_ms"`
}

// ClaimConfig controls task claims
type ClaimConfig struct {
	// LeaseMs is how long a claim stays valid without renewal (default: 0, never expires)
	LeaseMs int `mapstructure:"lease_ms"`
}

// MonitorConfig controls the monitor loop
type MonitorConfig struct {
	// PollIntervalMs is the time between monitor ticks (default: 2000)
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
	// VerificationRequired holds the team in team-verify until a plan-review
	// request has been approved (default: false)
	VerificationRequired bool `mapstructure:"verification_required"`
}

// PhaseConfig controls the phase controller
type PhaseConfig struct {
	// MaxFixAttempts bounds consecutive entries into team-fix (default: 3)
	MaxFixAttempts int `mapstructure:"max_fix_attempts"`
	// OnFixExhausted is "hold" (stay in team-fix) or "fail" (default: "hold")
	OnFixExhausted string `mapstructure:"on_fix_exhausted"`
	// CarryFixAttempts keeps the fix counter across team-fix -> team-exec
	// loops instead of resetting it (default: false)
	CarryFixAttempts bool `mapstructure:"carry_fix_attempts"`
}

// ShutdownConfig controls graceful shutdown
type ShutdownConfig struct {
	// PollIntervalMs is how often acknowledgments are polled (default: 500)
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
	// TimeoutSeconds bounds the wait for acknowledgments, 0 = wait forever (default: 60)
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// LoggingConfig controls structured logging
type LoggingConfig struct {
	// Level is the log level, case-insensitive: "debug", "info", "warn", "error" (default: "warn")
	Level string `mapstructure:"level"`
	// Dir is where crew.log is written. Empty logs to stderr.
	Dir string `mapstructure:"dir"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		State: StateConfig{
			Root: ".crew",
		},
		Lock: LockConfig{
			TimeoutMs:       int(statefs.DefaultLockTimeout / time.Millisecond),
			StaleAfterMs:    int(statefs.DefaultLockStaleAfter / time.Millisecond),
			RetryIntervalMs: int(statefs.DefaultRetryInterval / time.Millisecond),
		},
		Liveness: LivenessConfig{
			ThresholdSeconds: team.DefaultLivenessThresholdMS / 1000,
		},
		Heartbeat: HeartbeatConfig{
			IntervalMs: 5000,
		},
		Monitor: MonitorConfig{
			PollIntervalMs:       2000,
			VerificationRequired: false,
		},
		Phase: PhaseConfig{
			MaxFixAttempts: team.DefaultMaxFixAttempts,
			OnFixExhausted: string(team.DefaultOnFixExhausted),
		},
		Shutdown: ShutdownConfig{
			PollIntervalMs: int(team.DefaultShutdownPollInterval / time.Millisecond),
			TimeoutSeconds: 60,
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
	}
}

// LockOptions returns the lock timings as statefs options
func (c *LockConfig) LockOptions() statefs.LockOptions {
	return statefs.LockOptions{
		Timeout:       time.Duration(c.TimeoutMs) * time.Millisecond,
		StaleAfter:    time.Duration(c.StaleAfterMs) * time.Millisecond,
		RetryInterval: time.Duration(c.RetryIntervalMs) * time.Millisecond,
	}
}

// Threshold returns the liveness threshold as a time.Duration
func (c *LivenessConfig) Threshold() time.Duration {
	return time.Duration(c.ThresholdSeconds) * time.Second
}

// Interval returns the heartbeat interval as a time.Duration
func (c *HeartbeatConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// Lease returns the claim lease as a time.Duration (0 means claims never expire)
func (c *ClaimConfig) Lease() time.Duration {
	return time.Duration(c.LeaseMs) * time.Millisecond
}

// PollInterval returns the monitor tick interval as a time.Duration
func (c *MonitorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// PollInterval returns the acknowledgment poll interval as a time.Duration
func (c *ShutdownConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// Timeout returns the acknowledgment wait bound (0 means wait forever)
func (c *ShutdownConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Policy overlays the configured limits onto base, which usually comes from
// a manifest or an existing team config. Fields base already sets win.
func (c *Config) Policy(base team.Policy) team.Policy {
	p := base
	if p.MaxFixAttempts <= 0 {
		p.MaxFixAttempts = c.Phase.MaxFixAttempts
	}
	if p.OnFixExhausted == "" {
		p.OnFixExhausted = phase.FixExhaustedAction(c.Phase.OnFixExhausted)
	}
	if !p.CarryFixAttempts {
		p.CarryFixAttempts = c.Phase.CarryFixAttempts
	}
	if p.LockTimeoutMS <= 0 {
		p.LockTimeoutMS = int64(c.Lock.TimeoutMs)
	}
	if p.LockStaleAfterMS <= 0 {
		p.LockStaleAfterMS = int64(c.Lock.StaleAfterMs)
	}
	if p.LivenessThresholdMS <= 0 {
		p.LivenessThresholdMS = int64(c.Liveness.ThresholdSeconds) * 1000
	}
	if p.ClaimLeaseMS <= 0 {
		p.ClaimLeaseMS = int64(c.Claim.LeaseMs)
	}
	return team.NormalizePolicy(p)
}

// ResolveRoot returns the resolved state root.
// If Root starts with ~, it expands to the user's home directory.
// If Root is a relative path, it's resolved relative to baseDir.
func (s *StateConfig) ResolveRoot(baseDir string) string {
	path := s.Root
	if path == "" {
		path = ".crew"
	}

	// Expand ~ to home directory
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	return path
}

// SetDefaults registers default values with v
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("state.root", defaults.State.Root)
	v.SetDefault("team.name", defaults.Team.Name)
	v.SetDefault("worker.name", defaults.Worker.Name)

	// Lock defaults
	v.SetDefault("lock.timeout_ms", defaults.Lock.TimeoutMs)
	v.SetDefault("lock.stale_after_ms", defaults.Lock.StaleAfterMs)
	v.SetDefault("lock.retry_interval_ms", defaults.Lock.RetryIntervalMs)

	// Liveness defaults
	v.SetDefault("liveness.threshold_seconds", defaults.Liveness.ThresholdSeconds)
	v.SetDefault("heartbeat.interval_ms", defaults.Heartbeat.IntervalMs)
	v.SetDefault("claim.lease_ms", defaults.Claim.LeaseMs)

	// Monitor defaults
	v.SetDefault("monitor.poll_interval_ms", defaults.Monitor.PollIntervalMs)
	v.SetDefault("monitor.verification_required", defaults.Monitor.VerificationRequired)

	// Phase defaults
	v.SetDefault("phase.max_fix_attempts", defaults.Phase.MaxFixAttempts)
	v.SetDefault("phase.on_fix_exhausted", defaults.Phase.OnFixExhausted)
	v.SetDefault("phase.carry_fix_attempts", defaults.Phase.CarryFixAttempts)

	// Shutdown defaults
	v.SetDefault("shutdown.poll_interval_ms", defaults.Shutdown.PollIntervalMs)
	v.SetDefault("shutdown.timeout_seconds", defaults.Shutdown.TimeoutSeconds)

	// Logging defaults
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.dir", defaults.Logging.Dir)
}

// Setup points v at the config file and the CREW_ environment. An explicit
// cfgFile must exist; otherwise a missing default file is not an error.
func Setup(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(ConfigDir())
	}

	v.SetEnvPrefix(EnvPrefix)
	// CREW_LOCK_TIMEOUT_MS for lock.timeout_ms
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && crewerrors.As(err, &notFound) {
			return mergeLocal(v)
		}
		return err
	}
	return mergeLocal(v)
}

// mergeLocal layers ./crew.yaml over the user config when it exists.
func mergeLocal(v *viper.Viper) error {
	if _, err := os.Stat(LocalConfigFile); err != nil {
		return nil
	}
	f, err := os.Open(LocalConfigFile)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	v.SetConfigType("yaml")
	return v.MergeConfig(f)
}

// Load reads the configuration from v into a Config struct and validates it
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// LocalConfigFile is the project-level config merged over the user config.
const LocalConfigFile = "crew.yaml"

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "crew")
	}
	// Fall back to ~/.config/crew
	home, err := os.UserHomeDir()
	if err != nil {
		return ".crew"
	}
	return filepath.Join(home, ".config", "crew")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
