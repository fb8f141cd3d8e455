package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Iron-Ham/crew/internal/logging"
	"github.com/Iron-Ham/crew/internal/phase"
	"github.com/Iron-Ham/crew/internal/statefs"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "lock.timeout_ms")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidFixExhaustedActions returns the accepted phase.on_fix_exhausted values
func ValidFixExhaustedActions() []string {
	return []string{string(phase.OnFixExhaustedHold), string(phase.OnFixExhaustedFail)}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateNames()...)
	errors = append(errors, c.validateLock()...)
	errors = append(errors, c.validateLiveness()...)
	errors = append(errors, c.validateMonitor()...)
	errors = append(errors, c.validatePhase()...)
	errors = append(errors, c.validateShutdown()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateNames checks the optional team and worker names. Empty means the
// command must be given one explicitly.
func (c *Config) validateNames() []ValidationError {
	var errors []ValidationError

	if c.Team.Name != "" {
		if err := statefs.ValidateName("team", c.Team.Name); err != nil {
			errors = append(errors, ValidationError{
				Field:   "team.name",
				Value:   c.Team.Name,
				Message: "must be a single path component of letters, digits, '.', '_' or '-'",
			})
		}
	}
	if c.Worker.Name != "" {
		if err := statefs.ValidateName("worker", c.Worker.Name); err != nil {
			errors = append(errors, ValidationError{
				Field:   "worker.name",
				Value:   c.Worker.Name,
				Message: "must be a single path component of letters, digits, '.', '_' or '-'",
			})
		}
	}
	return errors
}

// validateLock validates the LockConfig
func (c *Config) validateLock() []ValidationError {
	var errors []ValidationError

	if c.Lock.TimeoutMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "lock.timeout_ms",
			Value:   c.Lock.TimeoutMs,
			Message: "must be positive",
		})
	}
	if c.Lock.StaleAfterMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "lock.stale_after_ms",
			Value:   c.Lock.StaleAfterMs,
			Message: "must be positive",
		})
	}
	if c.Lock.RetryIntervalMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "lock.retry_interval_ms",
			Value:   c.Lock.RetryIntervalMs,
			Message: "must be positive",
		})
	}
	if c.Lock.RetryIntervalMs > 0 && c.Lock.TimeoutMs > 0 && c.Lock.RetryIntervalMs > c.Lock.TimeoutMs {
		errors = append(errors, ValidationError{
			Field:   "lock.retry_interval_ms",
			Value:   c.Lock.RetryIntervalMs,
			Message: fmt.Sprintf("must not exceed lock.timeout_ms (%d)", c.Lock.TimeoutMs),
		})
	}

	return errors
}

// validateLiveness validates the liveness, heartbeat, and claim settings
func (c *Config) validateLiveness() []ValidationError {
	var errors []ValidationError

	if c.Liveness.ThresholdSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "liveness.threshold_seconds",
			Value:   c.Liveness.ThresholdSeconds,
			Message: "must be positive",
		})
	}
	if c.Heartbeat.IntervalMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "heartbeat.interval_ms",
			Value:   c.Heartbeat.IntervalMs,
			Message: "must be positive",
		})
	}

	// A worker beating slower than the threshold is declared dead between beats.
	if c.Liveness.ThresholdSeconds > 0 && c.Heartbeat.IntervalMs >= c.Liveness.ThresholdSeconds*1000 {
		errors = append(errors, ValidationError{
			Field:   "heartbeat.interval_ms",
			Value:   c.Heartbeat.IntervalMs,
			Message: fmt.Sprintf("must be less than liveness.threshold_seconds (%ds)", c.Liveness.ThresholdSeconds),
		})
	}

	if c.Claim.LeaseMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "claim.lease_ms",
			Value:   c.Claim.LeaseMs,
			Message: "must be non-negative (0 = claims never expire)",
		})
	}

	return errors
}

// validateMonitor validates the MonitorConfig
func (c *Config) validateMonitor() []ValidationError {
	var errors []ValidationError

	if c.Monitor.PollIntervalMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "monitor.poll_interval_ms",
			Value:   c.Monitor.PollIntervalMs,
			Message: "must be positive",
		})
	}

	return errors
}

// validatePhase validates the PhaseConfig
func (c *Config) validatePhase() []ValidationError {
	var errors []ValidationError

	if c.Phase.MaxFixAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "phase.max_fix_attempts",
			Value:   c.Phase.MaxFixAttempts,
			Message: "must be at least 1",
		})
	}
	if !slices.Contains(ValidFixExhaustedActions(), c.Phase.OnFixExhausted) {
		errors = append(errors, ValidationError{
			Field:   "phase.on_fix_exhausted",
			Value:   c.Phase.OnFixExhausted,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidFixExhaustedActions(), ", ")),
		})
	}

	return errors
}

// validateShutdown validates the ShutdownConfig
func (c *Config) validateShutdown() []ValidationError {
	var errors []ValidationError

	if c.Shutdown.PollIntervalMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "shutdown.poll_interval_ms",
			Value:   c.Shutdown.PollIntervalMs,
			Message: "must be positive",
		})
	}
	if c.Shutdown.TimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "shutdown.timeout_seconds",
			Value:   c.Shutdown.TimeoutSeconds,
			Message: "must be non-negative (0 = wait forever)",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(logging.ValidLevels(), strings.ToUpper(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(logging.ValidLevels(), ", ")),
		})
	}

	return errors
}
