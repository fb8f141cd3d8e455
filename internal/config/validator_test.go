package config

import (
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "test.field",
		Value:   123,
		Message: "must be greater than zero",
	}

	expected := "test.field: must be greater than zero (got: 123)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "test.field", Value: 123, Message: "is invalid"},
		}
		expected := "test.field: is invalid (got: 123)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "field1") || !strings.Contains(result, "field2") {
			t.Errorf("Error() should mention both fields: %s", result)
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantField string
	}{
		{"bad team name", func(c *Config) { c.Team.Name = "../etc" }, "team.name"},
		{"bad worker name", func(c *Config) { c.Worker.Name = "a b" }, "worker.name"},
		{"zero lock timeout", func(c *Config) { c.Lock.TimeoutMs = 0 }, "lock.timeout_ms"},
		{"negative stale after", func(c *Config) { c.Lock.StaleAfterMs = -1 }, "lock.stale_after_ms"},
		{"retry above timeout", func(c *Config) { c.Lock.RetryIntervalMs = c.Lock.TimeoutMs + 1 }, "lock.retry_interval_ms"},
		{"zero liveness threshold", func(c *Config) { c.Liveness.ThresholdSeconds = 0 }, "liveness.threshold_seconds"},
		{"heartbeat slower than threshold", func(c *Config) { c.Heartbeat.IntervalMs = 30_000 }, "heartbeat.interval_ms"},
		{"negative lease", func(c *Config) { c.Claim.LeaseMs = -5 }, "claim.lease_ms"},
		{"zero monitor interval", func(c *Config) { c.Monitor.PollIntervalMs = 0 }, "monitor.poll_interval_ms"},
		{"zero fix attempts", func(c *Config) { c.Phase.MaxFixAttempts = 0 }, "phase.max_fix_attempts"},
		{"unknown exhaustion action", func(c *Config) { c.Phase.OnFixExhausted = "retry" }, "phase.on_fix_exhausted"},
		{"empty exhaustion action", func(c *Config) { c.Phase.OnFixExhausted = "" }, "phase.on_fix_exhausted"},
		{"zero shutdown poll", func(c *Config) { c.Shutdown.PollIntervalMs = 0 }, "shutdown.poll_interval_ms"},
		{"negative shutdown timeout", func(c *Config) { c.Shutdown.TimeoutSeconds = -1 }, "shutdown.timeout_seconds"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			errs := cfg.Validate()
			if len(errs) != 1 {
				t.Fatalf("Validate() = %v, want exactly one error", errs)
			}
			if errs[0].Field != tt.wantField {
				t.Errorf("Field = %q, want %q", errs[0].Field, tt.wantField)
			}
		})
	}
}

func TestConfig_Validate_Accepts(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"names set", func(c *Config) { c.Team.Name = "alpha"; c.Worker.Name = "w-1" }},
		{"fail on exhaustion", func(c *Config) { c.Phase.OnFixExhausted = "fail" }},
		{"upper-case log level", func(c *Config) { c.Logging.Level = "DEBUG" }},
		{"empty log level", func(c *Config) { c.Logging.Level = "" }},
		{"wait forever", func(c *Config) { c.Shutdown.TimeoutSeconds = 0 }},
		{"leased claims", func(c *Config) { c.Claim.LeaseMs = 60_000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if errs := cfg.Validate(); len(errs) != 0 {
				t.Errorf("Validate() = %v, want no errors", errs)
			}
		})
	}
}
