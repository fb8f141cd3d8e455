package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTaskNotFoundIsNotFound(t *testing.T) {
	err := fmt.Errorf("read task: %w", ErrTaskNotFound)
	if !IsNotFound(err) {
		t.Error("ErrTaskNotFound should match ErrNotFound")
	}
	if IsNotFound(ErrAlreadyClaimed) {
		t.Error("ErrAlreadyClaimed should not match ErrNotFound")
	}
}

func TestTaskError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *TaskError
		want string
	}{
		{
			name: "bare",
			err:  NewTaskError("claim failed", nil),
			want: "task error: claim failed",
		},
		{
			name: "with context",
			err:  NewTaskError("claim failed", ErrAlreadyClaimed).WithTaskID("t-1").WithWorker("w-2"),
			want: "task error [task=t-1, worker=w-2]: claim failed: already claimed",
		},
		{
			name: "with transition",
			err:  NewTaskError("transition", ErrInvalidTransition).WithTaskID("t-1").WithTransition("pending", "completed"),
			want: "task error [task=t-1, pending->completed]: transition: invalid status transition",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTaskError_Is(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewTaskError("claim", ErrAlreadyClaimed))
	if !errors.Is(err, ErrAlreadyClaimed) {
		t.Error("errors.Is should see through TaskError to the sentinel")
	}
	var taskErr *TaskError
	if !As(err, &taskErr) {
		t.Fatal("As should find *TaskError")
	}
	if taskErr.IsRetryable() {
		t.Error("state machine violations must not be retryable")
	}
}

func TestLockError_Retryable(t *testing.T) {
	timeout := NewLockError("acquire", ErrLockTimeout).WithLockPath("/x.lock").WithHolder("pid=42")
	if !timeout.IsRetryable() {
		t.Error("lock timeout should be retryable")
	}
	if !IsRetryable(fmt.Errorf("outer: %w", timeout)) {
		t.Error("IsRetryable should unwrap")
	}
	if !strings.Contains(timeout.Error(), "lock=/x.lock") || !strings.Contains(timeout.Error(), "holder=pid=42") {
		t.Errorf("Error() = %q, missing context", timeout.Error())
	}

	stale := NewLockError("release", ErrLockStale)
	if stale.IsRetryable() {
		t.Error("stale lock error should not be marked retryable")
	}
}

func TestStateError_Severity(t *testing.T) {
	malformed := NewStateError("decode", ErrMalformedState).WithPath("/a.json").WithEntity("task")
	if got := GetSeverity(malformed); got != SeverityCritical {
		t.Errorf("malformed severity = %v, want critical", got)
	}
	if want := "state error [entity=task, path=/a.json]: decode: malformed state"; malformed.Error() != want {
		t.Errorf("Error() = %q, want %q", malformed.Error(), want)
	}

	missing := NewStateError("read", ErrNotFound)
	if got := GetSeverity(missing); got != SeverityError {
		t.Errorf("missing severity = %v, want error", got)
	}
	if !IsNotFound(missing) {
		t.Error("StateError wrapping ErrNotFound should be not-found")
	}
}

func TestSchemaError(t *testing.T) {
	err := NewSchemaError("cannot migrate", 7)
	if !Is(err, ErrUnsupportedSchema) {
		t.Error("SchemaError should wrap ErrUnsupportedSchema")
	}
	if !strings.Contains(err.Error(), "version=7") {
		t.Errorf("Error() = %q, want version", err.Error())
	}
}

func TestClassificationNil(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil is not retryable")
	}
	if GetSeverity(nil) != SeverityDebug {
		t.Error("nil severity should be debug")
	}
	if GetSeverity(errors.New("plain")) != SeverityError {
		t.Error("plain error severity should default to error")
	}
}
