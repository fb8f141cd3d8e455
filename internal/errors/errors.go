// Package errors provides the error taxonomy shared by every crew state
// store. It defines sentinel errors for each failure class, typed errors that
// carry entity context, and classification helpers.
//
// # Error Classes
//
//   - Not found: [ErrNotFound], [ErrTaskNotFound]
//   - State machine violations: [ErrAlreadyClaimed], [ErrInvalidTransition],
//     [ErrTaskNotReady]. Never retried automatically.
//   - Contention: [ErrLockTimeout], [ErrLockStale]. Callers may retry with backoff.
//   - Corruption: [ErrMalformedState]. Fatal for the read that hit it only.
//   - Migration: [ErrUnsupportedSchema]. Carries the offending version.
//
// # Usage
//
//	err := errors.NewTaskError("claim failed", errors.ErrAlreadyClaimed).
//	    WithTaskID("t-1").WithWorker("worker-2")
//
//	if errors.Is(err, errors.ErrAlreadyClaimed) { ... }
//
//	var lockErr *errors.LockError
//	if errors.As(err, &lockErr) { ... }
//
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

var (
	// ErrNotFound indicates that an entity does not exist on disk.
	ErrNotFound = New("not found")
	// ErrTaskNotFound indicates that a task could not be found.
	ErrTaskNotFound = fmt.Errorf("task %w", ErrNotFound)
	// ErrTaskNotReady indicates that a task still has unfinished dependencies.
	ErrTaskNotReady = New("task not ready")
	// ErrAlreadyClaimed indicates that another worker holds a live claim.
	ErrAlreadyClaimed = New("already claimed")
	// ErrInvalidTransition indicates a status change the state machine forbids.
	ErrInvalidTransition = New("invalid status transition")
)

var (
	// ErrLockTimeout indicates that a lock could not be acquired in time.
	ErrLockTimeout = New("lock acquisition timed out")
	// ErrLockStale indicates that a held lock was reclaimed by another
	// process before it was released.
	ErrLockStale = New("lock went stale while held")
)

var (
	// ErrMalformedState indicates that a persisted file could not be decoded.
	ErrMalformedState = New("malformed state")
	// ErrUnsupportedSchema indicates a config shape that cannot be migrated.
	ErrUnsupportedSchema = New("unsupported schema")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error
// -----------------------------------------------------------------------------

// CrewError is implemented by every typed error in this package.
type CrewError interface {
	error
	Unwrap() error
	Severity() Severity
	IsRetryable() bool
}

type baseError struct {
	message   string
	cause     error
	severity  Severity
	retryable bool
}

func (e *baseError) Unwrap() error      { return e.cause }
func (e *baseError) Severity() Severity { return e.severity }
func (e *baseError) IsRetryable() bool  { return e.retryable }

// format renders "prefix [k=v, ...]: message: cause".
func (e *baseError) format(prefix string, parts []string) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// StateError
// -----------------------------------------------------------------------------

// StateError reports a problem reading or writing a persisted entity file.
//
// Example:
//
//	err := errors.NewStateError("decode task", errors.ErrMalformedState).
//	    WithPath("/state/team/a/tasks/t-1.json").WithEntity("task")
type StateError struct {
	baseError
	Path   string
	Entity string
}

// NewStateError creates a new StateError.
func NewStateError(message string, cause error) *StateError {
	sev := SeverityError
	if Is(cause, ErrMalformedState) {
		sev = SeverityCritical
	}
	return &StateError{baseError: baseError{message: message, cause: cause, severity: sev}}
}

// WithPath records the file the error refers to.
func (e *StateError) WithPath(path string) *StateError {
	e.Path = path
	return e
}

// WithEntity records the kind of entity (task, heartbeat, inbox...).
func (e *StateError) WithEntity(entity string) *StateError {
	e.Entity = entity
	return e
}

// Error returns the formatted error message.
func (e *StateError) Error() string {
	var parts []string
	if e.Entity != "" {
		parts = append(parts, "entity="+e.Entity)
	}
	if e.Path != "" {
		parts = append(parts, "path="+e.Path)
	}
	return e.format("state error", parts)
}

// -----------------------------------------------------------------------------
// TaskError
// -----------------------------------------------------------------------------

// TaskError reports a task store failure with the task and worker involved.
type TaskError struct {
	baseError
	TaskID string
	Worker string
	From   string
	To     string
}

// NewTaskError creates a new TaskError.
func NewTaskError(message string, cause error) *TaskError {
	return &TaskError{baseError: baseError{message: message, cause: cause, severity: SeverityWarning}}
}

// WithTaskID adds a task ID to the error context.
func (e *TaskError) WithTaskID(id string) *TaskError {
	e.TaskID = id
	return e
}

// WithWorker adds a worker name to the error context.
func (e *TaskError) WithWorker(worker string) *TaskError {
	e.Worker = worker
	return e
}

// WithTransition records the rejected from/to pair.
func (e *TaskError) WithTransition(from, to string) *TaskError {
	e.From = from
	e.To = to
	return e
}

// Error returns the formatted error message.
func (e *TaskError) Error() string {
	var parts []string
	if e.TaskID != "" {
		parts = append(parts, "task="+e.TaskID)
	}
	if e.Worker != "" {
		parts = append(parts, "worker="+e.Worker)
	}
	if e.From != "" || e.To != "" {
		parts = append(parts, fmt.Sprintf("%s->%s", e.From, e.To))
	}
	return e.format("task error", parts)
}

// -----------------------------------------------------------------------------
// LockError
// -----------------------------------------------------------------------------

// LockError reports lock contention. Timeouts are retryable.
type LockError struct {
	baseError
	LockPath string
	Holder   string
}

// NewLockError creates a new LockError. Errors wrapping ErrLockTimeout are
// marked retryable.
func NewLockError(message string, cause error) *LockError {
	return &LockError{baseError: baseError{
		message:   message,
		cause:     cause,
		severity:  SeverityWarning,
		retryable: Is(cause, ErrLockTimeout),
	}}
}

// WithLockPath records the lock file path.
func (e *LockError) WithLockPath(path string) *LockError {
	e.LockPath = path
	return e
}

// WithHolder records the current holder description, when known.
func (e *LockError) WithHolder(holder string) *LockError {
	e.Holder = holder
	return e
}

// Error returns the formatted error message.
func (e *LockError) Error() string {
	var parts []string
	if e.LockPath != "" {
		parts = append(parts, "lock="+e.LockPath)
	}
	if e.Holder != "" {
		parts = append(parts, "holder="+e.Holder)
	}
	return e.format("lock error", parts)
}

// -----------------------------------------------------------------------------
// SchemaError
// -----------------------------------------------------------------------------

// SchemaError reports a config whose schema version cannot be handled.
type SchemaError struct {
	baseError
	Version any
}

// NewSchemaError creates a SchemaError wrapping ErrUnsupportedSchema.
func NewSchemaError(message string, version any) *SchemaError {
	return &SchemaError{
		baseError: baseError{message: message, cause: ErrUnsupportedSchema, severity: SeverityCritical},
		Version:   version,
	}
}

// Error returns the formatted error message.
func (e *SchemaError) Error() string {
	return e.format("schema error", []string{fmt.Sprintf("version=%v", e.Version)})
}

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error is transient contention that may
// succeed when retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var crewErr CrewError
	if As(err, &crewErr) && crewErr.IsRetryable() {
		return true
	}
	return Is(err, ErrLockTimeout)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement CrewError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var crewErr CrewError
	if As(err, &crewErr) {
		return crewErr.Severity()
	}
	return SeverityError
}

// IsNotFound reports whether err means the entity does not exist.
func IsNotFound(err error) bool {
	return Is(err, ErrNotFound)
}
