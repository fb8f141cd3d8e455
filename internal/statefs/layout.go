package statefs

import (
	"fmt"
	"path/filepath"
	"regexp"
)

// File and directory names inside a team directory.
const (
	teamsDir      = "team"
	locksDir      = ".locks"
	tasksDir      = "tasks"
	workersDir    = "workers"
	dispatchDir   = "dispatch"
	configFile    = "config.json"
	phaseFile     = "phase.json"
	shutdownFile  = "shutdown.json"
	identityFile  = "identity.json"
	heartbeatFile = "heartbeat.json"
	statusFile    = "status.json"
	inboxFile     = "inbox.json"
	ackFile       = "shutdown-ack.json"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateName checks that a team, worker, task, or request identifier is
// safe to use as a single path component.
func ValidateName(kind, name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid %s name %q: must match %s", kind, name, namePattern.String())
	}
	return nil
}

// Layout resolves entity paths under a state root. The zero value is not
// usable; construct with NewLayout.
type Layout struct {
	root string
}

// NewLayout returns a Layout rooted at root. The path is made absolute so
// that processes started in different working directories agree on it.
func NewLayout(root string) Layout {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return Layout{root: root}
}

// Root returns the state root.
func (l Layout) Root() string { return l.root }

// TeamsDir returns the directory holding every team.
func (l Layout) TeamsDir() string { return filepath.Join(l.root, teamsDir) }

// TeamDir returns the directory of a single team.
func (l Layout) TeamDir(team string) string { return filepath.Join(l.root, teamsDir, team) }

// ConfigPath returns team/<team>/config.json.
func (l Layout) ConfigPath(team string) string { return filepath.Join(l.TeamDir(team), configFile) }

// PhasePath returns team/<team>/phase.json.
func (l Layout) PhasePath(team string) string { return filepath.Join(l.TeamDir(team), phaseFile) }

// ShutdownPath returns team/<team>/shutdown.json.
func (l Layout) ShutdownPath(team string) string {
	return filepath.Join(l.TeamDir(team), shutdownFile)
}

// TasksDir returns team/<team>/tasks.
func (l Layout) TasksDir(team string) string { return filepath.Join(l.TeamDir(team), tasksDir) }

// TaskPath returns team/<team>/tasks/<id>.json.
func (l Layout) TaskPath(team, id string) string {
	return filepath.Join(l.TasksDir(team), id+".json")
}

// WorkersDir returns team/<team>/workers.
func (l Layout) WorkersDir(team string) string { return filepath.Join(l.TeamDir(team), workersDir) }

// WorkerDir returns team/<team>/workers/<worker>.
func (l Layout) WorkerDir(team, worker string) string {
	return filepath.Join(l.WorkersDir(team), worker)
}

// IdentityPath returns the worker identity document path.
func (l Layout) IdentityPath(team, worker string) string {
	return filepath.Join(l.WorkerDir(team, worker), identityFile)
}

// HeartbeatPath returns the worker heartbeat document path.
func (l Layout) HeartbeatPath(team, worker string) string {
	return filepath.Join(l.WorkerDir(team, worker), heartbeatFile)
}

// StatusPath returns the worker status document path.
func (l Layout) StatusPath(team, worker string) string {
	return filepath.Join(l.WorkerDir(team, worker), statusFile)
}

// InboxPath returns the worker mailbox document path.
func (l Layout) InboxPath(team, worker string) string {
	return filepath.Join(l.WorkerDir(team, worker), inboxFile)
}

// ShutdownAckPath returns the worker shutdown acknowledgment path.
func (l Layout) ShutdownAckPath(team, worker string) string {
	return filepath.Join(l.WorkerDir(team, worker), ackFile)
}

// DispatchDir returns team/<team>/dispatch.
func (l Layout) DispatchDir(team string) string { return filepath.Join(l.TeamDir(team), dispatchDir) }

// DispatchPath returns team/<team>/dispatch/<id>.json.
func (l Layout) DispatchPath(team, id string) string {
	return filepath.Join(l.DispatchDir(team), id+".json")
}

// LockPath returns the lock file for a named critical section of a team,
// e.g. LockPath("alpha", "task", "t-1") -> team/alpha/.locks/task-t-1.lock.
func (l Layout) LockPath(team string, parts ...string) string {
	name := "team"
	if len(parts) > 0 {
		name = parts[0]
		for _, p := range parts[1:] {
			name += "-" + p
		}
	}
	return filepath.Join(l.TeamDir(team), locksDir, name+".lock")
}
