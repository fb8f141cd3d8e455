package team

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/event"
	"github.com/Iron-Ham/crew/internal/statefs"
)

// DefaultShutdownPollInterval is how often AwaitShutdown rereads acks.
const DefaultShutdownPollInterval = 500 * time.Millisecond

// ShutdownRequest is the persisted form of team/<team>/shutdown.json. A
// new request replaces the previous one; acks name the request they answer.
type ShutdownRequest struct {
	ID          string    `json:"id"`
	Target      string    `json:"target,omitempty"`
	Workers     []string  `json:"workers"`
	Force       bool      `json:"force,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

// Validate checks the request ID and the resolved worker list.
func (r *ShutdownRequest) Validate() error {
	if _, err := uuid.Parse(r.ID); err != nil {
		return fmt.Errorf("request id: %w", err)
	}
	seen := make(map[string]bool, len(r.Workers))
	for _, w := range r.Workers {
		if err := statefs.ValidateName("worker", w); err != nil {
			return err
		}
		if seen[w] {
			return fmt.Errorf("duplicate worker %q", w)
		}
		seen[w] = true
	}
	return nil
}

// Targets reports whether worker is asked to shut down.
func (r *ShutdownRequest) Targets(worker string) bool {
	return slices.Contains(r.Workers, worker)
}

// AckStatus is the final state a worker reports when acknowledging.
type AckStatus string

const (
	// AckClean means the worker held no claims.
	AckClean AckStatus = "clean"
	// AckReleased means the worker released its claims before exiting.
	AckReleased AckStatus = "released"
	// AckAbandoned means the worker exited with claims still held.
	AckAbandoned AckStatus = "abandoned"
)

// Valid reports whether s is a known ack status.
func (s AckStatus) Valid() bool {
	return s == AckClean || s == AckReleased || s == AckAbandoned
}

// ShutdownAck is the persisted form of workers/<worker>/shutdown-ack.json.
type ShutdownAck struct {
	Worker        string    `json:"worker"`
	RequestID     string    `json:"request_id"`
	Status        AckStatus `json:"status"`
	Detail        string    `json:"detail,omitempty"`
	ReleasedTasks []string  `json:"released_tasks,omitempty"`
	AckedAt       time.Time `json:"acked_at"`
}

// Validate checks names, the request ID, and the status.
func (a *ShutdownAck) Validate() error {
	if err := statefs.ValidateName("worker", a.Worker); err != nil {
		return err
	}
	if _, err := uuid.Parse(a.RequestID); err != nil {
		return fmt.Errorf("request id: %w", err)
	}
	if !a.Status.Valid() {
		return fmt.Errorf("unknown ack status %q", a.Status)
	}
	return nil
}

// ShutdownOptions describes a shutdown request.
type ShutdownOptions struct {
	// Target is a worker name or glob pattern. Empty targets every worker.
	Target      string
	Force       bool
	Reason      string
	RequestedBy string
}

// knownWorkers returns the roster plus any worker that registered a
// directory without being on it.
func (m *Manager) knownWorkers() ([]string, error) {
	cfg, err := m.ReadConfig()
	if err != nil {
		return nil, err
	}
	dirs, err := statefs.ListDirs(m.layout.WorkersDir(m.team))
	if err != nil {
		return nil, err
	}
	names := append(cfg.WorkerNames(), dirs...)
	slices.Sort(names)
	return slices.Compact(names), nil
}

// WriteShutdownRequest resolves opts.Target against the known workers and
// persists the request. A target that matches no worker fails with
// ErrNotFound.
func (m *Manager) WriteShutdownRequest(opts ShutdownOptions) (ShutdownRequest, error) {
	pattern := opts.Target
	if pattern == "" {
		pattern = "*"
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return ShutdownRequest{}, fmt.Errorf("%w: target %q: %v", crewerrors.ErrInvalidInput, opts.Target, err)
	}
	known, err := m.knownWorkers()
	if err != nil {
		return ShutdownRequest{}, err
	}
	targets := []string{}
	for _, w := range known {
		if g.Match(w) {
			targets = append(targets, w)
		}
	}
	if len(targets) == 0 && opts.Target != "" {
		return ShutdownRequest{}, fmt.Errorf("no worker matches %q: %w", opts.Target, crewerrors.ErrNotFound)
	}

	req := ShutdownRequest{
		ID:          uuid.NewString(),
		Target:      opts.Target,
		Workers:     targets,
		Force:       opts.Force,
		Reason:      opts.Reason,
		RequestedBy: opts.RequestedBy,
		RequestedAt: m.now(),
	}
	err = statefs.WithLock(m.layout.LockPath(m.team, "shutdown"), m.lockOpts, func() error {
		return statefs.WriteJSON(m.layout.ShutdownPath(m.team), req)
	})
	if err != nil {
		return ShutdownRequest{}, err
	}
	m.logger.Info("shutdown requested", "id", req.ID, "workers", strings.Join(targets, ","), "force", req.Force)
	m.bus.Publish(event.NewShutdownRequestedEvent(m.team, targets, req.Force))
	return req, nil
}

// ReadShutdownRequest loads the current shutdown request.
func (m *Manager) ReadShutdownRequest() (ShutdownRequest, error) {
	var req ShutdownRequest
	if err := statefs.ReadJSON(m.layout.ShutdownPath(m.team), "shutdown request", &req); err != nil {
		return ShutdownRequest{}, err
	}
	return req, nil
}

// PendingShutdown returns the current request if it targets worker and
// the worker has not acknowledged it yet.
func (m *Manager) PendingShutdown(worker string) (ShutdownRequest, bool, error) {
	req, err := m.ReadShutdownRequest()
	if crewerrors.IsNotFound(err) {
		return ShutdownRequest{}, false, nil
	}
	if err != nil {
		return ShutdownRequest{}, false, err
	}
	if !req.Targets(worker) {
		return ShutdownRequest{}, false, nil
	}
	ack, err := m.ReadShutdownAck(worker)
	switch {
	case crewerrors.IsNotFound(err):
		return req, true, nil
	case err != nil:
		return ShutdownRequest{}, false, err
	}
	return req, ack.RequestID != req.ID, nil
}

// WriteShutdownAck records worker's answer to the current request. It
// fails with ErrInvalidInput if the request does not target worker.
func (m *Manager) WriteShutdownAck(worker string, ack ShutdownAck) (ShutdownAck, error) {
	req, err := m.ReadShutdownRequest()
	if err != nil {
		return ShutdownAck{}, err
	}
	if !req.Targets(worker) {
		return ShutdownAck{}, fmt.Errorf("%w: shutdown %s does not target %q", crewerrors.ErrInvalidInput, req.ID, worker)
	}
	ack.Worker = worker
	ack.RequestID = req.ID
	ack.AckedAt = m.now()
	if ack.Status == "" {
		ack.Status = AckClean
	}
	if err := ack.Validate(); err != nil {
		return ShutdownAck{}, fmt.Errorf("%w: %v", crewerrors.ErrInvalidInput, err)
	}
	if err := statefs.WriteJSON(m.layout.ShutdownAckPath(m.team, worker), ack); err != nil {
		return ShutdownAck{}, err
	}
	m.logger.Info("shutdown acknowledged", "worker", worker, "id", req.ID, "status", string(ack.Status))
	return ack, nil
}

// ReadShutdownAck loads worker's most recent ack.
func (m *Manager) ReadShutdownAck(worker string) (ShutdownAck, error) {
	var ack ShutdownAck
	if err := statefs.ReadJSON(m.layout.ShutdownAckPath(m.team, worker), "shutdown ack", &ack); err != nil {
		return ShutdownAck{}, err
	}
	return ack, nil
}

// AwaitOptions bounds AwaitShutdown.
type AwaitOptions struct {
	PollInterval time.Duration
	// Timeout caps the wait. Zero waits until ctx is done.
	Timeout time.Duration
}

// ShutdownResult summarizes the acks collected for one request.
type ShutdownResult struct {
	RequestID string                 `json:"request_id"`
	Acks      map[string]ShutdownAck `json:"acks"`
	Acked     []string               `json:"acked"`
	Missing   []string               `json:"missing"`
	Forced    bool                   `json:"forced,omitempty"`
	// Errors holds, per worker, why an ack file could not be read. Those
	// workers are also listed in Missing.
	Errors map[string]string `json:"errors,omitempty"`

	ackErrs []error
}

// Complete reports whether the leader may tear the team down.
func (r ShutdownResult) Complete() bool { return r.Forced || len(r.Missing) == 0 }

func (m *Manager) collectAcks(req ShutdownRequest) ShutdownResult {
	res := ShutdownResult{
		RequestID: req.ID,
		Acks:      make(map[string]ShutdownAck),
		Acked:     []string{},
		Missing:   []string{},
		Forced:    req.Force,
	}
	for _, w := range req.Workers {
		ack, err := m.ReadShutdownAck(w)
		if err != nil && !crewerrors.IsNotFound(err) {
			m.logger.Warn("unreadable shutdown ack", "worker", w, "error", err)
			if res.Errors == nil {
				res.Errors = make(map[string]string)
			}
			res.Errors[w] = err.Error()
			res.ackErrs = append(res.ackErrs, fmt.Errorf("ack from %s: %w", w, err))
		}
		if err != nil || ack.RequestID != req.ID {
			res.Missing = append(res.Missing, w)
			continue
		}
		res.Acks[w] = ack
		res.Acked = append(res.Acked, w)
	}
	return res
}

// AwaitShutdown polls acks for the current request until every targeted
// worker has answered. A forced request completes on the first pass with
// whatever acks exist. If ctx ends or the timeout passes first, the partial
// result is returned with an error wrapping the context error and any
// unreadable acks.
func (m *Manager) AwaitShutdown(ctx context.Context, opts AwaitOptions) (ShutdownResult, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultShutdownPollInterval
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	req, err := m.ReadShutdownRequest()
	if err != nil {
		return ShutdownResult{}, err
	}

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()
	for {
		res := m.collectAcks(req)
		if res.Complete() {
			for _, w := range res.Acked {
				if res.Acks[w].Status == AckAbandoned {
					m.logger.Warn("worker abandoned claims on shutdown", "worker", w)
				}
			}
			m.logger.Info("shutdown complete", "id", req.ID, "acked", len(res.Acked), "missing", len(res.Missing), "forced", res.Forced)
			m.bus.Publish(event.NewShutdownCompletedEvent(m.team, res.Acked, res.Missing, res.Forced))
			return res, nil
		}
		select {
		case <-ctx.Done():
			return res, fmt.Errorf("shutdown %s still awaiting %s: %w", req.ID, strings.Join(res.Missing, ", "),
				crewerrors.Join(append([]error{ctx.Err()}, res.ackErrs...)...))
		case <-ticker.C:
		}
	}
}
