package taskstore

import (
	"fmt"
	"time"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/event"
	"github.com/Iron-Ham/crew/internal/statefs"
)

// Claim gives worker exclusive ownership of a task and moves it to
// in_progress. It fails with ErrTaskNotFound when the task is absent,
// ErrTaskNotReady when a dependency is missing or incomplete, and
// ErrAlreadyClaimed when another worker holds an unexpired claim.
// Re-claiming a task the worker already holds renews its lease.
func (s *Store) Claim(id, worker string) (Task, error) {
	return s.claim(id, worker, false)
}

// claim validates worker and applies the claim decision under the task
// lock. With fromPendingOnly set, a task that is not pending fails with
// ErrInvalidTransition instead of renewing or taking over a claim.
func (s *Store) claim(id, worker string, fromPendingOnly bool) (Task, error) {
	if err := statefs.ValidateName("worker", worker); err != nil {
		return Task{}, crewerrors.NewTaskError("claim", fmt.Errorf("%w: %v", crewerrors.ErrInvalidInput, err)).
			WithTaskID(id)
	}

	var previous string
	t, err := s.mutate(id, func(t *Task) error {
		if fromPendingOnly && t.Status != StatusPending {
			return crewerrors.NewTaskError("transition", crewerrors.ErrInvalidTransition).
				WithTaskID(id).WithWorker(worker).WithTransition(string(t.Status), string(StatusInProgress))
		}
		var err error
		previous, err = s.claimLocked(t, worker)
		return err
	})
	if err != nil {
		return Task{}, err
	}

	if previous != "" {
		s.logger.Warn("took over expired claim", "task_id", id, "worker", worker, "previous", previous)
		s.bus.Publish(event.NewTaskReleasedEvent(s.team, id, previous, true))
	}
	s.logger.Info("task claimed", "task_id", id, "worker", worker)
	s.bus.Publish(event.NewTaskClaimedEvent(s.team, id, worker))
	return t, nil
}

// claimLocked applies the claim decision to t. It returns the previous
// holder when an expired claim by another worker was taken over.
func (s *Store) claimLocked(t *Task, worker string) (string, error) {
	report, err := s.readiness(t)
	if err != nil {
		return "", err
	}
	if !report.Ready {
		return "", crewerrors.NewTaskError(
			fmt.Sprintf("missing=%v incomplete=%v", report.Missing, report.Incomplete),
			crewerrors.ErrTaskNotReady,
		).WithTaskID(t.ID).WithWorker(worker)
	}

	now := s.now()
	var previous string
	claimedAt := now
	switch t.Status {
	case StatusPending:
	case StatusInProgress:
		holder := t.Claim.Worker
		switch {
		case holder == worker:
			claimedAt = t.Claim.ClaimedAt
		case !t.Claim.Expired(now):
			return "", crewerrors.NewTaskError("claim held by "+holder, crewerrors.ErrAlreadyClaimed).
				WithTaskID(t.ID).WithWorker(worker)
		default:
			previous = holder
		}
	default:
		return "", crewerrors.NewTaskError("claim", crewerrors.ErrInvalidTransition).
			WithTaskID(t.ID).WithWorker(worker).WithTransition(string(t.Status), string(StatusInProgress))
	}

	t.Status = StatusInProgress
	t.Claim = &Claim{Worker: worker, ClaimedAt: claimedAt, LeaseExpiresAt: s.leaseDeadline(now)}
	t.LastWorker = worker
	return previous, nil
}

func (s *Store) leaseDeadline(now time.Time) *time.Time {
	if s.lease <= 0 {
		return nil
	}
	deadline := now.Add(s.lease)
	return &deadline
}

// ClaimNext claims the first available task in priority order: dependency
// level first, then Priority, then creation time. Tasks whose lease has
// expired count as available. It returns nil without error when nothing
// can be claimed.
func (s *Store) ClaimNext(worker string) (*Task, error) {
	tasks, listErr := s.List()
	if listErr != nil {
		s.logger.Warn("skipping unreadable tasks", "error", listErr.Error())
	}

	byID := make(map[string]*Task, len(tasks))
	for i := range tasks {
		byID[tasks[i].ID] = &tasks[i]
	}

	now := s.now()
	for _, id := range claimOrder(tasks) {
		if !available(byID[id], byID, worker, now) {
			continue
		}
		claimed, err := s.Claim(id, worker)
		if err == nil {
			return &claimed, nil
		}
		if crewerrors.Is(err, crewerrors.ErrAlreadyClaimed) ||
			crewerrors.Is(err, crewerrors.ErrTaskNotReady) ||
			crewerrors.Is(err, crewerrors.ErrInvalidTransition) {
			continue // lost a race; try the next one
		}
		return nil, err
	}
	return nil, nil
}

// available is a cheap pre-check against a listing snapshot. Claim
// re-checks everything under the lock.
func available(t *Task, byID map[string]*Task, worker string, now time.Time) bool {
	switch t.Status {
	case StatusPending:
	case StatusInProgress:
		if t.Claim.Worker == worker || !t.Claim.Expired(now) {
			return false
		}
	default:
		return false
	}
	for _, dep := range t.DependsOn {
		d, ok := byID[dep]
		if !ok || d.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// Release clears the claim on an in-progress task and returns it to
// pending. When worker is non-empty it must match the claimant; an empty
// worker releases whatever claim is held.
func (s *Store) Release(id, worker string) (Task, error) {
	return s.release(id, worker, false)
}

func (s *Store) release(id, worker string, reclaimed bool) (Task, error) {
	var holder string
	t, err := s.mutate(id, func(t *Task) error {
		if t.Status != StatusInProgress {
			return crewerrors.NewTaskError("release", crewerrors.ErrInvalidTransition).
				WithTaskID(id).WithWorker(worker).WithTransition(string(t.Status), string(StatusPending))
		}
		holder = t.Claim.Worker
		if worker != "" && holder != worker {
			return crewerrors.NewTaskError("release: claim held by "+holder, crewerrors.ErrAlreadyClaimed).
				WithTaskID(id).WithWorker(worker)
		}
		t.Status = StatusPending
		t.Claim = nil
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	s.logger.Info("task released", "task_id", id, "worker", holder, "reclaimed", reclaimed)
	s.bus.Publish(event.NewTaskReleasedEvent(s.team, id, holder, reclaimed))
	return t, nil
}

// ReleaseClaimsOf returns every task claimed by worker to pending and
// reports their ids. It is used to reclaim work from a dead worker. Tasks
// that change hands concurrently are skipped.
func (s *Store) ReleaseClaimsOf(worker string) ([]string, error) {
	tasks, listErr := s.List()
	var released []string
	var errs []error
	for i := range tasks {
		if tasks[i].ClaimedBy() != worker {
			continue
		}
		_, err := s.release(tasks[i].ID, worker, true)
		switch {
		case err == nil:
			released = append(released, tasks[i].ID)
		case crewerrors.Is(err, crewerrors.ErrAlreadyClaimed), crewerrors.Is(err, crewerrors.ErrInvalidTransition):
		default:
			errs = append(errs, err)
		}
	}
	if listErr != nil {
		errs = append(errs, listErr)
	}
	return released, crewerrors.Join(errs...)
}
