package taskstore

import (
	"fmt"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/event"
)

// Transition moves a task to status to. Permitted changes are
// pending->in_progress (a claim, requiring opts.Worker),
// in_progress->{completed,failed,blocked}, blocked->pending, and
// failed->pending, which counts as a retry. Anything else fails with
// ErrInvalidTransition. Unlike Claim, Transition never renews or takes
// over an existing claim.
func (s *Store) Transition(id string, to Status, opts TransitionOptions) (Task, error) {
	if !to.Valid() {
		return Task{}, crewerrors.NewTaskError(fmt.Sprintf("unknown status %q", to), crewerrors.ErrInvalidInput).
			WithTaskID(id)
	}
	if to == StatusInProgress {
		if opts.Worker == "" {
			return Task{}, crewerrors.NewTaskError("in_progress requires a worker", crewerrors.ErrInvalidInput).
				WithTaskID(id)
		}
		return s.claim(id, opts.Worker, true)
	}

	var from Status
	t, err := s.mutate(id, func(t *Task) error {
		from = t.Status
		if !CanTransition(from, to) {
			return crewerrors.NewTaskError("transition", crewerrors.ErrInvalidTransition).
				WithTaskID(id).WithWorker(opts.Worker).WithTransition(string(from), string(to))
		}

		switch from {
		case StatusInProgress:
			if opts.Worker != "" && t.Claim.Worker != opts.Worker {
				return crewerrors.NewTaskError("claim held by "+t.Claim.Worker, crewerrors.ErrAlreadyClaimed).
					WithTaskID(id).WithWorker(opts.Worker)
			}
			t.LastWorker = t.Claim.Worker
			t.Claim = nil
		case StatusFailed:
			t.Attempts++
		}

		switch to {
		case StatusCompleted:
			t.Result = opts.Result
			t.Error = ""
		case StatusFailed, StatusBlocked:
			t.Error = opts.Error
		}
		t.Status = to
		return nil
	})
	if err != nil {
		return Task{}, err
	}

	s.logger.Info("task transitioned", "task_id", id, "from", string(from), "to", string(to))
	s.bus.Publish(event.NewTaskTransitionedEvent(s.team, id, string(from), string(to)))
	return t, nil
}
