package taskstore

import (
	"cmp"
	"fmt"
	"slices"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
)

// Readiness reports whether every dependency of task id exists and is
// completed. Missing dependencies make the task not ready; they are not an
// error.
func (s *Store) Readiness(id string) (ReadinessReport, error) {
	t, err := s.Read(id)
	if err != nil {
		return ReadinessReport{TaskID: id}, err
	}
	return s.readiness(&t)
}

func (s *Store) readiness(t *Task) (ReadinessReport, error) {
	report := ReadinessReport{TaskID: t.ID}
	for _, dep := range t.DependsOn {
		d, err := s.Read(dep)
		switch {
		case err == nil:
			if d.Status != StatusCompleted {
				report.Incomplete = append(report.Incomplete, dep)
			}
		case crewerrors.Is(err, crewerrors.ErrTaskNotFound):
			report.Missing = append(report.Missing, dep)
		default:
			return report, fmt.Errorf("read dependency %s of %s: %w", dep, t.ID, err)
		}
	}
	report.Ready = len(report.Missing) == 0 && len(report.Incomplete) == 0
	return report, nil
}

// claimOrder returns task ids level by level in dependency order, each
// level sorted by priority, creation time, then id. Dependencies on ids
// outside tasks are ignored for ordering. Tasks on a dependency cycle are
// omitted since they can never become ready.
func claimOrder(tasks []Task) []string {
	if len(tasks) == 0 {
		return nil
	}

	byID := make(map[string]*Task, len(tasks))
	for i := range tasks {
		byID[tasks[i].ID] = &tasks[i]
	}
	inDegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string, len(tasks))
	for id := range byID {
		inDegree[id] = 0
	}
	for i := range tasks {
		id := tasks[i].ID
		for _, dep := range tasks[i].DependsOn {
			if _, ok := byID[dep]; ok {
				inDegree[id]++
				dependents[dep] = append(dependents[dep], id)
			}
		}
	}

	less := func(a, b string) int {
		ta, tb := byID[a], byID[b]
		if c := cmp.Compare(ta.Priority, tb.Priority); c != 0 {
			return c
		}
		if c := ta.CreatedAt.Compare(tb.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	}

	var level []string
	for id, deg := range inDegree {
		if deg == 0 {
			level = append(level, id)
		}
	}

	order := make([]string, 0, len(tasks))
	for len(level) > 0 {
		slices.SortFunc(level, less)
		order = append(order, level...)

		var next []string
		for _, id := range level {
			for _, dep := range dependents[id] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		level = next
	}
	return order
}
