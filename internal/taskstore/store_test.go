package taskstore

import (
	"os"
	"sync"
	"testing"
	"time"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/event"
	"github.com/Iron-Ham/crew/internal/statefs"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T, root string, opts ...Option) *Store {
	t.Helper()
	s, err := New(statefs.NewLayout(root), "alpha", opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func mustCreate(t *testing.T, s *Store, id string, deps ...string) Task {
	t.Helper()
	task, err := s.Create(Task{ID: id, Description: "do " + id, DependsOn: deps})
	if err != nil {
		t.Fatalf("Create(%s): %v", id, err)
	}
	return task
}

func mustComplete(t *testing.T, s *Store, id string) {
	t.Helper()
	if _, err := s.Claim(id, "finisher"); err != nil {
		t.Fatalf("Claim(%s): %v", id, err)
	}
	if _, err := s.Transition(id, StatusCompleted, TransitionOptions{Worker: "finisher", Result: "ok"}); err != nil {
		t.Fatalf("Transition(%s): %v", id, err)
	}
}

func TestNewRejectsBadTeam(t *testing.T) {
	if _, err := New(statefs.NewLayout(t.TempDir()), "../escape"); !crewerrors.Is(err, crewerrors.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestCreateAndRead(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, t.TempDir(), WithClock(clock.Now))

	created, err := s.Create(Task{
		ID:          "t-1",
		Description: "write docs",
		Status:      StatusCompleted, // ignored
		Priority:    3,
		DependsOn:   []string{"t-0"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Status != StatusPending {
		t.Errorf("Status = %s, want pending", created.Status)
	}
	if !created.CreatedAt.Equal(clock.Now()) {
		t.Errorf("CreatedAt = %v", created.CreatedAt)
	}

	got, err := s.Read("t-1")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Description != "write docs" || got.Priority != 3 || len(got.DependsOn) != 1 {
		t.Errorf("Read = %+v", got)
	}

	if _, err := s.Create(Task{ID: "t-1"}); !crewerrors.Is(err, crewerrors.ErrInvalidInput) {
		t.Errorf("duplicate Create err = %v, want ErrInvalidInput", err)
	}
}

func TestCreateRejectsInvalid(t *testing.T) {
	s := newTestStore(t, t.TempDir())

	tests := []struct {
		name string
		task Task
	}{
		{name: "empty id", task: Task{}},
		{name: "path separator", task: Task{ID: "a/b"}},
		{name: "self dependency", task: Task{ID: "t-1", DependsOn: []string{"t-1"}}},
		{name: "bad dependency name", task: Task{ID: "t-2", DependsOn: []string{"../x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Create(tt.task); !crewerrors.Is(err, crewerrors.ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestReadMissing(t *testing.T) {
	s := newTestStore(t, t.TempDir())

	_, err := s.Read("nope")
	if !crewerrors.Is(err, crewerrors.ErrTaskNotFound) {
		t.Errorf("err = %v, want ErrTaskNotFound", err)
	}
	if !crewerrors.IsNotFound(err) {
		t.Error("ErrTaskNotFound should classify as not found")
	}
}

func TestMalformedTaskIsIsolated(t *testing.T) {
	root := t.TempDir()
	s := newTestStore(t, root)
	mustCreate(t, s, "good")

	bad := statefs.NewLayout(root).TaskPath("alpha", "bad")
	if err := os.WriteFile(bad, []byte(`{"id":"bad","status":"exploded"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Read("bad"); !crewerrors.Is(err, crewerrors.ErrMalformedState) {
		t.Errorf("Read err = %v, want ErrMalformedState", err)
	}

	tasks, err := s.List()
	if !crewerrors.Is(err, crewerrors.ErrMalformedState) {
		t.Errorf("List err = %v, want ErrMalformedState", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "good" {
		t.Errorf("List = %+v, want only the readable task", tasks)
	}
}

func TestReadRejectsMismatchedID(t *testing.T) {
	root := t.TempDir()
	s := newTestStore(t, root)
	mustCreate(t, s, "t-1")

	layout := statefs.NewLayout(root)
	data, err := os.ReadFile(layout.TaskPath("alpha", "t-1"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(layout.TaskPath("alpha", "t-2"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Read("t-2"); !crewerrors.Is(err, crewerrors.ErrMalformedState) {
		t.Errorf("err = %v, want ErrMalformedState", err)
	}
}

func TestUpdate(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	mustCreate(t, s, "t-1")

	updated, err := s.Update("t-1", func(task *Task) error {
		task.Description = "revised"
		task.Priority = 7
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Description != "revised" || updated.Priority != 7 {
		t.Errorf("Update = %+v", updated)
	}

	_, err = s.Update("t-1", func(task *Task) error {
		task.Status = StatusCompleted
		return nil
	})
	if !crewerrors.Is(err, crewerrors.ErrInvalidInput) {
		t.Errorf("status edit err = %v, want ErrInvalidInput", err)
	}

	got, _ := s.Read("t-1")
	if got.Status != StatusPending || got.Description != "revised" {
		t.Errorf("rejected update leaked: %+v", got)
	}

	if _, err := s.Update("missing", func(*Task) error { return nil }); !crewerrors.Is(err, crewerrors.ErrTaskNotFound) {
		t.Errorf("missing task err = %v", err)
	}
}

func TestCounts(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	mustCreate(t, s, "a")
	mustCreate(t, s, "b")
	mustCreate(t, s, "c")
	mustCreate(t, s, "d")
	mustComplete(t, s, "a")
	if _, err := s.Claim("b", "w1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Claim("c", "w1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Transition("c", StatusFailed, TransitionOptions{Error: "boom"}); err != nil {
		t.Fatal(err)
	}

	counts, err := s.Counts()
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	want := Counts{Pending: 1, InProgress: 1, Completed: 1, Failed: 1, Total: 4}
	if counts != want {
		t.Errorf("Counts = %+v, want %+v", counts, want)
	}
}

func TestEventsPublished(t *testing.T) {
	bus := event.NewBus(nil)
	var types []string
	bus.SubscribeAll(func(e event.Event) { types = append(types, e.EventType()) })

	s := newTestStore(t, t.TempDir(), WithBus(bus))
	mustCreate(t, s, "t-1")
	if _, err := s.Claim("t-1", "w1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Release("t-1", "w1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Claim("t-1", "w1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Transition("t-1", StatusCompleted, TransitionOptions{}); err != nil {
		t.Fatal(err)
	}

	want := []string{
		event.TypeTaskClaimed,
		event.TypeTaskReleased,
		event.TypeTaskClaimed,
		event.TypeTaskTransitioned,
	}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, types[i], want[i])
		}
	}
}
