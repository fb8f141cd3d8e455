package registry

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/statefs"
)

func newTestRegistry(t *testing.T, root string, opts ...Option) *Registry {
	t.Helper()
	r, err := New(statefs.NewLayout(root), "alpha", opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestIdentity(t *testing.T) {
	r := newTestRegistry(t, t.TempDir())

	id, err := r.WriteIdentity(Identity{Name: "w1", Index: 1, Role: "executor"})
	if err != nil {
		t.Fatalf("WriteIdentity: %v", err)
	}
	if id.Team != "alpha" || id.PID != os.Getpid() || id.JoinedAt.IsZero() {
		t.Errorf("identity defaults not filled: %+v", id)
	}

	got, err := r.ReadIdentity("w1")
	if err != nil {
		t.Fatalf("ReadIdentity: %v", err)
	}
	if got.Role != "executor" || got.Index != 1 {
		t.Errorf("ReadIdentity = %+v", got)
	}

	if _, err := r.WriteIdentity(Identity{Name: "w1"}); !crewerrors.Is(err, crewerrors.ErrInvalidInput) {
		t.Errorf("second join err = %v, want ErrInvalidInput", err)
	}
	if _, err := r.WriteIdentity(Identity{Name: "w2", Index: -1}); !crewerrors.Is(err, crewerrors.ErrInvalidInput) {
		t.Errorf("negative index err = %v, want ErrInvalidInput", err)
	}
	if _, err := r.ReadIdentity("nobody"); !crewerrors.IsNotFound(err) {
		t.Errorf("missing identity err = %v, want not found", err)
	}
}

func TestHeartbeatMonotonic(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	r := newTestRegistry(t, t.TempDir(), WithClock(clock))

	first, err := r.Heartbeat("w1")
	if err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if first.Turn != 1 || !first.LastSeen.Equal(now) {
		t.Errorf("first beat = %+v", first)
	}

	// A clock that steps backwards must not move LastSeen backwards.
	mu.Lock()
	now = now.Add(-time.Hour)
	mu.Unlock()
	second, err := r.Heartbeat("w1")
	if err != nil {
		t.Fatal(err)
	}
	if second.Turn != 2 || second.LastSeen.Before(first.LastSeen) {
		t.Errorf("second beat = %+v, first = %+v", second, first)
	}
}

func TestHeartbeatConcurrentTurns(t *testing.T) {
	root := t.TempDir()
	const beats = 12

	var wg sync.WaitGroup
	for range beats {
		r := newTestRegistry(t, root)
		wg.Go(func() {
			if _, err := r.Heartbeat("w1"); err != nil {
				t.Errorf("Heartbeat: %v", err)
			}
		})
	}
	wg.Wait()

	hb, err := newTestRegistry(t, root).ReadHeartbeat("w1")
	if err != nil {
		t.Fatal(err)
	}
	if hb.Turn != beats {
		t.Errorf("Turn = %d, want %d", hb.Turn, beats)
	}
}

func TestReadHeartbeatMissing(t *testing.T) {
	r := newTestRegistry(t, t.TempDir())
	if _, err := r.ReadHeartbeat("w1"); !crewerrors.IsNotFound(err) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestIsAlive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	threshold := 30 * time.Second

	tests := []struct {
		name string
		age  time.Duration
		want bool
	}{
		{"fresh", 0, true},
		{"at threshold", threshold, true},
		{"just past threshold", threshold + time.Millisecond, false},
		{"long dead", time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hb := Heartbeat{Worker: "w1", LastSeen: now.Add(-tt.age)}
			if got := IsAlive(hb, now, threshold); got != tt.want {
				t.Errorf("IsAlive = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	r := newTestRegistry(t, t.TempDir())

	if _, err := r.WriteStatus(Status{Worker: "w1", State: "sleeping"}); !crewerrors.Is(err, crewerrors.ErrInvalidInput) {
		t.Errorf("unknown state err = %v, want ErrInvalidInput", err)
	}

	if _, err := r.WriteStatus(Status{Worker: "w1", State: StateWorking, TaskID: "t-1"}); err != nil {
		t.Fatalf("WriteStatus: %v", err)
	}
	st, err := r.ReadStatus("w1")
	if err != nil {
		t.Fatalf("ReadStatus: %v", err)
	}
	if st.State != StateWorking || st.TaskID != "t-1" || st.UpdatedAt.IsZero() {
		t.Errorf("ReadStatus = %+v", st)
	}
}

func TestListWorkers(t *testing.T) {
	r := newTestRegistry(t, t.TempDir())
	for _, w := range []string{"w2", "w1"} {
		if _, err := r.Heartbeat(w); err != nil {
			t.Fatal(err)
		}
	}
	workers, err := r.ListWorkers()
	if err != nil {
		t.Fatal(err)
	}
	if len(workers) != 2 || workers[0] != "w1" || workers[1] != "w2" {
		t.Errorf("ListWorkers = %v", workers)
	}
}

func TestHeartbeaterRun(t *testing.T) {
	r := newTestRegistry(t, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	beats := make(chan Heartbeat, 16)
	h := NewHeartbeater(r, "w1", 5*time.Millisecond, func(hb Heartbeat) {
		select {
		case beats <- hb:
		default:
		}
	})

	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	for want := uint64(1); want <= 3; want++ {
		select {
		case hb := <-beats:
			if hb.Turn != want {
				t.Errorf("turn = %d, want %d", hb.Turn, want)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for heartbeat")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
