package taskstore

import (
	"fmt"
	"sync"
	"testing"
	"time"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
	"github.com/Iron-Ham/crew/internal/event"
)

func TestClaim(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, t.TempDir(), WithClock(clock.Now))
	mustCreate(t, s, "dep")
	mustCreate(t, s, "t-1", "dep")

	t.Run("not found", func(t *testing.T) {
		if _, err := s.Claim("ghost", "w1"); !crewerrors.Is(err, crewerrors.ErrTaskNotFound) {
			t.Errorf("err = %v, want ErrTaskNotFound", err)
		}
	})

	t.Run("not ready", func(t *testing.T) {
		if _, err := s.Claim("t-1", "w1"); !crewerrors.Is(err, crewerrors.ErrTaskNotReady) {
			t.Errorf("err = %v, want ErrTaskNotReady", err)
		}
		got, _ := s.Read("t-1")
		if got.Status != StatusPending || got.Claim != nil {
			t.Errorf("failed claim modified task: %+v", got)
		}
	})

	t.Run("claims when ready", func(t *testing.T) {
		mustComplete(t, s, "dep")
		task, err := s.Claim("t-1", "w1")
		if err != nil {
			t.Fatalf("Claim: %v", err)
		}
		if task.Status != StatusInProgress || task.ClaimedBy() != "w1" {
			t.Errorf("task = %+v", task)
		}
		if !task.Claim.ClaimedAt.Equal(clock.Now()) {
			t.Errorf("ClaimedAt = %v", task.Claim.ClaimedAt)
		}
		if task.Claim.LeaseExpiresAt != nil {
			t.Error("lease should be unset when leases are disabled")
		}
	})

	t.Run("other worker is rejected", func(t *testing.T) {
		if _, err := s.Claim("t-1", "w2"); !crewerrors.Is(err, crewerrors.ErrAlreadyClaimed) {
			t.Errorf("err = %v, want ErrAlreadyClaimed", err)
		}
	})

	t.Run("same worker reclaims idempotently", func(t *testing.T) {
		first, _ := s.Read("t-1")
		clock.Advance(time.Minute)
		again, err := s.Claim("t-1", "w1")
		if err != nil {
			t.Fatalf("re-Claim: %v", err)
		}
		if !again.Claim.ClaimedAt.Equal(first.Claim.ClaimedAt) {
			t.Errorf("re-claim moved ClaimedAt from %v to %v", first.Claim.ClaimedAt, again.Claim.ClaimedAt)
		}
	})

	t.Run("terminal task cannot be claimed", func(t *testing.T) {
		if _, err := s.Claim("dep", "w1"); !crewerrors.Is(err, crewerrors.ErrInvalidTransition) {
			t.Errorf("err = %v, want ErrInvalidTransition", err)
		}
	})

	t.Run("invalid worker name", func(t *testing.T) {
		if _, err := s.Claim("t-1", ""); !crewerrors.Is(err, crewerrors.ErrInvalidInput) {
			t.Errorf("err = %v, want ErrInvalidInput", err)
		}
	})
}

func TestClaimRace(t *testing.T) {
	root := t.TempDir()
	mustCreate(t, newTestStore(t, root), "contested")

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		losers  int
		other   []error
	)
	for i := range workers {
		// Each goroutine uses its own Store, as separate processes would.
		s := newTestStore(t, root)
		worker := fmt.Sprintf("w%d", i)
		wg.Go(func() {
			_, err := s.Claim("contested", worker)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, worker)
			case crewerrors.Is(err, crewerrors.ErrAlreadyClaimed):
				losers++
			default:
				other = append(other, err)
			}
		})
	}
	wg.Wait()

	if len(other) > 0 {
		t.Fatalf("unexpected errors: %v", other)
	}
	if len(winners) != 1 || losers != workers-1 {
		t.Fatalf("winners = %v, losers = %d", winners, losers)
	}

	got, err := newTestStore(t, root).Read("contested")
	if err != nil {
		t.Fatal(err)
	}
	if got.ClaimedBy() != winners[0] {
		t.Errorf("persisted claimant %q, winner %q", got.ClaimedBy(), winners[0])
	}
}

func TestReleaseThenClaimByOther(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	mustCreate(t, s, "t-1")

	if _, err := s.Claim("t-1", "w1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Release("t-1", "w2"); !crewerrors.Is(err, crewerrors.ErrAlreadyClaimed) {
		t.Errorf("release by non-holder err = %v, want ErrAlreadyClaimed", err)
	}

	released, err := s.Release("t-1", "w1")
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	if released.Status != StatusPending || released.Claim != nil {
		t.Errorf("released = %+v", released)
	}
	if _, err := s.Release("t-1", "w1"); !crewerrors.Is(err, crewerrors.ErrInvalidTransition) {
		t.Errorf("double release err = %v, want ErrInvalidTransition", err)
	}

	task, err := s.Claim("t-1", "w2")
	if err != nil {
		t.Fatalf("Claim by w2 after release: %v", err)
	}
	if task.ClaimedBy() != "w2" || task.LastWorker != "w2" {
		t.Errorf("task = %+v", task)
	}
}

func TestLeaseExpiry(t *testing.T) {
	clock := newFakeClock()
	bus := event.NewBus(nil)
	var released []event.TaskReleasedEvent
	bus.Subscribe(event.TypeTaskReleased, func(e event.Event) {
		released = append(released, e.(event.TaskReleasedEvent))
	})
	s := newTestStore(t, t.TempDir(), WithClock(clock.Now), WithLease(time.Minute), WithBus(bus))
	mustCreate(t, s, "t-1")

	task, err := s.Claim("t-1", "w1")
	if err != nil {
		t.Fatal(err)
	}
	if task.Claim.LeaseExpiresAt == nil || !task.Claim.LeaseExpiresAt.Equal(clock.Now().Add(time.Minute)) {
		t.Fatalf("lease = %v", task.Claim.LeaseExpiresAt)
	}

	clock.Advance(30 * time.Second)
	if _, err := s.Claim("t-1", "w2"); !crewerrors.Is(err, crewerrors.ErrAlreadyClaimed) {
		t.Fatalf("claim before expiry err = %v", err)
	}

	clock.Advance(31 * time.Second)
	task, err = s.Claim("t-1", "w2")
	if err != nil {
		t.Fatalf("claim after expiry: %v", err)
	}
	if task.ClaimedBy() != "w2" {
		t.Errorf("claimant = %s", task.ClaimedBy())
	}
	if len(released) != 1 || released[0].Worker != "w1" || !released[0].Reclaimed {
		t.Errorf("released events = %+v", released)
	}
}

func TestClaimNext(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	if _, err := s.Create(Task{ID: "a", Priority: 2}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(Task{ID: "b", Priority: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(Task{ID: "c", DependsOn: []string{"b"}}); err != nil {
		t.Fatal(err)
	}

	next := func(worker string) string {
		t.Helper()
		task, err := s.ClaimNext(worker)
		if err != nil {
			t.Fatalf("ClaimNext: %v", err)
		}
		if task == nil {
			return ""
		}
		return task.ID
	}

	if got := next("w1"); got != "b" {
		t.Errorf("first = %q, want b", got)
	}
	if got := next("w2"); got != "a" {
		t.Errorf("second = %q, want a", got)
	}
	if got := next("w3"); got != "" {
		t.Errorf("third = %q, want nothing while c is blocked on b", got)
	}

	if _, err := s.Transition("b", StatusCompleted, TransitionOptions{Worker: "w1"}); err != nil {
		t.Fatal(err)
	}
	if got := next("w3"); got != "c" {
		t.Errorf("after b completes = %q, want c", got)
	}
}

func TestReleaseClaimsOf(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	for _, id := range []string{"a", "b", "c"} {
		mustCreate(t, s, id)
	}
	for _, c := range [][2]string{{"a", "dead"}, {"b", "alive"}, {"c", "dead"}} {
		if _, err := s.Claim(c[0], c[1]); err != nil {
			t.Fatal(err)
		}
	}

	released, err := s.ReleaseClaimsOf("dead")
	if err != nil {
		t.Fatalf("ReleaseClaimsOf: %v", err)
	}
	if len(released) != 2 || released[0] != "a" || released[1] != "c" {
		t.Errorf("released = %v, want [a c]", released)
	}

	b, _ := s.Read("b")
	if b.ClaimedBy() != "alive" {
		t.Errorf("live worker's claim was touched: %+v", b)
	}
	a, _ := s.Read("a")
	if a.Status != StatusPending {
		t.Errorf("a = %+v", a)
	}
}
