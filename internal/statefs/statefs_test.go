package statefs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func (s *sample) Validate() error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func TestWriteAtomic_CreatesParentsAndReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "doc.json")

	if err := WriteAtomic(path, []byte("one")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteAtomic(path, []byte("two")); err != nil {
		t.Fatalf("second write: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "two" {
		t.Errorf("content = %q, want %q", got, "two")
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only the target file, found %d entries", len(entries))
	}
}

// A writer that dies after creating its temp file but before the rename
// must leave the previous content intact and invisible garbage behind.
func TestWriteAtomic_CrashBeforeRenameKeepsOldContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	if err := WriteJSON(path, sample{Name: "old", Count: 1}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Simulate the crash: a half-written temp sibling left on disk.
	partial := filepath.Join(dir, tmpPrefix+"doc.json.tmp-crashed")
	if err := os.WriteFile(partial, []byte(`{"name":"ne`), 0o644); err != nil {
		t.Fatalf("write partial: %v", err)
	}

	var got sample
	if err := ReadJSON(path, "sample", &got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got.Name != "old" {
		t.Errorf("Name = %q, want old", got.Name)
	}

	names, err := ListJSON(dir)
	if err != nil {
		t.Fatalf("ListJSON: %v", err)
	}
	if len(names) != 1 || names[0] != "doc" {
		t.Errorf("ListJSON = %v, want [doc]", names)
	}
}

// Readers racing a stream of writers only ever see complete documents.
func TestWriteAtomic_ConcurrentReadersNeverSeePartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	big := func(i int) []byte {
		payload := strings.Repeat(fmt.Sprintf("%d", i%10), 64*1024)
		data, _ := json.Marshal(map[string]string{"payload": payload})
		return data
	}
	if err := WriteAtomic(path, big(0)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var stop atomic.Bool
	var wg sync.WaitGroup
	wg.Go(func() {
		for i := 1; i < 50; i++ {
			if err := WriteAtomic(path, big(i)); err != nil {
				t.Errorf("write %d: %v", i, err)
				return
			}
		}
		stop.Store(true)
	})

	for !stop.Load() {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !json.Valid(data) {
			t.Fatalf("observed partial document of %d bytes", len(data))
		}
	}
	wg.Wait()
}

func TestReadJSON_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing is not found", func(t *testing.T) {
		var s sample
		err := ReadJSON(filepath.Join(dir, "missing.json"), "sample", &s)
		if !crewerrors.IsNotFound(err) {
			t.Errorf("err = %v, want not found", err)
		}
	})

	cases := []struct{ name, content string }{
		{"garbage", `{not json`},
		{"unknown field", `{"name":"x","count":1,"extra":true}`},
		{"trailing data", `{"name":"x","count":1} {}`},
		{"fails validate", `{"name":"","count":1}`},
		{"wrong type", `{"name":"x","count":"one"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tc.name, " ", "_")+".json")
			if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
				t.Fatal(err)
			}
			var s sample
			err := ReadJSON(path, "sample", &s)
			if !crewerrors.Is(err, crewerrors.ErrMalformedState) {
				t.Errorf("err = %v, want malformed state", err)
			}
			var stateErr *crewerrors.StateError
			if !crewerrors.As(err, &stateErr) || stateErr.Path != path {
				t.Errorf("expected StateError with path %s, got %v", path, err)
			}
		})
	}
}

func TestListDirsSkipsHidden(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []string{"b", "a", ".locks"} {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	got, err := ListDirs(dir)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(got, ",") != "a,b" {
		t.Errorf("ListDirs = %v", got)
	}
	missing, err := ListDirs(filepath.Join(dir, "nope"))
	if err != nil || missing != nil {
		t.Errorf("missing dir: %v, %v", missing, err)
	}
}

func TestWithLock_MutualExclusion(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), ".locks", "counter.lock")
	counterPath := filepath.Join(filepath.Dir(lockPath), "..", "counter")
	if err := WriteAtomic(counterPath, []byte("0")); err != nil {
		t.Fatal(err)
	}

	opts := LockOptions{Timeout: 10 * time.Second, RetryInterval: time.Millisecond}
	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 10 {
				err := WithLock(lockPath, opts, func() error {
					data, err := os.ReadFile(counterPath)
					if err != nil {
						return err
					}
					var n int
					_, _ = fmt.Sscanf(string(data), "%d", &n)
					return WriteAtomic(counterPath, []byte(fmt.Sprintf("%d", n+1)))
				})
				if err != nil {
					t.Errorf("WithLock: %v", err)
				}
			}
		})
	}
	wg.Wait()

	data, _ := os.ReadFile(counterPath)
	if string(data) != "80" {
		t.Errorf("counter = %s, want 80", data)
	}
	if Exists(lockPath) {
		t.Error("lock file should be removed after release")
	}
}

func TestWithLock_ReleasesOnErrorAndPanic(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "x.lock")
	sentinel := errors.New("boom")

	err := WithLock(lockPath, LockOptions{}, func() error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel", err)
	}
	if Exists(lockPath) {
		t.Fatal("lock should be released after error")
	}

	func() {
		defer func() { _ = recover() }()
		_ = WithLock(lockPath, LockOptions{}, func() error { panic("kaboom") })
	}()
	if Exists(lockPath) {
		t.Fatal("lock should be released after panic")
	}
}

func TestWithLock_Timeout(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "x.lock")
	held := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_ = WithLock(lockPath, LockOptions{}, func() error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held
	defer close(done)

	ran := false
	err := WithLock(lockPath, LockOptions{Timeout: 50 * time.Millisecond, RetryInterval: 5 * time.Millisecond}, func() error {
		ran = true
		return nil
	})
	if !errors.Is(err, crewerrors.ErrLockTimeout) {
		t.Fatalf("err = %v, want lock timeout", err)
	}
	if ran {
		t.Error("fn must not run when the lock is not acquired")
	}
	if !crewerrors.IsRetryable(err) {
		t.Error("lock timeout should be retryable")
	}
}

func TestWithLock_ReclaimsStaleLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "x.lock")
	abandoned := lockOwner{Token: "dead", PID: os.Getpid(), Host: hostname, AcquiredAt: time.Now().Add(-time.Hour)}
	data, _ := json.Marshal(abandoned)
	if err := os.WriteFile(lockPath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	ran := false
	err := WithLock(lockPath, LockOptions{Timeout: time.Second, StaleAfter: time.Minute}, func() error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}
	if !ran {
		t.Error("fn should run after reclaiming a stale lock")
	}
}

func TestWithLock_ReclaimsUnreadableOldLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "x.lock")
	if err := os.WriteFile(lockPath, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(lockPath, old, old); err != nil {
		t.Fatal(err)
	}

	err := WithLock(lockPath, LockOptions{Timeout: time.Second, StaleAfter: time.Minute}, func() error { return nil })
	if err != nil {
		t.Fatalf("WithLock: %v", err)
	}
}

func TestWithLock_ReportsStaleWhenStolen(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "x.lock")

	err := WithLock(lockPath, LockOptions{}, func() error {
		// Another process decided we were stale and took over.
		thief := lockOwner{Token: "thief", PID: os.Getpid(), Host: hostname, AcquiredAt: time.Now()}
		data, _ := json.Marshal(thief)
		return os.WriteFile(lockPath, data, 0o644)
	})
	if !errors.Is(err, crewerrors.ErrLockStale) {
		t.Fatalf("err = %v, want lock stale", err)
	}
	data, _ := os.ReadFile(lockPath)
	if !bytes.Contains(data, []byte("thief")) {
		t.Error("release must not remove a lock it no longer owns")
	}
}

func TestAcquire_RecognizesRestoredLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "x.lock")
	// A reclaimer moved our fresh lock aside and linked it back.
	ours := lockOwner{Token: "ours", PID: os.Getpid(), Host: hostname, AcquiredAt: time.Now()}
	data, _ := json.Marshal(ours)
	if err := os.WriteFile(lockPath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := acquire(lockPath, LockOptions{Timeout: time.Second}.withDefaults(), "ours"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("acquire should not wait on a lock carrying its own token")
	}
	if !owns(lockPath, "ours") {
		t.Error("lock should still carry our token")
	}
}

func TestOwns(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "x.lock")
	if owns(lockPath, "a") {
		t.Error("a missing lock is owned by nobody")
	}
	data, _ := json.Marshal(lockOwner{Token: "b"})
	if err := os.WriteFile(lockPath, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if owns(lockPath, "a") {
		t.Error("lock carries another token")
	}
	if !owns(lockPath, "b") {
		t.Error("lock carries token b")
	}
}

func TestLayoutPaths(t *testing.T) {
	l := NewLayout("/state")
	tests := [][2]string{
		{l.ConfigPath("alpha"), "/state/team/alpha/config.json"},
		{l.PhasePath("alpha"), "/state/team/alpha/phase.json"},
		{l.TaskPath("alpha", "t-1"), "/state/team/alpha/tasks/t-1.json"},
		{l.HeartbeatPath("alpha", "w1"), "/state/team/alpha/workers/w1/heartbeat.json"},
		{l.InboxPath("alpha", "w1"), "/state/team/alpha/workers/w1/inbox.json"},
		{l.ShutdownAckPath("alpha", "w1"), "/state/team/alpha/workers/w1/shutdown-ack.json"},
		{l.DispatchPath("alpha", "r1"), "/state/team/alpha/dispatch/r1.json"},
		{l.ShutdownPath("alpha"), "/state/team/alpha/shutdown.json"},
		{l.LockPath("alpha", "task", "t-1"), "/state/team/alpha/.locks/task-t-1.lock"},
		{l.LockPath("alpha"), "/state/team/alpha/.locks/team.lock"},
	}
	for _, tt := range tests {
		if tt[0] != tt[1] {
			t.Errorf("path = %s, want %s", tt[0], tt[1])
		}
	}
}

func TestValidateName(t *testing.T) {
	for _, ok := range []string{"alpha", "worker-1", "t_2.retry", "A9"} {
		if err := ValidateName("x", ok); err != nil {
			t.Errorf("ValidateName(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"", ".", "..", "a/b", "-lead", ".hidden", "a b"} {
		if err := ValidateName("x", bad); err == nil {
			t.Errorf("ValidateName(%q) should fail", bad)
		}
	}
}
