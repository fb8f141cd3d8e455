package statefs

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
)

// Default lock timings.
const (
	DefaultLockTimeout    = 5 * time.Second
	DefaultLockStaleAfter = 30 * time.Second
	DefaultRetryInterval  = 25 * time.Millisecond
)

// LockOptions bounds how long WithLock waits and when an existing lock is
// considered abandoned.
type LockOptions struct {
	// Timeout is the maximum time to wait for the lock.
	Timeout time.Duration
	// StaleAfter is the age past which a held lock may be reclaimed.
	StaleAfter time.Duration
	// RetryInterval is the base delay between acquisition attempts.
	RetryInterval time.Duration
	// Clock supplies the time used for lock ages. Defaults to time.Now.
	Clock func() time.Time
}

// DefaultLockOptions returns the default lock timings.
func DefaultLockOptions() LockOptions {
	return LockOptions{
		Timeout:       DefaultLockTimeout,
		StaleAfter:    DefaultLockStaleAfter,
		RetryInterval: DefaultRetryInterval,
	}
}

func (o LockOptions) withDefaults() LockOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultLockTimeout
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = DefaultLockStaleAfter
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// lockOwner is the content of a lock file.
type lockOwner struct {
	Token      string    `json:"token"`
	PID        int       `json:"pid"`
	Host       string    `json:"host"`
	AcquiredAt time.Time `json:"acquired_at"`
}

func (o lockOwner) String() string {
	return fmt.Sprintf("pid=%d host=%s since=%s", o.PID, o.Host, o.AcquiredAt.Format(time.RFC3339))
}

var hostname = func() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}()

// WithLock runs fn while holding the exclusive lock at lockPath.
//
// The lock is released on every exit path, including a panic in fn. If the
// lock cannot be acquired within opts.Timeout the call fails with
// ErrLockTimeout and fn is not run. If another process reclaimed the lock
// as stale while fn was running, the result is ErrLockStale (joined with
// any error fn returned), since the critical section was not exclusive.
//
// Reclaiming a stale lock renames it aside before checking whose it was.
// When a reclaimer moves a lock that was re-acquired an instant earlier,
// the path is briefly empty and a third process can create it. The holder
// confirms it still owns the lock before fn runs and re-acquires if not,
// but a move landing after that check still lets two critical sections
// overlap; the loser then sees ErrLockStale on release.
func WithLock(lockPath string, opts LockOptions, fn func() error) (err error) {
	opts = opts.withDefaults()

	token := uuid.NewString()
	if err := acquire(lockPath, opts, token); err != nil {
		return err
	}
	for !owns(lockPath, token) {
		if err := acquire(lockPath, opts, token); err != nil {
			return err
		}
	}
	defer func() {
		if relErr := release(lockPath, token); relErr != nil {
			err = crewerrors.Join(err, relErr)
		}
	}()

	return fn()
}

// acquire creates the lock file under token. A lock already carrying token
// is ours, restored by a reclaimer that moved it aside.
func acquire(lockPath string, opts LockOptions, token string) error {
	if err := os.MkdirAll(filepath.Dir(lockPath), dirPerm); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	owner := lockOwner{
		Token: token,
		PID:   os.Getpid(),
		Host:  hostname,
	}
	deadline := time.Now().Add(opts.Timeout)
	var lastHolder string

	for {
		owner.AcquiredAt = opts.Clock()
		ok, err := tryCreate(lockPath, owner)
		if err != nil {
			return crewerrors.NewLockError("create lock file", err).WithLockPath(lockPath)
		}
		if ok {
			return nil
		}

		holder, age, readErr := inspect(lockPath, opts.Clock())
		switch {
		case os.IsNotExist(readErr):
			continue // released between our create and read
		case readErr == nil && holder.Token == token:
			return nil
		case readErr == nil:
			lastHolder = holder.String()
			if age > opts.StaleAfter || !holderAlive(holder) {
				reclaim(lockPath, holder.Token)
				continue
			}
		default:
			// Unreadable lock content: a holder crashed mid-create. Treat it
			// as stale once it is older than StaleAfter.
			if age > opts.StaleAfter {
				reclaim(lockPath, "")
				continue
			}
		}

		if !time.Now().Before(deadline) {
			return crewerrors.NewLockError(
				fmt.Sprintf("not acquired within %s", opts.Timeout), crewerrors.ErrLockTimeout,
			).WithLockPath(lockPath).WithHolder(lastHolder)
		}
		time.Sleep(jitter(opts.RetryInterval))
	}
}

// tryCreate creates the lock file exclusively. It returns false without
// error when the lock is already held.
func tryCreate(lockPath string, owner lockOwner) (bool, error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, filePerm)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	data, _ := json.Marshal(owner)
	_, werr := f.Write(data)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(lockPath)
		return false, crewerrors.Join(werr, cerr)
	}
	return true, nil
}

// inspect reads the current holder. age falls back to the file mtime when
// the content cannot be parsed.
func inspect(lockPath string, now time.Time) (lockOwner, time.Duration, error) {
	var owner lockOwner
	info, err := os.Stat(lockPath)
	if err != nil {
		return owner, 0, err
	}
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return owner, now.Sub(info.ModTime()), err
	}
	if err := json.Unmarshal(data, &owner); err != nil || owner.Token == "" {
		return owner, now.Sub(info.ModTime()), fmt.Errorf("unreadable lock file: %w", crewerrors.ErrMalformedState)
	}
	return owner, now.Sub(owner.AcquiredAt), nil
}

// holderAlive probes the holder process when it lives on this host.
// Holders on other hosts are assumed alive until their lock ages out.
func holderAlive(owner lockOwner) bool {
	if owner.Host != hostname || owner.PID <= 0 {
		return true
	}
	if owner.PID == os.Getpid() {
		return true
	}
	err := unix.Kill(owner.PID, 0)
	return err == nil || err == unix.EPERM
}

// reclaim moves a stale lock out of the way. The rename is atomic, so only
// one reclaimer wins; if the file it moved turns out to be a fresh lock
// (someone reclaimed and re-acquired between our inspect and rename), it is
// linked back into place when possible.
func reclaim(lockPath, staleToken string) {
	graveyard := fmt.Sprintf("%s.stale-%s", lockPath, uuid.NewString())
	if err := os.Rename(lockPath, graveyard); err != nil {
		return
	}
	defer func() { _ = os.Remove(graveyard) }()

	if staleToken == "" {
		return
	}
	data, err := os.ReadFile(graveyard)
	if err != nil {
		return
	}
	var moved lockOwner
	if json.Unmarshal(data, &moved) == nil && moved.Token != staleToken {
		_ = os.Link(graveyard, lockPath)
	}
}

// owns reports whether the lock file at lockPath carries token.
func owns(lockPath, token string) bool {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return false
	}
	var owner lockOwner
	return json.Unmarshal(data, &owner) == nil && owner.Token == token
}

// release removes the lock file if we still own it.
func release(lockPath, token string) error {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return crewerrors.NewLockError("release", crewerrors.ErrLockStale).WithLockPath(lockPath)
		}
		return crewerrors.NewLockError("release", err).WithLockPath(lockPath)
	}
	var owner lockOwner
	if err := json.Unmarshal(data, &owner); err != nil || owner.Token != token {
		return crewerrors.NewLockError("release", crewerrors.ErrLockStale).
			WithLockPath(lockPath).WithHolder(owner.String())
	}
	if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
		return crewerrors.NewLockError("release", err).WithLockPath(lockPath)
	}
	return nil
}

// jitter spreads retries so contending processes do not wake in lockstep.
func jitter(d time.Duration) time.Duration {
	return d/2 + time.Duration(rand.Int64N(int64(d)))
}
