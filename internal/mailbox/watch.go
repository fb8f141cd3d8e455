package mailbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	crewerrors "github.com/Iron-Ham/crew/internal/errors"
)

// maxWatchErrors is the number of consecutive read failures after which
// Watch logs at error level instead of debug.
const maxWatchErrors = 5

// Watch calls handler, in arrival order, for each undelivered message in
// worker's inbox, including ones present when Watch starts. Each message is
// handed over at most once per Watch call; marking it delivered is the
// handler's decision. Watch blocks until ctx is cancelled and then returns
// nil.
func (m *Mailbox) Watch(ctx context.Context, worker string, handler func(Message)) error {
	if handler == nil {
		return fmt.Errorf("%w: nil handler", crewerrors.ErrInvalidInput)
	}
	if _, err := m.read(worker); err != nil {
		return err
	}

	logger := m.logger.WithWorker(worker)
	dir := filepath.Dir(m.layout.InboxPath(m.team, worker))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create worker directory: %w", err)
	}

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("fsnotify unavailable, polling only", "error", err.Error())
	} else {
		defer func() { _ = watcher.Close() }()
		if err := watcher.Add(dir); err != nil {
			logger.Warn("cannot watch worker directory, polling only", "error", err.Error())
		} else {
			events, errs = watcher.Events, watcher.Errors
		}
	}

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	seen := make(map[string]bool)
	failures := 0
	check := func() {
		msgs, err := m.List(worker, ListOptions{Undelivered: true})
		if err != nil {
			failures++
			if failures >= maxWatchErrors {
				logger.Error("inbox read failing", "error", err.Error(), "consecutive", failures)
				failures = 0
			} else {
				logger.Debug("inbox read failed", "error", err.Error())
			}
			return
		}
		failures = 0
		for _, msg := range msgs {
			if seen[msg.ID] {
				continue
			}
			seen[msg.ID] = true
			handler(msg)
		}
	}

	inboxName := filepath.Base(m.layout.InboxPath(m.team, worker))
	check()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Base(ev.Name) == inboxName && ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				check()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Debug("fsnotify error", "error", err.Error())
		case <-ticker.C:
			check()
		}
	}
}
