package registry

import (
	"context"
	"time"

	"github.com/Iron-Ham/crew/internal/logging"
)

// DefaultHeartbeatInterval is used when a Heartbeater has no interval.
const DefaultHeartbeatInterval = 5 * time.Second

// Heartbeater beats on behalf of one worker process until its context is
// cancelled.
type Heartbeater struct {
	reg      *Registry
	worker   string
	interval time.Duration
	logger   *logging.Logger
	onBeat   func(Heartbeat)
}

// NewHeartbeater returns a Heartbeater for worker. onBeat, if non-nil, is
// called after every successful beat.
func NewHeartbeater(reg *Registry, worker string, interval time.Duration, onBeat func(Heartbeat)) *Heartbeater {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &Heartbeater{
		reg:      reg,
		worker:   worker,
		interval: interval,
		logger:   reg.logger.WithWorker(worker),
		onBeat:   onBeat,
	}
}

// Run beats immediately and then once per interval. Failed beats are
// logged and retried on the next tick. Run returns nil when ctx is
// cancelled.
func (h *Heartbeater) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		h.beat()
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (h *Heartbeater) beat() {
	hb, err := h.reg.Heartbeat(h.worker)
	if err != nil {
		h.logger.Warn("heartbeat failed", "error", err.Error())
		return
	}
	if h.onBeat != nil {
		h.onBeat(hb)
	}
}
