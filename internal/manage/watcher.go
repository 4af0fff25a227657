package manage

import (
	"context"
	"time"

	"github.com/qorvexhq/qorvex/internal/ipc"
	"github.com/qorvexhq/qorvex/internal/types"
)

const defaultWatchInterval = time.Second

// handleStartWatcher starts a background loop issuing GetScreenInfo through
// the executor every interval (default 1s), tagged "watch" so the resulting
// ActionLogged events are distinguishable from client-initiated Execute
// calls. Calling it again replaces any already-running watcher.
func (h *Handler) handleStartWatcher(r ipc.StartWatcher) {
	interval := defaultWatchInterval
	if r.IntervalMs != nil {
		interval = time.Duration(*r.IntervalMs) * time.Millisecond
	}

	h.stopWatcher()

	ctx, cancel := context.WithCancel(context.Background())
	h.watchMu.Lock()
	h.watchCancel = cancel
	h.watchMu.Unlock()

	go h.watchLoop(ctx, interval)
}

func (h *Handler) watchLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tag := "watch"
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.executor().Execute(ctx, types.GetScreenInfo{}, &tag)
		}
	}
}

func (h *Handler) stopWatcher() {
	h.watchMu.Lock()
	cancel := h.watchCancel
	h.watchCancel = nil
	h.watchMu.Unlock()
	if cancel != nil {
		cancel()
	}
}
