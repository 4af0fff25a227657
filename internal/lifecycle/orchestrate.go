package lifecycle

import (
	"bytes"
	"context"
	"fmt"

	"github.com/qorvexhq/qorvex/internal/logger"
)

// EnsureRunning builds (if no artifact is present), spawns, and ready-waits
// the agent, retrying the spawn+wait loop up to max_retries + 1 times.
func (h *Handle) EnsureRunning(ctx context.Context, deviceID string) error {
	if !h.ArtifactBuilt() {
		var buildLog bytes.Buffer
		if err := h.Build(ctx, &buildLog); err != nil {
			logger.Error("lifecycle: build failed", "err", err, "output", buildLog.String())
			return err
		}
	}

	attempts := h.cfg.maxRetries() + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := h.Spawn(ctx, deviceID); err != nil {
			lastErr = err
			logger.Warn("lifecycle: spawn attempt failed", "attempt", i+1, "err", err)
			continue
		}
		if err := h.ReadyWait(ctx); err != nil {
			lastErr = err
			logger.Warn("lifecycle: ready-wait attempt failed", "attempt", i+1, "err", err)
			_ = h.Terminate()
			continue
		}
		return nil
	}
	return fmt.Errorf("ensure_running: exhausted %d attempts: %w", attempts, lastErr)
}

// EnsureReady tries ready-wait immediately; if the agent already answers,
// it returns without spawning anything. Otherwise it delegates to
// EnsureRunning.
func (h *Handle) EnsureReady(ctx context.Context, deviceID string) error {
	if err := h.ReadyWait(ctx); err == nil {
		return nil
	}
	return h.EnsureRunning(ctx, deviceID)
}
