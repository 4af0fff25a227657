package lifecycle

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/qorvexhq/qorvex/internal/agentclient"
	"github.com/qorvexhq/qorvex/internal/logger"
)

// Build runs the configured build collaborator attached to a pty, so its
// incrementally-written output streams to out line by line rather than
// buffering until the process exits. Returns ErrLifecycle on failure.
func (h *Handle) Build(ctx context.Context, out io.Writer) error {
	if h.cfg.BuildCommand == nil {
		return fmt.Errorf("%w: build: no build command configured", ErrLifecycle)
	}
	cmd := h.cfg.BuildCommand(ctx, h.cfg.ProjectDir)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: 200, Rows: 50})
	if err != nil {
		return fmt.Errorf("%w: build: start: %v", ErrLifecycle, err)
	}
	defer ptmx.Close()

	scanner := bufio.NewScanner(ptmx)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fmt.Fprintln(out, scanner.Text())
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%w: build: %v", ErrLifecycle, err)
	}
	logger.Info("lifecycle: build complete", "artifact", h.cfg.ArtifactPath)
	h.setBuilt(true)
	return nil
}

// Spawn launches the pre-built bundle bound to deviceID and tracks the
// child process so Terminate can kill it.
func (h *Handle) Spawn(ctx context.Context, deviceID string) error {
	if h.cfg.SpawnCommand == nil {
		return fmt.Errorf("%w: spawn: no spawn command configured", ErrLifecycle)
	}
	cmd := h.cfg.SpawnCommand(ctx, h.cfg.ArtifactPath, deviceID)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: spawn: %v", ErrLifecycle, err)
	}

	h.procMu.Lock()
	h.cmd = cmd
	h.procMu.Unlock()

	go func() {
		_ = cmd.Wait()
	}()

	logger.Info("lifecycle: spawned agent", "device_id", deviceID, "pid", cmd.Process.Pid)
	return nil
}

// Terminate kills the tracked child's whole process group. If no child
// handle is held (e.g. after a daemon restart), it falls back to the
// platform-specific terminate-by-bundle-id collaborator.
func (h *Handle) Terminate() error {
	h.procMu.Lock()
	cmd := h.cmd
	h.cmd = nil
	h.procMu.Unlock()

	if cmd == nil || cmd.Process == nil {
		if h.cfg.TerminateByBundleID != nil && h.cfg.BundleID != "" {
			return h.cfg.TerminateByBundleID(h.cfg.BundleID)
		}
		return nil
	}

	pid := cmd.Process.Pid
	if err := unix.Kill(-pid, syscall.SIGTERM); err != nil {
		// Fall back to killing just the direct child if the process
		// group is already gone.
		_ = cmd.Process.Kill()
	}
	logger.Info("lifecycle: terminated agent", "pid", pid)
	return nil
}

// ReadyWait polls every 500ms, dialing a TCP connection and sending a
// heartbeat, until the agent answers or startup_timeout elapses.
func (h *Handle) ReadyWait(ctx context.Context) error {
	deadline := time.Now().Add(h.cfg.startupTimeout())
	addr := fmt.Sprintf("127.0.0.1:%d", h.cfg.port())

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		client := agentclient.New(agentclient.TCPDialer{Addr: addr})
		// Bound the whole probe (dial + heartbeat), not just the dial, so a
		// half-started agent that accepts but never answers cannot stall
		// the 500ms poll cadence.
		client.SetDefaultDeadline(400 * time.Millisecond)
		probeCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
		err := client.Connect(probeCtx)
		cancel()
		if err == nil {
			client.Close()
			return nil
		}
		client.Close()

		if time.Now().After(deadline) {
			return fmt.Errorf("%w: ready-wait: timed out after %s", ErrLifecycle, h.cfg.startupTimeout())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
