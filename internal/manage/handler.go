package manage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qorvexhq/qorvex/internal/agentclient"
	"github.com/qorvexhq/qorvex/internal/config"
	"github.com/qorvexhq/qorvex/internal/driver"
	"github.com/qorvexhq/qorvex/internal/executor"
	"github.com/qorvexhq/qorvex/internal/ipc"
	"github.com/qorvexhq/qorvex/internal/lifecycle"
	"github.com/qorvexhq/qorvex/internal/logger"
	"github.com/qorvexhq/qorvex/internal/session"
)

// Handler implements ipc.RequestHandler end to end: the core four
// (Execute/Subscribe/GetState/GetLog), resolved against whatever session is
// currently installed in Sessions, plus every management variant §4.7
// names. It owns the driver slot, the active lifecycle handle (if any), and
// the optional watcher goroutine.
type Handler struct {
	StateDir string
	Config   *config.Config

	Driver   *ipc.DriverSlot
	Sessions *SessionSlot

	Devices  DeviceProvider // optional
	Launcher AgentLauncher  // optional

	mu        sync.Mutex
	lifecycle *lifecycle.Handle
	client    *agentclient.Client

	watchMu     sync.Mutex
	watchCancel context.CancelFunc
}

// New constructs a Handler over an already-installed DriverSlot and
// SessionSlot. Devices/Launcher may be nil; the corresponding requests then
// report "not configured".
func New(stateDir string, cfg *config.Config, drv *ipc.DriverSlot, sessions *SessionSlot) *Handler {
	return &Handler{StateDir: stateDir, Config: cfg, Driver: drv, Sessions: sessions}
}

// Close tears down any running watcher, lifecycle handle, and agent client —
// the management-side counterpart to ipc.Server.OnShutdown.
func (h *Handler) Close() {
	h.stopWatcher()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.client != nil {
		h.client.Close()
		h.client = nil
	}
	if h.lifecycle != nil {
		_ = h.lifecycle.Close()
		h.lifecycle = nil
	}
}

func (h *Handler) executor() *executor.Executor {
	return executor.New(h.Driver, h.Sessions.Get())
}

// Handle dispatches every Request variant. It is responsible for writing
// every response itself, including streaming Subscribe responses.
func (h *Handler) Handle(ctx context.Context, c *ipc.Conn, req ipc.Request) {
	switch r := req.(type) {
	case ipc.Execute:
		result := h.executor().Execute(ctx, r.Action, r.Tag)
		_ = c.WriteResponse(ipc.ActionResult{
			Success:    result.Success,
			Message:    result.Message,
			Screenshot: result.Screenshot,
			Data:       result.Data,
		})

	case ipc.Subscribe:
		h.streamSubscription(ctx, c)

	case ipc.GetState:
		sess := h.Sessions.Get()
		_ = c.WriteResponse(ipc.State{SessionID: sess.ID, Screenshot: sess.LatestScreenshot()})

	case ipc.GetLog:
		_ = c.WriteResponse(ipc.Log{Entries: h.Sessions.Get().Entries()})

	case ipc.StartSession:
		h.handleStartSession(c, r)
	case ipc.EndSession:
		h.handleEndSession(c)

	case ipc.ListDevices:
		h.handleListDevices(ctx, c)
	case ipc.BootDevice:
		h.handleBootDevice(ctx, c, r)
	case ipc.UseDevice:
		// Bookkeeping only: which device subsequent StartAgent/Connect
		// calls target is the caller's responsibility to track client
		// side; the core has no per-session "active device" beyond what
		// Session.DeviceID already records.
		_ = c.WriteResponse(ipc.CommandResult{Success: true, Message: "ok"})

	case ipc.StartAgent:
		h.handleStartAgent(ctx, c, r)
	case ipc.StopAgent:
		h.handleStopAgent(c)

	case ipc.Connect:
		h.handleConnect(ctx, c, r)
	case ipc.SetTarget:
		h.handleSetTarget(ctx, c, r)

	case ipc.SetTimeout:
		h.handleSetTimeout(c, r)
	case ipc.GetTimeout:
		h.handleGetTimeout(c)

	case ipc.StartWatcher:
		h.handleStartWatcher(r)
		_ = c.WriteResponse(ipc.CommandResult{Success: true, Message: "ok"})
	case ipc.StopWatcher:
		h.stopWatcher()
		_ = c.WriteResponse(ipc.CommandResult{Success: true, Message: "ok"})

	case ipc.GetSessionInfo:
		h.handleGetSessionInfo(c)
	case ipc.GetCompletionData:
		h.handleGetCompletionData(ctx, c)

	default:
		_ = c.WriteResponse(ipc.ErrorResponse{Message: fmt.Sprintf("manage: unhandled request %T", req)})
	}
}

func (h *Handler) streamSubscription(ctx context.Context, c *ipc.Conn) {
	ch, cancel := h.Sessions.Get().Subscribe()
	defer cancel()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := c.WriteResponse(ipc.EventResponse{Event: encodeEvent(ev)}); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func encodeEvent(ev session.Event) map[string]any {
	switch e := ev.(type) {
	case session.ActionLogged:
		return map[string]any{"type": "action_logged", "entry": e.Entry}
	case session.ScreenshotUpdated:
		return map[string]any{"type": "screenshot_updated", "screenshot": e.Screenshot}
	case session.Started:
		return map[string]any{"type": "started", "session_id": e.SessionID}
	case session.Ended:
		return map[string]any{"type": "ended"}
	default:
		return map[string]any{"type": "unknown"}
	}
}

func (h *Handler) handleStartSession(c *ipc.Conn, r ipc.StartSession) {
	next, err := session.New(h.StateDir, r.SessionName, r.DeviceID)
	if err != nil {
		_ = c.WriteResponse(ipc.ErrorResponse{Message: fmt.Sprintf("manage: start_session: %v", err)})
		return
	}
	old := h.Sessions.Swap(next)
	if old != nil {
		_ = old.End()
	}
	_ = c.WriteResponse(ipc.CommandResult{Success: true, Message: "session started: " + next.ID})
}

func (h *Handler) handleEndSession(c *ipc.Conn) {
	if err := h.Sessions.Get().End(); err != nil {
		_ = c.WriteResponse(ipc.ErrorResponse{Message: fmt.Sprintf("manage: end_session: %v", err)})
		return
	}
	_ = c.WriteResponse(ipc.CommandResult{Success: true, Message: "ok"})
}

func (h *Handler) handleListDevices(ctx context.Context, c *ipc.Conn) {
	if h.Devices == nil {
		_ = c.WriteResponse(ipc.ErrorResponse{Message: "manage: list_devices: no device provider configured"})
		return
	}
	devices, err := h.Devices.ListDevices(ctx)
	if err != nil {
		_ = c.WriteResponse(ipc.ErrorResponse{Message: fmt.Sprintf("manage: list_devices: %v", err)})
		return
	}
	_ = c.WriteResponse(ipc.DeviceList{Devices: devices})
}

func (h *Handler) handleBootDevice(ctx context.Context, c *ipc.Conn, r ipc.BootDevice) {
	if h.Devices == nil {
		_ = c.WriteResponse(ipc.ErrorResponse{Message: "manage: boot_device: no device provider configured"})
		return
	}
	if err := h.Devices.BootDevice(ctx, r.DeviceID); err != nil {
		_ = c.WriteResponse(ipc.ErrorResponse{Message: fmt.Sprintf("manage: boot_device: %v", err)})
		return
	}
	_ = c.WriteResponse(ipc.CommandResult{Success: true, Message: "ok"})
}

// handleStartAgent builds (if needed), spawns, and ready-waits the agent
// via Launcher's lifecycle.Config, then installs a fresh AgentDriver into
// the shared DriverSlot. Any previously installed driver/lifecycle is torn
// down first.
func (h *Handler) handleStartAgent(ctx context.Context, c *ipc.Conn, r ipc.StartAgent) {
	if h.Launcher == nil {
		_ = c.WriteResponse(ipc.ErrorResponse{Message: "manage: start_agent: no agent launcher configured"})
		return
	}
	projectDir := h.Config.AgentSourceDir
	if r.ProjectDir != nil {
		projectDir = *r.ProjectDir
	}
	deviceID := ""
	if sess := h.Sessions.Get(); sess.DeviceID != nil {
		deviceID = *sess.DeviceID
	}

	h.teardownDriver()

	cfg := h.Launcher.Config(projectDir, deviceID)
	lc, err := lifecycle.New(cfg)
	if err != nil {
		_ = c.WriteResponse(ipc.ErrorResponse{Message: fmt.Sprintf("manage: start_agent: %v", err)})
		return
	}
	if err := lc.EnsureRunning(ctx, deviceID); err != nil {
		_ = lc.Close()
		_ = c.WriteResponse(ipc.ErrorResponse{Message: fmt.Sprintf("manage: start_agent: %v", err)})
		return
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	if cfg.Port == 0 {
		addr = fmt.Sprintf("127.0.0.1:%d", lifecycle.DefaultPort)
	}
	client := agentclient.New(agentclient.TCPDialer{Addr: addr})
	if err := client.Connect(ctx); err != nil {
		_ = lc.Close()
		_ = c.WriteResponse(ipc.ErrorResponse{Message: fmt.Sprintf("manage: start_agent: connect: %v", err)})
		return
	}

	h.installDriver(driver.New(client, lc, deviceID), lc, client)
	_ = c.WriteResponse(ipc.CommandResult{Success: true, Message: "agent started"})
}

func (h *Handler) handleStopAgent(c *ipc.Conn) {
	h.teardownDriver()
	_ = c.WriteResponse(ipc.CommandResult{Success: true, Message: "ok"})
}

// handleConnect attaches to an already-running agent (typically a physical
// device reached through an external tunnel) with no lifecycle handle, so
// the driver does no staged crash recovery and surfaces transport errors
// directly, matching driver.AgentDriver's documented "nil Lifecycle"
// behavior.
func (h *Handler) handleConnect(ctx context.Context, c *ipc.Conn, r ipc.Connect) {
	addr := fmt.Sprintf("%s:%d", r.Host, r.Port)
	client := agentclient.New(agentclient.TCPDialer{Addr: addr})
	if err := client.Connect(ctx); err != nil {
		_ = c.WriteResponse(ipc.ErrorResponse{Message: fmt.Sprintf("manage: connect: %v", err)})
		return
	}
	deviceID := ""
	if sess := h.Sessions.Get(); sess.DeviceID != nil {
		deviceID = *sess.DeviceID
	}
	h.installDriver(driver.New(client, nil, deviceID), nil, client)
	_ = c.WriteResponse(ipc.CommandResult{Success: true, Message: "connected"})
}

func (h *Handler) handleSetTarget(ctx context.Context, c *ipc.Conn, r ipc.SetTarget) {
	if err := driver.SetTarget(ctx, h.Driver, r.BundleID); err != nil {
		_ = c.WriteResponse(ipc.ErrorResponse{Message: fmt.Sprintf("manage: set_target: %v", err)})
		return
	}
	_ = c.WriteResponse(ipc.CommandResult{Success: true, Message: "ok"})
}

func (h *Handler) handleSetTimeout(c *ipc.Conn, r ipc.SetTimeout) {
	h.mu.Lock()
	client := h.client
	h.mu.Unlock()
	if client == nil {
		_ = c.WriteResponse(ipc.ErrorResponse{Message: "manage: set_timeout: no agent connected"})
		return
	}
	client.SetDefaultDeadline(time.Duration(r.Ms) * time.Millisecond)
	_ = c.WriteResponse(ipc.CommandResult{Success: true, Message: "ok"})
}

func (h *Handler) handleGetTimeout(c *ipc.Conn) {
	h.mu.Lock()
	client := h.client
	h.mu.Unlock()
	if client == nil {
		_ = c.WriteResponse(ipc.ErrorResponse{Message: "manage: get_timeout: no agent connected"})
		return
	}
	_ = c.WriteResponse(ipc.TimeoutValue{Ms: uint64(client.DefaultDeadline() / time.Millisecond)})
}

func (h *Handler) handleGetSessionInfo(c *ipc.Conn) {
	sess := h.Sessions.Get()
	info := ipc.SessionInfo{
		SessionName: sess.Name,
		Active:      sess.State() == session.StateStarted,
		DeviceID:    sess.DeviceID,
		ActionCount: sess.ActionCount(),
	}
	if d := h.Driver.Get(); d != nil {
		rc := d.RecoveryCount()
		info.RecoveryCount = &rc
	}
	_ = c.WriteResponse(info)
}

func (h *Handler) handleGetCompletionData(ctx context.Context, c *ipc.Conn) {
	var elements []string
	if d := h.Driver.Get(); d != nil {
		if els, err := d.ListElements(ctx); err == nil {
			for _, e := range els {
				if e.Identifier != nil {
					elements = append(elements, *e.Identifier)
				} else if e.Label != nil {
					elements = append(elements, *e.Label)
				}
			}
		}
	}
	var devices []string
	if h.Devices != nil {
		if ds, err := h.Devices.ListDevices(ctx); err == nil {
			devices = ds
		}
	}
	_ = c.WriteResponse(ipc.CompletionData{Elements: elements, Devices: devices})
}

func (h *Handler) installDriver(d driver.Driver, lc *lifecycle.Handle, client *agentclient.Client) {
	h.teardownDriver()
	h.mu.Lock()
	h.lifecycle = lc
	h.client = client
	h.mu.Unlock()
	h.Driver.Set(d)
}

func (h *Handler) teardownDriver() {
	h.Driver.Set(nil)
	h.mu.Lock()
	lc, client := h.lifecycle, h.client
	h.lifecycle, h.client = nil, nil
	h.mu.Unlock()

	if client != nil {
		client.Close()
	}
	if lc != nil {
		if err := lc.Close(); err != nil {
			logger.Warn("manage: lifecycle close", "err", err)
		}
	}
}
