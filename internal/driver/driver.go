// Package driver implements the abstract automation interface over the
// agent client, attaching an optional lifecycle handle for staged crash
// recovery (reconnect, then respawn).
package driver

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/qorvexhq/qorvex/internal/agentclient"
	"github.com/qorvexhq/qorvex/internal/lifecycle"
	"github.com/qorvexhq/qorvex/internal/types"
	"github.com/qorvexhq/qorvex/internal/wire"
)

// ErrNotSupported is returned by optional operations (app switching) when
// the concrete driver does not implement the corresponding capability —
// the abstract contract's "default" behavior for backends that lack it.
var ErrNotSupported = errors.New("driver: not supported by this backend")

// Driver is the public automation contract. AgentDriver is the only
// implementation that talks to an agent (ipc.DriverSlot delegates to an
// installed one); the interface also lets the executor and tests be driven
// by a fake.
type Driver interface {
	Connect(ctx context.Context) error
	IsConnected() bool

	TapLocation(ctx context.Context, x, y int) error
	TapElement(ctx context.Context, sel types.Selector, timeoutMs *uint64) error
	Swipe(ctx context.Context, startX, startY, endX, endY int, duration *float64) error
	LongPress(ctx context.Context, x, y int, duration float64) error

	TypeText(ctx context.Context, text string) error

	DumpTree(ctx context.Context) (*types.Element, error)
	GetElementValue(ctx context.Context, sel types.Selector, timeoutMs *uint64) (*string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	ListElements(ctx context.Context) ([]*types.Element, error)
	FindElement(ctx context.Context, sel types.Selector) (*types.Element, error)

	RecoveryCount() int64
}

// AppSwitcher is an optional capability: a backend that can switch the
// foreground app by bundle id. Query it with SetTarget.
type AppSwitcher interface {
	SetTarget(ctx context.Context, bundleID string) error
}

// SetTarget invokes d's AppSwitcher capability if present, otherwise
// returns ErrNotSupported — the abstract driver's documented default for
// app switching.
func SetTarget(ctx context.Context, d Driver, bundleID string) error {
	if as, ok := d.(AppSwitcher); ok {
		return as.SetTarget(ctx, bundleID)
	}
	return ErrNotSupported
}

// AgentDriver is the real implementation, talking the binary wire protocol
// to a single agent over agentclient.Client. When Lifecycle is set it
// drives staged crash recovery; physical devices (no lifecycle) surface
// transport errors directly.
type AgentDriver struct {
	Client    *agentclient.Client
	Lifecycle *lifecycle.Handle // nil for physical devices
	DeviceID  string

	recoveryCount atomic.Int64
}

// New constructs an AgentDriver. lc may be nil (physical device, no
// staged recovery).
func New(client *agentclient.Client, lc *lifecycle.Handle, deviceID string) *AgentDriver {
	return &AgentDriver{Client: client, Lifecycle: lc, DeviceID: deviceID}
}

func (d *AgentDriver) Connect(ctx context.Context) error {
	// The initial connect is explicitly excluded from recovery handling.
	return d.Client.Connect(ctx)
}

func (d *AgentDriver) IsConnected() bool {
	return d.Client.IsConnected()
}

// RecoveryCount returns the monotonically non-decreasing count of
// successful recoveries (reconnect or respawn).
func (d *AgentDriver) RecoveryCount() int64 {
	return d.recoveryCount.Load()
}

// forwardingDeadline is the host-side read deadline used when a caller
// supplies a retry budget to the agent: timeout_ms + 5s, so the connection
// is not dropped while the agent is legitimately still retrying.
func forwardingDeadline(timeoutMs uint64) time.Duration {
	return time.Duration(timeoutMs)*time.Millisecond + 5*time.Second
}

// send issues req under the client's configurable default read deadline.
func (d *AgentDriver) send(ctx context.Context, req wire.Request) (wire.Response, error) {
	return d.withRecovery(ctx, func() (wire.Response, error) {
		return d.Client.Send(req)
	})
}

// sendWithDeadline issues req with an explicit read deadline, for tree
// dumps and agent-forwarded retry budgets.
func (d *AgentDriver) sendWithDeadline(ctx context.Context, req wire.Request, deadline time.Duration) (wire.Response, error) {
	return d.withRecovery(ctx, func() (wire.Response, error) {
		return d.Client.SendWithReadTimeout(req, deadline)
	})
}
