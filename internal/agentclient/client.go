package agentclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/qorvexhq/qorvex/internal/wire"
)

// DefaultReadDeadline is the read deadline used by Send for ordinary
// commands.
const DefaultReadDeadline = 30 * time.Second

// TreeReadDeadline is the read deadline used for dump_tree, whose replies
// can be large.
const TreeReadDeadline = 120 * time.Second

// Client holds a single TCP stream to the agent and enforces one-in-flight
// request discipline: Send takes a lock for the duration of the full
// round trip, so at most one request is ever outstanding on the
// connection. Any read deadline expiry or I/O error during a round trip
// drops the stream immediately — a half-consumed response would
// desynchronize every subsequent command, since response framing is purely
// positional.
type Client struct {
	dialer Dialer

	mu   sync.Mutex
	conn net.Conn

	deadlineMu      sync.RWMutex
	defaultDeadline time.Duration
}

// New returns a Client that will dial through d when Connect is called.
func New(d Dialer) *Client {
	return &Client{dialer: d, defaultDeadline: DefaultReadDeadline}
}

// SetDefaultDeadline overrides the read deadline ordinary Send calls use
// (the SetTimeout IPC management request's target).
func (c *Client) SetDefaultDeadline(d time.Duration) {
	c.deadlineMu.Lock()
	defer c.deadlineMu.Unlock()
	c.defaultDeadline = d
}

func (c *Client) DefaultDeadline() time.Duration {
	c.deadlineMu.RLock()
	defer c.deadlineMu.RUnlock()
	return c.defaultDeadline
}

// Connect dials a fresh connection and verifies liveness with a heartbeat
// round trip, replacing any existing connection.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	c.mu.Unlock()

	if _, err := c.Send(wire.Heartbeat{}); err != nil {
		c.invalidate()
		return err
	}
	return nil
}

// IsConnected reports whether a stream is currently installed. It does not
// itself verify liveness — use Heartbeat for that.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Heartbeat performs a liveness round trip over the existing connection.
func (c *Client) Heartbeat() error {
	_, err := c.Send(wire.Heartbeat{})
	return err
}

// Close drops the underlying connection, if any. Safe to call on an
// already-disconnected client.
func (c *Client) Close() {
	c.invalidate()
}

// Send issues req and waits for the response, using the client's default
// read deadline.
func (c *Client) Send(req wire.Request) (wire.Response, error) {
	return c.SendWithReadTimeout(req, c.DefaultDeadline())
}

// SendWithReadTimeout issues req with an explicit read deadline, for calls
// that legitimately take longer (large tree dumps, or a caller-forwarded
// timeout_ms + 5s budget).
func (c *Client) SendWithReadTimeout(req wire.Request, deadline time.Duration) (wire.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return wire.Response{}, ErrNotConnected
	}
	conn := c.conn

	frame := wire.EncodeRequest(req)

	writeDeadline := time.Now().Add(deadline)
	if err := conn.SetWriteDeadline(writeDeadline); err != nil {
		c.invalidateLocked()
		return wire.Response{}, err
	}
	if _, err := conn.Write(frame); err != nil {
		c.invalidateLocked()
		return wire.Response{}, errConnLost(err)
	}

	readDeadline := time.Now().Add(deadline)
	if err := conn.SetReadDeadline(readDeadline); err != nil {
		c.invalidateLocked()
		return wire.Response{}, err
	}

	payload, err := wire.ReadFrame(conn)
	if err != nil {
		c.invalidateLocked()
		if isTimeout(err) {
			return wire.Response{}, &TimeoutError{Op: "read response"}
		}
		return wire.Response{}, errConnLost(err)
	}

	resp, err := wire.DecodeResponsePayload(payload)
	if err != nil {
		// Malformed frame: the two sides are likely out of sync, so this
		// is treated as connection-invalidating like any protocol error.
		c.invalidateLocked()
		return wire.Response{}, err
	}

	if resp.Kind == wire.RespError {
		// Agent command errors never invalidate the connection.
		return resp, &CommandError{Message: resp.Error}
	}

	return resp, nil
}

// invalidate drops the current connection (if any).
func (c *Client) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidateLocked()
}

func (c *Client) invalidateLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

func errConnLost(err error) error {
	return fmt.Errorf("%w: %v", ErrConnectionLost, err)
}
