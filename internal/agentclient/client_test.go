package agentclient

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/qorvexhq/qorvex/internal/wire"
)

// fakeAgent is a minimal TCP stand-in for the on-device agent: it accepts
// one connection at a time and replies to each framed request according to
// a caller-supplied script, the same "local listener goroutine plays the
// remote peer" style the reference transport tests use.
type fakeAgent struct {
	ln net.Listener
}

func newFakeAgent(t *testing.T) *fakeAgent {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return &fakeAgent{ln: ln}
}

func (a *fakeAgent) addr() string { return a.ln.Addr().String() }

func (a *fakeAgent) close() { _ = a.ln.Close() }

// serveOnce accepts a single connection and, for each incoming frame,
// writes the next response in responses (by index). When responses run
// out it closes the connection.
func (a *fakeAgent) serveOnce(t *testing.T, responses []wire.Response) {
	t.Helper()
	go func() {
		conn, err := a.ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for _, resp := range responses {
			if _, err := wire.ReadFrame(conn); err != nil {
				return
			}
			if _, err := conn.Write(wire.EncodeResponse(resp)); err != nil {
				return
			}
		}
	}()
}

func TestConnectAndHeartbeat(t *testing.T) {
	agent := newFakeAgent(t)
	defer agent.close()
	agent.serveOnce(t, []wire.Response{{Kind: wire.RespOk}})

	c := New(TCPDialer{Addr: agent.addr()})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !c.IsConnected() {
		t.Fatalf("expected connected")
	}
}

func TestSendCommandError(t *testing.T) {
	agent := newFakeAgent(t)
	defer agent.close()
	agent.serveOnce(t, []wire.Response{
		{Kind: wire.RespOk},
		{Kind: wire.RespError, Error: "element not found"},
	})

	c := New(TCPDialer{Addr: agent.addr()})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	_, err := c.Send(wire.TapCoord{X: 1, Y: 2})
	ce, ok := err.(*CommandError)
	if !ok {
		t.Fatalf("expected *CommandError, got %v (%T)", err, err)
	}
	if ce.Message != "element not found" {
		t.Errorf("message = %q", ce.Message)
	}
	// A command error must not invalidate the connection.
	if !c.IsConnected() {
		t.Fatalf("expected connection to remain after command error")
	}
}

func TestReadTimeoutInvalidatesConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	connected := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		connected <- conn
		// never respond; let the client's read deadline fire.
	}()

	c := New(TCPDialer{Addr: ln.Addr().String()})
	c.mu.Lock()
	conn, err := TCPDialer{Addr: ln.Addr().String()}.Dial(context.Background())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c.conn = conn
	c.mu.Unlock()
	<-connected

	_, err = c.SendWithReadTimeout(wire.Heartbeat{}, 50*time.Millisecond)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if _, ok := err.(*TimeoutError); !ok {
		t.Fatalf("expected *TimeoutError, got %v (%T)", err, err)
	}
	if c.IsConnected() {
		t.Fatalf("expected connection invalidated after timeout")
	}

	_, err = c.Send(wire.Heartbeat{})
	if err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected after invalidation, got %v", err)
	}
}
