package driver

import (
	"context"
	"errors"
	"net"
	"os/exec"
	"testing"
	"time"

	"github.com/qorvexhq/qorvex/internal/agentclient"
	"github.com/qorvexhq/qorvex/internal/lifecycle"
	"github.com/qorvexhq/qorvex/internal/types"
	"github.com/qorvexhq/qorvex/internal/wire"
)

// scriptedDialer hands out one scripted behavior per successive Dial call,
// repeating the last behavior once the script is exhausted — the same
// "local goroutine plays the remote peer" approach the agent client tests
// use, but addressable per attempt so recovery staging can be driven
// deterministically.
type scriptedDialer struct {
	t         *testing.T
	behaviors []func(t *testing.T) (net.Conn, error)
	calls     int
}

func (d *scriptedDialer) Dial(ctx context.Context) (net.Conn, error) {
	idx := d.calls
	if idx >= len(d.behaviors) {
		idx = len(d.behaviors) - 1
	}
	d.calls++
	return d.behaviors[idx](d.t)
}

// serveResponses returns a dial behavior that accepts one local pipe
// connection and replies to each incoming frame with the next response in
// order, closing once the script runs out.
func serveResponses(responses ...wire.Response) func(t *testing.T) (net.Conn, error) {
	return func(t *testing.T) (net.Conn, error) {
		client, server := net.Pipe()
		go func() {
			defer server.Close()
			for _, resp := range responses {
				if _, err := wire.ReadFrame(server); err != nil {
					return
				}
				if _, err := server.Write(wire.EncodeResponse(resp)); err != nil {
					return
				}
			}
		}()
		return client, nil
	}
}

// serveThenSwallow answers the given responses in order, then keeps
// reading (and discarding) every further frame without ever replying — the
// write side completes normally but the read deadline fires, exercising
// the Timeout (non-recoverable) path rather than a dropped connection.
func serveThenSwallow(initial ...wire.Response) func(t *testing.T) (net.Conn, error) {
	return func(t *testing.T) (net.Conn, error) {
		client, server := net.Pipe()
		t.Cleanup(func() { server.Close() })
		go func() {
			for _, resp := range initial {
				if _, err := wire.ReadFrame(server); err != nil {
					return
				}
				if _, err := server.Write(wire.EncodeResponse(resp)); err != nil {
					return
				}
			}
			for {
				if _, err := wire.ReadFrame(server); err != nil {
					return
				}
			}
		}()
		return client, nil
	}
}

func dialFails(t *testing.T) (net.Conn, error) {
	return nil, errors.New("dial refused")
}

func TestWithRecovery_ReconnectSucceedsNoRespawn(t *testing.T) {
	dialer := &scriptedDialer{t: t, behaviors: []func(*testing.T) (net.Conn, error){
		serveResponses(wire.Response{Kind: wire.RespOk}), // initial Connect heartbeat, then closes
		serveResponses(wire.Response{Kind: wire.RespOk}, wire.Response{Kind: wire.RespOk}), // reconnect heartbeat + retried tap
	}}

	client := agentclient.New(dialer)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("initial connect: %v", err)
	}

	// Lifecycle has no Build/Spawn commands configured: if recovery ever
	// fell through to a respawn, Spawn would return a lifecycle error and
	// the test would see that error instead of success.
	h, err := lifecycle.New(lifecycle.Config{ArtifactPath: t.TempDir() + "/agent.bundle"})
	if err != nil {
		t.Fatalf("lifecycle.New: %v", err)
	}
	defer h.Close()

	d := New(client, h, "device-1")

	if err := d.TapLocation(context.Background(), 10, 20); err != nil {
		t.Fatalf("TapLocation: %v", err)
	}
	if got := d.RecoveryCount(); got != 1 {
		t.Fatalf("RecoveryCount = %d, want 1", got)
	}
}

func TestWithRecovery_ReconnectFailsRespawnSucceeds(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				for {
					if _, err := wire.ReadFrame(conn); err != nil {
						return
					}
					if _, err := conn.Write(wire.EncodeResponse(wire.Response{Kind: wire.RespOk})); err != nil {
						return
					}
				}
			}()
		}
	}()
	port := ln.Addr().(*net.TCPAddr).Port

	dialer := &scriptedDialer{t: t, behaviors: []func(*testing.T) (net.Conn, error){
		serveResponses(wire.Response{Kind: wire.RespOk}), // initial connect, closes after
		dialFails, // reconnect attempt fails
		serveResponses(wire.Response{Kind: wire.RespOk}, wire.Response{Kind: wire.RespOk}), // post-respawn reconnect + retried tap
	}}

	client := agentclient.New(dialer)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("initial connect: %v", err)
	}

	h, err := lifecycle.New(lifecycle.Config{
		ArtifactPath:   t.TempDir() + "/agent.bundle",
		Port:           port,
		StartupTimeout: 2 * time.Second,
		SpawnCommand: func(ctx context.Context, artifactPath, deviceID string) *exec.Cmd {
			return exec.Command("true")
		},
	})
	if err != nil {
		t.Fatalf("lifecycle.New: %v", err)
	}
	defer h.Close()

	d := New(client, h, "device-1")

	if err := d.TapLocation(context.Background(), 10, 20); err != nil {
		t.Fatalf("TapLocation: %v", err)
	}
	if got := d.RecoveryCount(); got != 1 {
		t.Fatalf("RecoveryCount = %d, want 1", got)
	}
}

func TestWithRecovery_NoLifecycleSurfacesError(t *testing.T) {
	dialer := &scriptedDialer{t: t, behaviors: []func(*testing.T) (net.Conn, error){
		serveResponses(wire.Response{Kind: wire.RespOk}),
	}}
	client := agentclient.New(dialer)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("initial connect: %v", err)
	}

	d := New(client, nil, "device-1")

	if err := d.TapLocation(context.Background(), 1, 2); err == nil {
		t.Fatalf("expected error with no lifecycle attached")
	}
	if got := d.RecoveryCount(); got != 0 {
		t.Fatalf("RecoveryCount = %d, want 0", got)
	}
}

func TestWithRecovery_CommandErrorNeverRecovers(t *testing.T) {
	dialer := &scriptedDialer{t: t, behaviors: []func(*testing.T) (net.Conn, error){
		serveResponses(wire.Response{Kind: wire.RespOk}, wire.Response{Kind: wire.RespError, Error: "not found"}),
	}}
	client := agentclient.New(dialer)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("initial connect: %v", err)
	}

	h, err := lifecycle.New(lifecycle.Config{ArtifactPath: t.TempDir() + "/agent.bundle"})
	if err != nil {
		t.Fatalf("lifecycle.New: %v", err)
	}
	defer h.Close()

	d := New(client, h, "device-1")

	err = d.TapLocation(context.Background(), 1, 2)
	var cmdErr *agentclient.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected *CommandError, got %v (%T)", err, err)
	}
	if got := d.RecoveryCount(); got != 0 {
		t.Fatalf("RecoveryCount = %d, want 0", got)
	}
	if !client.IsConnected() {
		t.Fatalf("expected connection to remain after command error")
	}
}

func TestFindElementViaDump(t *testing.T) {
	tree := `{"children":[{"identifier":"cancel"},{"identifier":"submit-btn","type":"button"}]}`
	dialer := &scriptedDialer{t: t, behaviors: []func(*testing.T) (net.Conn, error){
		serveResponses(
			wire.Response{Kind: wire.RespOk}, // connect heartbeat
			wire.Response{Kind: wire.RespTree, Tree: tree},
		),
	}}
	client := agentclient.New(dialer)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	d := New(client, nil, "device-1")

	el, err := FindElementViaDump(context.Background(), d, types.Selector{Value: "submit-*"})
	if err != nil {
		t.Fatalf("FindElementViaDump: %v", err)
	}
	if el == nil || el.Identifier == nil || *el.Identifier != "submit-btn" {
		t.Fatalf("el = %#v, want the submit-btn element", el)
	}
	if el.Hittable != nil {
		t.Fatalf("tree-dump element unexpectedly carries a hittable flag")
	}
}

func TestWithRecovery_TimeoutNeverRecovers(t *testing.T) {
	dialer := &scriptedDialer{t: t, behaviors: []func(*testing.T) (net.Conn, error){
		serveThenSwallow(wire.Response{Kind: wire.RespOk}),
	}}
	client := agentclient.New(dialer)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("initial connect: %v", err)
	}

	h, err := lifecycle.New(lifecycle.Config{ArtifactPath: t.TempDir() + "/agent.bundle"})
	if err != nil {
		t.Fatalf("lifecycle.New: %v", err)
	}
	defer h.Close()

	d := New(client, h, "device-1")

	_, err = d.sendWithDeadline(context.Background(), wire.TapCoord{X: 1, Y: 2}, 50*time.Millisecond)
	var timeoutErr *agentclient.TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected *TimeoutError, got %v (%T)", err, err)
	}
	if got := d.RecoveryCount(); got != 0 {
		t.Fatalf("RecoveryCount = %d, want 0", got)
	}
}
