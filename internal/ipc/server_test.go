package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/qorvexhq/qorvex/internal/executor"
	"github.com/qorvexhq/qorvex/internal/session"
	"github.com/qorvexhq/qorvex/internal/types"
)

// fakeDriver is a no-op driver.Driver; these tests exercise the IPC/session
// wiring, not driver behavior, so every call just succeeds.
type fakeDriver struct{}

func (fakeDriver) Connect(ctx context.Context) error { return nil }
func (fakeDriver) IsConnected() bool                 { return true }
func (fakeDriver) TapLocation(ctx context.Context, x, y int) error { return nil }
func (fakeDriver) TapElement(ctx context.Context, sel types.Selector, timeoutMs *uint64) error {
	return nil
}
func (fakeDriver) Swipe(ctx context.Context, sx, sy, ex, ey int, d *float64) error { return nil }
func (fakeDriver) LongPress(ctx context.Context, x, y int, d float64) error       { return nil }
func (fakeDriver) TypeText(ctx context.Context, text string) error                { return nil }
func (fakeDriver) DumpTree(ctx context.Context) (*types.Element, error)           { return &types.Element{}, nil }
func (fakeDriver) GetElementValue(ctx context.Context, sel types.Selector, timeoutMs *uint64) (*string, error) {
	return nil, nil
}
func (fakeDriver) Screenshot(ctx context.Context) ([]byte, error)            { return nil, nil }
func (fakeDriver) ListElements(ctx context.Context) ([]*types.Element, error) { return nil, nil }
func (fakeDriver) FindElement(ctx context.Context, sel types.Selector) (*types.Element, error) {
	return nil, nil
}
func (fakeDriver) RecoveryCount() int64 { return 0 }

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	sess, err := session.New(dir, "test", nil)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	t.Cleanup(func() { _ = sess.End() })

	exec := executor.New(fakeDriver{}, sess)
	sockPath := filepath.Join(dir, "qorvex_test.sock")
	srv := NewServer(sockPath, sess, exec)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	t.Cleanup(func() {
		cancel()
		<-errCh
	})

	// Wait for the socket file to appear rather than sleeping a fixed
	// amount.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(sockPath); err == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	return srv, sockPath
}

type testClient struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dialTestClient(t *testing.T, sockPath string) *testClient {
	t.Helper()
	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *testClient) send(req map[string]any) {
	c.t.Helper()
	data, err := json.Marshal(req)
	if err != nil {
		c.t.Fatalf("marshal request: %v", err)
	}
	data = append(data, '\n')
	if _, err := c.conn.Write(data); err != nil {
		c.t.Fatalf("write request: %v", err)
	}
}

func (c *testClient) readLine(timeout time.Duration) map[string]any {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(timeout))
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		c.t.Fatalf("read response: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(line, &out); err != nil {
		c.t.Fatalf("unmarshal response %q: %v", line, err)
	}
	return out
}

func TestIPC_ExecuteTapLocation(t *testing.T) {
	_, sockPath := startTestServer(t)
	c := dialTestClient(t, sockPath)

	c.send(map[string]any{
		"type":   "execute",
		"action": map[string]any{"type": "tap_location", "x": 100, "y": 200},
	})
	resp := c.readLine(time.Second)
	if resp["type"] != "action_result" {
		t.Fatalf("type = %v, want action_result", resp["type"])
	}
	if resp["success"] != true {
		t.Fatalf("success = %v, want true", resp["success"])
	}
}

func TestIPC_GetLogAndGetState(t *testing.T) {
	_, sockPath := startTestServer(t)
	c := dialTestClient(t, sockPath)

	c.send(map[string]any{
		"type":   "execute",
		"action": map[string]any{"type": "log_comment", "text": "hi"},
	})
	_ = c.readLine(time.Second)

	c.send(map[string]any{"type": "get_log"})
	resp := c.readLine(time.Second)
	entries, _ := resp["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("entries = %v, want 1", resp["entries"])
	}

	c.send(map[string]any{"type": "get_state"})
	resp = c.readLine(time.Second)
	if resp["type"] != "state" {
		t.Fatalf("type = %v, want state", resp["type"])
	}
}

func TestIPC_ManagementRequestWithoutHandlerErrors(t *testing.T) {
	_, sockPath := startTestServer(t)
	c := dialTestClient(t, sockPath)

	c.send(map[string]any{"type": "list_devices"})
	resp := c.readLine(time.Second)
	if resp["type"] != "error" {
		t.Fatalf("type = %v, want error", resp["type"])
	}
}

// Client A subscribes, client B executes a LogComment, A observes an
// ActionLogged event carrying that comment, and the persistent log gets
// exactly one line with no screenshot field.
func TestIPC_SubscribeReceivesOtherConnectionsExecute(t *testing.T) {
	_, sockPath := startTestServer(t)
	a := dialTestClient(t, sockPath)
	b := dialTestClient(t, sockPath)

	a.send(map[string]any{"type": "subscribe"})
	started := a.readLine(time.Second)
	if started["type"] != "event" {
		t.Fatalf("expected Started event first, got %v", started)
	}

	b.send(map[string]any{
		"type":   "execute",
		"action": map[string]any{"type": "log_comment", "text": "hi"},
	})
	_ = b.readLine(time.Second)

	ev := a.readLine(time.Second)
	if ev["type"] != "event" {
		t.Fatalf("type = %v, want event", ev["type"])
	}
	inner, _ := ev["event"].(map[string]any)
	if inner["type"] != "action_logged" {
		t.Fatalf("inner type = %v, want action_logged", inner["type"])
	}
	entry, _ := inner["entry"].(map[string]any)
	if entry["action_tag"] != "log_comment" {
		t.Fatalf("action_tag = %v, want log_comment", entry["action_tag"])
	}

	// The persistent log file has exactly one line, with no screenshot
	// field.
	logDir := filepath.Dir(sockPath)
	entries, err := filepath.Glob(filepath.Join(logDir, "logs", "test_*.jsonl"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("glob log file: %v, %v", entries, err)
	}
	data, err := os.ReadFile(entries[0])
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := splitLines(data)
	if len(lines) != 1 {
		t.Fatalf("log file has %d lines, want 1", len(lines))
	}
	var onDisk map[string]any
	if err := json.Unmarshal(lines[0], &onDisk); err != nil {
		t.Fatalf("unmarshal on-disk entry: %v", err)
	}
	if _, present := onDisk["screenshot"]; present {
		t.Fatalf("on-disk entry has screenshot field, want elided")
	}
}

func splitLines(data []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				out = append(out, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		out = append(out, data[start:])
	}
	return out
}
