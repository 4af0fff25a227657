package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/qorvexhq/qorvex/internal/config"
)

// client is a thin newline-JSON request/response client over the daemon's
// Unix socket: one request line in, one (or, for subscribe, many) response
// line(s) out on a persistent connection.
type client struct {
	conn net.Conn
	r    *bufio.Reader
}

func dial(sessionName string) (*client, error) {
	stateDir, err := config.StateDir()
	if err != nil {
		return nil, fmt.Errorf("resolve state dir: %w", err)
	}
	sock := config.SocketPath(stateDir, sessionName)
	conn, err := net.DialTimeout("unix", sock, 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect to %s (is qorvexd running?): %w", sock, err)
	}
	return &client{conn: conn, r: bufio.NewReader(conn)}, nil
}

func (c *client) Close() error { return c.conn.Close() }

func (c *client) send(req map[string]any) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = c.conn.Write(data)
	return err
}

func (c *client) readLine(timeout time.Duration) (map[string]any, error) {
	if timeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	}
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(line, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

// request sends req and reads exactly one response line, failing loudly on
// an error-typed response.
func (c *client) request(req map[string]any) (map[string]any, error) {
	if err := c.send(req); err != nil {
		return nil, err
	}
	resp, err := c.readLine(10 * time.Second)
	if err != nil {
		return nil, err
	}
	if resp["type"] == "error" {
		return nil, fmt.Errorf("%v", resp["message"])
	}
	return resp, nil
}
