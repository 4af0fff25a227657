// Package agentclient holds the single TCP connection to the on-device
// agent, enforcing one-in-flight request discipline and invalidating the
// stream on any transport or protocol error.
package agentclient

import "errors"

// ErrNotConnected is returned when a command is issued while no live TCP
// stream exists — expected immediately after invalidation, and the signal
// that triggers the driver's staged recovery.
var ErrNotConnected = errors.New("agentclient: not connected")

// ErrConnectionLost is returned (alongside invalidating the stream) when a
// read or write fails mid-flight.
var ErrConnectionLost = errors.New("agentclient: connection lost")

// TimeoutError distinguishes a read-deadline expiry (the agent is alive but
// slow) from a hard connection loss; it does not, by itself, invalidate
// anything beyond the one stream (the caller always drops the stream on
// timeout per the client's invalidation rule, but driver-level recovery
// must not be triggered by this error category).
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return "agentclient: timeout during " + e.Op
}

// CommandError wraps an agent-reported Error response (element not found,
// not hittable, unknown type, ...). It never invalidates the connection.
type CommandError struct {
	Message string
}

func (e *CommandError) Error() string {
	return "agentclient: command failed: " + e.Message
}
