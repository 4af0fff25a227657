// Package ipc implements the local stream-socket hub: a newline-delimited
// JSON request/response protocol multiplexing execute/subscribe/get-state
// requests (handled directly) and management requests (delegated to a
// pluggable RequestHandler) over a Unix domain socket.
package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/qorvexhq/qorvex/internal/types"
)

// Request is the tagged union of everything a client can send. Execute,
// Subscribe, GetState, and GetLog are handled by the server itself (or by
// a custom Handler, if one intercepts them); every other variant is a
// management request the server only understands through a Handler.
type Request interface {
	requestTag() string
}

type Execute struct {
	Action types.Action
	Tag    *string
}

func (Execute) requestTag() string { return "execute" }

type Subscribe struct{}

func (Subscribe) requestTag() string { return "subscribe" }

type GetState struct{}

func (GetState) requestTag() string { return "get_state" }

type GetLog struct{}

func (GetLog) requestTag() string { return "get_log" }

type StartSession struct {
	SessionName string
	DeviceID    *string
}

func (StartSession) requestTag() string { return "start_session" }

type EndSession struct{}

func (EndSession) requestTag() string { return "end_session" }

type ListDevices struct{}

func (ListDevices) requestTag() string { return "list_devices" }

type UseDevice struct{ DeviceID string }

func (UseDevice) requestTag() string { return "use_device" }

type BootDevice struct{ DeviceID string }

func (BootDevice) requestTag() string { return "boot_device" }

type StartAgent struct{ ProjectDir *string }

func (StartAgent) requestTag() string { return "start_agent" }

type StopAgent struct{}

func (StopAgent) requestTag() string { return "stop_agent" }

type Connect struct {
	Host string
	Port int
}

func (Connect) requestTag() string { return "connect" }

type SetTarget struct{ BundleID string }

func (SetTarget) requestTag() string { return "set_target" }

type SetTimeout struct{ Ms uint64 }

func (SetTimeout) requestTag() string { return "set_timeout" }

type GetTimeout struct{}

func (GetTimeout) requestTag() string { return "get_timeout" }

type StartWatcher struct{ IntervalMs *uint64 }

func (StartWatcher) requestTag() string { return "start_watcher" }

type StopWatcher struct{}

func (StopWatcher) requestTag() string { return "stop_watcher" }

type GetSessionInfo struct{}

func (GetSessionInfo) requestTag() string { return "get_session_info" }

type GetCompletionData struct{}

func (GetCompletionData) requestTag() string { return "get_completion_data" }

type Shutdown struct{}

func (Shutdown) requestTag() string { return "shutdown" }

// Response is the tagged union of everything the server writes back. A
// single request can produce many responses on one connection only for
// Subscribe (a stream of Event responses).
type Response interface {
	responseTag() string
}

type ActionResult struct {
	Success    bool
	Message    string
	Screenshot []byte
	Data       *string
}

func (ActionResult) responseTag() string { return "action_result" }

type State struct {
	SessionID  string
	Screenshot []byte
}

func (State) responseTag() string { return "state" }

type Log struct {
	Entries []types.ActionLog
}

func (Log) responseTag() string { return "log" }

type EventResponse struct {
	Event any // map rendering of a session event, discriminated by its "type" key
}

func (EventResponse) responseTag() string { return "event" }

type ErrorResponse struct {
	Message string
}

func (ErrorResponse) responseTag() string { return "error" }

type CommandResult struct {
	Success bool
	Message string
}

func (CommandResult) responseTag() string { return "command_result" }

type DeviceList struct {
	Devices []string
}

func (DeviceList) responseTag() string { return "device_list" }

type SessionInfo struct {
	SessionName string
	Active      bool
	DeviceID    *string
	ActionCount int
	// RecoveryCount is the installed driver's successful-recovery total;
	// nil when no driver is installed.
	RecoveryCount *int64
}

func (SessionInfo) responseTag() string { return "session_info" }

type CompletionData struct {
	Elements []string
	Devices  []string
}

func (CompletionData) responseTag() string { return "completion_data" }

type TimeoutValue struct {
	Ms uint64
}

func (TimeoutValue) responseTag() string { return "timeout_value" }

type ShutdownAck struct{}

func (ShutdownAck) responseTag() string { return "shutdown_ack" }

// envelope is the minimal shape every line decodes into first: a "type"
// discriminator, with the rest of the line kept raw for a second,
// variant-specific decode. Mirrors the wire codec's own two-pass shape
// (opcode first, then payload) translated to JSON.
type envelope struct {
	Type string `json:"type"`
}

// DecodeRequest parses one newline-delimited JSON line into its concrete
// Request variant.
func DecodeRequest(line []byte) (Request, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("ipc: decode request envelope: %w", err)
	}

	switch env.Type {
	case "execute":
		var raw struct {
			Action json.RawMessage `json:"action"`
			Tag    *string         `json:"tag"`
		}
		if err := json.Unmarshal(line, &raw); err != nil {
			return nil, fmt.Errorf("ipc: decode execute: %w", err)
		}
		action, err := DecodeAction(raw.Action)
		if err != nil {
			return nil, err
		}
		return Execute{Action: action, Tag: raw.Tag}, nil

	case "subscribe":
		return Subscribe{}, nil
	case "get_state":
		return GetState{}, nil
	case "get_log":
		return GetLog{}, nil

	case "start_session":
		var raw struct {
			SessionName string  `json:"session_name"`
			DeviceID    *string `json:"device_id"`
		}
		if err := json.Unmarshal(line, &raw); err != nil {
			return nil, fmt.Errorf("ipc: decode start_session: %w", err)
		}
		return StartSession{SessionName: raw.SessionName, DeviceID: raw.DeviceID}, nil

	case "end_session":
		return EndSession{}, nil
	case "list_devices":
		return ListDevices{}, nil

	case "use_device":
		var raw struct {
			DeviceID string `json:"device_id"`
		}
		if err := json.Unmarshal(line, &raw); err != nil {
			return nil, fmt.Errorf("ipc: decode use_device: %w", err)
		}
		return UseDevice{DeviceID: raw.DeviceID}, nil

	case "boot_device":
		var raw struct {
			DeviceID string `json:"device_id"`
		}
		if err := json.Unmarshal(line, &raw); err != nil {
			return nil, fmt.Errorf("ipc: decode boot_device: %w", err)
		}
		return BootDevice{DeviceID: raw.DeviceID}, nil

	case "start_agent":
		var raw struct {
			ProjectDir *string `json:"project_dir"`
		}
		if err := json.Unmarshal(line, &raw); err != nil {
			return nil, fmt.Errorf("ipc: decode start_agent: %w", err)
		}
		return StartAgent{ProjectDir: raw.ProjectDir}, nil

	case "stop_agent":
		return StopAgent{}, nil

	case "connect":
		var raw struct {
			Host string `json:"host"`
			Port int    `json:"port"`
		}
		if err := json.Unmarshal(line, &raw); err != nil {
			return nil, fmt.Errorf("ipc: decode connect: %w", err)
		}
		return Connect{Host: raw.Host, Port: raw.Port}, nil

	case "set_target":
		var raw struct {
			BundleID string `json:"bundle_id"`
		}
		if err := json.Unmarshal(line, &raw); err != nil {
			return nil, fmt.Errorf("ipc: decode set_target: %w", err)
		}
		return SetTarget{BundleID: raw.BundleID}, nil

	case "set_timeout":
		var raw struct {
			Ms uint64 `json:"ms"`
		}
		if err := json.Unmarshal(line, &raw); err != nil {
			return nil, fmt.Errorf("ipc: decode set_timeout: %w", err)
		}
		return SetTimeout{Ms: raw.Ms}, nil

	case "get_timeout":
		return GetTimeout{}, nil

	case "start_watcher":
		var raw struct {
			IntervalMs *uint64 `json:"interval_ms"`
		}
		if err := json.Unmarshal(line, &raw); err != nil {
			return nil, fmt.Errorf("ipc: decode start_watcher: %w", err)
		}
		return StartWatcher{IntervalMs: raw.IntervalMs}, nil

	case "stop_watcher":
		return StopWatcher{}, nil
	case "get_session_info":
		return GetSessionInfo{}, nil
	case "get_completion_data":
		return GetCompletionData{}, nil
	case "shutdown":
		return Shutdown{}, nil

	case "":
		return nil, fmt.Errorf("ipc: request missing \"type\" field")
	default:
		return nil, fmt.Errorf("ipc: unknown request type %q", env.Type)
	}
}

// EncodeResponse renders resp as one JSON line (no trailing newline) with
// its "type" discriminator set from its tag.
func EncodeResponse(resp Response) ([]byte, error) {
	var payload map[string]any

	switch r := resp.(type) {
	case ActionResult:
		payload = map[string]any{
			"success": r.Success,
			"message": r.Message,
		}
		if r.Screenshot != nil {
			payload["screenshot"] = r.Screenshot
		}
		if r.Data != nil {
			payload["data"] = *r.Data
		}
	case State:
		payload = map[string]any{"session_id": r.SessionID}
		if r.Screenshot != nil {
			payload["screenshot"] = r.Screenshot
		}
	case Log:
		payload = map[string]any{"entries": r.Entries}
	case EventResponse:
		payload = map[string]any{"event": r.Event}
	case ErrorResponse:
		payload = map[string]any{"message": r.Message}
	case CommandResult:
		payload = map[string]any{"success": r.Success, "message": r.Message}
	case DeviceList:
		payload = map[string]any{"devices": r.Devices}
	case SessionInfo:
		payload = map[string]any{
			"session_name": r.SessionName,
			"active":       r.Active,
			"device_id":    r.DeviceID,
			"action_count": r.ActionCount,
		}
		if r.RecoveryCount != nil {
			payload["recovery_count"] = *r.RecoveryCount
		}
	case CompletionData:
		payload = map[string]any{"elements": r.Elements, "devices": r.Devices}
	case TimeoutValue:
		payload = map[string]any{"ms": r.Ms}
	case ShutdownAck:
		payload = map[string]any{}
	default:
		return nil, fmt.Errorf("ipc: unknown response type %T", resp)
	}

	payload["type"] = resp.responseTag()
	return json.Marshal(payload)
}
