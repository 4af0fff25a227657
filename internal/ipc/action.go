package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/qorvexhq/qorvex/internal/types"
)

// actionEnvelope is the JSON shape of an Action over the wire: one "type"
// discriminator (matching types.Tag's values) plus every field any variant
// might carry, all optional so a single struct can decode any of them.
type actionEnvelope struct {
	Type string `json:"type"`

	Selector      string  `json:"selector,omitempty"`
	ByLabel       bool    `json:"by_label,omitempty"`
	ElementType   *string `json:"element_type,omitempty"`
	TimeoutMs     *uint64 `json:"timeout_ms,omitempty"`
	RequireStable bool    `json:"require_stable,omitempty"`

	X int `json:"x,omitempty"`
	Y int `json:"y,omitempty"`

	DurationSeconds *float64 `json:"duration_seconds,omitempty"`

	Text string `json:"text,omitempty"`
}

// swipeEnvelope decodes Swipe separately: it needs four coordinate fields
// that must round-trip through zero, unlike the other variants' optional
// ints reused from actionEnvelope.
type swipeEnvelope struct {
	StartX          int      `json:"start_x"`
	StartY          int      `json:"start_y"`
	EndX            int      `json:"end_x"`
	EndY            int      `json:"end_y"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
}

// DecodeAction parses one JSON action payload (the "action" field of an
// Execute request) into its concrete types.Action variant.
func DecodeAction(raw json.RawMessage) (types.Action, error) {
	var env actionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("ipc: decode action: %w", err)
	}

	switch env.Type {
	case "tap":
		return types.Tap{
			Selector:  types.Selector{Value: env.Selector, ByLabel: env.ByLabel, ElemType: env.ElementType},
			TimeoutMs: env.TimeoutMs,
		}, nil

	case "tap_location":
		return types.TapLocation{X: env.X, Y: env.Y}, nil

	case "swipe":
		var s swipeEnvelope
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("ipc: decode swipe: %w", err)
		}
		return types.Swipe{
			StartX: s.StartX, StartY: s.StartY,
			EndX: s.EndX, EndY: s.EndY,
			DurationSeconds: s.DurationSeconds,
		}, nil

	case "long_press":
		dur := 0.0
		if env.DurationSeconds != nil {
			dur = *env.DurationSeconds
		}
		return types.LongPress{X: env.X, Y: env.Y, DurationSeconds: dur}, nil

	case "send_keys":
		return types.SendKeys{Text: env.Text}, nil

	case "get_screenshot":
		return types.GetScreenshot{}, nil

	case "get_screen_info":
		return types.GetScreenInfo{}, nil

	case "get_value":
		return types.GetValue{
			Selector:  types.Selector{Value: env.Selector, ByLabel: env.ByLabel, ElemType: env.ElementType},
			TimeoutMs: env.TimeoutMs,
		}, nil

	case "wait_for":
		if env.TimeoutMs == nil {
			return nil, fmt.Errorf("ipc: wait_for requires timeout_ms")
		}
		return types.WaitFor{
			Selector:      types.Selector{Value: env.Selector, ByLabel: env.ByLabel, ElemType: env.ElementType},
			TimeoutMs:     *env.TimeoutMs,
			RequireStable: env.RequireStable,
		}, nil

	case "wait_for_not":
		if env.TimeoutMs == nil {
			return nil, fmt.Errorf("ipc: wait_for_not requires timeout_ms")
		}
		return types.WaitForNot{
			Selector:  types.Selector{Value: env.Selector, ByLabel: env.ByLabel, ElemType: env.ElementType},
			TimeoutMs: *env.TimeoutMs,
		}, nil

	case "log_comment":
		return types.LogComment{Text: env.Text}, nil

	case "start_session":
		return types.StartSession{}, nil

	case "end_session":
		return types.EndSession{}, nil

	case "":
		return nil, fmt.Errorf("ipc: action missing \"type\" field")
	default:
		return nil, fmt.Errorf("ipc: unknown action type %q", env.Type)
	}
}
