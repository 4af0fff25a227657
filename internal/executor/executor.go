// Package executor maps Action requests to driver calls, running the
// WaitFor/WaitForNot poll loops and attributing per-phase timing for tap
// actions, then records every dispatch to the session.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/qorvexhq/qorvex/internal/driver"
	"github.com/qorvexhq/qorvex/internal/session"
	"github.com/qorvexhq/qorvex/internal/types"
)

// Executor holds a shared driver reference and session reference. Execute
// dispatches an Action, logs it (with sub-phase timing when applicable),
// and returns the ExecutionResult a caller (the IPC server) hands back
// over the wire.
type Executor struct {
	Driver  driver.Driver
	Session *session.Session
}

// New constructs an Executor over d and s.
func New(d driver.Driver, s *session.Session) *Executor {
	return &Executor{Driver: d, Session: s}
}

// Execute dispatches action, logs the outcome to the session (using
// per-phase timing for tap actions), and returns the result.
func (e *Executor) Execute(ctx context.Context, action types.Action, tag *string) types.ExecutionResult {
	start := time.Now()
	result, waitMs, tapMs := e.dispatch(ctx, action)
	duration := time.Since(start).Milliseconds()

	entry := types.ActionLog{
		Action:     action,
		ActionTag:  types.Tag(action),
		Success:    result.Success,
		DurationMs: duration,
		Tag:        tag,
	}
	if !result.Success {
		msg := result.Message
		entry.Message = &msg
	}
	if result.Data != nil {
		entry.Data = result.Data
	}
	if result.Screenshot != nil {
		entry.Screenshot = result.Screenshot
		e.Session.SetScreenshot(result.Screenshot)
	}

	if waitMs != nil && tapMs != nil {
		e.Session.LogActionTimed(entry, *waitMs, *tapMs)
	} else {
		e.Session.LogAction(entry)
	}

	return result
}

// dispatch runs action against the driver. The second and third return
// values are the wait/tap sub-phase durations in ms; both nil means the
// action carries no per-phase breakdown (only Tap and TapLocation do).
func (e *Executor) dispatch(ctx context.Context, action types.Action) (types.ExecutionResult, *int64, *int64) {
	switch a := action.(type) {
	case types.TapLocation:
		start := time.Now()
		err := e.Driver.TapLocation(ctx, a.X, a.Y)
		waitMs, tapMs := int64(0), time.Since(start).Milliseconds()
		return resultFromErr(err), &waitMs, &tapMs

	case types.Tap:
		// timeout_ms, when set, is forwarded to the agent as a retry
		// budget (one round trip); nil means a single attempt. Either
		// way the whole round trip is attributed to tap_ms — the host
		// never separately waits before issuing the tap.
		start := time.Now()
		err := e.Driver.TapElement(ctx, a.Selector, a.TimeoutMs)
		waitMs, tapMs := int64(0), time.Since(start).Milliseconds()
		return resultFromErr(err), &waitMs, &tapMs

	case types.Swipe:
		err := e.Driver.Swipe(ctx, a.StartX, a.StartY, a.EndX, a.EndY, a.DurationSeconds)
		return resultFromErr(err), nil, nil

	case types.LongPress:
		err := e.Driver.LongPress(ctx, a.X, a.Y, a.DurationSeconds)
		return resultFromErr(err), nil, nil

	case types.SendKeys:
		err := e.Driver.TypeText(ctx, a.Text)
		return resultFromErr(err), nil, nil

	case types.GetScreenshot:
		data, err := e.Driver.Screenshot(ctx)
		if err != nil {
			return resultFromErr(err), nil, nil
		}
		return types.ExecutionResult{Success: true, Message: "ok", Screenshot: data}, nil, nil

	case types.GetScreenInfo:
		root, err := e.Driver.DumpTree(ctx)
		if err != nil {
			return resultFromErr(err), nil, nil
		}
		flat := types.Flatten(root)
		data, err := json.Marshal(flat)
		if err != nil {
			return resultFromErr(fmt.Errorf("executor: encode tree: %w", err)), nil, nil
		}
		payload := string(data)
		return types.ExecutionResult{Success: true, Message: "ok", Data: &payload}, nil, nil

	case types.GetValue:
		val, err := e.Driver.GetElementValue(ctx, a.Selector, a.TimeoutMs)
		if err != nil {
			return resultFromErr(err), nil, nil
		}
		return types.ExecutionResult{Success: true, Message: "ok", Data: val}, nil, nil

	case types.WaitFor:
		ok, msg := e.waitFor(ctx, a.Selector, a.TimeoutMs, a.RequireStable)
		if !ok {
			return types.ExecutionResult{Success: false, Message: msg}, nil, nil
		}
		return types.ExecutionResult{Success: true, Message: "ok"}, nil, nil

	case types.WaitForNot:
		ok, msg := e.waitForNot(ctx, a.Selector, a.TimeoutMs)
		if !ok {
			return types.ExecutionResult{Success: false, Message: msg}, nil, nil
		}
		return types.ExecutionResult{Success: true, Message: "ok"}, nil, nil

	case types.LogComment, types.StartSession, types.EndSession:
		// Record-only: the caller already supplied the text/lifecycle
		// marker in the action itself, logged via the shared entry above.
		return types.ExecutionResult{Success: true, Message: "ok"}, nil, nil

	default:
		return types.ExecutionResult{Success: false, Message: fmt.Sprintf("executor: unknown action type %T", action)}, nil, nil
	}
}

func resultFromErr(err error) types.ExecutionResult {
	if err != nil {
		return types.ExecutionResult{Success: false, Message: err.Error()}
	}
	return types.ExecutionResult{Success: true, Message: "ok"}
}
