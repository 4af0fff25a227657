package driver

import (
	"context"

	"github.com/qorvexhq/qorvex/internal/types"
	"github.com/qorvexhq/qorvex/internal/wire"
)

func (d *AgentDriver) TapLocation(ctx context.Context, x, y int) error {
	_, err := d.send(ctx, wire.TapCoord{X: int32(x), Y: int32(y)})
	return err
}

// TapElement taps the element matched by sel, forwarding a retry budget to
// the agent when timeoutMs is set so the agent can poll locally without
// one round trip per attempt.
func (d *AgentDriver) TapElement(ctx context.Context, sel types.Selector, timeoutMs *uint64) error {
	var req wire.Request
	switch {
	case sel.ElemType != nil:
		req = wire.TapWithType{Selector: sel.Value, ByLabel: sel.ByLabel, Type: *sel.ElemType, TimeoutMs: timeoutMs}
	case sel.ByLabel:
		req = wire.TapByLabel{Label: sel.Value, TimeoutMs: timeoutMs}
	default:
		req = wire.TapElement{Selector: sel.Value, TimeoutMs: timeoutMs}
	}

	if timeoutMs != nil {
		_, err := d.sendWithDeadline(ctx, req, forwardingDeadline(*timeoutMs))
		return err
	}
	_, err := d.send(ctx, req)
	return err
}

func (d *AgentDriver) Swipe(ctx context.Context, startX, startY, endX, endY int, duration *float64) error {
	req := wire.Swipe{
		StartX: int32(startX), StartY: int32(startY),
		EndX: int32(endX), EndY: int32(endY),
		Duration: duration,
	}
	_, err := d.send(ctx, req)
	return err
}

func (d *AgentDriver) LongPress(ctx context.Context, x, y int, duration float64) error {
	req := wire.LongPress{X: int32(x), Y: int32(y), Duration: duration}
	_, err := d.send(ctx, req)
	return err
}

func (d *AgentDriver) TypeText(ctx context.Context, text string) error {
	_, err := d.send(ctx, wire.TypeText{Text: text})
	return err
}

// SetTarget implements the optional AppSwitcher capability using the real
// wire opcode (the concrete backend supports app switching even though the
// abstract Driver contract treats it as optional).
func (d *AgentDriver) SetTarget(ctx context.Context, bundleID string) error {
	_, err := d.send(ctx, wire.SetTarget{BundleID: bundleID})
	return err
}
