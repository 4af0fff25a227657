package driver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/qorvexhq/qorvex/internal/agentclient"
	"github.com/qorvexhq/qorvex/internal/types"
	"github.com/qorvexhq/qorvex/internal/wire"
)

// DumpTree fetches the full accessibility tree. It uses the long read
// deadline: a large view hierarchy can take well past the default 30s to
// serialize and transmit.
func (d *AgentDriver) DumpTree(ctx context.Context) (*types.Element, error) {
	resp, err := d.sendWithDeadline(ctx, wire.DumpTree{}, agentclient.TreeReadDeadline)
	if err != nil {
		return nil, err
	}
	var root types.Element
	if err := json.Unmarshal([]byte(resp.Tree), &root); err != nil {
		return nil, fmt.Errorf("driver: decode tree: %w", err)
	}
	return &root, nil
}

// GetElementValue reads sel's value, forwarding timeoutMs to the agent as a
// retry budget when set.
func (d *AgentDriver) GetElementValue(ctx context.Context, sel types.Selector, timeoutMs *uint64) (*string, error) {
	req := wire.GetValue{Selector: sel.Value, ByLabel: sel.ByLabel, Type: sel.ElemType, TimeoutMs: timeoutMs}
	var resp wire.Response
	var err error
	if timeoutMs != nil {
		resp, err = d.sendWithDeadline(ctx, req, forwardingDeadline(*timeoutMs))
	} else {
		resp, err = d.send(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

func (d *AgentDriver) Screenshot(ctx context.Context) ([]byte, error) {
	resp, err := d.send(ctx, wire.Screenshot{})
	if err != nil {
		return nil, err
	}
	return resp.Screenshot, nil
}

// ListElements is the abstract driver's default element-search backend: a
// full tree dump flattened down to the named (identifier or label bearing)
// elements. A backend that can page or filter server-side would override
// this, but the agent only exposes one opcode for it today.
func (d *AgentDriver) ListElements(ctx context.Context) ([]*types.Element, error) {
	root, err := d.DumpTree(ctx)
	if err != nil {
		return nil, err
	}
	return types.ListNamed(root), nil
}

// FindElementViaDump is the tree-dump-based search path: dump the full
// hierarchy and glob-match it host-side. Correct for any backend that can
// DumpTree, including ones without a live single-element lookup opcode;
// elements found this way carry no hittable flag, so callers that need
// live hittability use FindElement instead.
func FindElementViaDump(ctx context.Context, d Driver, sel types.Selector) (*types.Element, error) {
	root, err := d.DumpTree(ctx)
	if err != nil {
		return nil, err
	}
	return types.FindFirst(root, sel), nil
}

// FindElement resolves sel against the agent's live single-element lookup
// rather than the tree-dump default, since the backend always has the
// opcode and a live lookup is cheaper than dumping the whole tree.
func (d *AgentDriver) FindElement(ctx context.Context, sel types.Selector) (*types.Element, error) {
	req := wire.FindElement{Selector: sel.Value, ByLabel: sel.ByLabel, Type: sel.ElemType}
	resp, err := d.send(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Element == "" {
		return nil, nil
	}
	var el types.Element
	if err := json.Unmarshal([]byte(resp.Element), &el); err != nil {
		return nil, fmt.Errorf("driver: decode element: %w", err)
	}
	return &el, nil
}
