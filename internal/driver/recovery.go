package driver

import (
	"context"
	"errors"

	"github.com/qorvexhq/qorvex/internal/agentclient"
	"github.com/qorvexhq/qorvex/internal/wire"
)

// withRecovery runs fn once; on a recoverable transport error, with a
// lifecycle attached, it stages a reconnect and, only if that reconnect
// itself fails, a full respawn, retrying fn exactly once per stage.
// Whichever retry's outcome (success or failure) is the one surfaced —
// a failed post-reconnect retry does not fall through to respawn.
func (d *AgentDriver) withRecovery(ctx context.Context, fn func() (wire.Response, error)) (wire.Response, error) {
	resp, err := fn()
	if err == nil {
		return resp, nil
	}
	if d.Lifecycle == nil || !isRecoverable(err) {
		return resp, err
	}

	if connErr := d.Client.Connect(ctx); connErr == nil {
		resp2, err2 := fn()
		if err2 == nil {
			d.recoveryCount.Add(1)
		}
		return resp2, err2
	}

	if err := d.Lifecycle.Terminate(); err != nil {
		return resp, err
	}
	if err := d.Lifecycle.Spawn(ctx, d.DeviceID); err != nil {
		return resp, err
	}
	if err := d.Lifecycle.ReadyWait(ctx); err != nil {
		return resp, err
	}
	if err := d.Client.Connect(ctx); err != nil {
		return resp, err
	}

	resp3, err3 := fn()
	if err3 == nil {
		d.recoveryCount.Add(1)
	}
	return resp3, err3
}

// isRecoverable reports whether err is a transport/protocol-class failure
// that should trigger staged recovery. Timeout (agent alive but slow) and
// CommandError (agent responded with an intentional error) must not.
func isRecoverable(err error) bool {
	if err == nil {
		return false
	}
	var cmdErr *agentclient.CommandError
	if errors.As(err, &cmdErr) {
		return false
	}
	var timeoutErr *agentclient.TimeoutError
	if errors.As(err, &timeoutErr) {
		return false
	}
	return true
}
