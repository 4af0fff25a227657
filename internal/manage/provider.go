package manage

import (
	"context"

	"github.com/qorvexhq/qorvex/internal/lifecycle"
)

// DeviceProvider is the external collaborator that actually enumerates and
// boots simulators/devices (an `xcrun simctl` shell-out or equivalent
// physical-device tooling). Simulator control is explicitly out of scope
// for this core; ListDevices/BootDevice are wired to this interface so a
// caller can supply a real implementation without the core depending on
// one. A nil Handler.Devices makes both requests report "not configured".
type DeviceProvider interface {
	ListDevices(ctx context.Context) ([]string, error)
	BootDevice(ctx context.Context, deviceID string) error
}

// AgentLauncher is the external collaborator that knows how to build and
// spawn the on-device agent binary for a given project directory — the
// platform build/launch mechanics lifecycle.Config leaves as injected
// fields. StartAgent is wired to this interface rather than constructing
// an xcodebuild/simctl invocation itself, for the same out-of-scope reason
// as DeviceProvider. A nil Handler.Launcher makes StartAgent report "not
// configured".
type AgentLauncher interface {
	// Config returns the lifecycle.Config to drive EnsureRunning for
	// projectDir/deviceID — BuildCommand/SpawnCommand populated by the
	// caller's platform-specific knowledge.
	Config(projectDir, deviceID string) lifecycle.Config
}
