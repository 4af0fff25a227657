// Package session holds the per-run action log, broadcast bus, and
// append-only log writer shared between the IPC server and the executor.
package session

import "github.com/qorvexhq/qorvex/internal/types"

// Event is the tagged union of things a session broadcasts to subscribers.
type Event interface {
	eventTag() string
}

type ActionLogged struct {
	Entry types.ActionLog
}

func (ActionLogged) eventTag() string { return "action_logged" }

type ScreenshotUpdated struct {
	Screenshot []byte
}

func (ScreenshotUpdated) eventTag() string { return "screenshot_updated" }

type Started struct {
	SessionID string
}

func (Started) eventTag() string { return "started" }

type Ended struct{}

func (Ended) eventTag() string { return "ended" }

// Tag returns the stable string discriminator for an event.
func Tag(e Event) string {
	if e == nil {
		return ""
	}
	return e.eventTag()
}
