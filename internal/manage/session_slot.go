// Package manage implements the management-request side of the IPC
// contract: the RequestHandler a daemon attaches to an ipc.Server so it
// understands device/agent lifecycle, timeout, and watcher requests in
// addition to the core execute/subscribe/get-state/get-log four the
// server already handles by default.
package manage

import (
	"sync"

	"github.com/qorvexhq/qorvex/internal/session"
)

// SessionSlot is a shared, lockable, swappable *session.Session reference —
// the session-side analogue of ipc.DriverSlot, letting StartSession/
// EndSession replace the active session without restructuring the server
// around two-phase session creation.
type SessionSlot struct {
	mu sync.RWMutex
	s  *session.Session
}

// NewSessionSlot wraps an already-started session.
func NewSessionSlot(s *session.Session) *SessionSlot {
	return &SessionSlot{s: s}
}

func (sl *SessionSlot) Get() *session.Session {
	sl.mu.RLock()
	defer sl.mu.RUnlock()
	return sl.s
}

// Swap installs s as current and returns the previous session, so the
// caller can End() it after releasing the lock.
func (sl *SessionSlot) Swap(s *session.Session) *session.Session {
	sl.mu.Lock()
	old := sl.s
	sl.s = s
	sl.mu.Unlock()
	return old
}
