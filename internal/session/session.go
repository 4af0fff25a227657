package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qorvexhq/qorvex/internal/config"
	"github.com/qorvexhq/qorvex/internal/logger"
	"github.com/qorvexhq/qorvex/internal/types"
)

// State is a session's lifecycle stage.
type State int

const (
	StateStarted State = iota
	StateEnded
)

// Session is a named run of the automation core: a bounded action log, a
// persistent append-only log file, a broadcast bus, and a latest-screenshot
// slot. It is owned by the IPC server as shared mutable state and is never
// copied — callers hold a pointer.
type Session struct {
	ID        string
	Name      string
	CreatedAt time.Time
	DeviceID  *string

	stateMu sync.RWMutex
	state   State

	logMu sync.RWMutex
	log   *ring

	shotMu sync.RWMutex
	shot   []byte

	bus *bus

	fileMu sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

// New creates a session named sessionName with an append-only log file
// under {stateDir}/logs, matching the {session}_{YYYYmmdd_HHMMSS}.jsonl
// naming convention.
func New(stateDir, sessionName string, deviceID *string) (*Session, error) {
	return newWithTime(stateDir, sessionName, deviceID, time.Now())
}

func newWithTime(stateDir, sessionName string, deviceID *string, now time.Time) (*Session, error) {
	if err := config.EnsureStateDirs(stateDir); err != nil {
		return nil, fmt.Errorf("session: ensure state dirs: %w", err)
	}
	stamp := now.Format("20060102_150405")
	path := config.LogFilePath(stateDir, sessionName, stamp)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("session: open log file: %w", err)
	}

	s := &Session{
		ID:        uuid.NewString(),
		Name:      sessionName,
		CreatedAt: now,
		DeviceID:  deviceID,
		state:     StateStarted,
		log:       newRing(actionLogCapacity),
		bus:       newBus(),
		file:      f,
		writer:    bufio.NewWriter(f),
	}
	return s, nil
}

// State returns the session's current lifecycle stage.
func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// End marks the session ended, broadcasts Ended, and flushes/closes the
// log file. Safe to call once; subsequent calls are no-ops.
func (s *Session) End() error {
	s.stateMu.Lock()
	if s.state == StateEnded {
		s.stateMu.Unlock()
		return nil
	}
	s.state = StateEnded
	s.stateMu.Unlock()

	s.bus.publish(Ended{})

	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	if err := s.writer.Flush(); err != nil {
		return err
	}
	return s.file.Close()
}

// LogAction appends entry to the ring and the on-disk log, and broadcasts
// ActionLogged. If the ring is at capacity the oldest entry is evicted
// first; the eviction is silent, and the persistent log is unaffected (it
// never evicts).
func (s *Session) LogAction(entry types.ActionLog) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	s.logMu.Lock()
	s.log.push(entry)
	s.logMu.Unlock()

	s.appendToFile(entry.WithoutScreenshot())
	s.bus.publish(ActionLogged{Entry: entry})
}

// LogActionTimed is LogAction plus the wait/tap sub-phase fields, used by
// tap-family dispatches that track per-phase timing.
func (s *Session) LogActionTimed(entry types.ActionLog, waitMs, tapMs int64) {
	entry.WaitMs = &waitMs
	entry.TapMs = &tapMs
	s.LogAction(entry)
}

func (s *Session) appendToFile(entry types.ActionLog) {
	data, err := json.Marshal(entry)
	if err != nil {
		logger.Error("session: marshal log entry", "err", err)
		return
	}

	s.fileMu.Lock()
	defer s.fileMu.Unlock()
	if _, err := s.writer.Write(data); err != nil {
		logger.Error("session: write log entry", "err", err)
		return
	}
	if err := s.writer.WriteByte('\n'); err != nil {
		logger.Error("session: write log newline", "err", err)
		return
	}
	if err := s.writer.Flush(); err != nil {
		logger.Error("session: flush log", "err", err)
	}
}

// Entries returns the bounded in-memory action log, oldest first.
func (s *Session) Entries() []types.ActionLog {
	s.logMu.RLock()
	defer s.logMu.RUnlock()
	return s.log.entries()
}

// ActionCount returns the number of entries currently held in the bounded
// in-memory log (capped at 1000, not the lifetime total).
func (s *Session) ActionCount() int {
	s.logMu.RLock()
	defer s.logMu.RUnlock()
	return s.log.count()
}

// SetScreenshot stores the latest screenshot by reference and broadcasts
// ScreenshotUpdated. The slice is shared, never copied, across subscribers.
func (s *Session) SetScreenshot(data []byte) {
	s.shotMu.Lock()
	s.shot = data
	s.shotMu.Unlock()
	s.bus.publish(ScreenshotUpdated{Screenshot: data})
}

// LatestScreenshot returns the most recent screenshot reference, or nil.
func (s *Session) LatestScreenshot() []byte {
	s.shotMu.RLock()
	defer s.shotMu.RUnlock()
	return s.shot
}

// Subscribe registers a new event subscriber. The first event delivered is
// always Started with this session's id — the subscription acknowledgment
// that tells a client its receiver is live before any further events can
// race past it. The returned cancel func unsubscribes and closes the
// channel; callers must invoke it once done reading, including after
// observing the channel close on their own (a lag signal), to release bus
// bookkeeping.
func (s *Session) Subscribe() (<-chan Event, func()) {
	id, ch := s.bus.subscribe(Started{SessionID: s.ID})
	return ch, func() { s.bus.unsubscribe(id) }
}

func (s *Session) subscriberCount() int {
	return s.bus.subscriberCount()
}
