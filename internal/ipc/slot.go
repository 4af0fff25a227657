package ipc

import (
	"context"
	"errors"
	"sync"

	"github.com/qorvexhq/qorvex/internal/driver"
	"github.com/qorvexhq/qorvex/internal/types"
)

// ErrNoDriver is returned by every error-returning DriverSlot operation
// (IsConnected reports false and RecoveryCount 0 instead) when no driver has
// been installed yet (e.g. the agent hasn't been started for this
// session). Execute surfaces it as an ordinary ActionResult failure.
var ErrNoDriver = errors.New("ipc: no driver installed")

// DriverSlot is a shared, lockable, optionally-empty driver.Driver. The
// server holds one so a management handler can install (or replace) the
// live driver asynchronously, any time after the IPC server itself is
// already listening, without restructuring the server around two-phase
// initialization. It implements driver.Driver itself, delegating to
// whatever is currently installed. The lock is held only while fetching
// the current driver; the delegated call itself runs without it.
type DriverSlot struct {
	mu sync.RWMutex
	d  driver.Driver
}

// Set installs d (or clears it, if d is nil) as the slot's current driver.
func (s *DriverSlot) Set(d driver.Driver) {
	s.mu.Lock()
	s.d = d
	s.mu.Unlock()
}

// Get returns the currently installed driver, or nil.
func (s *DriverSlot) Get() driver.Driver {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.d
}

func (s *DriverSlot) current() (driver.Driver, error) {
	d := s.Get()
	if d == nil {
		return nil, ErrNoDriver
	}
	return d, nil
}

func (s *DriverSlot) Connect(ctx context.Context) error {
	d, err := s.current()
	if err != nil {
		return err
	}
	return d.Connect(ctx)
}

func (s *DriverSlot) IsConnected() bool {
	d := s.Get()
	return d != nil && d.IsConnected()
}

func (s *DriverSlot) TapLocation(ctx context.Context, x, y int) error {
	d, err := s.current()
	if err != nil {
		return err
	}
	return d.TapLocation(ctx, x, y)
}

func (s *DriverSlot) TapElement(ctx context.Context, sel types.Selector, timeoutMs *uint64) error {
	d, err := s.current()
	if err != nil {
		return err
	}
	return d.TapElement(ctx, sel, timeoutMs)
}

func (s *DriverSlot) Swipe(ctx context.Context, startX, startY, endX, endY int, duration *float64) error {
	d, err := s.current()
	if err != nil {
		return err
	}
	return d.Swipe(ctx, startX, startY, endX, endY, duration)
}

func (s *DriverSlot) LongPress(ctx context.Context, x, y int, duration float64) error {
	d, err := s.current()
	if err != nil {
		return err
	}
	return d.LongPress(ctx, x, y, duration)
}

func (s *DriverSlot) TypeText(ctx context.Context, text string) error {
	d, err := s.current()
	if err != nil {
		return err
	}
	return d.TypeText(ctx, text)
}

func (s *DriverSlot) DumpTree(ctx context.Context) (*types.Element, error) {
	d, err := s.current()
	if err != nil {
		return nil, err
	}
	return d.DumpTree(ctx)
}

func (s *DriverSlot) GetElementValue(ctx context.Context, sel types.Selector, timeoutMs *uint64) (*string, error) {
	d, err := s.current()
	if err != nil {
		return nil, err
	}
	return d.GetElementValue(ctx, sel, timeoutMs)
}

func (s *DriverSlot) Screenshot(ctx context.Context) ([]byte, error) {
	d, err := s.current()
	if err != nil {
		return nil, err
	}
	return d.Screenshot(ctx)
}

func (s *DriverSlot) ListElements(ctx context.Context) ([]*types.Element, error) {
	d, err := s.current()
	if err != nil {
		return nil, err
	}
	return d.ListElements(ctx)
}

func (s *DriverSlot) FindElement(ctx context.Context, sel types.Selector) (*types.Element, error) {
	d, err := s.current()
	if err != nil {
		return nil, err
	}
	return d.FindElement(ctx, sel)
}

func (s *DriverSlot) RecoveryCount() int64 {
	d := s.Get()
	if d == nil {
		return 0
	}
	return d.RecoveryCount()
}

var _ driver.Driver = (*DriverSlot)(nil)
