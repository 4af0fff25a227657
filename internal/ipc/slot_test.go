package ipc

import (
	"context"
	"errors"
	"testing"
)

func TestDriverSlot_EmptyReturnsErrNoDriver(t *testing.T) {
	var slot DriverSlot

	if slot.IsConnected() {
		t.Fatalf("IsConnected = true on empty slot")
	}
	if err := slot.Connect(context.Background()); !errors.Is(err, ErrNoDriver) {
		t.Fatalf("Connect err = %v, want ErrNoDriver", err)
	}
	if err := slot.TapLocation(context.Background(), 1, 2); !errors.Is(err, ErrNoDriver) {
		t.Fatalf("TapLocation err = %v, want ErrNoDriver", err)
	}
	if slot.RecoveryCount() != 0 {
		t.Fatalf("RecoveryCount = %d on empty slot, want 0", slot.RecoveryCount())
	}
}

func TestDriverSlot_DelegatesToInstalledDriver(t *testing.T) {
	var slot DriverSlot
	slot.Set(fakeDriver{})

	if got := slot.Get(); got == nil {
		t.Fatalf("Get() = nil after Set")
	}
	if !slot.IsConnected() {
		t.Fatalf("IsConnected = false, want true once a driver is installed")
	}
	if err := slot.TapLocation(context.Background(), 1, 2); err != nil {
		t.Fatalf("TapLocation err = %v, want nil", err)
	}

	slot.Set(nil)
	if slot.Get() != nil {
		t.Fatalf("Get() != nil after clearing with Set(nil)")
	}
	if err := slot.TapLocation(context.Background(), 1, 2); !errors.Is(err, ErrNoDriver) {
		t.Fatalf("TapLocation err after clearing = %v, want ErrNoDriver", err)
	}
}
