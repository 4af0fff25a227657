package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/qorvexhq/qorvex/internal/session"
	"github.com/qorvexhq/qorvex/internal/types"
)

func newBareExecutor(t *testing.T, d *fakeDriver) *Executor {
	t.Helper()
	s, err := session.New(t.TempDir(), "test", nil)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	t.Cleanup(func() { _ = s.End() })
	return &Executor{Driver: d, Session: s}
}

func TestWaitFor_StableAfterThreeIdenticalFrames(t *testing.T) {
	frameA := types.Frame{X: 1, Y: 2, Width: 3, Height: 4}
	frameB := types.Frame{X: 9, Y: 9, Width: 9, Height: 9}
	d := &fakeDriver{findResults: []findResult{
		{el: hittable(frameA)},
		{el: hittable(frameB)},
		{el: hittable(frameA)},
		{el: hittable(frameA)},
		{el: hittable(frameA)},
	}}
	e := newBareExecutor(t, d)

	start := time.Now()
	ok, msg := e.waitFor(context.Background(), types.Selector{Value: "x"}, 2000, true)
	elapsed := time.Since(start)
	if !ok {
		t.Fatalf("expected success, got failure: %s", msg)
	}
	// Third consecutive identical-A frame is the 5th poll in this script
	// (A, B resets the run, then A,A,A) — so at least 4 poll intervals
	// elapse before success.
	if elapsed < 4*pollInterval {
		t.Fatalf("elapsed %s, want at least %s", elapsed, 4*pollInterval)
	}
}

func TestWaitFor_AlternatingFramesNeverStable(t *testing.T) {
	frameA := types.Frame{X: 1}
	frameB := types.Frame{X: 2}
	var results []findResult
	for i := 0; i < 20; i++ {
		if i%2 == 0 {
			results = append(results, findResult{el: hittable(frameA)})
		} else {
			results = append(results, findResult{el: hittable(frameB)})
		}
	}
	d := &fakeDriver{findResults: results}
	e := newBareExecutor(t, d)

	ok, _ := e.waitFor(context.Background(), types.Selector{Value: "x"}, 250, true)
	if ok {
		t.Fatalf("expected timeout failure with alternating frames")
	}
}

func TestWaitFor_TransportErrorFails(t *testing.T) {
	d := &fakeDriver{findResults: []findResult{{err: errors.New("connection lost")}}}
	e := newBareExecutor(t, d)

	ok, msg := e.waitFor(context.Background(), types.Selector{Value: "x"}, 2000, false)
	if ok {
		t.Fatalf("expected failure on transport error")
	}
	if msg == "" {
		t.Fatalf("expected a message describing the failure")
	}
}

func TestWaitForNot_AbsentOnFirstPoll(t *testing.T) {
	d := &fakeDriver{findResults: []findResult{{el: nil}}}
	e := newBareExecutor(t, d)

	ok, _ := e.waitForNot(context.Background(), types.Selector{Value: "x"}, 2000)
	if !ok {
		t.Fatalf("expected immediate success when element is absent")
	}
}

func TestWaitForNot_TransportErrorNeverSucceeds(t *testing.T) {
	d := &fakeDriver{findResults: []findResult{
		{el: hittable(types.Frame{})},
		{err: errors.New("stream closed")},
	}}
	e := newBareExecutor(t, d)

	ok, msg := e.waitForNot(context.Background(), types.Selector{Value: "x"}, 2000)
	if ok {
		t.Fatalf("expected failure, not premature success, on transport error")
	}
	if msg == "" {
		t.Fatalf("expected a message describing the failure")
	}
}

func TestWaitFor_TwoStablePollsIsNotEnough(t *testing.T) {
	frameA := types.Frame{X: 1}
	d := &fakeDriver{findResults: []findResult{
		{el: hittable(frameA)},
		{el: hittable(frameA)},
	}}
	e := newBareExecutor(t, d)

	ok, _ := e.waitFor(context.Background(), types.Selector{Value: "x"}, 150, true)
	if ok {
		t.Fatalf("expected timeout: only two polls available, stability needs three")
	}
}

func TestWaitFor_RecoveryResetsDeadline(t *testing.T) {
	// The element only shows up on the 5th poll (~400ms in), past the
	// caller's 250ms budget — but a recovery fires after the 3rd poll, which
	// must grant the action a fresh budget so the late appearance still
	// counts as success.
	d := &fakeDriver{
		findResults: []findResult{
			{}, {}, {},
			{},
			{el: hittable(types.Frame{X: 1})},
		},
		bumpRecoveryAfter: 3,
	}
	e := newBareExecutor(t, d)

	ok, msg := e.waitFor(context.Background(), types.Selector{Value: "x"}, 250, false)
	if !ok {
		t.Fatalf("expected success after post-recovery budget reset, got: %s", msg)
	}
}

func TestWaitFor_NoRecoveryKeepsOriginalDeadline(t *testing.T) {
	// Same script without the recovery bump: the 250ms budget expires
	// before the element appears.
	d := &fakeDriver{findResults: []findResult{
		{}, {}, {},
		{},
		{el: hittable(types.Frame{X: 1})},
	}}
	e := newBareExecutor(t, d)

	ok, _ := e.waitFor(context.Background(), types.Selector{Value: "x"}, 250, false)
	if ok {
		t.Fatalf("expected timeout without a recovery to reset the deadline")
	}
}
