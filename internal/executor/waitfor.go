package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/qorvexhq/qorvex/internal/types"
)

// pollInterval is the cadence for both WaitFor and WaitForNot.
const pollInterval = 100 * time.Millisecond

// stableThreshold is how many consecutive identical-frame polls a
// require_stable WaitFor needs before it declares the element settled.
const stableThreshold = 3

// waitFor polls sel with the live single-element lookup until it is
// present and hittable (and, when requireStable, has held an identical
// frame for stableThreshold consecutive polls), or timeoutMs elapses. A
// driver error that is not "the element is absent" (FindElement returns a
// nil element for that, not an error) fails the loop immediately rather
// than being treated as just another "not yet" poll.
func (e *Executor) waitFor(ctx context.Context, sel types.Selector, timeoutMs uint64, requireStable bool) (bool, string) {
	start := time.Now()
	deadline := start.Add(time.Duration(timeoutMs) * time.Millisecond)
	lastRecovery := e.Driver.RecoveryCount()

	stable := 0
	var lastFrame *types.Frame

	for {
		el, err := e.Driver.FindElement(ctx, sel)
		if err != nil {
			return false, fmt.Sprintf("wait_for: %s: %v", selectorDesc(sel), err)
		}

		if el.IsHittable() {
			if !requireStable {
				return true, ""
			}
			if lastFrame != nil && el.Frame != nil && *lastFrame == *el.Frame {
				stable++
			} else {
				stable = 1
			}
			lastFrame = el.Frame
			if stable >= stableThreshold {
				return true, ""
			}
		} else {
			stable = 0
			lastFrame = nil
		}

		// A crash recovery mid-loop gets the action a fresh budget and
		// stability count rather than letting a respawn's downtime eat
		// into the caller's wait — but only for recoveries, never for
		// agent-command errors (those never increment RecoveryCount).
		if rc := e.Driver.RecoveryCount(); rc != lastRecovery {
			lastRecovery = rc
			deadline = time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
			stable = 0
			lastFrame = nil
		}

		if time.Now().After(deadline) {
			return false, fmt.Sprintf("wait_for: timed out after %s waiting for %s", time.Since(start).Round(time.Millisecond), selectorDesc(sel))
		}

		select {
		case <-ctx.Done():
			return false, "wait_for: cancelled"
		case <-time.After(pollInterval):
		}
	}
}

// waitForNot polls sel until it is absent or not hittable, or timeoutMs
// elapses. Symmetric to waitFor: a transport error fails the loop
// immediately rather than being mistaken for "the element is gone".
func (e *Executor) waitForNot(ctx context.Context, sel types.Selector, timeoutMs uint64) (bool, string) {
	start := time.Now()
	deadline := start.Add(time.Duration(timeoutMs) * time.Millisecond)
	lastRecovery := e.Driver.RecoveryCount()

	for {
		el, err := e.Driver.FindElement(ctx, sel)
		if err != nil {
			return false, fmt.Sprintf("wait_for_not: %s: %v", selectorDesc(sel), err)
		}
		if !el.IsHittable() {
			return true, ""
		}

		if rc := e.Driver.RecoveryCount(); rc != lastRecovery {
			lastRecovery = rc
			deadline = time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
		}

		if time.Now().After(deadline) {
			return false, fmt.Sprintf("wait_for_not: timed out after %s waiting for %s", time.Since(start).Round(time.Millisecond), selectorDesc(sel))
		}

		select {
		case <-ctx.Done():
			return false, "wait_for_not: cancelled"
		case <-time.After(pollInterval):
		}
	}
}

func selectorDesc(sel types.Selector) string {
	field := "identifier"
	if sel.ByLabel {
		field = "label"
	}
	return fmt.Sprintf("%s %q", field, sel.Value)
}

// lookupMissMessages are the agent-command failure substrings that
// classify as a recoverable "element not there yet" lookup miss rather
// than a terminal failure. Used only by a host-side retry loop built atop
// a timeout-less Tap (the primary path forwards timeout_ms to the agent
// and never needs this); exported so callers assembling such a loop share
// one classification.
var lookupMissMessages = []string{"not found", "not hittable"}

// IsRecoverableLookupMiss reports whether message (an agent command
// failure) names an absent-or-not-yet-hittable element, as opposed to a
// terminal failure such as a lost connection or a decoding error.
func IsRecoverableLookupMiss(message string) bool {
	lower := strings.ToLower(message)
	for _, needle := range lookupMissMessages {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}
