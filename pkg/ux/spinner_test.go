// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Spinner Tests
// =============================================================================

func TestSpinner_MachineLevelPrintsOnce(t *testing.T) {
	orig := Current()
	defer SetLevel(orig)
	SetLevel(LevelMachine)

	s := NewSpinner("running simulation")
	out := captureStdout(func() {
		s.Start()
		s.Stop()
	})
	if !strings.Contains(out, "PROGRESS: running simulation") {
		t.Errorf("expected PROGRESS line at machine level, got %q", out)
	}
}

func TestSpinner_StopWithoutAnimationIsSafe(t *testing.T) {
	orig := Current()
	defer SetLevel(orig)
	SetLevel(LevelMachine)

	s := NewSpinner("idle")
	// Never started in animated form; Stop must not block or panic.
	s.Stop()
	s.Stop()
}

func TestSpinner_StartStopAnimated(t *testing.T) {
	orig := Current()
	defer SetLevel(orig)
	SetLevel(LevelFull)

	s := NewSpinner("waiting")
	_ = captureStdout(func() {
		s.Start()
		time.Sleep(180 * time.Millisecond)
		s.SetMessage("still waiting")
		time.Sleep(100 * time.Millisecond)
		s.Stop()
	})
	// Reaching here without deadlock is the assertion; frame output is
	// timing dependent and not inspected.
}

func TestSpinner_DoubleStartIsNoOp(t *testing.T) {
	orig := Current()
	defer SetLevel(orig)
	SetLevel(LevelFull)

	s := NewSpinner("once")
	_ = captureStdout(func() {
		s.Start()
		s.Start()
		time.Sleep(100 * time.Millisecond)
		s.Stop()
	})
}

func TestSpinner_WithType(t *testing.T) {
	s := NewSpinner("styled").WithType(SpinnerPulse)
	if s.spinType != SpinnerPulse {
		t.Errorf("expected SpinnerPulse, got %v", s.spinType)
	}
}
