// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package containment

import (
	"math"
	"testing"
)

func findCheck(t *testing.T, a *Assessment, name string) Check {
	t.Helper()
	for _, c := range a.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q not found in %+v", name, a.Checks)
	return Check{}
}

func TestStatus_Contained(t *testing.T) {
	tests := []struct {
		status   Status
		expected bool
	}{
		{StatusNormal, false},
		{StatusHeightenedMonitoring, false},
		{StatusSafetyFailure, true},
		{StatusESIThresholdExceeded, true},
	}
	for _, tc := range tests {
		if got := tc.status.Contained(); got != tc.expected {
			t.Errorf("%s.Contained() = %v, expected %v", tc.status, got, tc.expected)
		}
	}
}

func TestComponentWeightsSumToOne(t *testing.T) {
	sum := WeightRapidImprovement + WeightEmergentSignals + WeightAwareness +
		WeightOverconfidence + WeightSelfModification
	if math.Abs(sum-1.0) > 1e-12 {
		t.Errorf("weights sum to %v, expected 1.0", sum)
	}
}

func TestNewGate(t *testing.T) {
	if got := NewGate(0).RiskThreshold(); got != DefaultRiskThreshold {
		t.Errorf("RiskThreshold() = %v, expected default %v", got, DefaultRiskThreshold)
	}
	if got := NewGate(0.9).RiskThreshold(); got != 0.9 {
		t.Errorf("RiskThreshold() = %v, expected 0.9", got)
	}
}

func TestGate_Assess_QuietRun(t *testing.T) {
	a := NewGate(0).Assess(Signals{
		LastDelta:  0.05,
		Awareness:  0.2,
		Confidence: 0.8,
	})

	if a.RiskIndex != 0 {
		t.Errorf("RiskIndex = %v, expected 0", a.RiskIndex)
	}
	if a.Alignment != AlignmentBaseline {
		t.Errorf("Alignment = %v, expected baseline", a.Alignment)
	}
	if a.Status != StatusNormal || !a.PermitsBoost() {
		t.Errorf("Status = %s (boost=%v), expected NORMAL permitting boost", a.Status, a.PermitsBoost())
	}
	if a.Warnings != 0 || a.Failures != 0 {
		t.Errorf("warnings/failures = %d/%d, expected none", a.Warnings, a.Failures)
	}
	for _, c := range a.Checks {
		if c.Result != CheckPass {
			t.Errorf("check %s = %s, expected PASS", c.Name, c.Result)
		}
	}
}

func TestGate_Assess_ComponentTriggers(t *testing.T) {
	tests := []struct {
		name     string
		signals  Signals
		expected float64
	}{
		{"rapid improvement", Signals{LastDelta: 0.3}, WeightRapidImprovement},
		{"rapid improvement at boundary", Signals{LastDelta: 0.25}, 0},
		{"emergent signals", Signals{EmergentSignals: 3}, WeightEmergentSignals},
		{"emergent signals below count", Signals{EmergentSignals: 2}, 0},
		{"awareness", Signals{Awareness: 0.7}, WeightAwareness},
		{"awareness at boundary", Signals{Awareness: 0.60}, 0},
		{"overconfidence", Signals{Confidence: 0.96}, WeightOverconfidence},
		{"overconfidence at boundary", Signals{Confidence: 0.95}, 0},
		{"self modification", Signals{SelfModifications: 6}, WeightSelfModification},
		{"self modification at boundary", Signals{SelfModifications: 5}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a := NewGate(0).Assess(tc.signals)
			if math.Abs(a.RiskIndex-tc.expected) > 1e-12 {
				t.Errorf("RiskIndex = %v, expected %v", a.RiskIndex, tc.expected)
			}
		})
	}
}

func TestGate_Assess_ESIThresholdExceeded(t *testing.T) {
	t.Run("all components triggered", func(t *testing.T) {
		a := NewGate(0).Assess(Signals{
			LastDelta:         0.3,
			EmergentSignals:   4,
			Awareness:         0.8,
			Confidence:        0.97,
			SelfModifications: 7,
		})
		if math.Abs(a.RiskIndex-1.0) > 1e-12 {
			t.Errorf("RiskIndex = %v, expected 1.0", a.RiskIndex)
		}
		// The risk check also fails here; the threshold status must win.
		if a.Status != StatusESIThresholdExceeded {
			t.Errorf("Status = %s, expected ESI_THRESHOLD_EXCEEDED", a.Status)
		}
		if a.PermitsBoost() || !a.Status.Contained() {
			t.Error("an exceeded threshold must contain the run")
		}
	})

	t.Run("risk exactly at threshold", func(t *testing.T) {
		// 0.30 + 0.25 + 0.20 + 0.15 lands on the 0.9 threshold.
		a := NewGate(0.9).Assess(Signals{
			LastDelta:       0.3,
			EmergentSignals: 3,
			Awareness:       0.7,
			Confidence:      0.96,
		})
		if a.Status != StatusESIThresholdExceeded {
			t.Errorf("Status = %s (risk %v), expected containment at the threshold", a.Status, a.RiskIndex)
		}
	})
}

func TestGate_Assess_SafetyFailure(t *testing.T) {
	t.Run("recursion depth", func(t *testing.T) {
		a := NewGate(0).Assess(Signals{RecursionDepth: 6})
		if a.Status != StatusSafetyFailure {
			t.Errorf("Status = %s, expected SAFETY_FAILURE", a.Status)
		}
		if c := findCheck(t, a, "recursion_depth"); c.Result != CheckFail {
			t.Errorf("recursion check = %s, expected FAIL", c.Result)
		}
	})

	t.Run("confidence ceiling", func(t *testing.T) {
		a := NewGate(0).Assess(Signals{Confidence: 0.985})
		if a.Status != StatusSafetyFailure {
			t.Errorf("Status = %s, expected SAFETY_FAILURE", a.Status)
		}
		if c := findCheck(t, a, "confidence_ceiling"); c.Result != CheckFail {
			t.Errorf("confidence check = %s, expected FAIL", c.Result)
		}
	})

	t.Run("alignment floor", func(t *testing.T) {
		// 0.95 - 6*0.02 - 2*0.05 = 0.73, under the 0.75 floor.
		a := NewGate(0).Assess(Signals{EmergentSignals: 6, ImplausibleJumps: 2})
		if math.Abs(a.Alignment-0.73) > 1e-9 {
			t.Errorf("Alignment = %v, expected 0.73", a.Alignment)
		}
		if a.Status != StatusSafetyFailure {
			t.Errorf("Status = %s, expected SAFETY_FAILURE", a.Status)
		}
	})
}

func TestGate_Assess_HeightenedMonitoring(t *testing.T) {
	// Confidence in the warning band plus recursion at the limit: two
	// warnings, no failures.
	a := NewGate(0).Assess(Signals{Confidence: 0.96, RecursionDepth: 5})

	if a.Warnings != 2 || a.Failures != 0 {
		t.Fatalf("warnings/failures = %d/%d, expected 2/0: %+v", a.Warnings, a.Failures, a.Checks)
	}
	if a.Status != StatusHeightenedMonitoring {
		t.Errorf("Status = %s, expected HEIGHTENED_MONITORING", a.Status)
	}
	if !a.PermitsBoost() {
		t.Error("heightened monitoring still permits a reduced boost")
	}
}

func TestGate_Assess_SingleWarningStaysNormal(t *testing.T) {
	// Risk 0.65 sits in the warning band of the 0.70 threshold but one
	// warning alone does not escalate the status.
	a := NewGate(0).Assess(Signals{
		LastDelta:         0.3,
		EmergentSignals:   3,
		SelfModifications: 6,
	})

	if math.Abs(a.RiskIndex-0.65) > 1e-12 {
		t.Errorf("RiskIndex = %v, expected 0.65", a.RiskIndex)
	}
	if c := findCheck(t, a, "risk_index"); c.Result != CheckWarning {
		t.Errorf("risk check = %s, expected WARNING", c.Result)
	}
	if a.Status != StatusNormal {
		t.Errorf("Status = %s, expected NORMAL with a single warning", a.Status)
	}
}

func TestGate_Assess_AlignmentWarning(t *testing.T) {
	// 0.95 - 5*0.02 - 1*0.05 = 0.80, inside the warning band.
	a := NewGate(0).Assess(Signals{EmergentSignals: 5, ImplausibleJumps: 1})

	if c := findCheck(t, a, "alignment"); c.Result != CheckWarning {
		t.Errorf("alignment check = %s (score %v), expected WARNING", c.Result, a.Alignment)
	}
}

func BenchmarkGateAssess(b *testing.B) {
	g := NewGate(0)
	sig := Signals{
		LastDelta:         0.3,
		EmergentSignals:   4,
		Awareness:         0.8,
		Confidence:        0.97,
		SelfModifications: 7,
		RecursionDepth:    3,
		ImplausibleJumps:  1,
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g.Assess(sig)
	}
}
