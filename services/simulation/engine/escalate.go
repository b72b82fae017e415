// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import "math"

const (
	// StagnationEpsilon is the delta difference below which two
	// consecutive passes count as stagnating.
	StagnationEpsilon = 0.01

	// EscalationGap is how far below target confidence must sit for
	// the gap trigger to fire.
	EscalationGap = 0.15
)

// Escalation reasons, recorded with each escalation decision.
const (
	ReasonStagnating  = "stagnating"
	ReasonGap         = "confidence_gap"
	ReasonBelowTarget = "below_target"
)

// Stagnating reports whether the last two per-pass confidence deltas
// differ by less than StagnationEpsilon. At least three completed
// passes are needed to compare two deltas.
func Stagnating(history []PassRecord) bool {
	n := len(history)
	if n < 3 {
		return false
	}
	d1 := history[n-1].Confidence - history[n-2].Confidence
	d2 := history[n-2].Confidence - history[n-3].Confidence
	return math.Abs(d1-d2) < StagnationEpsilon
}

// Gap reports whether confidence trails the target by more than
// EscalationGap.
func Gap(confidence, target float64) bool {
	return confidence < target-EscalationGap
}

// ShouldEscalate decides whether the deep-stage chain runs this pass,
// and names the dominant reason. Any run below target escalates; the
// stagnation and gap triggers refine the reason for diagnostics.
func ShouldEscalate(confidence, target float64, history []PassRecord) (bool, string) {
	if confidence >= target {
		return false, ""
	}
	switch {
	case Stagnating(history):
		return true, ReasonStagnating
	case Gap(confidence, target):
		return true, ReasonGap
	default:
		return true, ReasonBelowTarget
	}
}
