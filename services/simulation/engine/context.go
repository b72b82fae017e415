// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"time"
)

// PassRecord captures the run state at the end of one pass.
type PassRecord struct {
	// Pass is the 1-based pass number.
	Pass int `json:"pass"`

	// Confidence is the run confidence at pass end.
	Confidence float64 `json:"confidence"`

	// RiskIndex is the risk index at pass end.
	RiskIndex float64 `json:"risk_index"`

	// Timestamp is when the pass completed.
	Timestamp time.Time `json:"timestamp"`
}

// StageResult records one stage execution. Results are keyed by stage
// ID and overwritten on later passes; failed executions are stored
// under "<stage_id>_error" instead.
type StageResult struct {
	// StageID is the producing stage, or "<stage_id>_error" for a
	// failure marker.
	StageID string `json:"stage_id"`

	// Pass is the pass the result was produced on.
	Pass int `json:"pass"`

	// Contribution is the stage's confidence level for the current
	// context, bounded by the stage cap.
	Contribution float64 `json:"confidence_contribution"`

	// Applied is the confidence delta actually applied, after the
	// previous pass's level, the ceiling clamp and containment
	// suppression are accounted for.
	Applied float64 `json:"applied_delta"`

	// ProcessingTime is how long the stage execution took.
	ProcessingTime time.Duration `json:"processing_time"`

	// Details carries stage-specific payload (factors, findings).
	Details map[string]any `json:"details,omitempty"`

	// Err is the failure description on "_error" markers.
	Err string `json:"error,omitempty"`
}

// EmergentSignal is one recorded emergence observation.
type EmergentSignal struct {
	// Kind classifies the signal (cross_domain_traversal,
	// convergent_branches, self_reference).
	Kind string `json:"kind"`

	// Description is a human-readable account.
	Description string `json:"description"`

	// Pass is the pass the signal was observed on.
	Pass int `json:"pass"`
}

// errorSuffix marks failed stage executions in StageResults.
const errorSuffix = "_error"

// RunContext is the mutable state of one simulation run. Stages read
// prior results from it and contribute bounded confidence adjustments
// through AdjustConfidence.
//
// Thread Safety: NOT safe for concurrent use. Stages execute
// sequentially within a run; the parallel-exploration stage merges its
// branch results on the run goroutine before touching the context.
type RunContext struct {
	// Query is the question being processed.
	Query string `json:"query"`

	// SessionID groups the run's history entries.
	SessionID string `json:"session_id"`

	// UserID attributes the run to a caller, empty for anonymous runs.
	UserID string `json:"user_id,omitempty"`

	// PassNumber is the 1-based pass currently executing.
	PassNumber int `json:"pass_number"`

	// Topics are the taxonomy node IDs the query anchors to, resolved
	// by the classification stage.
	Topics []string `json:"topics,omitempty"`

	// Domains are the distinct domains of the anchored topics.
	Domains []string `json:"domains,omitempty"`

	// RiskIndex is the latest containment risk assessment in [0,1].
	RiskIndex float64 `json:"risk_index"`

	// History holds one record per completed pass.
	History []PassRecord `json:"history"`

	// StageResults holds the latest result per stage ID, plus
	// "<stage_id>_error" markers for failed executions.
	StageResults map[string]*StageResult `json:"stage_results"`

	// Signals are the emergent-behavior observations so far.
	Signals []EmergentSignal `json:"signals,omitempty"`

	// Awareness is the self-reference proxy score in [0,1], raised
	// when exploration re-enters cognition territory.
	Awareness float64 `json:"awareness"`

	// SelfModifications counts refinement iterations and other
	// self-adjustment events.
	SelfModifications int `json:"self_modifications"`

	// RecursionDepth is the deepest refinement nesting reached.
	RecursionDepth int `json:"recursion_depth"`

	// ImplausibleJumps counts refinement steps flagged by the jump
	// guard.
	ImplausibleJumps int `json:"implausible_jumps"`

	// WeakAreas lists quality gaps recorded by the enhancement stage.
	WeakAreas []string `json:"weak_areas,omitempty"`

	// Settings is the effective configuration for this run.
	Settings SystemConfig `json:"-"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	initial    float64
	confidence float64
	status     Status
	contained  bool
}

// NewRunContext creates a run context seeded with the prior
// confidence. The prior is clamped to [0, MaxConfidence].
func NewRunContext(query, sessionID, userID string, prior float64) *RunContext {
	prior = clampConfidence(prior)
	return &RunContext{
		Query:        query,
		SessionID:    sessionID,
		UserID:       userID,
		StageResults: make(map[string]*StageResult),
		StartedAt:    time.Now(),
		initial:      prior,
		confidence:   prior,
		status:       StatusInitialized,
	}
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > MaxConfidence {
		return MaxConfidence
	}
	return c
}

// Confidence returns the current run confidence.
func (rc *RunContext) Confidence() float64 { return rc.confidence }

// InitialConfidence returns the prior the run started from.
func (rc *RunContext) InitialConfidence() float64 { return rc.initial }

// AdjustConfidence applies a bounded confidence delta and returns the
// delta actually applied. The result is clamped to [0, MaxConfidence].
// Once the run is contained, positive deltas are refused; negative
// deltas still apply.
func (rc *RunContext) AdjustConfidence(delta float64) float64 {
	if rc.contained && delta > 0 {
		return 0
	}
	next := clampConfidence(rc.confidence + delta)
	applied := next - rc.confidence
	rc.confidence = next
	return applied
}

// Status returns the run status.
func (rc *RunContext) Status() Status { return rc.status }

// SetStatus transitions the run status. Terminal states are sticky:
// once reached, later transitions are ignored and false is returned.
func (rc *RunContext) SetStatus(s Status) bool {
	if rc.status.Terminal() {
		return false
	}
	rc.status = s
	return true
}

// Contain halts the run with a CONTAINED_* status and switches the
// context into suppression mode, refusing further confidence gains.
// Non-contained statuses are ignored.
func (rc *RunContext) Contain(s Status) bool {
	if !s.Contained() {
		return false
	}
	rc.contained = true
	return rc.SetStatus(s)
}

// Contained reports whether confidence gains are being suppressed.
func (rc *RunContext) Contained() bool { return rc.contained }

// AppendHistory records the current state as a completed pass.
func (rc *RunContext) AppendHistory() {
	rc.History = append(rc.History, PassRecord{
		Pass:       rc.PassNumber,
		Confidence: rc.confidence,
		RiskIndex:  rc.RiskIndex,
		Timestamp:  time.Now(),
	})
}

// LastDelta returns the confidence gained since the last completed
// pass, or since the prior when no pass has completed yet.
func (rc *RunContext) LastDelta() float64 {
	if len(rc.History) == 0 {
		return rc.confidence - rc.initial
	}
	return rc.confidence - rc.History[len(rc.History)-1].Confidence
}

// PassConfidences returns the end-of-pass confidences, oldest first.
func (rc *RunContext) PassConfidences() []float64 {
	out := make([]float64, len(rc.History))
	for i, r := range rc.History {
		out[i] = r.Confidence
	}
	return out
}

// SetStageResult stores a stage result, replacing any earlier pass's
// result for the same stage.
func (rc *RunContext) SetStageResult(res *StageResult) {
	rc.StageResults[res.StageID] = res
}

// StageError records a failure marker under "<stage_id>_error". The
// stage's last successful result, if any, is left in place.
func (rc *RunContext) StageError(stageID string, err error) {
	id := stageID + errorSuffix
	rc.StageResults[id] = &StageResult{
		StageID: id,
		Pass:    rc.PassNumber,
		Err:     err.Error(),
	}
}

// StageScores returns the current contribution level per stage,
// markers excluded.
func (rc *RunContext) StageScores() map[string]float64 {
	out := make(map[string]float64, len(rc.StageResults))
	for id, res := range rc.StageResults {
		if res.Err != "" {
			continue
		}
		out[id] = res.Contribution
	}
	return out
}

// ErrorCount returns the number of stage failure markers recorded.
func (rc *RunContext) ErrorCount() int {
	n := 0
	for _, res := range rc.StageResults {
		if res.Err != "" {
			n++
		}
	}
	return n
}

// RecordSignal appends an emergent-behavior observation for the
// current pass.
func (rc *RunContext) RecordSignal(kind, description string) {
	rc.Signals = append(rc.Signals, EmergentSignal{
		Kind:        kind,
		Description: description,
		Pass:        rc.PassNumber,
	})
}

// RaiseAwareness increases the self-reference proxy, clamped to [0,1].
func (rc *RunContext) RaiseAwareness(delta float64) {
	rc.Awareness += delta
	if rc.Awareness > 1 {
		rc.Awareness = 1
	}
	if rc.Awareness < 0 {
		rc.Awareness = 0
	}
}

// AddSelfModifications counts self-adjustment events.
func (rc *RunContext) AddSelfModifications(n int) {
	if n > 0 {
		rc.SelfModifications += n
	}
}

// AddImplausibleJumps counts jump-guard flags.
func (rc *RunContext) AddImplausibleJumps(n int) {
	if n > 0 {
		rc.ImplausibleJumps += n
	}
}

// DeepenRecursion records the deepest refinement nesting seen.
func (rc *RunContext) DeepenRecursion(depth int) {
	if depth > rc.RecursionDepth {
		rc.RecursionDepth = depth
	}
}

// AddWeakAreas appends quality gaps, skipping duplicates.
func (rc *RunContext) AddWeakAreas(areas ...string) {
	for _, a := range areas {
		if a == "" {
			continue
		}
		dup := false
		for _, existing := range rc.WeakAreas {
			if existing == a {
				dup = true
				break
			}
		}
		if !dup {
			rc.WeakAreas = append(rc.WeakAreas, a)
		}
	}
}
