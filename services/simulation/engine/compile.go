// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"fmt"
	"time"
)

// StageBreakdown is one stage's entry in the final result.
type StageBreakdown struct {
	// StageID is the stage, or "<stage_id>_error" for failures.
	StageID string `json:"stage_id"`

	// Pass is the pass the entry was produced on.
	Pass int `json:"pass"`

	// Contribution is the stage's final confidence level.
	Contribution float64 `json:"confidence_contribution"`

	// Applied is the delta applied on the stage's last execution.
	Applied float64 `json:"applied_delta"`

	// ElapsedMS is the stage's last execution time in milliseconds.
	ElapsedMS float64 `json:"elapsed_ms"`

	// Error is the failure description on error markers.
	Error string `json:"error,omitempty"`
}

// RunResult is the compiled terminal answer of a simulation run.
type RunResult struct {
	// SessionID identifies the run's history.
	SessionID string `json:"session_id"`

	// UserID attributes the run, empty for anonymous runs.
	UserID string `json:"user_id,omitempty"`

	// Query is the question that was run.
	Query string `json:"query"`

	// Status is the terminal run status.
	Status Status `json:"status"`

	// Summary is a one-line account of how the run ended.
	Summary string `json:"summary"`

	// Confidence is the final run confidence.
	Confidence float64 `json:"confidence"`

	// InitialConfidence is the prior the run started from.
	InitialConfidence float64 `json:"initial_confidence"`

	// ConfidenceGain is Confidence minus InitialConfidence.
	ConfidenceGain float64 `json:"confidence_gain"`

	// TargetConfidence is the effective success target.
	TargetConfidence float64 `json:"target_confidence"`

	// RiskIndex is the final containment risk index.
	RiskIndex float64 `json:"risk_index"`

	// Passes is the number of completed passes.
	Passes int `json:"passes"`

	// Contained reports whether the safety gate halted the run.
	Contained bool `json:"contained"`

	// Progression is the per-pass confidence history.
	Progression []PassRecord `json:"progression"`

	// Stages is the per-stage breakdown in chain order, error markers
	// following their stage.
	Stages []StageBreakdown `json:"stages"`

	// Topics are the taxonomy anchors the run resolved.
	Topics []string `json:"topics,omitempty"`

	// EmergentSignals are the recorded emergence observations.
	EmergentSignals []EmergentSignal `json:"emergent_signals,omitempty"`

	// Awareness is the final self-reference proxy score.
	Awareness float64 `json:"awareness"`

	// WeakAreas are the quality gaps the enhancement audit found.
	WeakAreas []string `json:"weak_areas,omitempty"`

	// ElapsedMS is the total run time in milliseconds.
	ElapsedMS float64 `json:"elapsed_ms"`
}

// chainOrder is the canonical stage ordering for breakdowns.
var chainOrder = []string{
	StageClassification,
	StagePerspectives,
	StageResearch,
	StageReasoning,
	StageIntegration,
	StageEnhancement,
	StageDeepExploration,
	StageParallelExploration,
	StageRecursiveRefinement,
	StageContainment,
}

// Compile assembles the terminal answer from the run context. It is a
// pure read of the context: compiling twice yields the same result.
func Compile(run *RunContext, elapsed time.Duration) *RunResult {
	res := &RunResult{
		SessionID:         run.SessionID,
		UserID:            run.UserID,
		Query:             run.Query,
		Status:            run.Status(),
		Confidence:        run.Confidence(),
		InitialConfidence: run.InitialConfidence(),
		ConfidenceGain:    run.Confidence() - run.InitialConfidence(),
		TargetConfidence:  run.Settings.TargetConfidence,
		RiskIndex:         run.RiskIndex,
		Passes:            len(run.History),
		Contained:         run.Contained(),
		Progression:       append([]PassRecord(nil), run.History...),
		Topics:            append([]string(nil), run.Topics...),
		EmergentSignals:   append([]EmergentSignal(nil), run.Signals...),
		Awareness:         run.Awareness,
		WeakAreas:         append([]string(nil), run.WeakAreas...),
		ElapsedMS:         float64(elapsed) / float64(time.Millisecond),
	}
	res.Summary = summarize(res)

	for _, id := range chainOrder {
		if sr, ok := run.StageResults[id]; ok {
			res.Stages = append(res.Stages, breakdownOf(sr))
		}
		if sr, ok := run.StageResults[id+errorSuffix]; ok {
			res.Stages = append(res.Stages, breakdownOf(sr))
		}
	}
	return res
}

func breakdownOf(sr *StageResult) StageBreakdown {
	return StageBreakdown{
		StageID:      sr.StageID,
		Pass:         sr.Pass,
		Contribution: sr.Contribution,
		Applied:      sr.Applied,
		ElapsedMS:    float64(sr.ProcessingTime) / float64(time.Millisecond),
		Error:        sr.Err,
	}
}

// summarize renders the one-line terminal account.
func summarize(res *RunResult) string {
	switch res.Status {
	case StatusCompletedSuccess:
		return fmt.Sprintf("confidence target %.2f reached in %d passes (%.2f -> %.2f)",
			res.TargetConfidence, res.Passes, res.InitialConfidence, res.Confidence)
	case StatusContainedESI:
		return fmt.Sprintf("halted: risk index %.2f crossed the containment threshold on pass %d",
			res.RiskIndex, res.Passes)
	case StatusContainedSafety:
		return fmt.Sprintf("halted: safety check failed on pass %d", res.Passes)
	case StatusMaxPasses:
		return fmt.Sprintf("pass budget exhausted at confidence %.2f (target %.2f)",
			res.Confidence, res.TargetConfidence)
	case StatusFailed:
		return "run failed before completing a pass"
	default:
		return string(res.Status)
	}
}
