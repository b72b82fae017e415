// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"

	"github.com/CascadiaAI/CascadiaMind/services/simulation/containment"
)

// containmentBoostBase is the confidence boost a clean assessment
// grants, scaled down by the measured risk.
const containmentBoostBase = 0.03

// containmentStage is the terminal safety gate. It assesses the run's
// emergence bookkeeping, publishes the risk index, and either grants a
// small risk-scaled boost or halts the run with a CONTAINED_* status.
// Once it contains, the context refuses further confidence gains.
type containmentStage struct{}

func (s *containmentStage) ID() string { return StageContainment }

func (s *containmentStage) Index() int { return 10 }

func (s *containmentStage) Execute(ctx context.Context, run *RunContext) (*StageOutcome, error) {
	gate := containment.NewGate(run.Settings.RiskThreshold)
	assessment := gate.Assess(containment.Signals{
		LastDelta:         run.LastDelta(),
		EmergentSignals:   len(run.Signals),
		Awareness:         run.Awareness,
		Confidence:        run.Confidence(),
		SelfModifications: run.SelfModifications,
		RecursionDepth:    run.RecursionDepth,
		ImplausibleJumps:  run.ImplausibleJumps,
	})
	run.RiskIndex = assessment.RiskIndex

	boost := 0.0
	switch assessment.Status {
	case containment.StatusESIThresholdExceeded:
		run.Contain(StatusContainedESI)
	case containment.StatusSafetyFailure:
		run.Contain(StatusContainedSafety)
	case containment.StatusHeightenedMonitoring:
		boost = containmentBoostBase * (1 - assessment.RiskIndex) / 2
	default:
		boost = containmentBoostBase * (1 - assessment.RiskIndex)
	}

	return &StageOutcome{
		Contribution: boost,
		Details: map[string]any{
			"status":     string(assessment.Status),
			"risk_index": assessment.RiskIndex,
			"alignment":  assessment.Alignment,
			"warnings":   assessment.Warnings,
			"failures":   assessment.Failures,
			"components": assessment.Components,
			"checks":     assessment.Checks,
		},
	}, nil
}
