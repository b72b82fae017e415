// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"fmt"

	"github.com/CascadiaAI/CascadiaMind/services/simulation/refine"
)

// refinementStage runs the bounded self-refinement loop against the
// live run state. Unlike the other stages it has no fixed cap: the
// refine loop bounds itself through its iteration budget and the
// confidence ceiling. Every iteration counts as a self-modification,
// and jump-guard flags feed the containment gate.
type refinementStage struct{}

func (s *refinementStage) ID() string { return StageRecursiveRefinement }

func (s *refinementStage) Index() int { return 9 }

func (s *refinementStage) Execute(ctx context.Context, run *RunContext) (*StageOutcome, error) {
	in := refine.Input{
		Confidence:  run.Confidence(),
		History:     run.PassConfidences(),
		StageScores: run.StageScores(),
		WeakAreas:   run.WeakAreas,
	}

	out, err := refine.NewRefiner(run.Settings.Refinement).Run(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("refinement loop: %w", err)
	}

	run.AddSelfModifications(len(out.Iterations))
	run.AddImplausibleJumps(out.Jumps())
	run.DeepenRecursion(len(out.Iterations))

	gain := out.Confidence - out.InitialConfidence

	// The contribution is the cumulative refinement gain across
	// passes, so the engine's level delta applies exactly this pass's
	// gain.
	prevLevel := 0.0
	var iterations []refine.Iteration
	if prev, ok := run.StageResults[StageRecursiveRefinement]; ok && prev.Err == "" {
		prevLevel = prev.Contribution
		if prevIters, ok := prev.Details["iterations"].([]refine.Iteration); ok {
			iterations = append(iterations, prevIters...)
		}
	}
	iterations = append(iterations, out.Iterations...)

	return &StageOutcome{
		Contribution: prevLevel + gain,
		Details: map[string]any{
			"state":      string(out.State),
			"converged":  out.Converged,
			"initial":    out.InitialConfidence,
			"final":      out.Confidence,
			"gain":       gain,
			"jumps":      out.Jumps(),
			"iterations": iterations,
		},
	}, nil
}
