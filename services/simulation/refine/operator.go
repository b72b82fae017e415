// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package refine

import "context"

// Strategy selects the boost curve of the heuristic operator.
type Strategy string

const (
	// StrategyProgressive grows the per-iteration boost slightly,
	// offsetting the diminishing-returns scale.
	StrategyProgressive Strategy = "progressive"

	// StrategyAggressive takes large fixed steps.
	StrategyAggressive Strategy = "aggressive"

	// StrategyConservative takes small fixed steps and converges early.
	StrategyConservative Strategy = "conservative"
)

// Per-factor boost caps. Together they bound a single unscaled step
// well under the implausible-jump absolute cap.
const (
	trendBoostCap           = 0.03
	crossValidationBoostCap = 0.04
	weakAreaBoostUnit       = 0.01
	weakAreaBoostMax        = 3
	progressiveBoostBase    = 0.02
	progressiveBoostStep    = 0.005
	progressiveBoostCap     = 0.045
	aggressiveBoost         = 0.05
	conservativeBoost       = 0.015
)

// Step is one refinement proposal.
type Step struct {
	// Factors are the named pre-scale boosts that justify the proposal.
	Factors map[string]float64

	// Confidence is the proposed new confidence. The loop clamps it.
	Confidence float64
}

// Operator performs one refinement step. The loop passes the 1-based
// iteration and the diminishing-returns scale it will use to compute
// the expected gain; an operator whose proposal outruns its own factors
// gets flagged by the jump guard.
type Operator interface {
	Refine(ctx context.Context, in Input, iteration int, scale float64) (*Step, error)
}

// HeuristicOperator is the default operator. It derives bounded boosts
// from the confidence trend, cross-stage validation, weak-area
// compensation, and the configured strategy curve, and proposes the
// current confidence plus the scaled factor sum.
type HeuristicOperator struct {
	// Strategy selects the boost curve (default: progressive).
	Strategy Strategy

	// MaxConfidence caps the proposal (default: DefaultMaxConfidence).
	MaxConfidence float64
}

func (o *HeuristicOperator) Refine(_ context.Context, in Input, iteration int, scale float64) (*Step, error) {
	factors := map[string]float64{
		"trend":            trendBoost(in.History),
		"cross_validation": crossValidationBoost(in.StageScores),
		"weak_areas":       weakAreaBoost(in.WeakAreas),
		"strategy":         strategyBoost(o.Strategy, iteration),
	}

	var sum float64
	for _, v := range factors {
		sum += v
	}

	max := o.MaxConfidence
	if max <= 0 {
		max = DefaultMaxConfidence
	}
	return &Step{
		Factors:    factors,
		Confidence: clampConfidence(in.Confidence+sum*scale, max),
	}, nil
}

// trendBoost rewards a rising confidence history.
func trendBoost(history []float64) float64 {
	if len(history) < 2 {
		return 0
	}
	delta := history[len(history)-1] - history[0]
	if delta <= 0 {
		return 0
	}
	return capBoost(delta*0.5, trendBoostCap)
}

// crossValidationBoost rewards agreement with the other stages'
// contributions.
func crossValidationBoost(scores map[string]float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var total float64
	for _, v := range scores {
		if v > 0 {
			total += v
		}
	}
	avg := total / float64(len(scores))
	return capBoost(avg*0.25, crossValidationBoostCap)
}

// weakAreaBoost compensates recorded quality gaps; more gaps leave more
// room to improve.
func weakAreaBoost(areas []string) float64 {
	n := len(areas)
	if n > weakAreaBoostMax {
		n = weakAreaBoostMax
	}
	return float64(n) * weakAreaBoostUnit
}

func strategyBoost(s Strategy, iteration int) float64 {
	switch s {
	case StrategyAggressive:
		return aggressiveBoost
	case StrategyConservative:
		return conservativeBoost
	default:
		return capBoost(progressiveBoostBase+progressiveBoostStep*float64(iteration), progressiveBoostCap)
	}
}

func capBoost(v, max float64) float64 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
