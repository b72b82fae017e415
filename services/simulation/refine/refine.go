// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package refine implements the recursive refinement loop.
//
// The loop repeatedly applies a refinement operator to the current
// confidence until it converges, clears the confidence threshold, or
// exhausts the iteration budget. Later iterations are scaled down by a
// diminishing-returns curve, and every iteration passes through an
// implausible-jump guard that flags gains the operator cannot account
// for. Flagged jumps are recorded for audit, never undone.
package refine

import (
	"context"
	"fmt"
	"math"
)

// State is the refinement loop's lifecycle state.
type State string

const (
	// StateNotStarted is the state before the first iteration.
	StateNotStarted State = "NOT_STARTED"

	// StateIterating is the state while the loop is running.
	StateIterating State = "ITERATING"

	// StateConverged means successive changes fell below the epsilon.
	StateConverged State = "CONVERGED"

	// StateThresholdMet means the confidence threshold was reached.
	StateThresholdMet State = "THRESHOLD_MET"

	// StateMaxIterations means the iteration budget ran out first.
	StateMaxIterations State = "MAX_ITER_REACHED"
)

// Terminal reports whether the state ends the loop.
func (s State) Terminal() bool {
	switch s {
	case StateConverged, StateThresholdMet, StateMaxIterations:
		return true
	}
	return false
}

const (
	// DefaultMaxIterations bounds the loop.
	DefaultMaxIterations = 5

	// DefaultConvergenceThreshold is the epsilon under which successive
	// confidence changes count as converged.
	DefaultConvergenceThreshold = 0.02

	// DefaultConfidenceThreshold stops refinement once reached.
	DefaultConfidenceThreshold = 0.90

	// DefaultMaxConfidence is the hard ceiling confidence is clamped to.
	DefaultMaxConfidence = 0.99

	// JumpRatio flags an iteration whose observed gain exceeds this
	// multiple of the expected gain.
	JumpRatio = 1.5

	// JumpAbsolute flags any single-iteration gain above this value
	// regardless of expectation.
	JumpAbsolute = 0.18

	// diminishingRate shapes the per-iteration scale 1/(1+rate*(n-1)).
	diminishingRate = 0.2
)

// DiminishingScale returns the boost multiplier for a 1-based
// iteration: 1.0 for the first, shrinking for each one after.
func DiminishingScale(iteration int) float64 {
	if iteration < 1 {
		iteration = 1
	}
	return 1 / (1 + diminishingRate*float64(iteration-1))
}

// Config tunes the refinement loop.
type Config struct {
	// MaxIterations bounds the loop (default: 5).
	MaxIterations int

	// ConvergenceThreshold is the stop epsilon (default: 0.02).
	ConvergenceThreshold float64

	// ConfidenceThreshold stops the loop once reached (default: 0.90).
	ConfidenceThreshold float64

	// MaxConfidence is the clamp ceiling (default: 0.99).
	MaxConfidence float64

	// Strategy selects the default operator's boost curve.
	Strategy Strategy

	// Operator performs one refinement step (default: the heuristic
	// operator with the configured strategy).
	Operator Operator
}

// DefaultConfig returns the standard loop configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterations:        DefaultMaxIterations,
		ConvergenceThreshold: DefaultConvergenceThreshold,
		ConfidenceThreshold:  DefaultConfidenceThreshold,
		MaxConfidence:        DefaultMaxConfidence,
		Strategy:             StrategyProgressive,
	}
}

func applyConfigDefaults(cfg *Config) {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.ConvergenceThreshold <= 0 {
		cfg.ConvergenceThreshold = DefaultConvergenceThreshold
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if cfg.MaxConfidence <= 0 {
		cfg.MaxConfidence = DefaultMaxConfidence
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyProgressive
	}
	if cfg.Operator == nil {
		cfg.Operator = &HeuristicOperator{Strategy: cfg.Strategy, MaxConfidence: cfg.MaxConfidence}
	}
}

// Input carries the evidence a refinement step may consult.
type Input struct {
	// Confidence is the current run confidence.
	Confidence float64

	// History holds the per-pass confidences so far, oldest first.
	History []float64

	// StageScores maps stage IDs to their confidence contributions.
	StageScores map[string]float64

	// WeakAreas lists quality gaps recorded by the enhancement stage.
	WeakAreas []string
}

// Iteration records one loop step for audit.
type Iteration struct {
	// Index is the 1-based iteration number.
	Index int `json:"index"`

	// Before and After bracket the confidence change.
	Before float64 `json:"before"`
	After  float64 `json:"after"`

	// Expected is the scaled sum of the operator's factors; Observed is
	// the change that actually landed.
	Expected float64 `json:"expected"`
	Observed float64 `json:"observed"`

	// Scale is the diminishing-returns multiplier applied.
	Scale float64 `json:"scale"`

	// Factors are the operator's named pre-scale boosts.
	Factors map[string]float64 `json:"factors"`

	// ImplausibleJump marks a gain the factors cannot account for.
	ImplausibleJump bool `json:"implausible_jump"`
}

// Outcome is the loop's final report.
type Outcome struct {
	// State is the terminal state (NOT_STARTED if aborted before the
	// first iteration).
	State State `json:"state"`

	// Confidence is the final confidence.
	Confidence float64 `json:"confidence"`

	// InitialConfidence is the starting confidence.
	InitialConfidence float64 `json:"initial_confidence"`

	// Iterations is the full per-iteration history.
	Iterations []Iteration `json:"iterations"`

	// Converged reports whether the loop stopped on the epsilon.
	Converged bool `json:"converged"`
}

// Jumps counts the iterations flagged by the implausible-jump guard.
func (o *Outcome) Jumps() int {
	n := 0
	for _, it := range o.Iterations {
		if it.ImplausibleJump {
			n++
		}
	}
	return n
}

// Refiner runs the refinement loop.
type Refiner struct {
	cfg Config
}

// NewRefiner creates a Refiner, filling unset config fields with
// defaults.
func NewRefiner(cfg Config) *Refiner {
	applyConfigDefaults(&cfg)
	return &Refiner{cfg: cfg}
}

// Run executes the refinement loop.
//
// Description:
//
//	Iterates up to MaxIterations times. Each iteration asks the
//	operator for a step, clamps the proposed confidence, and checks
//	the stop rules: threshold first (confidence >= ConfidenceThreshold
//	ends with THRESHOLD_MET), then convergence (an absolute change
//	under ConvergenceThreshold ends with CONVERGED). An input already
//	at the threshold returns THRESHOLD_MET with zero iterations.
//
//	The guard compares each observed gain against the expected gain
//	(the scaled factor sum): observed > 1.5x expected or > 0.18
//	absolute marks the iteration as an implausible jump.
//
// Outputs:
//   - *Outcome: always non-nil; on error it holds the completed
//     iterations so far.
//   - error: the context error when the deadline expires mid-loop, or
//     a wrapped operator error.
//
// Thread Safety: Refiner is stateless between calls and safe for
// concurrent use.
func (r *Refiner) Run(ctx context.Context, in Input) (*Outcome, error) {
	start := clampConfidence(in.Confidence, r.cfg.MaxConfidence)
	out := &Outcome{
		State:             StateNotStarted,
		Confidence:        start,
		InitialConfidence: start,
	}

	if out.Confidence >= r.cfg.ConfidenceThreshold {
		out.State = StateThresholdMet
		return out, nil
	}

	for i := 1; i <= r.cfg.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out.State = StateIterating

		before := out.Confidence
		in.Confidence = before
		scale := DiminishingScale(i)

		step, err := r.cfg.Operator.Refine(ctx, in, i, scale)
		if err != nil {
			return out, fmt.Errorf("refinement iteration %d: %w", i, err)
		}

		var expected float64
		for _, v := range step.Factors {
			expected += v
		}
		expected *= scale

		after := clampConfidence(step.Confidence, r.cfg.MaxConfidence)
		observed := after - before

		out.Iterations = append(out.Iterations, Iteration{
			Index:           i,
			Before:          before,
			After:           after,
			Expected:        expected,
			Observed:        observed,
			Scale:           scale,
			Factors:         step.Factors,
			ImplausibleJump: observed > JumpAbsolute || (observed > 0 && observed > JumpRatio*expected),
		})
		out.Confidence = after

		if after >= r.cfg.ConfidenceThreshold {
			out.State = StateThresholdMet
			return out, nil
		}
		if math.Abs(observed) < r.cfg.ConvergenceThreshold {
			out.State = StateConverged
			out.Converged = true
			return out, nil
		}
	}

	out.State = StateMaxIterations
	return out, nil
}

func clampConfidence(v, max float64) float64 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
