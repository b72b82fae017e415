// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"fmt"

	"github.com/CascadiaAI/CascadiaMind/services/simulation/conflict"
	"github.com/CascadiaAI/CascadiaMind/services/simulation/containment"
	"github.com/CascadiaAI/CascadiaMind/services/simulation/refine"
)

const (
	// DefaultPriorConfidence is the confidence every run starts from.
	DefaultPriorConfidence = 0.65

	// DefaultTargetConfidence is the confidence that terminates a run
	// as COMPLETED_SUCCESS.
	DefaultTargetConfidence = 0.85

	// DefaultTargetMaxStage is the deepest stage index the escalation
	// chain runs by default.
	DefaultTargetMaxStage = 7

	// DefaultMaxPasses is the pass budget per run.
	DefaultMaxPasses = 5

	// MaxConfidence is the hard ceiling on run confidence.
	MaxConfidence = 0.99

	// minTargetMaxStage keeps at least the baseline chain runnable.
	minTargetMaxStage = 3

	// maxTargetMaxStage is the index of the terminal containment stage.
	maxTargetMaxStage = 10

	// maxMaxPasses bounds caller-supplied pass budgets.
	maxMaxPasses = 20
)

// defaultResearchKeywords trigger the research stage regardless of
// confidence.
var defaultResearchKeywords = []string{
	"research", "latest", "recent", "study", "studies", "evidence",
	"data", "benchmark", "survey", "sources", "current",
}

// SystemConfig holds the engine-wide tuning knobs. The zero value is
// usable; unset fields take the documented defaults.
type SystemConfig struct {
	// PriorConfidence seeds each run's confidence (default: 0.65).
	PriorConfidence float64

	// TargetConfidence terminates runs that reach it (default: 0.85).
	TargetConfidence float64

	// TargetMaxStage is the deepest stage index escalation may reach
	// (default: 7, the deep-exploration stage).
	TargetMaxStage int

	// MaxPasses is the pass budget per run (default: 5).
	MaxPasses int

	// RiskThreshold is the containment risk index that halts a run
	// (default: containment.DefaultRiskThreshold).
	RiskThreshold float64

	// ConflictStrategy resolves multi-source claims in the reasoning
	// stage (default: consensus).
	ConflictStrategy conflict.Strategy

	// DivergenceThreshold gates conflict reconciliation (default:
	// conflict.DefaultDivergenceThreshold).
	DivergenceThreshold float64

	// Refinement configures the recursive-refinement stage. Zero
	// fields use the refine package defaults.
	Refinement refine.Config

	// ResearchKeywords force the research stage to trigger when the
	// query contains any of them.
	ResearchKeywords []string
}

// DefaultSystemConfig returns the stock configuration.
func DefaultSystemConfig() SystemConfig {
	return SystemConfig{
		PriorConfidence:     DefaultPriorConfidence,
		TargetConfidence:    DefaultTargetConfidence,
		TargetMaxStage:      DefaultTargetMaxStage,
		MaxPasses:           DefaultMaxPasses,
		RiskThreshold:       containment.DefaultRiskThreshold,
		ConflictStrategy:    conflict.StrategyConsensus,
		DivergenceThreshold: conflict.DefaultDivergenceThreshold,
		Refinement:          refine.DefaultConfig(),
		ResearchKeywords:    defaultResearchKeywords,
	}
}

// withDefaults fills unset fields and clamps out-of-range values.
func (c SystemConfig) withDefaults() SystemConfig {
	if c.PriorConfidence <= 0 {
		c.PriorConfidence = DefaultPriorConfidence
	}
	if c.PriorConfidence > MaxConfidence {
		c.PriorConfidence = MaxConfidence
	}
	if c.TargetConfidence <= 0 {
		c.TargetConfidence = DefaultTargetConfidence
	}
	if c.TargetConfidence > 1 {
		c.TargetConfidence = 1
	}
	if c.TargetMaxStage <= 0 {
		c.TargetMaxStage = DefaultTargetMaxStage
	}
	if c.TargetMaxStage < minTargetMaxStage {
		c.TargetMaxStage = minTargetMaxStage
	}
	if c.TargetMaxStage > maxTargetMaxStage {
		c.TargetMaxStage = maxTargetMaxStage
	}
	if c.MaxPasses <= 0 {
		c.MaxPasses = DefaultMaxPasses
	}
	if c.MaxPasses > maxMaxPasses {
		c.MaxPasses = maxMaxPasses
	}
	if c.RiskThreshold <= 0 || c.RiskThreshold > 1 {
		c.RiskThreshold = containment.DefaultRiskThreshold
	}
	if c.ConflictStrategy == "" {
		c.ConflictStrategy = conflict.StrategyConsensus
	}
	if c.DivergenceThreshold <= 0 {
		c.DivergenceThreshold = conflict.DefaultDivergenceThreshold
	}
	if len(c.ResearchKeywords) == 0 {
		c.ResearchKeywords = defaultResearchKeywords
	}
	return c
}

// RunParams are the per-run inputs. Only Query is required; zero
// overrides fall back to the system configuration.
type RunParams struct {
	// Query is the question to run.
	Query string `json:"query"`

	// SessionID groups the run's history. Generated when empty.
	SessionID string `json:"session_id,omitempty"`

	// UserID attributes the run to a caller.
	UserID string `json:"user_id,omitempty"`

	// TargetConfidence overrides the success target for this run.
	TargetConfidence float64 `json:"target_confidence,omitempty"`

	// TargetMaxStage overrides the deepest escalation stage.
	TargetMaxStage int `json:"target_max_stage,omitempty"`

	// MaxPasses overrides the pass budget.
	MaxPasses int `json:"max_passes,omitempty"`

	// RiskThreshold overrides the containment halt threshold.
	RiskThreshold float64 `json:"risk_threshold,omitempty"`

	// ConflictStrategy overrides the reasoning conflict strategy
	// (highest_confidence, weighted_vote, consensus).
	ConflictStrategy string `json:"conflict_strategy,omitempty"`

	// RefinementStrategy overrides the refinement boost curve
	// (progressive, aggressive, conservative).
	RefinementStrategy string `json:"refinement_strategy,omitempty"`

	// Sink receives run events when set. Not serialized.
	Sink EventSink `json:"-"`
}

// overlay applies per-run overrides on top of the system defaults.
func (c SystemConfig) overlay(p RunParams) (SystemConfig, error) {
	out := c.withDefaults()
	if p.TargetConfidence != 0 {
		// Targets above MaxConfidence are legal but unreachable: the
		// run exhausts its pass budget instead of succeeding.
		if p.TargetConfidence < 0 || p.TargetConfidence > 1 {
			return out, fmt.Errorf("%w: target_confidence %.3f outside (0, 1]",
				ErrInvalidParams, p.TargetConfidence)
		}
		out.TargetConfidence = p.TargetConfidence
	}
	if p.TargetMaxStage != 0 {
		if p.TargetMaxStage < minTargetMaxStage || p.TargetMaxStage > maxTargetMaxStage {
			return out, fmt.Errorf("%w: target_max_stage %d outside [%d, %d]",
				ErrInvalidParams, p.TargetMaxStage, minTargetMaxStage, maxTargetMaxStage)
		}
		out.TargetMaxStage = p.TargetMaxStage
	}
	if p.MaxPasses != 0 {
		if p.MaxPasses < 1 || p.MaxPasses > maxMaxPasses {
			return out, fmt.Errorf("%w: max_passes %d outside [1, %d]",
				ErrInvalidParams, p.MaxPasses, maxMaxPasses)
		}
		out.MaxPasses = p.MaxPasses
	}
	if p.RiskThreshold != 0 {
		if p.RiskThreshold < 0 || p.RiskThreshold > 1 {
			return out, fmt.Errorf("%w: risk_threshold %.3f outside (0, 1]",
				ErrInvalidParams, p.RiskThreshold)
		}
		out.RiskThreshold = p.RiskThreshold
	}
	if p.ConflictStrategy != "" {
		s, err := conflict.ParseStrategy(p.ConflictStrategy)
		if err != nil {
			return out, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		out.ConflictStrategy = s
	}
	if p.RefinementStrategy != "" {
		switch s := refine.Strategy(p.RefinementStrategy); s {
		case refine.StrategyProgressive, refine.StrategyAggressive, refine.StrategyConservative:
			out.Refinement.Strategy = s
		default:
			return out, fmt.Errorf("%w: unknown refinement strategy %q",
				ErrInvalidParams, p.RefinementStrategy)
		}
	}
	return out, nil
}
