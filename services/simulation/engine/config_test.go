// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CascadiaAI/CascadiaMind/services/simulation/conflict"
	"github.com/CascadiaAI/CascadiaMind/services/simulation/containment"
	"github.com/CascadiaAI/CascadiaMind/services/simulation/refine"
)

// TestDefaultSystemConfig verifies the stock tuning.
func TestDefaultSystemConfig(t *testing.T) {
	cfg := DefaultSystemConfig()

	assert.Equal(t, DefaultPriorConfidence, cfg.PriorConfidence)
	assert.Equal(t, DefaultTargetConfidence, cfg.TargetConfidence)
	assert.Equal(t, DefaultTargetMaxStage, cfg.TargetMaxStage)
	assert.Equal(t, DefaultMaxPasses, cfg.MaxPasses)
	assert.Equal(t, containment.DefaultRiskThreshold, cfg.RiskThreshold)
	assert.Equal(t, conflict.StrategyConsensus, cfg.ConflictStrategy)
	assert.Contains(t, cfg.ResearchKeywords, "research")
}

// TestWithDefaults verifies zero-value filling and clamping.
func TestWithDefaults(t *testing.T) {
	t.Run("zero value gets the stock tuning", func(t *testing.T) {
		cfg := SystemConfig{}.withDefaults()
		assert.Equal(t, DefaultPriorConfidence, cfg.PriorConfidence)
		assert.Equal(t, DefaultTargetConfidence, cfg.TargetConfidence)
		assert.Equal(t, DefaultTargetMaxStage, cfg.TargetMaxStage)
		assert.Equal(t, DefaultMaxPasses, cfg.MaxPasses)
		assert.Equal(t, containment.DefaultRiskThreshold, cfg.RiskThreshold)
		assert.Equal(t, conflict.StrategyConsensus, cfg.ConflictStrategy)
		assert.Equal(t, conflict.DefaultDivergenceThreshold, cfg.DivergenceThreshold)
		assert.NotEmpty(t, cfg.ResearchKeywords)
	})

	t.Run("out-of-range values are clamped", func(t *testing.T) {
		cfg := SystemConfig{
			PriorConfidence: 1.5,
			TargetMaxStage:  99,
			MaxPasses:       999,
		}.withDefaults()
		assert.Equal(t, MaxConfidence, cfg.PriorConfidence)
		assert.Equal(t, maxTargetMaxStage, cfg.TargetMaxStage)
		assert.Equal(t, maxMaxPasses, cfg.MaxPasses)

		cfg = SystemConfig{TargetMaxStage: 1}.withDefaults()
		assert.Equal(t, minTargetMaxStage, cfg.TargetMaxStage)
	})
}

// TestOverlay verifies per-run overrides and their validation.
func TestOverlay(t *testing.T) {
	base := DefaultSystemConfig()

	t.Run("zero params keep the defaults", func(t *testing.T) {
		got, err := base.overlay(RunParams{Query: "q"})
		require.NoError(t, err)
		assert.Equal(t, base, got)
	})

	t.Run("overrides land", func(t *testing.T) {
		got, err := base.overlay(RunParams{
			Query:              "q",
			TargetConfidence:   0.9,
			TargetMaxStage:     10,
			MaxPasses:          3,
			RiskThreshold:      0.5,
			ConflictStrategy:   string(conflict.StrategyHighestConfidence),
			RefinementStrategy: string(refine.StrategyAggressive),
		})
		require.NoError(t, err)
		assert.Equal(t, 0.9, got.TargetConfidence)
		assert.Equal(t, 10, got.TargetMaxStage)
		assert.Equal(t, 3, got.MaxPasses)
		assert.Equal(t, 0.5, got.RiskThreshold)
		assert.Equal(t, conflict.StrategyHighestConfidence, got.ConflictStrategy)
		assert.Equal(t, refine.StrategyAggressive, got.Refinement.Strategy)
	})

	t.Run("unreachable target is legal", func(t *testing.T) {
		got, err := base.overlay(RunParams{Query: "q", TargetConfidence: 0.999})
		require.NoError(t, err)
		assert.Equal(t, 0.999, got.TargetConfidence)
	})

	t.Run("invalid overrides are rejected", func(t *testing.T) {
		bad := []RunParams{
			{TargetConfidence: -0.2},
			{TargetConfidence: 1.2},
			{TargetMaxStage: 2},
			{TargetMaxStage: 11},
			{MaxPasses: -1},
			{MaxPasses: 21},
			{RiskThreshold: 1.01},
			{ConflictStrategy: "majority"},
			{RefinementStrategy: "yolo"},
		}
		for _, p := range bad {
			_, err := base.overlay(p)
			assert.ErrorIs(t, err, ErrInvalidParams, "%+v", p)
		}
	})
}
