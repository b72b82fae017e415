// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"

	"github.com/CascadiaAI/CascadiaMind/services/knowledge/algorithms"
	"github.com/CascadiaAI/CascadiaMind/services/knowledge/graph"
	"github.com/CascadiaAI/CascadiaMind/services/simulation/conflict"
)

// integrationCap bounds the integration stage contribution.
const integrationCap = 0.18

// Integration sub-factor weights.
const (
	integrationCrossMax = 0.12
	integrationSynthMax = 0.06
)

// integrationUpstream are the stages whose results integration
// cross-validates, with the caps used to normalize their levels.
var integrationUpstream = map[string]float64{
	StagePerspectives: perspectivesCap,
	StageResearch:     researchCap,
	StageReasoning:    reasoningCap,
}

// integrationStage cross-validates the upstream evidence. Normalized
// upstream levels are treated as independent estimates: the
// contribution grows with their mean strength, shrinks with their
// spread, and adds a synthesis bonus from the cross-domain algorithm.
type integrationStage struct {
	taxonomy *graph.Store
	algos    AlgorithmRunner
}

func (s *integrationStage) ID() string { return StageIntegration }

func (s *integrationStage) Index() int { return 5 }

func (s *integrationStage) Execute(ctx context.Context, run *RunContext) (*StageOutcome, error) {
	var sources []conflict.Source
	norms := make(map[string]float64, len(integrationUpstream))
	for id, limit := range integrationUpstream {
		res, ok := run.StageResults[id]
		if !ok || res.Err != "" {
			continue
		}
		if id == StageResearch {
			if triggered, ok := detailBool(res, "triggered"); !ok || !triggered {
				continue
			}
		}
		norm := clamp01(res.Contribution / limit)
		norms[id] = norm
		sources = append(sources, conflict.Source{ID: id, Confidence: norm})
	}

	cross := 0.0
	spread := 0.0
	mean := 0.0
	if len(sources) > 0 {
		for _, src := range sources {
			mean += src.Confidence
		}
		mean /= float64(len(sources))
		spread = conflict.Divergence(sources)
		coherence := 1 - 2*spread
		if coherence < 0 {
			coherence = 0
		}
		cross = integrationCrossMax * mean * coherence
	}

	synth := runAlgorithm(ctx, s.algos, algorithms.IDCrossDomainSynthesis, algorithms.Request{
		Query:    run.Query,
		Topics:   run.Topics,
		Taxonomy: s.taxonomy,
	})
	synthFactor := integrationSynthMax * algorithmConfidence(synth)

	return &StageOutcome{
		Contribution: capContribution(cross+synthFactor, integrationCap),
		Details: map[string]any{
			"upstream":   norms,
			"mean":       mean,
			"divergence": spread,
			"synthesis":  algorithmSummary(synth),
			"factors": map[string]float64{
				"cross_validation": cross,
				"synthesis":        synthFactor,
			},
		},
	}, nil
}
