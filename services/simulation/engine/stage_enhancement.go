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
)

// enhancementCap bounds the enhancement stage contribution.
const enhancementCap = 0.12

// Enhancement sub-factor weights.
const (
	enhanceCompletenessMax = 0.05
	enhanceSupportMax      = 0.04
	enhanceConsistencyMax  = 0.03
)

// Weak areas the enhancement audit can record.
const (
	weakTerminology = "terminology_coverage"
	weakGrounding   = "taxonomy_grounding"
	weakEvidence    = "external_evidence"
	weakConsistency = "internal_consistency"
)

// enhancementStage audits answer quality. Every factor scales with
// the audit score so that ungrounded queries gain nothing here. The
// detected gaps are recorded as weak areas for the refinement stage.
type enhancementStage struct {
	taxonomy *graph.Store
	algos    AlgorithmRunner
}

func (s *enhancementStage) ID() string { return StageEnhancement }

func (s *enhancementStage) Index() int { return 6 }

func (s *enhancementStage) Execute(ctx context.Context, run *RunContext) (*StageOutcome, error) {
	audit := runAlgorithm(ctx, s.algos, algorithms.IDQualityAudit, algorithms.Request{
		Query:    run.Query,
		Topics:   run.Topics,
		Taxonomy: s.taxonomy,
	})
	quality := algorithmConfidence(audit)

	completeness := enhanceCompletenessMax * quality

	supported := float64(len(run.Topics))
	if supported > 3 {
		supported = 3
	}
	support := enhanceSupportMax * supported / 3

	consistency := enhanceConsistencyMax * quality
	if run.ErrorCount() > 0 {
		consistency = enhanceConsistencyMax * quality / 3
	}

	var weak []string
	if quality < 0.5 {
		weak = append(weak, weakTerminology)
	}
	if len(run.Topics) == 0 {
		weak = append(weak, weakGrounding)
	}
	if res, ok := run.StageResults[StageResearch]; !ok {
		weak = append(weak, weakEvidence)
	} else if triggered, ok := detailBool(res, "triggered"); !ok || !triggered {
		weak = append(weak, weakEvidence)
	}
	if res, ok := run.StageResults[StageReasoning]; ok {
		if diverged, ok := detailBool(res, "diverged"); ok && diverged {
			weak = append(weak, weakConsistency)
		}
	}
	run.AddWeakAreas(weak...)

	return &StageOutcome{
		Contribution: capContribution(completeness+support+consistency, enhancementCap),
		Details: map[string]any{
			"audit":      algorithmSummary(audit),
			"weak_areas": weak,
			"factors": map[string]float64{
				"completeness": completeness,
				"support":      support,
				"consistency":  consistency,
			},
		},
	}, nil
}
