// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"

	"github.com/CascadiaAI/CascadiaMind/services/simulation/conflict"
)

// perspectivesCap bounds the perspectives stage contribution.
const perspectivesCap = 0.20

// Lens names, also used as branch identities by parallel exploration.
const (
	lensAnalytical = "analytical"
	lensPractical  = "practical"
	lensCreative   = "creative"
	lensCritical   = "critical"
)

// lenses in stable evaluation order.
var lenses = []string{lensAnalytical, lensPractical, lensCreative, lensCritical}

// lensWeight converts a lens support score into confidence.
const lensWeight = 0.05

// agreementBonusMax bounds the cross-lens agreement bonus.
const agreementBonusMax = 0.02

// perspectivesStage scores the query through four fixed lenses. Each
// lens yields a support score in [0,1] weighted by lensWeight, plus an
// agreement bonus scaled by the mean score so that uniformly weak
// lenses do not collect it.
type perspectivesStage struct{}

func (s *perspectivesStage) ID() string { return StagePerspectives }

func (s *perspectivesStage) Index() int { return 2 }

func (s *perspectivesStage) Execute(ctx context.Context, run *RunContext) (*StageOutcome, error) {
	scores := lensScores(run)

	sources := make([]conflict.Source, len(lenses))
	sum := 0.0
	for i, lens := range lenses {
		sources[i] = conflict.Source{ID: lens, Confidence: scores[lens]}
		sum += scores[lens]
	}
	mean := sum / float64(len(lenses))
	div := conflict.Divergence(sources)

	bonus := agreementBonusMax * mean * (1 - 2*div)
	if bonus < 0 {
		bonus = 0
	}

	return &StageOutcome{
		Contribution: capContribution(lensWeight*sum+bonus, perspectivesCap),
		Details: map[string]any{
			"scores":          scores,
			"mean":            mean,
			"divergence":      div,
			"agreement_bonus": bonus,
		},
	}, nil
}

// lensScores rates how much each lens supports the query, from the
// query shape and its taxonomy grounding.
func lensScores(run *RunContext) map[string]float64 {
	kind, question := classifyQuery(run.Query)
	topics := len(run.Topics)
	domains := len(run.Domains)
	contrast := contrastQuery(run.Query)
	long := len(run.Query) > 60

	analytical := 0.3
	if knownKind(kind) {
		analytical += 0.3
	}
	if topics >= 1 {
		analytical += 0.2
	}
	if topics >= 3 {
		analytical += 0.1
	}

	practical := 0.3
	if kind == kindDefinition || kind == kindProcess {
		practical += 0.3
	}
	if topics >= 1 {
		practical += 0.2
	}

	creative := 0.3
	if domains >= 2 {
		creative += 0.25
	}
	if topics >= 2 {
		creative += 0.15
	}
	if long {
		creative += 0.1
	}

	critical := 0.3
	if contrast {
		critical += 0.25
	}
	if question {
		critical += 0.2
	}
	if topics >= 1 {
		critical += 0.1
	}

	return map[string]float64{
		lensAnalytical: clamp01(analytical),
		lensPractical:  clamp01(practical),
		lensCreative:   clamp01(creative),
		lensCritical:   clamp01(critical),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
