// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"strings"

	"github.com/CascadiaAI/CascadiaMind/services/knowledge/graph"
)

// classificationCap bounds the classification stage contribution.
const classificationCap = 0.08

// Classification sub-factor weights.
const (
	classKindKnown     = 0.03
	classKindStatement = 0.01
	classLengthBand    = 0.01
	classWellFormed    = 0.01
	classPerAnchor     = 0.01
	classAnchorMax     = 0.03
)

// classAnchorLimit caps how many taxonomy anchors are resolved.
const classAnchorLimit = 5

// classificationStage derives the query kind, checks structural
// clarity and anchors the query into the taxonomy. The resolved
// topics are published on the context for downstream stages.
type classificationStage struct {
	taxonomy *graph.Store
}

func (s *classificationStage) ID() string { return StageClassification }

func (s *classificationStage) Index() int { return 1 }

func (s *classificationStage) Execute(ctx context.Context, run *RunContext) (*StageOutcome, error) {
	kind, question := classifyQuery(run.Query)

	kindFactor := classKindStatement
	if knownKind(kind) {
		kindFactor = classKindKnown
	}

	clarity := 0.0
	trimmed := strings.TrimSpace(run.Query)
	if n := len(trimmed); n >= 8 && n <= 200 {
		clarity += classLengthBand
	}
	tokens := graph.Tokenize(trimmed)
	if question || len(tokens) >= 3 {
		clarity += classWellFormed
	}

	var topics []string
	anchorFactor := 0.0
	if s.taxonomy != nil {
		nodes := s.taxonomy.Search(run.Query, nil, classAnchorLimit)
		topics = make([]string, len(nodes))
		for i, n := range nodes {
			topics[i] = n.ID
		}
		anchorFactor = classPerAnchor * float64(len(nodes))
		if anchorFactor > classAnchorMax {
			anchorFactor = classAnchorMax
		}
	}
	run.Topics = topics
	run.Domains = topicDomains(s.taxonomy, topics)

	return &StageOutcome{
		Contribution: capContribution(kindFactor+clarity+anchorFactor, classificationCap),
		Details: map[string]any{
			"kind":     kind,
			"question": question,
			"topics":   topics,
			"domains":  run.Domains,
			"factors": map[string]float64{
				"kind":      kindFactor,
				"clarity":   clarity,
				"anchoring": anchorFactor,
			},
		},
	}, nil
}
