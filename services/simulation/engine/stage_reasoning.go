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
	"sort"

	"github.com/CascadiaAI/CascadiaMind/services/simulation/conflict"
)

// reasoningCap bounds the reasoning stage contribution.
const reasoningCap = 0.15

// Inference is one rule's conclusion about the query.
type Inference struct {
	// Claim is the human-readable conclusion.
	Claim string `json:"claim"`

	// Confidence is the rule's confidence in the claim, in [0,1].
	Confidence float64 `json:"confidence"`
}

// Rule is one entry of the reasoning rule table. Rules are evaluated
// in descending priority order; every applicable rule fires.
type Rule interface {
	// ID names the rule in results and logs.
	ID() string

	// Priority orders evaluation, highest first.
	Priority() int

	// Applies reports whether the rule fires for this context.
	Applies(run *RunContext) bool

	// Infer produces the rule's conclusion. Called only when Applies
	// returned true.
	Infer(run *RunContext) Inference
}

// funcRule adapts closures to the Rule interface.
type funcRule struct {
	id       string
	priority int
	applies  func(*RunContext) bool
	infer    func(*RunContext) Inference
}

func (r *funcRule) ID() string                      { return r.id }
func (r *funcRule) Priority() int                   { return r.priority }
func (r *funcRule) Applies(run *RunContext) bool    { return r.applies(run) }
func (r *funcRule) Infer(run *RunContext) Inference { return r.infer(run) }

// defaultRules builds the stock rule table, sorted by priority.
func defaultRules() []Rule {
	rules := []Rule{
		&funcRule{
			id:       "taxonomy_anchored",
			priority: 90,
			applies:  func(run *RunContext) bool { return len(run.Topics) > 0 },
			infer: func(run *RunContext) Inference {
				conf := 0.7 + 0.05*float64(len(run.Topics))
				if conf > 0.9 {
					conf = 0.9
				}
				return Inference{
					Claim:      fmt.Sprintf("query anchors %d taxonomy concepts", len(run.Topics)),
					Confidence: conf,
				}
			},
		},
		&funcRule{
			id:       "cross_domain",
			priority: 80,
			applies:  func(run *RunContext) bool { return len(run.Domains) >= 2 },
			infer: func(run *RunContext) Inference {
				return Inference{
					Claim:      fmt.Sprintf("query spans %d domains", len(run.Domains)),
					Confidence: 0.75,
				}
			},
		},
		&funcRule{
			id:       "causal_frame",
			priority: 70,
			applies: func(run *RunContext) bool {
				kind, _ := classifyQuery(run.Query)
				return kind == kindCausal || kind == kindProcess
			},
			infer: func(run *RunContext) Inference {
				return Inference{Claim: "query asks for a mechanism", Confidence: 0.7}
			},
		},
		&funcRule{
			id:       "perspective_agreement",
			priority: 60,
			applies: func(run *RunContext) bool {
				res := run.StageResults[StagePerspectives]
				div, okDiv := detailFloat(res, "divergence")
				mean, okMean := detailFloat(res, "mean")
				return okDiv && okMean && div < 0.15 && mean >= 0.55
			},
			infer: func(run *RunContext) Inference {
				return Inference{Claim: "perspective lenses agree", Confidence: 0.8}
			},
		},
		&funcRule{
			id:       "sparse_evidence",
			priority: 50,
			applies:  func(run *RunContext) bool { return len(run.Topics) == 0 },
			infer: func(run *RunContext) Inference {
				return Inference{Claim: "query has no taxonomy grounding", Confidence: 0.3}
			},
		},
	}
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority() > rules[j].Priority()
	})
	return rules
}

// reasoningStage fires the rule table and reconciles the fired
// inferences through the configured conflict strategy. The
// contribution scales with the reconciled confidence and shrinks with
// inter-rule divergence.
type reasoningStage struct {
	rules []Rule
}

func (s *reasoningStage) ID() string { return StageReasoning }

func (s *reasoningStage) Index() int { return 4 }

func (s *reasoningStage) Execute(ctx context.Context, run *RunContext) (*StageOutcome, error) {
	var (
		sources []conflict.Source
		fired   []map[string]any
	)
	for _, rule := range s.rules {
		if !rule.Applies(run) {
			continue
		}
		inf := rule.Infer(run)
		sources = append(sources, conflict.Source{
			ID:         rule.ID(),
			Claim:      inf.Claim,
			Confidence: inf.Confidence,
		})
		fired = append(fired, map[string]any{
			"rule":       rule.ID(),
			"claim":      inf.Claim,
			"confidence": inf.Confidence,
		})
	}
	if len(sources) == 0 {
		return &StageOutcome{
			Contribution: 0,
			Details:      map[string]any{"fired": 0},
		}, nil
	}

	res, err := conflict.Reconcile(sources, run.Settings.ConflictStrategy, run.Settings.DivergenceThreshold)
	if err != nil {
		return nil, fmt.Errorf("reconcile inferences: %w", err)
	}

	agreementScale := 1 - res.Divergence
	if agreementScale < 0.5 {
		agreementScale = 0.5
	}

	return &StageOutcome{
		Contribution: capContribution(reasoningCap*res.Confidence*agreementScale, reasoningCap),
		Details: map[string]any{
			"fired":      len(sources),
			"rules":      fired,
			"strategy":   string(res.Strategy),
			"confidence": res.Confidence,
			"divergence": res.Divergence,
			"diverged":   res.Diverged,
			"accepted":   res.Accepted,
			"chosen":     res.ChosenID,
		},
	}, nil
}
