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

// Stage IDs in chain order. Indexes 1-3 form the baseline chain, 4-10
// the escalation chain.
const (
	StageClassification      = "classification"
	StagePerspectives        = "perspectives"
	StageResearch            = "research"
	StageReasoning           = "reasoning"
	StageIntegration         = "integration"
	StageEnhancement         = "enhancement"
	StageDeepExploration     = "deep_exploration"
	StageParallelExploration = "parallel_exploration"
	StageRecursiveRefinement = "recursive_refinement"
	StageContainment         = "containment"
)

// baselineEndIndex is the last baseline stage index.
const baselineEndIndex = 3

// Stage is one step of the simulation chain.
//
// Description:
//
//	A stage reads the run context (query, topics, upstream stage
//	results) and computes a bounded confidence contribution for the
//	current state of the context. Stages may also record emergence
//	bookkeeping (signals, awareness, self-modifications) through the
//	context's methods. Stages must not mutate the confidence or status
//	directly; the engine applies contributions through
//	RunContext.AdjustConfidence at the stage boundary.
//
// Thread Safety: Execute is called sequentially within a run but may
// run concurrently across runs; implementations must not carry
// per-run state in the stage struct.
type Stage interface {
	// ID returns the stage identifier used in results and logs.
	ID() string

	// Index returns the 1-based chain position.
	Index() int

	// Execute computes the stage's contribution for the current
	// context. Returning an error records a "<stage_id>_error" marker
	// and the pipeline continues; context cancellation errors abort
	// the run instead.
	Execute(ctx context.Context, run *RunContext) (*StageOutcome, error)
}

// StageOutcome is what a stage hands back to the engine.
type StageOutcome struct {
	// Contribution is the stage's confidence level for the current
	// context, already bounded by the stage cap. The engine applies
	// the delta against the stage's previous level so that re-running
	// an unchanged context does not inflate confidence.
	Contribution float64

	// Details is the stage-specific payload stored in the result.
	Details map[string]any
}

// defaultStages assembles the canonical ten-stage chain.
func defaultStages(e *Engine) []Stage {
	return []Stage{
		&classificationStage{taxonomy: e.taxonomy},
		&perspectivesStage{},
		&researchStage{taxonomy: e.taxonomy, algos: e.algos},
		&reasoningStage{rules: defaultRules()},
		&integrationStage{taxonomy: e.taxonomy, algos: e.algos},
		&enhancementStage{taxonomy: e.taxonomy, algos: e.algos},
		&deepExplorationStage{taxonomy: e.taxonomy},
		&parallelExplorationStage{taxonomy: e.taxonomy},
		&refinementStage{},
		&containmentStage{},
	}
}

// ============================================================================
// QUERY ANALYSIS
// ============================================================================

// Query kinds derived from the leading question word.
const (
	kindDefinition = "definition"
	kindProcess    = "process"
	kindCausal     = "causal"
	kindFactual    = "factual"
	kindStatement  = "statement"
)

// classifyQuery derives the query kind from its leading token and
// reports whether the query is phrased as a question.
func classifyQuery(query string) (kind string, question bool) {
	trimmed := strings.TrimSpace(query)
	question = strings.HasSuffix(trimmed, "?")
	tokens := graph.Tokenize(trimmed)
	if len(tokens) == 0 {
		return kindStatement, question
	}
	switch tokens[0] {
	case "what", "which", "define":
		return kindDefinition, true
	case "how":
		return kindProcess, true
	case "why":
		return kindCausal, true
	case "when", "where", "who":
		return kindFactual, true
	}
	return kindStatement, question
}

// knownKind reports whether the kind carries structural signal.
func knownKind(kind string) bool {
	return kind != kindStatement
}

// contrastWords mark queries asking for a comparison or critique.
var contrastWords = []string{"versus", " vs ", "compare", "better", "worse", "tradeoff", "trade-off"}

// contrastQuery reports whether the query asks for a comparison.
func contrastQuery(query string) bool {
	q := strings.ToLower(query)
	for _, w := range contrastWords {
		if strings.Contains(q, w) {
			return true
		}
	}
	return false
}

// resolveTopics returns the run's anchored topics, searching the
// taxonomy afresh when classification has not resolved any.
func resolveTopics(taxonomy *graph.Store, run *RunContext, limit int) []string {
	if len(run.Topics) > 0 {
		return run.Topics
	}
	if taxonomy == nil {
		return nil
	}
	nodes := taxonomy.Search(run.Query, nil, limit)
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

// topicDomains returns the distinct domains of the given topics, in
// first-seen order.
func topicDomains(taxonomy *graph.Store, topics []string) []string {
	if taxonomy == nil {
		return nil
	}
	var out []string
	seen := make(map[string]bool, len(topics))
	for _, id := range topics {
		n, ok := taxonomy.GetNode(id)
		if !ok || n.Domain == "" || seen[n.Domain] {
			continue
		}
		seen[n.Domain] = true
		out = append(out, n.Domain)
	}
	return out
}

// detailFloat reads a float64 from a stage result's details.
func detailFloat(res *StageResult, key string) (float64, bool) {
	if res == nil || res.Details == nil {
		return 0, false
	}
	v, ok := res.Details[key].(float64)
	return v, ok
}

// detailBool reads a bool from a stage result's details.
func detailBool(res *StageResult, key string) (bool, bool) {
	if res == nil || res.Details == nil {
		return false, false
	}
	v, ok := res.Details[key].(bool)
	return v, ok
}

// capContribution bounds a stage contribution to [0, limit].
func capContribution(v, limit float64) float64 {
	if v < 0 {
		return 0
	}
	if v > limit {
		return limit
	}
	return v
}
