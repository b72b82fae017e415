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

	"github.com/CascadiaAI/CascadiaMind/services/knowledge/algorithms"
	"github.com/CascadiaAI/CascadiaMind/services/knowledge/graph"
)

// researchCap bounds the research stage contribution.
const researchCap = 0.15

// Research sub-factor weights.
const (
	researchEvidenceMax = 0.06
	researchSurveyMax   = 0.06
	researchAuditMax    = 0.03
)

// Research trigger tuning.
const (
	// researchLowConfidence triggers research for question-shaped
	// queries still below this confidence.
	researchLowConfidence = 0.70

	// researchLongQuery triggers research on the first pass for
	// queries longer than this many characters.
	researchLongQuery = 120

	// researchEvidenceLimit caps the evidence search.
	researchEvidenceLimit = 6
)

// Research trigger reasons.
const (
	triggerKeyword   = "keyword"
	triggerLowConf   = "question_low_confidence"
	triggerLongQuery = "long_query_first_pass"
	triggerNone      = "not_triggered"
)

// researchStage conditionally gathers taxonomy evidence. Most queries
// skip it; the trigger fires on research-flavored keywords, on
// question-shaped queries that are still uncertain, and on long
// queries during the first pass.
type researchStage struct {
	taxonomy *graph.Store
	algos    AlgorithmRunner
}

func (s *researchStage) ID() string { return StageResearch }

func (s *researchStage) Index() int { return 3 }

func (s *researchStage) Execute(ctx context.Context, run *RunContext) (*StageOutcome, error) {
	reason := researchTrigger(run)
	if reason == triggerNone {
		return &StageOutcome{
			Contribution: 0,
			Details:      map[string]any{"triggered": false, "reason": reason},
		}, nil
	}

	evidence := 0.0
	hits := 0
	if s.taxonomy != nil {
		nodes := s.taxonomy.Search(run.Query, nil, researchEvidenceLimit)
		hits = len(nodes)
		evidence = researchEvidenceMax * float64(hits) / float64(researchEvidenceLimit)
	}

	req := algorithms.Request{
		Query:    run.Query,
		Topics:   run.Topics,
		Taxonomy: s.taxonomy,
	}
	survey := runAlgorithm(ctx, s.algos, algorithms.IDDomainSurvey, req)
	audit := runAlgorithm(ctx, s.algos, algorithms.IDQualityAudit, req)

	surveyFactor := researchSurveyMax * algorithmConfidence(survey)
	auditFactor := researchAuditMax * algorithmConfidence(audit)

	return &StageOutcome{
		Contribution: capContribution(evidence+surveyFactor+auditFactor, researchCap),
		Details: map[string]any{
			"triggered":     true,
			"reason":        reason,
			"evidence_hits": hits,
			"survey":        algorithmSummary(survey),
			"audit":         algorithmSummary(audit),
			"factors": map[string]float64{
				"evidence": evidence,
				"survey":   surveyFactor,
				"audit":    auditFactor,
			},
		},
	}, nil
}

// researchTrigger decides whether research runs this pass and names
// the trigger.
func researchTrigger(run *RunContext) string {
	q := strings.ToLower(run.Query)
	for _, kw := range run.Settings.ResearchKeywords {
		if strings.Contains(q, kw) {
			return triggerKeyword
		}
	}
	if _, question := classifyQuery(run.Query); question && run.Confidence() < researchLowConfidence {
		return triggerLowConf
	}
	if len(run.Query) > researchLongQuery && run.PassNumber == 1 {
		return triggerLongQuery
	}
	return triggerNone
}

// runAlgorithm executes a knowledge algorithm through the runner,
// degrading to an error result when none is wired.
func runAlgorithm(ctx context.Context, algos AlgorithmRunner, id string, req algorithms.Request) *algorithms.Result {
	if algos == nil {
		return &algorithms.Result{
			Algorithm: id,
			Status:    algorithms.StatusError,
			Err:       "algorithm registry unavailable",
		}
	}
	return algos.Execute(ctx, id, req)
}

// algorithmConfidence returns the result confidence, 0 on failure.
func algorithmConfidence(res *algorithms.Result) float64 {
	if res == nil || res.Status != algorithms.StatusOK {
		return 0
	}
	return res.Confidence
}

// algorithmSummary condenses a result for stage details.
func algorithmSummary(res *algorithms.Result) map[string]any {
	if res == nil {
		return map[string]any{"status": algorithms.StatusError}
	}
	out := map[string]any{
		"status":     res.Status,
		"confidence": res.Confidence,
		"summary":    res.Summary,
		"findings":   len(res.Findings),
	}
	if res.Err != "" {
		out["error"] = res.Err
	}
	return out
}
