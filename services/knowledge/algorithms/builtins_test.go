// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package algorithms

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/CascadiaAI/CascadiaMind/services/knowledge/graph"
)

// Helper function to create a taxonomy Store with two domains (alpha,
// beta), a causal chain heat -> motion -> sound, and one cross-domain
// bridge (motion -> sound).
func makeTaxonomy(t *testing.T) *graph.Store {
	t.Helper()

	g := graph.New()
	nodes := []*graph.Node{
		{ID: "alpha", Label: "Alpha", Kind: graph.NodeKindDomain, Weight: 0.9},
		{ID: "beta", Label: "Beta", Kind: graph.NodeKindDomain, Weight: 0.8},
		{ID: "heat", Label: "Heat", Kind: graph.NodeKindConcept, Domain: "alpha", Weight: 0.7, Terms: []string{"thermal"}},
		{ID: "motion", Label: "Motion", Kind: graph.NodeKindConcept, Domain: "alpha", Weight: 0.6},
		{ID: "sound", Label: "Sound", Kind: graph.NodeKindConcept, Domain: "beta", Weight: 0.5, Terms: []string{"acoustic"}},
	}
	for _, n := range nodes {
		if err := g.AddNode(n); err != nil {
			t.Fatalf("AddNode(%s) failed: %v", n.ID, err)
		}
	}

	edges := []*graph.Edge{
		{FromID: "alpha", ToID: "heat", Relation: graph.RelationContains, Weight: 1},
		{FromID: "alpha", ToID: "motion", Relation: graph.RelationContains, Weight: 1},
		{FromID: "beta", ToID: "sound", Relation: graph.RelationContains, Weight: 1},
		{FromID: "heat", ToID: "motion", Relation: graph.RelationCauses, Weight: 0.8},
		{FromID: "motion", ToID: "sound", Relation: graph.RelationCauses, Weight: 0.6},
	}
	for _, e := range edges {
		if err := g.AddEdge(e); err != nil {
			t.Fatalf("AddEdge(%s->%s) failed: %v", e.FromID, e.ToID, err)
		}
	}

	g.Freeze()
	return graph.NewStore(g)
}

func execBuiltin(t *testing.T, id string, req Request) *Result {
	t.Helper()
	res := NewRegistry().Execute(context.Background(), id, req)
	if res == nil {
		t.Fatalf("Execute(%s) returned nil", id)
	}
	return res
}

func TestBuiltins_MissingTaxonomy(t *testing.T) {
	for _, id := range NewRegistry().IDs() {
		res := execBuiltin(t, id, Request{Query: "heat"})
		if res.Status != StatusError {
			t.Errorf("%s: Status = %q, expected %q without a taxonomy", id, res.Status, StatusError)
		}
		if !strings.Contains(res.Err, "taxonomy unavailable") {
			t.Errorf("%s: Err = %q", id, res.Err)
		}
	}
}

func TestDomainSurvey(t *testing.T) {
	store := makeTaxonomy(t)

	res := execBuiltin(t, IDDomainSurvey, Request{
		Topics:   []string{"heat", "sound"},
		Taxonomy: store,
	})
	if res.Status != StatusOK {
		t.Fatalf("Status = %q: %s", res.Status, res.Err)
	}
	if res.Confidence != 1 {
		t.Errorf("full coverage Confidence = %v, expected 1", res.Confidence)
	}
	if res.Summary != "query touches 2 of 2 domains" {
		t.Errorf("Summary = %q", res.Summary)
	}
	if len(res.Findings) != 2 {
		t.Fatalf("got %d findings, expected 2: %+v", len(res.Findings), res.Findings)
	}
	if res.Findings[0].Topic != "alpha" || res.Findings[1].Topic != "beta" {
		t.Errorf("Findings = %+v, expected alpha then beta", res.Findings)
	}
	if res.Findings[0].Score != 0.5 {
		t.Errorf("Findings[0].Score = %v, expected 0.5", res.Findings[0].Score)
	}

	// Half coverage: both topics anchor in alpha.
	res = execBuiltin(t, IDDomainSurvey, Request{
		Topics:   []string{"heat", "motion"},
		Taxonomy: store,
	})
	if math.Abs(res.Confidence-0.65) > 1e-9 {
		t.Errorf("half coverage Confidence = %v, expected 0.65", res.Confidence)
	}
	if len(res.Findings) != 1 || res.Findings[0].Score != 1 {
		t.Errorf("Findings = %+v, expected single alpha finding with score 1", res.Findings)
	}

	// A domain node anchors in itself.
	res = execBuiltin(t, IDDomainSurvey, Request{
		Topics:   []string{"beta"},
		Taxonomy: store,
	})
	if len(res.Findings) != 1 || res.Findings[0].Topic != "beta" {
		t.Errorf("domain topic Findings = %+v", res.Findings)
	}

	// Unknown topics leave no anchors.
	res = execBuiltin(t, IDDomainSurvey, Request{
		Topics:   []string{"ghost"},
		Taxonomy: store,
	})
	if res.Confidence != 0 || res.Summary != "query has no domain anchors" {
		t.Errorf("unanchored result = %v / %q", res.Confidence, res.Summary)
	}
}

func TestCausalChains(t *testing.T) {
	store := makeTaxonomy(t)

	res := execBuiltin(t, IDCausalChains, Request{
		Topics:   []string{"heat"},
		Taxonomy: store,
	})
	if res.Status != StatusOK {
		t.Fatalf("Status = %q: %s", res.Status, res.Err)
	}
	if len(res.Findings) != 1 {
		t.Fatalf("got %d findings, expected 1: %+v", len(res.Findings), res.Findings)
	}
	f := res.Findings[0]
	if f.Detail != "heat -> motion -> sound" {
		t.Errorf("chain = %q, expected %q", f.Detail, "heat -> motion -> sound")
	}
	if f.Score != 0.6 {
		t.Errorf("chain score = %v, expected weakest-link 0.6", f.Score)
	}
	if math.Abs(res.Confidence-0.46) > 1e-9 {
		t.Errorf("Confidence = %v, expected 0.46", res.Confidence)
	}

	// Two roots produce two distinct chains.
	res = execBuiltin(t, IDCausalChains, Request{
		Topics:   []string{"heat", "motion"},
		Taxonomy: store,
	})
	if len(res.Findings) != 2 {
		t.Fatalf("got %d findings, expected 2: %+v", len(res.Findings), res.Findings)
	}
	if res.Findings[0].Topic != "heat" || res.Findings[1].Detail != "motion -> sound" {
		t.Errorf("Findings = %+v", res.Findings)
	}

	// A terminal node has no chains.
	res = execBuiltin(t, IDCausalChains, Request{
		Topics:   []string{"sound"},
		Taxonomy: store,
	})
	if res.Confidence != 0 || len(res.Findings) != 0 {
		t.Errorf("terminal topic result = %v / %+v", res.Confidence, res.Findings)
	}
}

func TestCrossDomainSynthesis(t *testing.T) {
	store := makeTaxonomy(t)

	res := execBuiltin(t, IDCrossDomainSynthesis, Request{
		Topics:   []string{"heat", "sound"},
		Taxonomy: store,
	})
	if res.Status != StatusOK {
		t.Fatalf("Status = %q: %s", res.Status, res.Err)
	}
	if len(res.Findings) != 1 {
		t.Fatalf("got %d findings, expected 1: %+v", len(res.Findings), res.Findings)
	}
	if res.Findings[0].Detail != "motion (alpha) causes sound (beta)" {
		t.Errorf("bridge = %q", res.Findings[0].Detail)
	}
	if math.Abs(res.Confidence-0.49) > 1e-9 {
		t.Errorf("Confidence = %v, expected 0.49", res.Confidence)
	}

	// A single-domain query still surfaces bridges anchored there.
	res = execBuiltin(t, IDCrossDomainSynthesis, Request{
		Topics:   []string{"heat"},
		Taxonomy: store,
	})
	if len(res.Findings) != 1 {
		t.Errorf("anchored bridges = %+v, expected 1", res.Findings)
	}

	// No topics, nothing to bridge.
	res = execBuiltin(t, IDCrossDomainSynthesis, Request{Taxonomy: store})
	if res.Confidence != 0 || res.Summary != "no taxonomy anchors to bridge" {
		t.Errorf("empty result = %v / %q", res.Confidence, res.Summary)
	}
}

func TestQualityAudit(t *testing.T) {
	store := makeTaxonomy(t)

	res := execBuiltin(t, IDQualityAudit, Request{
		Query:    "how does heat cause sound",
		Taxonomy: store,
	})
	if res.Status != StatusOK {
		t.Fatalf("Status = %q: %s", res.Status, res.Err)
	}
	if math.Abs(res.Confidence-0.4) > 1e-9 {
		t.Errorf("Confidence = %v, expected 0.4 (2 of 5 terms)", res.Confidence)
	}
	if res.Summary != "2 of 5 query terms resolve to the taxonomy" {
		t.Errorf("Summary = %q", res.Summary)
	}
	unresolved := make([]string, 0, len(res.Findings))
	for _, f := range res.Findings {
		unresolved = append(unresolved, f.Topic)
	}
	if len(unresolved) != 3 || unresolved[0] != "how" || unresolved[2] != "cause" {
		t.Errorf("unresolved terms = %v", unresolved)
	}

	// Aliases resolve, near-misses do not.
	res = execBuiltin(t, IDQualityAudit, Request{
		Query:    "thermal acoustics",
		Taxonomy: store,
	})
	if res.Confidence != 0.5 {
		t.Errorf("alias Confidence = %v, expected 0.5", res.Confidence)
	}

	// Empty and punctuation-only queries are flagged, not failed.
	for _, q := range []string{"", "a ? !"} {
		res = execBuiltin(t, IDQualityAudit, Request{Query: q, Taxonomy: store})
		if res.Status != StatusOK || res.Confidence != 0 {
			t.Errorf("query %q = %s/%v", q, res.Status, res.Confidence)
		}
		if res.Summary != "query has no analyzable terms" {
			t.Errorf("query %q Summary = %q", q, res.Summary)
		}
	}
}

func TestRequest_MaxFindingsCap(t *testing.T) {
	store := makeTaxonomy(t)

	res := execBuiltin(t, IDQualityAudit, Request{
		Query:       "zz yy xx ww vv",
		MaxFindings: 2,
		Taxonomy:    store,
	})
	if len(res.Findings) != 2 {
		t.Errorf("got %d findings, expected cap at 2", len(res.Findings))
	}
	if res.Confidence != 0 {
		t.Errorf("Confidence = %v, expected 0", res.Confidence)
	}
}

func TestBuiltins_AgainstDefaultSeed(t *testing.T) {
	store := graph.NewStore(graph.MustDefault())
	reg := NewRegistry()

	topics := make([]string, 0, 4)
	for _, n := range store.Search("entropy energy awareness", nil, 4) {
		topics = append(topics, n.ID)
	}
	if len(topics) == 0 {
		t.Fatal("default seed resolved no topics")
	}

	req := Request{Query: "how does entropy relate to energy and awareness", Topics: topics, Taxonomy: store}
	for _, res := range reg.ExecuteBattery(context.Background(), reg.IDs(), req) {
		if res.Status != StatusOK {
			t.Errorf("%s: Status = %q: %s", res.Algorithm, res.Status, res.Err)
			continue
		}
		if res.Confidence <= 0 {
			t.Errorf("%s: Confidence = %v, expected a positive signal", res.Algorithm, res.Confidence)
		}
	}
}
