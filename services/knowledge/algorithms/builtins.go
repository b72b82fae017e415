// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package algorithms

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/CascadiaAI/CascadiaMind/services/knowledge/graph"
)

// =============================================================================
// DOMAIN SURVEY
// =============================================================================

// domainSurvey maps the query topics onto the taxonomy's domains and
// reports coverage. Broad questions that anchor in several domains
// score higher than ones confined to a single corner.
type domainSurvey struct{}

func (a *domainSurvey) ID() string { return IDDomainSurvey }

func (a *domainSurvey) Description() string {
	return "maps query topics onto taxonomy domains and measures coverage"
}

func (a *domainSurvey) Run(_ context.Context, req Request) (*Result, error) {
	if req.Taxonomy == nil {
		return nil, errors.New("taxonomy unavailable")
	}
	snap := req.Taxonomy.Snapshot()

	all := snap.Domains()
	if len(all) == 0 {
		return &Result{Status: StatusOK, Summary: "taxonomy has no domains"}, nil
	}

	counts := make(map[string]int)
	for _, id := range req.Topics {
		n, ok := snap.GetNode(id)
		if !ok {
			continue
		}
		d := n.Domain
		if n.Kind == graph.NodeKindDomain {
			d = n.ID
		}
		if d != "" {
			counts[d]++
		}
	}
	if len(counts) == 0 {
		return &Result{Status: StatusOK, Summary: "query has no domain anchors"}, nil
	}

	findings := make([]Finding, 0, len(counts))
	for _, d := range all {
		c, ok := counts[d]
		if !ok {
			continue
		}
		findings = append(findings, Finding{
			Topic:  d,
			Detail: fmt.Sprintf("%d of %d query topics anchor in %s", c, len(req.Topics), d),
			Score:  float64(c) / float64(len(req.Topics)),
		})
	}
	sortFindings(findings)
	findings = capFindings(findings, req.maxFindings())

	coverage := float64(len(counts)) / float64(len(all))
	return &Result{
		Status:     StatusOK,
		Confidence: clamp01(0.3 + 0.7*coverage),
		Summary:    fmt.Sprintf("query touches %d of %d domains", len(counts), len(all)),
		Findings:   findings,
	}, nil
}

// =============================================================================
// CAUSAL CHAINS
// =============================================================================

// causalChains walks causes and enables edges outward from each query
// topic and reports the maximal chains it finds. Chain scores carry the
// weakest link's weight.
type causalChains struct{}

// Causal walk limits. Chains longer than three hops read as noise.
const (
	causalMaxRoots = 4
	causalMaxDepth = 3
)

func (a *causalChains) ID() string { return IDCausalChains }

func (a *causalChains) Description() string {
	return "follows causal and enabling links outward from the query topics"
}

func (a *causalChains) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Taxonomy == nil {
		return nil, errors.New("taxonomy unavailable")
	}
	snap := req.Taxonomy.Snapshot()

	type frame struct {
		node   string
		path   []string
		weight float64
		depth  int
	}

	roots := req.Topics
	if len(roots) > causalMaxRoots {
		roots = roots[:causalMaxRoots]
	}

	var findings []Finding
	seen := make(map[string]bool)
	for _, root := range roots {
		if _, ok := snap.GetNode(root); !ok {
			continue
		}
		stack := []frame{{node: root, path: []string{root}, weight: 1}}
		for len(stack) > 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			extended := false
			if top.depth < causalMaxDepth {
				for _, e := range causalOut(snap, top.node) {
					if containsID(top.path, e.ToID) {
						continue
					}
					path := append(append([]string{}, top.path...), e.ToID)
					w := top.weight
					if e.Weight < w {
						w = e.Weight
					}
					stack = append(stack, frame{node: e.ToID, path: path, weight: w, depth: top.depth + 1})
					extended = true
				}
			}
			if !extended && len(top.path) >= 2 {
				chain := strings.Join(top.path, " -> ")
				if !seen[chain] {
					seen[chain] = true
					findings = append(findings, Finding{Topic: root, Detail: chain, Score: top.weight})
				}
			}
		}
	}

	if len(findings) == 0 {
		return &Result{Status: StatusOK, Summary: "no causal structure reachable from query topics"}, nil
	}
	sortFindings(findings)

	var total float64
	for _, f := range findings {
		total += f.Score
	}
	avg := total / float64(len(findings))
	n := float64(len(findings))
	if n > 5 {
		n = 5
	}

	findings = capFindings(findings, req.maxFindings())
	return &Result{
		Status:     StatusOK,
		Confidence: clamp01(0.2 + 0.08*n + 0.3*avg),
		Summary:    fmt.Sprintf("traced %d causal chains", len(seen)),
		Findings:   findings,
	}, nil
}

// causalOut returns the outgoing causes and enables edges of a node.
func causalOut(g *graph.Graph, id string) []*graph.Edge {
	edges := g.GetConnected(id, graph.RelationCauses, graph.DirectionOut)
	return append(edges, g.GetConnected(id, graph.RelationEnables, graph.DirectionOut)...)
}

// =============================================================================
// CROSS-DOMAIN SYNTHESIS
// =============================================================================

// crossDomainSynthesis looks for taxonomy edges that bridge the domains
// the query anchors in. Bridges are the raw material for analogies, so
// a well-connected query scores higher.
type crossDomainSynthesis struct{}

func (a *crossDomainSynthesis) ID() string { return IDCrossDomainSynthesis }

func (a *crossDomainSynthesis) Description() string {
	return "finds taxonomy edges bridging the query's domains"
}

func (a *crossDomainSynthesis) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Taxonomy == nil {
		return nil, errors.New("taxonomy unavailable")
	}
	snap := req.Taxonomy.Snapshot()

	domains := topicDomains(snap, req.Topics)
	if len(domains) == 0 {
		return &Result{Status: StatusOK, Summary: "no taxonomy anchors to bridge"}, nil
	}

	var bridges []*graph.Edge
	seen := make(map[string]bool)
	if len(domains) == 1 {
		es, err := snap.DomainBridges(ctx, domains[0], "")
		if err != nil {
			return nil, err
		}
		bridges = es
	} else {
		for i := 0; i < len(domains); i++ {
			for j := i + 1; j < len(domains); j++ {
				es, err := snap.DomainBridges(ctx, domains[i], domains[j])
				if err != nil {
					return nil, err
				}
				for _, e := range es {
					key := e.FromID + "|" + e.ToID + "|" + e.Relation.String()
					if !seen[key] {
						seen[key] = true
						bridges = append(bridges, e)
					}
				}
			}
		}
	}

	if len(bridges) == 0 {
		return &Result{
			Status:     StatusOK,
			Confidence: 0.1,
			Summary:    fmt.Sprintf("no bridging edges among domains %s", strings.Join(domains, ", ")),
		}, nil
	}

	findings := make([]Finding, 0, len(bridges))
	var total float64
	for _, e := range bridges {
		findings = append(findings, Finding{
			Topic:  e.FromID,
			Detail: bridgeDetail(snap, e),
			Score:  e.Weight,
		})
		total += e.Weight
	}
	sortFindings(findings)
	avg := total / float64(len(bridges))
	n := float64(len(bridges))
	if n > 4 {
		n = 4
	}

	findings = capFindings(findings, req.maxFindings())
	return &Result{
		Status:     StatusOK,
		Confidence: clamp01(0.25 + 0.12*n + 0.2*avg),
		Summary:    fmt.Sprintf("found %d bridges across %d domains", len(bridges), len(domains)),
		Findings:   findings,
	}, nil
}

// topicDomains returns the ordered unique domains the topics anchor in.
func topicDomains(g *graph.Graph, topics []string) []string {
	var domains []string
	seen := make(map[string]bool)
	for _, id := range topics {
		n, ok := g.GetNode(id)
		if !ok {
			continue
		}
		d := n.Domain
		if n.Kind == graph.NodeKindDomain {
			d = n.ID
		}
		if d != "" && !seen[d] {
			seen[d] = true
			domains = append(domains, d)
		}
	}
	return domains
}

func bridgeDetail(g *graph.Graph, e *graph.Edge) string {
	return fmt.Sprintf("%s (%s) %s %s (%s)",
		e.FromID, nodeDomainLabel(g, e.FromID),
		e.Relation.String(),
		e.ToID, nodeDomainLabel(g, e.ToID),
	)
}

func nodeDomainLabel(g *graph.Graph, id string) string {
	n, ok := g.GetNode(id)
	if !ok {
		return "?"
	}
	if n.Kind == graph.NodeKindDomain {
		return n.ID
	}
	return n.Domain
}

// =============================================================================
// QUALITY AUDIT
// =============================================================================

// qualityAudit measures how much of the query the taxonomy actually
// understands. A low resolution ratio warns the caller that downstream
// signals rest on thin evidence.
type qualityAudit struct{}

func (a *qualityAudit) ID() string { return IDQualityAudit }

func (a *qualityAudit) Description() string {
	return "measures how well the query's terms resolve to the taxonomy"
}

func (a *qualityAudit) Run(_ context.Context, req Request) (*Result, error) {
	if req.Taxonomy == nil {
		return nil, errors.New("taxonomy unavailable")
	}
	snap := req.Taxonomy.Snapshot()

	tokens := graph.Tokenize(req.Query)
	if len(tokens) == 0 {
		return &Result{Status: StatusOK, Summary: "query has no analyzable terms"}, nil
	}

	resolved := 0
	var findings []Finding
	for _, tok := range tokens {
		if len(snap.Search(tok, nil, 1)) > 0 {
			resolved++
			continue
		}
		findings = append(findings, Finding{Topic: tok, Detail: "term has no taxonomy match"})
	}

	findings = capFindings(findings, req.maxFindings())
	return &Result{
		Status:     StatusOK,
		Confidence: float64(resolved) / float64(len(tokens)),
		Summary:    fmt.Sprintf("%d of %d query terms resolve to the taxonomy", resolved, len(tokens)),
		Findings:   findings,
	}, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// sortFindings orders by score descending, then topic, then detail so
// results are stable across runs.
func sortFindings(fs []Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		if fs[i].Score != fs[j].Score {
			return fs[i].Score > fs[j].Score
		}
		if fs[i].Topic != fs[j].Topic {
			return fs[i].Topic < fs[j].Topic
		}
		return fs[i].Detail < fs[j].Detail
	})
}

func capFindings(fs []Finding, limit int) []Finding {
	if len(fs) > limit {
		return fs[:limit]
	}
	return fs
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
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
