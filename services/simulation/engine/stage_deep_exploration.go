// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/CascadiaAI/CascadiaMind/services/knowledge/graph"
)

// deepExplorationCap bounds the deep-exploration stage contribution.
const deepExplorationCap = 0.20

// Deep-exploration sub-factor weights.
const (
	deepNoveltyMax = 0.08
	deepDensityMax = 0.06
	deepPerBridge  = 0.02
	deepBridgeMax  = 3
)

// Deep-exploration traversal tuning.
const (
	deepMaxRoots        = 3
	deepTraverseDepth   = 2
	deepTraverseLimit   = 40
	deepNoveltySaturate = 20
	deepDensitySaturate = 1.5
	deepSignalNodes     = 15
)

// cognitionDomain is the taxonomy domain whose re-entry raises the
// self-reference proxy.
const cognitionDomain = "cognition"

// Emergent signal kinds recorded by exploration stages.
const (
	signalCrossDomain   = "cross_domain_traversal"
	signalSelfReference = "self_reference"
	signalNovelty       = "novel_connections"
	signalConvergence   = "convergent_branches"
)

// deepExplorationStage walks the taxonomy neighborhood around the
// anchored topics. The contribution grows with the amount and
// connectedness of newly reachable structure; traversals that wander
// into cognition territory raise the awareness proxy.
type deepExplorationStage struct {
	taxonomy *graph.Store
}

func (s *deepExplorationStage) ID() string { return StageDeepExploration }

func (s *deepExplorationStage) Index() int { return 7 }

func (s *deepExplorationStage) Execute(ctx context.Context, run *RunContext) (*StageOutcome, error) {
	roots := resolveTopics(s.taxonomy, run, deepMaxRoots)
	if len(roots) > deepMaxRoots {
		roots = roots[:deepMaxRoots]
	}
	if len(roots) == 0 || s.taxonomy == nil {
		return &StageOutcome{
			Contribution: 0,
			Details:      map[string]any{"note": "no taxonomy anchors to explore"},
		}, nil
	}

	visited := make(map[string]*graph.Node)
	domains := make(map[string]bool)
	edgeCount := 0
	cognitionHits := 0
	truncated := false

	for _, root := range roots {
		res, err := s.taxonomy.Neighborhood(ctx, root,
			graph.WithMaxDepth(deepTraverseDepth),
			graph.WithLimit(deepTraverseLimit),
		)
		if err != nil {
			if errors.Is(err, graph.ErrNodeNotFound) {
				continue
			}
			return nil, fmt.Errorf("explore %s: %w", root, err)
		}
		for _, n := range res.Visited {
			if _, seen := visited[n.ID]; seen {
				continue
			}
			visited[n.ID] = n
			if n.Domain != "" {
				domains[n.Domain] = true
			}
			if n.Domain == cognitionDomain {
				cognitionHits++
			}
		}
		edgeCount += len(res.Edges)
		if res.Truncated {
			truncated = true
		}
	}

	nodeCount := len(visited)
	noveltySeen := float64(nodeCount)
	if noveltySeen > deepNoveltySaturate {
		noveltySeen = deepNoveltySaturate
	}
	novelty := deepNoveltyMax * noveltySeen / deepNoveltySaturate

	density := 0.0
	if nodeCount > 0 {
		ratio := float64(edgeCount) / float64(nodeCount)
		if ratio > deepDensitySaturate {
			ratio = deepDensitySaturate
		}
		density = deepDensityMax * ratio / deepDensitySaturate
	}

	bridgeCount := 0
	domainList := make([]string, 0, len(domains))
	for d := range domains {
		domainList = append(domainList, d)
	}
	sort.Strings(domainList)
	if len(domainList) >= 2 {
		bridges, err := s.taxonomy.DomainBridges(ctx, domainList[0], domainList[1])
		if err != nil {
			return nil, fmt.Errorf("bridge scan: %w", err)
		}
		bridgeCount = len(bridges)
		if bridgeCount > deepBridgeMax {
			bridgeCount = deepBridgeMax
		}
	}
	bridgeFactor := deepPerBridge * float64(bridgeCount)

	if len(domains) >= 3 {
		run.RecordSignal(signalCrossDomain,
			fmt.Sprintf("traversal crossed %d domains from %d roots", len(domains), len(roots)))
	}
	if nodeCount >= deepSignalNodes {
		run.RecordSignal(signalNovelty,
			fmt.Sprintf("traversal reached %d concepts", nodeCount))
	}
	if cognitionHits > 0 {
		raised := float64(cognitionHits)
		if raised > 3 {
			raised = 3
		}
		run.RaiseAwareness(0.2 * raised)
		if cognitionHits >= 2 {
			run.RecordSignal(signalSelfReference,
				fmt.Sprintf("traversal re-entered cognition territory %d times", cognitionHits))
		}
	}

	return &StageOutcome{
		Contribution: capContribution(novelty+density+bridgeFactor, deepExplorationCap),
		Details: map[string]any{
			"roots":          roots,
			"nodes":          nodeCount,
			"edges":          edgeCount,
			"domains":        domainList,
			"bridges":        bridgeCount,
			"cognition_hits": cognitionHits,
			"truncated":      truncated,
			"factors": map[string]float64{
				"novelty": novelty,
				"density": density,
				"bridges": bridgeFactor,
			},
		},
	}, nil
}
