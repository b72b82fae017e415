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

	"golang.org/x/sync/errgroup"

	"github.com/CascadiaAI/CascadiaMind/services/knowledge/graph"
	"github.com/CascadiaAI/CascadiaMind/services/simulation/conflict"
)

// parallelExplorationCap bounds the parallel-exploration contribution.
const parallelExplorationCap = 0.22

// Parallel-exploration tuning.
const (
	parallelConsensusMax   = 0.12
	parallelConvergenceMax = 0.10
	parallelWorkers        = 2
	parallelProbeDepth     = 1
	parallelProbeLimit     = 16
	parallelReachSaturate  = 8
	parallelConvergenceEps = 0.05
)

// Branch support blend weights.
const (
	branchLensWeight   = 0.45
	branchAnchorWeight = 0.35
	branchReachWeight  = 0.20
)

// branchProbe is one lens-directed exploration result. Probes are
// written into a slot-indexed slice so the merge is deterministic
// regardless of completion order.
type branchProbe struct {
	Lens    string  `json:"lens"`
	Root    string  `json:"root,omitempty"`
	Support float64 `json:"support"`
	Reach   float64 `json:"reach"`
	Nodes   int     `json:"nodes"`
}

// parallelExplorationStage probes one hypothesis branch per lens
// concurrently and merges them into a consensus estimate. Branch
// inputs are derived before the goroutines start; the run context is
// only touched after the group is done.
type parallelExplorationStage struct {
	taxonomy *graph.Store
}

func (s *parallelExplorationStage) ID() string { return StageParallelExploration }

func (s *parallelExplorationStage) Index() int { return 8 }

func (s *parallelExplorationStage) Execute(ctx context.Context, run *RunContext) (*StageOutcome, error) {
	scores := lensScoresFromResults(run)
	topics := run.Topics
	anchorRatio := float64(len(topics))
	if anchorRatio > 4 {
		anchorRatio = 4
	}
	anchorRatio /= 4

	probes := make([]branchProbe, len(lenses))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelWorkers)
	for i, lens := range lenses {
		root := ""
		if len(topics) > 0 {
			root = topics[i%len(topics)]
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			probe, err := s.probe(gctx, lens, root, scores[lens], anchorRatio)
			if err != nil {
				return err
			}
			probes[i] = probe
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("parallel probes: %w", err)
	}

	sources := make([]conflict.Source, len(probes))
	mean := 0.0
	for i, p := range probes {
		sources[i] = conflict.Source{ID: p.Lens, Confidence: p.Support}
		mean += p.Support
	}
	mean /= float64(len(probes))
	div := conflict.Divergence(sources)

	consensus := parallelConsensusMax * mean
	coherence := 1 - 2*div
	if coherence < 0 {
		coherence = 0
	}
	convergence := parallelConvergenceMax * mean * coherence

	if div < parallelConvergenceEps && mean > 0.6 {
		run.RecordSignal(signalConvergence,
			fmt.Sprintf("%d branches converged at support %.2f", len(probes), mean))
	}

	return &StageOutcome{
		Contribution: capContribution(consensus+convergence, parallelExplorationCap),
		Details: map[string]any{
			"branches":   probes,
			"mean":       mean,
			"divergence": div,
			"factors": map[string]float64{
				"consensus":   consensus,
				"convergence": convergence,
			},
		},
	}, nil
}

// probe evaluates one lens branch: how much the lens supports the
// query, blended with taxonomy grounding and the reach of a shallow
// traversal from the branch's root topic.
func (s *parallelExplorationStage) probe(ctx context.Context, lens, root string, lensScore, anchorRatio float64) (branchProbe, error) {
	reach := 0.0
	nodes := 0
	if root != "" && s.taxonomy != nil {
		res, err := s.taxonomy.Neighborhood(ctx, root,
			graph.WithMaxDepth(parallelProbeDepth),
			graph.WithLimit(parallelProbeLimit),
		)
		switch {
		case errors.Is(err, graph.ErrNodeNotFound):
			// Stale topic; the branch still scores on the lens alone.
		case err != nil:
			return branchProbe{}, err
		default:
			nodes = len(res.Visited)
			seen := float64(nodes)
			if seen > parallelReachSaturate {
				seen = parallelReachSaturate
			}
			reach = seen / parallelReachSaturate
		}
	}
	support := clamp01(branchLensWeight*lensScore +
		branchAnchorWeight*anchorRatio +
		branchReachWeight*reach)
	return branchProbe{Lens: lens, Root: root, Support: support, Reach: reach, Nodes: nodes}, nil
}

// lensScoresFromResults reads the perspective lens scores from the
// stage results, falling back to recomputing them.
func lensScoresFromResults(run *RunContext) map[string]float64 {
	if res, ok := run.StageResults[StagePerspectives]; ok {
		if scores, ok := res.Details["scores"].(map[string]float64); ok {
			return scores
		}
	}
	return lensScores(run)
}
