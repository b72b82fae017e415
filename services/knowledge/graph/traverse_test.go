// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"context"
	"reflect"
	"testing"
)

func visitedIDs(r *TraversalResult) []string {
	ids := make([]string, len(r.Visited))
	for i, n := range r.Visited {
		ids[i] = n.ID
	}
	return ids
}

func TestGraph_Neighborhood(t *testing.T) {
	g := makeTestGraph(t)
	ctx := context.Background()

	t.Run("defaults reach the whole component", func(t *testing.T) {
		result, err := g.Neighborhood(ctx, "heat")
		if err != nil {
			t.Fatalf("Neighborhood failed: %v", err)
		}
		if len(result.Visited) != 5 {
			t.Errorf("len(Visited) = %d, expected 5 (%v)", len(result.Visited), visitedIDs(result))
		}
		if result.Depth != 3 {
			t.Errorf("Depth = %d, expected 3", result.Depth)
		}
		if result.Truncated {
			t.Error("Truncated = true, expected false")
		}
		if result.StartNode != "heat" {
			t.Errorf("StartNode = %q, expected %q", result.StartNode, "heat")
		}
	})

	t.Run("depth limit", func(t *testing.T) {
		result, err := g.Neighborhood(ctx, "heat", WithMaxDepth(1))
		if err != nil {
			t.Fatalf("Neighborhood failed: %v", err)
		}
		expected := []string{"heat", "motion", "alpha"}
		if !reflect.DeepEqual(visitedIDs(result), expected) {
			t.Errorf("Visited = %v, expected %v", visitedIDs(result), expected)
		}
	})

	t.Run("relation and direction filter", func(t *testing.T) {
		result, err := g.Neighborhood(ctx, "heat",
			WithRelation(RelationCauses),
			WithDirection(DirectionOut),
			WithMaxDepth(5))
		if err != nil {
			t.Fatalf("Neighborhood failed: %v", err)
		}
		expected := []string{"heat", "motion", "sound"}
		if !reflect.DeepEqual(visitedIDs(result), expected) {
			t.Errorf("Visited = %v, expected %v", visitedIDs(result), expected)
		}
		if len(result.Edges) != 2 {
			t.Errorf("len(Edges) = %d, expected 2", len(result.Edges))
		}
	})

	t.Run("node limit truncates", func(t *testing.T) {
		result, err := g.Neighborhood(ctx, "heat", WithLimit(2))
		if err != nil {
			t.Fatalf("Neighborhood failed: %v", err)
		}
		if len(result.Visited) != 2 {
			t.Errorf("len(Visited) = %d, expected 2", len(result.Visited))
		}
		if !result.Truncated {
			t.Error("Truncated = false, expected true")
		}
	})

	t.Run("unknown start node", func(t *testing.T) {
		if _, err := g.Neighborhood(ctx, "ghost"); err == nil {
			t.Error("Neighborhood(ghost) did not fail")
		}
	})
}

func TestGraph_ShortestPath(t *testing.T) {
	g := makeTestGraph(t)
	ctx := context.Background()

	t.Run("forward path", func(t *testing.T) {
		result, err := g.ShortestPath(ctx, "heat", "sound")
		if err != nil {
			t.Fatalf("ShortestPath failed: %v", err)
		}
		expected := []string{"heat", "motion", "sound"}
		if !reflect.DeepEqual(result.Path, expected) {
			t.Errorf("Path = %v, expected %v", result.Path, expected)
		}
		if result.Length != 2 {
			t.Errorf("Length = %d, expected 2", result.Length)
		}
	})

	t.Run("edges are navigable backwards", func(t *testing.T) {
		result, err := g.ShortestPath(ctx, "sound", "alpha")
		if err != nil {
			t.Fatalf("ShortestPath failed: %v", err)
		}
		if result.Length != 2 {
			t.Errorf("Length = %d, expected 2 (%v)", result.Length, result.Path)
		}
	})

	t.Run("same node", func(t *testing.T) {
		result, err := g.ShortestPath(ctx, "heat", "heat")
		if err != nil {
			t.Fatalf("ShortestPath failed: %v", err)
		}
		if result.Length != 0 {
			t.Errorf("Length = %d, expected 0", result.Length)
		}
		if !reflect.DeepEqual(result.Path, []string{"heat"}) {
			t.Errorf("Path = %v, expected [heat]", result.Path)
		}
	})

	t.Run("no path", func(t *testing.T) {
		iso := New()
		for _, id := range []string{"a", "b"} {
			if err := iso.AddNode(&Node{ID: id, Label: id, Kind: NodeKindConcept}); err != nil {
				t.Fatalf("AddNode failed: %v", err)
			}
		}
		iso.Freeze()

		result, err := iso.ShortestPath(ctx, "a", "b")
		if err != nil {
			t.Fatalf("ShortestPath failed: %v", err)
		}
		if result.Length != -1 {
			t.Errorf("Length = %d, expected -1", result.Length)
		}
		if len(result.Path) != 0 {
			t.Errorf("Path = %v, expected empty", result.Path)
		}
	})

	t.Run("unknown endpoints", func(t *testing.T) {
		if _, err := g.ShortestPath(ctx, "ghost", "heat"); err == nil {
			t.Error("ShortestPath(ghost, heat) did not fail")
		}
		if _, err := g.ShortestPath(ctx, "heat", "ghost"); err == nil {
			t.Error("ShortestPath(heat, ghost) did not fail")
		}
	})
}

func TestGraph_DomainBridges(t *testing.T) {
	g := makeTestGraph(t)
	ctx := context.Background()

	t.Run("all cross-domain edges", func(t *testing.T) {
		bridges, err := g.DomainBridges(ctx, "", "")
		if err != nil {
			t.Fatalf("DomainBridges failed: %v", err)
		}
		if len(bridges) != 1 {
			t.Fatalf("len(bridges) = %d, expected 1", len(bridges))
		}
		if bridges[0].FromID != "motion" || bridges[0].ToID != "sound" {
			t.Errorf("bridge = %s->%s, expected motion->sound", bridges[0].FromID, bridges[0].ToID)
		}
	})

	t.Run("anchored to one domain", func(t *testing.T) {
		bridges, err := g.DomainBridges(ctx, "alpha", "")
		if err != nil {
			t.Fatalf("DomainBridges failed: %v", err)
		}
		if len(bridges) != 1 {
			t.Errorf("len(bridges) = %d, expected 1", len(bridges))
		}
	})

	t.Run("domain pair matches either orientation", func(t *testing.T) {
		bridges, err := g.DomainBridges(ctx, "beta", "alpha")
		if err != nil {
			t.Fatalf("DomainBridges failed: %v", err)
		}
		if len(bridges) != 1 {
			t.Errorf("len(bridges) = %d, expected 1", len(bridges))
		}
	})

	t.Run("unknown domain", func(t *testing.T) {
		if _, err := g.DomainBridges(ctx, "ghost", ""); err == nil {
			t.Error("DomainBridges(ghost) did not fail")
		}
	})

	t.Run("concept id is not a domain", func(t *testing.T) {
		if _, err := g.DomainBridges(ctx, "heat", ""); err == nil {
			t.Error("DomainBridges(heat) did not fail")
		}
	})
}

func TestStore_TraversalDelegates(t *testing.T) {
	store := NewStore(makeTestGraph(t))
	ctx := context.Background()

	if _, err := store.Neighborhood(ctx, "heat"); err != nil {
		t.Errorf("store.Neighborhood failed: %v", err)
	}
	if _, err := store.ShortestPath(ctx, "heat", "sound"); err != nil {
		t.Errorf("store.ShortestPath failed: %v", err)
	}
	bridges, err := store.DomainBridges(ctx, "", "")
	if err != nil {
		t.Errorf("store.DomainBridges failed: %v", err)
	}
	if len(bridges) != 1 {
		t.Errorf("len(bridges) = %d, expected 1", len(bridges))
	}
}

func TestLoadDefault_Traversals(t *testing.T) {
	g, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault failed: %v", err)
	}
	ctx := context.Background()

	bridges, err := g.DomainBridges(ctx, "", "")
	if err != nil {
		t.Fatalf("DomainBridges failed: %v", err)
	}
	if len(bridges) == 0 {
		t.Error("embedded taxonomy has no cross-domain edges")
	}

	result, err := g.Neighborhood(ctx, "cognition", WithRelation(RelationContains), WithMaxDepth(2))
	if err != nil {
		t.Fatalf("Neighborhood failed: %v", err)
	}
	if len(result.Visited) < 5 {
		t.Errorf("len(Visited) = %d, expected the cognition subtree", len(result.Visited))
	}
}
