// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"context"
	"fmt"
)

// Traversal configuration limits.
const (
	// DefaultTraverseLimit is the default maximum number of visited nodes.
	DefaultTraverseLimit = 200

	// MaxTraverseLimit is the maximum allowed limit.
	MaxTraverseLimit = 10000

	// DefaultTraverseDepth is the default maximum traversal depth.
	DefaultTraverseDepth = 3

	// MaxTraverseDepth is the maximum allowed traversal depth.
	MaxTraverseDepth = 25

	// contextCheckInterval is how often to check context during traversal.
	contextCheckInterval = 100
)

// TraversalResult holds the nodes and edges reached by a traversal.
type TraversalResult struct {
	// StartNode is the ID the traversal started from.
	StartNode string

	// Visited contains the reached nodes in visit order, start included.
	Visited []*Node

	// Edges contains the edges the traversal followed.
	Edges []*Edge

	// Depth is the deepest level reached.
	Depth int

	// Truncated is true if the limit was hit or the context expired.
	Truncated bool
}

// PathResult describes a path between two nodes.
type PathResult struct {
	// From is the starting node ID.
	From string

	// To is the target node ID.
	To string

	// Path lists the node IDs along the path, endpoints included.
	// Empty if no path exists.
	Path []string

	// Length is the number of edges on the path, -1 if no path exists.
	Length int
}

// TraverseOptions configures traversal behavior.
type TraverseOptions struct {
	// Limit is the maximum number of visited nodes (default: 200, max: 10000).
	Limit int

	// MaxDepth is the maximum traversal depth (default: 3, max: 25).
	MaxDepth int

	// Relation restricts which edges are followed (default: RelationAny).
	Relation Relation

	// Direction selects which edge lists are followed (default: DirectionBoth).
	Direction Direction
}

// DefaultTraverseOptions returns sensible defaults for traversals.
func DefaultTraverseOptions() TraverseOptions {
	return TraverseOptions{
		Limit:     DefaultTraverseLimit,
		MaxDepth:  DefaultTraverseDepth,
		Relation:  RelationAny,
		Direction: DirectionBoth,
	}
}

// TraverseOption is a functional option for configuring traversals.
type TraverseOption func(*TraverseOptions)

// WithLimit sets the maximum number of visited nodes.
//
// If n <= 0, uses default (200).
// If n > 10000, clamps to 10000.
func WithLimit(n int) TraverseOption {
	return func(o *TraverseOptions) {
		if n <= 0 {
			o.Limit = DefaultTraverseLimit
		} else if n > MaxTraverseLimit {
			o.Limit = MaxTraverseLimit
		} else {
			o.Limit = n
		}
	}
}

// WithMaxDepth sets the maximum traversal depth.
//
// If d < 0, uses default (3).
// If d > 25, clamps to 25.
func WithMaxDepth(d int) TraverseOption {
	return func(o *TraverseOptions) {
		if d < 0 {
			o.MaxDepth = DefaultTraverseDepth
		} else if d > MaxTraverseDepth {
			o.MaxDepth = MaxTraverseDepth
		} else {
			o.MaxDepth = d
		}
	}
}

// WithRelation restricts the traversal to edges of one relation.
func WithRelation(r Relation) TraverseOption {
	return func(o *TraverseOptions) {
		o.Relation = r
	}
}

// WithDirection selects which edge lists the traversal follows.
func WithDirection(d Direction) TraverseOption {
	return func(o *TraverseOptions) {
		o.Direction = d
	}
}

// applyTraverseOptions applies functional options and returns the
// configured options.
func applyTraverseOptions(opts []TraverseOption) TraverseOptions {
	options := DefaultTraverseOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// Neighborhood returns the nodes reachable from a start node.
//
// Description:
//
//	Performs iterative BFS following edges that match the configured
//	relation and direction, up to MaxDepth. Uses an explicit queue
//	(not recursion) so deep taxonomies cannot overflow the stack.
//
// Inputs:
//
//	ctx - Context for cancellation (checked every 100 iterations)
//	nodeID - Start node ID
//	opts - Traverse options (Limit, MaxDepth, Relation, Direction)
//
// Outputs:
//
//	*TraversalResult - Visited nodes and edges, with Truncated flag
//	error - Non-nil if the start node is not found
func (g *Graph) Neighborhood(ctx context.Context, nodeID string, opts ...TraverseOption) (*TraversalResult, error) {
	options := applyTraverseOptions(opts)

	start, ok := g.nodes[nodeID]
	if !ok {
		return nil, fmt.Errorf("start node not found: %s", nodeID)
	}

	result := &TraversalResult{
		StartNode: nodeID,
		Visited:   make([]*Node, 0),
		Edges:     make([]*Edge, 0),
	}

	visited := make(map[string]bool)
	type queueItem struct {
		node  *Node
		depth int
	}
	queue := []queueItem{{start, 0}}
	visited[nodeID] = true
	checkCounter := 0

	for len(queue) > 0 {
		checkCounter++
		if checkCounter%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				result.Truncated = true
				return result, nil
			}
		}

		item := queue[0]
		queue = queue[1:]

		result.Visited = append(result.Visited, item.node)
		if item.depth > result.Depth {
			result.Depth = item.depth
		}

		if len(result.Visited) >= options.Limit {
			result.Truncated = true
			break
		}

		if item.depth >= options.MaxDepth {
			continue
		}

		for _, edge := range g.GetConnected(item.node.ID, options.Relation, options.Direction) {
			nextID := edge.ToID
			if nextID == item.node.ID {
				nextID = edge.FromID
			}
			if visited[nextID] {
				continue // Cycle detection
			}
			next, exists := g.nodes[nextID]
			if !exists {
				continue
			}
			visited[nextID] = true
			result.Edges = append(result.Edges, edge)
			queue = append(queue, queueItem{next, item.depth + 1})
		}
	}

	return result, nil
}

// ShortestPath finds the shortest path between two nodes.
//
// Description:
//
//	Uses BFS to find the minimum-edge path, following edges in both
//	directions. Taxonomy relations are navigable either way for path
//	purposes (a bridge through "X causes Y" counts whichever side the
//	query starts from). Returns immediately if fromID == toID.
//
// Inputs:
//
//	ctx - Context for cancellation
//	fromID - Starting node ID
//	toID - Target node ID
//
// Outputs:
//
//	*PathResult - Path details, Length -1 if no path exists
//	error - Non-nil if either node is not found
func (g *Graph) ShortestPath(ctx context.Context, fromID, toID string) (*PathResult, error) {
	result := &PathResult{
		From:   fromID,
		To:     toID,
		Path:   []string{},
		Length: -1,
	}

	if _, ok := g.nodes[fromID]; !ok {
		return nil, fmt.Errorf("source node not found: %s", fromID)
	}
	if _, ok := g.nodes[toID]; !ok {
		return nil, fmt.Errorf("target node not found: %s", toID)
	}

	if fromID == toID {
		result.Path = []string{fromID}
		result.Length = 0
		return result, nil
	}

	// BFS with parent tracking
	visited := make(map[string]bool)
	parent := make(map[string]string)
	queue := []string{fromID}
	visited[fromID] = true
	checkCounter := 0

	for len(queue) > 0 {
		checkCounter++
		if checkCounter%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return result, nil // No path found before cancellation
			}
		}

		current := queue[0]
		queue = queue[1:]

		for _, edge := range g.GetConnected(current, RelationAny, DirectionBoth) {
			next := edge.ToID
			if next == current {
				next = edge.FromID
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			parent[next] = current

			if next == toID {
				// Reconstruct path
				path := []string{toID}
				for p := parent[toID]; p != ""; p = parent[p] {
					path = append([]string{p}, path...)
					if p == fromID {
						break
					}
				}
				result.Path = path
				result.Length = len(path) - 1
				return result, nil
			}

			queue = append(queue, next)
		}
	}

	return result, nil // No path found
}

// DomainBridges returns edges whose endpoints belong to different domains.
//
// Description:
//
//	Scans all edges and keeps those connecting two distinct domains.
//	When domainA is non-empty, one endpoint must belong to it. When
//	domainB is also non-empty, the other endpoint must belong to it,
//	in either orientation. Domain nodes count as members of their own
//	domain, so an edge from a concept to a foreign domain node bridges.
//
// Inputs:
//
//	ctx - Context for cancellation (checked every 100 edges)
//	domainA - Optional first domain ID ("" = any)
//	domainB - Optional second domain ID ("" = any)
//
// Outputs:
//
//	[]*Edge - Bridging edges in insertion order
//	error - Non-nil if a named domain does not exist
func (g *Graph) DomainBridges(ctx context.Context, domainA, domainB string) ([]*Edge, error) {
	for _, id := range []string{domainA, domainB} {
		if id == "" {
			continue
		}
		n, ok := g.nodes[id]
		if !ok || n.Kind != NodeKindDomain {
			return nil, fmt.Errorf("domain not found: %s", id)
		}
	}

	bridges := make([]*Edge, 0)
	for i, edge := range g.edges {
		if i%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return bridges, nil
			}
		}

		fromDomain := g.nodeDomain(edge.FromID)
		toDomain := g.nodeDomain(edge.ToID)
		if fromDomain == "" || toDomain == "" || fromDomain == toDomain {
			continue
		}

		if domainA != "" {
			matchesForward := fromDomain == domainA && (domainB == "" || toDomain == domainB)
			matchesReverse := toDomain == domainA && (domainB == "" || fromDomain == domainB)
			if !matchesForward && !matchesReverse {
				continue
			}
		}

		bridges = append(bridges, edge)
	}

	return bridges, nil
}

// nodeDomain resolves the owning domain for a node ID. Domain nodes
// own themselves. Returns "" for unknown nodes.
func (g *Graph) nodeDomain(id string) string {
	n, ok := g.nodes[id]
	if !ok {
		return ""
	}
	if n.Kind == NodeKindDomain {
		return n.ID
	}
	return n.Domain
}

// Neighborhood runs a traversal against the current snapshot.
func (s *Store) Neighborhood(ctx context.Context, nodeID string, opts ...TraverseOption) (*TraversalResult, error) {
	return s.Snapshot().Neighborhood(ctx, nodeID, opts...)
}

// ShortestPath finds a path in the current snapshot.
func (s *Store) ShortestPath(ctx context.Context, fromID, toID string) (*PathResult, error) {
	return s.Snapshot().ShortestPath(ctx, fromID, toID)
}

// DomainBridges returns cross-domain edges from the current snapshot.
func (s *Store) DomainBridges(ctx context.Context, domainA, domainB string) ([]*Edge, error) {
	return s.Snapshot().DomainBridges(ctx, domainA, domainB)
}
