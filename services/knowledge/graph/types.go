// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Default configuration values.
const (
	// DefaultMaxNodes is the default maximum number of nodes a taxonomy
	// can hold.
	DefaultMaxNodes = 100_000

	// DefaultMaxEdges is the default maximum number of edges a taxonomy
	// can hold.
	DefaultMaxEdges = 1_000_000
)

// State represents the lifecycle state of a Graph.
type State int

const (
	// StateBuilding indicates the graph is accepting AddNode/AddEdge calls.
	StateBuilding State = iota

	// StateReadOnly indicates the graph is frozen and read-only.
	StateReadOnly
)

// String returns the string representation of the State.
func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateReadOnly:
		return "readonly"
	default:
		return "unknown"
	}
}

// NodeKind classifies taxonomy nodes.
type NodeKind int

const (
	// NodeKindUnknown indicates an unrecognized node kind.
	NodeKindUnknown NodeKind = iota

	// NodeKindDomain is a top-level knowledge domain (science, cognition, ...).
	NodeKindDomain

	// NodeKindConcept is a concept inside a domain.
	NodeKindConcept

	// NodeKindMethod is a technique or procedure node.
	NodeKindMethod

	// NumNodeKinds is the total number of node kinds (for index sizing).
	NumNodeKinds
)

// nodeKindNames maps NodeKind values to their string representations.
var nodeKindNames = map[NodeKind]string{
	NodeKindUnknown: "unknown",
	NodeKindDomain:  "domain",
	NodeKindConcept: "concept",
	NodeKindMethod:  "method",
}

// String returns the string representation of the NodeKind.
func (k NodeKind) String() string {
	if name, ok := nodeKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseNodeKind maps a seed-file kind string to a NodeKind.
func ParseNodeKind(s string) NodeKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "domain":
		return NodeKindDomain
	case "concept":
		return NodeKindConcept
	case "method":
		return NodeKindMethod
	default:
		return NodeKindUnknown
	}
}

// Relation defines the type of relationship between taxonomy nodes.
type Relation int

const (
	// RelationUnknown indicates an unrecognized relation.
	RelationUnknown Relation = iota

	// RelationContains links a domain to a member concept.
	RelationContains

	// RelationRelatesTo is a general association between concepts.
	RelationRelatesTo

	// RelationCauses indicates a causal link.
	RelationCauses

	// RelationEnables indicates one concept makes another possible.
	RelationEnables

	// RelationContrasts links opposing or competing concepts.
	RelationContrasts

	// NumRelations is the total number of relations (for index sizing).
	NumRelations
)

// RelationAny matches every relation in GetConnected queries.
const RelationAny Relation = -1

// relationNames maps Relation values to their string representations.
var relationNames = map[Relation]string{
	RelationUnknown:   "unknown",
	RelationContains:  "contains",
	RelationRelatesTo: "relates_to",
	RelationCauses:    "causes",
	RelationEnables:   "enables",
	RelationContrasts: "contrasts",
}

// String returns the string representation of the Relation.
func (r Relation) String() string {
	if name, ok := relationNames[r]; ok {
		return name
	}
	return "unknown"
}

// ParseRelation maps a seed-file relation string to a Relation.
func ParseRelation(s string) Relation {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "contains":
		return RelationContains
	case "relates_to", "relates":
		return RelationRelatesTo
	case "causes":
		return RelationCauses
	case "enables":
		return RelationEnables
	case "contrasts":
		return RelationContrasts
	default:
		return RelationUnknown
	}
}

// Direction selects which edge lists GetConnected consults.
type Direction int

const (
	// DirectionOut follows edges where the node is the source.
	DirectionOut Direction = iota

	// DirectionIn follows edges where the node is the target.
	DirectionIn

	// DirectionBoth follows edges in either direction.
	DirectionBoth
)

// Edge represents a directed, weighted relationship between two nodes.
type Edge struct {
	// FromID is the ID of the source node.
	FromID string

	// ToID is the ID of the target node.
	ToID string

	// Relation is the relationship type.
	Relation Relation

	// Weight is the relationship strength in [0,1].
	Weight float64
}

// Node represents a taxonomy entry with its relationships.
type Node struct {
	// ID is the unique identifier (lower_snake, e.g. "entropy").
	ID string

	// Label is the display name.
	Label string

	// Kind classifies the node.
	Kind NodeKind

	// Domain is the ID of the owning domain node. Empty for domains.
	Domain string

	// Weight is the node salience in [0,1], used to rank search hits.
	Weight float64

	// Terms are the lowercase match terms (label plus aliases).
	Terms []string

	// Outgoing contains edges where this node is the source.
	Outgoing []*Edge

	// Incoming contains edges where this node is the target.
	Incoming []*Edge
}

// Options configures Graph limits.
type Options struct {
	// MaxNodes is the maximum number of nodes. Default: 100,000.
	MaxNodes int

	// MaxEdges is the maximum number of edges. Default: 1,000,000.
	MaxEdges int
}

// DefaultOptions returns sensible defaults for taxonomy limits.
func DefaultOptions() Options {
	return Options{
		MaxNodes: DefaultMaxNodes,
		MaxEdges: DefaultMaxEdges,
	}
}

// Option is a functional option for configuring a Graph.
type Option func(*Options)

// WithMaxNodes sets the maximum number of nodes the graph can hold.
func WithMaxNodes(n int) Option {
	return func(o *Options) {
		o.MaxNodes = n
	}
}

// WithMaxEdges sets the maximum number of edges the graph can hold.
func WithMaxEdges(n int) Option {
	return func(o *Options) {
		o.MaxEdges = n
	}
}

// Graph is an in-memory domain taxonomy.
//
// Thread Safety:
//
//	Graph is NOT safe for concurrent use while building. It is designed
//	for single-writer access during load, then read-only after Freeze().
//	After Freeze() the graph can be read from multiple goroutines.
//
// Lifecycle:
//
//  1. Create with New()
//  2. Populate with AddNode() and AddEdge()
//  3. Call Freeze()
//  4. Query with GetNode(), GetConnected(), Search()
type Graph struct {
	// Version is the seed schema version the graph was built from.
	Version string

	nodes map[string]*Node
	edges []*Edge

	// nodesByTerm maps each lowercase term to the nodes carrying it.
	// Secondary index for Search; writes during build only.
	nodesByTerm map[string][]*Node

	// nodesByKind groups nodes by kind. Writes during build only.
	nodesByKind [NumNodeKinds][]*Node

	// nodesByDomain groups concept/method nodes by owning domain.
	nodesByDomain map[string][]*Node

	state   State
	options Options

	// BuiltAtMilli is the Unix timestamp in milliseconds when Freeze()
	// was called. Zero if the graph has not been frozen.
	BuiltAtMilli int64
}

// New creates an empty taxonomy graph in the Building state.
//
// Example:
//
//	g := graph.New(graph.WithMaxNodes(10_000))
func New(opts ...Option) *Graph {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &Graph{
		nodes:         make(map[string]*Node),
		edges:         make([]*Edge, 0),
		nodesByTerm:   make(map[string][]*Node),
		nodesByDomain: make(map[string][]*Node),
		state:         StateBuilding,
		options:       options,
	}
}

// State returns the current lifecycle state of the graph.
func (g *Graph) State() State {
	return g.state
}

// IsFrozen returns true if the graph is in read-only mode.
func (g *Graph) IsFrozen() bool {
	return g.state == StateReadOnly
}

// Freeze transitions the graph to read-only mode. Irreversible.
// After Freeze, AddNode and AddEdge return ErrGraphFrozen and the
// graph may be read concurrently.
func (g *Graph) Freeze() {
	g.state = StateReadOnly
	g.BuiltAtMilli = time.Now().UnixMilli()
}

// AddNode inserts a node during the build phase.
//
// The node's Terms are lowercased and indexed for Search. The node's
// Label is always included as a term.
func (g *Graph) AddNode(n *Node) error {
	if g.state != StateBuilding {
		return ErrGraphFrozen
	}
	if len(g.nodes) >= g.options.MaxNodes {
		return ErrGraphFull
	}
	if _, exists := g.nodes[n.ID]; exists {
		return ErrNodeExists
	}

	terms := make([]string, 0, len(n.Terms)+1)
	seen := make(map[string]bool, len(n.Terms)+1)
	for _, t := range append([]string{n.Label}, n.Terms...) {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		terms = append(terms, t)
	}
	n.Terms = terms

	g.nodes[n.ID] = n
	if n.Kind >= 0 && n.Kind < NumNodeKinds {
		g.nodesByKind[n.Kind] = append(g.nodesByKind[n.Kind], n)
	}
	if n.Domain != "" {
		g.nodesByDomain[n.Domain] = append(g.nodesByDomain[n.Domain], n)
	}
	for _, t := range n.Terms {
		g.nodesByTerm[t] = append(g.nodesByTerm[t], n)
	}
	return nil
}

// AddEdge inserts a directed edge during the build phase. Both
// endpoints must already exist.
func (g *Graph) AddEdge(e *Edge) error {
	if g.state != StateBuilding {
		return ErrGraphFrozen
	}
	if len(g.edges) >= g.options.MaxEdges {
		return ErrGraphFull
	}
	from, ok := g.nodes[e.FromID]
	if !ok {
		return ErrNodeNotFound
	}
	to, ok := g.nodes[e.ToID]
	if !ok {
		return ErrNodeNotFound
	}

	g.edges = append(g.edges, e)
	from.Outgoing = append(from.Outgoing, e)
	to.Incoming = append(to.Incoming, e)
	return nil
}

// GetNode returns the node with the given ID.
func (g *Graph) GetNode(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// GetConnected returns the edges touching the given node, filtered by
// relation and direction. RelationAny matches every relation. Returns
// nil for unknown nodes.
func (g *Graph) GetConnected(id string, relation Relation, direction Direction) []*Edge {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}

	var out []*Edge
	appendMatching := func(edges []*Edge) {
		for _, e := range edges {
			if relation == RelationAny || e.Relation == relation {
				out = append(out, e)
			}
		}
	}

	switch direction {
	case DirectionOut:
		appendMatching(n.Outgoing)
	case DirectionIn:
		appendMatching(n.Incoming)
	case DirectionBoth:
		appendMatching(n.Outgoing)
		appendMatching(n.Incoming)
	}
	return out
}

// Search scores nodes by term overlap with the query and returns the
// top matches, highest score first. Ties break on node ID so results
// are deterministic. An empty query or zero limit returns nil.
//
// Scoring: each query token that matches one of a node's terms adds
// the node's Weight; exact label matches count double.
func (g *Graph) Search(query string, kinds []NodeKind, limit int) []*Node {
	if limit <= 0 {
		return nil
	}
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil
	}

	kindAllowed := func(k NodeKind) bool {
		if len(kinds) == 0 {
			return true
		}
		for _, want := range kinds {
			if k == want {
				return true
			}
		}
		return false
	}

	scores := make(map[string]float64)
	for _, tok := range tokens {
		for _, n := range g.nodesByTerm[tok] {
			if !kindAllowed(n.Kind) {
				continue
			}
			score := n.Weight
			if tok == strings.ToLower(n.Label) {
				score *= 2
			}
			scores[n.ID] += score
		}
	}
	if len(scores) == 0 {
		return nil
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})

	if len(ids) > limit {
		ids = ids[:limit]
	}
	result := make([]*Node, len(ids))
	for i, id := range ids {
		result[i] = g.nodes[id]
	}
	return result
}

// Domain returns the nodes owned by the given domain ID.
func (g *Graph) Domain(id string) []*Node {
	return g.nodesByDomain[id]
}

// Domains returns the IDs of all domain nodes, sorted.
func (g *Graph) Domains() []string {
	domains := g.nodesByKind[NodeKindDomain]
	ids := make([]string, len(domains))
	for i, d := range domains {
		ids[i] = d.ID
	}
	sort.Strings(ids)
	return ids
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// Tokenize splits free text into lowercase terms, dropping punctuation
// and one-character fragments.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}

// Store wraps a frozen Graph with atomic replacement so a watcher can
// swap in a reloaded taxonomy while readers are active.
//
// All query methods delegate to the current snapshot under a read
// lock. Store is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	graph *Graph
}

// NewStore creates a Store serving the given frozen graph.
func NewStore(g *Graph) *Store {
	if !g.IsFrozen() {
		g.Freeze()
	}
	return &Store{graph: g}
}

// Swap atomically replaces the served graph. The replacement is
// frozen if the caller has not done so already.
func (s *Store) Swap(g *Graph) {
	if !g.IsFrozen() {
		g.Freeze()
	}
	s.mu.Lock()
	s.graph = g
	s.mu.Unlock()
}

// Snapshot returns the currently served graph.
func (s *Store) Snapshot() *Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph
}

// GetNode returns the node with the given ID from the current snapshot.
func (s *Store) GetNode(id string) (*Node, bool) {
	return s.Snapshot().GetNode(id)
}

// GetConnected returns matching edges from the current snapshot.
func (s *Store) GetConnected(id string, relation Relation, direction Direction) []*Edge {
	return s.Snapshot().GetConnected(id, relation, direction)
}

// Search returns the top matches from the current snapshot.
func (s *Store) Search(query string, kinds []NodeKind, limit int) []*Node {
	return s.Snapshot().Search(query, kinds, limit)
}
