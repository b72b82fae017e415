// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package algorithms provides the knowledge algorithm registry.
//
// Knowledge algorithms are pure, CPU-bound analyses over the query and
// the domain taxonomy. The deep exploration stage executes a battery of
// them and scales their confidence signals into its contribution. A
// failing algorithm never fails the stage: unknown IDs, returned
// errors, and panics all degrade to an error result with zero
// confidence.
//
// Thread Safety:
//
//	Registry is safe for concurrent use. Register operations should
//	only be done during setup.
package algorithms

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/CascadiaAI/CascadiaMind/services/knowledge/graph"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNilAlgorithm is returned when registering a nil algorithm.
	ErrNilAlgorithm = errors.New("algorithm must not be nil")

	// ErrDuplicateAlgorithm is returned when an ID is already registered.
	ErrDuplicateAlgorithm = errors.New("algorithm already registered")
)

// =============================================================================
// ALGORITHM CONTRACT
// =============================================================================

// Built-in algorithm IDs.
const (
	// IDDomainSurvey maps a query onto the taxonomy's domains.
	IDDomainSurvey = "domain_survey"

	// IDCausalChains follows causal and enabling links from query topics.
	IDCausalChains = "causal_chains"

	// IDCrossDomainSynthesis finds edges bridging the query's domains.
	IDCrossDomainSynthesis = "cross_domain_synthesis"

	// IDQualityAudit measures how well the query resolves to the taxonomy.
	IDQualityAudit = "quality_audit"
)

// Result statuses.
const (
	// StatusOK marks a completed execution.
	StatusOK = "ok"

	// StatusError marks a failed execution (zero confidence).
	StatusError = "error"
)

// DefaultMaxFindings caps findings per algorithm when the request does
// not set its own limit.
const DefaultMaxFindings = 8

// Algorithm is a pluggable knowledge analysis.
type Algorithm interface {
	// ID returns the registry key.
	ID() string

	// Description returns a one-line summary for listings.
	Description() string

	// Run executes the analysis. Implementations must be pure CPU
	// transforms over the request; returning an error (or panicking)
	// degrades to an error result at the registry boundary.
	Run(ctx context.Context, req Request) (*Result, error)
}

// Request carries the inputs an algorithm may consult.
type Request struct {
	// Query is the raw user question.
	Query string

	// Topics are resolved taxonomy node IDs for the query, best first.
	Topics []string

	// Taxonomy serves lookups. Required by the built-ins.
	Taxonomy *graph.Store

	// MaxFindings caps per-algorithm findings (default: 8).
	MaxFindings int
}

func (r Request) maxFindings() int {
	if r.MaxFindings <= 0 {
		return DefaultMaxFindings
	}
	return r.MaxFindings
}

// Finding is one piece of evidence produced by an algorithm.
type Finding struct {
	// Topic is the taxonomy anchor the finding is about.
	Topic string `json:"topic"`

	// Detail is a human-readable statement of the finding.
	Detail string `json:"detail"`

	// Score is the finding strength in [0,1].
	Score float64 `json:"score"`
}

// Result is the outcome of one algorithm execution.
type Result struct {
	// Algorithm is the executed algorithm's ID.
	Algorithm string `json:"algorithm"`

	// Status is StatusOK or StatusError.
	Status string `json:"status"`

	// Confidence is the signal strength in [0,1]. Always 0 for error
	// results. The caller scales it; it is not a run confidence.
	Confidence float64 `json:"confidence"`

	// Summary is a one-line outcome description.
	Summary string `json:"summary,omitempty"`

	// Findings holds the supporting evidence.
	Findings []Finding `json:"findings,omitempty"`

	// Err holds failure detail when Status is StatusError.
	Err string `json:"error,omitempty"`
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry manages knowledge algorithms keyed by ID.
type Registry struct {
	mu   sync.RWMutex
	algs map[string]Algorithm
}

// NewRegistry creates a registry pre-loaded with the built-in
// algorithms.
func NewRegistry() *Registry {
	r := &Registry{
		algs: make(map[string]Algorithm),
	}
	r.registerDefaults()
	return r
}

// registerDefaults adds the built-in algorithms.
func (r *Registry) registerDefaults() {
	for _, a := range []Algorithm{
		&domainSurvey{},
		&causalChains{},
		&crossDomainSynthesis{},
		&qualityAudit{},
	} {
		r.algs[a.ID()] = a
	}
}

// Register adds an algorithm. Duplicate IDs are rejected so built-ins
// cannot be silently shadowed.
func (r *Registry) Register(a Algorithm) error {
	if a == nil {
		return ErrNilAlgorithm
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.algs[a.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAlgorithm, a.ID())
	}
	r.algs[a.ID()] = a
	return nil
}

// Get returns the algorithm with the given ID.
func (r *Registry) Get(id string) (Algorithm, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.algs[id]
	return a, ok
}

// IDs returns the registered algorithm IDs, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.algs))
	for id := range r.algs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Execute runs one algorithm and normalizes every failure mode into an
// error result.
//
// Description:
//
//	Unknown IDs, algorithm errors, nil results, and panics all produce
//	Result{Status: "error", Confidence: 0} instead of propagating, so
//	a single bad algorithm cannot fail the stage that batched it.
//	Confidence on success is clamped to [0,1].
func (r *Registry) Execute(ctx context.Context, id string, req Request) (result *Result) {
	ctx, span := otel.Tracer("cascadia.algorithms").Start(ctx, "algorithms.Execute",
		trace.WithAttributes(attribute.String("algorithm", id)),
	)
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			span.SetStatus(codes.Error, "panic")
			result = &Result{
				Algorithm: id,
				Status:    StatusError,
				Err:       fmt.Sprintf("panic: %v", rec),
			}
		}
	}()

	a, ok := r.Get(id)
	if !ok {
		span.SetStatus(codes.Error, "unknown algorithm")
		return &Result{Algorithm: id, Status: StatusError, Err: "unknown algorithm"}
	}

	res, err := a.Run(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run failed")
		return &Result{Algorithm: id, Status: StatusError, Err: err.Error()}
	}
	if res == nil {
		span.SetStatus(codes.Error, "nil result")
		return &Result{Algorithm: id, Status: StatusError, Err: "algorithm returned no result"}
	}

	res.Algorithm = id
	if res.Status == "" {
		res.Status = StatusOK
	}
	if res.Confidence < 0 {
		res.Confidence = 0
	} else if res.Confidence > 1 {
		res.Confidence = 1
	}

	span.SetAttributes(
		attribute.String("status", res.Status),
		attribute.Float64("confidence", res.Confidence),
		attribute.Int("findings", len(res.Findings)),
	)
	return res
}

// ExecuteBattery runs a list of algorithms in order and returns their
// results, one per requested ID.
func (r *Registry) ExecuteBattery(ctx context.Context, ids []string, req Request) []*Result {
	results := make([]*Result, 0, len(ids))
	for _, id := range ids {
		results = append(results, r.Execute(ctx, id, req))
	}
	return results
}
