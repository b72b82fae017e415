// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides request and response types for the
// orchestrator service.
//
// This file contains the types for the simulation run endpoints. All
// request types validate with go-playground/validator and reject
// oversized or malformed input before it reaches the engine.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/CascadiaAI/CascadiaMind/services/knowledge/memlog"
	"github.com/CascadiaAI/CascadiaMind/services/simulation/engine"
)

// =============================================================================
// Input Limits
// =============================================================================

const (
	// MaxQueryBytes is the maximum size of a run query.
	// Checked in bytes, not runes, to bound memory per request.
	MaxQueryBytes = 8 * 1024 // 8KB

	// MaxSessionIDLength is the maximum length of a caller-supplied
	// session ID.
	MaxSessionIDLength = 64

	// MaxUserIDLength is the maximum length of a caller-supplied user ID.
	MaxUserIDLength = 128
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// runValidate is the validator instance for run datatypes.
// Initialized in init() with custom validators.
var runValidate *validator.Validate

func init() {
	runValidate = validator.New()

	_ = runValidate.RegisterValidation("maxbytes", validateMaxBytes)
	_ = runValidate.RegisterValidation("sessionid", validateSessionID)
}

// validateMaxBytes validates that a string field does not exceed
// MaxQueryBytes. Byte length, not rune count, so multi-byte payloads
// cannot slip past the limit.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxQueryBytes
}

// validateSessionID validates a caller-supplied session ID field.
func validateSessionID(fl validator.FieldLevel) bool {
	return ValidSessionID(fl.Field().String())
}

// ValidSessionID reports whether s is usable as a session identifier.
//
// # Description
//
// Session IDs appear in URL paths and become memory-log key prefixes,
// so they are restricted to letters, digits, '.', '_' and '-', at most
// MaxSessionIDLength characters. The handlers apply the same check to
// path parameters that this package applies to request bodies.
//
// # Inputs
//
//   - s: Candidate session ID. Must be non-empty.
//
// # Outputs
//
//   - bool: true if s is a well-formed session ID
func ValidSessionID(s string) bool {
	if s == "" || len(s) > MaxSessionIDLength {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}

// generateUUID returns a new UUID v4 string.
func generateUUID() string {
	return uuid.NewString()
}

// =============================================================================
// Run Request Types
// =============================================================================

// RunParams carries optional per-run overrides of the engine defaults.
//
// # Description
//
// Every field is optional; zero values mean "use the configured
// default". Coarse bounds are enforced here with validator tags, the
// engine's own parameter validation remains authoritative and rejects
// values like target_max_stage=2 that pass the coarse check.
//
// # Fields
//
//   - TargetConfidence: Success threshold override, (0, 0.99].
//   - TargetMaxStage: Deepest escalation stage override, 3-10.
//   - MaxPasses: Pass budget override, 1-20.
//   - RiskThreshold: Containment halt threshold override, (0, 1].
//   - ConflictStrategy: Reasoning conflict resolution strategy.
//   - RefinementStrategy: Refinement boost curve.
type RunParams struct {
	TargetConfidence   float64 `json:"target_confidence,omitempty" validate:"gte=0,lte=0.99"`
	TargetMaxStage     int     `json:"target_max_stage,omitempty" validate:"gte=0,lte=10"`
	MaxPasses          int     `json:"max_passes,omitempty" validate:"gte=0,lte=20"`
	RiskThreshold      float64 `json:"risk_threshold,omitempty" validate:"gte=0,lte=1"`
	ConflictStrategy   string  `json:"conflict_strategy,omitempty" validate:"omitempty,oneof=highest_confidence weighted_vote consensus"`
	RefinementStrategy string  `json:"refinement_strategy,omitempty" validate:"omitempty,oneof=progressive aggressive conservative"`
}

// RunRequest represents a simulation run request body.
//
// # Description
//
// RunRequest is the body for POST /v1/run. Every request carries a
// unique ID and timestamp for audit trails; EnsureDefaults generates
// them when the client omits them, so call it before Validate.
//
// # Fields
//
//   - RequestID: Unique identifier for this request (UUID v4).
//     Generated server-side when empty.
//   - Timestamp: Unix timestamp in milliseconds (UTC) when the request
//     was created. Generated server-side when zero.
//   - Query: Required. The question to run. Limited to 8KB.
//   - SessionID: Optional. Groups the run's history under a known
//     session. Generated by the engine when empty.
//   - UserID: Optional. Attributes the run to a caller.
//   - Params: Optional per-run overrides of the engine defaults.
//
// # Validation
//
// Uses go-playground/validator:
//   - RequestID: required, must be valid UUID v4 (after EnsureDefaults)
//   - Timestamp: required, must be > 0 (after EnsureDefaults)
//   - Query: required, max 8192 bytes
//   - SessionID: letters, digits, '.', '_', '-', max 64 chars
//   - Params: each override within coarse bounds
//
// # Examples
//
//	req := RunRequest{
//	    Query:     "What is entropy and energy in physics?",
//	    SessionID: "bench-42",
//	}
//	req.EnsureDefaults()
//	if err := req.Validate(); err != nil { ... }
//
// # Limitations
//
//   - The run executes synchronously; there is no async submit type.
type RunRequest struct {
	RequestID string     `json:"request_id" validate:"required,uuid4"`
	Timestamp int64      `json:"timestamp" validate:"required,gt=0"`
	Query     string     `json:"query" validate:"required,maxbytes"`
	SessionID string     `json:"session_id,omitempty" validate:"omitempty,sessionid"`
	UserID    string     `json:"user_id,omitempty" validate:"omitempty,max=128"`
	Params    *RunParams `json:"params,omitempty"`
}

// Validate validates the RunRequest fields.
//
// # Description
//
// Performs validation using validator tags and the custom maxbytes and
// sessionid validators. Call EnsureDefaults first so generated fields
// pass their required checks.
//
// # Outputs
//
//   - error: Non-nil if validation failed, naming the offending field
func (r *RunRequest) Validate() error {
	if err := runValidate.Struct(r); err != nil {
		return err
	}
	if r.Params != nil {
		return runValidate.Struct(r.Params)
	}
	return nil
}

// EnsureDefaults populates generated values for optional fields.
//
// # Description
//
// Generates RequestID and Timestamp if not provided by the client so
// every request has proper identifiers for tracing and auditing.
func (r *RunRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = generateUUID()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
}

// EngineParams converts the request into engine run parameters.
//
// # Outputs
//
//   - engine.RunParams: Parameters ready for Engine.Run. The event
//     sink is left nil; the handler attaches one when watchers exist.
func (r *RunRequest) EngineParams() engine.RunParams {
	p := engine.RunParams{
		Query:     r.Query,
		SessionID: r.SessionID,
		UserID:    r.UserID,
	}
	if r.Params != nil {
		p.TargetConfidence = r.Params.TargetConfidence
		p.TargetMaxStage = r.Params.TargetMaxStage
		p.MaxPasses = r.Params.MaxPasses
		p.RiskThreshold = r.Params.RiskThreshold
		p.ConflictStrategy = r.Params.ConflictStrategy
		p.RefinementStrategy = r.Params.RefinementStrategy
	}
	return p
}

// =============================================================================
// Run Response Types
// =============================================================================

// RunResponse wraps a compiled run result with response identifiers.
//
// # Description
//
// Embeds the engine's RunResult so its fields marshal at the top level
// of the response, alongside correlation identifiers for audit trails.
//
// # Fields
//
//   - ResponseID: Unique identifier for this response (UUID v4).
//   - RequestID: Echo of the request ID for correlation.
//   - Timestamp: Unix milliseconds (UTC) when the response was built.
//   - RunResult: The compiled terminal answer of the run.
type RunResponse struct {
	ResponseID string `json:"response_id"`
	RequestID  string `json:"request_id"`
	Timestamp  int64  `json:"timestamp"`

	*engine.RunResult
}

// NewRunResponse creates a RunResponse with generated identifiers.
//
// # Inputs
//
//   - requestID: The request ID to echo back for correlation
//   - res: The compiled run result. Must not be nil.
//
// # Outputs
//
//   - *RunResponse: Response ready for serialization
func NewRunResponse(requestID string, res *engine.RunResult) *RunResponse {
	return &RunResponse{
		ResponseID: generateUUID(),
		RequestID:  requestID,
		Timestamp:  time.Now().UnixMilli(),
		RunResult:  res,
	}
}

// =============================================================================
// Session Endpoint Types
// =============================================================================

// HistoryQuery holds the recognized history filter query parameters.
//
// # Fields
//
//   - Type: Restrict to one entry type (run_started, stage, ...).
//   - Stage: Restrict to one stage ID.
//   - Pass: Restrict to one 1-based pass number.
//   - Limit: Cap the number of returned entries.
type HistoryQuery struct {
	Type  string `form:"type"`
	Stage string `form:"stage"`
	Pass  int    `form:"pass" validate:"gte=0"`
	Limit int    `form:"limit" validate:"gte=0,lte=10000"`
}

// Validate validates the history query parameters.
func (q *HistoryQuery) Validate() error {
	return runValidate.Struct(q)
}

// HistoryResponse is the body for GET /v1/run/:sessionId/history.
//
// Entries are returned in append order with the memory log's own wire
// shape (session, seq, time_milli, type, pass, stage, ...).
type HistoryResponse struct {
	SessionID string          `json:"session_id"`
	Count     int             `json:"count"`
	Entries   []*memlog.Entry `json:"entries"`
}

// ClearResponse is the body for POST /v1/run/:sessionId/clear.
type ClearResponse struct {
	SessionID string `json:"session_id"`
	Deleted   int    `json:"deleted"`
}

// SessionsResponse is the body for GET /v1/sessions.
type SessionsResponse struct {
	Sessions []string `json:"sessions"`
	Count    int      `json:"count"`
}

// =============================================================================
// Error Envelope
// =============================================================================

// ErrorResponse is the uniform error body for all endpoints.
//
// # Fields
//
//   - Error: Short machine-stable description of what failed.
//   - Detail: Optional elaboration safe to show to callers.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}
