// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/CascadiaAI/CascadiaMind/services/simulation/engine"
)

// =============================================================================
// RunRequest Validation Tests
// =============================================================================

func TestRunRequest_Validate_Success(t *testing.T) {
	req := &RunRequest{
		RequestID: "550e8400-e29b-41d4-a716-446655440000",
		Timestamp: time.Now().UnixMilli(),
		Query:     "What is entropy and energy in physics?",
	}

	if err := req.Validate(); err != nil {
		t.Errorf("expected valid request, got error: %v", err)
	}
}

func TestRunRequest_Validate_MissingRequestID(t *testing.T) {
	req := &RunRequest{
		Timestamp: time.Now().UnixMilli(),
		Query:     "What is entropy?",
	}

	if err := req.Validate(); err == nil {
		t.Error("expected error for missing request_id, got nil")
	}
}

func TestRunRequest_Validate_InvalidRequestID(t *testing.T) {
	req := &RunRequest{
		RequestID: "not-a-uuid",
		Timestamp: time.Now().UnixMilli(),
		Query:     "What is entropy?",
	}

	if err := req.Validate(); err == nil {
		t.Error("expected error for invalid request_id, got nil")
	}
}

func TestRunRequest_Validate_MissingQuery(t *testing.T) {
	req := &RunRequest{
		RequestID: "550e8400-e29b-41d4-a716-446655440000",
		Timestamp: time.Now().UnixMilli(),
	}

	if err := req.Validate(); err == nil {
		t.Error("expected error for missing query, got nil")
	}
}

func TestRunRequest_Validate_OversizedQuery(t *testing.T) {
	req := &RunRequest{
		RequestID: "550e8400-e29b-41d4-a716-446655440000",
		Timestamp: time.Now().UnixMilli(),
		Query:     strings.Repeat("a", MaxQueryBytes+1),
	}

	if err := req.Validate(); err == nil {
		t.Error("expected error for oversized query, got nil")
	}
}

func TestRunRequest_Validate_QueryAtLimit(t *testing.T) {
	req := &RunRequest{
		RequestID: "550e8400-e29b-41d4-a716-446655440000",
		Timestamp: time.Now().UnixMilli(),
		Query:     strings.Repeat("a", MaxQueryBytes),
	}

	if err := req.Validate(); err != nil {
		t.Errorf("query at exactly the byte limit should validate, got: %v", err)
	}
}

func TestRunRequest_Validate_MultibyteQueryCountsBytes(t *testing.T) {
	// 3 bytes per rune; a third of the limit in runes overflows it in bytes.
	req := &RunRequest{
		RequestID: "550e8400-e29b-41d4-a716-446655440000",
		Timestamp: time.Now().UnixMilli(),
		Query:     strings.Repeat("éa", MaxQueryBytes/2),
	}

	if err := req.Validate(); err == nil {
		t.Error("expected error for query over the byte limit, got nil")
	}
}

func TestRunRequest_Validate_SessionIDs(t *testing.T) {
	tests := []struct {
		name    string
		session string
		wantErr bool
	}{
		{"simple", "bench-42", false},
		{"dotted", "user.session_7", false},
		{"empty allowed", "", false},
		{"max length", strings.Repeat("s", MaxSessionIDLength), false},
		{"too long", strings.Repeat("s", MaxSessionIDLength+1), true},
		{"colon rejected", "a:b", true},
		{"slash rejected", "a/b", true},
		{"space rejected", "a b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &RunRequest{
				RequestID: "550e8400-e29b-41d4-a716-446655440000",
				Timestamp: time.Now().UnixMilli(),
				Query:     "What is entropy?",
				SessionID: tt.session,
			}

			err := req.Validate()
			if tt.wantErr && err == nil {
				t.Errorf("session %q should be rejected", tt.session)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("session %q should validate, got: %v", tt.session, err)
			}
		})
	}
}

func TestRunRequest_Validate_Params(t *testing.T) {
	base := func() *RunRequest {
		return &RunRequest{
			RequestID: "550e8400-e29b-41d4-a716-446655440000",
			Timestamp: time.Now().UnixMilli(),
			Query:     "What is entropy?",
		}
	}

	t.Run("valid overrides", func(t *testing.T) {
		req := base()
		req.Params = &RunParams{
			TargetConfidence:   0.9,
			TargetMaxStage:     8,
			MaxPasses:          3,
			RiskThreshold:      0.8,
			ConflictStrategy:   "weighted_vote",
			RefinementStrategy: "aggressive",
		}

		if err := req.Validate(); err != nil {
			t.Errorf("expected valid params, got error: %v", err)
		}
	})

	t.Run("target confidence above cap", func(t *testing.T) {
		req := base()
		req.Params = &RunParams{TargetConfidence: 0.995}

		if err := req.Validate(); err == nil {
			t.Error("expected error for target_confidence above 0.99, got nil")
		}
	})

	t.Run("max passes above cap", func(t *testing.T) {
		req := base()
		req.Params = &RunParams{MaxPasses: 21}

		if err := req.Validate(); err == nil {
			t.Error("expected error for max_passes above 20, got nil")
		}
	})

	t.Run("unknown conflict strategy", func(t *testing.T) {
		req := base()
		req.Params = &RunParams{ConflictStrategy: "coin_flip"}

		if err := req.Validate(); err == nil {
			t.Error("expected error for unknown conflict strategy, got nil")
		}
	})

	t.Run("unknown refinement strategy", func(t *testing.T) {
		req := base()
		req.Params = &RunParams{RefinementStrategy: "yolo"}

		if err := req.Validate(); err == nil {
			t.Error("expected error for unknown refinement strategy, got nil")
		}
	})
}

// =============================================================================
// EnsureDefaults Tests
// =============================================================================

func TestRunRequest_EnsureDefaults_GeneratesFields(t *testing.T) {
	req := &RunRequest{Query: "What is entropy?"}

	req.EnsureDefaults()

	if req.RequestID == "" {
		t.Error("EnsureDefaults should generate request_id")
	}
	if req.Timestamp == 0 {
		t.Error("EnsureDefaults should generate timestamp")
	}

	// Generated fields must satisfy the validator.
	if err := req.Validate(); err != nil {
		t.Errorf("request should validate after EnsureDefaults, got: %v", err)
	}
}

func TestRunRequest_EnsureDefaults_PreservesClientValues(t *testing.T) {
	req := &RunRequest{
		RequestID: "550e8400-e29b-41d4-a716-446655440000",
		Timestamp: 1735817400000,
		Query:     "What is entropy?",
	}

	req.EnsureDefaults()

	if req.RequestID != "550e8400-e29b-41d4-a716-446655440000" {
		t.Error("EnsureDefaults should not overwrite client request_id")
	}
	if req.Timestamp != 1735817400000 {
		t.Error("EnsureDefaults should not overwrite client timestamp")
	}
}

// =============================================================================
// EngineParams Tests
// =============================================================================

func TestRunRequest_EngineParams_NoOverrides(t *testing.T) {
	req := &RunRequest{
		Query:     "What is entropy?",
		SessionID: "sess-1",
		UserID:    "user-1",
	}

	p := req.EngineParams()

	if p.Query != req.Query {
		t.Errorf("Query = %q, want %q", p.Query, req.Query)
	}
	if p.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want %q", p.SessionID, "sess-1")
	}
	if p.UserID != "user-1" {
		t.Errorf("UserID = %q, want %q", p.UserID, "user-1")
	}
	if p.TargetConfidence != 0 || p.MaxPasses != 0 {
		t.Error("overrides should stay zero when no params are given")
	}
	if p.Sink != nil {
		t.Error("EngineParams should not attach an event sink")
	}
}

func TestRunRequest_EngineParams_CopiesOverrides(t *testing.T) {
	req := &RunRequest{
		Query: "What is entropy?",
		Params: &RunParams{
			TargetConfidence:   0.75,
			TargetMaxStage:     9,
			MaxPasses:          2,
			RiskThreshold:      0.85,
			ConflictStrategy:   "consensus",
			RefinementStrategy: "conservative",
		},
	}

	p := req.EngineParams()

	if p.TargetConfidence != 0.75 {
		t.Errorf("TargetConfidence = %v, want 0.75", p.TargetConfidence)
	}
	if p.TargetMaxStage != 9 {
		t.Errorf("TargetMaxStage = %v, want 9", p.TargetMaxStage)
	}
	if p.MaxPasses != 2 {
		t.Errorf("MaxPasses = %v, want 2", p.MaxPasses)
	}
	if p.RiskThreshold != 0.85 {
		t.Errorf("RiskThreshold = %v, want 0.85", p.RiskThreshold)
	}
	if p.ConflictStrategy != "consensus" {
		t.Errorf("ConflictStrategy = %q, want consensus", p.ConflictStrategy)
	}
	if p.RefinementStrategy != "conservative" {
		t.Errorf("RefinementStrategy = %q, want conservative", p.RefinementStrategy)
	}
}

// =============================================================================
// RunResponse Tests
// =============================================================================

func TestNewRunResponse_FlattensResult(t *testing.T) {
	res := &engine.RunResult{
		SessionID:  "sess-1",
		Query:      "What is entropy?",
		Status:     engine.StatusCompletedSuccess,
		Confidence: 0.88,
		Passes:     1,
	}

	resp := NewRunResponse("550e8400-e29b-41d4-a716-446655440000", res)

	if resp.ResponseID == "" {
		t.Error("ResponseID should be generated")
	}
	if resp.RequestID != "550e8400-e29b-41d4-a716-446655440000" {
		t.Error("RequestID should echo the request")
	}
	if resp.Timestamp == 0 {
		t.Error("Timestamp should be set")
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	body := string(data)

	// Embedded result fields must appear at the top level.
	for _, want := range []string{
		`"response_id"`,
		`"request_id":"550e8400-e29b-41d4-a716-446655440000"`,
		`"session_id":"sess-1"`,
		`"status":"COMPLETED_SUCCESS"`,
		`"confidence":0.88`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("response JSON missing %s: %s", want, body)
		}
	}
	if strings.Contains(body, `"RunResult"`) {
		t.Errorf("embedded result should flatten, got nested field: %s", body)
	}
}

// =============================================================================
// ValidSessionID Tests
// =============================================================================

func TestValidSessionID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"abc123", true},
		{"a-b_c.d", true},
		{"ABC", true},
		{"", false},
		{"has space", false},
		{"has:colon", false},
		{"path/part", false},
		{"q?uery", false},
		{strings.Repeat("x", MaxSessionIDLength), true},
		{strings.Repeat("x", MaxSessionIDLength+1), false},
	}

	for _, tt := range tests {
		if got := ValidSessionID(tt.id); got != tt.want {
			t.Errorf("ValidSessionID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

// =============================================================================
// HistoryQuery Tests
// =============================================================================

func TestHistoryQuery_Validate(t *testing.T) {
	q := &HistoryQuery{Type: "stage", Stage: "classification", Pass: 1, Limit: 50}
	if err := q.Validate(); err != nil {
		t.Errorf("expected valid query, got: %v", err)
	}

	bad := &HistoryQuery{Limit: 20000}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for limit above 10000, got nil")
	}

	negative := &HistoryQuery{Pass: -1}
	if err := negative.Validate(); err == nil {
		t.Error("expected error for negative pass, got nil")
	}
}
