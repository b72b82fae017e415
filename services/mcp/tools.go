// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/CascadiaAI/CascadiaMind/services/knowledge/memlog"
	"github.com/CascadiaAI/CascadiaMind/services/simulation/engine"
)

// ============================================================================
// run_simulation
// ============================================================================

// RunSimulationTool handles the run_simulation MCP tool.
type RunSimulationTool struct {
	eng *engine.Engine
}

// NewRunSimulationTool creates a RunSimulationTool.
func NewRunSimulationTool(eng *engine.Engine) *RunSimulationTool {
	return &RunSimulationTool{eng: eng}
}

// Definition returns the MCP tool definition for run_simulation.
func (t *RunSimulationTool) Definition() mcp.Tool {
	return mcp.NewTool("run_simulation",
		mcp.WithDescription(
			"Run a query through the staged confidence-escalation pipeline. "+
				"Returns the terminal status, final confidence, per-pass progression, "+
				"and per-stage breakdown.",
		),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The question to simulate"),
		),
		mcp.WithString("session_id",
			mcp.Description("Session to append the run's history to (generated when omitted)"),
		),
		mcp.WithString("user_id",
			mcp.Description("Caller attribution on the run record"),
		),
		mcp.WithNumber("target_confidence",
			mcp.Description("Success target for this run, in (0, 0.99]"),
		),
		mcp.WithNumber("target_max_stage",
			mcp.Description("Deepest escalation stage, 3-10 (default: 7)"),
		),
		mcp.WithNumber("max_passes",
			mcp.Description("Pass budget, 1-20 (default: 5)"),
		),
		mcp.WithNumber("risk_threshold",
			mcp.Description("Containment halt threshold override"),
		),
		mcp.WithString("conflict_strategy",
			mcp.Description("Reasoning conflict strategy: highest_confidence, weighted_vote, consensus"),
		),
		mcp.WithString("refinement_strategy",
			mcp.Description("Refinement boost curve: progressive, aggressive, conservative"),
		),
	)
}

// Handle processes the run_simulation tool call.
func (t *RunSimulationTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}

	params := engine.RunParams{
		Query:              query,
		SessionID:          req.GetString("session_id", ""),
		UserID:             req.GetString("user_id", ""),
		TargetConfidence:   req.GetFloat("target_confidence", 0),
		TargetMaxStage:     req.GetInt("target_max_stage", 0),
		MaxPasses:          req.GetInt("max_passes", 0),
		RiskThreshold:      req.GetFloat("risk_threshold", 0),
		ConflictStrategy:   req.GetString("conflict_strategy", ""),
		RefinementStrategy: req.GetString("refinement_strategy", ""),
	}

	res, err := t.eng.Run(ctx, params)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run failed: %v", err)), nil
	}

	return mcp.NewToolResultText(formatRunResult(res)), nil
}

// formatRunResult renders the compiled run as readable text: headline,
// confidence arithmetic, progression, then the stage table.
func formatRunResult(res *engine.RunResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run %s finished: %s\n", res.SessionID, res.Status)
	if res.Summary != "" {
		fmt.Fprintf(&b, "%s\n", res.Summary)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Confidence: %.4f -> %.4f (gain %+.4f, target %.2f)\n",
		res.InitialConfidence, res.Confidence, res.ConfidenceGain, res.TargetConfidence)
	fmt.Fprintf(&b, "Passes: %d | Risk index: %.3f | Contained: %t\n",
		res.Passes, res.RiskIndex, res.Contained)
	if len(res.Topics) > 0 {
		fmt.Fprintf(&b, "Topics: %s\n", strings.Join(res.Topics, ", "))
	}

	if len(res.Progression) > 0 {
		b.WriteString("\nProgression:\n")
		for _, p := range res.Progression {
			fmt.Fprintf(&b, "  pass %d: confidence %.4f, risk %.3f\n",
				p.Pass, p.Confidence, p.RiskIndex)
		}
	}

	if len(res.Stages) > 0 {
		b.WriteString("\nStage breakdown:\n")
		for _, s := range res.Stages {
			if s.Error != "" {
				fmt.Fprintf(&b, "  %-22s error: %s\n", s.StageID, s.Error)
				continue
			}
			fmt.Fprintf(&b, "  %-22s level %.4f (last delta %+.4f, pass %d)\n",
				s.StageID, s.Contribution, s.Applied, s.Pass)
		}
	}

	if len(res.WeakAreas) > 0 {
		fmt.Fprintf(&b, "\nWeak areas: %s\n", strings.Join(res.WeakAreas, ", "))
	}

	return b.String()
}

// ============================================================================
// get_history
// ============================================================================

// GetHistoryTool handles the get_history MCP tool.
type GetHistoryTool struct {
	mem *memlog.Log
}

// NewGetHistoryTool creates a GetHistoryTool.
func NewGetHistoryTool(mem *memlog.Log) *GetHistoryTool {
	return &GetHistoryTool{mem: mem}
}

// Definition returns the MCP tool definition for get_history.
func (t *GetHistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("get_history",
		mcp.WithDescription(
			"Read a session's run history in append order: run starts, stage "+
				"results, escalations, refinement and containment records, and "+
				"run summaries.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session whose history to read"),
		),
		mcp.WithString("type",
			mcp.Description("Filter by entry type: run_started, stage, escalation, refinement, containment, run_completed"),
		),
		mcp.WithString("stage",
			mcp.Description("Filter by stage ID, e.g. classification or containment"),
		),
		mcp.WithNumber("pass",
			mcp.Description("Filter by 1-based pass number"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max entries returned (default: 1000, max: 10000)"),
		),
	)
}

// Handle processes the get_history tool call.
func (t *GetHistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session := req.GetString("session_id", "")
	if session == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}

	entries, err := t.mem.List(ctx, session, memlog.Filter{
		Type:  req.GetString("type", ""),
		Stage: req.GetString("stage", ""),
		Pass:  req.GetInt("pass", 0),
		Limit: req.GetInt("limit", 0),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read history: %v", err)), nil
	}

	if len(entries) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No history for session %q.", session)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Session %s: %d entries\n\n", session, len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "[%d] %s", e.Seq, e.Type)
		if e.Pass > 0 {
			fmt.Fprintf(&b, " pass=%d", e.Pass)
		}
		if e.Stage != "" {
			fmt.Fprintf(&b, " stage=%s", e.Stage)
		}
		if e.Status != "" {
			fmt.Fprintf(&b, " status=%s", e.Status)
		}
		fmt.Fprintf(&b, " confidence=%.4f", e.Confidence)
		if e.Delta != 0 {
			fmt.Fprintf(&b, " delta=%+.4f", e.Delta)
		}
		if e.Note != "" {
			fmt.Fprintf(&b, "\n    %s", e.Note)
		}
		b.WriteString("\n")
	}

	return mcp.NewToolResultText(b.String()), nil
}

// ============================================================================
// clear_session
// ============================================================================

// ClearSessionTool handles the clear_session MCP tool.
type ClearSessionTool struct {
	mem *memlog.Log
}

// NewClearSessionTool creates a ClearSessionTool.
func NewClearSessionTool(mem *memlog.Log) *ClearSessionTool {
	return &ClearSessionTool{mem: mem}
}

// Definition returns the MCP tool definition for clear_session.
func (t *ClearSessionTool) Definition() mcp.Tool {
	return mcp.NewTool("clear_session",
		mcp.WithDescription(
			"Delete a session's entire run history. This is permanent.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session to clear"),
		),
	)
}

// Handle processes the clear_session tool call.
func (t *ClearSessionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session := req.GetString("session_id", "")
	if session == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}

	deleted, err := t.mem.Clear(ctx, session)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to clear session: %v", err)), nil
	}

	if deleted == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("Session %q had no recorded entries.", session)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Cleared %d entries for session %q.", deleted, session)), nil
}
