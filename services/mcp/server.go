// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package mcp exposes the simulation engine over the Model Context
// Protocol so AI coding tools can run escalation simulations and read
// their history without going through the HTTP service.
//
// This file is the composition root: it wires the engine and memory
// log into tool handlers and registers them on the MCP server. No
// simulation logic lives here.
package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/CascadiaAI/CascadiaMind/services/knowledge/memlog"
	"github.com/CascadiaAI/CascadiaMind/services/simulation/engine"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates the MCP server with the simulation tools registered.
// The engine and memory log are shared with the caller; closing them
// remains the caller's responsibility.
func New(eng *engine.Engine, mem *memlog.Log) *server.MCPServer {
	s := server.NewMCPServer(
		"mindsim",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	runTool := NewRunSimulationTool(eng)
	s.AddTool(runTool.Definition(), runTool.Handle)

	historyTool := NewGetHistoryTool(mem)
	s.AddTool(historyTool.Definition(), historyTool.Handle)

	clearTool := NewClearSessionTool(mem)
	s.AddTool(clearTool.Definition(), clearTool.Handle)

	return s
}

// serverInstructions tells the AI client what the tools do and how the
// confidence model behaves.
func serverInstructions() string {
	return `You have access to MindSim, a staged confidence-escalation simulator.

## Tools

- run_simulation: run a query through the escalation pipeline. The run
  starts from a prior confidence and executes up to max_passes passes of
  staged analysis, escalating to deeper stages while confidence sits
  below the target. The result reports the terminal status, the final
  confidence, the per-pass progression, and a per-stage breakdown.
- get_history: read the append-only entry log of a session (run starts,
  stage results, escalations, containment records, run summaries).
  Filter by entry type, stage, or pass when you only need part of it.
- clear_session: delete a session's history. This is permanent.

## Reading results

- COMPLETED_SUCCESS means confidence reached the target.
- MAX_PASSES_REACHED means the pass budget ran out first; the final
  confidence is still reported and may be useful.
- CONTAINED_* statuses mean the safety gate halted the run. Treat the
  output as partial.
- Confidence is capped below 1.0. A query that stops gaining confidence
  across passes has exhausted what the taxonomy can support; rephrasing
  with more specific domain terms usually helps more than raising
  max_passes.

## Session IDs

Reuse one session_id per line of investigation so its history reads as
a single narrative. Omit session_id to get a fresh generated one, and
read it back from the run output.`
}
