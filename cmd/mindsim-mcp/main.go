// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command mindsim-mcp starts the CascadiaMind MCP server on stdio.
//
// It exposes the simulation engine to AI coding tools over the Model
// Context Protocol. The protocol runs on stdout, so all logging goes
// to stderr.
//
// # Environment Variables
//
//   - MINDSIM_SEED_PATH: taxonomy seed file (default: embedded seed)
//   - MINDSIM_DATA_DIR: run history directory (default: in-memory, ephemeral)
//   - MINDSIM_LOG_LEVEL: minimum log level (default: info)
//   - MINDSIM_LOG_DIR: directory for a JSON file copy of the logs
//     (default: stderr only)
//
// # Usage
//
//	Add to your AI tool's MCP config:
//
//	{
//	  "mcpServers": {
//	    "mindsim": {
//	      "command": "mindsim-mcp"
//	    }
//	  }
//	}
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/CascadiaAI/CascadiaMind/pkg/logging"
	"github.com/CascadiaAI/CascadiaMind/services/knowledge/algorithms"
	"github.com/CascadiaAI/CascadiaMind/services/knowledge/graph"
	"github.com/CascadiaAI/CascadiaMind/services/knowledge/memlog"
	"github.com/CascadiaAI/CascadiaMind/services/mcp"
	"github.com/CascadiaAI/CascadiaMind/services/simulation/engine"
)

func main() {
	// stdout carries the MCP transport; logs must stay off it. The
	// engine and collaborators log through slog.Default, so everything
	// funnels into this one logger.
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("MINDSIM_LOG_LEVEL")),
		LogDir:  os.Getenv("MINDSIM_LOG_DIR"),
		Service: "mindsim-mcp",
		JSON:    true,
	})
	slog.SetDefault(logger.Slog())

	err := run()
	if cerr := logger.Close(); cerr != nil {
		fmt.Fprintf(os.Stderr, "closing log file: %v\n", cerr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	g, err := loadTaxonomy()
	if err != nil {
		return fmt.Errorf("loading taxonomy: %w", err)
	}

	mem, err := openMemLog()
	if err != nil {
		return fmt.Errorf("opening memory log: %w", err)
	}
	defer func() {
		if err := mem.Close(); err != nil {
			slog.Warn("Memory log close failed", "error", err)
		}
	}()

	eng := engine.New(engine.DefaultSystemConfig(),
		graph.NewStore(g), mem, algorithms.NewRegistry())

	s := mcp.New(eng, mem)
	slog.Info("Starting mindsim MCP server on stdio")
	return server.ServeStdio(s)
}

func loadTaxonomy() (*graph.Graph, error) {
	if path := os.Getenv("MINDSIM_SEED_PATH"); path != "" {
		slog.Info("Loading taxonomy seed", "path", path)
		return graph.LoadFile(path)
	}
	return graph.LoadDefault()
}

func openMemLog() (*memlog.Log, error) {
	cfg := memlog.InMemoryConfig()
	if dir := os.Getenv("MINDSIM_DATA_DIR"); dir != "" {
		cfg = memlog.DefaultConfig()
		cfg.Path = dir
	} else {
		slog.Warn("No data directory configured, run history is ephemeral")
	}
	return memlog.Open(cfg)
}
