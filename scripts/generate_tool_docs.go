// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// generate_tool_docs generates a markdown reference for the MCP tools from
// their in-code definitions.
//
// Usage:
//
//	go run scripts/generate_tool_docs.go > docs/mcp_tools.md
//
// The generated documentation includes:
//   - Full tool inventory with descriptions
//   - Per-tool parameter tables (type, required, description)
//   - Summary statistics
package main

import (
	"fmt"
	"sort"
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"github.com/CascadiaAI/CascadiaMind/services/mcp"
)

func main() {
	// Definitions are pure schema builders, so nil collaborators are fine.
	definitions := []mcptypes.Tool{
		mcp.NewRunSimulationTool(nil).Definition(),
		mcp.NewGetHistoryTool(nil).Definition(),
		mcp.NewClearSessionTool(nil).Definition(),
	}

	generateMarkdown(definitions)
}

// generateMarkdown outputs the full markdown documentation.
func generateMarkdown(definitions []mcptypes.Tool) {
	fmt.Println("# MCP Tool Reference")
	fmt.Println()
	fmt.Println("## Overview")
	fmt.Println()
	fmt.Println("This document describes the tools the `mindsim-mcp` server exposes over the")
	fmt.Println("Model Context Protocol. The definitions live in `services/mcp/tools.go` and")
	fmt.Println("are registered at server startup.")
	fmt.Println()
	fmt.Printf("**Generated:** %s\n", time.Now().UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Println()

	// Statistics
	totalParams := 0
	requiredParams := 0
	for _, def := range definitions {
		totalParams += len(def.InputSchema.Properties)
		requiredParams += len(def.InputSchema.Required)
	}

	fmt.Println("## Summary Statistics")
	fmt.Println()
	fmt.Println("| Metric | Count |")
	fmt.Println("|--------|-------|")
	fmt.Printf("| Total Tools | %d |\n", len(definitions))
	fmt.Printf("| Total Parameters | %d |\n", totalParams)
	fmt.Printf("| Required Parameters | %d |\n", requiredParams)
	fmt.Println()

	// Quick reference table
	fmt.Println("---")
	fmt.Println()
	fmt.Println("## Quick Reference")
	fmt.Println()
	fmt.Println("| Tool | Parameters | Required | Description |")
	fmt.Println("|------|------------|----------|-------------|")
	for _, def := range definitions {
		fmt.Printf("| `%s` | %d | %d | %s |\n",
			def.Name,
			len(def.InputSchema.Properties),
			len(def.InputSchema.Required),
			firstSentence(def.Description))
	}
	fmt.Println()

	// Per-tool details
	fmt.Println("---")
	fmt.Println()
	fmt.Println("## Tools")
	fmt.Println()
	for _, def := range definitions {
		printToolDetails(def)
	}

	// Footer
	fmt.Println("---")
	fmt.Println()
	fmt.Println("*This document is auto-generated from the tool definitions in `services/mcp`.*")
	fmt.Println()
	fmt.Println("*To regenerate: `go run scripts/generate_tool_docs.go > docs/mcp_tools.md`*")
}

// printToolDetails prints the description and parameter table for one tool.
func printToolDetails(def mcptypes.Tool) {
	fmt.Printf("### `%s`\n", def.Name)
	fmt.Println()
	fmt.Println(def.Description)
	fmt.Println()

	if len(def.InputSchema.Properties) == 0 {
		fmt.Println("*No parameters.*")
		fmt.Println()
		return
	}

	required := make(map[string]bool, len(def.InputSchema.Required))
	for _, name := range def.InputSchema.Required {
		required[name] = true
	}

	// Required parameters lead, the rest follow alphabetically.
	names := make([]string, 0, len(def.InputSchema.Properties))
	for name := range def.InputSchema.Properties {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if required[names[i]] != required[names[j]] {
			return required[names[i]]
		}
		return names[i] < names[j]
	})

	fmt.Println("| Parameter | Type | Required | Description |")
	fmt.Println("|-----------|------|----------|-------------|")
	for _, name := range names {
		paramType, description := propertyFields(def.InputSchema.Properties[name])
		marker := "No"
		if required[name] {
			marker = "**Yes**"
		}
		fmt.Printf("| `%s` | %s | %s | %s |\n", name, paramType, marker, description)
	}
	fmt.Println()
}

// propertyFields extracts the type and description from a JSON schema
// property value.
func propertyFields(prop interface{}) (string, string) {
	fields, ok := prop.(map[string]interface{})
	if !ok {
		return "unknown", ""
	}
	paramType, _ := fields["type"].(string)
	description, _ := fields["description"].(string)
	if paramType == "" {
		paramType = "unknown"
	}
	return paramType, description
}

// firstSentence trims a description down to its first sentence for the
// quick reference table.
func firstSentence(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return s[:i+1]
		}
	}
	return s
}
