// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command mindctl is the operator CLI for the CascadiaMind simulation
// server. It submits runs, streams live escalation events, inspects and
// clears session history, and exports archives for upload to GCS.
//
// # Environment Variables
//
//   - MINDSIM_URL: Server base URL (default http://localhost:12210)
//   - MINDSIM_TOKEN: Bearer token for authenticated servers
//   - MINDSIM_PERSONALITY: Output style (full/standard/minimal/machine)
//   - MINDSIM_CONFIG: Path to the CLI config file
//     (default ~/.config/mindctl/config.yaml)
//
// # Usage
//
//	mindctl run "What is entropy and energy in physics?"
//	mindctl watch my-session
//	mindctl history my-session --type stage --pass 1
//	mindctl export my-session -o archive.json
//	mindctl upload ./archives --bucket my-bucket --project my-project
package main

import (
	"os"
)

func main() {
	// Execute the root command. Cobra handles parsing the arguments.
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
