// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/CascadiaAI/CascadiaMind/pkg/ux"
)

func runHealthCheck(cmd *cobra.Command, args []string) {
	client := newAPIClient()
	body, err := client.health()
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(body)
		return
	}

	ux.Success("Server is up at " + client.baseURL)
	if nodes, ok := body["graph_nodes"]; ok {
		ux.KeyValue("graph_nodes", fmt.Sprintf("%v", nodes))
	}
	if edges, ok := body["graph_edges"]; ok {
		ux.KeyValue("graph_edges", fmt.Sprintf("%v", edges))
	}
	if sessions, ok := body["sessions"]; ok {
		ux.KeyValue("sessions", fmt.Sprintf("%v", sessions))
	}
}
