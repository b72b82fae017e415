// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/CascadiaAI/CascadiaMind/pkg/ux"
	"github.com/CascadiaAI/CascadiaMind/services/knowledge/memlog"
)

// sessionArchive is the on-disk export format: the full memory log of one
// session plus enough metadata to identify where it came from.
type sessionArchive struct {
	SessionID  string          `json:"session_id"`
	Server     string          `json:"server"`
	ExportedAt int64           `json:"exported_at"`
	Count      int             `json:"count"`
	Entries    []*memlog.Entry `json:"entries"`
}

// runExportSession pulls a session's full history and writes it to a JSON
// archive file suitable for mindctl upload.
func runExportSession(cmd *cobra.Command, args []string) {
	session := args[0]
	client := newAPIClient()

	res, err := client.history(session, historyFilter{Limit: 10000})
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}
	if res.Count == 0 {
		ux.Muted(fmt.Sprintf("No history for session %s; nothing to export.", session))
		return
	}

	archive := sessionArchive{
		SessionID:  session,
		Server:     client.baseURL,
		ExportedAt: time.Now().UnixMilli(),
		Count:      res.Count,
		Entries:    res.Entries,
	}

	outPath := exportOutput
	if outPath == "" {
		outPath = archiveFileName(session)
	}

	raw, err := json.MarshalIndent(archive, "", "  ")
	if err != nil {
		ux.Error("Failed to encode archive: " + err.Error())
		os.Exit(1)
	}
	if err := os.WriteFile(outPath, raw, 0644); err != nil {
		ux.Error("Failed to write archive: " + err.Error())
		os.Exit(1)
	}

	ux.Success(fmt.Sprintf("Exported %d entries for session %s to %s", res.Count, session, outPath))
}
