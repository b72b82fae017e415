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
	"github.com/CascadiaAI/CascadiaMind/services/knowledge/memlog"
)

func runHistory(cmd *cobra.Command, args []string) {
	session := args[0]
	res, err := newAPIClient().history(session, historyFilter{
		Type:  historyType,
		Stage: historyStage,
		Pass:  historyPass,
		Limit: historyLimit,
	})
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(res)
		return
	}
	if res.Count == 0 {
		ux.Muted(fmt.Sprintf("No history for session %s.", session))
		return
	}

	ux.Title("Session History: " + session)
	for _, e := range res.Entries {
		renderHistoryEntry(e)
	}
	fmt.Println()
	ux.Info(fmt.Sprintf("%d entries", res.Count))
}

func renderHistoryEntry(e *memlog.Entry) {
	if ux.Current() == ux.LevelMachine {
		fmt.Printf("seq=%d time=%d type=%s pass=%d stage=%s status=%s confidence=%.4f delta=%+.4f note=%s\n",
			e.Seq, e.TimeMilli, e.Type, e.Pass, e.Stage, e.Status, e.Confidence, e.Delta, e.Note)
		return
	}

	stage := e.Stage
	if stage == "" {
		stage = "-"
	}
	fmt.Printf("  %s %s %4d  %-13s pass %d  %-24s %.4f %s\n",
		ux.IconBullet.Render(),
		ux.Styles.Muted.Render(clockTime(e.TimeMilli)),
		e.Seq, e.Type, e.Pass, stage, e.Confidence,
		ux.Styles.Muted.Render(fmt.Sprintf("%+.4f", e.Delta)))
	if e.Note != "" && ux.Current() == ux.LevelFull {
		fmt.Printf("      %s\n", ux.Styles.Muted.Render(e.Note))
	}
}

func runListSessions(cmd *cobra.Command, args []string) {
	res, err := newAPIClient().listSessions()
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(res)
		return
	}
	if res.Count == 0 {
		ux.Muted("No sessions found.")
		return
	}

	if ux.Current() == ux.LevelMachine {
		for _, s := range res.Sessions {
			fmt.Println(s)
		}
		return
	}

	ux.Title("Recorded Sessions")
	for _, s := range res.Sessions {
		fmt.Printf("  %s %s\n", ux.IconBullet.Render(), s)
	}
	fmt.Println()
	ux.Info(fmt.Sprintf("%d sessions", res.Count))
}

func runClearSession(cmd *cobra.Command, args []string) {
	session := args[0]
	res, err := newAPIClient().clearSession(session)
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	if res.Deleted == 0 {
		ux.Muted(fmt.Sprintf("Session %s had no recorded entries.", session))
		return
	}
	ux.Success(fmt.Sprintf("Cleared %d entries for session %s", res.Deleted, res.SessionID))
}
