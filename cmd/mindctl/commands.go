// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"

	"github.com/CascadiaAI/CascadiaMind/pkg/ux"
)

// --- Global Command Variables ---
var (
	serverURL        string // CLI override for the simulation server base URL
	authToken        string // Bearer token sent with every request
	personalityLevel string // UX personality level (full/standard/minimal/machine)
	jsonOutput       bool   // Emit raw JSON instead of styled output

	runSessionID  string
	runUserID     string
	runTarget     float64
	runMaxStage   int
	runMaxPasses  int
	runRisk       float64
	runConflict   string
	runRefinement string
	historyType   string
	historyStage  string
	historyPass   int
	historyLimit  int
	exportOutput  string
	uploadBucket  string
	uploadProject string
	uploadKeyFile string
	uploadPrefix  string

	rootCmd = &cobra.Command{
		Use:   "mindctl",
		Short: "A cli to drive and inspect the CascadiaMind simulation server",
		Long: `mindctl talks to a running CascadiaMind server: submit simulation
				runs, watch escalation passes live, inspect and export session
				history, and ship exported archives to cloud storage.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if personalityLevel != "" {
				ux.SetLevel(ux.ParseLevel(personalityLevel))
			} else {
				ux.Init()
			}
			loadCLIConfig()
		},
	}

	// --- Simulation ---
	runCmd = &cobra.Command{
		Use:   "run [query]",
		Short: "Submit a query for staged confidence escalation",
		Long: `Runs a simulation against the server and prints the compiled result.
				With no query argument on an interactive terminal, opens a short
				form instead.`,
		Run: runSimulation, // Defined in cmd_run.go
	}

	watchCmd = &cobra.Command{
		Use:   "watch [session-id]",
		Short: "Stream live run events for a session",
		Args:  cobra.ExactArgs(1),
		Run:   runWatchSession, // Defined in cmd_watch.go
	}

	// --- Sessions / History ---
	sessionsCmd = &cobra.Command{
		Use:   "sessions",
		Short: "List sessions with recorded history",
		Run:   runListSessions, // Defined in cmd_history.go
	}

	historyCmd = &cobra.Command{
		Use:   "history [session-id]",
		Short: "Show the recorded memory log for a session",
		Args:  cobra.ExactArgs(1),
		Run:   runHistory, // Defined in cmd_history.go
	}

	clearCmd = &cobra.Command{
		Use:   "clear [session-id]",
		Short: "Delete all recorded history for a session",
		Args:  cobra.ExactArgs(1),
		Run:   runClearSession, // Defined in cmd_history.go
	}

	// --- Archives ---
	exportCmd = &cobra.Command{
		Use:   "export [session-id]",
		Short: "Export a session's history to a JSON archive file",
		Args:  cobra.ExactArgs(1),
		Run:   runExportSession, // Defined in cmd_export.go
	}

	uploadCmd = &cobra.Command{
		Use:   "upload [file or directory]",
		Short: "Upload exported archives to a GCS bucket",
		Args:  cobra.ExactArgs(1),
		Run:   runUploadArchives, // Defined in cmd_upload.go
	}

	// --- Diagnostics ---
	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Check server liveness and taxonomy summary",
		Run:   runHealthCheck, // Defined in cmd_health.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"Server base URL (default: MINDSIM_URL env or http://localhost:12210)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "",
		"Bearer token for authenticated servers (default: MINDSIM_TOKEN env)")
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full (default), standard, minimal, or machine (scripting)")

	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runSessionID, "session", "s", "", "Session ID to run under (server generates one when empty)")
	runCmd.Flags().StringVarP(&runUserID, "user", "u", "", "User ID recorded with the run")
	runCmd.Flags().Float64Var(&runTarget, "target-confidence", 0, "Confidence needed to finish, (0, 0.99]")
	runCmd.Flags().IntVar(&runMaxStage, "max-stage", 0, "Deepest stage of the first pass, 3-10")
	runCmd.Flags().IntVar(&runMaxPasses, "max-passes", 0, "Escalation pass budget, 1-20")
	runCmd.Flags().Float64Var(&runRisk, "risk-threshold", 0, "Containment halt threshold, (0, 1]")
	runCmd.Flags().StringVar(&runConflict, "conflict", "", "Conflict strategy: highest_confidence, weighted_vote, consensus")
	runCmd.Flags().StringVar(&runRefinement, "refinement", "", "Refinement strategy: progressive, aggressive, conservative")
	runCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the raw JSON response")

	rootCmd.AddCommand(watchCmd)

	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the raw JSON response")

	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVar(&historyType, "type", "", "Only entries of this type (run_started, stage, escalation, refinement, containment, run_completed)")
	historyCmd.Flags().StringVar(&historyStage, "stage", "", "Only entries for this stage ID")
	historyCmd.Flags().IntVar(&historyPass, "pass", 0, "Only entries for this pass number")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "Maximum entries to fetch (server default 1000)")
	historyCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the raw JSON response")

	rootCmd.AddCommand(clearCmd)

	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output filename (default: mindsim_{session}_{date}.json)")

	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringVar(&uploadBucket, "bucket", "", "GCS bucket name (default from config file)")
	uploadCmd.Flags().StringVar(&uploadProject, "project", "", "GCP project ID (default from config file)")
	uploadCmd.Flags().StringVar(&uploadKeyFile, "key-file", "", "Service account key path (default: application default credentials)")
	uploadCmd.Flags().StringVar(&uploadPrefix, "prefix", "archives", "Object name prefix inside the bucket")

	rootCmd.AddCommand(healthCmd)
	healthCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the raw JSON response")
}
