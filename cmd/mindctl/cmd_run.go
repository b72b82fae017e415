// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/CascadiaAI/CascadiaMind/pkg/ux"
	"github.com/CascadiaAI/CascadiaMind/services/orchestrator/datatypes"
)

// runSimulation submits a query to the server and renders the compiled
// result. Without a query argument on an interactive terminal it opens a
// short form instead.
func runSimulation(cmd *cobra.Command, args []string) {
	query := strings.TrimSpace(strings.Join(args, " "))

	if query == "" && ux.IsInteractive() {
		var err error
		query, err = promptRunForm()
		if errors.Is(err, huh.ErrUserAborted) {
			ux.Muted("Cancelled.")
			return
		}
		if err != nil {
			ux.Error("Form failed: " + err.Error())
			os.Exit(1)
		}
	}
	if query == "" {
		ux.Error("No query given. Usage: mindctl run \"your question\"")
		os.Exit(1)
	}

	req := &datatypes.RunRequest{
		Query:     query,
		SessionID: runSessionID,
		UserID:    runUserID,
		Params:    buildRunParams(),
	}
	if req.UserID == "" {
		req.UserID = config.DefaultUser
	}

	spin := ux.NewSpinner("Escalating through the stage chain...")
	spin.Start()
	res, err := newAPIClient().run(req)
	spin.Stop()
	if err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}

	if jsonOutput {
		printJSON(res)
		return
	}
	renderRunResult(res)
}

// promptRunForm collects a query and the common overrides interactively.
func promptRunForm() (string, error) {
	var query string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Query").
				Placeholder("What do you want simulated?").
				Value(&query).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("a query is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Session ID (optional)").
				Description("Reuse a session to accumulate history across runs").
				Value(&runSessionID),
			huh.NewSelect[string]().
				Title("Refinement strategy").
				Options(
					huh.NewOption("progressive (default)", ""),
					huh.NewOption("aggressive", "aggressive"),
					huh.NewOption("conservative", "conservative"),
				).
				Value(&runRefinement),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return strings.TrimSpace(query), nil
}

// buildRunParams maps the override flags onto the request params block,
// returning nil when every override is at its zero value so the server
// applies its own defaults.
func buildRunParams() *datatypes.RunParams {
	if runTarget == 0 && runMaxStage == 0 && runMaxPasses == 0 &&
		runRisk == 0 && runConflict == "" && runRefinement == "" {
		return nil
	}
	return &datatypes.RunParams{
		TargetConfidence:   runTarget,
		TargetMaxStage:     runMaxStage,
		MaxPasses:          runMaxPasses,
		RiskThreshold:      runRisk,
		ConflictStrategy:   runConflict,
		RefinementStrategy: runRefinement,
	}
}

func renderRunResult(res *datatypes.RunResponse) {
	if res == nil || res.RunResult == nil {
		ux.Error("Server returned an empty result.")
		os.Exit(1)
	}

	ux.Title("Simulation Result")
	ux.KeyValue("session", res.SessionID)
	ux.KeyValue("status", ux.StatusBadge(string(res.Status)))
	ux.KeyValue("confidence", ux.ConfidenceBar(res.Confidence, res.TargetConfidence, 30))
	ux.KeyValue("initial", fmt.Sprintf("%.4f", res.InitialConfidence))
	ux.KeyValue("gain", fmt.Sprintf("%+.4f", res.ConfidenceGain))
	ux.KeyValue("passes", strconv.Itoa(res.Passes))
	ux.KeyValue("risk_index", fmt.Sprintf("%.3f", res.RiskIndex))
	ux.KeyValue("elapsed_ms", fmt.Sprintf("%.0f", res.ElapsedMS))
	if len(res.Topics) > 0 {
		ux.KeyValue("topics", strings.Join(res.Topics, ", "))
	}
	if res.Contained {
		ux.Warning("The safety gate contained this run before it reached its target.")
	}
	ux.Info(res.Summary)

	if len(res.Progression) > 0 {
		fmt.Println()
		ux.Title("Passes")
		for _, p := range res.Progression {
			if ux.Current() == ux.LevelMachine {
				fmt.Printf("pass=%d confidence=%.4f risk=%.3f\n", p.Pass, p.Confidence, p.RiskIndex)
				continue
			}
			fmt.Printf("  %s pass %d  %s\n",
				ux.IconArrow.Render(), p.Pass,
				ux.ConfidenceBar(p.Confidence, res.TargetConfidence, 24))
		}
	}

	if len(res.Stages) > 0 {
		fmt.Println()
		ux.Title("Stage Breakdown")
		for _, s := range res.Stages {
			if s.Error != "" {
				if ux.Current() == ux.LevelMachine {
					fmt.Printf("stage=%s pass=%d error=%s\n", s.StageID, s.Pass, s.Error)
				} else {
					fmt.Printf("  %s %-24s %s\n",
						ux.IconError.Render(), s.StageID, ux.Styles.Error.Render(s.Error))
				}
				continue
			}
			if ux.Current() == ux.LevelMachine {
				fmt.Printf("stage=%s pass=%d contribution=%.4f applied=%+.4f elapsed_ms=%.0f\n",
					s.StageID, s.Pass, s.Contribution, s.Applied, s.ElapsedMS)
				continue
			}
			fmt.Printf("  %s %-24s %.4f %s\n",
				ux.IconBullet.Render(), s.StageID, s.Contribution,
				ux.Styles.Muted.Render(fmt.Sprintf("(%+.4f on pass %d, %.0fms)", s.Applied, s.Pass, s.ElapsedMS)))
		}
	}

	if len(res.WeakAreas) > 0 {
		fmt.Println()
		ux.Warning("Weak areas: " + strings.Join(res.WeakAreas, ", "))
	}
}
