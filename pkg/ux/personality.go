// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// Level controls how much visual styling CLI output carries.
type Level string

const (
	// LevelFull enables banners, boxes, colors, and progress rendering.
	LevelFull Level = "full"

	// LevelStandard enables colors and icons but skips banners and boxes.
	LevelStandard Level = "standard"

	// LevelMinimal uses icons and plain text only.
	LevelMinimal Level = "minimal"

	// LevelMachine emits greppable plain text for scripts and pipes.
	LevelMachine Level = "machine"
)

var (
	currentLevel = LevelFull
	levelMu      sync.RWMutex
)

// Current returns the active output level.
func Current() Level {
	levelMu.RLock()
	defer levelMu.RUnlock()
	return currentLevel
}

// SetLevel replaces the active output level.
func SetLevel(l Level) {
	levelMu.Lock()
	defer levelMu.Unlock()
	currentLevel = l
}

// ParseLevel converts a user-supplied string to a Level. Unrecognized
// values fall back to LevelStandard so a typo never silences output.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "full", "f":
		return LevelFull
	case "standard", "std", "s":
		return LevelStandard
	case "minimal", "min", "m":
		return LevelMinimal
	case "machine", "plain", "q":
		return LevelMachine
	default:
		return LevelStandard
	}
}

// Init picks the output level for this process: the MINDSIM_PERSONALITY
// environment variable wins, then a terminal check. Output that is piped
// or redirected drops to machine level so downstream tools see plain text.
func Init() {
	if env := os.Getenv("MINDSIM_PERSONALITY"); env != "" {
		SetLevel(ParseLevel(env))
		return
	}
	if !stdoutIsTerminal() {
		SetLevel(LevelMachine)
		return
	}
	SetLevel(LevelFull)
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// IsInteractive reports whether prompting the user makes sense: stdout is
// a terminal and the caller has not forced machine output.
func IsInteractive() bool {
	return Current() != LevelMachine && stdoutIsTerminal()
}

// ShowProgress reports whether animated progress indicators should render.
func ShowProgress() bool {
	return Current() != LevelMachine
}
