// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the CascadiaMind CLI.
package ux

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Cascadia color palette - evergreen forest and glacier water
var (
	// Primary palette (brightest to darkest)
	ColorGlacier = lipgloss.Color("#7FD7C4") // Glacier melt - highlights
	ColorFir     = lipgloss.Color("#2FA37C") // Fir green - main brand color
	ColorMoss    = lipgloss.Color("#4C9A6E") // Moss - secondary elements
	ColorRiver   = lipgloss.Color("#3E9BB5") // River blue - interactive elements
	ColorSpruce  = lipgloss.Color("#1F6E5B") // Spruce - borders, accents

	// Dark palette (for backgrounds, muted elements)
	ColorBasalt = lipgloss.Color("#44525A") // Basalt - muted text, borders
	ColorShale  = lipgloss.Color("#2B363C") // Shale - deep backgrounds

	// Semantic colors
	ColorSuccess = lipgloss.Color("#7FD7C4") // Glacier for success
	ColorWarning = lipgloss.Color("#E3B341") // Amber for warnings
	ColorError   = lipgloss.Color("#D9574E") // Red for errors
	ColorMuted   = lipgloss.Color("#44525A") // Basalt for muted text
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	// Text styles
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Key       lipgloss.Style

	// Box styles
	Box      lipgloss.Style
	ErrorBox lipgloss.Style

	// Status indicators
	StatusOK      lipgloss.Style
	StatusWarning lipgloss.Style
	StatusError   lipgloss.Style
	StatusPending lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorGlacier),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorFir),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorBasalt),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorGlacier).Bold(true),
	Key:       lipgloss.NewStyle().Foreground(ColorRiver),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorSpruce).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),

	StatusOK:      lipgloss.NewStyle().SetString("✓").Foreground(ColorSuccess),
	StatusWarning: lipgloss.NewStyle().SetString("⚠").Foreground(ColorWarning),
	StatusError:   lipgloss.NewStyle().SetString("✗").Foreground(ColorError),
	StatusPending: lipgloss.NewStyle().SetString("○").Foreground(ColorBasalt),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
	IconPeak    Icon = "▲"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// Print helpers that respect the output level

// Title prints a styled title
func Title(text string) {
	if Current() == LevelMachine {
		return
	}
	fmt.Println(Styles.Title.Render(text))
}

// Success prints a success message with checkmark
func Success(text string) {
	switch Current() {
	case LevelMachine:
		fmt.Fprintf(os.Stdout, "OK: %s\n", text)
	case LevelMinimal:
		fmt.Printf("%s %s\n", IconSuccess.Render(), text)
	default:
		fmt.Printf("%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning message
func Warning(text string) {
	switch Current() {
	case LevelMachine:
		fmt.Fprintf(os.Stderr, "WARN: %s\n", text)
	case LevelMinimal:
		fmt.Printf("%s %s\n", IconWarning.Render(), text)
	default:
		fmt.Printf("%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error message
func Error(text string) {
	switch Current() {
	case LevelMachine:
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", text)
	case LevelMinimal:
		fmt.Printf("%s %s\n", IconError.Render(), text)
	default:
		fmt.Printf("%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational message
func Info(text string) {
	if Current() == LevelMachine {
		fmt.Println(text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints muted/secondary text
func Muted(text string) {
	if Current() == LevelMachine {
		return
	}
	fmt.Println(Styles.Muted.Render(text))
}

// KeyValue prints an aligned key/value line
func KeyValue(key, value string) {
	if Current() == LevelMachine {
		fmt.Printf("%s=%s\n", key, value)
		return
	}
	fmt.Printf("  %s %s\n", Styles.Key.Render(fmt.Sprintf("%-18s", key)), value)
}

// Box prints text in a rounded box. Levels below full collapse to a
// plain "title: content" line.
func Box(title, content string) {
	if Current() != LevelFull {
		fmt.Printf("%s: %s\n", title, content)
		return
	}
	boxStyle := Styles.Box.Width(64)
	titleLine := Styles.Title.Render(title)
	fmt.Println(boxStyle.Render(titleLine + "\n" + content))
}

// StatusBadge renders a run status string in the color that matches its
// outcome: success in glacier, pass exhaustion in amber, containment and
// failure in red.
func StatusBadge(status string) string {
	if Current() == LevelMachine {
		return status
	}
	switch {
	case status == "COMPLETED_SUCCESS":
		return Styles.Success.Bold(true).Render(status)
	case status == "MAX_PASSES_REACHED":
		return Styles.Warning.Bold(true).Render(status)
	case status == "FAILED" || strings.HasPrefix(status, "CONTAINED_"):
		return Styles.Error.Bold(true).Render(status)
	case status == "RUNNING":
		return Styles.Key.Render(status)
	default:
		return Styles.Bold.Render(status)
	}
}

// ConfidenceBar renders confidence as a horizontal bar with a tick at the
// target. Both values are expected in [0, 1]; the bar fills green once the
// target is reached.
func ConfidenceBar(confidence, target float64, width int) string {
	if Current() == LevelMachine {
		return fmt.Sprintf("%.4f/%.2f", confidence, target)
	}
	if width <= 0 {
		width = 30
	}
	filled := int(confidence * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	tick := int(target * float64(width))
	if tick >= width {
		tick = width - 1
	}

	fillStyle := Styles.Key
	if confidence >= target {
		fillStyle = Styles.Success
	}

	var b strings.Builder
	for i := 0; i < width; i++ {
		switch {
		case i == tick && i >= filled:
			b.WriteString(Styles.Warning.Render("┊"))
		case i < filled:
			b.WriteString(fillStyle.Render("█"))
		default:
			b.WriteString(Styles.Muted.Render("░"))
		}
	}
	return fmt.Sprintf("%s %.4f", b.String(), confidence)
}
