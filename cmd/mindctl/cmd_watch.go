// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/CascadiaAI/CascadiaMind/pkg/ux"
	"github.com/CascadiaAI/CascadiaMind/services/simulation/engine"
)

const maxWatchLines = 14

// runWatchSession attaches to a session's live event stream. On a terminal
// it runs a small TUI; on a pipe it prints one machine line per event.
func runWatchSession(cmd *cobra.Command, args []string) {
	session := args[0]
	client := newAPIClient()

	header := http.Header{}
	if client.token != "" {
		header.Set("Authorization", "Bearer "+client.token)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(client.eventsURL(session), header)
	if err != nil {
		if resp != nil {
			ux.Error(fmt.Sprintf("Failed to connect to event stream: %v (%s)", err, resp.Status))
		} else {
			ux.Error("Failed to connect to event stream: " + err.Error())
		}
		os.Exit(1)
	}
	defer conn.Close()

	// The first frame is the server's hello confirming the watch.
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var hello map[string]interface{}
	if err := conn.ReadJSON(&hello); err != nil {
		ux.Error("Event stream did not answer: " + err.Error())
		os.Exit(1)
	}
	conn.SetReadDeadline(time.Time{})

	if !ux.ShowProgress() {
		watchPlain(conn, session)
		return
	}

	m := newWatchModel(session, conn)
	finalModel, err := tea.NewProgram(m).Run()
	if err != nil {
		ux.Error("Watch TUI failed: " + err.Error())
		os.Exit(1)
	}

	if wm, ok := finalModel.(watchModel); ok {
		if wm.err != nil {
			ux.Error("Event stream ended with an error: " + wm.err.Error())
			os.Exit(1)
		}
		if wm.status != "" {
			ux.Success("Run finished: " + ux.StatusBadge(wm.status))
		}
	}
}

// watchPlain streams events as greppable lines until the run completes or
// the connection drops.
func watchPlain(conn *websocket.Conn, session string) {
	fmt.Printf("watching=%s\n", session)
	for {
		var ev engine.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			ux.Error("Event stream closed: " + err.Error())
			os.Exit(1)
		}
		fmt.Printf("type=%s pass=%d stage=%s confidence=%.4f risk=%.3f status=%s\n",
			ev.Type, ev.Pass, ev.Stage, ev.Confidence, ev.RiskIndex, ev.Status)
		if ev.Type == engine.EventRunCompleted {
			return
		}
	}
}

// --- Watch TUI ---

type wsEventMsg engine.Event

type wsClosedMsg struct{}

type wsErrMsg struct{ err error }

type watchModel struct {
	session string
	conn    *websocket.Conn
	spin    spinner.Model
	lines   []string
	status  string
	err     error
	done    bool
}

func newWatchModel(session string, conn *websocket.Conn) watchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = ux.Styles.Highlight
	return watchModel{
		session: session,
		conn:    conn,
		spin:    sp,
	}
}

// listenForEvent reads one frame from the event stream.
func listenForEvent(conn *websocket.Conn) tea.Cmd {
	return func() tea.Msg {
		var ev engine.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return wsClosedMsg{}
			}
			return wsErrMsg{err}
		}
		return wsEventMsg(ev)
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, listenForEvent(m.conn))
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.conn.Close()
			return m, tea.Quit
		default:
			if msg.String() == "q" {
				m.conn.Close()
				return m, tea.Quit
			}
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case wsEventMsg:
		ev := engine.Event(msg)
		m.lines = append(m.lines, formatEventLine(ev))
		if len(m.lines) > maxWatchLines {
			m.lines = m.lines[len(m.lines)-maxWatchLines:]
		}
		if ev.Type == engine.EventRunCompleted {
			m.done = true
			m.status = ev.Status
			return m, tea.Quit
		}
		return m, listenForEvent(m.conn)

	case wsClosedMsg:
		m.done = true
		return m, tea.Quit

	case wsErrMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m watchModel) View() string {
	s := ux.Styles.Title.Render("Watching session "+m.session) + "\n\n"
	for _, line := range m.lines {
		s += line + "\n"
	}
	if !m.done {
		s += "\n" + m.spin.View() + ux.Styles.Muted.Render(" waiting for events (q to quit)")
	}
	return s
}

func formatEventLine(ev engine.Event) string {
	ts := ux.Styles.Muted.Render(clockTime(ev.TimeMilli))
	switch ev.Type {
	case engine.EventRunStarted:
		return fmt.Sprintf("%s %s run started  confidence %.4f", ts, ux.IconArrow.Render(), ev.Confidence)
	case engine.EventStageCompleted:
		return fmt.Sprintf("%s %s pass %d  %-24s %.4f", ts, ux.IconBullet.Render(), ev.Pass, ev.Stage, ev.Confidence)
	case engine.EventEscalation:
		return fmt.Sprintf("%s %s escalation after pass %d  %s", ts, ux.IconPeak.Render(), ev.Pass, ev.Note)
	case engine.EventPassCompleted:
		return fmt.Sprintf("%s %s pass %d complete  confidence %.4f  risk %.3f", ts, ux.IconArrow.Render(), ev.Pass, ev.Confidence, ev.RiskIndex)
	case engine.EventRunCompleted:
		return fmt.Sprintf("%s %s run finished  %s  confidence %.4f", ts, ux.IconSuccess.Render(), ux.StatusBadge(ev.Status), ev.Confidence)
	default:
		return fmt.Sprintf("%s %s %s", ts, ux.IconBullet.Render(), ev.Type)
	}
}
