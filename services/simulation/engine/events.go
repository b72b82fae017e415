// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import "time"

// Event types emitted over a run's lifecycle.
const (
	EventRunStarted     = "run_started"
	EventStageCompleted = "stage_completed"
	EventEscalation     = "escalation"
	EventPassCompleted  = "pass_completed"
	EventRunCompleted   = "run_completed"
)

// Event is one progress notification from a running simulation.
type Event struct {
	// Type is one of the Event* constants.
	Type string `json:"type"`

	// SessionID identifies the run.
	SessionID string `json:"session_id"`

	// Pass is the 1-based pass number, 0 for run-scoped events.
	Pass int `json:"pass,omitempty"`

	// Stage is the stage ID for stage-scoped events.
	Stage string `json:"stage,omitempty"`

	// Confidence is the run confidence after the event.
	Confidence float64 `json:"confidence"`

	// RiskIndex is the current risk index.
	RiskIndex float64 `json:"risk_index,omitempty"`

	// Status is the run status for terminal events.
	Status string `json:"status,omitempty"`

	// Note is a short human-readable summary.
	Note string `json:"note,omitempty"`

	// TimeMilli is the event time in Unix milliseconds.
	TimeMilli int64 `json:"time_milli"`
}

// EventSink receives run events. Emit is called on the run goroutine
// and must not block; slow consumers should buffer or drop.
type EventSink interface {
	Emit(e Event)
}

// SinkFunc adapts a function to the EventSink interface.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// emit delivers an event to the sink, tolerating a nil sink.
func emit(sink EventSink, e Event) {
	if sink == nil {
		return
	}
	e.TimeMilli = time.Now().UnixMilli()
	sink.Emit(e)
}
