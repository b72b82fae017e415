// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP and WebSocket surface of the
// orchestrator. Handlers are closures over their collaborators so routes
// can be wired without package-level state.
package handlers

import (
	"sync"

	"github.com/CascadiaAI/CascadiaMind/services/simulation/engine"
)

// watcherBuffer is the per-subscriber channel depth. A watcher that falls
// further behind than this starts losing events rather than stalling the
// run goroutine.
const watcherBuffer = 64

// EventHub fans run events out to WebSocket watchers. It implements
// engine.EventSink, so a single hub can be handed to the engine as the
// sink for every run while watchers subscribe per session.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Emit never blocks; events for
// slow subscribers are dropped.
type EventHub struct {
	mu       sync.RWMutex
	sessions map[string]map[chan engine.Event]struct{}
}

var _ engine.EventSink = (*EventHub)(nil)

// NewEventHub returns an empty hub ready for subscriptions.
func NewEventHub() *EventHub {
	return &EventHub{
		sessions: make(map[string]map[chan engine.Event]struct{}),
	}
}

// Emit delivers e to every subscriber of e.SessionID. Sends are
// non-blocking; a full subscriber channel drops the event.
func (h *EventHub) Emit(e engine.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.sessions[e.SessionID] {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a watcher for the given session and returns the
// event channel plus a cancel function. Cancel is idempotent and closes
// the channel, so receivers can range over it.
func (h *EventHub) Subscribe(session string) (<-chan engine.Event, func()) {
	ch := make(chan engine.Event, watcherBuffer)

	h.mu.Lock()
	subs, ok := h.sessions[session]
	if !ok {
		subs = make(map[chan engine.Event]struct{})
		h.sessions[session] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.sessions[session], ch)
			if len(h.sessions[session]) == 0 {
				delete(h.sessions, session)
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Watchers reports the number of active subscribers for a session.
func (h *EventHub) Watchers(session string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[session])
}
