// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/CascadiaAI/CascadiaMind/services/orchestrator/datatypes"
	"github.com/CascadiaAI/CascadiaMind/services/orchestrator/observability"
	"github.com/CascadiaAI/CascadiaMind/services/simulation/engine"
)

const (
	// writeWait bounds a single WebSocket write.
	writeWait = 10 * time.Second

	// pingInterval is how often idle watcher connections are pinged so
	// intermediaries do not reap them between events.
	pingInterval = 30 * time.Second

	// watcherReadLimit caps inbound frames. Watchers are not expected to
	// send anything beyond control frames.
	watcherReadLimit = 512
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
}

func sendJSON(ws *websocket.Conn, v interface{}) error {
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

// HandleRunEvents upgrades the connection to a WebSocket and streams run
// events for one session.
//
// # Description
//
// The first frame is a hello carrying the watched session ID. After that
// the client receives every engine.Event emitted for the session, in
// order, as JSON frames. When a run reaches a terminal status the
// run_completed event is forwarded and the server closes the connection
// normally; clients watching a session across runs should reconnect.
// Watchers that cannot keep up lose events rather than stalling the run.
func HandleRunEvents(hub *EventHub) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := c.Param("sessionId")
		if !datatypes.ValidSessionID(session) {
			recordFailure(observability.EndpointEvents, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
				Error: "invalid session id",
			})
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("Failed to upgrade the websocket", "error", err)
			recordFailure(observability.EndpointEvents, observability.ErrorCodeInternal)
			return
		}
		defer ws.Close()
		slog.Info("Watcher connected", "sessionId", session)

		if m := observability.DefaultMetrics; m != nil {
			m.WatcherConnected(observability.EndpointEvents)
			defer m.WatcherDisconnected(observability.EndpointEvents)
		}

		events, cancel := hub.Subscribe(session)
		defer cancel()

		if err := sendJSON(ws, map[string]interface{}{
			"action":    "watching",
			"sessionId": session,
		}); err != nil {
			return
		}

		// Watchers only send control frames. The read loop exists to
		// notice the client going away and to service pongs.
		done := make(chan struct{})
		go func() {
			defer close(done)
			ws.SetReadLimit(watcherReadLimit)
			for {
				if _, _, err := ws.NextReader(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				slog.Info("Watcher disconnected", "sessionId", session)
				if m := observability.DefaultMetrics; m != nil {
					m.RecordClientDisconnect(observability.EndpointEvents)
				}
				return

			case <-ticker.C:
				if m := observability.DefaultMetrics; m != nil {
					m.RecordKeepAlive(observability.EndpointEvents)
				}
				deadline := time.Now().Add(writeWait)
				if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}

			case e, ok := <-events:
				if !ok {
					return
				}
				if err := sendJSON(ws, e); err != nil {
					return
				}
				if e.Type == engine.EventRunCompleted {
					msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run completed")
					ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
					return
				}
			}
		}
	}
}
