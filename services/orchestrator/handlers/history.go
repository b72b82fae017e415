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

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/CascadiaAI/CascadiaMind/services/knowledge/memlog"
	"github.com/CascadiaAI/CascadiaMind/services/orchestrator/datatypes"
	"github.com/CascadiaAI/CascadiaMind/services/orchestrator/observability"
)

// GetRunHistory returns the memory-log entries for one session in append
// order. Filters arrive as query parameters (type, stage, pass, limit).
// An unknown session yields an empty entry list, not a 404, because the
// log cannot distinguish "never ran" from "ran and was cleared".
func GetRunHistory(mem *memlog.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := runTracer.Start(c.Request.Context(), "GetRunHistory")
		defer span.End()

		session := c.Param("sessionId")
		if !datatypes.ValidSessionID(session) {
			recordFailure(observability.EndpointHistory, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
				Error: "invalid session id",
			})
			return
		}

		var q datatypes.HistoryQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			recordFailure(observability.EndpointHistory, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
				Error:  "invalid query parameters",
				Detail: err.Error(),
			})
			return
		}
		if err := q.Validate(); err != nil {
			recordFailure(observability.EndpointHistory, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
				Error:  "invalid query parameters",
				Detail: err.Error(),
			})
			return
		}

		entries, err := mem.List(ctx, session, memlog.Filter{
			Type:  q.Type,
			Stage: q.Stage,
			Pass:  q.Pass,
			Limit: q.Limit,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to list run history", "error", err, "sessionId", session)
			recordFailure(observability.EndpointHistory, observability.ErrorCodeStoreError)
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{
				Error: "failed to read history",
			})
			return
		}

		if m := observability.DefaultMetrics; m != nil {
			m.RecordRequest(observability.EndpointHistory, true)
		}
		c.JSON(http.StatusOK, datatypes.HistoryResponse{
			SessionID: session,
			Count:     len(entries),
			Entries:   entries,
		})
	}
}

// ClearRunSession deletes every memory-log entry for one session and
// reports how many were removed.
func ClearRunSession(mem *memlog.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := runTracer.Start(c.Request.Context(), "ClearRunSession")
		defer span.End()

		session := c.Param("sessionId")
		if !datatypes.ValidSessionID(session) {
			recordFailure(observability.EndpointClear, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
				Error: "invalid session id",
			})
			return
		}

		slog.Info("Received a request to clear a session", "sessionId", session)
		deleted, err := mem.Clear(ctx, session)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to clear session", "error", err, "sessionId", session)
			recordFailure(observability.EndpointClear, observability.ErrorCodeStoreError)
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{
				Error: "failed to clear session",
			})
			return
		}

		slog.Info("Cleared session", "sessionId", session, "deleted", deleted)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordRequest(observability.EndpointClear, true)
		}
		c.JSON(http.StatusOK, datatypes.ClearResponse{
			SessionID: session,
			Deleted:   deleted,
		})
	}
}

// ListRunSessions returns the IDs of every session with at least one
// memory-log entry, sorted ascending.
func ListRunSessions(mem *memlog.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := runTracer.Start(c.Request.Context(), "ListRunSessions")
		defer span.End()

		sessions, err := mem.Sessions(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to list sessions", "error", err)
			recordFailure(observability.EndpointSessions, observability.ErrorCodeStoreError)
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{
				Error: "failed to list sessions",
			})
			return
		}

		if m := observability.DefaultMetrics; m != nil {
			m.RecordRequest(observability.EndpointSessions, true)
		}
		c.JSON(http.StatusOK, datatypes.SessionsResponse{
			Sessions: sessions,
			Count:    len(sessions),
		})
	}
}
