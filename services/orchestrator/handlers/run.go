// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/CascadiaAI/CascadiaMind/services/orchestrator/datatypes"
	"github.com/CascadiaAI/CascadiaMind/services/orchestrator/observability"
	"github.com/CascadiaAI/CascadiaMind/services/simulation/engine"
)

var runTracer = otel.Tracer("cascadia.orchestrator.handlers")

// HandleRun executes one simulation run synchronously and returns the
// compiled result.
//
// # Description
//
// The request body is a datatypes.RunRequest. Missing request_id and
// timestamp fields are filled in before validation so minimal clients can
// post just a query. The run streams its progress through the hub, so
// watchers subscribed to the session over /events see the same run this
// handler is blocking on.
//
// # Outputs
//
//   - 200 with a datatypes.RunResponse on any terminal run status,
//     including contained and max-passes outcomes
//   - 400 when the body cannot be parsed or fails validation
//   - 500 when the engine cannot run at all
func HandleRun(eng *engine.Engine, hub *EventHub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := runTracer.Start(c.Request.Context(), "HandleRun")
		defer span.End()

		var req datatypes.RunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to parse the run request", "error", err)
			recordFailure(observability.EndpointRun, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
				Error:  "invalid request body",
				Detail: err.Error(),
			})
			return
		}

		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Run request failed validation", "error", err)
			recordFailure(observability.EndpointRun, observability.ErrorCodeValidation)
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
				Error:  "invalid request",
				Detail: err.Error(),
			})
			return
		}

		params := req.EngineParams()
		if hub != nil {
			params.Sink = hub
		}

		if m := observability.DefaultMetrics; m != nil {
			m.RunStarted()
			defer m.RunEnded()
		}

		started := time.Now()
		res, err := eng.Run(ctx, params)
		elapsed := time.Since(started)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())

			status := http.StatusInternalServerError
			code := observability.ErrorCodeInternal
			if errors.Is(err, engine.ErrEmptyQuery) || errors.Is(err, engine.ErrInvalidParams) {
				status = http.StatusBadRequest
				code = observability.ErrorCodeValidation
			} else if !errors.Is(err, engine.ErrMissingCollaborator) {
				code = observability.ErrorCodeEngineFailure
			}

			slog.Error("Run failed", "error", err, "sessionId", params.SessionID)
			recordFailure(observability.EndpointRun, code)
			c.JSON(status, datatypes.ErrorResponse{
				Error:  "run failed",
				Detail: err.Error(),
			})
			return
		}

		span.SetAttributes(
			attribute.String("run.session_id", res.SessionID),
			attribute.String("run.status", string(res.Status)),
			attribute.Int("run.passes", res.Passes),
			attribute.Float64("run.confidence", res.Confidence),
		)
		slog.Info("Run completed",
			"sessionId", res.SessionID,
			"status", res.Status,
			"passes", res.Passes,
			"confidence", res.Confidence,
			"durationMs", elapsed.Milliseconds())

		if m := observability.DefaultMetrics; m != nil {
			m.RecordRequest(observability.EndpointRun, true)
			m.RecordRun(string(res.Status), elapsed.Seconds(), res.Passes, res.ConfidenceGain)
		}
		c.JSON(http.StatusOK, datatypes.NewRunResponse(req.RequestID, res))
	}
}

// recordFailure notes a failed request on the shared metrics when they are
// initialized, which they are not in most unit tests.
func recordFailure(endpoint observability.Endpoint, code observability.ErrorCode) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordRequest(endpoint, false)
		m.RecordError(endpoint, code)
	}
}
