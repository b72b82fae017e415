// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CascadiaAI/CascadiaMind/services/knowledge/graph"
	"github.com/CascadiaAI/CascadiaMind/services/knowledge/memlog"
	"github.com/CascadiaAI/CascadiaMind/services/orchestrator/handlers"
	"github.com/CascadiaAI/CascadiaMind/services/orchestrator/middleware"
	"github.com/CascadiaAI/CascadiaMind/services/simulation/engine"
)

// SetupRoutes mounts the orchestrator's endpoints on router.
//
// Probes and scrapes (/healthz, /metrics) sit at the root so they work
// without credentials. Everything under /v1 passes through bearer auth
// and per-client rate limiting; a nil guard or limiter disables the
// respective check.
func SetupRoutes(router *gin.Engine, eng *engine.Engine, hub *handlers.EventHub,
	mem *memlog.Log, taxonomy *graph.Store, guard *middleware.TokenGuard,
	limiter *middleware.RateLimiter, enableMetrics bool) {

	router.GET("/healthz", handlers.Healthz(taxonomy, mem))
	if enableMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.BearerAuth(guard), middleware.RateLimit(limiter))
	{
		v1.POST("/run", handlers.HandleRun(eng, hub))
		v1.GET("/sessions", handlers.ListRunSessions(mem))
		// Per-session routes
		run := v1.Group("/run/:sessionId")
		{
			run.GET("/history", handlers.GetRunHistory(mem))
			run.POST("/clear", handlers.ClearRunSession(mem))
			run.GET("/events", handlers.HandleRunEvents(hub))
		}
	}
}
