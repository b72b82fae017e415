// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/CascadiaAI/CascadiaMind/services/knowledge/graph"
	"github.com/CascadiaAI/CascadiaMind/services/knowledge/memlog"
)

// Healthz reports liveness plus a summary of the loaded taxonomy and the
// number of sessions in the memory log. It sits outside the v1 group so
// probes never need credentials.
func Healthz(taxonomy *graph.Store, mem *memlog.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"status": "ok"}

		if taxonomy != nil {
			g := taxonomy.Snapshot()
			body["graph_nodes"] = g.NodeCount()
			body["graph_edges"] = g.EdgeCount()
		}
		if mem != nil {
			if sessions, err := mem.Sessions(c.Request.Context()); err == nil {
				body["sessions"] = len(sessions)
			}
		}
		c.JSON(http.StatusOK, body)
	}
}
