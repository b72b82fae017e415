// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader is the HTTP header used to propagate request identifiers
// between clients, this service, and downstream collaborators.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds inbound identifiers so a hostile client cannot
// inflate log lines or metric labels with an arbitrarily long header.
const maxRequestIDLength = 128

const requestIDKey = "cascadia_request_id"

// RequestID returns middleware that guarantees every request carries an
// identifier. A well formed inbound X-Request-ID is honored so callers can
// correlate across services; otherwise a fresh UUID is generated. The
// identifier is stored on the gin context and echoed on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID retrieves the request identifier placed on the context by
// RequestID. It returns the empty string when the middleware did not run.
func GetRequestID(c *gin.Context) string {
	if v, ok := c.Get(requestIDKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
