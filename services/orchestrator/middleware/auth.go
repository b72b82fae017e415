// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the orchestrator service.
//
// This package contains middleware for authentication, request
// identification, and rate limiting.
//
// # Authentication Flow
//
// The auth middleware extracts a bearer token from the Authorization
// header and compares it against the configured service token, which is
// held in a memguard locked buffer for its lifetime.
//
//	Request
//	   |
//	   v
//	BearerAuth
//	   |
//	   +- Extract token from "Authorization: Bearer <token>"
//	   |
//	   +- guard.Verify(token)  (constant-time compare)
//	   |
//	   +- Store principal in context
//	           |
//	           v
//	       Handler (retrieves via GetPrincipal)
//
// # Open Mode
//
// When no service token is configured (nil TokenGuard), all requests
// are accepted as "local-user". This keeps single-host deployments and
// the CLI working without any authentication infrastructure.
package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/gin-gonic/gin"
	"golang.org/x/sys/unix"

	"github.com/CascadiaAI/CascadiaMind/services/orchestrator/datatypes"
	"github.com/CascadiaAI/CascadiaMind/services/orchestrator/observability"
)

// =============================================================================
// Context Keys
// =============================================================================

// principalKey is the context key for the authenticated caller identity.
// Using a namespaced key prevents collisions with other context values.
const principalKey = "cascadia_principal"

// LocalPrincipal is the identity assigned in open mode.
const LocalPrincipal = "local-user"

// =============================================================================
// Context Helpers
// =============================================================================

// SetPrincipal stores the authenticated caller identity in the Gin context.
//
// # Description
//
// Called by BearerAuth after successful authentication. The stored
// identity can be retrieved by handlers via GetPrincipal.
//
// # Inputs
//
//   - c: Gin context. Must not be nil.
//   - principal: Caller identity. May be empty.
//
// # Thread Safety
//
// Safe to call concurrently (Gin context is request-scoped).
func SetPrincipal(c *gin.Context, principal string) {
	c.Set(principalKey, principal)
}

// GetPrincipal retrieves the authenticated caller identity.
//
// # Description
//
// Returns the identity stored by BearerAuth, or empty string when the
// request did not pass through the auth middleware.
//
// # Inputs
//
//   - c: Gin context. Must not be nil.
//
// # Outputs
//
//   - string: Caller identity, or "" if not authenticated
//
// # Thread Safety
//
// Safe to call concurrently (Gin context is request-scoped).
func GetPrincipal(c *gin.Context) string {
	if v, exists := c.Get(principalKey); exists {
		if principal, ok := v.(string); ok {
			return principal
		}
	}
	return ""
}

// =============================================================================
// Token Guard
// =============================================================================

// minMlockKB is the mlock limit needed for the token buffer. memguard
// rounds buffers up to page multiples and brackets them with guard
// pages, so a few pages cover the guard plus its canary.
const minMlockKB = 64

// mlockCheckOnce makes the rlimit probe run once per process.
var mlockCheckOnce sync.Once

// checkMlockLimit queries the kernel for the mlock resource limit and
// compares it against the minimum the token guard needs.
func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		slog.Warn("Could not determine mlock limit", "error", err)
		return true, -1
	}

	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}

	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= minMlockKB, limitKB
}

// TokenGuard holds the service bearer token in locked memory.
//
// # Description
//
// The token lives in a memguard LockedBuffer so it is wiped from
// memory on Destroy and never lands in swap. Comparison uses
// crypto/subtle to stay constant-time.
//
// # Thread Safety
//
// Verify is safe for concurrent use. Destroy must not race Verify;
// call it only during shutdown after the server stops.
type TokenGuard struct {
	buf *memguard.LockedBuffer
}

// NewTokenGuard seals a service token into locked memory.
//
// # Description
//
// Returns nil when the token is empty, which callers treat as open
// mode (no authentication). The plaintext argument should be discarded
// by the caller after this returns.
//
// # Inputs
//
//   - token: The configured service token. May be empty.
//
// # Outputs
//
//   - *TokenGuard: Guard ready for Verify, or nil in open mode
func NewTokenGuard(token string) *TokenGuard {
	if token == "" {
		return nil
	}

	mlockCheckOnce.Do(func() {
		if sufficient, limitKB := checkMlockLimit(); !sufficient {
			slog.Warn("mlock limit is low; the token buffer may not lock",
				"current_limit_kb", limitKB,
				"required_kb", minMlockKB,
			)
		}
	})

	buf := memguard.NewBuffer(len(token))
	buf.Melt()
	copy(buf.Bytes(), token)

	return &TokenGuard{buf: buf}
}

// Verify reports whether candidate matches the sealed token.
//
// # Inputs
//
//   - candidate: The token presented by the caller.
//
// # Outputs
//
//   - bool: true when the candidate matches
func (g *TokenGuard) Verify(candidate string) bool {
	if g == nil || g.buf == nil {
		return false
	}
	return subtle.ConstantTimeCompare(g.buf.Bytes(), []byte(candidate)) == 1
}

// Destroy wipes the sealed token from memory.
//
// Safe to call on a nil guard and safe to call twice.
func (g *TokenGuard) Destroy() {
	if g == nil || g.buf == nil {
		return
	}
	g.buf.Destroy()
	g.buf = nil
}

// =============================================================================
// Auth Middleware
// =============================================================================

// BearerAuth creates a Gin middleware that authenticates requests.
//
// # Description
//
// Extracts the bearer token from the Authorization header and checks
// it against the guard. A nil guard means open mode: every request is
// accepted and attributed to LocalPrincipal.
//
// # Token Extraction
//
// The middleware expects tokens in the Authorization header:
//
//	Authorization: Bearer <token>
//
// A missing or malformed header yields an empty candidate, which never
// matches a configured token.
//
// # Inputs
//
//   - guard: Sealed service token. Nil disables authentication.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware function ready for use with Gin
//
// # Examples
//
//	v1 := router.Group("/v1")
//	v1.Use(middleware.BearerAuth(guard))
//
// # Limitations
//
//   - Only supports Bearer token authentication
//   - One shared service token, no per-user identities
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func BearerAuth(guard *TokenGuard) gin.HandlerFunc {
	return func(c *gin.Context) {
		if guard == nil {
			SetPrincipal(c, LocalPrincipal)
			c.Next()
			return
		}

		token := extractBearerToken(c)
		if !guard.Verify(token) {
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpointLabel(c), observability.ErrorCodeUnauthorized)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, datatypes.ErrorResponse{
				Error: "unauthorized",
			})
			return
		}

		SetPrincipal(c, "token-user")
		c.Next()
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// extractBearerToken extracts the token from the Authorization header.
//
// # Description
//
// Parses the Authorization header expecting format: "Bearer <token>".
// Returns empty string if the header is missing or malformed. The
// "Bearer" prefix is case-insensitive per RFC 7235.
//
// # Inputs
//
//   - c: Gin context. Must not be nil.
//
// # Outputs
//
//   - string: The extracted token, or empty string if not found
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
