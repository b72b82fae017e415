// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestRouter wires the given middleware in front of a trivial handler
// that reports the resolved principal and request identifier.
func newTestRouter(mw ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(mw...)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"principal":  GetPrincipal(c),
			"request_id": GetRequestID(c),
		})
	})
	return router
}

func performRequest(router *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ============================================================================
// Token guard
// ============================================================================

func TestNewTokenGuard_EmptyTokenDisablesAuth(t *testing.T) {
	assert.Nil(t, NewTokenGuard(""))
}

func TestTokenGuard_Verify(t *testing.T) {
	guard := NewTokenGuard("s3cret-token")
	defer guard.Destroy()

	assert.True(t, guard.Verify("s3cret-token"))
	assert.False(t, guard.Verify("wrong"))
	assert.False(t, guard.Verify(""))
	assert.False(t, guard.Verify("s3cret-token "))
}

func TestTokenGuard_NilReceiverNeverVerifies(t *testing.T) {
	var guard *TokenGuard
	assert.False(t, guard.Verify("anything"))
	guard.Destroy()
}

func TestCheckMlockLimit_UnlimitedReadsSufficient(t *testing.T) {
	sufficient, limitKB := checkMlockLimit()
	if limitKB == -1 {
		assert.True(t, sufficient, "unlimited mlock must read as sufficient")
	} else {
		assert.GreaterOrEqual(t, limitKB, int64(0))
	}
}

func TestTokenGuard_DestroyTwiceSafe(t *testing.T) {
	guard := NewTokenGuard("tok")
	guard.Destroy()
	guard.Destroy()
	assert.False(t, guard.Verify("tok"))
}

// ============================================================================
// Bearer auth
// ============================================================================

func TestBearerAuth_OpenModeAssignsLocalPrincipal(t *testing.T) {
	router := newTestRouter(BearerAuth(nil))

	w := performRequest(router, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), LocalPrincipal)
}

func TestBearerAuth_ValidToken(t *testing.T) {
	guard := NewTokenGuard("mind-token")
	defer guard.Destroy()
	router := newTestRouter(BearerAuth(guard))

	w := performRequest(router, map[string]string{
		"Authorization": "Bearer mind-token",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "token-user")
}

func TestBearerAuth_CaseInsensitiveScheme(t *testing.T) {
	guard := NewTokenGuard("mind-token")
	defer guard.Destroy()
	router := newTestRouter(BearerAuth(guard))

	w := performRequest(router, map[string]string{
		"Authorization": "bearer mind-token",
	})

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBearerAuth_Rejections(t *testing.T) {
	guard := NewTokenGuard("mind-token")
	defer guard.Destroy()
	router := newTestRouter(BearerAuth(guard))

	tests := []struct {
		name    string
		headers map[string]string
	}{
		{name: "missing header", headers: nil},
		{name: "wrong token", headers: map[string]string{"Authorization": "Bearer nope"}},
		{name: "wrong scheme", headers: map[string]string{"Authorization": "Basic mind-token"}},
		{name: "bare token", headers: map[string]string{"Authorization": "mind-token"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performRequest(router, tt.headers)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), "unauthorized")
		})
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "standard", header: "Bearer abc123", want: "abc123"},
		{name: "lowercase scheme", header: "bearer abc123", want: "abc123"},
		{name: "padded token", header: "Bearer   abc123  ", want: "abc123"},
		{name: "missing", header: "", want: ""},
		{name: "scheme only", header: "Bearer", want: ""},
		{name: "wrong scheme", header: "Token abc123", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				c.Request.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, extractBearerToken(c))
		})
	}
}

// ============================================================================
// Request ID
// ============================================================================

func TestRequestID_GeneratesWhenAbsent(t *testing.T) {
	router := newTestRouter(RequestID())

	w := performRequest(router, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	id := w.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, id)
	assert.Contains(t, w.Body.String(), id)
}

func TestRequestID_HonorsInboundHeader(t *testing.T) {
	router := newTestRouter(RequestID())

	w := performRequest(router, map[string]string{
		RequestIDHeader: "client-supplied-id",
	})

	assert.Equal(t, "client-supplied-id", w.Header().Get(RequestIDHeader))
	assert.Contains(t, w.Body.String(), "client-supplied-id")
}

func TestRequestID_ReplacesOversizedHeader(t *testing.T) {
	router := newTestRouter(RequestID())
	oversized := strings.Repeat("x", maxRequestIDLength+1)

	w := performRequest(router, map[string]string{
		RequestIDHeader: oversized,
	})

	id := w.Header().Get(RequestIDHeader)
	assert.NotEmpty(t, id)
	assert.NotEqual(t, oversized, id)
}

func TestGetRequestID_EmptyWithoutMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, GetRequestID(c))
}

// ============================================================================
// Rate limiting
// ============================================================================

func TestNewRateLimiter_DisabledConfigs(t *testing.T) {
	assert.Nil(t, NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0, Burst: 10}))
	assert.Nil(t, NewRateLimiter(RateLimitConfig{RequestsPerSecond: 5, Burst: 0}))
	assert.Nil(t, NewRateLimiter(RateLimitConfig{RequestsPerSecond: -1, Burst: -1}))
}

func TestRateLimit_NilLimiterPassesThrough(t *testing.T) {
	router := newTestRouter(RateLimit(nil))

	for i := 0; i < 50; i++ {
		w := performRequest(router, nil)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimit_BurstExhaustionReturns429(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 3})
	router := newTestRouter(RateLimit(rl))

	for i := 0; i < 3; i++ {
		w := performRequest(router, nil)
		assert.Equal(t, http.StatusOK, w.Code, "request %d should be within burst", i)
	}

	w := performRequest(router, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate limit exceeded")
}

func TestRateLimiter_IndependentClients(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestRateLimiter_PrunesIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{
		RequestsPerSecond: 1,
		Burst:             1,
		IdleTimeout:       10 * time.Millisecond,
	})

	rl.Allow("10.0.0.1")
	rl.Allow("10.0.0.2")

	time.Sleep(25 * time.Millisecond)
	rl.Allow("10.0.0.3")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.visitors, "10.0.0.1")
	assert.NotContains(t, rl.visitors, "10.0.0.2")
	assert.Contains(t, rl.visitors, "10.0.0.3")
}
