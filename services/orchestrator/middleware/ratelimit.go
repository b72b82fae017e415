// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/CascadiaAI/CascadiaMind/services/orchestrator/datatypes"
	"github.com/CascadiaAI/CascadiaMind/services/orchestrator/observability"
)

// RateLimitConfig controls the per-client token bucket applied to the v1
// API group. RequestsPerSecond is the sustained refill rate and Burst is
// the bucket capacity, so short spikes up to Burst are absorbed before
// requests start being rejected.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int

	// IdleTimeout controls how long an inactive client's bucket is kept
	// before it is pruned. Zero selects the default of five minutes.
	IdleTimeout time.Duration
}

const defaultVisitorIdleTimeout = 5 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter tracks one token bucket per client IP. Buckets for clients
// that have been idle past IdleTimeout are pruned on the fly so the map
// does not grow without bound under churning client populations.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	cfg      RateLimitConfig
	lastScan time.Time
}

// NewRateLimiter builds a limiter from cfg. Non-positive rates or bursts
// disable limiting entirely and NewRateLimiter returns nil, which
// RateLimit treats as a pass-through.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 || cfg.Burst <= 0 {
		return nil
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultVisitorIdleTimeout
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		cfg:      cfg,
	}
}

// Allow reports whether the client identified by key may proceed, consuming
// one token from its bucket when it can.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.pruneLocked(now)

	v, ok := rl.visitors[key]
	if !ok {
		v = &visitor{
			limiter: rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst),
		}
		rl.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.Allow()
}

// pruneLocked drops buckets idle past IdleTimeout. It scans at most once
// per idle interval so steady traffic does not pay a full map walk on
// every request. Callers must hold mu.
func (rl *RateLimiter) pruneLocked(now time.Time) {
	if now.Sub(rl.lastScan) < rl.cfg.IdleTimeout {
		return
	}
	rl.lastScan = now
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > rl.cfg.IdleTimeout {
			delete(rl.visitors, key)
		}
	}
}

// RateLimit returns middleware enforcing rl against each client IP. A nil
// limiter disables enforcement, matching the local-first default where a
// single operator talks to their own instance.
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	if rl == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpointLabel(c), observability.ErrorCodeRateLimited)
			}
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, datatypes.ErrorResponse{
				Error: "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// endpointLabel maps the matched route to the fixed endpoint label set used
// by the run metrics, keeping label cardinality bounded regardless of the
// raw request path.
func endpointLabel(c *gin.Context) observability.Endpoint {
	path := c.FullPath()
	switch {
	case strings.HasSuffix(path, "/history"):
		return observability.EndpointHistory
	case strings.HasSuffix(path, "/clear"):
		return observability.EndpointClear
	case strings.HasSuffix(path, "/events"):
		return observability.EndpointEvents
	case strings.HasSuffix(path, "/sessions"):
		return observability.EndpointSessions
	default:
		return observability.EndpointRun
	}
}
