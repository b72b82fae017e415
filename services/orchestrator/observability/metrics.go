// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the orchestrator.
//
// # Description
//
// This package implements Prometheus metrics for monitoring simulation
// runs served over HTTP. Metrics include:
//   - Request counters (by endpoint, status, error type)
//   - Run counters and duration histograms (by terminal status)
//   - Pass-count and confidence-gain histograms
//   - Active run and watcher gauges
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. The engine's
// OpenTelemetry instruments reach the same endpoint through the
// otel prometheus bridge, so one scrape covers both layers.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "cascadia"

// Subsystem for run metrics
const runSubsystem = "run"

// RunMetrics holds all Prometheus metrics for simulation run serving.
//
// # Description
//
// Provides counters, histograms, and gauges for monitoring run outcomes
// and API usage. Initialize once at startup via InitMetrics().
//
// # Fields
//
//   - RequestsTotal: Counter of API requests by endpoint and status
//   - RunsTotal: Counter of completed runs by terminal status
//   - RunDurationSeconds: Histogram of run wall time by terminal status
//   - RunPasses: Histogram of passes consumed per run
//   - ConfidenceGain: Histogram of final minus initial confidence
//   - ActiveRuns: Gauge of currently executing runs
//   - ActiveWatchers: Gauge of connected event-stream watchers
//   - ErrorsTotal: Counter of errors by endpoint and error type
//
// # Thread Safety
//
// All operations are thread-safe.
type RunMetrics struct {
	// RequestsTotal counts API requests by endpoint and status.
	// Labels: endpoint (run, history, clear, sessions, events), status (success, error)
	RequestsTotal *prometheus.CounterVec

	// RunsTotal counts completed runs by terminal status.
	// Labels: status (COMPLETED_SUCCESS, MAX_PASSES_REACHED, ...)
	RunsTotal *prometheus.CounterVec

	// RunDurationSeconds measures run wall time by terminal status.
	// Labels: status
	RunDurationSeconds *prometheus.HistogramVec

	// RunPasses measures how many passes a run consumed.
	RunPasses prometheus.Histogram

	// ConfidenceGain measures final minus initial confidence per run.
	ConfidenceGain prometheus.Histogram

	// ActiveRuns tracks currently executing simulation runs.
	ActiveRuns prometheus.Gauge

	// ActiveWatchers tracks connected WebSocket event watchers.
	// Labels: endpoint
	ActiveWatchers *prometheus.GaugeVec

	// ErrorsTotal counts errors by endpoint and type.
	// Labels: endpoint, error_code (validation, engine_failure, ...)
	ErrorsTotal *prometheus.CounterVec

	// KeepAlivesTotal counts keepalive pings sent to event watchers.
	// Labels: endpoint
	KeepAlivesTotal *prometheus.CounterVec

	// ClientDisconnectsTotal counts watcher disconnections.
	// Labels: endpoint
	ClientDisconnectsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance of RunMetrics.
// Initialized by InitMetrics(). Nil until then; callers must check.
var DefaultMetrics *RunMetrics

var initOnce sync.Once

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics on the default registry.
// Safe to call more than once; registration happens on the first call
// and later calls return the existing instance.
//
// # Outputs
//
//   - *RunMetrics: The initialized metrics instance.
//
// # Examples
//
//	func main() {
//	    observability.InitMetrics()
//	    // ... start server ...
//	}
//
// # Assumptions
//
//   - Prometheus default registry is available.
func InitMetrics() *RunMetrics {
	initOnce.Do(func() {
		DefaultMetrics = &RunMetrics{
			RequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: runSubsystem,
					Name:      "requests_total",
					Help:      "Total API requests by endpoint and status",
				},
				[]string{"endpoint", "status"},
			),

			RunsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: runSubsystem,
					Name:      "runs_total",
					Help:      "Total completed simulation runs by terminal status",
				},
				[]string{"status"},
			),

			RunDurationSeconds: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: metricsNamespace,
					Subsystem: runSubsystem,
					Name:      "duration_seconds",
					Help:      "Simulation run wall time in seconds",
					Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 1, 2.5, 10, 30},
				},
				[]string{"status"},
			),

			RunPasses: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: metricsNamespace,
					Subsystem: runSubsystem,
					Name:      "passes",
					Help:      "Passes consumed per simulation run",
					Buckets:   []float64{1, 2, 3, 5, 8, 13, 20},
				},
			),

			ConfidenceGain: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: metricsNamespace,
					Subsystem: runSubsystem,
					Name:      "confidence_gain",
					Help:      "Final minus initial confidence per run",
					Buckets:   []float64{0, 0.05, 0.1, 0.15, 0.2, 0.25, 0.3, 0.34},
				},
			),

			ActiveRuns: promauto.NewGauge(
				prometheus.GaugeOpts{
					Namespace: metricsNamespace,
					Subsystem: runSubsystem,
					Name:      "active_runs",
					Help:      "Number of currently executing simulation runs",
				},
			),

			ActiveWatchers: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: metricsNamespace,
					Subsystem: runSubsystem,
					Name:      "active_watchers",
					Help:      "Number of connected event-stream watchers",
				},
				[]string{"endpoint"},
			),

			ErrorsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: runSubsystem,
					Name:      "errors_total",
					Help:      "Total API errors by endpoint and type",
				},
				[]string{"endpoint", "error_code"},
			),

			KeepAlivesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: runSubsystem,
					Name:      "keepalives_total",
					Help:      "Total keepalive pings sent to event watchers",
				},
				[]string{"endpoint"},
			),

			ClientDisconnectsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: metricsNamespace,
					Subsystem: runSubsystem,
					Name:      "client_disconnects_total",
					Help:      "Total watcher disconnections",
				},
				[]string{"endpoint"},
			),
		}
	})

	return DefaultMetrics
}

// =============================================================================
// Error Codes
// =============================================================================

// ErrorCode represents a categorized error type for metrics.
type ErrorCode string

const (
	// ErrorCodeValidation indicates request validation failure.
	ErrorCodeValidation ErrorCode = "validation"

	// ErrorCodeEngineFailure indicates the engine rejected the run.
	ErrorCodeEngineFailure ErrorCode = "engine_failure"

	// ErrorCodeStoreError indicates a memory-log read or write failure.
	ErrorCodeStoreError ErrorCode = "store_error"

	// ErrorCodeRateLimited indicates a throttled request.
	ErrorCodeRateLimited ErrorCode = "rate_limited"

	// ErrorCodeUnauthorized indicates a rejected bearer token.
	ErrorCodeUnauthorized ErrorCode = "unauthorized"

	// ErrorCodeInternal indicates an internal server error.
	ErrorCodeInternal ErrorCode = "internal"

	// ErrorCodeClientDisconnect indicates a watcher disconnected.
	ErrorCodeClientDisconnect ErrorCode = "client_disconnect"
)

// =============================================================================
// Endpoint Names
// =============================================================================

// Endpoint represents an API endpoint for metrics labeling.
type Endpoint string

const (
	// EndpointRun is the synchronous run endpoint.
	EndpointRun Endpoint = "run"

	// EndpointHistory is the session history endpoint.
	EndpointHistory Endpoint = "history"

	// EndpointClear is the session clear endpoint.
	EndpointClear Endpoint = "clear"

	// EndpointSessions is the session listing endpoint.
	EndpointSessions Endpoint = "sessions"

	// EndpointEvents is the WebSocket event-stream endpoint.
	EndpointEvents Endpoint = "events"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed API request.
//
// # Inputs
//
//   - endpoint: The endpoint that handled the request.
//   - success: Whether the request completed successfully.
func (m *RunMetrics) RecordRequest(endpoint Endpoint, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(string(endpoint), status).Inc()
}

// RecordError records an API error.
//
// # Inputs
//
//   - endpoint: The endpoint where the error occurred.
//   - code: The error type code.
func (m *RunMetrics) RecordError(endpoint Endpoint, code ErrorCode) {
	m.ErrorsTotal.WithLabelValues(string(endpoint), string(code)).Inc()
}

// RecordRun records a completed simulation run.
//
// # Inputs
//
//   - status: The terminal run status string.
//   - seconds: Run wall time in seconds.
//   - passes: Passes the run consumed.
//   - gain: Final minus initial confidence.
func (m *RunMetrics) RecordRun(status string, seconds float64, passes int, gain float64) {
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDurationSeconds.WithLabelValues(status).Observe(seconds)
	m.RunPasses.Observe(float64(passes))
	m.ConfidenceGain.Observe(gain)
}

// RunStarted increments the active runs gauge.
func (m *RunMetrics) RunStarted() {
	m.ActiveRuns.Inc()
}

// RunEnded decrements the active runs gauge.
func (m *RunMetrics) RunEnded() {
	m.ActiveRuns.Dec()
}

// WatcherConnected increments the active watchers gauge.
//
// # Inputs
//
//   - endpoint: The endpoint serving the watcher.
func (m *RunMetrics) WatcherConnected(endpoint Endpoint) {
	m.ActiveWatchers.WithLabelValues(string(endpoint)).Inc()
}

// WatcherDisconnected decrements the active watchers gauge.
//
// # Inputs
//
//   - endpoint: The endpoint that served the watcher.
func (m *RunMetrics) WatcherDisconnected(endpoint Endpoint) {
	m.ActiveWatchers.WithLabelValues(string(endpoint)).Dec()
}

// RecordKeepAlive increments the keepalive counter.
//
// # Inputs
//
//   - endpoint: The endpoint that sent the keepalive.
func (m *RunMetrics) RecordKeepAlive(endpoint Endpoint) {
	m.KeepAlivesTotal.WithLabelValues(string(endpoint)).Inc()
}

// RecordClientDisconnect increments the client disconnect counter.
//
// # Inputs
//
//   - endpoint: The endpoint where the disconnect occurred.
func (m *RunMetrics) RecordClientDisconnect(endpoint Endpoint) {
	m.ClientDisconnectsTotal.WithLabelValues(string(endpoint)).Inc()
}
