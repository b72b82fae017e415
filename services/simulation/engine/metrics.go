// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level tracer and meter for the simulation engine.
var (
	tracer = otel.Tracer("cascadia.engine")
	meter  = otel.Meter("cascadia.engine")
)

// Metrics for run and stage execution.
var (
	runLatency   metric.Float64Histogram
	runTotal     metric.Int64Counter
	passesPerRun metric.Int64Histogram
	stageLatency metric.Float64Histogram
	stageErrors  metric.Int64Counter
	escalations  metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		runLatency, err = meter.Float64Histogram(
			"engine_run_duration_seconds",
			metric.WithDescription("Duration of simulation runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		runTotal, err = meter.Int64Counter(
			"engine_runs_total",
			metric.WithDescription("Total simulation runs by terminal status"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		passesPerRun, err = meter.Int64Histogram(
			"engine_passes_per_run",
			metric.WithDescription("Passes executed per run"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		stageLatency, err = meter.Float64Histogram(
			"engine_stage_duration_seconds",
			metric.WithDescription("Duration of stage executions"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		stageErrors, err = meter.Int64Counter(
			"engine_stage_errors_total",
			metric.WithDescription("Stage executions that failed"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		escalations, err = meter.Int64Counter(
			"engine_escalations_total",
			metric.WithDescription("Passes that escalated into the deep chain"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordRunMetrics records the terminal metrics for one run.
func recordRunMetrics(ctx context.Context, duration time.Duration, status Status, passes int) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", string(status)))
	runLatency.Record(ctx, duration.Seconds(), attrs)
	runTotal.Add(ctx, 1, attrs)
	passesPerRun.Record(ctx, int64(passes))
}

// recordStageMetrics records one stage execution.
func recordStageMetrics(ctx context.Context, stageID string, duration time.Duration, failed bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("stage", stageID))
	stageLatency.Record(ctx, duration.Seconds(), attrs)
	if failed {
		stageErrors.Add(ctx, 1, attrs)
	}
}

// recordEscalation records an escalation decision.
func recordEscalation(ctx context.Context, reason string) {
	if err := initMetrics(); err != nil {
		return
	}
	escalations.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
