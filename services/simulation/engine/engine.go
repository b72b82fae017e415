// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine implements the staged confidence-escalation loop.
//
// A run starts from a prior confidence and executes passes over a
// fixed stage chain. The three baseline stages run every pass; when
// confidence stays below target the run escalates into the deep
// chain, up to the configured maximum stage. Stages contribute
// bounded confidence levels re-derived from the evolving context, and
// the terminal containment gate can halt the run entirely. Every run
// leaves a full audit trail in the memory log.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/CascadiaAI/CascadiaMind/services/knowledge/algorithms"
	"github.com/CascadiaAI/CascadiaMind/services/knowledge/graph"
	"github.com/CascadiaAI/CascadiaMind/services/knowledge/memlog"
)

// noteLimit truncates queries in log entries.
const noteLimit = 120

// MemoryLog is the audit-trail dependency of the engine. Satisfied by
// *memlog.Log.
type MemoryLog interface {
	Append(ctx context.Context, e *memlog.Entry) error
}

// AlgorithmRunner executes knowledge algorithms. Satisfied by
// *algorithms.Registry.
type AlgorithmRunner interface {
	Execute(ctx context.Context, id string, req algorithms.Request) *algorithms.Result
}

// Engine orchestrates simulation runs.
//
// Thread Safety: Safe for concurrent use; each run carries its own
// context and the stages are stateless.
type Engine struct {
	cfg      SystemConfig
	taxonomy *graph.Store
	mem      MemoryLog
	algos    AlgorithmRunner
	stages   []Stage
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an engine with the canonical ten-stage chain. The
// taxonomy store and memory log are required; runs fail fast with
// status FAILED when either is missing.
func New(cfg SystemConfig, taxonomy *graph.Store, mem MemoryLog, algos AlgorithmRunner, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg.withDefaults(),
		taxonomy: taxonomy,
		mem:      mem,
		algos:    algos,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.stages = defaultStages(e)
	return e
}

// Config returns the engine's effective system configuration.
func (e *Engine) Config() SystemConfig { return e.cfg }

// Run executes one simulation and always returns a compiled result.
//
// Description:
//
//	Run resolves the effective settings from the system configuration
//	and the per-run overrides, then loops passes until a terminal
//	condition: confidence at target (COMPLETED_SUCCESS), risk at the
//	containment threshold or a gate verdict (CONTAINED_*), or the pass
//	budget or caller deadline exhausted (MAX_PASSES_REACHED). A
//	non-nil error is returned only for pre-flight failures: a missing
//	collaborator, an empty query, or invalid parameter overrides; the
//	result status is FAILED in those cases.
//
// Outputs:
//
//	The compiled RunResult with the terminal status, confidence
//	progression and per-stage breakdown.
func (e *Engine) Run(ctx context.Context, p RunParams) (*RunResult, error) {
	started := time.Now()

	p.Query = strings.TrimSpace(p.Query)
	if e.taxonomy == nil {
		return e.failRun(p, started, fmt.Errorf("%w: graph store", ErrMissingCollaborator))
	}
	if e.mem == nil {
		return e.failRun(p, started, fmt.Errorf("%w: memory log", ErrMissingCollaborator))
	}
	if p.Query == "" {
		return e.failRun(p, started, ErrEmptyQuery)
	}
	settings, err := e.cfg.overlay(p)
	if err != nil {
		return e.failRun(p, started, err)
	}

	session := p.SessionID
	if session == "" {
		session = uuid.NewString()[:12]
	}
	run := NewRunContext(p.Query, session, p.UserID, settings.PriorConfidence)
	run.Settings = settings

	ctx, span := tracer.Start(ctx, "Engine.Run",
		oteltrace.WithAttributes(
			attribute.String("run.session_id", session),
			attribute.Float64("run.target_confidence", settings.TargetConfidence),
			attribute.Int("run.max_passes", settings.MaxPasses),
		),
	)
	defer span.End()

	e.appendLog(ctx, &memlog.Entry{
		Session:    session,
		Type:       memlog.EntryRunStarted,
		Confidence: run.Confidence(),
		Note:       truncate(p.Query, noteLimit),
		Fields: map[string]any{
			"user_id":          p.UserID,
			"target":           settings.TargetConfidence,
			"target_max_stage": settings.TargetMaxStage,
			"max_passes":       settings.MaxPasses,
		},
	})
	emit(p.Sink, Event{
		Type:       EventRunStarted,
		SessionID:  session,
		Confidence: run.Confidence(),
		Note:       truncate(p.Query, noteLimit),
	})

	run.SetStatus(StatusRunning)
	e.runPasses(ctx, run, p.Sink)
	if !run.Status().Terminal() {
		run.SetStatus(StatusMaxPasses)
	}

	elapsed := time.Since(started)
	result := Compile(run, elapsed)

	e.appendLog(ctx, &memlog.Entry{
		Session:    session,
		Type:       memlog.EntryRunCompleted,
		Pass:       result.Passes,
		Status:     string(result.Status),
		Confidence: result.Confidence,
		Note:       result.Summary,
		Fields: map[string]any{
			"risk_index": result.RiskIndex,
			"gain":       result.ConfidenceGain,
			"elapsed_ms": result.ElapsedMS,
		},
	})
	emit(p.Sink, Event{
		Type:       EventRunCompleted,
		SessionID:  session,
		Pass:       result.Passes,
		Confidence: result.Confidence,
		RiskIndex:  result.RiskIndex,
		Status:     string(result.Status),
		Note:       result.Summary,
	})

	span.SetAttributes(
		attribute.String("run.status", string(result.Status)),
		attribute.Float64("run.confidence", result.Confidence),
		attribute.Float64("run.risk_index", result.RiskIndex),
		attribute.Int("run.passes", result.Passes),
	)
	recordRunMetrics(ctx, elapsed, result.Status, result.Passes)
	e.logger.Info("run completed",
		"session", session,
		"status", result.Status,
		"confidence", result.Confidence,
		"risk_index", result.RiskIndex,
		"passes", result.Passes,
		"elapsed_ms", result.ElapsedMS,
	)
	return result, nil
}

// runPasses drives the pass loop until a terminal condition.
func (e *Engine) runPasses(ctx context.Context, run *RunContext, sink EventSink) {
	settings := run.Settings
	for pass := 1; pass <= settings.MaxPasses; pass++ {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("deadline reached before pass",
				"session", run.SessionID, "pass", pass, "error", err)
			run.SetStatus(StatusMaxPasses)
			return
		}
		run.PassNumber = pass
		pctx, passSpan := tracer.Start(ctx, "Engine.pass",
			oteltrace.WithAttributes(attribute.Int("run.pass", pass)))

		if aborted := e.runChain(pctx, run, sink, 1, baselineEndIndex); aborted {
			passSpan.End()
			run.SetStatus(StatusMaxPasses)
			return
		}

		escalated, reason := ShouldEscalate(run.Confidence(), settings.TargetConfidence, run.History)
		if escalated {
			recordEscalation(pctx, reason)
			e.appendLog(pctx, &memlog.Entry{
				Session:    run.SessionID,
				Type:       memlog.EntryEscalation,
				Pass:       pass,
				Confidence: run.Confidence(),
				Note:       reason,
			})
			emit(sink, Event{
				Type:       EventEscalation,
				SessionID:  run.SessionID,
				Pass:       pass,
				Confidence: run.Confidence(),
				Note:       reason,
			})
			if aborted := e.runChain(pctx, run, sink, baselineEndIndex+1, settings.TargetMaxStage); aborted {
				passSpan.End()
				run.SetStatus(StatusMaxPasses)
				return
			}
		}

		run.AppendHistory()
		passSpan.SetAttributes(
			attribute.Float64("run.confidence", run.Confidence()),
			attribute.Float64("run.risk_index", run.RiskIndex),
			attribute.Bool("run.escalated", escalated),
		)
		passSpan.End()
		emit(sink, Event{
			Type:       EventPassCompleted,
			SessionID:  run.SessionID,
			Pass:       pass,
			Confidence: run.Confidence(),
			RiskIndex:  run.RiskIndex,
		})

		// Termination, in fixed priority: a gate verdict is kept, then
		// the confidence target, then the engine-level risk check.
		if run.Status().Contained() {
			return
		}
		if run.Confidence() >= settings.TargetConfidence {
			run.SetStatus(StatusCompletedSuccess)
			return
		}
		if run.RiskIndex >= settings.RiskThreshold {
			run.Contain(StatusContainedESI)
			return
		}
	}
}

// runChain executes the stages with indexes in [from, to]. It reports
// true when the run must abort because the caller's context expired.
func (e *Engine) runChain(ctx context.Context, run *RunContext, sink EventSink, from, to int) bool {
	for _, st := range e.stages {
		idx := st.Index()
		if idx < from || idx > to {
			continue
		}
		if err := e.runStage(ctx, st, run, sink); err != nil {
			return true
		}
		if run.Status().Contained() {
			return false
		}
	}
	return false
}

// runStage executes one stage inside its span, applies the level
// delta, records the result and publishes it to the log and sink. A
// non-nil return means the caller's context expired and the run must
// abort; stage-internal failures are recorded as "<stage_id>_error"
// markers and the pipeline continues.
func (e *Engine) runStage(ctx context.Context, st Stage, run *RunContext, sink EventSink) error {
	sctx, span := tracer.Start(ctx, "Engine.stage",
		oteltrace.WithAttributes(
			attribute.String("stage.id", st.ID()),
			attribute.Int("stage.index", st.Index()),
			attribute.Int("run.pass", run.PassNumber),
		),
	)
	defer span.End()

	start := time.Now()
	out, err := e.executeStage(sctx, st, run)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			span.SetStatus(codes.Error, "run aborted")
			recordStageMetrics(sctx, st.ID(), elapsed, true)
			e.logger.Warn("run aborted during stage",
				"session", run.SessionID, "stage", st.ID(), "error", err)
			return err
		}
		run.StageError(st.ID(), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "stage failed")
		recordStageMetrics(sctx, st.ID(), elapsed, true)
		e.appendLog(ctx, &memlog.Entry{
			Session:    run.SessionID,
			Type:       memlog.EntryStage,
			Pass:       run.PassNumber,
			Stage:      st.ID(),
			Confidence: run.Confidence(),
			Note:       "stage failed: " + err.Error(),
		})
		emit(sink, Event{
			Type:       EventStageCompleted,
			SessionID:  run.SessionID,
			Pass:       run.PassNumber,
			Stage:      st.ID(),
			Confidence: run.Confidence(),
			Note:       "error: " + err.Error(),
		})
		e.logger.Warn("stage failed",
			"session", run.SessionID, "stage", st.ID(), "pass", run.PassNumber, "error", err)
		return nil
	}

	prevLevel := 0.0
	if prev, ok := run.StageResults[st.ID()]; ok && prev.Err == "" {
		prevLevel = prev.Contribution
	}
	applied := run.AdjustConfidence(out.Contribution - prevLevel)
	run.SetStageResult(&StageResult{
		StageID:        st.ID(),
		Pass:           run.PassNumber,
		Contribution:   out.Contribution,
		Applied:        applied,
		ProcessingTime: elapsed,
		Details:        out.Details,
	})

	entryType := memlog.EntryStage
	switch st.ID() {
	case StageRecursiveRefinement:
		entryType = memlog.EntryRefinement
	case StageContainment:
		entryType = memlog.EntryContainment
	}
	e.appendLog(ctx, &memlog.Entry{
		Session:    run.SessionID,
		Type:       entryType,
		Pass:       run.PassNumber,
		Stage:      st.ID(),
		Confidence: run.Confidence(),
		Delta:      applied,
		Fields:     map[string]any{"contribution": out.Contribution},
	})
	emit(sink, Event{
		Type:       EventStageCompleted,
		SessionID:  run.SessionID,
		Pass:       run.PassNumber,
		Stage:      st.ID(),
		Confidence: run.Confidence(),
		RiskIndex:  run.RiskIndex,
	})

	span.SetAttributes(
		attribute.Float64("stage.contribution", out.Contribution),
		attribute.Float64("stage.applied", applied),
		attribute.Float64("run.confidence", run.Confidence()),
	)
	recordStageMetrics(sctx, st.ID(), elapsed, false)
	return nil
}

// executeStage invokes the stage with panic containment.
func (e *Engine) executeStage(ctx context.Context, st Stage, run *RunContext) (out *StageOutcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = fmt.Errorf("stage %s panicked: %v", st.ID(), rec)
		}
	}()
	out, err = st.Execute(ctx, run)
	if err == nil && out == nil {
		out = &StageOutcome{}
	}
	return out, err
}

// failRun compiles a FAILED result for pre-flight errors.
func (e *Engine) failRun(p RunParams, started time.Time, err error) (*RunResult, error) {
	run := NewRunContext(p.Query, p.SessionID, p.UserID, e.cfg.PriorConfidence)
	run.Settings = e.cfg
	run.SetStatus(StatusFailed)
	e.logger.Error("run rejected", "session", p.SessionID, "error", err)
	return Compile(run, time.Since(started)), err
}

// appendLog writes an audit entry, surviving an expired run context.
// Append failures are logged and swallowed; the run never fails on
// its audit trail.
func (e *Engine) appendLog(ctx context.Context, entry *memlog.Entry) {
	if e.mem == nil {
		return
	}
	if err := e.mem.Append(context.WithoutCancel(ctx), entry); err != nil {
		e.logger.Warn("memory log append failed",
			"session", entry.Session, "type", entry.Type, "error", err)
	}
}

// truncate shortens s to at most limit bytes without splitting a
// multi-byte rune, so log notes and events stay valid UTF-8.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
