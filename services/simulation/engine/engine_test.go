// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CascadiaAI/CascadiaMind/services/knowledge/algorithms"
	"github.com/CascadiaAI/CascadiaMind/services/knowledge/graph"
	"github.com/CascadiaAI/CascadiaMind/services/knowledge/memlog"
)

// anchoredQuery resolves three science concepts in the default
// taxonomy; garbageQuery resolves nothing.
const (
	anchoredQuery = "What is entropy and energy in physics?"
	garbageQuery  = "zzz qqq"
)

func newTestEngine(t *testing.T) (*Engine, *memlog.Log) {
	t.Helper()
	mem, err := memlog.Open(memlog.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { mem.Close() })

	e := New(DefaultSystemConfig(), graph.NewStore(graph.MustDefault()), mem, algorithms.NewRegistry(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return e, mem
}

// stubStage stands in for a chain stage in failure and containment
// tests.
type stubStage struct {
	id    string
	index int
	fn    func(ctx context.Context, run *RunContext) (*StageOutcome, error)
}

func (s *stubStage) ID() string { return s.id }
func (s *stubStage) Index() int { return s.index }
func (s *stubStage) Execute(ctx context.Context, run *RunContext) (*StageOutcome, error) {
	return s.fn(ctx, run)
}

func replaceStageAt(e *Engine, index int, st Stage) {
	for i, existing := range e.stages {
		if existing.Index() == index {
			e.stages[i] = st
			return
		}
	}
}

func breakdownFor(res *RunResult, stageID string) (StageBreakdown, bool) {
	for _, b := range res.Stages {
		if b.StageID == stageID {
			return b, true
		}
	}
	return StageBreakdown{}, false
}

// TestNewBuildsChain verifies the canonical stage chain.
func TestNewBuildsChain(t *testing.T) {
	e, _ := newTestEngine(t)

	require.Len(t, e.stages, len(chainOrder))
	for i, st := range e.stages {
		assert.Equal(t, chainOrder[i], st.ID())
		assert.Equal(t, i+1, st.Index())
	}
}

// TestRunAnchoredQuerySucceedsFirstPass drives a well-grounded
// question through the baseline chain only.
func TestRunAnchoredQuerySucceedsFirstPass(t *testing.T) {
	e, mem := newTestEngine(t)
	ctx := context.Background()

	var events []Event
	res, err := e.Run(ctx, RunParams{
		Query:     anchoredQuery,
		SessionID: "sess-a",
		Sink:      SinkFunc(func(ev Event) { events = append(events, ev) }),
	})
	require.NoError(t, err)

	assert.Equal(t, StatusCompletedSuccess, res.Status)
	assert.Equal(t, 1, res.Passes)
	assert.GreaterOrEqual(t, res.Confidence, DefaultTargetConfidence)
	assert.InDelta(t, 0.876, res.Confidence, 0.01)
	assert.InDelta(t, DefaultPriorConfidence, res.InitialConfidence, 1e-9)
	assert.InDelta(t, res.Confidence-res.InitialConfidence, res.ConfidenceGain, 1e-9)
	assert.False(t, res.Contained)
	assert.Zero(t, res.RiskIndex)
	assert.Equal(t, []string{"physics", "energy", "entropy"}, res.Topics)
	assert.Contains(t, res.Summary, "reached")

	// Only the baseline stages ran, and research stayed untriggered.
	require.Len(t, res.Stages, 3)
	assert.Equal(t, StageClassification, res.Stages[0].StageID)
	research, ok := breakdownFor(res, StageResearch)
	require.True(t, ok)
	assert.Zero(t, research.Contribution)

	require.Len(t, res.Progression, 1)
	assert.Equal(t, 1, res.Progression[0].Pass)

	// Events bracket the run; no escalation was needed.
	require.NotEmpty(t, events)
	assert.Equal(t, EventRunStarted, events[0].Type)
	assert.Equal(t, EventRunCompleted, events[len(events)-1].Type)
	for _, ev := range events {
		assert.Equal(t, "sess-a", ev.SessionID)
		assert.Positive(t, ev.TimeMilli)
		assert.NotEqual(t, EventEscalation, ev.Type)
	}

	// The audit trail brackets the run the same way.
	entries, err := mem.List(ctx, "sess-a", memlog.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.Equal(t, memlog.EntryRunStarted, entries[0].Type)
	assert.Equal(t, memlog.EntryRunCompleted, entries[len(entries)-1].Type)
	assert.Equal(t, string(StatusCompletedSuccess), entries[len(entries)-1].Status)
}

// TestRunUngroundedQueryExhaustsPasses drives a query the taxonomy
// cannot anchor: every pass escalates, re-derives the same levels, and
// the run ends on the pass budget below target.
func TestRunUngroundedQueryExhaustsPasses(t *testing.T) {
	e, mem := newTestEngine(t)
	ctx := context.Background()

	res, err := e.Run(ctx, RunParams{Query: garbageQuery, SessionID: "sess-b"})
	require.NoError(t, err)

	assert.Equal(t, StatusMaxPasses, res.Status)
	assert.Equal(t, DefaultMaxPasses, res.Passes)
	assert.Less(t, res.Confidence, DefaultTargetConfidence)
	assert.InDelta(t, 0.808, res.Confidence, 0.01)
	assert.Contains(t, res.Summary, "pass budget exhausted")

	// Levels are re-derived from an unchanged context, so confidence
	// must not creep across passes.
	require.Len(t, res.Progression, DefaultMaxPasses)
	for i, rec := range res.Progression {
		assert.Equal(t, i+1, rec.Pass)
		assert.Less(t, rec.Confidence, DefaultTargetConfidence)
		assert.InDelta(t, res.Progression[0].Confidence, rec.Confidence, 1e-9)
	}

	// The deep chain ran up to the default maximum stage and no
	// further.
	require.Len(t, res.Stages, 7)
	_, ran := breakdownFor(res, StageDeepExploration)
	assert.True(t, ran)
	_, ran = breakdownFor(res, StageParallelExploration)
	assert.False(t, ran)

	// Every pass escalated; the reason shifts from distance to
	// stagnation once three flat passes exist.
	escalations, err := mem.List(ctx, "sess-b", memlog.Filter{Type: memlog.EntryEscalation})
	require.NoError(t, err)
	require.Len(t, escalations, DefaultMaxPasses)
	assert.Equal(t, ReasonBelowTarget, escalations[0].Note)
	assert.Equal(t, ReasonStagnating, escalations[len(escalations)-1].Note)
}

// TestRunSurvivesStageFailure verifies that a failing stage becomes an
// error marker while the pipeline keeps going.
func TestRunSurvivesStageFailure(t *testing.T) {
	t.Run("stage error", func(t *testing.T) {
		e, mem := newTestEngine(t)
		replaceStageAt(e, 6, &stubStage{
			id:    StageEnhancement,
			index: 6,
			fn: func(context.Context, *RunContext) (*StageOutcome, error) {
				return nil, errors.New("audit backend down")
			},
		})

		res, err := e.Run(context.Background(), RunParams{Query: garbageQuery, SessionID: "sess-c"})
		require.NoError(t, err, "a stage failure must not fail the run")

		assert.Equal(t, StatusMaxPasses, res.Status)
		marker, ok := breakdownFor(res, StageEnhancement+errorSuffix)
		require.True(t, ok)
		assert.Contains(t, marker.Error, "audit backend down")

		// The stage after the failed one still ran.
		_, ran := breakdownFor(res, StageDeepExploration)
		assert.True(t, ran)

		entries, err := mem.List(context.Background(), "sess-c",
			memlog.Filter{Type: memlog.EntryStage, Stage: StageEnhancement})
		require.NoError(t, err)
		require.NotEmpty(t, entries)
		assert.Contains(t, entries[0].Note, "stage failed")
	})

	t.Run("stage panic", func(t *testing.T) {
		e, _ := newTestEngine(t)
		replaceStageAt(e, 6, &stubStage{
			id:    StageEnhancement,
			index: 6,
			fn: func(context.Context, *RunContext) (*StageOutcome, error) {
				panic("boom")
			},
		})

		res, err := e.Run(context.Background(), RunParams{Query: garbageQuery})
		require.NoError(t, err)

		marker, ok := breakdownFor(res, StageEnhancement+errorSuffix)
		require.True(t, ok)
		assert.Contains(t, marker.Error, "panicked")
	})

	t.Run("stage context error aborts", func(t *testing.T) {
		e, _ := newTestEngine(t)
		replaceStageAt(e, 4, &stubStage{
			id:    StageReasoning,
			index: 4,
			fn: func(context.Context, *RunContext) (*StageOutcome, error) {
				return nil, fmt.Errorf("probe: %w", context.Canceled)
			},
		})

		res, err := e.Run(context.Background(), RunParams{Query: garbageQuery})
		require.NoError(t, err)

		assert.Equal(t, StatusMaxPasses, res.Status)
		assert.Zero(t, res.Passes, "the aborted pass is not recorded")
	})
}

// TestRunContainsOnRiskThreshold verifies the engine-level risk check
// against a per-run threshold override.
func TestRunContainsOnRiskThreshold(t *testing.T) {
	e, _ := newTestEngine(t)
	replaceStageAt(e, 4, &stubStage{
		id:    StageReasoning,
		index: 4,
		fn: func(_ context.Context, run *RunContext) (*StageOutcome, error) {
			run.RiskIndex = 0.95
			return &StageOutcome{}, nil
		},
	})

	res, err := e.Run(context.Background(), RunParams{
		Query:         garbageQuery,
		RiskThreshold: 0.9,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusContainedESI, res.Status)
	assert.True(t, res.Contained)
	assert.Equal(t, 1, res.Passes)
	assert.Contains(t, res.Summary, "risk index")
}

// TestRunContainsViaGate drives real emergence signals through the
// full chain so the terminal gate halts the run, and checks that the
// verdict outranks the confidence target.
func TestRunContainsViaGate(t *testing.T) {
	e, mem := newTestEngine(t)
	replaceStageAt(e, 4, &stubStage{
		id:    StageReasoning,
		index: 4,
		fn: func(_ context.Context, run *RunContext) (*StageOutcome, error) {
			run.RecordSignal(signalCrossDomain, "test")
			run.RecordSignal(signalSelfReference, "test")
			run.RecordSignal(signalNovelty, "test")
			run.RaiseAwareness(0.7)
			run.AddSelfModifications(6)
			return &StageOutcome{Contribution: 0.26}, nil
		},
	})

	res, err := e.Run(context.Background(), RunParams{
		Query:          garbageQuery,
		SessionID:      "sess-d",
		TargetMaxStage: 10,
	})
	require.NoError(t, err)

	assert.Equal(t, StatusContainedESI, res.Status)
	assert.True(t, res.Contained)
	assert.Equal(t, 1, res.Passes)
	assert.GreaterOrEqual(t, res.RiskIndex, e.Config().RiskThreshold)
	assert.GreaterOrEqual(t, res.Confidence, DefaultTargetConfidence,
		"containment must win even above the confidence target")

	gate, ok := breakdownFor(res, StageContainment)
	require.True(t, ok)
	assert.Zero(t, gate.Contribution, "a contained run gets no post-gate boost")

	entries, err := mem.List(context.Background(), "sess-d",
		memlog.Filter{Type: memlog.EntryContainment})
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

// TestRunDeadline verifies that an expired caller context ends the run
// as a normal pass-budget termination.
func TestRunDeadline(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := e.Run(ctx, RunParams{Query: anchoredQuery})
	require.NoError(t, err)

	assert.Equal(t, StatusMaxPasses, res.Status)
	assert.Zero(t, res.Passes)
	assert.Empty(t, res.Progression)
	assert.InDelta(t, DefaultPriorConfidence, res.Confidence, 1e-9)
}

// TestRunPreflightFailures verifies the FAILED result and sentinel
// errors for rejected runs.
func TestRunPreflightFailures(t *testing.T) {
	store := graph.NewStore(graph.MustDefault())
	mem, err := memlog.Open(memlog.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { mem.Close() })
	quiet := WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	t.Run("missing graph store", func(t *testing.T) {
		e := New(DefaultSystemConfig(), nil, mem, nil, quiet)
		res, err := e.Run(context.Background(), RunParams{Query: "q"})
		require.ErrorIs(t, err, ErrMissingCollaborator)
		assert.Equal(t, StatusFailed, res.Status)
		assert.Contains(t, res.Summary, "failed")
	})

	t.Run("missing memory log", func(t *testing.T) {
		e := New(DefaultSystemConfig(), store, nil, nil, quiet)
		_, err := e.Run(context.Background(), RunParams{Query: "q"})
		require.ErrorIs(t, err, ErrMissingCollaborator)
	})

	t.Run("empty query", func(t *testing.T) {
		e := New(DefaultSystemConfig(), store, mem, nil, quiet)
		for _, q := range []string{"", "   \t"} {
			res, err := e.Run(context.Background(), RunParams{Query: q})
			require.ErrorIs(t, err, ErrEmptyQuery)
			assert.Equal(t, StatusFailed, res.Status)
		}
	})

	t.Run("invalid overrides", func(t *testing.T) {
		e := New(DefaultSystemConfig(), store, mem, nil, quiet)
		bad := []RunParams{
			{Query: "q", TargetConfidence: 1.5},
			{Query: "q", TargetMaxStage: 99},
			{Query: "q", MaxPasses: 99},
			{Query: "q", RiskThreshold: 1.5},
			{Query: "q", ConflictStrategy: "bogus"},
			{Query: "q", RefinementStrategy: "bogus"},
		}
		for _, p := range bad {
			res, err := e.Run(context.Background(), p)
			require.ErrorIs(t, err, ErrInvalidParams)
			assert.Equal(t, StatusFailed, res.Status)
		}
	})
}

// TestRunParamOverrides verifies that per-run knobs actually steer the
// termination.
func TestRunParamOverrides(t *testing.T) {
	t.Run("lowered target succeeds after escalation", func(t *testing.T) {
		e, _ := newTestEngine(t)
		res, err := e.Run(context.Background(), RunParams{
			Query:            garbageQuery,
			TargetConfidence: 0.75,
		})
		require.NoError(t, err)

		assert.Equal(t, StatusCompletedSuccess, res.Status)
		assert.Equal(t, 1, res.Passes)
		assert.InDelta(t, 0.75, res.TargetConfidence, 1e-9)
		_, ran := breakdownFor(res, StageDeepExploration)
		assert.True(t, ran, "success came from the escalated chain")
	})

	t.Run("reduced pass budget", func(t *testing.T) {
		e, _ := newTestEngine(t)
		res, err := e.Run(context.Background(), RunParams{
			Query:     garbageQuery,
			MaxPasses: 2,
		})
		require.NoError(t, err)

		assert.Equal(t, StatusMaxPasses, res.Status)
		assert.Equal(t, 2, res.Passes)
	})
}

// TestRunGeneratesSessionID verifies the short-ID fallback.
func TestRunGeneratesSessionID(t *testing.T) {
	e, _ := newTestEngine(t)
	res, err := e.Run(context.Background(), RunParams{Query: anchoredQuery})
	require.NoError(t, err)

	assert.Len(t, res.SessionID, 12)
	assert.NotContains(t, res.SessionID, " ")
}

// TestRunStageLevelDelta verifies that re-running a stage applies only
// the change in its level, and that containment suppresses gains.
func TestRunStageLevelDelta(t *testing.T) {
	e, _ := newTestEngine(t)
	run := NewRunContext("q", "sess", "", 0.65)
	run.Settings = e.Config()
	run.PassNumber = 1

	level := 0.10
	st := &stubStage{
		id:    StageClassification,
		index: 1,
		fn: func(context.Context, *RunContext) (*StageOutcome, error) {
			return &StageOutcome{Contribution: level}, nil
		},
	}
	ctx := context.Background()

	require.NoError(t, e.runStage(ctx, st, run, nil))
	assert.InDelta(t, 0.75, run.Confidence(), 1e-9)

	// Same level again: no movement.
	run.PassNumber = 2
	require.NoError(t, e.runStage(ctx, st, run, nil))
	assert.InDelta(t, 0.75, run.Confidence(), 1e-9)
	assert.Zero(t, run.StageResults[StageClassification].Applied)

	// A higher level applies only the increment.
	level = 0.15
	require.NoError(t, e.runStage(ctx, st, run, nil))
	assert.InDelta(t, 0.80, run.Confidence(), 1e-9)

	// A lower level walks confidence back down.
	level = 0.05
	require.NoError(t, e.runStage(ctx, st, run, nil))
	assert.InDelta(t, 0.70, run.Confidence(), 1e-9)

	// Contained runs refuse further gains.
	require.True(t, run.Contain(StatusContainedESI))
	level = 0.20
	require.NoError(t, e.runStage(ctx, st, run, nil))
	assert.InDelta(t, 0.70, run.Confidence(), 1e-9)
}

// TestRunRecordsAuditTrailOrder verifies sequence integrity of the
// memory log across a multi-pass run.
func TestRunRecordsAuditTrailOrder(t *testing.T) {
	e, mem := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Run(ctx, RunParams{Query: garbageQuery, SessionID: "sess-audit", MaxPasses: 2})
	require.NoError(t, err)

	entries, err := mem.List(ctx, "sess-audit", memlog.Filter{})
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	assert.Equal(t, memlog.EntryRunStarted, entries[0].Type)
	assert.Equal(t, memlog.EntryRunCompleted, entries[len(entries)-1].Type)
	for i := 1; i < len(entries); i++ {
		assert.Greater(t, entries[i].Seq, entries[i-1].Seq)
	}

	sessions, err := mem.Sessions(ctx)
	require.NoError(t, err)
	assert.Contains(t, sessions, "sess-audit")
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{"short ascii untouched", "what is entropy", 120, "what is entropy"},
		{"ascii cut at limit", "abcdef", 4, "abcd"},
		{"multibyte kept whole", "héllo", 2, "h"},
		{"cut lands inside rune", "日本語", 4, "日"},
		{"cut on rune boundary", "日本語", 6, "日本"},
		{"exact length untouched", "日本語", 9, "日本語"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.limit)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}
