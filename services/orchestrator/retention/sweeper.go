// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retention expires old run history from the memory log. Sessions
// are aged by their most recent entry, so a session stays alive as long
// as it keeps running.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/CascadiaAI/CascadiaMind/services/knowledge/memlog"
)

// Config holds retention sweeper settings.
//
// # Fields
//
//   - Interval: how often to sweep. Default: 1 hour.
//   - MaxAge: sessions whose newest entry is older than this are cleared.
//     Default: 30 days.
//   - BatchSize: maximum sessions cleared per sweep, bounding sweep cost
//     on instances with long backlogs. Default: 100.
type Config struct {
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

// DefaultConfig returns production retention defaults.
func DefaultConfig() Config {
	return Config{
		Interval:  1 * time.Hour,
		MaxAge:    30 * 24 * time.Hour,
		BatchSize: 100,
	}
}

// SweepResult summarizes one retention pass.
type SweepResult struct {
	// Scanned is the number of sessions examined.
	Scanned int

	// Swept is the number of sessions cleared.
	Swept int

	// Deleted is the total number of entries removed.
	Deleted int
}

// Sweeper periodically clears sessions that have been inactive past
// MaxAge. It uses the ticker plus done-channel pattern for graceful
// shutdown.
//
// # Thread Safety
//
// All public methods are safe for concurrent use. Only one background
// loop runs per sweeper.
type Sweeper struct {
	mem *memlog.Log
	cfg Config
	log *slog.Logger
	now func() time.Time

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewSweeper builds a sweeper over mem. Zero config fields take their
// defaults; a nil logger falls back to slog.Default().
func NewSweeper(mem *memlog.Log, cfg Config, log *slog.Logger) *Sweeper {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = def.MaxAge
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		mem: mem,
		cfg: cfg,
		log: log,
		now: time.Now,
	}
}

// Start launches the background sweep loop. An initial sweep runs
// immediately so restarts do not defer cleanup by a full interval.
// Returns an error if the sweeper is already running.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("retention sweeper already running")
	}
	s.running = true
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)
	s.log.Info("Retention sweeper started",
		"interval", s.cfg.Interval, "maxAge", s.cfg.MaxAge)
	return nil
}

// Stop halts the loop and waits for any in-flight sweep to finish. Safe
// to call multiple times.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("Retention sweeper stopped")
}

// IsRunning reports whether the background loop is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	res, err := s.SweepOnce(ctx)
	if err != nil {
		s.log.Error("Retention sweep failed", "error", err)
		return
	}
	if res.Swept > 0 {
		s.log.Info("Retention sweep completed",
			"scanned", res.Scanned, "sessions", res.Swept, "entries", res.Deleted)
	}
}

// SweepOnce runs a single retention pass.
//
// # Description
//
// Lists every session and clears those whose newest entry is older than
// MaxAge, up to BatchSize sessions. Per-session failures are logged and
// skipped so one bad session cannot stall retention for the rest.
//
// # Outputs
//
//   - SweepResult: counts of sessions examined, cleared, and entries
//     removed.
//   - error: non-nil only when the session listing itself fails.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	sessions, err := s.mem.Sessions(ctx)
	if err != nil {
		return res, fmt.Errorf("list sessions: %w", err)
	}

	cutoff := s.now().Add(-s.cfg.MaxAge).UnixMilli()
	for _, session := range sessions {
		if res.Swept >= s.cfg.BatchSize {
			break
		}
		res.Scanned++

		last, err := s.mem.Last(ctx, session)
		if err != nil {
			s.log.Warn("Failed to read newest entry", "error", err, "sessionId", session)
			continue
		}
		if last == nil || last.TimeMilli == 0 || last.TimeMilli > cutoff {
			continue
		}

		deleted, err := s.mem.Clear(ctx, session)
		if err != nil {
			s.log.Warn("Failed to clear expired session", "error", err, "sessionId", session)
			continue
		}
		res.Swept++
		res.Deleted += deleted
		s.log.Info("Swept expired session",
			"sessionId", session, "entries", deleted,
			"lastActive", time.UnixMilli(last.TimeMilli).UTC().Format(time.RFC3339))
	}
	return res, nil
}
