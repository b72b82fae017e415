// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package memlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrLogClosed is returned when operations are called on a closed log.
	ErrLogClosed = errors.New("memory log is closed")

	// ErrNilEntry is returned when attempting to append a nil entry.
	ErrNilEntry = errors.New("entry must not be nil")

	// ErrInvalidSession is returned for empty session IDs or IDs that
	// collide with the key encoding.
	ErrInvalidSession = errors.New("invalid session id")
)

// -----------------------------------------------------------------------------
// Entries
// -----------------------------------------------------------------------------

// Entry types recorded by the engine.
const (
	// EntryRunStarted marks the start of a run.
	EntryRunStarted = "run_started"

	// EntryStage records one stage execution and its confidence delta.
	EntryStage = "stage"

	// EntryEscalation records an escalation decision between passes.
	EntryEscalation = "escalation"

	// EntryRefinement records one refinement iteration.
	EntryRefinement = "refinement"

	// EntryContainment records a containment evaluation.
	EntryContainment = "containment"

	// EntryRunCompleted marks run termination with its final status.
	EntryRunCompleted = "run_completed"
)

// List limits.
const (
	// DefaultListLimit is the default maximum number of entries returned.
	DefaultListLimit = 1000

	// MaxListLimit is the maximum allowed limit.
	MaxListLimit = 10000
)

// Entry is one record in a session's history.
type Entry struct {
	// Session is the run's session ID.
	Session string `json:"session"`

	// Seq is the per-session sequence number, assigned on append.
	Seq uint64 `json:"seq"`

	// TimeMilli is the append time in Unix milliseconds.
	TimeMilli int64 `json:"time_milli"`

	// Type is one of the Entry* constants.
	Type string `json:"type"`

	// Pass is the 1-based pass number, 0 when not pass-scoped.
	Pass int `json:"pass,omitempty"`

	// Stage is the stage ID for stage-scoped entries.
	Stage string `json:"stage,omitempty"`

	// Status is the run or refinement status for terminal entries.
	Status string `json:"status,omitempty"`

	// Confidence is the run confidence after this entry.
	Confidence float64 `json:"confidence"`

	// Delta is the confidence change this entry contributed.
	Delta float64 `json:"delta,omitempty"`

	// Note is a short human-readable summary.
	Note string `json:"note,omitempty"`

	// Fields carries entry-specific detail (factors, check results).
	Fields map[string]any `json:"fields,omitempty"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	// Type restricts to one entry type.
	Type string

	// Stage restricts to one stage ID.
	Stage string

	// Pass restricts to one pass number (passes are 1-based).
	Pass int

	// Limit caps the number of returned entries (default: 1000, max: 10000).
	Limit int
}

func (f Filter) matches(e *Entry) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Stage != "" && e.Stage != f.Stage {
		return false
	}
	if f.Pass > 0 && e.Pass != f.Pass {
		return false
	}
	return true
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		return MaxListLimit
	}
	return f.Limit
}

// -----------------------------------------------------------------------------
// Log
// -----------------------------------------------------------------------------

// Log is a multi-session run history store backed by BadgerDB.
//
// Thread Safety: Safe for concurrent use. Appends to the same session
// are ordered by a per-session sequence counter recovered from the
// store on first use.
type Log struct {
	db     *badger.DB
	gc     *GCRunner
	logger *slog.Logger
	closed atomic.Bool

	mu   sync.RWMutex
	seqs map[string]*atomic.Uint64
}

// Open opens the memory log with the given configuration.
func Open(cfg Config) (*Log, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "memlog"))

	db, err := openDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("open memlog: %w", err)
	}

	l := &Log{
		db:     db,
		logger: logger,
		seqs:   make(map[string]*atomic.Uint64),
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		runner, err := NewGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("create GC runner: %w", err)
		}
		l.gc = runner
		runner.Start()
	}

	logger.Info("memory log opened",
		slog.String("path", cfg.Path),
		slog.Bool("in_memory", cfg.InMemory),
		slog.Bool("sync_writes", cfg.SyncWrites))

	return l, nil
}

// Close stops garbage collection and closes the database. Safe to call
// multiple times.
func (l *Log) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	if l.gc != nil {
		l.gc.Stop()
	}
	return l.db.Close()
}

// entryKeyPrefix returns the key prefix for a session's entries.
func entryKeyPrefix(session string) string {
	return fmt.Sprintf("run:%s:", session)
}

// entryKey generates a key for a specific sequence number.
func entryKey(session string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%016d", entryKeyPrefix(session), seq))
}

func validSession(session string) error {
	if session == "" || strings.Contains(session, ":") {
		return fmt.Errorf("%w: %q", ErrInvalidSession, session)
	}
	return nil
}

// seqCounter returns the session's sequence counter, recovering the
// last used number from the store on first access.
func (l *Log) seqCounter(ctx context.Context, session string) (*atomic.Uint64, error) {
	l.mu.RLock()
	c, ok := l.seqs[session]
	l.mu.RUnlock()
	if ok {
		return c, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.seqs[session]; ok {
		return c, nil
	}

	max, err := l.lastSeq(ctx, session)
	if err != nil {
		return nil, err
	}
	c = &atomic.Uint64{}
	c.Store(max)
	l.seqs[session] = c
	return c, nil
}

// lastSeq scans for the highest existing sequence number in a session.
func (l *Log) lastSeq(ctx context.Context, session string) (uint64, error) {
	prefix := entryKeyPrefix(session)
	var maxSeq uint64

	err := l.withReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true // Start from highest key

		it := txn.NewIterator(opts)
		defer it.Close()

		seekKey := append([]byte(prefix), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
		it.Seek(seekKey)

		if it.ValidForPrefix([]byte(prefix)) {
			key := it.Item().Key()
			seqStr := string(key[len(prefix):])
			var seq uint64
			if _, err := fmt.Sscanf(seqStr, "%016d", &seq); err == nil {
				maxSeq = seq
			}
		}
		return nil
	})
	return maxSeq, err
}

// Append records an entry, assigning its sequence number and timestamp.
func (l *Log) Append(ctx context.Context, e *Entry) error {
	if e == nil {
		return ErrNilEntry
	}
	if err := validSession(e.Session); err != nil {
		return err
	}
	if l.closed.Load() {
		return ErrLogClosed
	}

	ctx, span := otel.Tracer("cascadia.memlog").Start(ctx, "memlog.Append",
		trace.WithAttributes(
			attribute.String("session_id", e.Session),
			attribute.String("entry_type", e.Type),
		),
	)
	defer span.End()

	counter, err := l.seqCounter(ctx, e.Session)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sequence recovery failed")
		return fmt.Errorf("recover sequence: %w", err)
	}

	e.Seq = counter.Add(1)
	if e.TimeMilli == 0 {
		e.TimeMilli = time.Now().UnixMilli()
	}

	data, err := json.Marshal(e)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode failed")
		return fmt.Errorf("encode entry: %w", err)
	}

	key := entryKey(e.Session, e.Seq)
	err = l.withTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return fmt.Errorf("write entry: %w", err)
	}

	span.SetAttributes(attribute.Int64("seq", int64(e.Seq)))
	l.logger.Debug("entry appended",
		slog.String("session_id", e.Session),
		slog.Uint64("seq", e.Seq),
		slog.String("type", e.Type))

	return nil
}

// List returns a session's entries in append order, filtered.
//
// Unknown sessions return an empty slice, not an error.
func (l *Log) List(ctx context.Context, session string, f Filter) ([]*Entry, error) {
	if err := validSession(session); err != nil {
		return nil, err
	}
	if l.closed.Load() {
		return nil, ErrLogClosed
	}

	ctx, span := otel.Tracer("cascadia.memlog").Start(ctx, "memlog.List",
		trace.WithAttributes(attribute.String("session_id", session)),
	)
	defer span.End()

	limit := f.limit()
	entries := make([]*Entry, 0)
	prefix := []byte(entryKeyPrefix(session))

	err := l.withReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var e Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				return fmt.Errorf("decode entry %s: %w", it.Item().Key(), err)
			}

			if !f.matches(&e) {
				continue
			}
			entries = append(entries, &e)
			if len(entries) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("entries", len(entries)))
	return entries, nil
}

// Last returns the most recent entry for a session, or nil when the
// session has no entries. Retention sweeps use this to age sessions by
// their last activity without listing full histories.
func (l *Log) Last(ctx context.Context, session string) (*Entry, error) {
	if err := validSession(session); err != nil {
		return nil, err
	}
	if l.closed.Load() {
		return nil, ErrLogClosed
	}

	prefix := []byte(entryKeyPrefix(session))
	var last *Entry

	err := l.withReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		seekKey := append([]byte(nil), prefix...)
		seekKey = append(seekKey, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
		it.Seek(seekKey)

		if !it.ValidForPrefix(prefix) {
			return nil
		}
		var e Entry
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
		if err != nil {
			return fmt.Errorf("decode entry %s: %w", it.Item().Key(), err)
		}
		last = &e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return last, nil
}

// Clear deletes all of a session's entries and resets its sequence.
//
// Outputs the number of entries removed. Clearing an unknown session
// removes nothing and returns 0.
func (l *Log) Clear(ctx context.Context, session string) (int, error) {
	if err := validSession(session); err != nil {
		return 0, err
	}
	if l.closed.Load() {
		return 0, ErrLogClosed
	}

	ctx, span := otel.Tracer("cascadia.memlog").Start(ctx, "memlog.Clear",
		trace.WithAttributes(attribute.String("session_id", session)),
	)
	defer span.End()

	prefix := []byte(entryKeyPrefix(session))

	// Collect keys first; deleting while iterating invalidates the
	// iterator's snapshot.
	var keys [][]byte
	err := l.withReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan failed")
		return 0, err
	}

	// Delete in batches to stay under the transaction size limit.
	const batchSize = 1000
	for start := 0; start < len(keys); start += batchSize {
		end := start + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]

		err := l.withTxn(ctx, func(txn *badger.Txn) error {
			for _, k := range batch {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "delete failed")
			return 0, fmt.Errorf("delete entries: %w", err)
		}
	}

	l.mu.Lock()
	delete(l.seqs, session)
	l.mu.Unlock()

	span.SetAttributes(attribute.Int("removed", len(keys)))
	l.logger.Info("session history cleared",
		slog.String("session_id", session),
		slog.Int("removed", len(keys)))

	return len(keys), nil
}

// Sessions returns the distinct session IDs present in the log, in
// key order.
func (l *Log) Sessions(ctx context.Context) ([]string, error) {
	if l.closed.Load() {
		return nil, ErrLogClosed
	}

	sessions := make([]string, 0)
	prefix := []byte("run:")

	err := l.withReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		var last string
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			key := string(it.Item().Key())
			rest := key[len(prefix):]
			idx := strings.IndexByte(rest, ':')
			if idx < 0 {
				continue
			}
			session := rest[:idx]
			if session != last {
				sessions = append(sessions, session)
				last = session
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// withTxn executes fn within a read-write transaction, committing on
// nil return.
func (l *Log) withTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := l.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// withReadTxn executes fn within a read-only transaction.
func (l *Log) withReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := l.db.NewTransaction(false)
	defer txn.Discard()

	return fn(txn)
}
