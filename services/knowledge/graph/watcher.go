// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SeedWatcher reloads a taxonomy seed file when it changes on disk.
//
// # Description
//
// Watches the seed file's parent directory (editors replace files via
// rename, which a direct file watch misses) and batches events using a
// debounce window. After the window expires the seed is re-parsed and,
// if valid, swapped into the Store. A seed that fails to parse leaves
// the previous snapshot serving.
//
// # Thread Safety
//
// Safe for concurrent use. Reloads happen from a single goroutine.
type SeedWatcher struct {
	path     string
	store    *Store
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger
	onReload func(*Graph, error)

	// Channels for communication
	changes  chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	watching bool
}

// SeedWatcherOptions configures the SeedWatcher.
type SeedWatcherOptions struct {
	// DebounceWindow is how long to wait for more changes before reloading.
	// Default: 250ms
	DebounceWindow time.Duration

	// Logger receives reload outcomes. Default: slog.Default().
	Logger *slog.Logger

	// OnReload is called after every reload attempt with the new graph
	// (nil on failure) and the error (nil on success). Optional.
	OnReload func(*Graph, error)

	// BufferSize is the size of the change signal channel.
	// Default: 64
	BufferSize int
}

// DefaultSeedWatcherOptions returns sensible defaults.
func DefaultSeedWatcherOptions() SeedWatcherOptions {
	return SeedWatcherOptions{
		DebounceWindow: 250 * time.Millisecond,
		BufferSize:     64,
	}
}

// NewSeedWatcher creates a watcher that keeps store in sync with the
// seed file at path.
//
// # Inputs
//
//   - path: Seed file to watch. Must exist when Start is called.
//   - store: Store to swap reloaded taxonomies into.
//   - opts: Optional configuration (nil uses defaults).
//
// # Outputs
//
//   - *SeedWatcher: Ready-to-use watcher (call Start to begin watching).
//   - error: Non-nil if the underlying watcher could not be created.
func NewSeedWatcher(path string, store *Store, opts *SeedWatcherOptions) (*SeedWatcher, error) {
	if opts == nil {
		defaults := DefaultSeedWatcherOptions()
		opts = &defaults
	}
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DefaultSeedWatcherOptions().DebounceWindow
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultSeedWatcherOptions().BufferSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &SeedWatcher{
		path:     filepath.Clean(path),
		store:    store,
		watcher:  watcher,
		debounce: opts.DebounceWindow,
		logger:   logger,
		onReload: opts.OnReload,
		changes:  make(chan struct{}, opts.BufferSize),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching for seed changes.
//
// Spawns two goroutines: an event processor that filters fsnotify
// events down to the watched file, and a debouncer that triggers the
// reload. Both exit when Stop() is called or the context is canceled.
func (w *SeedWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil // Already watching
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)

	return nil
}

// Stop stops the watcher.
func (w *SeedWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching returns true if the watcher is currently active.
func (w *SeedWatcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

// processEvents filters fsnotify events down to the watched file and
// signals the debouncer.
func (w *SeedWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			// Signal the debouncer (non-blocking)
			select {
			case w.changes <- struct{}{}:
			default:
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("seed watcher error", "path", w.path, "error", err)
		}
	}
}

// debounceLoop coalesces change signals and reloads after the window
// expires.
func (w *SeedWatcher) debounceLoop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-w.changes:
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer.Stop()
			timer = nil
			timerC = nil
			w.reload()
		}
	}
}

// reload re-parses the seed file and swaps the result into the store.
// Parse and build failures keep the previous snapshot serving.
func (w *SeedWatcher) reload() {
	g, err := LoadFile(w.path)
	if err != nil {
		w.logger.Warn("seed reload failed, keeping previous taxonomy",
			"path", w.path, "error", err)
		if w.onReload != nil {
			w.onReload(nil, err)
		}
		return
	}

	w.store.Swap(g)
	w.logger.Info("taxonomy reloaded",
		"path", w.path,
		"version", g.Version,
		"nodes", g.NodeCount(),
		"edges", g.EdgeCount())
	if w.onReload != nil {
		w.onReload(g, nil)
	}
}
