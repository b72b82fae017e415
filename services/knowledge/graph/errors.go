// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package graph implements the domain taxonomy store consumed by the
// simulation engine and the knowledge algorithms.
//
// A taxonomy is a directed graph of domains and concepts connected by
// typed relations. Graphs follow a build-then-freeze lifecycle: a
// loader constructs a Graph from a seed, calls Freeze, and hands the
// frozen graph to a Store. Frozen graphs are immutable and safe for
// concurrent reads; the Store adds atomic swapping so a watcher can
// replace the taxonomy while queries are in flight.
//
// The engine only ever reads: GetNode, GetConnected, and Search. All
// mutation happens during loading, before Freeze.
package graph

import "errors"

// ErrGraphFrozen is returned by AddNode/AddEdge after Freeze has been
// called.
var ErrGraphFrozen = errors.New("graph is frozen")

// ErrNodeExists is returned when adding a node whose ID is already
// present.
var ErrNodeExists = errors.New("node already exists")

// ErrNodeNotFound is returned when an edge endpoint does not resolve
// to a known node.
var ErrNodeNotFound = errors.New("node not found")

// ErrGraphFull is returned when a node or edge would exceed the
// configured limits.
var ErrGraphFull = errors.New("graph limit exceeded")

// ErrInvalidSeed is returned when a taxonomy seed file fails
// structural validation.
var ErrInvalidSeed = errors.New("invalid taxonomy seed")

// ErrSeedVersion is returned when a seed file declares a schema
// version older than the minimum this build supports.
var ErrSeedVersion = errors.New("unsupported taxonomy seed version")
