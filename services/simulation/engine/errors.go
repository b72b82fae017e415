// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import "errors"

// ErrMissingCollaborator indicates a required collaborator (graph
// store, memory log) was not provided. Runs fail fast with status
// FAILED instead of degrading silently.
var ErrMissingCollaborator = errors.New("missing collaborator")

// ErrEmptyQuery indicates the run was started without a query.
var ErrEmptyQuery = errors.New("empty query")

// ErrInvalidParams indicates a per-run parameter override was out of
// range or unparseable.
var ErrInvalidParams = errors.New("invalid run parameters")
