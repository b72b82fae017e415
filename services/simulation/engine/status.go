// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a simulation run.
type Status string

const (
	// StatusInitialized is the state before the first pass starts.
	StatusInitialized Status = "INITIALIZED"

	// StatusRunning is the state while passes execute.
	StatusRunning Status = "RUNNING"

	// StatusCompletedSuccess means the confidence target was reached.
	StatusCompletedSuccess Status = "COMPLETED_SUCCESS"

	// StatusContainedESI means the risk index crossed the containment
	// threshold and the run was halted.
	StatusContainedESI Status = "CONTAINED_ESI_THRESHOLD_EXCEEDED"

	// StatusContainedSafety means a hard safety check failed and the
	// run was halted.
	StatusContainedSafety Status = "CONTAINED_SAFETY_FAILURE"

	// StatusMaxPasses means the pass budget (or the caller's deadline)
	// was exhausted below the confidence target.
	StatusMaxPasses Status = "MAX_PASSES_REACHED"

	// StatusFailed means the run could not execute at all, for example
	// because a required collaborator was missing.
	StatusFailed Status = "FAILED"
)

// containedPrefix marks the halted-by-safety terminal states.
const containedPrefix = "CONTAINED_"

// Terminal reports whether the run has reached a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompletedSuccess, StatusContainedESI, StatusContainedSafety,
		StatusMaxPasses, StatusFailed:
		return true
	default:
		return false
	}
}

// Contained reports whether the run was halted by the safety gate.
func (s Status) Contained() bool {
	return strings.HasPrefix(string(s), containedPrefix)
}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusInitialized, StatusRunning, StatusCompletedSuccess,
		StatusContainedESI, StatusContainedSafety, StatusMaxPasses,
		StatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown run status %q", s)
	}
}
