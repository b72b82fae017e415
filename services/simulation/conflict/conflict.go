// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package conflict reconciles diverging per-source confidence values.
//
// The reasoning and integration stages collect opinions from several
// sources (rules, perspectives, knowledge algorithms). When those
// opinions diverge beyond a threshold, one of three interchangeable
// strategies resolves them into a single confidence. The active
// strategy is configuration, not hardwired.
package conflict

import (
	"errors"
	"fmt"
	"math"
)

// Strategy selects how diverging sources are reconciled.
type Strategy string

const (
	// StrategyHighestConfidence picks the single most confident source.
	StrategyHighestConfidence Strategy = "highest_confidence"

	// StrategyWeightedVote averages confidences weighted by themselves,
	// so strong opinions count more than weak ones.
	StrategyWeightedVote Strategy = "weighted_vote"

	// StrategyConsensus takes the simple mean and flags whether it
	// clears the acceptance cutoff.
	StrategyConsensus Strategy = "consensus"
)

const (
	// DefaultDivergenceThreshold is the standard deviation above which
	// sources are considered in conflict.
	DefaultDivergenceThreshold = 0.15

	// ConsensusCutoff is the mean confidence the consensus strategy
	// requires to accept the combined result.
	ConsensusCutoff = 0.6
)

var (
	// ErrNoSources is returned when there is nothing to resolve.
	ErrNoSources = errors.New("no sources to resolve")

	// ErrUnknownStrategy is returned for an unrecognized strategy name.
	ErrUnknownStrategy = errors.New("unknown conflict strategy")
)

// ParseStrategy validates a strategy name from configuration.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyHighestConfidence, StrategyWeightedVote, StrategyConsensus:
		return Strategy(s), nil
	case "":
		return StrategyConsensus, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// Source is one opinion entering conflict resolution.
type Source struct {
	// ID names the opinion's origin (rule id, lens, algorithm id).
	ID string

	// Claim is the opinion's content, carried through for reporting.
	Claim string

	// Confidence is the source's self-assessed confidence in [0,1].
	Confidence float64
}

// Resolution is the outcome of reconciling a set of sources.
type Resolution struct {
	// Strategy is the strategy that produced the result.
	Strategy Strategy

	// Confidence is the combined confidence.
	Confidence float64

	// ChosenID names the winning source under highest_confidence.
	ChosenID string

	// Accepted reports whether the consensus cutoff was cleared. Always
	// true for the other strategies and for non-diverging input.
	Accepted bool

	// Divergence is the population standard deviation of the source
	// confidences.
	Divergence float64

	// Diverged reports whether the divergence exceeded the threshold
	// and a strategy was applied.
	Diverged bool
}

// Divergence computes the population standard deviation of the source
// confidences. Fewer than two sources cannot diverge.
func Divergence(sources []Source) float64 {
	if len(sources) < 2 {
		return 0
	}

	var sum float64
	for _, s := range sources {
		sum += s.Confidence
	}
	mean := sum / float64(len(sources))

	var sumSquaredDiff float64
	for _, s := range sources {
		diff := s.Confidence - mean
		sumSquaredDiff += diff * diff
	}
	return math.Sqrt(sumSquaredDiff / float64(len(sources)))
}

// Resolve applies a strategy to the sources unconditionally.
//
// Description:
//
//	highest_confidence picks the maximum (first wins ties),
//	weighted_vote computes sum(c*c)/sum(c), and consensus takes the
//	simple mean with an accepted flag at the cutoff. Divergence is
//	computed and reported but does not gate resolution here; use
//	Reconcile for threshold-gated behavior.
//
// Outputs:
//   - *Resolution: the combined result.
//   - error: ErrNoSources for empty input, ErrUnknownStrategy.
func Resolve(sources []Source, strategy Strategy) (*Resolution, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}

	res := &Resolution{
		Strategy:   strategy,
		Accepted:   true,
		Divergence: Divergence(sources),
		Diverged:   true,
	}

	switch strategy {
	case StrategyHighestConfidence:
		best := sources[0]
		for _, s := range sources[1:] {
			if s.Confidence > best.Confidence {
				best = s
			}
		}
		res.Confidence = best.Confidence
		res.ChosenID = best.ID

	case StrategyWeightedVote:
		var weighted, total float64
		for _, s := range sources {
			weighted += s.Confidence * s.Confidence
			total += s.Confidence
		}
		if total > 0 {
			res.Confidence = weighted / total
		}

	case StrategyConsensus:
		var sum float64
		for _, s := range sources {
			sum += s.Confidence
		}
		res.Confidence = sum / float64(len(sources))
		res.Accepted = res.Confidence >= ConsensusCutoff

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}

	return res, nil
}

// Reconcile combines sources, applying the strategy only when the
// divergence exceeds the threshold. Agreeing sources are averaged. A
// threshold <= 0 uses DefaultDivergenceThreshold.
func Reconcile(sources []Source, strategy Strategy, threshold float64) (*Resolution, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	if threshold <= 0 {
		threshold = DefaultDivergenceThreshold
	}

	div := Divergence(sources)
	if div > threshold {
		res, err := Resolve(sources, strategy)
		if err != nil {
			return nil, err
		}
		res.Divergence = div
		return res, nil
	}

	var sum float64
	for _, s := range sources {
		sum += s.Confidence
	}
	return &Resolution{
		Strategy:   strategy,
		Confidence: sum / float64(len(sources)),
		Accepted:   true,
		Divergence: div,
		Diverged:   false,
	}, nil
}
