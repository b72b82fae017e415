// Copyright (C) 2026 Cascadia AI (engineering@cascadia-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	_ "embed"
	"fmt"
	"os"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// MinSeedVersion is the oldest seed schema this build accepts.
const MinSeedVersion = "v1.0.0"

// defaultWeight is applied to seed nodes that do not declare one.
const defaultWeight = 0.5

//go:embed seed_default.yaml
var defaultSeedYAML []byte

// Seed is the YAML taxonomy seed format.
//
// Concepts nest arbitrarily deep via Children; the builder flattens
// the tree with an explicit worklist so seed depth never translates
// into call-stack depth.
type Seed struct {
	Version string       `yaml:"version"`
	Domains []SeedDomain `yaml:"domains"`
	Edges   []SeedEdge   `yaml:"edges"`
}

// SeedDomain declares a top-level domain and its concept tree.
type SeedDomain struct {
	ID       string        `yaml:"id"`
	Label    string        `yaml:"label"`
	Weight   float64       `yaml:"weight"`
	Terms    []string      `yaml:"terms"`
	Concepts []SeedConcept `yaml:"concepts"`
}

// SeedConcept declares a concept or method node, optionally nested.
type SeedConcept struct {
	ID       string        `yaml:"id"`
	Label    string        `yaml:"label"`
	Kind     string        `yaml:"kind"` // concept (default) or method
	Weight   float64       `yaml:"weight"`
	Terms    []string      `yaml:"terms"`
	Children []SeedConcept `yaml:"children"`
}

// SeedEdge declares a cross-taxonomy relation.
type SeedEdge struct {
	From     string  `yaml:"from"`
	To       string  `yaml:"to"`
	Relation string  `yaml:"relation"`
	Weight   float64 `yaml:"weight"`
}

// ParseSeed decodes and validates a YAML seed document.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	if !semver.IsValid(seed.Version) {
		return nil, fmt.Errorf("%w: version %q is not valid semver", ErrInvalidSeed, seed.Version)
	}
	if semver.Compare(seed.Version, MinSeedVersion) < 0 {
		return nil, fmt.Errorf("%w: %s < %s", ErrSeedVersion, seed.Version, MinSeedVersion)
	}
	if len(seed.Domains) == 0 {
		return nil, fmt.Errorf("%w: no domains", ErrInvalidSeed)
	}
	return &seed, nil
}

// Build constructs a frozen Graph from the seed.
//
// Each domain becomes a NodeKindDomain node; every concept in its tree
// becomes a node owned by that domain, with a RelationContains edge
// from its parent. Cross edges are added last so they can reference
// any node.
func (s *Seed) Build(opts ...Option) (*Graph, error) {
	g := New(opts...)
	g.Version = s.Version

	type work struct {
		concept SeedConcept
		domain  string
		parent  string
	}

	for _, d := range s.Domains {
		if d.ID == "" {
			return nil, fmt.Errorf("%w: domain with empty id", ErrInvalidSeed)
		}
		if err := g.AddNode(&Node{
			ID:     d.ID,
			Label:  labelOr(d.Label, d.ID),
			Kind:   NodeKindDomain,
			Weight: weightOr(d.Weight),
			Terms:  d.Terms,
		}); err != nil {
			return nil, fmt.Errorf("domain %q: %w", d.ID, err)
		}

		stack := make([]work, 0, len(d.Concepts))
		for _, c := range d.Concepts {
			stack = append(stack, work{concept: c, domain: d.ID, parent: d.ID})
		}
		for len(stack) > 0 {
			item := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			c := item.concept
			if c.ID == "" {
				return nil, fmt.Errorf("%w: concept with empty id in domain %q", ErrInvalidSeed, item.domain)
			}
			kind := NodeKindConcept
			if c.Kind != "" {
				kind = ParseNodeKind(c.Kind)
				if kind == NodeKindUnknown || kind == NodeKindDomain {
					return nil, fmt.Errorf("%w: concept %q has kind %q", ErrInvalidSeed, c.ID, c.Kind)
				}
			}
			if err := g.AddNode(&Node{
				ID:     c.ID,
				Label:  labelOr(c.Label, c.ID),
				Kind:   kind,
				Domain: item.domain,
				Weight: weightOr(c.Weight),
				Terms:  c.Terms,
			}); err != nil {
				return nil, fmt.Errorf("concept %q: %w", c.ID, err)
			}
			if err := g.AddEdge(&Edge{
				FromID:   item.parent,
				ToID:     c.ID,
				Relation: RelationContains,
				Weight:   1,
			}); err != nil {
				return nil, fmt.Errorf("contains edge %q -> %q: %w", item.parent, c.ID, err)
			}
			for _, child := range c.Children {
				stack = append(stack, work{concept: child, domain: item.domain, parent: c.ID})
			}
		}
	}

	for _, e := range s.Edges {
		relation := ParseRelation(e.Relation)
		if relation == RelationUnknown {
			return nil, fmt.Errorf("%w: edge %q -> %q has relation %q", ErrInvalidSeed, e.From, e.To, e.Relation)
		}
		if err := g.AddEdge(&Edge{
			FromID:   e.From,
			ToID:     e.To,
			Relation: relation,
			Weight:   weightOr(e.Weight),
		}); err != nil {
			return nil, fmt.Errorf("edge %q -> %q: %w", e.From, e.To, err)
		}
	}

	g.Freeze()
	return g, nil
}

// LoadFile parses and builds a taxonomy from a seed file on disk.
func LoadFile(path string, opts ...Option) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	seed, err := ParseSeed(data)
	if err != nil {
		return nil, fmt.Errorf("seed %s: %w", path, err)
	}
	return seed.Build(opts...)
}

// LoadDefault builds the taxonomy embedded in the binary.
func LoadDefault(opts ...Option) (*Graph, error) {
	seed, err := ParseSeed(defaultSeedYAML)
	if err != nil {
		return nil, fmt.Errorf("embedded seed: %w", err)
	}
	return seed.Build(opts...)
}

// MustDefault is LoadDefault for composition roots where a broken
// embedded seed is unrecoverable.
func MustDefault(opts ...Option) *Graph {
	g, err := LoadDefault(opts...)
	if err != nil {
		panic(err)
	}
	return g
}

func labelOr(label, id string) string {
	if label != "" {
		return label
	}
	return id
}

func weightOr(w float64) float64 {
	if w <= 0 {
		return defaultWeight
	}
	if w > 1 {
		return 1
	}
	return w
}
