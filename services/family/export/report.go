// Copyright (C) 2025 Saleh Mehdikhani
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package export builds read-only reports over the family graph and renders
// them as JSON or Graphviz DOT.
package export

import (
	"context"
	"errors"
	"log/slog"

	"github.com/saleh-mehdikhani/fam-tool/services/family"
	"github.com/saleh-mehdikhani/fam-tool/services/family/analytics"
)

// PersonSource lists all known attribute records.
type PersonSource interface {
	ListAll(ctx context.Context) ([]family.Record, error)
}

// EdgeSource materializes relationship edges from the substrate.
type EdgeSource interface {
	Edges(ctx context.Context) ([]family.Edge, error)
}

// Report is a point-in-time snapshot of the whole family graph.
type Report struct {
	Persons []family.Record `json:"persons"`
	Edges   []family.Edge   `json:"edges"`

	// Generations maps person id to generation depth; roots are 0. Empty
	// when the graph contains a cycle.
	Generations map[string]int `json:"generations,omitempty"`

	// Cycle lists the person ids of a parent-child cycle, if one exists.
	// Cycles never block reporting; they are surfaced for repair.
	Cycle []string `json:"cycle,omitempty"`
}

// Build assembles a Report from the two stores.
//
// Description:
//
//	Persons and edges are read as-is. Generation numbering is attempted on
//	top; if the edge set contains a parent-child cycle the cycle is
//	reported instead of the (undefined) generation map.
func Build(ctx context.Context, persons PersonSource, edges EdgeSource, logger *slog.Logger) (*Report, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	recs, err := persons.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	edgeList, err := edges.Edges(ctx)
	if err != nil {
		return nil, err
	}
	report := &Report{Persons: recs, Edges: edgeList}
	ids := personIDs(recs, edgeList)

	if cycle := analytics.DetectCycle(ids, edgeList); len(cycle) > 0 {
		logger.Warn("parent-child cycle detected", "members", cycle)
		report.Cycle = cycle
		return report, nil
	}

	gens, err := analytics.AssignGenerations(ids, edgeList)
	if err != nil && !errors.Is(err, analytics.ErrNoConvergence) {
		return nil, err
	}
	if err != nil {
		logger.Warn("generation numbering did not converge", "assigned", len(gens))
	}
	report.Generations = gens
	return report, nil
}

// personIDs merges ids from records and edges, so persons that exist only
// in the substrate still get a generation.
func personIDs(recs []family.Record, edges []family.Edge) []string {
	seen := make(map[string]bool, len(recs))
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, rec := range recs {
		add(rec.ID)
	}
	for _, e := range edges {
		add(e.From)
		add(e.To)
	}
	return ids
}
