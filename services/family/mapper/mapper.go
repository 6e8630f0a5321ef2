// Copyright (C) 2025 Saleh Mehdikhani
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package mapper translates genealogy operations — add person, marry, add
// child, unmarry, remove person — into commit-substrate mutations plus the
// matching attribute-store writes.
//
// Every operation validates against the current graph before mutating
// anything, so all domain errors (self reference, duplicate union, ancestor
// cycle, child-partner conflict, has-children) are side-effect free. The
// two stores are then updated in a fixed order — substrate first, attribute
// store second — with an intent journal entry bracketing the pair, so a
// failure between the two surfaces as a precise PartialStateError instead
// of silent drift.
//
// Interactive decisions (ancestor-marriage override, implicit union
// creation, cascading removal) go through the injected Confirmer; a nil
// Confirmer declines everything, which makes headless use safe by default.
package mapper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/saleh-mehdikhani/fam-tool/services/family"
	"github.com/saleh-mehdikhani/fam-tool/services/family/analytics"
	"github.com/saleh-mehdikhani/fam-tool/services/family/commitgraph"
	"github.com/saleh-mehdikhani/fam-tool/services/family/journal"
)

// Confirmer asks the user to approve a guarded step. Returning false or an
// error aborts the operation before any mutation.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// Resolver maps user tokens to canonical person ids.
type Resolver interface {
	Resolve(ctx context.Context, token, role string) (string, error)
}

// AttrStore is the attribute-store surface the mapper mutates.
type AttrStore interface {
	Put(rec family.Record) error
	Get(id string) (family.Record, error)
	Delete(id string) error
	ListAll(ctx context.Context) ([]family.Record, error)
}

// Service owns the mapping between the attribute store and the commit
// substrate. It is not safe for concurrent mutation; the engine is
// single-writer by design.
type Service struct {
	graph    *commitgraph.Store
	attrs    AttrStore
	resolver Resolver
	journal  *journal.Journal
	confirm  Confirmer
	logger   *slog.Logger
}

// Config wires a Service.
type Config struct {
	Graph    *commitgraph.Store
	Attrs    AttrStore
	Resolver Resolver
	Journal  *journal.Journal
	Confirm  Confirmer // nil declines every guarded step
	Logger   *slog.Logger
}

// NewService creates the mapper service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Graph == nil || cfg.Attrs == nil || cfg.Resolver == nil || cfg.Journal == nil {
		return nil, fmt.Errorf("mapper: graph, attrs, resolver and journal are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		graph:    cfg.Graph,
		attrs:    cfg.Attrs,
		resolver: cfg.Resolver,
		journal:  cfg.Journal,
		confirm:  cfg.Confirm,
		logger:   logger,
	}, nil
}

// abandon drops an intent whose operation failed before mutating anything.
// Best effort; a leftover entry only causes a spurious stale warning.
func (s *Service) abandon(ctx context.Context, in *journal.Intent) {
	if err := s.journal.Complete(ctx, in); err != nil {
		s.logger.Warn("could not drop journal intent", "intent", in.ID, "error", err)
	}
}

// ask routes a guarded step through the confirmer. No confirmer means no.
func (s *Service) ask(prompt string) (bool, error) {
	if s.confirm == nil {
		return false, nil
	}
	return s.confirm.Confirm(prompt)
}

// personNode loads the substrate node behind a full person id.
func (s *Service) personNode(ctx context.Context, id string) (commitgraph.Node, error) {
	n, err := s.graph.ReadNode(ctx, family.ShortID(id))
	if err != nil {
		return commitgraph.Node{}, fmt.Errorf("%w: no graph node for %s", family.ErrNotFound, family.ShortID(id))
	}
	return n, nil
}

// displayName produces a label for prompts and log lines, falling back to
// the short id for persons without an attribute record.
func (s *Service) displayName(id string) string {
	rec, err := s.attrs.Get(id)
	if err != nil {
		return family.ShortID(id)
	}
	return fmt.Sprintf("%s (%s)", rec.FullName(), rec.ShortID())
}

// Edges materializes the relationship edge list from the substrate.
//
// Description:
//
//	Union nodes contribute one partner edge between their two parents;
//	person nodes whose parent is a union contribute a child edge from each
//	partner. Edges carry full person ids where an attribute record exists
//	and fall back to the bare short id otherwise.
func (s *Service) Edges(ctx context.Context) ([]family.Edge, error) {
	recs, err := s.attrs.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	idByShort := make(map[string]string, len(recs))
	for _, rec := range recs {
		idByShort[rec.ShortID()] = rec.ID
	}
	full := func(short string) string {
		if id, ok := idByShort[short]; ok {
			return id
		}
		return short
	}

	nodes, err := s.graph.ListNodes(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]commitgraph.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	var edges []family.Edge
	for _, n := range nodes {
		switch n.Kind {
		case commitgraph.KindUnion:
			if len(n.Parents) != 2 {
				continue
			}
			a, okA := byID[n.Parents[0]]
			b, okB := byID[n.Parents[1]]
			if !okA || !okB {
				continue
			}
			edges = append(edges, family.Edge{
				From: full(a.Subject),
				To:   full(b.Subject),
				Type: family.EdgePartner,
			})
		case commitgraph.KindPerson:
			if len(n.Parents) != 1 {
				continue
			}
			u, ok := byID[n.Parents[0]]
			if !ok || u.Kind != commitgraph.KindUnion {
				continue
			}
			for _, pid := range u.Parents {
				if p, ok := byID[pid]; ok {
					edges = append(edges, family.Edge{
						From: full(p.Subject),
						To:   full(n.Subject),
						Type: family.EdgeChild,
					})
				}
			}
		}
	}
	return edges, nil
}

// isAncestor reports whether candidate is an ancestor of id.
func (s *Service) isAncestor(ctx context.Context, candidate, id string) (bool, error) {
	edges, err := s.Edges(ctx)
	if err != nil {
		return false, err
	}
	return analytics.AncestorsOf(id, analytics.ParentIndex(edges))[candidate], nil
}

// unionExists reports whether a union ref exists for the unordered pair.
func (s *Service) unionExists(ctx context.Context, shortA, shortB string) (bool, error) {
	name := commitgraph.UnionRefName(shortA, shortB)
	_, err := s.graph.ResolveRef(ctx, name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, commitgraph.ErrRefNotFound) {
		return false, nil
	}
	return false, err
}
