// Copyright (C) 2025 Saleh Mehdikhani
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package resolve maps user-supplied person references — a full id, an id
// prefix, or a name fragment — to exactly one canonical person id.
//
// Ambiguity is handed to an injected Chooser so the core stays testable
// without a terminal; with no Chooser the resolver fails with a typed
// ambiguity error carrying the candidate list.
package resolve

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/saleh-mehdikhani/fam-tool/services/family"
)

// Directory is the attribute-store view the resolver needs.
type Directory interface {
	FindByPrefix(prefix string) ([]family.Record, error)
	FindByName(text string) ([]family.Record, error)
}

// RefLister is the substrate view the resolver needs for its fallback.
type RefLister interface {
	ListRefs(ctx context.Context, prefix string) (map[string]string, error)
}

// Chooser disambiguates between candidate records, returning the index of
// the chosen one. Implementations may prompt interactively; returning an
// error aborts the resolution.
type Chooser interface {
	Choose(role string, candidates []family.Record) (int, error)
}

// Resolver maps tokens to canonical person ids.
type Resolver struct {
	dir     Directory
	refs    RefLister
	chooser Chooser
	logger  *slog.Logger
}

// New creates a resolver. chooser may be nil, in which case multiple
// matches surface as an AmbiguousError instead of a prompt.
func New(dir Directory, refs RefLister, chooser Chooser, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{dir: dir, refs: refs, chooser: chooser, logger: logger}
}

// Resolve maps a token to exactly one canonical person id.
//
// Description:
//
//	Resolution order:
//
//	 1. token as a full id or id prefix of exactly one person
//	 2. name search: case-insensitive substring on the full name, exact
//	    case-insensitive first or last name
//	 3. fallback: a substrate ref with exactly that name (tolerates a person
//	    whose attribute record was never materialized)
//
//	role labels the reference in error messages and prompts ("father",
//	"mother", "child", ...).
//
// Outputs:
//
//	string - The canonical person id.
//	error - family.ErrNotFound, a family.AmbiguousError (when no Chooser is
//	        installed), or family.ErrAborted when the Chooser declines.
func (r *Resolver) Resolve(ctx context.Context, token, role string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: empty %s reference", family.ErrNotFound, role)
	}

	byID, err := r.dir.FindByPrefix(token)
	if err != nil {
		return "", err
	}
	switch len(byID) {
	case 0:
		// Fall through to name search.
	case 1:
		return byID[0].ID, nil
	default:
		return r.pick(token, role, byID)
	}

	byName, err := r.dir.FindByName(token)
	if err != nil {
		return "", err
	}
	switch len(byName) {
	case 0:
		return r.refFallback(ctx, token, role)
	case 1:
		return byName[0].ID, nil
	default:
		return r.pick(token, role, byName)
	}
}

// pick delegates to the chooser, or fails with the candidate list.
func (r *Resolver) pick(token, role string, candidates []family.Record) (string, error) {
	if r.chooser == nil {
		return "", &family.AmbiguousError{Role: role, Token: token, Candidates: candidates}
	}
	idx, err := r.chooser.Choose(role, candidates)
	if err != nil {
		return "", fmt.Errorf("%w: %s %q: %v", family.ErrAborted, role, token, err)
	}
	if idx < 0 || idx >= len(candidates) {
		return "", fmt.Errorf("%w: %s %q", family.ErrAborted, role, token)
	}
	r.logger.Debug("disambiguated reference", "role", role, "token", token, "chosen", candidates[idx].FullName())
	return candidates[idx].ID, nil
}

// refFallback accepts a token that is a live substrate ref even though no
// attribute record exists for it.
func (r *Resolver) refFallback(ctx context.Context, token, role string) (string, error) {
	refs, err := r.refs.ListRefs(ctx, token)
	if err != nil {
		return "", err
	}
	if _, ok := refs[token]; ok {
		r.logger.Warn("resolved ref with no attribute record", "role", role, "token", token)
		return token, nil
	}
	return "", fmt.Errorf("%w: %s %q", family.ErrNotFound, role, token)
}
