// Copyright (C) 2025 Saleh Mehdikhani
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package mapper

import (
	"context"
	"errors"
	"fmt"

	"github.com/saleh-mehdikhani/fam-tool/services/family"
	"github.com/saleh-mehdikhani/fam-tool/services/family/commitgraph"
)

// Marry records a union between two persons.
//
// Description:
//
//	Both tokens are resolved, self-marriage and duplicate unions are
//	rejected, and an ancestor-descendant pairing needs an explicit
//	confirmation before it is allowed through. The union node and its ref
//	are created atomically in the substrate; no attribute write is
//	involved, so the journal intent brackets the graph write alone.
//
// Outputs:
//   - string: the union ref name.
//   - error: family.ErrSelfReference, family.ErrAlreadyMarried,
//     family.ErrAncestorCycle, family.ErrAborted, or resolver errors.
func (s *Service) Marry(ctx context.Context, tokenA, tokenB string) (string, error) {
	idA, err := s.resolver.Resolve(ctx, tokenA, "partner")
	if err != nil {
		return "", err
	}
	idB, err := s.resolver.Resolve(ctx, tokenB, "partner")
	if err != nil {
		return "", err
	}
	if idA == idB {
		return "", fmt.Errorf("%w: cannot marry %s to themselves", family.ErrSelfReference, s.displayName(idA))
	}
	if _, err := s.personNode(ctx, idA); err != nil {
		return "", err
	}
	if _, err := s.personNode(ctx, idB); err != nil {
		return "", err
	}

	shortA, shortB := family.ShortID(idA), family.ShortID(idB)
	exists, err := s.unionExists(ctx, shortA, shortB)
	if err != nil {
		return "", err
	}
	if exists {
		return "", fmt.Errorf("%w: %s and %s", family.ErrAlreadyMarried, s.displayName(idA), s.displayName(idB))
	}

	if err := s.ancestorMarriageGuard(ctx, idA, idB); err != nil {
		return "", err
	}

	intent, err := s.journal.Begin(ctx, "marry", commitgraph.UnionRefName(shortA, shortB))
	if err != nil {
		return "", err
	}
	refName, err := s.createUnion(ctx, idA, idB)
	if err != nil {
		s.abandon(ctx, intent)
		return "", err
	}
	if err := s.journal.MarkGraphDone(ctx, intent); err != nil {
		return "", err
	}
	s.logger.Info("union created", "ref", refName)
	return refName, s.journal.Complete(ctx, intent)
}

// Unmarry dissolves a childless union.
//
// Outputs:
//   - error: family.ErrNotFound when no union exists for the pair,
//     family.ErrHasChildren when the union still has children.
func (s *Service) Unmarry(ctx context.Context, tokenA, tokenB string) error {
	idA, err := s.resolver.Resolve(ctx, tokenA, "partner")
	if err != nil {
		return err
	}
	idB, err := s.resolver.Resolve(ctx, tokenB, "partner")
	if err != nil {
		return err
	}
	refName := commitgraph.UnionRefName(family.ShortID(idA), family.ShortID(idB))
	unionID, err := s.graph.ResolveRef(ctx, refName)
	if err != nil {
		return fmt.Errorf("%w: no union between %s and %s",
			family.ErrNotFound, s.displayName(idA), s.displayName(idB))
	}

	intent, err := s.journal.Begin(ctx, "unmarry", refName)
	if err != nil {
		return err
	}
	if err := s.graph.DeleteLeaf(ctx, unionID); err != nil {
		s.abandon(ctx, intent)
		if errors.Is(err, commitgraph.ErrHasChildren) {
			return fmt.Errorf("%w: union %s still has children; remove or reparent them first",
				family.ErrHasChildren, refName)
		}
		return mapGraphErr(err)
	}
	if err := s.journal.MarkGraphDone(ctx, intent); err != nil {
		return err
	}
	s.logger.Info("union dissolved", "ref", refName)
	return s.journal.Complete(ctx, intent)
}

// AddChild attaches an existing person as a child of a couple.
//
// Description:
//
//	After resolving all three tokens the operation rejects self references,
//	pairings that would make the child its own ancestor, and children who
//	are already partnered with one of the given parents. A missing union
//	between the parents is created after confirmation. If the child already
//	sits under a different parent context the move is confirmed as well,
//	then performed as a history rewrite.
//
// Outputs:
//   - error: family.ErrSelfReference, family.ErrAncestorCycle,
//     family.ErrChildPartnerConflict, family.ErrAborted, resolver errors,
//     or family.ErrRewriteFailed when the substrate rewrite fails.
func (s *Service) AddChild(ctx context.Context, childTok, fatherTok, motherTok string) error {
	childID, err := s.resolver.Resolve(ctx, childTok, "child")
	if err != nil {
		return err
	}
	fatherID, err := s.resolver.Resolve(ctx, fatherTok, "father")
	if err != nil {
		return err
	}
	motherID, err := s.resolver.Resolve(ctx, motherTok, "mother")
	if err != nil {
		return err
	}
	if childID == fatherID || childID == motherID {
		return fmt.Errorf("%w: a person cannot be their own parent", family.ErrSelfReference)
	}
	if fatherID == motherID {
		return fmt.Errorf("%w: father and mother are the same person", family.ErrSelfReference)
	}

	childNode, err := s.personNode(ctx, childID)
	if err != nil {
		return err
	}

	for _, parentID := range []string{fatherID, motherID} {
		anc, err := s.isAncestor(ctx, childID, parentID)
		if err != nil {
			return err
		}
		if anc {
			return fmt.Errorf("%w: %s is an ancestor of %s",
				family.ErrAncestorCycle, s.displayName(childID), s.displayName(parentID))
		}
		married, err := s.unionExists(ctx, family.ShortID(childID), family.ShortID(parentID))
		if err != nil {
			return err
		}
		if married {
			return fmt.Errorf("%w: %s is partnered with %s",
				family.ErrChildPartnerConflict, s.displayName(childID), s.displayName(parentID))
		}
	}

	unionRef, err := s.ensureUnion(ctx, fatherID, motherID)
	if err != nil {
		return err
	}

	if len(childNode.Parents) == 1 {
		parent, err := s.graph.ReadNode(ctx, childNode.Parents[0])
		if err == nil && parent.Kind == commitgraph.KindUnion {
			current := commitgraph.UnionRefName(s.subjectOf(ctx, parent.Parents[0]), s.subjectOf(ctx, parent.Parents[1]))
			if current == unionRef {
				return nil // already a child of this couple
			}
			ok, err := s.ask(fmt.Sprintf("%s is already a child of %s. Move to %s?",
				s.displayName(childID), current, unionRef))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: reparenting declined", family.ErrAborted)
			}
		}
	}

	intent, err := s.journal.Begin(ctx, "add-child", family.ShortID(childID))
	if err != nil {
		return err
	}
	unionID, err := s.graph.ResolveRef(ctx, unionRef)
	if err != nil {
		s.abandon(ctx, intent)
		return err
	}
	childNodeID, err := s.graph.ResolveRef(ctx, family.ShortID(childID))
	if err != nil {
		s.abandon(ctx, intent)
		return err
	}
	if _, err := s.graph.Reparent(ctx, childNodeID, unionID); err != nil {
		s.abandon(ctx, intent)
		return mapGraphErr(err)
	}
	if err := s.journal.MarkGraphDone(ctx, intent); err != nil {
		return err
	}
	s.logger.Info("child attached", "child", family.ShortID(childID), "union", unionRef)
	return s.journal.Complete(ctx, intent)
}

// ancestorMarriageGuard blocks ancestor-descendant unions unless the user
// explicitly overrides.
func (s *Service) ancestorMarriageGuard(ctx context.Context, idA, idB string) error {
	for _, pair := range [][2]string{{idA, idB}, {idB, idA}} {
		anc, err := s.isAncestor(ctx, pair[0], pair[1])
		if err != nil {
			return err
		}
		if !anc {
			continue
		}
		ok, err := s.ask(fmt.Sprintf("%s is an ancestor of %s. Record this union anyway?",
			s.displayName(pair[0]), s.displayName(pair[1])))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s is an ancestor of %s",
				family.ErrAncestorCycle, s.displayName(pair[0]), s.displayName(pair[1]))
		}
		return nil
	}
	return nil
}

// ensureUnion returns the union ref for the pair, creating the union after
// confirmation when it does not exist yet.
func (s *Service) ensureUnion(ctx context.Context, idA, idB string) (string, error) {
	shortA, shortB := family.ShortID(idA), family.ShortID(idB)
	refName := commitgraph.UnionRefName(shortA, shortB)
	exists, err := s.unionExists(ctx, shortA, shortB)
	if err != nil {
		return "", err
	}
	if exists {
		return refName, nil
	}
	ok, err := s.ask(fmt.Sprintf("%s and %s are not married. Create the union now?",
		s.displayName(idA), s.displayName(idB)))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: union creation declined", family.ErrAborted)
	}
	if err := s.ancestorMarriageGuard(ctx, idA, idB); err != nil {
		return "", err
	}
	return s.createUnion(ctx, idA, idB)
}

// createUnion writes the union node and ref; validation is the caller's job.
func (s *Service) createUnion(ctx context.Context, idA, idB string) (string, error) {
	shortA, shortB := family.ShortID(idA), family.ShortID(idB)
	refName := commitgraph.UnionRefName(shortA, shortB)
	message := fmt.Sprintf("Union: %s + %s", s.displayName(idA), s.displayName(idB))
	if _, err := s.graph.CreateUnionNode(ctx, shortA, shortB, refName, message); err != nil {
		if errors.Is(err, commitgraph.ErrRefExists) {
			return "", fmt.Errorf("%w: %s", family.ErrAlreadyMarried, refName)
		}
		return "", mapGraphErr(err)
	}
	return refName, nil
}

// subjectOf returns a node's subject, or "" when it cannot be read.
func (s *Service) subjectOf(ctx context.Context, nodeID string) string {
	n, err := s.graph.ReadNode(ctx, nodeID)
	if err != nil {
		return ""
	}
	return n.Subject
}

// mapGraphErr lifts substrate sentinels into domain sentinels.
func mapGraphErr(err error) error {
	switch {
	case errors.Is(err, commitgraph.ErrCycle):
		return fmt.Errorf("%w: %v", family.ErrAncestorCycle, err)
	case errors.Is(err, commitgraph.ErrHasChildren):
		return fmt.Errorf("%w: %v", family.ErrHasChildren, err)
	case errors.Is(err, commitgraph.ErrRewriteFailed):
		return fmt.Errorf("%w: %v", family.ErrRewriteFailed, err)
	case errors.Is(err, commitgraph.ErrNodeNotFound), errors.Is(err, commitgraph.ErrRefNotFound):
		return fmt.Errorf("%w: %v", family.ErrNotFound, err)
	default:
		return err
	}
}
