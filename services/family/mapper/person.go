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

// AddPerson creates a person in both stores.
//
// Description:
//
//	With no parent tokens the new person node hangs off the graph root.
//	With both parent tokens the node is created under the parents' union;
//	if the parents are not married yet the caller is asked to approve
//	creating the union implicitly. The substrate node and its short-id ref
//	are written first, the attribute record second, under a journal intent.
//
// Inputs:
//   - rec: the attribute record; rec.ID must already be set.
//   - fatherTok, motherTok: optional resolver tokens; both or neither.
//
// Outputs:
//   - error: family.ErrSelfReference, family.ErrNotFound, family.ErrAborted,
//     a validation error from the attribute store, or a PartialStateError
//     when the attribute write fails after the graph write succeeded.
func (s *Service) AddPerson(ctx context.Context, rec family.Record, fatherTok, motherTok string) error {
	if (fatherTok == "") != (motherTok == "") {
		return fmt.Errorf("mapper: both parents or none must be given")
	}

	parentRef := commitgraph.RootRef
	if fatherTok != "" {
		fatherID, err := s.resolver.Resolve(ctx, fatherTok, "father")
		if err != nil {
			return err
		}
		motherID, err := s.resolver.Resolve(ctx, motherTok, "mother")
		if err != nil {
			return err
		}
		if fatherID == motherID {
			return fmt.Errorf("%w: father and mother are the same person", family.ErrSelfReference)
		}
		ref, err := s.ensureUnion(ctx, fatherID, motherID)
		if err != nil {
			return err
		}
		parentRef = ref
	}

	short := rec.ShortID()
	intent, err := s.journal.Begin(ctx, "add", short)
	if err != nil {
		return err
	}

	subject := short
	message := fmt.Sprintf("Person: %s (%s)", rec.FullName(), short)
	nodeID, err := s.graph.CreateNode(ctx, parentRef, subject, message)
	if err != nil {
		s.abandon(ctx, intent)
		return err
	}
	if err := s.graph.SetRef(ctx, short, nodeID); err != nil {
		return err
	}
	if err := s.journal.MarkGraphDone(ctx, intent); err != nil {
		return err
	}

	if err := s.attrs.Put(rec); err != nil {
		return &family.PartialStateError{Op: "add", GraphDone: true, AttrDone: false, Err: err}
	}

	s.logger.Info("person added", "id", short, "name", rec.FullName(), "parent_ref", parentRef)
	return s.journal.Complete(ctx, intent)
}

// RemovePerson removes a person and cascades over their unions.
//
// Description:
//
//	Dependent children (direct children of any union the person belongs
//	to) are reparented to the graph root first, then each now-childless
//	union is deleted, then the person's own node, then the attribute
//	record. Any cascade at all requires confirmation. Node ids shift as
//	reparenting rewrites descendants, so every graph handle is re-resolved
//	through its ref immediately before use.
//
// Outputs:
//   - error: family.ErrNotFound, family.ErrAmbiguous, family.ErrAborted, or
//     a PartialStateError when the attribute delete fails after the graph
//     side completed.
func (s *Service) RemovePerson(ctx context.Context, token string) error {
	id, err := s.resolver.Resolve(ctx, token, "person")
	if err != nil {
		return err
	}
	short := family.ShortID(id)
	if _, err := s.personNode(ctx, id); err != nil {
		return err
	}

	unionRefs, childRefs, err := s.dependents(ctx, id)
	if err != nil {
		return err
	}
	if len(unionRefs) > 0 {
		prompt := fmt.Sprintf("Removing %s deletes %d union(s) and detaches %d child(ren). Continue?",
			s.displayName(id), len(unionRefs), len(childRefs))
		ok, err := s.ask(prompt)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: removal of %s declined", family.ErrAborted, short)
		}
	}

	intent, err := s.journal.Begin(ctx, "remove", short)
	if err != nil {
		return err
	}

	root, err := s.graph.ResolveRef(ctx, commitgraph.RootRef)
	if err != nil {
		return err
	}
	for _, childRef := range childRefs {
		childID, err := s.graph.ResolveRef(ctx, childRef)
		if err != nil {
			return err
		}
		if _, err := s.graph.Reparent(ctx, childID, root); err != nil {
			return fmt.Errorf("detach child %s: %w", childRef, mapGraphErr(err))
		}
	}
	for _, unionRef := range unionRefs {
		unionID, err := s.graph.ResolveRef(ctx, unionRef)
		if err != nil {
			return err
		}
		if err := s.graph.DeleteLeaf(ctx, unionID); err != nil {
			return fmt.Errorf("delete union %s: %w", unionRef, mapGraphErr(err))
		}
	}
	personID, err := s.graph.ResolveRef(ctx, short)
	if err != nil {
		return err
	}
	if err := s.graph.DeleteLeaf(ctx, personID); err != nil {
		return fmt.Errorf("delete person %s: %w", short, mapGraphErr(err))
	}
	if err := s.journal.MarkGraphDone(ctx, intent); err != nil {
		return err
	}

	if err := s.attrs.Delete(id); err != nil && !errors.Is(err, family.ErrNotFound) {
		return &family.PartialStateError{Op: "remove", GraphDone: true, AttrDone: false, Err: err}
	}

	s.logger.Info("person removed", "id", short,
		"unions_removed", len(unionRefs), "children_detached", len(childRefs))
	return s.journal.Complete(ctx, intent)
}

// dependents lists the union refs the person belongs to and the short-id
// refs of those unions' direct children.
func (s *Service) dependents(ctx context.Context, id string) (unionRefs, childRefs []string, err error) {
	short := family.ShortID(id)
	nodes, err := s.graph.ListNodes(ctx)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[string]commitgraph.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	unionIDs := make(map[string]bool)
	for _, n := range nodes {
		if n.Kind != commitgraph.KindUnion || len(n.Parents) != 2 {
			continue
		}
		a, b := byID[n.Parents[0]], byID[n.Parents[1]]
		if a.Subject == short || b.Subject == short {
			unionIDs[n.ID] = true
			unionRefs = append(unionRefs, commitgraph.UnionRefName(a.Subject, b.Subject))
		}
	}
	for _, n := range nodes {
		if n.Kind != commitgraph.KindPerson || len(n.Parents) != 1 {
			continue
		}
		if unionIDs[n.Parents[0]] {
			childRefs = append(childRefs, n.Subject)
		}
	}
	return unionRefs, childRefs, nil
}
