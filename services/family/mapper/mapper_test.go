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
	"strings"
	"testing"

	"github.com/saleh-mehdikhani/fam-tool/services/family"
	"github.com/saleh-mehdikhani/fam-tool/services/family/commitgraph"
	"github.com/saleh-mehdikhani/fam-tool/services/family/journal"
	"github.com/saleh-mehdikhani/fam-tool/services/family/people"
	"github.com/saleh-mehdikhani/fam-tool/services/family/resolve"
	famdb "github.com/saleh-mehdikhani/fam-tool/services/family/storage/badger"
)

// stubConfirm records every prompt and answers them all the same way.
type stubConfirm struct {
	answer  bool
	prompts []string
}

func (c *stubConfirm) Confirm(prompt string) (bool, error) {
	c.prompts = append(c.prompts, prompt)
	return c.answer, nil
}

type harness struct {
	svc     *Service
	graph   *commitgraph.Store
	attrs   *people.Store
	journal *journal.Journal
	confirm *stubConfirm
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := famdb.OpenInMemory()
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	graph := commitgraph.New(db, nil)
	if err := graph.Init(context.Background()); err != nil {
		t.Fatalf("init graph: %v", err)
	}
	attrs := people.NewStore(t.TempDir(), nil)
	jrnl := journal.New(db, nil)
	confirm := &stubConfirm{answer: true}
	resolver := resolve.New(attrs, graph, nil, nil)

	svc, err := NewService(Config{
		Graph:    graph,
		Attrs:    attrs,
		Resolver: resolver,
		Journal:  jrnl,
		Confirm:  confirm,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &harness{svc: svc, graph: graph, attrs: attrs, journal: jrnl, confirm: confirm}
}

func (h *harness) addPerson(t *testing.T, first, last string) family.Record {
	t.Helper()
	rec := family.NewRecord(first, "", last)
	if err := h.svc.AddPerson(context.Background(), rec, "", ""); err != nil {
		t.Fatalf("add %s %s: %v", first, last, err)
	}
	return rec
}

func (h *harness) mustStaleCount(t *testing.T, want int) {
	t.Helper()
	stale, err := h.journal.Stale(context.Background())
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if len(stale) != want {
		t.Fatalf("stale intents = %d, want %d", len(stale), want)
	}
}

func TestAddPersonAtRoot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec := h.addPerson(t, "Ada", "Lovelace")

	got, err := h.attrs.Get(rec.ID)
	if err != nil {
		t.Fatalf("attribute record missing: %v", err)
	}
	if got.FullName() != "Ada Lovelace" {
		t.Fatalf("full name = %q", got.FullName())
	}

	node, err := h.graph.ReadNode(ctx, rec.ShortID())
	if err != nil {
		t.Fatalf("graph node missing: %v", err)
	}
	root, err := h.graph.ResolveRef(ctx, commitgraph.RootRef)
	if err != nil {
		t.Fatalf("resolve root: %v", err)
	}
	if len(node.Parents) != 1 || node.Parents[0] != root {
		t.Fatalf("person node not under root: parents=%v", node.Parents)
	}
	h.mustStaleCount(t, 0)
}

func TestAddPersonWithMarriedParents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	dad := h.addPerson(t, "Robert", "Graf")
	mom := h.addPerson(t, "Helen", "Graf")
	if _, err := h.svc.Marry(ctx, dad.ShortID(), mom.ShortID()); err != nil {
		t.Fatalf("marry: %v", err)
	}
	h.confirm.prompts = nil

	kid := family.NewRecord("Tom", "", "Graf")
	if err := h.svc.AddPerson(ctx, kid, dad.ShortID(), mom.ShortID()); err != nil {
		t.Fatalf("add child: %v", err)
	}
	if len(h.confirm.prompts) != 0 {
		t.Fatalf("unexpected prompts: %v", h.confirm.prompts)
	}

	node, err := h.graph.ReadNode(ctx, kid.ShortID())
	if err != nil {
		t.Fatalf("child node: %v", err)
	}
	unionID, err := h.graph.ResolveRef(ctx, commitgraph.UnionRefName(dad.ShortID(), mom.ShortID()))
	if err != nil {
		t.Fatalf("union ref: %v", err)
	}
	if len(node.Parents) != 1 || node.Parents[0] != unionID {
		t.Fatalf("child not under union: parents=%v", node.Parents)
	}
}

func TestAddPersonCreatesUnionAfterConfirmation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	dad := h.addPerson(t, "Omar", "Haddad")
	mom := h.addPerson(t, "Lina", "Haddad")

	kid := family.NewRecord("Sami", "", "Haddad")
	if err := h.svc.AddPerson(ctx, kid, dad.ShortID(), mom.ShortID()); err != nil {
		t.Fatalf("add child with unmarried parents: %v", err)
	}
	if len(h.confirm.prompts) != 1 || !strings.Contains(h.confirm.prompts[0], "not married") {
		t.Fatalf("expected a union-creation prompt, got %v", h.confirm.prompts)
	}
	if _, err := h.graph.ResolveRef(ctx, commitgraph.UnionRefName(dad.ShortID(), mom.ShortID())); err != nil {
		t.Fatalf("implicit union missing: %v", err)
	}
}

func TestAddPersonDeclinedUnionLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	dad := h.addPerson(t, "Piotr", "Nowak")
	mom := h.addPerson(t, "Anna", "Nowak")
	h.confirm.answer = false

	kid := family.NewRecord("Jan", "", "Nowak")
	err := h.svc.AddPerson(ctx, kid, dad.ShortID(), mom.ShortID())
	if !errors.Is(err, family.ErrAborted) {
		t.Fatalf("err = %v, want ErrAborted", err)
	}
	if _, err := h.attrs.Get(kid.ID); !errors.Is(err, family.ErrNotFound) {
		t.Fatalf("attribute record should not exist, got %v", err)
	}
	if _, err := h.graph.ReadNode(ctx, kid.ShortID()); err == nil {
		t.Fatal("graph node should not exist")
	}
	h.mustStaleCount(t, 0)
}

func TestMarry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.addPerson(t, "Ivan", "Petrov")
	b := h.addPerson(t, "Mila", "Petrova")

	ref, err := h.svc.Marry(ctx, a.ShortID(), b.ShortID())
	if err != nil {
		t.Fatalf("marry: %v", err)
	}
	if ref != commitgraph.UnionRefName(a.ShortID(), b.ShortID()) {
		t.Fatalf("union ref = %q", ref)
	}

	// Same pair again, either order.
	if _, err := h.svc.Marry(ctx, b.ShortID(), a.ShortID()); !errors.Is(err, family.ErrAlreadyMarried) {
		t.Fatalf("duplicate union err = %v, want ErrAlreadyMarried", err)
	}
	if _, err := h.svc.Marry(ctx, a.ShortID(), a.ShortID()); !errors.Is(err, family.ErrSelfReference) {
		t.Fatalf("self marriage err = %v, want ErrSelfReference", err)
	}
	h.mustStaleCount(t, 0)
}

func TestMarryAncestorGuard(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	dad := h.addPerson(t, "Noah", "Hart")
	mom := h.addPerson(t, "Emma", "Hart")
	if _, err := h.svc.Marry(ctx, dad.ShortID(), mom.ShortID()); err != nil {
		t.Fatalf("marry: %v", err)
	}
	kid := family.NewRecord("Liam", "", "Hart")
	if err := h.svc.AddPerson(ctx, kid, dad.ShortID(), mom.ShortID()); err != nil {
		t.Fatalf("add child: %v", err)
	}

	h.confirm.answer = false
	if _, err := h.svc.Marry(ctx, dad.ShortID(), kid.ShortID()); !errors.Is(err, family.ErrAncestorCycle) {
		t.Fatalf("err = %v, want ErrAncestorCycle", err)
	}

	h.confirm.answer = true
	h.confirm.prompts = nil
	if _, err := h.svc.Marry(ctx, dad.ShortID(), kid.ShortID()); err != nil {
		t.Fatalf("overridden ancestor marriage: %v", err)
	}
	if len(h.confirm.prompts) != 1 || !strings.Contains(h.confirm.prompts[0], "ancestor") {
		t.Fatalf("expected an ancestor override prompt, got %v", h.confirm.prompts)
	}
}

func TestAddChildAttachesExistingPerson(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	dad := h.addPerson(t, "Ken", "Sato")
	mom := h.addPerson(t, "Yui", "Sato")
	kid := h.addPerson(t, "Ren", "Sato")
	if _, err := h.svc.Marry(ctx, dad.ShortID(), mom.ShortID()); err != nil {
		t.Fatalf("marry: %v", err)
	}

	if err := h.svc.AddChild(ctx, kid.ShortID(), dad.ShortID(), mom.ShortID()); err != nil {
		t.Fatalf("add child: %v", err)
	}

	edges, err := h.svc.Edges(ctx)
	if err != nil {
		t.Fatalf("edges: %v", err)
	}
	var childEdges, partnerEdges int
	for _, e := range edges {
		switch e.Type {
		case family.EdgeChild:
			if e.To != kid.ID {
				t.Fatalf("child edge to %q", e.To)
			}
			childEdges++
		case family.EdgePartner:
			partnerEdges++
		}
	}
	if childEdges != 2 || partnerEdges != 1 {
		t.Fatalf("edges = %d child / %d partner, want 2/1", childEdges, partnerEdges)
	}

	// Attaching to the same couple again is a no-op.
	if err := h.svc.AddChild(ctx, kid.ShortID(), dad.ShortID(), mom.ShortID()); err != nil {
		t.Fatalf("repeat add child: %v", err)
	}
	h.mustStaleCount(t, 0)
}

func TestAddChildGuards(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	dad := h.addPerson(t, "Huw", "Price")
	mom := h.addPerson(t, "Cari", "Price")
	kid := h.addPerson(t, "Dylan", "Price")
	if _, err := h.svc.Marry(ctx, dad.ShortID(), mom.ShortID()); err != nil {
		t.Fatalf("marry: %v", err)
	}
	if err := h.svc.AddChild(ctx, kid.ShortID(), dad.ShortID(), mom.ShortID()); err != nil {
		t.Fatalf("add child: %v", err)
	}

	t.Run("self reference", func(t *testing.T) {
		err := h.svc.AddChild(ctx, dad.ShortID(), dad.ShortID(), mom.ShortID())
		if !errors.Is(err, family.ErrSelfReference) {
			t.Fatalf("err = %v, want ErrSelfReference", err)
		}
	})

	t.Run("ancestor cycle", func(t *testing.T) {
		// dad as a child of kid plus a spouse would make dad his own ancestor.
		spouse := h.addPerson(t, "Nia", "Morgan")
		if _, err := h.svc.Marry(ctx, kid.ShortID(), spouse.ShortID()); err != nil {
			t.Fatalf("marry: %v", err)
		}
		err := h.svc.AddChild(ctx, dad.ShortID(), kid.ShortID(), spouse.ShortID())
		if !errors.Is(err, family.ErrAncestorCycle) {
			t.Fatalf("err = %v, want ErrAncestorCycle", err)
		}
	})

	t.Run("child partnered with parent", func(t *testing.T) {
		a := h.addPerson(t, "Sven", "Berg")
		b := h.addPerson(t, "Ola", "Berg")
		if _, err := h.svc.Marry(ctx, a.ShortID(), b.ShortID()); err != nil {
			t.Fatalf("marry: %v", err)
		}
		other := h.addPerson(t, "Kari", "Lund")
		err := h.svc.AddChild(ctx, a.ShortID(), b.ShortID(), other.ShortID())
		if !errors.Is(err, family.ErrChildPartnerConflict) {
			t.Fatalf("err = %v, want ErrChildPartnerConflict", err)
		}
	})
}

func TestAddChildMoveBetweenCouples(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	dad := h.addPerson(t, "Paul", "Meyer")
	mom := h.addPerson(t, "Rita", "Meyer")
	if _, err := h.svc.Marry(ctx, dad.ShortID(), mom.ShortID()); err != nil {
		t.Fatalf("marry: %v", err)
	}
	kid := family.NewRecord("Max", "", "Meyer")
	if err := h.svc.AddPerson(ctx, kid, dad.ShortID(), mom.ShortID()); err != nil {
		t.Fatalf("add child: %v", err)
	}

	dad2 := h.addPerson(t, "Jon", "Weiss")
	mom2 := h.addPerson(t, "Eva", "Weiss")
	if _, err := h.svc.Marry(ctx, dad2.ShortID(), mom2.ShortID()); err != nil {
		t.Fatalf("marry: %v", err)
	}

	h.confirm.answer = false
	err := h.svc.AddChild(ctx, kid.ShortID(), dad2.ShortID(), mom2.ShortID())
	if !errors.Is(err, family.ErrAborted) {
		t.Fatalf("declined move err = %v, want ErrAborted", err)
	}
	h.mustStaleCount(t, 0)

	h.confirm.answer = true
	if err := h.svc.AddChild(ctx, kid.ShortID(), dad2.ShortID(), mom2.ShortID()); err != nil {
		t.Fatalf("move child: %v", err)
	}
	node, err := h.graph.ReadNode(ctx, kid.ShortID())
	if err != nil {
		t.Fatalf("child node: %v", err)
	}
	newUnion, err := h.graph.ResolveRef(ctx, commitgraph.UnionRefName(dad2.ShortID(), mom2.ShortID()))
	if err != nil {
		t.Fatalf("union ref: %v", err)
	}
	if len(node.Parents) != 1 || node.Parents[0] != newUnion {
		t.Fatalf("child not moved: parents=%v", node.Parents)
	}
}

func TestUnmarry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.addPerson(t, "Tomás", "Silva")
	b := h.addPerson(t, "Inés", "Silva")
	ref, err := h.svc.Marry(ctx, a.ShortID(), b.ShortID())
	if err != nil {
		t.Fatalf("marry: %v", err)
	}

	if err := h.svc.Unmarry(ctx, a.ShortID(), b.ShortID()); err != nil {
		t.Fatalf("unmarry: %v", err)
	}
	if _, err := h.graph.ResolveRef(ctx, ref); err == nil {
		t.Fatal("union ref should be gone")
	}
	if err := h.svc.Unmarry(ctx, a.ShortID(), b.ShortID()); !errors.Is(err, family.ErrNotFound) {
		t.Fatalf("repeat unmarry err = %v, want ErrNotFound", err)
	}
	h.mustStaleCount(t, 0)
}

func TestUnmarryWithChildren(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	dad := h.addPerson(t, "Eren", "Kaya")
	mom := h.addPerson(t, "Derya", "Kaya")
	if _, err := h.svc.Marry(ctx, dad.ShortID(), mom.ShortID()); err != nil {
		t.Fatalf("marry: %v", err)
	}
	kid := family.NewRecord("Bora", "", "Kaya")
	if err := h.svc.AddPerson(ctx, kid, dad.ShortID(), mom.ShortID()); err != nil {
		t.Fatalf("add child: %v", err)
	}

	err := h.svc.Unmarry(ctx, dad.ShortID(), mom.ShortID())
	if !errors.Is(err, family.ErrHasChildren) {
		t.Fatalf("err = %v, want ErrHasChildren", err)
	}
	if _, err := h.graph.ResolveRef(ctx, commitgraph.UnionRefName(dad.ShortID(), mom.ShortID())); err != nil {
		t.Fatalf("union should survive a rejected unmarry: %v", err)
	}
	h.mustStaleCount(t, 0)
}

func TestRemovePersonLeaf(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec := h.addPerson(t, "Sole", "Rossi")
	if err := h.svc.RemovePerson(ctx, rec.ShortID()); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := h.attrs.Get(rec.ID); !errors.Is(err, family.ErrNotFound) {
		t.Fatalf("record err = %v, want ErrNotFound", err)
	}
	if _, err := h.graph.ReadNode(ctx, rec.ShortID()); err == nil {
		t.Fatal("graph node should be gone")
	}
	h.mustStaleCount(t, 0)
}

func TestRemovePersonCascade(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	dad := h.addPerson(t, "Amir", "Karimi")
	mom := h.addPerson(t, "Sara", "Karimi")
	if _, err := h.svc.Marry(ctx, dad.ShortID(), mom.ShortID()); err != nil {
		t.Fatalf("marry: %v", err)
	}
	kidA := family.NewRecord("Nima", "", "Karimi")
	kidB := family.NewRecord("Yas", "", "Karimi")
	for _, kid := range []family.Record{kidA, kidB} {
		if err := h.svc.AddPerson(ctx, kid, dad.ShortID(), mom.ShortID()); err != nil {
			t.Fatalf("add child: %v", err)
		}
	}

	h.confirm.answer = false
	if err := h.svc.RemovePerson(ctx, dad.ShortID()); !errors.Is(err, family.ErrAborted) {
		t.Fatalf("declined cascade err = %v, want ErrAborted", err)
	}

	h.confirm.answer = true
	h.confirm.prompts = nil
	if err := h.svc.RemovePerson(ctx, dad.ShortID()); err != nil {
		t.Fatalf("cascade remove: %v", err)
	}
	if len(h.confirm.prompts) != 1 || !strings.Contains(h.confirm.prompts[0], "2 child(ren)") {
		t.Fatalf("prompts = %v", h.confirm.prompts)
	}

	if _, err := h.graph.ReadNode(ctx, dad.ShortID()); err == nil {
		t.Fatal("person node should be gone")
	}
	if _, err := h.graph.ResolveRef(ctx, commitgraph.UnionRefName(dad.ShortID(), mom.ShortID())); err == nil {
		t.Fatal("union ref should be gone")
	}
	root, err := h.graph.ResolveRef(ctx, commitgraph.RootRef)
	if err != nil {
		t.Fatalf("resolve root: %v", err)
	}
	for _, kid := range []family.Record{kidA, kidB} {
		node, err := h.graph.ReadNode(ctx, kid.ShortID())
		if err != nil {
			t.Fatalf("detached child %s: %v", kid.ShortID(), err)
		}
		if len(node.Parents) != 1 || node.Parents[0] != root {
			t.Fatalf("child %s not under root: parents=%v", kid.ShortID(), node.Parents)
		}
	}

	edges, err := h.svc.Edges(ctx)
	if err != nil {
		t.Fatalf("edges: %v", err)
	}
	for _, e := range edges {
		if e.From == dad.ID || e.To == dad.ID {
			t.Fatalf("removed person still referenced by edge %+v", e)
		}
	}
	h.mustStaleCount(t, 0)
}

// failingAttrs makes the attribute write fail after the graph side is done.
type failingAttrs struct {
	*people.Store
}

func (f *failingAttrs) Put(family.Record) error {
	return fmt.Errorf("disk full")
}

func TestAddPersonPartialState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	broken, err := NewService(Config{
		Graph:    h.graph,
		Attrs:    &failingAttrs{Store: h.attrs},
		Resolver: resolve.New(h.attrs, h.graph, nil, nil),
		Journal:  h.journal,
		Confirm:  h.confirm,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	rec := family.NewRecord("Mara", "", "Vogel")
	err = broken.AddPerson(ctx, rec, "", "")
	if !errors.Is(err, family.ErrPartialState) {
		t.Fatalf("err = %v, want ErrPartialState", err)
	}
	var partial *family.PartialStateError
	if !errors.As(err, &partial) {
		t.Fatalf("err = %T, want *PartialStateError", err)
	}
	if !partial.GraphDone || partial.AttrDone {
		t.Fatalf("partial = %+v, want graph done / attrs not", partial)
	}

	// The graph side committed and the intent records how far we got.
	if _, err := h.graph.ReadNode(ctx, rec.ShortID()); err != nil {
		t.Fatalf("graph node should exist: %v", err)
	}
	stale, err := h.journal.Stale(ctx)
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if len(stale) != 1 || stale[0].Stage != journal.StageGraphDone {
		t.Fatalf("stale = %+v, want one graph-done intent", stale)
	}
}
