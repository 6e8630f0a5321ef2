// Copyright (C) 2025 Saleh Mehdikhani
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package commitgraph

import (
	"context"
	"errors"
	"testing"

	famdb "github.com/saleh-mehdikhani/fam-tool/services/family/storage/badger"
)

// newTestStore opens an initialized in-memory store.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := famdb.OpenInMemory()
	if err != nil {
		t.Fatalf("open in-memory badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s := New(db, nil)
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init store: %v", err)
	}
	return s
}

// addPerson creates a person node under parentRef and gives it a short-id ref.
func addPerson(t *testing.T, s *Store, short, parentRef string) string {
	t.Helper()

	id, err := s.CreateNode(context.Background(), parentRef, short, "Person: "+short)
	if err != nil {
		t.Fatalf("create person %s: %v", short, err)
	}
	if err := s.SetRef(context.Background(), short, id); err != nil {
		t.Fatalf("set ref %s: %v", short, err)
	}
	return id
}

func TestInitIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rootBefore, err := s.ResolveRef(ctx, RootRef)
	if err != nil {
		t.Fatalf("resolve root: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("second init: %v", err)
	}
	rootAfter, err := s.ResolveRef(ctx, RootRef)
	if err != nil {
		t.Fatalf("resolve root after reinit: %v", err)
	}
	if rootBefore != rootAfter {
		t.Errorf("root moved across Init: %s != %s", rootBefore, rootAfter)
	}

	head, err := s.ResolveRef(ctx, HeadRef)
	if err != nil {
		t.Fatalf("resolve head: %v", err)
	}
	if head != rootAfter {
		t.Errorf("HEAD should start at the root, got %s", head)
	}
}

func TestCreateNodeAndReadBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := addPerson(t, s, "aaaa1111", RootRef)

	byID, err := s.ReadNode(ctx, id)
	if err != nil {
		t.Fatalf("read by id: %v", err)
	}
	byRef, err := s.ReadNode(ctx, "aaaa1111")
	if err != nil {
		t.Fatalf("read by ref: %v", err)
	}
	if byID.ID != byRef.ID {
		t.Errorf("ref and id reads disagree: %s vs %s", byID.ID, byRef.ID)
	}
	if byID.Kind != KindPerson {
		t.Errorf("kind = %s, want %s", byID.Kind, KindPerson)
	}
	root, _ := s.ResolveRef(ctx, RootRef)
	if len(byID.Parents) != 1 || byID.Parents[0] != root {
		t.Errorf("person parent = %v, want [%s]", byID.Parents, root)
	}
}

func TestCreateNodeMissingParent(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateNode(context.Background(), "no-such-ref", "x", "")
	if !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("err = %v, want ErrNodeNotFound", err)
	}
}

func TestCreateUnionNode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	addPerson(t, s, "aaaa1111", RootRef)
	addPerson(t, s, "bbbb2222", RootRef)

	name := UnionRefName("aaaa1111", "bbbb2222")
	id, err := s.CreateUnionNode(ctx, "aaaa1111", "bbbb2222", name, "Marriage")
	if err != nil {
		t.Fatalf("create union: %v", err)
	}

	n, err := s.ReadNode(ctx, name)
	if err != nil {
		t.Fatalf("read union by ref: %v", err)
	}
	if n.ID != id || n.Kind != KindUnion || len(n.Parents) != 2 {
		t.Errorf("unexpected union node: %+v", n)
	}

	// Same unordered pair again, either argument order.
	if _, err := s.CreateUnionNode(ctx, "bbbb2222", "aaaa1111", UnionRefName("bbbb2222", "aaaa1111"), ""); !errors.Is(err, ErrRefExists) {
		t.Errorf("duplicate union err = %v, want ErrRefExists", err)
	}
}

func TestUnionRefNameIsOrderIndependent(t *testing.T) {
	if UnionRefName("b", "a") != UnionRefName("a", "b") {
		t.Error("union ref name must not depend on argument order")
	}
}

func TestListRefsByPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	addPerson(t, s, "aaaa1111", RootRef)
	addPerson(t, s, "bbbb2222", RootRef)
	name := UnionRefName("aaaa1111", "bbbb2222")
	if _, err := s.CreateUnionNode(ctx, "aaaa1111", "bbbb2222", name, ""); err != nil {
		t.Fatalf("create union: %v", err)
	}

	unions, err := s.ListRefs(ctx, UnionRefPrefix)
	if err != nil {
		t.Fatalf("list refs: %v", err)
	}
	if len(unions) != 1 {
		t.Fatalf("union refs = %d, want 1", len(unions))
	}
	if _, ok := unions[name]; !ok {
		t.Errorf("missing union ref %s in %v", name, unions)
	}

	all, err := s.ListRefs(ctx, "")
	if err != nil {
		t.Fatalf("list all refs: %v", err)
	}
	// GRAPH_ROOT, HEAD, two short ids, one union.
	if len(all) != 5 {
		t.Errorf("total refs = %d, want 5: %v", len(all), all)
	}
}

func TestChildren(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	addPerson(t, s, "aaaa1111", RootRef)
	addPerson(t, s, "bbbb2222", RootRef)
	name := UnionRefName("aaaa1111", "bbbb2222")
	unionID, err := s.CreateUnionNode(ctx, "aaaa1111", "bbbb2222", name, "")
	if err != nil {
		t.Fatalf("create union: %v", err)
	}
	childID, err := s.CreateNode(ctx, name, "cccc3333", "")
	if err != nil {
		t.Fatalf("create child: %v", err)
	}

	kids, err := s.Children(ctx, unionID)
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	if len(kids) != 1 || kids[0].ID != childID {
		t.Errorf("children of union = %v, want [%s]", kids, childID)
	}
}

func TestSetRefRejectsUnknownNode(t *testing.T) {
	s := newTestStore(t)

	err := s.SetRef(context.Background(), "dangling", "deadbeef")
	if !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("err = %v, want ErrNodeNotFound", err)
	}
}
