// Copyright (C) 2025 Saleh Mehdikhani
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package commitgraph implements the commit substrate for a fam project.
//
// The substrate is an append-only store of content-addressed nodes with
// named refs, persisted in BadgerDB. Three node kinds exist:
//
//   - root: the single entry node every graph starts from
//   - person: one node per person, zero or one parent (root or a union)
//   - union: a marriage, exactly two parents (the partners' person nodes)
//
// Nodes are immutable; "mutation" happens by appending nodes, moving refs,
// and rewriting history. Reparent is the delicate operation: because node
// ids are content hashes, changing a node's parent changes its id and the
// id of every descendant, so the rewrite must rebuild the affected subgraph
// and remap every ref into it. All of that happens inside a single Badger
// transaction so a failed rewrite leaves the prior state intact.
//
// # Concurrency
//
// The store serializes writes through Badger transactions and assumes a
// single writer, matching the engine's single-writer model. Refs are never
// cached across operations; every operation re-reads them inside its own
// transaction.
package commitgraph

import "errors"

// Sentinel errors for substrate operations.
var (
	// ErrNodeNotFound is returned when a node id or ref does not resolve.
	ErrNodeNotFound = errors.New("node not found")

	// ErrRefNotFound is returned when a named ref does not exist.
	ErrRefNotFound = errors.New("ref not found")

	// ErrRefExists is returned by CreateUnionNode when the canonical union
	// ref is already taken.
	ErrRefExists = errors.New("ref already exists")

	// ErrCycle is returned when a reparent would make a node its own
	// ancestor in the rewritten graph.
	ErrCycle = errors.New("reparent would create a cycle")

	// ErrHasChildren is returned by DeleteLeaf when other nodes still list
	// the target as a parent.
	ErrHasChildren = errors.New("node has children")

	// ErrRewriteFailed wraps substrate-level failures during a history
	// rewrite. The pre-rewrite state is intact when this is returned.
	ErrRewriteFailed = errors.New("history rewrite failed")

	// ErrNotInitialized is returned when the graph root is missing.
	ErrNotInitialized = errors.New("graph not initialized")
)
