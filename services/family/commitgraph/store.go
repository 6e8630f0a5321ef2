// Copyright (C) 2025 Saleh Mehdikhani
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package commitgraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes inside the Badger keyspace.
const (
	nodeKeyPrefix = "node:"
	refKeyPrefix  = "ref:"
)

// =============================================================================
// Store
// =============================================================================

// Store is the commit substrate adapter.
//
// All exported methods open their own Badger transaction, so every operation
// observes a fresh view of the ref table and commits atomically. The store
// assumes a single writer (see package doc).
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// New creates a Store over an opened Badger database.
//
// Inputs:
//
//	db - The backing database. Must not be nil.
//	logger - Destination for operational logs. Nil disables logging.
//
// Outputs:
//
//	*Store - The adapter. Nil when db is nil.
func New(db *badger.DB, logger *slog.Logger) *Store {
	if db == nil {
		return nil
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{db: db, logger: logger}
}

// Init creates the graph root node and the GRAPH_ROOT and HEAD refs.
//
// Calling Init on an initialized store is a no-op.
func (s *Store) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := getRef(txn, RootRef); err == nil {
			return nil
		} else if !errors.Is(err, ErrRefNotFound) {
			return err
		}
		root := newNode(KindRoot, nil, "root", "Graph Root")
		if err := putNode(txn, root); err != nil {
			return err
		}
		if err := putRef(txn, RootRef, root.ID); err != nil {
			return err
		}
		return putRef(txn, HeadRef, root.ID)
	})
}

// =============================================================================
// Node creation
// =============================================================================

// CreateNode appends a person node whose single parent is parentRef.
//
// Description:
//
//	parentRef may be a ref name or a node id. The new node's id is returned;
//	callers typically follow up with SetRef to give it a stable handle.
//
// Outputs:
//
//	string - The new node id.
//	error - ErrNodeNotFound when parentRef does not resolve.
func (s *Store) CreateNode(ctx context.Context, parentRef, subject, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var id string
	err := s.db.Update(func(txn *badger.Txn) error {
		parent, err := resolveNode(txn, parentRef)
		if err != nil {
			return err
		}
		n := newNode(KindPerson, []string{parent.ID}, subject, message)
		if err := putNode(txn, n); err != nil {
			return err
		}
		id = n.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	s.logger.Debug("created person node", "subject", subject, "node", ShortHash(id))
	return id, nil
}

// CreateUnionNode appends a union node with the two partners as parents and
// claims the canonical union ref for it.
//
// Description:
//
//	The node and its ref are written in one transaction. The ref acts as the
//	uniqueness guard for the unordered pair: if it already exists the call
//	fails with ErrRefExists and nothing is written.
//
// Outputs:
//
//	string - The new node id.
//	error - ErrRefExists for a duplicate union, ErrNodeNotFound when either
//	        parent does not resolve.
func (s *Store) CreateUnionNode(ctx context.Context, parentARef, parentBRef, refName, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var id string
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := getRef(txn, refName); err == nil {
			return fmt.Errorf("%w: %s", ErrRefExists, refName)
		} else if !errors.Is(err, ErrRefNotFound) {
			return err
		}
		a, err := resolveNode(txn, parentARef)
		if err != nil {
			return err
		}
		b, err := resolveNode(txn, parentBRef)
		if err != nil {
			return err
		}
		n := newNode(KindUnion, []string{a.ID, b.ID}, refName, message)
		if err := putNode(txn, n); err != nil {
			return err
		}
		if err := putRef(txn, refName, n.ID); err != nil {
			return err
		}
		id = n.ID
		return nil
	})
	if err != nil {
		return "", err
	}
	s.logger.Debug("created union node", "ref", refName, "node", ShortHash(id))
	return id, nil
}

// =============================================================================
// Refs
// =============================================================================

// SetRef creates or force-moves a named ref to nodeID.
func (s *Store) SetRef(ctx context.Context, name, nodeID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := getNode(txn, nodeID); err != nil {
			return err
		}
		return putRef(txn, name, nodeID)
	})
}

// DeleteRef removes a named ref. Missing refs are not an error.
func (s *Store) DeleteRef(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(refKeyPrefix + name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

// ResolveRef returns the node id a ref points at.
func (s *Store) ResolveRef(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var id string
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		id, err = getRef(txn, name)
		return err
	})
	return id, err
}

// ListRefs returns every ref whose name starts with prefix, mapped to the
// node id it points at. An empty prefix lists all refs.
func (s *Store) ListRefs(ctx context.Context, prefix string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	refs := make(map[string]string)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(refKeyPrefix + prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			name := strings.TrimPrefix(string(item.Key()), refKeyPrefix)
			err := item.Value(func(v []byte) error {
				refs[name] = string(v)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refs, nil
}

// =============================================================================
// Reads
// =============================================================================

// ReadNode returns the node a ref name or node id designates.
func (s *Store) ReadNode(ctx context.Context, ref string) (Node, error) {
	if err := ctx.Err(); err != nil {
		return Node{}, err
	}
	var n Node
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		n, err = resolveNode(txn, ref)
		return err
	})
	return n, err
}

// ListNodes returns every node in the substrate. Order is unspecified.
func (s *Store) ListNodes(ctx context.Context) ([]Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var nodes []Node
	err := s.db.View(func(txn *badger.Txn) error {
		all, err := loadNodes(txn)
		if err != nil {
			return err
		}
		for _, n := range all {
			nodes = append(nodes, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// Children returns every node that lists nodeID as a parent.
func (s *Store) Children(ctx context.Context, nodeID string) ([]Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var children []Node
	err := s.db.View(func(txn *badger.Txn) error {
		all, err := loadNodes(txn)
		if err != nil {
			return err
		}
		for _, n := range all {
			for _, p := range n.Parents {
				if p == nodeID {
					children = append(children, n)
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return children, nil
}

// ShortHash abbreviates a node id for log output.
func ShortHash(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}

// =============================================================================
// Transaction helpers
// =============================================================================

func putNode(txn *badger.Txn, n Node) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode node: %w", err)
	}
	return txn.Set([]byte(nodeKeyPrefix+n.ID), data)
}

func getNode(txn *badger.Txn, id string) (Node, error) {
	item, err := txn.Get([]byte(nodeKeyPrefix + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Node{}, fmt.Errorf("%w: %s", ErrNodeNotFound, ShortHash(id))
	}
	if err != nil {
		return Node{}, err
	}
	var n Node
	err = item.Value(func(v []byte) error {
		return json.Unmarshal(v, &n)
	})
	if err != nil {
		return Node{}, fmt.Errorf("decode node %s: %w", ShortHash(id), err)
	}
	return n, nil
}

func putRef(txn *badger.Txn, name, id string) error {
	return txn.Set([]byte(refKeyPrefix+name), []byte(id))
}

func getRef(txn *badger.Txn, name string) (string, error) {
	item, err := txn.Get([]byte(refKeyPrefix + name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: %s", ErrRefNotFound, name)
	}
	if err != nil {
		return "", err
	}
	var id string
	err = item.Value(func(v []byte) error {
		id = string(v)
		return nil
	})
	return id, err
}

// resolveNode accepts a ref name or a node id.
func resolveNode(txn *badger.Txn, ref string) (Node, error) {
	if id, err := getRef(txn, ref); err == nil {
		return getNode(txn, id)
	} else if !errors.Is(err, ErrRefNotFound) {
		return Node{}, err
	}
	return getNode(txn, ref)
}

// loadNodes reads the full node table into memory. Graphs stay small (a few
// thousand nodes at most) so a full scan per operation is acceptable.
func loadNodes(txn *badger.Txn) (map[string]Node, error) {
	nodes := make(map[string]Node)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(nodeKeyPrefix)
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		var n Node
		err := it.Item().Value(func(v []byte) error {
			return json.Unmarshal(v, &n)
		})
		if err != nil {
			return nil, err
		}
		nodes[n.ID] = n
	}
	return nodes, nil
}

// loadRefs reads the full ref table inside a transaction.
func loadRefs(txn *badger.Txn) (map[string]string, error) {
	refs := make(map[string]string)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(refKeyPrefix)
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		name := strings.TrimPrefix(string(item.Key()), refKeyPrefix)
		err := item.Value(func(v []byte) error {
			refs[name] = string(v)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return refs, nil
}
