// Copyright (C) 2025 Saleh Mehdikhani
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package commitgraph

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Reparent rewrites history so that nodeID's ancestry starts at newParentID.
//
// Description:
//
//	Because node ids are content hashes, giving nodeID a new parent changes
//	its id, which changes the id of every descendant in turn. Reparent
//	therefore rebuilds the whole affected subgraph:
//
//	 1. reject the rewrite when newParentID is nodeID or one of its
//	    descendants (ErrCycle)
//	 2. rebuild nodeID and every descendant in topological order, remapping
//	    parent ids as it goes
//	 3. remap every ref that pointed at a rewritten node
//	 4. remove the superseded nodes
//
//	Steps 2-4 run inside one Badger transaction, so a failure at any point
//	leaves the prior state intact and the call is safe to retry. Nodes whose
//	content hash does not change (reparenting to the current parent) are
//	left alone, which makes a clean retry a no-op.
//
// Outputs:
//
//	map[string]string - Old id to new id for every rewritten node. Nodes
//	                    that kept their id are absent.
//	error - ErrNodeNotFound, ErrCycle, or a wrapped ErrRewriteFailed for
//	        storage failures mid-rewrite.
func (s *Store) Reparent(ctx context.Context, nodeID, newParentID string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	remap := make(map[string]string)
	err := s.db.Update(func(txn *badger.Txn) error {
		nodes, err := loadNodes(txn)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRewriteFailed, err)
		}
		if _, ok := nodes[nodeID]; !ok {
			return fmt.Errorf("%w: %s", ErrNodeNotFound, ShortHash(nodeID))
		}
		if _, ok := nodes[newParentID]; !ok {
			return fmt.Errorf("%w: %s", ErrNodeNotFound, ShortHash(newParentID))
		}
		if nodeID == newParentID {
			return fmt.Errorf("%w: node %s cannot become its own parent", ErrCycle, ShortHash(nodeID))
		}

		children := childIndex(nodes)
		affected := descendants(children, nodeID)
		if affected[newParentID] {
			return fmt.Errorf("%w: %s is a descendant of %s", ErrCycle, ShortHash(newParentID), ShortHash(nodeID))
		}
		affected[nodeID] = true

		// Rebuild in topological order so every remapped parent id is known
		// before its children are rewritten.
		order := topoOrder(nodes, children, affected)
		for _, id := range order {
			old := nodes[id]
			rebuilt := old
			if id == nodeID {
				rebuilt.Parents = []string{newParentID}
			} else {
				parents := make([]string, len(old.Parents))
				for i, p := range old.Parents {
					if np, ok := remap[p]; ok {
						parents[i] = np
					} else {
						parents[i] = p
					}
				}
				rebuilt.Parents = parents
			}
			rebuilt.ID = rebuilt.hash()
			if rebuilt.ID == old.ID {
				continue
			}
			if err := putNode(txn, rebuilt); err != nil {
				return fmt.Errorf("%w: write rewritten node: %v", ErrRewriteFailed, err)
			}
			if err := txn.Delete([]byte(nodeKeyPrefix + old.ID)); err != nil {
				return fmt.Errorf("%w: drop superseded node: %v", ErrRewriteFailed, err)
			}
			remap[old.ID] = rebuilt.ID
		}

		// Remap every ref into the rewritten subgraph so the pointer-to-node
		// correspondence survives the rewrite.
		refs, err := loadRefs(txn)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRewriteFailed, err)
		}
		for name, id := range refs {
			if newID, ok := remap[id]; ok {
				if err := putRef(txn, name, newID); err != nil {
					return fmt.Errorf("%w: remap ref %s: %v", ErrRewriteFailed, name, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("reparented node",
		"node", ShortHash(nodeID),
		"new_parent", ShortHash(newParentID),
		"rewritten", len(remap),
	)
	return remap, nil
}

// DeleteLeaf removes a node that has no children.
//
// Description:
//
//	Fails with ErrHasChildren when any node still lists nodeID as a parent.
//	When HEAD points at the node, HEAD is first moved to the node's parent
//	(or the graph root for a parentless node). Any other refs to the node
//	are deleted together with it, all in one transaction.
func (s *Store) DeleteLeaf(ctx context.Context, nodeID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		nodes, err := loadNodes(txn)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRewriteFailed, err)
		}
		node, ok := nodes[nodeID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNodeNotFound, ShortHash(nodeID))
		}
		for _, n := range nodes {
			for _, p := range n.Parents {
				if p == nodeID {
					return fmt.Errorf("%w: %s has child %s", ErrHasChildren, ShortHash(nodeID), ShortHash(n.ID))
				}
			}
		}

		refs, err := loadRefs(txn)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRewriteFailed, err)
		}
		for name, id := range refs {
			if id != nodeID {
				continue
			}
			if name == HeadRef {
				target := refs[RootRef]
				if len(node.Parents) > 0 {
					target = node.Parents[0]
				}
				if err := putRef(txn, HeadRef, target); err != nil {
					return fmt.Errorf("%w: move HEAD: %v", ErrRewriteFailed, err)
				}
				continue
			}
			if err := txn.Delete([]byte(refKeyPrefix + name)); err != nil {
				return fmt.Errorf("%w: drop ref %s: %v", ErrRewriteFailed, name, err)
			}
		}
		if err := txn.Delete([]byte(nodeKeyPrefix + nodeID)); err != nil {
			return fmt.Errorf("%w: drop node: %v", ErrRewriteFailed, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Debug("deleted leaf node", "node", ShortHash(nodeID))
	return nil
}

// childIndex builds the parent-to-children adjacency for a node table.
func childIndex(nodes map[string]Node) map[string][]string {
	children := make(map[string][]string, len(nodes))
	for id, n := range nodes {
		for _, p := range n.Parents {
			children[p] = append(children[p], id)
		}
	}
	return children
}

// descendants collects every node reachable from start via child edges.
// The start node itself is not included.
func descendants(children map[string][]string, start string) map[string]bool {
	seen := make(map[string]bool)
	stack := []string{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, c := range children[cur] {
			if !seen[c] {
				seen[c] = true
				stack = append(stack, c)
			}
		}
	}
	return seen
}

// topoOrder orders the affected set so parents come before children.
// Parent edges that leave the affected set are ignored.
func topoOrder(nodes map[string]Node, children map[string][]string, affected map[string]bool) []string {
	indegree := make(map[string]int, len(affected))
	for id := range affected {
		for _, p := range nodes[id].Parents {
			if affected[p] {
				indegree[id]++
			}
		}
	}
	var queue []string
	for id := range affected {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	order := make([]string, 0, len(affected))
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		for _, c := range children[cur] {
			if !affected[c] {
				continue
			}
			indegree[c]--
			if indegree[c] == 0 {
				queue = append(queue, c)
			}
		}
	}
	return order
}
