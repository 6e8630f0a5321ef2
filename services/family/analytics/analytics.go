// Copyright (C) 2025 Saleh Mehdikhani
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package analytics provides pure read-side computations over the
// materialized relationship edge list: ancestor closure, cycle detection,
// and generation assignment.
//
// Nothing in this package touches a store. Callers materialize the edge
// list (see services/family/export) and hand it in; results are plain maps
// and slices. All functions are deterministic: iteration is over sorted
// person ids so repeated runs produce identical output.
package analytics

import (
	"errors"
	"sort"

	"github.com/saleh-mehdikhani/fam-tool/services/family"
)

// ErrNoConvergence is returned when generation assignment hits its pass cap
// without reaching a fixpoint, which only happens on corrupted (cyclic)
// graphs. The partial result is still returned alongside it.
var ErrNoConvergence = errors.New("generation assignment did not converge")

// ParentIndex builds the child-id to parent-ids adjacency from the edge
// list. Only child edges contribute.
func ParentIndex(edges []family.Edge) map[string][]string {
	parents := make(map[string][]string)
	for _, e := range edges {
		if e.Type == family.EdgeChild {
			parents[e.To] = append(parents[e.To], e.From)
		}
	}
	return parents
}

// ChildIndex builds the parent-id to child-ids adjacency from the edge list.
func ChildIndex(edges []family.Edge) map[string][]string {
	children := make(map[string][]string)
	for _, e := range edges {
		if e.Type == family.EdgeChild {
			children[e.From] = append(children[e.From], e.To)
		}
	}
	return children
}

// AncestorsOf collects every ancestor of id reachable through parent edges.
//
// Description:
//
//	Iterative traversal with a visited set, so each ancestor is expanded at
//	most once and dense graphs cannot blow up exponentially. The person is
//	never their own ancestor in a valid graph; on a corrupted cyclic graph
//	the visited set still bounds the walk.
//
// Outputs:
//
//	map[string]bool - Ancestor id set. Never contains id itself unless the
//	                  graph is cyclic through id.
func AncestorsOf(id string, parents map[string][]string) map[string]bool {
	ancestors := make(map[string]bool)
	stack := append([]string(nil), parents[id]...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if ancestors[cur] {
			continue
		}
		ancestors[cur] = true
		stack = append(stack, parents[cur]...)
	}
	return ancestors
}

// dfs colors for cycle detection.
const (
	white = iota // unvisited
	gray         // on the current DFS path
	black        // fully explored
)

// DetectCycle runs a three-color depth-first search over the parent-to-child
// adjacency and returns the first cycle found.
//
// Description:
//
//	The search starts from every person, not just roots, so cycles living in
//	disconnected components are still caught. When a back-edge into a gray
//	node is found, the cycle is returned as an ordered id list starting at
//	the re-encountered node.
//
// Outputs:
//
//	[]string - The cycle, or nil when the graph is acyclic.
func DetectCycle(persons []string, edges []family.Edge) []string {
	children := ChildIndex(edges)
	color := make(map[string]int, len(persons))

	ordered := append([]string(nil), persons...)
	sort.Strings(ordered)

	var path []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		path = append(path, id)
		kids := append([]string(nil), children[id]...)
		sort.Strings(kids)
		for _, c := range kids {
			switch color[c] {
			case gray:
				// Back-edge: slice the path from the re-encountered node.
				for i, p := range path {
					if p == c {
						cycle = append([]string(nil), path[i:]...)
						return true
					}
				}
			case white:
				if visit(c) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return false
	}

	for _, id := range ordered {
		if color[id] == white {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}

// AssignGenerations derives a generation number per person.
//
// Description:
//
//	Roots (persons with no parent edge) start at generation 0. Two phases
//	alternate until a full pass changes nothing:
//
//	 1. child propagation: child.gen = max(child.gen, parent.gen+1) for
//	    every parent edge
//	 2. partner leveling: both members of a union are raised to the max of
//	    their two generations
//
//	Passes are capped at 2×|persons|; hitting the cap means the edge list
//	is cyclic, and the partial result is returned with ErrNoConvergence so
//	callers can surface a warning instead of looping forever.
//
// Outputs:
//
//	map[string]int - Generation per person id.
//	error - ErrNoConvergence when the cap was hit; nil otherwise.
func AssignGenerations(persons []string, edges []family.Edge) (map[string]int, error) {
	gen := make(map[string]int, len(persons))
	for _, id := range persons {
		gen[id] = 0
	}

	ordered := append([]string(nil), persons...)
	sort.Strings(ordered)
	parents := ParentIndex(edges)

	// Partner pairs, deduplicated on the unordered pair.
	type pair struct{ a, b string }
	seen := make(map[pair]bool)
	var partners []pair
	for _, e := range edges {
		if e.Type != family.EdgePartner {
			continue
		}
		a, b := e.From, e.To
		if b < a {
			a, b = b, a
		}
		p := pair{a, b}
		if !seen[p] {
			seen[p] = true
			partners = append(partners, p)
		}
	}
	sort.Slice(partners, func(i, j int) bool {
		if partners[i].a != partners[j].a {
			return partners[i].a < partners[j].a
		}
		return partners[i].b < partners[j].b
	})

	maxPasses := 2 * len(persons)
	if maxPasses < 2 {
		maxPasses = 2
	}
	for pass := 0; pass < maxPasses; pass++ {
		changed := false

		for _, id := range ordered {
			for _, p := range parents[id] {
				if g := gen[p] + 1; g > gen[id] {
					gen[id] = g
					changed = true
				}
			}
		}

		for _, p := range partners {
			ga, gb := gen[p.a], gen[p.b]
			if ga == gb {
				continue
			}
			level := ga
			if gb > level {
				level = gb
			}
			gen[p.a], gen[p.b] = level, level
			changed = true
		}

		if !changed {
			return gen, nil
		}
	}
	return gen, ErrNoConvergence
}
