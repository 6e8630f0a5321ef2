// Copyright (C) 2025 Saleh Mehdikhani
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package commitgraph

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Reserved ref names.
const (
	// RootRef names the graph entry node. Created by Init and never moved.
	RootRef = "GRAPH_ROOT"

	// HeadRef names the current working position. DeleteLeaf moves it to
	// the deleted node's parent when it points at the deleted tip.
	HeadRef = "HEAD"

	// UnionRefPrefix prefixes every canonical union ref name.
	UnionRefPrefix = "union-"
)

// NodeKind discriminates the three node types in the substrate.
type NodeKind string

const (
	// KindRoot is the single graph entry node.
	KindRoot NodeKind = "root"

	// KindPerson is a person's position in the graph. Zero or one parent.
	KindPerson NodeKind = "person"

	// KindUnion is a marriage. Exactly two parents.
	KindUnion NodeKind = "union"
)

// Node is one immutable, content-addressable entry in the substrate.
//
// ID is the hex SHA-256 of the node's canonical encoding, so any change to
// parents or payload produces a different node. CreatedAt is part of the
// hashed content (like a commit's author date) and is preserved across
// history rewrites, which keeps rewrites deterministic.
type Node struct {
	// ID is the content hash. Computed, never set by callers.
	ID string `json:"id"`

	// Parents holds the parent node ids. Empty for the root, one entry for
	// a person node, two for a union node.
	Parents []string `json:"parents,omitempty"`

	// Kind is the node type.
	Kind NodeKind `json:"kind"`

	// Subject carries the node's identity payload: a person's short id, or
	// the canonical union name.
	Subject string `json:"subject"`

	// Message is a human-readable description, like a commit message.
	Message string `json:"message,omitempty"`

	// CreatedAt is the creation timestamp in Unix nanoseconds.
	CreatedAt int64 `json:"created_at"`
}

// hash computes the content address over parents, kind, subject, message
// and timestamp. The encoding is a plain line format; field order is fixed.
func (n Node) hash() string {
	var b strings.Builder
	fmt.Fprintf(&b, "parents %s\n", strings.Join(n.Parents, " "))
	fmt.Fprintf(&b, "kind %s\n", n.Kind)
	fmt.Fprintf(&b, "subject %s\n", n.Subject)
	fmt.Fprintf(&b, "created %d\n", n.CreatedAt)
	fmt.Fprintf(&b, "\n%s", n.Message)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// newNode builds a node with a fresh timestamp and computed id.
func newNode(kind NodeKind, parents []string, subject, message string) Node {
	n := Node{
		Parents:   parents,
		Kind:      kind,
		Subject:   subject,
		Message:   message,
		CreatedAt: time.Now().UnixNano(),
	}
	n.ID = n.hash()
	return n
}

// UnionRefName returns the canonical, order-independent ref name for the
// union of two short ids.
func UnionRefName(shortA, shortB string) string {
	if shortB < shortA {
		shortA, shortB = shortB, shortA
	}
	return UnionRefPrefix + shortA + "-" + shortB
}
