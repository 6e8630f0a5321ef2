// Copyright (C) 2025 Saleh Mehdikhani
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package family

import (
	"errors"
	"fmt"
)

// Sentinel errors for the family service.
//
// Every validation error below is detected before any store mutation and is
// therefore safe to surface directly: the project is untouched when one of
// them is returned. ErrRewriteFailed and ErrPartialState are post-mutation
// failures and always arrive wrapped with detail about which store was
// touched.
var (
	// ErrNotFound indicates no person matched the given id, prefix, or name.
	ErrNotFound = errors.New("person not found")

	// ErrAmbiguous indicates a name or prefix matched more than one person.
	ErrAmbiguous = errors.New("ambiguous person reference")

	// ErrAlreadyMarried indicates a union already exists for the pair.
	ErrAlreadyMarried = errors.New("marriage already registered")

	// ErrSelfReference indicates both sides of an operation resolved to the
	// same person.
	ErrSelfReference = errors.New("operation references the same person twice")

	// ErrAncestorCycle indicates the operation would make a person their own
	// ancestor.
	ErrAncestorCycle = errors.New("operation would create an ancestry cycle")

	// ErrChildPartnerConflict indicates the child is already unioned with one
	// of the named parents.
	ErrChildPartnerConflict = errors.New("child is already a partner of a parent")

	// ErrHasChildren blocks union removal or person deletion while children
	// still hang off the node.
	ErrHasChildren = errors.New("node still has children")

	// ErrRewriteFailed indicates the substrate failed mid-rewrite. The
	// substrate guarantees the pre-operation state is intact.
	ErrRewriteFailed = errors.New("history rewrite failed")

	// ErrPartialState indicates one store was updated and the other was not.
	// Manual reconciliation is required; the wrapped detail names the side
	// that succeeded.
	ErrPartialState = errors.New("stores are partially updated")

	// ErrAborted indicates the user declined a confirmation prompt.
	ErrAborted = errors.New("operation aborted")

	// ErrNotAProject indicates no fam project was found at or above the
	// working directory.
	ErrNotAProject = errors.New("not inside a fam project")
)

// AmbiguousError carries the candidate list so the caller can disambiguate
// interactively or abort.
type AmbiguousError struct {
	// Role labels the reference for error messages ("father", "child", ...).
	Role string

	// Token is the input that matched more than one person.
	Token string

	// Candidates holds every matching record, in stable name order.
	Candidates []Record
}

// Error implements the error interface.
func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%s %q matches %d people", e.Role, e.Token, len(e.Candidates))
}

// Unwrap makes errors.Is(err, ErrAmbiguous) work.
func (e *AmbiguousError) Unwrap() error { return ErrAmbiguous }

// PartialStateError reports exactly which side of the dual store a failed
// operation managed to update.
type PartialStateError struct {
	// Op is the operation that failed ("add", "remove", ...).
	Op string

	// GraphDone reports whether the graph store mutation completed.
	GraphDone bool

	// AttrDone reports whether the attribute store mutation completed.
	AttrDone bool

	// Err is the underlying failure.
	Err error
}

// Error implements the error interface.
func (e *PartialStateError) Error() string {
	return fmt.Sprintf("%s left stores partially updated (graph done: %t, attributes done: %t): %v",
		e.Op, e.GraphDone, e.AttrDone, e.Err)
}

// Unwrap makes errors.Is(err, ErrPartialState) work.
func (e *PartialStateError) Unwrap() error { return ErrPartialState }
