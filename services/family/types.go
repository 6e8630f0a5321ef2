// Copyright (C) 2025 Saleh Mehdikhani
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package family defines the shared domain types and sentinel errors for the
// fam genealogy engine.
//
// The engine records people in a flat attribute store (one YAML record per
// person, see services/family/people) and keeps the relationship topology in
// a content-addressed commit substrate (see services/family/commitgraph).
// Higher layers — resolver, mapper, analytics, export — work exclusively in
// terms of the types declared here.
package family

import (
	"strings"

	"github.com/google/uuid"
)

// ShortIDLen is the length of the abbreviated identifier used as the
// substrate ref name for a person.
const ShortIDLen = 8

// Record is a person's attribute record as stored in the attribute store.
//
// The ID is a 128-bit UUID and immutable for the life of the person; every
// other field is mutated only by replacing the whole record. Validation tags
// are enforced by the attribute store on write.
type Record struct {
	ID         string `yaml:"id" validate:"required,uuid4"`
	FirstName  string `yaml:"first_name" validate:"required"`
	MiddleName string `yaml:"middle_name,omitempty"`
	LastName   string `yaml:"last_name" validate:"required"`
	Nickname   string `yaml:"nickname,omitempty"`
	Gender     string `yaml:"gender,omitempty" validate:"omitempty,oneof=male female other"`
	BirthDate  string `yaml:"birth_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Notes      string `yaml:"notes,omitempty"`
}

// NewRecord creates a record with a fresh UUID.
func NewRecord(first, middle, last string) Record {
	return Record{
		ID:         uuid.NewString(),
		FirstName:  first,
		MiddleName: middle,
		LastName:   last,
	}
}

// ShortID returns the stable abbreviated identifier used as the substrate
// ref name. It is the first ShortIDLen characters of the UUID, which for the
// canonical text form is the leading hex group.
func (r Record) ShortID() string {
	return ShortID(r.ID)
}

// FullName assembles the display name, skipping the middle name when empty.
func (r Record) FullName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{r.FirstName, r.MiddleName, r.LastName} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// ShortID abbreviates a full person id to its stable ref-name form.
func ShortID(id string) string {
	if len(id) <= ShortIDLen {
		return id
	}
	return id[:ShortIDLen]
}

// EdgeType distinguishes the two relationship kinds in the derived edge
// list.
type EdgeType string

const (
	// EdgePartner links the two members of a union.
	EdgePartner EdgeType = "partner"

	// EdgeChild links a parent to a child.
	EdgeChild EdgeType = "child"
)

// Edge is one relationship in the materialized edge list consumed by
// analytics and export. From and To are full person ids.
type Edge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Type EdgeType `json:"type"`
}
