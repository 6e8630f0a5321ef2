// Copyright (C) 2025 Saleh Mehdikhani
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/saleh-mehdikhani/fam-tool/pkg/ux"
	"github.com/saleh-mehdikhani/fam-tool/services/family"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	addMiddle   string
	addNickname string
	addGender   string
	addBirth    string
	addNotes    string
	addFather   string
	addMother   string
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var addCmd = &cobra.Command{
	Use:   "add FIRST LAST",
	Short: "Add a person to the tree",
	Long: `Add a person. With --father and --mother the person is recorded as
their child; if the parents are not married yet you are asked whether
to create the union.

Parent tokens may be a name, a name fragment, or an id prefix.

Examples:
  fam add Ada Lovelace --birth 1815-12-10 --gender female
  fam add Anne King --father william --mother ada
  fam add Nemo "" --notes "surname unknown"`,
	Args: cobra.ExactArgs(2),
	RunE: runAdd,
}

var removeCmd = &cobra.Command{
	Use:     "remove PERSON",
	Aliases: []string{"rm"},
	Short:   "Remove a person from the tree",
	Long: `Remove a person and their attribute record. Unions the person belongs
to are removed as well, and children of those unions are kept but
detached; any such cascade asks for confirmation first.

Examples:
  fam remove ada
  fam rm ab12cd34 --yes`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List everyone in the tree",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var findCmd = &cobra.Command{
	Use:   "find TEXT",
	Short: "Find people by name or id prefix",
	Long: `Search for people. TEXT matches case-insensitively against full
names, exact first or last names, and id prefixes.

Examples:
  fam find love
  fam find ab12`,
	Args: cobra.ExactArgs(1),
	RunE: runFind,
}

var showCmd = &cobra.Command{
	Use:   "show PERSON",
	Short: "Show one person's record and relations",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	addCmd.Flags().StringVar(&addMiddle, "middle", "", "middle name")
	addCmd.Flags().StringVar(&addNickname, "nick", "", "nickname")
	addCmd.Flags().StringVar(&addGender, "gender", "", "gender: male, female or other")
	addCmd.Flags().StringVar(&addBirth, "birth", "", "birth date (YYYY-MM-DD)")
	addCmd.Flags().StringVar(&addNotes, "notes", "", "free-form notes")
	addCmd.Flags().StringVar(&addFather, "father", "", "father (name or id prefix)")
	addCmd.Flags().StringVar(&addMother, "mother", "", "mother (name or id prefix)")
}

// =============================================================================
// RUN FUNCTIONS
// =============================================================================

func runAdd(cmd *cobra.Command, args []string) error {
	if (addFather == "") != (addMother == "") {
		return fail(fmt.Errorf("--father and --mother must be given together"))
	}
	a, err := openApp()
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	rec := family.NewRecord(args[0], addMiddle, args[1])
	rec.Nickname = addNickname
	rec.Gender = addGender
	rec.BirthDate = addBirth
	rec.Notes = addNotes

	if err := a.svc.AddPerson(cmd.Context(), rec, addFather, addMother); err != nil {
		return fail(err)
	}
	ux.Success(fmt.Sprintf("added %s (%s)", rec.FullName(), rec.ShortID()))
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	if err := a.svc.RemovePerson(cmd.Context(), args[0]); err != nil {
		return fail(err)
	}
	ux.Success(fmt.Sprintf("removed %s", args[0]))
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	recs, err := a.attrs.ListAll(cmd.Context())
	if err != nil {
		return fail(err)
	}
	if len(recs) == 0 {
		ux.Muted("no people recorded yet; try 'fam add'")
		return nil
	}
	printRecords(recs)
	ux.Muted(fmt.Sprintf("%d people", len(recs)))
	return nil
}

func runFind(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	text := args[0]
	recs, err := a.attrs.FindByPrefix(text)
	if err != nil {
		return fail(err)
	}
	if len(recs) == 0 {
		recs, err = a.attrs.FindByName(text)
		if err != nil {
			return fail(err)
		}
	}
	if len(recs) == 0 {
		return fail(fmt.Errorf("%w: nobody matches %q", family.ErrNotFound, text))
	}
	printRecords(recs)
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return fail(err)
	}
	defer a.Close()
	ctx := cmd.Context()

	id, err := a.resolver.Resolve(ctx, args[0], "person")
	if err != nil {
		return fail(err)
	}
	rec, err := a.attrs.Get(id)
	if err != nil {
		return fail(err)
	}

	var lines []string
	add := func(label, value string) {
		if value != "" {
			lines = append(lines, fmt.Sprintf("%-10s %s", label, value))
		}
	}
	add("id", rec.ID)
	add("nickname", rec.Nickname)
	add("gender", rec.Gender)
	add("born", rec.BirthDate)
	add("notes", rec.Notes)

	edges, err := a.svc.Edges(ctx)
	if err != nil {
		return fail(err)
	}
	var partners, parents, children []string
	for _, e := range edges {
		switch {
		case e.Type == family.EdgePartner && e.From == id:
			partners = append(partners, a.personLabel(e.To))
		case e.Type == family.EdgePartner && e.To == id:
			partners = append(partners, a.personLabel(e.From))
		case e.Type == family.EdgeChild && e.To == id:
			parents = append(parents, a.personLabel(e.From))
		case e.Type == family.EdgeChild && e.From == id:
			children = append(children, a.personLabel(e.To))
		}
	}
	add("parents", strings.Join(parents, ", "))
	add("partners", strings.Join(partners, ", "))
	add("children", strings.Join(children, ", "))

	ux.Box(rec.FullName()+" ("+rec.ShortID()+")", strings.Join(lines, "\n"))
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func printRecords(recs []family.Record) {
	for _, rec := range recs {
		line := fmt.Sprintf("%s  %s", rec.ShortID(), rec.FullName())
		if rec.BirthDate != "" {
			line += "  *" + rec.BirthDate
		}
		ux.Info(line)
	}
}

// personLabel renders "Name (short)" or just the short id for persons
// without an attribute record.
func (a *app) personLabel(id string) string {
	rec, err := a.attrs.Get(id)
	if err != nil {
		return family.ShortID(id)
	}
	return fmt.Sprintf("%s (%s)", rec.FullName(), rec.ShortID())
}
