// Copyright (C) 2025 Saleh Mehdikhani
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saleh-mehdikhani/fam-tool/pkg/ux"
)

var (
	childFather string
	childMother string
)

var marryCmd = &cobra.Command{
	Use:   "marry PERSON PERSON",
	Short: "Record a union between two people",
	Long: `Record a union. Marrying an ancestor to a descendant is refused
unless explicitly confirmed.

Examples:
  fam marry ada william
  fam marry ab12cd34 ef56ab78`,
	Args: cobra.ExactArgs(2),
	RunE: runMarry,
}

var unmarryCmd = &cobra.Command{
	Use:   "unmarry PERSON PERSON",
	Short: "Dissolve a union between two people",
	Long: `Dissolve a union. Refused while the union still has children;
remove or reparent them first.

Examples:
  fam unmarry ada william`,
	Args: cobra.ExactArgs(2),
	RunE: runUnmarry,
}

var childCmd = &cobra.Command{
	Use:   "child PERSON",
	Short: "Attach an existing person as a child of a couple",
	Long: `Attach an existing person as a child of --father and --mother. If
the couple is not married you are asked whether to create the union;
if the person already has parents the move is confirmed and recorded
as a history rewrite.

Examples:
  fam child anne --father william --mother ada`,
	Args: cobra.ExactArgs(1),
	RunE: runChild,
}

func init() {
	childCmd.Flags().StringVar(&childFather, "father", "", "father (name or id prefix)")
	childCmd.Flags().StringVar(&childMother, "mother", "", "mother (name or id prefix)")
	_ = childCmd.MarkFlagRequired("father")
	_ = childCmd.MarkFlagRequired("mother")
}

func runMarry(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	ref, err := a.svc.Marry(cmd.Context(), args[0], args[1])
	if err != nil {
		return fail(err)
	}
	ux.Success(fmt.Sprintf("recorded union %s", ref))
	return nil
}

func runUnmarry(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	if err := a.svc.Unmarry(cmd.Context(), args[0], args[1]); err != nil {
		return fail(err)
	}
	ux.Success(fmt.Sprintf("dissolved union between %s and %s", args[0], args[1]))
	return nil
}

func runChild(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	if err := a.svc.AddChild(cmd.Context(), args[0], childFather, childMother); err != nil {
		return fail(err)
	}
	ux.Success(fmt.Sprintf("recorded %s as a child of %s and %s", args[0], childFather, childMother))
	return nil
}
