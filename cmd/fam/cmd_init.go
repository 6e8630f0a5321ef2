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

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Create a new family tree project",
	Long: `Create the project layout in the given directory (default: current
directory): a people/ directory for attribute records and a .fam/
directory holding the relationship graph and logs.

Examples:
  fam init
  fam init ~/trees/mehdikhani`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if flagDir != "" {
		dir = flagDir
	}
	if len(args) == 1 {
		dir = args[0]
	}
	proj, err := initProject(dir)
	if err != nil {
		return fail(err)
	}
	ux.Success(fmt.Sprintf("initialized family tree project in %s", proj.root))
	return nil
}
