// Copyright (C) 2025 Saleh Mehdikhani
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/saleh-mehdikhani/fam-tool/pkg/logging"
	"github.com/saleh-mehdikhani/fam-tool/pkg/ux"
	"github.com/saleh-mehdikhani/fam-tool/services/family"
)

// =============================================================================
// GLOBAL FLAGS
// =============================================================================

var (
	flagDir     string
	flagYes     bool
	flagPlain   bool
	flagVerbose bool
)

// =============================================================================
// ROOT COMMAND
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "fam",
	Short: "A CLI to record and explore a family tree",
	Long: `fam keeps a family tree in two stores inside a project directory:
one YAML file per person for attributes, and a content-addressed
relationship graph for marriages and parent-child links.

Run 'fam init' inside an empty directory to start a tree, then add
people and relations:

  fam init
  fam add Ada Lovelace --birth 1815-12-10
  fam add William King
  fam marry ada william
  fam add Anne King --father william --mother ada
  fam report`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagPlain {
			ux.SetPlain(true)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagDir, "dir", "C", "", "run as if started in this directory")
	rootCmd.PersistentFlags().BoolVarP(&flagYes, "yes", "y", false, "answer yes to every confirmation")
	rootCmd.PersistentFlags().BoolVar(&flagPlain, "plain", false, "plain output without colors or prompts styling")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(findCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(marryCmd)
	rootCmd.AddCommand(unmarryCmd)
	rootCmd.AddCommand(childCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(statusCmd)
}

// startDir is the directory project discovery begins from.
func startDir() (string, error) {
	if flagDir != "" {
		return flagDir, nil
	}
	return os.Getwd()
}

// newLogger builds the CLI logger; file logs live under the project.
func newLogger(proj *project) *logging.Logger {
	level := logging.LevelWarn
	if flagVerbose {
		level = logging.LevelDebug
	}
	cfg := logging.Config{Level: level, Service: "fam"}
	if proj != nil {
		cfg.LogDir = proj.logDir()
	}
	return logging.New(cfg)
}

// fail prints the error in CLI form and returns it for the non-zero exit.
func fail(err error) error {
	var ambiguous *family.AmbiguousError
	if errors.As(err, &ambiguous) {
		ux.Error(ambiguous.Error())
		for _, rec := range ambiguous.Candidates {
			ux.Info(fmt.Sprintf("  %s  %s  %s", rec.ShortID(), rec.FullName(), rec.BirthDate))
		}
		ux.Muted("narrow the token or use an id prefix")
		return err
	}
	var partial *family.PartialStateError
	if errors.As(err, &partial) {
		ux.Error(partial.Error())
		ux.Warning("the stores may be out of sync; run 'fam status' to inspect")
		return err
	}
	ux.Error(err.Error())
	return err
}
