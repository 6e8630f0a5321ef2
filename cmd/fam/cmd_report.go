// Copyright (C) 2025 Saleh Mehdikhani
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/saleh-mehdikhani/fam-tool/pkg/ux"
	"github.com/saleh-mehdikhani/fam-tool/services/family"
	"github.com/saleh-mehdikhani/fam-tool/services/family/export"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	exportFormat string
	exportOutput string
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the tree grouped by generation",
	Long: `Print everyone grouped by generation depth, with partner and child
counts. A parent-child cycle in the data is reported instead of the
generation listing.`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the tree as JSON or Graphviz DOT",
	Long: `Export a snapshot of the tree.

Formats:
  json  persons, edges and generations as one JSON document
  dot   a Graphviz digraph; render with e.g. 'dot -Tsvg'

Examples:
  fam export --format json > tree.json
  fam export --format dot -o tree.dot`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show project health and interrupted operations",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "output format: json or dot")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to file instead of stdout")
}

// =============================================================================
// RUN FUNCTIONS
// =============================================================================

func runReport(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	report, err := export.Build(cmd.Context(), a.attrs, a.svc, a.logger.Slog())
	if err != nil {
		return fail(err)
	}
	if len(report.Cycle) > 0 {
		ux.Warning("the tree contains a parent-child cycle:")
		for _, id := range report.Cycle {
			ux.Info("  " + a.personLabel(id))
		}
		return nil
	}
	if len(report.Persons) == 0 {
		ux.Muted("no people recorded yet; try 'fam add'")
		return nil
	}

	byGen := make(map[int][]family.Record)
	maxGen := 0
	for _, rec := range report.Persons {
		gen := report.Generations[rec.ID]
		byGen[gen] = append(byGen[gen], rec)
		if gen > maxGen {
			maxGen = gen
		}
	}
	counts := relationCounts(report.Edges)

	for gen := 0; gen <= maxGen; gen++ {
		recs := byGen[gen]
		if len(recs) == 0 {
			continue
		}
		sort.Slice(recs, func(i, j int) bool { return recs[i].FullName() < recs[j].FullName() })
		ux.Title(fmt.Sprintf("Generation %d", gen))
		for _, rec := range recs {
			line := fmt.Sprintf("%s  %s", rec.ShortID(), rec.FullName())
			if rec.BirthDate != "" {
				line += "  *" + rec.BirthDate
			}
			if c := counts[rec.ID]; c.partners > 0 || c.children > 0 {
				line += fmt.Sprintf("  %s", ux.Styles.Muted.Render(
					fmt.Sprintf("(%d partner(s), %d child(ren))", c.partners, c.children)))
			}
			ux.Info(line)
		}
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	report, err := export.Build(cmd.Context(), a.attrs, a.svc, a.logger.Slog())
	if err != nil {
		return fail(err)
	}

	out := os.Stdout
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return fail(err)
		}
		defer f.Close()
		out = f
	}

	switch strings.ToLower(exportFormat) {
	case "json":
		err = export.WriteJSON(out, report)
	case "dot":
		err = export.WriteDOT(out, report)
	default:
		err = fmt.Errorf("unknown export format %q (want json or dot)", exportFormat)
	}
	if err != nil {
		return fail(err)
	}
	if exportOutput != "" {
		ux.Success(fmt.Sprintf("exported %d people to %s", len(report.Persons), exportOutput))
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return fail(err)
	}
	defer a.Close()
	ctx := cmd.Context()

	recs, err := a.attrs.ListAll(ctx)
	if err != nil {
		return fail(err)
	}
	nodes, err := a.graph.ListNodes(ctx)
	if err != nil {
		return fail(err)
	}
	ux.Info(fmt.Sprintf("project:       %s", a.project.root))
	ux.Info(fmt.Sprintf("people:        %d", len(recs)))
	ux.Info(fmt.Sprintf("graph nodes:   %d", len(nodes)))

	stale, err := a.journal.Stale(ctx)
	if err != nil {
		return fail(err)
	}
	if len(stale) == 0 {
		ux.Success("no interrupted operations")
		return nil
	}
	ux.Warning(fmt.Sprintf("%d interrupted operation(s):", len(stale)))
	for _, in := range stale {
		started := time.Unix(0, in.StartedAt).Format(time.RFC3339)
		ux.Info(fmt.Sprintf("  %s %s (%s) started %s, stage %s", in.ID, in.Op, in.Detail, started, in.Stage))
	}
	ux.Muted("inspect the stores and re-run or revert the operation by hand")
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

type relCount struct {
	partners int
	children int
}

func relationCounts(edges []family.Edge) map[string]relCount {
	counts := make(map[string]relCount)
	for _, e := range edges {
		switch e.Type {
		case family.EdgePartner:
			from, to := counts[e.From], counts[e.To]
			from.partners++
			to.partners++
			counts[e.From], counts[e.To] = from, to
		case family.EdgeChild:
			from := counts[e.From]
			from.children++
			counts[e.From] = from
		}
	}
	return counts
}
