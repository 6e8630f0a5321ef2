// Copyright (C) 2025 Saleh Mehdikhani
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package export

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/saleh-mehdikhani/fam-tool/services/family"
)

// WriteJSON renders the report as indented JSON.
func WriteJSON(w io.Writer, report *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// WriteDOT renders the report as a Graphviz digraph.
//
// Description:
//
//	Persons become boxed nodes labeled with name and birth date. Child
//	edges are solid and directed; partner edges are drawn dashed and
//	undirected. Persons sharing a generation are pinned to the same rank
//	so siblings and spouses line up.
func WriteDOT(w io.Writer, report *Report) error {
	labels := make(map[string]string, len(report.Persons))
	for _, rec := range report.Persons {
		label := rec.FullName()
		if rec.BirthDate != "" {
			label += "\\n*" + rec.BirthDate
		}
		labels[rec.ID] = label
	}
	label := func(id string) string {
		if l, ok := labels[id]; ok {
			return l
		}
		return family.ShortID(id)
	}

	var b strings.Builder
	b.WriteString("digraph family {\n")
	b.WriteString("  node [shape=box, fontname=\"Helvetica\"];\n")
	b.WriteString("  rankdir=TB;\n")

	ids := personIDs(report.Persons, report.Edges)
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(&b, "  %q [label=%q];\n", family.ShortID(id), label(id))
	}
	for _, e := range report.Edges {
		switch e.Type {
		case family.EdgeChild:
			fmt.Fprintf(&b, "  %q -> %q;\n", family.ShortID(e.From), family.ShortID(e.To))
		case family.EdgePartner:
			fmt.Fprintf(&b, "  %q -> %q [dir=none, style=dashed];\n",
				family.ShortID(e.From), family.ShortID(e.To))
		}
	}

	if len(report.Generations) > 0 {
		byGen := make(map[int][]string)
		for id, gen := range report.Generations {
			byGen[gen] = append(byGen[gen], id)
		}
		gens := make([]int, 0, len(byGen))
		for gen := range byGen {
			gens = append(gens, gen)
		}
		sort.Ints(gens)
		for _, gen := range gens {
			members := byGen[gen]
			sort.Strings(members)
			b.WriteString("  { rank=same;")
			for _, id := range members {
				fmt.Fprintf(&b, " %q;", family.ShortID(id))
			}
			b.WriteString(" }\n")
		}
	}

	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}
