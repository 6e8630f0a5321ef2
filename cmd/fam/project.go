// Copyright (C) 2025 Saleh Mehdikhani
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/saleh-mehdikhani/fam-tool/pkg/logging"
	"github.com/saleh-mehdikhani/fam-tool/pkg/ux"
	"github.com/saleh-mehdikhani/fam-tool/services/family"
	"github.com/saleh-mehdikhani/fam-tool/services/family/commitgraph"
	"github.com/saleh-mehdikhani/fam-tool/services/family/journal"
	"github.com/saleh-mehdikhani/fam-tool/services/family/mapper"
	"github.com/saleh-mehdikhani/fam-tool/services/family/people"
	"github.com/saleh-mehdikhani/fam-tool/services/family/resolve"
	famdb "github.com/saleh-mehdikhani/fam-tool/services/family/storage/badger"
)

// markerDir is the directory that identifies a project root.
const markerDir = ".fam"

// project is a located fam project on disk.
//
// Layout:
//
//	<root>/.fam/graph/   relationship graph (Badger)
//	<root>/.fam/logs/    daily JSON logs
//	<root>/people/       one YAML file per person
type project struct {
	root string
}

func (p *project) graphDir() string  { return filepath.Join(p.root, markerDir, "graph") }
func (p *project) logDir() string    { return filepath.Join(p.root, markerDir, "logs") }
func (p *project) peopleDir() string { return filepath.Join(p.root, "people") }

// findProject walks up from start looking for the marker directory.
func findProject(start string) (*project, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return nil, err
	}
	for {
		info, err := os.Stat(filepath.Join(dir, markerDir))
		if err == nil && info.IsDir() {
			return &project{root: dir}, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, fmt.Errorf("%w: no %s directory found from %s upward",
				family.ErrNotAProject, markerDir, start)
		}
		dir = parent
	}
}

// initProject creates the project layout in dir and initializes the graph.
func initProject(dir string) (*project, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if existing, err := findProject(abs); err == nil {
		return nil, fmt.Errorf("already inside a fam project at %s", existing.root)
	}
	proj := &project{root: abs}
	for _, d := range []string{proj.graphDir(), proj.logDir(), proj.peopleDir()} {
		if err := os.MkdirAll(d, 0750); err != nil {
			return nil, fmt.Errorf("create %s: %w", d, err)
		}
	}

	db, err := famdb.Open(famdb.DefaultConfig(proj.graphDir()))
	if err != nil {
		return nil, err
	}
	defer db.Close()
	if err := commitgraph.New(db, nil).Init(context.Background()); err != nil {
		return nil, err
	}
	return proj, nil
}

// =============================================================================
// APP WIRING
// =============================================================================

// app bundles the opened stores and services for one command invocation.
type app struct {
	project  *project
	logger   *logging.Logger
	db       *badger.DB
	graph    *commitgraph.Store
	attrs    *people.Store
	journal  *journal.Journal
	resolver *resolve.Resolver
	svc      *mapper.Service
	prompter *ux.Prompter
}

// openApp locates the project and wires every service. Callers must Close.
func openApp() (*app, error) {
	start, err := startDir()
	if err != nil {
		return nil, err
	}
	proj, err := findProject(start)
	if err != nil {
		return nil, fmt.Errorf("%w; run 'fam init' first", err)
	}

	logger := newLogger(proj)
	cfg := famdb.DefaultConfig(proj.graphDir())
	cfg.Logger = logger.Slog()
	db, err := famdb.Open(cfg)
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("open graph store: %w", err)
	}

	graph := commitgraph.New(db, logger.Slog())
	if err := graph.Init(context.Background()); err != nil {
		db.Close()
		logger.Close()
		return nil, err
	}
	attrs := people.NewStore(proj.peopleDir(), logger.Slog())
	jrnl := journal.New(db, logger.Slog())
	prompter := ux.NewPrompter(flagYes)
	resolver := resolve.New(attrs, graph, &recordChooser{prompter: prompter}, logger.Slog())

	svc, err := mapper.NewService(mapper.Config{
		Graph:    graph,
		Attrs:    attrs,
		Resolver: resolver,
		Journal:  jrnl,
		Confirm:  prompter,
		Logger:   logger.Slog(),
	})
	if err != nil {
		db.Close()
		logger.Close()
		return nil, err
	}

	a := &app{
		project:  proj,
		logger:   logger,
		db:       db,
		graph:    graph,
		attrs:    attrs,
		journal:  jrnl,
		resolver: resolver,
		svc:      svc,
		prompter: prompter,
	}
	a.warnStale(context.Background())
	return a, nil
}

// Close releases the graph store and the log file.
func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Error("close graph store", "error", err)
	}
	_ = a.logger.Close()
}

// warnStale surfaces interrupted operations left in the intent journal.
func (a *app) warnStale(ctx context.Context) {
	stale, err := a.journal.Stale(ctx)
	if err != nil || len(stale) == 0 {
		return
	}
	ux.Warning(fmt.Sprintf("%d interrupted operation(s) found; run 'fam status' for details", len(stale)))
}

// recordChooser adapts the interactive prompter to resolver disambiguation.
type recordChooser struct {
	prompter *ux.Prompter
}

func (c *recordChooser) Choose(role string, candidates []family.Record) (int, error) {
	labels := make([]string, len(candidates))
	for i, rec := range candidates {
		label := fmt.Sprintf("%s  %s", rec.ShortID(), rec.FullName())
		if rec.BirthDate != "" {
			label += "  *" + rec.BirthDate
		}
		labels[i] = label
	}
	return c.prompter.Select(fmt.Sprintf("Multiple matches for %s", role), labels)
}
