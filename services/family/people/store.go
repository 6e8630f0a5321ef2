// Copyright (C) 2025 Saleh Mehdikhani
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package people implements the attribute store: one YAML record per person
// under the project's people/ directory.
//
// The store owns person attributes only. Relationship topology lives in the
// commit substrate (services/family/commitgraph); the mapper keeps the two
// id spaces aligned. Records are replaced whole on update and validated with
// go-playground/validator before anything touches disk.
//
// File names follow the original layout, <shortid>_<first>_<last>.yml, so a
// record can be located by id prefix without opening every file.
package people

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/saleh-mehdikhani/fam-tool/services/family"
)

// loadConcurrency bounds parallel record loads in ListAll.
const loadConcurrency = 8

// Store reads and writes person records in a directory.
type Store struct {
	dir      string
	validate *validator.Validate
	logger   *slog.Logger
}

// NewStore creates a store over dir. The directory is created lazily on the
// first Put.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		dir:      dir,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Dir returns the backing directory.
func (s *Store) Dir() string { return s.dir }

// Put validates and writes a record, replacing any existing record with the
// same id. The file name tracks the current first/last name, so a rename
// replaces the old file.
func (s *Store) Put(rec family.Record) error {
	if err := s.validate.Struct(rec); err != nil {
		return fmt.Errorf("invalid person record: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return fmt.Errorf("create people directory: %w", err)
	}

	existing, err := s.pathForID(rec.ID)
	if err != nil && !errors.Is(err, family.ErrNotFound) {
		return err
	}

	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode person record: %w", err)
	}
	path := filepath.Join(s.dir, fileName(rec))
	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("write person record: %w", err)
	}
	if existing != "" && existing != path {
		if err := os.Remove(existing); err != nil {
			return fmt.Errorf("drop renamed record: %w", err)
		}
	}
	s.logger.Debug("wrote person record", "id", family.ShortID(rec.ID), "path", path)
	return nil
}

// Get loads the record with the given full id.
func (s *Store) Get(id string) (family.Record, error) {
	path, err := s.pathForID(id)
	if err != nil {
		return family.Record{}, err
	}
	return s.load(path)
}

// Delete removes the record with the given full id.
func (s *Store) Delete(id string) error {
	path, err := s.pathForID(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete person record: %w", err)
	}
	s.logger.Debug("deleted person record", "id", family.ShortID(id))
	return nil
}

// FindByPrefix returns every record whose id starts with prefix.
func (s *Store) FindByPrefix(prefix string) ([]family.Record, error) {
	all, err := s.ListAll(context.Background())
	if err != nil {
		return nil, err
	}
	var out []family.Record
	for _, rec := range all {
		if strings.HasPrefix(rec.ID, prefix) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// FindByName searches records by name.
//
// Matching follows the resolver contract: case-insensitive substring on the
// full name, or exact case-insensitive match on the first or last name.
func (s *Store) FindByName(text string) ([]family.Record, error) {
	all, err := s.ListAll(context.Background())
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(text)
	var out []family.Record
	for _, rec := range all {
		full := strings.ToLower(rec.FullName())
		switch {
		case strings.Contains(full, needle):
			out = append(out, rec)
		case strings.EqualFold(rec.FirstName, text), strings.EqualFold(rec.LastName, text):
			out = append(out, rec)
		}
	}
	return out, nil
}

// ListAll loads every record in the store, in stable name order.
//
// Records are parsed concurrently (bounded by loadConcurrency); a missing
// directory is an empty store, not an error.
func (s *Store) ListAll(ctx context.Context) ([]family.Record, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read people directory: %w", err)
	}

	var mu sync.Mutex
	var records []family.Record
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yml") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := s.load(path)
			if err != nil {
				return err
			}
			mu.Lock()
			records = append(records, rec)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].FullName() != records[j].FullName() {
			return records[i].FullName() < records[j].FullName()
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

// load reads and decodes a single record file.
func (s *Store) load(path string) (family.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return family.Record{}, fmt.Errorf("read person record: %w", err)
	}
	var rec family.Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return family.Record{}, fmt.Errorf("decode person record %s: %w", filepath.Base(path), err)
	}
	return rec, nil
}

// pathForID locates the file holding the record for a full id via the
// short-id file name prefix, falling back to a content check when the
// prefix is ambiguous on disk.
func (s *Store) pathForID(id string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, family.ShortID(id)+"_*.yml"))
	if err != nil {
		return "", fmt.Errorf("scan people directory: %w", err)
	}
	for _, path := range matches {
		rec, err := s.load(path)
		if err != nil {
			return "", err
		}
		if rec.ID == id {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: id %s", family.ErrNotFound, family.ShortID(id))
}

// fileName derives the on-disk name for a record.
func fileName(rec family.Record) string {
	return fmt.Sprintf("%s_%s_%s.yml", rec.ShortID(), slug(rec.FirstName), slug(rec.LastName))
}

// slug lowercases a name part and strips anything unsafe for a file name.
func slug(part string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(part) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "x"
	}
	return b.String()
}
