// Copyright (C) 2025 Saleh Mehdikhani
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package journal records dual-store mutation intents.
//
// The graph store and the attribute store are updated as two sequential
// steps, not one transaction. Before a mutating operation starts it writes
// an intent entry; the entry advances to graph-done after the substrate
// mutation commits and is deleted once the attribute store caught up. A
// crash mid-operation therefore leaves a stale entry that names the
// operation and exactly how far it got, so the damage can be reported
// precisely instead of being discovered as silent inconsistency.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const intentKeyPrefix = "intent:"

// Stage tracks how far a dual-store operation progressed.
type Stage string

const (
	// StagePending means neither store has been mutated yet.
	StagePending Stage = "pending"

	// StageGraphDone means the substrate mutation committed but the
	// attribute store has not caught up.
	StageGraphDone Stage = "graph-done"
)

// Intent is one in-flight dual-store operation.
type Intent struct {
	// ID uniquely names this intent entry.
	ID string `json:"id"`

	// Op is the operation ("add", "remove", "marry", ...).
	Op string `json:"op"`

	// Detail identifies the affected person or pair for reporting.
	Detail string `json:"detail"`

	// Stage is the current progress marker.
	Stage Stage `json:"stage"`

	// StartedAt is the intent creation time in Unix nanoseconds.
	StartedAt int64 `json:"started_at"`
}

// Journal persists intents in the project's Badger database.
type Journal struct {
	db     *badger.DB
	logger *slog.Logger
}

// New creates a journal over an opened database.
func New(db *badger.DB, logger *slog.Logger) *Journal {
	if db == nil {
		return nil
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Journal{db: db, logger: logger}
}

// Begin writes a pending intent for op.
func (j *Journal) Begin(ctx context.Context, op, detail string) (*Intent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in := &Intent{
		ID:        uuid.NewString(),
		Op:        op,
		Detail:    detail,
		Stage:     StagePending,
		StartedAt: time.Now().UnixNano(),
	}
	if err := j.put(in); err != nil {
		return nil, fmt.Errorf("record intent: %w", err)
	}
	return in, nil
}

// MarkGraphDone advances the intent after the substrate mutation committed.
func (j *Journal) MarkGraphDone(ctx context.Context, in *Intent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	in.Stage = StageGraphDone
	if err := j.put(in); err != nil {
		return fmt.Errorf("advance intent: %w", err)
	}
	return nil
}

// Complete removes the intent once both stores agree again.
func (j *Journal) Complete(ctx context.Context, in *Intent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(intentKeyPrefix + in.ID))
	})
}

// Stale lists every intent left behind by an interrupted operation, oldest
// first. A healthy project has none.
func (j *Journal) Stale(ctx context.Context) ([]Intent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var stale []Intent
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(intentKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var in Intent
			err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &in)
			})
			if err != nil {
				return err
			}
			stale = append(stale, in)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(stale, func(i, k int) bool { return stale[i].StartedAt < stale[k].StartedAt })
	return stale, nil
}

func (j *Journal) put(in *Intent) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(intentKeyPrefix+in.ID), data)
	})
}
