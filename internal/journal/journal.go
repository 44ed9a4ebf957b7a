// GraphVault - Snapshot, Replication, and Disaster Recovery for Graph Stores
// Copyright 2026 GraphVault Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/graphvault/graphvault

// Package journal persists operational records (snapshots, replication
// attempts, recovery checkpoints, health events) to BadgerDB.
//
// The journal is a best-effort sink: writers must never let a journal
// failure fail the operation that produced the record. Callers log the
// returned error at warn level and move on.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/graphvault/graphvault/internal/metrics"
)

// Kind identifies the record type stored in the journal.
type Kind string

const (
	KindSnapshot      Kind = "snapshot"
	KindReplication   Kind = "replication"
	KindRecoveryPoint Kind = "recovery_point"
	KindHealth        Kind = "health"
)

// Record is one journal entry. Payload holds the operation-specific data
// as emitted by the producing component.
type Record struct {
	// ID is the journal entry id, distinct from any id inside Payload.
	ID string `json:"id"`

	// Kind identifies the record type.
	Kind Kind `json:"kind"`

	// SubjectID is the id of the object the record describes
	// (snapshot id, operation id, checkpoint id, component id).
	SubjectID string `json:"subject_id"`

	// GraphID is the owning graph, when the record is graph-scoped.
	GraphID string `json:"graph_id,omitempty"`

	// At is when the recorded event happened.
	At time.Time `json:"at"`

	// Payload is the record body, JSON-serializable.
	Payload any `json:"payload"`
}

// Recorder is the journal interface. Implemented by *Journal and by Nop
// for tests and disabled configurations.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
	Recent(ctx context.Context, kind Kind, limit int) ([]Record, error)
}

// Journal is a BadgerDB-backed Recorder.
type Journal struct {
	db  *badger.DB
	ttl time.Duration
}

// Options configures the journal store.
type Options struct {
	// Path is the BadgerDB directory.
	Path string

	// SyncWrites forces fsync on every write. Slower, durable.
	SyncWrites bool

	// RetentionDays bounds how long records are kept, via Badger TTL.
	// Zero means keep forever.
	RetentionDays int
}

// Open opens (or creates) the journal database at opts.Path.
func Open(opts Options) (*Journal, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("journal path is required")
	}

	bopts := badger.DefaultOptions(opts.Path)
	bopts.SyncWrites = opts.SyncWrites
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	j := &Journal{db: db}
	if opts.RetentionDays > 0 {
		j.ttl = time.Duration(opts.RetentionDays) * 24 * time.Hour
	}
	return j, nil
}

// Record appends a record. The entry key orders records by kind and time so
// Recent can scan newest-first.
func (j *Journal) Record(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		metrics.JournalWrites.WithLabelValues(string(rec.Kind), "failure").Inc()
		return fmt.Errorf("marshal journal record: %w", err)
	}

	key := recordKey(rec.Kind, rec.At, rec.ID)
	err = j.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, data)
		if j.ttl > 0 {
			entry = entry.WithTTL(j.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		metrics.JournalWrites.WithLabelValues(string(rec.Kind), "failure").Inc()
		return fmt.Errorf("write journal record: %w", err)
	}

	metrics.JournalWrites.WithLabelValues(string(rec.Kind), "success").Inc()
	return nil
}

// Recent returns up to limit records of the given kind, newest first.
func (j *Journal) Recent(ctx context.Context, kind Kind, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}

	prefix := []byte(string(kind) + "/")
	records := make([]Record, 0, limit)

	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration needs a seek key past the end of the prefix range.
		seek := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(records) < limit; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec Record
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}

	return records, nil
}

// Close shuts down the underlying BadgerDB.
func (j *Journal) Close() error {
	return j.db.Close()
}

// recordKey builds "<kind>/<unixnano>/<id>". The timestamp is zero-padded
// to a fixed width so lexicographic key order is chronological within a
// kind; variable-width encodings would misorder sub-second fractions.
func recordKey(kind Kind, at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s/%020d/%s", kind, at.UTC().UnixNano(), id))
}

// Nop is a Recorder that discards every record. Used when the journal is
// disabled and throughout tests.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, Record) error { return nil }

// Recent implements Recorder. A disabled journal holds no history.
func (Nop) Recent(context.Context, Kind, int) ([]Record, error) { return nil, nil }
