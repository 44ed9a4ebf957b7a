// GraphVault - Snapshot, Replication, and Disaster Recovery for Graph Stores
// Copyright 2026 GraphVault Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/graphvault/graphvault

// Package snapshot provides point-in-time backups of per-graph working
// directories: creation, integrity-checked restore, retention-driven
// cleanup, and aggregate statistics.
//
// A Store manages the snapshots of a single graph. The Coordinator owns one
// Store per graph and runs cooldown-gated retention sweeps across all of
// them.
//
// Snapshot Lifecycle:
//
//	pending → in_progress → completed | failed
//	completed → restored   (after a successful restore)
//
// A snapshot is usable for restore while it is completed or restored, its
// storage location still exists on disk, and its retention deadline has not
// passed.
package snapshot

import (
	"os"
	"time"
)

// Status is the lifecycle state of a snapshot.
type Status string

const (
	// StatusPending indicates the snapshot is initialized but not started.
	StatusPending Status = "pending"

	// StatusInProgress indicates the copy/hash phase is running.
	StatusInProgress Status = "in_progress"

	// StatusCompleted indicates the snapshot finished successfully.
	StatusCompleted Status = "completed"

	// StatusFailed indicates the snapshot failed.
	StatusFailed Status = "failed"

	// StatusArchived indicates the snapshot was moved to cold storage.
	StatusArchived Status = "archived"

	// StatusRestored indicates the snapshot has been restored to a graph.
	StatusRestored Status = "restored"
)

// Snapshot is the metadata for one point-in-time copy of a graph's working
// directory.
type Snapshot struct {
	// ID is the unique identifier for this snapshot.
	ID string `json:"id"`

	// GraphID is the graph this snapshot belongs to.
	GraphID string `json:"graph_id"`

	// CreatedAt is when the snapshot was created.
	CreatedAt time.Time `json:"created_at"`

	// Location is the directory holding the snapshot data.
	Location string `json:"location"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// SizeBytes is the total size of the snapshot data.
	SizeBytes int64 `json:"size_bytes"`

	// Hash is the SHA-256 content hash over relative paths and file
	// contents, independent of filesystem iteration order.
	Hash string `json:"hash"`

	// Metadata holds caller-supplied annotations.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Error holds failure details when Status is failed.
	Error string `json:"error,omitempty"`

	// RetentionUntil is when the snapshot becomes eligible for deletion.
	RetentionUntil time.Time `json:"retention_until"`
}

// Expired reports whether the snapshot is past its retention deadline.
// The boundary is strict: a snapshot whose deadline equals now is not yet
// expired.
func (s *Snapshot) Expired(now time.Time) bool {
	if s.RetentionUntil.IsZero() {
		return false
	}
	return now.After(s.RetentionUntil)
}

// Valid reports whether the snapshot can be restored: its data must still
// be on disk and within retention, and its status must be completed or
// restored. The restored status only marks that the snapshot has been
// applied at least once; it does not consume it, so the same snapshot (and
// the recovery point referencing it) can back repeated restores.
func (s *Snapshot) Valid(now time.Time) bool {
	if s.Status != StatusCompleted && s.Status != StatusRestored {
		return false
	}
	if _, err := os.Stat(s.Location); err != nil {
		return false
	}
	return !s.Expired(now)
}

// StorageStats describes the snapshots held by one Store.
type StorageStats struct {
	GraphID        string     `json:"graph_id"`
	TotalSnapshots int        `json:"total_snapshots"`
	TotalSizeBytes int64      `json:"total_size_bytes"`
	Oldest         *time.Time `json:"oldest_snapshot,omitempty"`
	Newest         *time.Time `json:"newest_snapshot,omitempty"`
	ExpiredCount   int        `json:"expired_snapshots"`
}

// TotalStats aggregates storage statistics across all registered graphs.
type TotalStats struct {
	TotalGraphs    int                     `json:"total_graphs"`
	TotalSnapshots int                     `json:"total_snapshots"`
	TotalSizeBytes int64                   `json:"total_size_bytes"`
	RetentionDays  int                     `json:"retention_days"`
	PerGraph       map[string]StorageStats `json:"per_graph_stats"`
}
