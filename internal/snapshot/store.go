// GraphVault - Snapshot, Replication, and Disaster Recovery for Graph Stores
// Copyright 2026 GraphVault Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/graphvault/graphvault

package snapshot

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/graphvault/graphvault/internal/journal"
	"github.com/graphvault/graphvault/internal/logging"
	"github.com/graphvault/graphvault/internal/metrics"
)

const catalogFile = "catalog.json"

// Store manages the snapshots of a single graph. All snapshot data lives
// under the store's base directory, one subdirectory per snapshot, with a
// JSON catalog alongside so the inventory survives restarts.
type Store struct {
	graphID   string
	dir       string
	retention time.Duration

	mu        sync.Mutex
	snapshots map[string]*Snapshot

	journal journal.Recorder
	logger  zerolog.Logger

	// now is the clock; replaced in tests to exercise retention boundaries.
	now func() time.Time
}

// NewStore creates a snapshot store for graphID rooted at dir. The directory
// is created if needed and any existing catalog is loaded.
func NewStore(graphID, dir string, retention time.Duration, rec journal.Recorder) (*Store, error) {
	if graphID == "" {
		return nil, fmt.Errorf("graph id must not be empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create snapshot dir %s: %w", dir, err)
	}
	if rec == nil {
		rec = journal.Nop{}
	}

	s := &Store{
		graphID:   graphID,
		dir:       dir,
		retention: retention,
		snapshots: make(map[string]*Snapshot),
		journal:   rec,
		logger:    logging.With().Str("component", "snapshot").Str("graph_id", graphID).Logger(),
		now:       time.Now,
	}

	if err := s.loadCatalog(); err != nil {
		return nil, err
	}
	return s, nil
}

// GraphID returns the graph this store belongs to.
func (s *Store) GraphID() string { return s.graphID }

// CreateSnapshot copies sourceDir into a new snapshot directory, hashes the
// copied tree, and registers the snapshot. On failure the snapshot is kept
// in the catalog with status failed so the attempt remains visible.
func (s *Store) CreateSnapshot(ctx context.Context, sourceDir string, metadata map[string]string) (*Snapshot, error) {
	if _, err := os.Stat(sourceDir); err != nil {
		return nil, fmt.Errorf("source dir %s: %w", sourceDir, err)
	}

	start := s.now()
	id := fmt.Sprintf("%s_%s_%s", s.graphID, start.UTC().Format("20060102_150405"), uuid.NewString()[:8])

	snap := &Snapshot{
		ID:        id,
		GraphID:   s.graphID,
		CreatedAt: start,
		Location:  filepath.Join(s.dir, id),
		Status:    StatusPending,
		Metadata:  metadata,
	}
	if s.retention > 0 {
		snap.RetentionUntil = start.Add(s.retention)
	}

	s.mu.Lock()
	s.snapshots[id] = snap
	snap.Status = StatusInProgress
	s.saveCatalogLocked()
	s.mu.Unlock()

	s.logger.Info().Str("snapshot_id", id).Str("source", sourceDir).Msg("Creating snapshot")

	copied := snap.clone()
	err := s.materialize(ctx, sourceDir, copied)

	s.mu.Lock()
	if err != nil {
		snap.Status = StatusFailed
		snap.Error = err.Error()
	} else {
		snap.Status = StatusCompleted
		snap.SizeBytes = copied.SizeBytes
		snap.Hash = copied.Hash
	}
	result := snap.clone()
	s.saveCatalogLocked()
	s.mu.Unlock()

	elapsed := s.now().Sub(start)
	if err != nil {
		metrics.SnapshotsCreated.WithLabelValues(s.graphID, "failure").Inc()
		s.logger.Error().Err(err).Str("snapshot_id", id).Msg("Snapshot failed")
		s.record(ctx, journal.KindSnapshot, result)
		return nil, fmt.Errorf("create snapshot %s: %w", id, err)
	}

	metrics.SnapshotsCreated.WithLabelValues(s.graphID, "success").Inc()
	metrics.SnapshotDuration.WithLabelValues(s.graphID).Observe(elapsed.Seconds())
	metrics.SnapshotBytes.WithLabelValues(s.graphID).Observe(float64(result.SizeBytes))

	s.logger.Info().
		Str("snapshot_id", id).
		Int64("size_bytes", result.SizeBytes).
		Dur("duration", elapsed).
		Msg("Snapshot completed")

	s.record(ctx, journal.KindSnapshot, result)
	return result, nil
}

// materialize performs the copy and hash phases without holding the store
// lock.
func (s *Store) materialize(ctx context.Context, sourceDir string, snap *Snapshot) error {
	if err := copyTree(ctx, sourceDir, snap.Location); err != nil {
		return fmt.Errorf("copy tree: %w", err)
	}
	hash, err := hashTree(snap.Location)
	if err != nil {
		return fmt.Errorf("hash tree: %w", err)
	}
	size, err := treeSize(snap.Location)
	if err != nil {
		return fmt.Errorf("measure tree: %w", err)
	}
	snap.Hash = hash
	snap.SizeBytes = size
	return nil
}

// ImportSnapshot receives a snapshot shipped from a peer: the archive is
// unpacked into this store, re-hashed, and verified against the hash the
// peer recorded. On a mismatch the unpacked data is removed and ErrIntegrity
// returned. The imported snapshot keeps its original id and creation time
// but picks up this store's retention policy.
func (s *Store) ImportSnapshot(ctx context.Context, meta *Snapshot, archive io.Reader) (*Snapshot, error) {
	if meta.ID == "" || meta.Hash == "" {
		return nil, fmt.Errorf("imported snapshot must carry id and hash")
	}

	s.mu.Lock()
	if _, exists := s.snapshots[meta.ID]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("snapshot %s already present: %w", meta.ID, ErrInvalidState)
	}
	s.mu.Unlock()

	location := filepath.Join(s.dir, meta.ID)
	if err := Unpack(archive, location); err != nil {
		os.RemoveAll(location) //nolint:errcheck // best effort on a failed import
		return nil, fmt.Errorf("unpack snapshot %s: %w", meta.ID, err)
	}

	hash, err := hashTree(location)
	if err != nil {
		os.RemoveAll(location) //nolint:errcheck // best effort on a failed import
		return nil, fmt.Errorf("hash imported snapshot %s: %w", meta.ID, err)
	}
	if hash != meta.Hash {
		os.RemoveAll(location) //nolint:errcheck // corrupt import must not linger
		s.logger.Error().
			Str("snapshot_id", meta.ID).
			Str("want_hash", meta.Hash).
			Str("got_hash", hash).
			Msg("Imported snapshot failed hash verification")
		return nil, fmt.Errorf("snapshot %s: %w", meta.ID, ErrIntegrity)
	}

	size, err := treeSize(location)
	if err != nil {
		return nil, fmt.Errorf("measure imported snapshot %s: %w", meta.ID, err)
	}

	snap := meta.clone()
	snap.GraphID = s.graphID
	snap.Location = location
	snap.Status = StatusCompleted
	snap.SizeBytes = size
	snap.Error = ""
	if s.retention > 0 {
		snap.RetentionUntil = s.now().Add(s.retention)
	}

	s.mu.Lock()
	s.snapshots[snap.ID] = snap
	result := snap.clone()
	s.saveCatalogLocked()
	s.mu.Unlock()

	s.logger.Info().
		Str("snapshot_id", snap.ID).
		Int64("size_bytes", snap.SizeBytes).
		Msg("Snapshot imported from peer")
	s.record(ctx, journal.KindSnapshot, result)
	return result, nil
}

// RestoreSnapshot replaces targetDir with the contents of snapshot id. Any
// existing targetDir is moved aside to targetDir+"_pre_restore" first and
// kept. After copying, the restored tree is re-hashed and compared against
// the recorded hash; a mismatch returns ErrIntegrity with the restored data
// left in place for inspection.
func (s *Store) RestoreSnapshot(ctx context.Context, id, targetDir string) error {
	s.mu.Lock()
	snap, ok := s.snapshots[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("snapshot %s: %w", id, ErrNotFound)
	}
	if !snap.Valid(s.now()) {
		status := snap.Status
		s.mu.Unlock()
		return fmt.Errorf("snapshot %s (status %s): %w", id, status, ErrInvalidState)
	}
	location := snap.Location
	wantHash := snap.Hash
	s.mu.Unlock()

	s.logger.Info().Str("snapshot_id", id).Str("target", targetDir).Msg("Restoring snapshot")

	if _, err := os.Stat(targetDir); err == nil {
		preRestore := targetDir + "_pre_restore"
		if err := os.RemoveAll(preRestore); err != nil {
			return fmt.Errorf("clear pre-restore dir %s: %w", preRestore, err)
		}
		if err := os.Rename(targetDir, preRestore); err != nil {
			return fmt.Errorf("move aside %s: %w", targetDir, err)
		}
		s.logger.Debug().Str("target", targetDir).Str("pre_restore", preRestore).Msg("Moved existing data aside")
	}

	if err := copyTree(ctx, location, targetDir); err != nil {
		return fmt.Errorf("restore snapshot %s: %w", id, err)
	}

	gotHash, err := hashTree(targetDir)
	if err != nil {
		return fmt.Errorf("verify snapshot %s: %w", id, err)
	}
	if gotHash != wantHash {
		s.logger.Error().
			Str("snapshot_id", id).
			Str("want_hash", wantHash).
			Str("got_hash", gotHash).
			Msg("Restored data does not match recorded hash")
		return fmt.Errorf("snapshot %s: %w", id, ErrIntegrity)
	}

	s.mu.Lock()
	snap.Status = StatusRestored
	result := snap.clone()
	s.saveCatalogLocked()
	s.mu.Unlock()

	metrics.SnapshotsRestored.WithLabelValues(s.graphID, "success").Inc()
	s.logger.Info().Str("snapshot_id", id).Msg("Snapshot restored")
	s.record(ctx, journal.KindSnapshot, result)
	return nil
}

// GetSnapshot returns the snapshot with the given id.
func (s *Store) GetSnapshot(id string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snapshots[id]
	if !ok {
		return nil, fmt.Errorf("snapshot %s: %w", id, ErrNotFound)
	}
	return snap.clone(), nil
}

// ListSnapshots returns all snapshots, newest first.
func (s *Store) ListSnapshots() []*Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Snapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		out = append(out, snap.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// DeleteSnapshot removes the snapshot's data and catalog entry. It reports
// whether the snapshot was deleted: false when the id is unknown, and also
// when removing the data directory fails, in which case the catalog entry
// is kept so the snapshot stays visible.
func (s *Store) DeleteSnapshot(ctx context.Context, id string) bool {
	s.mu.Lock()
	snap, ok := s.snapshots[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	location := snap.Location
	s.mu.Unlock()

	if err := os.RemoveAll(location); err != nil {
		s.logger.Error().Err(err).Str("snapshot_id", id).Msg("Failed to remove snapshot data")
		return false
	}

	s.mu.Lock()
	delete(s.snapshots, id)
	s.saveCatalogLocked()
	s.mu.Unlock()

	s.logger.Info().Str("snapshot_id", id).Msg("Snapshot deleted")
	return true
}

// CleanupExpired deletes all snapshots past their retention deadline and
// returns how many were removed. A snapshot whose data cannot be removed is
// skipped and retried on the next sweep.
func (s *Store) CleanupExpired(ctx context.Context) int {
	now := s.now()

	s.mu.Lock()
	var expired []string
	for id, snap := range s.snapshots {
		if snap.Expired(now) {
			expired = append(expired, id)
		}
	}
	s.mu.Unlock()

	removed := 0
	for _, id := range expired {
		if s.DeleteSnapshot(ctx, id) {
			removed++
		}
	}

	if removed > 0 {
		metrics.SnapshotsExpired.Add(float64(removed))
		s.logger.Info().Int("removed", removed).Msg("Expired snapshots cleaned up")
	}
	return removed
}

// Stats summarizes the snapshots currently held by this store.
func (s *Store) Stats() StorageStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stats := StorageStats{GraphID: s.graphID, TotalSnapshots: len(s.snapshots)}
	for _, snap := range s.snapshots {
		stats.TotalSizeBytes += snap.SizeBytes
		if snap.Expired(now) {
			stats.ExpiredCount++
		}
		created := snap.CreatedAt
		if stats.Oldest == nil || created.Before(*stats.Oldest) {
			t := created
			stats.Oldest = &t
		}
		if stats.Newest == nil || created.After(*stats.Newest) {
			t := created
			stats.Newest = &t
		}
	}
	return stats
}

func (s *Store) record(ctx context.Context, kind journal.Kind, snap *Snapshot) {
	rec := journal.Record{
		ID:        uuid.NewString(),
		Kind:      kind,
		SubjectID: snap.ID,
		GraphID:   s.graphID,
		At:        s.now(),
		Payload:   snap,
	}
	if err := s.journal.Record(ctx, rec); err != nil {
		s.logger.Warn().Err(err).Str("snapshot_id", snap.ID).Msg("Failed to journal snapshot event")
	}
}

// saveCatalogLocked persists the catalog; the caller holds s.mu. Persistence
// failures are logged, not returned, so catalog writes never fail the
// snapshot operation that triggered them.
func (s *Store) saveCatalogLocked() {
	snaps := make([]*Snapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		snaps = append(snaps, snap)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].CreatedAt.Before(snaps[j].CreatedAt) })

	data, err := json.MarshalIndent(snaps, "", "  ")
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode snapshot catalog")
		return
	}
	if err := os.WriteFile(filepath.Join(s.dir, catalogFile), data, 0o640); err != nil {
		s.logger.Error().Err(err).Msg("Failed to write snapshot catalog")
	}
}

func (s *Store) loadCatalog() error {
	data, err := os.ReadFile(filepath.Join(s.dir, catalogFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read snapshot catalog: %w", err)
	}

	var snaps []*Snapshot
	if err := json.Unmarshal(data, &snaps); err != nil {
		return fmt.Errorf("decode snapshot catalog: %w", err)
	}
	for _, snap := range snaps {
		s.snapshots[snap.ID] = snap
	}
	return nil
}

func (s *Snapshot) clone() *Snapshot {
	out := *s
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
