// GraphVault - Snapshot, Replication, and Disaster Recovery for Graph Stores
// Copyright 2026 GraphVault Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/graphvault/graphvault

package snapshot

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T, retention time.Duration) *Store {
	t.Helper()
	store, err := NewStore("test-graph", t.TempDir(), retention, nil)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store
}

func writeTestTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatalf("mkdir for %s failed: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
			t.Fatalf("write %s failed: %v", name, err)
		}
	}
	return dir
}

func TestCreateSnapshot(t *testing.T) {
	store := newTestStore(t, time.Hour)
	src := writeTestTree(t, map[string]string{
		"entities.json":  `{"entities": []}`,
		"sub/edges.json": `{"edges": []}`,
	})

	snap, err := store.CreateSnapshot(context.Background(), src, map[string]string{"trigger": "manual"})
	if err != nil {
		t.Fatalf("CreateSnapshot failed: %v", err)
	}

	if snap.Status != StatusCompleted {
		t.Errorf("status = %s, want %s", snap.Status, StatusCompleted)
	}
	if snap.GraphID != "test-graph" {
		t.Errorf("graph id = %s, want test-graph", snap.GraphID)
	}
	if snap.Hash == "" {
		t.Error("expected non-empty content hash")
	}
	if snap.SizeBytes == 0 {
		t.Error("expected non-zero size")
	}
	if snap.RetentionUntil.Sub(snap.CreatedAt) != time.Hour {
		t.Errorf("retention window = %v, want 1h", snap.RetentionUntil.Sub(snap.CreatedAt))
	}
	if snap.Metadata["trigger"] != "manual" {
		t.Errorf("metadata trigger = %q, want manual", snap.Metadata["trigger"])
	}

	if _, err := os.Stat(filepath.Join(snap.Location, "sub", "edges.json")); err != nil {
		t.Errorf("snapshot data missing: %v", err)
	}
}

func TestCreateSnapshotMissingSource(t *testing.T) {
	store := newTestStore(t, time.Hour)

	if _, err := store.CreateSnapshot(context.Background(), filepath.Join(t.TempDir(), "absent"), nil); err == nil {
		t.Fatal("expected error for missing source dir")
	}
}

func TestHashIgnoresWriteOrder(t *testing.T) {
	store := newTestStore(t, time.Hour)

	first := writeTestTree(t, map[string]string{"a.json": "alpha", "b.json": "beta"})
	second := t.TempDir()
	// Write in the opposite order; the digest must not change.
	if err := os.WriteFile(filepath.Join(second, "b.json"), []byte("beta"), 0o640); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(second, "a.json"), []byte("alpha"), 0o640); err != nil {
		t.Fatal(err)
	}

	snap1, err := store.CreateSnapshot(context.Background(), first, nil)
	if err != nil {
		t.Fatalf("first snapshot failed: %v", err)
	}
	snap2, err := store.CreateSnapshot(context.Background(), second, nil)
	if err != nil {
		t.Fatalf("second snapshot failed: %v", err)
	}

	if snap1.Hash != snap2.Hash {
		t.Errorf("hashes differ: %s vs %s", snap1.Hash, snap2.Hash)
	}
}

func TestRestoreSnapshot(t *testing.T) {
	store := newTestStore(t, time.Hour)
	src := writeTestTree(t, map[string]string{"graph.json": "original"})

	snap, err := store.CreateSnapshot(context.Background(), src, nil)
	if err != nil {
		t.Fatalf("CreateSnapshot failed: %v", err)
	}

	target := filepath.Join(t.TempDir(), "workdir")
	if err := os.MkdirAll(target, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(target, "graph.json"), []byte("modified"), 0o640); err != nil {
		t.Fatal(err)
	}

	if err := store.RestoreSnapshot(context.Background(), snap.ID, target); err != nil {
		t.Fatalf("RestoreSnapshot failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(target, "graph.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "original" {
		t.Errorf("restored content = %q, want original", data)
	}

	// The previous working dir is kept alongside.
	preserved, err := os.ReadFile(filepath.Join(target+"_pre_restore", "graph.json"))
	if err != nil {
		t.Fatalf("pre-restore dir missing: %v", err)
	}
	if string(preserved) != "modified" {
		t.Errorf("pre-restore content = %q, want modified", preserved)
	}

	got, err := store.GetSnapshot(snap.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusRestored {
		t.Errorf("status after restore = %s, want %s", got.Status, StatusRestored)
	}
}

func TestRestoreSnapshotNotFound(t *testing.T) {
	store := newTestStore(t, time.Hour)

	err := store.RestoreSnapshot(context.Background(), "no-such-snapshot", t.TempDir())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRestoreSnapshotMissingData(t *testing.T) {
	store := newTestStore(t, time.Hour)
	src := writeTestTree(t, map[string]string{"graph.json": "data"})

	snap, err := store.CreateSnapshot(context.Background(), src, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(snap.Location); err != nil {
		t.Fatal(err)
	}

	err = store.RestoreSnapshot(context.Background(), snap.ID, t.TempDir())
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("error = %v, want ErrInvalidState", err)
	}
}

func TestRestoreSnapshotIntegrityMismatch(t *testing.T) {
	store := newTestStore(t, time.Hour)
	src := writeTestTree(t, map[string]string{"graph.json": "data"})

	snap, err := store.CreateSnapshot(context.Background(), src, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Corrupt the stored copy after the hash was recorded.
	if err := os.WriteFile(filepath.Join(snap.Location, "graph.json"), []byte("corrupted"), 0o640); err != nil {
		t.Fatal(err)
	}

	err = store.RestoreSnapshot(context.Background(), snap.ID, filepath.Join(t.TempDir(), "workdir"))
	if !errors.Is(err, ErrIntegrity) {
		t.Errorf("error = %v, want ErrIntegrity", err)
	}
}

func TestDeleteSnapshot(t *testing.T) {
	store := newTestStore(t, time.Hour)
	src := writeTestTree(t, map[string]string{"graph.json": "data"})

	snap, err := store.CreateSnapshot(context.Background(), src, nil)
	if err != nil {
		t.Fatal(err)
	}

	if !store.DeleteSnapshot(context.Background(), snap.ID) {
		t.Error("DeleteSnapshot returned false for existing snapshot")
	}
	if _, err := os.Stat(snap.Location); !os.IsNotExist(err) {
		t.Error("snapshot data still on disk after delete")
	}
	if _, err := store.GetSnapshot(snap.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSnapshot after delete = %v, want ErrNotFound", err)
	}

	if store.DeleteSnapshot(context.Background(), "no-such-snapshot") {
		t.Error("DeleteSnapshot returned true for unknown id")
	}
}

func TestExpiryBoundaryIsStrict(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	snap := &Snapshot{RetentionUntil: base}

	if snap.Expired(base) {
		t.Error("snapshot expired exactly at its deadline; boundary must be strict")
	}
	if !snap.Expired(base.Add(time.Nanosecond)) {
		t.Error("snapshot not expired just past its deadline")
	}
	if (&Snapshot{}).Expired(base) {
		t.Error("snapshot with no retention deadline reported expired")
	}
}

func TestCleanupExpired(t *testing.T) {
	store := newTestStore(t, time.Hour)
	src := writeTestTree(t, map[string]string{"graph.json": "data"})

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	expired, err := store.CreateSnapshot(context.Background(), src, nil)
	if err != nil {
		t.Fatal(err)
	}

	now = now.Add(30 * time.Minute)
	kept, err := store.CreateSnapshot(context.Background(), src, nil)
	if err != nil {
		t.Fatal(err)
	}

	// 90 minutes after the first snapshot: only it is past retention.
	now = now.Add(time.Hour)
	if removed := store.CleanupExpired(context.Background()); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	if _, err := store.GetSnapshot(expired.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expired snapshot still present: %v", err)
	}
	if _, err := store.GetSnapshot(kept.ID); err != nil {
		t.Errorf("unexpired snapshot removed: %v", err)
	}
}

func TestListSnapshotsNewestFirst(t *testing.T) {
	store := newTestStore(t, time.Hour)
	src := writeTestTree(t, map[string]string{"graph.json": "data"})

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if _, err := store.CreateSnapshot(context.Background(), src, nil); err != nil {
			t.Fatal(err)
		}
		now = now.Add(time.Minute)
	}

	snaps := store.ListSnapshots()
	if len(snaps) != 3 {
		t.Fatalf("len = %d, want 3", len(snaps))
	}
	for i := 1; i < len(snaps); i++ {
		if snaps[i].CreatedAt.After(snaps[i-1].CreatedAt) {
			t.Error("snapshots not sorted newest first")
		}
	}
}

func TestCatalogSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore("test-graph", dir, time.Hour, nil)
	if err != nil {
		t.Fatal(err)
	}
	src := writeTestTree(t, map[string]string{"graph.json": "data"})

	snap, err := store.CreateSnapshot(context.Background(), src, nil)
	if err != nil {
		t.Fatal(err)
	}

	reloaded, err := NewStore("test-graph", dir, time.Hour, nil)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	got, err := reloaded.GetSnapshot(snap.ID)
	if err != nil {
		t.Fatalf("snapshot missing after reload: %v", err)
	}
	if got.Hash != snap.Hash {
		t.Errorf("hash after reload = %s, want %s", got.Hash, snap.Hash)
	}
	if got.Status != StatusCompleted {
		t.Errorf("status after reload = %s, want %s", got.Status, StatusCompleted)
	}
}

func TestImportSnapshot(t *testing.T) {
	source := newTestStore(t, time.Hour)
	src := writeTestTree(t, map[string]string{"graph.json": "data"})

	snap, err := source.CreateSnapshot(context.Background(), src, nil)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := Pack(snap.Location, &buf); err != nil {
		t.Fatal(err)
	}

	dest := newTestStore(t, 2*time.Hour)
	imported, err := dest.ImportSnapshot(context.Background(), snap, &buf)
	if err != nil {
		t.Fatalf("ImportSnapshot failed: %v", err)
	}

	if imported.ID != snap.ID {
		t.Errorf("imported id = %s, want %s", imported.ID, snap.ID)
	}
	if imported.Hash != snap.Hash {
		t.Errorf("imported hash = %s, want %s", imported.Hash, snap.Hash)
	}
	if imported.Status != StatusCompleted {
		t.Errorf("imported status = %s, want completed", imported.Status)
	}
	if got, err := dest.GetSnapshot(snap.ID); err != nil || !got.Valid(time.Now()) {
		t.Errorf("imported snapshot not restorable: %+v, %v", got, err)
	}

	// Importing the same id twice is rejected.
	var again bytes.Buffer
	if err := Pack(snap.Location, &again); err != nil {
		t.Fatal(err)
	}
	if _, err := dest.ImportSnapshot(context.Background(), snap, &again); !errors.Is(err, ErrInvalidState) {
		t.Errorf("duplicate import = %v, want ErrInvalidState", err)
	}
}

func TestImportSnapshotHashMismatch(t *testing.T) {
	source := newTestStore(t, time.Hour)
	src := writeTestTree(t, map[string]string{"graph.json": "data"})

	snap, err := source.CreateSnapshot(context.Background(), src, nil)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := Pack(snap.Location, &buf); err != nil {
		t.Fatal(err)
	}

	tampered := snap.clone()
	tampered.Hash = "0000000000000000000000000000000000000000000000000000000000000000"

	dest := newTestStore(t, time.Hour)
	if _, err := dest.ImportSnapshot(context.Background(), tampered, &buf); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("import with wrong hash = %v, want ErrIntegrity", err)
	}
	// Nothing usable left behind.
	if _, err := dest.GetSnapshot(tampered.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("tampered snapshot registered: %v", err)
	}
}

func TestStats(t *testing.T) {
	store := newTestStore(t, time.Hour)
	src := writeTestTree(t, map[string]string{"graph.json": "data"})

	if stats := store.Stats(); stats.TotalSnapshots != 0 || stats.Oldest != nil {
		t.Errorf("empty store stats = %+v", stats)
	}

	for i := 0; i < 2; i++ {
		if _, err := store.CreateSnapshot(context.Background(), src, nil); err != nil {
			t.Fatal(err)
		}
	}

	stats := store.Stats()
	if stats.TotalSnapshots != 2 {
		t.Errorf("total snapshots = %d, want 2", stats.TotalSnapshots)
	}
	if stats.TotalSizeBytes == 0 {
		t.Error("expected non-zero total size")
	}
	if stats.Oldest == nil || stats.Newest == nil {
		t.Fatal("expected oldest and newest timestamps")
	}
	if stats.Oldest.After(*stats.Newest) {
		t.Error("oldest is after newest")
	}
}
