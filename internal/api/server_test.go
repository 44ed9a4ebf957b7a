// GraphVault - Snapshot, Replication, and Disaster Recovery for Graph Stores
// Copyright 2026 GraphVault Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/graphvault/graphvault

package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/graphvault/graphvault/internal/config"
	"github.com/graphvault/graphvault/internal/journal"
	"github.com/graphvault/graphvault/internal/recovery"
	"github.com/graphvault/graphvault/internal/replication"
	"github.com/graphvault/graphvault/internal/snapshot"
)

type testEnv struct {
	server   *httptest.Server
	snaps    *snapshot.Coordinator
	repl     *replication.Coordinator
	workdirs string
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWith(t, config.ServerConfig{
		RateLimit:         1000,
		RateWindowSeconds: 60,
	}, nil)
}

func newTestEnvWith(t *testing.T, cfg config.ServerConfig, rec journal.Recorder) *testEnv {
	t.Helper()

	snaps := snapshot.NewCoordinator(snapshot.CoordinatorConfig{
		BaseDir:   t.TempDir(),
		Retention: time.Hour,
	}, nil)
	repl := replication.NewCoordinator(nil, nil)

	workdirs := t.TempDir()
	workdir := func(graphID string) string { return filepath.Join(workdirs, graphID) }

	validator := recovery.NewValidator(func(context.Context, string) error { return nil }, nil)
	recov := recovery.NewCoordinator(snaps, validator, workdir, nil)

	srv := NewServer(cfg, snaps, repl, recov, rec, workdir)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, snaps: snaps, repl: repl, workdirs: workdirs}
}

func (e *testEnv) seedGraph(t *testing.T, graphID, content string) {
	t.Helper()
	dir := filepath.Join(e.workdirs, graphID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "graph.json"), []byte(content), 0o640); err != nil {
		t.Fatal(err)
	}
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	return resp, data
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, body := doJSON(t, http.MethodGet, env.server.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"ok"`) {
		t.Errorf("body = %s", body)
	}
}

func TestSnapshotLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.seedGraph(t, "graph-a", "graph state")
	base := env.server.URL + "/api/v1/graphs/graph-a/snapshots"

	// Create.
	resp, body := doJSON(t, http.MethodPost, base, map[string]any{
		"metadata": map[string]string{"trigger": "api"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", resp.StatusCode, body)
	}
	var snap snapshot.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Status != snapshot.StatusCompleted {
		t.Errorf("snapshot status = %s", snap.Status)
	}

	// List.
	resp, body = doJSON(t, http.MethodGet, base, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var listed []snapshot.Snapshot
	if err := json.Unmarshal(body, &listed); err != nil {
		t.Fatal(err)
	}
	if len(listed) != 1 || listed[0].ID != snap.ID {
		t.Errorf("listed = %+v", listed)
	}

	// Get.
	resp, _ = doJSON(t, http.MethodGet, base+"/"+snap.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("get status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, base+"/missing", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get missing status = %d, want 404", resp.StatusCode)
	}

	// Restore after corrupting the working dir.
	env.seedGraph(t, "graph-a", "corrupted")
	resp, body = doJSON(t, http.MethodPost, base+"/"+snap.ID+"/restore", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("restore status = %d, body %s", resp.StatusCode, body)
	}
	restored, err := os.ReadFile(filepath.Join(env.workdirs, "graph-a", "graph.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(restored) != "graph state" {
		t.Errorf("restored content = %q", restored)
	}

	// Delete. Restore flipped the snapshot to restored; deletion is
	// independent of lifecycle state.
	resp, _ = doJSON(t, http.MethodDelete, base+"/"+snap.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodDelete, base+"/"+snap.ID, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", resp.StatusCode)
	}
}

func TestSnapshotEndpointsUnknownGraph(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := doJSON(t, http.MethodGet, env.server.URL+"/api/v1/graphs/nope/snapshots", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("list status = %d, want 404", resp.StatusCode)
	}
}

func TestTargetManagement(t *testing.T) {
	env := newTestEnv(t)
	base := env.server.URL + "/api/v1/replication/targets"

	resp, body := doJSON(t, http.MethodPost, base, registerTargetRequest{
		ID: "dr-site", Name: "DR Site", URL: "http://dr.example.com:8480", Enabled: true, MaxConcurrent: 4,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", resp.StatusCode, body)
	}

	// Re-registering the same id conflicts and keeps the original.
	resp, _ = doJSON(t, http.MethodPost, base, registerTargetRequest{
		ID: "dr-site", Name: "Impostor", URL: "http://other.example.com:8480", Enabled: true,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodGet, base, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatal(resp.StatusCode)
	}
	var targets []replication.TargetView
	if err := json.Unmarshal(body, &targets); err != nil {
		t.Fatal(err)
	}
	if len(targets) != 1 || targets[0].ID != "dr-site" || targets[0].Status != replication.TargetUnknown {
		t.Errorf("targets = %+v", targets)
	}
	if targets[0].URL != "http://dr.example.com:8480" || targets[0].MaxConcurrent != 4 {
		t.Errorf("target after duplicate register = %+v", targets[0])
	}

	resp, _ = doJSON(t, http.MethodDelete, base+"/dr-site", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("remove status = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodDelete, base+"/dr-site", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second remove status = %d, want 404", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, base, registerTargetRequest{Name: "no id"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid register status = %d, want 400", resp.StatusCode)
	}
}

func TestRecoveryFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.seedGraph(t, "graph-a", "known good")
	if _, err := env.snaps.RegisterGraph("graph-a"); err != nil {
		t.Fatal(err)
	}

	// No recovery points yet: failover conflicts.
	resp, _ := doJSON(t, http.MethodPost, env.server.URL+"/api/v1/recovery/failover", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("failover without points status = %d, want 409", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodPost, env.server.URL+"/api/v1/recovery/points", createPointRequest{Description: "pre-upgrade"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create point status = %d, body %s", resp.StatusCode, body)
	}
	var point recovery.RecoveryPoint
	if err := json.Unmarshal(body, &point); err != nil {
		t.Fatal(err)
	}

	resp, body = doJSON(t, http.MethodPost, env.server.URL+"/api/v1/recovery/points/"+point.ID+"/validate", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"valid":true`) {
		t.Errorf("validate status = %d, body %s", resp.StatusCode, body)
	}

	env.seedGraph(t, "graph-a", "corrupted")
	resp, body = doJSON(t, http.MethodPost, env.server.URL+"/api/v1/recovery/failover", failoverRequest{PointID: point.ID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("failover status = %d, body %s", resp.StatusCode, body)
	}

	restored, err := os.ReadFile(filepath.Join(env.workdirs, "graph-a", "graph.json"))
	if err != nil {
		t.Fatal(err)
	}
	if string(restored) != "known good" {
		t.Errorf("content after failover = %q", restored)
	}

	resp, body = doJSON(t, http.MethodGet, env.server.URL+"/api/v1/recovery/status", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), point.ID) {
		t.Errorf("status = %d, body %s", resp.StatusCode, body)
	}
}

func TestSystemHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, body := doJSON(t, http.MethodGet, env.server.URL+"/api/v1/recovery/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `"overall_status"`) {
		t.Errorf("body = %s", body)
	}
}

func uploadSnapshot(t *testing.T, url string, meta *snapshot.Snapshot, location string) *http.Response {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	metaPart, err := mw.CreateFormField("snapshot")
	if err != nil {
		t.Fatal(err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := metaPart.Write(metaJSON); err != nil {
		t.Fatal(err)
	}

	archivePart, err := mw.CreateFormFile("archive", "snapshot.tar.gz")
	if err != nil {
		t.Fatal(err)
	}
	if err := snapshot.Pack(location, archivePart); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Post(url+"/api/v1/backup/snapshots/upload", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestPeerUpload(t *testing.T) {
	// Source instance takes a snapshot; destination instance receives it.
	source := newTestEnv(t)
	source.seedGraph(t, "graph-a", "replicate me")
	store, err := source.snaps.RegisterGraph("graph-a")
	if err != nil {
		t.Fatal(err)
	}
	snap, err := store.CreateSnapshot(context.Background(), filepath.Join(source.workdirs, "graph-a"), nil)
	if err != nil {
		t.Fatal(err)
	}

	dest := newTestEnv(t)
	resp := uploadSnapshot(t, dest.server.URL, snap, snap.Location)
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("upload status = %d, body %s", resp.StatusCode, body)
	}

	destStore := dest.snaps.StoreFor("graph-a")
	if destStore == nil {
		t.Fatal("destination did not register the graph")
	}
	imported, err := destStore.GetSnapshot(snap.ID)
	if err != nil {
		t.Fatalf("imported snapshot missing: %v", err)
	}
	if imported.Hash != snap.Hash {
		t.Errorf("imported hash = %s, want %s", imported.Hash, snap.Hash)
	}

	// Duplicate upload conflicts.
	resp = uploadSnapshot(t, dest.server.URL, snap, snap.Location)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate upload status = %d, want 409", resp.StatusCode)
	}
}

func TestPeerUploadIntegrityRejected(t *testing.T) {
	source := newTestEnv(t)
	source.seedGraph(t, "graph-a", "replicate me")
	store, err := source.snaps.RegisterGraph("graph-a")
	if err != nil {
		t.Fatal(err)
	}
	snap, err := store.CreateSnapshot(context.Background(), filepath.Join(source.workdirs, "graph-a"), nil)
	if err != nil {
		t.Fatal(err)
	}

	tampered := *snap
	tampered.Hash = fmt.Sprintf("%064d", 0)

	dest := newTestEnv(t)
	resp := uploadSnapshot(t, dest.server.URL, &tampered, snap.Location)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("tampered upload status = %d, want 422", resp.StatusCode)
	}
}

func TestEndToEndReplication(t *testing.T) {
	// Two full instances: the source replicates to the destination through
	// the real client, upload endpoint, and import path.
	source := newTestEnv(t)
	dest := newTestEnv(t)

	source.seedGraph(t, "graph-a", "full loop")
	store, err := source.snaps.RegisterGraph("graph-a")
	if err != nil {
		t.Fatal(err)
	}
	snap, err := store.CreateSnapshot(context.Background(), filepath.Join(source.workdirs, "graph-a"), nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := source.repl.RegisterTarget(replication.NewTarget("peer", "peer", dest.server.URL, "", true, 0)); err != nil {
		t.Fatal(err)
	}

	result, err := source.repl.ReplicatorFor("graph-a").ReplicateSnapshot(context.Background(), snap)
	if err != nil {
		t.Fatalf("replicate failed: %v", err)
	}
	if result.Succeeded != 1 {
		t.Fatalf("result = %+v", result)
	}

	imported, err := dest.snaps.StoreFor("graph-a").GetSnapshot(snap.ID)
	if err != nil {
		t.Fatalf("snapshot not on destination: %v", err)
	}
	if imported.Hash != snap.Hash {
		t.Errorf("hash mismatch after replication")
	}
}

func TestPeerEndpointsRequireCredential(t *testing.T) {
	env := newTestEnvWith(t, config.ServerConfig{
		RateLimit:         1000,
		RateWindowSeconds: 60,
		APIKey:            "s3cret",
	}, nil)

	// Health without the credential is rejected; with it, allowed.
	resp, _ := doJSON(t, http.MethodGet, env.server.URL+"/health", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bare health status = %d, want 401", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/health", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer s3cret")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Errorf("authorized health status = %d, want 200", authed.StatusCode)
	}

	// The upload endpoint is guarded the same way.
	resp, err = http.Post(env.server.URL+"/api/v1/backup/snapshots/upload", "multipart/form-data", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bare upload status = %d, want 401", resp.StatusCode)
	}

	// Management routes are not part of the peer surface.
	resp, _ = doJSON(t, http.MethodGet, env.server.URL+"/api/v1/replication/targets", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("management route status = %d, want 200", resp.StatusCode)
	}
}

func TestCredentialedReplication(t *testing.T) {
	// The destination demands a credential; the source target carries it.
	source := newTestEnv(t)
	dest := newTestEnvWith(t, config.ServerConfig{
		RateLimit:         1000,
		RateWindowSeconds: 60,
		APIKey:            "peer-key",
	}, nil)

	source.seedGraph(t, "graph-a", "guarded loop")
	store, err := source.snaps.RegisterGraph("graph-a")
	if err != nil {
		t.Fatal(err)
	}
	snap, err := store.CreateSnapshot(context.Background(), filepath.Join(source.workdirs, "graph-a"), nil)
	if err != nil {
		t.Fatal(err)
	}

	// Without the credential every attempt is rejected.
	if err := source.repl.RegisterTarget(replication.NewTarget("bare", "bare", dest.server.URL, "", true, 0)); err != nil {
		t.Fatal(err)
	}
	result, err := source.repl.ReplicatorFor("graph-a").ReplicateSnapshot(context.Background(), snap)
	if err != nil {
		t.Fatal(err)
	}
	if result.Succeeded != 0 {
		t.Fatalf("replication without credential succeeded: %+v", result)
	}

	if err := source.repl.RemoveTarget("bare"); err != nil {
		t.Fatal(err)
	}
	if err := source.repl.RegisterTarget(replication.NewTarget("keyed", "keyed", dest.server.URL, "peer-key", true, 0)); err != nil {
		t.Fatal(err)
	}
	result, err = source.repl.ReplicatorFor("graph-a").ReplicateSnapshot(context.Background(), snap)
	if err != nil {
		t.Fatal(err)
	}
	if result.Succeeded != 1 {
		t.Fatalf("credentialed replication result = %+v", result)
	}
	if _, err := dest.snaps.StoreFor("graph-a").GetSnapshot(snap.ID); err != nil {
		t.Errorf("snapshot not on destination: %v", err)
	}
}

func TestJournalEndpoint(t *testing.T) {
	rec, err := journal.Open(journal.Options{Path: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { rec.Close() })

	env := newTestEnvWith(t, config.ServerConfig{
		RateLimit:         1000,
		RateWindowSeconds: 60,
	}, rec)

	for i := 0; i < 3; i++ {
		err := rec.Record(context.Background(), journal.Record{
			Kind:      journal.KindSnapshot,
			SubjectID: fmt.Sprintf("snap_%d", i),
			GraphID:   "graph-a",
			At:        time.Date(2026, 8, 1, 12, 0, i, 0, time.UTC),
			Payload:   map[string]string{"seq": fmt.Sprint(i)},
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	resp, body := doJSON(t, http.MethodGet, env.server.URL+"/api/v1/journal/snapshot?limit=2", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	var records []journal.Record
	if err := json.Unmarshal(body, &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[0].SubjectID != "snap_2" || records[1].SubjectID != "snap_1" {
		t.Errorf("records = %+v", records)
	}

	resp, _ = doJSON(t, http.MethodGet, env.server.URL+"/api/v1/journal/nonsense", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown kind status = %d, want 400", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, env.server.URL+"/api/v1/journal/snapshot?limit=0", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", resp.StatusCode)
	}

	// A disabled journal still answers, with an empty list.
	nop := newTestEnv(t)
	resp, body = doJSON(t, http.MethodGet, nop.server.URL+"/api/v1/journal/snapshot", nil)
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "[]" {
		t.Errorf("nop journal status = %d, body %s", resp.StatusCode, body)
	}
}
