// GraphVault - Snapshot, Replication, and Disaster Recovery for Graph Stores
// Copyright 2026 GraphVault Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/graphvault/graphvault

package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type createSnapshotRequest struct {
	Metadata map[string]string `json:"metadata"`
}

func (s *Server) handleSnapshotCreate(w http.ResponseWriter, r *http.Request) {
	graphID := chi.URLParam(r, "graphID")

	var req createSnapshotRequest
	if err := decodeJSON(r, &req); err != nil && err != io.EOF {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	store, err := s.snapshots.RegisterGraph(graphID)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	snap, err := store.CreateSnapshot(r.Context(), s.workdir(graphID), req.Metadata)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleSnapshotList(w http.ResponseWriter, r *http.Request) {
	store := s.snapshots.StoreFor(chi.URLParam(r, "graphID"))
	if store == nil {
		s.respondError(w, http.StatusNotFound, "graph not registered")
		return
	}
	s.respondJSON(w, http.StatusOK, store.ListSnapshots())
}

func (s *Server) handleSnapshotGet(w http.ResponseWriter, r *http.Request) {
	store := s.snapshots.StoreFor(chi.URLParam(r, "graphID"))
	if store == nil {
		s.respondError(w, http.StatusNotFound, "graph not registered")
		return
	}

	snap, err := store.GetSnapshot(chi.URLParam(r, "snapshotID"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSnapshotDelete(w http.ResponseWriter, r *http.Request) {
	store := s.snapshots.StoreFor(chi.URLParam(r, "graphID"))
	if store == nil {
		s.respondError(w, http.StatusNotFound, "graph not registered")
		return
	}

	if !store.DeleteSnapshot(r.Context(), chi.URLParam(r, "snapshotID")) {
		s.respondError(w, http.StatusNotFound, "snapshot not found or not deletable")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleSnapshotRestore(w http.ResponseWriter, r *http.Request) {
	graphID := chi.URLParam(r, "graphID")
	store := s.snapshots.StoreFor(graphID)
	if store == nil {
		s.respondError(w, http.StatusNotFound, "graph not registered")
		return
	}

	snapshotID := chi.URLParam(r, "snapshotID")
	if err := store.RestoreSnapshot(r.Context(), snapshotID, s.workdir(graphID)); err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{
		"snapshot_id": snapshotID,
		"restored_to": s.workdir(graphID),
	})
}

func (s *Server) handleBackupStats(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.snapshots.TotalStats())
}

func (s *Server) handleBackupCleanup(w http.ResponseWriter, r *http.Request) {
	removed := s.snapshots.CleanupAll(r.Context())
	s.respondJSON(w, http.StatusOK, map[string]any{"removed": removed})
}
