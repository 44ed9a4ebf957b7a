// GraphVault - Snapshot, Replication, and Disaster Recovery for Graph Stores
// Copyright 2026 GraphVault Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/graphvault/graphvault

package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/graphvault/graphvault/internal/snapshot"
)

type uploadResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	SnapshotID string `json:"snapshot_id,omitempty"`
}

// handlePeerUpload receives a snapshot replicated from another GraphVault
// instance: a "snapshot" part with the metadata JSON and an "archive" part
// with the tar.gz data. The archive is imported into the local store for
// the snapshot's graph and verified against the shipped content hash.
func (s *Server) handlePeerUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	reader, err := r.MultipartReader()
	if err != nil {
		s.respondJSON(w, http.StatusBadRequest, uploadResponse{Message: "expected multipart body: " + err.Error()})
		return
	}

	// The metadata part must precede the archive so the import can stream
	// the archive without buffering it.
	metaPart, err := reader.NextPart()
	if err != nil || metaPart.FormName() != "snapshot" {
		s.respondJSON(w, http.StatusBadRequest, uploadResponse{Message: "first part must be snapshot metadata"})
		return
	}
	var meta snapshot.Snapshot
	if err := json.NewDecoder(metaPart).Decode(&meta); err != nil {
		s.respondJSON(w, http.StatusBadRequest, uploadResponse{Message: "decode snapshot metadata: " + err.Error()})
		return
	}
	if meta.GraphID == "" {
		s.respondJSON(w, http.StatusBadRequest, uploadResponse{Message: "snapshot metadata missing graph_id"})
		return
	}

	archivePart, err := reader.NextPart()
	if err != nil || archivePart.FormName() != "archive" {
		s.respondJSON(w, http.StatusBadRequest, uploadResponse{Message: "second part must be the archive"})
		return
	}

	store, err := s.snapshots.RegisterGraph(meta.GraphID)
	if err != nil {
		s.respondJSON(w, http.StatusInternalServerError, uploadResponse{Message: err.Error()})
		return
	}

	imported, err := store.ImportSnapshot(r.Context(), &meta, archivePart)
	if err != nil {
		s.logger.Error().Err(err).
			Str("graph_id", meta.GraphID).
			Str("snapshot_id", meta.ID).
			Msg("Peer snapshot import failed")

		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, snapshot.ErrIntegrity):
			status = http.StatusUnprocessableEntity
		case errors.Is(err, snapshot.ErrInvalidState):
			status = http.StatusConflict
		}
		s.respondJSON(w, status, uploadResponse{Message: err.Error()})
		return
	}

	s.respondJSON(w, http.StatusOK, uploadResponse{Success: true, SnapshotID: imported.ID})
}
