// GraphVault - Snapshot, Replication, and Disaster Recovery for Graph Stores
// Copyright 2026 GraphVault Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/graphvault/graphvault

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/graphvault/graphvault/internal/replication"
)

type registerTargetRequest struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	URL           string `json:"url"`
	Credential    string `json:"credential,omitempty"`
	Enabled       bool   `json:"enabled"`
	MaxConcurrent int    `json:"max_concurrent,omitempty"`
}

func (s *Server) handleTargetRegister(w http.ResponseWriter, r *http.Request) {
	var req registerTargetRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	target := replication.NewTarget(req.ID, req.Name, req.URL, req.Credential, req.Enabled, req.MaxConcurrent)
	if err := s.replication.RegisterTarget(target); err != nil {
		if errors.Is(err, replication.ErrTargetExists) {
			s.respondDomainError(w, err)
			return
		}
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, target.View())
}

func (s *Server) handleTargetList(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.replication.Targets())
}

func (s *Server) handleTargetRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.replication.RemoveTarget(chi.URLParam(r, "targetID")); err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

func (s *Server) handleTargetHealth(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "targetID")

	// Probe through a throwaway replicator so the shared Target picks up
	// the result regardless of which graphs replicate to it.
	views := s.replication.CheckAllHealth(r.Context())
	view, ok := views[targetID]
	if !ok {
		s.respondError(w, http.StatusNotFound, "replication target not found")
		return
	}
	s.respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleReplicationHealthAll(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.replication.CheckAllHealth(r.Context()))
}

func (s *Server) handleReplicationMetrics(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.replication.AggregateMetrics())
}

func (s *Server) handleReplicate(w http.ResponseWriter, r *http.Request) {
	graphID := chi.URLParam(r, "graphID")
	store := s.snapshots.StoreFor(graphID)
	if store == nil {
		s.respondError(w, http.StatusNotFound, "graph not registered")
		return
	}

	snap, err := store.GetSnapshot(chi.URLParam(r, "snapshotID"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}

	result, err := s.replication.ReplicatorFor(graphID).ReplicateSnapshot(r.Context(), snap)
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleReplicationStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.replication.ReplicatorFor(chi.URLParam(r, "graphID")).Status())
}

func (s *Server) handleReplicationLogs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	s.respondJSON(w, http.StatusOK, s.replication.ReplicatorFor(chi.URLParam(r, "graphID")).RecentLogs(limit))
}
