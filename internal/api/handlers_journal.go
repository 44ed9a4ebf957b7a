// GraphVault - Snapshot, Replication, and Disaster Recovery for Graph Stores
// Copyright 2026 GraphVault Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/graphvault/graphvault

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/graphvault/graphvault/internal/journal"
)

// handleJournal lists recent journal records of one kind, newest first.
// A disabled journal answers with an empty list.
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	kind := journal.Kind(chi.URLParam(r, "kind"))
	switch kind {
	case journal.KindSnapshot, journal.KindReplication, journal.KindRecoveryPoint, journal.KindHealth:
	default:
		s.respondError(w, http.StatusBadRequest, "unknown journal kind "+string(kind))
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	records, err := s.journal.Recent(r.Context(), kind, limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "read journal: "+err.Error())
		return
	}
	if records == nil {
		records = []journal.Record{}
	}
	s.respondJSON(w, http.StatusOK, records)
}
