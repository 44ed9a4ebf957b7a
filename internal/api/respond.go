// GraphVault - Snapshot, Replication, and Disaster Recovery for Graph Stores
// Copyright 2026 GraphVault Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/graphvault/graphvault

package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/graphvault/graphvault/internal/recovery"
	"github.com/graphvault/graphvault/internal/replication"
	"github.com/graphvault/graphvault/internal/snapshot"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, errorResponse{Error: msg})
}

// respondDomainError maps the sentinel errors of the coordinators onto HTTP
// status codes.
func (s *Server) respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, snapshot.ErrNotFound),
		errors.Is(err, replication.ErrTargetNotFound),
		errors.Is(err, recovery.ErrPointNotFound),
		errors.Is(err, recovery.ErrGraphNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, snapshot.ErrInvalidState),
		errors.Is(err, replication.ErrNotReplicable),
		errors.Is(err, replication.ErrTargetExists),
		errors.Is(err, recovery.ErrBusy),
		errors.Is(err, recovery.ErrPointInvalid),
		errors.Is(err, recovery.ErrNoRecoveryPoints):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, snapshot.ErrIntegrity):
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, replication.ErrNoTargets),
		errors.Is(err, recovery.ErrGraphCritical):
		s.respondError(w, http.StatusPreconditionFailed, err.Error())
	default:
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close() //nolint:errcheck // server closes anyway
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
