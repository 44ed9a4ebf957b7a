// GraphVault - Snapshot, Replication, and Disaster Recovery for Graph Stores
// Copyright 2026 GraphVault Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/graphvault/graphvault

package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/graphvault/graphvault/internal/recovery"
)

type createPointRequest struct {
	GraphIDs    []string          `json:"graph_ids,omitempty"`
	Description string            `json:"description"`
	CreatedBy   string            `json:"created_by,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (s *Server) handleRecoveryPointCreate(w http.ResponseWriter, r *http.Request) {
	var req createPointRequest
	if err := decodeJSON(r, &req); err != nil && err != io.EOF {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.CreatedBy == "" {
		req.CreatedBy = "api"
	}

	point, err := s.recovery.CreateRecoveryPoint(r.Context(), recovery.PointRequest{
		GraphIDs:    req.GraphIDs,
		Description: req.Description,
		CreatedBy:   req.CreatedBy,
		Metadata:    req.Metadata,
	})
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, point)
}

func (s *Server) handleRecoveryPointList(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.recovery.ListRecoveryPoints())
}

func (s *Server) handleRecoveryPointGet(w http.ResponseWriter, r *http.Request) {
	point, err := s.recovery.GetRecoveryPoint(chi.URLParam(r, "pointID"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, point)
}

func (s *Server) handleRecoveryPointValidate(w http.ResponseWriter, r *http.Request) {
	validation, err := s.recovery.ValidateRecoveryPoint(r.Context(), chi.URLParam(r, "pointID"))
	if err != nil {
		s.respondDomainError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, validation)
}

type failoverRequest struct {
	PointID string `json:"point_id"`
}

func (s *Server) handleFailover(w http.ResponseWriter, r *http.Request) {
	var req failoverRequest
	if err := decodeJSON(r, &req); err != nil && err != io.EOF {
		s.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := s.recovery.InitiateFailover(r.Context(), req.PointID)
	if err != nil && result == nil {
		s.respondDomainError(w, err)
		return
	}
	// Partial failures return the result with a 207 so callers can see
	// which graphs came back and which did not.
	status := http.StatusOK
	if err != nil {
		status = http.StatusMultiStatus
	}
	s.respondJSON(w, status, result)
}

func (s *Server) handleRecoveryStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.recovery.Status())
}

func (s *Server) handleSystemHealth(w http.ResponseWriter, r *http.Request) {
	report := s.recovery.HealthCheck(r.Context())
	status := http.StatusOK
	if report.Overall == recovery.HealthCritical {
		status = http.StatusServiceUnavailable
	}
	s.respondJSON(w, status, report)
}
