// GraphVault - Snapshot, Replication, and Disaster Recovery for Graph Stores
// Copyright 2026 GraphVault Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/graphvault/graphvault

// Package api exposes the GraphVault HTTP surface: snapshot and replication
// management, recovery operations, the peer upload endpoint used by other
// GraphVault instances, health, and Prometheus metrics.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/graphvault/graphvault/internal/config"
	"github.com/graphvault/graphvault/internal/journal"
	"github.com/graphvault/graphvault/internal/logging"
	"github.com/graphvault/graphvault/internal/metrics"
	"github.com/graphvault/graphvault/internal/recovery"
	"github.com/graphvault/graphvault/internal/replication"
	"github.com/graphvault/graphvault/internal/snapshot"
)

// maxUploadBytes caps the multipart body of a peer snapshot upload.
const maxUploadBytes = 8 << 30

// Server wires the coordinators and the journal into an HTTP handler.
type Server struct {
	cfg         config.ServerConfig
	snapshots   *snapshot.Coordinator
	replication *replication.Coordinator
	recovery    *recovery.Coordinator
	journal     journal.Recorder
	workdir     recovery.WorkdirResolver
	logger      zerolog.Logger
	router      chi.Router
}

// NewServer builds the API server and its route tree. rec may be nil when
// the journal is disabled.
func NewServer(
	cfg config.ServerConfig,
	snapshots *snapshot.Coordinator,
	repl *replication.Coordinator,
	recov *recovery.Coordinator,
	rec journal.Recorder,
	workdir recovery.WorkdirResolver,
) *Server {
	if rec == nil {
		rec = journal.Nop{}
	}
	s := &Server{
		cfg:         cfg,
		snapshots:   snapshots,
		replication: repl,
		recovery:    recov,
		journal:     rec,
		workdir:     workdir,
		logger:      logging.With().Str("component", "api").Logger(),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	// Health and metrics sit outside the rate limit so probes and
	// scrapers are never throttled. Health is a peer-facing endpoint and
	// requires the credential when one is configured.
	r.With(s.requirePeerCredential).Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		window := time.Duration(s.cfg.RateWindowSeconds) * time.Second
		if window <= 0 {
			window = time.Minute
		}
		r.Use(httprate.LimitByIP(s.cfg.RateLimit, window))

		r.Route("/graphs/{graphID}", func(r chi.Router) {
			r.Post("/snapshots", s.handleSnapshotCreate)
			r.Get("/snapshots", s.handleSnapshotList)
			r.Get("/snapshots/{snapshotID}", s.handleSnapshotGet)
			r.Delete("/snapshots/{snapshotID}", s.handleSnapshotDelete)
			r.Post("/snapshots/{snapshotID}/restore", s.handleSnapshotRestore)
			r.Post("/snapshots/{snapshotID}/replicate", s.handleReplicate)
			r.Get("/replication/status", s.handleReplicationStatus)
			r.Get("/replication/logs", s.handleReplicationLogs)
		})

		r.Route("/backup", func(r chi.Router) {
			r.Get("/stats", s.handleBackupStats)
			r.Post("/cleanup", s.handleBackupCleanup)
			r.With(s.requirePeerCredential).Post("/snapshots/upload", s.handlePeerUpload)
		})

		r.Get("/journal/{kind}", s.handleJournal)

		r.Route("/replication", func(r chi.Router) {
			r.Get("/targets", s.handleTargetList)
			r.Post("/targets", s.handleTargetRegister)
			r.Delete("/targets/{targetID}", s.handleTargetRemove)
			r.Post("/targets/{targetID}/health", s.handleTargetHealth)
			r.Post("/health", s.handleReplicationHealthAll)
			r.Get("/metrics", s.handleReplicationMetrics)
		})

		r.Route("/recovery", func(r chi.Router) {
			r.Post("/points", s.handleRecoveryPointCreate)
			r.Get("/points", s.handleRecoveryPointList)
			r.Get("/points/{pointID}", s.handleRecoveryPointGet)
			r.Post("/points/{pointID}/validate", s.handleRecoveryPointValidate)
			r.Post("/failover", s.handleFailover)
			r.Get("/status", s.handleRecoveryStatus)
			r.Get("/health", s.handleSystemHealth)
		})
	})

	return r
}

// requirePeerCredential guards the endpoints other GraphVault instances
// call. With no api_key configured the endpoints stay open.
func (s *Server) requirePeerCredential(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" && r.Header.Get("Authorization") != "Bearer "+s.cfg.APIKey {
			s.respondError(w, http.StatusUnauthorized, "missing or invalid credential")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// observe records request metrics and an access log line per request.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		elapsed := time.Since(start)

		metrics.APIRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(ww.Status())).Inc()
		metrics.APIRequestDuration.WithLabelValues(r.Method, pattern).Observe(elapsed.Seconds())

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", elapsed).
			Msg("Request handled")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
