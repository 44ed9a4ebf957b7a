// GraphVault - Snapshot, Replication, and Disaster Recovery for Graph Stores
// Copyright 2026 GraphVault Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/graphvault/graphvault

// Package services contains the supervised background loops: snapshot
// retention sweeps, replication target health monitoring, automatic
// recovery checkpoints, and the HTTP listener.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/graphvault/graphvault/internal/logging"
	"github.com/graphvault/graphvault/internal/snapshot"
)

// CleanupService periodically sweeps expired snapshots across all graphs.
// The coordinator's own cooldown gates the actual work, so an aggressive
// tick interval only costs a map lookup.
type CleanupService struct {
	coordinator *snapshot.Coordinator
	interval    time.Duration
	logger      zerolog.Logger
}

// NewCleanupService creates the retention sweep loop.
func NewCleanupService(coordinator *snapshot.Coordinator, interval time.Duration) *CleanupService {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &CleanupService{
		coordinator: coordinator,
		interval:    interval,
		logger:      logging.With().Str("service", "snapshot_cleanup").Logger(),
	}
}

// Serve runs the sweep loop until the context is canceled.
func (s *CleanupService) Serve(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Msg("Snapshot cleanup service started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Snapshot cleanup service stopping")
			return ctx.Err()
		case <-ticker.C:
			if removed := s.coordinator.CleanupAll(ctx); len(removed) > 0 {
				s.logger.Info().Interface("removed", removed).Msg("Retention sweep removed snapshots")
			}
		}
	}
}

func (s *CleanupService) String() string { return "snapshot-cleanup" }
