// GraphVault - Snapshot, Replication, and Disaster Recovery for Graph Stores
// Copyright 2026 GraphVault Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/graphvault/graphvault

package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/graphvault/graphvault/internal/logging"
	"github.com/graphvault/graphvault/internal/recovery"
)

// CheckpointService creates recovery points on a fixed cadence. A graph in
// critical state makes the attempt fail; the service logs and retries on the
// next tick rather than crashing.
type CheckpointService struct {
	coordinator *recovery.Coordinator
	interval    time.Duration
	logger      zerolog.Logger
}

// NewCheckpointService creates the automatic checkpoint loop.
func NewCheckpointService(coordinator *recovery.Coordinator, interval time.Duration) *CheckpointService {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &CheckpointService{
		coordinator: coordinator,
		interval:    interval,
		logger:      logging.With().Str("service", "auto_checkpoint").Logger(),
	}
}

// Serve runs the checkpoint loop until the context is canceled.
func (s *CheckpointService) Serve(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Msg("Automatic checkpoint service started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Automatic checkpoint service stopping")
			return ctx.Err()
		case <-ticker.C:
			point, err := s.coordinator.CreateRecoveryPoint(ctx, recovery.PointRequest{
				Description: "automatic checkpoint",
				CreatedBy:   "scheduler",
			})
			switch {
			case errors.Is(err, recovery.ErrGraphCritical):
				s.logger.Error().Err(err).Msg("Skipping checkpoint: graph in critical state")
			case err != nil:
				s.logger.Error().Err(err).Msg("Automatic checkpoint failed")
			default:
				s.logger.Info().Str("point_id", point.ID).Msg("Automatic checkpoint created")
			}
		}
	}
}

func (s *CheckpointService) String() string { return "auto-checkpoint" }
