// GraphVault - Snapshot, Replication, and Disaster Recovery for Graph Stores
// Copyright 2026 GraphVault Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/graphvault/graphvault

package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/graphvault/graphvault/internal/logging"
	"github.com/graphvault/graphvault/internal/replication"
)

// HealthService periodically probes every replication target. A rate
// limiter paces the sweeps so restart storms in the supervisor cannot
// hammer the targets.
type HealthService struct {
	coordinator *replication.Coordinator
	interval    time.Duration
	limiter     *rate.Limiter
	logger      zerolog.Logger
}

// NewHealthService creates the target health monitor. probesPerSecond
// bounds how often sweeps may start regardless of the interval.
func NewHealthService(coordinator *replication.Coordinator, interval time.Duration, probesPerSecond float64) *HealthService {
	if interval <= 0 {
		interval = time.Minute
	}
	if probesPerSecond <= 0 {
		probesPerSecond = 2
	}
	return &HealthService{
		coordinator: coordinator,
		interval:    interval,
		limiter:     rate.NewLimiter(rate.Limit(probesPerSecond), 1),
		logger:      logging.With().Str("service", "target_health").Logger(),
	}
}

// Serve runs the monitor loop until the context is canceled.
func (s *HealthService) Serve(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Msg("Target health monitor started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Target health monitor stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
			views := s.coordinator.CheckAllHealth(ctx)
			for id, view := range views {
				if view.Status != replication.TargetHealthy && view.Status != replication.TargetUnknown {
					s.logger.Warn().
						Str("target_id", id).
						Str("status", string(view.Status)).
						Str("error", view.LastError).
						Msg("Replication target unhealthy")
				}
			}
		}
	}
}

func (s *HealthService) String() string { return "target-health" }
