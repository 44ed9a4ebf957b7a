// GraphVault - Snapshot, Replication, and Disaster Recovery for Graph Stores
// Copyright 2026 GraphVault Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/graphvault/graphvault

// Package recovery provides disaster-recovery coordination: graph health
// validation, recovery points spanning all registered graphs, and guarded
// failover back to a known-good state.
package recovery

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/graphvault/graphvault/internal/logging"
)

// HealthStatus classifies a component or the system as a whole.
type HealthStatus string

const (
	// HealthHealthy means the component passed validation.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded means the component works but below expectations.
	HealthDegraded HealthStatus = "degraded"

	// HealthCritical means the component failed validation.
	HealthCritical HealthStatus = "critical"

	// HealthUnknown means the component has no probe configured.
	HealthUnknown HealthStatus = "unknown"
)

// ComponentHealth is the validation result for one component.
type ComponentHealth struct {
	Component string       `json:"component"`
	Status    HealthStatus `json:"status"`
	Error     string       `json:"error,omitempty"`
	CheckedAt time.Time    `json:"checked_at"`
}

// GraphProbe checks the integrity of one graph's working data. A nil error
// means the graph is intact.
type GraphProbe func(ctx context.Context, graphID string) error

// ReplicationProbe reports whether replication currently has at least one
// healthy enabled target.
type ReplicationProbe func(ctx context.Context) bool

// Report is the outcome of a full health check across all components.
type Report struct {
	Overall    HealthStatus               `json:"overall_status"`
	Components map[string]ComponentHealth `json:"components"`
	CheckedAt  time.Time                  `json:"checked_at"`
}

// Validator runs health probes over graphs and the replication subsystem.
type Validator struct {
	graphProbe       GraphProbe
	replicationProbe ReplicationProbe
	logger           zerolog.Logger

	now func() time.Time
}

// NewValidator creates a validator. Either probe may be nil; components
// without a probe validate as unknown and never escalate the overall
// status.
func NewValidator(graphProbe GraphProbe, replicationProbe ReplicationProbe) *Validator {
	return &Validator{
		graphProbe:       graphProbe,
		replicationProbe: replicationProbe,
		logger:           logging.With().Str("component", "health_validator").Logger(),
		now:              time.Now,
	}
}

// ValidateGraph probes one graph. A probe error marks the graph critical.
func (v *Validator) ValidateGraph(ctx context.Context, graphID string) ComponentHealth {
	health := ComponentHealth{Component: "graph:" + graphID, CheckedAt: v.now()}

	if v.graphProbe == nil {
		health.Status = HealthUnknown
		return health
	}

	if err := v.graphProbe(ctx, graphID); err != nil {
		health.Status = HealthCritical
		health.Error = err.Error()
		v.logger.Error().Err(err).Str("graph_id", graphID).Msg("Graph failed integrity validation")
		return health
	}

	health.Status = HealthHealthy
	return health
}

// ValidateAllGraphs probes every graph concurrently and returns the results
// keyed by graph id.
func (v *Validator) ValidateAllGraphs(ctx context.Context, graphIDs []string) map[string]ComponentHealth {
	results := make(map[string]ComponentHealth, len(graphIDs))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, graphID := range graphIDs {
		wg.Add(1)
		go func(graphID string) {
			defer wg.Done()
			health := v.ValidateGraph(ctx, graphID)
			mu.Lock()
			results[graphID] = health
			mu.Unlock()
		}(graphID)
	}
	wg.Wait()
	return results
}

// ValidateReplication reports the replication subsystem's health: healthy
// with at least one healthy enabled target, degraded otherwise.
func (v *Validator) ValidateReplication(ctx context.Context) ComponentHealth {
	health := ComponentHealth{Component: "replication", CheckedAt: v.now()}

	if v.replicationProbe == nil {
		health.Status = HealthUnknown
		return health
	}

	if v.replicationProbe(ctx) {
		health.Status = HealthHealthy
	} else {
		health.Status = HealthDegraded
		health.Error = "no healthy replication targets"
	}
	return health
}

// FullHealthCheck validates every graph and the replication subsystem and
// rolls the results up. Any critical component makes the system critical;
// otherwise any degraded component makes it degraded; unknown components
// never escalate.
func (v *Validator) FullHealthCheck(ctx context.Context, graphIDs []string) Report {
	report := Report{
		Components: make(map[string]ComponentHealth, len(graphIDs)+1),
		CheckedAt:  v.now(),
	}

	for graphID, health := range v.ValidateAllGraphs(ctx, graphIDs) {
		report.Components["graph:"+graphID] = health
	}
	report.Components["replication"] = v.ValidateReplication(ctx)

	report.Overall = HealthHealthy
	for _, health := range report.Components {
		switch health.Status {
		case HealthCritical:
			report.Overall = HealthCritical
		case HealthDegraded:
			if report.Overall != HealthCritical {
				report.Overall = HealthDegraded
			}
		}
	}

	if report.Overall != HealthHealthy {
		v.logger.Warn().Str("overall", string(report.Overall)).Msg("System health check not healthy")
	}
	return report
}
