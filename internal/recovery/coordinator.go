// GraphVault - Snapshot, Replication, and Disaster Recovery for Graph Stores
// Copyright 2026 GraphVault Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/graphvault/graphvault

package recovery

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/graphvault/graphvault/internal/journal"
	"github.com/graphvault/graphvault/internal/logging"
	"github.com/graphvault/graphvault/internal/metrics"
	"github.com/graphvault/graphvault/internal/snapshot"
)

// RecoveryPoint is a consistent set of snapshots over a fixed list of
// graphs, taken while every covered graph validated as non-critical. A
// fresh point starts validated; re-validation may flip the flag back and
// forth as the underlying snapshots and graph health change.
type RecoveryPoint struct {
	ID          string            `json:"id"`
	CreatedAt   time.Time         `json:"created_at"`
	CreatedBy   string            `json:"created_by,omitempty"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`

	// GraphIDs is the immutable list of covered graphs, sorted.
	GraphIDs []string `json:"graph_ids"`

	// Snapshots maps graph id to the snapshot captured for it.
	Snapshots map[string]string `json:"snapshots"`

	Validated   bool      `json:"validated"`
	ValidatedAt time.Time `json:"validated_at"`
}

// PointRequest describes a recovery point to create. An empty GraphIDs
// list covers every registered graph.
type PointRequest struct {
	GraphIDs    []string          `json:"graph_ids,omitempty"`
	Description string            `json:"description,omitempty"`
	CreatedBy   string            `json:"created_by,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// PointValidation reports whether a recovery point is still restorable:
// every underlying snapshot must be valid and no covered graph critical.
type PointValidation struct {
	PointID   string                     `json:"point_id"`
	Valid     bool                       `json:"valid"`
	PerGraph  map[string]bool            `json:"per_graph"`
	Health    map[string]ComponentHealth `json:"graph_health"`
	CheckedAt time.Time                  `json:"checked_at"`
}

// FailoverResult describes the outcome of one failover.
type FailoverResult struct {
	PointID    string            `json:"point_id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Restored   []string          `json:"restored_graphs"`
	Failed     map[string]string `json:"failed_graphs,omitempty"`
	PostCheck  Report            `json:"post_check"`
}

// RecoveryStatus summarizes the disaster-recovery subsystem.
type RecoveryStatus struct {
	FailoverInProgress bool           `json:"failover_in_progress"`
	RecoveryPoints     int            `json:"recovery_points"`
	ValidatedPoints    int            `json:"validated_points"`
	LatestPoint        *RecoveryPoint `json:"latest_point,omitempty"`
}

// WorkdirResolver maps a graph id to its working directory.
type WorkdirResolver func(graphID string) string

// Coordinator manages recovery points and failover for all registered
// graphs.
type Coordinator struct {
	snapshots *snapshot.Coordinator
	validator *Validator
	workdir   WorkdirResolver
	journal   journal.Recorder
	logger    zerolog.Logger

	mu                 sync.Mutex
	points             map[string]*RecoveryPoint
	failoverInProgress bool

	now func() time.Time
}

// NewCoordinator creates a recovery coordinator. rec may be nil to disable
// journaling.
func NewCoordinator(snapshots *snapshot.Coordinator, validator *Validator, workdir WorkdirResolver, rec journal.Recorder) *Coordinator {
	if rec == nil {
		rec = journal.Nop{}
	}
	return &Coordinator{
		snapshots: snapshots,
		validator: validator,
		workdir:   workdir,
		journal:   rec,
		logger:    logging.With().Str("component", "recovery").Logger(),
		points:    make(map[string]*RecoveryPoint),
		now:       time.Now,
	}
}

// CreateRecoveryPoint validates the covered graphs and snapshots each one.
// An empty GraphIDs list covers every registered graph. When any covered
// graph is unregistered or critical, or any snapshot fails, the point is
// not recorded and the coordinator's state is unchanged; snapshots taken
// before a later failure remain in their stores as ordinary snapshots.
func (c *Coordinator) CreateRecoveryPoint(ctx context.Context, req PointRequest) (*RecoveryPoint, error) {
	graphIDs := req.GraphIDs
	if len(graphIDs) == 0 {
		graphIDs = c.snapshots.Graphs()
	}
	if len(graphIDs) == 0 {
		metrics.CheckpointsCreated.WithLabelValues("failure").Inc()
		return nil, fmt.Errorf("no graphs registered")
	}
	graphIDs = append([]string(nil), graphIDs...)
	sort.Strings(graphIDs)

	for _, graphID := range graphIDs {
		if c.snapshots.StoreFor(graphID) == nil {
			metrics.CheckpointsCreated.WithLabelValues("failure").Inc()
			return nil, fmt.Errorf("graph %s: %w", graphID, ErrGraphNotFound)
		}
	}

	for graphID, health := range c.validator.ValidateAllGraphs(ctx, graphIDs) {
		if health.Status == HealthCritical {
			metrics.CheckpointsCreated.WithLabelValues("failure").Inc()
			return nil, fmt.Errorf("graph %s: %s: %w", graphID, health.Error, ErrGraphCritical)
		}
	}

	point := &RecoveryPoint{
		ID:          "rp_" + uuid.NewString(),
		CreatedAt:   c.now(),
		CreatedBy:   req.CreatedBy,
		Description: req.Description,
		Metadata:    req.Metadata,
		GraphIDs:    graphIDs,
		Snapshots:   make(map[string]string, len(graphIDs)),
	}
	// A point that just passed validation starts out validated.
	point.Validated = true
	point.ValidatedAt = point.CreatedAt

	for _, graphID := range graphIDs {
		store := c.snapshots.StoreFor(graphID)
		snap, err := store.CreateSnapshot(ctx, c.workdir(graphID), map[string]string{
			"recovery_point": point.ID,
		})
		if err != nil {
			metrics.CheckpointsCreated.WithLabelValues("failure").Inc()
			return nil, fmt.Errorf("snapshot graph %s for recovery point: %w", graphID, err)
		}
		point.Snapshots[graphID] = snap.ID
	}

	c.mu.Lock()
	c.points[point.ID] = point
	c.mu.Unlock()

	metrics.CheckpointsCreated.WithLabelValues("success").Inc()
	c.logger.Info().
		Str("point_id", point.ID).
		Int("graphs", len(point.Snapshots)).
		Msg("Recovery point created")

	c.record(ctx, journal.KindRecoveryPoint, point.ID, point)
	return point, nil
}

// GetRecoveryPoint returns the recovery point with the given id.
func (c *Coordinator) GetRecoveryPoint(id string) (*RecoveryPoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	point, ok := c.points[id]
	if !ok {
		return nil, fmt.Errorf("recovery point %s: %w", id, ErrPointNotFound)
	}
	return point, nil
}

// ListRecoveryPoints returns all recovery points, newest first.
func (c *Coordinator) ListRecoveryPoints() []*RecoveryPoint {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*RecoveryPoint, 0, len(c.points))
	for _, point := range c.points {
		out = append(out, point)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// ValidateRecoveryPoint re-checks a point: every referenced snapshot must
// still be restorable and every covered graph must pass health validation
// without going critical. The stored point's validated flag and validation
// timestamp are updated as a side effect, so a point can flip between
// validated and not as conditions change.
func (c *Coordinator) ValidateRecoveryPoint(ctx context.Context, id string) (*PointValidation, error) {
	point, err := c.GetRecoveryPoint(id)
	if err != nil {
		return nil, err
	}
	return c.validatePoint(ctx, point), nil
}

func (c *Coordinator) validatePoint(ctx context.Context, point *RecoveryPoint) *PointValidation {
	validation := &PointValidation{
		PointID:   point.ID,
		Valid:     true,
		PerGraph:  make(map[string]bool, len(point.GraphIDs)),
		CheckedAt: c.now(),
	}
	for _, graphID := range point.GraphIDs {
		ok := false
		if store := c.snapshots.StoreFor(graphID); store != nil {
			if snap, err := store.GetSnapshot(point.Snapshots[graphID]); err == nil {
				ok = snap.Valid(c.now())
			}
		}
		validation.PerGraph[graphID] = ok
		if !ok {
			validation.Valid = false
		}
	}

	validation.Health = c.validator.ValidateAllGraphs(ctx, point.GraphIDs)
	for _, health := range validation.Health {
		if health.Status == HealthCritical {
			validation.Valid = false
		}
	}

	c.mu.Lock()
	point.Validated = validation.Valid
	point.ValidatedAt = validation.CheckedAt
	c.mu.Unlock()

	return validation
}

// InitiateFailover restores every covered graph from the given recovery
// point, or from the most recent one when pointID is empty. Only one
// failover runs at a time; a second call while one is in progress fails
// with ErrBusy. The point is re-validated under the guard and an
// invalidated point aborts the failover with ErrPointInvalid before any
// restore runs. After restoring, all covered graphs are re-validated and
// the result carries the report.
func (c *Coordinator) InitiateFailover(ctx context.Context, pointID string) (*FailoverResult, error) {
	c.mu.Lock()
	if c.failoverInProgress {
		c.mu.Unlock()
		metrics.FailoversInitiated.WithLabelValues("rejected").Inc()
		return nil, ErrBusy
	}
	c.failoverInProgress = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.failoverInProgress = false
		c.mu.Unlock()
	}()

	point, err := c.resolvePoint(pointID)
	if err != nil {
		metrics.FailoversInitiated.WithLabelValues("failure").Inc()
		return nil, err
	}

	// Re-validate under the guard: a point that lost a snapshot or covers
	// a critical graph must not partially rewrite healthy working
	// directories.
	if validation := c.validatePoint(ctx, point); !validation.Valid {
		metrics.FailoversInitiated.WithLabelValues("failure").Inc()
		c.logger.Error().Str("point_id", point.ID).Msg("Failover aborted: recovery point failed re-validation")
		return nil, fmt.Errorf("recovery point %s: %w", point.ID, ErrPointInvalid)
	}

	c.logger.Warn().Str("point_id", point.ID).Msg("Failover initiated")

	result := &FailoverResult{
		PointID:   point.ID,
		StartedAt: c.now(),
		Failed:    make(map[string]string),
	}

	graphIDs := point.GraphIDs

	for _, graphID := range graphIDs {
		snapID := point.Snapshots[graphID]
		store := c.snapshots.StoreFor(graphID)
		if store == nil {
			result.Failed[graphID] = "graph no longer registered"
			continue
		}
		if err := store.RestoreSnapshot(ctx, snapID, c.workdir(graphID)); err != nil {
			result.Failed[graphID] = err.Error()
			c.logger.Error().Err(err).
				Str("graph_id", graphID).
				Str("snapshot_id", snapID).
				Msg("Failover restore failed")
			continue
		}
		result.Restored = append(result.Restored, graphID)
	}

	result.PostCheck = c.validator.FullHealthCheck(ctx, graphIDs)
	result.FinishedAt = c.now()

	outcome := "success"
	if len(result.Failed) > 0 || result.PostCheck.Overall == HealthCritical {
		outcome = "failure"
	}
	metrics.FailoversInitiated.WithLabelValues(outcome).Inc()

	c.logger.Warn().
		Str("point_id", point.ID).
		Int("restored", len(result.Restored)).
		Int("failed", len(result.Failed)).
		Str("post_check", string(result.PostCheck.Overall)).
		Msg("Failover finished")

	c.record(ctx, journal.KindRecoveryPoint, point.ID, result)

	if len(result.Failed) > 0 {
		return result, fmt.Errorf("failover restored %d graphs, %d failed", len(result.Restored), len(result.Failed))
	}
	return result, nil
}

func (c *Coordinator) resolvePoint(pointID string) (*RecoveryPoint, error) {
	if pointID != "" {
		return c.GetRecoveryPoint(pointID)
	}

	points := c.ListRecoveryPoints()
	if len(points) == 0 {
		return nil, ErrNoRecoveryPoints
	}
	return points[0], nil
}

// Status summarizes recovery points and failover state.
func (c *Coordinator) Status() RecoveryStatus {
	points := c.ListRecoveryPoints()

	c.mu.Lock()
	inProgress := c.failoverInProgress
	validated := 0
	for _, point := range c.points {
		if point.Validated {
			validated++
		}
	}
	c.mu.Unlock()

	status := RecoveryStatus{
		FailoverInProgress: inProgress,
		RecoveryPoints:     len(points),
		ValidatedPoints:    validated,
	}
	if len(points) > 0 {
		status.LatestPoint = points[0]
	}
	return status
}

// HealthCheck runs a full health check over the union of graphs covered by
// any stored recovery point, plus the replication subsystem.
func (c *Coordinator) HealthCheck(ctx context.Context) Report {
	report := c.validator.FullHealthCheck(ctx, c.checkpointedGraphs())
	c.record(ctx, journal.KindHealth, "health_check", report)
	return report
}

// checkpointedGraphs returns the sorted union of graph ids referenced by
// stored recovery points.
func (c *Coordinator) checkpointedGraphs() []string {
	c.mu.Lock()
	set := make(map[string]struct{})
	for _, point := range c.points {
		for _, graphID := range point.GraphIDs {
			set[graphID] = struct{}{}
		}
	}
	c.mu.Unlock()

	out := make([]string, 0, len(set))
	for graphID := range set {
		out = append(out, graphID)
	}
	sort.Strings(out)
	return out
}

func (c *Coordinator) record(ctx context.Context, kind journal.Kind, subjectID string, payload any) {
	rec := journal.Record{
		ID:        uuid.NewString(),
		Kind:      kind,
		SubjectID: subjectID,
		At:        c.now(),
		Payload:   payload,
	}
	if err := c.journal.Record(ctx, rec); err != nil {
		c.logger.Warn().Err(err).Str("subject_id", subjectID).Msg("Failed to journal recovery event")
	}
}
