// GraphVault - Snapshot, Replication, and Disaster Recovery for Graph Stores
// Copyright 2026 GraphVault Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/graphvault/graphvault

// Package replication ships completed snapshots to remote GraphVault peers.
//
// A Coordinator holds the global target registry and one GraphReplicator per
// graph. Replication fans out concurrently to all enabled targets; every
// attempt leaves exactly one log entry, and per-graph status is derived from
// the most recent entries.
package replication

import (
	"context"
	"sync"
	"time"
)

// TargetStatus is the last observed health of a replication target.
type TargetStatus string

const (
	// TargetHealthy means the last probe returned HTTP 200.
	TargetHealthy TargetStatus = "healthy"

	// TargetDegraded means the target answered but not with 200, or the
	// probe timed out.
	TargetDegraded TargetStatus = "degraded"

	// TargetUnreachable means the probe failed at the transport level.
	TargetUnreachable TargetStatus = "unreachable"

	// TargetUnknown means the target has not been probed, or is disabled.
	TargetUnknown TargetStatus = "unknown"
)

// Target is a remote GraphVault instance that receives snapshot copies.
// Identity fields are immutable after registration; probe results are
// guarded by the embedded mutex because the same Target is shared between
// the registry and every replicator it was propagated to. The credential is
// sent as a bearer token on every probe and upload. MaxConcurrent bounds
// how many uploads may run against the target at once across all graphs;
// zero means unbounded.
type Target struct {
	ID            string
	Name          string
	URL           string
	Credential    string
	Enabled       bool
	MaxConcurrent int

	// sem enforces MaxConcurrent. Nil when unbounded.
	sem chan struct{}

	mu              sync.Mutex
	status          TargetStatus
	lastHealthCheck time.Time
	lastError       string
}

// NewTarget creates a target with status unknown.
func NewTarget(id, name, url, credential string, enabled bool, maxConcurrent int) *Target {
	t := &Target{
		ID:            id,
		Name:          name,
		URL:           url,
		Credential:    credential,
		Enabled:       enabled,
		MaxConcurrent: maxConcurrent,
		status:        TargetUnknown,
	}
	if maxConcurrent > 0 {
		t.sem = make(chan struct{}, maxConcurrent)
	}
	return t
}

// acquire claims an upload slot, blocking while the target is at its
// concurrency bound. It fails only when the context ends first.
func (t *Target) acquire(ctx context.Context) error {
	if t.sem == nil {
		return nil
	}
	select {
	case t.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Target) release() {
	if t.sem != nil {
		<-t.sem
	}
}

// RecordProbe stores the outcome of a health probe. A healthy outcome
// clears any previous error.
func (t *Target) RecordProbe(status TargetStatus, errMsg string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
	t.lastHealthCheck = at
	if status == TargetHealthy {
		t.lastError = ""
	} else {
		t.lastError = errMsg
	}
}

// Status returns the last observed health.
func (t *Target) Status() TargetStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// LastError returns the error recorded by the last non-healthy probe.
func (t *Target) LastError() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastError
}

// LastHealthCheck returns when the target was last probed.
func (t *Target) LastHealthCheck() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastHealthCheck
}

// TargetView is an immutable snapshot of a Target for serialization. The
// credential never leaves the process.
type TargetView struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	URL             string       `json:"url"`
	Enabled         bool         `json:"enabled"`
	MaxConcurrent   int          `json:"max_concurrent,omitempty"`
	Status          TargetStatus `json:"status"`
	LastHealthCheck *time.Time   `json:"last_health_check,omitempty"`
	LastError       string       `json:"last_error,omitempty"`
}

// View captures the target's current state for serialization.
func (t *Target) View() TargetView {
	t.mu.Lock()
	defer t.mu.Unlock()

	view := TargetView{
		ID:            t.ID,
		Name:          t.Name,
		URL:           t.URL,
		Enabled:       t.Enabled,
		MaxConcurrent: t.MaxConcurrent,
		Status:        t.status,
		LastError:     t.lastError,
	}
	if !t.lastHealthCheck.IsZero() {
		at := t.lastHealthCheck
		view.LastHealthCheck = &at
	}
	return view
}

// LogStatus is the state of one replication attempt.
type LogStatus string

const (
	// LogPending indicates the attempt is queued.
	LogPending LogStatus = "pending"

	// LogInProgress indicates the upload is running.
	LogInProgress LogStatus = "in_progress"

	// LogCompleted indicates the upload succeeded.
	LogCompleted LogStatus = "completed"

	// LogFailed indicates the attempt failed.
	LogFailed LogStatus = "failed"

	// LogValidated indicates the upload succeeded and the target
	// acknowledged the snapshot as intact.
	LogValidated LogStatus = "validated"
)

// LogEntry records one replication attempt of one snapshot to one target.
type LogEntry struct {
	ID          string     `json:"id"`
	SnapshotID  string     `json:"snapshot_id"`
	GraphID     string     `json:"graph_id"`
	TargetID    string     `json:"target_id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      LogStatus  `json:"status"`
	SizeBytes   int64      `json:"size_bytes,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Succeeded reports whether the attempt delivered the snapshot.
func (e *LogEntry) Succeeded() bool {
	return e.Status == LogCompleted || e.Status == LogValidated
}

// Status summarizes a graph's replication state from its recent log.
type Status struct {
	GraphID         string     `json:"graph_id"`
	TotalTargets    int        `json:"total_targets"`
	EnabledTargets  int        `json:"enabled_targets"`
	HealthyTargets  int        `json:"healthy_targets"`
	RecentAttempts  int        `json:"recent_attempts"`
	RecentSuccesses int        `json:"recent_successes"`
	SuccessRate     float64    `json:"success_rate"`
	LastReplication *time.Time `json:"last_replication,omitempty"`
}

// Result is the outcome of replicating one snapshot across all enabled
// targets.
type Result struct {
	SnapshotID string              `json:"snapshot_id"`
	GraphID    string              `json:"graph_id"`
	Attempted  int                 `json:"attempted"`
	Succeeded  int                 `json:"succeeded"`
	Failed     int                 `json:"failed"`
	PerTarget  map[string]LogEntry `json:"per_target"`
}
