// GraphVault - Snapshot, Replication, and Disaster Recovery for Graph Stores
// Copyright 2026 GraphVault Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/graphvault/graphvault

package replication

import (
	"context"
	"fmt"
	"os"
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

const (
	// statusWindow is how many recent log entries feed the success rate.
	statusWindow = 10

	// maxLogEntries bounds the in-memory replication log per graph; the
	// journal keeps the full history.
	maxLogEntries = 1000
)

// GraphReplicator replicates one graph's snapshots to its targets.
type GraphReplicator struct {
	graphID string
	client  *Client
	journal journal.Recorder
	logger  zerolog.Logger

	mu      sync.Mutex
	targets map[string]*Target
	logs    []LogEntry

	now func() time.Time
}

func newGraphReplicator(graphID string, client *Client, rec journal.Recorder) *GraphReplicator {
	if rec == nil {
		rec = journal.Nop{}
	}
	return &GraphReplicator{
		graphID: graphID,
		client:  client,
		journal: rec,
		logger:  logging.With().Str("component", "replication").Str("graph_id", graphID).Logger(),
		targets: make(map[string]*Target),
		now:     time.Now,
	}
}

// GraphID returns the graph this replicator serves.
func (r *GraphReplicator) GraphID() string { return r.graphID }

// AddTarget registers a target with this replicator. The pointer is shared
// with the coordinator's registry so probe results stay in sync.
func (r *GraphReplicator) AddTarget(t *Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets[t.ID] = t
}

// RemoveTarget detaches a target. It reports whether the target was known.
func (r *GraphReplicator) RemoveTarget(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.targets[id]; !ok {
		return false
	}
	delete(r.targets, id)
	return true
}

// Targets returns views of all attached targets sorted by id.
func (r *GraphReplicator) Targets() []TargetView {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]TargetView, 0, len(r.targets))
	for _, t := range r.targets {
		out = append(out, t.View())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CheckTargetHealth probes a single target and records the outcome on it.
// Disabled targets are stamped unknown without a network round trip.
func (r *GraphReplicator) CheckTargetHealth(ctx context.Context, targetID string) (TargetView, error) {
	r.mu.Lock()
	target, ok := r.targets[targetID]
	r.mu.Unlock()
	if !ok {
		return TargetView{}, fmt.Errorf("target %s: %w", targetID, ErrTargetNotFound)
	}

	r.checkTarget(ctx, target)
	return target.View(), nil
}

// CheckAllTargetsHealth probes every attached target concurrently and
// returns the resulting views keyed by target id.
func (r *GraphReplicator) CheckAllTargetsHealth(ctx context.Context) map[string]TargetView {
	r.mu.Lock()
	targets := make([]*Target, 0, len(r.targets))
	for _, t := range r.targets {
		targets = append(targets, t)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func(t *Target) {
			defer wg.Done()
			r.checkTarget(ctx, t)
		}(t)
	}
	wg.Wait()

	out := make(map[string]TargetView, len(targets))
	for _, t := range targets {
		out[t.ID] = t.View()
	}
	return out
}

func (r *GraphReplicator) checkTarget(ctx context.Context, target *Target) {
	var (
		status TargetStatus
		errMsg string
	)
	if target.Enabled {
		status, errMsg = r.client.Probe(ctx, target)
	} else {
		status = TargetUnknown
	}
	target.RecordProbe(status, errMsg, r.now())
	metrics.TargetHealth.WithLabelValues(target.ID).Set(healthGaugeValue(status))

	if status != TargetHealthy && target.Enabled {
		r.logger.Warn().
			Str("target_id", target.ID).
			Str("status", string(status)).
			Str("error", errMsg).
			Msg("Replication target not healthy")
	}
}

func healthGaugeValue(status TargetStatus) float64 {
	switch status {
	case TargetHealthy:
		return 0
	case TargetDegraded:
		return 1
	case TargetUnreachable:
		return 2
	default:
		return 3
	}
}

// ReplicateSnapshot ships a completed snapshot to every enabled target
// concurrently. Each per-target attempt records exactly one log entry, also
// when it fails before the upload starts. One slow or failing target never
// blocks the others.
func (r *GraphReplicator) ReplicateSnapshot(ctx context.Context, snap *snapshot.Snapshot) (*Result, error) {
	if snap.Status != snapshot.StatusCompleted {
		return nil, fmt.Errorf("snapshot %s has status %s: %w", snap.ID, snap.Status, ErrNotReplicable)
	}
	if _, err := os.Stat(snap.Location); err != nil {
		return nil, fmt.Errorf("snapshot %s data missing: %w", snap.ID, ErrNotReplicable)
	}

	r.mu.Lock()
	var enabled []*Target
	for _, t := range r.targets {
		if t.Enabled {
			enabled = append(enabled, t)
		}
	}
	r.mu.Unlock()

	if len(enabled) == 0 {
		return nil, fmt.Errorf("graph %s: %w", r.graphID, ErrNoTargets)
	}
	sort.Slice(enabled, func(i, j int) bool { return enabled[i].ID < enabled[j].ID })

	r.logger.Info().
		Str("snapshot_id", snap.ID).
		Int("targets", len(enabled)).
		Msg("Replicating snapshot")

	entries := make([]LogEntry, len(enabled))
	var wg sync.WaitGroup
	for i, target := range enabled {
		wg.Add(1)
		go func(i int, target *Target) {
			defer wg.Done()
			entries[i] = r.replicateToTarget(ctx, target, snap)
		}(i, target)
	}
	wg.Wait()

	result := &Result{
		SnapshotID: snap.ID,
		GraphID:    r.graphID,
		Attempted:  len(entries),
		PerTarget:  make(map[string]LogEntry, len(entries)),
	}
	for _, entry := range entries {
		result.PerTarget[entry.TargetID] = entry
		if entry.Succeeded() {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	r.logger.Info().
		Str("snapshot_id", snap.ID).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Msg("Replication finished")
	return result, nil
}

// replicateToTarget runs one attempt against one target. The log entry is
// appended in a defer so every exit path, including the health precheck
// abort, leaves exactly one entry.
func (r *GraphReplicator) replicateToTarget(ctx context.Context, target *Target, snap *snapshot.Snapshot) LogEntry {
	start := r.now()
	entry := LogEntry{
		ID:         uuid.NewString(),
		SnapshotID: snap.ID,
		GraphID:    r.graphID,
		TargetID:   target.ID,
		StartedAt:  start,
		Status:     LogInProgress,
		SizeBytes:  snap.SizeBytes,
	}

	defer func() {
		done := r.now()
		entry.CompletedAt = &done
		r.appendLog(entry)

		outcome := "failure"
		if entry.Succeeded() {
			outcome = "success"
			metrics.ReplicationDuration.WithLabelValues(target.ID).Observe(done.Sub(start).Seconds())
		}
		metrics.ReplicationOps.WithLabelValues(target.ID, outcome).Inc()

		rec := journal.Record{
			ID:        uuid.NewString(),
			Kind:      journal.KindReplication,
			SubjectID: entry.ID,
			GraphID:   r.graphID,
			At:        done,
			Payload:   entry,
		}
		if err := r.journal.Record(ctx, rec); err != nil {
			r.logger.Warn().Err(err).Str("target_id", target.ID).Msg("Failed to journal replication attempt")
		}
	}()

	// Probe before shipping; an unreachable target fails fast instead of
	// burning the upload timeout.
	r.checkTarget(ctx, target)
	if target.Status() == TargetUnreachable {
		entry.Status = LogFailed
		entry.Error = "target unreachable: " + target.LastError()
		r.logger.Warn().
			Str("target_id", target.ID).
			Str("snapshot_id", snap.ID).
			Msg("Skipping upload to unreachable target")
		return entry
	}

	if err := r.client.Upload(ctx, target, snap); err != nil {
		entry.Status = LogFailed
		entry.Error = err.Error()
		r.logger.Error().Err(err).
			Str("target_id", target.ID).
			Str("snapshot_id", snap.ID).
			Msg("Snapshot upload failed")
		return entry
	}

	entry.Status = LogValidated
	r.logger.Info().
		Str("target_id", target.ID).
		Str("snapshot_id", snap.ID).
		Msg("Snapshot replicated")
	return entry
}

func (r *GraphReplicator) appendLog(entry LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, entry)
	if len(r.logs) > maxLogEntries {
		r.logs = r.logs[len(r.logs)-maxLogEntries:]
	}
}

// RecentLogs returns up to limit log entries, newest first.
func (r *GraphReplicator) RecentLogs(limit int) []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.logs)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]LogEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, r.logs[i])
	}
	return out
}

// Status summarizes the graph's replication state. The success rate covers
// the ten most recent attempts; completed and validated both count as
// success.
func (r *GraphReplicator) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := Status{GraphID: r.graphID, TotalTargets: len(r.targets)}
	for _, t := range r.targets {
		if t.Enabled {
			status.EnabledTargets++
		}
		if t.Status() == TargetHealthy {
			status.HealthyTargets++
		}
	}

	window := r.logs
	if len(window) > statusWindow {
		window = window[len(window)-statusWindow:]
	}
	status.RecentAttempts = len(window)
	for _, entry := range window {
		if entry.Succeeded() {
			status.RecentSuccesses++
		}
		if entry.CompletedAt != nil &&
			(status.LastReplication == nil || entry.CompletedAt.After(*status.LastReplication)) {
			at := *entry.CompletedAt
			status.LastReplication = &at
		}
	}
	if status.RecentAttempts > 0 {
		status.SuccessRate = float64(status.RecentSuccesses) / float64(status.RecentAttempts)
	}
	return status
}
