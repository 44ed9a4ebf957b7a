// GraphVault - Snapshot, Replication, and Disaster Recovery for Graph Stores
// Copyright 2026 GraphVault Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/graphvault/graphvault

package replication

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/graphvault/graphvault/internal/journal"
	"github.com/graphvault/graphvault/internal/logging"
)

// Coordinator owns the global target registry and one GraphReplicator per
// graph. Target registration and removal propagate to every existing
// replicator; new replicators start with the full current registry.
type Coordinator struct {
	client  *Client
	journal journal.Recorder
	logger  zerolog.Logger

	mu          sync.RWMutex
	targets     map[string]*Target
	replicators map[string]*GraphReplicator
}

// NewCoordinator creates a replication coordinator. client may be nil for a
// default client; rec may be nil to disable journaling.
func NewCoordinator(client *Client, rec journal.Recorder) *Coordinator {
	if client == nil {
		client = NewClient(nil)
	}
	if rec == nil {
		rec = journal.Nop{}
	}
	return &Coordinator{
		client:      client,
		journal:     rec,
		logger:      logging.With().Str("component", "replication_coordinator").Logger(),
		targets:     make(map[string]*Target),
		replicators: make(map[string]*GraphReplicator),
	}
}

// RegisterTarget adds a target to the registry and attaches it to every
// existing replicator. An id that is already registered is rejected and the
// existing target stays in place everywhere.
func (c *Coordinator) RegisterTarget(t *Target) error {
	if t.ID == "" || t.URL == "" {
		return fmt.Errorf("target must have id and url")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.targets[t.ID]; ok {
		return fmt.Errorf("target %s: %w", t.ID, ErrTargetExists)
	}
	c.targets[t.ID] = t
	for _, r := range c.replicators {
		r.AddTarget(t)
	}

	c.logger.Info().
		Str("target_id", t.ID).
		Str("url", t.URL).
		Bool("enabled", t.Enabled).
		Msg("Replication target registered")
	return nil
}

// RemoveTarget drops a target from the registry and from every replicator.
func (c *Coordinator) RemoveTarget(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.targets[id]; !ok {
		return fmt.Errorf("target %s: %w", id, ErrTargetNotFound)
	}
	delete(c.targets, id)
	for _, r := range c.replicators {
		r.RemoveTarget(id)
	}

	c.logger.Info().Str("target_id", id).Msg("Replication target removed")
	return nil
}

// Target returns a view of the registered target with the given id.
func (c *Coordinator) Target(id string) (TargetView, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.targets[id]
	if !ok {
		return TargetView{}, fmt.Errorf("target %s: %w", id, ErrTargetNotFound)
	}
	return t.View(), nil
}

// Targets returns views of all registered targets sorted by id.
func (c *Coordinator) Targets() []TargetView {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]TargetView, 0, len(c.targets))
	for _, t := range c.targets {
		out = append(out, t.View())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ReplicatorFor ensures a replicator exists for graphID and returns it. A
// new replicator starts with all currently registered targets attached.
func (c *Coordinator) ReplicatorFor(graphID string) *GraphReplicator {
	c.mu.RLock()
	r, ok := c.replicators[graphID]
	c.mu.RUnlock()
	if ok {
		return r
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-check under the write lock; another goroutine may have won.
	if r, ok := c.replicators[graphID]; ok {
		return r
	}

	r = newGraphReplicator(graphID, c.client, c.journal)
	for _, t := range c.targets {
		r.AddTarget(t)
	}
	c.replicators[graphID] = r

	c.logger.Info().Str("graph_id", graphID).Msg("Graph registered for replication")
	return r
}

// Replicator returns the replicator for graphID, or nil when the graph has
// never replicated.
func (c *Coordinator) Replicator(graphID string) *GraphReplicator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.replicators[graphID]
}

// CheckAllHealth probes every registered target once, using an arbitrary
// replicator's attachment or the registry directly when no replicator
// exists yet. Results are keyed by target id.
func (c *Coordinator) CheckAllHealth(ctx context.Context) map[string]TargetView {
	c.mu.RLock()
	targets := make([]*Target, 0, len(c.targets))
	for _, t := range c.targets {
		targets = append(targets, t)
	}
	c.mu.RUnlock()

	probe := newGraphReplicator("", c.client, journal.Nop{})
	for _, t := range targets {
		probe.AddTarget(t)
	}
	return probe.CheckAllTargetsHealth(ctx)
}

// AnyHealthy reports whether at least one enabled target is currently
// healthy, based on the last recorded probes.
func (c *Coordinator) AnyHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, t := range c.targets {
		if t.Enabled && t.Status() == TargetHealthy {
			return true
		}
	}
	return false
}

// Metrics aggregates replication status across all graphs.
type Metrics struct {
	TotalTargets   int               `json:"total_targets"`
	EnabledTargets int               `json:"enabled_targets"`
	HealthyTargets int               `json:"healthy_targets"`
	Graphs         map[string]Status `json:"graphs"`
}

// AggregateMetrics summarizes targets and per-graph replication status.
func (c *Coordinator) AggregateMetrics() Metrics {
	c.mu.RLock()
	targets := make([]*Target, 0, len(c.targets))
	for _, t := range c.targets {
		targets = append(targets, t)
	}
	replicators := make([]*GraphReplicator, 0, len(c.replicators))
	for _, r := range c.replicators {
		replicators = append(replicators, r)
	}
	c.mu.RUnlock()

	out := Metrics{Graphs: make(map[string]Status, len(replicators))}
	for _, t := range targets {
		out.TotalTargets++
		if t.Enabled {
			out.EnabledTargets++
		}
		if t.Status() == TargetHealthy {
			out.HealthyTargets++
		}
	}
	for _, r := range replicators {
		out.Graphs[r.GraphID()] = r.Status()
	}
	return out
}
