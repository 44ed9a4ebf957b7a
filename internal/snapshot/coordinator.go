// GraphVault - Snapshot, Replication, and Disaster Recovery for Graph Stores
// Copyright 2026 GraphVault Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/graphvault/graphvault

package snapshot

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/graphvault/graphvault/internal/journal"
	"github.com/graphvault/graphvault/internal/logging"
)

// CoordinatorConfig configures the snapshot coordinator.
type CoordinatorConfig struct {
	// BaseDir is the root under which each graph gets its own snapshot
	// directory.
	BaseDir string

	// Retention is how long snapshots are kept. Zero disables expiry.
	Retention time.Duration

	// CleanupInterval is the minimum time between retention sweeps.
	CleanupInterval time.Duration
}

// Coordinator owns one Store per registered graph and runs cooldown-gated
// retention sweeps across all of them.
type Coordinator struct {
	cfg     CoordinatorConfig
	journal journal.Recorder
	logger  zerolog.Logger

	mu          sync.RWMutex
	stores      map[string]*Store
	lastCleanup time.Time

	now func() time.Time
}

// NewCoordinator creates a snapshot coordinator. rec may be nil to disable
// journaling.
func NewCoordinator(cfg CoordinatorConfig, rec journal.Recorder) *Coordinator {
	if rec == nil {
		rec = journal.Nop{}
	}
	return &Coordinator{
		cfg:     cfg,
		journal: rec,
		logger:  logging.With().Str("component", "snapshot_coordinator").Logger(),
		stores:  make(map[string]*Store),
		now:     time.Now,
	}
}

// RegisterGraph ensures a store exists for graphID and returns it. Safe for
// concurrent use; the store for a graph is created at most once.
func (c *Coordinator) RegisterGraph(graphID string) (*Store, error) {
	c.mu.RLock()
	store, ok := c.stores[graphID]
	c.mu.RUnlock()
	if ok {
		return store, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-check under the write lock; another goroutine may have won.
	if store, ok := c.stores[graphID]; ok {
		return store, nil
	}

	dir := filepath.Join(c.cfg.BaseDir, graphID)
	store, err := NewStore(graphID, dir, c.cfg.Retention, c.journal)
	if err != nil {
		return nil, fmt.Errorf("register graph %s: %w", graphID, err)
	}
	store.now = c.now
	c.stores[graphID] = store

	c.logger.Info().Str("graph_id", graphID).Str("dir", dir).Msg("Graph registered for snapshots")
	return store, nil
}

// StoreFor returns the store for graphID, or nil when the graph is not
// registered.
func (c *Coordinator) StoreFor(graphID string) *Store {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stores[graphID]
}

// Graphs returns the ids of all registered graphs.
func (c *Coordinator) Graphs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.stores))
	for id := range c.stores {
		out = append(out, id)
	}
	return out
}

// CleanupAll sweeps expired snapshots across every registered graph. Sweeps
// are rate-limited by the configured cleanup interval: a call inside the
// cooldown window is a no-op returning an empty map.
func (c *Coordinator) CleanupAll(ctx context.Context) map[string]int {
	now := c.now()

	c.mu.Lock()
	if c.cfg.CleanupInterval > 0 && !c.lastCleanup.IsZero() && now.Sub(c.lastCleanup) < c.cfg.CleanupInterval {
		c.mu.Unlock()
		return map[string]int{}
	}
	c.lastCleanup = now
	stores := make([]*Store, 0, len(c.stores))
	for _, store := range c.stores {
		stores = append(stores, store)
	}
	c.mu.Unlock()

	results := make(map[string]int, len(stores))
	for _, store := range stores {
		if removed := store.CleanupExpired(ctx); removed > 0 {
			results[store.GraphID()] = removed
		}
	}
	return results
}

// TotalStats aggregates storage statistics across all registered graphs.
func (c *Coordinator) TotalStats() TotalStats {
	c.mu.RLock()
	stores := make([]*Store, 0, len(c.stores))
	for _, store := range c.stores {
		stores = append(stores, store)
	}
	c.mu.RUnlock()

	total := TotalStats{
		RetentionDays: int(c.cfg.Retention.Hours() / 24),
		PerGraph:      make(map[string]StorageStats, len(stores)),
	}
	for _, store := range stores {
		stats := store.Stats()
		total.TotalGraphs++
		total.TotalSnapshots += stats.TotalSnapshots
		total.TotalSizeBytes += stats.TotalSizeBytes
		total.PerGraph[stats.GraphID] = stats
	}
	return total
}
