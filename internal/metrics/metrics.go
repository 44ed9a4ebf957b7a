// GraphVault - Snapshot, Replication, and Disaster Recovery for Graph Stores
// Copyright 2026 GraphVault Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/graphvault/graphvault

// Package metrics exposes Prometheus instrumentation for GraphVault:
// snapshot lifecycle, replication fan-out, target health, recovery
// checkpoints/failover, and the HTTP API surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Snapshot metrics
	SnapshotsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphvault_snapshots_created_total",
			Help: "Total number of snapshot create operations",
		},
		[]string{"graph_id", "result"},
	)

	SnapshotDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphvault_snapshot_duration_seconds",
			Help:    "Duration of snapshot create operations in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"graph_id"},
	)

	SnapshotBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphvault_snapshot_size_bytes",
			Help:    "Size of created snapshots in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KiB .. ~256GiB
		},
		[]string{"graph_id"},
	)

	SnapshotsRestored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphvault_snapshots_restored_total",
			Help: "Total number of snapshot restore operations",
		},
		[]string{"graph_id", "result"},
	)

	SnapshotsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "graphvault_snapshots_expired_total",
			Help: "Total number of snapshots deleted by retention cleanup",
		},
	)

	// Replication metrics
	ReplicationOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphvault_replication_operations_total",
			Help: "Total number of per-target replication attempts",
		},
		[]string{"target", "result"},
	)

	ReplicationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphvault_replication_duration_seconds",
			Help:    "Duration of per-target snapshot uploads in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"target"},
	)

	// TargetHealth tracks probe outcomes: 0=healthy, 1=degraded, 2=unreachable, 3=unknown
	TargetHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "graphvault_target_health_status",
			Help: "Last observed health of a replication target (0=healthy, 1=degraded, 2=unreachable, 3=unknown)",
		},
		[]string{"target"},
	)

	// Recovery metrics
	CheckpointsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphvault_checkpoints_created_total",
			Help: "Total number of recovery checkpoint create attempts",
		},
		[]string{"result"},
	)

	FailoversInitiated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphvault_failovers_total",
			Help: "Total number of failover attempts",
		},
		[]string{"result"},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphvault_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphvault_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Journal metrics
	JournalWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphvault_journal_writes_total",
			Help: "Total number of journal record writes",
		},
		[]string{"kind", "result"},
	)
)
