// GraphVault - Snapshot, Replication, and Disaster Recovery for Graph Stores
// Copyright 2026 GraphVault Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/graphvault/graphvault

package replication

import "errors"

var (
	// ErrTargetNotFound indicates the referenced target is not registered.
	ErrTargetNotFound = errors.New("replication target not found")

	// ErrTargetExists indicates a registration reused an id that is
	// already in the registry.
	ErrTargetExists = errors.New("replication target already registered")

	// ErrNoTargets indicates a replication was requested with no enabled
	// targets to ship to.
	ErrNoTargets = errors.New("no enabled replication targets")

	// ErrNotReplicable indicates the snapshot is not in a state that can
	// be shipped (not completed, or its data is gone).
	ErrNotReplicable = errors.New("snapshot not replicable")
)
