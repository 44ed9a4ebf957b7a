// GraphVault - Snapshot, Replication, and Disaster Recovery for Graph Stores
// Copyright 2026 GraphVault Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/graphvault/graphvault

package recovery

import "errors"

var (
	// ErrBusy indicates a failover is already in progress.
	ErrBusy = errors.New("failover already in progress")

	// ErrPointNotFound indicates the referenced recovery point does not
	// exist.
	ErrPointNotFound = errors.New("recovery point not found")

	// ErrPointInvalid indicates the recovery point no longer passes
	// validation and cannot back a failover.
	ErrPointInvalid = errors.New("recovery point no longer valid")

	// ErrGraphNotFound indicates a recovery point named a graph that is
	// not registered.
	ErrGraphNotFound = errors.New("graph not registered")

	// ErrGraphCritical indicates a recovery point was refused because at
	// least one graph failed validation.
	ErrGraphCritical = errors.New("graph in critical state")

	// ErrNoRecoveryPoints indicates a failover was requested before any
	// recovery point existed.
	ErrNoRecoveryPoints = errors.New("no recovery points available")
)
