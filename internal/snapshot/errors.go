// GraphVault - Snapshot, Replication, and Disaster Recovery for Graph Stores
// Copyright 2026 GraphVault Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/graphvault/graphvault

package snapshot

import "errors"

var (
	// ErrNotFound indicates the requested snapshot does not exist.
	ErrNotFound = errors.New("snapshot not found")

	// ErrInvalidState indicates the snapshot exists but cannot be used for
	// the requested operation (not completed, expired, or data missing).
	ErrInvalidState = errors.New("snapshot not in a valid state")

	// ErrIntegrity indicates restored data did not match the recorded
	// content hash.
	ErrIntegrity = errors.New("snapshot integrity check failed")
)
