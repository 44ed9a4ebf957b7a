// GraphVault - Snapshot, Replication, and Disaster Recovery for Graph Stores
// Copyright 2026 GraphVault Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/graphvault/graphvault

// Command server runs the GraphVault daemon: the HTTP API plus the
// supervised maintenance loops for retention sweeps, target health
// monitoring, and automatic recovery checkpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/graphvault/graphvault/internal/api"
	"github.com/graphvault/graphvault/internal/config"
	"github.com/graphvault/graphvault/internal/journal"
	"github.com/graphvault/graphvault/internal/logging"
	"github.com/graphvault/graphvault/internal/recovery"
	"github.com/graphvault/graphvault/internal/replication"
	"github.com/graphvault/graphvault/internal/snapshot"
	"github.com/graphvault/graphvault/internal/supervisor"
	"github.com/graphvault/graphvault/internal/supervisor/services"
)

func main() {
	configPath := flag.String("config", "", "path to graphvault.yaml (default: discover)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logging.Fatal().Err(err).Msg("GraphVault failed to start")
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logOutput := os.Stderr
	if cfg.Logging.Output == "stdout" {
		logOutput = os.Stdout
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: logOutput,
	})
	logger := logging.With().Str("component", "main").Logger()
	logger.Info().Str("addr", cfg.Server.Addr()).Msg("Starting GraphVault")

	// Journal: every snapshot, replication, and recovery event lands here.
	var recorder journal.Recorder = journal.Nop{}
	if cfg.Journal.Enabled {
		j, err := journal.Open(journal.Options{
			Path:          cfg.Journal.Path,
			SyncWrites:    cfg.Journal.SyncWrites,
			RetentionDays: cfg.Journal.RetentionDays,
		})
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer func() {
			if err := j.Close(); err != nil {
				logger.Error().Err(err).Msg("Failed to close journal")
			}
		}()
		recorder = j
	}

	snapshots := snapshot.NewCoordinator(snapshot.CoordinatorConfig{
		BaseDir:         cfg.Snapshots.BaseDir,
		Retention:       cfg.Snapshots.Retention(),
		CleanupInterval: cfg.Snapshots.CleanupInterval(),
	}, recorder)

	workdir := cfg.Graphs.Workdir
	for _, graphID := range cfg.Graphs.IDs {
		if err := os.MkdirAll(workdir(graphID), 0o750); err != nil {
			return fmt.Errorf("create workdir for graph %s: %w", graphID, err)
		}
		if _, err := snapshots.RegisterGraph(graphID); err != nil {
			return fmt.Errorf("register graph %s: %w", graphID, err)
		}
	}

	repl := replication.NewCoordinator(replication.NewClient(nil), recorder)
	for _, tc := range cfg.Replication.Targets {
		target := replication.NewTarget(tc.ID, tc.Name, tc.URL, tc.Credential, tc.Enabled, tc.MaxConcurrent)
		if err := repl.RegisterTarget(target); err != nil {
			return fmt.Errorf("register replication target %s: %w", tc.ID, err)
		}
	}

	validator := recovery.NewValidator(workdirProbe(workdir), func(context.Context) bool {
		return repl.AnyHealthy()
	})
	rec := recovery.NewCoordinator(snapshots, validator, workdir, recorder)

	server := api.NewServer(cfg.Server, snapshots, repl, rec, recorder, workdir)
	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddMaintenanceService(services.NewCleanupService(snapshots, cfg.Snapshots.SweepInterval()))
	tree.AddMaintenanceService(services.NewHealthService(repl, cfg.Replication.HealthCheckInterval(), cfg.Replication.ProbesPerSecond))
	if cfg.Recovery.AutoCheckpoint {
		tree.AddMaintenanceService(services.NewCheckpointService(rec, cfg.Recovery.CheckpointInterval()))
	}
	tree.AddAPIService(services.NewHTTPService(httpServer, time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervisor: %w", err)
	}

	if unstopped, reportErr := tree.UnstoppedServiceReport(); reportErr == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			logger.Warn().Str("service", svc.Name).Msg("Service did not stop cleanly")
		}
	}

	logger.Info().Msg("GraphVault stopped")
	return nil
}

// workdirProbe is the default graph integrity probe: the working directory
// must exist and be readable. Deployments with richer invariants can swap
// in their own probe.
func workdirProbe(workdir recovery.WorkdirResolver) recovery.GraphProbe {
	return func(_ context.Context, graphID string) error {
		dir := workdir(graphID)
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("graph workdir %s: %w", dir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("graph workdir %s is not a directory", dir)
		}
		if _, err := os.ReadDir(dir); err != nil {
			return fmt.Errorf("read graph workdir %s: %w", dir, err)
		}
		return nil
	}
}
