// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/CaseTrace/pkg/logging"
	"github.com/AleutianAI/CaseTrace/services/scene/config"
	"github.com/AleutianAI/CaseTrace/services/scene/queue"
	"github.com/AleutianAI/CaseTrace/services/scene/replay"
	"github.com/AleutianAI/CaseTrace/services/scene/scene"
	storagebadger "github.com/AleutianAI/CaseTrace/services/scene/storage/badger"
	"github.com/AleutianAI/CaseTrace/services/scene/store"
	"github.com/AleutianAI/CaseTrace/services/scene/workers"
	"github.com/AleutianAI/CaseTrace/services/scene/workers/export"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the service: store, queue, rescanner and metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		JSON:    cfg.Logging.JSON,
		LogDir:  cfg.Logging.LogDir,
		Service: cfg.Service,
	})
	defer logger.Close()
	log := logger.Slog()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbCfg := storagebadger.Config{
		Path:           cfg.Storage.Path,
		InMemory:       cfg.Storage.InMemory,
		SyncWrites:     cfg.Storage.SyncWrites,
		Logger:         log,
		GCInterval:     cfg.Storage.GCInterval.Std(),
		GCDiscardRatio: 0.5,
	}
	db, err := storagebadger.Open(dbCfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if dbCfg.GCInterval > 0 && !dbCfg.InMemory {
		gc, err := storagebadger.NewGCRunner(db, dbCfg, log)
		if err != nil {
			return err
		}
		gc.Start()
		defer gc.Stop()
	}

	st, err := store.New(db, log)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	queueMetrics := queue.NewMetrics(registry)

	var q queue.Queue
	switch cfg.Queue.Backend {
	case "memory":
		q = queue.NewMemoryQueue(cfg.Queue.Capacity, queueMetrics, log)
	default:
		q, err = queue.NewDurableQueue(db, queueMetrics, log,
			queue.WithMaxAttempts(cfg.Queue.MaxAttempts))
		if err != nil {
			return err
		}
	}
	defer q.Close()

	rescanner, err := queue.NewRescanner(st, q, queue.RescannerConfig{
		Interval:          cfg.Queue.Rescanner.Interval.Std(),
		Grace:             cfg.Queue.Rescanner.Grace.Std(),
		EnqueuesPerSecond: cfg.Queue.Rescanner.EnqueuesPerSecond,
	}, queueMetrics, log)
	if err != nil {
		return err
	}

	engine := replay.NewEngine(log)

	exportWorker, err := export.New(st, cfg.Storage.ExportDir, log)
	if err != nil {
		return err
	}
	caps, err := workers.NewCapabilities(exportWorker)
	if err != nil {
		return err
	}

	// The capability table gates job creation: a type no consume loop in
	// this process serves is rejected up front instead of queueing work
	// that would sit in an unserved lane.
	svc, err := scene.NewService(st, q, engine, caps, log)
	if err != nil {
		return err
	}
	manager, err := workers.NewManager(q, st, caps, svc,
		cfg.Workers.ManagerConfig(), workers.NewMetrics(registry), log)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rescanner.Run(ctx) })
	g.Go(func() error { return manager.Run(ctx) })

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			log.Info("metrics endpoint up", "addr", cfg.Metrics.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	log.Info("casetrace serving",
		"storage", cfg.Storage.Path, "queue_backend", cfg.Queue.Backend)

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		log.Info("shutdown complete")
		return nil
	}
	return err
}
