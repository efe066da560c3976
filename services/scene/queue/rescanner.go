// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/CaseTrace/services/scene/models"
)

// QueuedJobLister is the slice of the store the rescanner needs.
type QueuedJobLister interface {
	ListQueuedJobs(ctx context.Context) ([]*models.Job, error)
}

// Rescanner periodically re-delivers queued job records whose transport
// message was lost: dropped by a full memory lane, or discarded with the
// process. The job record is the authority, so re-offering a message that
// was not actually lost is harmless — the worker's status guard rejects
// the duplicate.
type Rescanner struct {
	store    QueuedJobLister
	queue    Queue
	interval time.Duration
	grace    time.Duration
	limiter  *rate.Limiter
	metrics  *Metrics
	logger   *slog.Logger
}

// RescannerConfig tunes the rescanner.
type RescannerConfig struct {
	// Interval between sweeps.
	Interval time.Duration

	// Grace is how long a job record may sit queued before the rescanner
	// re-offers it. Covers the normal enqueue-to-dequeue latency so fresh
	// jobs are not double-delivered.
	Grace time.Duration

	// EnqueuesPerSecond throttles re-delivery so a large backlog does not
	// monopolize the transport.
	EnqueuesPerSecond float64
}

// DefaultRescannerConfig returns production defaults.
func DefaultRescannerConfig() RescannerConfig {
	return RescannerConfig{
		Interval:          30 * time.Second,
		Grace:             15 * time.Second,
		EnqueuesPerSecond: 50,
	}
}

// NewRescanner creates a rescanner. metrics and logger may be nil.
func NewRescanner(store QueuedJobLister, q Queue, cfg RescannerConfig, metrics *Metrics, logger *slog.Logger) (*Rescanner, error) {
	if store == nil || q == nil {
		return nil, errors.New("store and queue must not be nil")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Grace < 0 {
		cfg.Grace = 0
	}
	if cfg.EnqueuesPerSecond <= 0 {
		cfg.EnqueuesPerSecond = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Rescanner{
		store:    store,
		queue:    q,
		interval: cfg.Interval,
		grace:    cfg.Grace,
		limiter:  rate.NewLimiter(rate.Limit(cfg.EnqueuesPerSecond), 1),
		metrics:  metrics,
		logger:   logger,
	}, nil
}

// Run sweeps until the context is canceled.
func (r *Rescanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("rescan sweep failed", "error", err)
			}
		}
	}
}

// Sweep re-offers every queued job record older than the grace period and
// returns how many were enqueued. ErrQueueFull on an individual job is not
// fatal; the next sweep tries again.
func (r *Rescanner) Sweep(ctx context.Context) (int, error) {
	jobs, err := r.store.ListQueuedJobs(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-r.grace)
	delivered := 0
	for _, j := range jobs {
		if j.UpdatedAt.After(cutoff) {
			continue
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return delivered, err
		}
		if err := r.queue.Enqueue(ctx, NewJobMessage(j)); err != nil {
			if errors.Is(err, ErrQueueFull) {
				r.logger.Warn("rescan enqueue deferred, lane full",
					"job_id", j.ID, "type", j.Type)
				continue
			}
			return delivered, err
		}
		delivered++
	}
	if delivered > 0 {
		r.metrics.Rescanned(delivered)
		r.logger.Info("re-delivered queued jobs", "count", delivered)
	}
	return delivered, nil
}
