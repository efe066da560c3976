// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/CaseTrace/services/scene/models"
	"github.com/AleutianAI/CaseTrace/services/scene/queue"
	"github.com/AleutianAI/CaseTrace/services/scene/store"
)

// JobStore is the slice of the record store the manager needs.
type JobStore interface {
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	MutateJob(ctx context.Context, id uuid.UUID, fn func(*models.Job) error) (*models.Job, error)
	ListZombieJobs(ctx context.Context, cutoff time.Time) ([]*models.Job, error)
}

// Completer is notified when a job reaches done. The scene service hooks
// this to append the result commit and refresh the snapshot.
type Completer interface {
	OnJobDone(ctx context.Context, job *models.Job) error
}

// ManagerConfig tunes the manager loops.
type ManagerConfig struct {
	// DequeueTimeout is the per-poll wait on an empty lane.
	DequeueTimeout time.Duration `json:"dequeue_timeout" yaml:"dequeue_timeout"`

	// HeartbeatInterval is how often a running job's UpdatedAt advances.
	// Must be well under ZombieAfter.
	HeartbeatInterval time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`

	// ZombieAfter is the heartbeat silence that marks a running job dead.
	ZombieAfter time.Duration `json:"zombie_after" yaml:"zombie_after"`

	// ZombieSweepInterval is how often the recovery loop runs.
	ZombieSweepInterval time.Duration `json:"zombie_sweep_interval" yaml:"zombie_sweep_interval"`

	// Retry is the backoff policy for failed jobs.
	Retry RetryConfig `json:"retry" yaml:"retry"`
}

// DefaultManagerConfig returns production defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		DequeueTimeout:      2 * time.Second,
		HeartbeatInterval:   10 * time.Second,
		ZombieAfter:         2 * time.Minute,
		ZombieSweepInterval: time.Minute,
		Retry:               DefaultRetryConfig(),
	}
}

// Validate checks the loop timings are coherent.
func (c ManagerConfig) Validate() error {
	if c.DequeueTimeout <= 0 || c.HeartbeatInterval <= 0 ||
		c.ZombieAfter <= 0 || c.ZombieSweepInterval <= 0 {
		return errors.New("manager intervals must be positive")
	}
	if c.HeartbeatInterval >= c.ZombieAfter {
		return errors.New("heartbeat interval must be shorter than the zombie threshold")
	}
	return nil
}

// Manager consumes the queue and drives the job state machine. One
// consumer goroutine per registered capability plus a zombie sweep, all
// under one errgroup.
type Manager struct {
	queue     queue.Queue
	store     JobStore
	caps      *Capabilities
	completer Completer
	cfg       ManagerConfig
	metrics   *Metrics
	logger    *slog.Logger
}

// NewManager wires the manager. completer, metrics and logger may be nil.
func NewManager(q queue.Queue, js JobStore, caps *Capabilities, completer Completer, cfg ManagerConfig, metrics *Metrics, logger *slog.Logger) (*Manager, error) {
	if q == nil || js == nil || caps == nil {
		return nil, errors.New("queue, store and capabilities must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		queue:     q,
		store:     js,
		caps:      caps,
		completer: completer,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
	}, nil
}

// Run blocks until the context is canceled, then drains the loops.
func (m *Manager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, jt := range m.caps.Types() {
		g.Go(func() error { return m.consumeLoop(ctx, jt) })
	}
	g.Go(func() error { return m.zombieLoop(ctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (m *Manager) consumeLoop(ctx context.Context, jt models.JobType) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := m.queue.Dequeue(ctx, jt, m.cfg.DequeueTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrQueueClosed) {
				return err
			}
			m.logger.Error("dequeue failed", "type", jt, "error", err)
			continue
		}
		if msg == nil {
			continue
		}
		m.process(ctx, msg)
	}
}

// process drives one delivery through the state machine. Errors inside
// never propagate: the job record and the queue message are left in a
// state the retry machinery can pick up.
func (m *Manager) process(ctx context.Context, msg *queue.JobMessage) {
	started := time.Now()

	// Status guard: only a queued record may start running. A duplicate
	// delivery or a canceled job fails the transition; the message is
	// settled without work.
	job, err := m.store.MutateJob(ctx, msg.JobID, func(j *models.Job) error {
		return j.MarkRunning()
	})
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) || errors.Is(err, store.ErrNotFound) {
			m.logger.Debug("dropping stale delivery", "job_id", msg.JobID, "error", err)
			m.settle(ctx, msg, true)
			return
		}
		m.logger.Error("failed to start job, redelivering", "job_id", msg.JobID, "error", err)
		m.settle(ctx, msg, false)
		return
	}

	w := m.caps.Get(job.Type)
	if w == nil {
		// Routed to a lane nothing serves; record the fault and settle.
		m.failJob(ctx, job.ID, fmt.Sprintf("no worker for job type %q", job.Type))
		m.settle(ctx, msg, true)
		return
	}

	runCtx, stopHeartbeat := context.WithCancel(ctx)
	heartbeatDone := make(chan struct{})
	go m.heartbeat(runCtx, job.ID, heartbeatDone)

	output, execErr := w.Execute(runCtx, msg, func(percent int) {
		m.reportProgress(runCtx, job.ID, percent)
	})

	stopHeartbeat()
	<-heartbeatDone

	if execErr == nil {
		m.handleSuccess(ctx, msg, job.ID, output)
	} else {
		m.handleFailure(ctx, msg, job.ID, execErr)
	}
	m.metrics.ObserveDuration(string(job.Type), time.Since(started))
}

func (m *Manager) handleSuccess(ctx context.Context, msg *queue.JobMessage, jobID uuid.UUID, output any) {
	job, err := m.store.MutateJob(ctx, jobID, func(j *models.Job) error {
		return j.MarkDone(output)
	})
	if err != nil {
		m.logger.Error("failed to record job completion", "job_id", jobID, "error", err)
		m.settle(ctx, msg, false)
		return
	}
	m.metrics.Processed(string(job.Type), "done")
	m.logger.Info("job done", "job_id", jobID, "type", job.Type)

	if m.completer != nil {
		if err := m.completer.OnJobDone(ctx, job); err != nil {
			// The job itself succeeded; the follow-on commit failing is
			// logged, not retried through the queue.
			m.logger.Error("job completion hook failed", "job_id", jobID, "error", err)
		}
	}
	m.settle(ctx, msg, true)
}

func (m *Manager) handleFailure(ctx context.Context, msg *queue.JobMessage, jobID uuid.UUID, execErr error) {
	current, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		m.logger.Error("failed to load job after failure", "job_id", jobID, "error", err)
		m.settle(ctx, msg, false)
		return
	}

	retryable := IsRetryable(execErr) && current.RetryCount < m.cfg.Retry.MaxRetries
	if !retryable {
		m.failJob(ctx, jobID, execErr.Error())
		m.metrics.Processed(string(current.Type), "failed")
		m.logger.Warn("job failed permanently",
			"job_id", jobID, "type", current.Type,
			"retries", current.RetryCount, "error", execErr)
		// Fatal or out of retries: the record is terminal, so the message
		// is settled rather than redelivered.
		m.settle(ctx, msg, true)
		return
	}

	attempt := current.RetryCount
	_, err = m.store.MutateJob(ctx, jobID, func(j *models.Job) error {
		j.MarkFailed(execErr.Error())
		j.Requeue()
		return nil
	})
	if err != nil {
		m.logger.Error("failed to requeue job", "job_id", jobID, "error", err)
		m.settle(ctx, msg, false)
		return
	}
	m.metrics.Processed(string(current.Type), "retried")
	m.logger.Info("job requeued after failure",
		"job_id", jobID, "attempt", attempt+1, "error", execErr)

	backoff := m.cfg.Retry.Backoff(attempt)
	timer := time.NewTimer(backoff)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
	}
	m.settle(ctx, msg, false)
}

// settle acks or nacks with logging only; at this point the job record is
// already authoritative.
func (m *Manager) settle(ctx context.Context, msg *queue.JobMessage, ok bool) {
	var err error
	if ok {
		err = m.queue.Ack(ctx, msg)
	} else {
		err = m.queue.Nack(ctx, msg)
	}
	if err != nil {
		m.logger.Warn("failed to settle message", "job_id", msg.JobID, "ack", ok, "error", err)
	}
}

func (m *Manager) failJob(ctx context.Context, jobID uuid.UUID, reason string) {
	if _, err := m.store.MutateJob(ctx, jobID, func(j *models.Job) error {
		j.MarkFailed(reason)
		return nil
	}); err != nil {
		m.logger.Error("failed to mark job failed", "job_id", jobID, "error", err)
	}
}

func (m *Manager) reportProgress(ctx context.Context, jobID uuid.UUID, percent int) {
	if _, err := m.store.MutateJob(ctx, jobID, func(j *models.Job) error {
		return j.UpdateProgress(percent)
	}); err != nil {
		m.logger.Warn("failed to record progress", "job_id", jobID, "error", err)
	}
}

// heartbeat advances the running job's UpdatedAt until stopped, keeping it
// out of the zombie sweep while the worker is genuinely alive.
func (m *Manager) heartbeat(ctx context.Context, jobID uuid.UUID, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.store.MutateJob(context.WithoutCancel(ctx), jobID, func(j *models.Job) error {
				j.Heartbeat()
				return nil
			}); err != nil {
				m.logger.Warn("heartbeat failed", "job_id", jobID, "error", err)
			}
		}
	}
}

func (m *Manager) zombieLoop(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.ZombieSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n, err := m.RecoverZombies(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Error("zombie sweep failed", "error", err)
			} else if n > 0 {
				m.metrics.ZombiesRecovered(n)
			}
		}
	}
}

// RecoverZombies requeues running jobs whose heartbeat went silent and
// returns stale in-flight transport claims to pending. Jobs past the
// retry cap are failed instead of looping forever.
func (m *Manager) RecoverZombies(ctx context.Context) (int, error) {
	if _, err := m.queue.RecoverStale(ctx, m.cfg.ZombieAfter); err != nil {
		return 0, fmt.Errorf("recover stale transport claims: %w", err)
	}

	cutoff := time.Now().UTC().Add(-m.cfg.ZombieAfter)
	zombies, err := m.store.ListZombieJobs(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list zombie jobs: %w", err)
	}

	recovered := 0
	for _, z := range zombies {
		if z.RetryCount >= m.cfg.Retry.MaxRetries {
			m.failJob(ctx, z.ID, "worker died and retry cap reached")
			m.logger.Warn("zombie job failed permanently", "job_id", z.ID, "retries", z.RetryCount)
			recovered++
			continue
		}
		job, err := m.store.MutateJob(ctx, z.ID, func(j *models.Job) error {
			if j.Status != models.JobStatusRunning {
				return fmt.Errorf("%w: job no longer running", models.ErrInvalidTransition)
			}
			j.Requeue()
			return nil
		})
		if err != nil {
			// Lost the race with a live worker finishing; fine.
			if !errors.Is(err, models.ErrInvalidTransition) {
				m.logger.Error("failed to requeue zombie", "job_id", z.ID, "error", err)
			}
			continue
		}
		if err := m.queue.Enqueue(ctx, queue.NewJobMessage(job)); err != nil {
			// Record is queued; the rescanner will deliver it later.
			m.logger.Warn("zombie requeued but enqueue failed", "job_id", z.ID, "error", err)
		}
		m.logger.Info("zombie job requeued", "job_id", z.ID, "retries", job.RetryCount)
		recovered++
	}
	return recovered, nil
}
