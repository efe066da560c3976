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
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/CaseTrace/services/scene/models"
)

// DefaultMemoryCapacity is the per-type channel buffer.
const DefaultMemoryCapacity = 1000

// MemoryQueue is the in-process transport: one buffered channel per job
// type. Messages do not survive the process; the rescanner restores
// delivery from job records when it matters.
type MemoryQueue struct {
	mu          sync.RWMutex
	channels    map[models.JobType]chan *JobMessage
	maxAttempts int
	metrics     *Metrics
	logger      *slog.Logger
	closed      bool
}

// NewMemoryQueue creates a memory queue with one lane per known job type.
// capacity <= 0 uses DefaultMemoryCapacity; metrics and logger may be nil.
func NewMemoryQueue(capacity int, metrics *Metrics, logger *slog.Logger) *MemoryQueue {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	channels := make(map[models.JobType]chan *JobMessage, len(models.AllJobTypes()))
	for _, jt := range models.AllJobTypes() {
		channels[jt] = make(chan *JobMessage, capacity)
	}
	return &MemoryQueue{
		channels:    channels,
		maxAttempts: DefaultMaxAttempts,
		metrics:     metrics,
		logger:      logger,
	}
}

func (q *MemoryQueue) lane(jt models.JobType) (chan *JobMessage, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return nil, ErrQueueClosed
	}
	ch, ok := q.channels[jt]
	if !ok {
		return nil, fmt.Errorf("no lane for job type %q", jt)
	}
	return ch, nil
}

// Enqueue offers the message without blocking. A full lane returns
// ErrQueueFull; the job record stays queued and the rescanner retries.
func (q *MemoryQueue) Enqueue(ctx context.Context, msg *JobMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ch, err := q.lane(msg.Type)
	if err != nil {
		return err
	}
	select {
	case ch <- msg:
		q.metrics.Enqueued(string(msg.Type))
		q.metrics.SetDepth(string(msg.Type), len(ch))
		return nil
	default:
		q.metrics.Dropped(string(msg.Type))
		return fmt.Errorf("%w: %s lane at capacity", ErrQueueFull, msg.Type)
	}
}

// Dequeue waits up to timeout for a message. (nil, nil) means timeout.
func (q *MemoryQueue) Dequeue(ctx context.Context, jobType models.JobType, timeout time.Duration) (*JobMessage, error) {
	ch, err := q.lane(jobType)
	if err != nil {
		return nil, err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg, ok := <-ch:
		if !ok {
			return nil, ErrQueueClosed
		}
		msg.Attempts++
		msg.DequeuedAt = time.Now().UTC()
		msg.LastAttempt = msg.DequeuedAt
		q.metrics.Dequeued(string(jobType))
		q.metrics.SetDepth(string(jobType), len(ch))
		return msg, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Ack is a no-op: channel receive already removed the message.
func (q *MemoryQueue) Ack(ctx context.Context, msg *JobMessage) error {
	q.metrics.Acked(string(msg.Type))
	return nil
}

// Nack re-offers the message until the attempt cap, then drops it. The job
// record keeps the true state; a dropped message surfaces as a queued job
// the rescanner re-delivers or a zombie the recovery loop requeues.
func (q *MemoryQueue) Nack(ctx context.Context, msg *JobMessage) error {
	if msg.Attempts >= q.maxAttempts {
		q.logger.Warn("dropping message past attempt cap",
			"job_id", msg.JobID, "type", msg.Type, "attempts", msg.Attempts)
		q.metrics.Dropped(string(msg.Type))
		return nil
	}
	ch, err := q.lane(msg.Type)
	if err != nil {
		return err
	}
	select {
	case ch <- msg:
		q.metrics.Nacked(string(msg.Type))
		return nil
	default:
		q.metrics.Dropped(string(msg.Type))
		return fmt.Errorf("%w: %s lane at capacity", ErrQueueFull, msg.Type)
	}
}

// Length reports the buffered message count for a lane.
func (q *MemoryQueue) Length(ctx context.Context, jobType models.JobType) (int, error) {
	ch, err := q.lane(jobType)
	if err != nil {
		return 0, err
	}
	return len(ch), nil
}

// RecoverStale is a no-op: the memory backend has no in-flight state to
// recover. Zombie jobs are handled at the record level.
func (q *MemoryQueue) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

// Close marks the queue closed. Buffered messages are discarded with the
// process.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
