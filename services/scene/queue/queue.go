// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package queue provides at-least-once job delivery between the service
// layer and the workers. The queue carries pointers, not state: the job
// record in the store is the authority, and a lost or duplicated message
// is recoverable from it.
//
// Two backends implement Queue: an in-process channel queue for tests and
// single-node runs, and a BadgerDB-backed durable queue that survives
// restarts.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/CaseTrace/services/scene/models"
)

var (
	// ErrQueueFull is returned by a non-blocking enqueue against a full
	// transport. The job record stays queued; the rescanner re-delivers.
	ErrQueueFull = errors.New("queue full")

	// ErrQueueClosed is returned after Close.
	ErrQueueClosed = errors.New("queue closed")
)

// DefaultMaxAttempts is the delivery cap before a message is dead-lettered
// (durable backend) or dropped (memory backend).
const DefaultMaxAttempts = 3

// JobMessage is the transport envelope for one job delivery. It carries
// everything a worker needs to start without a store read; the store is
// still consulted for the status guard.
type JobMessage struct {
	JobID       uuid.UUID       `json:"job_id"`
	CaseID      uuid.UUID       `json:"case_id"`
	Type        models.JobType  `json:"type"`
	Input       json.RawMessage `json:"input,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	Attempts    int             `json:"attempts"`
	DequeuedAt  time.Time       `json:"dequeued_at,omitempty"`
	LastAttempt time.Time       `json:"last_attempt,omitempty"`
}

// NewJobMessage builds the envelope for a stored job.
func NewJobMessage(j *models.Job) *JobMessage {
	return &JobMessage{
		JobID:      j.ID,
		CaseID:     j.CaseID,
		Type:       j.Type,
		Input:      j.Input,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Queue is the delivery transport. Implementations are safe for concurrent
// producers and consumers.
type Queue interface {
	// Enqueue offers a message for delivery. Non-blocking: a full
	// transport returns ErrQueueFull rather than stalling the caller.
	Enqueue(ctx context.Context, msg *JobMessage) error

	// Dequeue blocks up to timeout for a message of the given type.
	// Returns (nil, nil) on timeout so consumer loops can poll without
	// treating silence as a fault.
	Dequeue(ctx context.Context, jobType models.JobType, timeout time.Duration) (*JobMessage, error)

	// Ack marks the message fully processed and drops it from the
	// transport.
	Ack(ctx context.Context, msg *JobMessage) error

	// Nack returns the message for redelivery, or removes it once the
	// attempt cap is reached.
	Nack(ctx context.Context, msg *JobMessage) error

	// Length reports the number of pending messages for a job type.
	Length(ctx context.Context, jobType models.JobType) (int, error)

	// RecoverStale requeues messages stuck in the in-flight state longer
	// than olderThan and reports how many were moved. Backends without an
	// in-flight state return 0.
	RecoverStale(ctx context.Context, olderThan time.Duration) (int, error)

	// Close releases the transport. Pending messages in a durable backend
	// survive; in-memory messages are lost (and re-delivered from job
	// records by the rescanner on restart of a durable deployment).
	Close() error
}
