// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workers runs the job execution side of the queue: a capability
// table mapping job types to worker implementations, and a manager that
// consumes messages, drives the job state machine, heartbeats running
// jobs, retries with backoff, and recovers zombies.
//
// Worker implementations themselves (the ML pipelines behind
// reconstruction, reasoning and the rest) live outside this repository;
// this package defines their contract and everything around it.
package workers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/AleutianAI/CaseTrace/services/scene/models"
	"github.com/AleutianAI/CaseTrace/services/scene/queue"
)

// ProgressFunc reports percent complete in [0,100]. Implementations may
// call it from any goroutine; the manager serializes the store write.
type ProgressFunc func(percent int)

// Worker executes jobs of one type.
type Worker interface {
	// Type is the job type this worker serves.
	Type() models.JobType

	// Execute runs one job to completion. The returned value is marshaled
	// into the job's output. Returning an error never panics the consumer;
	// wrap with Fatal to suppress retries, anything else is retryable.
	Execute(ctx context.Context, msg *queue.JobMessage, report ProgressFunc) (any, error)
}

// WorkerError classifies a failure for the retry policy.
type WorkerError struct {
	Err       error
	Retryable bool
}

func (e *WorkerError) Error() string {
	kind := "fatal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("%s worker error: %v", kind, e.Err)
}

func (e *WorkerError) Unwrap() error { return e.Err }

// Retryable wraps an error the retry policy may requeue: timeouts,
// transient upstream failures.
func Retryable(err error) *WorkerError {
	return &WorkerError{Err: err, Retryable: true}
}

// Fatal wraps an error no retry can fix: invalid input, a deleted case.
func Fatal(err error) *WorkerError {
	return &WorkerError{Err: err, Retryable: false}
}

// IsRetryable reports whether the retry policy may requeue after err.
// Unclassified errors default to retryable; only an explicit Fatal stops
// the retry loop early.
func IsRetryable(err error) bool {
	var we *WorkerError
	if errors.As(err, &we) {
		return we.Retryable
	}
	return true
}

// RetryConfig is the backoff policy for failed jobs.
type RetryConfig struct {
	// MaxRetries caps how many times a job returns to the queue.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration `json:"initial_backoff" yaml:"initial_backoff"`

	// MaxBackoff caps the exponential growth.
	MaxBackoff time.Duration `json:"max_backoff" yaml:"max_backoff"`

	// Multiplier is the exponential base.
	Multiplier float64 `json:"multiplier" yaml:"multiplier"`
}

// DefaultRetryConfig returns the production policy: 3 retries, 1s initial,
// doubled each attempt, capped at 30s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2,
	}
}

// Backoff returns the delay before retry number attempt (0-based).
func (rc RetryConfig) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(rc.InitialBackoff) * math.Pow(rc.Multiplier, float64(attempt))
	if d > float64(rc.MaxBackoff) {
		return rc.MaxBackoff
	}
	return time.Duration(d)
}
