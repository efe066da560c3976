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
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CaseTrace/services/scene/models"
)

type stubJobLister struct {
	jobs []*models.Job
}

func (s *stubJobLister) ListQueuedJobs(ctx context.Context) ([]*models.Job, error) {
	return s.jobs, nil
}

func queuedJob(t *testing.T, jt models.JobType, age time.Duration) *models.Job {
	t.Helper()
	j, err := models.NewJob(uuid.New(), jt, nil)
	require.NoError(t, err)
	j.UpdatedAt = time.Now().UTC().Add(-age)
	return j
}

func TestRescannerSweepDeliversStaleQueuedJobs(t *testing.T) {
	stale := queuedJob(t, models.JobTypeReconstruction, time.Minute)
	fresh := queuedJob(t, models.JobTypeReconstruction, 0)

	q := NewMemoryQueue(10, nil, nil)
	defer q.Close()

	r, err := NewRescanner(&stubJobLister{jobs: []*models.Job{stale, fresh}}, q, RescannerConfig{
		Interval:          time.Second,
		Grace:             10 * time.Second,
		EnqueuesPerSecond: 1000,
	}, nil, nil)
	require.NoError(t, err)

	n, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := q.Dequeue(context.Background(), models.JobTypeReconstruction, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, stale.ID, got.JobID)

	// The fresh job was inside the grace window and stayed untouched.
	got, err = q.Dequeue(context.Background(), models.JobTypeReconstruction, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRescannerSweepToleratesFullLane(t *testing.T) {
	q := NewMemoryQueue(1, nil, nil)
	defer q.Close()
	require.NoError(t, q.Enqueue(context.Background(), testMessage(models.JobTypeExport)))

	jobs := []*models.Job{
		queuedJob(t, models.JobTypeExport, time.Minute),
		queuedJob(t, models.JobTypeExport, time.Minute),
	}
	r, err := NewRescanner(&stubJobLister{jobs: jobs}, q, RescannerConfig{
		Interval:          time.Second,
		Grace:             time.Second,
		EnqueuesPerSecond: 1000,
	}, nil, nil)
	require.NoError(t, err)

	// Lane is full: zero delivered, no error.
	n, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRescannerRunStopsOnCancel(t *testing.T) {
	q := NewMemoryQueue(10, nil, nil)
	defer q.Close()

	r, err := NewRescanner(&stubJobLister{}, q, RescannerConfig{
		Interval:          5 * time.Millisecond,
		Grace:             0,
		EnqueuesPerSecond: 1000,
	}, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	err = r.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewRescannerValidation(t *testing.T) {
	q := NewMemoryQueue(10, nil, nil)
	defer q.Close()

	_, err := NewRescanner(nil, q, DefaultRescannerConfig(), nil, nil)
	assert.Error(t, err)

	_, err = NewRescanner(&stubJobLister{}, nil, DefaultRescannerConfig(), nil, nil)
	assert.Error(t, err)
}
