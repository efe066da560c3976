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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CaseTrace/services/scene/models"
	storagebadger "github.com/AleutianAI/CaseTrace/services/scene/storage/badger"
)

func newDurableQueue(t *testing.T, opts ...DurableOption) *DurableQueue {
	t.Helper()
	db, err := storagebadger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	q, err := NewDurableQueue(db, nil, nil, opts...)
	require.NoError(t, err)
	return q
}

func TestDurableQueueRoundTrip(t *testing.T) {
	q := newDurableQueue(t)
	ctx := context.Background()

	msg := testMessage(models.JobTypeReconstruction)
	require.NoError(t, q.Enqueue(ctx, msg))

	n, err := q.Length(ctx, models.JobTypeReconstruction)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := q.Dequeue(ctx, models.JobTypeReconstruction, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, msg.JobID, got.JobID)
	assert.Equal(t, 1, got.Attempts)
	assert.False(t, got.DequeuedAt.IsZero())

	// Claimed, so the pending lane is empty.
	n, err = q.Length(ctx, models.JobTypeReconstruction)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, q.Ack(ctx, got))

	again, err := q.Dequeue(ctx, models.JobTypeReconstruction, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestDurableQueueFIFO(t *testing.T) {
	q := newDurableQueue(t)
	ctx := context.Background()

	first := testMessage(models.JobTypeExport)
	first.EnqueuedAt = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	second := testMessage(models.JobTypeExport)
	second.EnqueuedAt = time.Date(2026, 8, 1, 10, 0, 1, 0, time.UTC)

	require.NoError(t, q.Enqueue(ctx, second))
	require.NoError(t, q.Enqueue(ctx, first))

	got, err := q.Dequeue(ctx, models.JobTypeExport, time.Second)
	require.NoError(t, err)
	assert.Equal(t, first.JobID, got.JobID)
}

func TestDurableQueueDequeueTimeout(t *testing.T) {
	q := newDurableQueue(t, WithPollInterval(5*time.Millisecond))

	start := time.Now()
	got, err := q.Dequeue(context.Background(), models.JobTypeProfile, 25*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestDurableQueueNackRedelivers(t *testing.T) {
	q := newDurableQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testMessage(models.JobTypeReasoning)))

	got, err := q.Dequeue(ctx, models.JobTypeReasoning, time.Second)
	require.NoError(t, err)
	require.NoError(t, q.Nack(ctx, got))

	again, err := q.Dequeue(ctx, models.JobTypeReasoning, time.Second)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, got.JobID, again.JobID)
	assert.Equal(t, 2, again.Attempts)
}

func TestDurableQueueDeadLetter(t *testing.T) {
	q := newDurableQueue(t, WithMaxAttempts(2))
	ctx := context.Background()

	msg := testMessage(models.JobTypeImageGen)
	require.NoError(t, q.Enqueue(ctx, msg))

	for i := 0; i < 2; i++ {
		got, err := q.Dequeue(ctx, models.JobTypeImageGen, time.Second)
		require.NoError(t, err)
		require.NotNil(t, got, "attempt %d", i+1)
		require.NoError(t, q.Nack(ctx, got))
	}

	// Second nack hit the cap: nothing pending, one dead letter.
	got, err := q.Dequeue(ctx, models.JobTypeImageGen, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, got)

	dead, err := q.DeadLetters(ctx, models.JobTypeImageGen)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, msg.JobID, dead[0].JobID)
	assert.Equal(t, 2, dead[0].Attempts)
}

// TestDurableQueueRecoverStale: a claim abandoned by a dead consumer goes
// back to pending.
func TestDurableQueueRecoverStale(t *testing.T) {
	q := newDurableQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testMessage(models.JobTypeReconstruction)))

	got, err := q.Dequeue(ctx, models.JobTypeReconstruction, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)

	// Too fresh to recover.
	n, err := q.RecoverStale(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// With a zero threshold the claim is stale immediately.
	time.Sleep(5 * time.Millisecond)
	n, err = q.RecoverStale(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	again, err := q.Dequeue(ctx, models.JobTypeReconstruction, time.Second)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, got.JobID, again.JobID)
	assert.Equal(t, 2, again.Attempts)
}

// TestDurableQueueSurvivesReopen: pending messages persist across a
// database close and reopen.
func TestDurableQueueSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := storagebadger.DefaultConfig()
	cfg.Path = dir
	ctx := context.Background()

	db, err := storagebadger.Open(cfg)
	require.NoError(t, err)
	q, err := NewDurableQueue(db, nil, nil)
	require.NoError(t, err)

	msg := testMessage(models.JobTypeExport)
	require.NoError(t, q.Enqueue(ctx, msg))
	require.NoError(t, db.Close())

	db, err = storagebadger.Open(cfg)
	require.NoError(t, err)
	defer db.Close()
	q, err = NewDurableQueue(db, nil, nil)
	require.NoError(t, err)

	got, err := q.Dequeue(ctx, models.JobTypeExport, time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, msg.JobID, got.JobID)
}
