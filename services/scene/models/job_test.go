// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob(t *testing.T) {
	caseID := uuid.New()
	j, err := NewJob(caseID, JobTypeReconstruction, map[string]any{"case_id": caseID.String()})
	require.NoError(t, err)

	assert.Equal(t, JobStatusQueued, j.Status)
	assert.Equal(t, 0, j.Progress)
	assert.Equal(t, 0, j.RetryCount)
	assert.Equal(t, j.CreatedAt, j.UpdatedAt)
	require.NoError(t, j.Validate())
}

// TestJobStateMachine walks the allowed transitions and rejects the rest.
func TestJobStateMachine(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		j, err := NewJob(uuid.New(), JobTypeReasoning, nil)
		require.NoError(t, err)

		require.NoError(t, j.MarkRunning())
		assert.Equal(t, JobStatusRunning, j.Status)

		require.NoError(t, j.MarkDone(map[string]any{"ok": true}))
		assert.Equal(t, JobStatusDone, j.Status)
		assert.Equal(t, 100, j.Progress)
		assert.NotEmpty(t, j.Output)
		assert.True(t, j.Status.IsTerminal())
	})

	t.Run("cannot run twice", func(t *testing.T) {
		j, err := NewJob(uuid.New(), JobTypeExport, nil)
		require.NoError(t, err)
		require.NoError(t, j.MarkRunning())
		assert.ErrorIs(t, j.MarkRunning(), ErrInvalidTransition)
	})

	t.Run("cannot complete from queued", func(t *testing.T) {
		j, err := NewJob(uuid.New(), JobTypeExport, nil)
		require.NoError(t, err)
		assert.ErrorIs(t, j.MarkDone(nil), ErrInvalidTransition)
	})

	t.Run("failed job requeues with retry count", func(t *testing.T) {
		j, err := NewJob(uuid.New(), JobTypeProfile, nil)
		require.NoError(t, err)
		require.NoError(t, j.MarkRunning())

		j.MarkFailed("model timeout")
		assert.Equal(t, JobStatusFailed, j.Status)
		assert.Equal(t, "model timeout", j.Error)

		j.Requeue()
		assert.Equal(t, JobStatusQueued, j.Status)
		assert.Equal(t, 1, j.RetryCount)
		assert.Equal(t, 0, j.Progress)
	})
}

// TestUpdateProgressBounds pins the [0,100] contract.
func TestUpdateProgressBounds(t *testing.T) {
	j, err := NewJob(uuid.New(), JobTypeImageGen, nil)
	require.NoError(t, err)

	assert.Error(t, j.UpdateProgress(-1))
	assert.Error(t, j.UpdateProgress(101))

	for _, p := range []int{0, 50, 100} {
		require.NoError(t, j.UpdateProgress(p))
		assert.Equal(t, p, j.Progress)
	}
}

func TestJobHeartbeatAdvancesUpdatedAt(t *testing.T) {
	j, err := NewJob(uuid.New(), JobTypeReconstruction, nil)
	require.NoError(t, err)

	j.UpdatedAt = time.Now().UTC().Add(-time.Minute)
	before := j.UpdatedAt
	j.Heartbeat()
	assert.True(t, j.UpdatedAt.After(before))
}

func TestReasoningInputDefaults(t *testing.T) {
	in := &ReasoningInput{CaseID: "c1", Scenegraph: NewEmptySceneGraph()}
	require.NoError(t, in.Validate())

	in.SetDefaults()
	assert.Equal(t, 3, in.MaxTrajectories)

	in.MaxTrajectories = 7
	in.SetDefaults()
	assert.Equal(t, 7, in.MaxTrajectories)
}

func TestReconstructionInputValidate(t *testing.T) {
	assert.Error(t, (&ReconstructionInput{CaseID: "c1"}).Validate())
	assert.Error(t, (&ReconstructionInput{CaseID: "c1", ScanAssetKeys: []string{""}}).Validate())
	assert.NoError(t, (&ReconstructionInput{CaseID: "c1", ScanAssetKeys: []string{"scan/1.jpg"}}).Validate())
}

func TestExportInputFormat(t *testing.T) {
	assert.NoError(t, (&ExportInput{CaseID: "c1", Format: "pdf"}).Validate())
	assert.Error(t, (&ExportInput{CaseID: "c1", Format: "docx"}).Validate())
}
