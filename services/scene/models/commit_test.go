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
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCommit(t *testing.T) {
	caseID := uuid.New()
	c, err := NewCommit(caseID, CommitTypeUploadScan, "initial scan", UploadScanPayload{
		AssetKeys: []string{"scan/1.jpg"},
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, c.ID)
	assert.Equal(t, caseID, c.CaseID)
	assert.Nil(t, c.ParentCommitID)
	assert.Nil(t, c.BranchID)
	assert.False(t, c.CreatedAt.IsZero())
	require.NoError(t, c.Validate())
}

func TestCommitValidate(t *testing.T) {
	base := func() *Commit {
		c, err := NewCommit(uuid.New(), CommitTypeManualEdit, "remove chair", nil)
		require.NoError(t, err)
		return c
	}

	t.Run("missing case", func(t *testing.T) {
		c := base()
		c.CaseID = uuid.Nil
		assert.Error(t, c.Validate())
	})

	t.Run("empty summary", func(t *testing.T) {
		c := base()
		c.Summary = ""
		assert.Error(t, c.Validate())
	})

	t.Run("summary at limit", func(t *testing.T) {
		c := base()
		c.Summary = strings.Repeat("a", MaxSummaryLen)
		assert.NoError(t, c.Validate())
	})

	t.Run("summary over limit", func(t *testing.T) {
		c := base()
		c.Summary = strings.Repeat("a", MaxSummaryLen+1)
		assert.Error(t, c.Validate())
	})

	t.Run("unknown type", func(t *testing.T) {
		c := base()
		c.Type = "time_travel"
		assert.Error(t, c.Validate())
	})
}

func TestCommitParentAndBranch(t *testing.T) {
	c, err := NewCommit(uuid.New(), CommitTypeReconstructionUpdate, "pass 2", nil)
	require.NoError(t, err)

	parent := uuid.New()
	branch := uuid.New()
	c.SetParent(parent)
	c.SetBranch(branch)

	require.NotNil(t, c.ParentCommitID)
	require.NotNil(t, c.BranchID)
	assert.Equal(t, parent, *c.ParentCommitID)
	assert.Equal(t, branch, *c.BranchID)
}

// TestCommitJSONWireContract pins the field names other layers rely on.
func TestCommitJSONWireContract(t *testing.T) {
	c, err := NewCommit(uuid.New(), CommitTypeWitnessStatement, "witness A", WitnessStatementPayload{
		SourceName: "witness A", Content: "saw a van", Credibility: 0.6,
	})
	require.NoError(t, err)
	c.SetParent(uuid.New())

	data, err := json.Marshal(c)
	require.NoError(t, err)
	for _, field := range []string{`"id"`, `"case_id"`, `"parent_commit_id"`, `"type"`, `"summary"`, `"payload"`, `"created_at"`} {
		assert.Contains(t, string(data), field)
	}

	out := &Commit{}
	require.NoError(t, json.Unmarshal(data, out))
	assert.Equal(t, c.ID, out.ID)
	assert.Equal(t, *c.ParentCommitID, *out.ParentCommitID)
	assert.JSONEq(t, string(c.Payload), string(out.Payload))
}

func TestBranchValidate(t *testing.T) {
	b := NewBranch(uuid.New(), "window entry theory", uuid.New())
	require.NoError(t, b.Validate())

	t.Run("empty name", func(t *testing.T) {
		bad := *b
		bad.Name = ""
		assert.Error(t, bad.Validate())
	})

	t.Run("name over limit", func(t *testing.T) {
		bad := *b
		bad.Name = strings.Repeat("x", MaxBranchNameLen+1)
		assert.Error(t, bad.Validate())
	})

	t.Run("missing base commit", func(t *testing.T) {
		bad := *b
		bad.BaseCommitID = uuid.Nil
		assert.Error(t, bad.Validate())
	})
}
