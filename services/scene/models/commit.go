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
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxSummaryLen bounds the human-readable commit summary.
const MaxSummaryLen = 500

// MaxBranchNameLen bounds the branch name.
const MaxBranchNameLen = 100

// Commit is one immutable, parent-linked entry in a case's timeline.
//
// Causal order is defined by ParentCommitID (a nil parent is a root), not by
// CreatedAt; CreatedAt only orders the timeline listing. Commits are never
// mutated or deleted once appended.
type Commit struct {
	ID             uuid.UUID       `json:"id"`
	CaseID         uuid.UUID       `json:"case_id" validate:"required"`
	ParentCommitID *uuid.UUID      `json:"parent_commit_id,omitempty"`
	BranchID       *uuid.UUID      `json:"branch_id,omitempty"`
	Type           CommitType      `json:"type"`
	Summary        string          `json:"summary" validate:"required,max=500"`
	Payload        json.RawMessage `json:"payload"`
	CreatedBy      *uuid.UUID      `json:"created_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Validate checks the append preconditions: case set, known type,
// non-empty bounded summary.
func (c *Commit) Validate() error {
	if err := modelValidate.Struct(c); err != nil {
		return err
	}
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid commit type %q", c.Type)
	}
	return nil
}

// NewCommit builds a commit with a fresh ID and UTC timestamp. The payload
// is marshaled as-is; use the typed payload variants from payload.go to
// keep it decodable.
func NewCommit(caseID uuid.UUID, commitType CommitType, summary string, payload any) (*Commit, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal commit payload: %w", err)
	}
	return &Commit{
		ID:        uuid.New(),
		CaseID:    caseID,
		Type:      commitType,
		Summary:   summary,
		Payload:   payloadBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// SetParent links this commit under the given parent.
func (c *Commit) SetParent(parentID uuid.UUID) {
	c.ParentCommitID = &parentID
}

// SetBranch tags this commit with a hypothesis branch.
func (c *Commit) SetBranch(branchID uuid.UUID) {
	c.BranchID = &branchID
}

// Branch is a named pointer into the commit DAG: a hypothesis forked from
// BaseCommitID. A branch is a label, not a copy; commits on the branch carry
// BranchID and chain from the base (or a prior same-branch commit).
type Branch struct {
	ID           uuid.UUID `json:"id"`
	CaseID       uuid.UUID `json:"case_id" validate:"required"`
	Name         string    `json:"name" validate:"required,max=100"`
	BaseCommitID uuid.UUID `json:"base_commit_id" validate:"required"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate checks the create preconditions.
func (b *Branch) Validate() error {
	return modelValidate.Struct(b)
}

// NewBranch builds a branch with a fresh ID and UTC timestamp.
func NewBranch(caseID uuid.UUID, name string, baseCommitID uuid.UUID) *Branch {
	return &Branch{
		ID:           uuid.New(),
		CaseID:       caseID,
		Name:         name,
		BaseCommitID: baseCommitID,
		CreatedAt:    time.Now().UTC(),
	}
}

// Case groups a reconstruction's commits, branches, jobs and snapshot.
type Case struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description,omitempty"`
	CreatedBy   *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Validate checks the create preconditions.
func (c *Case) Validate() error {
	return modelValidate.Struct(c)
}

// NewCase builds a case with a fresh ID and UTC timestamp.
func NewCase(title, description string) *Case {
	return &Case{
		ID:          uuid.New(),
		Title:       title,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
}

// SceneSnapshot is the per-case materialized current state: the SceneGraph
// as of CommitID. One snapshot per case, upsert semantics. It is derived
// data, always rebuildable by replaying to CommitID.
type SceneSnapshot struct {
	CaseID     uuid.UUID   `json:"case_id"`
	CommitID   uuid.UUID   `json:"commit_id"`
	Scenegraph *SceneGraph `json:"scenegraph"`
	UpdatedAt  time.Time   `json:"updated_at"`
}
