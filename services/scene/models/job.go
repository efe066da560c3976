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
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidTransition is returned when a job status change violates the
// queued → running → {done|failed|canceled} state machine.
var ErrInvalidTransition = errors.New("invalid job status transition")

// Job is the durable record of one asynchronous unit of work. The record is
// the authority for status; the transport queue is best-effort delivery
// only. UpdatedAt doubles as a liveness heartbeat while the job is running.
type Job struct {
	ID             uuid.UUID       `json:"id"`
	CaseID         uuid.UUID       `json:"case_id" validate:"required"`
	Type           JobType         `json:"type"`
	Status         JobStatus       `json:"status"`
	Progress       int             `json:"progress" validate:"gte=0,lte=100"`
	Input          json.RawMessage `json:"input"`
	Output         json.RawMessage `json:"output,omitempty"`
	Error          string          `json:"error,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	RetryCount     int             `json:"retry_count"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Validate checks field-level invariants.
func (j *Job) Validate() error {
	if err := modelValidate.Struct(j); err != nil {
		return err
	}
	if !j.Type.IsValid() {
		return fmt.Errorf("invalid job type %q", j.Type)
	}
	if !j.Status.IsValid() {
		return fmt.Errorf("invalid job status %q", j.Status)
	}
	return nil
}

// NewJob builds a queued job with a fresh ID and UTC timestamps.
func NewJob(caseID uuid.UUID, jobType JobType, input any) (*Job, error) {
	inputBytes, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal job input: %w", err)
	}
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.New(),
		CaseID:    caseID,
		Type:      jobType,
		Status:    JobStatusQueued,
		Input:     inputBytes,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// SetIdempotencyKey attaches the client-supplied dedup token.
func (j *Job) SetIdempotencyKey(key string) {
	j.IdempotencyKey = key
}

// MarkRunning transitions queued → running.
func (j *Job) MarkRunning() error {
	if j.Status != JobStatusQueued {
		return fmt.Errorf("%w: %s → running", ErrInvalidTransition, j.Status)
	}
	j.Status = JobStatusRunning
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateProgress records progress in [0,100].
func (j *Job) UpdateProgress(progress int) error {
	if progress < 0 || progress > 100 {
		return fmt.Errorf("progress must be between 0 and 100, got %d", progress)
	}
	j.Progress = progress
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkDone transitions running → done and stores the output.
func (j *Job) MarkDone(output any) error {
	if j.Status != JobStatusRunning {
		return fmt.Errorf("%w: %s → done", ErrInvalidTransition, j.Status)
	}
	outputBytes, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("marshal job output: %w", err)
	}
	j.Status = JobStatusDone
	j.Progress = 100
	j.Output = outputBytes
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkFailed transitions to failed with a human-readable error. Allowed
// from any non-terminal state; failures never throw past the worker
// boundary, they land here.
func (j *Job) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.Error = errMsg
	j.UpdatedAt = time.Now().UTC()
}

// MarkCanceled transitions to the terminal canceled state.
func (j *Job) MarkCanceled() {
	j.Status = JobStatusCanceled
	j.UpdatedAt = time.Now().UTC()
}

// Requeue returns a failed or zombie job to queued, bumping RetryCount.
func (j *Job) Requeue() {
	j.Status = JobStatusQueued
	j.Progress = 0
	j.RetryCount++
	j.UpdatedAt = time.Now().UTC()
}

// Heartbeat advances UpdatedAt so zombie detection sees the worker alive.
func (j *Job) Heartbeat() {
	j.UpdatedAt = time.Now().UTC()
}

// -----------------------------------------------------------------------------
// Typed job inputs and outputs
// -----------------------------------------------------------------------------

// ReconstructionInput is the input for reconstruction jobs.
type ReconstructionInput struct {
	CaseID             string      `json:"case_id" validate:"required"`
	ScanAssetKeys      []string    `json:"scan_asset_keys" validate:"required,min=1,dive,required"`
	DepthMaps          []string    `json:"depth_maps,omitempty"`
	ExistingScenegraph *SceneGraph `json:"existing_scenegraph,omitempty"`
}

// Validate checks the input shape.
func (r *ReconstructionInput) Validate() error {
	return modelValidate.Struct(r)
}

// ReconstructionOutput is what a reconstruction job produces; the worker
// wraps it into a reconstruction_update commit payload.
type ReconstructionOutput struct {
	SceneGraph         *SceneGraph         `json:"scenegraph"`
	MeshAssetKey       string              `json:"mesh_asset_key,omitempty"`
	UncertaintyRegions []UncertaintyRegion `json:"uncertainty_regions"`
	Stats              ProcessingStats     `json:"processing_stats"`
}

// ProcessingStats summarizes a reconstruction pass.
type ProcessingStats struct {
	InputImages      int   `json:"input_images"`
	DetectedObjects  int   `json:"detected_objects"`
	ProcessingTimeMs int64 `json:"processing_time_ms"`
}

// ReasoningInput is the input for reasoning jobs.
type ReasoningInput struct {
	CaseID              string       `json:"case_id" validate:"required"`
	Scenegraph          *SceneGraph  `json:"scenegraph" validate:"required"`
	BranchID            string       `json:"branch_id,omitempty"`
	ConstraintsOverride []Constraint `json:"constraints_override,omitempty"`
	MaxTrajectories     int          `json:"max_trajectories,omitempty" validate:"gte=0"`
}

// Validate checks the input shape.
func (r *ReasoningInput) Validate() error {
	return modelValidate.Struct(r)
}

// SetDefaults fills unset tunables.
func (r *ReasoningInput) SetDefaults() {
	if r.MaxTrajectories == 0 {
		r.MaxTrajectories = 3
	}
}

// Trajectory is one ranked movement hypothesis through the scene.
type Trajectory struct {
	ID          string       `json:"id"`
	Rank        int          `json:"rank"`
	Description string       `json:"description"`
	Confidence  float64      `json:"confidence"`
	Waypoints   [][3]float64 `json:"waypoints,omitempty"`
}

// Suggestion is a proposed next investigative step.
type Suggestion struct {
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}

// ProfileInput is the input for suspect-profile jobs.
type ProfileInput struct {
	CaseID     string                  `json:"case_id" validate:"required"`
	Statements []WitnessStatementInput `json:"statements,omitempty"`
}

// Validate checks the input shape.
func (p *ProfileInput) Validate() error {
	return modelValidate.Struct(p)
}

// WitnessStatementInput is one witness account fed to a profile job.
type WitnessStatementInput struct {
	SourceName  string  `json:"source_name" validate:"required"`
	Content     string  `json:"content" validate:"required"`
	Credibility float64 `json:"credibility" validate:"gte=0,lte=1"`
}

// Validate checks the statement shape.
func (ws *WitnessStatementInput) Validate() error {
	return modelValidate.Struct(ws)
}

// ExportInput is the input for export jobs.
type ExportInput struct {
	CaseID string `json:"case_id" validate:"required"`
	Format string `json:"format" validate:"required,oneof=pdf html json"`
}

// Validate checks the input shape.
func (e *ExportInput) Validate() error {
	return modelValidate.Struct(e)
}

// ImageGenInput is the input for image-generation jobs.
type ImageGenInput struct {
	CaseID string `json:"case_id" validate:"required"`
	Prompt string `json:"prompt" validate:"required"`
	Seed   int64  `json:"seed,omitempty"`
}

// Validate checks the input shape.
func (i *ImageGenInput) Validate() error {
	return modelValidate.Struct(i)
}
