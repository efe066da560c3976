// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scene

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/CaseTrace/services/scene/models"
	"github.com/AleutianAI/CaseTrace/services/scene/queue"
	"github.com/AleutianAI/CaseTrace/services/scene/store"
)

// CreateJobRequest describes one job submission.
type CreateJobRequest struct {
	CaseID uuid.UUID
	Type   models.JobType

	// Input is the typed job input (one of the models input structs) or
	// nil.
	Input any

	// IdempotencyKey deduplicates retried submissions. Empty disables
	// dedup.
	IdempotencyKey string
}

// CreateJob validates, persists and enqueues a job.
//
// Description:
//
//	A job type with no registered worker is rejected with ErrUnavailable
//	before anything is written — a job nobody can execute would just rot
//	in the queue. When the idempotency key matches an existing job, that
//	job is returned with created=false and nothing is enqueued. A full
//	transport is tolerated: the job record is durable and the rescanner
//	re-delivers.
//
// Outputs:
//
//	*models.Job - The stored job (prior job on an idempotency hit).
//	bool - True when a new job was created.
func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (*models.Job, bool, error) {
	ctx, span := s.tracer.Start(ctx, "scene.CreateJob",
		trace.WithAttributes(
			attribute.String("case_id", req.CaseID.String()),
			attribute.String("job_type", string(req.Type)),
		))
	defer span.End()

	if !req.Type.IsValid() {
		return nil, false, fmt.Errorf("%w: unknown job type %q", store.ErrValidation, req.Type)
	}
	if !s.caps.Has(req.Type) {
		return nil, false, fmt.Errorf("%w: no worker registered for job type %q", store.ErrUnavailable, req.Type)
	}
	if _, err := s.store.GetCase(ctx, req.CaseID); err != nil {
		return nil, false, err
	}

	j, err := models.NewJob(req.CaseID, req.Type, req.Input)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	if req.IdempotencyKey != "" {
		j.SetIdempotencyKey(req.IdempotencyKey)
	}

	stored, created, err := s.store.CreateJob(ctx, j)
	if err != nil {
		return nil, false, err
	}
	if !created {
		s.logger.Info("job deduplicated by idempotency key",
			"job_id", stored.ID, "key", req.IdempotencyKey)
		return stored, false, nil
	}

	if err := s.queue.Enqueue(ctx, queue.NewJobMessage(stored)); err != nil {
		if errors.Is(err, queue.ErrQueueFull) {
			s.logger.Warn("transport full, job deferred to rescanner", "job_id", stored.ID)
		} else {
			s.logger.Error("enqueue failed, job deferred to rescanner",
				"job_id", stored.ID, "error", err)
		}
	}
	s.logger.Info("job created", "job_id", stored.ID, "case_id", req.CaseID, "type", req.Type)
	return stored, true, nil
}

// GetJob loads a job.
func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return s.store.GetJob(ctx, id)
}

// ListJobs lists the case's jobs.
func (s *Service) ListJobs(ctx context.Context, caseID uuid.UUID) ([]*models.Job, error) {
	return s.store.ListJobsByCase(ctx, caseID)
}

// CancelJob moves a queued or running job to canceled. A terminal job
// returns ErrConflict. A running worker is not interrupted; its completion
// transition fails against the canceled record and its output is dropped.
func (s *Service) CancelJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := s.store.MutateJob(ctx, id, func(job *models.Job) error {
		if job.Status.IsTerminal() {
			return fmt.Errorf("%w: job already %s", store.ErrConflict, job.Status)
		}
		job.MarkCanceled()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("job canceled", "job_id", id)
	return j, nil
}

// OnJobDone turns a finished job's output into a commit on the case
// timeline. Satisfies the workers completion hook.
//
// The mapping is per job type: reconstruction → reconstruction_update,
// profile and imagegen → profile_update, reasoning → reasoning_result,
// export → export_report. The append path then refreshes the snapshot or
// profile as usual.
func (s *Service) OnJobDone(ctx context.Context, job *models.Job) error {
	req := AppendCommitRequest{CaseID: job.CaseID}

	switch job.Type {
	case models.JobTypeReconstruction:
		out := &models.ReconstructionOutput{}
		if err := json.Unmarshal(job.Output, out); err != nil {
			return fmt.Errorf("decode reconstruction output: %w", err)
		}
		req.Type = models.CommitTypeReconstructionUpdate
		req.Summary = fmt.Sprintf("Reconstruction pass (%d objects)", len(outObjects(out)))
		req.Payload = models.ReconstructionUpdatePayload{
			JobID:      job.ID.String(),
			SceneGraph: out.SceneGraph,
			Stats:      &out.Stats,
		}

	case models.JobTypeProfile:
		payload := &models.ProfileUpdatePayload{}
		if err := json.Unmarshal(job.Output, payload); err != nil {
			return fmt.Errorf("decode profile output: %w", err)
		}
		payload.JobID = job.ID.String()
		req.Type = models.CommitTypeProfileUpdate
		req.Summary = "Suspect profile updated"
		req.Payload = payload

	case models.JobTypeImageGen:
		out := struct {
			AssetKey string `json:"asset_key"`
		}{}
		if err := json.Unmarshal(job.Output, &out); err != nil {
			return fmt.Errorf("decode imagegen output: %w", err)
		}
		req.Type = models.CommitTypeProfileUpdate
		req.Summary = "Suspect portrait generated"
		req.Payload = models.ProfileUpdatePayload{
			JobID:            job.ID.String(),
			PortraitAssetKey: out.AssetKey,
		}

	case models.JobTypeReasoning:
		payload := &models.ReasoningResultPayload{}
		if err := json.Unmarshal(job.Output, payload); err != nil {
			return fmt.Errorf("decode reasoning output: %w", err)
		}
		payload.JobID = job.ID.String()
		req.Type = models.CommitTypeReasoningResult
		req.Summary = fmt.Sprintf("Reasoning result (%d trajectories)", len(payload.Trajectories))
		req.Payload = payload

	case models.JobTypeExport:
		payload := &models.ExportReportPayload{}
		if err := json.Unmarshal(job.Output, payload); err != nil {
			return fmt.Errorf("decode export output: %w", err)
		}
		payload.JobID = job.ID.String()
		req.Type = models.CommitTypeExportReport
		req.Summary = fmt.Sprintf("Report exported (%s)", payload.Format)
		req.Payload = payload

	default:
		return fmt.Errorf("no completion mapping for job type %q", job.Type)
	}

	if _, err := s.AppendCommit(ctx, req); err != nil {
		return fmt.Errorf("append completion commit for job %s: %w", job.ID, err)
	}
	return nil
}

func outObjects(out *models.ReconstructionOutput) []models.SceneObject {
	if out.SceneGraph == nil {
		return nil
	}
	return out.SceneGraph.Objects
}
