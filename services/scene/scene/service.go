// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scene is the service facade over the commit log, replay engine,
// diff engine and job queue. Transport layers (HTTP, CLI) call this
// package and nothing below it.
package scene

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/CaseTrace/services/scene/diff"
	"github.com/AleutianAI/CaseTrace/services/scene/models"
	"github.com/AleutianAI/CaseTrace/services/scene/queue"
	"github.com/AleutianAI/CaseTrace/services/scene/replay"
	"github.com/AleutianAI/CaseTrace/services/scene/store"
)

// Availability answers whether a job type has a registered worker. The
// workers capability table satisfies this; tests stub it.
type Availability interface {
	Has(jt models.JobType) bool
}

// availabilityFunc adapts a function to Availability.
type availabilityFunc func(models.JobType) bool

func (f availabilityFunc) Has(jt models.JobType) bool { return f(jt) }

// AllowAllJobTypes is an Availability that accepts every valid type. For
// deployments where workers run out of process and registration is not
// visible here.
var AllowAllJobTypes Availability = availabilityFunc(func(jt models.JobType) bool {
	return jt.IsValid()
})

// Service is the façade. Construct with NewService; all fields are
// immutable afterwards and the service is safe for concurrent use.
type Service struct {
	store  *store.Store
	queue  queue.Queue
	engine *replay.Engine
	caps   Availability
	logger *slog.Logger
	tracer trace.Tracer
}

// NewService wires the facade. caps may be nil (falls back to
// AllowAllJobTypes); logger may be nil.
func NewService(s *store.Store, q queue.Queue, engine *replay.Engine, caps Availability, logger *slog.Logger) (*Service, error) {
	if s == nil || q == nil || engine == nil {
		return nil, errors.New("store, queue and replay engine must not be nil")
	}
	if caps == nil {
		caps = AllowAllJobTypes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  s,
		queue:  q,
		engine: engine,
		caps:   caps,
		logger: logger,
		tracer: otel.Tracer("casetrace/scene"),
	}, nil
}

// -----------------------------------------------------------------------------
// Cases
// -----------------------------------------------------------------------------

// CreateCase creates a case.
func (s *Service) CreateCase(ctx context.Context, title, description string) (*models.Case, error) {
	c := models.NewCase(title, description)
	if err := s.store.CreateCase(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("case created", "case_id", c.ID, "title", title)
	return c, nil
}

// GetCase loads a case.
func (s *Service) GetCase(ctx context.Context, id uuid.UUID) (*models.Case, error) {
	return s.store.GetCase(ctx, id)
}

// ListCases lists all cases.
func (s *Service) ListCases(ctx context.Context) ([]*models.Case, error) {
	return s.store.ListCases(ctx)
}

// -----------------------------------------------------------------------------
// Commits
// -----------------------------------------------------------------------------

// AppendCommitRequest describes one commit to append.
type AppendCommitRequest struct {
	CaseID  uuid.UUID
	Type    models.CommitType
	Summary string

	// Payload is the typed payload (one of the models payload variants) or
	// nil. It is round-tripped through the type's decoder before the write
	// so a malformed payload is rejected up front, not at replay time.
	Payload any

	// ParentCommitID pins the parent explicitly. Nil means "current head":
	// the branch head when BranchID is set, otherwise the latest main-line
	// commit, or a root commit for an empty case.
	ParentCommitID *uuid.UUID

	BranchID  *uuid.UUID
	CreatedBy *uuid.UUID
}

// AppendCommit appends a commit to the case timeline.
//
// Description:
//
//	Resolves the parent, validates the payload against the commit type's
//	schema, writes the commit, and — for scene-mutating commit types on
//	the main line — synchronously refreshes the materialized snapshot so
//	a read straight after the append sees the new state. A snapshot
//	refresh failure is logged, not returned: the commit is durable and
//	the snapshot is rebuildable.
func (s *Service) AppendCommit(ctx context.Context, req AppendCommitRequest) (*models.Commit, error) {
	ctx, span := s.tracer.Start(ctx, "scene.AppendCommit",
		trace.WithAttributes(
			attribute.String("case_id", req.CaseID.String()),
			attribute.String("commit_type", string(req.Type)),
		))
	defer span.End()

	c, err := models.NewCommit(req.CaseID, req.Type, req.Summary, req.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}
	c.CreatedBy = req.CreatedBy

	// Payload must decode under its declared type before it enters the
	// immutable log.
	if _, err := models.DecodePayload(req.Type, c.Payload); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	if req.BranchID != nil {
		c.SetBranch(*req.BranchID)
	}

	if req.ParentCommitID != nil {
		c.SetParent(*req.ParentCommitID)
	} else {
		parent, err := s.resolveHead(ctx, req.CaseID, req.BranchID)
		if err != nil {
			return nil, err
		}
		if parent != nil {
			c.SetParent(*parent)
		}
	}

	if err := s.store.AppendCommit(ctx, c); err != nil {
		return nil, err
	}
	s.logger.Info("commit appended",
		"case_id", c.CaseID, "commit_id", c.ID, "type", c.Type)

	if c.BranchID == nil {
		if c.Type.MutatesSceneGraph() {
			if _, err := s.RefreshSnapshot(ctx, c.CaseID); err != nil {
				s.logger.Error("snapshot refresh failed after commit",
					"case_id", c.CaseID, "commit_id", c.ID, "error", err)
			}
		}
		if c.Type == models.CommitTypeProfileUpdate {
			if err := s.refreshProfile(ctx, c.CaseID); err != nil {
				s.logger.Error("profile refresh failed after commit",
					"case_id", c.CaseID, "commit_id", c.ID, "error", err)
			}
		}
	}
	return c, nil
}

// resolveHead finds the default parent for a new commit: the newest commit
// on the branch (falling back to the branch base), or the newest main-line
// commit, or nil for an empty case.
func (s *Service) resolveHead(ctx context.Context, caseID uuid.UUID, branchID *uuid.UUID) (*uuid.UUID, error) {
	if branchID != nil {
		b, err := s.store.GetBranch(ctx, *branchID)
		if err != nil {
			return nil, err
		}
		if b.CaseID != caseID {
			return nil, fmt.Errorf("%w: branch %s belongs to case %s", store.ErrConflict, b.ID, b.CaseID)
		}
		head, err := s.findBranchHead(ctx, caseID, *branchID)
		if err != nil {
			return nil, err
		}
		if head != nil {
			return head, nil
		}
		base := b.BaseCommitID
		return &base, nil
	}

	latest, err := s.store.GetLatestMainCommit(ctx, caseID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	id := latest.ID
	return &id, nil
}

func (s *Service) findBranchHead(ctx context.Context, caseID, branchID uuid.UUID) (*uuid.UUID, error) {
	cursor := ""
	for {
		page, next, err := s.store.ListCommitsByCase(ctx, caseID, store.DefaultPageSize, cursor)
		if err != nil {
			return nil, err
		}
		for _, c := range page {
			if c.BranchID != nil && *c.BranchID == branchID {
				id := c.ID
				return &id, nil
			}
		}
		if next == "" {
			return nil, nil
		}
		cursor = next
	}
}

// GetCommit loads one commit.
func (s *Service) GetCommit(ctx context.Context, id uuid.UUID) (*models.Commit, error) {
	return s.store.GetCommit(ctx, id)
}

// GetTimeline returns one page of the case timeline, newest first.
func (s *Service) GetTimeline(ctx context.Context, caseID uuid.UUID, limit int, cursor string) ([]*models.Commit, string, error) {
	if _, err := s.store.GetCase(ctx, caseID); err != nil {
		return nil, "", err
	}
	return s.store.ListCommitsByCase(ctx, caseID, limit, cursor)
}

// -----------------------------------------------------------------------------
// Branches
// -----------------------------------------------------------------------------

// CreateBranch forks a hypothesis branch. baseCommitID nil means "fork
// from the latest main-line commit".
func (s *Service) CreateBranch(ctx context.Context, caseID uuid.UUID, name string, baseCommitID *uuid.UUID) (*models.Branch, error) {
	if _, err := s.store.GetCase(ctx, caseID); err != nil {
		return nil, err
	}

	var base uuid.UUID
	if baseCommitID != nil {
		base = *baseCommitID
	} else {
		latest, err := s.store.GetLatestMainCommit(ctx, caseID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: cannot branch an empty case", store.ErrConflict)
			}
			return nil, err
		}
		base = latest.ID
	}

	b := models.NewBranch(caseID, name, base)
	if err := s.store.CreateBranch(ctx, b); err != nil {
		return nil, err
	}
	s.logger.Info("branch created", "case_id", caseID, "branch_id", b.ID, "name", name)
	return b, nil
}

// GetBranch loads a branch.
func (s *Service) GetBranch(ctx context.Context, id uuid.UUID) (*models.Branch, error) {
	return s.store.GetBranch(ctx, id)
}

// ListBranches lists the case's branches.
func (s *Service) ListBranches(ctx context.Context, caseID uuid.UUID) ([]*models.Branch, error) {
	return s.store.ListBranchesByCase(ctx, caseID)
}

// -----------------------------------------------------------------------------
// Replay, snapshot, diff
// -----------------------------------------------------------------------------

// ReplayToCommit reconstructs the scene state as of the given commit. The
// commit must belong to the case; a foreign commit ID is ErrNotFound.
func (s *Service) ReplayToCommit(ctx context.Context, caseID, commitID uuid.UUID) (*models.SceneGraph, error) {
	ctx, span := s.tracer.Start(ctx, "scene.ReplayToCommit",
		trace.WithAttributes(
			attribute.String("case_id", caseID.String()),
			attribute.String("commit_id", commitID.String()),
		))
	defer span.End()

	chain, err := s.store.GetAncestorChain(ctx, caseID, commitID)
	if err != nil {
		return nil, err
	}
	return s.engine.Replay(ctx, chain), nil
}

// GetSnapshot returns the case's current materialized state. A case with
// no snapshot yet (no scene-mutating commits) gets the empty scene,
// without persisting anything.
func (s *Service) GetSnapshot(ctx context.Context, caseID uuid.UUID) (*models.SceneSnapshot, error) {
	if _, err := s.store.GetCase(ctx, caseID); err != nil {
		return nil, err
	}
	snap, err := s.store.GetSnapshot(ctx, caseID)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return &models.SceneSnapshot{
		CaseID:     caseID,
		Scenegraph: models.NewEmptySceneGraph(),
	}, nil
}

// RefreshSnapshot recomputes the snapshot from the latest main-line commit
// and persists it. Returns the new snapshot, or the empty-scene snapshot
// (persisted) for a case with no commits.
func (s *Service) RefreshSnapshot(ctx context.Context, caseID uuid.UUID) (*models.SceneSnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "scene.RefreshSnapshot",
		trace.WithAttributes(attribute.String("case_id", caseID.String())))
	defer span.End()

	snap := &models.SceneSnapshot{CaseID: caseID}

	latest, err := s.store.GetLatestMainCommit(ctx, caseID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		snap.Scenegraph = models.NewEmptySceneGraph()
	case err != nil:
		return nil, err
	default:
		chain, err := s.store.GetAncestorChain(ctx, caseID, latest.ID)
		if err != nil {
			return nil, err
		}
		snap.CommitID = latest.ID
		snap.Scenegraph = s.engine.Replay(ctx, chain)
	}

	if err := s.store.UpsertSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// GetCommitDiff replays both commits and diffs the states. The commits
// may be on different branches of the case; that is the point. Either
// commit belonging to another case is ErrNotFound.
func (s *Service) GetCommitDiff(ctx context.Context, caseID, fromID, toID uuid.UUID) (*diff.Result, error) {
	ctx, span := s.tracer.Start(ctx, "scene.GetCommitDiff",
		trace.WithAttributes(
			attribute.String("case_id", caseID.String()),
			attribute.String("from_commit_id", fromID.String()),
			attribute.String("to_commit_id", toID.String()),
		))
	defer span.End()

	from, err := s.ReplayToCommit(ctx, caseID, fromID)
	if err != nil {
		return nil, fmt.Errorf("replay from-commit: %w", err)
	}
	to, err := s.ReplayToCommit(ctx, caseID, toID)
	if err != nil {
		return nil, fmt.Errorf("replay to-commit: %w", err)
	}
	return diff.Compute(from, to), nil
}

// -----------------------------------------------------------------------------
// Suspect profile
// -----------------------------------------------------------------------------

// GetSuspectProfile returns the case's suspect profile, computing it from
// the timeline when no materialized profile exists yet.
func (s *Service) GetSuspectProfile(ctx context.Context, caseID uuid.UUID) (*models.SuspectProfile, error) {
	if _, err := s.store.GetCase(ctx, caseID); err != nil {
		return nil, err
	}
	p, err := s.store.GetSuspectProfile(ctx, caseID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return s.computeProfile(ctx, caseID)
}

func (s *Service) computeProfile(ctx context.Context, caseID uuid.UUID) (*models.SuspectProfile, error) {
	latest, err := s.store.GetLatestMainCommit(ctx, caseID)
	if errors.Is(err, store.ErrNotFound) {
		return models.NewSuspectProfile(caseID, uuid.Nil), nil
	}
	if err != nil {
		return nil, err
	}
	chain, err := s.store.GetAncestorChain(ctx, caseID, latest.ID)
	if err != nil {
		return nil, err
	}
	return s.engine.ReplayProfile(ctx, caseID, chain), nil
}

func (s *Service) refreshProfile(ctx context.Context, caseID uuid.UUID) error {
	p, err := s.computeProfile(ctx, caseID)
	if err != nil {
		return err
	}
	return s.store.UpsertSuspectProfile(ctx, p)
}
