// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package replay derives scene state from the commit log. State is never
// stored authoritatively; it is always the fold of an ancestor chain over
// the empty scene, which makes any historical state reproducible.
package replay

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/CaseTrace/services/scene/models"
)

// Engine folds commit chains into derived state.
type Engine struct {
	logger *slog.Logger
	tracer trace.Tracer
}

// NewEngine creates a replay engine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger: logger,
		tracer: otel.Tracer("casetrace/replay"),
	}
}

// Replay folds a chain of commits, oldest first, into a SceneGraph.
//
// Description:
//
//	Starts from the empty scene and applies each commit in order. Only
//	reconstruction_update and manual_edit commits mutate the graph; every
//	other type is a timeline entry. A commit whose payload does not parse
//	is logged and skipped: one corrupt payload must not make the whole
//	timeline unreadable. The fold is deterministic — same chain, same
//	graph.
//
// Outputs:
//
//	*models.SceneGraph - Never nil. The empty scene for an empty chain.
func (e *Engine) Replay(ctx context.Context, chain []*models.Commit) *models.SceneGraph {
	_, span := e.tracer.Start(ctx, "replay.Replay",
		trace.WithAttributes(attribute.Int("chain.length", len(chain))))
	defer span.End()

	sg := models.NewEmptySceneGraph()
	for _, c := range chain {
		e.apply(sg, c)
	}
	return sg
}

func (e *Engine) apply(sg *models.SceneGraph, c *models.Commit) {
	if !c.Type.MutatesSceneGraph() {
		return
	}

	p, err := models.DecodePayload(c.Type, c.Payload)
	if err != nil {
		e.logger.Warn("skipping commit with undecodable payload",
			"commit_id", c.ID, "type", c.Type, "error", err)
		return
	}

	switch payload := p.(type) {
	case *models.ReconstructionUpdatePayload:
		if payload.SceneGraph == nil {
			return
		}
		applyReconstruction(sg, payload.SceneGraph)
	case *models.ManualEditPayload:
		if payload.Changes == nil {
			return
		}
		removeObjects(sg, payload.Changes.ObjectsRemoved)
	}
}

// applyReconstruction upserts the update's objects and evidence by ID and
// overwrites the bounds. An update is a partial view: objects it does not
// mention survive untouched.
func applyReconstruction(sg, update *models.SceneGraph) {
	for _, obj := range update.Objects {
		idx := -1
		for i := range sg.Objects {
			if sg.Objects[i].ID == obj.ID {
				idx = i
				break
			}
		}
		if idx >= 0 {
			sg.Objects[idx] = obj
		} else {
			sg.Objects = append(sg.Objects, obj)
		}
	}

	for _, card := range update.Evidence {
		idx := -1
		for i := range sg.Evidence {
			if sg.Evidence[i].ID == card.ID {
				idx = i
				break
			}
		}
		if idx >= 0 {
			sg.Evidence[idx] = card
		} else {
			sg.Evidence = append(sg.Evidence, card)
		}
	}

	sg.Bounds = update.Bounds
}

func removeObjects(sg *models.SceneGraph, ids []string) {
	if len(ids) == 0 {
		return
	}
	remove := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		remove[id] = struct{}{}
	}
	kept := sg.Objects[:0]
	for _, obj := range sg.Objects {
		if _, gone := remove[obj.ID]; !gone {
			kept = append(kept, obj)
		}
	}
	sg.Objects = kept
}

// ReplayProfile folds a chain's profile_update commits into a
// SuspectProfile. Later commits win attribute by attribute: an update that
// asserts only hair color refines the profile without erasing the height
// estimate from an earlier statement.
//
// Outputs:
//
//	*models.SuspectProfile - Never nil; empty attributes when the chain
//	carries no profile updates. CommitID is the last profile commit
//	applied, or uuid.Nil.
func (e *Engine) ReplayProfile(ctx context.Context, caseID uuid.UUID, chain []*models.Commit) *models.SuspectProfile {
	_, span := e.tracer.Start(ctx, "replay.ReplayProfile",
		trace.WithAttributes(attribute.Int("chain.length", len(chain))))
	defer span.End()

	profile := models.NewSuspectProfile(caseID, uuid.Nil)
	for _, c := range chain {
		if c.Type != models.CommitTypeProfileUpdate {
			continue
		}
		p, err := models.DecodePayload(c.Type, c.Payload)
		if err != nil {
			e.logger.Warn("skipping profile commit with undecodable payload",
				"commit_id", c.ID, "error", err)
			continue
		}
		update := p.(*models.ProfileUpdatePayload)
		mergeAttributes(profile.Attributes, update.Attributes)
		if update.PortraitAssetKey != "" {
			profile.PortraitAssetKey = update.PortraitAssetKey
		}
		profile.CommitID = c.ID
	}
	return profile
}

func mergeAttributes(dst, src *models.SuspectAttributes) {
	if src == nil {
		return
	}
	if src.AgeRange != nil {
		dst.AgeRange = src.AgeRange
	}
	if src.HeightRangeCm != nil {
		dst.HeightRangeCm = src.HeightRangeCm
	}
	if src.Build != nil {
		dst.Build = src.Build
	}
	if src.Hair != nil {
		dst.Hair = src.Hair
	}
	if src.Glasses != nil {
		dst.Glasses = src.Glasses
	}
	if len(src.DistinctiveFeatures) > 0 {
		dst.DistinctiveFeatures = append(dst.DistinctiveFeatures, src.DistinctiveFeatures...)
	}
}
