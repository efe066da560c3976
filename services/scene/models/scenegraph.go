// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package models defines the versioned entities of a case reconstruction:
// the SceneGraph document, the append-only Commit/Branch records, the Job
// lifecycle record, and the typed commit payloads.
//
// All records round-trip through JSON unchanged; the json tags are a wire
// contract consumed by layers outside this repository.
package models

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// modelValidate is the shared validator instance for struct-tag constraints.
// Enum validity and cross-field invariants are checked by hand; tags carry
// the presence and range checks.
var modelValidate = validator.New()

// SceneGraphVersion is the current SceneGraph schema version (semver).
const SceneGraphVersion = "1.0.0"

// SceneGraph is the versioned world state of a crime scene.
//
// Objects, evidence and constraints are stored as ordered sequences but are
// treated as ID-keyed sets by the diff and replay engines.
type SceneGraph struct {
	Version            string              `json:"version" validate:"required"`
	Bounds             BoundingBox         `json:"bounds"`
	Objects            []SceneObject       `json:"objects"`
	Evidence           []EvidenceCard      `json:"evidence"`
	Constraints        []Constraint        `json:"constraints"`
	UncertaintyRegions []UncertaintyRegion `json:"uncertainty_regions,omitempty"`
}

// NewEmptySceneGraph returns the replay starting point: version 1.0.0,
// default room bounds, empty (non-nil) collections.
func NewEmptySceneGraph() *SceneGraph {
	return &SceneGraph{
		Version: SceneGraphVersion,
		Bounds: BoundingBox{
			Min: [3]float64{0, 0, 0},
			Max: [3]float64{10, 3, 10},
		},
		Objects:            []SceneObject{},
		Evidence:           []EvidenceCard{},
		Constraints:        []Constraint{},
		UncertaintyRegions: []UncertaintyRegion{},
	}
}

// Validate checks the SceneGraph and every contained entity.
func (sg *SceneGraph) Validate() error {
	if err := modelValidate.Struct(sg); err != nil {
		return fmt.Errorf("scenegraph: %w", err)
	}
	if err := sg.Bounds.Validate(); err != nil {
		return fmt.Errorf("bounds: %w", err)
	}
	for i := range sg.Objects {
		if err := sg.Objects[i].Validate(); err != nil {
			return fmt.Errorf("object %d (%s): %w", i, sg.Objects[i].ID, err)
		}
	}
	for i := range sg.Evidence {
		if err := sg.Evidence[i].Validate(); err != nil {
			return fmt.Errorf("evidence %d (%s): %w", i, sg.Evidence[i].ID, err)
		}
	}
	for i := range sg.Constraints {
		if err := sg.Constraints[i].Validate(); err != nil {
			return fmt.Errorf("constraint %d (%s): %w", i, sg.Constraints[i].ID, err)
		}
	}
	for i := range sg.UncertaintyRegions {
		if err := sg.UncertaintyRegions[i].Validate(); err != nil {
			return fmt.Errorf("uncertainty_region %d (%s): %w", i, sg.UncertaintyRegions[i].ID, err)
		}
	}
	return nil
}

// Clone returns a deep copy via JSON roundtrip. Replay mutates its working
// graph in place; callers that hand graphs to others copy first.
func (sg *SceneGraph) Clone() (*SceneGraph, error) {
	data, err := json.Marshal(sg)
	if err != nil {
		return nil, err
	}
	out := &SceneGraph{}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

// SceneObject is a single entity in the scene.
type SceneObject struct {
	ID              string         `json:"id" validate:"required"`
	Type            ObjectType     `json:"type"`
	Label           string         `json:"label" validate:"required"`
	Pose            Pose           `json:"pose"`
	BBox            BoundingBox    `json:"bbox"`
	MeshRef         string         `json:"mesh_ref,omitempty"`
	State           ObjectState    `json:"state"`
	EvidenceIDs     []string       `json:"evidence_ids"`
	Confidence      float64        `json:"confidence" validate:"gte=0,lte=1"`
	SourceCommitIDs []string       `json:"source_commit_ids"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Validate checks required fields, enum validity and the confidence range.
func (so *SceneObject) Validate() error {
	if err := modelValidate.Struct(so); err != nil {
		return err
	}
	if !so.Type.IsValid() {
		return fmt.Errorf("invalid object type %q", so.Type)
	}
	if !so.State.IsValid() {
		return fmt.Errorf("invalid object state %q", so.State)
	}
	return nil
}

// Pose is a position plus quaternion orientation in scene space.
type Pose struct {
	Position [3]float64 `json:"position"` // meters
	Rotation [4]float64 `json:"rotation"` // quaternion [w, x, y, z]
	Scale    [3]float64 `json:"scale,omitempty"`
}

// NewDefaultPose returns a pose at the origin with identity rotation.
func NewDefaultPose() Pose {
	return Pose{
		Position: [3]float64{0, 0, 0},
		Rotation: [4]float64{1, 0, 0, 0},
		Scale:    [3]float64{1, 1, 1},
	}
}

// BoundingBox is an axis-aligned box. Invariant: Min <= Max per axis.
type BoundingBox struct {
	Min [3]float64 `json:"min"`
	Max [3]float64 `json:"max"`
}

// Validate enforces Min <= Max on every axis.
func (bb *BoundingBox) Validate() error {
	for i := 0; i < 3; i++ {
		if bb.Min[i] > bb.Max[i] {
			return fmt.Errorf("min must not exceed max on axis %d", i)
		}
	}
	return nil
}

// Contains reports whether the point lies inside the box (inclusive).
func (bb *BoundingBox) Contains(point [3]float64) bool {
	for i := 0; i < 3; i++ {
		if point[i] < bb.Min[i] || point[i] > bb.Max[i] {
			return false
		}
	}
	return true
}

// EvidenceCard ties objects to a described piece of evidence.
type EvidenceCard struct {
	ID          string           `json:"id" validate:"required"`
	ObjectIDs   []string         `json:"object_ids"`
	Title       string           `json:"title" validate:"required"`
	Description string           `json:"description"`
	Confidence  float64          `json:"confidence" validate:"gte=0,lte=1"`
	Sources     []EvidenceSource `json:"sources"`
	Conflicts   []EvidenceSource `json:"conflicts,omitempty"`
	CreatedAt   string           `json:"created_at,omitempty"`
}

// Validate checks required fields, the confidence range and each source.
func (ec *EvidenceCard) Validate() error {
	if err := modelValidate.Struct(ec); err != nil {
		return err
	}
	for i := range ec.Sources {
		if err := ec.Sources[i].Validate(); err != nil {
			return fmt.Errorf("source %d: %w", i, err)
		}
	}
	return nil
}

// EvidenceSource records where a card's information originated.
// Witness sources carry a credibility score.
type EvidenceSource struct {
	Type        EvidenceSourceType `json:"type"`
	CommitID    string             `json:"commit_id" validate:"required"`
	Description string             `json:"description,omitempty"`
	Credibility float64            `json:"credibility,omitempty"`
}

// Validate checks the source type and, for witness sources, the
// credibility range.
func (es *EvidenceSource) Validate() error {
	if err := modelValidate.Struct(es); err != nil {
		return err
	}
	if !es.Type.IsValid() {
		return fmt.Errorf("invalid source type %q", es.Type)
	}
	if es.Type == EvidenceSourceTypeWitness && (es.Credibility < 0 || es.Credibility > 1) {
		return fmt.Errorf("credibility must be between 0 and 1 for witness sources")
	}
	return nil
}

// Constraint restricts how the scene can be interpreted (door swing
// direction, passable areas, time windows).
type Constraint struct {
	ID          string         `json:"id" validate:"required"`
	Type        ConstraintType `json:"type"`
	Description string         `json:"description"`
	Params      map[string]any `json:"params"`
	Confidence  float64        `json:"confidence" validate:"gte=0,lte=1"`
}

// Validate checks required fields, enum validity and the confidence range.
func (c *Constraint) Validate() error {
	if err := modelValidate.Struct(c); err != nil {
		return err
	}
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid constraint type %q", c.Type)
	}
	return nil
}

// UncertaintyRegion marks a volume where the reconstruction is unsure.
type UncertaintyRegion struct {
	ID     string           `json:"id" validate:"required"`
	BBox   BoundingBox      `json:"bbox"`
	Level  UncertaintyLevel `json:"level"`
	Reason string           `json:"reason"`
}

// Validate checks required fields and the level enum.
func (ur *UncertaintyRegion) Validate() error {
	if err := modelValidate.Struct(ur); err != nil {
		return err
	}
	if !ur.Level.IsValid() {
		return fmt.Errorf("invalid uncertainty level %q", ur.Level)
	}
	return nil
}
