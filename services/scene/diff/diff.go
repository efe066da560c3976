// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diff computes the structural difference between two SceneGraph
// states, treating object and evidence collections as ID-keyed sets.
package diff

import (
	"github.com/AleutianAI/CaseTrace/services/scene/models"
)

// Result is the difference between two scene states. Every list is non-nil,
// empty when nothing changed; presentation layers render them directly
// without nil checks. Added entities are carried whole; removed entities
// are referenced by ID only, since their full state lives on the "from"
// side the caller already has.
type Result struct {
	ObjectsAdded    []models.SceneObject  `json:"objects_added"`
	ObjectsUpdated  []ObjectChange        `json:"objects_updated"`
	ObjectsRemoved  []string              `json:"objects_removed"`
	EvidenceAdded   []models.EvidenceCard `json:"evidence_added"`
	EvidenceUpdated []EvidenceChange      `json:"evidence_updated"`
	EvidenceRemoved []string              `json:"evidence_removed"`
}

// ObjectChange pairs the two states of an object present on both sides but
// materially different.
type ObjectChange struct {
	ID     string             `json:"id"`
	Before models.SceneObject `json:"before"`
	After  models.SceneObject `json:"after"`
}

// EvidenceChange pairs the two states of an evidence card present on both
// sides but materially different.
type EvidenceChange struct {
	ID     string              `json:"id"`
	Before models.EvidenceCard `json:"before"`
	After  models.EvidenceCard `json:"after"`
}

// IsEmpty reports whether the two states were materially identical.
func (r *Result) IsEmpty() bool {
	return len(r.ObjectsAdded) == 0 && len(r.ObjectsUpdated) == 0 &&
		len(r.ObjectsRemoved) == 0 && len(r.EvidenceAdded) == 0 &&
		len(r.EvidenceUpdated) == 0 && len(r.EvidenceRemoved) == 0
}

// Compute diffs two scene states.
//
// Description:
//
//	Objects and evidence cards are matched by ID. An entity only on the
//	"to" side is added, only on the "from" side is removed, and on both
//	sides with a material field change is updated. Material fields are
//	the investigator-visible ones: for objects label, type, state,
//	confidence and pose position/rotation; for evidence title, description
//	and confidence. Ordering within the input slices never affects the
//	result. Either side may be nil and is treated as an empty scene.
func Compute(from, to *models.SceneGraph) *Result {
	r := &Result{
		ObjectsAdded:    []models.SceneObject{},
		ObjectsUpdated:  []ObjectChange{},
		ObjectsRemoved:  []string{},
		EvidenceAdded:   []models.EvidenceCard{},
		EvidenceUpdated: []EvidenceChange{},
		EvidenceRemoved: []string{},
	}

	var fromObjs, toObjs []models.SceneObject
	var fromEv, toEv []models.EvidenceCard
	if from != nil {
		fromObjs, fromEv = from.Objects, from.Evidence
	}
	if to != nil {
		toObjs, toEv = to.Objects, to.Evidence
	}

	fromByID := make(map[string]models.SceneObject, len(fromObjs))
	for _, o := range fromObjs {
		fromByID[o.ID] = o
	}
	toByID := make(map[string]models.SceneObject, len(toObjs))
	for _, o := range toObjs {
		toByID[o.ID] = o
	}

	// Iterate the slices, not the maps, so the result order follows the
	// input documents deterministically.
	for _, o := range toObjs {
		prior, ok := fromByID[o.ID]
		if !ok {
			r.ObjectsAdded = append(r.ObjectsAdded, o)
			continue
		}
		if !objectsEqual(prior, o) {
			r.ObjectsUpdated = append(r.ObjectsUpdated, ObjectChange{ID: o.ID, Before: prior, After: o})
		}
	}
	for _, o := range fromObjs {
		if _, ok := toByID[o.ID]; !ok {
			r.ObjectsRemoved = append(r.ObjectsRemoved, o.ID)
		}
	}

	fromEvByID := make(map[string]models.EvidenceCard, len(fromEv))
	for _, e := range fromEv {
		fromEvByID[e.ID] = e
	}
	toEvByID := make(map[string]models.EvidenceCard, len(toEv))
	for _, e := range toEv {
		toEvByID[e.ID] = e
	}

	for _, e := range toEv {
		prior, ok := fromEvByID[e.ID]
		if !ok {
			r.EvidenceAdded = append(r.EvidenceAdded, e)
			continue
		}
		if !evidenceEqual(prior, e) {
			r.EvidenceUpdated = append(r.EvidenceUpdated, EvidenceChange{ID: e.ID, Before: prior, After: e})
		}
	}
	for _, e := range fromEv {
		if _, ok := toEvByID[e.ID]; !ok {
			r.EvidenceRemoved = append(r.EvidenceRemoved, e.ID)
		}
	}

	return r
}

// objectsEqual compares the material fields of an object. Provenance
// fields (evidence links, source commits, metadata, mesh refs) changing
// alone does not surface as a modification.
func objectsEqual(a, b models.SceneObject) bool {
	return a.Label == b.Label &&
		a.Type == b.Type &&
		a.State == b.State &&
		a.Confidence == b.Confidence &&
		a.Pose.Position == b.Pose.Position &&
		a.Pose.Rotation == b.Pose.Rotation
}

// evidenceEqual compares the material fields of an evidence card.
func evidenceEqual(a, b models.EvidenceCard) bool {
	return a.Title == b.Title &&
		a.Description == b.Description &&
		a.Confidence == b.Confidence
}
