// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diff

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/CaseTrace/services/scene/models"
)

func object(id, label string) models.SceneObject {
	return models.SceneObject{
		ID:         id,
		Type:       models.ObjectTypeFurniture,
		Label:      label,
		Pose:       models.NewDefaultPose(),
		State:      models.ObjectStateVisible,
		Confidence: 0.9,
	}
}

func card(id, title string) models.EvidenceCard {
	return models.EvidenceCard{ID: id, Title: title, Confidence: 0.8}
}

func scene(objs []models.SceneObject, ev []models.EvidenceCard) *models.SceneGraph {
	sg := models.NewEmptySceneGraph()
	sg.Objects = objs
	sg.Evidence = ev
	return sg
}

// TestComputeIdentity: diffing a state against itself yields six empty,
// non-nil lists.
func TestComputeIdentity(t *testing.T) {
	sg := scene(
		[]models.SceneObject{object("obj-1", "Desk")},
		[]models.EvidenceCard{card("ev-1", "Fingerprint")},
	)

	r := Compute(sg, sg)
	require.NotNil(t, r.ObjectsAdded)
	require.NotNil(t, r.ObjectsUpdated)
	require.NotNil(t, r.ObjectsRemoved)
	require.NotNil(t, r.EvidenceAdded)
	require.NotNil(t, r.EvidenceUpdated)
	require.NotNil(t, r.EvidenceRemoved)
	assert.True(t, r.IsEmpty())
}

func TestComputeNilSides(t *testing.T) {
	sg := scene([]models.SceneObject{object("obj-1", "Desk")}, nil)

	t.Run("both nil", func(t *testing.T) {
		r := Compute(nil, nil)
		assert.True(t, r.IsEmpty())
	})

	t.Run("from nil means everything added", func(t *testing.T) {
		r := Compute(nil, sg)
		require.Len(t, r.ObjectsAdded, 1)
		assert.Empty(t, r.ObjectsRemoved)
	})

	t.Run("to nil means everything removed", func(t *testing.T) {
		r := Compute(sg, nil)
		require.Len(t, r.ObjectsRemoved, 1)
		assert.Empty(t, r.ObjectsAdded)
	})
}

// TestComputePartition: every ID lands in exactly one bucket.
func TestComputePartition(t *testing.T) {
	from := scene(
		[]models.SceneObject{object("stay", "Desk"), object("gone", "Chair"), object("moved", "Lamp")},
		[]models.EvidenceCard{card("ev-stay", "Print"), card("ev-gone", "Fiber")},
	)

	moved := object("moved", "Lamp")
	moved.Pose.Position = [3]float64{1, 0, 2}

	changedCard := card("ev-stay", "Print")
	changedCard.Confidence = 0.3

	to := scene(
		[]models.SceneObject{object("stay", "Desk"), moved, object("new", "Crowbar")},
		[]models.EvidenceCard{changedCard, card("ev-new", "Shoe print")},
	)

	r := Compute(from, to)

	require.Len(t, r.ObjectsAdded, 1)
	assert.Equal(t, "new", r.ObjectsAdded[0].ID)

	assert.Equal(t, []string{"gone"}, r.ObjectsRemoved)

	require.Len(t, r.ObjectsUpdated, 1)
	assert.Equal(t, "moved", r.ObjectsUpdated[0].ID)
	assert.Equal(t, [3]float64{0, 0, 0}, r.ObjectsUpdated[0].Before.Pose.Position)
	assert.Equal(t, [3]float64{1, 0, 2}, r.ObjectsUpdated[0].After.Pose.Position)

	require.Len(t, r.EvidenceAdded, 1)
	assert.Equal(t, "ev-new", r.EvidenceAdded[0].ID)
	assert.Equal(t, []string{"ev-gone"}, r.EvidenceRemoved)
	require.Len(t, r.EvidenceUpdated, 1)
	assert.Equal(t, "ev-stay", r.EvidenceUpdated[0].ID)
	assert.Equal(t, 0.8, r.EvidenceUpdated[0].Before.Confidence)
	assert.Equal(t, 0.3, r.EvidenceUpdated[0].After.Confidence)
}

// TestComputeSymmetry: swapping the arguments swaps added and removed.
func TestComputeSymmetry(t *testing.T) {
	a := scene([]models.SceneObject{object("only-a", "Desk")}, nil)
	b := scene([]models.SceneObject{object("only-b", "Chair")}, nil)

	fwd := Compute(a, b)
	rev := Compute(b, a)

	require.Len(t, fwd.ObjectsAdded, 1)
	require.Len(t, rev.ObjectsRemoved, 1)
	assert.Equal(t, fwd.ObjectsAdded[0].ID, rev.ObjectsRemoved[0])
	assert.Equal(t, fwd.ObjectsRemoved[0], rev.ObjectsAdded[0].ID)
}

// TestResultWireFormat: the serialized result carries the documented list
// names, and removed entities are bare IDs.
func TestResultWireFormat(t *testing.T) {
	from := scene([]models.SceneObject{object("obj-1", "Desk")}, nil)

	raw, err := json.Marshal(Compute(from, nil))
	require.NoError(t, err)

	var decoded struct {
		ObjectsAdded    []json.RawMessage `json:"objects_added"`
		ObjectsUpdated  []json.RawMessage `json:"objects_updated"`
		ObjectsRemoved  []string          `json:"objects_removed"`
		EvidenceAdded   []json.RawMessage `json:"evidence_added"`
		EvidenceUpdated []json.RawMessage `json:"evidence_updated"`
		EvidenceRemoved []string          `json:"evidence_removed"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, []string{"obj-1"}, decoded.ObjectsRemoved)
	assert.NotNil(t, decoded.ObjectsAdded)
	assert.NotNil(t, decoded.ObjectsUpdated)
	assert.NotNil(t, decoded.EvidenceAdded)
	assert.NotNil(t, decoded.EvidenceUpdated)
	assert.NotNil(t, decoded.EvidenceRemoved)
	assert.NotContains(t, string(raw), "objects_modified")
	assert.NotContains(t, string(raw), "evidence_changed")
}

func TestComputeIgnoresProvenanceFields(t *testing.T) {
	before := object("obj-1", "Desk")
	after := object("obj-1", "Desk")
	after.SourceCommitIDs = []string{"commit-9"}
	after.EvidenceIDs = []string{"ev-1"}
	after.MeshRef = "mesh/desk.glb"

	r := Compute(
		scene([]models.SceneObject{before}, nil),
		scene([]models.SceneObject{after}, nil),
	)
	assert.True(t, r.IsEmpty())
}

func TestComputeOrderIndependence(t *testing.T) {
	objs := []models.SceneObject{object("a", "A"), object("b", "B"), object("c", "C")}
	shuffled := []models.SceneObject{objs[2], objs[0], objs[1]}

	r := Compute(scene(objs, nil), scene(shuffled, nil))
	assert.True(t, r.IsEmpty())
}
