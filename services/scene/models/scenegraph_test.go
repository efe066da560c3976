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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validObject(id string) SceneObject {
	return SceneObject{
		ID:              id,
		Type:            ObjectTypeFurniture,
		Label:           "Desk",
		Pose:            NewDefaultPose(),
		State:           ObjectStateVisible,
		Confidence:      0.9,
		EvidenceIDs:     []string{},
		SourceCommitIDs: []string{},
	}
}

// TestNewEmptySceneGraph verifies the replay starting point: version set,
// default bounds, empty but non-nil collections.
func TestNewEmptySceneGraph(t *testing.T) {
	sg := NewEmptySceneGraph()

	assert.Equal(t, SceneGraphVersion, sg.Version)
	assert.NotNil(t, sg.Objects)
	assert.NotNil(t, sg.Evidence)
	assert.NotNil(t, sg.Constraints)
	assert.NotNil(t, sg.UncertaintyRegions)
	assert.Empty(t, sg.Objects)
	require.NoError(t, sg.Validate())
}

func TestSceneGraphValidate(t *testing.T) {
	t.Run("missing version", func(t *testing.T) {
		sg := NewEmptySceneGraph()
		sg.Version = ""
		assert.Error(t, sg.Validate())
	})

	t.Run("inverted bounds", func(t *testing.T) {
		sg := NewEmptySceneGraph()
		sg.Bounds = BoundingBox{Min: [3]float64{5, 0, 0}, Max: [3]float64{1, 3, 10}}
		assert.Error(t, sg.Validate())
	})

	t.Run("invalid contained object", func(t *testing.T) {
		sg := NewEmptySceneGraph()
		obj := validObject("obj-1")
		obj.Confidence = 1.5
		sg.Objects = append(sg.Objects, obj)
		assert.Error(t, sg.Validate())
	})
}

func TestSceneObjectValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SceneObject)
		wantErr bool
	}{
		{"valid", func(o *SceneObject) {}, false},
		{"missing id", func(o *SceneObject) { o.ID = "" }, true},
		{"missing label", func(o *SceneObject) { o.Label = "" }, true},
		{"bad type", func(o *SceneObject) { o.Type = "hologram" }, true},
		{"bad state", func(o *SceneObject) { o.State = "teleported" }, true},
		{"confidence below range", func(o *SceneObject) { o.Confidence = -0.1 }, true},
		{"confidence above range", func(o *SceneObject) { o.Confidence = 1.1 }, true},
		{"confidence boundary", func(o *SceneObject) { o.Confidence = 1.0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := validObject("obj-1")
			tt.mutate(&obj)
			err := obj.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEvidenceSourceValidate(t *testing.T) {
	t.Run("witness credibility enforced", func(t *testing.T) {
		es := EvidenceSource{Type: EvidenceSourceTypeWitness, CommitID: "c1", Credibility: 1.5}
		assert.Error(t, es.Validate())
	})

	t.Run("non-witness credibility ignored", func(t *testing.T) {
		es := EvidenceSource{Type: EvidenceSourceTypeUpload, CommitID: "c1", Credibility: 7}
		assert.NoError(t, es.Validate())
	})
}

func TestBoundingBoxContains(t *testing.T) {
	bb := BoundingBox{Min: [3]float64{0, 0, 0}, Max: [3]float64{10, 3, 10}}

	assert.True(t, bb.Contains([3]float64{5, 1, 5}))
	assert.True(t, bb.Contains([3]float64{0, 0, 0}))
	assert.True(t, bb.Contains([3]float64{10, 3, 10}))
	assert.False(t, bb.Contains([3]float64{-1, 1, 5}))
	assert.False(t, bb.Contains([3]float64{5, 4, 5}))
}

// TestSceneGraphJSONRoundTrip guards the wire contract: field names must
// survive marshal/unmarshal unchanged.
func TestSceneGraphJSONRoundTrip(t *testing.T) {
	sg := NewEmptySceneGraph()
	sg.Objects = append(sg.Objects, validObject("obj-1"))
	sg.Evidence = append(sg.Evidence, EvidenceCard{
		ID: "ev-1", Title: "Fingerprint", Confidence: 0.8,
		ObjectIDs: []string{"obj-1"},
		Sources:   []EvidenceSource{{Type: EvidenceSourceTypeUpload, CommitID: "c1"}},
	})

	data, err := json.Marshal(sg)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"source_commit_ids"`)
	assert.Contains(t, string(data), `"evidence_ids"`)

	out := &SceneGraph{}
	require.NoError(t, json.Unmarshal(data, out))
	assert.Equal(t, sg.Objects[0].ID, out.Objects[0].ID)
	assert.Equal(t, sg.Evidence[0].Title, out.Evidence[0].Title)
	assert.Equal(t, sg.Bounds, out.Bounds)
}

func TestSceneGraphClone(t *testing.T) {
	sg := NewEmptySceneGraph()
	sg.Objects = append(sg.Objects, validObject("obj-1"))

	clone, err := sg.Clone()
	require.NoError(t, err)

	clone.Objects[0].Label = "Changed"
	assert.Equal(t, "Desk", sg.Objects[0].Label)
}
