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
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SuspectProfile is the per-case materialized suspect description, fed by
// profile_update commits the same way the SceneSnapshot is fed by
// reconstruction commits. One profile per case, upsert semantics.
type SuspectProfile struct {
	CaseID           uuid.UUID          `json:"case_id" validate:"required"`
	CommitID         uuid.UUID          `json:"commit_id" validate:"required"`
	Attributes       *SuspectAttributes `json:"attributes"`
	PortraitAssetKey string             `json:"portrait_asset_key,omitempty"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// Validate checks the profile and its attributes.
func (sp *SuspectProfile) Validate() error {
	if err := modelValidate.Struct(sp); err != nil {
		return err
	}
	if sp.Attributes != nil {
		return sp.Attributes.Validate()
	}
	return nil
}

// NewSuspectProfile builds an empty profile anchored at a commit.
func NewSuspectProfile(caseID, commitID uuid.UUID) *SuspectProfile {
	return &SuspectProfile{
		CaseID:     caseID,
		CommitID:   commitID,
		Attributes: NewEmptySuspectAttributes(),
		UpdatedAt:  time.Now().UTC(),
	}
}

// SuspectAttributes holds structured physical attributes, each with its own
// confidence and provenance.
type SuspectAttributes struct {
	AgeRange            *RangeAttribute    `json:"age_range,omitempty"`
	HeightRangeCm       *RangeAttribute    `json:"height_range_cm,omitempty"`
	Build               *StringAttribute   `json:"build,omitempty"`
	Hair                *HairAttribute     `json:"hair,omitempty"`
	Glasses             *StringAttribute   `json:"glasses,omitempty"`
	DistinctiveFeatures []FeatureAttribute `json:"distinctive_features,omitempty"`
}

// Validate checks range ordering and confidences.
func (sa *SuspectAttributes) Validate() error {
	if sa.AgeRange != nil {
		if err := sa.AgeRange.Validate(); err != nil {
			return fmt.Errorf("age_range: %w", err)
		}
	}
	if sa.HeightRangeCm != nil {
		if err := sa.HeightRangeCm.Validate(); err != nil {
			return fmt.Errorf("height_range_cm: %w", err)
		}
	}
	return nil
}

// NewEmptySuspectAttributes returns attributes with non-nil collections.
func NewEmptySuspectAttributes() *SuspectAttributes {
	return &SuspectAttributes{
		DistinctiveFeatures: []FeatureAttribute{},
	}
}

// RangeAttribute is a numeric range with confidence and provenance.
type RangeAttribute struct {
	Min        float64           `json:"min"`
	Max        float64           `json:"max"`
	Confidence float64           `json:"confidence" validate:"gte=0,lte=1"`
	Sources    []AttributeSource `json:"supporting_sources,omitempty"`
}

// Validate enforces Min <= Max and the confidence range.
func (ra *RangeAttribute) Validate() error {
	if ra.Min > ra.Max {
		return fmt.Errorf("min must not exceed max")
	}
	return modelValidate.Struct(ra)
}

// StringAttribute is a categorical value with confidence and provenance.
type StringAttribute struct {
	Value      string            `json:"value"`
	Confidence float64           `json:"confidence" validate:"gte=0,lte=1"`
	Sources    []AttributeSource `json:"supporting_sources,omitempty"`
}

// HairAttribute describes hair style and color.
type HairAttribute struct {
	Style      string            `json:"style"`
	Color      string            `json:"color"`
	Confidence float64           `json:"confidence" validate:"gte=0,lte=1"`
	Sources    []AttributeSource `json:"supporting_sources,omitempty"`
}

// FeatureAttribute is one distinctive feature (scar, tattoo, limp).
type FeatureAttribute struct {
	Description string            `json:"description"`
	Confidence  float64           `json:"confidence" validate:"gte=0,lte=1"`
	Sources     []AttributeSource `json:"supporting_sources,omitempty"`
}

// AttributeSource ties an attribute back to the commit that asserted it.
type AttributeSource struct {
	CommitID    string  `json:"commit_id"`
	SourceName  string  `json:"source_name"`
	Credibility float64 `json:"credibility"`
}
