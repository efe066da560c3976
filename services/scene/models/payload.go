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
)

var (
	// ErrUnknownCommitType is returned when decoding a payload for a commit
	// type with no registered variant.
	ErrUnknownCommitType = errors.New("unknown commit type")

	// ErrMalformedPayload is returned when a payload does not parse into the
	// shape its commit type declares. Replay logs and skips such commits
	// instead of aborting.
	ErrMalformedPayload = errors.New("malformed commit payload")
)

// Payload is the decoded, typed form of Commit.Payload. The commit's Type
// field is the discriminator; DecodePayload returns the matching variant.
type Payload interface {
	// CommitType returns the discriminator this payload belongs to.
	CommitType() CommitType
}

// CommitChanges enumerates entity IDs touched by a commit. manual_edit
// payloads carry it as the edit instruction; result commits carry it as an
// audit record.
type CommitChanges struct {
	ObjectsAdded    []string `json:"objects_added,omitempty"`
	ObjectsUpdated  []string `json:"objects_updated,omitempty"`
	ObjectsRemoved  []string `json:"objects_removed,omitempty"`
	EvidenceAdded   []string `json:"evidence_added,omitempty"`
	EvidenceUpdated []string `json:"evidence_updated,omitempty"`
}

// UploadScanPayload records ingested scan assets. No-op for replay.
type UploadScanPayload struct {
	AssetKeys []string       `json:"asset_keys"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (UploadScanPayload) CommitType() CommitType { return CommitTypeUploadScan }

// WitnessStatementPayload records a witness account. No-op for replay; the
// statement feeds profile and reasoning jobs.
type WitnessStatementPayload struct {
	SourceName  string  `json:"source_name"`
	Content     string  `json:"content"`
	Credibility float64 `json:"credibility"`
}

func (WitnessStatementPayload) CommitType() CommitType { return CommitTypeWitnessStatement }

// ManualEditPayload carries investigator edits. Replay deletes the objects
// listed in Changes.ObjectsRemoved from the running graph.
type ManualEditPayload struct {
	Changes  *CommitChanges `json:"changes,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (ManualEditPayload) CommitType() CommitType { return CommitTypeManualEdit }

// ReconstructionUpdatePayload carries a partial SceneGraph produced by a
// reconstruction job. Replay upserts its objects and evidence by ID and
// overwrites the bounds wholesale when a graph is present.
type ReconstructionUpdatePayload struct {
	JobID      string           `json:"job_id,omitempty"`
	SceneGraph *SceneGraph      `json:"scenegraph,omitempty"`
	Stats      *ProcessingStats `json:"processing_stats,omitempty"`
}

func (ReconstructionUpdatePayload) CommitType() CommitType { return CommitTypeReconstructionUpdate }

// ProfileUpdatePayload carries suspect attributes produced by a profile job.
// It does not touch the SceneGraph; it folds into the SuspectProfile.
type ProfileUpdatePayload struct {
	JobID            string             `json:"job_id,omitempty"`
	Attributes       *SuspectAttributes `json:"attributes,omitempty"`
	PortraitAssetKey string             `json:"portrait_asset_key,omitempty"`
}

func (ProfileUpdatePayload) CommitType() CommitType { return CommitTypeProfileUpdate }

// ReasoningResultPayload carries ranked trajectories from a reasoning job.
// No-op for replay.
type ReasoningResultPayload struct {
	JobID           string       `json:"job_id,omitempty"`
	Trajectories    []Trajectory `json:"trajectories,omitempty"`
	Suggestions     []Suggestion `json:"next_step_suggestions,omitempty"`
	ThinkingSummary string       `json:"thinking_summary,omitempty"`
}

func (ReasoningResultPayload) CommitType() CommitType { return CommitTypeReasoningResult }

// ExportReportPayload records a generated report artifact. No-op for replay.
type ExportReportPayload struct {
	JobID    string `json:"job_id,omitempty"`
	Format   string `json:"format"`
	AssetKey string `json:"asset_key,omitempty"`
}

func (ExportReportPayload) CommitType() CommitType { return CommitTypeExportReport }

// DecodePayload parses raw into the typed variant for the given commit type.
//
// Description:
//
//	The commit type is the union discriminator. A nil or empty raw payload
//	decodes to the variant's zero value (commits are allowed to carry no
//	payload). Parse failures wrap ErrMalformedPayload so callers can
//	distinguish bad data from unknown types.
//
// Outputs:
//
//	Payload - The typed variant, never nil on success.
//	error - ErrUnknownCommitType or a wrapped ErrMalformedPayload.
func DecodePayload(ct CommitType, raw json.RawMessage) (Payload, error) {
	var target Payload
	switch ct {
	case CommitTypeUploadScan:
		target = &UploadScanPayload{}
	case CommitTypeWitnessStatement:
		target = &WitnessStatementPayload{}
	case CommitTypeManualEdit:
		target = &ManualEditPayload{}
	case CommitTypeReconstructionUpdate:
		target = &ReconstructionUpdatePayload{}
	case CommitTypeProfileUpdate:
		target = &ProfileUpdatePayload{}
	case CommitTypeReasoningResult:
		target = &ReasoningResultPayload{}
	case CommitTypeExportReport:
		target = &ExportReportPayload{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommitType, ct)
	}

	if len(raw) == 0 {
		return target, nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return nil, fmt.Errorf("%w (%s): %v", ErrMalformedPayload, ct, err)
	}
	return target, nil
}
