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

// CommitType discriminates the typed payload carried by a commit.
type CommitType string

const (
	CommitTypeUploadScan           CommitType = "upload_scan"
	CommitTypeWitnessStatement     CommitType = "witness_statement"
	CommitTypeManualEdit           CommitType = "manual_edit"
	CommitTypeReconstructionUpdate CommitType = "reconstruction_update"
	CommitTypeProfileUpdate        CommitType = "profile_update"
	CommitTypeReasoningResult      CommitType = "reasoning_result"
	CommitTypeExportReport         CommitType = "export_report"
)

// IsValid reports whether the commit type is a known value.
func (ct CommitType) IsValid() bool {
	switch ct {
	case CommitTypeUploadScan, CommitTypeWitnessStatement, CommitTypeManualEdit,
		CommitTypeReconstructionUpdate, CommitTypeProfileUpdate,
		CommitTypeReasoningResult, CommitTypeExportReport:
		return true
	}
	return false
}

// MutatesSceneGraph reports whether replay applies commits of this type to
// the SceneGraph. Other types exist for the timeline or feed side state
// (profile_update feeds the SuspectProfile).
func (ct CommitType) MutatesSceneGraph() bool {
	return ct == CommitTypeReconstructionUpdate || ct == CommitTypeManualEdit
}

// JobType identifies the worker capability a job is routed to.
type JobType string

const (
	JobTypeReconstruction JobType = "reconstruction"
	JobTypeImageGen       JobType = "imagegen"
	JobTypeReasoning      JobType = "reasoning"
	JobTypeProfile        JobType = "profile"
	JobTypeExport         JobType = "export"
)

// IsValid reports whether the job type is a known value.
func (jt JobType) IsValid() bool {
	switch jt {
	case JobTypeReconstruction, JobTypeImageGen, JobTypeReasoning, JobTypeProfile, JobTypeExport:
		return true
	}
	return false
}

// AllJobTypes returns every known job type. Used by the queue backends to
// size per-type transports and by zombie recovery to scan all lanes.
func AllJobTypes() []JobType {
	return []JobType{JobTypeReconstruction, JobTypeImageGen, JobTypeReasoning, JobTypeProfile, JobTypeExport}
}

// JobStatus is the durable job state machine:
//
//	queued → running → {done | failed | canceled}
//
// failed loops back to queued via retry until the retry cap is reached.
type JobStatus string

const (
	JobStatusQueued   JobStatus = "queued"
	JobStatusRunning  JobStatus = "running"
	JobStatusDone     JobStatus = "done"
	JobStatusFailed   JobStatus = "failed"
	JobStatusCanceled JobStatus = "canceled"
)

// IsValid reports whether the job status is a known value.
func (js JobStatus) IsValid() bool {
	switch js {
	case JobStatusQueued, JobStatusRunning, JobStatusDone, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (js JobStatus) IsTerminal() bool {
	return js == JobStatusDone || js == JobStatusFailed || js == JobStatusCanceled
}

// ObjectType classifies a scene object.
type ObjectType string

const (
	ObjectTypeFurniture    ObjectType = "furniture"
	ObjectTypeDoor         ObjectType = "door"
	ObjectTypeWindow       ObjectType = "window"
	ObjectTypeWall         ObjectType = "wall"
	ObjectTypeEvidenceItem ObjectType = "evidence_item"
	ObjectTypeWeapon       ObjectType = "weapon"
	ObjectTypeFootprint    ObjectType = "footprint"
	ObjectTypeBloodstain   ObjectType = "bloodstain"
	ObjectTypeVehicle      ObjectType = "vehicle"
	ObjectTypePersonMarker ObjectType = "person_marker"
	ObjectTypeOther        ObjectType = "other"
)

// IsValid reports whether the object type is a known value.
func (ot ObjectType) IsValid() bool {
	switch ot {
	case ObjectTypeFurniture, ObjectTypeDoor, ObjectTypeWindow, ObjectTypeWall,
		ObjectTypeEvidenceItem, ObjectTypeWeapon, ObjectTypeFootprint,
		ObjectTypeBloodstain, ObjectTypeVehicle, ObjectTypePersonMarker, ObjectTypeOther:
		return true
	}
	return false
}

// ObjectState is the visibility state of a scene object.
type ObjectState string

const (
	ObjectStateVisible    ObjectState = "visible"
	ObjectStateOccluded   ObjectState = "occluded"
	ObjectStateSuspicious ObjectState = "suspicious"
	ObjectStateRemoved    ObjectState = "removed"
)

// IsValid reports whether the object state is a known value.
func (os ObjectState) IsValid() bool {
	switch os {
	case ObjectStateVisible, ObjectStateOccluded, ObjectStateSuspicious, ObjectStateRemoved:
		return true
	}
	return false
}

// ConstraintType classifies a scene constraint.
type ConstraintType string

const (
	ConstraintTypeDoorDirection ConstraintType = "door_direction"
	ConstraintTypePassableArea  ConstraintType = "passable_area"
	ConstraintTypeHeightRange   ConstraintType = "height_range"
	ConstraintTypeTimeWindow    ConstraintType = "time_window"
	ConstraintTypeCustom        ConstraintType = "custom"
)

// IsValid reports whether the constraint type is a known value.
func (ct ConstraintType) IsValid() bool {
	switch ct {
	case ConstraintTypeDoorDirection, ConstraintTypePassableArea,
		ConstraintTypeHeightRange, ConstraintTypeTimeWindow, ConstraintTypeCustom:
		return true
	}
	return false
}

// UncertaintyLevel grades an uncertainty region.
type UncertaintyLevel string

const (
	UncertaintyLevelLow    UncertaintyLevel = "low"
	UncertaintyLevelMedium UncertaintyLevel = "medium"
	UncertaintyLevelHigh   UncertaintyLevel = "high"
)

// IsValid reports whether the uncertainty level is a known value.
func (ul UncertaintyLevel) IsValid() bool {
	switch ul {
	case UncertaintyLevelLow, UncertaintyLevelMedium, UncertaintyLevelHigh:
		return true
	}
	return false
}

// EvidenceSourceType classifies where a piece of evidence came from.
type EvidenceSourceType string

const (
	EvidenceSourceTypeUpload    EvidenceSourceType = "upload"
	EvidenceSourceTypeWitness   EvidenceSourceType = "witness"
	EvidenceSourceTypeInference EvidenceSourceType = "inference"
)

// IsValid reports whether the evidence source type is a known value.
func (est EvidenceSourceType) IsValid() bool {
	switch est {
	case EvidenceSourceTypeUpload, EvidenceSourceTypeWitness, EvidenceSourceTypeInference:
		return true
	}
	return false
}
