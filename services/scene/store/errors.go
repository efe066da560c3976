// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import "errors"

// Error taxonomy shared by the store and the service layer. Callers branch
// with errors.Is; everything else wraps one of these or is an internal
// fault.
var (
	// ErrValidation marks rejected input: malformed IDs, oversize fields,
	// unknown enum values.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a lookup miss for a case, commit, branch, or job.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a cross-entity integrity violation, such as a
	// parent commit that belongs to a different case.
	ErrConflict = errors.New("conflict")

	// ErrUnavailable marks a dependency that is not registered or not
	// reachable, such as a job type with no worker capability.
	ErrUnavailable = errors.New("unavailable")

	// ErrTransient marks a retryable storage fault (write conflicts,
	// transient I/O). Callers may retry with backoff.
	ErrTransient = errors.New("transient failure")
)
