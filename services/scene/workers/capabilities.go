// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workers

import (
	"fmt"
	"sort"

	"github.com/AleutianAI/CaseTrace/services/scene/models"
)

// Capabilities is the job-type → worker table. It is assembled at wiring
// time and injected wherever availability matters: the manager consumes
// only registered types, and job creation rejects types with no worker.
//
// Thread Safety: the table is immutable after construction; reads need no
// locking.
type Capabilities struct {
	workers map[models.JobType]Worker
}

// NewCapabilities builds the table. Duplicate types and workers for
// unknown types are wiring bugs and fail construction.
func NewCapabilities(ws ...Worker) (*Capabilities, error) {
	table := make(map[models.JobType]Worker, len(ws))
	for _, w := range ws {
		jt := w.Type()
		if !jt.IsValid() {
			return nil, fmt.Errorf("worker registered for unknown job type %q", jt)
		}
		if _, dup := table[jt]; dup {
			return nil, fmt.Errorf("duplicate worker for job type %q", jt)
		}
		table[jt] = w
	}
	return &Capabilities{workers: table}, nil
}

// Has reports whether a worker serves the job type.
func (c *Capabilities) Has(jt models.JobType) bool {
	_, ok := c.workers[jt]
	return ok
}

// Get returns the worker for the job type, or nil.
func (c *Capabilities) Get(jt models.JobType) Worker {
	return c.workers[jt]
}

// Types returns the registered job types, sorted for stable iteration.
func (c *Capabilities) Types() []models.JobType {
	types := make([]models.JobType, 0, len(c.workers))
	for jt := range c.workers {
		types = append(types, jt)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
