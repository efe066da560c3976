// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store implements the durable record layer on BadgerDB: cases,
// the append-only commit log with a per-case timeline index, branches,
// jobs with idempotency-key dedup, and the materialized snapshot and
// suspect profile.
//
// Key layout (all keys are printable, '/'-separated):
//
//	case/<case-id>                                → Case
//	commit/<commit-id>                            → Commit
//	commitidx/<case-id>/<rev-ts>/<commit-id>      → commit-id (timeline index)
//	branch/<branch-id>                            → Branch
//	branchidx/<case-id>/<branch-id>               → branch-id
//	job/<job-id>                                  → Job
//	jobidx/<case-id>/<job-id>                     → job-id
//	jobkey/<idempotency-key>                      → job-id
//	snapshot/<case-id>                            → SceneSnapshot
//	profile/<case-id>                             → SuspectProfile
//
// <rev-ts> is a zero-padded reverse timestamp (MaxInt64 - UnixNano), so an
// ascending prefix scan over commitidx/<case-id>/ yields newest-first.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/CaseTrace/services/scene/models"
)

const (
	prefixCase      = "case/"
	prefixCommit    = "commit/"
	prefixCommitIdx = "commitidx/"
	prefixBranch    = "branch/"
	prefixBranchIdx = "branchidx/"
	prefixJob       = "job/"
	prefixJobIdx    = "jobidx/"
	prefixJobKey    = "jobkey/"
	prefixSnapshot  = "snapshot/"
	prefixProfile   = "profile/"
)

const (
	// DefaultPageSize is the timeline page size when the caller passes 0.
	DefaultPageSize = 50

	// MaxPageSize caps the timeline page size.
	MaxPageSize = 200

	// maxChainDepth bounds the ancestor walk. The parent link is assigned
	// at append time from an existing commit, so a longer chain than this
	// means corrupted data, not a legitimate timeline.
	maxChainDepth = 100_000
)

// Store is the BadgerDB-backed record store. All methods are safe for
// concurrent use; multi-key writes run inside a single Badger transaction.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// New creates a Store over an opened database.
func New(db *badger.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}, nil
}

// -----------------------------------------------------------------------------
// Keys
// -----------------------------------------------------------------------------

func caseKey(id uuid.UUID) []byte     { return []byte(prefixCase + id.String()) }
func commitKey(id uuid.UUID) []byte   { return []byte(prefixCommit + id.String()) }
func branchKey(id uuid.UUID) []byte   { return []byte(prefixBranch + id.String()) }
func jobKey(id uuid.UUID) []byte      { return []byte(prefixJob + id.String()) }
func jobKeyKey(key string) []byte     { return []byte(prefixJobKey + key) }
func snapshotKey(id uuid.UUID) []byte { return []byte(prefixSnapshot + id.String()) }
func profileKey(id uuid.UUID) []byte  { return []byte(prefixProfile + id.String()) }

func commitIdxPrefix(caseID uuid.UUID) []byte {
	return []byte(prefixCommitIdx + caseID.String() + "/")
}

func commitIdxKey(caseID uuid.UUID, createdAt time.Time, commitID uuid.UUID) []byte {
	rev := uint64(math.MaxInt64 - createdAt.UnixNano())
	return []byte(fmt.Sprintf("%s%s/%020d/%s", prefixCommitIdx, caseID, rev, commitID))
}

func branchIdxPrefix(caseID uuid.UUID) []byte {
	return []byte(prefixBranchIdx + caseID.String() + "/")
}

func branchIdxKey(caseID, branchID uuid.UUID) []byte {
	return append(branchIdxPrefix(caseID), branchID.String()...)
}

func jobIdxPrefix(caseID uuid.UUID) []byte {
	return []byte(prefixJobIdx + caseID.String() + "/")
}

func jobIdxKey(caseID, jobID uuid.UUID) []byte {
	return append(jobIdxPrefix(caseID), jobID.String()...)
}

// -----------------------------------------------------------------------------
// Transaction helpers
// -----------------------------------------------------------------------------

// update runs a read-modify-write transaction, translating Badger's
// optimistic-concurrency conflict into the retryable taxonomy.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	err := s.db.Update(fn)
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: concurrent write conflict", ErrTransient)
	}
	return err
}

func putJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := marshalValue(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		return unmarshalValue(val, out)
	})
}

func getString(txn *badger.Txn, key []byte) (string, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	var out string
	err = item.Value(func(val []byte) error {
		out = string(val)
		return nil
	})
	return out, err
}

// -----------------------------------------------------------------------------
// Cases
// -----------------------------------------------------------------------------

// CreateCase persists a new case.
func (s *Store) CreateCase(ctx context.Context, c *models.Case) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return s.update(func(txn *badger.Txn) error {
		return putJSON(txn, caseKey(c.ID), c)
	})
}

// GetCase loads a case by ID.
func (s *Store) GetCase(ctx context.Context, id uuid.UUID) (*models.Case, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := &models.Case{}
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, caseKey(id), c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCases returns all cases, unordered. The corpus is small enough that a
// full prefix scan is fine; pagination lives on the commit timeline where
// growth is unbounded.
func (s *Store) ListCases(ctx context.Context) ([]*models.Case, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var cases []*models.Case
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixCase)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			c := &models.Case{}
			if err := it.Item().Value(func(val []byte) error {
				return unmarshalValue(val, c)
			}); err != nil {
				return err
			}
			cases = append(cases, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cases, nil
}

// -----------------------------------------------------------------------------
// Commits
// -----------------------------------------------------------------------------

// AppendCommit appends a commit to the case's immutable log.
//
// Description:
//
//	Validates the commit, resolves its parent and branch inside the same
//	transaction that writes it, and maintains the timeline index. A commit
//	is never visible before its parent: the parent must already be stored,
//	and the write is transactional.
//
// Outputs:
//
//	error - ErrValidation for bad input, ErrNotFound for a missing case,
//	parent or branch, ErrConflict when the parent or branch belongs to a
//	different case, ErrTransient on write conflicts.
func (s *Store) AppendCommit(ctx context.Context, c *models.Commit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	return s.update(func(txn *badger.Txn) error {
		if _, err := txn.Get(caseKey(c.CaseID)); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: case %s", ErrNotFound, c.CaseID)
		} else if err != nil {
			return err
		}

		if c.ParentCommitID != nil {
			parent := &models.Commit{}
			if err := getJSON(txn, commitKey(*c.ParentCommitID), parent); err != nil {
				if errors.Is(err, ErrNotFound) {
					return fmt.Errorf("%w: parent commit %s", ErrNotFound, *c.ParentCommitID)
				}
				return err
			}
			if parent.CaseID != c.CaseID {
				return fmt.Errorf("%w: parent commit %s belongs to case %s", ErrConflict, parent.ID, parent.CaseID)
			}
		}

		if c.BranchID != nil {
			branch := &models.Branch{}
			if err := getJSON(txn, branchKey(*c.BranchID), branch); err != nil {
				if errors.Is(err, ErrNotFound) {
					return fmt.Errorf("%w: branch %s", ErrNotFound, *c.BranchID)
				}
				return err
			}
			if branch.CaseID != c.CaseID {
				return fmt.Errorf("%w: branch %s belongs to case %s", ErrConflict, branch.ID, branch.CaseID)
			}
		}

		if err := putJSON(txn, commitKey(c.ID), c); err != nil {
			return err
		}
		return txn.Set(commitIdxKey(c.CaseID, c.CreatedAt, c.ID), []byte(c.ID.String()))
	})
}

// GetCommit loads a commit by ID.
func (s *Store) GetCommit(ctx context.Context, id uuid.UUID) (*models.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c := &models.Commit{}
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, commitKey(id), c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCommitsByCase returns one timeline page, newest first.
//
// cursor is the opaque index key of the last commit on the previous page;
// pass "" for the first page. nextCursor is "" when the page was short.
func (s *Store) ListCommitsByCase(ctx context.Context, caseID uuid.UUID, limit int, cursor string) ([]*models.Commit, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	prefix := commitIdxPrefix(caseID)
	commits := make([]*models.Commit, 0, limit)
	nextCursor := ""

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		if cursor != "" {
			it.Seek([]byte(cursor))
			if it.Valid() && string(it.Item().Key()) == cursor {
				it.Next()
			}
		} else {
			it.Rewind()
		}

		for ; it.Valid() && len(commits) < limit; it.Next() {
			var commitID string
			if err := it.Item().Value(func(val []byte) error {
				commitID = string(val)
				return nil
			}); err != nil {
				return err
			}
			id, err := uuid.Parse(commitID)
			if err != nil {
				return fmt.Errorf("corrupt timeline index entry %q: %w", commitID, err)
			}
			c := &models.Commit{}
			if err := getJSON(txn, commitKey(id), c); err != nil {
				return err
			}
			commits = append(commits, c)
			if len(commits) == limit {
				nextCursor = string(it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return commits, nextCursor, nil
}

// GetLatestCommit returns the newest commit of the case across all branches,
// or ErrNotFound when the case has no commits yet.
func (s *Store) GetLatestCommit(ctx context.Context, caseID uuid.UUID) (*models.Commit, error) {
	commits, _, err := s.ListCommitsByCase(ctx, caseID, 1, "")
	if err != nil {
		return nil, err
	}
	if len(commits) == 0 {
		return nil, fmt.Errorf("%w: case %s has no commits", ErrNotFound, caseID)
	}
	return commits[0], nil
}

// GetLatestMainCommit returns the newest commit not tagged with a branch.
// Used as the branch point when a case has no explicit head.
func (s *Store) GetLatestMainCommit(ctx context.Context, caseID uuid.UUID) (*models.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var found *models.Commit
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = commitIdxPrefix(caseID)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var commitID string
			if err := it.Item().Value(func(val []byte) error {
				commitID = string(val)
				return nil
			}); err != nil {
				return err
			}
			id, err := uuid.Parse(commitID)
			if err != nil {
				return fmt.Errorf("corrupt timeline index entry %q: %w", commitID, err)
			}
			c := &models.Commit{}
			if err := getJSON(txn, commitKey(id), c); err != nil {
				return err
			}
			if c.BranchID == nil {
				found = c
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: case %s has no main-line commits", ErrNotFound, caseID)
	}
	return found, nil
}

// GetAncestorChain returns the chain from the root to the given commit,
// oldest first. The target must belong to the case: a commit ID from
// another case is ErrNotFound, so a caller can never replay foreign state
// by mixing identifiers. The walk is iterative and guards against parent
// cycles, which cannot be produced through AppendCommit but would
// otherwise hang replay forever if the data were corrupted by hand.
func (s *Store) GetAncestorChain(ctx context.Context, caseID, commitID uuid.UUID) ([]*models.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var chain []*models.Commit
	err := s.db.View(func(txn *badger.Txn) error {
		seen := make(map[uuid.UUID]struct{})
		current := commitID
		for depth := 0; ; depth++ {
			if depth > maxChainDepth {
				return fmt.Errorf("%w: ancestor chain exceeds %d commits", ErrConflict, maxChainDepth)
			}
			if _, ok := seen[current]; ok {
				return fmt.Errorf("%w: parent cycle at commit %s", ErrConflict, current)
			}
			seen[current] = struct{}{}

			c := &models.Commit{}
			if err := getJSON(txn, commitKey(current), c); err != nil {
				return err
			}
			if c.CaseID != caseID {
				return fmt.Errorf("%w: commit %s does not belong to case %s", ErrNotFound, current, caseID)
			}
			chain = append(chain, c)
			if c.ParentCommitID == nil {
				return nil
			}
			current = *c.ParentCommitID
		}
	})
	if err != nil {
		return nil, err
	}

	// Walked child → root; replay wants root → child.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// -----------------------------------------------------------------------------
// Branches
// -----------------------------------------------------------------------------

// CreateBranch persists a branch after checking the base commit exists and
// belongs to the same case.
func (s *Store) CreateBranch(ctx context.Context, b *models.Branch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return s.update(func(txn *badger.Txn) error {
		base := &models.Commit{}
		if err := getJSON(txn, commitKey(b.BaseCommitID), base); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: base commit %s", ErrNotFound, b.BaseCommitID)
			}
			return err
		}
		if base.CaseID != b.CaseID {
			return fmt.Errorf("%w: base commit %s belongs to case %s", ErrConflict, base.ID, base.CaseID)
		}
		if err := putJSON(txn, branchKey(b.ID), b); err != nil {
			return err
		}
		return txn.Set(branchIdxKey(b.CaseID, b.ID), []byte(b.ID.String()))
	})
}

// GetBranch loads a branch by ID.
func (s *Store) GetBranch(ctx context.Context, id uuid.UUID) (*models.Branch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := &models.Branch{}
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, branchKey(id), b)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListBranchesByCase returns the case's branches, unordered.
func (s *Store) ListBranchesByCase(ctx context.Context, caseID uuid.UUID) ([]*models.Branch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var branches []*models.Branch
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = branchIdxPrefix(caseID)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var branchID string
			if err := it.Item().Value(func(val []byte) error {
				branchID = string(val)
				return nil
			}); err != nil {
				return err
			}
			id, err := uuid.Parse(branchID)
			if err != nil {
				return fmt.Errorf("corrupt branch index entry %q: %w", branchID, err)
			}
			b := &models.Branch{}
			if err := getJSON(txn, branchKey(id), b); err != nil {
				return err
			}
			branches = append(branches, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return branches, nil
}

// -----------------------------------------------------------------------------
// Jobs
// -----------------------------------------------------------------------------

// CreateJob persists a job, deduplicating on the idempotency key.
//
// Description:
//
//	When the job carries an idempotency key that is already mapped, the
//	existing job is returned instead and nothing is written — provided it
//	is for the same case and job type. A key reused across cases or types
//	is ErrConflict, not a silent handle to someone else's job. The lookup
//	and the write share one transaction, so two concurrent creates with
//	the same key cannot both insert.
//
// Outputs:
//
//	*models.Job - The stored job: the argument on insert, the prior job
//	on a dedup hit.
//	bool - True when a new job was inserted.
func (s *Store) CreateJob(ctx context.Context, j *models.Job) (*models.Job, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := j.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	var existing *models.Job
	err := s.update(func(txn *badger.Txn) error {
		existing = nil
		if j.IdempotencyKey != "" {
			idStr, err := getString(txn, jobKeyKey(j.IdempotencyKey))
			if err == nil {
				id, perr := uuid.Parse(idStr)
				if perr != nil {
					return fmt.Errorf("corrupt idempotency entry %q: %w", idStr, perr)
				}
				prior := &models.Job{}
				if err := getJSON(txn, jobKey(id), prior); err != nil {
					return err
				}
				if prior.CaseID != j.CaseID || prior.Type != j.Type {
					return fmt.Errorf("%w: idempotency key %q already used by a %s job on case %s",
						ErrConflict, j.IdempotencyKey, prior.Type, prior.CaseID)
				}
				existing = prior
				return nil
			}
			if !errors.Is(err, ErrNotFound) {
				return err
			}
		}

		if err := putJSON(txn, jobKey(j.ID), j); err != nil {
			return err
		}
		if err := txn.Set(jobIdxKey(j.CaseID, j.ID), []byte(j.ID.String())); err != nil {
			return err
		}
		if j.IdempotencyKey != "" {
			return txn.Set(jobKeyKey(j.IdempotencyKey), []byte(j.ID.String()))
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}
	return j, true, nil
}

// GetJob loads a job by ID.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	j := &models.Job{}
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, jobKey(id), j)
	})
	if err != nil {
		return nil, err
	}
	return j, nil
}

// MutateJob applies fn to the job inside a read-modify-write transaction
// and persists the result. fn returning an error aborts the write; the
// mutated job is returned on success.
//
// Thread Safety: concurrent mutations of the same job serialize through
// Badger's conflict detection; the loser gets ErrTransient and may retry.
func (s *Store) MutateJob(ctx context.Context, id uuid.UUID, fn func(*models.Job) error) (*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out *models.Job
	err := s.update(func(txn *badger.Txn) error {
		j := &models.Job{}
		if err := getJSON(txn, jobKey(id), j); err != nil {
			return err
		}
		if err := fn(j); err != nil {
			return err
		}
		if err := putJSON(txn, jobKey(id), j); err != nil {
			return err
		}
		out = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListJobsByCase returns the case's jobs, unordered.
func (s *Store) ListJobsByCase(ctx context.Context, caseID uuid.UUID) ([]*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var jobs []*models.Job
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = jobIdxPrefix(caseID)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var jobID string
			if err := it.Item().Value(func(val []byte) error {
				jobID = string(val)
				return nil
			}); err != nil {
				return err
			}
			id, err := uuid.Parse(jobID)
			if err != nil {
				return fmt.Errorf("corrupt job index entry %q: %w", jobID, err)
			}
			j := &models.Job{}
			if err := getJSON(txn, jobKey(id), j); err != nil {
				return err
			}
			jobs = append(jobs, j)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// ListQueuedJobs returns every job in the queued state. The rescanner uses
// this to re-deliver jobs whose transport message was dropped.
func (s *Store) ListQueuedJobs(ctx context.Context) ([]*models.Job, error) {
	return s.listJobsWhere(ctx, func(j *models.Job) bool {
		return j.Status == models.JobStatusQueued
	})
}

// ListZombieJobs returns running jobs whose heartbeat (UpdatedAt) is older
// than cutoff. These are jobs whose worker died mid-flight.
func (s *Store) ListZombieJobs(ctx context.Context, cutoff time.Time) ([]*models.Job, error) {
	return s.listJobsWhere(ctx, func(j *models.Job) bool {
		return j.Status == models.JobStatusRunning && j.UpdatedAt.Before(cutoff)
	})
}

func (s *Store) listJobsWhere(ctx context.Context, keep func(*models.Job) bool) ([]*models.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var jobs []*models.Job
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixJob)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			j := &models.Job{}
			if err := it.Item().Value(func(val []byte) error {
				return unmarshalValue(val, j)
			}); err != nil {
				return err
			}
			if keep(j) {
				jobs = append(jobs, j)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// -----------------------------------------------------------------------------
// Snapshot and profile
// -----------------------------------------------------------------------------

// UpsertSnapshot stores the case's materialized SceneGraph, replacing any
// prior snapshot.
func (s *Store) UpsertSnapshot(ctx context.Context, snap *models.SceneSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap.CaseID == uuid.Nil || snap.Scenegraph == nil {
		return fmt.Errorf("%w: snapshot requires case id and scenegraph", ErrValidation)
	}
	snap.UpdatedAt = time.Now().UTC()
	return s.update(func(txn *badger.Txn) error {
		return putJSON(txn, snapshotKey(snap.CaseID), snap)
	})
}

// GetSnapshot loads the case's snapshot, or ErrNotFound when none has been
// materialized yet.
func (s *Store) GetSnapshot(ctx context.Context, caseID uuid.UUID) (*models.SceneSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := &models.SceneSnapshot{}
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, snapshotKey(caseID), snap)
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// UpsertSuspectProfile stores the case's suspect profile, replacing any
// prior profile.
func (s *Store) UpsertSuspectProfile(ctx context.Context, p *models.SuspectProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	p.UpdatedAt = time.Now().UTC()
	return s.update(func(txn *badger.Txn) error {
		return putJSON(txn, profileKey(p.CaseID), p)
	})
}

// GetSuspectProfile loads the case's suspect profile.
func (s *Store) GetSuspectProfile(ctx context.Context, caseID uuid.UUID) (*models.SuspectProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := &models.SuspectProfile{}
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, profileKey(caseID), p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
