// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/CaseTrace/services/scene/models"
)

// Keyspaces of the durable queue. Pending keys embed a zero-padded
// enqueue timestamp so an ascending scan is FIFO.
//
//	qpend/<type>/<seq-ts>/<job-id>  → JobMessage (awaiting delivery)
//	qproc/<type>/<job-id>           → JobMessage (in flight)
//	qdead/<type>/<job-id>           → JobMessage (attempt cap reached)
const (
	prefixPending    = "qpend/"
	prefixProcessing = "qproc/"
	prefixDead       = "qdead/"
)

// DurableQueue is the BadgerDB-backed transport. Messages survive process
// restarts; in-flight messages left behind by a crash are returned to
// pending by RecoverStale.
type DurableQueue struct {
	db          *badger.DB
	maxAttempts int
	pollEvery   time.Duration
	metrics     *Metrics
	logger      *slog.Logger
}

// DurableOption tunes the queue.
type DurableOption func(*DurableQueue)

// WithMaxAttempts overrides the dead-letter cap.
func WithMaxAttempts(n int) DurableOption {
	return func(q *DurableQueue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

// WithPollInterval overrides how often Dequeue re-checks an empty lane.
func WithPollInterval(d time.Duration) DurableOption {
	return func(q *DurableQueue) {
		if d > 0 {
			q.pollEvery = d
		}
	}
}

// NewDurableQueue creates a durable queue over an opened database. The
// database may be shared with the record store; the keyspaces are disjoint.
func NewDurableQueue(db *badger.DB, metrics *Metrics, logger *slog.Logger, opts ...DurableOption) (*DurableQueue, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &DurableQueue{
		db:          db,
		maxAttempts: DefaultMaxAttempts,
		pollEvery:   100 * time.Millisecond,
		metrics:     metrics,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

func pendingPrefix(jt models.JobType) []byte {
	return []byte(prefixPending + string(jt) + "/")
}

func pendingKey(msg *JobMessage) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d/%s", prefixPending, msg.Type, msg.EnqueuedAt.UnixNano(), msg.JobID))
}

func processingPrefix(jt models.JobType) []byte {
	return []byte(prefixProcessing + string(jt) + "/")
}

func processingKey(msg *JobMessage) []byte {
	return append(processingPrefix(msg.Type), msg.JobID.String()...)
}

func deadKey(msg *JobMessage) []byte {
	return []byte(prefixDead + string(msg.Type) + "/" + msg.JobID.String())
}

func encodeMessage(msg *JobMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal queue message: %w", err)
	}
	return data, nil
}

func decodeMessage(data []byte) (*JobMessage, error) {
	msg := &JobMessage{}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("unmarshal queue message: %w", err)
	}
	return msg, nil
}

// Enqueue writes the message to the pending keyspace. Unlike the memory
// backend there is no capacity bound; "full" cannot happen.
func (q *DurableQueue) Enqueue(ctx context.Context, msg *JobMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now().UTC()
	}
	data, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	err = q.db.Update(func(txn *badger.Txn) error {
		return txn.Set(pendingKey(msg), data)
	})
	if err != nil {
		return fmt.Errorf("enqueue job %s: %w", msg.JobID, err)
	}
	q.metrics.Enqueued(string(msg.Type))
	return nil
}

// Dequeue polls the pending keyspace until a message arrives or timeout
// elapses. The claimed message moves to the processing keyspace in the
// same transaction, so two consumers cannot claim the same message; the
// conflict loser just polls again.
func (q *DurableQueue) Dequeue(ctx context.Context, jobType models.JobType, timeout time.Duration) (*JobMessage, error) {
	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msg, err := q.claimOne(jobType)
		if err != nil && !errors.Is(err, badger.ErrConflict) {
			return nil, err
		}
		if msg != nil {
			q.metrics.Dequeued(string(jobType))
			return msg, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		wait := q.pollEvery
		if wait > remaining {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

func (q *DurableQueue) claimOne(jobType models.JobType) (*JobMessage, error) {
	var claimed *JobMessage
	err := q.db.Update(func(txn *badger.Txn) error {
		claimed = nil
		opts := badger.DefaultIteratorOptions
		opts.Prefix = pendingPrefix(jobType)
		it := txn.NewIterator(opts)
		defer it.Close()

		it.Rewind()
		if !it.Valid() {
			return nil
		}

		item := it.Item()
		key := item.KeyCopy(nil)
		var msg *JobMessage
		if err := item.Value(func(val []byte) error {
			var derr error
			msg, derr = decodeMessage(val)
			return derr
		}); err != nil {
			return err
		}

		msg.Attempts++
		now := time.Now().UTC()
		msg.DequeuedAt = now
		msg.LastAttempt = now

		data, err := encodeMessage(msg)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		if err := txn.Set(processingKey(msg), data); err != nil {
			return err
		}
		claimed = msg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Ack deletes the in-flight entry.
func (q *DurableQueue) Ack(ctx context.Context, msg *JobMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := q.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(processingKey(msg))
	})
	if err != nil {
		return fmt.Errorf("ack job %s: %w", msg.JobID, err)
	}
	q.metrics.Acked(string(msg.Type))
	return nil
}

// Nack moves the in-flight entry back to pending, or to the dead-letter
// keyspace once the attempt cap is reached. Dead letters are kept for
// inspection, never redelivered.
func (q *DurableQueue) Nack(ctx context.Context, msg *JobMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dead := msg.Attempts >= q.maxAttempts
	err := q.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(processingKey(msg)); err != nil {
			return err
		}
		if dead {
			data, err := encodeMessage(msg)
			if err != nil {
				return err
			}
			return txn.Set(deadKey(msg), data)
		}
		// Fresh enqueue timestamp: redeliveries go to the back of the lane.
		requeued := *msg
		requeued.EnqueuedAt = time.Now().UTC()
		requeued.DequeuedAt = time.Time{}
		data, err := encodeMessage(&requeued)
		if err != nil {
			return err
		}
		return txn.Set(pendingKey(&requeued), data)
	})
	if err != nil {
		return fmt.Errorf("nack job %s: %w", msg.JobID, err)
	}
	if dead {
		q.logger.Warn("message dead-lettered",
			"job_id", msg.JobID, "type", msg.Type, "attempts", msg.Attempts)
		q.metrics.DeadLettered(string(msg.Type))
	} else {
		q.metrics.Nacked(string(msg.Type))
	}
	return nil
}

// Length counts pending messages for a job type.
func (q *DurableQueue) Length(ctx context.Context, jobType models.JobType) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count := 0
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = pendingPrefix(jobType)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	q.metrics.SetDepth(string(jobType), count)
	return count, nil
}

// DeadLetters returns the dead-lettered messages for a job type, for
// operator inspection.
func (q *DurableQueue) DeadLetters(ctx context.Context, jobType models.JobType) ([]*JobMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var msgs []*JobMessage
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixDead + string(jobType) + "/")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(func(val []byte) error {
				msg, derr := decodeMessage(val)
				if derr != nil {
					return derr
				}
				msgs = append(msgs, msg)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// RecoverStale returns in-flight messages older than olderThan to pending.
// A crashed consumer leaves its claim in qproc forever; this sweep is what
// makes delivery at-least-once across restarts.
func (q *DurableQueue) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	recovered := 0
	for _, jt := range models.AllJobTypes() {
		n, err := q.recoverLane(jt, cutoff)
		if err != nil {
			return recovered, err
		}
		recovered += n
	}
	if recovered > 0 {
		q.logger.Info("recovered stale in-flight messages", "count", recovered)
	}
	return recovered, nil
}

func (q *DurableQueue) recoverLane(jt models.JobType, cutoff time.Time) (int, error) {
	moved := 0
	err := q.db.Update(func(txn *badger.Txn) error {
		moved = 0
		opts := badger.DefaultIteratorOptions
		opts.Prefix = processingPrefix(jt)
		it := txn.NewIterator(opts)
		defer it.Close()

		type stale struct {
			key []byte
			msg *JobMessage
		}
		var stales []stale
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var msg *JobMessage
			if err := item.Value(func(val []byte) error {
				var derr error
				msg, derr = decodeMessage(val)
				return derr
			}); err != nil {
				return err
			}
			if msg.DequeuedAt.Before(cutoff) {
				stales = append(stales, stale{key: item.KeyCopy(nil), msg: msg})
			}
		}

		for _, s := range stales {
			if err := txn.Delete(s.key); err != nil {
				return err
			}
			s.msg.EnqueuedAt = time.Now().UTC()
			s.msg.DequeuedAt = time.Time{}
			data, err := encodeMessage(s.msg)
			if err != nil {
				return err
			}
			if err := txn.Set(pendingKey(s.msg), data); err != nil {
				return err
			}
			moved++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return moved, nil
}

// Close is a no-op; the shared database is closed by its owner.
func (q *DurableQueue) Close() error {
	return nil
}

var _ Queue = (*DurableQueue)(nil)
