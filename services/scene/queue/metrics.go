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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks queue traffic, labeled by job type. A nil *Metrics is
// valid and records nothing, so backends never nil-check per call site.
type Metrics struct {
	enqueued     *prometheus.CounterVec
	dequeued     *prometheus.CounterVec
	acked        *prometheus.CounterVec
	nacked       *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	deadLettered *prometheus.CounterVec
	rescanned    prometheus.Counter
	depth        *prometheus.GaugeVec
}

// NewMetrics creates queue metrics registered with reg. Pass nil to create
// unregistered metrics (tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		enqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "casetrace_queue_enqueued_total",
			Help: "Messages accepted by the queue.",
		}, []string{"job_type"}),
		dequeued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "casetrace_queue_dequeued_total",
			Help: "Messages handed to a consumer.",
		}, []string{"job_type"}),
		acked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "casetrace_queue_acked_total",
			Help: "Messages acknowledged after processing.",
		}, []string{"job_type"}),
		nacked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "casetrace_queue_nacked_total",
			Help: "Messages returned for redelivery.",
		}, []string{"job_type"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "casetrace_queue_dropped_total",
			Help: "Messages rejected by a full transport or discarded past the attempt cap.",
		}, []string{"job_type"}),
		deadLettered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "casetrace_queue_dead_lettered_total",
			Help: "Messages moved to the dead-letter keyspace.",
		}, []string{"job_type"}),
		rescanned: factory.NewCounter(prometheus.CounterOpts{
			Name: "casetrace_queue_rescanned_total",
			Help: "Queued job records re-delivered by the rescanner.",
		}),
		depth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "casetrace_queue_depth",
			Help: "Pending messages per job type.",
		}, []string{"job_type"}),
	}
}

// The nil-receiver helpers keep call sites unconditional.

func (m *Metrics) Enqueued(jt string) {
	if m != nil {
		m.enqueued.WithLabelValues(jt).Inc()
	}
}

func (m *Metrics) Dequeued(jt string) {
	if m != nil {
		m.dequeued.WithLabelValues(jt).Inc()
	}
}

func (m *Metrics) Acked(jt string) {
	if m != nil {
		m.acked.WithLabelValues(jt).Inc()
	}
}

func (m *Metrics) Nacked(jt string) {
	if m != nil {
		m.nacked.WithLabelValues(jt).Inc()
	}
}

func (m *Metrics) Dropped(jt string) {
	if m != nil {
		m.dropped.WithLabelValues(jt).Inc()
	}
}

func (m *Metrics) DeadLettered(jt string) {
	if m != nil {
		m.deadLettered.WithLabelValues(jt).Inc()
	}
}

func (m *Metrics) Rescanned(n int) {
	if m != nil {
		m.rescanned.Add(float64(n))
	}
}

func (m *Metrics) SetDepth(jt string, n int) {
	if m != nil {
		m.depth.WithLabelValues(jt).Set(float64(n))
	}
}
