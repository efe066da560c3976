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
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks job processing outcomes. A nil *Metrics records nothing.
type Metrics struct {
	processed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	zombies   prometheus.Counter
}

// NewMetrics creates worker metrics registered with reg. Pass nil to
// create unregistered metrics (tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		processed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "casetrace_jobs_processed_total",
			Help: "Jobs finished, by type and result (done, failed, retried).",
		}, []string{"job_type", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "casetrace_job_duration_seconds",
			Help:    "Wall time from dequeue to terminal state.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"job_type"}),
		zombies: factory.NewCounter(prometheus.CounterOpts{
			Name: "casetrace_jobs_zombies_recovered_total",
			Help: "Running jobs requeued or failed by the zombie sweep.",
		}),
	}
}

func (m *Metrics) Processed(jt, result string) {
	if m != nil {
		m.processed.WithLabelValues(jt, result).Inc()
	}
}

func (m *Metrics) ObserveDuration(jt string, d time.Duration) {
	if m != nil {
		m.duration.WithLabelValues(jt).Observe(d.Seconds())
	}
}

func (m *Metrics) ZombiesRecovered(n int) {
	if m != nil {
		m.zombies.Add(float64(n))
	}
}
