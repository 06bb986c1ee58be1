/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the worker's Prometheus collectors.
type Metrics struct {
	JobsTotal          *prometheus.CounterVec
	StageDuration      *prometheus.HistogramVec
	RecordsIndexed     prometheus.Counter
	ViolationsRecorded prometheus.Counter
	IOCMatches         prometheus.Counter
	StaleFilesReset    prometheus.Counter
}

// NewMetrics registers the worker collectors with a registerer. Pass
// prometheus.DefaultRegisterer in the daemon; tests use their own
// registry so repeated construction cannot collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		JobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "casescope_jobs_total",
			Help: "Jobs handled, by operation and outcome",
		}, []string{"operation", "outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "casescope_stage_duration_seconds",
			Help:    "Wall time per pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.1, 3, 10),
		}, []string{"stage"}),
		RecordsIndexed: factory.NewCounter(prometheus.CounterOpts{
			Name: "casescope_records_indexed_total",
			Help: "Records acknowledged by the search index",
		}),
		ViolationsRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "casescope_violations_total",
			Help: "Detection rule violations recorded",
		}),
		IOCMatches: factory.NewCounter(prometheus.CounterOpts{
			Name: "casescope_ioc_matches_total",
			Help: "Indicator matches recorded",
		}),
		StaleFilesReset: factory.NewCounter(prometheus.CounterOpts{
			Name: "casescope_stale_files_reset_total",
			Help: "Files re-queued by the reconciliation sweep",
		}),
	}
}

const (
	outcomeOK      = "ok"
	outcomeFailed  = "failed"
	outcomeYielded = "yielded"
)
