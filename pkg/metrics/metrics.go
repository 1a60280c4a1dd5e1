// Copyright 2022 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes the Prometheus series described in spec.md
// §4.10: reconcile phase/duration, provider call outcome, artifact cache
// hit/miss, scheduler backoff, and status-write skip-vs-write. Label sets
// are kept low-cardinality (source/provider kind, never a secret key or
// MC name) so series count stays bounded as MCs scale.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "secretsync"

// Registry is the private registry all of this package's collectors are
// registered against, rather than the global prometheus.DefaultRegisterer,
// so tests can register a throwaway copy.
var Registry = prometheus.NewRegistry()

var (
	reconcilePhaseDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "phase_duration_seconds",
		Help:      "Wall-clock time spent in one reconcile phase.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"phase"})

	reconcileResultTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconcile",
		Name:      "result_total",
		Help:      "Outcomes of a full reconcile attempt, by final phase and failure kind.",
	}, []string{"phase", "failure_kind"})

	providerCallTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "call_total",
		Help:      "Provider API calls, by provider kind, operation and outcome.",
	}, []string{"provider", "operation", "outcome"})

	providerCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "call_duration_seconds",
		Help:      "Provider API call latency, by provider kind and operation.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider", "operation"})

	artifactCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "artifact_cache",
		Name:      "acquire_total",
		Help:      "Artifact Acquire calls, by result: hit, miss, or corrupt.",
	}, []string{"result"})

	schedulerQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "queue_depth",
		Help:      "Number of MCs currently queued for reconciliation.",
	})

	schedulerBackoffSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "backoff_seconds",
		Help:      "Backoff delay chosen after a retryable reconcile failure.",
		Buckets:   prometheus.ExponentialBuckets(5, 2, 8),
	}, []string{"failure_kind"})

	statusWriteTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "status",
		Name:      "write_total",
		Help:      "Status().Update calls attempted versus skipped by the compare-and-set.",
	}, []string{"outcome"})
)

func init() {
	Registry.MustRegister(
		reconcilePhaseDuration,
		reconcileResultTotal,
		providerCallTotal,
		providerCallDuration,
		artifactCacheTotal,
		schedulerQueueDepth,
		schedulerBackoffSeconds,
		statusWriteTotal,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler serves the registered series in the Prometheus exposition
// format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordPhaseDuration records how long one reconcile phase took.
func RecordPhaseDuration(phase string, seconds float64) {
	reconcilePhaseDuration.WithLabelValues(phase).Observe(seconds)
}

// RecordReconcileResult records the final phase of one reconcile attempt.
// failureKind is empty for a successful attempt.
func RecordReconcileResult(phase, failureKind string) {
	reconcileResultTotal.WithLabelValues(phase, failureKind).Inc()
}

// RecordProviderCall records one provider API call's outcome and latency.
func RecordProviderCall(providerKind, operation, outcome string, seconds float64) {
	providerCallTotal.WithLabelValues(providerKind, operation, outcome).Inc()
	providerCallDuration.WithLabelValues(providerKind, operation).Observe(seconds)
}

// RecordArtifactCacheResult records one Acquire call's result: "hit",
// "miss", or "corrupt".
func RecordArtifactCacheResult(result string) {
	artifactCacheTotal.WithLabelValues(result).Inc()
}

// SetSchedulerQueueDepth reports the current number of queued MCs.
func SetSchedulerQueueDepth(n int) {
	schedulerQueueDepth.Set(float64(n))
}

// RecordSchedulerBackoff records a chosen backoff delay after a retryable
// failure of the given kind.
func RecordSchedulerBackoff(failureKind string, seconds float64) {
	schedulerBackoffSeconds.WithLabelValues(failureKind).Observe(seconds)
}

// RecordStatusWrite records whether a reconcile's status compare-and-set
// issued an API write ("written") or found nothing changed ("skipped").
func RecordStatusWrite(outcome string) {
	statusWriteTotal.WithLabelValues(outcome).Inc()
}
