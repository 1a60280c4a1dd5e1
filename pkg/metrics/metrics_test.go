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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
)

func TestRecordReconcileResultIncrementsByLabel(t *testing.T) {
	before := testutil.ToFloat64(reconcileResultTotal.WithLabelValues("succeeded", ""))

	RecordReconcileResult("succeeded", "")

	after := testutil.ToFloat64(reconcileResultTotal.WithLabelValues("succeeded", ""))
	assert.Equal(t, before+1.0, after)
}

func TestRecordProviderCallTracksOutcomeAndLatency(t *testing.T) {
	beforeCount := testutil.ToFloat64(providerCallTotal.WithLabelValues("gcp", "EnsurePresent", "ok"))

	RecordProviderCall("gcp", "EnsurePresent", "ok", 0.25)

	afterCount := testutil.ToFloat64(providerCallTotal.WithLabelValues("gcp", "EnsurePresent", "ok"))
	assert.Equal(t, beforeCount+1.0, afterCount)

	hist := providerCallDuration.WithLabelValues("gcp", "EnsurePresent").(prometheus.Histogram)
	assert.Equal(t, uint64(1), sampleCount(t, hist))
}

func sampleCount(t *testing.T, o prometheus.Histogram) uint64 {
	t.Helper()
	m := &dto.Metric{}
	if err := o.Write(m); err != nil {
		t.Fatalf("writing metric: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestRecordArtifactCacheResultDistinguishesOutcomes(t *testing.T) {
	beforeHit := testutil.ToFloat64(artifactCacheTotal.WithLabelValues("hit"))
	beforeMiss := testutil.ToFloat64(artifactCacheTotal.WithLabelValues("miss"))

	RecordArtifactCacheResult("hit")
	RecordArtifactCacheResult("miss")
	RecordArtifactCacheResult("miss")

	assert.Equal(t, beforeHit+1.0, testutil.ToFloat64(artifactCacheTotal.WithLabelValues("hit")))
	assert.Equal(t, beforeMiss+2.0, testutil.ToFloat64(artifactCacheTotal.WithLabelValues("miss")))
}

func TestSetSchedulerQueueDepthOverwritesGauge(t *testing.T) {
	SetSchedulerQueueDepth(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(schedulerQueueDepth))

	SetSchedulerQueueDepth(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(schedulerQueueDepth))
}

func TestRecordStatusWriteDistinguishesSkippedFromWritten(t *testing.T) {
	beforeSkipped := testutil.ToFloat64(statusWriteTotal.WithLabelValues("skipped"))

	RecordStatusWrite("skipped")

	assert.Equal(t, beforeSkipped+1.0, testutil.ToFloat64(statusWriteTotal.WithLabelValues("skipped")))
}

