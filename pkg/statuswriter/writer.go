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

package statuswriter

import (
	"context"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	secretsyncv1alpha1 "github.com/secretsync-io/secret-sync-controller/pkg/apis/secretsync/v1alpha1"
	"github.com/secretsync-io/secret-sync-controller/pkg/engine"
)

// Clock is time.Now, abstracted for tests.
type Clock func() time.Time

// Writer performs the compare-and-set status write against the API server.
type Writer struct {
	Client client.Client
	Clock  Clock
}

// New returns a Writer backed by c, using the real wall clock.
func New(c client.Client) *Writer {
	return &Writer{Client: c, Clock: time.Now}
}

// Write computes the desired status for result and, if it differs from
// mc's current status, patches the status subresource. It returns false
// without making an API call when nothing observable changed.
func (w *Writer) Write(ctx context.Context, mc *secretsyncv1alpha1.SecretSync, result engine.Result, nextScheduledReconcile *time.Time) (changed bool, err error) {
	desired := Compute(mc.Status, result, nextScheduledReconcile)
	stampNewConditions(desired.Conditions, mc.Status.Conditions, w.clock())

	if Equals(mc.Status, desired) {
		return false, nil
	}

	mc.Status = desired
	if err := w.Client.Status().Update(ctx, mc); err != nil {
		return false, err
	}
	return true, nil
}

func (w *Writer) clock() time.Time {
	if w.Clock == nil {
		return time.Now()
	}
	return w.Clock()
}

// stampNewConditions sets LastTransitionTime to now for any condition in
// desired whose (status, reason, message) changed relative to prev, or
// which is new; mergeConditions already copied the old timestamp forward
// for unchanged conditions, so a zero LastTransitionTime here means "needs
// a fresh stamp".
func stampNewConditions(desired []metav1.Condition, prev []metav1.Condition, now time.Time) {
	prevByType := map[string]metav1.Condition{}
	for _, c := range prev {
		prevByType[c.Type] = c
	}
	for i := range desired {
		old, had := prevByType[desired[i].Type]
		if had && old.Status == desired[i].Status && old.Reason == desired[i].Reason && old.Message == desired[i].Message {
			continue
		}
		desired[i].LastTransitionTime = metav1.NewTime(now)
	}
}
