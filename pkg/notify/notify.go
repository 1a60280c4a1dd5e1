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

// Package notify publishes a best-effort event to an external Pub/Sub
// topic at the end of a reconciliation (spec.md §2 NEW). It is never a
// dependency of the reconciliation itself: a Notifier that is nil, unset,
// or failing only produces a log line, never a reconcile failure.
//
// Adapted from the teacher's pkg/pubsub/publish.go: that package opened a
// new pubsub.Client per call. Here one client/topic pair is held open for
// the process lifetime and reused across reconciliations instead.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// Status is the outcome an Event reports.
type Status string

const (
	StatusSucceeded Status = "reconcileSucceeded"
	StatusFailed    Status = "reconcileFailed"
)

// Event is the JSON payload published for one completed reconciliation.
type Event struct {
	// EventID lets a downstream subscriber dedupe redeliveries; Pub/Sub
	// gives at-least-once delivery, not exactly-once.
	EventID      string `json:"eventId"`
	MCKey        string `json:"mcKey"`
	Phase        string `json:"phase"`
	SecretsCount int    `json:"secretsCount,omitempty"`
	Status       Status `json:"status"`
	Error        string `json:"error,omitempty"`
}

// Notifier publishes Events to one Pub/Sub topic. The zero value is not
// usable; construct with New.
type Notifier struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// New dials projectID and returns a Notifier bound to topicID. The
// returned Notifier's Close must be called on shutdown.
func New(ctx context.Context, projectID, topicID string) (*Notifier, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub: NewClient: %w", err)
	}
	return &Notifier{client: client, topic: client.Topic(topicID)}, nil
}

// Close releases the underlying Pub/Sub client.
func (n *Notifier) Close() error {
	if n == nil || n.client == nil {
		return nil
	}
	n.topic.Stop()
	return n.client.Close()
}

// Publish sends ev to the bound topic. Errors are returned for the caller
// to log; a Publish failure must never fail the reconciliation it
// describes (spec.md §2 NEW).
func (n *Notifier) Publish(ctx context.Context, ev Event) error {
	if n == nil || n.topic == nil {
		klog.V(4).Infof("notify: no topic configured, dropping event for %s", ev.MCKey)
		return nil
	}

	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}

	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	result := n.topic.Publish(ctx, &pubsub.Message{Data: b})
	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("pubsub: result.Get: %w", err)
	}
	klog.V(2).Infof("notify: published event for %s; msg ID: %v", ev.MCKey, id)
	return nil
}
