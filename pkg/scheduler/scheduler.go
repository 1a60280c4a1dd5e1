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

// Package scheduler runs the per-MC due-at priority queue and bounded
// worker pool described in spec.md §4.8. It is generalized from the
// teacher's cmd/reconciler/reconciler.go publisher/funnel wiring: there,
// fixed timer/poll/resync publishers feed one parser through a funnel; here
// N MCs each carry their own due time through one shared queue feeding a
// bounded pool of workers.
package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// DefaultWorkers is the default bounded worker pool size.
const DefaultWorkers = 4

// DefaultMinBackoff/DefaultMaxBackoff bound the exponential backoff applied
// after a retryable failure (spec.md §4.8).
const (
	DefaultMinBackoff = 5 * time.Second
	DefaultMaxBackoff = 10 * time.Minute
	jitterFraction    = 0.2
)

// Outcome is what one reconciliation attempt reports back to the scheduler
// so it can compute the next due time.
type Outcome struct {
	// RetryableFailure indicates the attempt failed in a way the scheduler
	// should back off and retry, rather than waiting for the normal
	// reconcile interval.
	RetryableFailure bool
	// NextInterval is the normal reconcile interval to use when the
	// attempt did not fail (or failed non-retryably).
	NextInterval time.Duration
}

// ReconcileFunc is invoked by a worker for one due MC. ctx is cancelled if
// the MC is removed from the scheduler while the call is in flight.
type ReconcileFunc func(ctx context.Context, mcKey string) Outcome

// Scheduler runs ReconcileFunc for each registered MC key on its own
// due-at schedule, bounded to Workers concurrent in-flight reconciliations.
type Scheduler struct {
	Workers     int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	Reconcile   ReconcileFunc

	mu        sync.Mutex
	queue     *delayQueue
	cancels   map[string]context.CancelFunc
	wake      chan struct{}
}

// New returns a Scheduler with spec.md §4.8 defaults; override Workers,
// MinBackoff, MaxBackoff before calling Run if needed.
func New(reconcile ReconcileFunc) *Scheduler {
	return &Scheduler{
		Workers:    DefaultWorkers,
		MinBackoff: DefaultMinBackoff,
		MaxBackoff: DefaultMaxBackoff,
		Reconcile:  reconcile,
		queue:      newDelayQueue(),
		cancels:    map[string]context.CancelFunc{},
		wake:       make(chan struct{}, 1),
	}
}

// Schedule registers mcKey (or reschedules it) to become due after delay.
// Called on discovery of a new MC, on a spec generation change, and on an
// imperative reconcile-now annotation (which should pass delay=0).
func (s *Scheduler) Schedule(mcKey string, delay time.Duration) {
	s.mu.Lock()
	s.queue.Upsert(mcKey, time.Now().Add(delay), 0)
	s.mu.Unlock()
	s.poke()
}

// Cancel removes mcKey from the queue and, if a reconciliation for it is
// currently running, cancels its context (spec.md §4.8: cancellation
// drains a deleted MC's queue entries).
func (s *Scheduler) Cancel(mcKey string) {
	s.mu.Lock()
	s.queue.Remove(mcKey)
	cancel, running := s.cancels[mcKey]
	s.mu.Unlock()
	if running {
		cancel()
	}
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run blocks, dispatching due MCs to a bounded worker pool, until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	sem := make(chan struct{}, s.workers())
	// g.Go's func never returns an error; the group only exists to bound
	// Run's own goroutine lifetime to its workers on drain.
	g, ctx := errgroup.WithContext(ctx)
	defer g.Wait()

	for {
		wait := s.nextWait()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
			continue
		case <-timer.C:
		}

		mcKey, failureCount, ok := s.popDue()
		if !ok {
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		g.Go(func() error {
			defer func() { <-sem }()
			s.run(ctx, mcKey, failureCount)
			return nil
		})
	}
}

// nextWait returns how long Run should sleep before checking the queue
// again: until the earliest due entry, or a second if the queue is empty
// (so newly-Schedule()d entries are picked up promptly via poke()).
func (s *Scheduler) nextWait() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, dueAt, ok := s.queue.Peek()
	if !ok {
		return time.Second
	}
	d := time.Until(dueAt)
	if d < 0 {
		return 0
	}
	return d
}

func (s *Scheduler) popDue() (mcKey string, failureCount int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, dueAt, has := s.queue.Peek()
	if !has || dueAt.After(time.Now()) {
		return "", 0, false
	}
	k, fc := s.queue.Pop()
	return k, fc, true
}

func (s *Scheduler) run(ctx context.Context, mcKey string, failureCount int) {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancels[mcKey] = cancel
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		delete(s.cancels, mcKey)
		s.mu.Unlock()
	}()

	outcome := s.Reconcile(runCtx, mcKey)

	defer s.poke()
	s.mu.Lock()
	defer s.mu.Unlock()
	if outcome.RetryableFailure {
		delay := backoff(failureCount+1, s.minBackoff(), s.maxBackoff())
		klog.V(2).Infof("scheduler: %s failed, retrying in %s", mcKey, delay)
		s.queue.Upsert(mcKey, time.Now().Add(delay), failureCount+1)
		return
	}
	interval := outcome.NextInterval
	if interval <= 0 {
		interval = s.minBackoff()
	}
	s.queue.Upsert(mcKey, time.Now().Add(interval), 0)
}

func (s *Scheduler) workers() int {
	if s.Workers <= 0 {
		return DefaultWorkers
	}
	return s.Workers
}

func (s *Scheduler) minBackoff() time.Duration {
	if s.MinBackoff <= 0 {
		return DefaultMinBackoff
	}
	return s.MinBackoff
}

func (s *Scheduler) maxBackoff() time.Duration {
	if s.MaxBackoff <= 0 {
		return DefaultMaxBackoff
	}
	return s.MaxBackoff
}

// backoff returns an exponential delay for the given failure count, capped
// at max, with +/-20% jitter (spec.md §4.8) so a fleet of failing MCs does
// not retry in lockstep.
func backoff(failureCount int, min, max time.Duration) time.Duration {
	d := min
	for i := 1; i < failureCount && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	jitter := time.Duration(float64(d) * jitterFraction * (rand.Float64()*2 - 1))
	d += jitter
	if d < 0 {
		d = min
	}
	return d
}
