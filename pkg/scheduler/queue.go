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

package scheduler

import (
	"container/heap"
	"time"
)

// item is one MC's position in the due-at priority queue.
type item struct {
	mcKey        string
	dueAt        time.Time
	failureCount int
	index        int // maintained by heap.Interface
}

// itemHeap orders by dueAt ascending; it is the backing store for the
// delayQueue below. Not safe for concurrent use on its own —
// delayQueue serializes access with a mutex.
type itemHeap []*item

func (h itemHeap) Len() int { return len(h) }
func (h itemHeap) Less(i, j int) bool { return h[i].dueAt.Before(h[j].dueAt) }
func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x interface{}) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// delayQueue is a per-MC due-at priority queue (spec.md §4.8): at most one
// pending entry per MC key, keyed so a re-schedule replaces rather than
// duplicates an entry.
type delayQueue struct {
	h      itemHeap
	byKey  map[string]*item
}

func newDelayQueue() *delayQueue {
	q := &delayQueue{byKey: map[string]*item{}}
	heap.Init(&q.h)
	return q
}

// Upsert schedules mcKey to become due at dueAt, replacing any existing
// pending entry for the same key (the newer schedule wins — this is how a
// reconcile-now annotation or a spec change jumps the queue).
func (q *delayQueue) Upsert(mcKey string, dueAt time.Time, failureCount int) {
	if existing, ok := q.byKey[mcKey]; ok {
		existing.dueAt = dueAt
		existing.failureCount = failureCount
		heap.Fix(&q.h, existing.index)
		return
	}
	it := &item{mcKey: mcKey, dueAt: dueAt, failureCount: failureCount}
	heap.Push(&q.h, it)
	q.byKey[mcKey] = it
}

// Remove drops mcKey's pending entry, if any (spec.md §4.8: cancellation
// drains a deleted MC's queue entries).
func (q *delayQueue) Remove(mcKey string) {
	it, ok := q.byKey[mcKey]
	if !ok {
		return
	}
	heap.Remove(&q.h, it.index)
	delete(q.byKey, mcKey)
}

// Peek returns the earliest-due entry without removing it, or ok=false if
// the queue is empty.
func (q *delayQueue) Peek() (mcKey string, dueAt time.Time, ok bool) {
	if q.h.Len() == 0 {
		return "", time.Time{}, false
	}
	return q.h[0].mcKey, q.h[0].dueAt, true
}

// Pop removes and returns the earliest-due entry.
func (q *delayQueue) Pop() (mcKey string, failureCount int) {
	it := heap.Pop(&q.h).(*item)
	delete(q.byKey, it.mcKey)
	return it.mcKey, it.failureCount
}

func (q *delayQueue) Len() int { return q.h.Len() }
