// spoolbox
// Copyright 2025 The spoolbox authors
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

// Package queue decouples message acceptance from mailbox writes. A
// bounded in-memory queue buffers accepted messages; delivery workers
// drain it and write into per-recipient maildrops. The queue is not
// persisted across restarts.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/spoolbox/spoolbox/pkg/maildir"
	"github.com/spoolbox/spoolbox/pkg/metrics"
)

// Policy selects the behavior of Enqueue when the queue is full.
type Policy string

const (
	// PolicyBlock makes Enqueue wait for capacity.
	PolicyBlock Policy = "block"
	// PolicyReject makes Enqueue fail with ErrQueueFull.
	PolicyReject Policy = "reject"
	// PolicyDropOldest evicts the oldest queued message to make room.
	PolicyDropOldest Policy = "drop_oldest"
)

// ErrQueueFull is returned by Enqueue under PolicyReject when the
// queue is at capacity.
var ErrQueueFull = errors.New("delivery queue full")

// Queue is a bounded multi-producer/multi-consumer message queue.
type Queue struct {
	ch      chan *maildir.Message
	policy  Policy
	metrics metrics.Collector

	// Serializes evictions so two drop-oldest producers cannot both
	// evict for the same freed slot.
	evictMu sync.Mutex
}

// New creates a queue with the given capacity and overflow policy. A
// nil collector disables metrics.
func New(capacity int, policy Policy, mc metrics.Collector) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	if mc == nil {
		mc = metrics.NopCollector{}
	}
	return &Queue{
		ch:      make(chan *maildir.Message, capacity),
		policy:  policy,
		metrics: mc,
	}
}

// Enqueue adds a message to the queue, applying the overflow policy
// when full. Nil messages are ignored.
func (q *Queue) Enqueue(msg *maildir.Message) error {
	if msg == nil {
		return nil
	}

	switch q.policy {
	case PolicyReject:
		select {
		case q.ch <- msg:
		default:
			q.metrics.MessageDropped()
			return ErrQueueFull
		}
	case PolicyDropOldest:
		q.evictMu.Lock()
		for {
			select {
			case q.ch <- msg:
				q.evictMu.Unlock()
				q.noteEnqueued()
				return nil
			default:
			}
			select {
			case <-q.ch:
				q.metrics.MessageDropped()
			default:
			}
		}
	default: // PolicyBlock
		q.ch <- msg
	}

	q.noteEnqueued()
	return nil
}

func (q *Queue) noteEnqueued() {
	q.metrics.MessageEnqueued()
	q.metrics.QueueDepth(len(q.ch))
}

// Dequeue blocks until a message is available or ctx is cancelled. The
// second return is false only on cancellation.
func (q *Queue) Dequeue(ctx context.Context) (*maildir.Message, bool) {
	select {
	case msg := <-q.ch:
		q.metrics.QueueDepth(len(q.ch))
		return msg, true
	case <-ctx.Done():
		return nil, false
	}
}

// Len reports the number of queued messages.
func (q *Queue) Len() int {
	return len(q.ch)
}
