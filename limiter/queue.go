package limiter

import (
	"container/list"
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// QueueOrder order in which queued waiters are served
type QueueOrder string

const (
	// QueueOldestFirst serve the longest waiting request first
	QueueOldestFirst QueueOrder = "oldest_first"
)

// waiter a parked acquisition
type waiter struct {
	enqueuedAt time.Time
	permits    int64
	ready      chan *Lease // buffered(1), written exactly once
	elem       *list.Element

	ctx     context.Context
	timeout clockwork.Timer // nil when the policy has no queue timeout
}

// waitQueue FIFO of waiters bounded by queued permits.
// Not safe for concurrent use; the owning gate holds the lock.
type waitQueue struct {
	items   *list.List
	permits int64
	limit   int64
}

func newWaitQueue(limit int64) *waitQueue {
	return &waitQueue{
		items: list.New(),
		limit: limit,
	}
}

// enabled whether the queue accepts waiters at all
func (q *waitQueue) enabled() bool {
	return q.limit > 0
}

// hasRoom whether permits more can be queued
func (q *waitQueue) hasRoom(permits int64) bool {
	return q.permits+permits <= q.limit
}

// push appends a waiter at the tail
func (q *waitQueue) push(ctx context.Context, now time.Time, permits int64) *waiter {
	w := &waiter{
		enqueuedAt: now,
		permits:    permits,
		ready:      make(chan *Lease, 1),
		ctx:        ctx,
	}
	w.elem = q.items.PushBack(w)
	q.permits += permits
	return w
}

// front returns the oldest waiter, nil if empty
func (q *waitQueue) front() *waiter {
	e := q.items.Front()
	if e == nil {
		return nil
	}
	return e.Value.(*waiter)
}

// remove unlinks a waiter, returns false if it was already removed
func (q *waitQueue) remove(w *waiter) bool {
	if w.elem == nil {
		return false
	}
	q.items.Remove(w.elem)
	w.elem = nil
	q.permits -= w.permits
	return true
}

// len number of waiters
func (q *waitQueue) len() int {
	return q.items.Len()
}

// drain removes every waiter, oldest first
func (q *waitQueue) drain() []*waiter {
	out := make([]*waiter, 0, q.items.Len())
	for w := q.front(); w != nil; w = q.front() {
		q.remove(w)
		out = append(out, w)
	}
	return out
}
