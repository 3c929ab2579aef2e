// Package queue holds the coalescing task queues and their single-worker drain loop.
package queue

import (
	"context"
	"sync"
	"warrant_bot/internal/models"
)

// Queue is a FIFO of tasks holding at most one task per non-empty DedupeKey.
type Queue struct {
	name string

	mu     sync.Mutex
	items  []models.Task
	closed bool
	wake   chan struct{}
}

func New(name string) *Queue {
	return &Queue{name: name, wake: make(chan struct{}, 1)}
}

func (q *Queue) Name() string { return q.name }

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) find(key string) int {
	if key == "" {
		return -1
	}
	for i := range q.items {
		if q.items[i].DedupeKey == key {
			return i
		}
	}
	return -1
}

// Push appends t, or replaces in place a queued task with the same DedupeKey.
// It returns false once the queue is closed.
func (q *Queue) Push(t models.Task) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if i := q.find(t.DedupeKey); i >= 0 {
		q.items[i] = t
	} else {
		q.items = append(q.items, t)
	}
	q.mu.Unlock()
	q.signal()
	return true
}

// ScheduleLatest drops any queued task with the same DedupeKey and appends t at the tail.
func (q *Queue) ScheduleLatest(t models.Task) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	if i := q.find(t.DedupeKey); i >= 0 {
		q.items = append(q.items[:i], q.items[i+1:]...)
	}
	q.items = append(q.items, t)
	q.mu.Unlock()
	q.signal()
	return true
}

func (q *Queue) TryPop() (models.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return models.Task{}, false
	}
	t := q.items[0]
	q.items[0] = models.Task{}
	q.items = q.items[1:]
	if len(q.items) > 0 {
		q.signal()
	}
	return t, true
}

// Pop blocks until a task is available. It returns false when ctx ends or the
// queue is closed and empty.
func (q *Queue) Pop(ctx context.Context) (models.Task, bool) {
	for {
		if t, ok := q.TryPop(); ok {
			return t, true
		}
		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return models.Task{}, false
		}
		select {
		case <-ctx.Done():
			return models.Task{}, false
		case <-q.wake:
		}
	}
}

// CancelWhere removes every queued task matching fn and returns them.
func (q *Queue) CancelWhere(fn func(models.Task) bool) []models.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	var removed []models.Task
	kept := q.items[:0]
	for _, t := range q.items {
		if fn(t) {
			removed = append(removed, t)
			continue
		}
		kept = append(kept, t)
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = models.Task{}
	}
	q.items = kept
	return removed
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot copies the queued tasks in order.
func (q *Queue) Snapshot() []models.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.Task(nil), q.items...)
}

// Close stops intake. Queued tasks can still be popped.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}
