package queue

import (
	"context"
	"sync"

	"scoregate/domain/submission"
	"scoregate/ports"
)

// MemoryQueue is an in-process FIFO for tests and the demo command. Items
// are dropped on dequeue; an item that is never acked is not redelivered.
type MemoryQueue struct {
	name   string
	mu     sync.Mutex
	items  []submission.QueueItem
	unack  int
	notify chan struct{}
}

var _ ports.Queue = (*MemoryQueue)(nil)

// NewMemoryQueue creates an empty in-memory queue
func NewMemoryQueue(name string) *MemoryQueue {
	return &MemoryQueue{name: name, notify: make(chan struct{}, 1)}
}

func (q *MemoryQueue) Name() string { return q.name }

func (q *MemoryQueue) Enqueue(ctx context.Context, item submission.QueueItem) error {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.wake()
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (ports.Delivery, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			q.unack++
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.wake()
			}
			var once sync.Once
			return ports.Delivery{Item: item, Ack: func(context.Context) error {
				once.Do(func() {
					q.mu.Lock()
					q.unack--
					q.mu.Unlock()
				})
				return nil
			}}, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ports.Delivery{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// Pending returns queued plus delivered-but-unacked items.
func (q *MemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) + q.unack
}

func (q *MemoryQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
