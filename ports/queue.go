package ports

import (
	"context"

	"scoregate/domain/submission"
)

// Queue names
const (
	QueueLeaderboard = "leaderboard"
	QueueOriginality = "originality"
	QueueConcordance = "concordance"
)

// Delivery is one dequeued item. Ack removes it from the queue; an item
// that is never acked becomes visible again once its lease expires.
type Delivery struct {
	Item submission.QueueItem
	Ack  func(ctx context.Context) error
}

// Queue is a durable FIFO queue with explicit acknowledgment
type Queue interface {
	Name() string
	Enqueue(ctx context.Context, item submission.QueueItem) error
	// Dequeue blocks until an item is available or ctx ends.
	Dequeue(ctx context.Context) (Delivery, error)
}
