// Package pipeline runs the scoring stages as queue consumers.
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"scoregate/domain/core"
	"scoregate/domain/submission"
	"scoregate/internal"
	"scoregate/ports"
)

// Handler processes one queue item.
type Handler func(ctx context.Context, item submission.QueueItem) error

// Observer receives one observation per processed item.
type Observer interface {
	ItemProcessed(queue, outcome string, elapsed time.Duration)
}

// OutcomePanic labels items whose handler panicked.
const OutcomePanic = "panic"

// PoolOptions tunes a worker pool.
type PoolOptions struct {
	Workers     int
	ItemTimeout time.Duration
	// RetryDelay is the pause after a failed Dequeue.
	RetryDelay time.Duration
}

func (o PoolOptions) withDefaults() PoolOptions {
	out := o
	if out.Workers <= 0 {
		out.Workers = 1
	}
	if out.RetryDelay <= 0 {
		out.RetryDelay = time.Second
	}
	return out
}

// Pool consumes a queue with a fixed number of workers. An item is acked
// once its handler returns, whatever the result; an item whose process dies
// mid-flight is redelivered by the queue.
type Pool struct {
	queue    ports.Queue
	handler  Handler
	opts     PoolOptions
	observer Observer
	log      *internal.Logger
}

// NewPool creates a worker pool over queue
func NewPool(queue ports.Queue, handler Handler, opts PoolOptions, observer Observer, log *internal.Logger) *Pool {
	return &Pool{
		queue:    queue,
		handler:  handler,
		opts:     opts.withDefaults(),
		observer: observer,
		log:      log.Component("pool").With("queue", queue.Name()),
	}
}

// Run blocks until ctx is cancelled and every in-flight item has finished.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < p.opts.Workers; w++ {
		worker := w
		g.Go(func() error {
			p.work(ctx, worker)
			return nil
		})
	}
	p.log.Info("started %d workers", p.opts.Workers)
	return g.Wait()
}

func (p *Pool) work(ctx context.Context, worker int) {
	for {
		d, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error("worker %d dequeue failed: %v", worker, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.opts.RetryDelay):
			}
			continue
		}
		p.process(ctx, d)
	}
}

// process runs one item to completion. The item runs under a context
// detached from shutdown so in-flight work finishes; only ItemTimeout bounds it.
func (p *Pool) process(ctx context.Context, d ports.Delivery) {
	itemCtx := context.WithoutCancel(ctx)
	if p.opts.ItemTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(itemCtx, p.opts.ItemTimeout)
		defer cancel()
	}

	started := time.Now()
	outcome := p.run(itemCtx, d.Item)
	elapsed := time.Since(started)
	if p.observer != nil {
		p.observer.ItemProcessed(p.queue.Name(), outcome, elapsed)
	}

	if err := d.Ack(context.WithoutCancel(ctx)); err != nil {
		p.log.Error("ack of %s failed: %v", d.Item.SubmissionID, err)
	}
}

func (p *Pool) run(ctx context.Context, item submission.QueueItem) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("panic processing %s: %v\n%s", item.SubmissionID, r, debug.Stack())
			outcome = OutcomePanic
		}
	}()

	err := p.handler(ctx, item)
	outcome = core.Classify(err)
	switch {
	case err == nil:
		p.log.Debug("processed %s", item.SubmissionID)
	case core.IsSoft(err):
		p.log.Warn("skipped %s: %v", item.SubmissionID, err)
	default:
		p.log.Error("failed %s: %v", item.SubmissionID, err)
	}
	return outcome
}

// Group runs several pools and stops them together.
type Group []*Pool

// Run starts every pool and returns once all have stopped.
func (g Group) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, pool := range g {
		pool := pool
		eg.Go(func() error {
			if err := pool.Run(ctx); err != nil {
				return fmt.Errorf("%s pool: %w", pool.queue.Name(), err)
			}
			return nil
		})
	}
	return eg.Wait()
}
