package pipeline

import (
	"context"
	"time"

	"scoregate/internal"
	"scoregate/ports"
)

// Config sizes the worker pools.
type Config struct {
	OriginalityWorkers int
	ItemTimeout        time.Duration
}

// Pipeline consumes the leaderboard, originality and concordance queues.
type Pipeline struct {
	group Group
	log   *internal.Logger
}

// New wires one leaderboard worker, one concordance worker and
// cfg.OriginalityWorkers originality workers to their queues.
func New(leaderboard ports.Queue, stages *Stages, cfg Config, observer Observer, log *internal.Logger) *Pipeline {
	opts := func(workers int) PoolOptions {
		return PoolOptions{Workers: workers, ItemTimeout: cfg.ItemTimeout}
	}
	return &Pipeline{
		group: Group{
			NewPool(leaderboard, stages.Leaderboard, opts(1), observer, log),
			NewPool(stages.ConcordanceQueue, stages.Concordance, opts(1), observer, log),
			NewPool(stages.OriginalityQueue, stages.Originality, opts(cfg.OriginalityWorkers), observer, log),
		},
		log: log.Component("pipeline"),
	}
}

// Run blocks until ctx is cancelled and all in-flight items have finished.
func (p *Pipeline) Run(ctx context.Context) error {
	p.log.Info("pipeline started")
	err := p.group.Run(ctx)
	p.log.Info("pipeline stopped")
	return err
}
