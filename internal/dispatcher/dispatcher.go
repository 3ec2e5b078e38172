// Package dispatcher moves queued download tasks onto the worker pool.
package dispatcher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/finstage/content-crawler/internal/metrics"
	"github.com/finstage/content-crawler/internal/pipeline"
	"github.com/finstage/content-crawler/internal/pqueue"
)

// Assigner accepts a task for execution, reporting false when it was dropped.
type Assigner interface {
	Assign(ctx context.Context, task pipeline.URLTask) bool
}

// Dispatcher moves tasks from the URL queue onto the pool, at most one per
// tier per cycle so a saturated pool never swallows a whole tier. A refused
// assignment ends the cycle; queued tasks wait for the next interval.
type Dispatcher struct {
	urls     *pqueue.URLQueue
	pool     Assigner
	interval time.Duration
	logger   *zap.Logger
}

// New constructs a Dispatcher.
func New(urls *pqueue.URLQueue, pool Assigner, interval time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{urls: urls, pool: pool, interval: interval, logger: logger}
}

// Run steps the dispatcher on its interval until the context is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	d.logger.Info("dispatcher started", zap.Duration("interval", d.interval))
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped")
			return
		case <-ticker.C:
			d.Step(ctx)
		}
	}
}

// Step pops at most one task per tier, highest tier first, and returns the
// number of tasks the pool accepted.
func (d *Dispatcher) Step(ctx context.Context) int {
	assigned := 0
	for _, tier := range pipeline.Tiers() {
		task, ok := d.urls.Get(tier)
		if !ok {
			continue
		}
		accepted := d.pool.Assign(ctx, task)
		metrics.SetURLQueueDepth(tier.String(), d.urls.Size(tier))
		if !accepted {
			d.logger.Warn("worker pool saturated, backing off",
				zap.String("tier", tier.String()))
			break
		}
		assigned++
	}
	return assigned
}
