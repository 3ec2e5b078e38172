// Package worker runs download tasks on a bounded pool of goroutines.
package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/finstage/content-crawler/internal/metrics"
	"github.com/finstage/content-crawler/internal/pipeline"
)

// DefaultMaxWorkers bounds concurrent downloads when no limit is configured.
const DefaultMaxWorkers = 10

// Handler processes one download task.
type Handler func(ctx context.Context, task pipeline.URLTask)

// Pool runs handlers concurrently up to a fixed limit. Tasks offered to a
// saturated pool are dropped, never queued.
type Pool struct {
	max     int64
	active  atomic.Int64
	handler Handler
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewPool constructs a Pool. A non-positive max falls back to
// DefaultMaxWorkers.
func NewPool(max int, handler Handler, logger *zap.Logger) *Pool {
	if max <= 0 {
		max = DefaultMaxWorkers
	}
	return &Pool{max: int64(max), handler: handler, logger: logger}
}

// Assign starts a worker for the task. It reports false when the pool is
// saturated, in which case the task is dropped.
func (p *Pool) Assign(ctx context.Context, task pipeline.URLTask) bool {
	for {
		active := p.active.Load()
		if active >= p.max {
			p.logger.Warn("worker pool saturated, dropping task",
				zap.String("symbol", task.Symbol),
				zap.String("url", task.URL),
				zap.String("tier", task.Tier.String()))
			metrics.ObserveURLDropped(task.Tier.String())
			return false
		}
		if p.active.CompareAndSwap(active, active+1) {
			break
		}
	}

	p.wg.Add(1)
	metrics.IncActiveWorkers()
	go func() {
		defer func() {
			p.active.Add(-1)
			metrics.DecActiveWorkers()
			p.wg.Done()
		}()
		p.handler(ctx, task)
	}()
	return true
}

// Active returns the number of workers currently running.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Wait blocks until every assigned worker has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}
