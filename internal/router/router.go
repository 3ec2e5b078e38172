// Package router drains the symbol queue tier by tier and turns each symbol
// into download tasks.
package router

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/finstage/content-crawler/internal/metrics"
	"github.com/finstage/content-crawler/internal/pipeline"
	"github.com/finstage/content-crawler/internal/pqueue"
)

// DefaultCapacity bounds each tier of the URL queue.
const DefaultCapacity = 30

// URLFilter removes structurally invalid and already-persisted URLs.
type URLFilter interface {
	FilterAndDeduplicate(ctx context.Context, urls []string) ([]string, error)
}

// Router pops symbols in tier order, expands them, and feeds the URL queue.
// A full tier backs the router off without consuming the symbol.
type Router struct {
	symbols   *pqueue.SymbolQueue
	urls      *pqueue.URLQueue
	extractor pipeline.Extractor
	filter    URLFilter
	capacity  int
	interval  time.Duration
	logger    *zap.Logger
}

// New constructs a Router. A non-positive capacity falls back to
// DefaultCapacity.
func New(
	symbols *pqueue.SymbolQueue,
	urls *pqueue.URLQueue,
	extractor pipeline.Extractor,
	filter URLFilter,
	capacity int,
	interval time.Duration,
	logger *zap.Logger,
) *Router {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Router{
		symbols:   symbols,
		urls:      urls,
		extractor: extractor,
		filter:    filter,
		capacity:  capacity,
		interval:  interval,
		logger:    logger,
	}
}

// Run steps the router on its interval until the context is canceled.
func (r *Router) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	r.logger.Info("router started", zap.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("router stopped")
			return
		case <-ticker.C:
			r.Step(ctx)
		}
	}
}

// Step services only the first tier with pending symbols, highest tier
// first. Lower tiers never advance while a higher tier has work, even when
// that tier is backed off on a full URL queue. Returns the number of symbols
// expanded (0 or 1).
func (r *Router) Step(ctx context.Context) int {
	for _, tier := range pipeline.Tiers() {
		if r.symbols.Empty(tier) {
			continue
		}
		if r.urls.Size(tier) >= r.capacity {
			// Leave the symbol queued. It keeps its position and is
			// retried on the next step.
			r.logger.Debug("url queue full, waiting",
				zap.String("tier", tier.String()))
			return 0
		}
		task, ok := r.symbols.Pop(tier)
		if !ok {
			continue
		}
		r.route(ctx, tier, task)
		return 1
	}
	return 0
}

func (r *Router) route(ctx context.Context, tier pipeline.Tier, task pipeline.SymbolTask) {
	metrics.ObserveSymbolRouted(tier.String())

	discovered, err := r.extractor.ExtractURLs(ctx, task.Symbol)
	if err != nil {
		r.logger.Error("url extraction failed",
			zap.String("symbol", task.Symbol), zap.Error(err))
		return
	}
	metrics.ObserveURLsDiscovered(len(discovered))

	fresh, err := r.filter.FilterAndDeduplicate(ctx, discovered)
	if err != nil {
		r.logger.Error("url filtering failed",
			zap.String("symbol", task.Symbol), zap.Error(err))
		return
	}

	enqueued, dropped := 0, 0
	for _, u := range fresh {
		if r.urls.Size(tier) >= r.capacity {
			// Capacity was reached mid-insert. The remainder is dropped,
			// not re-queued.
			dropped = len(fresh) - enqueued
			for i := 0; i < dropped; i++ {
				metrics.ObserveURLDropped(tier.String())
			}
			break
		}
		if err := r.urls.Put(tier, pipeline.URLTask{Symbol: task.Symbol, URL: u, Tier: tier}); err != nil {
			r.logger.Error("enqueue failed", zap.String("url", u), zap.Error(err))
			continue
		}
		metrics.ObserveURLEnqueued(tier.String())
		enqueued++
	}
	metrics.SetURLQueueDepth(tier.String(), r.urls.Size(tier))

	r.logger.Info("symbol routed",
		zap.String("symbol", task.Symbol),
		zap.String("tier", tier.String()),
		zap.Int("discovered", len(discovered)),
		zap.Int("enqueued", enqueued),
		zap.Int("dropped", dropped))
}
