// Package buffer implements time/count-windowed batching of inbound symbol events.
package buffer

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/finstage/content-crawler/internal/metrics"
	"github.com/finstage/content-crawler/internal/pipeline"
)

// FlushFunc receives one flushed event. It is the sole hand-off to the next
// stage. Errors are logged by the buffer but never prevent the tier from
// being cleared.
type FlushFunc func(tier pipeline.Tier, score int, task pipeline.SymbolTask) error

// Buffer holds scored symbol events per tier until a flush condition is met.
// Add and Flush are safe to call from different goroutines.
type Buffer struct {
	mu        sync.Mutex
	pending   map[pipeline.Tier][]pipeline.SymbolEvent
	threshold int
	timeout   time.Duration
	flush     FlushFunc
	clock     pipeline.Clock
	logger    *zap.Logger
}

// New constructs a Buffer. A tier flushes when it holds at least threshold
// events or when its oldest event is older than timeout.
func New(threshold int, timeout time.Duration, flush FlushFunc, clock pipeline.Clock, logger *zap.Logger) *Buffer {
	return &Buffer{
		pending:   make(map[pipeline.Tier][]pipeline.SymbolEvent),
		threshold: threshold,
		timeout:   timeout,
		flush:     flush,
		clock:     clock,
		logger:    logger,
	}
}

// Add appends an event to the tier's pending sequence. Events carrying an
// unknown tier are logged and dropped.
func (b *Buffer) Add(tier pipeline.Tier, symbol string, score int) {
	if !tier.Valid() {
		b.logger.Warn("dropping event with invalid tier",
			zap.Int("tier", int(tier)), zap.String("symbol", symbol))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending[tier] = append(b.pending[tier], pipeline.SymbolEvent{
		Symbol:     symbol,
		Score:      score,
		Tier:       tier,
		ReceivedAt: b.clock.Now(),
	})
}

// Flush drains every tier whose flush condition holds. A tier is drained
// whole, in arrival order, or not at all. Returns the number of flushed events.
func (b *Buffer) Flush() int {
	now := b.clock.Now()

	b.mu.Lock()
	batches := make(map[pipeline.Tier][]pipeline.SymbolEvent)
	for tier, events := range b.pending {
		if len(events) == 0 {
			continue
		}
		if len(events) >= b.threshold || now.Sub(events[0].ReceivedAt) >= b.timeout {
			batches[tier] = events
			b.pending[tier] = nil
		}
	}
	b.mu.Unlock()

	flushed := 0
	for tier, events := range batches {
		metrics.ObserveBufferFlush(tier.String())
		for _, ev := range events {
			if err := b.flush(tier, ev.Score, pipeline.SymbolTask{Symbol: ev.Symbol, Score: ev.Score}); err != nil {
				b.logger.Warn("flush callback failed",
					zap.String("tier", tier.String()),
					zap.String("symbol", ev.Symbol),
					zap.Error(err))
			}
			flushed++
		}
		b.logger.Debug("tier flushed",
			zap.String("tier", tier.String()), zap.Int("events", len(events)))
	}
	return flushed
}

// Pending returns the number of events currently held for a tier.
func (b *Buffer) Pending(tier pipeline.Tier) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending[tier])
}
