// Package pqueue provides the tiered priority queues for symbols and URLs.
package pqueue

import (
	"container/heap"
	"sync"

	"github.com/finstage/content-crawler/internal/pipeline"
)

type symbolItem struct {
	score int
	seq   uint64
	task  pipeline.SymbolTask
}

// symbolHeap orders by score descending, then by insertion sequence ascending
// so that equal scores pop in arrival order.
type symbolHeap []symbolItem

func (h symbolHeap) Len() int { return len(h) }

func (h symbolHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score > h[j].score
	}
	return h[i].seq < h[j].seq
}

func (h symbolHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *symbolHeap) Push(x any) { *h = append(*h, x.(symbolItem)) }

func (h *symbolHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// SymbolQueue is a stable three-tier max-heap of symbol tasks.
// All operations are non-blocking and safe for concurrent use.
type SymbolQueue struct {
	mu    sync.Mutex
	heaps map[pipeline.Tier]*symbolHeap
	seq   uint64
}

// NewSymbolQueue constructs an empty SymbolQueue.
func NewSymbolQueue() *SymbolQueue {
	heaps := make(map[pipeline.Tier]*symbolHeap, 3)
	for _, tier := range pipeline.Tiers() {
		h := make(symbolHeap, 0)
		heaps[tier] = &h
	}
	return &SymbolQueue{heaps: heaps}
}

// Push inserts a task into the tier's heap. An unknown tier is a wiring bug
// and returns pipeline.ErrInvalidTier.
func (q *SymbolQueue) Push(tier pipeline.Tier, score int, task pipeline.SymbolTask) error {
	if !tier.Valid() {
		return pipeline.ErrInvalidTier
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	heap.Push(q.heaps[tier], symbolItem{score: score, seq: q.seq, task: task})
	return nil
}

// PushNamed inserts using a case-insensitive tier name.
func (q *SymbolQueue) PushNamed(name string, score int, task pipeline.SymbolTask) error {
	tier, err := pipeline.ParseTier(name)
	if err != nil {
		return err
	}
	return q.Push(tier, score, task)
}

// Pop removes and returns the highest-score, earliest-inserted task for the
// tier. The second return is false when the tier is empty.
func (q *SymbolQueue) Pop(tier pipeline.Tier) (pipeline.SymbolTask, bool) {
	if !tier.Valid() {
		return pipeline.SymbolTask{}, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	h := q.heaps[tier]
	if h.Len() == 0 {
		return pipeline.SymbolTask{}, false
	}
	item := heap.Pop(h).(symbolItem)
	return item.task, true
}

// Empty reports whether the tier holds no tasks.
func (q *SymbolQueue) Empty(tier pipeline.Tier) bool {
	return q.Len(tier) == 0
}

// Len returns the number of pending tasks for the tier.
func (q *SymbolQueue) Len(tier pipeline.Tier) int {
	if !tier.Valid() {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heaps[tier].Len()
}
