package pqueue

import (
	"container/heap"
	"sync"

	"github.com/google/uuid"

	"github.com/finstage/content-crawler/internal/pipeline"
)

type urlItem struct {
	// tag keeps heap ordering away from the task payload. Insertion order
	// among entries is deliberately not preserved at this stage.
	tag  string
	task pipeline.URLTask
}

type urlHeap []urlItem

func (h urlHeap) Len() int           { return len(h) }
func (h urlHeap) Less(i, j int) bool { return h[i].tag < h[j].tag }
func (h urlHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *urlHeap) Push(x any) { *h = append(*h, x.(urlItem)) }

func (h *urlHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// URLQueue holds download tasks per tier. All operations are non-blocking
// and safe for concurrent use.
type URLQueue struct {
	mu    sync.Mutex
	heaps map[pipeline.Tier]*urlHeap
}

// NewURLQueue constructs an empty URLQueue.
func NewURLQueue() *URLQueue {
	heaps := make(map[pipeline.Tier]*urlHeap, 3)
	for _, tier := range pipeline.Tiers() {
		h := make(urlHeap, 0)
		heaps[tier] = &h
	}
	return &URLQueue{heaps: heaps}
}

// Put inserts a task into the tier's heap, tagged with a random key.
func (q *URLQueue) Put(tier pipeline.Tier, task pipeline.URLTask) error {
	if !tier.Valid() {
		return pipeline.ErrInvalidTier
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(q.heaps[tier], urlItem{tag: uuid.NewString(), task: task})
	return nil
}

// Get removes and returns one task for the tier, or false when empty.
func (q *URLQueue) Get(tier pipeline.Tier) (pipeline.URLTask, bool) {
	if !tier.Valid() {
		return pipeline.URLTask{}, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	h := q.heaps[tier]
	if h.Len() == 0 {
		return pipeline.URLTask{}, false
	}
	item := heap.Pop(h).(urlItem)
	return item.task, true
}

// Size returns the number of pending tasks for the tier.
func (q *URLQueue) Size(tier pipeline.Tier) int {
	if !tier.Valid() {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heaps[tier].Len()
}

// HasPending reports whether any tier holds at least one task.
func (q *URLQueue) HasPending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, h := range q.heaps {
		if h.Len() > 0 {
			return true
		}
	}
	return false
}
