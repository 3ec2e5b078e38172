package dispatcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finstage/content-crawler/internal/metrics"
	"github.com/finstage/content-crawler/internal/pipeline"
	"github.com/finstage/content-crawler/internal/pqueue"
)

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

type fakePool struct {
	mu       sync.Mutex
	capacity int
	tasks    []pipeline.URLTask
}

func (p *fakePool) Assign(_ context.Context, task pipeline.URLTask) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.capacity > 0 && len(p.tasks) >= p.capacity {
		return false
	}
	p.tasks = append(p.tasks, task)
	return true
}

func (p *fakePool) assigned() []pipeline.URLTask {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pipeline.URLTask(nil), p.tasks...)
}

func TestStep_AssignsTiersInPriorityOrder(t *testing.T) {
	t.Parallel()

	urls := pqueue.NewURLQueue()
	require.NoError(t, urls.Put(pipeline.TierBottom, pipeline.URLTask{Symbol: "Z", URL: "https://x.com/news/z", Tier: pipeline.TierBottom}))
	require.NoError(t, urls.Put(pipeline.TierTop, pipeline.URLTask{Symbol: "A", URL: "https://x.com/news/a", Tier: pipeline.TierTop}))
	require.NoError(t, urls.Put(pipeline.TierMid, pipeline.URLTask{Symbol: "M", URL: "https://x.com/news/m", Tier: pipeline.TierMid}))

	pool := &fakePool{}
	d := New(urls, pool, time.Second, zap.NewNop())

	require.Equal(t, 3, d.Step(context.Background()))
	got := pool.assigned()
	require.Len(t, got, 3)
	require.Equal(t, pipeline.TierTop, got[0].Tier)
	require.Equal(t, pipeline.TierMid, got[1].Tier)
	require.Equal(t, pipeline.TierBottom, got[2].Tier)
	require.False(t, urls.HasPending())
}

func TestStep_PopsAtMostOneTaskPerTier(t *testing.T) {
	t.Parallel()

	urls := pqueue.NewURLQueue()
	for i := 0; i < 3; i++ {
		require.NoError(t, urls.Put(pipeline.TierTop, pipeline.URLTask{Symbol: "A", URL: "https://x.com/news/a", Tier: pipeline.TierTop}))
	}

	pool := &fakePool{}
	d := New(urls, pool, time.Second, zap.NewNop())

	require.Equal(t, 1, d.Step(context.Background()))
	require.Equal(t, 2, urls.Size(pipeline.TierTop))
	require.Equal(t, 1, d.Step(context.Background()))
	require.Equal(t, 1, urls.Size(pipeline.TierTop))
}

func TestStep_SaturatedPoolLeavesQueueIntact(t *testing.T) {
	t.Parallel()

	urls := pqueue.NewURLQueue()
	for i := 0; i < 5; i++ {
		require.NoError(t, urls.Put(pipeline.TierTop, pipeline.URLTask{Symbol: "A", URL: "https://x.com/news/a", Tier: pipeline.TierTop}))
	}

	pool := &fakePool{capacity: 1}
	d := New(urls, pool, time.Second, zap.NewNop())

	// The pool accepts one task; the rest stay queued for later cycles.
	require.Equal(t, 1, d.Step(context.Background()))
	require.Equal(t, 4, urls.Size(pipeline.TierTop))

	// While saturated, each cycle loses only the single popped task. The
	// popped task itself is dropped, per the pool's policy.
	require.Equal(t, 0, d.Step(context.Background()))
	require.Equal(t, 3, urls.Size(pipeline.TierTop))
}

func TestStep_RefusalStopsLowerTiers(t *testing.T) {
	t.Parallel()

	urls := pqueue.NewURLQueue()
	require.NoError(t, urls.Put(pipeline.TierTop, pipeline.URLTask{Symbol: "A", URL: "https://x.com/news/a", Tier: pipeline.TierTop}))
	require.NoError(t, urls.Put(pipeline.TierMid, pipeline.URLTask{Symbol: "M", URL: "https://x.com/news/m", Tier: pipeline.TierMid}))
	require.NoError(t, urls.Put(pipeline.TierBottom, pipeline.URLTask{Symbol: "Z", URL: "https://x.com/news/z", Tier: pipeline.TierBottom}))

	pool := &fakePool{capacity: 1}
	d := New(urls, pool, time.Second, zap.NewNop())

	// TOP fills the pool, MID's pop is refused, and the step ends before
	// touching BOTTOM.
	require.Equal(t, 1, d.Step(context.Background()))
	require.Equal(t, 1, len(pool.assigned()))
	require.Equal(t, pipeline.TierTop, pool.assigned()[0].Tier)
	require.Equal(t, 1, urls.Size(pipeline.TierBottom))
}

func TestStep_EmptyQueueIsANoop(t *testing.T) {
	t.Parallel()

	d := New(pqueue.NewURLQueue(), &fakePool{}, time.Second, zap.NewNop())
	require.Equal(t, 0, d.Step(context.Background()))
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	d := New(pqueue.NewURLQueue(), &fakePool{}, 5*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after cancel")
	}
}
