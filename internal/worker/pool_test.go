package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finstage/content-crawler/internal/metrics"
	"github.com/finstage/content-crawler/internal/pipeline"
)

func TestMain(m *testing.M) {
	metrics.Init()
	m.Run()
}

func TestPool_RunsAssignedTasks(t *testing.T) {
	t.Parallel()

	var handled atomic.Int64
	p := NewPool(4, func(_ context.Context, _ pipeline.URLTask) {
		handled.Add(1)
	}, zap.NewNop())

	for i := 0; i < 4; i++ {
		require.True(t, p.Assign(context.Background(), pipeline.URLTask{Tier: pipeline.TierTop}))
	}
	p.Wait()
	require.Equal(t, int64(4), handled.Load())
	require.Equal(t, 0, p.Active())
}

func TestPool_DropsWhenSaturated(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	p := NewPool(2, func(_ context.Context, _ pipeline.URLTask) {
		<-release
	}, zap.NewNop())

	require.True(t, p.Assign(context.Background(), pipeline.URLTask{Tier: pipeline.TierTop}))
	require.True(t, p.Assign(context.Background(), pipeline.URLTask{Tier: pipeline.TierTop}))
	require.False(t, p.Assign(context.Background(), pipeline.URLTask{Tier: pipeline.TierTop}))
	require.Equal(t, 2, p.Active())

	close(release)
	p.Wait()

	// Finished workers free their slots.
	require.Eventually(t, func() bool {
		return p.Assign(context.Background(), pipeline.URLTask{Tier: pipeline.TierTop})
	}, time.Second, 10*time.Millisecond)
	p.Wait()
}

func TestPool_DefaultsMaxWorkers(t *testing.T) {
	t.Parallel()

	p := NewPool(0, func(_ context.Context, _ pipeline.URLTask) {}, zap.NewNop())
	require.Equal(t, int64(DefaultMaxWorkers), p.max)
}
