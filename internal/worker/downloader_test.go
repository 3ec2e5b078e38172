package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finstage/content-crawler/internal/dedup"
	"github.com/finstage/content-crawler/internal/pipeline"
	"github.com/finstage/content-crawler/internal/storage/memory"
)

const articleHTML = `<html><head>
<title>Apple beats earnings</title>
<meta name="description" content="Quarterly results exceeded expectations.">
</head><body>story</body></html>`

const ogHTML = `<html><head>
<title>plain title</title>
<meta property="og:title" content="OG wins">
<meta property="og:description" content="OG summary">
</head><body></body></html>`

type stubFetcher struct {
	resp pipeline.FetchResponse
	err  error
}

func (s stubFetcher) Fetch(context.Context, pipeline.FetchRequest) (pipeline.FetchResponse, error) {
	return s.resp, s.err
}

type stubResolver struct {
	resolved string
	err      error
}

func (s stubResolver) Resolve(_ context.Context, raw string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if s.resolved == "" {
		return raw, nil
	}
	return s.resolved, nil
}

type stubDetector struct{ promote bool }

func (s stubDetector) ShouldPromote(pipeline.FetchResponse) bool { return s.promote }

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

type recordingBlobs struct {
	paths []string
	err   error
}

func (b *recordingBlobs) PutObject(_ context.Context, path, _ string, _ []byte) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	b.paths = append(b.paths, path)
	return "mem://" + path, nil
}

func newTestDownloader(store *memory.ContentStore, opts DownloaderOptions) *Downloader {
	opts.Store = store
	opts.Dedup = dedup.New(store)
	if opts.Clock == nil {
		opts.Clock = fixedClock{at: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	}
	return NewDownloader(opts, zap.NewNop())
}

func TestProcess_StoresContent(t *testing.T) {
	t.Parallel()

	store := memory.NewContentStore()
	d := newTestDownloader(store, DownloaderOptions{
		Fetcher: stubFetcher{resp: pipeline.FetchResponse{StatusCode: 200, Body: []byte(articleHTML)}},
	})

	outcome := d.Process(context.Background(), pipeline.URLTask{
		Symbol: "AAPL", URL: "https://x.com/news/apple", Tier: pipeline.TierTop,
	})
	require.Equal(t, OutcomeStored, outcome.Kind)

	contents := store.Contents()
	require.Len(t, contents, 1)
	got := contents[0]
	require.Equal(t, "AAPL", got.Symbol)
	require.Equal(t, "Apple beats earnings", got.Title)
	require.Equal(t, "Quarterly results exceeded expectations.", got.Summary)
	require.Equal(t, "x.com", got.Source)
	require.Len(t, got.ContentHash, 64)
	require.False(t, got.IsDuplicate)
}

func TestProcess_PrefersOpenGraphMeta(t *testing.T) {
	t.Parallel()

	store := memory.NewContentStore()
	d := newTestDownloader(store, DownloaderOptions{
		Fetcher: stubFetcher{resp: pipeline.FetchResponse{StatusCode: 200, Body: []byte(ogHTML)}},
	})

	outcome := d.Process(context.Background(), pipeline.URLTask{
		Symbol: "AAPL", URL: "https://x.com/news/og", Tier: pipeline.TierTop,
	})
	require.Equal(t, OutcomeStored, outcome.Kind)
	got := store.Contents()[0]
	require.Equal(t, "OG wins", got.Title)
	require.Equal(t, "OG summary", got.Summary)
}

func TestProcess_UntitledPageGetsPlaceholder(t *testing.T) {
	t.Parallel()

	store := memory.NewContentStore()
	d := newTestDownloader(store, DownloaderOptions{
		Fetcher: stubFetcher{resp: pipeline.FetchResponse{StatusCode: 200, Body: []byte("<html><body>bare</body></html>")}},
	})

	outcome := d.Process(context.Background(), pipeline.URLTask{
		Symbol: "AAPL", URL: "https://x.com/news/bare", Tier: pipeline.TierTop,
	})
	require.Equal(t, OutcomeStored, outcome.Kind)
	require.Equal(t, placeholderTitle, store.Contents()[0].Title)
}

func TestProcess_SkipsDuplicateURL(t *testing.T) {
	t.Parallel()

	store := memory.NewContentStore()
	store.SeedURL("AAPL", "https://x.com/news/apple")
	d := newTestDownloader(store, DownloaderOptions{
		Fetcher: stubFetcher{resp: pipeline.FetchResponse{StatusCode: 200, Body: []byte(articleHTML)}},
	})

	outcome := d.Process(context.Background(), pipeline.URLTask{
		Symbol: "AAPL", URL: "https://x.com/news/apple", Tier: pipeline.TierTop,
	})
	require.Equal(t, OutcomeSkipped, outcome.Kind)
	require.Equal(t, "duplicate url", outcome.Reason)
	require.Empty(t, store.Contents())
}

func TestProcess_SkipsDuplicateContent(t *testing.T) {
	t.Parallel()

	store := memory.NewContentStore()
	d := newTestDownloader(store, DownloaderOptions{
		Fetcher: stubFetcher{resp: pipeline.FetchResponse{StatusCode: 200, Body: []byte(articleHTML)}},
	})

	first := d.Process(context.Background(), pipeline.URLTask{
		Symbol: "AAPL", URL: "https://x.com/news/apple", Tier: pipeline.TierTop,
	})
	require.Equal(t, OutcomeStored, first.Kind)

	// Same title at a different URL hashes identically and is never persisted twice.
	second := d.Process(context.Background(), pipeline.URLTask{
		Symbol: "AAPL", URL: "https://y.com/news/apple-syndicated", Tier: pipeline.TierTop,
	})
	require.Equal(t, OutcomeSkipped, second.Kind)
	require.Equal(t, "duplicate content", second.Reason)
	require.Len(t, store.Contents(), 1)
}

func TestProcess_EmptyBodyFails(t *testing.T) {
	t.Parallel()

	d := newTestDownloader(memory.NewContentStore(), DownloaderOptions{
		Fetcher: stubFetcher{resp: pipeline.FetchResponse{StatusCode: 200}},
	})

	outcome := d.Process(context.Background(), pipeline.URLTask{
		Symbol: "AAPL", URL: "https://x.com/news/apple", Tier: pipeline.TierTop,
	})
	require.Equal(t, OutcomeFailed, outcome.Kind)
}

func TestProcess_FetchFailure(t *testing.T) {
	t.Parallel()

	d := newTestDownloader(memory.NewContentStore(), DownloaderOptions{
		Fetcher: stubFetcher{err: errors.New("timeout")},
	})

	outcome := d.Process(context.Background(), pipeline.URLTask{
		Symbol: "AAPL", URL: "https://x.com/news/apple", Tier: pipeline.TierTop,
	})
	require.Equal(t, OutcomeFailed, outcome.Kind)
	require.Error(t, outcome.Err)
}

func TestProcess_ResolverRewritesTarget(t *testing.T) {
	t.Parallel()

	store := memory.NewContentStore()
	d := newTestDownloader(store, DownloaderOptions{
		Resolver: stubResolver{resolved: "https://publisher.com/news/story"},
		Fetcher:  stubFetcher{resp: pipeline.FetchResponse{StatusCode: 200, Body: []byte(articleHTML)}},
	})

	outcome := d.Process(context.Background(), pipeline.URLTask{
		Symbol: "AAPL", URL: "https://news.google.com/articles/abc", Tier: pipeline.TierTop,
	})
	require.Equal(t, OutcomeStored, outcome.Kind)
	got := store.Contents()[0]
	require.Equal(t, "https://publisher.com/news/story", got.URL)
	require.Equal(t, "publisher.com", got.Source)
}

func TestProcess_ResolverFailureAbortsTask(t *testing.T) {
	t.Parallel()

	store := memory.NewContentStore()
	d := newTestDownloader(store, DownloaderOptions{
		Resolver: stubResolver{err: errors.New("redirect loop")},
		Fetcher:  stubFetcher{resp: pipeline.FetchResponse{StatusCode: 200, Body: []byte(articleHTML)}},
	})

	outcome := d.Process(context.Background(), pipeline.URLTask{
		Symbol: "AAPL", URL: "https://news.google.com/articles/abc", Tier: pipeline.TierTop,
	})
	require.Equal(t, OutcomeFailed, outcome.Kind)
	require.Error(t, outcome.Err)
	// The unresolved aggregator URL never reaches the store.
	require.Empty(t, store.Contents())
}

func TestProcess_HeadlessPromotion(t *testing.T) {
	t.Parallel()

	store := memory.NewContentStore()
	blocked := pipeline.FetchResponse{StatusCode: 200, Body: []byte("<html><body>enable javascript</body></html>")}
	rendered := pipeline.FetchResponse{StatusCode: 200, Body: []byte(articleHTML), UsedHeadless: true}
	d := newTestDownloader(store, DownloaderOptions{
		Fetcher:  stubFetcher{resp: blocked},
		Headless: stubFetcher{resp: rendered},
		Detector: stubDetector{promote: true},
	})

	outcome := d.Process(context.Background(), pipeline.URLTask{
		Symbol: "AAPL", URL: "https://x.com/news/apple", Tier: pipeline.TierTop,
	})
	require.Equal(t, OutcomeStored, outcome.Kind)
	require.Equal(t, "Apple beats earnings", store.Contents()[0].Title)
}

func TestProcess_ArchivesRawPage(t *testing.T) {
	t.Parallel()

	store := memory.NewContentStore()
	blobs := &recordingBlobs{}
	d := newTestDownloader(store, DownloaderOptions{
		Fetcher:    stubFetcher{resp: pipeline.FetchResponse{StatusCode: 200, Body: []byte(articleHTML)}},
		Blobs:      blobs,
		BlobPrefix: "pages",
	})

	outcome := d.Process(context.Background(), pipeline.URLTask{
		Symbol: "AAPL", URL: "https://x.com/news/apple", Tier: pipeline.TierTop,
	})
	require.Equal(t, OutcomeStored, outcome.Kind)
	require.Len(t, blobs.paths, 1)
	require.Contains(t, blobs.paths[0], "pages/AAPL/")
	require.Contains(t, store.Contents()[0].BlobURI, "mem://pages/AAPL/")
}

func TestProcess_BlobFailureStillStores(t *testing.T) {
	t.Parallel()

	store := memory.NewContentStore()
	d := newTestDownloader(store, DownloaderOptions{
		Fetcher: stubFetcher{resp: pipeline.FetchResponse{StatusCode: 200, Body: []byte(articleHTML)}},
		Blobs:   &recordingBlobs{err: errors.New("bucket unavailable")},
	})

	outcome := d.Process(context.Background(), pipeline.URLTask{
		Symbol: "AAPL", URL: "https://x.com/news/apple", Tier: pipeline.TierTop,
	})
	require.Equal(t, OutcomeStored, outcome.Kind)
	require.Empty(t, store.Contents()[0].BlobURI)
}
