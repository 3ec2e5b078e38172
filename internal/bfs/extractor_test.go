package bfs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finstage/content-crawler/internal/pipeline"
	"github.com/finstage/content-crawler/internal/storage/memory"
)

type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]string
	fetched []string
}

func (f *fakeFetcher) Fetch(_ context.Context, req pipeline.FetchRequest) (pipeline.FetchResponse, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, req.URL)
	f.mu.Unlock()

	body, ok := f.pages[req.URL]
	if !ok {
		return pipeline.FetchResponse{}, errors.New("connection refused")
	}
	return pipeline.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(body)}, nil
}

func (f *fakeFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetched)
}

type failingStore struct {
	*memory.ContentStore
}

func (failingStore) ExistingURLs(context.Context, string) (map[string]struct{}, error) {
	return nil, errors.New("db unreachable")
}

func anchors(urls ...string) string {
	page := "<html><body>"
	for _, u := range urls {
		page += fmt.Sprintf(`<a href=%q>link</a>`, u)
	}
	return page + "</body></html>"
}

func newTestExtractor(f *fakeFetcher, store pipeline.ContentStore, cfg Config) *Extractor {
	if cfg.SeedTemplate == "" {
		cfg.SeedTemplate = "https://seed.example/search?q=%s"
	}
	return New(f, store, cfg, zap.NewNop())
}

func TestExtractURLs_CollectsArticleLinks(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://seed.example/search?q=AAPL": anchors(
			"https://x.com/news/apple-1",
			"https://x.com/about", // no article token
			"https://x.com/news/apple-2",
		),
	}}
	e := newTestExtractor(fetcher, memory.NewContentStore(), Config{MaxDepth: 1, MaxURLs: 10})

	urls, err := e.ExtractURLs(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Equal(t, []string{"https://x.com/news/apple-1", "https://x.com/news/apple-2"}, urls)
}

func TestExtractURLs_ResolvesRelativeLinks(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://seed.example/search?q=AAPL": anchors("/news/apple-rel"),
	}}
	e := newTestExtractor(fetcher, memory.NewContentStore(), Config{MaxDepth: 1})

	urls, err := e.ExtractURLs(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Equal(t, []string{"https://seed.example/news/apple-rel"}, urls)
}

func TestExtractURLs_RespectsMaxURLs(t *testing.T) {
	t.Parallel()

	var links []string
	for i := 0; i < 20; i++ {
		links = append(links, fmt.Sprintf("https://x.com/news/%d", i))
	}
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://seed.example/search?q=AAPL": anchors(links...),
	}}
	e := newTestExtractor(fetcher, memory.NewContentStore(), Config{MaxDepth: 2, MaxURLs: 3})

	urls, err := e.ExtractURLs(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, urls, 3)
}

func TestExtractURLs_RespectsMaxDepth(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://seed.example/search?q=AAPL": anchors("https://x.com/news/a"),
		"https://x.com/news/a":               anchors("https://x.com/news/b"),
		"https://x.com/news/b":               anchors("https://x.com/news/c"),
	}}
	e := newTestExtractor(fetcher, memory.NewContentStore(), Config{MaxDepth: 2, MaxURLs: 10})

	urls, err := e.ExtractURLs(context.Background(), "AAPL")
	require.NoError(t, err)
	// Depth 2 reaches pages discovered at level one but never fetches /news/b.
	require.Equal(t, []string{"https://x.com/news/a", "https://x.com/news/b"}, urls)
	require.Equal(t, 2, fetcher.fetchCount())
}

func TestExtractURLs_SkipsExistingURLs(t *testing.T) {
	t.Parallel()

	store := memory.NewContentStore()
	store.SeedURL("AAPL", "https://x.com/news/old")

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://seed.example/search?q=AAPL": anchors(
			"https://x.com/news/old",
			"https://x.com/news/new",
		),
	}}
	e := newTestExtractor(fetcher, store, Config{MaxDepth: 1})

	urls, err := e.ExtractURLs(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Equal(t, []string{"https://x.com/news/new"}, urls)
}

func TestExtractURLs_FetchFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://seed.example/search?q=AAPL": anchors(
			"https://x.com/news/dead",
			"https://x.com/news/live",
		),
		"https://x.com/news/live": anchors("https://x.com/news/deeper"),
	}}
	e := newTestExtractor(fetcher, memory.NewContentStore(), Config{MaxDepth: 3, MaxURLs: 10})

	urls, err := e.ExtractURLs(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Contains(t, urls, "https://x.com/news/dead")
	require.Contains(t, urls, "https://x.com/news/live")
	require.Contains(t, urls, "https://x.com/news/deeper")
}

func TestExtractURLs_StoreFailureDegradesToEmptyIndex(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://seed.example/search?q=AAPL": anchors("https://x.com/news/a"),
	}}
	e := newTestExtractor(fetcher, failingStore{memory.NewContentStore()}, Config{MaxDepth: 1})

	urls, err := e.ExtractURLs(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Equal(t, []string{"https://x.com/news/a"}, urls)
}
