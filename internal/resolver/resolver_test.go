package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestResolve_PassesThroughNonAggregatorURLs(t *testing.T) {
	t.Parallel()

	r := New(time.Second, zap.NewNop())
	got, err := r.Resolve(context.Background(), "https://publisher.com/news/story")
	require.NoError(t, err)
	require.Equal(t, "https://publisher.com/news/story", got)
}

func TestResolve_ExtractsURLParameter(t *testing.T) {
	t.Parallel()

	r := New(time.Second, zap.NewNop())
	got, err := r.Resolve(context.Background(),
		"https://news.google.com/rss/articles?url=https%3A%2F%2Fpublisher.com%2Fnews%2Fstory")
	require.NoError(t, err)
	require.Equal(t, "https://publisher.com/news/story", got)
}

func TestResolve_ExtractsQueryParameter(t *testing.T) {
	t.Parallel()

	r := New(time.Second, zap.NewNop())
	got, err := r.Resolve(context.Background(),
		"https://news.google.com/search?q=https%3A%2F%2Fpublisher.com%2Fnews%2Fstory")
	require.NoError(t, err)
	require.Equal(t, "https://publisher.com/news/story", got)
}

func TestResolve_IgnoresNonURLQueryParameter(t *testing.T) {
	t.Parallel()

	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer final.Close()

	redirector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL+"/news/story", http.StatusFound)
	}))
	defer redirector.Close()

	// A plain search term in q must not short-circuit resolution, so the
	// resolver falls back to following redirects. The aggregator host check
	// is bypassed by pointing the client at the test server directly.
	r := New(time.Second, zap.NewNop())
	got, err := r.followRedirects(context.Background(), redirector.URL)
	require.NoError(t, err)
	require.Equal(t, final.URL+"/news/story", got)
}

func TestResolve_RejectsUnparseableURL(t *testing.T) {
	t.Parallel()

	r := New(time.Second, zap.NewNop())
	_, err := r.Resolve(context.Background(), "http://bad url with spaces")
	require.Error(t, err)
}
