package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/finstage/content-crawler/internal/dedup"
	"github.com/finstage/content-crawler/internal/metrics"
	"github.com/finstage/content-crawler/internal/pipeline"
)

// placeholderTitle is recorded when a page exposes no usable title.
const placeholderTitle = "Untitled"

// OutcomeKind classifies how a download task ended.
type OutcomeKind string

const (
	// OutcomeStored means a record was persisted.
	OutcomeStored OutcomeKind = "stored"
	// OutcomeSkipped means the task was intentionally not persisted.
	OutcomeSkipped OutcomeKind = "skipped"
	// OutcomeFailed means an operational error stopped the task.
	OutcomeFailed OutcomeKind = "failed"
)

// Outcome is the terminal state of one download task. Skips and failures are
// values here, not panics, so callers can count and log them uniformly.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
	Err    error
}

func stored() Outcome               { return Outcome{Kind: OutcomeStored} }
func skipped(reason string) Outcome { return Outcome{Kind: OutcomeSkipped, Reason: reason} }

func failed(reason string, err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Reason: reason, Err: err}
}

// Downloader fetches one URL, extracts its title and summary, and persists a
// content record. The raw page is optionally archived to a blob store.
type Downloader struct {
	resolver pipeline.URLResolver
	fetcher  pipeline.Fetcher
	headless pipeline.Fetcher
	detector pipeline.HeadlessDetector
	store    pipeline.ContentStore
	blobs    pipeline.BlobStore
	dedup    *dedup.Deduplicator
	clock    pipeline.Clock
	prefix   string
	logger   *zap.Logger
}

// DownloaderOptions configures optional collaborators. Headless and Blobs may
// be nil, in which case those stages are skipped.
type DownloaderOptions struct {
	Resolver   pipeline.URLResolver
	Fetcher    pipeline.Fetcher
	Headless   pipeline.Fetcher
	Detector   pipeline.HeadlessDetector
	Store      pipeline.ContentStore
	Blobs      pipeline.BlobStore
	Dedup      *dedup.Deduplicator
	Clock      pipeline.Clock
	BlobPrefix string
}

// NewDownloader constructs a Downloader.
func NewDownloader(opts DownloaderOptions, logger *zap.Logger) *Downloader {
	return &Downloader{
		resolver: opts.Resolver,
		fetcher:  opts.Fetcher,
		headless: opts.Headless,
		detector: opts.Detector,
		store:    opts.Store,
		blobs:    opts.Blobs,
		dedup:    opts.Dedup,
		clock:    opts.Clock,
		prefix:   opts.BlobPrefix,
		logger:   logger,
	}
}

// Handle adapts Process to the pool's Handler signature.
func (d *Downloader) Handle(ctx context.Context, task pipeline.URLTask) {
	outcome := d.Process(ctx, task)
	metrics.ObserveDownload(string(outcome.Kind))
	switch outcome.Kind {
	case OutcomeStored:
		d.logger.Info("content stored",
			zap.String("symbol", task.Symbol), zap.String("url", task.URL))
	case OutcomeSkipped:
		d.logger.Info("download skipped",
			zap.String("symbol", task.Symbol),
			zap.String("url", task.URL),
			zap.String("reason", outcome.Reason))
	case OutcomeFailed:
		d.logger.Error("download failed",
			zap.String("symbol", task.Symbol),
			zap.String("url", task.URL),
			zap.String("reason", outcome.Reason),
			zap.Error(outcome.Err))
	}
}

// Process runs the full download path for one task and returns its Outcome.
func (d *Downloader) Process(ctx context.Context, task pipeline.URLTask) Outcome {
	target := task.URL
	if d.resolver != nil {
		resolved, err := d.resolver.Resolve(ctx, task.URL)
		if err != nil {
			// An unresolvable redirector must never be persisted as if it
			// were the article URL.
			return failed("resolve url", err)
		}
		target = resolved
	}

	dup, err := d.dedup.IsDuplicateURL(ctx, target)
	if err != nil {
		return failed("duplicate url check", err)
	}
	if dup {
		return skipped("duplicate url")
	}

	resp, err := d.fetcher.Fetch(ctx, pipeline.FetchRequest{URL: target})
	if err != nil {
		return failed("fetch", err)
	}
	if d.headless != nil && d.detector != nil && d.detector.ShouldPromote(resp) {
		headlessResp, err := d.headless.Fetch(ctx, pipeline.FetchRequest{URL: target})
		if err != nil {
			d.logger.Warn("headless re-fetch failed, keeping plain response",
				zap.String("url", target), zap.Error(err))
		} else {
			resp = headlessResp
		}
	}
	if len(resp.Body) == 0 {
		return failed("fetch", errors.New("empty response body"))
	}

	title, summary := extractMeta(resp.Body)
	hash := dedup.ContentHash(title)

	hashDup, err := d.dedup.IsDuplicateHash(ctx, hash)
	if err != nil {
		return failed("duplicate hash check", err)
	}
	if hashDup {
		return skipped("duplicate content")
	}

	record := pipeline.ContentRecord{
		Symbol:      task.Symbol,
		Title:       title,
		Summary:     summary,
		URL:         target,
		Source:      sourceHost(target),
		ContentHash: hash,
		CrawledAt:   d.clock.Now(),
	}

	if d.blobs != nil {
		path := fmt.Sprintf("%s/%s/%s.html", d.prefix, task.Symbol, hash)
		uri, err := d.blobs.PutObject(ctx, path, "text/html", resp.Body)
		if err != nil {
			d.logger.Warn("blob archive failed",
				zap.String("url", target), zap.Error(err))
		} else {
			record.BlobURI = uri
		}
	}

	urlRow := pipeline.ContentURLRecord{
		Symbol: task.Symbol,
		URL:    target,
		Source: record.Source,
	}
	if err := d.store.StoreContent(ctx, record, urlRow); err != nil {
		return failed("store content", err)
	}
	return stored()
}

// extractMeta pulls a title and summary out of the page. og: properties win
// over plain tags.
func extractMeta(body []byte) (title, summary string) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return placeholderTitle, ""
	}

	if v, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		title = strings.TrimSpace(v)
	}
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if title == "" {
		title = placeholderTitle
	}

	if v, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
		summary = strings.TrimSpace(v)
	}
	if summary == "" {
		if v, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
			summary = strings.TrimSpace(v)
		}
	}
	return title, summary
}

func sourceHost(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}
