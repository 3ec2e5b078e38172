// Package bfs implements bounded breadth-first expansion of a symbol into
// candidate article URLs.
package bfs

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/finstage/content-crawler/internal/pipeline"
)

// Defaults applied when Config fields are zero.
const (
	DefaultMaxDepth     = 2
	DefaultMaxURLs      = 10
	DefaultSeedTemplate = "https://news.google.com/search?q=%s"
	defaultArticleToken = "news"
	levelFetchParallel  = 4
)

// Config bounds a single BFS run.
type Config struct {
	MaxDepth     int
	MaxURLs      int
	SeedTemplate string
	ArticleToken string
}

// Extractor walks outbound links from a seed search page, breadth-first.
type Extractor struct {
	fetcher pipeline.Fetcher
	store   pipeline.ContentStore
	cfg     Config
	logger  *zap.Logger
}

// New constructs an Extractor, filling zero config fields with defaults.
func New(fetcher pipeline.Fetcher, store pipeline.ContentStore, cfg Config, logger *zap.Logger) *Extractor {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.MaxURLs <= 0 {
		cfg.MaxURLs = DefaultMaxURLs
	}
	if cfg.SeedTemplate == "" {
		cfg.SeedTemplate = DefaultSeedTemplate
	}
	if cfg.ArticleToken == "" {
		cfg.ArticleToken = defaultArticleToken
	}
	return &Extractor{fetcher: fetcher, store: store, cfg: cfg, logger: logger}
}

// ExtractURLs expands the symbol into at most MaxURLs article URLs within
// MaxDepth levels. URLs already known for the symbol are never re-emitted.
// Individual fetch failures remove that page from consideration only.
func (e *Extractor) ExtractURLs(ctx context.Context, symbol string) ([]string, error) {
	existing, err := e.store.ExistingURLs(ctx, symbol)
	if err != nil {
		// A broken index lookup degrades to "nothing seen yet".
		e.logger.Warn("existing-url lookup failed",
			zap.String("symbol", symbol), zap.Error(err))
		existing = map[string]struct{}{}
	}

	seed := fmt.Sprintf(e.cfg.SeedTemplate, url.QueryEscape(symbol))
	frontier := []string{seed}
	visited := map[string]struct{}{}
	collected := map[string]struct{}{}
	var results []pipeline.CandidateURL

	for depth := 0; depth < e.cfg.MaxDepth && len(frontier) > 0 && len(results) < e.cfg.MaxURLs; depth++ {
		pages := e.fetchLevel(ctx, frontier, visited)

		var next []string
		for _, page := range pages {
			if page.err != nil {
				e.logger.Debug("frontier fetch failed",
					zap.String("url", page.url), zap.Error(page.err))
				continue
			}
			for _, link := range extractLinks(page.body, page.url) {
				if len(results) >= e.cfg.MaxURLs {
					break
				}
				if !e.isArticleLink(link) {
					continue
				}
				if _, seen := visited[link]; seen {
					continue
				}
				if _, seen := collected[link]; seen {
					continue
				}
				if _, known := existing[link]; known {
					continue
				}
				collected[link] = struct{}{}
				results = append(results, pipeline.CandidateURL{URL: link, Depth: depth + 1})
				next = append(next, link)
			}
		}
		frontier = next
	}

	urls := make([]string, len(results))
	for i, c := range results {
		urls[i] = c.URL
	}
	e.logger.Info("bfs expansion complete",
		zap.String("symbol", symbol), zap.Int("urls", len(urls)))
	return urls, nil
}

type fetchedPage struct {
	url  string
	body []byte
	err  error
}

// fetchLevel fetches every unvisited frontier URL, a few at a time, and
// returns pages in frontier order so the result cap cuts deterministically.
func (e *Extractor) fetchLevel(ctx context.Context, frontier []string, visited map[string]struct{}) []fetchedPage {
	pages := make([]fetchedPage, 0, len(frontier))
	for _, u := range frontier {
		if _, seen := visited[u]; seen {
			continue
		}
		visited[u] = struct{}{}
		pages = append(pages, fetchedPage{url: u})
	}

	sem := make(chan struct{}, levelFetchParallel)
	var wg sync.WaitGroup
	for i := range pages {
		wg.Add(1)
		go func(p *fetchedPage) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			resp, err := e.fetcher.Fetch(ctx, pipeline.FetchRequest{URL: p.url})
			if err != nil {
				p.err = err
				return
			}
			if resp.StatusCode != 0 && resp.StatusCode != 200 {
				p.err = fmt.Errorf("unexpected status %d", resp.StatusCode)
				return
			}
			p.body = resp.Body
		}(&pages[i])
	}
	wg.Wait()
	return pages
}

func (e *Extractor) isArticleLink(link string) bool {
	return strings.Contains(link, e.cfg.ArticleToken)
}

// extractLinks returns all absolute HTTP(S) hyperlinks on the page, resolving
// relative hrefs against the page's own URL.
func extractLinks(body []byte, pageURL string) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	var links []string
	seen := map[string]struct{}{}
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		abs := resolved.String()
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})
	return links
}
