// Package memory provides in-memory store implementations for development and testing.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/finstage/content-crawler/internal/pipeline"
)

// ContentStore is an in-memory implementation of pipeline.ContentStore.
type ContentStore struct {
	mu       sync.RWMutex
	nextID   int64
	contents []pipeline.ContentRecord
	urls     []pipeline.ContentURLRecord
}

// NewContentStore constructs an empty ContentStore.
func NewContentStore() *ContentStore {
	return &ContentStore{nextID: 1}
}

// StoreContent persists the record and its URL-index row atomically.
func (s *ContentStore) StoreContent(
	_ context.Context,
	content pipeline.ContentRecord,
	contentURL pipeline.ContentURLRecord,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	content.ID = s.nextID
	s.nextID++
	s.contents = append(s.contents, content)

	for _, u := range s.urls {
		if u.Symbol == contentURL.Symbol && u.URL == contentURL.URL {
			return nil
		}
	}
	contentURL.ID = int64(len(s.urls) + 1)
	s.urls = append(s.urls, contentURL)
	return nil
}

// SeedURL records a symbol/URL pair without content, for pre-seeding tests.
func (s *ContentStore) SeedURL(symbol, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = append(s.urls, pipeline.ContentURLRecord{
		ID:     int64(len(s.urls) + 1),
		Symbol: symbol,
		URL:    url,
	})
}

// ExistingURLs returns every URL already seen for the symbol.
func (s *ContentStore) ExistingURLs(_ context.Context, symbol string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{})
	for _, u := range s.urls {
		if u.Symbol == symbol {
			out[u.URL] = struct{}{}
		}
	}
	return out, nil
}

// IsDuplicateURL reports whether any symbol has seen the URL.
func (s *ContentStore) IsDuplicateURL(_ context.Context, url string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.urls {
		if u.URL == url {
			return true, nil
		}
	}
	return false, nil
}

// IsDuplicateHash reports whether the content hash is already stored.
func (s *ContentStore) IsDuplicateHash(_ context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.contents {
		if c.ContentHash == hash {
			return true, nil
		}
	}
	return false, nil
}

// ListContents returns one page of records, newest-first, plus the total.
func (s *ContentStore) ListContents(_ context.Context, page, size int) ([]pipeline.ContentRecord, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paginate(s.sortedLocked(func(pipeline.ContentRecord) bool { return true }), page, size)
}

// ListContentsBySymbol returns one page of records for a symbol, newest-first.
func (s *ContentStore) ListContentsBySymbol(
	_ context.Context,
	symbol string,
	page, size int,
) ([]pipeline.ContentRecord, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paginate(s.sortedLocked(func(c pipeline.ContentRecord) bool { return c.Symbol == symbol }), page, size)
}

// GetContent fetches one record by id.
func (s *ContentStore) GetContent(_ context.Context, id int64) (pipeline.ContentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.contents {
		if c.ID == id {
			return c, nil
		}
	}
	return pipeline.ContentRecord{}, pipeline.ErrNotFound
}

// Contents returns a copy of every stored record, for test assertions.
func (s *ContentStore) Contents() []pipeline.ContentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]pipeline.ContentRecord(nil), s.contents...)
}

func (s *ContentStore) sortedLocked(keep func(pipeline.ContentRecord) bool) []pipeline.ContentRecord {
	out := make([]pipeline.ContentRecord, 0, len(s.contents))
	for _, c := range s.contents {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CrawledAt.After(out[j].CrawledAt)
	})
	return out
}

func paginate(records []pipeline.ContentRecord, page, size int) ([]pipeline.ContentRecord, int, error) {
	total := len(records)
	start := (page - 1) * size
	if start >= total {
		return []pipeline.ContentRecord{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return append([]pipeline.ContentRecord(nil), records[start:end]...), total, nil
}
