package pipeline

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// ContentStore persists downloaded content and the symbol/URL index.
type ContentStore interface {
	// StoreContent persists the record and its URL-index row as one unit.
	StoreContent(ctx context.Context, content ContentRecord, contentURL ContentURLRecord) error
	// ExistingURLs returns every URL already seen for the symbol.
	ExistingURLs(ctx context.Context, symbol string) (map[string]struct{}, error)
	IsDuplicateURL(ctx context.Context, url string) (bool, error)
	IsDuplicateHash(ctx context.Context, hash string) (bool, error)
	// ListContents returns one page of records, newest-first, plus the total count.
	ListContents(ctx context.Context, page, size int) ([]ContentRecord, int, error)
	ListContentsBySymbol(ctx context.Context, symbol string, page, size int) ([]ContentRecord, int, error)
	GetContent(ctx context.Context, id int64) (ContentRecord, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a headless re-fetch is warranted.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// URLResolver turns a redirector link into the URL it points at.
type URLResolver interface {
	Resolve(ctx context.Context, url string) (string, error)
}

// Extractor expands a symbol into candidate article URLs.
type Extractor interface {
	ExtractURLs(ctx context.Context, symbol string) ([]string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
