// Package dedup provides URL-shape validation and duplicate suppression.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/finstage/content-crawler/internal/pipeline"
)

// Extensions that are never worth downloading.
var blockedExtensions = []string{
	".pdf", ".jpg", ".jpeg", ".png", ".gif", ".svg", ".zip", ".exe",
}

// IsValidURL reports whether the URL uses HTTP(S) and does not point at a
// blocked binary/media extension.
func IsValidURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	lower := strings.ToLower(raw)
	for _, ext := range blockedExtensions {
		if strings.HasSuffix(lower, ext) {
			return false
		}
	}
	return true
}

// ContentHash returns the hex SHA-256 digest of the content string, used as a
// content-identity key independent of the URL.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(content)))
	return hex.EncodeToString(sum[:])
}

// Deduplicator answers duplicate questions against the persisted store.
type Deduplicator struct {
	store pipeline.ContentStore
}

// New constructs a Deduplicator.
func New(store pipeline.ContentStore) *Deduplicator {
	return &Deduplicator{store: store}
}

// IsDuplicateURL reports whether the URL is already persisted.
func (d *Deduplicator) IsDuplicateURL(ctx context.Context, url string) (bool, error) {
	dup, err := d.store.IsDuplicateURL(ctx, url)
	if err != nil {
		return false, fmt.Errorf("check duplicate url: %w", err)
	}
	return dup, nil
}

// IsDuplicateHash reports whether the content hash is already persisted.
func (d *Deduplicator) IsDuplicateHash(ctx context.Context, hash string) (bool, error) {
	dup, err := d.store.IsDuplicateHash(ctx, hash)
	if err != nil {
		return false, fmt.Errorf("check duplicate hash: %w", err)
	}
	return dup, nil
}

// FilterAndDeduplicate returns the subset of urls that are structurally valid
// and not already persisted. It never mutates its input and is safe to call
// concurrently.
func (d *Deduplicator) FilterAndDeduplicate(ctx context.Context, urls []string) ([]string, error) {
	filtered := make([]string, 0, len(urls))
	for _, u := range urls {
		if !IsValidURL(u) {
			continue
		}
		dup, err := d.IsDuplicateURL(ctx, u)
		if err != nil {
			return nil, err
		}
		if !dup {
			filtered = append(filtered, u)
		}
	}
	return filtered, nil
}
