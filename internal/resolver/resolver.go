// Package resolver unwraps aggregator redirect links to the publisher URL.
package resolver

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds a single resolution round trip.
const DefaultTimeout = 5 * time.Second

const googleNewsHost = "news.google.com"

// GoogleNews resolves aggregator links. Links that carry the target in a
// query parameter resolve without a network call; anything else is resolved
// by following redirects.
type GoogleNews struct {
	client *http.Client
	logger *zap.Logger
}

// New constructs a GoogleNews resolver. A non-positive timeout falls back to
// DefaultTimeout.
func New(timeout time.Duration, logger *zap.Logger) *GoogleNews {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &GoogleNews{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Resolve returns the publisher URL behind the given link. Non-aggregator
// URLs pass through unchanged.
func (g *GoogleNews) Resolve(ctx context.Context, raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if parsed.Hostname() != googleNewsHost {
		return raw, nil
	}

	// RSS-style links embed the target directly.
	if target := parsed.Query().Get("url"); target != "" {
		return target, nil
	}
	if target := parsed.Query().Get("q"); isAbsoluteHTTP(target) {
		return target, nil
	}

	return g.followRedirects(ctx, raw)
}

func (g *GoogleNews) followRedirects(ctx context.Context, raw string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("follow redirects: %w", err)
	}
	defer resp.Body.Close()

	final := resp.Request.URL.String()
	g.logger.Debug("resolved aggregator link",
		zap.String("from", raw), zap.String("to", final))
	return final, nil
}

func isAbsoluteHTTP(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return parsed.Scheme == "http" || parsed.Scheme == "https"
}
