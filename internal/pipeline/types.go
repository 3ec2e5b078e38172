// Package pipeline defines core types shared across subsystems.
package pipeline

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Tier is one of the three priority levels used for symbols and URLs.
// Lower values are higher priority.
type Tier int

// Tiers in strict priority order.
const (
	TierTop Tier = iota
	TierMid
	TierBottom
)

// ErrInvalidTier signals a tier name that maps to no known tier. Callers that
// hit this on a hard-coded tier have a wiring bug and should fail fast.
var ErrInvalidTier = errors.New("invalid tier")

// Tiers returns all tiers in dispatch order, highest priority first.
func Tiers() []Tier {
	return []Tier{TierTop, TierMid, TierBottom}
}

// Valid reports whether t is one of the three known tiers.
func (t Tier) Valid() bool {
	return t >= TierTop && t <= TierBottom
}

func (t Tier) String() string {
	switch t {
	case TierTop:
		return "top"
	case TierMid:
		return "mid"
	case TierBottom:
		return "bottom"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// ParseTier maps a tier name to its Tier, case-insensitively.
func ParseTier(name string) (Tier, error) {
	switch strings.ToLower(name) {
	case "top":
		return TierTop, nil
	case "mid":
		return TierMid, nil
	case "bottom":
		return TierBottom, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidTier, name)
	}
}

// SymbolEvent is a scored symbol as received from the message stream.
// Events are immutable and consumed exactly once by a buffer flush.
type SymbolEvent struct {
	Symbol     string
	Score      int
	Tier       Tier
	ReceivedAt time.Time
}

// SymbolTask is the unit pulled by the router for crawl expansion.
type SymbolTask struct {
	Symbol string
	Score  int
}

// CandidateURL is a single BFS discovery.
type CandidateURL struct {
	URL   string
	Depth int
}

// URLTask is the unit pulled by a download worker.
type URLTask struct {
	Symbol string
	URL    string
	Tier   Tier
}

// ContentRecord is the persisted result of one successful download.
type ContentRecord struct {
	ID          int64     `json:"id"`
	Symbol      string    `json:"symbol"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	ContentHash string    `json:"-"`
	IsDuplicate bool      `json:"-"`
	BlobURI     string    `json:"-"`
	CrawledAt   time.Time `json:"date"`
}

// ContentURLRecord is one symbol/URL pair ever seen, used as the
// existing-URL index consulted by BFS and the deduplicator.
type ContentURLRecord struct {
	ID     int64
	Symbol string
	URL    string
	Source string
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}
