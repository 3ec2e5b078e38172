// Package detector decides when a plain fetch should be retried headless.
package detector

import (
	"bytes"
	"strings"

	"github.com/finstage/content-crawler/internal/pipeline"
)

// DefaultBodyThreshold is the body size below which script-heavy pages are
// treated as client-rendered shells.
const DefaultBodyThreshold = 2048

// Phrases that mark a bot wall or a script-only interstitial.
var blockMarkers = [][]byte{
	[]byte("enable javascript"),
	[]byte("unusual traffic"),
	[]byte("are you a robot"),
	[]byte("captcha"),
}

// Markers left behind by common client-side rendering frameworks.
var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
}

// Heuristic implements rule-based promotion to headless fetching.
type Heuristic struct {
	BodyThreshold int
}

// NewHeuristic creates a detector. A non-positive threshold falls back to
// DefaultBodyThreshold.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = DefaultBodyThreshold
	}
	return &Heuristic{BodyThreshold: threshold}
}

// ShouldPromote decides whether a headless re-fetch is warranted.
func (h *Heuristic) ShouldPromote(resp pipeline.FetchResponse) bool {
	if resp.StatusCode != 200 {
		return false
	}
	if len(resp.Body) == 0 {
		return true
	}
	lower := bytes.ToLower(resp.Body)
	for _, marker := range blockMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	if len(resp.Body) < h.BodyThreshold && scriptHeavy(lower) {
		return true
	}
	return false
}

// scriptHeavy reports whether script tags cover at least a quarter of the
// document.
func scriptHeavy(lower []byte) bool {
	doc := string(lower)
	total := len(doc)
	if total == 0 {
		return false
	}

	covered := 0
	pos := 0
	for {
		start := strings.Index(doc[pos:], "<script")
		if start == -1 {
			break
		}
		start += pos
		end := strings.Index(doc[start:], "</script>")
		if end == -1 {
			covered += total - start
			break
		}
		end = start + end + len("</script>")
		covered += end - start
		pos = end
	}
	return covered*100/total >= 25
}
