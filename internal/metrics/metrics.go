// Package metrics exposes Prometheus collectors for the crawl pipeline.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	streamEventsTotal   *prometheus.CounterVec
	bufferFlushesTotal  *prometheus.CounterVec
	symbolsRoutedTotal  *prometheus.CounterVec
	urlsDiscoveredTotal prometheus.Counter
	urlsEnqueuedTotal   *prometheus.CounterVec
	urlsDroppedTotal    *prometheus.CounterVec
	urlQueueDepth       *prometheus.GaugeVec
	activeWorkers       prometheus.Gauge
	downloadsTotal      *prometheus.CounterVec

	once sync.Once
)

// Init registers the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		streamEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_stream_events_total",
				Help: "Inbound symbol events, labeled by result (accepted/rejected).",
			},
			[]string{"result"},
		)

		bufferFlushesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_buffer_flushes_total",
				Help: "Priority buffer flushes, labeled by tier.",
			},
			[]string{"tier"},
		)

		symbolsRoutedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_symbols_routed_total",
				Help: "Symbols expanded by the router, labeled by tier.",
			},
			[]string{"tier"},
		)

		urlsDiscoveredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_urls_discovered_total",
				Help: "Candidate URLs produced by BFS expansion.",
			},
		)

		urlsEnqueuedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_urls_enqueued_total",
				Help: "URLs enqueued for download, labeled by tier.",
			},
			[]string{"tier"},
		)

		urlsDroppedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_urls_dropped_total",
				Help: "URLs dropped due to a full queue or saturated pool, labeled by tier.",
			},
			[]string{"tier"},
		)

		urlQueueDepth = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crawler_url_queue_depth",
				Help: "Current URL queue depth, labeled by tier.",
			},
			[]string{"tier"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_workers",
				Help: "Number of workers currently downloading.",
			},
		)

		downloadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_downloads_total",
				Help: "Download tasks completed, labeled by outcome (stored/skipped/failed).",
			},
			[]string{"outcome"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveStreamEvent counts an inbound event by result.
func ObserveStreamEvent(result string) {
	streamEventsTotal.WithLabelValues(result).Inc()
}

// ObserveBufferFlush counts a tier flush.
func ObserveBufferFlush(tier string) {
	bufferFlushesTotal.WithLabelValues(tier).Inc()
}

// ObserveSymbolRouted counts a routed symbol.
func ObserveSymbolRouted(tier string) {
	symbolsRoutedTotal.WithLabelValues(tier).Inc()
}

// ObserveURLsDiscovered adds to the BFS discovery counter.
func ObserveURLsDiscovered(n int) {
	urlsDiscoveredTotal.Add(float64(n))
}

// ObserveURLEnqueued counts an enqueued URL.
func ObserveURLEnqueued(tier string) {
	urlsEnqueuedTotal.WithLabelValues(tier).Inc()
}

// ObserveURLDropped counts a dropped URL.
func ObserveURLDropped(tier string) {
	urlsDroppedTotal.WithLabelValues(tier).Inc()
}

// SetURLQueueDepth records the current depth of one tier.
func SetURLQueueDepth(tier string, depth int) {
	urlQueueDepth.WithLabelValues(tier).Set(float64(depth))
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// ObserveDownload counts a finished download task by outcome.
func ObserveDownload(outcome string) {
	downloadsTotal.WithLabelValues(outcome).Inc()
}
