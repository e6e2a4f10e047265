package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"cleanspend/internal/models"
)

// Package-level instruments. They work before Init registers them, so
// library code can increment without caring whether metrics are exported.
var (
	QueryCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cleanspend_query_cache_hits_total",
		Help: "Analytics query results served from the cache",
	})
	QueryCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cleanspend_query_cache_misses_total",
		Help: "Analytics queries computed from the snapshot",
	})
	SnapshotRebuilds = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cleanspend_snapshot_rebuilds_total",
		Help: "Full analytics snapshot recomputations",
	})
	CollectorRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cleanspend_collector_requests_total",
		Help: "Upstream spending API requests by endpoint and outcome",
	}, []string{"endpoint", "status"})
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cleanspend_http_requests_total",
		Help: "HTTP requests served by method, route, and status code",
	}, []string{"method", "route", "status"})
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cleanspend_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

var (
	awardsLoadedDesc = prometheus.NewDesc(
		"cleanspend_awards_loaded",
		"Awards in the current analytics snapshot",
		nil, nil,
	)
	totalFundingDesc = prometheus.NewDesc(
		"cleanspend_total_funding_dollars",
		"Total funding across the current snapshot",
		nil, nil,
	)
	uniqueStatesDesc = prometheus.NewDesc(
		"cleanspend_states_with_funding",
		"Distinct states present in the current snapshot",
		nil, nil,
	)
	uniqueRecipientsDesc = prometheus.NewDesc(
		"cleanspend_unique_recipients",
		"Distinct recipients present in the current snapshot",
		nil, nil,
	)
)

// SnapshotStats is the slice of the analytics engine the collector reads.
type SnapshotStats interface {
	Summary() models.DatasetSummary
}

// SnapshotCollector is a custom Prometheus collector that reads dataset
// gauges from the analytics snapshot on each scrape.
type SnapshotCollector struct {
	stats SnapshotStats
}

func (c *SnapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- awardsLoadedDesc
	ch <- totalFundingDesc
	ch <- uniqueStatesDesc
	ch <- uniqueRecipientsDesc
}

func (c *SnapshotCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats.Summary()
	ch <- prometheus.MustNewConstMetric(awardsLoadedDesc, prometheus.GaugeValue, float64(s.AwardCount))
	ch <- prometheus.MustNewConstMetric(totalFundingDesc, prometheus.GaugeValue, s.TotalFunding)
	ch <- prometheus.MustNewConstMetric(uniqueStatesDesc, prometheus.GaugeValue, float64(s.UniqueStates))
	ch <- prometheus.MustNewConstMetric(uniqueRecipientsDesc, prometheus.GaugeValue, float64(s.UniqueRecipients))
}

var initOnce sync.Once

// Init registers the instruments and the snapshot collector with the default
// registry. Must be called once at startup.
func Init(stats SnapshotStats) {
	initOnce.Do(func() {
		prometheus.MustRegister(
			QueryCacheHits,
			QueryCacheMisses,
			SnapshotRebuilds,
			CollectorRequests,
			HTTPRequests,
			HTTPDuration,
			&SnapshotCollector{stats: stats},
		)
	})
}
