// Package metrics defines the Prometheus collectors for crawls and link
// checks. All recording methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors registered on a single registry.
type Metrics struct {
	registry *prometheus.Registry

	PagesFetched  *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	LinksEnqueued prometheus.Counter
	Batches       prometheus.Counter
	CrawlOutcomes *prometheus.CounterVec
	FrontierDepth prometheus.Gauge

	Probes         *prometheus.CounterVec
	ProbesInFlight prometheus.Gauge
	LinkCache      *prometheus.CounterVec
	LinkVerdicts   *prometheus.CounterVec
	RobotsBlocked  prometheus.Counter
}

// New creates collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PagesFetched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteprobe_pages_fetched_total",
				Help: "Pages fetched by the crawl engine, by outcome",
			},
			[]string{"outcome"},
		),
		FetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "siteprobe_fetch_duration_seconds",
				Help:    "Time taken to fetch a page",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status_code"},
		),
		LinksEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "siteprobe_links_enqueued_total",
			Help: "Newly discovered URLs added to the frontier",
		}),
		Batches: factory.NewCounter(prometheus.CounterOpts{
			Name: "siteprobe_crawl_batches_total",
			Help: "Crawl batches processed",
		}),
		CrawlOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteprobe_crawl_outcomes_total",
				Help: "Finished crawls by terminal state",
			},
			[]string{"outcome"},
		),
		FrontierDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "siteprobe_frontier_pending",
			Help: "URLs waiting in the frontier queue",
		}),
		Probes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteprobe_link_probes_total",
				Help: "Link probes issued, by strategy and result",
			},
			[]string{"strategy", "result"},
		),
		ProbesInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "siteprobe_link_checks_in_flight",
			Help: "Link checks currently running",
		}),
		LinkCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteprobe_link_cache_lookups_total",
				Help: "Link status cache lookups, by result",
			},
			[]string{"result"},
		),
		LinkVerdicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "siteprobe_link_verdicts_total",
				Help: "Link check verdicts",
			},
			[]string{"verdict"},
		),
		RobotsBlocked: factory.NewCounter(prometheus.CounterOpts{
			Name: "siteprobe_robots_blocked_total",
			Help: "Fetches refused by robots.txt",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveFetch records one page fetch.
func (m *Metrics) ObserveFetch(statusCode int, ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.PagesFetched.WithLabelValues(outcome).Inc()
	m.FetchDuration.WithLabelValues(strconv.Itoa(statusCode)).Observe(elapsed.Seconds())
}

// ObserveBatch records a processed batch and the frontier size after it.
func (m *Metrics) ObserveBatch(enqueued, pending int) {
	if m == nil {
		return
	}
	m.Batches.Inc()
	m.LinksEnqueued.Add(float64(enqueued))
	m.FrontierDepth.Set(float64(pending))
}

// ObserveOutcome records the terminal state of a crawl.
func (m *Metrics) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.CrawlOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveProbe records one probe attempt.
func (m *Metrics) ObserveProbe(strategy string, ok bool) {
	if m == nil {
		return
	}
	res := "ok"
	if !ok {
		res = "failed"
	}
	m.Probes.WithLabelValues(strategy, res).Inc()
}

// CheckStarted and CheckFinished track in-flight link checks.
func (m *Metrics) CheckStarted() {
	if m == nil {
		return
	}
	m.ProbesInFlight.Inc()
}

func (m *Metrics) CheckFinished() {
	if m == nil {
		return
	}
	m.ProbesInFlight.Dec()
}

// ObserveCacheLookup records a link cache hit or miss.
func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	res := "miss"
	if hit {
		res = "hit"
	}
	m.LinkCache.WithLabelValues(res).Inc()
}

// ObserveVerdict records the final classification of a link.
func (m *Metrics) ObserveVerdict(broken, lenient bool) {
	if m == nil {
		return
	}
	verdict := "ok"
	switch {
	case lenient:
		verdict = "lenient"
	case broken:
		verdict = "broken"
	}
	m.LinkVerdicts.WithLabelValues(verdict).Inc()
}

// ObserveRobotsBlocked records a fetch refused by robots.txt.
func (m *Metrics) ObserveRobotsBlocked() {
	if m == nil {
		return
	}
	m.RobotsBlocked.Inc()
}
