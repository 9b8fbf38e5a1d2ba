// Package metrics collects crawl counters for Prometheus and for the
// end-of-run summary.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the namespace for all crawler metrics.
	Namespace = "nmls"

	// Subsystem is the subsystem for crawler metrics.
	Subsystem = "crawler"
)

// Metrics holds the Prometheus counters and an in-memory copy of them.
type Metrics struct {
	PagesCrawled        *prometheus.CounterVec
	CategoriesPaginated *prometheus.CounterVec
	ItemsScraped        *prometheus.CounterVec
	FetchFailures       *prometheus.CounterVec
	RecordsWritten      *prometheus.CounterVec
	RecordsFailed       *prometheus.CounterVec

	reg prometheus.Registerer

	mu      sync.Mutex
	started time.Time
	regions map[string]*RegionStats
	failed  map[string]int64
	written map[string]int64
	dropped map[string]int64
}

// RegionStats are the per-region counts of one run.
type RegionStats struct {
	Region     string           `json:"region"`
	Pages      int64            `json:"pages"`
	Categories int64            `json:"categories"`
	Items      int64            `json:"items"`
	Cities     map[string]int64 `json:"cities"`
}

// Stats is a point-in-time copy of the run counters.
type Stats struct {
	Started        time.Time        `json:"started"`
	Regions        []RegionStats    `json:"regions"`
	FetchFailures  map[string]int64 `json:"fetch_failures"`
	RecordsWritten map[string]int64 `json:"records_written"`
	RecordsFailed  map[string]int64 `json:"records_failed"`
	ThrottleDelay  time.Duration    `json:"throttle_delay"`
}

// TotalItems sums items over all regions.
func (s Stats) TotalItems() int64 {
	var n int64
	for _, r := range s.Regions {
		n += r.Items
	}
	return n
}

// New creates and registers the crawler metrics. A nil registerer uses
// the Prometheus default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		reg:     reg,
		started: time.Now(),
		regions: make(map[string]*RegionStats),
		failed:  make(map[string]int64),
		written: make(map[string]int64),
		dropped: make(map[string]int64),
	}

	m.PagesCrawled = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "pages_crawled_total",
			Help:      "Total number of pages fetched and handled",
		},
		[]string{"region"},
	)
	m.CategoriesPaginated = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "categories_paginated_total",
			Help:      "Total number of category sections planned for pagination",
		},
		[]string{"region"},
	)
	m.ItemsScraped = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "items_scraped_total",
			Help:      "Total number of advertisements extracted",
		},
		[]string{"region", "city"},
	)
	m.FetchFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "fetch_failures_total",
			Help:      "Total number of failed fetches by stage",
		},
		[]string{"stage"},
	)
	m.RecordsWritten = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "records_written_total",
			Help:      "Total number of records persisted by kind",
		},
		[]string{"kind"},
	)
	m.RecordsFailed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "records_failed_total",
			Help:      "Total number of records dropped after a write error",
		},
		[]string{"kind"},
	)

	return m
}

// Unregister removes the counters from the registerer they were created
// with. The in-memory copy stays readable through Snapshot.
func (m *Metrics) Unregister() {
	for _, c := range []prometheus.Collector{
		m.PagesCrawled,
		m.CategoriesPaginated,
		m.ItemsScraped,
		m.FetchFailures,
		m.RecordsWritten,
		m.RecordsFailed,
	} {
		m.reg.Unregister(c)
	}
}

func (m *Metrics) region(name string) *RegionStats {
	r, ok := m.regions[name]
	if !ok {
		r = &RegionStats{Region: name, Cities: make(map[string]int64)}
		m.regions[name] = r
	}
	return r
}

// PageCrawled counts one handled page.
func (m *Metrics) PageCrawled(region string) {
	m.PagesCrawled.WithLabelValues(region).Inc()
	m.mu.Lock()
	m.region(region).Pages++
	m.mu.Unlock()
}

// CategoryPaginated counts one planned category section.
func (m *Metrics) CategoryPaginated(region string) {
	m.CategoriesPaginated.WithLabelValues(region).Inc()
	m.mu.Lock()
	m.region(region).Categories++
	m.mu.Unlock()
}

// ItemScraped counts one extracted advertisement.
func (m *Metrics) ItemScraped(region, city string) {
	m.ItemsScraped.WithLabelValues(region, city).Inc()
	m.mu.Lock()
	r := m.region(region)
	r.Items++
	r.Cities[city]++
	m.mu.Unlock()
}

// FetchFailed counts one failed fetch.
func (m *Metrics) FetchFailed(stage string) {
	m.FetchFailures.WithLabelValues(stage).Inc()
	m.mu.Lock()
	m.failed[stage]++
	m.mu.Unlock()
}

// RecordWritten counts one persisted record.
func (m *Metrics) RecordWritten(kind string) {
	m.RecordsWritten.WithLabelValues(kind).Inc()
	m.mu.Lock()
	m.written[kind]++
	m.mu.Unlock()
}

// RecordFailed counts one dropped record.
func (m *Metrics) RecordFailed(kind string) {
	m.RecordsFailed.WithLabelValues(kind).Inc()
	m.mu.Lock()
	m.dropped[kind]++
	m.mu.Unlock()
}

// Snapshot copies the in-memory counters. Regions are sorted by name.
func (m *Metrics) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		Started:        m.started,
		FetchFailures:  copyCounts(m.failed),
		RecordsWritten: copyCounts(m.written),
		RecordsFailed:  copyCounts(m.dropped),
	}
	for _, r := range m.regions {
		c := *r
		c.Cities = copyCounts(r.Cities)
		s.Regions = append(s.Regions, c)
	}
	sort.Slice(s.Regions, func(i, j int) bool { return s.Regions[i].Region < s.Regions[j].Region })
	return s
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
