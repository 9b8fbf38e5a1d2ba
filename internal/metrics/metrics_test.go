package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/nmls-crawler/internal/metrics"
)

func TestMetrics_CountsAndSnapshot(t *testing.T) {
	t.Parallel()

	m := metrics.New(prometheus.NewRegistry())

	m.PageCrawled("nn")
	m.PageCrawled("nn")
	m.PageCrawled("msk")
	m.CategoryPaginated("nn")
	m.ItemScraped("nn", "Бор")
	m.ItemScraped("nn", "Бор")
	m.ItemScraped("nn", "Дзержинск")
	m.FetchFailed("DetailPage")
	m.RecordWritten("image")
	m.RecordFailed("phone")

	assert.InDelta(t, 2, testutil.ToFloat64(m.PagesCrawled.WithLabelValues("nn")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.ItemsScraped.WithLabelValues("nn", "Бор")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.FetchFailures.WithLabelValues("DetailPage")), 0)

	s := m.Snapshot()
	require.Len(t, s.Regions, 2)
	assert.Equal(t, "msk", s.Regions[0].Region)
	assert.Equal(t, "nn", s.Regions[1].Region)
	assert.Equal(t, int64(2), s.Regions[1].Pages)
	assert.Equal(t, int64(1), s.Regions[1].Categories)
	assert.Equal(t, int64(3), s.Regions[1].Items)
	assert.Equal(t, int64(2), s.Regions[1].Cities["Бор"])
	assert.Equal(t, int64(3), s.TotalItems())
	assert.Equal(t, int64(1), s.FetchFailures["DetailPage"])
	assert.Equal(t, int64(1), s.RecordsWritten["image"])
	assert.Equal(t, int64(1), s.RecordsFailed["phone"])
}

func TestMetrics_SnapshotIsACopy(t *testing.T) {
	t.Parallel()

	m := metrics.New(prometheus.NewRegistry())
	m.ItemScraped("nn", "Бор")

	s := m.Snapshot()
	s.Regions[0].Cities["Бор"] = 100

	assert.Equal(t, int64(1), m.Snapshot().Regions[0].Cities["Бор"])
}

func TestMetrics_UnregisterReleasesRunSeries(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	first := metrics.New(prometheus.WrapRegistererWith(prometheus.Labels{"run_id": "a"}, reg))
	first.PageCrawled("nn")

	n, err := testutil.GatherAndCount(reg, "nmls_crawler_pages_crawled_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	first.Unregister()
	second := metrics.New(prometheus.WrapRegistererWith(prometheus.Labels{"run_id": "b"}, reg))
	second.PageCrawled("nn")
	second.PageCrawled("msk")

	n, err = testutil.GatherAndCount(reg, "nmls_crawler_pages_crawled_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == "run_id" {
					assert.Equal(t, "b", lp.GetValue())
				}
			}
		}
	}

	assert.Equal(t, int64(1), first.Snapshot().Regions[0].Pages)
}
