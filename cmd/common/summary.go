package common

import (
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/jonesrussell/nmls-crawler/internal/metrics"
)

// RenderSummary writes the per-region counts of a run as a table.
func RenderSummary(w io.Writer, stats metrics.Stats) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Region", "Pages", "Categories", "Items", "Top city"})

	var pages, categories int64
	for _, r := range stats.Regions {
		pages += r.Pages
		categories += r.Categories
		t.AppendRow(table.Row{r.Region, r.Pages, r.Categories, r.Items, topCity(r.Cities)})
	}

	t.AppendFooter(table.Row{"Total", pages, categories, stats.TotalItems(), ""})
	if !stats.Started.IsZero() {
		t.SetCaption("elapsed %s, records written %d, failed %d, fetch failures %d, throttle delay %s",
			time.Since(stats.Started).Round(time.Second),
			sum(stats.RecordsWritten), sum(stats.RecordsFailed), sum(stats.FetchFailures),
			stats.ThrottleDelay)
	}
	t.Render()
}

func topCity(cities map[string]int64) string {
	names := make([]string, 0, len(cities))
	for name := range cities {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if cities[names[i]] != cities[names[j]] {
			return cities[names[i]] > cities[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func sum(counts map[string]int64) int64 {
	var n int64
	for _, v := range counts {
		n += v
	}
	return n
}
