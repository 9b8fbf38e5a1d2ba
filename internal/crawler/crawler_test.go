package crawler_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	crawlercfg "github.com/jonesrussell/nmls-crawler/internal/config/crawler"
	"github.com/jonesrussell/nmls-crawler/internal/crawler"
	"github.com/jonesrussell/nmls-crawler/internal/dateparse"
	"github.com/jonesrussell/nmls-crawler/internal/domain"
	"github.com/jonesrussell/nmls-crawler/internal/extract"
	"github.com/jonesrussell/nmls-crawler/internal/logger"
	"github.com/jonesrussell/nmls-crawler/internal/metrics"
)

type fakeFetcher struct {
	mu       sync.Mutex
	requests []crawler.Request
	err      error
}

func (f *fakeFetcher) Fetch(_ context.Context, req crawler.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.err
}

func (f *fakeFetcher) Wait() {}

func (f *fakeFetcher) byStage(stage crawler.Stage) []crawler.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []crawler.Request
	for _, r := range f.requests {
		if r.Stage == stage {
			out = append(out, r)
		}
	}
	return out
}

type fakeSink struct {
	mu      sync.Mutex
	written []domain.Record
	failOn  domain.RecordKind
}

func (s *fakeSink) Write(_ context.Context, rec domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.Kind() == s.failOn {
		return errors.New("write failed")
	}
	s.written = append(s.written, rec)
	return nil
}

type fakeArchiver struct {
	urls []string
}

func (a *fakeArchiver) Archive(_ context.Context, pageURL string, _ int, _ []byte) error {
	a.urls = append(a.urls, pageURL)
	return nil
}

type harness struct {
	crawler *crawler.Crawler
	fetcher *fakeFetcher
	sink    *fakeSink
	metrics *metrics.Metrics
	logs    *observer.ObservedLogs
}

func newHarness(t *testing.T, mutate func(*crawlercfg.Config, *crawler.Deps)) *harness {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	log := logger.NewFromZap(zap.New(core))
	cfg := crawlercfg.New()
	h := &harness{
		fetcher: &fakeFetcher{},
		sink:    &fakeSink{},
		metrics: metrics.New(prometheus.NewRegistry()),
		logs:    logs,
	}

	deps := crawler.Deps{
		Config:    cfg,
		Sink:      h.sink,
		Extractor: extract.New(dateparse.New(dateparse.RussianMonths()), nil, log),
		Metrics:   h.metrics,
		Logger:    log,
		RunID:     "run-1",
	}
	if mutate != nil {
		mutate(cfg, &deps)
	}

	c, err := crawler.New(deps)
	require.NoError(t, err)
	c.SetFetcher(h.fetcher)
	h.crawler = c
	return h
}

func response(t *testing.T, req crawler.Request, html string) *crawler.Response {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	u, err := url.Parse(req.URL)
	require.NoError(t, err)
	return &crawler.Response{Request: req, URL: u, StatusCode: 200, Body: []byte(html), Doc: doc}
}

func TestNew_RequiresDeps(t *testing.T) {
	t.Parallel()

	_, err := crawler.New(crawler.Deps{Config: crawlercfg.New()})
	assert.ErrorIs(t, err, crawler.ErrInvalidDeps)
}

func TestStart_NoFetcher(t *testing.T) {
	t.Parallel()

	c, err := crawler.New(crawler.Deps{
		Config:    crawlercfg.New(),
		Sink:      &fakeSink{},
		Extractor: extract.New(dateparse.New(dateparse.RussianMonths()), nil, nil),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, c.RunID())
	assert.ErrorIs(t, c.Start(context.Background()), crawler.ErrNoFetcher)
}

func TestStart_SeedsRoot(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	require.NoError(t, h.crawler.Start(context.Background()))

	reqs := h.fetcher.byStage(crawler.StageRegionDiscovery)
	require.Len(t, reqs, 1)
	assert.Equal(t, "https://nmls.ru/", reqs[0].URL)
}

func TestStart_SeedsSpecificRegion(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(cfg *crawlercfg.Config, _ *crawler.Deps) {
		cfg.SpecificRegion = true
		cfg.RegionSubdomain = "nn"
	})
	require.NoError(t, h.crawler.Start(context.Background()))

	reqs := h.fetcher.byStage(crawler.StageRegionHome)
	require.Len(t, reqs, 1)
	assert.Equal(t, "https://nn.nmls.ru/", reqs[0].URL)
	assert.Equal(t, "nn", reqs[0].Crawl.Region)
}

func TestRegionDiscovery(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	req := crawler.Request{URL: "https://nmls.ru/", Stage: crawler.StageRegionDiscovery}
	h.crawler.HandleResponse(context.Background(), response(t, req, `<div id="regions-modal">
  <a href="https://nn.nmls.ru/">Нижний Новгород</a>
  <a href="https://WWW.nn.nmls.ru/">Нижний Новгород</a>
  <a href="//msk.nmls.ru">Москва</a>
  <a href="https://nmls.ru/">Все регионы</a>
  <a href="https://example.com/?ref=nmls.ru">Чужой</a>
  <a href="http://%zz.nmls.ru/">Битая</a>
</div>
<a href="https://spb.nmls.ru/">outside modal</a>`))

	reqs := h.fetcher.byStage(crawler.StageRegionHome)
	got := make(map[string]string)
	for _, r := range reqs {
		got[r.Crawl.Region] = r.URL
	}
	assert.Equal(t, map[string]string{
		"nn":  "https://nn.nmls.ru/",
		"msk": "https://msk.nmls.ru/",
		"www": "https://www.nmls.ru/",
	}, got)
	assert.Equal(t, 1, h.logs.FilterMessage("Skipping unparsable region link").Len())
}

func TestRegionID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		host   string
		region string
		ok     bool
	}{
		{"nn.nmls.ru", "nn", true},
		{"www.msk.nmls.ru", "msk", true},
		{"NMLS.RU", "www", true},
		{"www.nmls.ru", "www", true},
		{"a.b.nmls.ru", "b", true},
		{"example.com", "", false},
		{"notnmls.ru", "", false},
	}
	for _, tt := range tests {
		region, ok := crawler.RegionID(tt.host, "nmls.ru")
		assert.Equal(t, tt.ok, ok, tt.host)
		assert.Equal(t, tt.region, region, tt.host)
	}
}

func TestRegionHome_KnownAndUnknownSections(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	req := crawler.Request{
		URL:   "https://nn.nmls.ru/",
		Stage: crawler.StageRegionHome,
		Crawl: domain.CrawlContext{Region: "nn"},
	}
	h.crawler.HandleResponse(context.Background(), response(t, req, `<div class="search-filter">
  <a href="/prodazha-kvartir">Купить квартиру</a>
  <a href="/arenda-komnat?rooms=1">Снять комнату</a>
  <a href="/prodazha-yaht">Яхты</a>
  <a href="/prodazha-kvartir?sort=price">Купить квартиру</a>
</div>`))

	reqs := h.fetcher.byStage(crawler.StageCategoryPages)
	require.Len(t, reqs, 2)
	assert.Equal(t, "https://nn.nmls.ru/prodazha-kvartir", reqs[0].URL)
	assert.Equal(t, domain.ListingTypeSale, reqs[0].Crawl.ListingType)
	assert.Equal(t, domain.CategoryApartment, reqs[0].Crawl.Category)
	assert.Equal(t, "nn", reqs[0].Crawl.Region)
	assert.Equal(t, "https://nn.nmls.ru/arenda-komnat", reqs[1].URL)
	assert.Equal(t, domain.ListingTypeRent, reqs[1].Crawl.ListingType)
	assert.Equal(t, domain.CategoryRoom, reqs[1].Crawl.Category)

	unknown := h.logs.FilterMessage("Skipping unknown section").All()
	require.Len(t, unknown, 1)
	assert.Equal(t, zapcore.InfoLevel, unknown[0].Level)
	assert.Equal(t, "prodazha-yaht", unknown[0].ContextMap()["segment"])
}

func TestRegionHome_NavbarFallback(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	req := crawler.Request{URL: "https://msk.nmls.ru/", Stage: crawler.StageRegionHome}
	h.crawler.HandleResponse(context.Background(), response(t, req, `<ul class="navbar-nav">
  <li><a class="dropdown-item" href="/prodazha-zemelnyh-uchastkov">Участки</a></li>
  <li><a class="nav-link" href="/arenda-garazhey">Гаражи</a></li>
</ul>`))

	reqs := h.fetcher.byStage(crawler.StageCategoryPages)
	require.Len(t, reqs, 1)
	assert.Equal(t, domain.CategoryLand, reqs[0].Crawl.Category)
}

func TestCategoryPages_PlansListingPages(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	req := crawler.Request{
		URL:   "https://nn.nmls.ru/prodazha-kvartir",
		Stage: crawler.StageCategoryPages,
		Crawl: domain.CrawlContext{Region: "nn", ListingType: 2, Category: 1},
	}
	h.crawler.HandleResponse(context.Background(), response(t, req,
		`<ul class="pagination"><li><a href="?page=2">2</a></li><li><a href="?page=3">3</a></li></ul>`))

	reqs := h.fetcher.byStage(crawler.StageListingPage)
	require.Len(t, reqs, 3)
	for i, r := range reqs {
		assert.Equal(t, i+1, r.Crawl.Page)
		assert.Equal(t, 3, r.Crawl.TotalPages)
		assert.Equal(t, 1, r.Crawl.Category)
	}
	assert.Equal(t, int64(1), h.metrics.Snapshot().Regions[0].Categories)
}

func TestCategoryPages_LandingPageHandledInline(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	req := crawler.Request{
		URL:   "https://nn.nmls.ru/prodazha-kvartir?page=1",
		Stage: crawler.StageCategoryPages,
		Crawl: domain.CrawlContext{Region: "nn"},
	}
	h.crawler.HandleResponse(context.Background(), response(t, req, `
<div class="listing-item"><a href="/prodazha-kvartir/id11">ad</a></div>
<ul class="pagination"><li><a href="?page=2">2</a></li></ul>`))

	listing := h.fetcher.byStage(crawler.StageListingPage)
	require.Len(t, listing, 1)
	assert.Equal(t, "https://nn.nmls.ru/prodazha-kvartir?page=2", listing[0].URL)

	detail := h.fetcher.byStage(crawler.StageDetailPage)
	require.Len(t, detail, 1)
	assert.Equal(t, "https://nn.nmls.ru/prodazha-kvartir/id11", detail[0].URL)
	assert.Equal(t, 1, detail[0].Crawl.Page)
}

func TestListingPage_Links(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	req := crawler.Request{
		URL:   "https://nn.nmls.ru/prodazha-kvartir?page=2",
		Stage: crawler.StageListingPage,
		Crawl: domain.CrawlContext{Region: "nn", Page: 2, TotalPages: 4},
	}
	h.crawler.HandleResponse(context.Background(), response(t, req, `
<div class="listing-item"><a href="/prodazha-kvartir/id1">1</a><a href="/prodazha-kvartir/id1#map">1 map</a></div>
<div class="listing-item"><a href="https://nn.nmls.ru/prodazha-kvartir/id2">2</a></div>
<div class="listing-item"><a href="/prodazha-kvartir/id3/photos">photos</a></div>
<a href="/prodazha-kvartir/id4">outside listing item</a>
<a class="page-link" href="?page=3">›</a>`))

	detail := h.fetcher.byStage(crawler.StageDetailPage)
	require.Len(t, detail, 2)
	assert.Equal(t, "https://nn.nmls.ru/prodazha-kvartir/id1", detail[0].URL)
	assert.Equal(t, "https://nn.nmls.ru/prodazha-kvartir/id2", detail[1].URL)
	assert.Equal(t, 2, detail[0].Crawl.Page)
	assert.Empty(t, h.fetcher.byStage(crawler.StageListingPage), "planned pages do not follow next links")
}

func TestListingPage_FallbackAndFollowNext(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	req := crawler.Request{
		URL:   "https://nn.nmls.ru/arenda-domov?page=1",
		Stage: crawler.StageListingPage,
		Crawl: domain.CrawlContext{Region: "nn", Page: 1, TotalPages: 1, FollowNext: true},
	}
	h.crawler.HandleResponse(context.Background(), response(t, req, `
<a href="/arenda-domov/id7">7</a>
<a rel="next" href="/arenda-domov/more">дальше</a>`))

	require.Len(t, h.fetcher.byStage(crawler.StageDetailPage), 1)
	next := h.fetcher.byStage(crawler.StageListingPage)
	require.Len(t, next, 1)
	assert.Equal(t, "https://nn.nmls.ru/arenda-domov/more", next[0].URL)
	assert.Equal(t, 2, next[0].Crawl.Page)
	assert.True(t, next[0].Crawl.FollowNext)
}

const detailHTML = `<div class="header"><div class="region"><a>Бор, Нижегородская область</a></div></div>
<h1>Дом</h1><div class="card-price">2 000 000</div>
<div class="object-infoblock object-contacts"><div class="dit"><div class="mb10">Олег</div></div>
<a href="tel:+79001112233">call</a></div>
<div class="fotorama"><a href="/p/1.jpg"></a></div>`

func TestDetailPage_WritesRecordsInOrder(t *testing.T) {
	t.Parallel()

	archiver := &fakeArchiver{}
	h := newHarness(t, func(cfg *crawlercfg.Config, d *crawler.Deps) {
		cfg.ArchiveHTML = true
		d.Archiver = archiver
	})
	req := crawler.Request{
		URL:   "https://nn.nmls.ru/prodazha-domov/id5",
		Stage: crawler.StageDetailPage,
		Crawl: domain.CrawlContext{Region: "nn", ListingType: 2, Category: 3},
	}
	h.crawler.HandleResponse(context.Background(), response(t, req, detailHTML))

	require.Len(t, h.sink.written, 3)
	assert.Equal(t, domain.KindAdvertisement, h.sink.written[0].Kind())
	assert.Equal(t, domain.KindImage, h.sink.written[1].Kind())
	assert.Equal(t, domain.KindPhone, h.sink.written[2].Kind())

	ad, ok := h.sink.written[0].(*domain.Advertisement)
	require.True(t, ok)
	assert.Equal(t, 3, ad.Category)
	assert.Equal(t, int64(2000000), ad.Price)

	assert.Equal(t, int64(1), h.crawler.Items())
	stats := h.metrics.Snapshot()
	assert.Equal(t, int64(1), stats.Regions[0].Cities["Бор"])
	assert.Equal(t, int64(1), stats.RecordsWritten["phone"])
	assert.Equal(t, []string{"https://nn.nmls.ru/prodazha-domov/id5"}, archiver.urls)
}

func TestDetailPage_FailedWriteDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.sink.failOn = domain.KindImage
	req := crawler.Request{URL: "https://nn.nmls.ru/prodazha-domov/id6", Stage: crawler.StageDetailPage}
	h.crawler.HandleResponse(context.Background(), response(t, req, detailHTML))

	require.Len(t, h.sink.written, 2)
	assert.Equal(t, domain.KindAdvertisement, h.sink.written[0].Kind())
	assert.Equal(t, domain.KindPhone, h.sink.written[1].Kind())
	assert.Equal(t, int64(1), h.metrics.Snapshot().RecordsFailed["image"])
}

func TestMaxItems_StopsNewFetches(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(cfg *crawlercfg.Config, _ *crawler.Deps) {
		cfg.MaxItems = 1
	})
	ctx := context.Background()

	detail := crawler.Request{URL: "https://nn.nmls.ru/prodazha-domov/id8", Stage: crawler.StageDetailPage}
	h.crawler.HandleResponse(ctx, response(t, detail, detailHTML))

	listing := crawler.Request{URL: "https://nn.nmls.ru/prodazha-domov?page=1", Stage: crawler.StageListingPage}
	h.crawler.HandleResponse(ctx, response(t, listing, `<div class="listing-item"><a href="/prodazha-domov/id9">9</a></div>`))

	assert.Empty(t, h.fetcher.byStage(crawler.StageDetailPage))
	assert.Equal(t, 1, h.logs.FilterMessage("Item limit reached, no new requests will be issued").Len())

	// In-flight detail pages still complete.
	h.crawler.HandleResponse(ctx, response(t, crawler.Request{
		URL: "https://nn.nmls.ru/prodazha-domov/id10", Stage: crawler.StageDetailPage,
	}, detailHTML))
	assert.Equal(t, int64(2), h.crawler.Items())
}

func TestCategoryPages_MaxPagesBoundsFanOut(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(cfg *crawlercfg.Config, _ *crawler.Deps) {
		cfg.MaxPages = 3
	})
	req := crawler.Request{
		URL:   "https://nn.nmls.ru/prodazha-kvartir",
		Stage: crawler.StageCategoryPages,
		Crawl: domain.CrawlContext{Region: "nn", ListingType: 2, Category: 1},
	}
	h.crawler.HandleResponse(context.Background(), response(t, req,
		`<ul class="pagination"><li class="last"><a href="/prodazha-kvartir?page=3000000">»</a></li></ul>`))

	reqs := h.fetcher.byStage(crawler.StageListingPage)
	require.Len(t, reqs, 3)
	assert.Equal(t, 3, reqs[2].Crawl.TotalPages)
	assert.Equal(t, 1, h.logs.FilterMessage("Page count exceeds limit, clamping").Len())
}

func TestCategoryPages_StopsAtItemLimit(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(cfg *crawlercfg.Config, _ *crawler.Deps) {
		cfg.MaxItems = 1
	})
	ctx := context.Background()

	detail := crawler.Request{URL: "https://nn.nmls.ru/prodazha-domov/id8", Stage: crawler.StageDetailPage}
	h.crawler.HandleResponse(ctx, response(t, detail, detailHTML))

	section := crawler.Request{
		URL:   "https://nn.nmls.ru/prodazha-kvartir",
		Stage: crawler.StageCategoryPages,
		Crawl: domain.CrawlContext{Region: "nn"},
	}
	h.crawler.HandleResponse(ctx, response(t, section,
		`<ul class="pagination"><li><a href="?page=2">2</a></li><li><a href="?page=3">3</a></li></ul>`))

	assert.Empty(t, h.fetcher.byStage(crawler.StageListingPage))
}

func TestHandleResponse_RecoversPanic(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	u, err := url.Parse("https://nn.nmls.ru/")
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		h.crawler.HandleResponse(context.Background(), &crawler.Response{
			Request: crawler.Request{URL: u.String(), Stage: crawler.StageRegionHome},
			URL:     u,
		})
	})
	assert.Equal(t, 1, h.logs.FilterMessage("Stage handler panicked").Len())
}

func TestHandleFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.crawler.HandleFailure(context.Background(),
		crawler.Request{URL: "https://nn.nmls.ru/prodazha-domov/id1", Stage: crawler.StageDetailPage},
		503, errors.New("service unavailable"))

	entries := h.logs.FilterMessage("Fetch failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "DetailPage", entries[0].ContextMap()["stage"])
	assert.Equal(t, "run-1", entries[0].ContextMap()["run_id"])
	assert.Equal(t, int64(1), h.metrics.Snapshot().FetchFailures["DetailPage"])
}

func TestFetch_DuplicateIsQuiet(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.fetcher.err = crawler.ErrDuplicateRequest
	req := crawler.Request{URL: "https://nn.nmls.ru/", Stage: crawler.StageRegionHome}
	h.crawler.HandleResponse(context.Background(), response(t, req,
		`<div class="search-filter"><a href="/prodazha-kvartir">x</a></div>`))

	assert.Zero(t, h.logs.FilterMessage("Failed to issue request").Len())
	assert.Equal(t, 1, h.logs.FilterMessage("Skipping duplicate request").Len())
}
