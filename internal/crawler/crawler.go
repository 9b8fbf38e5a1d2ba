// Package crawler walks the site from the region list down to advertisement
// pages: region → section → pagination → listing → detail.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	crawlercfg "github.com/jonesrussell/nmls-crawler/internal/config/crawler"
	"github.com/jonesrussell/nmls-crawler/internal/domain"
	"github.com/jonesrussell/nmls-crawler/internal/extract"
	"github.com/jonesrussell/nmls-crawler/internal/logger"
	"github.com/jonesrussell/nmls-crawler/internal/metrics"
	"github.com/jonesrussell/nmls-crawler/internal/pagination"
)

var (
	// ErrNoFetcher is returned by Start when no Fetcher was set.
	ErrNoFetcher = errors.New("crawler has no fetcher")
	// ErrInvalidDeps is returned by New when a required dependency is missing.
	ErrInvalidDeps = errors.New("invalid crawler dependencies")
)

// Deps are the collaborators of a Crawler.
type Deps struct {
	Config    *crawlercfg.Config
	Sink      RecordSink
	Extractor *extract.Extractor
	// Optional.
	Archiver Archiver
	Planner  *pagination.Planner
	Metrics  *metrics.Metrics
	Logger   logger.Logger
	RunID    string
}

// Crawler drives one crawl run. Handlers are safe for concurrent use.
type Crawler struct {
	cfg       *crawlercfg.Config
	fetcher   Fetcher
	sink      RecordSink
	archiver  Archiver
	extractor *extract.Extractor
	planner   *pagination.Planner
	metrics   *metrics.Metrics
	logger    logger.Logger
	runID     string

	listingTypes domain.Lexicon
	categories   domain.Lexicon

	items      atomic.Int64
	capOnce    sync.Once
	regionsMu  sync.Mutex
	regionSeen map[string]struct{}
}

// New creates a Crawler.
func New(d Deps) (*Crawler, error) {
	if d.Config == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidDeps)
	}
	if d.Sink == nil {
		return nil, fmt.Errorf("%w: sink is required", ErrInvalidDeps)
	}
	if d.Extractor == nil {
		return nil, fmt.Errorf("%w: extractor is required", ErrInvalidDeps)
	}
	if d.Logger == nil {
		d.Logger = logger.NewNop()
	}
	if d.Planner == nil {
		d.Planner = pagination.New(d.Logger, pagination.WithMaxPages(d.Config.MaxPages))
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New(prometheus.NewRegistry())
	}
	if d.RunID == "" {
		d.RunID = uuid.NewString()
	}

	return &Crawler{
		cfg:          d.Config,
		sink:         d.Sink,
		archiver:     d.Archiver,
		extractor:    d.Extractor,
		planner:      d.Planner,
		metrics:      d.Metrics,
		logger:       d.Logger.With(logger.String(logger.KeyRunID, d.RunID)),
		runID:        d.RunID,
		listingTypes: domain.ListingTypes(),
		categories:   domain.Categories(),
		regionSeen:   make(map[string]struct{}),
	}, nil
}

// SetFetcher sets the fetcher requests are issued through.
func (c *Crawler) SetFetcher(f Fetcher) {
	c.fetcher = f
}

// RunID identifies this run in logs.
func (c *Crawler) RunID() string {
	return c.runID
}

// Metrics returns the run counters.
func (c *Crawler) Metrics() *metrics.Metrics {
	return c.metrics
}

// Start issues the seed request: the root page, or the home page of the
// configured region.
func (c *Crawler) Start(ctx context.Context) error {
	if c.fetcher == nil {
		return ErrNoFetcher
	}

	req := Request{URL: c.cfg.SeedURL(), Stage: StageRegionDiscovery}
	if c.cfg.SpecificRegion {
		req.Stage = StageRegionHome
		req.Crawl.Region = c.cfg.RegionSubdomain
	}

	c.logger.Info("Crawl started",
		logger.URL(req.URL),
		logger.String(logger.KeyStage, req.Stage.String()),
		logger.Int("max_items", c.cfg.MaxItems),
	)
	if err := c.fetcher.Fetch(ctx, req); err != nil {
		return fmt.Errorf("failed to fetch seed %s: %w", req.URL, err)
	}
	return nil
}

// Wait blocks until all issued requests are done.
func (c *Crawler) Wait() {
	if c.fetcher != nil {
		c.fetcher.Wait()
	}
	c.logger.Info("Crawl finished", logger.Int64("items", c.items.Load()))
}

// Items is the number of advertisements extracted so far.
func (c *Crawler) Items() int64 {
	return c.items.Load()
}

// capReached reports whether the item limit stops new fetches.
func (c *Crawler) capReached() bool {
	return c.cfg.MaxItems > 0 && c.items.Load() >= int64(c.cfg.MaxItems)
}

// fetch issues req unless the item limit was reached.
func (c *Crawler) fetch(ctx context.Context, req Request) {
	if c.capReached() {
		c.logger.Debug("Item limit reached, not fetching",
			logger.URL(req.URL),
			logger.String(logger.KeyStage, req.Stage.String()),
		)
		return
	}
	if err := c.fetcher.Fetch(ctx, req); err != nil {
		if errors.Is(err, ErrDuplicateRequest) {
			c.logger.Debug("Skipping duplicate request", logger.URL(req.URL))
			return
		}
		c.logger.Warn("Failed to issue request",
			logger.URL(req.URL),
			logger.String(logger.KeyStage, req.Stage.String()),
			logger.Err(err),
		)
	}
}

// HandleResponse dispatches a fetched page to its stage handler. A panic in
// a handler drops that branch only.
func (c *Crawler) HandleResponse(ctx context.Context, resp *Response) {
	req := resp.Request
	log := c.logger.With(
		logger.URL(req.URL),
		logger.String(logger.KeyStage, req.Stage.String()),
		logger.String(logger.KeyRegion, req.Crawl.Region),
	)
	defer func() {
		if r := recover(); r != nil {
			log.Error("Stage handler panicked", logger.Any("panic", r))
		}
	}()

	c.metrics.PageCrawled(regionLabel(req.Crawl.Region))

	switch req.Stage {
	case StageRegionDiscovery:
		c.handleRegionDiscovery(ctx, resp, log)
	case StageRegionHome:
		c.handleRegionHome(ctx, resp, log)
	case StageCategoryPages:
		c.handleCategoryPages(ctx, resp, log)
	case StageListingPage:
		c.handleListingPage(ctx, resp, log)
	case StageDetailPage:
		c.handleDetailPage(ctx, resp, log)
	default:
		log.Warn("Unknown stage")
	}
}

// HandleFailure logs a failed fetch and drops the branch.
func (c *Crawler) HandleFailure(_ context.Context, req Request, statusCode int, err error) {
	c.metrics.FetchFailed(req.Stage.String())
	c.logger.Warn("Fetch failed",
		logger.URL(req.URL),
		logger.String(logger.KeyStage, req.Stage.String()),
		logger.String(logger.KeyRegion, req.Crawl.Region),
		logger.Int("status", statusCode),
		logger.Err(err),
	)
}

func regionLabel(region string) string {
	if region == "" {
		return "root"
	}
	return region
}

func resolve(base *url.URL, href string) (*url.URL, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return nil, err
	}
	abs := base.ResolveReference(ref)
	abs.Fragment = ""
	abs.RawFragment = ""
	return abs, nil
}
