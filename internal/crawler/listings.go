package crawler

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/nmls-crawler/internal/logger"
	"github.com/jonesrussell/nmls-crawler/internal/pagination"
)

const (
	selListingLinks         = `div.listing-item a[href*="/id"]`
	selListingLinksFallback = `a[href*="/id"]`
)

var detailPathRe = regexp.MustCompile(`/id\d+$`)

// handleCategoryPages plans the listing pages of a section. The planned
// page equal to the landing URL is handled from the landing document,
// since the fetcher never revisits a URL.
func (c *Crawler) handleCategoryPages(ctx context.Context, resp *Response, log logger.Logger) {
	c.metrics.CategoryPaginated(regionLabel(resp.Request.Crawl.Region))

	plan := c.planner.Plan(resp.Doc, resp.URL, resp.Request.Crawl)
	log.Info("Category paginated",
		logger.Int("total_pages", plan.TotalPages),
		logger.Int("listing_type", resp.Request.Crawl.ListingType),
		logger.Int("category", resp.Request.Crawl.Category),
	)

	landing := resp.URL.String()
	for _, pr := range plan.Requests {
		if c.capReached() {
			log.Debug("Item limit reached, remaining pages not issued", logger.Int("page", pr.Crawl.Page))
			return
		}
		req := Request{URL: pr.URL, Stage: StageListingPage, Crawl: pr.Crawl}
		if pr.URL == landing {
			inline := *resp
			inline.Request = req
			c.handleListingPage(ctx, &inline, log.With(logger.Int("page", pr.Crawl.Page)))
			continue
		}
		c.fetch(ctx, req)
	}
}

// handleListingPage issues a DetailPage request per advertisement link.
func (c *Crawler) handleListingPage(ctx context.Context, resp *Response, log logger.Logger) {
	links := resp.Doc.Find(selListingLinks)
	if links.Length() == 0 {
		links = resp.Doc.Find(selListingLinksFallback)
	}

	seen := make(map[string]struct{})
	links.Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u, err := resolve(resp.URL, strings.TrimSpace(href))
		if err != nil || !detailPathRe.MatchString(u.Path) {
			return
		}
		abs := u.String()
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		c.fetch(ctx, Request{URL: abs, Stage: StageDetailPage, Crawl: resp.Request.Crawl})
	})
	log.Debug("Listing page handled",
		logger.Int("page", resp.Request.Crawl.Page),
		logger.Int("links", len(seen)),
	)

	cc := resp.Request.Crawl
	if !cc.FollowNext {
		return
	}
	if next := pagination.NextURL(resp.Doc, resp.URL); next != "" {
		c.fetch(ctx, Request{URL: next, Stage: StageListingPage, Crawl: cc.WithPage(cc.Page+1, cc.Page+1)})
	}
}

// handleDetailPage extracts the advertisement and writes its records in
// order: advertisement, images, phones.
func (c *Crawler) handleDetailPage(ctx context.Context, resp *Response, log logger.Logger) {
	result := c.extractor.Extract(resp.Doc, resp.URL, resp.Request.Crawl)
	ad := result.Advertisement

	if n := c.items.Add(1); c.cfg.MaxItems > 0 && n >= int64(c.cfg.MaxItems) {
		c.capOnce.Do(func() {
			c.logger.Info("Item limit reached, no new requests will be issued",
				logger.Int("max_items", c.cfg.MaxItems))
		})
	}
	c.metrics.ItemScraped(regionLabel(resp.Request.Crawl.Region), deref(ad.City))

	for _, rec := range result.Records() {
		if err := c.sink.Write(ctx, rec); err != nil {
			c.metrics.RecordFailed(string(rec.Kind()))
			continue
		}
		c.metrics.RecordWritten(string(rec.Kind()))
	}

	if c.archiver != nil && c.cfg.ArchiveHTML {
		if err := c.archiver.Archive(ctx, ad.URL, resp.StatusCode, resp.Body); err != nil {
			log.Warn("Failed to archive HTML", logger.Err(err))
		}
	}

	log.Info("Advertisement scraped",
		logger.String("id", ad.ID),
		logger.Int("images", len(result.Images)),
		logger.Int("phones", len(result.Phones)),
	)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
