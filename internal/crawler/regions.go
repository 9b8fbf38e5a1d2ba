package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/nmls-crawler/internal/logger"
)

const (
	apexRegion = "www"
	wwwPrefix  = "www."

	selSections         = ".search-filter a[href]"
	selSectionsFallback = ".navbar-nav a.dropdown-item[href]"
)

// RegionID returns the host label just before baseDomain, or "www" for the
// apex host. ok is false for hosts outside baseDomain.
func RegionID(host, baseDomain string) (string, bool) {
	host = normalizeHost(host)
	if host == baseDomain {
		return apexRegion, true
	}
	prefix, found := strings.CutSuffix(host, "."+baseDomain)
	if !found || prefix == "" {
		return "", false
	}
	labels := strings.Split(prefix, ".")
	return labels[len(labels)-1], true
}

func normalizeHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(host)), wwwPrefix)
}

func (c *Crawler) regionSelector() string {
	return fmt.Sprintf(`#regions-modal a[href*=%q]`, c.cfg.BaseDomain)
}

// handleRegionDiscovery fans out to the home page of every region linked
// from the region picker.
func (c *Crawler) handleRegionDiscovery(ctx context.Context, resp *Response, log logger.Logger) {
	var found int
	resp.Doc.Find(c.regionSelector()).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u, err := resolve(resp.URL, strings.TrimSpace(href))
		if err != nil {
			log.Warn("Skipping unparsable region link", logger.String("href", href), logger.Err(err))
			return
		}
		host := normalizeHost(u.Hostname())
		region, ok := RegionID(host, c.cfg.BaseDomain)
		if !ok {
			log.Debug("Skipping link outside base domain", logger.String("href", href))
			return
		}
		if !c.claimRegion(host) {
			return
		}
		if region == apexRegion {
			host = wwwPrefix + c.cfg.BaseDomain
		}

		found++
		next := resp.Request.Crawl
		next.Region = region
		c.fetch(ctx, Request{URL: c.cfg.RegionURL(host), Stage: StageRegionHome, Crawl: next})
	})
	log.Info("Regions discovered", logger.Int("regions", found))
}

func (c *Crawler) claimRegion(host string) bool {
	c.regionsMu.Lock()
	defer c.regionsMu.Unlock()
	if _, seen := c.regionSeen[host]; seen {
		return false
	}
	c.regionSeen[host] = struct{}{}
	return true
}

// section is a decoded "/<listing-type>-<category>" path segment.
type section struct {
	listingType int
	category    int
}

// parseSection decodes the first path segment of a section URL, e.g.
// "/prodazha-kvartir". ok is false when either half is not in the lexicons.
func (c *Crawler) parseSection(u *url.URL) (section, string, bool) {
	segment := strings.Trim(u.Path, "/")
	if i := strings.Index(segment, "/"); i >= 0 {
		segment = segment[:i]
	}
	kind, cat, found := strings.Cut(segment, "-")
	if !found {
		return section{}, segment, false
	}
	listingType, ok := c.listingTypes.Lookup(kind)
	if !ok {
		return section{}, segment, false
	}
	category, ok := c.categories.Lookup(cat)
	if !ok {
		return section{}, segment, false
	}
	return section{listingType: listingType, category: category}, segment, true
}

// handleRegionHome issues one CategoryPages request per known section
// linked from the region's search filter.
func (c *Crawler) handleRegionHome(ctx context.Context, resp *Response, log logger.Logger) {
	links := resp.Doc.Find(selSections)
	if links.Length() == 0 {
		links = resp.Doc.Find(selSectionsFallback)
	}

	seen := make(map[section]struct{})
	links.Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u, err := resolve(resp.URL, strings.TrimSpace(href))
		if err != nil {
			log.Warn("Skipping unparsable section link", logger.String("href", href), logger.Err(err))
			return
		}
		sec, segment, ok := c.parseSection(u)
		if !ok {
			log.Info("Skipping unknown section", logger.String("segment", segment), logger.String("href", href))
			return
		}
		if _, dup := seen[sec]; dup {
			return
		}
		seen[sec] = struct{}{}

		landing := &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/" + segment}
		c.fetch(ctx, Request{
			URL:   landing.String(),
			Stage: StageCategoryPages,
			Crawl: resp.Request.Crawl.WithSection(sec.listingType, sec.category),
		})
	})
	log.Info("Sections found", logger.Int("sections", len(seen)))
}
