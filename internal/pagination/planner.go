// Package pagination plans the listing-page requests of a category section.
package pagination

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/nmls-crawler/internal/domain"
	"github.com/jonesrussell/nmls-crawler/internal/logger"
)

const (
	pageParam = "page"

	selLinks     = ".pagination a[href]"
	selLastLinks = `a[rel="last"], li.last a, a[aria-label]`
	selNextLinks = `a[rel="next"], .page-link`

	lastText = "»"
	nextText = "›"
)

var lastLabels = []string{"послед", "last"}

// Request is one planned listing-page fetch.
type Request struct {
	URL   string
	Crawl domain.CrawlContext
}

// Plan is the outcome of planning one category landing page.
type Plan struct {
	TotalPages int
	Requests   []Request
	// FollowNext is set when the landing page only offers a "next" link.
	FollowNext bool
}

// DefaultMaxPages bounds the pages planned for one section.
const DefaultMaxPages = 1000

// Planner reads page counts from pagination widgets.
type Planner struct {
	logger   logger.Logger
	maxPages int
}

// Option configures a Planner.
type Option func(*Planner)

// WithMaxPages caps the pages planned per section. Non-positive values
// keep DefaultMaxPages.
func WithMaxPages(n int) Option {
	return func(p *Planner) {
		if n > 0 {
			p.maxPages = n
		}
	}
}

// New creates a Planner.
func New(log logger.Logger, opts ...Option) *Planner {
	if log == nil {
		log = logger.NewNop()
	}
	p := &Planner{logger: log, maxPages: DefaultMaxPages}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan returns one request per listing page of the section at landingURL.
// The page count comes from an explicit last-page link, else the largest
// page number linked, else 1.
func (p *Planner) Plan(doc *goquery.Document, landingURL *url.URL, cc domain.CrawlContext) Plan {
	total, found := lastPage(doc)
	if !found {
		total, found = maxPage(doc)
	}

	followNext := false
	if !found {
		total = 1
		followNext = NextURL(doc, landingURL) != ""
	}
	if total > p.maxPages {
		p.logger.Warn("Page count exceeds limit, clamping",
			logger.URL(landingURL.String()),
			logger.Int("total_pages", total),
			logger.Int("max_pages", p.maxPages),
		)
		total = p.maxPages
	}

	plan := Plan{TotalPages: total, FollowNext: followNext, Requests: make([]Request, 0, total)}
	for k := 1; k <= total; k++ {
		next := cc.WithPage(k, total)
		next.FollowNext = followNext
		plan.Requests = append(plan.Requests, Request{URL: PageURL(landingURL, k), Crawl: next})
	}

	p.logger.Debug("Pagination planned",
		logger.URL(landingURL.String()),
		logger.Int("total_pages", total),
		logger.Bool("follow_next", followNext),
	)
	return plan
}

// PageURL returns base with its query replaced by page=k.
func PageURL(base *url.URL, k int) string {
	u := *base
	u.RawQuery = url.Values{pageParam: []string{strconv.Itoa(k)}}.Encode()
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// NextURL returns the absolute target of the page's "next" link, or "".
func NextURL(doc *goquery.Document, base *url.URL) string {
	var next string
	doc.Find(selNextLinks).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		rel, _ := s.Attr("rel")
		if rel != "next" && !strings.Contains(s.Text(), nextText) {
			return true
		}
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return true
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return true
		}
		next = base.ResolveReference(ref).String()
		return false
	})
	return next
}

func lastPage(doc *goquery.Document) (int, bool) {
	page, found := 0, false
	doc.Find(selLastLinks).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !isLastLink(s) {
			return true
		}
		page, found = pageNumber(s)
		return !found
	})
	if found {
		return page, true
	}

	doc.Find(selLinks).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.TrimSpace(s.Text()) != lastText {
			return true
		}
		page, found = pageNumber(s)
		return !found
	})
	return page, found
}

func isLastLink(s *goquery.Selection) bool {
	if rel, _ := s.Attr("rel"); rel == "last" {
		return true
	}
	if s.Closest("li.last").Length() > 0 {
		return true
	}
	label, ok := s.Attr("aria-label")
	if !ok {
		return false
	}
	label = strings.ToLower(label)
	for _, l := range lastLabels {
		if strings.Contains(label, l) {
			return true
		}
	}
	return false
}

func maxPage(doc *goquery.Document) (int, bool) {
	highest, found := 0, false
	doc.Find(selLinks).Each(func(_ int, s *goquery.Selection) {
		if n, ok := pageNumber(s); ok && n > highest {
			highest, found = n, true
		}
	})
	return highest, found
}

// pageNumber reads a positive page query parameter from the link's href.
func pageNumber(s *goquery.Selection) (int, bool) {
	href, ok := s.Attr("href")
	if !ok {
		return 0, false
	}
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(u.Query().Get(pageParam))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
