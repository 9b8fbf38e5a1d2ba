package crawler

import (
	"context"
	"errors"
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/nmls-crawler/internal/domain"
)

// Stage is the kind of page a request fetches.
type Stage int

// Traversal stages, in crawl order.
const (
	StageRegionDiscovery Stage = iota + 1
	StageRegionHome
	StageCategoryPages
	StageListingPage
	StageDetailPage
)

func (s Stage) String() string {
	switch s {
	case StageRegionDiscovery:
		return "RegionDiscovery"
	case StageRegionHome:
		return "RegionHome"
	case StageCategoryPages:
		return "CategoryPages"
	case StageListingPage:
		return "ListingPage"
	case StageDetailPage:
		return "DetailPage"
	default:
		return "Unknown"
	}
}

// ErrDuplicateRequest is returned by a Fetcher for a URL it has already
// fetched or queued during this run.
var ErrDuplicateRequest = errors.New("request already issued")

// Request asks for one page to be fetched and handled at Stage.
type Request struct {
	URL   string
	Stage Stage
	Crawl domain.CrawlContext
}

// Response is a fetched and parsed page.
type Response struct {
	Request    Request
	URL        *url.URL
	StatusCode int
	Body       []byte
	Doc        *goquery.Document
}

// Fetcher issues requests asynchronously. Results are delivered to a
// Handler; Wait blocks until every issued request is done.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) error
	Wait()
}

// Handler receives fetch results.
type Handler interface {
	HandleResponse(ctx context.Context, resp *Response)
	HandleFailure(ctx context.Context, req Request, statusCode int, err error)
}

// RecordSink persists records.
type RecordSink interface {
	Write(ctx context.Context, rec domain.Record) error
}

// Archiver stores the raw HTML of a page.
type Archiver interface {
	Archive(ctx context.Context, pageURL string, statusCode int, body []byte) error
}
