// Package fetcher issues crawl requests through an asynchronous colly
// collector and hands parsed pages back to the crawler.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	colly "github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/proxy"

	crawlercfg "github.com/jonesrussell/nmls-crawler/internal/config/crawler"
	"github.com/jonesrussell/nmls-crawler/internal/crawler"
	"github.com/jonesrussell/nmls-crawler/internal/logger"
)

// Request context keys.
const (
	requestCtxKey = "crawl_request"
	startedCtxKey = "started_at"
)

// ErrNoHandler is returned by New without a handler.
var ErrNoHandler = errors.New("fetcher requires a handler")

// Fetcher implements crawler.Fetcher on a colly collector.
type Fetcher struct {
	collector *colly.Collector
	handler   crawler.Handler
	throttle  *Throttle
	logger    logger.Logger
	ctx       context.Context
}

var _ crawler.Fetcher = (*Fetcher)(nil)

// New creates a Fetcher bound to ctx. Cancelling ctx aborts pending requests.
func New(ctx context.Context, cfg *crawlercfg.Config, handler crawler.Handler, log logger.Logger) (*Fetcher, error) {
	if handler == nil {
		return nil, ErrNoHandler
	}
	if log == nil {
		log = logger.NewNop()
	}

	f := &Fetcher{
		handler: handler,
		logger:  log.With(logger.Component("fetcher")),
		ctx:     ctx,
	}
	f.collector = colly.NewCollector(buildOptions(ctx, cfg)...)
	f.collector.SetRequestTimeout(cfg.RequestTimeout)

	delay := cfg.Delay
	if cfg.AutoThrottle.Enabled {
		f.throttle = NewThrottle(cfg.AutoThrottle, f.logger)
		delay = 0
	}
	if err := f.collector.Limit(&colly.LimitRule{
		DomainGlob:  "*" + cfg.BaseDomain + "*",
		Delay:       delay,
		RandomDelay: cfg.RandomDelay,
		Parallelism: cfg.Parallelism,
	}); err != nil {
		return nil, fmt.Errorf("failed to set rate limit: %w", err)
	}

	if len(cfg.ProxyURLs) > 0 {
		rp, err := proxy.RoundRobinProxySwitcher(cfg.ProxyURLs...)
		if err != nil {
			return nil, fmt.Errorf("failed to create proxy switcher: %w", err)
		}
		f.collector.SetProxyFunc(rp)
		f.logger.Info("Proxy rotation enabled", logger.Int("proxy_count", len(cfg.ProxyURLs)))
	}

	f.collector.OnRequest(f.onRequest)
	f.collector.OnResponse(f.onResponse)
	f.collector.OnError(f.onError)

	f.logger.Debug("Collector configured",
		logger.Int("parallelism", cfg.Parallelism),
		logger.Duration("delay", delay),
		logger.Bool("autothrottle", cfg.AutoThrottle.Enabled),
		logger.Bool("robots_txt", cfg.RespectRobotsTxt),
	)
	return f, nil
}

func buildOptions(ctx context.Context, cfg *crawlercfg.Config) []colly.CollectorOption {
	opts := []colly.CollectorOption{
		colly.StdlibContext(ctx),
		colly.Async(true),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowedDomains(allowedDomains(cfg)...),
	}
	if !cfg.RespectRobotsTxt {
		opts = append(opts, colly.IgnoreRobotsTxt())
	}
	if cfg.MaxRequests > 0 {
		opts = append(opts, colly.MaxRequests(cfg.MaxRequests))
	}
	return opts
}

// allowedDomains lists the hosts a run may visit. Region subdomains are only
// known after discovery, so a whole-site run leaves the list empty and
// relies on the crawler only issuing base-domain URLs.
func allowedDomains(cfg *crawlercfg.Config) []string {
	if !cfg.SpecificRegion {
		return nil
	}
	host := cfg.RegionSubdomain + "." + cfg.BaseDomain
	return []string{host, "www." + host}
}

// Fetch queues req. A URL already fetched in this run yields
// crawler.ErrDuplicateRequest.
func (f *Fetcher) Fetch(ctx context.Context, req crawler.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cctx := colly.NewContext()
	cctx.Put(requestCtxKey, req)

	err := f.collector.Request("GET", req.URL, nil, cctx, nil)
	var visited *colly.AlreadyVisitedError
	if errors.As(err, &visited) {
		return fmt.Errorf("%w: %s", crawler.ErrDuplicateRequest, req.URL)
	}
	return err
}

// Wait blocks until every queued request is done.
func (f *Fetcher) Wait() {
	f.collector.Wait()
}

// Delay reports the current adaptive delay, or zero when autothrottle is
// disabled.
func (f *Fetcher) Delay() time.Duration {
	if f.throttle == nil {
		return 0
	}
	return f.throttle.Delay()
}

func (f *Fetcher) onRequest(r *colly.Request) {
	if f.ctx.Err() != nil {
		r.Abort()
		return
	}
	if f.throttle != nil {
		if err := f.throttle.Wait(f.ctx); err != nil {
			r.Abort()
			return
		}
	}
	r.Ctx.Put(startedCtxKey, time.Now())
	f.logger.Debug("Visiting URL", logger.URL(r.URL.String()))
}

func (f *Fetcher) onResponse(r *colly.Response) {
	f.observe(r)
	req := requestOf(r)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	if err != nil {
		f.handler.HandleFailure(f.ctx, req, r.StatusCode, fmt.Errorf("failed to parse HTML: %w", err))
		return
	}

	f.handler.HandleResponse(f.ctx, &crawler.Response{
		Request:    req,
		URL:        r.Request.URL,
		StatusCode: r.StatusCode,
		Body:       r.Body,
		Doc:        doc,
	})
}

func (f *Fetcher) onError(r *colly.Response, err error) {
	if r == nil || r.Request == nil {
		f.logger.Warn("Fetch error without request", logger.Err(err))
		return
	}
	if r.StatusCode > 0 {
		f.observe(r)
	}
	if isExpected(err) {
		f.logger.Debug("Expected fetch error", logger.URL(r.Request.URL.String()), logger.Err(err))
		return
	}
	f.handler.HandleFailure(f.ctx, requestOf(r), r.StatusCode, err)
}

func (f *Fetcher) observe(r *colly.Response) {
	if f.throttle == nil || r.Request == nil {
		return
	}
	started, ok := r.Request.Ctx.GetAny(startedCtxKey).(time.Time)
	if !ok {
		return
	}
	f.throttle.Observe(time.Since(started), r.StatusCode)
}

// requestOf recovers the crawl request that started r. A redirect keeps
// the context, so the stage survives it.
func requestOf(r *colly.Response) crawler.Request {
	if req, ok := r.Request.Ctx.GetAny(requestCtxKey).(crawler.Request); ok {
		return req
	}
	return crawler.Request{URL: r.Request.URL.String()}
}

func isExpected(err error) bool {
	var visited *colly.AlreadyVisitedError
	if errors.As(err, &visited) {
		return true
	}
	return errors.Is(err, colly.ErrForbiddenDomain) ||
		errors.Is(err, colly.ErrMaxRequests) ||
		strings.Contains(err.Error(), "Not following redirect")
}
