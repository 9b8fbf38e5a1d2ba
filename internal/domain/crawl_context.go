package domain

// CrawlContext travels with every fetch request from the section stage
// down to the detail page.
type CrawlContext struct {
	// Region is the region subdomain identifier, e.g. "nn".
	Region      string
	ListingType int
	Category    int
	// Page and TotalPages are set by the pagination planner.
	Page       int
	TotalPages int
	// FollowNext marks a listing branch without page numbers that follows
	// "next" links one page at a time.
	FollowNext bool
}

// WithSection returns a copy of c carrying the section ids.
func (c CrawlContext) WithSection(listingType, category int) CrawlContext {
	c.ListingType = listingType
	c.Category = category
	return c
}

// WithPage returns a copy of c for page of total.
func (c CrawlContext) WithPage(page, total int) CrawlContext {
	c.Page = page
	c.TotalPages = total
	return c
}
