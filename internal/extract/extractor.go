// Package extract turns a fetched detail page into an advertisement and
// its image and phone records.
package extract

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/nmls-crawler/internal/dateparse"
	"github.com/jonesrussell/nmls-crawler/internal/domain"
	"github.com/jonesrussell/nmls-crawler/internal/logger"
)

// Result holds everything extracted from one detail page.
type Result struct {
	Advertisement *domain.Advertisement
	Images        []*domain.Image
	Phones        []*domain.PhoneNumber
}

// Records returns the advertisement followed by its images and phones.
func (r *Result) Records() []domain.Record {
	out := make([]domain.Record, 0, 1+len(r.Images)+len(r.Phones))
	out = append(out, r.Advertisement)
	for _, img := range r.Images {
		out = append(out, img)
	}
	for _, p := range r.Phones {
		out = append(out, p)
	}
	return out
}

// Extractor reads detail pages. It never fails on missing fields.
type Extractor struct {
	dates  *dateparse.Resolver
	clock  dateparse.Clock
	logger logger.Logger
}

// New creates an Extractor.
func New(dates *dateparse.Resolver, clock dateparse.Clock, log logger.Logger) *Extractor {
	if clock == nil {
		clock = time.Now
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Extractor{dates: dates, clock: clock, logger: log}
}

// CanonicalURL is the form of a detail URL that identity is derived from.
func CanonicalURL(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}

// Extract reads doc, fetched from pageURL, into a Result.
func (e *Extractor) Extract(doc *goquery.Document, pageURL *url.URL, cc domain.CrawlContext) *Result {
	canonical := CanonicalURL(pageURL)
	log := e.logger.With(logger.URL(canonical))
	now := e.clock()

	ad := &domain.Advertisement{
		ID:         domain.AdvertisementID(canonical),
		URL:        canonical,
		DateUpdate: now,
		AdvtType:   cc.ListingType,
		Category:   cc.Category,
		Source:     domain.SourceNMLS,
		IsActive:   true,
	}

	ad.Title = optional(collapse(doc.Find(selTitle).First().Text()))
	ad.Price = e.price(doc, log)

	c := e.contacts(doc, log)
	ad.ContactName, ad.Company, ad.IsCompany = c.name, c.company, c.isCompany

	ad.City, ad.Region = SplitRegionCity(doc.Find(selRegionCity).First().Text())
	ad.Address = e.address(doc)
	ad.Description = description(doc)
	ad.Params = e.params(doc)
	ad.Lat, ad.Lon = e.coordinates(doc, log)
	ad.DatePosted = e.datePosted(doc, log)

	result := &Result{Advertisement: ad}
	result.Images = images(doc, pageURL, ad.ID, now)
	for _, phone := range c.phones {
		result.Phones = append(result.Phones, &domain.PhoneNumber{
			AdvtID:     ad.ID,
			Phone:      phone,
			IsFake:     false,
			DateUpdate: now,
		})
	}

	log.Debug("Detail page extracted",
		logger.Int("images", len(result.Images)),
		logger.Int("phones", len(result.Phones)),
		logger.Int("params", ad.Params.Len()),
	)
	return result
}

func (e *Extractor) price(doc *goquery.Document, log logger.Logger) int64 {
	node := doc.Find(selPrice).First()
	if node.Length() == 0 {
		log.Debug("Price node not found")
		return 0
	}
	text := node.Text()
	price := ParsePrice(text)
	if price == 0 && strings.TrimSpace(text) != "" {
		log.Warn("Price is not a number", logger.String("price", strings.TrimSpace(text)))
	}
	return price
}

type contactInfo struct {
	name      *string
	company   *string
	isCompany bool
	phones    []int64
}

func (e *Extractor) contacts(doc *goquery.Document, log logger.Logger) contactInfo {
	var info contactInfo

	block := doc.Find(selContacts).First()
	if block.Length() == 0 || block.Find(selHidden).Length() > 0 {
		log.Debug("Contacts hidden or missing")
		return info
	}

	lines := block.Find(selContactLines)
	info.name = optional(firstOwnText(lines))

	for _, line := range ownTexts(lines) {
		if strings.Contains(line, labelAgency) {
			info.company = optional(strings.TrimSpace(strings.Replace(line, labelAgency, "", 1)))
			break
		}
	}
	if info.company != nil {
		info.isCompany = true
		if info.name == nil {
			info.name = info.company
		}
	}

	var hrefs []string
	block.Find(selPhoneLinks).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if _, ok := NormalizePhone(href); !ok {
			log.Debug("Skipping malformed phone", logger.String("href", href))
			return
		}
		hrefs = append(hrefs, href)
	})
	info.phones = UniquePhones(hrefs)
	return info
}

func (e *Extractor) address(doc *goquery.Document) *string {
	var cell *goquery.Selection
	doc.Find(selInfoRows).Find("td").EachWithBreak(func(_ int, td *goquery.Selection) bool {
		if strings.TrimSpace(td.Text()) == labelAddress {
			cell = td.NextAllFiltered("td").First()
			return false
		}
		return true
	})
	if cell == nil || cell.Length() == 0 {
		return nil
	}
	return optional(NormalizeAddress(descendantTexts(cell)))
}

func description(doc *goquery.Document) *string {
	block := doc.Find(selDescription).First()
	if block.Length() == 0 {
		return nil
	}

	var parts []string
	for _, t := range ownTexts(block.Find("p")) {
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) > 0 {
		return optional(collapse(strings.Join(parts, " ")))
	}
	return optional(collapse(strings.Join(descendantTexts(block), " ")))
}

func (e *Extractor) params(doc *goquery.Document) *domain.Params {
	params := domain.NewParams()
	doc.Find(selInfoRows).Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td")
		if cells.Length() < 2 {
			return
		}
		label := collapse(cells.Eq(0).Text())
		if label == "" || label == labelAddress {
			return
		}

		valueCell := cells.Eq(1)
		value := ""
		if label == labelArea {
			value = collapse(valueCell.Find(selAreaCompact).First().Text())
		}
		if value == "" {
			value = CleanParamValue(strings.Join(descendantTexts(valueCell), ""))
		}
		params.Set(label, optional(value))
	})
	return params
}

func (e *Extractor) coordinates(doc *goquery.Document, log logger.Logger) (lat, lon *float64) {
	node := doc.Find(selMap).First()
	latText, okLat := node.Attr(attrLat)
	lonText, okLon := node.Attr(attrLng)
	if !okLat || !okLon {
		return nil, nil
	}

	la, errLat := strconv.ParseFloat(strings.TrimSpace(latText), 64)
	lo, errLon := strconv.ParseFloat(strings.TrimSpace(lonText), 64)
	if errLat != nil || errLon != nil {
		log.Warn("Coordinates are not numbers",
			logger.String("lat", latText),
			logger.String("lon", lonText),
		)
		return nil, nil
	}
	return &la, &lo
}

func (e *Extractor) datePosted(doc *goquery.Document, log logger.Logger) *time.Time {
	node := doc.Find(selDate).First()
	if node.Length() == 0 {
		log.Debug("Date node not found")
		return nil
	}
	return e.dates.Resolve(strings.Join(ownTexts(node), ""))
}

func images(doc *goquery.Document, pageURL *url.URL, advtID string, now time.Time) []*domain.Image {
	var out []*domain.Image
	seen := make(map[string]struct{})
	doc.Find(selImages).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := pageURL.ResolveReference(ref).String()
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		out = append(out, &domain.Image{AdvtID: advtID, URL: abs, DateUpdate: now})
	})
	return out
}
