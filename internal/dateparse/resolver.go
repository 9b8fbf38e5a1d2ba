// Package dateparse turns the free-text dates shown on listing pages into
// timestamps.
package dateparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jonesrussell/nmls-crawler/internal/logger"
)

const (
	layoutDateTime = "02.01.2006 15:04"
	layoutDate     = "02.01.2006"

	defaultLocation = "Europe/Moscow"
)

var (
	relativeDayRe = regexp.MustCompile(`(?i)(сегодня|вчера)\s*,\s*(\d{2}):(\d{2})`)
	namedMonthRe  = regexp.MustCompile(`(\d{1,2})\s+([А-Яа-яЁё]+)\s*(\d{4})?`)
)

// Clock returns the current time.
type Clock func() time.Time

// Resolver parses dates like "Сегодня, 14:30", "15 мая 2023" or
// "01.01.2024 10:00". It holds no global state.
type Resolver struct {
	months   MonthLexicon
	clock    Clock
	location *time.Location
	logger   logger.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(r *Resolver) { r.clock = clock }
}

// WithLocation sets the zone the site's dates are written in.
func WithLocation(loc *time.Location) Option {
	return func(r *Resolver) { r.location = loc }
}

// WithLogger sets the logger used for unrecognised input.
func WithLogger(log logger.Logger) Option {
	return func(r *Resolver) { r.logger = log }
}

// New creates a Resolver over the given month lexicon.
func New(months MonthLexicon, opts ...Option) *Resolver {
	r := &Resolver{
		months:   months,
		clock:    time.Now,
		location: defaultZone(),
		logger:   logger.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func defaultZone() *time.Location {
	loc, err := time.LoadLocation(defaultLocation)
	if err != nil {
		return time.Local
	}
	return loc
}

// Resolve returns the timestamp described by text, or nil when the text is
// empty or matches no known format.
func (r *Resolver) Resolve(text string) *time.Time {
	text = strings.TrimSpace(text)
	if text == "" {
		r.logger.Debug("Empty date string")
		return nil
	}

	now := r.clock().In(r.location)

	if t, ok := r.relativeDay(text, now); ok {
		return &t
	}
	if t, ok := r.namedMonth(text, now); ok {
		return &t
	}
	if t, err := time.ParseInLocation(layoutDateTime, text, r.location); err == nil {
		return &t
	}
	if t, err := time.ParseInLocation(layoutDate, text, r.location); err == nil {
		return &t
	}

	r.logger.Warn("Unrecognized date", logger.String("text", text))
	return nil
}

// lower folds Cyrillic text. A Caser keeps state, so one is built per call.
func lower(s string) string {
	return cases.Lower(language.Russian).String(s)
}

// relativeDay handles "Сегодня, HH:MM" and "Вчера, HH:MM".
func (r *Resolver) relativeDay(text string, now time.Time) (time.Time, bool) {
	m := relativeDayRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}

	hour, _ := strconv.Atoi(m[2])
	minute, _ := strconv.Atoi(m[3])
	if hour > 23 || minute > 59 {
		r.logger.Warn("Invalid time in relative date", logger.String("text", text))
		return time.Time{}, false
	}

	day := now
	if lower(m[1]) == "вчера" {
		day = now.AddDate(0, 0, -1)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, r.location), true
}

// namedMonth handles "15 мая" and "15 мая 2023".
func (r *Resolver) namedMonth(text string, now time.Time) (time.Time, bool) {
	m := namedMonthRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}

	name := lower(m[2])
	month, ok := r.months[name]
	if !ok {
		r.logger.Warn("Unknown month name", logger.String("month", name), logger.String("text", text))
		return time.Time{}, false
	}

	day, _ := strconv.Atoi(m[1])
	year := now.Year()
	if m[3] != "" {
		year, _ = strconv.Atoi(m[3])
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, r.location)
	// time.Date normalises overflow such as 31 June into 1 July.
	if t.Day() != day || int(t.Month()) != month || t.Year() != year {
		r.logger.Warn("Invalid calendar date",
			logger.Int("year", year), logger.Int("month", month), logger.Int("day", day),
			logger.String("text", text))
		return time.Time{}, false
	}
	return t, true
}
