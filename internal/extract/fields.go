package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	phoneLength = 11
	phonePrefix = "7"
)

var (
	nonDigitRe      = regexp.MustCompile(`\D`)
	regionSplitRe   = regexp.MustCompile(` и |,`)
	spaceCommaRe    = regexp.MustCompile(`\s*,`)
	repeatedCommaRe = regexp.MustCompile(`,+`)
	dashSuffixRe    = regexp.MustCompile(`(?s)\s*–.*`)
)

// ParsePrice keeps the digits of text. Empty or out-of-range input is 0.
func ParsePrice(text string) int64 {
	digits := nonDigitRe.ReplaceAllString(text, "")
	if digits == "" {
		return 0
	}
	price, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return price
}

// NormalizePhone reduces a tel: href to an 11-digit number starting with 7.
func NormalizePhone(href string) (int64, bool) {
	digits := nonDigitRe.ReplaceAllString(strings.TrimPrefix(href, "tel:"), "")
	if len(digits) != phoneLength || !strings.HasPrefix(digits, phonePrefix) {
		return 0, false
	}
	phone, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return phone, true
}

// UniquePhones normalises hrefs, drops invalid numbers and duplicates and
// returns the rest in ascending order.
func UniquePhones(hrefs []string) []int64 {
	seen := make(map[int64]struct{}, len(hrefs))
	for _, h := range hrefs {
		if phone, ok := NormalizePhone(h); ok {
			seen[phone] = struct{}{}
		}
	}
	out := make([]int64, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SplitRegionCity splits "Город и Область" or "Город, Область".
// Both results are nil when text holds nothing.
func SplitRegionCity(text string) (city, region *string) {
	var parts []string
	for _, p := range regionSplitRe.Split(strings.TrimSpace(text), -1) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	switch len(parts) {
	case 0:
		return nil, nil
	case 1:
		return optional(parts[0]), optional(parts[0])
	default:
		return optional(parts[0]), optional(parts[len(parts)-1])
	}
}

// NormalizeAddress joins address fragments into "a, b, c".
func NormalizeAddress(fragments []string) string {
	s := collapse(strings.Join(fragments, " "))
	s = spaceCommaRe.ReplaceAllString(s, ",")
	s = repeatedCommaRe.ReplaceAllString(s, ",")
	return strings.Trim(s, ", ")
}

// CleanParamValue drops a trailing "– comment" and squeezes whitespace:
// "10 м² – общая" becomes "10 м²".
func CleanParamValue(text string) string {
	return collapse(dashSuffixRe.ReplaceAllString(strings.TrimSpace(text), ""))
}
