package domain

import "sort"

// Listing type ids.
const (
	ListingTypeSale = 2
	ListingTypeRent = 3
)

// Category ids.
const (
	CategoryApartment  = 1
	CategoryRoom       = 2
	CategoryHouse      = 3
	CategoryLand       = 4
	CategoryGarage     = 5
	CategoryCommercial = 6
)

// Lexicon maps a URL path segment to an integer id.
type Lexicon map[string]int

// Lookup returns the id for segment.
func (l Lexicon) Lookup(segment string) (int, bool) {
	id, ok := l[segment]
	return id, ok
}

// Segments returns the segments sorted by id, then name.
func (l Lexicon) Segments() []string {
	out := make([]string, 0, len(l))
	for k := range l {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if l[out[i]] != l[out[j]] {
			return l[out[i]] < l[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

// ListingTypes decodes the first half of a section path segment.
func ListingTypes() Lexicon {
	return Lexicon{
		"prodazha": ListingTypeSale,
		"arenda":   ListingTypeRent,
	}
}

// Categories decodes the second half of a section path segment.
func Categories() Lexicon {
	return Lexicon{
		"kvartir":                     CategoryApartment,
		"komnat":                      CategoryRoom,
		"domov":                       CategoryHouse,
		"zemelnyh-uchastkov":          CategoryLand,
		"garazhey":                    CategoryGarage,
		"kommercheskoy-nedvizhimosti": CategoryCommercial,
	}
}
