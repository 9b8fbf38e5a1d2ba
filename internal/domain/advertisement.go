// Package domain defines the records produced by the crawler and the
// context carried between crawl stages.
package domain

import (
	"crypto/sha1" //nolint:gosec // identity digest, not a security boundary
	"encoding/hex"
	"time"
)

// SourceNMLS identifies records produced by this crawler.
const SourceNMLS = 8

// Advertisement is a single real-estate listing.
type Advertisement struct {
	ID          string     `db:"id" json:"id"`
	URL         string     `db:"url" json:"url"`
	Title       *string    `db:"title" json:"title"`
	Price       int64      `db:"price" json:"price"`
	DateUpdate  time.Time  `db:"date_update" json:"date_update"`
	IsCompany   bool       `db:"is_company" json:"is_company"`
	ContactName *string    `db:"contactname" json:"contactname"`
	Company     *string    `db:"company" json:"company"`
	Region      *string    `db:"region" json:"region"`
	City        *string    `db:"city" json:"city"`
	Address     *string    `db:"address" json:"address"`
	Description *string    `db:"description" json:"description"`
	AdvtType    int        `db:"advt_type" json:"advt_type"`
	Source      int        `db:"source" json:"source"`
	Category    int        `db:"cat" json:"cat"`
	Lat         *float64   `db:"lat" json:"lat"`
	Lon         *float64   `db:"lon" json:"lon"`
	Params      *Params    `db:"params" json:"params"`
	DatePosted  *time.Time `db:"date_posted" json:"date_posted"`
	IsActive    bool       `db:"is_active" json:"is_active"`
}

// Image is a photo attached to an advertisement.
type Image struct {
	AdvtID     string    `db:"advt_id" json:"advt_id"`
	URL        string    `db:"url" json:"url"`
	DateUpdate time.Time `db:"date_update" json:"date_update"`
}

// PhoneNumber is a contact phone attached to an advertisement.
type PhoneNumber struct {
	AdvtID     string    `db:"advt_id" json:"advt_id"`
	Phone      int64     `db:"phone" json:"phone"`
	IsFake     bool      `db:"is_fake" json:"is_fake"`
	DateUpdate time.Time `db:"date_update" json:"date_update"`
}

// AdvertisementID returns the identity of the advertisement at rawURL:
// the hex SHA-1 digest of the URL.
func AdvertisementID(rawURL string) string {
	sum := sha1.Sum([]byte(rawURL)) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])
}
