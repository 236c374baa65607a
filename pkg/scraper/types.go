package scraper

import "context"

// StoreInfo identifies the storefront a record came from.
type StoreInfo struct {
	Name    string
	BaseURL string
}

// RawRecord is a product candidate as found in listing markup, before
// normalization. PriceText and ListPriceText are verbatim page text;
// URL is always absolute.
type RawRecord struct {
	Name          string
	PriceText     string
	ListPriceText string
	URL           string
	ImageURL      string
	RawBrand      string // dedicated brand markup, if the platform has one
	RawSize       string // dedicated size/quantity markup, if any
	Store         StoreInfo
}

// Extractor fetches and parses one storefront's listings.
//
// Extract returns whatever records it gathered; a page-level fetch or
// parse failure degrades the result instead of aborting it. The error
// is non-nil only when the whole extraction produced nothing usable.
type Extractor interface {
	Name() string
	Store() StoreInfo
	Extract(ctx context.Context) ([]RawRecord, error)
}
