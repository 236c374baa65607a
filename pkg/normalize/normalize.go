// Package normalize turns raw scraped records into canonical ones:
// parsed integer prices (CLP), brand and size extraction, unit counts
// and the derived price-per-unit used for cross-store comparison.
package normalize

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/dmorales/panaldealz/pkg/scraper"
)

// ErrBadPrice marks a record whose price text could not be parsed. Such
// records are dropped, never persisted.
var ErrBadPrice = errors.New("unparseable price")

// Canonical is a normalized, validated product-price entry. UnitCount
// is 0 when unknown; ListPrice and PricePerUnit are nil when absent.
type Canonical struct {
	Name         string
	Brand        string
	SizeLabel    string
	UnitCount    int
	URL          string
	ImageURL     string
	Price        int64
	ListPrice    *int64
	PricePerUnit *float64
	StoreName    string
	StoreBaseURL string
}

// knownBrands is the fixed vocabulary of diaper brands sold in Chile.
var knownBrands = []string{
	"Pampers",
	"Huggies",
	"Babysec",
	"Cotidian",
	"Goodnites",
	"Win",
	"Tutte",
	"Pequenin",
	"Tena",
	"Plenitud",
	"Ladysoft",
	"Aiwibi",
	"Emubaby",
	"Moltex",
	"Chelino",
	"Bambo",
}

var (
	nonDigitRegex  = regexp.MustCompile(`[^\d]`)
	unitCountRegex = regexp.MustCompile(`(?i)(\d+)\s*(?:unidades|unid|und|un\b|u\b)`)
	unitXRegex     = regexp.MustCompile(`(?i)x\s*(\d+)`)
	sizeTallaRegex = regexp.MustCompile(`(?i)\btalla\s+(rn|xxxg|xxg|xg|g|m|p)\b`)
	sizeTokenRegex = regexp.MustCompile(`(?i)\b(rn|xxxg|xxg|xg)\b`)
)

type Normalizer struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger.Named("normalize")}
}

// Normalize converts one raw record. A malformed price drops the record
// (nil, ErrBadPrice); every other missing attribute degrades to its
// unknown value instead of failing.
func (n *Normalizer) Normalize(r scraper.RawRecord) (*Canonical, error) {
	price, err := ParsePrice(r.PriceText)
	if err != nil {
		n.logger.Warn("dropping record with unparseable price",
			zap.String("name", r.Name),
			zap.String("price_text", r.PriceText),
			zap.String("store", r.Store.Name))
		return nil, err
	}

	brand := r.RawBrand
	if brand == "" {
		brand = Brand(r.Name)
	}

	count := UnitCount(r.RawSize)
	if count == 0 {
		count = UnitCount(r.Name)
	}

	c := &Canonical{
		Name:         strings.TrimSpace(r.Name),
		Brand:        brand,
		SizeLabel:    SizeLabel(r.Name),
		UnitCount:    count,
		URL:          r.URL,
		ImageURL:     r.ImageURL,
		Price:        price,
		PricePerUnit: PricePerUnit(price, count),
		StoreName:    r.Store.Name,
		StoreBaseURL: r.Store.BaseURL,
	}

	if lp, err := ParsePrice(r.ListPriceText); err == nil {
		c.ListPrice = &lp
	}
	return c, nil
}

// ParsePrice parses a Chilean price string like "$ 12.990" or
// "$14.990 CLP" into whole pesos (12990). Currency symbols and
// thousands separators are stripped.
func ParsePrice(text string) (int64, error) {
	digits := nonDigitRegex.ReplaceAllString(text, "")
	if digits == "" {
		return 0, ErrBadPrice
	}
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, ErrBadPrice
	}
	return v, nil
}

// Brand matches the known-brand vocabulary against a product name.
// Unmatched names get "unknown".
func Brand(name string) string {
	lower := strings.ToLower(name)
	for _, b := range knownBrands {
		if strings.Contains(lower, strings.ToLower(b)) {
			return b
		}
	}
	return "unknown"
}

// UnitCount extracts the number of diapers from text like
// "52 Unidades", "128u" or "XG x30". Returns 0 when absent.
func UnitCount(text string) int {
	if m := unitCountRegex.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n
		}
	}
	if m := unitXRegex.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

// SizeLabel extracts a diaper size token ("talla G", "XG", ...) from a
// product name. Single-letter sizes are only trusted after the word
// "talla"; bare G/M/P collide with too many ordinary words.
func SizeLabel(name string) string {
	if m := sizeTallaRegex.FindStringSubmatch(name); m != nil {
		return strings.ToUpper(m[1])
	}
	if m := sizeTokenRegex.FindStringSubmatch(name); m != nil {
		return strings.ToUpper(m[1])
	}
	return ""
}

// PricePerUnit derives price/count. Unknown, zero or negative counts
// yield nil, never a fabricated value.
func PricePerUnit(price int64, count int) *float64 {
	if count <= 0 {
		return nil
	}
	v := float64(price) / float64(count)
	return &v
}
