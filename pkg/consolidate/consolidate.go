// Package consolidate merges the normalized records of one run into a
// single comparison view and flags the best price-per-unit within each
// group of comparable products.
package consolidate

import (
	"regexp"
	"sort"
	"strings"

	"github.com/dmorales/panaldealz/pkg/normalize"
)

// Record is a canonical record plus its comparability group and the
// best-price flag for the current run.
type Record struct {
	normalize.Canonical
	GroupKey  string
	BestPrice bool
}

// Comparable products are grouped by normalized name: lowercase with
// diaper stopwords and punctuation removed. Names vary slightly across
// stores, so the stopword list strips the filler words that differ.
var (
	stopwordRegexes = []*regexp.Regexp{
		regexp.MustCompile(`\bpa[ñn]al(es)?\b`),
		regexp.MustCompile(`\bbeb[eé]\b`),
		regexp.MustCompile(`\badulto\b`),
		regexp.MustCompile(`\bunidades\b`),
		regexp.MustCompile(`\bunid\b`),
		regexp.MustCompile(`\bund\b`),
		regexp.MustCompile(`\btalla\b`),
		regexp.MustCompile(`\bun\b`),
	}
	punctRegex  = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	spacesRegex = regexp.MustCompile(`\s+`)
)

// Key computes the comparability key for a product name.
func Key(name string) string {
	s := strings.ToLower(name)
	for _, re := range stopwordRegexes {
		s = re.ReplaceAllString(s, "")
	}
	s = punctRegex.ReplaceAllString(s, "")
	return strings.TrimSpace(spacesRegex.ReplaceAllString(s, " "))
}

// Consolidate groups records by comparability key, flags the record
// with the minimum non-nil price-per-unit in each group (groups where
// every record lacks a price-per-unit get no flag), and returns the
// records ordered ascending by price-per-unit with unknowns last.
// Order and flagging are deterministic across runs: ties break on store
// name, then URL.
func Consolidate(records []normalize.Canonical) []Record {
	out := make([]Record, 0, len(records))
	for _, c := range records {
		out = append(out, Record{Canonical: c, GroupKey: Key(c.Name)})
	}

	best := map[string]int{}
	for i, r := range out {
		if r.PricePerUnit == nil {
			continue
		}
		j, ok := best[r.GroupKey]
		if !ok || cheaper(r, out[j]) {
			best[r.GroupKey] = i
		}
	}
	for _, i := range best {
		out[i].BestPrice = true
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.PricePerUnit == nil && b.PricePerUnit == nil:
			return lessByStoreURL(a, b)
		case a.PricePerUnit == nil:
			return false
		case b.PricePerUnit == nil:
			return true
		case *a.PricePerUnit != *b.PricePerUnit:
			return *a.PricePerUnit < *b.PricePerUnit
		default:
			return lessByStoreURL(a, b)
		}
	})
	return out
}

func cheaper(a, b Record) bool {
	if *a.PricePerUnit != *b.PricePerUnit {
		return *a.PricePerUnit < *b.PricePerUnit
	}
	return lessByStoreURL(a, b)
}

func lessByStoreURL(a, b Record) bool {
	if a.StoreName != b.StoreName {
		return a.StoreName < b.StoreName
	}
	return a.URL < b.URL
}
