// Package scraper implements the storefront extractors. Each storefront
// gets one fixed, hand-written extraction strategy registered under a
// stable name; there is no generic rule engine.
package scraper

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// Defaults applied when Config fields are left zero.
const (
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	defaultTimeout  = 15 * time.Second
	defaultMaxPages = 20
)

var (
	// ErrFetch marks network/HTTP failures.
	ErrFetch = errors.New("fetch failed")
	// ErrParse marks unexpected markup shape.
	ErrParse = errors.New("parse failed")
)

// Config is the static configuration shared by all extractors. BaseURL
// overrides the storefront's default listing URL (tests point it at a
// fixture server).
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	Delay     time.Duration
	MaxPages  int
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Delay < 0 {
		c.Delay = 0
	}
	if c.MaxPages <= 0 {
		c.MaxPages = defaultMaxPages
	}
	return c
}

// newCollector builds a collector the way every extractor here uses it:
// browser-like user agent, bounded request timeout, fixed delay between
// requests to the same host.
func newCollector(cfg Config) *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
	)
	c.SetRequestTimeout(cfg.Timeout)
	c.Limit(&colly.LimitRule{
		DomainGlob: "*",
		Delay:      cfg.Delay,
	})
	return c
}

type factory func(cfg Config, logger *zap.Logger) Extractor

var registry = map[string]factory{}

func register(name string, f factory) {
	registry[name] = f
}

// New builds the named extractor.
func New(name string, cfg Config, logger *zap.Logger) (Extractor, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown extractor %q", name)
	}
	return f(cfg.withDefaults(), logger), nil
}

// Names lists the registered extractor names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// finish applies the shared end-of-extraction error policy: partial
// results are a success, and only a run that gathered nothing reports
// an error. Page failures outrank card failures; every card being
// skipped on pages that fetched fine means the markup shape changed.
func finish(records []RawRecord, pageErrs, cardErrs int) ([]RawRecord, error) {
	if len(records) == 0 && pageErrs > 0 {
		return nil, fmt.Errorf("%w: all %d page(s) failed", ErrFetch, pageErrs)
	}
	if len(records) == 0 && cardErrs > 0 {
		return nil, fmt.Errorf("%w: all %d card(s) unusable", ErrParse, cardErrs)
	}
	return records, nil
}
