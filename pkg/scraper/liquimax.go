package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// Liquimax runs on the Bootic platform. Diapers live under a single
// collection with numbered-path pagination:
//
//	/collections/panales, /collections/panales/2, /collections/panales/3, ...
//
// Each product is a .product-with-dynamic-price card; pagination links
// sit in a nav.pagination element whose highest numeric link is the
// last page.
const liquimaxListingURL = "https://www.liquimax.cl/collections/panales"

func init() {
	register("liquimax", func(cfg Config, logger *zap.Logger) Extractor {
		if cfg.BaseURL == "" {
			cfg.BaseURL = liquimaxListingURL
		}
		return &liquimaxExtractor{cfg: cfg, logger: logger.Named("liquimax")}
	})
}

type liquimaxExtractor struct {
	cfg    Config
	logger *zap.Logger
}

func (x *liquimaxExtractor) Name() string { return "liquimax" }

func (x *liquimaxExtractor) Store() StoreInfo {
	return StoreInfo{Name: "Liquimax", BaseURL: siteRoot(x.cfg.BaseURL)}
}

func (x *liquimaxExtractor) Extract(ctx context.Context) ([]RawRecord, error) {
	var (
		records  []RawRecord
		pageErrs int
		cardErrs int
		maxPage  = 1
	)

	c := newCollector(x.cfg)

	c.OnHTML("nav.pagination, ul.pagination, .pagination", func(e *colly.HTMLElement) {
		e.DOM.Find("a").Each(func(_ int, a *goquery.Selection) {
			if n, err := strconv.Atoi(strings.TrimSpace(a.Text())); err == nil && n > maxPage {
				maxPage = n
			}
		})
	})

	c.OnHTML(".product-with-dynamic-price, .product-item, .product-card", func(e *colly.HTMLElement) {
		name := e.ChildAttr("h2 a, h3 a, .product-title a", "title")
		if name == "" {
			name = e.ChildText("h2 a, h3 a, .product-title a")
		}
		if name == "" {
			name = e.ChildText(`a[href*="/products/"]`)
		}
		name = strings.TrimSpace(name)
		if len(name) < 3 {
			cardErrs++
			x.logger.Warn("product card without usable name, skipped",
				zap.String("page", e.Request.URL.String()))
			return
		}

		href := e.ChildAttr(`a[href*="/products/"]`, "href")
		if href == "" {
			cardErrs++
			x.logger.Warn("product card without link, skipped",
				zap.String("page", e.Request.URL.String()), zap.String("name", name))
			return
		}
		img := e.ChildAttr("img", "src")
		if img == "" {
			img = e.ChildAttr("img", "data-src")
		}
		if img != "" {
			img = e.Request.AbsoluteURL(img)
		}

		records = append(records, RawRecord{
			Name:      name,
			PriceText: firstChildText(e, ".price", ".product-price", ".current-price", "span.money"),
			URL:       e.Request.AbsoluteURL(href),
			ImageURL:  img,
			RawBrand:  strings.TrimSpace(e.ChildText(".product-vendor, .vendor, .brand")),
			Store:     x.Store(),
		})
	})

	c.OnError(func(r *colly.Response, err error) {
		x.logger.Warn("page fetch failed",
			zap.String("url", r.Request.URL.String()),
			zap.Int("status", r.StatusCode),
			zap.Error(err))
	})

	x.logger.Info("extracting", zap.String("url", x.cfg.BaseURL))
	if err := c.Visit(x.cfg.BaseURL); err != nil {
		pageErrs++
		return finish(records, pageErrs, cardErrs)
	}

	base := strings.TrimRight(x.cfg.BaseURL, "/")
	for page := 2; page <= maxPage && page <= x.cfg.MaxPages; page++ {
		if ctx.Err() != nil {
			break
		}
		before := len(records)
		if err := c.Visit(fmt.Sprintf("%s/%d", base, page)); err != nil {
			pageErrs++
			continue
		}
		if len(records) == before {
			// empty page, end of the collection
			break
		}
	}

	x.logger.Info("extraction finished",
		zap.Int("records", len(records)),
		zap.Int("failed_pages", pageErrs), zap.Int("skipped_cards", cardErrs))
	return finish(records, pageErrs, cardErrs)
}

// firstChildText returns the text of the first selector that matches
// with non-empty content.
func firstChildText(e *colly.HTMLElement, selectors ...string) string {
	for _, sel := range selectors {
		if t := strings.TrimSpace(e.ChildText(sel)); t != "" {
			return t
		}
	}
	return ""
}

// siteRoot reduces a listing URL to its scheme://host origin.
func siteRoot(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host
}
