package scraper

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// Distribuidora Pepito runs on Jumpseller. Baby and adult diapers are
// separate categories paginated with ?page=N:
//
//	/panales-bebe, /panales-bebe?page=2, ...
//	/para-el-adulto, ...
//
// Jumpseller markup per product:
//
//	article.product-block          card container
//	.product-block__name           name (inside the product link)
//	.product-block__brand          brand
//	.product-block__price--new     discounted price (when present)
//	.product-block__price          regular price
//	.product-block__price--old     pre-discount price
const pepitoBaseURL = "https://www.distribuidorapepito.cl"

var pepitoCategories = []string{"/panales-bebe", "/para-el-adulto"}

var pageParamRegex = regexp.MustCompile(`[?&]page=(\d+)`)

func init() {
	register("pepito", func(cfg Config, logger *zap.Logger) Extractor {
		if cfg.BaseURL == "" {
			cfg.BaseURL = pepitoBaseURL
		}
		return &pepitoExtractor{cfg: cfg, logger: logger.Named("pepito")}
	})
}

type pepitoExtractor struct {
	cfg    Config
	logger *zap.Logger
}

func (x *pepitoExtractor) Name() string { return "pepito" }

func (x *pepitoExtractor) Store() StoreInfo {
	return StoreInfo{Name: "Distribuidora Pepito", BaseURL: siteRoot(x.cfg.BaseURL)}
}

func (x *pepitoExtractor) Extract(ctx context.Context) ([]RawRecord, error) {
	var (
		records  []RawRecord
		pageErrs int
		cardErrs int
		maxPage  = 1
	)

	c := newCollector(x.cfg)

	c.OnHTML("body", func(e *colly.HTMLElement) {
		e.DOM.Find(`a[href*="page="]`).Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			m := pageParamRegex.FindStringSubmatch(href)
			if m == nil {
				return
			}
			if n, err := strconv.Atoi(m[1]); err == nil && n > maxPage {
				maxPage = n
			}
		})
	})

	c.OnHTML("article.product-block, .product-block", func(e *colly.HTMLElement) {
		name := strings.TrimSpace(e.ChildText(".product-block__name"))
		if len(name) < 3 {
			cardErrs++
			x.logger.Warn("product card without usable name, skipped",
				zap.String("page", e.Request.URL.String()))
			return
		}

		href := e.ChildAttr("a.product-block__anchor", "href")
		if href == "" {
			href = e.ChildAttr("a", "href")
		}
		if href == "" {
			cardErrs++
			x.logger.Warn("product card without link, skipped",
				zap.String("page", e.Request.URL.String()), zap.String("name", name))
			return
		}

		price := firstChildText(e, ".product-block__price--new", ".product-block__price")
		img := e.ChildAttr("img", "src")
		if img == "" {
			img = e.ChildAttr("img", "data-src")
		}
		if img != "" {
			img = e.Request.AbsoluteURL(img)
		}

		records = append(records, RawRecord{
			Name:          name,
			PriceText:     price,
			ListPriceText: strings.TrimSpace(e.ChildText(".product-block__price--old")),
			URL:           e.Request.AbsoluteURL(href),
			ImageURL:      img,
			RawBrand:      strings.TrimSpace(e.ChildText(".product-block__brand")),
			Store:         x.Store(),
		})
	})

	c.OnError(func(r *colly.Response, err error) {
		x.logger.Warn("page fetch failed",
			zap.String("url", r.Request.URL.String()),
			zap.Int("status", r.StatusCode),
			zap.Error(err))
	})

	base := strings.TrimRight(x.cfg.BaseURL, "/")
	for _, category := range pepitoCategories {
		if ctx.Err() != nil {
			break
		}
		first := base + category
		x.logger.Info("extracting category", zap.String("url", first))

		maxPage = 1
		if err := c.Visit(first); err != nil {
			pageErrs++
			continue
		}
		for page := 2; page <= maxPage && page <= x.cfg.MaxPages; page++ {
			if ctx.Err() != nil {
				break
			}
			before := len(records)
			if err := c.Visit(fmt.Sprintf("%s?page=%d", first, page)); err != nil {
				pageErrs++
				continue
			}
			if len(records) == before {
				break
			}
		}
	}

	x.logger.Info("extraction finished",
		zap.Int("records", len(records)),
		zap.Int("failed_pages", pageErrs), zap.Int("skipped_cards", cardErrs))
	return finish(records, pageErrs, cardErrs)
}
