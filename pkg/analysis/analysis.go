// Package analysis turns the latest observations into a plain-text
// price report: per-store statistics, a best-store ranking, the top
// offers by price-per-unit and a brand comparison across stores.
package analysis

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dmorales/panaldealz/pkg/store"
	"github.com/dmorales/panaldealz/pkg/web"
)

const reportWidth = 70

// Listings mix diapers with other baby and hygiene products (Pepito in
// particular carries wipes, sanitary towels and toiletries under the
// same categories). Products whose name contains one of these terms are
// excluded from the report.
var exclusionTerms = []string{
	"toalla higienica",
	"toalla higiénica",
	"toalla humeda",
	"toalla húmeda",
	"aposito",
	"apósito",
	"protector diario",
	"shampoo",
	"acondicionador",
	"jabon",
	"jabón",
	"crema",
	"colonia",
	"mamadera",
	"chupete",
	"biberón",
	"biberon",
}

// IsDiaper reports whether a product name looks like a diaper rather
// than one of the adjacent categories storefront listings mix in.
func IsDiaper(name string) bool {
	lower := strings.ToLower(name)
	for _, term := range exclusionTerms {
		if strings.Contains(lower, term) {
			return false
		}
	}
	return true
}

// Filter drops non-diaper products and reports how many were excluded.
func Filter(latest []store.LatestPrice) ([]store.LatestPrice, int) {
	kept := make([]store.LatestPrice, 0, len(latest))
	for _, lp := range latest {
		if IsDiaper(lp.Product.Name) {
			kept = append(kept, lp)
		}
	}
	return kept, len(latest) - len(kept)
}

// Report renders the full text report over the latest observation per
// product and store.
func Report(generatedAt time.Time, latest []store.LatestPrice) string {
	var b strings.Builder

	rule := strings.Repeat("*", reportWidth)
	fmt.Fprintf(&b, "%s\n", rule)
	fmt.Fprintf(&b, "  COMPARADOR DE PAÑALES CHILE\n")
	fmt.Fprintf(&b, "  Reporte de análisis de precios\n")
	fmt.Fprintf(&b, "  Generado el: %s\n", generatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "%s\n", rule)

	byStore := groupByStore(latest)
	stores := sortedStores(byStore)

	writeSummary(&b, latest, byStore, stores)
	writeAverages(&b, byStore, stores)
	writeCheapestPerStore(&b, byStore, stores)
	writeBestStore(&b, byStore, stores)
	writeTopOffers(&b, latest, 10)
	writeBrandComparison(&b, latest, stores)

	fmt.Fprintf(&b, "\n%s\n", strings.Repeat("-", reportWidth))
	fmt.Fprintf(&b, "  Fin del reporte.\n")
	return b.String()
}

// Save writes the report into dir as reporte.txt and returns its path.
func Save(dir, report string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating report dir: %w", err)
	}
	path := filepath.Join(dir, "reporte.txt")
	if err := os.WriteFile(path, []byte(report), 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}

func groupByStore(latest []store.LatestPrice) map[string][]store.LatestPrice {
	byStore := map[string][]store.LatestPrice{}
	for _, lp := range latest {
		byStore[lp.StoreName] = append(byStore[lp.StoreName], lp)
	}
	return byStore
}

func sortedStores(byStore map[string][]store.LatestPrice) []string {
	names := make([]string, 0, len(byStore))
	for name := range byStore {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func section(b *strings.Builder, title string) {
	rule := strings.Repeat("=", reportWidth)
	fmt.Fprintf(b, "\n%s\n  %s\n%s\n", rule, title, rule)
}

func writeSummary(b *strings.Builder, latest []store.LatestPrice, byStore map[string][]store.LatestPrice, stores []string) {
	section(b, "RESUMEN GENERAL")
	fmt.Fprintf(b, "\n  Total de productos analizados: %d\n\n", len(latest))
	for _, name := range stores {
		fmt.Fprintf(b, "  - %s: %d productos\n", name, len(byStore[name]))
	}
	if len(latest) > 0 {
		newest := latest[0].ObservedAt
		for _, lp := range latest {
			if lp.ObservedAt.After(newest) {
				newest = lp.ObservedAt
			}
		}
		fmt.Fprintf(b, "\n  Datos observados el: %s\n", newest.Format("2006-01-02"))
	}
}

func writeAverages(b *strings.Builder, byStore map[string][]store.LatestPrice, stores []string) {
	section(b, "PRECIO PROMEDIO POR TIENDA")
	for _, name := range stores {
		prices := byStore[name]
		var sum, minP, maxP int64
		for i, lp := range prices {
			sum += lp.Price
			if i == 0 || lp.Price < minP {
				minP = lp.Price
			}
			if lp.Price > maxP {
				maxP = lp.Price
			}
		}
		if len(prices) == 0 {
			continue
		}
		fmt.Fprintf(b, "\n  %s:\n", name)
		fmt.Fprintf(b, "    Precio promedio: %s\n", web.FormatCLP(sum/int64(len(prices))))
		fmt.Fprintf(b, "    Precio mínimo:   %s\n", web.FormatCLP(minP))
		fmt.Fprintf(b, "    Precio máximo:   %s\n", web.FormatCLP(maxP))

		if avg, n := averagePerUnit(prices); n > 0 {
			fmt.Fprintf(b, "    Promedio por pañal: %s/u (%d de %d productos con dato)\n",
				formatPerUnit(avg), n, len(prices))
		}
	}
}

func averagePerUnit(prices []store.LatestPrice) (float64, int) {
	var sum float64
	n := 0
	for _, lp := range prices {
		if lp.PricePerUnit != nil {
			sum += *lp.PricePerUnit
			n++
		}
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

func writeCheapestPerStore(b *strings.Builder, byStore map[string][]store.LatestPrice, stores []string) {
	section(b, "PRODUCTO MÁS BARATO EN CADA TIENDA")
	for _, name := range stores {
		prices := byStore[name]
		if len(prices) == 0 {
			continue
		}

		cheapest := prices[0]
		for _, lp := range prices {
			if lp.Price < cheapest.Price {
				cheapest = lp
			}
		}
		fmt.Fprintf(b, "\n  %s:\n", name)
		fmt.Fprintf(b, "    Más barato por precio total: %s (%s)\n",
			cheapest.Product.Name, web.FormatCLP(cheapest.Price))

		var best *store.LatestPrice
		for i := range prices {
			lp := prices[i]
			if lp.PricePerUnit == nil {
				continue
			}
			if best == nil || *lp.PricePerUnit < *best.PricePerUnit {
				best = &prices[i]
			}
		}
		if best != nil {
			fmt.Fprintf(b, "    Más barato por unidad: %s (%s/u)\n",
				best.Product.Name, formatPerUnit(*best.PricePerUnit))
		}
	}
}

// writeBestStore ranks stores by average price-per-unit, the only
// comparison that is fair across pack sizes.
func writeBestStore(b *strings.Builder, byStore map[string][]store.LatestPrice, stores []string) {
	section(b, "TIENDA CON MEJORES PRECIOS EN GENERAL")

	type ranked struct {
		name string
		avg  float64
	}
	var ranking []ranked
	for _, name := range stores {
		if avg, n := averagePerUnit(byStore[name]); n > 0 {
			ranking = append(ranking, ranked{name: name, avg: avg})
		}
	}
	if len(ranking) < 2 {
		fmt.Fprintf(b, "\n  No hay suficientes datos para comparar tiendas.\n")
		return
	}
	sort.Slice(ranking, func(i, j int) bool { return ranking[i].avg < ranking[j].avg })

	fmt.Fprintf(b, "\n  Precio promedio por pañal individual:\n\n")
	for i, r := range ranking {
		marker := ""
		if i == 0 {
			marker = "  <-- más barata"
		}
		fmt.Fprintf(b, "    %d. %s: %s/u%s\n", i+1, r.name, formatPerUnit(r.avg), marker)
	}

	diff := ranking[1].avg - ranking[0].avg
	pct := diff / ranking[1].avg * 100
	fmt.Fprintf(b, "\n  Conclusión: %s es en promedio %s más barata por pañal\n",
		ranking[0].name, formatPerUnit(diff))
	fmt.Fprintf(b, "  (%.1f%% menos) que %s.\n", pct, ranking[1].name)
}

func writeTopOffers(b *strings.Builder, latest []store.LatestPrice, n int) {
	section(b, fmt.Sprintf("TOP %d MEJORES OFERTAS", n))
	fmt.Fprintf(b, "\n  Ordenado por precio por pañal; sólo productos con cantidad conocida.\n\n")

	var offers []store.LatestPrice
	for _, lp := range latest {
		if lp.PricePerUnit != nil {
			offers = append(offers, lp)
		}
	}
	sort.Slice(offers, func(i, j int) bool {
		if *offers[i].PricePerUnit != *offers[j].PricePerUnit {
			return *offers[i].PricePerUnit < *offers[j].PricePerUnit
		}
		return offers[i].Product.Name < offers[j].Product.Name
	})
	if len(offers) > n {
		offers = offers[:n]
	}

	for i, lp := range offers {
		fmt.Fprintf(b, "  %2d. %s\n", i+1, lp.Product.Name)
		fmt.Fprintf(b, "      Tienda: %s  Precio: %s  Por pañal: %s/u\n",
			lp.StoreName, web.FormatCLP(lp.Price), formatPerUnit(*lp.PricePerUnit))
	}
}

func writeBrandComparison(b *strings.Builder, latest []store.LatestPrice, stores []string) {
	section(b, "COMPARACIÓN POR MARCA")
	fmt.Fprintf(b, "\n  Precio promedio por pañal, por marca y tienda.\n\n")

	type key struct{ brand, store string }
	perUnit := map[key][]float64{}
	brandSet := map[string]bool{}
	for _, lp := range latest {
		if lp.PricePerUnit == nil || lp.Product.Brand == "" || lp.Product.Brand == "unknown" {
			continue
		}
		k := key{lp.Product.Brand, lp.StoreName}
		perUnit[k] = append(perUnit[k], *lp.PricePerUnit)
		brandSet[lp.Product.Brand] = true
	}

	brands := make([]string, 0, len(brandSet))
	for brand := range brandSet {
		brands = append(brands, brand)
	}
	sort.Strings(brands)

	for _, brand := range brands {
		fmt.Fprintf(b, "  %s:\n", brand)
		for _, storeName := range stores {
			values := perUnit[key{brand, storeName}]
			if len(values) == 0 {
				fmt.Fprintf(b, "    %-25s no disponible\n", storeName)
				continue
			}
			var sum, minV float64
			for i, v := range values {
				sum += v
				if i == 0 || v < minV {
					minV = v
				}
			}
			fmt.Fprintf(b, "    %-25s promedio %s/u (mínimo %s/u, %d productos)\n",
				storeName, formatPerUnit(sum/float64(len(values))), formatPerUnit(minV), len(values))
		}
		fmt.Fprintf(b, "\n")
	}
}

func formatPerUnit(v float64) string {
	return "$" + strconv.FormatFloat(v, 'f', 1, 64)
}
