// Package web renders the read-only comparison and history pages.
package web

import (
	"embed"
	"html/template"
	"io"
	"strconv"
	"time"

	"github.com/dmorales/panaldealz/pkg/consolidate"
	"github.com/dmorales/panaldealz/pkg/store"
)

//go:embed templates
var templatesFs embed.FS

var funcs = template.FuncMap{
	"clp": FormatCLP,
	"ppu": func(v *float64) string {
		if v == nil {
			return "—"
		}
		return "$" + strconv.FormatFloat(*v, 'f', 1, 64) + "/u"
	},
	"date": func(t time.Time) string { return t.Format("2006-01-02") },
}

type BaseContext struct {
	GeneratedAt time.Time
}

func (c BaseContext) FormattedGeneratedAt() string {
	loc, err := time.LoadLocation("America/Santiago")
	if err != nil {
		loc = time.UTC
	}
	return c.GeneratedAt.In(loc).Format("2006-01-02 15:04 MST")
}

// ComparisonContext backs the main comparison table.
type ComparisonContext struct {
	BaseContext
	Title         string
	Brands        []string
	Sizes         []string
	Stores        []string
	SelectedBrand string
	SelectedSize  string
	SelectedStore string
	Rows          []consolidate.Record
}

// HistoryContext backs one product's price history page.
type HistoryContext struct {
	BaseContext
	Product      store.Product
	StoreNames   map[int64]string
	Observations []store.Observation
}

// StoreName resolves a store id for the template.
func (c HistoryContext) StoreName(id int64) string {
	if name, ok := c.StoreNames[id]; ok {
		return name
	}
	return "?"
}

func RenderComparison(w io.Writer, c ComparisonContext) error {
	t, err := template.New("compare.html.tpl").Funcs(funcs).
		ParseFS(templatesFs, "templates/compare.html.tpl")
	if err != nil {
		return err
	}
	return t.Execute(w, c)
}

func RenderHistory(w io.Writer, c HistoryContext) error {
	t, err := template.New("history.html.tpl").Funcs(funcs).
		ParseFS(templatesFs, "templates/history.html.tpl")
	if err != nil {
		return err
	}
	return t.Execute(w, c)
}

// FormatCLP formats whole pesos with dot thousands separators, the way
// Chilean storefronts print prices.
func FormatCLP(v int64) string {
	s := strconv.FormatInt(v, 10)
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	out := ""
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out += "."
		}
		out += string(r)
	}
	if neg {
		return "-$" + out
	}
	return "$" + out
}
