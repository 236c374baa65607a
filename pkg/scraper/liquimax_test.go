package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const liquimaxCard = `
<div class="product-with-dynamic-price">
  <h2><a href="%s" title="%s">%s</a></h2>
  <div class="price">%s</div>
  <img src="%s">
  <div class="product-vendor">%s</div>
</div>`

func liquimaxPage(pagination string, cards ...string) string {
	body := ""
	for _, c := range cards {
		body += c
	}
	return fmt.Sprintf(`<!DOCTYPE html><html><body>
<div class="collection">%s</div>
%s
</body></html>`, body, pagination)
}

func TestLiquimaxExtractPaginated(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/collections/panales", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, liquimaxPage(
			`<nav class="pagination"><span>1</span><a href="/collections/panales/2">2</a></nav>`,
			fmt.Sprintf(liquimaxCard, "/products/huggies-ultimate-xg-52",
				"Pañales Huggies Ultimate XG 52 Unidades", "Pañales Huggies Ultimate XG 52 Unidades",
				"$ 22.990", "/images/huggies.jpg", "Huggies"),
			fmt.Sprintf(liquimaxCard, "/products/babysec-g-80",
				"Pañal Babysec Premium G 80 un", "Pañal Babysec Premium G 80 un",
				"$ 15.990", "/images/babysec.jpg", "Babysec"),
		))
	})
	mux.HandleFunc("/collections/panales/2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, liquimaxPage("",
			fmt.Sprintf(liquimaxCard, "/products/tena-slip-m",
				"Tena Slip Talla M 20 unidades", "Tena Slip Talla M 20 unidades",
				"$ 12.990", "", "Tena"),
		))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ex, err := New("liquimax", Config{BaseURL: srv.URL + "/collections/panales"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "liquimax", ex.Name())
	assert.Equal(t, StoreInfo{Name: "Liquimax", BaseURL: srv.URL}, ex.Store())

	records, err := ex.Extract(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)

	first := records[0]
	assert.Equal(t, "Pañales Huggies Ultimate XG 52 Unidades", first.Name)
	assert.Equal(t, "$ 22.990", first.PriceText)
	assert.Equal(t, srv.URL+"/products/huggies-ultimate-xg-52", first.URL)
	assert.Equal(t, srv.URL+"/images/huggies.jpg", first.ImageURL)
	assert.Equal(t, "Huggies", first.RawBrand)
	assert.Equal(t, "Liquimax", first.Store.Name)

	assert.Equal(t, "Tena Slip Talla M 20 unidades", records[2].Name)
	assert.Empty(t, records[2].ImageURL)
}

func TestLiquimaxExtractToleratesFailedPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/collections/panales", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, liquimaxPage(
			`<nav class="pagination"><a href="/collections/panales/2">2</a></nav>`,
			fmt.Sprintf(liquimaxCard, "/products/huggies-ultimate-xg-52",
				"Pañales Huggies Ultimate XG 52 Unidades", "Pañales Huggies Ultimate XG 52 Unidades",
				"$ 22.990", "", "Huggies"),
		))
	})
	mux.HandleFunc("/collections/panales/2", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ex, err := New("liquimax", Config{BaseURL: srv.URL + "/collections/panales"}, zap.NewNop())
	require.NoError(t, err)

	// page 1 succeeded, so the failed page 2 is not an error
	records, err := ex.Extract(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Pañales Huggies Ultimate XG 52 Unidades", records[0].Name)
}

func TestLiquimaxExtractAllPagesFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ex, err := New("liquimax", Config{BaseURL: srv.URL + "/collections/panales"}, zap.NewNop())
	require.NoError(t, err)

	records, err := ex.Extract(context.Background())
	assert.ErrorIs(t, err, ErrFetch)
	assert.Empty(t, records)
}

func TestLiquimaxSkipsCardsWithoutNameOrLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, liquimaxPage("",
			`<div class="product-with-dynamic-price"><div class="price">$ 9.990</div></div>`,
			fmt.Sprintf(liquimaxCard, "/products/ok",
				"Pañal Cotidian Plenitud G", "Pañal Cotidian Plenitud G",
				"$ 9.990", "", ""),
		))
	}))
	defer srv.Close()

	ex, err := New("liquimax", Config{BaseURL: srv.URL + "/collections/panales"}, zap.NewNop())
	require.NoError(t, err)

	records, err := ex.Extract(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Pañal Cotidian Plenitud G", records[0].Name)
}

func TestLiquimaxAllCardsUnusableIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, liquimaxPage("",
			`<div class="product-with-dynamic-price"><div class="price">$ 9.990</div></div>`,
			`<div class="product-with-dynamic-price"><h2><a href="/pages/nosotros" title="Pañal sin enlace XG">Pañal sin enlace XG</a></h2></div>`,
		))
	}))
	defer srv.Close()

	ex, err := New("liquimax", Config{BaseURL: srv.URL + "/collections/panales"}, zap.NewNop())
	require.NoError(t, err)

	records, err := ex.Extract(context.Background())
	assert.ErrorIs(t, err, ErrParse)
	assert.Empty(t, records)
}

func TestNamesSorted(t *testing.T) {
	assert.Equal(t, []string{"liquimax", "pepito"}, Names())
}

func TestNewUnknownExtractor(t *testing.T) {
	_, err := New("amazon", Config{}, zap.NewNop())
	assert.ErrorContains(t, err, `unknown extractor "amazon"`)
}
