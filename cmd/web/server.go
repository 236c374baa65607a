package main

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dmorales/panaldealz/pkg/consolidate"
	"github.com/dmorales/panaldealz/pkg/normalize"
	"github.com/dmorales/panaldealz/pkg/store"
	"github.com/dmorales/panaldealz/pkg/web"
)

var requestCounter = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "panaldealz_http_requests_total",
		Help: "HTTP requests served, by route.",
	},
	[]string{"route"},
)

type server struct {
	store  store.Store
	logger *zap.Logger
}

func newServer(st store.Store, logger *zap.Logger) *server {
	return &server{store: st, logger: logger.Named("web")}
}

func (s *server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logging)

	r.HandleFunc("/", s.handleComparison).Methods(http.MethodGet)
	r.HandleFunc("/products/{id:[0-9]+}/history", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/products", s.handleAPIProducts).Methods(http.MethodGet)
	r.HandleFunc("/api/products/{id:[0-9]+}/history", s.handleAPIHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/cheapest", s.handleAPICheapest).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

func (s *server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		requestCounter.WithLabelValues(route).Inc()
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

// comparisonRows converts the latest observation per product-store into
// the consolidated comparison view, optionally filtered by brand/store.
func (s *server) comparisonRows(r *http.Request) ([]consolidate.Record, []store.LatestPrice, error) {
	latest, err := s.store.LatestPrices(r.Context())
	if err != nil {
		return nil, nil, err
	}

	var canonicals []normalize.Canonical
	for _, lp := range latest {
		canonicals = append(canonicals, latestToCanonical(lp))
	}
	rows := consolidate.Consolidate(canonicals)

	brand := r.URL.Query().Get("brand")
	size := r.URL.Query().Get("size")
	storeName := r.URL.Query().Get("store")
	if brand != "" || size != "" || storeName != "" {
		filtered := rows[:0]
		for _, row := range rows {
			if brand != "" && row.Brand != brand {
				continue
			}
			if size != "" && row.SizeLabel != size {
				continue
			}
			if storeName != "" && row.StoreName != storeName {
				continue
			}
			filtered = append(filtered, row)
		}
		rows = filtered
	}
	return rows, latest, nil
}

func latestToCanonical(lp store.LatestPrice) normalize.Canonical {
	c := normalize.Canonical{
		Name:         lp.Product.Name,
		Brand:        lp.Product.Brand,
		SizeLabel:    lp.Product.SizeLabel,
		URL:          lp.Product.URL,
		ImageURL:     lp.Product.ImageURL,
		Price:        lp.Price,
		ListPrice:    lp.ListPrice,
		PricePerUnit: lp.PricePerUnit,
		StoreName:    lp.StoreName,
	}
	// unit count is not stored; recover it for display from the
	// observation's derived price-per-unit
	if lp.PricePerUnit != nil && *lp.PricePerUnit > 0 {
		c.UnitCount = int(math.Round(float64(lp.Price) / *lp.PricePerUnit))
	}
	return c
}

func (s *server) handleComparison(w http.ResponseWriter, r *http.Request) {
	rows, latest, err := s.comparisonRows(r)
	if err != nil {
		s.internalError(w, err)
		return
	}

	brandSet := map[string]bool{}
	sizeSet := map[string]bool{}
	storeSet := map[string]bool{}
	for _, lp := range latest {
		brandSet[lp.Product.Brand] = true
		sizeSet[lp.Product.SizeLabel] = true
		storeSet[lp.StoreName] = true
	}

	ctx := web.ComparisonContext{
		BaseContext:   web.BaseContext{GeneratedAt: time.Now()},
		Title:         "Comparador de precios de pañales",
		Brands:        sortedKeys(brandSet),
		Sizes:         sortedKeys(sizeSet),
		Stores:        sortedKeys(storeSet),
		SelectedBrand: r.URL.Query().Get("brand"),
		SelectedSize:  r.URL.Query().Get("size"),
		SelectedStore: r.URL.Query().Get("store"),
		Rows:          rows,
	}
	if err := web.RenderComparison(w, ctx); err != nil {
		s.internalError(w, err)
	}
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	product, observations, names, err := s.productHistory(r, id)
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.internalError(w, err)
		return
	}

	ctx := web.HistoryContext{
		BaseContext:  web.BaseContext{GeneratedAt: time.Now()},
		Product:      *product,
		StoreNames:   names,
		Observations: observations,
	}
	if err := web.RenderHistory(w, ctx); err != nil {
		s.internalError(w, err)
	}
}

func (s *server) productHistory(r *http.Request, id int64) (*store.Product, []store.Observation, map[int64]string, error) {
	latest, err := s.store.LatestPrices(r.Context())
	if err != nil {
		return nil, nil, nil, err
	}

	var product *store.Product
	names := map[int64]string{}
	for _, lp := range latest {
		names[lp.StoreID] = lp.StoreName
		if lp.Product.ID == id {
			p := lp.Product
			product = &p
		}
	}
	if product == nil {
		return nil, nil, nil, store.ErrNotFound
	}

	observations, err := s.store.ProductHistory(r.Context(), id)
	if err != nil {
		return nil, nil, nil, err
	}
	return product, observations, names, nil
}

func (s *server) handleAPIProducts(w http.ResponseWriter, r *http.Request) {
	rows, _, err := s.comparisonRows(r)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, rows)
}

func (s *server) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	observations, err := s.store.ProductHistory(r.Context(), id)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, observations)
}

func (s *server) handleAPICheapest(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	cheapest, err := s.store.CheapestPerUnit(r.Context(), limit)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, cheapest)
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", zap.Error(err))
	}
}

func (s *server) internalError(w http.ResponseWriter, err error) {
	s.logger.Error("request failed", zap.Error(err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		if k != "" {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
