package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmorales/panaldealz/pkg/normalize"
)

// Memory is an in-memory Store with the same upsert and idempotence
// semantics as the Postgres implementation. It backs tests and local
// development runs without a database.
type Memory struct {
	mu           sync.Mutex
	stores       []StoreRow
	products     []Product
	observations []Observation
	nextID       int64
}

func NewMemory() *Memory {
	return &Memory{nextID: 1}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) id() int64 {
	id := m.nextID
	m.nextID++
	return id
}

func (m *Memory) Persist(_ context.Context, records []normalize.Canonical, runTime time.Time) (PersistSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := Day(runTime)
	summary := persistEach(records,
		func(rec normalize.Canonical) (bool, error) {
			storeID := m.getOrCreateStore(rec.StoreName, rec.StoreBaseURL)
			productID := m.upsertProduct(rec)

			if m.hasObservation(productID, storeID, day) {
				return false, nil
			}
			obs := Observation{
				ID:         m.id(),
				ProductID:  productID,
				StoreID:    storeID,
				Price:      rec.Price,
				ObservedAt: day,
			}
			if rec.PricePerUnit != nil {
				v := *rec.PricePerUnit
				obs.PricePerUnit = &v
			}
			if rec.ListPrice != nil {
				v := *rec.ListPrice
				obs.ListPrice = &v
			}
			m.observations = append(m.observations, obs)
			return true, nil
		},
		func(normalize.Canonical, error) {})
	return summary, nil
}

func (m *Memory) getOrCreateStore(name, baseURL string) int64 {
	for i := range m.stores {
		if m.stores[i].Name == name {
			m.stores[i].BaseURL = baseURL
			return m.stores[i].ID
		}
	}
	row := StoreRow{ID: m.id(), Name: name, BaseURL: baseURL}
	m.stores = append(m.stores, row)
	return row.ID
}

func (m *Memory) upsertProduct(rec normalize.Canonical) int64 {
	for i := range m.products {
		if m.products[i].URL == rec.URL {
			m.products[i].Name = rec.Name
			m.products[i].Brand = rec.Brand
			m.products[i].SizeLabel = rec.SizeLabel
			if rec.ImageURL != "" {
				m.products[i].ImageURL = rec.ImageURL
			}
			return m.products[i].ID
		}
	}
	p := Product{
		ID:        m.id(),
		URL:       rec.URL,
		Name:      rec.Name,
		Brand:     rec.Brand,
		SizeLabel: rec.SizeLabel,
		ImageURL:  rec.ImageURL,
	}
	m.products = append(m.products, p)
	return p.ID
}

func (m *Memory) hasObservation(productID, storeID int64, day time.Time) bool {
	for _, o := range m.observations {
		if o.ProductID == productID && o.StoreID == storeID && o.ObservedAt.Equal(day) {
			return true
		}
	}
	return false
}

func (m *Memory) LatestPrices(_ context.Context) ([]LatestPrice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latestLocked(), nil
}

func (m *Memory) latestLocked() []LatestPrice {
	type key struct{ product, store int64 }
	newest := map[key]Observation{}
	for _, o := range m.observations {
		k := key{o.ProductID, o.StoreID}
		if cur, ok := newest[k]; !ok || o.ObservedAt.After(cur.ObservedAt) {
			newest[k] = o
		}
	}

	var out []LatestPrice
	for _, o := range newest {
		lp := LatestPrice{
			StoreID:      o.StoreID,
			Price:        o.Price,
			PricePerUnit: o.PricePerUnit,
			ListPrice:    o.ListPrice,
			ObservedAt:   o.ObservedAt,
		}
		for _, p := range m.products {
			if p.ID == o.ProductID {
				lp.Product = p
			}
		}
		for _, s := range m.stores {
			if s.ID == o.StoreID {
				lp.StoreName = s.Name
			}
		}
		out = append(out, lp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Product.ID != out[j].Product.ID {
			return out[i].Product.ID < out[j].Product.ID
		}
		return out[i].StoreID < out[j].StoreID
	})
	return out
}

func (m *Memory) CheapestPerUnit(_ context.Context, limit int) ([]LatestPrice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []LatestPrice
	for _, lp := range m.latestLocked() {
		if lp.PricePerUnit != nil {
			out = append(out, lp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if *out[i].PricePerUnit != *out[j].PricePerUnit {
			return *out[i].PricePerUnit < *out[j].PricePerUnit
		}
		return out[i].Product.Name < out[j].Product.Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ProductByURL(_ context.Context, url string) (*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if p.URL == url {
			cp := p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ProductHistory(_ context.Context, productID int64) ([]Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Observation
	for _, o := range m.observations {
		if o.ProductID == productID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ObservedAt.Equal(out[j].ObservedAt) {
			return out[i].ObservedAt.Before(out[j].ObservedAt)
		}
		return out[i].StoreID < out[j].StoreID
	})
	return out, nil
}

func (m *Memory) PreviousObservation(_ context.Context, productID, storeID int64, before time.Time) (*Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := Day(before)
	var prev *Observation
	for i := range m.observations {
		o := m.observations[i]
		if o.ProductID != productID || o.StoreID != storeID || !o.ObservedAt.Before(day) {
			continue
		}
		if prev == nil || o.ObservedAt.After(prev.ObservedAt) {
			cp := o
			prev = &cp
		}
	}
	if prev == nil {
		return nil, ErrNotFound
	}
	return prev, nil
}
