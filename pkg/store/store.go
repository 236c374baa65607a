// Package store is the durable price-history store: stores, products
// and an append-only log of price observations. Products upsert by URL,
// stores by name; observations are written once per product, store and
// day and never mutated afterwards.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dmorales/panaldealz/pkg/normalize"
)

// Drivers accepted by Open.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// ErrNotFound is returned by lookups that matched nothing.
var ErrNotFound = errors.New("not found")

// StoreRow is one scraped storefront.
type StoreRow struct {
	ID      int64
	Name    string
	BaseURL string
}

// Product is one unique product, identified by its canonical URL.
type Product struct {
	ID        int64
	URL       string
	Name      string
	Brand     string
	SizeLabel string
	ImageURL  string
}

// Observation is one immutable price reading for a product at a store
// on a given date.
type Observation struct {
	ID           int64
	ProductID    int64
	StoreID      int64
	Price        int64
	PricePerUnit *float64
	ListPrice    *int64
	ObservedAt   time.Time
}

// LatestPrice is the newest observation for one product-store pair,
// joined with its product and store rows.
type LatestPrice struct {
	Product      Product
	StoreID      int64
	StoreName    string
	Price        int64
	PricePerUnit *float64
	ListPrice    *int64
	ObservedAt   time.Time
}

// PersistSummary reports what one Persist call did. Skipped counts
// observations that already existed for their (product, store, day).
type PersistSummary struct {
	Inserted int
	Skipped  int
	Failed   int
}

// Store is the history store contract. Persist resolves or creates the
// record's store and product, then appends one observation; each
// record's triplet is atomic, and a record that already has an
// observation for its (product, store, day) is skipped, so re-running
// Persist with the same run timestamp is a no-op.
type Store interface {
	Persist(ctx context.Context, records []normalize.Canonical, runTime time.Time) (PersistSummary, error)

	LatestPrices(ctx context.Context) ([]LatestPrice, error)
	CheapestPerUnit(ctx context.Context, limit int) ([]LatestPrice, error)
	ProductByURL(ctx context.Context, url string) (*Product, error)
	ProductHistory(ctx context.Context, productID int64) ([]Observation, error)
	PreviousObservation(ctx context.Context, productID, storeID int64, before time.Time) (*Observation, error)

	Close() error
}

// Config selects and configures a store implementation.
type Config struct {
	Driver string
	DSN    string
}

// Open builds the configured store implementation.
func Open(cfg Config, logger *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case DriverPostgres:
		return OpenPostgres(cfg.DSN, logger)
	case DriverMemory, "":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

// Day truncates a run timestamp to observation granularity (UTC date).
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// persistEach applies the per-record isolation policy shared by both
// implementations: a record whose triplet fails is counted and
// reported, and the remaining records still persist.
func persistEach(records []normalize.Canonical, write func(normalize.Canonical) (bool, error), failed func(normalize.Canonical, error)) PersistSummary {
	var summary PersistSummary
	for _, rec := range records {
		inserted, err := write(rec)
		if err != nil {
			summary.Failed++
			failed(rec, err)
			continue
		}
		if inserted {
			summary.Inserted++
		} else {
			summary.Skipped++
		}
	}
	return summary
}
