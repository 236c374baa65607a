package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/dmorales/panaldealz/pkg/normalize"
)

const schema = `
CREATE TABLE IF NOT EXISTS stores (
    id SERIAL PRIMARY KEY,
    name TEXT UNIQUE NOT NULL,
    base_url TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS products (
    id SERIAL PRIMARY KEY,
    url TEXT UNIQUE NOT NULL,
    name TEXT NOT NULL,
    brand TEXT NOT NULL DEFAULT '',
    size_label TEXT NOT NULL DEFAULT '',
    image_url TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS price_observations (
    id SERIAL PRIMARY KEY,
    product_id INTEGER NOT NULL REFERENCES products(id),
    store_id INTEGER NOT NULL REFERENCES stores(id),
    price BIGINT NOT NULL,
    price_per_unit DOUBLE PRECISION,
    list_price BIGINT,
    observed_at DATE NOT NULL,
    UNIQUE (product_id, store_id, observed_at)
);

CREATE INDEX IF NOT EXISTS idx_observations_date
    ON price_observations(observed_at);
CREATE INDEX IF NOT EXISTS idx_observations_product
    ON price_observations(product_id);
`

// Postgres is the durable Store implementation.
type Postgres struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenPostgres connects, verifies the connection and bootstraps the
// schema. The ping is retried because the database is often still
// starting when a scheduled run fires.
func OpenPostgres(dsn string, logger *zap.Logger) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	err = retry.Do(
		db.Ping,
		retry.Attempts(5),
		retry.Delay(time.Second),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrapping schema: %w", err)
	}

	return &Postgres{db: db, logger: logger.Named("store")}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

// Persist writes each record as its own transaction so a failure rolls
// back exactly one store/product/observation triplet. The observation
// insert relies on the UNIQUE(product_id, store_id, observed_at) index:
// ON CONFLICT DO NOTHING makes re-persisting a run idempotent.
func (p *Postgres) Persist(ctx context.Context, records []normalize.Canonical, runTime time.Time) (PersistSummary, error) {
	day := Day(runTime)
	summary := persistEach(records,
		func(rec normalize.Canonical) (bool, error) {
			return p.persistOne(ctx, rec, day)
		},
		func(rec normalize.Canonical, err error) {
			p.logger.Warn("record skipped after storage error",
				zap.String("url", rec.URL), zap.Error(err))
		})
	return summary, nil
}

func (p *Postgres) persistOne(ctx context.Context, rec normalize.Canonical, day time.Time) (bool, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var storeID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO stores (name, base_url) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET base_url = EXCLUDED.base_url
		RETURNING id`,
		rec.StoreName, rec.StoreBaseURL).Scan(&storeID)
	if err != nil {
		return false, fmt.Errorf("resolving store: %w", err)
	}

	var productID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO products (url, name, brand, size_label, image_url)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (url) DO UPDATE SET
			name = EXCLUDED.name,
			brand = EXCLUDED.brand,
			size_label = EXCLUDED.size_label,
			image_url = CASE WHEN EXCLUDED.image_url <> '' THEN EXCLUDED.image_url ELSE products.image_url END
		RETURNING id`,
		rec.URL, rec.Name, rec.Brand, rec.SizeLabel, rec.ImageURL).Scan(&productID)
	if err != nil {
		return false, fmt.Errorf("upserting product: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO price_observations (product_id, store_id, price, price_per_unit, list_price, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (product_id, store_id, observed_at) DO NOTHING`,
		productID, storeID, rec.Price, nullFloat(rec.PricePerUnit), nullInt(rec.ListPrice), sqlDate(day))
	if err != nil {
		return false, fmt.Errorf("inserting observation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing: %w", err)
	}

	n, _ := res.RowsAffected()
	return n > 0, nil
}

const latestPricesQuery = `
	SELECT DISTINCT ON (o.product_id, o.store_id)
		p.id AS product_id, p.url, p.name, p.brand, p.size_label, p.image_url,
		s.id AS store_id, s.name AS store_name,
		o.price, o.price_per_unit, o.list_price, o.observed_at
	FROM price_observations o
	JOIN products p ON p.id = o.product_id
	JOIN stores s ON s.id = o.store_id
	ORDER BY o.product_id, o.store_id, o.observed_at DESC`

func (p *Postgres) LatestPrices(ctx context.Context) ([]LatestPrice, error) {
	rows, err := p.db.QueryContext(ctx, latestPricesQuery)
	if err != nil {
		return nil, fmt.Errorf("querying latest prices: %w", err)
	}
	defer rows.Close()
	return scanLatest(rows)
}

func (p *Postgres) CheapestPerUnit(ctx context.Context, limit int) ([]LatestPrice, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT * FROM (`+latestPricesQuery+`) latest
		WHERE price_per_unit IS NOT NULL
		ORDER BY price_per_unit ASC, name ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying cheapest per unit: %w", err)
	}
	defer rows.Close()
	return scanLatest(rows)
}

func (p *Postgres) ProductByURL(ctx context.Context, url string) (*Product, error) {
	var prod Product
	err := p.db.QueryRowContext(ctx, `
		SELECT id, url, name, brand, size_label, image_url
		FROM products WHERE url = $1`, url).
		Scan(&prod.ID, &prod.URL, &prod.Name, &prod.Brand, &prod.SizeLabel, &prod.ImageURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying product: %w", err)
	}
	return &prod, nil
}

// ProductHistory returns every observation for a product in ascending
// date order.
func (p *Postgres) ProductHistory(ctx context.Context, productID int64) ([]Observation, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, product_id, store_id, price, price_per_unit, list_price, observed_at
		FROM price_observations
		WHERE product_id = $1
		ORDER BY observed_at ASC, store_id ASC`, productID)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var obs []Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		obs = append(obs, o)
	}
	return obs, rows.Err()
}

func (p *Postgres) PreviousObservation(ctx context.Context, productID, storeID int64, before time.Time) (*Observation, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, product_id, store_id, price, price_per_unit, list_price, observed_at
		FROM price_observations
		WHERE product_id = $1 AND store_id = $2 AND observed_at < $3
		ORDER BY observed_at DESC
		LIMIT 1`, productID, storeID, sqlDate(Day(before)))

	var o Observation
	var ppu sql.NullFloat64
	var lp sql.NullInt64
	err := row.Scan(&o.ID, &o.ProductID, &o.StoreID, &o.Price, &ppu, &lp, &o.ObservedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying previous observation: %w", err)
	}
	o.PricePerUnit = floatPtr(ppu)
	o.ListPrice = intPtr(lp)
	return &o, nil
}

func scanLatest(rows *sql.Rows) ([]LatestPrice, error) {
	var out []LatestPrice
	for rows.Next() {
		var lp LatestPrice
		var ppu sql.NullFloat64
		var list sql.NullInt64
		err := rows.Scan(
			&lp.Product.ID, &lp.Product.URL, &lp.Product.Name,
			&lp.Product.Brand, &lp.Product.SizeLabel, &lp.Product.ImageURL,
			&lp.StoreID, &lp.StoreName,
			&lp.Price, &ppu, &list, &lp.ObservedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning latest price: %w", err)
		}
		lp.PricePerUnit = floatPtr(ppu)
		lp.ListPrice = intPtr(list)
		out = append(out, lp)
	}
	return out, rows.Err()
}

func scanObservation(rows *sql.Rows) (Observation, error) {
	var o Observation
	var ppu sql.NullFloat64
	var lp sql.NullInt64
	err := rows.Scan(&o.ID, &o.ProductID, &o.StoreID, &o.Price, &ppu, &lp, &o.ObservedAt)
	if err != nil {
		return o, fmt.Errorf("scanning observation: %w", err)
	}
	o.PricePerUnit = floatPtr(ppu)
	o.ListPrice = intPtr(lp)
	return o, nil
}

// sqlDate renders a day for DATE parameters. A time.Time would be sent
// as timestamptz and cast through the session time zone, shifting UTC
// midnight to the previous day on non-UTC servers.
func sqlDate(t time.Time) string {
	return t.Format("2006-01-02")
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}
