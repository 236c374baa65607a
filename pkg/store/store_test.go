package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dmorales/panaldealz/pkg/normalize"
)

var (
	day1 = time.Date(2026, 8, 27, 9, 30, 0, 0, time.UTC)
	day2 = time.Date(2026, 8, 28, 11, 0, 0, 0, time.UTC)
)

func canonical(name, storeName, url string, price int64, perUnit float64) normalize.Canonical {
	return normalize.Canonical{
		Name:         name,
		Brand:        "huggies",
		SizeLabel:    "XG",
		URL:          url,
		Price:        price,
		PricePerUnit: &perUnit,
		StoreName:    storeName,
		StoreBaseURL: "https://" + storeName + ".example",
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	st, err := Open(Config{Driver: DriverMemory}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, st)

	st, err = Open(Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, st)

	_, err = Open(Config{Driver: "sqlite"}, zap.NewNop())
	assert.ErrorContains(t, err, `unsupported store driver "sqlite"`)
}

func TestPersistIsIdempotentPerDay(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	recs := []normalize.Canonical{
		canonical("Huggies XG 52", "liquimax", "https://a/1", 22990, 442.1),
		canonical("Huggies XG 104", "liquimax", "https://a/2", 42990, 413.4),
	}

	summary, err := m.Persist(ctx, recs, day1)
	require.NoError(t, err)
	assert.Equal(t, PersistSummary{Inserted: 2}, summary)

	// same run day: nothing new
	summary, err = m.Persist(ctx, recs, day1.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, PersistSummary{Skipped: 2}, summary)

	// next day appends again
	summary, err = m.Persist(ctx, recs, day2)
	require.NoError(t, err)
	assert.Equal(t, PersistSummary{Inserted: 2}, summary)
}

func TestPersistUpsertsProductByURL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	first := canonical("Huggies XG 52", "liquimax", "https://a/1", 22990, 442.1)
	first.ImageURL = "https://a/img/1.jpg"
	_, err := m.Persist(ctx, []normalize.Canonical{first}, day1)
	require.NoError(t, err)

	renamed := canonical("Pañales Huggies Ultimate XG 52 un", "liquimax", "https://a/1", 21990, 422.9)
	_, err = m.Persist(ctx, []normalize.Canonical{renamed}, day2)
	require.NoError(t, err)

	p, err := m.ProductByURL(ctx, "https://a/1")
	require.NoError(t, err)
	assert.Equal(t, "Pañales Huggies Ultimate XG 52 un", p.Name)
	// an empty image on the later run keeps the one already stored
	assert.Equal(t, "https://a/img/1.jpg", p.ImageURL)

	history, err := m.ProductHistory(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].ObservedAt.Before(history[1].ObservedAt))
	assert.Equal(t, int64(22990), history[0].Price)
	assert.Equal(t, int64(21990), history[1].Price)
}

func TestProductByURLNotFound(t *testing.T) {
	m := NewMemory()
	_, err := m.ProductByURL(context.Background(), "https://nowhere")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLatestPricesReturnsNewestPerPair(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	rec := canonical("Huggies XG 52", "liquimax", "https://a/1", 22990, 442.1)
	_, err := m.Persist(ctx, []normalize.Canonical{rec}, day1)
	require.NoError(t, err)

	rec.Price = 19990
	*rec.PricePerUnit = 384.4
	_, err = m.Persist(ctx, []normalize.Canonical{rec}, day2)
	require.NoError(t, err)

	latest, err := m.LatestPrices(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, int64(19990), latest[0].Price)
	assert.Equal(t, Day(day2), latest[0].ObservedAt)
	assert.Equal(t, "liquimax", latest[0].StoreName)
}

func TestCheapestPerUnit(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	noUnit := canonical("Tena Slip", "liquimax", "https://a/3", 9990, 0)
	noUnit.PricePerUnit = nil
	recs := []normalize.Canonical{
		canonical("Huggies XG 52", "liquimax", "https://a/1", 22990, 442.1),
		canonical("Babysec G 80", "pepito", "https://b/1", 15990, 199.9),
		canonical("Pampers M 48", "pepito", "https://b/2", 14990, 312.3),
		noUnit,
	}
	_, err := m.Persist(ctx, recs, day1)
	require.NoError(t, err)

	cheapest, err := m.CheapestPerUnit(ctx, 2)
	require.NoError(t, err)
	require.Len(t, cheapest, 2)
	assert.Equal(t, "Babysec G 80", cheapest[0].Product.Name)
	assert.Equal(t, "Pampers M 48", cheapest[1].Product.Name)
}

func TestPreviousObservation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	rec := canonical("Huggies XG 52", "liquimax", "https://a/1", 22990, 442.1)
	_, err := m.Persist(ctx, []normalize.Canonical{rec}, day1)
	require.NoError(t, err)

	p, err := m.ProductByURL(ctx, "https://a/1")
	require.NoError(t, err)

	// no observation before the first day
	_, err = m.PreviousObservation(ctx, p.ID, 1, day1)
	assert.ErrorIs(t, err, ErrNotFound)

	rec.Price = 19990
	_, err = m.Persist(ctx, []normalize.Canonical{rec}, day2)
	require.NoError(t, err)

	prev, err := m.PreviousObservation(ctx, p.ID, 1, day2)
	require.NoError(t, err)
	assert.Equal(t, int64(22990), prev.Price)
	assert.Equal(t, Day(day1), prev.ObservedAt)
}

func TestPersistEachIsolatesFailedRecord(t *testing.T) {
	recs := []normalize.Canonical{
		canonical("Huggies XG 52", "liquimax", "https://a/1", 22990, 442.1),
		canonical("Babysec G 80", "liquimax", "https://a/2", 15990, 199.9),
		canonical("Pampers M 48", "liquimax", "https://a/3", 14990, 312.3),
	}

	var failedURLs []string
	summary := persistEach(recs,
		func(rec normalize.Canonical) (bool, error) {
			if rec.URL == "https://a/2" {
				return false, errors.New("deadlock detected")
			}
			return true, nil
		},
		func(rec normalize.Canonical, err error) {
			failedURLs = append(failedURLs, rec.URL)
		})

	// the failing record is counted, the rest still persist
	assert.Equal(t, PersistSummary{Inserted: 2, Failed: 1}, summary)
	assert.Equal(t, []string{"https://a/2"}, failedURLs)
}

func TestSQLDate(t *testing.T) {
	assert.Equal(t, "2026-08-28", sqlDate(Day(day2)))

	loc := time.FixedZone("CLT", -4*60*60)
	assert.Equal(t, "2026-08-27", sqlDate(Day(time.Date(2026, 8, 27, 23, 15, 0, 0, loc))))
}

func TestDayTruncatesToUTCDate(t *testing.T) {
	loc := time.FixedZone("CLT", -4*60*60)
	got := Day(time.Date(2026, 8, 27, 23, 15, 0, 0, loc))
	assert.Equal(t, time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC), got)
}
