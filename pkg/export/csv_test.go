package export

import (
	"bytes"
	"encoding/csv"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmorales/panaldealz/pkg/consolidate"
	"github.com/dmorales/panaldealz/pkg/normalize"
)

var exportTime = time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

func sampleRecords() []consolidate.Record {
	ppu := 433.0
	listPrice := int64(15990)
	return []consolidate.Record{
		{
			Canonical: normalize.Canonical{
				Name:         "Pañales Huggies Ultimate XG 30 un",
				Brand:        "huggies",
				SizeLabel:    "XG",
				UnitCount:    30,
				URL:          "https://liquimax.example/products/huggies-30",
				Price:        12990,
				ListPrice:    &listPrice,
				PricePerUnit: &ppu,
				StoreName:    "Liquimax",
			},
			GroupKey:  "huggies ultimate xg 30",
			BestPrice: true,
		},
		{
			Canonical: normalize.Canonical{
				Name:      "Pañal Tena Slip M",
				Brand:     "tena",
				URL:       "https://pepito.example/p/tena-slip-m",
				Price:     9990,
				StoreName: "Distribuidora Pepito",
			},
			GroupKey: "tena slip m",
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, exportTime, sampleRecords()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{
		"name", "brand", "size_label", "unit_count", "price", "price_per_unit",
		"list_price", "url", "store", "observed_at", "best_price",
	}, rows[0])

	assert.Equal(t, []string{
		"Pañales Huggies Ultimate XG 30 un", "huggies", "XG", "30", "12990", "433.0",
		"15990", "https://liquimax.example/products/huggies-30", "Liquimax",
		"2026-08-28", "yes",
	}, rows[1])

	// unknown count and price-per-unit stay empty
	assert.Equal(t, []string{
		"Pañal Tena Slip M", "tena", "", "", "9990", "",
		"", "https://pepito.example/p/tena-slip-m", "Distribuidora Pepito",
		"2026-08-28", "",
	}, rows[2])
}

func TestWriteSnapshotOverwritesSameDate(t *testing.T) {
	dir := t.TempDir()

	path, err := WriteSnapshot(dir, exportTime, sampleRecords())
	require.NoError(t, err)
	assert.Contains(t, path, "precios-2026-08-28.csv")

	again, err := WriteSnapshot(dir, exportTime, sampleRecords()[:1])
	require.NoError(t, err)
	assert.Equal(t, path, again)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
