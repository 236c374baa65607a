// Package export writes the consolidated per-run view as a CSV
// artifact for the external view layer.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dmorales/panaldealz/pkg/consolidate"
)

var columns = []string{
	"name",
	"brand",
	"size_label",
	"unit_count",
	"price",
	"price_per_unit",
	"list_price",
	"url",
	"store",
	"observed_at",
	"best_price",
}

// WriteCSV writes the consolidated records with a header row. Unknown
// unit counts and absent prices stay empty, never fabricated.
func WriteCSV(w io.Writer, runTime time.Time, records []consolidate.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	date := runTime.Format("2006-01-02")
	for _, r := range records {
		row := []string{
			r.Name,
			r.Brand,
			r.SizeLabel,
			"",
			strconv.FormatInt(r.Price, 10),
			"",
			"",
			r.URL,
			r.StoreName,
			date,
			"",
		}
		if r.UnitCount > 0 {
			row[3] = strconv.Itoa(r.UnitCount)
		}
		if r.PricePerUnit != nil {
			row[5] = strconv.FormatFloat(*r.PricePerUnit, 'f', 1, 64)
		}
		if r.ListPrice != nil {
			row[6] = strconv.FormatInt(*r.ListPrice, 10)
		}
		if r.BestPrice {
			row[10] = "yes"
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteSnapshot writes one dated CSV file per run into dir and returns
// its path. A snapshot for the same date is overwritten; the durable
// history lives in the store, not here.
func WriteSnapshot(dir string, runTime time.Time, records []consolidate.Record) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating snapshot dir: %w", err)
	}

	path := filepath.Join(dir, "precios-"+runTime.Format("2006-01-02")+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating snapshot: %w", err)
	}
	defer f.Close()

	if err := WriteCSV(f, runTime, records); err != nil {
		return "", err
	}
	return path, nil
}
