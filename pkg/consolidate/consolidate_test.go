package consolidate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmorales/panaldealz/pkg/normalize"
)

func ppu(v float64) *float64 { return &v }

func record(name, storeName, url string, price int64, perUnit *float64) normalize.Canonical {
	return normalize.Canonical{
		Name:         name,
		URL:          url,
		Price:        price,
		PricePerUnit: perUnit,
		StoreName:    storeName,
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "huggies ultimate xg 52",
		Key("Pañales Huggies Ultimate Talla XG 52 Unidades"))
	assert.Equal(t, "huggies ultimate xg 52",
		Key("PAÑAL Huggies  Ultimate XG, 52 un."))
	assert.Equal(t, "", Key(""))
}

func TestConsolidateFlagsMinimumPricePerUnit(t *testing.T) {
	records := []normalize.Canonical{
		record("Pañal Huggies XG 52 un", "Liquimax", "https://a/1", 22990, ppu(442.1)),
		record("Pañales Huggies XG 52 unidades", "Distribuidora Pepito", "https://b/1", 21990, ppu(422.9)),
		record("Pañal Babysec G", "Liquimax", "https://a/2", 9990, nil),
	}

	out := Consolidate(records)
	require.Len(t, out, 3)

	flagged := map[string]bool{}
	for _, r := range out {
		if r.BestPrice {
			flagged[r.URL] = true
		}
	}
	assert.Equal(t, map[string]bool{"https://b/1": true}, flagged)
}

func TestConsolidateTieBreaksByStoreName(t *testing.T) {
	records := []normalize.Canonical{
		record("Huggies XG 52 un", "Liquimax", "https://a/1", 21990, ppu(422.9)),
		record("Huggies XG 52 un", "Distribuidora Pepito", "https://b/1", 21990, ppu(422.9)),
	}

	out := Consolidate(records)
	require.Len(t, out, 2)
	// deterministic: "Distribuidora Pepito" < "Liquimax"
	assert.True(t, out[0].BestPrice)
	assert.Equal(t, "Distribuidora Pepito", out[0].StoreName)
	assert.False(t, out[1].BestPrice)
}

func TestConsolidateOrdersUnknownsLast(t *testing.T) {
	records := []normalize.Canonical{
		record("A", "S", "https://a/1", 1000, nil),
		record("B", "S", "https://a/2", 2000, ppu(500)),
		record("C", "S", "https://a/3", 3000, ppu(100)),
	}

	out := Consolidate(records)
	require.Len(t, out, 3)
	assert.Equal(t, "C", out[0].Name)
	assert.Equal(t, "B", out[1].Name)
	assert.Equal(t, "A", out[2].Name)
}

func TestConsolidateAllUnknownGroupGetsNoFlag(t *testing.T) {
	records := []normalize.Canonical{
		record("Pañal Misterioso", "Liquimax", "https://a/1", 1000, nil),
		record("Pañal Misterioso", "Distribuidora Pepito", "https://b/1", 900, nil),
	}

	for _, r := range Consolidate(records) {
		assert.False(t, r.BestPrice)
	}
}
