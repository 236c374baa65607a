package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dmorales/panaldealz/pkg/normalize"
	"github.com/dmorales/panaldealz/pkg/store"
)

var (
	alertDay1 = time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	alertDay2 = time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
)

func persistPrice(t *testing.T, st store.Store, price int64, day time.Time) {
	t.Helper()
	_, err := st.Persist(context.Background(), []normalize.Canonical{{
		Name:         "Pañales Huggies Ultimate XG 52 un",
		Brand:        "huggies",
		URL:          "https://liquimax.example/products/huggies-52",
		Price:        price,
		StoreName:    "Liquimax",
		StoreBaseURL: "https://liquimax.example",
	}}, day)
	require.NoError(t, err)
}

func TestCheckerDispatchesDropToFileSink(t *testing.T) {
	st := store.NewMemory()
	persistPrice(t, st, 22990, alertDay1)
	persistPrice(t, st, 17990, alertDay2) // -21.7%

	path := filepath.Join(t.TempDir(), "alerts.jsonl")
	d, err := NewDispatcher([]SinkConfig{{Type: "file", Path: path}}, zap.NewNop())
	require.NoError(t, err)

	n, err := NewChecker(st, d, 10, zap.NewNop()).Check(context.Background(), alertDay2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var a Alert
	require.NoError(t, json.Unmarshal(data, &a))
	assert.Equal(t, "Pañales Huggies Ultimate XG 52 un", a.Product)
	assert.Equal(t, "Liquimax", a.Store)
	assert.Equal(t, int64(22990), a.OldPrice)
	assert.Equal(t, int64(17990), a.NewPrice)
	assert.InDelta(t, 21.7, a.DropPercent, 0.1)
}

func TestCheckerIgnoresDropBelowThreshold(t *testing.T) {
	st := store.NewMemory()
	persistPrice(t, st, 22990, alertDay1)
	persistPrice(t, st, 21990, alertDay2) // -4.3%

	d, err := NewDispatcher(nil, zap.NewNop())
	require.NoError(t, err)

	n, err := NewChecker(st, d, 10, zap.NewNop()).Check(context.Background(), alertDay2)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCheckerSkipsFirstObservation(t *testing.T) {
	st := store.NewMemory()
	persistPrice(t, st, 22990, alertDay2)

	d, err := NewDispatcher(nil, zap.NewNop())
	require.NoError(t, err)

	n, err := NewChecker(st, d, 10, zap.NewNop()).Check(context.Background(), alertDay2)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCheckerIgnoresPriceIncrease(t *testing.T) {
	st := store.NewMemory()
	persistPrice(t, st, 17990, alertDay1)
	persistPrice(t, st, 22990, alertDay2)

	d, err := NewDispatcher(nil, zap.NewNop())
	require.NoError(t, err)

	n, err := NewChecker(st, d, 10, zap.NewNop()).Check(context.Background(), alertDay2)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWebhookSink(t *testing.T) {
	var received Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
	}))
	defer srv.Close()

	sink := NewWebhookSink(srv.URL)
	err := sink.Send(Alert{Product: "Huggies XG", OldPrice: 22990, NewPrice: 17990})
	require.NoError(t, err)
	assert.Equal(t, "Huggies XG", received.Product)
}

func TestWebhookSinkServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookSink(srv.URL).Send(Alert{Product: "Huggies XG"})
	assert.ErrorContains(t, err, "502")
}

func TestNewDispatcherValidatesSinkConfig(t *testing.T) {
	_, err := NewDispatcher([]SinkConfig{{Type: "file"}}, zap.NewNop())
	assert.ErrorContains(t, err, "file sink requires a path")

	_, err = NewDispatcher([]SinkConfig{{Type: "pager"}}, zap.NewNop())
	assert.ErrorContains(t, err, `unknown sink type "pager"`)
}
