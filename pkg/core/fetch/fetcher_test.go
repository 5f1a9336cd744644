package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"twstock_analyzer/pkg/core/schema"
	"twstock_analyzer/pkg/core/store"
)

func jsonHandler(payload string, hits *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payload))
	}
}

const valuationPayload = `[
	{"Code": "2330", "Name": "台積電", "PEratio": "25.3", "DividendYield": "1.45", "PBratio": "6.2"},
	{"Code": "2317", "Name": "鴻海", "PEratio": "12.1", "DividendYield": "4.1", "PBratio": "1.3"}
]`

const pricePayload = `[
	{"Code": 2330, "Name": "台積電", "ClosingPrice": "1,080.00", "MonthlyAveragePrice": "1,055.50"}
]`

func newTestFetcher(t *testing.T, sources []SourceConfig, cache *store.FetchCache) *Fetcher {
	t.Helper()
	return New(sources, 5*time.Second, 100, cache)
}

func TestFetchFiltersToRequestedStock(t *testing.T) {
	valuation := httptest.NewServer(jsonHandler(valuationPayload, nil))
	defer valuation.Close()

	f := newTestFetcher(t, []SourceConfig{{Key: "roe", URL: valuation.URL}}, nil)

	results := f.Fetch(context.Background(), "2330")
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	tbl := results[0].Table
	if tbl.Len() != 1 {
		t.Fatalf("rows = %d, want only the 2330 row", tbl.Len())
	}
	if got := tbl.Rows[0][schema.FieldStockID]; got != "2330" {
		t.Errorf("stock_id = %v", got)
	}
	// Columns arrive normalized.
	if !tbl.HasColumn(schema.FieldPERatio) {
		t.Errorf("columns not normalized: %v", tbl.Columns)
	}
}

func TestFetchNumericCodeMatchesStringQuery(t *testing.T) {
	price := httptest.NewServer(jsonHandler(pricePayload, nil))
	defer price.Close()

	f := newTestFetcher(t, []SourceConfig{{Key: "stock_price", URL: price.URL}}, nil)

	results := f.Fetch(context.Background(), "2330")
	if len(results) != 1 || results[0].Table.Len() != 1 {
		t.Fatalf("numeric code 2330 did not match string query: %v", results)
	}
}

func TestFetchToleratesPartialSourceFailure(t *testing.T) {
	valuation := httptest.NewServer(jsonHandler(valuationPayload, nil))
	defer valuation.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer broken.Close()
	malformed := httptest.NewServer(jsonHandler(`{"stat":"OK"}`, nil))
	defer malformed.Close()

	f := newTestFetcher(t, []SourceConfig{
		{Key: "roe", URL: valuation.URL},
		{Key: "stock_price", URL: broken.URL},
		{Key: "finance", URL: malformed.URL},
	}, nil)

	results := f.Fetch(context.Background(), "2330")
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1 surviving source", len(results))
	}
	if results[0].Key != "roe" {
		t.Errorf("surviving source = %q, want roe", results[0].Key)
	}
}

func TestFetchAllSourcesFailingYieldsEmptyResult(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer broken.Close()

	f := newTestFetcher(t, []SourceConfig{
		{Key: "roe", URL: broken.URL},
		{Key: "stock_price", URL: broken.URL},
		{Key: "finance", URL: broken.URL},
	}, nil)

	// Must not panic; an empty slice downstream means "not found".
	if results := f.Fetch(context.Background(), "2330"); len(results) != 0 {
		t.Fatalf("results = %v, want none", results)
	}
}

func TestFetchPreservesConfigurationOrder(t *testing.T) {
	valuation := httptest.NewServer(jsonHandler(valuationPayload, nil))
	defer valuation.Close()
	price := httptest.NewServer(jsonHandler(pricePayload, nil))
	defer price.Close()

	f := newTestFetcher(t, []SourceConfig{
		{Key: "roe", URL: valuation.URL},
		{Key: "stock_price", URL: price.URL},
	}, nil)

	results := f.Fetch(context.Background(), "2330")
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Key != "roe" || results[1].Key != "stock_price" {
		t.Errorf("order = [%s %s], want configuration order", results[0].Key, results[1].Key)
	}
}

func TestFetchServesSecondCallFromCache(t *testing.T) {
	var hits int32
	valuation := httptest.NewServer(jsonHandler(valuationPayload, &hits))
	defer valuation.Close()

	cache := store.NewFetchCache(time.Hour)
	f := newTestFetcher(t, []SourceConfig{{Key: "roe", URL: valuation.URL}}, cache)

	first := f.Fetch(context.Background(), "2330")
	second := f.Fetch(context.Background(), "2330")

	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("upstream hits = %d, want 1 (second call cached)", hits)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("results differ: %d vs %d", len(first), len(second))
	}
}

func TestFetchDropsSourcesWithoutMatchingRows(t *testing.T) {
	valuation := httptest.NewServer(jsonHandler(valuationPayload, nil))
	defer valuation.Close()

	f := newTestFetcher(t, []SourceConfig{{Key: "roe", URL: valuation.URL}}, nil)

	if results := f.Fetch(context.Background(), "9999"); len(results) != 0 {
		t.Fatalf("results = %v, want none for unknown id", results)
	}
}
