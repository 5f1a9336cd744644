// Package fetch retrieves the three TWSE open-data sources for one stock id.
// Each source fails independently: a dead endpoint costs its columns, never
// the whole request.
package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"twstock_analyzer/pkg/core/dataset"
	"twstock_analyzer/pkg/core/schema"
	"twstock_analyzer/pkg/core/store"
)

// SourceConfig names one upstream endpoint. Key identifies the source in
// logs and in join-column suffixes; configuration order fixes the
// first-source-wins tie-break downstream.
type SourceConfig struct {
	Key string `yaml:"key"`
	URL string `yaml:"url"`
}

// Fetcher fans out to the configured sources and caches the filtered result
// per stock id.
type Fetcher struct {
	client  *resty.Client
	limiter *rate.Limiter
	cache   *store.FetchCache
	sources []SourceConfig
	columns map[string]string
}

// New builds a fetcher. timeout bounds each source request; ratePerSecond
// throttles outbound calls across all sources.
func New(sources []SourceConfig, timeout time.Duration, ratePerSecond float64, cache *store.FetchCache) *Fetcher {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "twstock-analyzer/1.0")

	return &Fetcher{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		cache:   cache,
		sources: sources,
		columns: schema.MustColumnMap(),
	}
}

// Fetch returns, in configuration order, the sources that yielded at least
// one row for stockID. The three requests run concurrently; a failing or
// empty source is logged as a warning and skipped. Results are cached per
// stock id for the cache TTL, so a resubmission inside the window is served
// without another upstream round trip.
func (f *Fetcher) Fetch(ctx context.Context, stockID string) []dataset.SourceTable {
	if f.cache != nil {
		if cached, ok := f.cache.Get(stockID); ok {
			log.Debug().Str("stock_id", stockID).Msg("fetch cache hit")
			return cached
		}
	}

	tables := make([]*dataset.Table, len(f.sources))
	var wg sync.WaitGroup
	for i, src := range f.sources {
		wg.Add(1)
		go func(i int, src SourceConfig) {
			defer wg.Done()
			t, err := f.fetchSource(ctx, src, stockID)
			if err != nil {
				log.Warn().Err(err).
					Str("source", src.Key).
					Str("stock_id", stockID).
					Msg("source unavailable, continuing without it")
				return
			}
			tables[i] = t
		}(i, src)
	}
	wg.Wait()

	var results []dataset.SourceTable
	for i, src := range f.sources {
		if tables[i] == nil || tables[i].Len() == 0 {
			continue
		}
		results = append(results, dataset.SourceTable{Key: src.Key, Table: tables[i]})
	}

	if f.cache != nil {
		f.cache.Put(stockID, results)
	}
	return results
}

// fetchSource downloads one source, normalizes its columns and filters it to
// the requested stock id. Codes are compared as strings on both sides: one
// source delivers them as zero-padded strings, another as bare numbers.
func (f *Fetcher) fetchSource(ctx context.Context, src SourceConfig, stockID string) (*dataset.Table, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := f.client.R().SetContext(ctx).Get(src.URL)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", src.Key, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("source %s returned status %d", src.Key, resp.StatusCode())
	}

	t, err := dataset.FromJSON(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("parse %s payload: %w", src.Key, err)
	}

	schema.Normalize(t, f.columns)
	t.CoerceString(schema.FieldStockID)

	return t.Filter(func(row dataset.Row) bool {
		return dataset.AsString(row[schema.FieldStockID]) == stockID
	}), nil
}
