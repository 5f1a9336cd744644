// Package config loads the service configuration: a YAML file for the
// tunable parts, environment variables for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"twstock_analyzer/pkg/core/fetch"
)

// Config is the full service configuration.
type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Sources []fetch.SourceConfig `yaml:"sources"`

	Fetch struct {
		TimeoutSeconds  int     `yaml:"timeout_seconds"`
		CacheTTLMinutes int     `yaml:"cache_ttl_minutes"`
		RatePerSecond   float64 `yaml:"rate_per_second"`
	} `yaml:"fetch"`

	Gemini struct {
		Model          string `yaml:"model"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"gemini"`

	// APIKey comes from the GEMINI_API_KEY environment variable, never from
	// the YAML file.
	APIKey string `yaml:"-"`
}

// Default returns the configuration used when no file overrides it: the
// three TWSE open-data endpoints, a one-hour fetch cache and the fixed
// Gemini model.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8080"
	cfg.Sources = []fetch.SourceConfig{
		{Key: "roe", URL: "https://openapi.twse.com.tw/v1/exchangeReport/BWIBBU_ALL"},
		{Key: "stock_price", URL: "https://openapi.twse.com.tw/v1/exchangeReport/STOCK_DAY_AVG_ALL"},
		{Key: "finance", URL: "https://openapi.twse.com.tw/v1/opendata/t187ap06_L_ci"},
	}
	cfg.Fetch.TimeoutSeconds = 15
	cfg.Fetch.CacheTTLMinutes = 60
	cfg.Fetch.RatePerSecond = 5
	cfg.Gemini.Model = "models/gemini-1.5-pro-latest"
	cfg.Gemini.TimeoutSeconds = 60
	return cfg
}

// Load reads the YAML file at path over the defaults and pulls secrets from
// the environment. A missing file is fine; a missing GEMINI_API_KEY is not:
// the process must refuse to start without it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set; refusing to start without it")
	}

	if len(cfg.Sources) == 0 {
		return nil, fmt.Errorf("no data sources configured")
	}

	return cfg, nil
}

// FetchTimeout returns the per-source request timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// CacheTTL returns the fetch-cache lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Fetch.CacheTTLMinutes) * time.Minute
}

// GeminiTimeout returns the bound on the narrative request.
func (c *Config) GeminiTimeout() time.Duration {
	return time.Duration(c.Gemini.TimeoutSeconds) * time.Second
}
