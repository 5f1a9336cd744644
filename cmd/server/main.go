package main

import (
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"twstock_analyzer/pkg/api/analysis"
	"twstock_analyzer/pkg/core/config"
	"twstock_analyzer/pkg/core/fetch"
	"twstock_analyzer/pkg/core/llm"
	"twstock_analyzer/pkg/core/logger"
	"twstock_analyzer/pkg/core/narrative"
	"twstock_analyzer/pkg/core/schema"
	"twstock_analyzer/pkg/core/store"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	logger.Init()

	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}

	// Alias table conflicts are programming errors; refuse to start on them.
	if _, err := schema.BuildColumnMap(); err != nil {
		log.Fatal().Err(err).Msg("invalid column alias table")
	}

	cache := store.NewFetchCache(cfg.CacheTTL())
	fetcher := fetch.New(cfg.Sources, cfg.FetchTimeout(), cfg.Fetch.RatePerSecond, cache)

	provider := &llm.GeminiProvider{
		APIKey:  cfg.APIKey,
		Model:   cfg.Gemini.Model,
		Timeout: cfg.GeminiTimeout(),
	}
	requester := narrative.NewRequester(provider)

	router := gin.Default()
	router.LoadHTMLGlob("web/templates/*")
	analysis.NewHandler(fetcher, requester).Register(router)

	log.Info().Str("addr", cfg.Server.Addr).Msg("台股 AI 分析工具 starting")
	if err := router.Run(cfg.Server.Addr); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
