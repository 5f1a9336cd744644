// Package analysis exposes the HTTP surface: the form page, the analyze
// endpoint and the CSV export.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"twstock_analyzer/pkg/core/dataset"
	"twstock_analyzer/pkg/core/extract"
	"twstock_analyzer/pkg/core/merge"
	"twstock_analyzer/pkg/core/narrative"
	"twstock_analyzer/pkg/core/utils"
)

// DataFetcher retrieves the filtered per-source tables for one stock id.
type DataFetcher interface {
	Fetch(ctx context.Context, stockID string) []dataset.SourceTable
}

// NarrativeService produces the commentary text. Failures arrive as
// displayable text, never as an error.
type NarrativeService interface {
	Analyze(ctx context.Context, fin *extract.Financials, focus narrative.Focus) string
}

// Handler wires the reconciliation pipeline behind the HTTP endpoints.
type Handler struct {
	fetcher  DataFetcher
	narrator NarrativeService
}

func NewHandler(fetcher DataFetcher, narrator NarrativeService) *Handler {
	return &Handler{fetcher: fetcher, narrator: narrator}
}

// Register mounts the routes.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/", h.Index)
	r.POST("/api/analysis", h.Analyze)
	r.GET("/api/analysis/:stockID/export", h.Export)
}

type analyzeRequest struct {
	StockID string `json:"stock_id" binding:"required"`
	Focus   string `json:"focus"`
}

type analyzeResponse struct {
	RequestID         string              `json:"request_id"`
	Financials        *extract.Financials `json:"financials"`
	MissingLabels     []string            `json:"missing_labels"`
	NarrativeMarkdown string              `json:"narrative_markdown"`
	NarrativeHTML     string              `json:"narrative_html"`
}

// Index serves the query form.
func (h *Handler) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{})
}

// Analyze runs the full pipeline for one stock id: fetch, merge, extract,
// narrative. A stock id no source knows yields 404; a narrative failure
// still yields 200 with the error text in the narrative slot.
func (h *Handler) Analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "請輸入股票代號"})
		return
	}

	stockID := strings.TrimSpace(req.StockID)
	if stockID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "請輸入股票代號"})
		return
	}

	focus, ok := narrative.ParseFocus(req.Focus)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("不支援的分析重點: %s", req.Focus)})
		return
	}

	requestID := uuid.NewString()
	ctx := c.Request.Context()

	sources := h.fetcher.Fetch(ctx, stockID)
	merged := merge.Merge(sources)

	fin, err := extract.Extract(merged, stockID)
	if err != nil {
		if errors.Is(err, extract.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "無法取得數據，請確認股票代號是否正確。"})
			return
		}
		log.Error().Err(err).Str("stock_id", stockID).Msg("extraction failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "資料處理失敗"})
		return
	}

	log.Info().
		Str("request_id", requestID).
		Str("stock_id", stockID).
		Str("focus", string(focus)).
		Int("sources", len(sources)).
		Bool("critical", fin.HasCriticalErrors).
		Msg("analysis request")

	text := h.narrator.Analyze(ctx, fin, focus)

	html, err := utils.RenderHTML(text)
	if err != nil {
		log.Warn().Err(err).Msg("narrative markdown rendering failed")
		html = ""
	}

	labels := make([]string, len(fin.MissingFields))
	for i, field := range fin.MissingFields {
		labels[i] = narrative.FieldLabel(field)
	}

	c.JSON(http.StatusOK, analyzeResponse{
		RequestID:         requestID,
		Financials:        fin,
		MissingLabels:     labels,
		NarrativeMarkdown: text,
		NarrativeHTML:     html,
	})
}

// Export streams the merged table for one stock id as a CSV download.
// Served from the fetch cache when the analysis ran inside the TTL.
func (h *Handler) Export(c *gin.Context) {
	stockID := strings.TrimSpace(c.Param("stockID"))
	if stockID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "請輸入股票代號"})
		return
	}

	sources := h.fetcher.Fetch(c.Request.Context(), stockID)
	merged := merge.Merge(sources)
	if merged.Len() == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "無法取得數據，請確認股票代號是否正確。"})
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="stock_analysis_%s.csv"`, stockID))
	if err := merged.WriteCSV(c.Writer); err != nil {
		log.Error().Err(err).Str("stock_id", stockID).Msg("csv export failed")
	}
}
