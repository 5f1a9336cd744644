package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/assert/v2"

	"twstock_analyzer/pkg/core/dataset"
	"twstock_analyzer/pkg/core/extract"
	"twstock_analyzer/pkg/core/narrative"
	"twstock_analyzer/pkg/core/schema"
)

type fakeFetcher struct {
	sources []dataset.SourceTable
}

func (f *fakeFetcher) Fetch(ctx context.Context, stockID string) []dataset.SourceTable {
	return f.sources
}

type fakeNarrator struct {
	text  string
	focus narrative.Focus
}

func (f *fakeNarrator) Analyze(ctx context.Context, fin *extract.Financials, focus narrative.Focus) string {
	f.focus = focus
	return f.text
}

func sampleSources() []dataset.SourceTable {
	return []dataset.SourceTable{
		{
			Key: "roe",
			Table: &dataset.Table{
				Columns: []string{schema.FieldStockID, schema.FieldCompanyName, schema.FieldPERatio, schema.FieldPBRatio, schema.FieldClosingPrice},
				Rows: []dataset.Row{{
					schema.FieldStockID:      "2330",
					schema.FieldCompanyName:  "台積電",
					schema.FieldPERatio:      "25.3",
					schema.FieldPBRatio:      "6.2",
					schema.FieldClosingPrice: "1,080.00",
				}},
			},
		},
	}
}

func newTestRouter(fetcher DataFetcher, narrator NarrativeService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/analysis", NewHandler(fetcher, narrator).Analyze)
	r.GET("/api/analysis/:stockID/export", NewHandler(fetcher, narrator).Export)
	return r
}

func postAnalysis(t *testing.T, r *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/analysis", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAnalyzeHappyPath(t *testing.T) {
	narrator := &fakeNarrator{text: "## 優勢分析\n\n- 穩健"}
	r := newTestRouter(&fakeFetcher{sources: sampleSources()}, narrator)

	w := postAnalysis(t, r, `{"stock_id": " 2330 ", "focus": "risk"}`)
	assert.Equal(t, w.Code, http.StatusOK)

	var resp struct {
		RequestID         string              `json:"request_id"`
		Financials        *extract.Financials `json:"financials"`
		MissingLabels     []string            `json:"missing_labels"`
		NarrativeMarkdown string              `json:"narrative_markdown"`
		NarrativeHTML     string              `json:"narrative_html"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	assert.Equal(t, resp.Financials.StockID, "2330")
	assert.Equal(t, resp.Financials.CompanyName, "台積電")
	assert.Equal(t, narrator.focus, narrative.FocusRisk)
	if resp.RequestID == "" {
		t.Error("request_id empty")
	}
	if !strings.Contains(resp.NarrativeHTML, "<h2") {
		t.Errorf("narrative not rendered: %q", resp.NarrativeHTML)
	}
	// Labels arrive translated for display.
	for _, label := range resp.MissingLabels {
		if strings.Contains(label, "_") {
			t.Errorf("label %q looks canonical, want display label", label)
		}
	}
}

func TestAnalyzeUnknownStockIs404(t *testing.T) {
	r := newTestRouter(&fakeFetcher{}, &fakeNarrator{})

	w := postAnalysis(t, r, `{"stock_id": "0000"}`)
	assert.Equal(t, w.Code, http.StatusNotFound)
	if !strings.Contains(w.Body.String(), "無法取得數據") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestAnalyzeValidation(t *testing.T) {
	r := newTestRouter(&fakeFetcher{sources: sampleSources()}, &fakeNarrator{})

	for name, body := range map[string]string{
		"missing stock id": `{}`,
		"blank stock id":   `{"stock_id": "   "}`,
		"bad json":         `{`,
		"unknown focus":    `{"stock_id": "2330", "focus": "yolo"}`,
	} {
		t.Run(name, func(t *testing.T) {
			w := postAnalysis(t, r, body)
			assert.Equal(t, w.Code, http.StatusBadRequest)
		})
	}
}

func TestAnalyzeNarrativeFailureStillReturns200(t *testing.T) {
	// The narrator converts remote failures into displayable text; the
	// handler must pass that through rather than erroring.
	narrator := &fakeNarrator{text: "AI 分析發生錯誤: quota exceeded"}
	r := newTestRouter(&fakeFetcher{sources: sampleSources()}, narrator)

	w := postAnalysis(t, r, `{"stock_id": "2330"}`)
	assert.Equal(t, w.Code, http.StatusOK)
	if !strings.Contains(w.Body.String(), "AI 分析發生錯誤") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestExportStreamsCSVAttachment(t *testing.T) {
	r := newTestRouter(&fakeFetcher{sources: sampleSources()}, &fakeNarrator{})

	req := httptest.NewRequest(http.MethodGet, "/api/analysis/2330/export", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, w.Code, http.StatusOK)
	assert.Equal(t, w.Header().Get("Content-Disposition"), `attachment; filename="stock_analysis_2330.csv"`)
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/csv") {
		t.Errorf("content type = %q", w.Header().Get("Content-Type"))
	}

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("csv lines = %d, want header + 1 row", len(lines))
	}
	if !strings.Contains(lines[0], schema.FieldStockID) {
		t.Errorf("header = %q", lines[0])
	}
}

func TestExportUnknownStockIs404(t *testing.T) {
	r := newTestRouter(&fakeFetcher{}, &fakeNarrator{})

	req := httptest.NewRequest(http.MethodGet, "/api/analysis/0000/export", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, w.Code, http.StatusNotFound)
}
