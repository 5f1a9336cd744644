// Package narrative turns extracted financials into a Gemini prompt and
// requests the investment commentary.
package narrative

import (
	"context"
	"fmt"
	"strings"

	humanize "github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"twstock_analyzer/pkg/core/extract"
	"twstock_analyzer/pkg/core/llm"
	"twstock_analyzer/pkg/core/schema"
)

// Focus selects the analysis emphasis of the generated commentary.
type Focus string

const (
	FocusComprehensive Focus = "comprehensive"
	FocusProfitability Focus = "profitability"
	FocusRisk          Focus = "risk"
	FocusGrowth        Focus = "growth"
	FocusDividend      Focus = "dividend"
	FocusAggressive    Focus = "aggressive"
)

// ParseFocus maps the request selector to a Focus. The empty string means
// the comprehensive default.
func ParseFocus(s string) (Focus, bool) {
	switch Focus(strings.TrimSpace(s)) {
	case "", FocusComprehensive:
		return FocusComprehensive, true
	case FocusProfitability, FocusRisk, FocusGrowth, FocusDividend, FocusAggressive:
		return Focus(strings.TrimSpace(s)), true
	default:
		return "", false
	}
}

// focusInstructions holds the per-focus prompt addition. The comprehensive
// default has no entry; BuildPrompt falls back to the all-round instruction.
var focusInstructions = map[Focus]string{
	FocusProfitability: "請著重分析公司的獲利能力、ROE和EPS趨勢，評估公司的盈利品質和持續性。",
	FocusRisk:          "請詳細評估投資風險，包括估值風險、產業風險、財務風險和地緣政治風險。特別關注本益比和股價淨值比是否合理。",
	FocusGrowth:        "請分析公司的成長潛力、未來發展機會和產業趨勢。評估公司的競爭優勢和市場擴張能力。",
	FocusDividend:      "請著重分析公司的股利政策、殖利率表現和股利發放穩定性。評估股利成長潛力和可持續性。",
	FocusAggressive:    "請以積極投資者的視角分析，著重於成長機會、市場擴張潛力和可能的股價催化劑。忽略短期波動風險，專注於長期高回報可能性。提供更進取的投資建議和時機點判斷。",
}

// fieldLabels translates canonical metric names into the Traditional Chinese
// labels used in the prompt and the UI.
var fieldLabels = map[string]string{
	schema.FieldRevenue:         "營業額",
	schema.FieldNetIncome:       "稅後淨利",
	schema.FieldEPS:             "EPS",
	schema.FieldROE:             "ROE",
	schema.FieldPERatio:         "本益比",
	schema.FieldDividendYield:   "殖利率",
	schema.FieldPBRatio:         "股價淨值比",
	schema.FieldClosingPrice:    "收盤價",
	schema.FieldMonthlyAvgPrice: "月均價",
}

// FieldLabel returns the display label for a canonical metric name, falling
// back to the canonical name itself.
func FieldLabel(field string) string {
	if label, ok := fieldLabels[field]; ok {
		return label
	}
	return field
}

// samplingConfig is fixed: low randomness, bounded output.
var samplingConfig = llm.GenerationConfig{
	Temperature:     0.2,
	TopP:            0.95,
	TopK:            40,
	MaxOutputTokens: 2048,
}

// Requester formats financials into a prompt and invokes the provider.
type Requester struct {
	provider llm.Provider
}

func NewRequester(provider llm.Provider) *Requester {
	return &Requester{provider: provider}
}

// Analyze requests the commentary for fin. A remote failure never
// propagates: it is logged and converted into a displayable message, leaving
// resubmission to the user.
func (r *Requester) Analyze(ctx context.Context, fin *extract.Financials, focus Focus) string {
	prompt := BuildPrompt(fin, focus)

	text, err := r.provider.GenerateResponse(ctx, prompt, samplingConfig)
	if err != nil {
		log.Error().Err(err).Str("stock_id", fin.StockID).Msg("narrative request failed")
		return fmt.Sprintf("AI 分析發生錯誤: %v", err)
	}
	return text
}

// BuildPrompt assembles the analysis prompt: company header, the nine
// metrics with fixed precision and thousands separators, data-quality
// warnings, the focus instruction and the response-structure requirements.
func BuildPrompt(fin *extract.Financials, focus Focus) string {
	var b strings.Builder

	b.WriteString("# 財務分析請求\n\n")
	b.WriteString("## 公司基本資料\n")
	fmt.Fprintf(&b, "- 公司: %s (%s)\n\n", fin.CompanyName, fin.StockID)

	b.WriteString("## 財務數據摘要\n")
	fmt.Fprintf(&b, "- 營業額: %s 元\n", humanize.FormatFloat("#,###.#", fin.Revenue))
	fmt.Fprintf(&b, "- 稅後淨利: %s 元\n", humanize.FormatFloat("#,###.#", fin.NetIncome))
	fmt.Fprintf(&b, "- 每股盈餘 (EPS): %.1f\n", fin.EPS)
	fmt.Fprintf(&b, "- 股東權益報酬率 (ROE): %.1f%%\n", fin.ROE)
	fmt.Fprintf(&b, "- 本益比 (P/E Ratio): %.1f\n", fin.PERatio)
	fmt.Fprintf(&b, "- 殖利率 (Dividend Yield): %.1f%%\n", fin.DividendYld)
	fmt.Fprintf(&b, "- 股價淨值比 (P/B Ratio): %.1f\n", fin.PBRatio)
	fmt.Fprintf(&b, "- 收盤價: %s 元\n", humanize.FormatFloat("#,###.##", fin.ClosingPx))
	fmt.Fprintf(&b, "- 月均價: %s 元\n\n", humanize.FormatFloat("#,###.##", fin.MonthlyAvg))

	if len(fin.MissingFields) > 0 {
		labels := make([]string, len(fin.MissingFields))
		for i, field := range fin.MissingFields {
			labels[i] = FieldLabel(field)
		}
		fmt.Fprintf(&b, "⚠️ 注意：以下關鍵財務數據缺失或異常: %s\n", strings.Join(labels, ", "))
	}
	if fin.HasCriticalErrors {
		b.WriteString("⚠️ 警告：部分關鍵財務數據（如稅後淨利、EPS、ROE或收盤價）為零或異常，分析結果可能不準確。\n")
	}
	b.WriteString("\n")

	b.WriteString("## 分析重點\n")
	if instruction, ok := focusInstructions[focus]; ok {
		b.WriteString(instruction)
	} else {
		b.WriteString("請全面分析公司財務狀況、投資價值和風險。")
	}
	b.WriteString("\n\n")

	b.WriteString("## 分析要求\n")
	b.WriteString("1. 請以繁體中文回覆\n")
	b.WriteString("2. 請提供結構化分析報告，包含以下部分：\n")
	b.WriteString("   - 優勢分析\n")
	b.WriteString("   - 潛在風險和需注意的點\n")
	b.WriteString("   - 未來趨勢與投資建議\n")
	b.WriteString("   - 總結\n")
	b.WriteString("3. 使用表情符號增加可讀性\n")
	b.WriteString("4. 如果數據存在異常或缺失，請在分析中指出並解釋可能的影響\n")
	b.WriteString("5. 請客觀分析，避免過度樂觀或悲觀的偏見\n")

	return b.String()
}
