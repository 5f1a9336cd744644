// Package extract pulls one company's canonical financial metrics out of a
// merged record set and attaches data-quality flags.
package extract

import (
	"errors"
	"math"

	"twstock_analyzer/pkg/core/dataset"
	"twstock_analyzer/pkg/core/schema"
)

// ErrNotFound reports that the merged record set carries no row for the
// requested stock id. It is a user-visible outcome, not a fault.
var ErrNotFound = errors.New("stock id not found in merged data")

// UnknownCompany is the sentinel company name used when no source supplied
// one.
const UnknownCompany = "未知公司"

// Financials is the per-request extraction result. Metrics default to 0.0
// when no source supplied a usable value; MissingFields lists exactly the
// metrics left at that default.
type Financials struct {
	StockID     string  `json:"stock_id"`
	CompanyName string  `json:"company_name"`
	Revenue     float64 `json:"revenue"`
	NetIncome   float64 `json:"net_income"`
	EPS         float64 `json:"eps"`
	ROE         float64 `json:"roe"`
	PERatio     float64 `json:"pe_ratio"`
	DividendYld float64 `json:"dividend_yield"`
	PBRatio     float64 `json:"pb_ratio"`
	ClosingPx   float64 `json:"closing_price"`
	MonthlyAvg  float64 `json:"monthly_avg_price"`

	MissingFields     []string `json:"missing_fields"`
	HasCriticalErrors bool     `json:"has_critical_errors"`
}

// metricAliases lists, per canonical metric and in resolution priority
// order, the columns that may carry its value in the merged table. The
// canonical column comes first; the raw names cover source columns the
// normalizer passed through unrecognized.
var metricAliases = []struct {
	field   string
	aliases []string
}{
	{schema.FieldRevenue, []string{schema.FieldRevenue, "營業額", "營收"}},
	{schema.FieldNetIncome, []string{schema.FieldNetIncome, "本期淨利（淨損）", "稅後淨利", "稅後淨損", "淨利"}},
	{schema.FieldEPS, []string{schema.FieldEPS, "基本每股盈餘（元）", "EPS", "每股盈餘"}},
	{schema.FieldROE, []string{schema.FieldROE, "股東權益報酬率"}},
	{schema.FieldPERatio, []string{schema.FieldPERatio, "本益比", "P/E"}},
	{schema.FieldDividendYield, []string{schema.FieldDividendYield, "殖利率", "股利殖利率"}},
	{schema.FieldPBRatio, []string{schema.FieldPBRatio, "股價淨值比", "P/B", "PBR"}},
	{schema.FieldClosingPrice, []string{schema.FieldClosingPrice, "收盤價", "股價"}},
	{schema.FieldMonthlyAvgPrice, []string{schema.FieldMonthlyAvgPrice, "月均價", "月平均價"}},
}

// criticalFields flag HasCriticalErrors when non-positive.
var criticalFields = []string{
	schema.FieldNetIncome,
	schema.FieldEPS,
	schema.FieldROE,
	schema.FieldClosingPrice,
}

// Extract resolves the nine canonical metrics for stockID from the merged
// table.
//
// When several rows match the id, the last row in merge order wins. That is
// a documented tie-break, not a chronological "latest": no date sort is
// performed anywhere in the pipeline.
func Extract(t *dataset.Table, stockID string) (*Financials, error) {
	if t.Len() == 0 {
		return nil, ErrNotFound
	}

	var row dataset.Row
	for _, r := range t.Rows {
		if dataset.AsString(r[schema.FieldStockID]) == stockID {
			row = r
		}
	}
	if row == nil {
		return nil, ErrNotFound
	}

	fin := &Financials{StockID: stockID, CompanyName: UnknownCompany}
	if name := dataset.AsString(row[schema.FieldCompanyName]); name != "" {
		fin.CompanyName = name
	}

	metrics := fin.metricSlots()
	for _, m := range metricAliases {
		for _, alias := range m.aliases {
			v, ok := row[alias]
			if !ok || v == nil {
				continue
			}
			f, ok := dataset.ParseFloat(v)
			if !ok {
				continue // unparseable: fall through to the next alias
			}
			*metrics[m.field] = f
			break
		}
	}

	fin.deriveROE()

	for _, m := range metricAliases {
		if *metrics[m.field] == 0 {
			fin.MissingFields = append(fin.MissingFields, m.field)
		}
	}
	for _, field := range criticalFields {
		if *metrics[field] <= 0 {
			fin.HasCriticalErrors = true
			break
		}
	}

	return fin, nil
}

// deriveROE backs ROE out of EPS and book value per share when no source
// reported it directly. Best effort: any non-positive intermediate value
// skips the derivation silently.
func (f *Financials) deriveROE() {
	if f.ROE != 0 || f.PBRatio <= 0 || f.ClosingPx <= 0 {
		return
	}
	bookValuePerShare := f.ClosingPx / f.PBRatio
	if bookValuePerShare <= 0 || f.EPS <= 0 {
		return
	}
	f.ROE = math.Round(f.EPS/bookValuePerShare*100*100) / 100
}

func (f *Financials) metricSlots() map[string]*float64 {
	return map[string]*float64{
		schema.FieldRevenue:         &f.Revenue,
		schema.FieldNetIncome:       &f.NetIncome,
		schema.FieldEPS:             &f.EPS,
		schema.FieldROE:             &f.ROE,
		schema.FieldPERatio:         &f.PERatio,
		schema.FieldDividendYield:   &f.DividendYld,
		schema.FieldPBRatio:         &f.PBRatio,
		schema.FieldClosingPrice:    &f.ClosingPx,
		schema.FieldMonthlyAvgPrice: &f.MonthlyAvg,
	}
}
