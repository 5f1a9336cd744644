// Package schema defines the canonical field vocabulary shared by all three
// TWSE sources and the column normalization that maps each source's own
// naming onto it.
package schema

import (
	"fmt"

	"twstock_analyzer/pkg/core/dataset"
)

// Canonical field names. Each upstream column that carries one of these
// roles is renamed to the canonical name before any merging happens.
const (
	FieldStockID         = "stock_id"
	FieldCompanyName     = "company_name"
	FieldFiscalYear      = "fiscal_year"
	FieldFiscalQuarter   = "fiscal_quarter"
	FieldRevenue         = "revenue"
	FieldGrossProfit     = "gross_profit"
	FieldOperatingIncome = "operating_income"
	FieldNetIncome       = "net_income"
	FieldEPS             = "eps"
	FieldROE             = "roe"
	FieldPERatio         = "pe_ratio"
	FieldDividendYield   = "dividend_yield"
	FieldPBRatio         = "pb_ratio"
	FieldClosingPrice    = "closing_price"
	FieldMonthlyAvgPrice = "monthly_avg_price"
)

// NumericFields are the canonical columns coerced to float64 after merging.
// Unparseable values become nil, never an error.
var NumericFields = []string{
	FieldEPS,
	FieldROE,
	FieldNetIncome,
	FieldPERatio,
	FieldDividendYield,
	FieldPBRatio,
	FieldClosingPrice,
	FieldMonthlyAvgPrice,
}

// canonicalAliases lists, per canonical field, the raw column names the
// three sources are known to use for it. The valuation source (BWIBBU_ALL)
// speaks English, the financial statement source (t187ap06_L_ci) speaks
// Traditional Chinese, and the price source (STOCK_DAY_AVG_ALL) mixes both.
var canonicalAliases = map[string][]string{
	FieldStockID:         {"公司代號", "Code", "股票代號"},
	FieldCompanyName:     {"Name", "公司名稱", "公司簡稱"},
	FieldFiscalYear:      {"年度"},
	FieldFiscalQuarter:   {"季別"},
	FieldRevenue:         {"營業收入"},
	FieldGrossProfit:     {"營業毛利", "營業毛利（毛損）"},
	FieldOperatingIncome: {"營業利益", "營業利益（損失）"},
	FieldNetIncome:       {"稅後淨利", "本期淨利（淨損）"},
	FieldEPS:             {"基本每股盈餘", "基本每股盈餘（元）"},
	FieldROE:             {"股東權益報酬率"},
	FieldPERatio:         {"PEratio"},
	FieldDividendYield:   {"DividendYield"},
	FieldPBRatio:         {"PBratio"},
	FieldClosingPrice:    {"ClosingPrice"},
	FieldMonthlyAvgPrice: {"MonthlyAveragePrice"},
}

// BuildColumnMap flattens the alias lists into a raw-name -> canonical-name
// map, rejecting any raw name claimed by two canonical fields. Called once
// at startup; a conflict is a programming error and refuses startup.
func BuildColumnMap() (map[string]string, error) {
	out := make(map[string]string)
	for canonical, aliases := range canonicalAliases {
		for _, raw := range aliases {
			if prev, ok := out[raw]; ok && prev != canonical {
				return nil, fmt.Errorf("column alias %q mapped to both %q and %q", raw, prev, canonical)
			}
			out[raw] = canonical
		}
	}
	return out, nil
}

// MustColumnMap is BuildColumnMap for wiring paths that have already
// validated the table at startup.
func MustColumnMap() map[string]string {
	m, err := BuildColumnMap()
	if err != nil {
		panic(err)
	}
	return m
}

// Normalize renames every recognized column of t to its canonical name.
// Unrecognized columns pass through untouched. Reapplying is a no-op:
// canonical names are never themselves aliases of another field.
func Normalize(t *dataset.Table, columnMap map[string]string) {
	if t == nil {
		return
	}
	for _, col := range append([]string(nil), t.Columns...) {
		canonical, ok := columnMap[col]
		if !ok {
			continue
		}
		// Two aliases of the same field in one table: first one wins, the
		// rest pass through under their raw names.
		if canonical != col && t.HasColumn(canonical) {
			continue
		}
		t.RenameColumn(col, canonical)
	}
}
