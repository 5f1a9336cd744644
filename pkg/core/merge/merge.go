// Package merge reconciles the per-source tables into one record set keyed
// by stock id.
package merge

import (
	"strings"

	"twstock_analyzer/pkg/core/dataset"
	"twstock_analyzer/pkg/core/schema"
)

// Merge outer-joins the source tables on the canonical stock_id column.
//
// Sources are processed in slice order, which the fetcher fixes to its
// configuration order. This order is load-bearing in exactly one place: when
// more than one source carries a company-name column, the first source's
// column wins and the rest are dropped. Row content is otherwise independent
// of source order.
//
// An empty input yields an empty table, which callers treat as "not found".
func Merge(sources []dataset.SourceTable) *dataset.Table {
	if len(sources) == 0 {
		return dataset.New(nil)
	}

	// Work on copies: the inputs may come from the shared fetch cache and
	// must not be mutated under a concurrent reader.
	tables := make([]dataset.SourceTable, len(sources))
	for i, src := range sources {
		tables[i] = dataset.SourceTable{Key: src.Key, Table: src.Table.Clone()}
		tables[i].Table.CoerceString(schema.FieldStockID)
	}

	acc := tables[0].Table
	for _, src := range tables[1:] {
		acc = outerJoin(acc, src.Table, src.Key)
	}

	collapseNameColumns(acc)

	for _, col := range schema.NumericFields {
		acc.CoerceNumeric(col)
	}
	return acc
}

// outerJoin joins right onto left on stock_id, keeping every id present on
// either side. Rows missing from one side get nil for that side's columns.
// Non-key columns of right that clash with a left column are suffixed with
// the right source's key, mirroring how a join engine disambiguates
// duplicates; collapseNameColumns cleans those up for the name role.
func outerJoin(left, right *dataset.Table, rightKey string) *dataset.Table {
	renames := map[string]string{}
	rightCols := make([]string, 0, len(right.Columns))
	for _, col := range right.Columns {
		if col == schema.FieldStockID {
			continue
		}
		name := col
		if left.HasColumn(col) {
			name = col + "_" + rightKey
		}
		renames[col] = name
		rightCols = append(rightCols, name)
	}

	out := dataset.New(append(append([]string(nil), left.Columns...), rightCols...))

	rightByID := map[string][]dataset.Row{}
	rightOrder := []string{}
	for _, row := range right.Rows {
		id := dataset.AsString(row[schema.FieldStockID])
		if _, seen := rightByID[id]; !seen {
			rightOrder = append(rightOrder, id)
		}
		rightByID[id] = append(rightByID[id], row)
	}

	matched := map[string]bool{}
	for _, lrow := range left.Rows {
		id := dataset.AsString(lrow[schema.FieldStockID])
		rrows, ok := rightByID[id]
		if !ok {
			out.Rows = append(out.Rows, joinRows(lrow, nil, renames))
			continue
		}
		matched[id] = true
		for _, rrow := range rrows {
			out.Rows = append(out.Rows, joinRows(lrow, rrow, renames))
		}
	}

	// Right-only ids, in right-table order.
	for _, id := range rightOrder {
		if matched[id] {
			continue
		}
		for _, rrow := range rightByID[id] {
			row := joinRows(nil, rrow, renames)
			row[schema.FieldStockID] = id
			out.Rows = append(out.Rows, row)
		}
	}

	return out
}

func joinRows(left, right dataset.Row, renames map[string]string) dataset.Row {
	out := dataset.Row{}
	for k, v := range left {
		out[k] = v
	}
	for k, v := range right {
		if k == schema.FieldStockID {
			continue
		}
		out[renames[k]] = v
	}
	return out
}

// collapseNameColumns keeps the first column that carries the company-name
// role (the canonical column or a join-suffixed variant of it), renames it
// to the canonical name, and drops the rest.
func collapseNameColumns(t *dataset.Table) {
	var nameCols []string
	for _, col := range t.Columns {
		if isNameColumn(col) {
			nameCols = append(nameCols, col)
		}
	}
	if len(nameCols) == 0 {
		return
	}
	t.RenameColumn(nameCols[0], schema.FieldCompanyName)
	for _, col := range nameCols[1:] {
		t.DropColumn(col)
	}
}

func isNameColumn(col string) bool {
	return col == schema.FieldCompanyName ||
		strings.HasPrefix(col, schema.FieldCompanyName+"_")
}
