package pipeline

import (
	"fmt"
	"strings"

	"github.com/dvloznov/orders-to-cash/internal/table"
)

// MergeStats summarizes one merge.
type MergeStats struct {
	OrderRows         int
	Matched           int
	Unmatched         int
	SuppressedTxRows  int
	OutputColumnCount int
}

// MergeItems left-joins the VAT-band aggregates onto the order rows, clears
// item-derived columns on every transaction after the first, sorts by
// (order_id, transaction_index) and projects onto CanonicalColumns.
func MergeItems(orders, aggregates *table.Table) (*table.Table, MergeStats, error) {
	stats := MergeStats{OrderRows: orders.Len()}

	if !orders.Has(ColOrderID) {
		return nil, stats, &SchemaMismatchError{Missing: []string{ColOrderID}}
	}
	if !aggregates.Has(ColOrderID) {
		return nil, stats, fmt.Errorf("MergeItems: aggregate table has no %s column", ColOrderID)
	}

	itemCols := ItemDerivedColumns()
	aggIndex := make(map[string]int, aggregates.Len())
	for i := 0; i < aggregates.Len(); i++ {
		key := table.Format(aggregates.Get(i, ColOrderID))
		if _, dup := aggIndex[key]; dup {
			return nil, stats, fmt.Errorf("MergeItems: order %q has more than one aggregate row", key)
		}
		aggIndex[key] = i
	}

	columns := orders.Columns()
	for _, c := range itemCols {
		if orders.Has(c) {
			return nil, stats, fmt.Errorf("MergeItems: order table already has item column %q", c)
		}
		columns = append(columns, c)
	}
	merged, err := table.New(columns...)
	if err != nil {
		return nil, stats, err
	}

	hasTxIndex := orders.Has(ColTransactionIndex)
	for i, row := range orders.Rows() {
		values := make([]table.Value, 0, len(columns))
		values = append(values, row...)

		key := table.Format(orders.Get(i, ColOrderID))
		a, matched := aggIndex[key]
		if matched && strings.TrimSpace(key) != "" {
			stats.Matched++
		} else {
			matched = false
			stats.Unmatched++
		}

		suppress := false
		if hasTxIndex {
			idx, ok, err := table.AsInt(orders.Get(i, ColTransactionIndex))
			if err != nil {
				return nil, stats, fmt.Errorf("MergeItems: row %d %s: %w", i, ColTransactionIndex, err)
			}
			suppress = ok && idx >= 2
		}
		if suppress && matched {
			stats.SuppressedTxRows++
		}

		for _, c := range itemCols {
			if !matched || suppress {
				values = append(values, nil)
				continue
			}
			values = append(values, aggregates.Get(a, c))
		}
		if err := merged.Append(values...); err != nil {
			return nil, stats, err
		}
	}

	SortFinalRows(merged)

	final, missing := merged.Select(CanonicalColumns)
	if missing != nil {
		return nil, stats, &SchemaMismatchError{Missing: missing}
	}
	stats.OutputColumnCount = len(final.Columns())
	return final, stats, nil
}

// SortFinalRows orders rows by order_id, then transaction_index ascending.
// Numeric order ids compare by value. Rows without a transaction index sort
// after indexed rows of the same order.
func SortFinalRows(t *table.Table) {
	keyPos, _ := t.Index(ColOrderID)
	txPos, hasTx := t.Index(ColTransactionIndex)

	t.SortStable(func(a, b table.Row) bool {
		if c := table.CompareKeys(a[keyPos], b[keyPos]); c != 0 {
			return c < 0
		}
		if !hasTx {
			return false
		}
		ia, oka, _ := table.AsInt(a[txPos])
		ib, okb, _ := table.AsInt(b[txPos])
		switch {
		case oka && okb:
			return ia < ib
		case oka != okb:
			return oka
		default:
			return false
		}
	})
}
