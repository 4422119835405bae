package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dvloznov/orders-to-cash/internal/table"
)

// PivotOptions controls VAT-band canonicalization.
type PivotOptions struct {
	// Strict rejects unrecognized VAT-band labels instead of routing them to
	// the "other" band.
	Strict bool
}

// PivotStats summarizes one pivot.
type PivotStats struct {
	ItemRows     int
	Orders       int
	Unrecognized map[string]int // label -> item rows routed to "other"
	SkippedNoKey int
}

// CanonicalVATBand maps a display label to its band code.
func CanonicalVATBand(label string) (string, bool) {
	code, ok := vatBandLabels[strings.TrimSpace(label)]
	return code, ok
}

type bandTotals struct {
	key      table.Value
	quantity [4]int64
	incVAT   [4]float64
	excVAT   [4]float64
}

// PivotVATBands reshapes item rows (one per order, item and VAT band) into one
// row per order with a {metric}_{band} column for every metric and band.
// Combinations absent from the input are 0, never missing.
func PivotVATBands(items *table.Table, opts PivotOptions) (*table.Table, PivotStats, error) {
	stats := PivotStats{ItemRows: items.Len(), Unrecognized: map[string]int{}}

	required := []string{ColOrderID, ColVATBand, ColItemQuantity, ColPriceIncVAT, ColPriceExcVAT}
	var missing []string
	for _, c := range required {
		if !items.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, stats, &SchemaMismatchError{Missing: missing}
	}

	bandPos := make(map[string]int, len(VATBands))
	for i, b := range VATBands {
		bandPos[b] = i
	}

	byOrder := make(map[string]*bandTotals)
	for i := 0; i < items.Len(); i++ {
		keyVal := items.Get(i, ColOrderID)
		key := table.Format(keyVal)
		if strings.TrimSpace(key) == "" {
			stats.SkippedNoKey++
			continue
		}

		label, _ := table.AsString(items.Get(i, ColVATBand))
		band, ok := CanonicalVATBand(label)
		if !ok {
			if opts.Strict {
				return nil, stats, &UnknownVATBandError{Label: label}
			}
			stats.Unrecognized[label]++
			band = BandOther
		}
		b := bandPos[band]

		qty, _, err := table.AsInt(items.Get(i, ColItemQuantity))
		if err != nil {
			return nil, stats, fmt.Errorf("PivotVATBands: row %d %s: %w", i, ColItemQuantity, err)
		}
		inc, _, err := table.AsFloat(items.Get(i, ColPriceIncVAT))
		if err != nil {
			return nil, stats, fmt.Errorf("PivotVATBands: row %d %s: %w", i, ColPriceIncVAT, err)
		}
		exc, _, err := table.AsFloat(items.Get(i, ColPriceExcVAT))
		if err != nil {
			return nil, stats, fmt.Errorf("PivotVATBands: row %d %s: %w", i, ColPriceExcVAT, err)
		}

		acc, ok := byOrder[key]
		if !ok {
			acc = &bandTotals{key: keyVal}
			byOrder[key] = acc
		}
		acc.quantity[b] += qty
		acc.incVAT[b] += inc
		acc.excVAT[b] += exc
	}

	out, err := table.New(append([]string{ColOrderID}, ItemDerivedColumns()...)...)
	if err != nil {
		return nil, stats, err
	}

	keys := make([]string, 0, len(byOrder))
	for k := range byOrder {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return table.CompareKeys(byOrder[keys[i]].key, byOrder[keys[j]].key) < 0
	})

	for _, k := range keys {
		acc := byOrder[k]
		row := make([]table.Value, 0, len(VATBands)*len(ItemMetrics)+2)
		row = append(row, acc.key)

		var totalProducts int64
		for b := range VATBands {
			row = append(row, acc.quantity[b])
			totalProducts += acc.quantity[b]
		}
		for b := range VATBands {
			row = append(row, acc.incVAT[b])
		}
		for b := range VATBands {
			row = append(row, acc.excVAT[b])
		}
		row = append(row, totalProducts)

		if err := out.Append(row...); err != nil {
			return nil, stats, err
		}
	}

	stats.Orders = out.Len()
	return out, stats, nil
}
