package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/orders-to-cash/internal/logger"
	"github.com/dvloznov/orders-to-cash/internal/table"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
)

// Classification holds the three routing fields of a final row, case-folded
// and trimmed.
type Classification struct {
	VendorGroup   string
	PaymentSystem string
	OrderVendor   string
}

// Provider is one export destination and the predicate selecting its rows.
type Provider struct {
	// Name is the display name used in file names and reports.
	Name string
	// Key identifies the provider to sinks (directory / object prefix lookup).
	Key   string
	Match func(c Classification) bool
}

// Providers is evaluated in order and the first match wins, so a row lands in
// at most one partition.
var Providers = []Provider{
	{Name: "Braintree", Key: "braintree", Match: func(c Classification) bool {
		return c.VendorGroup == "dtc" && c.PaymentSystem != "paypal"
	}},
	{Name: "PayPal", Key: "paypal", Match: func(c Classification) bool {
		return c.VendorGroup == "dtc" && c.PaymentSystem == "paypal"
	}},
	{Name: "Uber", Key: "uber", Match: func(c Classification) bool {
		return c.OrderVendor == "uber"
	}},
	{Name: "Deliveroo", Key: "deliveroo", Match: func(c Classification) bool {
		return c.OrderVendor == "deliveroo"
	}},
	{Name: "Just Eat", Key: "justeat", Match: func(c Classification) bool {
		return c.OrderVendor == "just eat" || c.OrderVendor == "justeat"
	}},
	{Name: "Amazon", Key: "amazon", Match: func(c Classification) bool {
		return c.OrderVendor == "amazon uk"
	}},
}

// Partition is the subset of final rows routed to one provider.
type Partition struct {
	Provider Provider
	Rows     *table.Table
}

// Partitioning is the result of classifying a final table.
type Partitioning struct {
	Partitions []Partition
	// Unmatched counts rows that matched no provider and are not exported.
	Unmatched int
}

func fold(c cases.Caser, v table.Value) string {
	s, _ := table.AsString(v)
	return c.String(strings.TrimSpace(s))
}

// Classify extracts the routing fields of row i.
func Classify(t *table.Table, i int) Classification {
	return classify(cases.Fold(), t, i)
}

// classify reuses a caser; a Caser must not be shared between goroutines.
func classify(c cases.Caser, t *table.Table, i int) Classification {
	return Classification{
		VendorGroup:   fold(c, t.Get(i, ColVendorGroup)),
		PaymentSystem: fold(c, t.Get(i, ColPaymentSystem)),
		OrderVendor:   fold(c, t.Get(i, ColOrderVendor)),
	}
}

// PartitionRows assigns every row to the first provider whose predicate
// matches. One partition per provider is returned, in provider order, even
// when empty.
func PartitionRows(final *table.Table, providers []Provider) Partitioning {
	assigned := make([]int, final.Len())
	result := Partitioning{}
	caser := cases.Fold()
	for i := 0; i < final.Len(); i++ {
		assigned[i] = -1
		c := classify(caser, final, i)
		for p, prov := range providers {
			if prov.Match(c) {
				assigned[i] = p
				break
			}
		}
		if assigned[i] < 0 {
			result.Unmatched++
		}
	}

	for p, prov := range providers {
		result.Partitions = append(result.Partitions, Partition{
			Provider: prov,
			Rows:     final.Filter(func(i int) bool { return assigned[i] == p }),
		})
	}
	return result
}

// ExportNaming builds export file names for a run.
type ExportNaming struct {
	PeriodLabel string // YY.MM
	Notes       string
}

// FileName returns "<YY.MM> - <Provider> DWH data[ (<notes>)].csv". Spaces in
// notes become underscores.
func (n ExportNaming) FileName(provider string) string {
	tag := ""
	if notes := strings.TrimSpace(n.Notes); notes != "" {
		tag = fmt.Sprintf(" (%s)", strings.ReplaceAll(notes, " ", "_"))
	}
	return fmt.Sprintf("%s - %s DWH data%s.csv", n.PeriodLabel, provider, tag)
}

// ExportResult is the outcome for one provider.
type ExportResult struct {
	Provider string
	Rows     int
	FileName string
	Location string
	Skipped  bool
}

// ExportPartitions writes every non-empty partition to the sink. Empty
// partitions are reported as skipped. Results are returned in partition order.
func ExportPartitions(ctx context.Context, parts []Partition, sink Sink, naming ExportNaming, concurrent bool) ([]ExportResult, error) {
	log := logger.FromContext(ctx)
	results := make([]ExportResult, len(parts))

	write := func(ctx context.Context, i int) error {
		p := parts[i]
		res := ExportResult{Provider: p.Provider.Name, Rows: p.Rows.Len()}
		if p.Rows.Len() == 0 {
			res.Skipped = true
			results[i] = res
			log.Warn().Str("provider", p.Provider.Name).Msg("No rows found, skipping export")
			return nil
		}

		res.FileName = naming.FileName(p.Provider.Name)
		loc, err := sink.Write(ctx, p.Provider.Key, res.FileName, p.Rows)
		if err != nil {
			return fmt.Errorf("exporting %s: %w", p.Provider.Name, err)
		}
		res.Location = loc
		results[i] = res
		log.Info().
			Str("provider", p.Provider.Name).
			Int("rows", res.Rows).
			Str("location", loc).
			Msg("Saved provider export")
		return nil
	}

	if !concurrent {
		for i := range parts {
			if err := write(ctx, i); err != nil {
				return results, err
			}
		}
		return results, nil
	}

	// Partitions are disjoint and read-only; each goroutine owns results[i].
	g, gCtx := errgroup.WithContext(ctx)
	for i := range parts {
		g.Go(func() error { return write(gCtx, i) })
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
