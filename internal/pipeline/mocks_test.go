package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/dvloznov/orders-to-cash/internal/table"
)

// mockEngine is a hand-written Engine for tests. Unset funcs fall back to
// in-memory behaviour that records every call.
type mockEngine struct {
	QueryFunc         func(ctx context.Context, sql string) (*table.Table, error)
	CreateStagingFunc func(ctx context.Context, name, column string) (string, error)
	InsertStagingFunc func(ctx context.Context, ref, column string, keys []string) error
	DropStagingFunc   func(ctx context.Context, ref string) error
	CloseFunc         func() error

	mu      sync.Mutex
	queries []string
	batches [][]string
	dropped []string
	closed  int
}

func (m *mockEngine) Query(ctx context.Context, sql string) (*table.Table, error) {
	m.mu.Lock()
	m.queries = append(m.queries, sql)
	m.mu.Unlock()
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, sql)
	}
	return table.New("ORDER_ID")
}

func (m *mockEngine) CreateStaging(ctx context.Context, name, column string) (string, error) {
	if m.CreateStagingFunc != nil {
		return m.CreateStagingFunc(ctx, name, column)
	}
	return "tmp." + name, nil
}

func (m *mockEngine) InsertStaging(ctx context.Context, ref, column string, keys []string) error {
	m.mu.Lock()
	m.batches = append(m.batches, append([]string(nil), keys...))
	m.mu.Unlock()
	if m.InsertStagingFunc != nil {
		return m.InsertStagingFunc(ctx, ref, column, keys)
	}
	return nil
}

func (m *mockEngine) DropStaging(ctx context.Context, ref string) error {
	m.mu.Lock()
	m.dropped = append(m.dropped, ref)
	m.mu.Unlock()
	if m.DropStagingFunc != nil {
		return m.DropStagingFunc(ctx, ref)
	}
	return nil
}

func (m *mockEngine) Close() error {
	m.mu.Lock()
	m.closed++
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// memorySink keeps every written table keyed by file name.
type memorySink struct {
	WriteFunc func(ctx context.Context, provider, filename string, t *table.Table) (string, error)

	mu     sync.Mutex
	tables map[string]*table.Table
}

func (s *memorySink) Write(ctx context.Context, provider, filename string, t *table.Table) (string, error) {
	if s.WriteFunc != nil {
		return s.WriteFunc(ctx, provider, filename, t)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tables == nil {
		s.tables = map[string]*table.Table{}
	}
	s.tables[filename] = t
	return "mem://" + provider + "/" + filename, nil
}

// orderColumns is the canonical schema without the item-derived columns.
func orderColumns() []string {
	derived := map[string]bool{}
	for _, c := range ItemDerivedColumns() {
		derived[c] = true
	}
	var cols []string
	for _, c := range CanonicalColumns {
		if !derived[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

type orderSpec struct {
	id            string
	tx            int64
	vendorGroup   string
	paymentSystem string
	orderVendor   string
}

// ordersTable builds an order-level result with upper-case column names, the
// way warehouses return unquoted aliases.
func ordersTable(t *testing.T, specs ...orderSpec) *table.Table {
	t.Helper()
	cols := orderColumns()
	upper := make([]string, len(cols))
	for i, c := range cols {
		upper[i] = strings.ToUpper(c)
	}
	out, err := table.New(upper...)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range specs {
		row := map[string]table.Value{
			"ORDER_ID":              s.id,
			"TRANSACTION_INDEX":     s.tx,
			"TRANSACTION_ID":        fmt.Sprintf("%s-tx%d", s.id, s.tx),
			"VENDOR_GROUP":          s.vendorGroup,
			"PAYMENT_SYSTEM":        s.paymentSystem,
			"ORDER_VENDOR":          s.orderVendor,
			"ORDER_COMPLETED":       true,
			"TOTAL_PAYMENT_INC_VAT": 12.5,
		}
		if err := out.AppendMap(row); err != nil {
			t.Fatal(err)
		}
	}
	return out
}

type itemSpec struct {
	orderID  string
	product  string
	band     string
	quantity int64
	inc      float64
	exc      float64
}

func itemsTable(t *testing.T, specs ...itemSpec) *table.Table {
	t.Helper()
	out, err := table.New("ORDER_ID", "PRODUCT_ID", "VAT_BAND",
		"ITEM_QUANTITY_COUNT", "TOTAL_PRICE_INC_VAT", "TOTAL_PRICE_EXC_VAT")
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range specs {
		if err := out.Append(s.orderID, s.product, s.band, s.quantity, s.inc, s.exc); err != nil {
			t.Fatal(err)
		}
	}
	return out
}

// warehouse returns a QueryFunc that serves orders for the order-level query
// and items for the item-level query.
func warehouse(orders, items *table.Table) func(context.Context, string) (*table.Table, error) {
	return func(_ context.Context, sql string) (*table.Table, error) {
		if strings.Contains(sql, "order_items") {
			return items, nil
		}
		return orders, nil
	}
}

// normalized lower-cases the columns of a raw test table.
func normalized(t *testing.T, raw *table.Table) *table.Table {
	t.Helper()
	out, err := normalizeTable(raw)
	if err != nil {
		t.Fatal(err)
	}
	return out
}
