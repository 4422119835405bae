package bigquery

import (
	"context"
	"fmt"
	"math/big"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/orders-to-cash/internal/table"
)

// QueryWithClient runs sql and materializes every row. Column names are taken
// from the result schema as returned.
func QueryWithClient(ctx context.Context, client *bigquery.Client, location, sql string) (*table.Table, error) {
	q := client.Query(sql)
	q.Location = location

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryWithClient: reading query: %w", err)
	}

	var out *table.Table
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryWithClient: iterating: %w", err)
		}
		// The schema is only known once the first page has been fetched.
		if out == nil {
			if out, err = newTable(it.Schema); err != nil {
				return nil, err
			}
		}
		values := make([]table.Value, len(row))
		for i, v := range row {
			values[i] = convertValue(v)
		}
		if err := out.Append(values...); err != nil {
			return nil, fmt.Errorf("QueryWithClient: %w", err)
		}
	}

	if out == nil {
		return newTable(it.Schema)
	}
	return out, nil
}

func newTable(schema bigquery.Schema) (*table.Table, error) {
	cols := make([]string, len(schema))
	for i, f := range schema {
		cols[i] = f.Name
	}
	t, err := table.New(cols...)
	if err != nil {
		return nil, fmt.Errorf("QueryWithClient: result schema: %w", err)
	}
	return t, nil
}

// convertValue maps BigQuery cell types onto table values. NUMERIC and
// BIGNUMERIC become float64 so that sums stay in one numeric type.
func convertValue(v bigquery.Value) table.Value {
	switch x := v.(type) {
	case *big.Rat:
		if x == nil {
			return nil
		}
		f, _ := x.Float64()
		return f
	case []bigquery.Value:
		out := make([]table.Value, len(x))
		for i, e := range x {
			out[i] = convertValue(e)
		}
		return out
	default:
		return v
	}
}
