package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/orders-to-cash/internal/queries"
	"github.com/dvloznov/orders-to-cash/internal/table"
)

// Template placeholders.
const (
	ParamStartDate   = "start_date"
	ParamEndDate     = "end_date"
	ParamOrderIDList = "order_id_list"
)

// Runner renders query templates and executes them against the engine.
type Runner struct {
	Engine    QueryEngine
	Templates fs.FS
}

// NewRunner creates a Runner. A nil templates FS selects the embedded defaults.
func NewRunner(engine QueryEngine, templates fs.FS) *Runner {
	if templates == nil {
		templates = queries.Default()
	}
	return &Runner{Engine: engine, Templates: templates}
}

// Render loads the named template and substitutes every {{key}} placeholder
// with the literal value. Values are internally generated dates and table
// references, so no escaping is applied.
func (r *Runner) Render(name string, params map[string]string) (string, error) {
	b, err := fs.ReadFile(r.Templates, name)
	if err != nil {
		return "", &QuerySourceMissingError{Name: name, Err: err}
	}

	// Sorted keys keep the substitution order deterministic.
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sql := string(b)
	for _, k := range keys {
		sql = strings.ReplaceAll(sql, "{{"+k+"}}", params[k])
	}
	return sql, nil
}

// Run renders and executes a template, returning a table with normalized
// column names.
func (r *Runner) Run(ctx context.Context, name string, params map[string]string) (*table.Table, error) {
	sql, err := r.Render(name, params)
	if err != nil {
		return nil, err
	}

	raw, err := r.Engine.Query(ctx, sql)
	if err != nil {
		return nil, &QueryExecutionError{Query: name, Err: err}
	}

	out, err := normalizeTable(raw)
	if err != nil {
		return nil, &QueryExecutionError{Query: name, Err: err}
	}
	return out, nil
}

// OrderLevel runs the order-level query for the inclusive date range.
func (r *Runner) OrderLevel(ctx context.Context, start, end civil.Date) (*table.Table, error) {
	return r.Run(ctx, queries.OrderLevel, map[string]string{
		ParamStartDate: start.String(),
		ParamEndDate:   end.String(),
	})
}

// ItemLevel runs the item-level query bounded to the staged order ids.
func (r *Runner) ItemLevel(ctx context.Context, staged *StagedKeys) (*table.Table, error) {
	return r.Run(ctx, queries.ItemLevel, map[string]string{
		ParamOrderIDList: staged.SubQuery(),
	})
}

func normalizeTable(raw *table.Table) (*table.Table, error) {
	cols, err := table.NormalizeColumns(raw.Columns())
	if err != nil {
		return nil, fmt.Errorf("normalizing result columns: %w", err)
	}
	out, err := table.New(cols...)
	if err != nil {
		return nil, err
	}
	for _, row := range raw.Rows() {
		if err := out.Append(row...); err != nil {
			return nil, err
		}
	}
	return out, nil
}
