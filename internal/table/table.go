// Package table holds the in-memory tabular model shared by the query engines,
// the reconciliation pipeline and the exporters.
//
// A cell is an untyped Value. A nil Value is the missing marker and is kept
// distinct from a numeric zero all the way to serialization.
package table

import (
	"fmt"
	"sort"
)

// Value is a single cell. Supported dynamic types are string, int64, float64,
// bool, time.Time, civil.Date, civil.DateTime and nil (missing).
type Value = any

// Row is one record, positionally aligned with the table columns.
type Row []Value

// Table is an ordered set of named columns and fully materialized rows.
type Table struct {
	columns []string
	index   map[string]int
	rows    []Row
}

// New creates an empty table with the given columns.
func New(columns ...string) (*Table, error) {
	t := &Table{
		columns: make([]string, 0, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for _, c := range columns {
		if _, dup := t.index[c]; dup {
			return nil, fmt.Errorf("table.New: duplicate column %q", c)
		}
		t.index[c] = len(t.columns)
		t.columns = append(t.columns, c)
	}
	return t, nil
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Has reports whether the table has a column with the given name.
func (t *Table) Has(column string) bool {
	_, ok := t.index[column]
	return ok
}

// Index returns the position of a column.
func (t *Table) Index(column string) (int, bool) {
	i, ok := t.index[column]
	return i, ok
}

// Append adds a row. The number of values must match the number of columns.
func (t *Table) Append(values ...Value) error {
	if len(values) != len(t.columns) {
		return fmt.Errorf("table.Append: got %d values for %d columns", len(values), len(t.columns))
	}
	row := make(Row, len(values))
	copy(row, values)
	t.rows = append(t.rows, row)
	return nil
}

// AppendMap adds a row from a column->value map. Columns absent from the map
// are stored as missing; keys that are not columns are an error.
func (t *Table) AppendMap(values map[string]Value) error {
	row := make(Row, len(t.columns))
	for k, v := range values {
		i, ok := t.index[k]
		if !ok {
			return fmt.Errorf("table.AppendMap: unknown column %q", k)
		}
		row[i] = v
	}
	t.rows = append(t.rows, row)
	return nil
}

// Row returns the i-th row. The returned slice aliases table storage.
func (t *Table) Row(i int) Row { return t.rows[i] }

// Rows returns every row. The returned slice aliases table storage.
func (t *Table) Rows() []Row { return t.rows }

// Get returns the cell at row i in the named column, or nil when the column
// does not exist.
func (t *Table) Get(i int, column string) Value {
	c, ok := t.index[column]
	if !ok {
		return nil
	}
	return t.rows[i][c]
}

// Set overwrites the cell at row i in the named column.
func (t *Table) Set(i int, column string, v Value) error {
	c, ok := t.index[column]
	if !ok {
		return fmt.Errorf("table.Set: unknown column %q", column)
	}
	t.rows[i][c] = v
	return nil
}

// AddColumn appends a column, filling every existing row with fill.
func (t *Table) AddColumn(column string, fill Value) error {
	if _, dup := t.index[column]; dup {
		return fmt.Errorf("table.AddColumn: duplicate column %q", column)
	}
	t.index[column] = len(t.columns)
	t.columns = append(t.columns, column)
	for i := range t.rows {
		t.rows[i] = append(t.rows[i], fill)
	}
	return nil
}

// Select projects the table onto the given columns in the given order.
// When any column is absent it returns nil and the sorted list of missing columns.
func (t *Table) Select(columns []string) (*Table, []string) {
	var missing []string
	pos := make([]int, len(columns))
	for j, c := range columns {
		i, ok := t.index[c]
		if !ok {
			missing = append(missing, c)
			continue
		}
		pos[j] = i
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, missing
	}

	out, err := New(columns...)
	if err != nil {
		return nil, []string{err.Error()}
	}
	out.rows = make([]Row, len(t.rows))
	for r, row := range t.rows {
		nr := make(Row, len(columns))
		for j, i := range pos {
			nr[j] = row[i]
		}
		out.rows[r] = nr
	}
	return out, nil
}

// Filter returns a new table with the same columns holding the rows for which
// keep returns true. Rows are shared, not copied.
func (t *Table) Filter(keep func(i int) bool) *Table {
	out := t.emptyLike()
	for i, row := range t.rows {
		if keep(i) {
			out.rows = append(out.rows, row)
		}
	}
	return out
}

// SortStable sorts rows in place, keeping the input order of equal rows.
func (t *Table) SortStable(less func(a, b Row) bool) {
	sort.SliceStable(t.rows, func(i, j int) bool {
		return less(t.rows[i], t.rows[j])
	})
}

func (t *Table) emptyLike() *Table {
	out := &Table{
		columns: t.Columns(),
		index:   make(map[string]int, len(t.index)),
	}
	for k, v := range t.index {
		out.index[k] = v
	}
	return out
}
