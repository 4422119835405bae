// Package sqlengine runs reconciliation queries against database/sql
// warehouses (Snowflake through gosnowflake, Postgres through pgx).
package sqlengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"github.com/dvloznov/orders-to-cash/internal/table"
)

var sqlOpen = sql.Open

// Engine holds a single pinned connection. Temporary staging tables are
// session-scoped, so every statement of a run must use the same session.
type Engine struct {
	db      *sql.DB
	conn    *sql.Conn
	dialect Dialect
}

// Open connects to the warehouse and reserves one connection for the run.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Engine, error) {
	db, err := sqlOpen(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("Open: opening %s connection: %w", dialect, err)
	}
	db.SetConnMaxLifetime(time.Hour)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("Open: acquiring %s connection: %w", dialect, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		db.Close()
		return nil, fmt.Errorf("Open: ping %s: %w", dialect, err)
	}
	return &Engine{db: db, conn: conn, dialect: dialect}, nil
}

// Dialect reports the engine's dialect.
func (e *Engine) Dialect() Dialect { return e.dialect }

// Close returns the pinned connection and closes the pool.
func (e *Engine) Close() error {
	var errs []error
	if e.conn != nil {
		errs = append(errs, e.conn.Close())
	}
	if e.db != nil {
		errs = append(errs, e.db.Close())
	}
	return errors.Join(errs...)
}

// Query runs sql on the pinned connection and materializes every row.
func (e *Engine) Query(ctx context.Context, query string) (*table.Table, error) {
	rows, err := e.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}
	defer rows.Close()

	out, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}
	return out, nil
}

// CreateStaging creates the session-scoped staging table.
func (e *Engine) CreateStaging(ctx context.Context, name, column string) (string, error) {
	ref := e.dialect.StagingRef(name)
	for _, stmt := range e.dialect.CreateStagingSQL(ref, column) {
		if _, err := e.conn.ExecContext(ctx, stmt); err != nil {
			return "", fmt.Errorf("CreateStaging: %w", err)
		}
	}
	return ref, nil
}

// InsertStaging inserts one batch with a single array-bound statement.
func (e *Engine) InsertStaging(ctx context.Context, ref, column string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	arg, err := e.dialect.BindKeys(keys)
	if err != nil {
		return fmt.Errorf("InsertStaging: %w", err)
	}
	if _, err := e.conn.ExecContext(ctx, e.dialect.InsertStagingSQL(ref, column), arg); err != nil {
		return fmt.Errorf("InsertStaging: %d keys: %w", len(keys), err)
	}
	return nil
}

// DropStaging drops the staging table.
func (e *Engine) DropStaging(ctx context.Context, ref string) error {
	if _, err := e.conn.ExecContext(ctx, e.dialect.DropStagingSQL(ref)); err != nil {
		return fmt.Errorf("DropStaging: %w", err)
	}
	return nil
}

// rowScanner is the subset of *sql.Rows used by scanRows.
type rowScanner interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRows(rows rowScanner) (*table.Table, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}
	out, err := table.New(cols...)
	if err != nil {
		return nil, err
	}

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row %d: %w", out.Len(), err)
		}
		row := make([]table.Value, len(values))
		for i, v := range values {
			row[i] = convertValue(v)
		}
		if err := out.Append(row...); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

// convertValue copies driver-owned byte slices and widens integer types.
// Snowflake returns NUMBER columns as strings, which the pipeline parses.
func convertValue(v any) table.Value {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}
