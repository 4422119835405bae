package pipeline

import (
	"context"

	"github.com/dvloznov/orders-to-cash/internal/table"
)

// QueryEngine executes a fully rendered query and returns every row.
type QueryEngine interface {
	Query(ctx context.Context, sql string) (*table.Table, error)
}

// StagingEngine manages the per-run key staging table.
type StagingEngine interface {
	// CreateStaging creates or replaces a single-column string table and
	// returns a reference that can be embedded in SQL.
	CreateStaging(ctx context.Context, name, column string) (string, error)

	// InsertStaging inserts one batch of identifiers.
	InsertStaging(ctx context.Context, ref, column string, keys []string) error

	// DropStaging removes the staging table.
	DropStaging(ctx context.Context, ref string) error
}

// Engine is the exclusive warehouse connection used for one run.
type Engine interface {
	QueryEngine
	StagingEngine
	Close() error
}

// Sink writes one provider export table to its destination and returns a
// human-readable location.
type Sink interface {
	Write(ctx context.Context, provider, filename string, t *table.Table) (string, error)
}
