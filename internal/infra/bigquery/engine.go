package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/option"

	"github.com/dvloznov/orders-to-cash/internal/table"
)

// DefaultStagingTTL is how long an abandoned staging table survives before
// BigQuery expires it.
const DefaultStagingTTL = 6 * time.Hour

// Engine runs reconciliation queries and manages key staging tables in
// BigQuery. It holds one client for the whole run.
type Engine struct {
	client     *bigquery.Client
	project    string
	dataset    string
	location   string
	stagingTTL time.Duration
}

// NewEngine creates a BigQuery client for project. Staging tables are created
// in dataset; location pins query jobs to the dataset's region.
func NewEngine(ctx context.Context, project, dataset, location string, opts ...option.ClientOption) (*Engine, error) {
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewEngine: creating client: %w", err)
	}
	e := NewEngineWithClient(client, dataset)
	e.location = location
	return e, nil
}

// NewEngineWithClient wraps an existing client.
func NewEngineWithClient(client *bigquery.Client, dataset string) *Engine {
	return &Engine{
		client:     client,
		project:    client.Project(),
		dataset:    dataset,
		stagingTTL: DefaultStagingTTL,
	}
}

// Close closes the BigQuery client connection.
func (e *Engine) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// Query delegates to QueryWithClient with the shared client.
func (e *Engine) Query(ctx context.Context, sql string) (*table.Table, error) {
	return QueryWithClient(ctx, e.client, e.location, sql)
}

// CreateStaging delegates to CreateStagingTableWithClient with a run-unique
// table name derived from name.
func (e *Engine) CreateStaging(ctx context.Context, name, column string) (string, error) {
	ref := stagingRef(e.project, e.dataset, name)
	if err := CreateStagingTableWithClient(ctx, e.client, e.location, ref, column, e.stagingTTL); err != nil {
		return "", err
	}
	return ref, nil
}

// InsertStaging delegates to InsertStagingKeysWithClient.
func (e *Engine) InsertStaging(ctx context.Context, ref, column string, keys []string) error {
	return InsertStagingKeysWithClient(ctx, e.client, e.location, ref, column, keys)
}

// DropStaging delegates to DropStagingTableWithClient.
func (e *Engine) DropStaging(ctx context.Context, ref string) error {
	return DropStagingTableWithClient(ctx, e.client, e.location, ref)
}
