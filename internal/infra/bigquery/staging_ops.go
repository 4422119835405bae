package bigquery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
)

// stagingRef returns a fully qualified, run-unique table reference such as
// `project.dataset.temp_order_ids_3f2a...`.
func stagingRef(project, dataset, name string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("`%s.%s.%s_%s`", project, dataset, name, suffix)
}

// createStagingSQL renders the expiry as a constant expression; DDL OPTIONS
// do not accept query parameters.
func createStagingSQL(ref, column string, ttl time.Duration) string {
	return fmt.Sprintf(`
		CREATE OR REPLACE TABLE %s (%s STRING)
		OPTIONS (expiration_timestamp = TIMESTAMP_ADD(CURRENT_TIMESTAMP(), INTERVAL %d SECOND))
	`, ref, column, int64(ttl/time.Second))
}

func insertStagingSQL(ref, column string) string {
	return fmt.Sprintf(`
		INSERT INTO %s (%s)
		SELECT id FROM UNNEST(@ids) AS id
	`, ref, column)
}

func dropStagingSQL(ref string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", ref)
}

// CreateStagingTableWithClient creates or replaces a single STRING column
// table that expires ttl after creation.
func CreateStagingTableWithClient(ctx context.Context, client *bigquery.Client, location, ref, column string, ttl time.Duration) error {
	q := client.Query(createStagingSQL(ref, column, ttl))
	q.Location = location
	if err := runAndWait(ctx, q); err != nil {
		return fmt.Errorf("CreateStagingTable: %w", err)
	}
	return nil
}

// InsertStagingKeysWithClient inserts one batch of ids as a single DML
// statement with an array parameter.
func InsertStagingKeysWithClient(ctx context.Context, client *bigquery.Client, location, ref, column string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	q := client.Query(insertStagingSQL(ref, column))
	q.Location = location
	q.Parameters = []bigquery.QueryParameter{
		{Name: "ids", Value: keys},
	}
	if err := runAndWait(ctx, q); err != nil {
		return fmt.Errorf("InsertStagingKeys: %d keys: %w", len(keys), err)
	}
	return nil
}

// DropStagingTableWithClient drops the staging table if it still exists.
func DropStagingTableWithClient(ctx context.Context, client *bigquery.Client, location, ref string) error {
	q := client.Query(dropStagingSQL(ref))
	q.Location = location
	if err := runAndWait(ctx, q); err != nil {
		return fmt.Errorf("DropStagingTable: %w", err)
	}
	return nil
}

// runAndWait runs a DDL/DML job to completion.
func runAndWait(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
