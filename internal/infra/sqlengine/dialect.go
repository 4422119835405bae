package sqlengine

import (
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/snowflakedb/gosnowflake" // register the snowflake database/sql driver
)

// Dialect selects the driver and the staging SQL for a warehouse.
type Dialect string

const (
	Snowflake Dialect = "snowflake"
	Postgres  Dialect = "postgres"
)

// ParseDialect maps an engine name to a dialect.
func ParseDialect(name string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(name))); d {
	case Snowflake, Postgres:
		return d, nil
	default:
		return "", fmt.Errorf("unsupported SQL dialect %q", name)
	}
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "snowflake"
}

// StagingRef qualifies a staging table name so that it can only ever resolve
// to a session-scoped table.
func (d Dialect) StagingRef(name string) string {
	if d == Postgres {
		return "pg_temp." + name
	}
	return name
}

// CreateStagingSQL returns the statements that leave an empty, session-scoped
// staging table behind.
func (d Dialect) CreateStagingSQL(ref, column string) []string {
	if d == Postgres {
		return []string{
			fmt.Sprintf("DROP TABLE IF EXISTS %s", ref),
			fmt.Sprintf("CREATE TABLE %s (%s TEXT)", ref, column),
		}
	}
	return []string{
		fmt.Sprintf("CREATE OR REPLACE TEMPORARY TABLE %s (%s VARCHAR)", ref, column),
	}
}

// InsertStagingSQL returns a statement inserting one batch bound as a single
// array argument (see BindKeys).
func (d Dialect) InsertStagingSQL(ref, column string) string {
	if d == Postgres {
		return fmt.Sprintf("INSERT INTO %s (%s) SELECT unnest($1::text[])", ref, column)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT f.value::VARCHAR FROM TABLE(FLATTEN(INPUT => PARSE_JSON(?))) f", ref, column)
}

// BindKeys wraps a batch as the driver-specific array argument: a text[] for
// Postgres, a JSON array for Snowflake.
func (d Dialect) BindKeys(keys []string) (any, error) {
	if d == Postgres {
		return keys, nil
	}
	b, err := json.Marshal(keys)
	if err != nil {
		return nil, fmt.Errorf("encoding keys: %w", err)
	}
	return string(b), nil
}

// DropStagingSQL drops the staging table if it still exists.
func (d Dialect) DropStagingSQL(ref string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", ref)
}
