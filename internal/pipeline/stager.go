package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// DefaultBatchSize is the number of identifiers sent per staging insert.
const DefaultBatchSize = 25000

// StagingTable is the logical name of the per-run key staging table.
const StagingTable = "temp_order_ids"

// StagingColumn is the single column of the staging table.
const StagingColumn = "order_id"

// ProgressFunc is called after every staged batch with the cumulative number
// of identifiers inserted and the total to insert.
type ProgressFunc func(done, total int)

// StagedKeys describes a populated staging table.
type StagedKeys struct {
	// Ref is the engine-specific, SQL-ready reference to the staging table.
	Ref     string
	Count   int
	Batches int
}

// SubQuery returns a sub-query yielding the staged identifiers.
func (s *StagedKeys) SubQuery() string {
	return fmt.Sprintf("SELECT %s FROM %s", StagingColumn, s.Ref)
}

// UniqueKeys drops blank identifiers and duplicates, keeping first-seen order.
func UniqueKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.TrimSpace(k) == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// StageKeys uploads the unique, non-blank identifiers to a freshly created
// staging table in consecutive batches of at most batchSize.
func StageKeys(ctx context.Context, engine StagingEngine, keys []string, batchSize int, progress ProgressFunc) (*StagedKeys, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("StageKeys: batch size must be positive, got %d", batchSize)
	}

	unique := UniqueKeys(keys)
	if len(unique) == 0 {
		return nil, ErrEmptyKeySet
	}

	ref, err := engine.CreateStaging(ctx, StagingTable, StagingColumn)
	if err != nil {
		return nil, fmt.Errorf("StageKeys: creating staging table: %w", err)
	}

	staged := &StagedKeys{Ref: ref}
	for start := 0; start < len(unique); start += batchSize {
		end := min(start+batchSize, len(unique))
		if err := engine.InsertStaging(ctx, ref, StagingColumn, unique[start:end]); err != nil {
			return staged, fmt.Errorf("StageKeys: inserting batch %d (%d/%d staged): %w",
				staged.Batches+1, staged.Count, len(unique), err)
		}
		staged.Batches++
		staged.Count = end
		if progress != nil {
			progress(staged.Count, len(unique))
		}
	}

	return staged, nil
}
