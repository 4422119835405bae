package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/orders-to-cash/internal/config"
	"github.com/dvloznov/orders-to-cash/internal/logger"
	"github.com/dvloznov/orders-to-cash/internal/table"
)

// Stage names one state of a reconciliation run.
type Stage string

const (
	StageStaging            Stage = "STAGING"
	StageQueryOrders        Stage = "QUERY_ORDERS"
	StageQueryItems         Stage = "QUERY_ITEMS"
	StageTransform          Stage = "TRANSFORM"
	StageMerge              Stage = "MERGE"
	StagePartitionAndExport Stage = "PARTITION_AND_EXPORT"
	StageDone               Stage = "DONE"
	StageFailed             Stage = "FAILED"
)

// PipelineStep represents a single step in a reconciliation run.
type PipelineStep interface {
	Stage() Stage
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the tables materialized so far. Every step reads the
// outputs of earlier steps and writes its own.
type PipelineState struct {
	Config config.RunConfig
	RunID  string

	Orders     *table.Table
	Staged     *StagedKeys
	Items      *table.Table
	Aggregates *table.Table
	Final      *table.Table

	Partitioning Partitioning
	Exports      []ExportResult

	// Processed is the number of rows the current step has handled; it is
	// reported when the step fails.
	Processed int

	Report *Report
}

// QueryOrdersStep runs the order-level query for the configured period.
type QueryOrdersStep struct {
	Runner *Runner
}

func (s *QueryOrdersStep) Stage() Stage { return StageQueryOrders }

func (s *QueryOrdersStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	log.Info().
		Str("start_date", state.Config.StartDate.String()).
		Str("end_date", state.Config.EndDate.String()).
		Msg("Executing order-level query")

	orders, err := s.Runner.OrderLevel(ctx, state.Config.StartDate, state.Config.EndDate)
	if err != nil {
		return err
	}
	if !orders.Has(ColOrderID) {
		return &SchemaMismatchError{Missing: []string{ColOrderID}}
	}
	state.Orders = orders
	state.Processed = orders.Len()
	state.Report.OrderRows = orders.Len()
	return nil
}

// StageKeysStep uploads the distinct order ids to the staging table.
type StageKeysStep struct {
	Engine StagingEngine
}

func (s *StageKeysStep) Stage() Stage { return StageStaging }

func (s *StageKeysStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	keys := make([]string, 0, state.Orders.Len())
	for i := 0; i < state.Orders.Len(); i++ {
		if v := state.Orders.Get(i, ColOrderID); v != nil {
			keys = append(keys, table.Format(v))
		}
	}

	started := time.Now()
	staged, err := StageKeys(ctx, s.Engine, keys, state.Config.BatchSize, func(done, total int) {
		state.Processed = done
		log.Info().
			Int("inserted", done).
			Int("total", total).
			Str("percent", fmt.Sprintf("%.1f%%", float64(done)/float64(total)*100)).
			Msg("Staging order ids")
	})
	if staged != nil {
		state.Staged = staged
	}
	if err != nil {
		return err
	}

	state.Report.StagedKeys = staged.Count
	state.Report.StagingBatches = staged.Batches
	log.Info().
		Int("ids", staged.Count).
		Int("batches", staged.Batches).
		Dur("elapsed", time.Since(started)).
		Msg("Uploaded order ids")
	return nil
}

// QueryItemsStep runs the item-level query bounded to the staged ids.
type QueryItemsStep struct {
	Runner *Runner
}

func (s *QueryItemsStep) Stage() Stage { return StageQueryItems }

func (s *QueryItemsStep) Execute(ctx context.Context, state *PipelineState) error {
	items, err := s.Runner.ItemLevel(ctx, state.Staged)
	if err != nil {
		return err
	}
	state.Items = items
	state.Processed = items.Len()
	state.Report.ItemRows = items.Len()
	return nil
}

// TransformStep pivots item rows into per-order VAT-band aggregates.
type TransformStep struct{}

func (s *TransformStep) Stage() Stage { return StageTransform }

func (s *TransformStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	agg, stats, err := PivotVATBands(state.Items, PivotOptions{Strict: state.Config.StrictVATBands})
	state.Processed = stats.ItemRows
	if err != nil {
		return err
	}
	for label, n := range stats.Unrecognized {
		log.Warn().Str("label", label).Int("rows", n).Msg("Unrecognized VAT band routed to other")
	}
	if stats.SkippedNoKey > 0 {
		log.Warn().Int("rows", stats.SkippedNoKey).Msg("Item rows without order_id ignored")
	}

	state.Aggregates = agg
	state.Report.UnrecognizedVATBands = stats.Unrecognized
	log.Info().Int("orders", stats.Orders).Int("item_rows", stats.ItemRows).Msg("Pivoted VAT bands")
	return nil
}

// MergeStep joins aggregates onto orders and validates the canonical schema.
type MergeStep struct{}

func (s *MergeStep) Stage() Stage { return StageMerge }

func (s *MergeStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	final, stats, err := MergeItems(state.Orders, state.Aggregates)
	state.Processed = stats.OrderRows
	if err != nil {
		return err
	}

	state.Final = final
	state.Report.FinalRows = final.Len()
	log.Info().
		Int("rows", final.Len()).
		Int("columns", stats.OutputColumnCount).
		Int("orders_without_items", stats.Unmatched).
		Int("suppressed_tx_rows", stats.SuppressedTxRows).
		Msg("Combined order and item data")
	return nil
}

// PartitionExportStep routes final rows to providers and writes each partition.
type PartitionExportStep struct {
	Sink      Sink
	Providers []Provider

	// BeforeExport, when set, runs before any partition is written.
	BeforeExport func(ctx context.Context)
}

func (s *PartitionExportStep) Stage() Stage { return StagePartitionAndExport }

func (s *PartitionExportStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	if s.BeforeExport != nil {
		s.BeforeExport(ctx)
	}

	providers := s.Providers
	if providers == nil {
		providers = Providers
	}
	state.Partitioning = PartitionRows(state.Final, providers)
	state.Report.UnmatchedRows = state.Partitioning.Unmatched
	if state.Partitioning.Unmatched > 0 {
		log.Warn().
			Int("rows", state.Partitioning.Unmatched).
			Msg("Rows matched no provider and are excluded from every export")
	}

	naming := ExportNaming{PeriodLabel: state.Config.PeriodLabel(), Notes: state.Config.Notes}
	results, err := ExportPartitions(ctx, state.Partitioning.Partitions, s.Sink, naming, state.Config.ConcurrentExport)
	for _, r := range results {
		if r.Location != "" {
			state.Processed += r.Rows
		}
	}
	state.Exports = results
	state.Report.Exports = results
	return err
}
