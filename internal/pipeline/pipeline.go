package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/orders-to-cash/internal/config"
	"github.com/dvloznov/orders-to-cash/internal/logger"
)

// StageTiming records how long one stage took.
type StageTiming struct {
	Stage    Stage
	Duration time.Duration
}

// Report summarizes a reconciliation run.
type Report struct {
	RunID     string
	Period    string
	StartedAt time.Time
	Finished  Stage

	Timings []StageTiming

	OrderRows      int
	StagedKeys     int
	StagingBatches int
	ItemRows       int
	FinalRows      int
	UnmatchedRows  int

	// UnrecognizedVATBands counts item rows per VAT label routed to "other".
	UnrecognizedVATBands map[string]int

	Exports []ExportResult
}

// Written returns the exports that produced a file.
func (r *Report) Written() []ExportResult {
	var out []ExportResult
	for _, e := range r.Exports {
		if !e.Skipped && e.Location != "" {
			out = append(out, e)
		}
	}
	return out
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially. A failing step is reported as a
// *StageError carrying the stage and the rows it processed.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)

	for _, step := range p.steps {
		stage := step.Stage()
		state.Processed = 0
		log.Info().Str("stage", string(stage)).Msg("Stage started")

		started := time.Now()
		err := step.Execute(ctx, state)
		elapsed := time.Since(started)
		if state.Report != nil {
			state.Report.Timings = append(state.Report.Timings, StageTiming{Stage: stage, Duration: elapsed})
		}

		if err != nil {
			if state.Report != nil {
				state.Report.Finished = StageFailed
			}
			return &StageError{Stage: stage, Processed: state.Processed, Err: err}
		}
		log.Info().Str("stage", string(stage)).Dur("elapsed", elapsed).Msg("Stage finished")
	}

	if state.Report != nil {
		state.Report.Finished = StageDone
	}
	return nil
}

// Deps are the collaborators of a run.
type Deps struct {
	// Engine is owned by the run and closed before Run returns.
	Engine Engine

	// Templates holds the query files; nil uses the embedded defaults.
	Templates fs.FS

	Sink Sink

	// Providers overrides the default provider list.
	Providers []Provider
}

// releaser closes the engine exactly once and drops the staging table first
// when one was created.
type releaser struct {
	once   sync.Once
	engine Engine
	state  *PipelineState
	err    error
}

func (r *releaser) release(ctx context.Context) error {
	r.once.Do(func() {
		log := logger.FromContext(ctx)
		if r.state.Staged != nil && r.state.Staged.Ref != "" {
			if err := r.engine.DropStaging(ctx, r.state.Staged.Ref); err != nil {
				log.Warn().Err(err).Str("table", r.state.Staged.Ref).Msg("Failed to drop staging table")
			}
		}
		if err := r.engine.Close(); err != nil {
			r.err = fmt.Errorf("closing warehouse connection: %w", err)
			log.Warn().Err(err).Msg("Failed to close warehouse connection")
		}
	})
	return r.err
}

// NewReconciliationPipeline creates the standard order-to-cash pipeline.
// The order query runs first because its result is the staging input.
func NewReconciliationPipeline(deps Deps) *Pipeline {
	return newReconciliationPipeline(deps, nil)
}

func newReconciliationPipeline(deps Deps, release func(context.Context)) *Pipeline {
	runner := NewRunner(deps.Engine, deps.Templates)
	return NewPipeline(
		&QueryOrdersStep{Runner: runner},
		&StageKeysStep{Engine: deps.Engine},
		&QueryItemsStep{Runner: runner},
		&TransformStep{},
		&MergeStep{},
		&PartitionExportStep{Sink: deps.Sink, Providers: deps.Providers, BeforeExport: release},
	)
}

// Run executes one reconciliation for cfg. The engine is closed on every path
// and the staging table is dropped when it was created.
func Run(ctx context.Context, cfg config.RunConfig, deps Deps) (*Report, error) {
	if deps.Engine == nil {
		return nil, errors.New("Run: engine is required")
	}
	if deps.Sink == nil {
		if err := deps.Engine.Close(); err != nil {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Msg("Failed to close warehouse connection")
		}
		return nil, errors.New("Run: sink is required")
	}

	state := &PipelineState{
		Config: cfg,
		RunID:  uuid.NewString(),
	}
	state.Report = &Report{
		RunID:     state.RunID,
		Period:    cfg.PeriodLabel(),
		StartedAt: time.Now(),
	}

	rel := &releaser{engine: deps.Engine, state: state}
	// The cleanup must run even when ctx is already cancelled.
	defer rel.release(context.WithoutCancel(ctx))

	if err := cfg.Validate(); err != nil {
		state.Report.Finished = StageFailed
		return state.Report, fmt.Errorf("Run: %w", err)
	}

	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
		"run_id": state.RunID,
		"period": state.Report.Period,
	})
	ctx = logger.WithContext(ctx, log)

	log.Info().
		Str("start_date", cfg.StartDate.String()).
		Str("end_date", cfg.EndDate.String()).
		Int("batch_size", cfg.BatchSize).
		Msg("Starting reconciliation run")

	// The warehouse connection is not needed once the merge is done.
	p := newReconciliationPipeline(deps, func(ctx context.Context) { _ = rel.release(ctx) })
	if err := p.Execute(ctx, state); err != nil {
		var se *StageError
		if errors.As(err, &se) {
			log.Error().Err(se.Err).
				Str("stage", string(se.Stage)).
				Int("processed", se.Processed).
				Msg("Reconciliation run failed")
		}
		return state.Report, err
	}

	log.Info().
		Int("final_rows", state.Report.FinalRows).
		Int("files", len(state.Report.Written())).
		Int("unmatched_rows", state.Report.UnmatchedRows).
		Dur("elapsed", time.Since(state.Report.StartedAt)).
		Msg("Reconciliation run complete")
	return state.Report, nil
}
