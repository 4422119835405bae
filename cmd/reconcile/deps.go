package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/dvloznov/orders-to-cash/internal/config"
	"github.com/dvloznov/orders-to-cash/internal/export"
	"github.com/dvloznov/orders-to-cash/internal/gcsuploader"
	infra "github.com/dvloznov/orders-to-cash/internal/infra/bigquery"
	"github.com/dvloznov/orders-to-cash/internal/infra/sqlengine"
	"github.com/dvloznov/orders-to-cash/internal/logger"
	"github.com/dvloznov/orders-to-cash/internal/pipeline"
	"github.com/dvloznov/orders-to-cash/internal/table"
)

func clientOptions(s *config.Settings) []option.ClientOption {
	if s.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(s.CredentialsFile)}
}

// openEngine connects to the configured warehouse.
func openEngine(ctx context.Context, s *config.Settings) (pipeline.Engine, error) {
	switch s.Engine {
	case config.EngineBigQuery:
		return infra.NewEngine(ctx, s.GCPProject, s.BQDataset, s.BQLocation, clientOptions(s)...)
	default:
		d, err := sqlengine.ParseDialect(s.Engine)
		if err != nil {
			return nil, err
		}
		return sqlengine.Open(ctx, d, s.DSN)
	}
}

// openSink returns the export destination and a function releasing it.
func openSink(ctx context.Context, s *config.Settings) (pipeline.Sink, func(), error) {
	switch s.ExportTarget {
	case config.TargetGCS:
		store, err := gcsuploader.NewStore(ctx, clientOptions(s)...)
		if err != nil {
			return nil, nil, err
		}
		return export.NewObjectSink(store, s.ExportBucket, s.ExportPrefix), func() { store.Close() }, nil
	default:
		return export.NewLocalSink(s.ExportRoot), func() {}, nil
	}
}

// buildDeps wires the run collaborators. The returned cleanup releases the
// sink; the engine is owned by pipeline.Run.
func buildDeps(ctx context.Context, s *config.Settings) (pipeline.Deps, func(), error) {
	sink, closeSink, err := openSink(ctx, s)
	if err != nil {
		return pipeline.Deps{}, nil, fmt.Errorf("opening export target: %w", err)
	}
	engine, err := openEngine(ctx, s)
	if err != nil {
		closeSink()
		return pipeline.Deps{}, nil, fmt.Errorf("connecting to %s: %w", s.Engine, err)
	}

	deps := pipeline.Deps{Engine: engine, Sink: sink}
	if s.SQLDir != "" {
		deps.Templates = os.DirFS(s.SQLDir)
	}
	return deps, closeSink, nil
}

func providerFolder(key string) string {
	if sub, ok := export.DefaultSubpaths[key]; ok {
		return sub
	}
	return key
}

func runInspect(log zerolog.Logger, settings *config.Settings) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	file := fs.String("file", "", "Export to inspect: local path or gs://bucket/object (required)")
	fs.Parse(os.Args[2:])

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Error: -file is required")
		fs.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	r, err := openExport(ctx, settings, *file)
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("Failed to open export")
	}
	t, err := export.ReadCSV(r)
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("Failed to parse export")
	}

	fmt.Printf("%s\n", *file)
	fmt.Printf("Rows: %d, columns: %d\n\n", t.Len(), len(t.Columns()))
	for _, c := range columnSummaries(t) {
		fmt.Printf("  %-40s %d missing\n", c.name, c.missing)
	}
}

func openExport(ctx context.Context, s *config.Settings, path string) (io.Reader, error) {
	if !strings.HasPrefix(path, "gs://") {
		f, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(f), nil
	}

	store, err := gcsuploader.NewStore(ctx, clientOptions(s)...)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	data, err := store.FetchFromGCS(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("object is empty")
	}
	return bytes.NewReader(data), nil
}

type columnSummary struct {
	name    string
	missing int
}

func columnSummaries(t *table.Table) []columnSummary {
	out := make([]columnSummary, len(t.Columns()))
	for i, c := range t.Columns() {
		out[i].name = c
		for r := 0; r < t.Len(); r++ {
			if t.Get(r, c) == nil {
				out[i].missing++
			}
		}
	}
	return out
}
