package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/orders-to-cash/internal/config"
	"github.com/dvloznov/orders-to-cash/internal/logger"
	"github.com/dvloznov/orders-to-cash/internal/pipeline"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		log, settings := setup()
		runReconcile(log, settings)
	case "inspect":
		log, settings := setup()
		runInspect(log, settings)
	case "providers":
		runProviders()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Orders-to-Cash reconciliation")
	fmt.Println("\nUsage:")
	fmt.Println("  reconcile <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  run        Extract, reconcile and export one period")
	fmt.Println("  inspect    Summarize an exported CSV (local path or gs:// URI)")
	fmt.Println("  providers  List export providers and their folders")
	fmt.Println("  help       Show this help message")
	fmt.Println("\nSettings are read from the environment and an optional .env file.")
	fmt.Println("Run 'reconcile <command> -h' for more information on a command.")
}

// setup loads settings and builds the process logger.
func setup() (zerolog.Logger, *config.Settings) {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	settings, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return logger.NewWithOptions(os.Stderr, settings.LogLevel, settings.LogFormat), settings
}

func runReconcile(log zerolog.Logger, settings *config.Settings) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	start := fs.String("start", "", "First day of the period (YYYY-MM-DD)")
	end := fs.String("end", "", "Last day of the period, inclusive (YYYY-MM-DD)")
	month := fs.String("month", "", "Whole calendar month (YYYY-MM); alternative to -start/-end")
	notes := fs.String("notes", "", "Free-text tag appended to export file names")
	fs.Parse(os.Args[2:])

	cfg, err := buildRunConfig(*start, *end, *month, *notes, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid period")
	}
	cfg = settings.Apply(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	log.Info().Str("settings", settings.String()).Msg("Loaded settings")

	deps, closeSink, err := buildDeps(ctx, settings)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	report, err := pipeline.Run(ctx, cfg, deps)
	closeSink()
	if report != nil {
		printReport(report)
	}
	if err != nil {
		var se *pipeline.StageError
		if errors.As(err, &se) {
			log.Fatal().Err(se.Err).Str("stage", string(se.Stage)).Msg("Reconciliation failed")
		}
		log.Fatal().Err(err).Msg("Reconciliation failed")
	}
}

// buildRunConfig resolves the period flags. Without any flag the previous
// calendar month is used.
func buildRunConfig(start, end, month, notes string, now time.Time) (config.RunConfig, error) {
	switch {
	case month != "" && (start != "" || end != ""):
		return config.RunConfig{}, errors.New("-month cannot be combined with -start/-end")
	case month != "":
		day, err := time.Parse("2006-01", month)
		if err != nil {
			return config.RunConfig{}, fmt.Errorf("invalid -month %q: %w", month, err)
		}
		return config.MonthRange(day, notes), nil
	case start != "" || end != "":
		return config.NewRunConfig(start, end, notes)
	default:
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return config.MonthRange(first.AddDate(0, -1, 0), notes), nil
	}
}

func printReport(r *pipeline.Report) {
	fmt.Printf("\nRun %s (%s): %s\n", r.RunID, r.Period, r.Finished)
	fmt.Printf("Orders: %d rows, %d ids staged in %d batches\n", r.OrderRows, r.StagedKeys, r.StagingBatches)
	fmt.Printf("Items: %d rows, final table: %d rows\n", r.ItemRows, r.FinalRows)
	if r.UnmatchedRows > 0 {
		fmt.Printf("Rows matching no provider: %d\n", r.UnmatchedRows)
	}
	if len(r.UnrecognizedVATBands) > 0 {
		labels := make([]string, 0, len(r.UnrecognizedVATBands))
		for l := range r.UnrecognizedVATBands {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		for _, l := range labels {
			fmt.Printf("Unrecognized VAT band %q: %d item rows\n", l, r.UnrecognizedVATBands[l])
		}
	}

	if len(r.Exports) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PROVIDER\tROWS\tLOCATION")
		for _, e := range r.Exports {
			loc := e.Location
			if e.Skipped {
				loc = "(skipped, no rows)"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\n", e.Provider, e.Rows, loc)
		}
		w.Flush()
	}

	var timings []string
	for _, t := range r.Timings {
		timings = append(timings, fmt.Sprintf("%s %s", t.Stage, t.Duration.Round(time.Millisecond)))
	}
	if len(timings) > 0 {
		fmt.Printf("\nStages: %s\n", strings.Join(timings, ", "))
	}
}

func runProviders() {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tKEY\tFOLDER")
	for _, p := range pipeline.Providers {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, p.Key, providerFolder(p.Key))
	}
	w.Flush()
}
