// Package config holds the immutable run configuration and the process
// settings loaded from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// DefaultBatchSize is the number of order ids sent per staging insert.
const DefaultBatchSize = 25000

// RunConfig is everything one reconciliation run needs to know about what to
// extract. It is built once by the caller and passed by value.
type RunConfig struct {
	StartDate civil.Date
	EndDate   civil.Date
	Notes     string

	BatchSize        int
	StrictVATBands   bool
	ConcurrentExport bool
}

// NewRunConfig parses YYYY-MM-DD dates and applies defaults.
func NewRunConfig(start, end, notes string) (RunConfig, error) {
	s, err := civil.ParseDate(strings.TrimSpace(start))
	if err != nil {
		return RunConfig{}, fmt.Errorf("NewRunConfig: invalid start date %q: %w", start, err)
	}
	e, err := civil.ParseDate(strings.TrimSpace(end))
	if err != nil {
		return RunConfig{}, fmt.Errorf("NewRunConfig: invalid end date %q: %w", end, err)
	}

	cfg := RunConfig{
		StartDate: s,
		EndDate:   e,
		Notes:     strings.TrimSpace(notes),
		BatchSize: DefaultBatchSize,
	}
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// MonthRange returns a config covering the calendar month containing day.
func MonthRange(day time.Time, notes string) RunConfig {
	d := civil.DateOf(day)
	start := civil.Date{Year: d.Year, Month: d.Month, Day: 1}
	end := start.AddMonths(1).AddDays(-1)
	return RunConfig{StartDate: start, EndDate: end, Notes: notes, BatchSize: DefaultBatchSize}
}

// Validate checks the date range and batch size.
func (c RunConfig) Validate() error {
	var errs []string
	if !c.StartDate.IsValid() {
		errs = append(errs, "start date is not a valid date")
	}
	if !c.EndDate.IsValid() {
		errs = append(errs, "end date is not a valid date")
	}
	if c.StartDate.IsValid() && c.EndDate.IsValid() && c.EndDate.Before(c.StartDate) {
		errs = append(errs, fmt.Sprintf("end date %s is before start date %s", c.EndDate, c.StartDate))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Sprintf("batch size (%d) must be positive", c.BatchSize))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid run config:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// PeriodLabel returns the YY.MM label of the start date used in export names.
func (c RunConfig) PeriodLabel() string {
	return fmt.Sprintf("%02d.%02d", c.StartDate.Year%100, int(c.StartDate.Month))
}
