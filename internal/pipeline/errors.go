package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyKeySet is returned when there are no identifiers left to stage after
// dropping blanks and duplicates. Usually the order query returned zero rows
// for the period.
var ErrEmptyKeySet = errors.New("no order identifiers to stage")

// QuerySourceMissingError reports a query template that could not be loaded.
type QuerySourceMissingError struct {
	Name string
	Err  error
}

func (e *QuerySourceMissingError) Error() string {
	return fmt.Sprintf("query template %q not found: %v", e.Name, e.Err)
}

func (e *QuerySourceMissingError) Unwrap() error { return e.Err }

// QueryExecutionError wraps any failure reported by the query engine.
type QueryExecutionError struct {
	Query string
	Err   error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("executing query %q: %v", e.Query, e.Err)
}

func (e *QueryExecutionError) Unwrap() error { return e.Err }

// SchemaMismatchError reports canonical output columns absent from the final table.
type SchemaMismatchError struct {
	Missing []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("final table is missing canonical columns: %s", strings.Join(e.Missing, ", "))
}

// UnknownVATBandError is returned in strict mode for a VAT-band label outside
// the recognized set.
type UnknownVATBandError struct {
	Label string
}

func (e *UnknownVATBandError) Error() string {
	return fmt.Sprintf("unrecognized VAT band label %q", e.Label)
}

// StageError records which stage of a run failed and how far it got.
// It unwraps to the underlying error so errors.Is and errors.As keep working.
type StageError struct {
	Stage     Stage
	Processed int
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed after %d rows: %v", e.Stage, e.Processed, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
