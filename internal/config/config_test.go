package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
)

func TestNewRunConfig(t *testing.T) {
	tests := []struct {
		name    string
		start   string
		end     string
		wantErr bool
	}{
		{"valid month", "2025-10-01", "2025-10-31", false},
		{"single day", "2025-10-01", "2025-10-01", false},
		{"end before start", "2025-10-31", "2025-10-01", true},
		{"bad start", "2025/10/01", "2025-10-31", true},
		{"bad end", "2025-10-01", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewRunConfig(tt.start, tt.end, "")
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewRunConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && cfg.BatchSize != DefaultBatchSize {
				t.Errorf("BatchSize = %d, want %d", cfg.BatchSize, DefaultBatchSize)
			}
		})
	}
}

func TestRunConfig_PeriodLabel(t *testing.T) {
	cfg, err := NewRunConfig("2025-03-01", "2025-03-31", "  re-run ")
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.PeriodLabel(); got != "25.03" {
		t.Errorf("PeriodLabel() = %q, want %q", got, "25.03")
	}
	if cfg.Notes != "re-run" {
		t.Errorf("Notes = %q, want trimmed", cfg.Notes)
	}
}

func TestRunConfig_ValidateBatchSize(t *testing.T) {
	cfg, _ := NewRunConfig("2025-10-01", "2025-10-31", "")
	cfg.BatchSize = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero batch size")
	}
}

func TestMonthRange(t *testing.T) {
	cfg := MonthRange(time.Date(2024, 2, 17, 12, 0, 0, 0, time.UTC), "")
	want := civil.Date{Year: 2024, Month: 2, Day: 29}
	if cfg.StartDate != (civil.Date{Year: 2024, Month: 2, Day: 1}) || cfg.EndDate != want {
		t.Errorf("MonthRange() = %s..%s, want 2024-02-01..%s", cfg.StartDate, cfg.EndDate, want)
	}
}

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	s, err := LoadFrom(lookupFrom(map[string]string{"GCP_PROJECT": "proj"}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if s.Engine != EngineBigQuery || s.BatchSize != 25000 || s.ExportTarget != TargetLocal {
		t.Errorf("unexpected defaults: %s", s)
	}
	if s.StrictVATBands || s.ConcurrentExport {
		t.Error("strict mode and concurrent export should default to false")
	}
}

func TestLoadFrom_Overrides(t *testing.T) {
	s, err := LoadFrom(lookupFrom(map[string]string{
		"DWH_ENGINE":        "Snowflake",
		"DWH_DSN":           "user:pass@acct/db/schema",
		"EXPORT_TARGET":     "gcs",
		"EXPORT_BUCKET":     "exports",
		"BATCH_SIZE":        "500",
		"STRICT_VAT_BANDS":  "true",
		"CONCURRENT_EXPORT": "1",
	}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if s.Engine != EngineSnowflake || s.BatchSize != 500 || !s.StrictVATBands || !s.ConcurrentExport {
		t.Errorf("overrides not applied: %+v", s)
	}
	if strings.Contains(s.String(), "pass") {
		t.Errorf("String() leaks the DSN: %s", s)
	}

	cfg := s.Apply(RunConfig{BatchSize: 1})
	if cfg.BatchSize != 500 || !cfg.StrictVATBands || !cfg.ConcurrentExport {
		t.Errorf("Apply() = %+v", cfg)
	}
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing project", map[string]string{}, "GCP_PROJECT"},
		{"unknown engine", map[string]string{"DWH_ENGINE": "oracle"}, "DWH_ENGINE"},
		{"postgres without dsn", map[string]string{"DWH_ENGINE": "postgres"}, "DWH_DSN"},
		{"gcs without bucket", map[string]string{"GCP_PROJECT": "p", "EXPORT_TARGET": "gcs"}, "EXPORT_BUCKET"},
		{"bad batch size", map[string]string{"GCP_PROJECT": "p", "BATCH_SIZE": "abc"}, "BATCH_SIZE"},
		{"negative batch size", map[string]string{"GCP_PROJECT": "p", "BATCH_SIZE": "-1"}, "BATCH_SIZE"},
		{"bad log level", map[string]string{"GCP_PROJECT": "p", "LOG_LEVEL": "loud"}, "LOG_LEVEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(lookupFrom(tt.env))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %s", err, tt.want)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("RECONCILE_TEST_VALUE=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RECONCILE_TEST_VALUE", "")
	os.Unsetenv("RECONCILE_TEST_VALUE")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("RECONCILE_TEST_VALUE"); got != "from-file" {
		t.Errorf("RECONCILE_TEST_VALUE = %q, want from-file", got)
	}
}
