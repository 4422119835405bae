package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Engine kinds.
const (
	EngineBigQuery  = "bigquery"
	EngineSnowflake = "snowflake"
	EnginePostgres  = "postgres"
)

// Export targets.
const (
	TargetLocal = "local"
	TargetGCS   = "gcs"
)

// Settings are the process-level settings read from the environment.
type Settings struct {
	Engine string `env:"DWH_ENGINE" default:"bigquery"`

	GCPProject      string `env:"GCP_PROJECT"`
	BQDataset       string `env:"BQ_DATASET" default:"reconcile_staging"`
	BQLocation      string `env:"BQ_LOCATION" default:"EU"`
	CredentialsFile string `env:"GOOGLE_APPLICATION_CREDENTIALS"`

	DSN string `env:"DWH_DSN"`

	SQLDir string `env:"SQL_DIR"`

	ExportTarget string `env:"EXPORT_TARGET" default:"local"`
	ExportRoot   string `env:"EXPORT_ROOT" default:"exports"`
	ExportBucket string `env:"EXPORT_BUCKET"`
	ExportPrefix string `env:"EXPORT_PREFIX" default:"Orders to Cash"`

	BatchSize        int  `env:"BATCH_SIZE" default:"25000"`
	StrictVATBands   bool `env:"STRICT_VAT_BANDS" default:"false"`
	ConcurrentExport bool `env:"CONCURRENT_EXPORT" default:"false"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding variables already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("LoadDotEnv: %s: %w", p, err)
		}
	}
	return nil
}

// Load reads settings from the environment, applies defaults and validates.
func Load() (*Settings, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads settings through lookup, which has the os.LookupEnv signature.
func LoadFrom(lookup func(string) (string, bool)) (*Settings, error) {
	s := &Settings{}
	v := reflect.ValueOf(s).Elem()
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := field.Tag.Get("env")
		if name == "" {
			continue
		}

		value, ok := lookup(name)
		value = strings.TrimSpace(value)
		if !ok || value == "" {
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setField(v.Field(i), value); err != nil {
			return nil, fmt.Errorf("config load: invalid value for %s=%q: %w", name, value, err)
		}
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return s, nil
}

func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(int64(n))
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}

// Validate reports every configuration problem at once.
func (s *Settings) Validate() error {
	var errs []string

	s.Engine = strings.ToLower(s.Engine)
	switch s.Engine {
	case EngineBigQuery:
		if s.GCPProject == "" {
			errs = append(errs, "GCP_PROJECT is required for the bigquery engine")
		}
		if s.BQDataset == "" {
			errs = append(errs, "BQ_DATASET is required for the bigquery engine")
		}
	case EngineSnowflake, EnginePostgres:
		if s.DSN == "" {
			errs = append(errs, fmt.Sprintf("DWH_DSN is required for the %s engine", s.Engine))
		}
	default:
		errs = append(errs, fmt.Sprintf("DWH_ENGINE (%q) must be one of: bigquery, snowflake, postgres", s.Engine))
	}

	s.ExportTarget = strings.ToLower(s.ExportTarget)
	switch s.ExportTarget {
	case TargetLocal:
		if s.ExportRoot == "" {
			errs = append(errs, "EXPORT_ROOT is required for local export")
		}
	case TargetGCS:
		if s.ExportBucket == "" {
			errs = append(errs, "EXPORT_BUCKET is required for gcs export")
		}
	default:
		errs = append(errs, fmt.Sprintf("EXPORT_TARGET (%q) must be one of: local, gcs", s.ExportTarget))
	}

	if s.BatchSize <= 0 {
		errs = append(errs, fmt.Sprintf("BATCH_SIZE (%d) must be positive", s.BatchSize))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(s.LogLevel)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", s.LogLevel))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(s.LogFormat)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", s.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Apply copies the run-tuning settings onto a run config.
func (s *Settings) Apply(cfg RunConfig) RunConfig {
	cfg.BatchSize = s.BatchSize
	cfg.StrictVATBands = s.StrictVATBands
	cfg.ConcurrentExport = s.ConcurrentExport
	return cfg
}

// String returns a representation safe for logging; the DSN is masked.
func (s *Settings) String() string {
	dsn := ""
	if s.DSN != "" {
		dsn = "[MASKED]"
	}
	return fmt.Sprintf("Settings{Engine: %q, Project: %q, Dataset: %q, DSN: %q, Export: %q, BatchSize: %d}",
		s.Engine, s.GCPProject, s.BQDataset, dsn, s.ExportTarget, s.BatchSize)
}
