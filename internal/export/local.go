package export

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dvloznov/orders-to-cash/internal/table"
)

// DefaultSubpaths maps provider keys to their folder under the export root.
var DefaultSubpaths = map[string]string{
	"braintree": filepath.Join("01 Braintree", "03 DWH"),
	"paypal":    filepath.Join("02 Paypal", "03 DWH"),
	"uber":      filepath.Join("03 Uber Eats", "03 DWH"),
	"deliveroo": filepath.Join("04 Deliveroo", "03 DWH"),
	"justeat":   filepath.Join("05 Just Eat", "03 DWH"),
	"amazon":    filepath.Join("06 Amazon", "03 DWH"),
}

// LocalSink writes CSV files under Root/<provider subpath>/.
type LocalSink struct {
	Root string
	// Subpaths overrides DefaultSubpaths. Providers absent from the map are
	// written to a folder named after the provider key.
	Subpaths map[string]string
}

// NewLocalSink creates a sink rooted at root using DefaultSubpaths.
func NewLocalSink(root string) *LocalSink {
	return &LocalSink{Root: root, Subpaths: DefaultSubpaths}
}

// Dir returns the directory a provider's files are written to.
func (s *LocalSink) Dir(provider string) string {
	sub, ok := s.Subpaths[provider]
	if !ok {
		sub = provider
	}
	return filepath.Join(s.Root, sub)
}

// Write creates the provider directory when needed and writes the table to a
// temporary file that is renamed into place, so a failed run never leaves a
// truncated export behind.
func (s *LocalSink) Write(ctx context.Context, provider, filename string, t *table.Table) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := s.Dir(provider)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("LocalSink.Write: creating %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, ".export-*.csv")
	if err != nil {
		return "", fmt.Errorf("LocalSink.Write: creating temp file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp) // no-op after a successful rename

	bw := bufio.NewWriter(f)
	if err := WriteCSV(bw, t); err != nil {
		f.Close()
		return "", err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return "", fmt.Errorf("LocalSink.Write: flushing %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("LocalSink.Write: closing %s: %w", tmp, err)
	}

	dst := filepath.Join(dir, filename)
	if err := os.Rename(tmp, dst); err != nil {
		return "", fmt.Errorf("LocalSink.Write: renaming to %s: %w", dst, err)
	}
	return dst, nil
}
