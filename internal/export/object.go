package export

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"

	"github.com/dvloznov/orders-to-cash/internal/gcs"
	"github.com/dvloznov/orders-to-cash/internal/table"
)

// CSVContentType is set on uploaded exports.
const CSVContentType = "text/csv"

// ObjectSink uploads CSV files to bucket objects named
// <Prefix>/<provider subpath>/<filename>.
type ObjectSink struct {
	Store    gcs.ObjectStore
	Bucket   string
	Prefix   string
	Subpaths map[string]string
}

// NewObjectSink creates a sink using DefaultSubpaths.
func NewObjectSink(store gcs.ObjectStore, bucket, prefix string) *ObjectSink {
	return &ObjectSink{Store: store, Bucket: bucket, Prefix: prefix, Subpaths: DefaultSubpaths}
}

// ObjectName returns the object a provider file is written to.
func (s *ObjectSink) ObjectName(provider, filename string) string {
	sub, ok := s.Subpaths[provider]
	if !ok {
		sub = provider
	}
	return gcs.ObjectName(s.Prefix, filepath.ToSlash(sub), filename)
}

// Write encodes the table in memory and uploads it. The object only becomes
// visible once the upload is finalized.
func (s *ObjectSink) Write(ctx context.Context, provider, filename string, t *table.Table) (string, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, t); err != nil {
		return "", err
	}

	object := s.ObjectName(provider, filename)
	if err := s.Store.Upload(ctx, s.Bucket, object, CSVContentType, &buf); err != nil {
		return "", fmt.Errorf("ObjectSink.Write: %w", err)
	}
	return gcs.URI(s.Bucket, object), nil
}
