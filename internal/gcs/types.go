package gcs

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
)

// ObjectStore provides an interface for cloud storage operations.
// This interface enables mocking and testing of storage functionality.
type ObjectStore interface {
	// Upload streams r into bucket/object, replacing any existing object.
	Upload(ctx context.Context, bucket, object, contentType string, r io.Reader) error

	// Download returns the bytes of bucket/object.
	Download(ctx context.Context, bucket, object string) ([]byte, error)
}

// URI formats a gs:// URI.
func URI(bucket, object string) string {
	return "gs://" + bucket + "/" + object
}

// ParseURI splits "gs://bucket/path/to/object" into bucket and object name.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// ObjectName joins path elements with "/" and drops empty ones.
// e.g. ObjectName("Orders to Cash", "", "01 Braintree/03 DWH", "x.csv") →
// "Orders to Cash/01 Braintree/03 DWH/x.csv"
func ObjectName(elem ...string) string {
	var parts []string
	for _, e := range elem {
		if e = strings.Trim(e, "/"); e != "" {
			parts = append(parts, e)
		}
	}
	return path.Join(parts...)
}
