package gcsuploader

import (
	"context"
	"fmt"
	"io"

	"github.com/dvloznov/orders-to-cash/internal/gcs"
)

// Download returns the bytes of bucket/object.
func (s *Store) Download(ctx context.Context, bucket, object string) ([]byte, error) {
	r, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open GCS object reader %s: %w", gcs.URI(bucket, object), err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read GCS object: %w", err)
	}
	return data, nil
}

// FetchFromGCS downloads the object behind a gs:// URI.
func (s *Store) FetchFromGCS(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := gcs.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	return s.Download(ctx, bucket, object)
}
