package gcsuploader

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/dvloznov/orders-to-cash/internal/gcs"
)

// uploadTimeout bounds a single object upload.
const uploadTimeout = 2 * time.Minute

// Store is the Cloud Storage implementation of gcs.ObjectStore.
type Store struct {
	client *storage.Client
}

var _ gcs.ObjectStore = (*Store)(nil)

// NewStore creates a storage client. Without options it uses Application
// Default Credentials (gcloud auth application-default login).
func NewStore(ctx context.Context, opts ...option.ClientOption) (*Store, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Store{client: client}, nil
}

// NewStoreWithClient wraps an existing storage client.
func NewStoreWithClient(client *storage.Client) *Store {
	return &Store{client: client}
}

// Close releases the storage client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Upload streams r into bucket/object.
func (s *Store) Upload(ctx context.Context, bucket, object, contentType string, r io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		// Closing after a failed copy aborts the upload.
		_ = w.Close()
		return fmt.Errorf("copy to GCS writer %s: %w", gcs.URI(bucket, object), err)
	}

	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload %s: %w", gcs.URI(bucket, object), err)
	}
	return nil
}
