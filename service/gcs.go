package service

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// ObjectUploader stores the contents of r as bucket/object.
type ObjectUploader interface {
	Upload(ctx context.Context, bucket, object, contentType string, r io.Reader) error
}

// Compile-time check: GCSUploader implements ObjectUploader.
var _ ObjectUploader = (*GCSUploader)(nil)

// GCSUploader uploads objects to Google Cloud Storage.
type GCSUploader struct {
	client *storage.Client
}

func NewGCSUploader(ctx context.Context, creds Credentials) (*GCSUploader, error) {
	client, err := storage.NewClient(ctx, creds.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSUploader{client: client}, nil
}

func (u *GCSUploader) Upload(ctx context.Context, bucket, object, contentType string, r io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := u.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		// Cancelling before Close aborts the upload instead of committing a partial object.
		cancel()
		_ = w.Close()
		return fmt.Errorf("write gs://%s/%s: %w", bucket, object, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize gs://%s/%s: %w", bucket, object, err)
	}
	return nil
}

func (u *GCSUploader) Close() error {
	return u.client.Close()
}
