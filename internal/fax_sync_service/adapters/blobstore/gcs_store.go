package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

const (
	ExtPDF  = ".pdf"
	ExtTIFF = ".tif"

	ContentTypePDF  = "application/pdf"
	ContentTypeTIFF = "image/tiff"

	publicHost = "https://storage.cloud.google.com"
)

// FaxDocumentKey is the object key of a fax artifact.
func FaxDocumentKey(partnerID int64, docID uuid.UUID, ext string) string {
	return fmt.Sprintf("files/partner_%d/faxes/%s%s", partnerID, docID, ext)
}

// PublicURL is the browser URL for key in bucket.
func PublicURL(bucket, key string) string {
	return fmt.Sprintf("%s/%s/%s", publicHost, bucket, key)
}

// GCSStore keeps fax documents and fax templates in a Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	logger *slog.Logger
}

func NewGCSStore(ctx context.Context, bucket string, logger *slog.Logger, opts ...option.ClientOption) (*GCSStore, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, logger: logger.With("component", "gcs_store")}, nil
}

// Put writes data under key and returns its public URL.
func (s *GCSStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("writing %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing %s: %w", key, err)
	}
	s.logger.DebugContext(ctx, "Object written", "key", key, "bytes", len(data))
	return PublicURL(s.bucket, key), nil
}

func (s *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return true, nil
}

func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", key, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
