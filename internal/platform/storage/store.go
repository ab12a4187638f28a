package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"

	"github.com/farmcart/api/internal/services"
)

// Store persists rendered documents in a Cloud Storage bucket.
type Store struct {
	client *gcs.Client
	bucket string
}

// NewStore constructs a Store writing into the given bucket.
func NewStore(client *gcs.Client, bucket string) (*Store, error) {
	if client == nil {
		return nil, errors.New("storage store: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}
	return &Store{client: client, bucket: bucket}, nil
}

// Save writes the object and returns its canonical download URL.
func (s *Store) Save(ctx context.Context, objectName, contentType string, data []byte) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("storage store: not initialised")
	}
	objectName = strings.TrimSpace(objectName)
	if objectName == "" {
		return "", errInvalidObject
	}

	writer := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	writer.ContentType = strings.TrimSpace(contentType)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("storage store: write object %s: %w", objectName, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("storage store: finalise object %s: %w", objectName, err)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, objectName), nil
}

var _ services.DocumentStore = (*Store)(nil)
