// Package filestore moves uploaded file bytes in and out of Google Cloud
// Storage. It assumes Application Default Credentials are configured.
package filestore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// Storage is the file transfer contract the import pipeline depends on.
type Storage interface {
	Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
	Download(ctx context.Context, uri string) ([]byte, error)
}

// ContentHash returns the hex SHA-256 of the file bytes, used to detect
// re-uploads of a file that was already imported.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// GCS is the Cloud Storage implementation of Storage.
type GCS struct {
	bucket  string
	timeout time.Duration
}

// NewGCS creates a store writing into the given bucket.
func NewGCS(bucket string) *GCS {
	return &GCS{bucket: bucket, timeout: 2 * time.Minute}
}

// Upload writes the bytes under objectName and returns the gs:// URI.
func (g *GCS) Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("Upload: create storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	w := client.Bucket(g.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Upload: copy to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Upload: finalize upload: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", g.bucket, objectName), nil
}

// Download fetches the file bytes from a gs:// URI.
func (g *GCS) Download(ctx context.Context, uri string) ([]byte, error) {
	bucketName, objectPath, err := parseURI(uri)
	if err != nil {
		return nil, fmt.Errorf("Download: %w", err)
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("Download: create storage client: %w", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	r, err := client.Bucket(bucketName).Object(objectPath).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Download: open object reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("Download: read object: %w", err)
	}
	return data, nil
}

func parseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

var _ Storage = (*GCS)(nil)
