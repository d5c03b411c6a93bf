// Package storage provides temporary and persistent file storage capabilities.
// It defines the Storage interface (port) and implementations for local disk,
// S3 and MinIO artifact publishing.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for temporary files and artifact publishing.
// Implementations must handle temporary files during stitching and
// optionally support publishing the final artifact to object storage.
type Storage interface {
	// SaveTemp saves data to a temporary file and returns the file path.
	// The name parameter is used as a hint for the filename; its extension is kept.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// ReserveTemp creates an empty temporary file and returns its path.
	ReserveTemp(ctx context.Context, name string) (path string, err error)

	// LoadTemp reads a temporary file and returns a reader.
	// The caller is responsible for closing the returned ReadCloser.
	LoadTemp(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified temporary files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// Publish uploads data to object storage and returns a URL to fetch it.
	// Returns ErrPublishNotConfigured if no object storage is configured.
	Publish(ctx context.Context, key string, data io.Reader, size int64, contentType string) (url string, err error)
}
