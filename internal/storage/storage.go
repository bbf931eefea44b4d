package storage

import (
	"context"
	"io"

	"github.com/dukerupert/muninn/internal"
)

// Storage defines the interface for attachment staging operations.
// Uploaded attachments are written here by the submission handler and
// read back by the dispatch pipeline under the same key.
type Storage interface {
	// Put stores an object under the given key, overwriting any existing one.
	Put(ctx context.Context, key string, content io.Reader, contentType string) error

	// Get retrieves an object by its key.
	// Returns ErrObjectNotFound if no object exists under the key.
	// The returned io.ReadCloser must be closed by the caller.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes an object by its key.
	// Returns nil if the object doesn't exist (idempotent).
	Delete(ctx context.Context, key string) error

	// Exists checks whether an object exists under the given key.
	Exists(ctx context.Context, key string) (bool, error)
}

// NewStorage creates a Storage implementation based on configuration.
// Returns LocalStorage for the "local" provider, S3Storage for "s3".
func NewStorage(cfg internal.StorageConfig) (Storage, error) {
	switch cfg.Provider {
	case "local", "":
		return NewLocalStorage(cfg.LocalPath)
	case "s3":
		return NewS3Storage(S3Config{
			Endpoint:    cfg.Endpoint,
			Region:      cfg.Region,
			AccessKeyID: cfg.AccessKeyID,
			SecretKey:   cfg.SecretKey,
			Bucket:      cfg.Bucket,
			UseSSL:      cfg.UseSSL,
		})
	default:
		return nil, ErrUnknownProvider(cfg.Provider)
	}
}
