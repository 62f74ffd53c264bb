// Package storage provides durable object storage for materialized assets.
// It defines the Storage interface (port) and implementations for local disk
// and S3.
package storage

import (
	"context"
	"io"
)

// Storage persists asset bytes under a key.
type Storage interface {
	// Put stores data under key and returns a locator for the stored object
	// (a file:// URL for local disk, an https URL for S3).
	Put(ctx context.Context, key string, data io.Reader, contentType string) (url string, err error)
}
