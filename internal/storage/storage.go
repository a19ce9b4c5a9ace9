// Package storage abstracts the object store holding product images.
// Implementations cover AWS S3 and S3-compatible providers (CEPH, LocalStack)
// through aws-sdk-go-v2, MinIO through minio-go, and the local filesystem for
// development.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrUnavailable is returned when a list, sign, put or delete call against
	// the backend fails. The backend's own error is wrapped alongside it.
	ErrUnavailable = errors.New("object storage unavailable")

	// ErrNotFound is returned when an object does not exist.
	ErrNotFound = errors.New("object not found")
)

// Storage is the object store capability consumed by the image engine.
type Storage interface {
	// List returns every object key under prefix in lexicographic order.
	// Pseudo-directory keys (ending in "/") are never returned.
	List(ctx context.Context, prefix string) ([]string, error)

	// PresignGet returns a time-limited read URL for key.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)

	// Put uploads body to key. size is the exact byte count, or -1 when unknown.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error

	// Delete removes the object at key.
	Delete(ctx context.Context, key string) error
}

// filterKeys drops pseudo-directory entries and the bare prefix itself.
func filterKeys(prefix string, keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" || k == prefix || k[len(k)-1] == '/' {
			continue
		}
		out = append(out, k)
	}
	return out
}
