// Package storage defines the object store the demo dataset is published
// to and read from, plus the dataset manifest and key layout.
package storage

import (
	"context"
	"errors"
	"io"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key  string
	Size int64
	ETag string
}

type PutOptions struct {
	ContentType string
}

// ObjectStore keys are slash separated and relative to the store's root.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	// Get returns ErrObjectNotFound for a missing key.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete treats a missing key as success.
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}
