// Package storage delegates blob delivery to the configured object store.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrBlobNotFound means the backing object is absent. It is distinct from an unknown link.
	ErrBlobNotFound = errors.New("blob not found")
	// ErrStorageUnavailable marks a transient backend failure. Callers may retry.
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInvalidPath        = errors.New("invalid blob path")
)

// Object is an open blob stream with its metadata.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// BlobStore is implemented by every backend. Implementations return
// ErrBlobNotFound for missing objects and raw errors for anything else.
type BlobStore interface {
	Exists(ctx context.Context, path string) (bool, error)
	SignURL(ctx context.Context, path string, ttl time.Duration) (string, error)
	Open(ctx context.Context, path string) (*Object, error)
}
