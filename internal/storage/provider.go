// Package storage abstracts durable object storage for relayed media.
package storage

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrObjectNotFound indicates no object exists under the key.
	ErrObjectNotFound = errors.New("storage object not found")
	// ErrInvalidKey indicates a malformed or traversal-attempting key.
	ErrInvalidKey = errors.New("invalid storage key")
)

// Provider abstracts object storage operations.
type Provider interface {
	// Put writes data to storage under the given key.
	Put(ctx context.Context, key string, reader io.Reader) error
	// Open returns a reader for the given storage key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object at key.
	Delete(ctx context.Context, key string) error
}
