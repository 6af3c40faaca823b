// Package storage is the filesystem-like capability segments are written to,
// with local disk, S3 and in-memory variants, plus the segment naming layout.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/CefBoud/monsink/types"
)

var (
	// ErrUnsupported is returned by backends that cannot perform an operation, e.g. append on an object store.
	ErrUnsupported = errors.New("operation not supported by storage backend")
	// ErrNotFound is returned when a path does not exist.
	ErrNotFound = errors.New("path not found")
)

// Storage is the minimal filesystem capability the sink needs.
// Implementations must not silently emulate an unsupported operation.
type Storage interface {
	Exists(path string) (bool, error)
	Mkdirs(path string) error
	Open(path string) (io.ReadCloser, error)
	// Create truncates or creates path. Data is durable once the returned writer is closed.
	Create(path string) (io.WriteCloser, error)
	Append(path string) (io.WriteCloser, error)
	Delete(path string) error
	Move(src, dst string) error
	// List returns the full paths of the direct children of dir, sorted.
	List(dir string) ([]string, error)
	Close() error
}

// Aborter is implemented by writers returned from Create that can discard their
// output instead of publishing it. A writer is unusable after Abort.
type Aborter interface {
	Abort() error
}

// New builds the Storage selected by cfg.Type.
func New(ctx context.Context, cfg types.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStorage(), nil
	case "memory":
		return NewMemoryStorage(), nil
	case "s3":
		return NewS3Storage(ctx, cfg)
	}
	return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
}
