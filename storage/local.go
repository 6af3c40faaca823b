package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	log "github.com/CefBoud/monsink/logging"
	"github.com/CefBoud/monsink/utils"
)

// LocalStorage is Storage on the local filesystem.
type LocalStorage struct{}

// NewLocalStorage returns a local filesystem Storage.
func NewLocalStorage() *LocalStorage {
	return &LocalStorage{}
}

var _ Storage = (*LocalStorage)(nil)

// Exists reports whether path exists.
func (s *LocalStorage) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Mkdirs creates path and any missing parents.
func (s *LocalStorage) Mkdirs(path string) error {
	return utils.EnsurePath(path, true)
}

// Open opens path for reading.
func (s *LocalStorage) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("open %v: %w", path, ErrNotFound)
	}
	return f, err
}

// Create creates path, making parent directories as needed.
func (s *LocalStorage) Create(path string) (io.WriteCloser, error) {
	if err := utils.EnsurePath(path, false); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	return &syncFile{File: f}, nil
}

// Append opens an existing path for appending.
func (s *LocalStorage) Append(path string) (io.WriteCloser, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("append %v: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &syncFile{File: f}, nil
}

// Delete removes path, recursively for directories.
func (s *LocalStorage) Delete(path string) error {
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return fmt.Errorf("delete %v: %w", path, ErrNotFound)
	}
	return os.RemoveAll(path)
}

// Move renames src to dst.
func (s *LocalStorage) Move(src, dst string) error {
	if err := utils.EnsurePath(dst, false); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("move %v: %w", src, ErrNotFound)
		}
		return err
	}
	return nil
}

// List returns the entries of dir.
func (s *LocalStorage) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("list %v: %w", dir, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Close is a no-op for local storage.
func (s *LocalStorage) Close() error {
	return nil
}

// syncFile fsyncs before closing so a closed segment is on stable storage.
// A failed sync leaves the descriptor open so Close can be retried.
type syncFile struct {
	*os.File
	closed bool
}

func (f *syncFile) Close() error {
	if f.closed {
		return nil
	}
	if err := f.File.Sync(); err != nil {
		log.Error("Error syncing %v: %v", f.Name(), err)
		return err
	}
	f.closed = true
	return f.File.Close()
}

// Abort closes the descriptor without syncing. The partial file stays on disk
// until the path is created again.
func (f *syncFile) Abort() error {
	if f.closed {
		return nil
	}
	f.closed = true
	return f.File.Close()
}
