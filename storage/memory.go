package storage

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Faults makes MemoryStorage fail on purpose. A nil field means no failure.
type Faults struct {
	CreateErr error
	WriteErr  error
	CloseErr  error
}

// MemoryStorage keeps files in memory with object-store semantics: a created
// file becomes visible when its writer is closed, and append is unsupported.
type MemoryStorage struct {
	files  map[string][]byte
	dirs   map[string]struct{}
	faults Faults
	sync.Mutex
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		files: make(map[string][]byte),
		dirs:  make(map[string]struct{}),
	}
}

var _ Storage = (*MemoryStorage)(nil)

// SetFaults replaces the injected faults.
func (s *MemoryStorage) SetFaults(f Faults) {
	s.Lock()
	defer s.Unlock()
	s.faults = f
}

// Bytes returns the content of a closed file.
func (s *MemoryStorage) Bytes(path string) ([]byte, bool) {
	s.Lock()
	defer s.Unlock()
	b, ok := s.files[filepath.Clean(path)]
	return b, ok
}

// Exists reports whether path is a file or a directory.
func (s *MemoryStorage) Exists(path string) (bool, error) {
	s.Lock()
	defer s.Unlock()
	path = filepath.Clean(path)
	if _, ok := s.files[path]; ok {
		return true, nil
	}
	return s.isDirLocked(path), nil
}

func (s *MemoryStorage) isDirLocked(dir string) bool {
	if _, ok := s.dirs[dir]; ok {
		return true
	}
	prefix := dir + string(filepath.Separator)
	for p := range s.files {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// Mkdirs records dir as existing.
func (s *MemoryStorage) Mkdirs(path string) error {
	s.Lock()
	defer s.Unlock()
	s.dirs[filepath.Clean(path)] = struct{}{}
	return nil
}

// Open returns a reader over a closed file.
func (s *MemoryStorage) Open(path string) (io.ReadCloser, error) {
	s.Lock()
	defer s.Unlock()
	b, ok := s.files[filepath.Clean(path)]
	if !ok {
		return nil, fmt.Errorf("open %v: %w", path, ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Create returns a writer whose content is published on Close.
func (s *MemoryStorage) Create(path string) (io.WriteCloser, error) {
	s.Lock()
	defer s.Unlock()
	if s.faults.CreateErr != nil {
		return nil, s.faults.CreateErr
	}
	return &memoryFile{storage: s, path: filepath.Clean(path)}, nil
}

// Append is not supported.
func (s *MemoryStorage) Append(path string) (io.WriteCloser, error) {
	return nil, fmt.Errorf("append %v: %w", path, ErrUnsupported)
}

// Delete removes a file or every file under a directory.
func (s *MemoryStorage) Delete(path string) error {
	s.Lock()
	defer s.Unlock()
	path = filepath.Clean(path)
	if _, ok := s.files[path]; ok {
		delete(s.files, path)
		return nil
	}
	if !s.isDirLocked(path) {
		return fmt.Errorf("delete %v: %w", path, ErrNotFound)
	}
	prefix := path + string(filepath.Separator)
	for p := range s.files {
		if strings.HasPrefix(p, prefix) {
			delete(s.files, p)
		}
	}
	for d := range s.dirs {
		if d == path || strings.HasPrefix(d, prefix) {
			delete(s.dirs, d)
		}
	}
	return nil
}

// Move renames a file.
func (s *MemoryStorage) Move(src, dst string) error {
	s.Lock()
	defer s.Unlock()
	src, dst = filepath.Clean(src), filepath.Clean(dst)
	b, ok := s.files[src]
	if !ok {
		return fmt.Errorf("move %v: %w", src, ErrNotFound)
	}
	delete(s.files, src)
	s.files[dst] = b
	return nil
}

// List returns direct children of dir, files and sub directories alike.
func (s *MemoryStorage) List(dir string) ([]string, error) {
	s.Lock()
	defer s.Unlock()
	dir = filepath.Clean(dir)
	if !s.isDirLocked(dir) {
		return nil, fmt.Errorf("list %v: %w", dir, ErrNotFound)
	}
	prefix := dir + string(filepath.Separator)
	seen := make(map[string]struct{})
	collect := func(p string) {
		if !strings.HasPrefix(p, prefix) {
			return
		}
		child, _, _ := strings.Cut(strings.TrimPrefix(p, prefix), string(filepath.Separator))
		seen[filepath.Join(dir, child)] = struct{}{}
	}
	for p := range s.files {
		collect(p)
	}
	for d := range s.dirs {
		collect(d)
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// Close is a no-op.
func (s *MemoryStorage) Close() error {
	return nil
}

type memoryFile struct {
	storage *MemoryStorage
	path    string
	buf     bytes.Buffer
	closed  bool
}

func (f *memoryFile) Write(p []byte) (int, error) {
	f.storage.Lock()
	err := f.storage.faults.WriteErr
	f.storage.Unlock()
	if err != nil {
		return 0, err
	}
	if f.closed {
		return 0, fmt.Errorf("write %v: file already closed", f.path)
	}
	return f.buf.Write(p)
}

func (f *memoryFile) Close() error {
	f.storage.Lock()
	defer f.storage.Unlock()
	if f.storage.faults.CloseErr != nil {
		return f.storage.faults.CloseErr
	}
	if f.closed {
		return nil
	}
	f.closed = true
	f.storage.files[f.path] = bytes.Clone(f.buf.Bytes())
	return nil
}

// Abort drops the content without publishing it.
func (f *memoryFile) Abort() error {
	f.storage.Lock()
	defer f.storage.Unlock()
	f.closed = true
	f.buf.Reset()
	return nil
}
