package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"
	"github.com/spf13/afero"
)

// Storage reads and writes record files on a filesystem. Names are resolved
// against dir; with an empty dir they are used as given.
type Storage struct {
	fs   afero.Fs
	dir  string
	mmap bool
}

// New returns a Storage over fs rooted at dir. When useMmap is set, files on
// the OS filesystem are memory-mapped for reading.
func New(fs afero.Fs, dir string, useMmap bool) *Storage {
	return &Storage{
		fs:   fs,
		dir:  dir,
		mmap: useMmap,
	}
}

func (s *Storage) path(name string) string {
	if s.dir == "" {
		return name
	}
	return filepath.Join(s.dir, filepath.Base(name))
}

// Path returns the location a name resolves to.
func (s *Storage) Path(name string) string {
	return s.path(name)
}

// Create creates or truncates name for writing.
func (s *Storage) Create(_ context.Context, name string) (io.WriteCloser, error) {
	file, err := s.fs.OpenFile(s.path(name), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", name, err)
	}
	return file, nil
}

// Open opens name for reading.
func (s *Storage) Open(_ context.Context, name string) (io.ReadCloser, error) {
	file, err := s.fs.Open(s.path(name))
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", name, err)
	}

	if !s.mmap {
		return file, nil
	}

	osFile, ok := file.(*os.File)
	if !ok {
		return file, nil
	}

	info, err := osFile.Stat()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to stat file %s: %w", name, err), file.Close())
	}
	if info.Size() == 0 {
		// Zero-length files cannot be mapped.
		return file, nil
	}

	m, err := mmap.Map(osFile, mmap.RDONLY, 0)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to map file %s: %w", name, err), file.Close())
	}

	return &mappedFile{Reader: bytes.NewReader(m), m: m, file: osFile}, nil
}

// Delete removes name.
func (s *Storage) Delete(_ context.Context, name string) error {
	if err := s.fs.Remove(s.path(name)); err != nil {
		return fmt.Errorf("failed to delete file %s: %w", name, err)
	}
	return nil
}

// List lists the regular files in the storage directory.
func (s *Storage) List(_ context.Context) ([]string, error) {
	dir := s.dir
	if dir == "" {
		dir = "."
	}

	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() {
			files = append(files, entry.Name())
		}
	}
	return files, nil
}

// mappedFile reads from a read-only mapping of file.
type mappedFile struct {
	*bytes.Reader
	m    mmap.MMap
	file *os.File
}

func (f *mappedFile) Close() error {
	return errors.Join(f.m.Unmap(), f.file.Close())
}
