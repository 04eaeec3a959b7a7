// Package run persists sorted chunks as runs and tracks the run files of one
// external sort so they can be merged and removed.
package run

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/davidvella/xsort/loser"
	"github.com/davidvella/xsort/recordio"
)

// Storage defines the interface for the underlying storage system.
type Storage interface {
	// Create a new file for writing, truncating any existing one.
	Create(ctx context.Context, name string) (io.WriteCloser, error)
	// Open a file for reading.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Delete a file.
	Delete(ctx context.Context, name string) error
}

// Write writes sorted to w, skipping any record equal to the one written
// just before it. The result is strictly increasing when sorted is ascending.
func Write(w io.Writer, sorted []uint32) (int64, error) {
	out := recordio.NewWriter(w)
	for i, v := range sorted {
		if i > 0 && v == sorted[i-1] {
			continue
		}
		if err := out.Write(v); err != nil {
			return out.Count(), err
		}
	}
	if err := out.Flush(); err != nil {
		return out.Count(), err
	}
	return out.Count(), nil
}

// Manager names, writes, opens and deletes the runs produced from one source.
// It is not safe for concurrent use.
type Manager struct {
	storage Storage
	source  string
	names   []string
}

// NewManager returns a Manager creating runs for source in storage.
func NewManager(storage Storage, source string) *Manager {
	return &Manager{
		storage: storage,
		source:  source,
	}
}

// Write persists sorted as the next run and returns its name and the number
// of records written.
func (m *Manager) Write(ctx context.Context, sorted []uint32) (string, int64, error) {
	name := Name(len(m.names), m.source)

	wc, err := m.storage.Create(ctx, name)
	if err != nil {
		return name, 0, fmt.Errorf("run: failed to create %s: %w", name, err)
	}
	m.names = append(m.names, name)

	n, err := Write(wc, sorted)
	if err = errors.Join(err, wc.Close()); err != nil {
		return name, n, fmt.Errorf("run: failed to write %s: %w", name, err)
	}

	return name, n, nil
}

// Names returns the runs created so far, in creation order.
func (m *Manager) Names() []string {
	return m.names
}

// Open opens every run for reading. The caller must Close the result.
func (m *Manager) Open(ctx context.Context) (*Set, error) {
	set := &Set{}
	for _, name := range m.names {
		rc, err := m.storage.Open(ctx, name)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("run: failed to open %s: %w", name, err), set.Close())
		}
		set.closers = append(set.closers, rc)
		set.readers = append(set.readers, recordio.NewReader(rc))
	}
	return set, nil
}

// Cleanup deletes every run created by m. It attempts all deletions and
// reports every failure.
func (m *Manager) Cleanup(ctx context.Context) error {
	var errs []error
	for _, name := range m.names {
		if err := m.storage.Delete(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("run: failed to delete %s: %w", name, err))
		}
	}
	m.names = nil
	return errors.Join(errs...)
}

// Set is a group of open runs.
type Set struct {
	readers []*recordio.Reader
	closers []io.Closer
}

// Sequences returns the runs as merge inputs.
func (s *Set) Sequences() []loser.Sequence[uint32] {
	seqs := make([]loser.Sequence[uint32], len(s.readers))
	for i, r := range s.readers {
		seqs[i] = r
	}
	return seqs
}

// Close closes every run in the set.
func (s *Set) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}
