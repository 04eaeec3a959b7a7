// Package xsort sorts and deduplicates files of 32-bit unsigned integer keys
// that do not fit in memory, and intersects the results.
//
// Inputs and outputs are headerless sequences of 4-byte little-endian
// records. SortDistinct is a bounded-memory external sort: the input is cut
// into chunks of at most the configured number of records, each chunk is
// sorted in parallel and written as a run, and the runs are merged into a
// strictly increasing output. Intersect merge-joins two such outputs.
package xsort

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/davidvella/xsort/chunk"
	"github.com/davidvella/xsort/compactor"
	"github.com/davidvella/xsort/join"
	"github.com/davidvella/xsort/metrics"
	"github.com/davidvella/xsort/monitoring"
	"github.com/davidvella/xsort/recordio"
	"github.com/davidvella/xsort/run"
	"github.com/davidvella/xsort/storage/local"
)

var (
	ErrInvalidChunkSize = errors.New("xsort: chunk size must be greater than 0")
	// ErrOutputIsInput is returned by Intersect when output names one of its
	// inputs.
	ErrOutputIsInput = errors.New("xsort: output must differ from inputs")
)

// Stats describes one SortDistinct invocation.
type Stats struct {
	RecordsRead    int64
	Runs           int
	RecordsWritten int64
	// TruncatedBytes counts bytes of a partial trailing record that were
	// dropped from the input.
	TruncatedBytes int
}

// Sorter runs external sorts and intersections. Invocations on different
// inputs may run concurrently; invocations on the same input may not.
type Sorter struct {
	chunkSize int
	workers   int
	files     *local.Storage
	temp      *local.Storage
	logger    monitoring.Logger
	registry  *metrics.Registry
}

// New creates a sorter configured by opts.
func New(opts ...Option) (*Sorter, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if o.chunkSize < 1 {
		return nil, ErrInvalidChunkSize
	}
	if o.workers < 1 {
		o.workers = 1
	}

	return &Sorter{
		chunkSize: o.chunkSize,
		workers:   o.workers,
		files:     local.New(o.fs, "", o.mmap),
		temp:      local.New(o.fs, o.tempDir, false),
		logger:    o.logger,
		registry:  o.registry,
	}, nil
}

// Metrics returns the registry the sorter records into.
func (s *Sorter) Metrics() *metrics.Registry {
	return s.registry
}

// SortDistinct writes the distinct values of input to output in ascending
// order. Runs are deleted before it returns, whether or not it succeeds.
func (s *Sorter) SortDistinct(ctx context.Context, input, output string) (stats Stats, err error) {
	labels := map[string]string{"source": filepath.Base(input)}
	runs := run.NewManager(s.temp, input)
	defer func() {
		if len(runs.Names()) == 0 {
			return
		}
		s.logger.Log(ctx, monitoring.INFO, monitoring.EventDeleteRuns, "Deleting runs", map[string]interface{}{
			"runs": len(runs.Names()),
		})
		err = errors.Join(err, runs.Cleanup(ctx))
	}()

	if err = s.writeRuns(ctx, input, runs, &stats, labels); err != nil {
		return stats, err
	}

	s.logger.Log(ctx, monitoring.INFO, monitoring.EventMerge, "Merging runs", map[string]interface{}{
		"runs":   stats.Runs,
		"output": output,
	})
	if stats.RecordsWritten, err = s.merge(ctx, runs, output); err != nil {
		return stats, err
	}
	s.registry.RecordCounter(metrics.RecordsWritten, float64(stats.RecordsWritten), labels)

	s.logger.Log(ctx, monitoring.INFO, monitoring.EventDone, "Done", map[string]interface{}{
		"records_read":    stats.RecordsRead,
		"records_written": stats.RecordsWritten,
	})
	return stats, nil
}

// writeRuns cuts input into sorted runs.
func (s *Sorter) writeRuns(ctx context.Context, input string, runs *run.Manager, stats *Stats, labels map[string]string) error {
	in, err := s.files.Open(ctx, input)
	if err != nil {
		return fmt.Errorf("xsort: %w", err)
	}
	defer in.Close()

	stream := recordio.NewReader(in)
	c := chunk.New(s.chunkSize)
	defer c.Reset()

	for {
		s.logger.Log(ctx, monitoring.DEBUG, monitoring.EventReadChunk, "Reading chunk", nil)
		n := c.Load(stream)
		if err := stream.Err(); err != nil {
			return fmt.Errorf("xsort: failed to read %s: %w", input, err)
		}
		if n == 0 {
			break
		}
		stats.RecordsRead += int64(n)
		s.registry.RecordCounter(metrics.RecordsRead, float64(n), labels)

		s.logger.Log(ctx, monitoring.INFO, monitoring.EventSortChunk, "Sorting chunk", map[string]interface{}{
			"records": n,
		})
		start := time.Now()
		if err := c.Sort(ctx, s.workers); err != nil {
			return fmt.Errorf("xsort: failed to sort chunk: %w", err)
		}
		s.registry.RecordGauge(metrics.ChunkSortMillis, float64(time.Since(start).Milliseconds()), labels)

		name, written, err := runs.Write(ctx, c.Values())
		if err != nil {
			return fmt.Errorf("xsort: %w", err)
		}
		stats.Runs++
		s.registry.RecordCounter(metrics.RunsWritten, 1, labels)
		s.logger.Log(ctx, monitoring.INFO, monitoring.EventWriteRun, "Wrote run", map[string]interface{}{
			"run":     name,
			"records": written,
		})
	}

	if t := stream.Truncated(); t > 0 {
		stats.TruncatedBytes = t
		s.registry.RecordCounter(metrics.TruncatedBytes, float64(t), labels)
		s.logger.Log(ctx, monitoring.WARN, monitoring.EventTruncatedInput, "Dropped partial trailing record", map[string]interface{}{
			"input": input,
			"bytes": t,
		})
	}

	return nil
}

func (s *Sorter) merge(ctx context.Context, runs *run.Manager, output string) (n int64, err error) {
	set, err := runs.Open(ctx)
	if err != nil {
		return 0, fmt.Errorf("xsort: %w", err)
	}
	defer func() {
		err = errors.Join(err, set.Close())
	}()

	out, err := s.files.Create(ctx, output)
	if err != nil {
		return 0, fmt.Errorf("xsort: %w", err)
	}

	n, err = compactor.Compact(out, set.Sequences()...)
	if err = errors.Join(err, out.Close()); err != nil {
		return n, fmt.Errorf("xsort: failed to merge into %s: %w", output, err)
	}
	return n, nil
}

// Intersect writes the values present in both a and b to output. Both inputs
// must be sorted and duplicate-free, as produced by SortDistinct. The output
// must not be either input.
func (s *Sorter) Intersect(ctx context.Context, a, b, output string) (n int64, err error) {
	if out := filepath.Clean(s.files.Path(output)); out == filepath.Clean(s.files.Path(a)) || out == filepath.Clean(s.files.Path(b)) {
		return 0, fmt.Errorf("%w: %s", ErrOutputIsInput, output)
	}

	s.logger.Log(ctx, monitoring.INFO, monitoring.EventIntersect, "Intersecting", map[string]interface{}{
		"left":   a,
		"right":  b,
		"output": output,
	})

	left, err := s.files.Open(ctx, a)
	if err != nil {
		return 0, fmt.Errorf("xsort: %w", err)
	}
	defer func() { err = errors.Join(err, left.Close()) }()

	right, err := s.files.Open(ctx, b)
	if err != nil {
		return 0, fmt.Errorf("xsort: %w", err)
	}
	defer func() { err = errors.Join(err, right.Close()) }()

	out, err := s.files.Create(ctx, output)
	if err != nil {
		return 0, fmt.Errorf("xsort: %w", err)
	}

	n, err = join.Intersect(out, recordio.NewReader(left), recordio.NewReader(right))
	if err = errors.Join(err, out.Close()); err != nil {
		return n, fmt.Errorf("xsort: failed to intersect into %s: %w", output, err)
	}

	s.registry.RecordCounter(metrics.RecordsWritten, float64(n), map[string]string{"source": filepath.Base(output)})
	s.logger.Log(ctx, monitoring.INFO, monitoring.EventDone, "Done", map[string]interface{}{
		"records_written": n,
	})
	return n, nil
}

// Leftovers lists run files of input left in the temporary directory, for
// example by an invocation that failed to delete them.
func (s *Sorter) Leftovers(ctx context.Context, input string) ([]string, error) {
	files, err := s.temp.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("xsort: %w", err)
	}

	source := filepath.Base(input)
	var names []string
	for _, f := range files {
		if key, err := run.ParseName(f); err == nil && key.Source == source {
			names = append(names, f)
		}
	}
	return names, nil
}

// RemoveLeftovers deletes the files reported by Leftovers.
func (s *Sorter) RemoveLeftovers(ctx context.Context, input string) ([]string, error) {
	names, err := s.Leftovers(ctx, input)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, name := range names {
		errs = append(errs, s.temp.Delete(ctx, name))
	}
	return names, errors.Join(errs...)
}
