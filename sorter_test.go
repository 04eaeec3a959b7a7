package xsort_test

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"slices"
	"testing"

	"github.com/davidvella/xsort"
	"github.com/davidvella/xsort/metrics"
	"github.com/davidvella/xsort/monitoring"
	"github.com/davidvella/xsort/recordio"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const tempDir = "/tmp"

var errIO = errors.New("its a me errorio")

// failingFs refuses to open path for writing.
type failingFs struct {
	afero.Fs
	path string
}

func (f failingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if name == f.path && flag&os.O_WRONLY != 0 {
		return nil, errIO
	}
	return f.Fs.OpenFile(name, flag, perm)
}

// failingReadFs serves path with a file whose reads fail after the first.
type failingReadFs struct {
	afero.Fs
	path string
}

func (f failingReadFs) Open(name string) (afero.File, error) {
	file, err := f.Fs.Open(name)
	if err != nil || name != f.path {
		return file, err
	}
	return &failingFile{File: file}, nil
}

type failingFile struct {
	afero.File
	reads int
}

func (f *failingFile) Read(p []byte) (int, error) {
	if f.reads > 0 {
		return 0, errIO
	}
	f.reads++
	return f.File.Read(p)
}

func setup(t *testing.T, opts ...xsort.Option) (*xsort.Sorter, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(tempDir, 0o755))
	require.NoError(t, fs.MkdirAll("/data", 0o755))

	s, err := xsort.New(append([]xsort.Option{xsort.WithFs(fs), xsort.WithTempDir(tempDir)}, opts...)...)
	require.NoError(t, err)
	return s, fs
}

func writeFile(t *testing.T, fs afero.Fs, path string, data []byte) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, data, 0o644))
}

func readFile(t *testing.T, fs afero.Fs, path string) []uint32 {
	t.Helper()
	f, err := fs.Open(path)
	require.NoError(t, err)
	defer f.Close()
	values, err := recordio.ReadAll(f)
	require.NoError(t, err)
	return values
}

func distinctSorted(values []uint32) []uint32 {
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}

func TestSortDistinct(t *testing.T) {
	tests := []struct {
		name      string
		chunkSize int
		input     []uint32
		want      []uint32
		wantRuns  int
	}{
		{
			name:      "empty input",
			chunkSize: 4,
			input:     nil,
			want:      []uint32{},
			wantRuns:  0,
		},
		{
			name:      "duplicates in one chunk",
			chunkSize: 10,
			input:     []uint32{5, 3, 5, 1, 3},
			want:      []uint32{1, 3, 5},
			wantRuns:  1,
		},
		{
			name:      "two runs",
			chunkSize: 2,
			input:     []uint32{4, 3, 2, 1},
			want:      []uint32{1, 2, 3, 4},
			wantRuns:  2,
		},
		{
			name:      "duplicates straddle runs",
			chunkSize: 2,
			input:     []uint32{9, 1, 1, 9, 9, 1},
			want:      []uint32{1, 9},
			wantRuns:  3,
		},
		{
			name:      "chunk size one",
			chunkSize: 1,
			input:     []uint32{0xffffffff, 0, 0xffffffff, 0},
			want:      []uint32{0, 0xffffffff},
			wantRuns:  4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, fs := setup(t, xsort.WithChunkSize(tt.chunkSize))
			writeFile(t, fs, "/data/in.bin", recordio.Encode(tt.input...))

			stats, err := s.SortDistinct(context.Background(), "/data/in.bin", "/data/out.bin")
			require.NoError(t, err)

			assert.Equal(t, tt.want, readFile(t, fs, "/data/out.bin"))
			assert.Equal(t, tt.wantRuns, stats.Runs)
			assert.Equal(t, int64(len(tt.input)), stats.RecordsRead)
			assert.Equal(t, int64(len(tt.want)), stats.RecordsWritten)

			leftovers, err := s.Leftovers(context.Background(), "/data/in.bin")
			require.NoError(t, err)
			assert.Empty(t, leftovers)
		})
	}
}

func TestSortDistinctChunkSizeIndependence(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	input := make([]uint32, 5000)
	for i := range input {
		input[i] = uint32(r.Intn(2000))
	}
	want := distinctSorted(input)

	var reference []byte
	for _, chunkSize := range []int{1, 2, 7, 100, 4999, 5000, 1 << 20} {
		s, fs := setup(t, xsort.WithChunkSize(chunkSize), xsort.WithWorkers(4))
		writeFile(t, fs, "/data/in.bin", recordio.Encode(input...))

		_, err := s.SortDistinct(context.Background(), "/data/in.bin", "/data/out.bin")
		require.NoError(t, err)

		got, err := afero.ReadFile(fs, "/data/out.bin")
		require.NoError(t, err)
		if reference == nil {
			reference = got
			assert.Equal(t, want, readFile(t, fs, "/data/out.bin"))
		}
		assert.Equal(t, reference, got, "chunk size %d", chunkSize)
	}
}

func TestSortDistinctIdempotent(t *testing.T) {
	s, fs := setup(t, xsort.WithChunkSize(3))
	writeFile(t, fs, "/data/in.bin", recordio.Encode(8, 6, 7, 5, 3, 0, 9, 6, 7))
	ctx := context.Background()

	_, err := s.SortDistinct(ctx, "/data/in.bin", "/data/a.bin")
	require.NoError(t, err)
	_, err = s.SortDistinct(ctx, "/data/in.bin", "/data/b.bin")
	require.NoError(t, err)

	a, err := afero.ReadFile(fs, "/data/a.bin")
	require.NoError(t, err)
	b, err := afero.ReadFile(fs, "/data/b.bin")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// Sorting a sorted-distinct file reproduces it.
	_, err = s.SortDistinct(ctx, "/data/a.bin", "/data/c.bin")
	require.NoError(t, err)
	c, err := afero.ReadFile(fs, "/data/c.bin")
	require.NoError(t, err)
	assert.Equal(t, a, c)
}

func TestSortDistinctTruncatedInput(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	registry := metrics.NewSorterRegistry()
	s, fs := setup(t,
		xsort.WithChunkSize(2),
		xsort.WithLogger(monitoring.NewLogger("xsort", zap.New(core))),
		xsort.WithMetrics(registry),
	)
	writeFile(t, fs, "/data/in.bin", append(recordio.Encode(3, 1, 2), 0xff, 0xff))

	stats, err := s.SortDistinct(context.Background(), "/data/in.bin", "/data/out.bin")
	require.NoError(t, err)

	assert.Equal(t, []uint32{1, 2, 3}, readFile(t, fs, "/data/out.bin"))
	assert.Equal(t, 2, stats.TruncatedBytes)
	assert.Equal(t, float64(2), registry.Total(metrics.TruncatedBytes))
	assert.Equal(t, float64(3), registry.Total(metrics.RecordsRead))
	assert.Equal(t, float64(2), registry.Total(metrics.RunsWritten))
	assert.Same(t, registry, s.Metrics())

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, monitoring.EventTruncatedInput, logs.All()[0].ContextMap()["event_type"])
}

func TestSortDistinctHandleError(t *testing.T) {
	t.Run("missing input", func(t *testing.T) {
		s, fs := setup(t)
		_, err := s.SortDistinct(context.Background(), "/data/missing.bin", "/data/out.bin")
		require.Error(t, err)

		exists, err := afero.Exists(fs, "/data/out.bin")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("unwritable output removes runs", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		writeFile(t, fs, "/data/in.bin", recordio.Encode(2, 1))

		s, err := xsort.New(
			xsort.WithFs(failingFs{Fs: fs, path: "/data/out.bin"}),
			xsort.WithTempDir(tempDir),
			xsort.WithChunkSize(1),
		)
		require.NoError(t, err)

		_, err = s.SortDistinct(context.Background(), "/data/in.bin", "/data/out.bin")
		require.ErrorIs(t, err, errIO)

		leftovers, err := s.Leftovers(context.Background(), "/data/in.bin")
		require.NoError(t, err)
		assert.Empty(t, leftovers)
	})

	t.Run("input read failure removes runs", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		writeFile(t, fs, "/data/in.bin", recordio.Encode(3, 1, 2))

		s, err := xsort.New(
			xsort.WithFs(failingReadFs{Fs: fs, path: "/data/in.bin"}),
			xsort.WithTempDir(tempDir),
			xsort.WithChunkSize(1),
		)
		require.NoError(t, err)

		_, err = s.SortDistinct(context.Background(), "/data/in.bin", "/data/out.bin")
		require.ErrorIs(t, err, errIO)

		leftovers, err := s.Leftovers(context.Background(), "/data/in.bin")
		require.NoError(t, err)
		assert.Empty(t, leftovers)

		exists, err := afero.Exists(fs, "/data/out.bin")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("invalid chunk size", func(t *testing.T) {
		_, err := xsort.New(xsort.WithChunkSize(0))
		assert.ErrorIs(t, err, xsort.ErrInvalidChunkSize)
	})
}

func TestLeftovers(t *testing.T) {
	s, fs := setup(t)
	ctx := context.Background()
	writeFile(t, fs, tempDir+"/0_in.bin", nil)
	writeFile(t, fs, tempDir+"/1_in.bin", nil)
	writeFile(t, fs, tempDir+"/0_other.bin", nil)
	writeFile(t, fs, tempDir+"/notes.txt", nil)

	names, err := s.Leftovers(ctx, "/data/in.bin")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"0_in.bin", "1_in.bin"}, names)

	removed, err := s.RemoveLeftovers(ctx, "/data/in.bin")
	require.NoError(t, err)
	assert.ElementsMatch(t, names, removed)

	names, err = s.Leftovers(ctx, "/data/in.bin")
	require.NoError(t, err)
	assert.Empty(t, names)

	exists, err := afero.Exists(fs, tempDir+"/0_other.bin")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestIntersect(t *testing.T) {
	tests := []struct {
		name string
		a    []uint32
		b    []uint32
		want []uint32
	}{
		{
			name: "overlap",
			a:    []uint32{1, 2, 3, 5, 8},
			b:    []uint32{2, 3, 5, 9},
			want: []uint32{2, 3, 5},
		},
		{
			name: "empty left",
			a:    nil,
			b:    []uint32{1},
			want: []uint32{},
		},
		{
			name: "disjoint",
			a:    []uint32{1},
			b:    []uint32{2},
			want: []uint32{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, fs := setup(t)
			writeFile(t, fs, "/data/a.bin", recordio.Encode(tt.a...))
			writeFile(t, fs, "/data/b.bin", recordio.Encode(tt.b...))
			ctx := context.Background()

			n, err := s.Intersect(ctx, "/data/a.bin", "/data/b.bin", "/data/ab.bin")
			require.NoError(t, err)
			assert.Equal(t, int64(len(tt.want)), n)
			assert.Equal(t, tt.want, readFile(t, fs, "/data/ab.bin"))

			_, err = s.Intersect(ctx, "/data/b.bin", "/data/a.bin", "/data/ba.bin")
			require.NoError(t, err)
			assert.Equal(t, tt.want, readFile(t, fs, "/data/ba.bin"))
		})
	}
}

func TestSortThenIntersect(t *testing.T) {
	s, fs := setup(t, xsort.WithChunkSize(16))
	ctx := context.Background()
	r := rand.New(rand.NewSource(5))

	var a, b []uint32
	for range 300 {
		a = append(a, uint32(r.Intn(200)))
		b = append(b, uint32(r.Intn(200)))
	}
	writeFile(t, fs, "/data/a.bin", recordio.Encode(a...))
	writeFile(t, fs, "/data/b.bin", recordio.Encode(b...))

	_, err := s.SortDistinct(ctx, "/data/a.bin", "/data/a_sorted.bin")
	require.NoError(t, err)
	_, err = s.SortDistinct(ctx, "/data/b.bin", "/data/b_sorted.bin")
	require.NoError(t, err)
	_, err = s.Intersect(ctx, "/data/a_sorted.bin", "/data/b_sorted.bin", "/data/out.bin")
	require.NoError(t, err)

	inB := make(map[uint32]bool)
	for _, v := range b {
		inB[v] = true
	}
	want := make([]uint32, 0)
	for _, v := range distinctSorted(a) {
		if inB[v] {
			want = append(want, v)
		}
	}
	assert.Equal(t, want, readFile(t, fs, "/data/out.bin"))

	// Self-intersection reproduces the input.
	_, err = s.Intersect(ctx, "/data/a_sorted.bin", "/data/a_sorted.bin", "/data/aa.bin")
	require.NoError(t, err)
	assert.Equal(t, distinctSorted(a), readFile(t, fs, "/data/aa.bin"))
}

func TestIntersectHandleError(t *testing.T) {
	s, fs := setup(t)
	writeFile(t, fs, "/data/a.bin", recordio.Encode(1))

	_, err := s.Intersect(context.Background(), "/data/a.bin", "/data/missing.bin", "/data/out.bin")
	assert.Error(t, err)
	_, err = s.Intersect(context.Background(), "/data/missing.bin", "/data/a.bin", "/data/out.bin")
	assert.Error(t, err)

	// An output naming an input is rejected before anything is truncated.
	for _, output := range []string{"/data/a.bin", "/data/../data/a.bin"} {
		_, err = s.Intersect(context.Background(), "/data/a.bin", "/data/b.bin", output)
		require.ErrorIs(t, err, xsort.ErrOutputIsInput)
		_, err = s.Intersect(context.Background(), "/data/b.bin", "/data/a.bin", output)
		require.ErrorIs(t, err, xsort.ErrOutputIsInput)
	}
	assert.Equal(t, []uint32{1}, readFile(t, fs, "/data/a.bin"))
}
