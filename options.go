package xsort

import (
	"runtime"

	"github.com/davidvella/xsort/metrics"
	"github.com/davidvella/xsort/monitoring"
	"github.com/spf13/afero"
)

// DefaultChunkSize is the default memory budget, in records (64 MiB of keys).
const DefaultChunkSize = 1 << 24

// options defines all configuration options for the sorter.
type options struct {
	// Sorting options
	chunkSize int // Maximum number of records held in memory at once
	workers   int // Goroutines used to sort one chunk

	// Storage options
	tempDir string   // Directory runs are written to
	fs      afero.Fs // Filesystem holding inputs, outputs and runs
	mmap    bool     // Memory-map inputs instead of reading them

	logger   monitoring.Logger
	registry *metrics.Registry
}

// Option is a function that configures the sorter options.
type Option func(*options)

// WithChunkSize sets the memory budget in records. Smaller budgets lower
// peak memory and produce more runs to merge.
func WithChunkSize(n int) Option {
	return func(o *options) {
		o.chunkSize = n
	}
}

// WithWorkers sets the number of goroutines sorting a chunk.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithTempDir sets the directory runs are written to. Runs are named after
// the base name of their input, so concurrent sorts sharing a directory must
// sort inputs with distinct base names.
func WithTempDir(dir string) Option {
	return func(o *options) {
		o.tempDir = dir
	}
}

// WithFs sets the filesystem holding inputs, outputs and runs.
func WithFs(fs afero.Fs) Option {
	return func(o *options) {
		o.fs = fs
	}
}

// WithMmap memory-maps input files when they live on the OS filesystem.
func WithMmap(enabled bool) Option {
	return func(o *options) {
		o.mmap = enabled
	}
}

// WithLogger sets the logger receiving stage transitions.
func WithLogger(l monitoring.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics sets the registry sorter metrics are recorded into.
func WithMetrics(r *metrics.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// defaultOptions returns the default configuration.
func defaultOptions() options {
	return options{
		chunkSize: DefaultChunkSize,
		workers:   runtime.GOMAXPROCS(0),
		tempDir:   "",
		fs:        afero.NewOsFs(),
		mmap:      false,
		logger:    monitoring.NewNopLogger(),
		registry:  metrics.NewSorterRegistry(),
	}
}
