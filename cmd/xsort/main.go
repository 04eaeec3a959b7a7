// Command xsort deduplicates and intersects large files of 32-bit keys.
//
// Usage:
//
//	xsort distinct [flags] INPUT [OUTPUT]
//	xsort intersect [flags] LEFT RIGHT OUTPUT
//	xsort generate [flags] OUTPUT
//
// Defaults come from XSORT_* environment variables or a .env file; flags
// override them.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/davidvella/xsort"
	"github.com/davidvella/xsort/config"
	"github.com/davidvella/xsort/monitoring"
	"github.com/davidvella/xsort/recordio"
	"github.com/spf13/pflag"
)

var errUsage = errors.New("usage error")

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	switch args[0] {
	case "distinct":
		err = distinct(ctx, cfg, args[1:], stdout, stderr)
	case "intersect":
		err = intersect(ctx, cfg, args[1:], stdout, stderr)
	case "generate":
		err = generate(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, pflag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintln(stderr, err)
		return 2
	default:
		fmt.Fprintln(stderr, "xsort:", err)
		return 1
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage:")
	fmt.Fprintln(w, "  xsort distinct [flags] INPUT [OUTPUT]")
	fmt.Fprintln(w, "  xsort intersect [flags] LEFT RIGHT OUTPUT")
	fmt.Fprintln(w, "  xsort generate [flags] OUTPUT")
}

// sorterFlags registers the flags shared by commands that build a sorter.
func sorterFlags(fs *pflag.FlagSet, cfg *config.Config) *string {
	fs.IntVarP(&cfg.ChunkSize, "chunk-size", "c", cfg.ChunkSize, "records held in memory per chunk")
	fs.IntVarP(&cfg.Workers, "workers", "w", cfg.Workers, "goroutines used to sort a chunk")
	fs.StringVarP(&cfg.TempDir, "temp-dir", "t", cfg.TempDir, "directory for temporary runs (default: working directory)")
	fs.BoolVar(&cfg.Mmap, "mmap", cfg.Mmap, "memory-map input files")
	return fs.StringP("log-level", "l", cfg.LogLevel.String(), "debug, info, warn or error")
}

func newSorter(cfg config.Config, level string) (*xsort.Sorter, error) {
	lvl, err := monitoring.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	logger, err := monitoring.NewZapLogger("xsort", lvl)
	if err != nil {
		return nil, err
	}
	return xsort.New(
		xsort.WithChunkSize(cfg.ChunkSize),
		xsort.WithWorkers(cfg.Workers),
		xsort.WithTempDir(cfg.TempDir),
		xsort.WithMmap(cfg.Mmap),
		xsort.WithLogger(logger),
	)
}

// defaultOutput names the output after the input: 1.bin becomes
// 1_distinct_sorted.bin.
func defaultOutput(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "_distinct_sorted" + ext
}

func distinct(ctx context.Context, cfg config.Config, args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("distinct", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	level := sorterFlags(fs, &cfg)
	clean := fs.Bool("clean", false, "delete runs left behind by an earlier failed run before starting")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		return fmt.Errorf("%w: distinct needs INPUT [OUTPUT]", errUsage)
	}

	input := fs.Arg(0)
	output := defaultOutput(input)
	if fs.NArg() == 2 {
		output = fs.Arg(1)
	}

	s, err := newSorter(cfg, *level)
	if err != nil {
		return err
	}

	if *clean {
		removed, err := s.RemoveLeftovers(ctx, input)
		if err != nil {
			return err
		}
		for _, name := range removed {
			fmt.Fprintf(stdout, "removed leftover run %s\n", name)
		}
	}

	stats, err := s.SortDistinct(ctx, input, output)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: read %d records, wrote %d distinct records to %s using %d runs\n",
		input, stats.RecordsRead, stats.RecordsWritten, output, stats.Runs)
	if stats.TruncatedBytes > 0 {
		fmt.Fprintf(stdout, "%s: ignored %d trailing bytes\n", input, stats.TruncatedBytes)
	}
	return nil
}

func intersect(ctx context.Context, cfg config.Config, args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("intersect", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	level := sorterFlags(fs, &cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 3 {
		return fmt.Errorf("%w: intersect needs LEFT RIGHT OUTPUT", errUsage)
	}

	s, err := newSorter(cfg, *level)
	if err != nil {
		return err
	}

	n, err := s.Intersect(ctx, fs.Arg(0), fs.Arg(1), fs.Arg(2))
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %d common records to %s\n", n, fs.Arg(2))
	return nil
}

func generate(args []string, stdout, stderr io.Writer) (err error) {
	fs := pflag.NewFlagSet("generate", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	count := fs.Int64P("count", "n", 1000, "number of records")
	seed := fs.Int64P("seed", "s", 1, "random seed")
	maxValue := fs.Uint32P("max", "m", 0, "exclusive upper bound on values (0: full range)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("%w: generate needs OUTPUT", errUsage)
	}
	if *count < 0 {
		return fmt.Errorf("%w: count must not be negative", errUsage)
	}

	f, err := os.Create(fs.Arg(0))
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, f.Close()) }()

	r := rand.New(rand.NewSource(*seed))
	w := recordio.NewWriter(f)
	for range *count {
		v := r.Uint32()
		if *maxValue > 0 {
			v %= *maxValue
		}
		if err := w.Write(v); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "wrote %d records to %s\n", w.Count(), fs.Arg(0))
	return nil
}
