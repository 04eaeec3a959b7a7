// Package config loads command-line defaults from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strconv"

	"github.com/davidvella/xsort"
	"github.com/davidvella/xsort/monitoring"
	"github.com/joho/godotenv"
)

// Environment variables read by Load.
const (
	EnvLogLevel  = "XSORT_LOG_LEVEL"
	EnvChunkSize = "XSORT_CHUNK_SIZE"
	EnvTempDir   = "XSORT_TEMP_DIR"
	EnvWorkers   = "XSORT_WORKERS"
	EnvMmap      = "XSORT_MMAP"
)

type Config struct {
	LogLevel  monitoring.LogLevel
	ChunkSize int
	TempDir   string
	Workers   int
	Mmap      bool
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		LogLevel:  monitoring.INFO,
		ChunkSize: xsort.DefaultChunkSize,
		TempDir:   "",
		Workers:   runtime.GOMAXPROCS(0),
		Mmap:      false,
	}
}

// Load reads the given env files, or .env when none are given, skipping any
// that do not exist, and then the process environment. Variables already
// present in the environment win over file entries.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: failed to load %s: %w", f, err)
		}
	}

	cfg := Default()

	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		level, err := monitoring.ParseLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", EnvLogLevel, err)
		}
		cfg.LogLevel = level
	}

	if v, ok := os.LookupEnv(EnvChunkSize); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("config: %s must be a positive integer, got %q", EnvChunkSize, v)
		}
		cfg.ChunkSize = n
	}

	if v, ok := os.LookupEnv(EnvTempDir); ok {
		cfg.TempDir = v
	}

	if v, ok := os.LookupEnv(EnvWorkers); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("config: %s must be a positive integer, got %q", EnvWorkers, v)
		}
		cfg.Workers = n
	}

	if v, ok := os.LookupEnv(EnvMmap); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", EnvMmap, err)
		}
		cfg.Mmap = b
	}

	return cfg, nil
}
