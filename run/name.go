package run

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrInvalidName is returned by ParseName for names not produced by Name.
var ErrInvalidName = errors.New("run: invalid run name")

// Key identifies a run: its position within one external sort and the base
// name of the file being sorted.
type Key struct {
	Counter int
	Source  string
}

// Name returns the file name of run counter of source.
func Name(counter int, source string) string {
	return Serialize(Key{Counter: counter, Source: filepath.Base(source)})
}

// Serialize formats k as a run file name.
func Serialize(k Key) string {
	return fmt.Sprintf("%d_%s", k.Counter, k.Source)
}

// ParseName recovers the Key from a run file name.
func ParseName(name string) (Key, error) {
	counter, source, ok := strings.Cut(filepath.Base(name), "_")
	if !ok || source == "" {
		return Key{}, ErrInvalidName
	}

	c, err := strconv.Atoi(counter)
	if err != nil || c < 0 {
		return Key{}, fmt.Errorf("%w: counter %q", ErrInvalidName, counter)
	}

	return Key{
		Counter: c,
		Source:  source,
	}, nil
}
