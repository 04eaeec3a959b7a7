package compactor

import (
	"errors"
	"fmt"
	"io"

	"github.com/davidvella/xsort/loser"
	"github.com/davidvella/xsort/recordio"
)

// errSource is implemented by sequences that can fail while being read, such
// as *recordio.Reader.
type errSource interface {
	Err() error
}

func less(a, b uint32) bool { return a < b }

// Compact performs streaming merge of sorted sequences into w, writing each
// distinct value once. It returns the number of records written.
func Compact(w io.Writer, sequences ...loser.Sequence[uint32]) (int64, error) {
	var (
		lt   = loser.New(sequences, less)
		out  = recordio.NewWriter(w)
		last uint32
		done bool
	)

	for current := range lt.All() {
		if done && current <= last {
			continue
		}
		if err := out.Write(current); err != nil {
			return out.Count(), fmt.Errorf("compactor: %w", err)
		}
		last, done = current, true
	}

	if err := sourceErr(sequences); err != nil {
		return out.Count(), fmt.Errorf("compactor: failed to read sequence: %w", err)
	}

	if err := out.Flush(); err != nil {
		return out.Count(), fmt.Errorf("compactor: %w", err)
	}

	return out.Count(), nil
}

func sourceErr(sequences []loser.Sequence[uint32]) error {
	var errs []error
	for _, s := range sequences {
		if es, ok := s.(errSource); ok {
			if err := es.Err(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
