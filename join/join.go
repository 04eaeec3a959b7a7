// Package join computes set operations over sorted, duplicate-free record
// streams using a merge join.
package join

import (
	"errors"
	"fmt"
	"io"

	"github.com/davidvella/xsort/recordio"
)

type errSource interface {
	Err() error
}

// Intersect writes to w the values present in both a and b and returns how
// many it wrote. Both sources must be ascending and duplicate-free; this is
// not verified. The result is ascending and does not depend on argument order.
func Intersect(w io.Writer, a, b recordio.Source) (int64, error) {
	var (
		left  = recordio.NewCursor(a)
		right = recordio.NewCursor(b)
		out   = recordio.NewWriter(w)
	)

	for {
		x, okA := left.Peek()
		y, okB := right.Peek()
		if !okA || !okB {
			break
		}

		switch {
		case x == y:
			if err := out.Write(x); err != nil {
				return out.Count(), fmt.Errorf("join: %w", err)
			}
			left.Advance()
			right.Advance()
		case x < y:
			left.Advance()
		default:
			right.Advance()
		}
	}

	if err := errors.Join(sourceErr(a), sourceErr(b)); err != nil {
		return out.Count(), fmt.Errorf("join: failed to read input: %w", err)
	}

	if err := out.Flush(); err != nil {
		return out.Count(), fmt.Errorf("join: %w", err)
	}

	return out.Count(), nil
}

func sourceErr(s recordio.Source) error {
	if es, ok := s.(errSource); ok {
		return es.Err()
	}
	return nil
}
