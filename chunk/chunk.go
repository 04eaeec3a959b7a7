// Package chunk holds a bounded in-memory buffer of records and sorts it.
package chunk

import (
	"context"
	"math/bits"
	"slices"

	"github.com/davidvella/xsort/recordio"
	"golang.org/x/sync/errgroup"
)

// Below this many records a partition is sorted sequentially.
const parallelThreshold = 1 << 16

// Chunk is an owned buffer of at most Cap records.
type Chunk struct {
	data     []uint32
	capacity int
}

// New allocates a chunk holding up to capacity records.
func New(capacity int) *Chunk {
	return &Chunk{
		data:     make([]uint32, 0, capacity),
		capacity: capacity,
	}
}

// Load empties the chunk and fills it from src until it holds Cap records or
// src ends. It returns the resulting length; zero means src is exhausted.
func (c *Chunk) Load(src recordio.Source) int {
	c.data = c.data[:0]
	for len(c.data) < c.capacity {
		v, ok := src.Next()
		if !ok {
			break
		}
		c.data = append(c.data, v)
	}
	return len(c.data)
}

// Sort orders the records ascending using up to workers goroutines. The sort
// is unstable.
func (c *Chunk) Sort(ctx context.Context, workers int) error {
	if workers <= 1 || len(c.data) < parallelThreshold {
		slices.Sort(c.data)
		return nil
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	g.Go(func() error {
		parallelSort(g, c.data, 2*bits.Len(uint(len(c.data))))
		return nil
	})
	return g.Wait()
}

// Values returns the buffered records. The slice is reused by the next Load.
func (c *Chunk) Values() []uint32 {
	return c.data
}

// Len returns the number of buffered records.
func (c *Chunk) Len() int {
	return len(c.data)
}

// Cap returns the maximum number of records the chunk holds.
func (c *Chunk) Cap() int {
	return c.capacity
}

// Reset drops the buffered records and releases the backing array.
func (c *Chunk) Reset() {
	c.data = nil
	c.capacity = 0
}

// parallelSort is a quicksort whose halves are handed to the group when a
// worker slot is free. Once depth is spent it falls back to slices.Sort.
func parallelSort(g *errgroup.Group, s []uint32, depth int) {
	for len(s) >= parallelThreshold && depth > 0 {
		depth--
		d := depth
		p := partition(s)
		left, right := s[:p+1], s[p+1:]
		if !g.TryGo(func() error {
			parallelSort(g, left, d)
			return nil
		}) {
			parallelSort(g, left, d)
		}
		s = right
	}
	slices.Sort(s)
}

// partition moves the median of three to the front and runs a Hoare
// partition around it. It returns p such that s[:p+1] <= s[p+1:], with
// 0 <= p < len(s)-1.
func partition(s []uint32) int {
	mid, last := len(s)/2, len(s)-1
	if s[mid] < s[0] {
		s[mid], s[0] = s[0], s[mid]
	}
	if s[last] < s[0] {
		s[last], s[0] = s[0], s[last]
	}
	if s[last] < s[mid] {
		s[last], s[mid] = s[mid], s[last]
	}
	s[0], s[mid] = s[mid], s[0]

	pivot := s[0]
	i, j := -1, len(s)
	for {
		for i++; s[i] < pivot; i++ {
		}
		for j--; s[j] > pivot; j-- {
		}
		if i >= j {
			return j
		}
		s[i], s[j] = s[j], s[i]
	}
}
