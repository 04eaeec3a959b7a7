// Package recordio reads and writes flat files of 32-bit unsigned integers.
//
// A file is a headerless sequence of 4-byte little-endian records. Record
// count is the file size divided by four; a trailing fragment shorter than a
// record is treated as end of data rather than as a format error.
package recordio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
)

// Size is the encoded width of a single record in bytes.
const Size = 4

const defaultBufSize = 52 * 1024

// Source yields records one at a time until it reports false.
type Source interface {
	Next() (uint32, bool)
}

// Reader is a single-pass cursor decoding records from an io.Reader. Once it
// reports end of data it keeps doing so; it cannot be rewound.
type Reader struct {
	r         *bufio.Reader
	buf       [Size]byte
	done      bool
	err       error
	truncated int
}

// NewReader returns a Reader that buffers reads from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, defaultBufSize)}
}

// Next decodes the next record. It returns false when the source is
// exhausted, ends in a partial record, or fails; Err distinguishes failure.
func (r *Reader) Next() (uint32, bool) {
	if r.done {
		return 0, false
	}

	n, err := io.ReadFull(r.r, r.buf[:])
	if err != nil {
		r.done = true
		switch {
		case errors.Is(err, io.EOF):
		case errors.Is(err, io.ErrUnexpectedEOF):
			r.truncated = n
		default:
			r.err = fmt.Errorf("recordio: read failed: %w", err)
		}
		return 0, false
	}

	return binary.LittleEndian.Uint32(r.buf[:]), true
}

// All returns an iterator over the remaining records.
func (r *Reader) All() iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		for {
			v, ok := r.Next()
			if !ok || !yield(v) {
				return
			}
		}
	}
}

// Err returns the first read error other than end of data.
func (r *Reader) Err() error {
	return r.err
}

// Truncated returns the number of bytes dropped from a trailing partial record.
func (r *Reader) Truncated() int {
	return r.truncated
}

// Cursor wraps a Source with exactly one element of lookahead.
type Cursor struct {
	src   Source
	value uint32
	ok    bool
}

// NewCursor returns a Cursor positioned on the first record of src.
func NewCursor(src Source) *Cursor {
	c := &Cursor{src: src}
	c.Advance()
	return c
}

// Peek returns the pending record without consuming it.
func (c *Cursor) Peek() (uint32, bool) {
	return c.value, c.ok
}

// Advance discards the pending record and fetches the next one.
func (c *Cursor) Advance() {
	if c.src == nil {
		c.ok = false
		return
	}
	c.value, c.ok = c.src.Next()
}

// Writer is an append-only, buffered record sink. Flush must be called once
// writing is complete.
type Writer struct {
	buf     *bufio.Writer
	scratch [Size]byte
	count   int64
}

// NewWriter returns a Writer buffering writes to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{buf: bufio.NewWriterSize(w, defaultBufSize)}
}

// Write appends v.
func (w *Writer) Write(v uint32) error {
	binary.LittleEndian.PutUint32(w.scratch[:], v)
	if _, err := w.buf.Write(w.scratch[:]); err != nil {
		return fmt.Errorf("recordio: write failed: %w", err)
	}
	w.count++
	return nil
}

// Flush writes any buffered records to the underlying writer.
func (w *Writer) Flush() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("recordio: flush failed: %w", err)
	}
	return nil
}

// Count returns the number of records written so far.
func (w *Writer) Count() int64 {
	return w.count
}

// Encode returns the encoded form of values.
func Encode(values ...uint32) []byte {
	b := make([]byte, 0, len(values)*Size)
	for _, v := range values {
		b = binary.LittleEndian.AppendUint32(b, v)
	}
	return b
}

// ReadAll decodes every record from r.
func ReadAll(r io.Reader) ([]uint32, error) {
	reader := NewReader(r)
	values := make([]uint32, 0, 1)
	for v := range reader.All() {
		values = append(values, v)
	}
	return values, reader.Err()
}
