// Package streamjson emits a JSON array incrementally.
//
// The encoder writes the opening bracket on the first element, a comma
// before every subsequent one and the closing bracket on Close, so a
// consumer can parse elements as they arrive and the producer never
// buffers the whole array.
package streamjson

import (
	"io"
)

// Encoder writes one JSON array to w, element by element.
type Encoder struct {
	w        io.Writer
	started  bool
	closed   bool
	elements int64
}

// NewEncoder creates an Encoder over w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Element appends one serialized array element. raw must be a complete
// JSON value.
func (e *Encoder) Element(raw []byte) error {
	if e.closed {
		return io.ErrClosedPipe
	}

	sep := []byte{','}
	if !e.started {
		e.started = true
		sep = []byte{'['}
	}
	if _, err := e.w.Write(sep); err != nil {
		return err
	}
	if _, err := e.w.Write(raw); err != nil {
		return err
	}
	e.elements++
	return nil
}

// Close terminates the array, emitting "[]" when no element was
// written. Close is idempotent.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	end := []byte{']'}
	if !e.started {
		end = []byte{'[', ']'}
	}
	_, err := e.w.Write(end)
	return err
}

// Elements returns the number of elements written so far.
func (e *Encoder) Elements() int64 {
	return e.elements
}
