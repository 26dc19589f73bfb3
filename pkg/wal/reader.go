package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/duraflow/duraflow/pkg/fsio"
)

// Reader is a lazy, finite, single-pass sequence over the (length, payload)
// frames of one log file, yielded in write order. Not safe for concurrent
// use.
type Reader struct {
	stream *fsio.Stream
}

// NewReader opens path read-only and returns a Reader positioned at the
// start of the file.
func NewReader(path string) (*Reader, error) {
	stream, err := fsio.OpenRead(path)
	if err != nil {
		return nil, fmt.Errorf("wal: new reader: %w", err)
	}
	return &Reader{stream: stream}, nil
}

// Next returns the next frame's payload, or io.EOF once the file is
// exhausted at a clean frame boundary. Any other truncation of a frame
// surfaces ErrFrameTruncated.
func (r *Reader) Next() ([]byte, error) {
	var prefix [lengthPrefixSize]byte
	n, err := io.ReadFull(r.stream.File, prefix[:])
	if err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: %v", ErrFrameTruncated, err)
	}

	length := binary.BigEndian.Uint32(prefix[:])
	buf := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r.stream.File, buf); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFrameTruncated, err)
		}
	}

	return buf, nil
}

// Collect drains the reader into a slice of buffers, in write order. It
// exists for tests and small logs; production callers should prefer Next in
// a loop to avoid buffering the whole file.
func (r *Reader) Collect() ([][]byte, error) {
	var out [][]byte
	for {
		buf, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, buf)
	}
}

// Close releases the underlying stream.
func (r *Reader) Close() error {
	return r.stream.Close()
}
