package wal

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/duraflow/duraflow/pkg/fsio"
)

const lengthPrefixSize = 4

// Writer appends length-prefixed records to one log file and returns a
// FileSegment describing where each record landed. Every write is flushed
// to durable storage before the call returns.
//
// Frame layout: a 4-byte big-endian unsigned length prefix, followed by
// exactly that many payload bytes. No header, no trailer, no checksum, no
// padding — torn-write detection is explicitly out of scope; the reader
// ends cleanly at a frame boundary, reports a partial trailing frame as
// ErrFrameTruncated, and performs no recovery.
type Writer struct {
	mu       sync.Mutex
	stream   *fsio.Stream
	path     string
	position int64
	closed   bool
}

// NewWriter opens (or creates) path for appending and returns a Writer ready
// to accept records. appendSupport mirrors the fsio.OpenAppend contract.
func NewWriter(path string, appendSupport bool) (*Writer, error) {
	stream, err := fsio.OpenAppend(path, appendSupport)
	if err != nil {
		return nil, fmt.Errorf("wal: new writer: %w", err)
	}
	pos, err := stream.CurrentPosition()
	if err != nil {
		stream.Close()
		return nil, fmt.Errorf("wal: new writer: %w", err)
	}
	return &Writer{stream: stream, path: path, position: pos}, nil
}

// Write appends data as one frame and returns the FileSegment locating it.
func (w *Writer) Write(data []byte) (FileSegment, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return FileSegment{}, ErrLogClosed
	}

	offset := w.position

	var prefix [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(data)))

	if _, err := w.stream.File.Write(prefix[:]); err != nil {
		return FileSegment{}, fmt.Errorf("wal: write length prefix: %w", err)
	}
	if len(data) > 0 {
		if _, err := w.stream.File.Write(data); err != nil {
			return FileSegment{}, fmt.Errorf("wal: write payload: %w", err)
		}
	}

	if err := w.stream.DurableFlush(); err != nil {
		return FileSegment{}, fmt.Errorf("wal: durable flush: %w", err)
	}

	w.position += int64(lengthPrefixSize + len(data))

	return FileSegment{Path: w.path, Offset: offset, Length: int32(len(data))}, nil
}

// Close releases the underlying stream. Idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.stream.Close()
}

// Path returns the file path this writer appends to.
func (w *Writer) Path() string {
	return w.path
}
