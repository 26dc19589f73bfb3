package wal

import "errors"

var (
	// ErrLogClosed is returned when Write is called on a closed Writer.
	ErrLogClosed = errors.New("wal: log is closed")

	// ErrFrameTruncated is returned by Reader when a frame is cut short by
	// something other than a clean EOF at a frame boundary.
	ErrFrameTruncated = errors.New("wal: frame truncated")

	// ErrSegmentOutOfBounds is returned by RandomReader when a FileSegment
	// describes a region outside the mapped file.
	ErrSegmentOutOfBounds = errors.New("wal: segment out of bounds")

	// ErrSegmentLengthMismatch is returned by RandomReader when the length
	// prefix stored at the segment's offset disagrees with the segment's
	// recorded length — the descriptor and file have diverged.
	ErrSegmentLengthMismatch = errors.New("wal: segment length mismatch")
)
