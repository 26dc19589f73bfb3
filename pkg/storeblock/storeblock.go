// Package storeblock provides the concrete, shippable block.Listener that
// serializes each sealed Block and appends it to a write-ahead log.
package storeblock

import (
	"fmt"
	"time"

	"github.com/duraflow/duraflow/pkg/block"
	"github.com/duraflow/duraflow/pkg/blockcodec"
	"github.com/duraflow/duraflow/pkg/wal"
)

// DownstreamHook is invoked after a Block's envelope has been durably
// written, with the location it was written to. A non-nil return is passed
// to OnError — it is never allowed to stop the WAL write it describes, since
// that has already happened by the time the hook runs.
type DownstreamHook func(id block.ID, seg wal.FileSegment) error

// ErrorReporter receives failures from either the encode/write step or the
// downstream hook. Errors are never swallowed.
type ErrorReporter interface {
	OnError(message string, err error)
}

// Metrics is an optional sink for storeblock observability. A nil Metrics is
// treated as a no-op.
type Metrics interface {
	IncRecordsWritten(n int)
	ObserveWriteDuration(d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) IncRecordsWritten(int)              {}
func (noopMetrics) ObserveWriteDuration(time.Duration) {}

// Option configures a WALStore at construction time.
type Option func(*WALStore)

// WithMetrics overrides the metrics sink (default: no-op).
func WithMetrics(m Metrics) Option {
	return func(s *WALStore) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WALStore implements block.Listener by encoding each pushed Block with
// blockcodec and appending the result to a wal.Writer.
type WALStore struct {
	writer   *wal.Writer
	hook     DownstreamHook
	reporter ErrorReporter
	metrics  Metrics
}

// New constructs a WALStore writing block envelopes through writer. hook may
// be nil, in which case nothing runs after the write. reporter may be nil,
// in which case errors are discarded (callers that care should always
// supply one).
func New(writer *wal.Writer, hook DownstreamHook, reporter ErrorReporter, opts ...Option) *WALStore {
	if reporter == nil {
		reporter = discardReporter{}
	}
	s := &WALStore{writer: writer, hook: hook, reporter: reporter, metrics: noopMetrics{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnPushBlock implements block.Listener.
func (s *WALStore) OnPushBlock(id block.ID, records []block.Record) {
	encoded := blockcodec.EncodeBlock(block.Block{ID: id, Records: records})

	start := time.Now()
	seg, err := s.writer.Write(encoded)
	s.metrics.ObserveWriteDuration(time.Since(start))
	if err != nil {
		s.reporter.OnError("failed to write block envelope to wal", fmt.Errorf("block %s/%d: %w", id.ReceiverID, id.TimestampMillis, err))
		return
	}
	s.metrics.IncRecordsWritten(len(records))

	if s.hook == nil {
		return
	}
	if err := s.hook(id, seg); err != nil {
		s.reporter.OnError("downstream hook failed after wal write", err)
	}
}

// OnError implements block.Listener by forwarding to the configured
// reporter.
func (s *WALStore) OnError(message string, err error) {
	s.reporter.OnError(message, err)
}

type discardReporter struct{}

func (discardReporter) OnError(string, error) {}

var _ block.Listener = (*WALStore)(nil)
