// Package ingest implements the polling side of the ingestion pipeline: N
// worker goroutines that each borrow a pooled Connection, pull one
// EventBatch from it, and feed the resulting records to an upstream store
// callback with ack/nack accounting.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// ErrRemoteErrorBatch marks a batch a source reported as failed.
	ErrRemoteErrorBatch = errors.New("ingest: remote reported an error batch")
	// ErrRPCFailed marks a transport-level failure talking to a source.
	ErrRPCFailed = errors.New("ingest: remote rpc failed")
)

// Event is one unit handed back by a source's event batch RPC.
type Event struct {
	Body    []byte
	Headers map[string]string
}

// Record is the internal shape events are converted to before reaching the
// store callback. The conversion is verbatim: body and headers pass through
// unchanged.
type Record struct {
	Body    []byte
	Headers map[string]string
}

// EventBatch is the result of one get_event_batch call. ErrorMessage
// non-empty means the remote reported a failure for this poll; SequenceNumber
// and Events are meaningless in that case.
type EventBatch struct {
	SequenceNumber string
	Events         []Event
	ErrorMessage   string
}

// Source is the remote event source RPC surface a Connection wraps.
type Source interface {
	GetEventBatch(ctx context.Context, maxBatchSize int) (EventBatch, error)
	Ack(ctx context.Context, seq string) error
	Nack(ctx context.Context, seq string) error
	Close() error
}

// Connection is a pooled handle to one Source.
type Connection struct {
	Source Source
}

// OutcomeKind classifies the result of one worker's poll step, replacing
// exception-driven root-cause unwrapping with an explicit sum type.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeErrorBatch
	OutcomeInterrupted
	OutcomeRPCFailed
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeErrorBatch:
		return "error_batch"
	case OutcomeInterrupted:
		return "interrupted"
	case OutcomeRPCFailed:
		return "rpc_failed"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is what one poll step returns.
type Outcome struct {
	Kind   OutcomeKind
	Events []Record
	Seq    string
	Err    error
}

// StoreFunc is the upstream callback fed converted records from one batch.
type StoreFunc func(ctx context.Context, records []Record) error

// ErrorReporter receives non-fatal failures the ingestor cannot otherwise
// surface to a caller (it runs on background worker goroutines).
type ErrorReporter interface {
	OnError(message string, err error)
}

// Metrics is an optional sink for ingestor observability. A nil Metrics is
// treated as a no-op.
type Metrics interface {
	ObserveBatch(outcome OutcomeKind)
	IncAck()
	IncNack()
	SetConnectionsInUse(n int)
}

type noopReporter struct{}

func (noopReporter) OnError(string, error) {}

type noopMetrics struct{}

func (noopMetrics) ObserveBatch(OutcomeKind)     {}
func (noopMetrics) IncAck()                      {}
func (noopMetrics) IncNack()                     {}
func (noopMetrics) SetConnectionsInUse(int)      {}

// Option configures an Ingestor at construction time.
type Option func(*Ingestor)

// WithReporter overrides the error reporter (default: discard).
func WithReporter(r ErrorReporter) Option {
	return func(i *Ingestor) {
		if r != nil {
			i.reporter = r
		}
	}
}

// WithMetrics overrides the metrics sink (default: no-op).
func WithMetrics(m Metrics) Option {
	return func(i *Ingestor) {
		if m != nil {
			i.metrics = m
		}
	}
}

// Ingestor runs parallelism worker goroutines pulling batches from a pool of
// Connections, one per configured source.
type Ingestor struct {
	sources      []Source
	maxBatchSize int
	parallelism  int
	store        StoreFunc
	reporter     ErrorReporter
	metrics      Metrics

	pool *connPool

	stopped atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs an Ingestor. One Connection is opened per entry in sources;
// the pool therefore holds len(sources) handles regardless of parallelism.
func New(sources []Source, maxBatchSize, parallelism int, store StoreFunc, opts ...Option) *Ingestor {
	if parallelism < 1 {
		parallelism = 1
	}
	ing := &Ingestor{
		sources:      sources,
		maxBatchSize: maxBatchSize,
		parallelism:  parallelism,
		store:        store,
		reporter:     noopReporter{},
		metrics:      noopMetrics{},
		pool:         newConnPool(len(sources)),
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// Start opens all connections and launches the worker pool.
func (ing *Ingestor) Start(ctx context.Context) {
	ing.ctx, ing.cancel = context.WithCancel(ctx)

	for _, s := range ing.sources {
		ing.pool.put(&Connection{Source: s})
	}
	ing.metrics.SetConnectionsInUse(0)

	ing.wg.Add(ing.parallelism)
	for i := 0; i < ing.parallelism; i++ {
		go ing.worker()
	}
}

// Stop signals every worker to exit, cancels in-flight RPCs, waits for every
// worker to return its connection to the pool, and closes every source's
// connection. The pool stays full afterwards, so inUse reports 0.
func (ing *Ingestor) Stop() {
	ing.stopped.Store(true)
	ing.cancel()
	ing.pool.closeWaiters()
	ing.wg.Wait()

	for _, s := range ing.sources {
		if err := s.Close(); err != nil {
			ing.reporter.OnError("close source failed", err)
		}
	}
}

func (ing *Ingestor) worker() {
	defer ing.wg.Done()

	for {
		if ing.stopped.Load() {
			return
		}

		conn, ok := ing.pool.take()
		if !ok {
			return
		}

		ing.metrics.SetConnectionsInUse(ing.pool.inUse())
		ing.runIteration(conn)
		ing.metrics.SetConnectionsInUse(ing.pool.inUse())
	}
}

// runIteration executes exactly one borrow→poll→store→ack/nack cycle. The
// connection is returned to the pool on every exit path, including a
// recovered panic — this is Invariant 3 (pool conservation).
func (ing *Ingestor) runIteration(conn *Connection) {
	defer ing.pool.put(conn)
	defer func() {
		if r := recover(); r != nil {
			ing.reporter.OnError("ingest worker recovered from panic", fmt.Errorf("panic: %v", r))
		}
	}()

	outcome := ing.poll(conn)
	ing.metrics.ObserveBatch(outcome.Kind)

	switch outcome.Kind {
	case OutcomeOK:
		if err := ing.store(ing.ctx, outcome.Events); err != nil {
			ing.reporter.OnError("store callback failed", err)
			if nackErr := conn.Source.Nack(ing.ctx, outcome.Seq); nackErr != nil {
				ing.reporter.OnError("nack failed", nackErr)
			} else {
				ing.metrics.IncNack()
			}
			return
		}
		if err := conn.Source.Ack(ing.ctx, outcome.Seq); err != nil {
			// No nack here: the state diagram has no NACKING edge out of
			// STORING, only out of the poll step itself. The store already
			// succeeded, so nacking would risk redelivering records the
			// downstream store has already durably applied.
			ing.reporter.OnError("ack failed", err)
			return
		}
		ing.metrics.IncAck()

	case OutcomeErrorBatch:
		ing.reporter.OnError("remote reported error batch", outcome.Err)

	case OutcomeInterrupted:
		// stopped is checked again at the top of worker(); nothing to do here.

	case OutcomeRPCFailed:
		ing.reporter.OnError("rpc failed", outcome.Err)

	case OutcomeFatal:
		ing.reporter.OnError("fatal ingest failure", outcome.Err)
		ing.stopped.Store(true)
	}
}

// poll runs the get_event_batch RPC and classifies the result into an
// Outcome. It never calls store, ack, or nack — those are runIteration's
// responsibility so the connection-return guard covers them too.
func (ing *Ingestor) poll(conn *Connection) Outcome {
	batch, err := conn.Source.GetEventBatch(ing.ctx, ing.maxBatchSize)
	if err != nil {
		if ing.stopped.Load() && errors.Is(err, context.Canceled) {
			return Outcome{Kind: OutcomeInterrupted}
		}
		return Outcome{Kind: OutcomeRPCFailed, Err: fmt.Errorf("%w: %v", ErrRPCFailed, err)}
	}

	if batch.ErrorMessage != "" {
		return Outcome{
			Kind: OutcomeErrorBatch,
			Seq:  batch.SequenceNumber,
			Err:  fmt.Errorf("%w: %s", ErrRemoteErrorBatch, batch.ErrorMessage),
		}
	}

	records := make([]Record, len(batch.Events))
	for i, e := range batch.Events {
		records[i] = Record{Body: e.Body, Headers: e.Headers}
	}

	return Outcome{Kind: OutcomeOK, Events: records, Seq: batch.SequenceNumber}
}
