// Package natssource implements ingest.Source over NATS request/reply,
// adapting the request/queue-group subject conventions of a generic
// pub/sub event bus to a poll-one-batch-per-request protocol:
//
//	<prefix>.get_event_batch   request/reply, carries max_batch_size
//	<prefix>.ack               fire-and-forget publish, carries a sequence number
//	<prefix>.nack              fire-and-forget publish, carries a sequence number
package natssource

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/duraflow/duraflow/pkg/ingest"
)

const DefaultRequestTimeout = 5 * time.Second

// Source is one remote event source reached over its own dedicated NATS
// connection — DURAFLOW pools one native connection per configured source,
// not a shared multiplexed connection.
type Source struct {
	conn           *nats.Conn
	subjectPrefix  string
	requestTimeout time.Duration
}

// Dial opens a new NATS connection to url and returns a Source scoped to
// subjectPrefix (e.g. "duraflow.ingest.orders").
func Dial(url, subjectPrefix string, requestTimeout time.Duration, options ...nats.Option) (*Source, error) {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}

	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("natssource: connect %s: %w", url, err)
	}

	return &Source{conn: conn, subjectPrefix: subjectPrefix, requestTimeout: requestTimeout}, nil
}

type getEventBatchRequest struct {
	MaxBatchSize int    `json:"max_batch_size"`
	RequestID    string `json:"request_id"`
}

type eventWire struct {
	Body    []byte            `json:"body"`
	Headers map[string]string `json:"headers,omitempty"`
}

type eventBatchWire struct {
	SequenceNumber string      `json:"sequence_number,omitempty"`
	Events         []eventWire `json:"events,omitempty"`
	ErrorMessage   string      `json:"error_message,omitempty"`
}

// GetEventBatch issues one get_event_batch request and blocks for a reply,
// bounded by both the connection's request timeout and ctx.
func (s *Source) GetEventBatch(ctx context.Context, maxBatchSize int) (ingest.EventBatch, error) {
	// Every request carries its own generated ID so a server- or client-side
	// log line can be correlated back to this exact poll, the same
	// generate-on-call convention the reference event bus uses for its own
	// request/reply correlation (core.GenerateRequestID).
	requestID := uuid.New().String()

	body, err := json.Marshal(getEventBatchRequest{MaxBatchSize: maxBatchSize, RequestID: requestID})
	if err != nil {
		return ingest.EventBatch{}, fmt.Errorf("natssource: encode request %s: %w", requestID, err)
	}

	type result struct {
		msg *nats.Msg
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := s.conn.Request(s.subject("get_event_batch"), body, s.requestTimeout)
		done <- result{msg, err}
	}()

	select {
	case <-ctx.Done():
		return ingest.EventBatch{}, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return ingest.EventBatch{}, fmt.Errorf("natssource: get_event_batch %s: %w", requestID, r.err)
		}
		var wire eventBatchWire
		if err := json.Unmarshal(r.msg.Data, &wire); err != nil {
			return ingest.EventBatch{}, fmt.Errorf("natssource: decode get_event_batch reply %s: %w", requestID, err)
		}
		return wire.toEventBatch(), nil
	}
}

func (w eventBatchWire) toEventBatch() ingest.EventBatch {
	events := make([]ingest.Event, len(w.Events))
	for i, e := range w.Events {
		events[i] = ingest.Event{Body: e.Body, Headers: e.Headers}
	}
	return ingest.EventBatch{
		SequenceNumber: w.SequenceNumber,
		Events:         events,
		ErrorMessage:   w.ErrorMessage,
	}
}

// Ack publishes a fire-and-forget ack for seq.
func (s *Source) Ack(ctx context.Context, seq string) error {
	if err := s.conn.Publish(s.subject("ack"), []byte(seq)); err != nil {
		return fmt.Errorf("natssource: ack %s: %w", seq, err)
	}
	return nil
}

// Nack publishes a fire-and-forget nack for seq.
func (s *Source) Nack(ctx context.Context, seq string) error {
	if err := s.conn.Publish(s.subject("nack"), []byte(seq)); err != nil {
		return fmt.Errorf("natssource: nack %s: %w", seq, err)
	}
	return nil
}

// Close drains and closes this source's connection.
func (s *Source) Close() error {
	return s.conn.Drain()
}

func (s *Source) subject(verb string) string {
	return s.subjectPrefix + "." + verb
}

var _ ingest.Source = (*Source)(nil)
