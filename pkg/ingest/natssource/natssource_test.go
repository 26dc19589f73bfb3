package natssource

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	natssrv "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/require"
)

func runTestNATSServer(t *testing.T) *natssrv.Server {
	t.Helper()

	s, err := natssrv.NewServer(&natssrv.Options{Port: -1})
	require.NoError(t, err)

	go s.Start()
	if !s.ReadyForConnections(5 * time.Second) {
		s.Shutdown()
		t.Fatal("nats server not ready")
	}
	t.Cleanup(s.Shutdown)
	return s
}

func TestSource_GetEventBatchRoundTrip(t *testing.T) {
	s := runTestNATSServer(t)
	url := s.ClientURL()

	responder, err := nats.Connect(url)
	require.NoError(t, err)
	defer responder.Close()

	sub, err := responder.Subscribe("duraflow.ingest.orders.get_event_batch", func(msg *nats.Msg) {
		var req getEventBatchRequest
		require.NoError(t, json.Unmarshal(msg.Data, &req))
		require.Equal(t, 25, req.MaxBatchSize)
		require.NotEmpty(t, req.RequestID)

		reply, err := json.Marshal(eventBatchWire{
			SequenceNumber: "S1",
			Events: []eventWire{
				{Body: []byte("payload-1"), Headers: map[string]string{"k": "v"}},
			},
		})
		require.NoError(t, err)
		require.NoError(t, msg.Respond(reply))
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	source, err := Dial(url, "duraflow.ingest.orders", time.Second)
	require.NoError(t, err)
	defer source.Close()

	batch, err := source.GetEventBatch(context.Background(), 25)
	require.NoError(t, err)
	require.Equal(t, "S1", batch.SequenceNumber)
	require.Len(t, batch.Events, 1)
	require.Equal(t, []byte("payload-1"), batch.Events[0].Body)
	require.Equal(t, "v", batch.Events[0].Headers["k"])
}

func TestSource_GetEventBatchGeneratesDistinctRequestIDs(t *testing.T) {
	s := runTestNATSServer(t)
	url := s.ClientURL()

	responder, err := nats.Connect(url)
	require.NoError(t, err)
	defer responder.Close()

	seen := make(chan string, 4)
	sub, err := responder.Subscribe("duraflow.ingest.orders.get_event_batch", func(msg *nats.Msg) {
		var req getEventBatchRequest
		require.NoError(t, json.Unmarshal(msg.Data, &req))
		seen <- req.RequestID

		reply, err := json.Marshal(eventBatchWire{SequenceNumber: "S1"})
		require.NoError(t, err)
		require.NoError(t, msg.Respond(reply))
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	source, err := Dial(url, "duraflow.ingest.orders", time.Second)
	require.NoError(t, err)
	defer source.Close()

	_, err = source.GetEventBatch(context.Background(), 1)
	require.NoError(t, err)
	_, err = source.GetEventBatch(context.Background(), 1)
	require.NoError(t, err)

	first := <-seen
	second := <-seen
	require.NotEmpty(t, first)
	require.NotEmpty(t, second)
	require.NotEqual(t, first, second)
}

func TestSource_AckAndNackPublish(t *testing.T) {
	s := runTestNATSServer(t)
	url := s.ClientURL()

	listener, err := nats.Connect(url)
	require.NoError(t, err)
	defer listener.Close()

	ackCh := make(chan string, 1)
	nackCh := make(chan string, 1)

	_, err = listener.Subscribe("duraflow.ingest.orders.ack", func(msg *nats.Msg) {
		ackCh <- string(msg.Data)
	})
	require.NoError(t, err)
	_, err = listener.Subscribe("duraflow.ingest.orders.nack", func(msg *nats.Msg) {
		nackCh <- string(msg.Data)
	})
	require.NoError(t, err)
	require.NoError(t, listener.Flush())

	source, err := Dial(url, "duraflow.ingest.orders", time.Second)
	require.NoError(t, err)
	defer source.Close()

	require.NoError(t, source.Ack(context.Background(), "S1"))
	require.NoError(t, source.Nack(context.Background(), "S2"))

	select {
	case got := <-ackCh:
		require.Equal(t, "S1", got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ack")
	}

	select {
	case got := <-nackCh:
		require.Equal(t, "S2", got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for nack")
	}
}

func TestSource_GetEventBatchContextCancellation(t *testing.T) {
	s := runTestNATSServer(t)
	url := s.ClientURL()

	// A subscriber that never replies keeps the request pending; with no
	// subscriber at all the server answers "no responders" at once.
	responder, err := nats.Connect(url)
	require.NoError(t, err)
	defer responder.Close()
	_, err = responder.Subscribe("duraflow.ingest.silent.get_event_batch", func(*nats.Msg) {})
	require.NoError(t, err)
	require.NoError(t, responder.Flush())

	source, err := Dial(url, "duraflow.ingest.silent", 5*time.Second)
	require.NoError(t, err)
	defer source.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err = source.GetEventBatch(ctx, 10)
	require.ErrorIs(t, err, context.Canceled)
}
