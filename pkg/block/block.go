// Package block implements the BlockGenerator: multi-producer,
// time-windowed batching of opaque records into sealed Blocks, handed to a
// downstream Listener with bounded backpressure.
package block

// Record is an opaque byte buffer appended by a producer. The generator
// neither parses nor validates it.
type Record []byte

// ID identifies one Block: the receiver it was cut on behalf of, and the
// millisecond timestamp of the interval it closes.
type ID struct {
	ReceiverID      string
	TimestampMillis int64
}

// Block is a time-bounded, ordered group of records sealed at one cut.
type Block struct {
	ID      ID
	Records []Record
}

// PendingCallback is invoked exactly once after the consumer callback for
// its associated block has returned.
type PendingCallback struct {
	Fn  func(arg any)
	Arg any
}

// Listener is the capability set a BlockGenerator pushes sealed blocks
// through. Implementations must not block OnPushBlock for long — it runs on
// the generator's single pusher goroutine and blocks the next block in
// queue order. The generator owns the listener for its lifetime; the
// listener must not outlive the generator.
type Listener interface {
	OnPushBlock(id ID, records []Record)
	OnError(message string, err error)
}
