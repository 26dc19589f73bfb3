// Package blockcodec encodes and decodes block.Block values as FlatBuffers
// tables, built directly against the low-level flatbuffers.Builder and
// flatbuffers.Table primitives rather than flatc-generated accessors — there
// is no .fbs schema for this wire shape, so the table is constructed and
// read field-by-field the way generated code would, by hand.
//
// Wire layout (one table, three fields, in field-index order):
//
//	0: receiver_id     string
//	1: timestamp_millis int64
//	2: records          [ [ubyte] ]   (vector of byte-vectors)
package blockcodec

import (
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/duraflow/duraflow/pkg/block"
)

const (
	fieldReceiverID = 4 // 4 + 2*0
	fieldTimestamp  = 6 // 4 + 2*1
	fieldRecords    = 8 // 4 + 2*2

	uoffsetSize = 4
)

// EncodeBlock serializes blk as a single FlatBuffers table.
func EncodeBlock(blk block.Block) []byte {
	b := flatbuffers.NewBuilder(256 + 64*len(blk.Records))

	recordOffsets := make([]flatbuffers.UOffsetT, len(blk.Records))
	for i, r := range blk.Records {
		recordOffsets[i] = b.CreateByteVector(r)
	}

	b.StartVector(uoffsetSize, len(recordOffsets), uoffsetSize)
	for i := len(recordOffsets) - 1; i >= 0; i-- {
		b.PrependUOffsetT(recordOffsets[i])
	}
	recordsOffset := b.EndVector(len(recordOffsets))

	receiverIDOffset := b.CreateString(blk.ID.ReceiverID)

	b.StartObject(3)
	b.PrependUOffsetTSlot(2, recordsOffset, 0)
	b.PrependInt64Slot(1, blk.ID.TimestampMillis, 0)
	b.PrependUOffsetTSlot(0, receiverIDOffset, 0)
	root := b.EndObject()

	b.Finish(root)

	finished := b.FinishedBytes()
	out := make([]byte, len(finished))
	copy(out, finished)
	return out
}

// DecodeBlock parses data as a FlatBuffers table built by EncodeBlock.
func DecodeBlock(data []byte) (block.Block, error) {
	if len(data) < uoffsetSize {
		return block.Block{}, fmt.Errorf("blockcodec: buffer too small to hold a root offset")
	}

	rootOffset := flatbuffers.GetUOffsetT(data)
	t := &flatbuffers.Table{Bytes: data, Pos: rootOffset}

	var blk block.Block

	if o := flatbuffers.UOffsetT(t.Offset(fieldReceiverID)); o != 0 {
		blk.ID.ReceiverID = t.String(o + t.Pos)
	}

	if o := flatbuffers.UOffsetT(t.Offset(fieldTimestamp)); o != 0 {
		blk.ID.TimestampMillis = t.GetInt64(o + t.Pos)
	}

	if o := flatbuffers.UOffsetT(t.Offset(fieldRecords)); o != 0 {
		length := t.VectorLen(o)
		start := t.Vector(o)
		blk.Records = make([]block.Record, length)
		for i := 0; i < length; i++ {
			elemAddr := start + flatbuffers.UOffsetT(i)*uoffsetSize
			raw := t.ByteVector(elemAddr)
			rec := make(block.Record, len(raw))
			copy(rec, raw)
			blk.Records[i] = rec
		}
	}

	return blk, nil
}
