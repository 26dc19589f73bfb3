package wal

import (
	"encoding/binary"
	"fmt"
	"io"
)

// FileSegment names exactly one record in exactly one log file: the path of
// the file, the absolute byte offset of its length prefix, and the length of
// the payload that follows. Immutable once issued.
type FileSegment struct {
	Path   string
	Offset int64
	Length int32
}

func (s FileSegment) String() string {
	return fmt.Sprintf("FileSegment(path=%s, offset=%d, length=%d)", s.Path, s.Offset, s.Length)
}

// Encode serializes a FileSegment into the fixed binary layout used when it
// is stored as a key in a downstream block store: a 2-byte big-endian path
// length, the path bytes, an 8-byte big-endian signed offset, and a 4-byte
// big-endian signed length.
func (s FileSegment) Encode() []byte {
	pathBytes := []byte(s.Path)
	buf := make([]byte, 2+len(pathBytes)+8+4)

	binary.BigEndian.PutUint16(buf[0:2], uint16(len(pathBytes)))
	copy(buf[2:2+len(pathBytes)], pathBytes)
	binary.BigEndian.PutUint64(buf[2+len(pathBytes):2+len(pathBytes)+8], uint64(s.Offset))
	binary.BigEndian.PutUint32(buf[2+len(pathBytes)+8:], uint32(s.Length))

	return buf
}

// DecodeFileSegment parses the layout written by FileSegment.Encode.
func DecodeFileSegment(buf []byte) (FileSegment, error) {
	if len(buf) < 2 {
		return FileSegment{}, io.ErrUnexpectedEOF
	}
	pathLen := int(binary.BigEndian.Uint16(buf[0:2]))
	want := 2 + pathLen + 8 + 4
	if len(buf) < want {
		return FileSegment{}, io.ErrUnexpectedEOF
	}

	path := string(buf[2 : 2+pathLen])
	offset := int64(binary.BigEndian.Uint64(buf[2+pathLen : 2+pathLen+8]))
	length := int32(binary.BigEndian.Uint32(buf[2+pathLen+8 : want]))

	return FileSegment{Path: path, Offset: offset, Length: length}, nil
}
