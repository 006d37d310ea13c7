package translog

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// OpKind tags the variant of a logged operation.
type OpKind byte

const (
	OpIndex OpKind = iota + 1
	OpDelete
)

// String returns the string representation of the operation kind.
func (k OpKind) String() string {
	switch k {
	case OpIndex:
		return "index"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("unknown(%d)", byte(k))
	}
}

// Operation is a single logical operation recorded in the translog.
// Index operations carry the document source; deletes carry only the key.
type Operation struct {
	Kind    OpKind
	DocID   string
	Type    string // schema type the document belongs to
	Source  []byte // document source, nil for deletes
	Version uint64
}

// maxRecordSize guards against interpreting garbage tail bytes as a
// length prefix and allocating an absurd buffer.
const maxRecordSize = 512 << 20

// encodeRecord serializes an operation into the on-disk record layout:
//
//	uint32 bodyLen | body | uint32 crc32(body)
//
// The source payload inside the body is compressed with the given codec;
// the codec byte is part of the body so readers are self-describing.
func encodeRecord(op *Operation, codec Codec) ([]byte, error) {
	src := op.Source
	if len(src) > 0 {
		var err error
		src, err = compress(codec, src)
		if err != nil {
			return nil, err
		}
	} else {
		codec = CodecNone
	}

	var body bytes.Buffer
	body.WriteByte(byte(op.Kind))
	body.WriteByte(byte(codec))
	if err := binary.Write(&body, binary.LittleEndian, op.Version); err != nil {
		return nil, err
	}
	for _, field := range [][]byte{[]byte(op.DocID), []byte(op.Type), src} {
		if err := binary.Write(&body, binary.LittleEndian, uint32(len(field))); err != nil {
			return nil, err
		}
		body.Write(field)
	}

	out := make([]byte, 4+body.Len()+4)
	binary.LittleEndian.PutUint32(out, uint32(body.Len()))
	copy(out[4:], body.Bytes())
	binary.LittleEndian.PutUint32(out[4+body.Len():], crc32.ChecksumIEEE(body.Bytes()))
	return out, nil
}

// decodeBody deserializes a record body that already passed the checksum.
func decodeBody(body []byte) (*Operation, error) {
	if len(body) < 10 {
		return nil, ErrInvalidRecord
	}
	op := &Operation{Kind: OpKind(body[0])}
	if op.Kind != OpIndex && op.Kind != OpDelete {
		return nil, fmt.Errorf("%w: bad operation kind %d", ErrInvalidRecord, body[0])
	}
	codec := Codec(body[1])
	op.Version = binary.LittleEndian.Uint64(body[2:10])

	rest := body[10:]
	fields := make([][]byte, 3)
	for i := range fields {
		if len(rest) < 4 {
			return nil, ErrInvalidRecord
		}
		n := binary.LittleEndian.Uint32(rest)
		rest = rest[4:]
		if uint32(len(rest)) < n {
			return nil, ErrInvalidRecord
		}
		fields[i] = rest[:n]
		rest = rest[n:]
	}
	op.DocID = string(fields[0])
	op.Type = string(fields[1])
	if len(fields[2]) > 0 {
		src, err := decompress(codec, fields[2])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		op.Source = src
	}
	return op, nil
}
