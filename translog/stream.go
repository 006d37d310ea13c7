package translog

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/rs/zerolog/log"
)

// File framing versions. Version 1 files open with an 8-byte header
// (magic + version). Version 0 ("legacy") files have no header and carry a
// redundant length prefix before every record; the prefix is skipped on
// read. The redundancy is preserved for compatibility, not fixed.
const (
	versionLegacy = 0
	versionV1     = 1

	headerSize = 8
)

var headerMagic = [4]byte{'c', 't', 'l', 'g'}

// Reader decodes one physical translog file into a forward-only sequence of
// operations. A truncated or garbage tail ends the sequence without error:
// everything before the first incomplete record is trusted, nothing after.
type Reader struct {
	f       *os.File
	br      *bufio.Reader
	path    string
	version int
	done    bool
}

// Open opens a translog file for replay and detects its framing version.
// An empty or half-written header yields a reader whose sequence is
// immediately empty; that is the expected shape of a file that crashed
// before its first sync.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := &Reader{f: f, br: bufio.NewReader(f), path: path}

	head, err := r.br.Peek(headerSize)
	if err != nil {
		// Fewer than 8 bytes in the file: either empty or a header that
		// was never completely written. Nothing recoverable here.
		log.Trace().Str("path", path).Int("bytes", len(head)).
			Msg("translog header incomplete, treating as empty")
		r.done = true
		return r, nil
	}
	if [4]byte(head[:4]) == headerMagic {
		v := binary.LittleEndian.Uint32(head[4:8])
		if v != versionV1 {
			f.Close()
			return nil, fmt.Errorf("%w: unsupported translog version %d", ErrInvalidRecord, v)
		}
		r.br.Discard(headerSize)
		r.version = versionV1
	} else {
		r.version = versionLegacy
	}
	return r, nil
}

// Legacy reports whether the file uses the headerless legacy framing.
func (r *Reader) Legacy() bool { return r.version == versionLegacy }

// Next returns the next operation, or io.EOF when the sequence ends.
// Truncation and tail corruption are not errors: the tail of a translog is
// an unflushed partial write by assumption, and replay simply stops there.
func (r *Reader) Next() (*Operation, error) {
	if r.done {
		return nil, io.EOF
	}
	op, err := r.readRecord()
	if err == nil {
		return op, nil
	}
	if err != io.EOF {
		log.Trace().Err(err).Str("path", r.path).
			Msg("translog tail unreadable, ending replay early")
	}
	r.done = true
	return nil, io.EOF
}

func (r *Reader) readRecord() (*Operation, error) {
	if r.version == versionLegacy {
		// Redundant per-record size prefix, ignored.
		var skip [4]byte
		if _, err := io.ReadFull(r.br, skip[:]); err != nil {
			return nil, io.EOF
		}
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(r.br, lenBuf[:]); err != nil {
		return nil, io.EOF
	}
	bodyLen := binary.LittleEndian.Uint32(lenBuf[:])
	if bodyLen == 0 || bodyLen > maxRecordSize {
		return nil, fmt.Errorf("%w: implausible record length %d", ErrInvalidRecord, bodyLen)
	}

	buf := make([]byte, int(bodyLen)+4)
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncatedRecord, err)
	}
	body := buf[:bodyLen]
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(buf[bodyLen:]) {
		return nil, ErrChecksumMismatch
	}
	return decodeBody(body)
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.f.Close()
}
