package translog

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleOps() []*Operation {
	return []*Operation{
		{Kind: OpIndex, DocID: "doc-1", Type: "event", Source: []byte(`{"user":"alice","count":1}`), Version: 1},
		{Kind: OpIndex, DocID: "doc-2", Type: "event", Source: []byte(`{"user":"bob","count":2}`), Version: 2},
		{Kind: OpDelete, DocID: "doc-1", Type: "event", Version: 3},
	}
}

func writeTranslog(t *testing.T, dir string, id uint64, codec Codec, ops []*Operation) string {
	t.Helper()
	w, err := Create(dir, id, codec)
	require.NoError(t, err)
	for _, op := range ops {
		require.NoError(t, w.Add(op))
	}
	require.NoError(t, w.Close())
	return w.Path()
}

func readAll(t *testing.T, path string) []*Operation {
	t.Helper()
	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	var ops []*Operation
	for {
		op, err := r.Next()
		if err == io.EOF {
			return ops
		}
		require.NoError(t, err)
		ops = append(ops, op)
	}
}

func TestRoundtripAllCodecs(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecSnappy, CodecLZ4, CodecZstd} {
		t.Run(codec.String(), func(t *testing.T) {
			dir := t.TempDir()
			want := sampleOps()
			path := writeTranslog(t, dir, 7, codec, want)

			got := readAll(t, path)
			require.Len(t, got, len(want))
			for i, op := range got {
				require.Equal(t, want[i].Kind, op.Kind)
				require.Equal(t, want[i].DocID, op.DocID)
				require.Equal(t, want[i].Type, op.Type)
				require.Equal(t, want[i].Version, op.Version)
				require.Equal(t, want[i].Source, op.Source)
			}
		})
	}
}

func TestReplayPreservesOrder(t *testing.T) {
	dir := t.TempDir()
	var want []*Operation
	for i := 0; i < 100; i++ {
		want = append(want, &Operation{
			Kind:    OpIndex,
			DocID:   FileName(uint64(i)),
			Type:    "seq",
			Source:  []byte(`{"n":1}`),
			Version: uint64(i + 1),
		})
	}
	path := writeTranslog(t, dir, 1, CodecNone, want)

	got := readAll(t, path)
	require.Len(t, got, 100)
	for i, op := range got {
		require.Equal(t, want[i].DocID, op.DocID)
		require.Equal(t, want[i].Version, op.Version)
	}
}

func TestOpenEmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName(3))
	require.NoError(t, os.WriteFile(path, nil, 0644))

	got := readAll(t, path)
	require.Empty(t, got)
}

func TestOpenHalfWrittenHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName(3))
	require.NoError(t, os.WriteFile(path, headerMagic[:3], 0644))

	got := readAll(t, path)
	require.Empty(t, got)
}

func TestOpenUnsupportedVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName(3))
	var header [headerSize]byte
	copy(header[:4], headerMagic[:])
	binary.LittleEndian.PutUint32(header[4:], 99)
	require.NoError(t, os.WriteFile(path, header[:], 0644))

	_, err := Open(path)
	require.ErrorIs(t, err, ErrInvalidRecord)
}

// Legacy files have no header and a redundant length prefix before every
// record. Readers must skip the prefix and still decode everything.
func TestLegacyFraming(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName(2))

	want := sampleOps()
	f, err := os.Create(path)
	require.NoError(t, err)
	for _, op := range want {
		rec, err := encodeRecord(op, CodecNone)
		require.NoError(t, err)
		var prefix [4]byte
		binary.LittleEndian.PutUint32(prefix[:], uint32(len(rec)))
		_, err = f.Write(prefix[:])
		require.NoError(t, err)
		_, err = f.Write(rec)
		require.NoError(t, err)
	}
	require.NoError(t, f.Close())

	r, err := Open(path)
	require.NoError(t, err)
	require.True(t, r.Legacy())
	r.Close()

	got := readAll(t, path)
	require.Len(t, got, len(want))
	for i, op := range got {
		require.Equal(t, want[i].DocID, op.DocID)
		require.Equal(t, want[i].Source, op.Source)
	}
}

func TestTruncatedTailEndsReplay(t *testing.T) {
	dir := t.TempDir()
	want := sampleOps()
	path := writeTranslog(t, dir, 5, CodecNone, want)

	info, err := os.Stat(path)
	require.NoError(t, err)

	// Chop bytes off the tail at several offsets. However deep the cut,
	// replay returns only complete leading records and never errors.
	for _, chop := range []int64{1, 3, 10} {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		truncated := filepath.Join(dir, FileName(uint64(100+chop)))
		require.NoError(t, os.WriteFile(truncated, data[:info.Size()-chop], 0644))

		got := readAll(t, truncated)
		require.LessOrEqual(t, len(got), len(want))
		require.GreaterOrEqual(t, len(got), len(want)-1)
		for i, op := range got {
			require.Equal(t, want[i].DocID, op.DocID)
		}
	}
}

func TestCorruptChecksumEndsReplay(t *testing.T) {
	dir := t.TempDir()
	want := sampleOps()
	path := writeTranslog(t, dir, 6, CodecNone, want)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// Flip a byte in the last record's checksum.
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0644))

	got := readAll(t, path)
	require.Len(t, got, len(want)-1)
	for i, op := range got {
		require.Equal(t, want[i].DocID, op.DocID)
	}
}

func TestGarbageTailEndsReplay(t *testing.T) {
	dir := t.TempDir()
	want := sampleOps()
	path := writeTranslog(t, dir, 8, CodecNone, want)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0xff, 0xff, 0xff, 0xff, 0xde, 0xad})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	got := readAll(t, path)
	require.Len(t, got, len(want))
}

func TestParseCodec(t *testing.T) {
	for name, want := range map[string]Codec{
		"none":   CodecNone,
		"":       CodecNone,
		"snappy": CodecSnappy,
		"lz4":    CodecLZ4,
		"zstd":   CodecZstd,
	} {
		got, err := ParseCodec(name)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseCodec("gzip")
	require.ErrorIs(t, err, ErrUnknownCodec)
}
