package translog

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"
)

// Writer appends operations to an active translog file. It tracks whether
// unsynced bytes exist so the background sync scheduler can skip no-op
// fsyncs, and can be switched to syncing on every operation when no
// scheduler is running.
type Writer struct {
	mu         sync.Mutex
	f          *os.File
	path       string
	id         uint64
	codec      Codec
	syncOnEach bool
	dirty      bool
	closed     bool
}

// Create creates a new version-1 translog file for the given id in dir.
func Create(dir string, id uint64, codec Codec) (*Writer, error) {
	path := filepath.Join(dir, FileName(id))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	var header [headerSize]byte
	copy(header[:4], headerMagic[:])
	binary.LittleEndian.PutUint32(header[4:], versionV1)
	if _, err := f.Write(header[:]); err != nil {
		f.Close()
		return nil, err
	}
	return &Writer{f: f, path: path, id: id, codec: codec}, nil
}

// Add appends one operation. The record only becomes durable on the next
// Sync unless SyncOnEachOperation is enabled.
func (w *Writer) Add(op *Operation) error {
	rec, err := encodeRecord(op, w.codec)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	if _, err := w.f.Write(rec); err != nil {
		return err
	}
	w.dirty = true
	if w.syncOnEach {
		if err := w.f.Sync(); err != nil {
			return err
		}
		w.dirty = false
	}
	return nil
}

// Sync durability-syncs any buffered records.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	if !w.dirty {
		return nil
	}
	if err := w.f.Sync(); err != nil {
		return err
	}
	w.dirty = false
	return nil
}

// SyncNeeded reports whether unsynced records exist.
func (w *Writer) SyncNeeded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dirty && !w.closed
}

// SyncOnEachOperation toggles per-operation durability. Enabled when no
// periodic sync scheduler runs for the shard.
func (w *Writer) SyncOnEachOperation(v bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.syncOnEach = v
}

// ID returns the translog identifier this writer appends to.
func (w *Writer) ID() uint64 { return w.id }

// Path returns the file path of the active translog.
func (w *Writer) Path() string { return w.path }

// Close syncs and closes the file. Idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) closeLocked() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.dirty {
		if err := w.f.Sync(); err != nil {
			w.f.Close()
			return err
		}
	}
	return w.f.Close()
}

// CloseWithDelete closes the writer and removes the active file. Used when
// replay fails: the ".recovering" copy is kept for forensics, the active
// file must not be reused.
func (w *Writer) CloseWithDelete() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.closeLocked(); err != nil {
		return err
	}
	return os.Remove(w.path)
}
