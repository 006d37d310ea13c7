// Package segments reads and repairs the persisted segment store metadata
// that anchors shard recovery: the last durable commit and its translog id.
package segments

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	// ErrStoreCorrupted signals an integrity check failure on the segment
	// store. Fatal: propagated, never repaired in place.
	ErrStoreCorrupted = errors.New("segment store corrupted")

	// ErrStoreClosed is returned when pinning a store that has been closed.
	ErrStoreClosed = errors.New("segment store closed")
)

// Store is a reference-counted handle on a shard's segment directory.
// Recovery pins the store for its whole duration so a concurrent close
// cannot free the underlying directory handle mid-attempt.
type Store struct {
	dir string

	mu     sync.Mutex
	refs   int
	closed bool
}

// FileInfo describes one file in the store, for progress reporting only.
type FileInfo struct {
	Name string
	Size int64
}

// Open opens (creating if needed) the segment store at dir. The returned
// store holds one owner reference, released by Close.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to open segment store: %w", err)
	}
	return &Store{dir: dir, refs: 1}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// IncRef pins the store. Fails once the store has been closed.
func (s *Store) IncRef() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.refs++
	return nil
}

// DecRef releases one pin. Safe from any exit path; the last release after
// Close is what actually retires the store.
func (s *Store) DecRef() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs > 0 {
		s.refs--
	}
}

// Close drops the owner reference and refuses further pins. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.refs > 0 {
		s.refs--
	}
	return nil
}

// FailIfCorrupted verifies the integrity of the persisted commit metadata.
// A missing commit is not corruption; a commit that fails its checksum is.
func (s *Store) FailIfCorrupted() error {
	_, err := readCommit(s.dir)
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	if errors.Is(err, ErrStoreCorrupted) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreCorrupted, err)
}

// Inspect reconciles the persisted commit with what the allocator believes
// about the shard and returns the commit recovery starts from.
//
//   - corruption → ErrStoreCorrupted, fatal
//   - no commit, shard should exist → fail-open: initialize a fresh empty
//     commit (first-time bootstrap) and return it
//   - commit present, shard should not exist → stale/dangling allocation:
//     wipe the store rather than reuse stale data
func (s *Store) Inspect(shouldExist bool) (Commit, error) {
	if err := s.FailIfCorrupted(); err != nil {
		return Commit{}, err
	}
	c, err := readCommit(s.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			return Commit{}, err
		}
		files := "_unknown_"
		if names, lerr := os.ReadDir(s.dir); lerr == nil {
			parts := make([]string, 0, len(names))
			for _, n := range names {
				parts = append(parts, n.Name())
			}
			files = strings.Join(parts, ", ")
		}
		log.Debug().Str("dir", s.dir).Str("files", files).
			Msg("no segment commit found, initializing empty store")
		if err := s.InitEmpty(); err != nil {
			return Commit{}, fmt.Errorf("store has no commit and failed to create one (files: %s): %w", files, err)
		}
		return readCommit(s.dir)
	}
	if !shouldExist {
		log.Warn().Str("dir", s.dir).Msg("cleaning existing shard data, should not exist")
		if err := s.Wipe(); err != nil {
			return Commit{}, err
		}
		return readCommit(s.dir)
	}
	return c, nil
}

// InitEmpty writes a fresh zero-version commit.
func (s *Store) InitEmpty() error {
	return writeCommit(s.dir, Commit{Version: 0})
}

// WriteCommit persists a new commit. The translog id must be placed in the
// user data before the commit so recovery can always read the active id.
func (s *Store) WriteCommit(c Commit) error {
	return writeCommit(s.dir, c)
}

// Wipe removes all segment data files and resets the store to an empty
// commit. Used for dangling allocations only.
func (s *Store) Wipe() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name() == commitFileName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			return err
		}
	}
	return s.InitEmpty()
}

// Manifest lists the store's files with sizes. Diagnostic only: callers
// log and swallow failures, recovery never depends on it.
func (s *Store) Manifest() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var files []FileInfo
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		files = append(files, FileInfo{Name: e.Name(), Size: info.Size()})
	}
	return files, nil
}
