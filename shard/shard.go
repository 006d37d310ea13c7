// Package shard ties a segment store, an engine, and a translog together
// under one lifecycle and drives recovery on open.
package shard

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"

	"corvusDB/engine"
	"corvusDB/recovery"
	"corvusDB/schema"
	"corvusDB/segments"
	"corvusDB/translog"
)

// ErrShardClosed is returned for operations against a closed shard.
var ErrShardClosed = errors.New("shard is closed")

// Options configures a shard.
type Options struct {
	ID     string
	Store  *segments.Store
	Engine engine.Engine

	// TranslogLocations are the candidate directories searched during
	// recovery, in order. New translog files are created in the first.
	TranslogLocations []string
	Codec             translog.Codec

	// SyncInterval controls translog durability cadence: negative
	// disables background syncing entirely, zero syncs on every
	// operation, positive runs a periodic sync check.
	SyncInterval time.Duration

	SchemaRegistry      schema.Registry
	SchemaUpdateTimeout time.Duration

	// SyncPool, when set, runs background syncs off the scheduling
	// context. Falls back to plain goroutines.
	SyncPool *ants.Pool
}

// Shard owns one data shard: its segment store, engine, and active
// translog. Recovery is single-threaded per shard; Close is idempotent and
// safe from any state, including mid-recovery-failure cleanup.
type Shard struct {
	id    string
	store *segments.Store
	eng   engine.Engine

	translogDirs []string
	codec        translog.Codec
	syncOnEach   bool

	waiter *schema.Waiter
	syncer *syncScheduler

	mu      sync.Mutex
	state   State
	active  *translog.Writer
	version uint64
}

// Open wires a shard from its collaborators. The shard starts in the
// Created state; Recover moves it to Started.
func Open(opts Options) (*Shard, error) {
	if opts.ID == "" || opts.Store == nil || opts.Engine == nil {
		return nil, errors.New("shard requires an id, a store, and an engine")
	}
	if len(opts.TranslogLocations) == 0 {
		return nil, errors.New("shard requires at least one translog location")
	}
	s := &Shard{
		id:           opts.ID,
		store:        opts.Store,
		eng:          opts.Engine,
		translogDirs: opts.TranslogLocations,
		codec:        opts.Codec,
		state:        StateCreated,
	}
	if opts.SchemaRegistry != nil {
		s.waiter = schema.NewWaiter(opts.SchemaRegistry, opts.SchemaUpdateTimeout)
	}

	switch {
	case opts.SyncInterval > 0:
		s.syncer = newSyncScheduler(s, opts.SyncInterval, opts.SyncPool)
		s.syncer.schedule()
	case opts.SyncInterval == 0:
		// No periodic task: every write syncs immediately.
		s.syncOnEach = true
	default:
		// Negative: the caller syncs explicitly elsewhere.
	}
	return s, nil
}

// ShardID returns the shard identity used in logs and errors.
func (s *Shard) ShardID() string { return s.id }

// Store returns the reference-counted segment store.
func (s *Shard) Store() *segments.Store { return s.store }

// TranslogLocations returns the candidate translog directories.
func (s *Shard) TranslogLocations() []string { return s.translogDirs }

// State returns the current lifecycle state.
func (s *Shard) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Recover runs a full recovery attempt and, on success, leaves the shard
// serving. The returned progress is valid (with partial counters) even when
// recovery fails.
func (s *Shard) Recover(shouldExist bool) (*recovery.Progress, error) {
	progress := recovery.NewProgress()
	err := recovery.NewCoordinator(s, s.waiter).Recover(shouldExist, progress)
	return progress, err
}

// PrepareForRecovery moves the shard into the recovering stage.
func (s *Shard) PrepareForRecovery() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrShardClosed
	}
	if s.state != StateCreated {
		return fmt.Errorf("cannot recover shard in state %s", s.state)
	}
	s.state = StateRecovering
	return nil
}

// PrepareForReplay creates the fresh active translog the engine writes to
// from now on. The new id is strictly greater than both the commit version
// and the old translog id, so the promoted file can never be shadowed. The
// id is not committed here: until the post-replay flush writes it, the old
// commit still names the promoted file and an interrupted attempt resumes
// from the recovering copy.
func (s *Shard) PrepareForReplay(commit segments.Commit) error {
	oldID, err := commit.TranslogID()
	if err != nil {
		return err
	}
	newID := commit.Version + 1
	if oldID >= newID {
		newID = oldID + 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecovering {
		return fmt.Errorf("cannot prepare replay in state %s", s.state)
	}
	w, err := translog.Create(s.translogDirs[0], newID, s.codec)
	if err != nil {
		return fmt.Errorf("failed to create active translog: %w", err)
	}
	w.SyncOnEachOperation(s.syncOnEach)
	s.active = w
	s.version = commit.Version
	return nil
}

// ApplyRecoveredOperation applies one replayed operation to the engine and
// re-logs it into the active translog, so the operation stays durable until
// the post-recovery flush commits it.
func (s *Shard) ApplyRecoveredOperation(op *translog.Operation) (*engine.ApplyResult, error) {
	result, err := s.eng.Apply(op)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		if err := s.active.Add(op); err != nil {
			return nil, fmt.Errorf("failed to relog recovered operation: %w", err)
		}
	}
	return result, nil
}

// DeleteActiveTranslog closes and removes the live translog after a failed
// replay, keeping only the recovering copy for forensics.
func (s *Shard) DeleteActiveTranslog() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	err := s.active.CloseWithDelete()
	s.active = nil
	return err
}

// Flush commits engine state and rotates the translog: a new translog id is
// generated before the commit so the commit metadata always names the
// current log, then the superseded file is removed.
func (s *Shard) Flush(force, waitIfOngoing bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ErrShardClosed
	}
	if err := s.eng.Flush(force, waitIfOngoing); err != nil {
		return err
	}
	if s.active == nil {
		return nil
	}

	old := s.active
	newID := old.ID() + 1
	w, err := translog.Create(s.translogDirs[0], newID, s.codec)
	if err != nil {
		return fmt.Errorf("failed to create translog for flush: %w", err)
	}
	w.SyncOnEachOperation(s.syncOnEach)

	s.version++
	commit := segments.Commit{
		Version:  s.version,
		UserData: map[string]string{segments.TranslogIDKey: strconv.FormatUint(newID, 10)},
	}
	if err := s.store.WriteCommit(commit); err != nil {
		w.CloseWithDelete()
		s.version--
		return fmt.Errorf("failed to write segment commit: %w", err)
	}
	s.active = w
	if err := old.CloseWithDelete(); err != nil {
		log.Debug().Err(err).Str("shard", s.id).Msg("failed to remove superseded translog")
	}
	return nil
}

// FinalizeRecovery signals that replay completed and the shard is about to
// serve.
func (s *Shard) FinalizeRecovery() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecovering {
		return fmt.Errorf("cannot finalize recovery in state %s", s.state)
	}
	s.state = StatePostRecovery
	return nil
}

// MarkPostRecovery transitions the shard to the serving state.
func (s *Shard) MarkPostRecovery(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePostRecovery {
		return fmt.Errorf("cannot start shard in state %s", s.state)
	}
	s.state = StateStarted
	log.Debug().Str("shard", s.id).Str("reason", reason).Msg("shard started")
	return nil
}

// Index applies a live index operation to a serving shard: logged first,
// then applied to the engine.
func (s *Shard) Index(typ, docID string, source []byte, version uint64) (*engine.ApplyResult, error) {
	return s.apply(&translog.Operation{
		Kind: translog.OpIndex, Type: typ, DocID: docID, Source: source, Version: version,
	})
}

// Delete applies a live delete operation to a serving shard.
func (s *Shard) Delete(typ, docID string, version uint64) (*engine.ApplyResult, error) {
	return s.apply(&translog.Operation{
		Kind: translog.OpDelete, Type: typ, DocID: docID, Version: version,
	})
}

// apply logs and applies one live operation. The mutex is held across both
// steps: a Flush that interleaved between them would commit engine state
// missing the operation and delete the translog file it was appended to,
// losing an acked write.
func (s *Shard) apply(op *translog.Operation) (*engine.ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStarted {
		return nil, fmt.Errorf("shard is not serving (state %s)", s.state)
	}
	if err := s.active.Add(op); err != nil {
		return nil, err
	}
	return s.eng.Apply(op)
}

// syncNeeded reports whether the active translog has unsynced records.
func (s *Shard) syncNeeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil && s.active.SyncNeeded()
}

// syncTranslog durability-syncs the active translog.
func (s *Shard) syncTranslog() error {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if active == nil {
		return nil
	}
	return active.Sync()
}

// Close releases everything: it cancels the scheduler's next tick, aborts
// outstanding schema waits, and closes the translog, engine, and store.
// Idempotent and callable from any state.
func (s *Shard) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	active := s.active
	s.active = nil
	s.mu.Unlock()

	if s.syncer != nil {
		s.syncer.stop()
	}
	if s.waiter != nil {
		s.waiter.Cancel()
	}
	var firstErr error
	if active != nil {
		if err := active.Close(); err != nil {
			firstErr = err
		}
	}
	if err := s.eng.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
