// Package recovery restores a shard to a consistent, queryable state after
// restart, crash, or relocation: it reconciles the segment store with the
// trailing translog, replays unflushed operations, and propagates schema
// drift discovered during replay.
package recovery

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"corvusDB/engine"
	"corvusDB/schema"
	"corvusDB/segments"
	"corvusDB/translog"
)

// Shard is the narrow surface of a shard the coordinator drives. The real
// shard carries much more; recovery needs exactly this.
type Shard interface {
	ShardID() string
	Store() *segments.Store
	TranslogLocations() []string

	// PrepareForRecovery moves the shard into its recovering stage.
	PrepareForRecovery() error
	// PrepareForReplay readies the engine for replay. Called even when no
	// translog exists, to keep the recovery-stage sequencing consistent
	// for downstream components.
	PrepareForReplay(commit segments.Commit) error
	// ApplyRecoveredOperation applies one replayed operation. A
	// *engine.ClientDataError return means the record itself is bad.
	ApplyRecoveredOperation(op *translog.Operation) (*engine.ApplyResult, error)
	// DeleteActiveTranslog removes the live translog after a failed
	// replay, keeping only the recovering copy for forensics.
	DeleteActiveTranslog() error
	Flush(force, waitIfOngoing bool) error
	FinalizeRecovery() error
	MarkPostRecovery(reason string) error
}

// Coordinator runs one recovery attempt end to end. At most one attempt
// executes per shard; the caller serializes attempts.
type Coordinator struct {
	shard  Shard
	waiter *schema.Waiter
}

// NewCoordinator creates a coordinator for the shard. The waiter may be nil
// when no schema registry is wired; propagation is then skipped.
func NewCoordinator(shard Shard, waiter *schema.Waiter) *Coordinator {
	return &Coordinator{shard: shard, waiter: waiter}
}

// Recover restores the shard: inspect the segment store, promote and replay
// the trailing translog, flush, finalize, and propagate schema drift.
// shouldExist tells the coordinator whether the allocator expects shard
// data on disk. Any returned error means the shard must not start serving.
func (c *Coordinator) Recover(shouldExist bool, progress *Progress) error {
	shardID := c.shard.ShardID()
	attempt := uuid.NewString()
	start := time.Now()

	// Pin before any state transition: a failed pin must leave the shard
	// exactly as it was so a later attempt can still start.
	store := c.shard.Store()
	if err := store.IncRef(); err != nil {
		return &RecoveryError{Shard: shardID, Err: err}
	}
	defer store.DecRef()

	if err := c.shard.PrepareForRecovery(); err != nil {
		return &RecoveryError{Shard: shardID, Err: err}
	}

	log.Debug().Str("shard", shardID).Str("attempt", attempt).
		Bool("should_exist", shouldExist).Str("dir", store.Dir()).
		Msg("recovering shard")

	typesToUpdate, err := c.run(shouldExist, progress)
	if err != nil {
		recoveriesFailed.Inc()
		return err
	}
	recoveryDuration.Observe(time.Since(start).Seconds())

	// Propagation happens after the shard is already serving; it bounds
	// its own waits and never fails the attempt.
	c.propagate(typesToUpdate)
	return nil
}

// run executes the pinned portion of the attempt and returns the distinct
// schema types mutated during replay.
func (c *Coordinator) run(shouldExist bool, progress *Progress) (map[string]json.RawMessage, error) {
	shardID := c.shard.ShardID()
	store := c.shard.Store()

	commit, err := store.Inspect(shouldExist)
	if err != nil {
		if errors.Is(err, segments.ErrStoreCorrupted) {
			return nil, &RecoveryError{Shard: shardID, Err: err}
		}
		return nil, &RecoveryError{Shard: shardID, Err: fmt.Errorf("%w: %v", ErrRecoveryImpossible, err)}
	}
	translogID, err := commit.TranslogID()
	if err != nil {
		return nil, &RecoveryError{Shard: shardID, Err: err}
	}
	progress.setCommit(commit.Version, translogID)

	// Local recovery: fill in file details for progress reporting only.
	if files, err := store.Manifest(); err != nil {
		log.Debug().Err(err).Str("shard", shardID).Msg("failed to list file details")
	} else {
		progress.setFileDetails(files)
	}

	var recoveringPath string
	if translogID == 0 {
		log.Trace().Str("shard", shardID).Bool("should_exist", shouldExist).
			Msg("no translog id set")
	} else {
		recoveringPath, err = newPromoter(c.shard.TranslogLocations()).promote(translogID)
		if err != nil {
			return nil, &RecoveryError{Shard: shardID, Err: err}
		}
	}

	// Must run after the translog name is captured so the fresh active
	// file cannot shadow it, and regardless of whether a translog exists.
	if err := c.shard.PrepareForReplay(commit); err != nil {
		return nil, &RecoveryError{Shard: shardID, Err: err}
	}

	if recoveringPath == "" {
		// Clean shutdown: no translog to recover from, start and bail.
		progress.setNoOperations()
		if err := c.finish("post recovery from store, no translog"); err != nil {
			return nil, &RecoveryError{Shard: shardID, Err: err}
		}
		return nil, nil
	}

	typesToUpdate, err := c.replay(recoveringPath, progress)
	if err != nil {
		// Keep only the recovering copy for forensics.
		if derr := c.shard.DeleteActiveTranslog(); derr != nil {
			log.Debug().Err(derr).Str("shard", shardID).
				Msg("failed to delete active translog after aborted replay")
		}
		return nil, &RecoveryError{Shard: shardID, Err: err}
	}

	// Flush to trim the translog, in case it was big. A flush the engine
	// disallows right now is fine: the replayed translog already
	// guarantees durability.
	if err := c.shard.Flush(false, false); err != nil {
		if !errors.Is(err, engine.ErrFlushNotAllowed) {
			return nil, &RecoveryError{Shard: shardID, Err: err}
		}
		log.Debug().Err(err).Str("shard", shardID).
			Msg("skipping flush at end of recovery (not allowed)")
	}

	if err := c.finish("post recovery from store"); err != nil {
		return nil, &RecoveryError{Shard: shardID, Err: err}
	}

	// A leftover recovering file must never block shard startup. A
	// copy-fallback or reused promotion also leaves the superseded
	// active file behind; it is fully replayed now, so drop it too.
	if err := os.Remove(recoveringPath); err != nil {
		log.Debug().Err(err).Str("path", recoveringPath).
			Msg("failed to delete recovering translog file")
	}
	activePath := filepath.Join(filepath.Dir(recoveringPath), translog.FileName(translogID))
	if err := os.Remove(activePath); err != nil && !os.IsNotExist(err) {
		log.Debug().Err(err).Str("path", activePath).
			Msg("failed to delete superseded translog file")
	}
	return typesToUpdate, nil
}

// replay streams operations out of the recovering translog and applies them
// in order. Bad records are skipped; any other failure aborts the attempt.
func (c *Coordinator) replay(path string, progress *Progress) (map[string]json.RawMessage, error) {
	shardID := c.shard.ShardID()
	r, err := translog.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if info, err := os.Stat(path); err == nil {
		log.Trace().Str("shard", shardID).Str("path", path).Int64("length", info.Size()).
			Msg("recovering translog file")
	}

	typesToUpdate := make(map[string]json.RawMessage)
	for {
		op, err := r.Next()
		if err == io.EOF {
			break
		}
		progress.incTotalOperations()

		result, err := c.shard.ApplyRecoveredOperation(op)
		if err != nil {
			var bad *engine.ClientDataError
			if errors.As(err, &bad) {
				log.Info().Err(err).Str("shard", shardID).
					Msg("ignoring recovery of a corrupt translog entry")
				operationsSkipped.Inc()
				continue
			}
			return nil, err
		}
		if result != nil && result.SchemaChanged {
			typesToUpdate[result.Type] = result.Definition
		}
		progress.incRecoveredOperations()
		operationsRecovered.Inc()
	}
	return typesToUpdate, nil
}

func (c *Coordinator) finish(reason string) error {
	if err := c.shard.FinalizeRecovery(); err != nil {
		return err
	}
	return c.shard.MarkPostRecovery(reason)
}

func (c *Coordinator) propagate(typesToUpdate map[string]json.RawMessage) {
	if c.waiter == nil || len(typesToUpdate) == 0 {
		return
	}
	types := make([]string, 0, len(typesToUpdate))
	for typ := range typesToUpdate {
		types = append(types, typ)
	}
	sort.Strings(types)
	for _, typ := range types {
		c.waiter.Propagate(typ, typesToUpdate[typ])
	}
}
