// Package engine defines the narrow surface of the indexing engine that
// shard recovery drives, and provides an in-memory implementation used by
// the daemon and tests.
package engine

import (
	"encoding/json"
	"errors"
	"fmt"

	"corvusDB/translog"
)

// ErrFlushNotAllowed signals that the engine's current state disallows a
// flush. Transient and tolerated after replay: durability is already
// guaranteed by the fully replayed translog.
var ErrFlushNotAllowed = errors.New("flush not allowed in current engine state")

// ErrEngineClosed is returned for operations against a closed engine.
var ErrEngineClosed = errors.New("engine is closed")

// ClientDataError marks a failure caused by the logged operation's own
// payload (malformed document, schema violation) rather than by the engine.
// Replay skips these and continues; one bad record must not abort a shard.
type ClientDataError struct {
	DocID  string
	Reason string
	Err    error
}

func (e *ClientDataError) Error() string {
	return fmt.Sprintf("bad document %q: %s", e.DocID, e.Reason)
}

func (e *ClientDataError) Unwrap() error { return e.Err }

// ApplyResult reports the outcome of applying one recovered operation.
// SchemaChanged is set when the document introduced fields not yet known
// for its type; Definition then carries the latest inferred definition.
type ApplyResult struct {
	SchemaChanged bool
	Type          string
	Definition    json.RawMessage
}

// Engine applies recovered operations and flushes durable state. The
// recovery coordinator consumes this interface only; everything behind it
// (segment writing, search structures) is out of scope here.
type Engine interface {
	Apply(op *translog.Operation) (*ApplyResult, error)
	Flush(force, waitIfOngoing bool) error
	Close() error
}
