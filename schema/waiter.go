package schema

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultUpdateTimeout bounds how long recovery waits for the registry to
// acknowledge a propagated definition.
const DefaultUpdateTimeout = 30 * time.Second

// Waiter pushes schema updates to the registry and blocks, bounded, for
// acknowledgment. The wait is advisory: by the time it runs the shard is
// already serving, so timeouts and failures are logged and swallowed.
// A shard close cancels any in-flight wait promptly.
type Waiter struct {
	registry Registry
	timeout  time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewWaiter creates a waiter bound to the registry. A non-positive timeout
// falls back to DefaultUpdateTimeout.
func NewWaiter(registry Registry, timeout time.Duration) *Waiter {
	if timeout <= 0 {
		timeout = DefaultUpdateTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Waiter{registry: registry, timeout: timeout, ctx: ctx, cancel: cancel}
}

// Propagate requests the registry accept the latest definition for a type
// and waits for acknowledgment, the configured bound, or cancellation,
// whichever comes first.
func (w *Waiter) Propagate(typ string, definition json.RawMessage) {
	if w.registry == nil {
		return
	}
	done := make(chan error, 1)
	w.registry.RequestUpdate(typ, definition,
		func() { done <- nil },
		func(err error) { done <- err },
	)

	timer := time.NewTimer(w.timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			log.Debug().Err(err).Str("type", typ).
				Msg("schema update rejected by registry post recovery")
		}
	case <-timer.C:
		log.Debug().Str("type", typ).Dur("timeout", w.timeout).
			Msg("timed out waiting for schema update acknowledgment")
	case <-w.ctx.Done():
		log.Debug().Str("type", typ).Msg("schema update wait canceled")
	}
}

// Cancel aborts all in-flight and future waits. Idempotent.
func (w *Waiter) Cancel() {
	w.cancel()
}
