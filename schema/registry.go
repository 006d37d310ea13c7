// Package schema propagates field definitions discovered during replay to
// the authoritative schema registry.
package schema

import (
	"encoding/json"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Registry is the external authority for schema definitions. RequestUpdate
// is asynchronous: exactly one of onAck or onFailure fires when the
// authority has decided.
type Registry interface {
	RequestUpdate(typ string, definition json.RawMessage, onAck func(), onFailure func(error))
}

// MemRegistry is an in-process registry. It compiles submitted definitions
// before accepting them, so a propagated definition is guaranteed usable by
// any other shard that fetches it.
type MemRegistry struct {
	mu   sync.Mutex
	defs map[string]json.RawMessage
}

// NewMemRegistry creates an empty registry.
func NewMemRegistry() *MemRegistry {
	return &MemRegistry{defs: make(map[string]json.RawMessage)}
}

// RequestUpdate validates and stores the definition, then acks. The
// decision runs off the caller's goroutine like a remote authority would.
func (r *MemRegistry) RequestUpdate(typ string, definition json.RawMessage, onAck func(), onFailure func(error)) {
	go func() {
		if _, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(definition)); err != nil {
			onFailure(err)
			return
		}
		r.mu.Lock()
		r.defs[typ] = definition
		r.mu.Unlock()
		onAck()
	}()
}

// Definition returns the stored definition for a type, if any.
func (r *MemRegistry) Definition(typ string) (json.RawMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	def, ok := r.defs[typ]
	return def, ok
}
