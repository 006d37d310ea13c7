package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"corvusDB/translog"
)

// Mem is an in-memory document engine. It parses and validates document
// source, stores documents per schema type, and infers top-level field
// definitions so replay can detect schema drift.
type Mem struct {
	mu sync.Mutex

	docs    map[string]map[string][]byte // type -> doc id -> source
	fields  map[string]map[string]string // type -> field -> json type
	schemas map[string]*gojsonschema.Schema

	flushAllowed bool
	flushes      int
	closed       bool
}

// NewMem creates an empty in-memory engine.
func NewMem() *Mem {
	return &Mem{
		docs:         make(map[string]map[string][]byte),
		fields:       make(map[string]map[string]string),
		schemas:      make(map[string]*gojsonschema.Schema),
		flushAllowed: true,
	}
}

// RegisterSchema attaches a JSON schema to a type. Documents of that type
// failing validation are rejected as client data errors.
func (m *Mem) RegisterSchema(typ string, definition json.RawMessage) error {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(definition))
	if err != nil {
		return fmt.Errorf("failed to compile schema for type %q: %w", typ, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schemas[typ] = s
	return nil
}

// Apply indexes or deletes one document. Malformed or invalid source is a
// ClientDataError; engine-level failures are anything else.
func (m *Mem) Apply(op *translog.Operation) (*ApplyResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrEngineClosed
	}

	switch op.Kind {
	case translog.OpIndex:
		return m.applyIndex(op)
	case translog.OpDelete:
		if byID := m.docs[op.Type]; byID != nil {
			delete(byID, op.DocID)
		}
		return &ApplyResult{Type: op.Type}, nil
	default:
		return nil, fmt.Errorf("unsupported operation kind %v", op.Kind)
	}
}

func (m *Mem) applyIndex(op *translog.Operation) (*ApplyResult, error) {
	var doc map[string]any
	if err := json.Unmarshal(op.Source, &doc); err != nil {
		return nil, &ClientDataError{DocID: op.DocID, Reason: "source is not a JSON object", Err: err}
	}
	if s := m.schemas[op.Type]; s != nil {
		res, err := s.Validate(gojsonschema.NewBytesLoader(op.Source))
		if err != nil {
			return nil, &ClientDataError{DocID: op.DocID, Reason: "source failed schema validation", Err: err}
		}
		if !res.Valid() {
			return nil, &ClientDataError{DocID: op.DocID,
				Reason: fmt.Sprintf("source failed schema validation: %v", res.Errors())}
		}
	}

	if m.docs[op.Type] == nil {
		m.docs[op.Type] = make(map[string][]byte)
	}
	m.docs[op.Type][op.DocID] = op.Source

	changed := m.inferFields(op.Type, doc)
	result := &ApplyResult{Type: op.Type, SchemaChanged: changed}
	if changed {
		def, err := m.definitionLocked(op.Type)
		if err != nil {
			return nil, err
		}
		result.Definition = def
	}
	return result, nil
}

// inferFields records top-level field types for the document's type and
// reports whether any previously unseen field appeared.
func (m *Mem) inferFields(typ string, doc map[string]any) bool {
	known := m.fields[typ]
	if known == nil {
		known = make(map[string]string)
		m.fields[typ] = known
	}
	changed := false
	for name, value := range doc {
		if _, ok := known[name]; ok {
			continue
		}
		known[name] = jsonType(value)
		changed = true
	}
	return changed
}

func jsonType(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case nil:
		return "null"
	default:
		return "object"
	}
}

// Definition returns the inferred JSON-schema definition for a type.
func (m *Mem) Definition(typ string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.definitionLocked(typ)
}

func (m *Mem) definitionLocked(typ string) (json.RawMessage, error) {
	props := make(map[string]any, len(m.fields[typ]))
	for name, t := range m.fields[typ] {
		if t == "null" {
			continue
		}
		props[name] = map[string]any{"type": t}
	}
	return json.Marshal(map[string]any{
		"type":       "object",
		"properties": props,
	})
}

// Flush trims durable state. Force is irrelevant for the in-memory engine;
// the flag exists so the shard can pass the recovery coordinator's
// non-forced flush straight through.
func (m *Mem) Flush(force, waitIfOngoing bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrEngineClosed
	}
	if !m.flushAllowed && !force {
		return ErrFlushNotAllowed
	}
	m.flushes++
	return nil
}

// DisallowFlush puts the engine into a state where non-forced flushes are
// rejected with ErrFlushNotAllowed.
func (m *Mem) DisallowFlush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushAllowed = false
}

// Flushes returns how many flushes completed.
func (m *Mem) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

// Get returns the stored source of a document, if present.
func (m *Mem) Get(typ, id string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.docs[typ][id]
	return src, ok
}

// Count returns the number of documents stored for a type.
func (m *Mem) Count(typ string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs[typ])
}

// Types returns all types with at least one document, sorted.
func (m *Mem) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.docs))
	for typ := range m.docs {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

// Close marks the engine closed. Idempotent.
func (m *Mem) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
