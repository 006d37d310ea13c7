package engine

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"corvusDB/translog"
)

func TestMemIndexAndDelete(t *testing.T) {
	m := NewMem()

	result, err := m.Apply(&translog.Operation{
		Kind: translog.OpIndex, DocID: "a", Type: "event",
		Source: []byte(`{"user":"alice","count":3}`), Version: 1,
	})
	require.NoError(t, err)
	require.Equal(t, "event", result.Type)
	require.True(t, result.SchemaChanged)

	src, ok := m.Get("event", "a")
	require.True(t, ok)
	require.JSONEq(t, `{"user":"alice","count":3}`, string(src))
	require.Equal(t, 1, m.Count("event"))
	require.Equal(t, []string{"event"}, m.Types())

	_, err = m.Apply(&translog.Operation{Kind: translog.OpDelete, DocID: "a", Type: "event", Version: 2})
	require.NoError(t, err)
	_, ok = m.Get("event", "a")
	require.False(t, ok)
}

func TestMemBadSourceIsClientDataError(t *testing.T) {
	m := NewMem()

	_, err := m.Apply(&translog.Operation{
		Kind: translog.OpIndex, DocID: "a", Type: "event",
		Source: []byte(`not json at all`), Version: 1,
	})
	var bad *ClientDataError
	require.ErrorAs(t, err, &bad)
	require.Equal(t, "a", bad.DocID)

	require.Equal(t, 0, m.Count("event"))
}

func TestMemSchemaValidation(t *testing.T) {
	m := NewMem()
	require.NoError(t, m.RegisterSchema("event", json.RawMessage(
		`{"type":"object","required":["user"],"properties":{"user":{"type":"string"}}}`)))

	_, err := m.Apply(&translog.Operation{
		Kind: translog.OpIndex, DocID: "a", Type: "event",
		Source: []byte(`{"count":1}`), Version: 1,
	})
	var bad *ClientDataError
	require.ErrorAs(t, err, &bad)

	_, err = m.Apply(&translog.Operation{
		Kind: translog.OpIndex, DocID: "a", Type: "event",
		Source: []byte(`{"user":"alice"}`), Version: 2,
	})
	require.NoError(t, err)
}

func TestMemRegisterSchemaRejectsGarbage(t *testing.T) {
	m := NewMem()
	require.Error(t, m.RegisterSchema("event", json.RawMessage(`{"type":12}`)))
}

func TestMemSchemaChangeDetection(t *testing.T) {
	m := NewMem()

	r1, err := m.Apply(&translog.Operation{
		Kind: translog.OpIndex, DocID: "a", Type: "event",
		Source: []byte(`{"user":"alice"}`), Version: 1,
	})
	require.NoError(t, err)
	require.True(t, r1.SchemaChanged)

	var def map[string]any
	require.NoError(t, json.Unmarshal(r1.Definition, &def))
	props := def["properties"].(map[string]any)
	require.Contains(t, props, "user")

	// Same shape again: nothing new.
	r2, err := m.Apply(&translog.Operation{
		Kind: translog.OpIndex, DocID: "b", Type: "event",
		Source: []byte(`{"user":"bob"}`), Version: 2,
	})
	require.NoError(t, err)
	require.False(t, r2.SchemaChanged)

	// A new field changes the definition.
	r3, err := m.Apply(&translog.Operation{
		Kind: translog.OpIndex, DocID: "c", Type: "event",
		Source: []byte(`{"user":"carol","count":2}`), Version: 3,
	})
	require.NoError(t, err)
	require.True(t, r3.SchemaChanged)
	require.NoError(t, json.Unmarshal(r3.Definition, &def))
	props = def["properties"].(map[string]any)
	require.Contains(t, props, "count")
	require.Equal(t, "number", props["count"].(map[string]any)["type"])
}

func TestMemFlushControl(t *testing.T) {
	m := NewMem()

	require.NoError(t, m.Flush(false, false))
	require.Equal(t, 1, m.Flushes())

	m.DisallowFlush()
	require.ErrorIs(t, m.Flush(false, false), ErrFlushNotAllowed)

	// A forced flush goes through regardless.
	require.NoError(t, m.Flush(true, false))
	require.Equal(t, 2, m.Flushes())
}

func TestMemClosed(t *testing.T) {
	m := NewMem()
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err := m.Apply(&translog.Operation{Kind: translog.OpDelete, DocID: "a", Type: "event", Version: 1})
	require.ErrorIs(t, err, ErrEngineClosed)
	require.ErrorIs(t, m.Flush(false, false), ErrEngineClosed)
}

func TestClientDataErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	err := &ClientDataError{DocID: "a", Reason: "broken", Err: inner}
	require.ErrorIs(t, err, inner)
	require.Contains(t, err.Error(), "a")
	require.Contains(t, err.Error(), "broken")
}
