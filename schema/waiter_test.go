package schema

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var eventDef = json.RawMessage(`{"type":"object","properties":{"n":{"type":"number"}}}`)

func TestWaiterAcknowledged(t *testing.T) {
	registry := NewMemRegistry()
	w := NewWaiter(registry, 5*time.Second)
	defer w.Cancel()

	w.Propagate("event", eventDef)

	got, ok := registry.Definition("event")
	require.True(t, ok)
	require.JSONEq(t, string(eventDef), string(got))
}

func TestWaiterRejectedDefinition(t *testing.T) {
	registry := NewMemRegistry()
	w := NewWaiter(registry, 5*time.Second)
	defer w.Cancel()

	// An uncompilable definition is refused and never stored. The wait
	// still returns promptly.
	w.Propagate("event", json.RawMessage(`{"type":12}`))

	_, ok := registry.Definition("event")
	require.False(t, ok)
}

// silentRegistry never answers, like a partitioned authority.
type silentRegistry struct{}

func (silentRegistry) RequestUpdate(string, json.RawMessage, func(), func(error)) {}

func TestWaiterTimesOut(t *testing.T) {
	w := NewWaiter(silentRegistry{}, 20*time.Millisecond)
	defer w.Cancel()

	start := time.Now()
	w.Propagate("event", eventDef)
	elapsed := time.Since(start)
	require.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	require.Less(t, elapsed, 2*time.Second)
}

func TestWaiterCanceled(t *testing.T) {
	w := NewWaiter(silentRegistry{}, time.Hour)

	done := make(chan struct{})
	go func() {
		w.Propagate("event", eventDef)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	w.Cancel()
	w.Cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("propagate did not return after cancel")
	}
}

func TestWaiterDefaultTimeout(t *testing.T) {
	w := NewWaiter(NewMemRegistry(), 0)
	defer w.Cancel()
	require.Equal(t, DefaultUpdateTimeout, w.timeout)

	w2 := NewWaiter(NewMemRegistry(), -time.Second)
	defer w2.Cancel()
	require.Equal(t, DefaultUpdateTimeout, w2.timeout)
}
