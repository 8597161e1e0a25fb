package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReceivesMatchingType(t *testing.T) {
	d := NewDispatcher()
	var got []Event
	d.Subscribe(StreamChunk, func(ev Event) { got = append(got, ev) })

	d.Dispatch(StreamChunk, "pipeline", map[string]interface{}{"chunk_index": 1})
	d.Dispatch(StreamCompleted, "pipeline", nil)

	require.Len(t, got, 1)
	assert.Equal(t, StreamChunk, got[0].Type)
	assert.Equal(t, "pipeline", got[0].Source)
	assert.Equal(t, 1, got[0].Data["chunk_index"])
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	d := NewDispatcher()
	var types []Type
	d.SubscribeAll(func(ev Event) { types = append(types, ev.Type) })

	d.Dispatch(TranslationStarted, "translator", nil)
	d.Dispatch(ExecPoolFallback, "executor", nil)

	assert.Equal(t, []Type{TranslationStarted, ExecPoolFallback}, types)
}

func TestNilDispatcherIsNoop(t *testing.T) {
	var d *Dispatcher
	assert.NotPanics(t, func() {
		d.Dispatch(TranslationStarted, "translator", nil)
	})
}

func TestPanickingHandlerDoesNotStopDelivery(t *testing.T) {
	d := NewDispatcher()
	delivered := false
	d.Subscribe(StreamChunk, func(Event) { panic("boom") })
	d.Subscribe(StreamChunk, func(Event) { delivered = true })

	assert.NotPanics(t, func() {
		d.Dispatch(StreamChunk, "pipeline", nil)
	})
	assert.True(t, delivered)
}
