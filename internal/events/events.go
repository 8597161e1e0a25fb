// Package events provides a small in-process event dispatcher. Dispatch is
// best-effort: a misbehaving handler never breaks the pipeline stage that
// emitted the event.
package events

import (
	"sync"
	"time"

	"pseudoflow/internal/logging"
)

// Type names one pipeline event.
type Type string

const (
	// Execution core
	ExecPoolStarted       Type = "exec_pool_started"
	ExecPoolTaskSubmitted Type = "exec_pool_task_submitted"
	ExecPoolTaskCompleted Type = "exec_pool_task_completed"
	ExecPoolTimeout       Type = "exec_pool_timeout"
	ExecPoolFallback      Type = "exec_pool_fallback"

	// Streaming
	StreamChunk          Type = "stream_chunk"
	StreamChunkProcessed Type = "stream_chunk_processed"
	StreamDecision       Type = "stream_decision"
	StreamCompleted      Type = "stream_completed"

	// Translation lifecycle
	TranslationStarted   Type = "translation_started"
	TranslationCompleted Type = "translation_completed"
	TranslationFailed    Type = "translation_failed"
)

// Event is one dispatched occurrence. Data values are small scalars
// (string, int, float64, bool, time.Duration).
type Event struct {
	Type      Type
	Source    string
	Timestamp time.Time
	Data      map[string]interface{}
}

// Handler receives dispatched events.
type Handler func(Event)

// Dispatcher fans events out to registered handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	all      []Handler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[Type][]Handler)}
}

// Subscribe registers a handler for one event type.
func (d *Dispatcher) Subscribe(t Type, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[t] = append(d.handlers[t], h)
}

// SubscribeAll registers a handler for every event type.
func (d *Dispatcher) SubscribeAll(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.all = append(d.all, h)
}

// Dispatch delivers the event to matching handlers synchronously. A nil
// dispatcher is a no-op so emitters never need a nil check. Handler panics
// are logged and swallowed.
func (d *Dispatcher) Dispatch(t Type, source string, data map[string]interface{}) {
	if d == nil {
		return
	}

	ev := Event{Type: t, Source: source, Timestamp: time.Now(), Data: data}

	d.mu.RLock()
	specific := d.handlers[t]
	all := d.all
	d.mu.RUnlock()

	for _, h := range specific {
		safeInvoke(h, ev)
	}
	for _, h := range all {
		safeInvoke(h, ev)
	}
}

func safeInvoke(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Get(logging.CategoryTranslator).Warn(
				"event handler panicked on %s: %v", ev.Type, r)
		}
	}()
	h(ev)
}
