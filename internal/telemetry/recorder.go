// Package telemetry provides lightweight in-process timing and counting for
// the pipeline's key phases. When disabled (the default) the recorder is a
// no-op with near-zero overhead; when enabled it aggregates counts,
// durations with fixed histogram buckets, and increment-only counters, and
// can emit one structured log line per accepted event.
//
// Enablement: env var PSEUDOFLOW_TELEMETRY in {"1", "true", "yes"}.
// Sampling:   env var PSEUDOFLOW_TELEMETRY_SAMPLE (int N >= 1, default 1)
// keeps only every Nth event.
// Logging:    env var PSEUDOFLOW_TELEMETRY_LOG in the same truthy set emits
// a JSON line per accepted event via zap.
package telemetry

import (
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Fixed histogram upper-bound edges in milliseconds.
var bucketEdgesMs = []float64{0.5, 1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, math.Inf(1)}

var truthy = map[string]bool{"1": true, "true": true, "yes": true}

// Enabled reports whether telemetry is turned on for this process.
func Enabled() bool {
	return truthy[strings.ToLower(strings.TrimSpace(os.Getenv("PSEUDOFLOW_TELEMETRY")))]
}

// Recorder is the telemetry interface. NoDuration marks events that carry
// no timing payload.
type Recorder interface {
	// RecordEvent records one occurrence of name. durationMs < 0 means no
	// duration. counters are aggregated per event name with +=.
	RecordEvent(name string, durationMs float64, counters map[string]int64)
	// Snapshot returns a JSON-serializable view of all aggregates.
	Snapshot() Snapshot
}

// NoDuration is the durationMs sentinel for events without timing.
const NoDuration = -1.0

// Snapshot is the JSON-serializable aggregate view.
type Snapshot struct {
	TelemetryEnabled bool                  `json:"telemetry_enabled"`
	PID              int                   `json:"pid"`
	StartTime        string                `json:"start_time"`
	SampleRate       int                   `json:"sample_rate"`
	Events           map[string]EventStats `json:"events"`
}

// EventStats aggregates one event name.
type EventStats struct {
	Count    int64            `json:"count"`
	TotalMs  float64          `json:"total_ms"`
	MinMs    *float64         `json:"min_ms"`
	MaxMs    *float64         `json:"max_ms"`
	Buckets  map[string]int64 `json:"buckets,omitempty"`
	Counters map[string]int64 `json:"counters,omitempty"`
}

type eventAgg struct {
	count    int64
	totalMs  float64
	minMs    float64
	maxMs    float64
	hasDur   bool
	buckets  map[string]int64
	counters map[string]int64
}

// LiveRecorder aggregates events in memory.
type LiveRecorder struct {
	mu         sync.Mutex
	events     map[string]*eventAgg
	pid        int
	startTime  string
	sampleRate int
	seq        int64
	log        *zap.Logger // nil when event logging is off
}

// NewRecorder builds a live recorder with the given sample rate (values < 1
// are treated as 1). logger may be nil.
func NewRecorder(sampleRate int, logger *zap.Logger) *LiveRecorder {
	if sampleRate < 1 {
		sampleRate = 1
	}
	return &LiveRecorder{
		events:     make(map[string]*eventAgg),
		pid:        os.Getpid(),
		startTime:  time.Now().UTC().Format(time.RFC3339Nano),
		sampleRate: sampleRate,
		log:        logger,
	}
}

func bucketLabel(d float64) string {
	for _, edge := range bucketEdgesMs {
		if d <= edge {
			if math.IsInf(edge, 1) {
				return "inf"
			}
			return strconv.FormatFloat(edge, 'f', -1, 64)
		}
	}
	return "inf"
}

// RecordEvent implements Recorder. Sampling drops all but every Nth call.
func (r *LiveRecorder) RecordEvent(name string, durationMs float64, counters map[string]int64) {
	r.mu.Lock()
	r.seq++
	if r.sampleRate > 1 && r.seq%int64(r.sampleRate) != 0 {
		r.mu.Unlock()
		return
	}

	agg, ok := r.events[name]
	if !ok {
		agg = &eventAgg{buckets: make(map[string]int64)}
		r.events[name] = agg
	}
	agg.count++

	if durationMs >= 0 {
		agg.totalMs += durationMs
		if !agg.hasDur || durationMs < agg.minMs {
			agg.minMs = durationMs
		}
		if !agg.hasDur || durationMs > agg.maxMs {
			agg.maxMs = durationMs
		}
		agg.hasDur = true
		agg.buckets[bucketLabel(durationMs)]++
	}

	if len(counters) > 0 {
		if agg.counters == nil {
			agg.counters = make(map[string]int64, len(counters))
		}
		for k, v := range counters {
			agg.counters[k] += v
		}
	}
	r.mu.Unlock()

	if r.log != nil {
		fields := []zap.Field{
			zap.String("event", name),
			zap.Int("pid", r.pid),
			zap.Int("sample_rate", r.sampleRate),
		}
		if durationMs >= 0 {
			fields = append(fields, zap.Float64("duration_ms", durationMs))
		}
		for k, v := range counters {
			fields = append(fields, zap.Int64("counter."+k, v))
		}
		r.log.Info("telemetry", fields...)
	}
}

// Snapshot implements Recorder.
func (r *LiveRecorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := Snapshot{
		TelemetryEnabled: true,
		PID:              r.pid,
		StartTime:        r.startTime,
		SampleRate:       r.sampleRate,
		Events:           make(map[string]EventStats, len(r.events)),
	}
	for name, agg := range r.events {
		st := EventStats{
			Count:   agg.count,
			TotalMs: agg.totalMs,
		}
		if agg.hasDur {
			minCopy, maxCopy := agg.minMs, agg.maxMs
			st.MinMs, st.MaxMs = &minCopy, &maxCopy
			st.Buckets = make(map[string]int64, len(agg.buckets))
			for k, v := range agg.buckets {
				st.Buckets[k] = v
			}
		}
		if len(agg.counters) > 0 {
			st.Counters = make(map[string]int64, len(agg.counters))
			for k, v := range agg.counters {
				st.Counters[k] = v
			}
		}
		out.Events[name] = st
	}
	return out
}

// TimedSection returns a stop function that records the elapsed time under
// name when called.
func TimedSection(r Recorder, name string) func() {
	start := time.Now()
	return func() {
		r.RecordEvent(name, float64(time.Since(start))/float64(time.Millisecond), nil)
	}
}

// NoopRecorder discards everything.
type NoopRecorder struct{}

// RecordEvent implements Recorder as a no-op.
func (NoopRecorder) RecordEvent(string, float64, map[string]int64) {}

// Snapshot implements Recorder; the snapshot is empty but well formed.
func (NoopRecorder) Snapshot() Snapshot {
	return Snapshot{TelemetryEnabled: false, PID: os.Getpid(), SampleRate: 1,
		Events: map[string]EventStats{}}
}

var (
	recorderOnce sync.Once
	recorder     Recorder
)

// Get returns the process-wide recorder: a live recorder when telemetry is
// enabled, a no-op otherwise. The decision is made once per process.
func Get() Recorder {
	recorderOnce.Do(func() {
		if !Enabled() {
			recorder = NoopRecorder{}
			return
		}
		rate := 1
		if v := os.Getenv("PSEUDOFLOW_TELEMETRY_SAMPLE"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 1 {
				rate = n
			}
		}
		var logger *zap.Logger
		if truthy[strings.ToLower(strings.TrimSpace(os.Getenv("PSEUDOFLOW_TELEMETRY_LOG")))] {
			logger, _ = zap.NewProduction()
		}
		recorder = NewRecorder(rate, logger)
	})
	return recorder
}
