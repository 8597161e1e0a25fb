// Package exec offloads CPU-heavy parse and validate calls onto a lazily
// created worker pool. Oversized jobs and disabled targets never touch the
// pool: the returned handle reports an immediate fallback so the caller
// runs the work in-process. Timeouts restart the pool and retry up to the
// configured limit; task-level errors always propagate unchanged.
package exec

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"pseudoflow/internal/block"
	"pseudoflow/internal/config"
	"pseudoflow/internal/events"
	"pseudoflow/internal/logging"
	"pseudoflow/internal/telemetry"
	"pseudoflow/internal/validator"
)

// Kind distinguishes the two offloadable operations.
type Kind string

const (
	KindParse    Kind = "parse"
	KindValidate Kind = "validate"
)

// Fallback reasons carried by FallbackError.
const (
	ReasonJobTooLarge    = "job_too_large"
	ReasonTargetDisabled = "target_disabled"
	ReasonTimeout        = "timeout"
	ReasonBrokenPool     = "broken_pool"
)

// maxAttempts is the hard cap on result attempts regardless of the
// configured retry limit.
const maxAttempts = 5

type taskSpec struct {
	kind    Kind
	payload string
}

// TaskResult carries the outcome of one offloaded task; the field matching
// Kind is set.
type TaskResult struct {
	Kind       Kind
	Parse      block.Outcome
	Validation *validator.Result
}

// Handle is a future for one submitted task.
type Handle interface {
	// Result waits for the task up to timeout (<= 0 uses the configured
	// per-task timeout). A *FallbackError tells the caller to execute the
	// work in-process instead.
	Result(timeout time.Duration) (*TaskResult, error)
}

// FallbackError signals that the pool did not or could not run the task
// and the caller must fall back to in-process execution.
type FallbackError struct {
	Kind   Kind
	Reason string
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("exec_pool_fallback:%s", e.Reason)
}

// Executor owns the worker pool. The pool is created on first submission
// and recreated after a timeout-triggered restart.
type Executor struct {
	mu      sync.Mutex
	cfg     config.ExecutionConfig
	rec     telemetry.Recorder
	disp    *events.Dispatcher
	pool    *workerPool
	factory runnerFactory // test seam; defaults to real parse/validate
}

// New creates an executor. rec nil uses the process-wide recorder; disp
// may be nil (events are then dropped).
func New(cfg config.ExecutionConfig, rec telemetry.Recorder, disp *events.Dispatcher) *Executor {
	if rec == nil {
		rec = telemetry.Get()
	}
	return &Executor{cfg: cfg, rec: rec, disp: disp, factory: defaultRunnerFactory}
}

// SubmitParse offloads a parse of text.
func (x *Executor) SubmitParse(text string) Handle {
	if cap := x.cfg.ProcessPoolJobMaxChars; cap > 0 && len(text) > cap {
		x.emitFallback(KindParse, ReasonJobTooLarge)
		return &immediateFallback{kind: KindParse, reason: ReasonJobTooLarge}
	}
	if t := x.cfg.ProcessPoolTarget; t != "parse_validate" && t != "parse_only" {
		return &immediateFallback{kind: KindParse, reason: ReasonTargetDisabled}
	}
	return x.submit(taskSpec{kind: KindParse, payload: text})
}

// SubmitValidate offloads a syntax validation of code.
func (x *Executor) SubmitValidate(code string) Handle {
	if cap := x.cfg.ProcessPoolJobMaxChars; cap > 0 && len(code) > cap {
		x.emitFallback(KindValidate, ReasonJobTooLarge)
		return &immediateFallback{kind: KindValidate, reason: ReasonJobTooLarge}
	}
	if t := x.cfg.ProcessPoolTarget; t != "parse_validate" && t != "validate_only" {
		return &immediateFallback{kind: KindValidate, reason: ReasonTargetDisabled}
	}
	return x.submit(taskSpec{kind: KindValidate, payload: code})
}

func (x *Executor) submit(spec taskSpec) Handle {
	x.ensurePool()

	x.disp.Dispatch(events.ExecPoolTaskSubmitted, "executor", map[string]interface{}{
		"kind":       string(spec.kind),
		"size_chars": len(spec.payload),
	})
	x.rec.RecordEvent("exec_pool.submit", telemetry.NoDuration,
		map[string]int64{"exec_pool.submit": 1})

	t := &poolTask{spec: spec, out: make(chan poolOutcome, 1)}
	// The send can block on a full queue, so it must not hold x.mu: a
	// concurrent Shutdown has to be able to close the pool and unblock it.
	x.mu.Lock()
	pool := x.pool
	x.mu.Unlock()
	if pool == nil || !pool.submit(t) {
		x.emitFallback(spec.kind, ReasonBrokenPool)
		return &immediateFallback{kind: spec.kind, reason: ReasonBrokenPool}
	}
	return &taskHandle{x: x, spec: spec, out: t.out, started: time.Now()}
}

// PoolInitialized reports whether the worker pool has been created.
func (x *Executor) PoolInitialized() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.pool != nil
}

// Shutdown stops the pool; queued tasks are abandoned. Idempotent.
func (x *Executor) Shutdown() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.pool != nil {
		x.pool.shutdown()
		x.pool = nil
	}
}

func (x *Executor) ensurePool() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.pool != nil {
		return
	}

	t0 := time.Now()
	workers := x.resolveWorkers()
	x.pool = newWorkerPool(workers, x.factory)
	initMs := float64(time.Since(t0)) / float64(time.Millisecond)

	x.rec.RecordEvent("exec_pool.started", telemetry.NoDuration,
		map[string]int64{"exec_pool.started": 1})
	x.rec.RecordEvent("exec_pool.init_ms", initMs, nil)
	x.disp.Dispatch(events.ExecPoolStarted, "executor", map[string]interface{}{
		"max_workers":  workers,
		"start_method": x.cfg.ProcessPoolStartMethod,
	})
	logging.Exec("worker pool started: %d workers (init %.2fms)", workers, initMs)
}

// restartPool tears the pool down and builds a fresh one; used after a
// timeout before resubmitting.
func (x *Executor) restartPool() {
	x.mu.Lock()
	if x.pool != nil {
		x.pool.shutdown()
		x.pool = nil
	}
	x.mu.Unlock()
	x.ensurePool()
}

// resubmit restarts the pool and requeues the spec; false means the pool
// could not accept it.
func (x *Executor) resubmit(spec taskSpec) (chan poolOutcome, bool) {
	x.restartPool()
	t := &poolTask{spec: spec, out: make(chan poolOutcome, 1)}
	x.mu.Lock()
	pool := x.pool
	x.mu.Unlock()
	if pool == nil {
		return nil, false
	}
	return t.out, pool.submit(t)
}

func (x *Executor) resolveWorkers() int {
	if x.cfg.ProcessPoolMaxWorkers > 0 {
		return x.cfg.ProcessPoolMaxWorkers
	}
	cpu := runtime.NumCPU()
	if cpu < 2 {
		cpu = 2
	}
	return cpu
}

func (x *Executor) taskTimeout() time.Duration {
	ms := x.cfg.ProcessPoolTaskTimeoutMs
	if ms < 1 {
		ms = 1
	}
	return time.Duration(ms) * time.Millisecond
}

func (x *Executor) emitFallback(kind Kind, reason string) {
	x.disp.Dispatch(events.ExecPoolFallback, "executor", map[string]interface{}{
		"kind":   string(kind),
		"reason": reason,
	})
	x.rec.RecordEvent("exec_pool.fallback", telemetry.NoDuration,
		map[string]int64{"exec_pool.fallback": 1})
	logging.ExecWarn("fallback (%s): %s", kind, reason)
}

// immediateFallback is a handle for work that never reached the pool.
type immediateFallback struct {
	kind   Kind
	reason string
}

func (f *immediateFallback) Result(time.Duration) (*TaskResult, error) {
	return nil, &FallbackError{Kind: f.kind, Reason: f.reason}
}

// taskHandle is the future for a pooled task, with timeout-driven
// restart-and-retry.
type taskHandle struct {
	x       *Executor
	spec    taskSpec
	out     chan poolOutcome
	started time.Time
	attempt int // completed retries, 0 on first run
}

// Result implements Handle. On timeout, if retry is enabled and the
// attempt count is below the configured limit, the pool is restarted and
// the task resubmitted with a fresh start time; otherwise a fallback event
// fires and a FallbackError is returned. Task-internal errors are never
// retried.
func (h *taskHandle) Result(timeout time.Duration) (*TaskResult, error) {
	if timeout <= 0 {
		timeout = h.x.taskTimeout()
	}

	for tries := 1; tries <= maxAttempts; tries++ {
		timer := time.NewTimer(timeout)
		select {
		case out := <-h.out:
			timer.Stop()
			if out.err != nil {
				h.x.emitFallback(h.spec.kind, ReasonBrokenPool)
				return nil, out.err
			}
			durMs := float64(time.Since(h.started)) / float64(time.Millisecond)
			h.x.disp.Dispatch(events.ExecPoolTaskCompleted, "executor", map[string]interface{}{
				"kind":        string(h.spec.kind),
				"duration_ms": durMs,
				"attempt":     h.attempt,
			})
			h.x.rec.RecordEvent("exec_pool.complete", telemetry.NoDuration,
				map[string]int64{"exec_pool.complete": 1})
			h.x.rec.RecordEvent("exec_pool.task_ms", durMs, nil)
			return out.result, nil

		case <-timer.C:
			h.x.disp.Dispatch(events.ExecPoolTimeout, "executor", map[string]interface{}{
				"kind":       string(h.spec.kind),
				"timeout_ms": int(timeout / time.Millisecond),
				"attempt":    h.attempt,
			})
			h.x.rec.RecordEvent("exec_pool.timeout", telemetry.NoDuration,
				map[string]int64{"exec_pool.timeout": 1})

			retry := h.x.cfg.ProcessPoolRetryOnTimeout &&
				h.attempt < h.x.cfg.ProcessPoolRetryLimit &&
				tries < maxAttempts
			if retry {
				if out, ok := h.x.resubmit(h.spec); ok {
					h.attempt++
					h.out = out
					h.started = time.Now()
					continue
				}
			}
			h.x.emitFallback(h.spec.kind, ReasonTimeout)
			return nil, &FallbackError{Kind: h.spec.kind, Reason: ReasonTimeout}
		}
	}
	h.x.emitFallback(h.spec.kind, ReasonTimeout)
	return nil, &FallbackError{Kind: h.spec.kind, Reason: ReasonTimeout}
}
