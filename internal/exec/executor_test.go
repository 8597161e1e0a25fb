package exec

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pseudoflow/internal/block"
	"pseudoflow/internal/config"
	"pseudoflow/internal/events"
	"pseudoflow/internal/telemetry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig() config.ExecutionConfig {
	cfg := config.DefaultConfig().Execution
	cfg.ProcessPoolMaxWorkers = 1
	return cfg
}

// eventLog collects dispatched events for assertions.
type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func newEventLog(d *events.Dispatcher) *eventLog {
	l := &eventLog{}
	d.SubscribeAll(func(ev events.Event) {
		l.mu.Lock()
		l.events = append(l.events, ev)
		l.mu.Unlock()
	})
	return l
}

func (l *eventLog) ofType(t events.Type) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for _, ev := range l.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func TestOversizeJobImmediateFallback(t *testing.T) {
	cfg := testConfig()
	cfg.ProcessPoolJobMaxChars = 10
	disp := events.NewDispatcher()
	log := newEventLog(disp)
	x := New(cfg, telemetry.NoopRecorder{}, disp)
	defer x.Shutdown()

	h := x.SubmitParse("x = 1  # definitely more than ten chars")
	_, err := h.Result(0)

	var fb *FallbackError
	require.ErrorAs(t, err, &fb)
	assert.Equal(t, ReasonJobTooLarge, fb.Reason)
	assert.False(t, x.PoolInitialized(), "oversized jobs must never touch the pool")

	fallbacks := log.ofType(events.ExecPoolFallback)
	require.Len(t, fallbacks, 1)
	assert.Equal(t, ReasonJobTooLarge, fallbacks[0].Data["reason"])
}

func TestTargetDisabledFallback(t *testing.T) {
	cfg := testConfig()
	cfg.ProcessPoolTarget = "off"
	x := New(cfg, telemetry.NoopRecorder{}, nil)
	defer x.Shutdown()

	_, err := x.SubmitParse("x = 1").Result(0)
	var fb *FallbackError
	require.ErrorAs(t, err, &fb)
	assert.Equal(t, ReasonTargetDisabled, fb.Reason)
	assert.False(t, x.PoolInitialized())

	_, err = x.SubmitValidate("x = 1").Result(0)
	require.ErrorAs(t, err, &fb)
	assert.Equal(t, ReasonTargetDisabled, fb.Reason)
}

func TestValidateOnlyTargetRejectsParse(t *testing.T) {
	cfg := testConfig()
	cfg.ProcessPoolTarget = "validate_only"
	x := New(cfg, telemetry.NoopRecorder{}, nil)
	defer x.Shutdown()

	_, err := x.SubmitParse("x = 1").Result(0)
	var fb *FallbackError
	require.ErrorAs(t, err, &fb)
	assert.Equal(t, ReasonTargetDisabled, fb.Reason)
}

func TestParseThroughPool(t *testing.T) {
	x := New(testConfig(), telemetry.NoopRecorder{}, nil)
	defer x.Shutdown()

	res, err := x.SubmitParse("x = 1\ny = x + 2").Result(0)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, KindParse, res.Kind)
	require.True(t, res.Parse.OK())
	require.Len(t, res.Parse.Blocks, 1)
	assert.Equal(t, block.Code, res.Parse.Blocks[0].Kind)
	assert.True(t, x.PoolInitialized())
}

func TestValidateThroughPool(t *testing.T) {
	x := New(testConfig(), telemetry.NoopRecorder{}, nil)
	defer x.Shutdown()

	res, err := x.SubmitValidate("def broken(:").Result(0)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, KindValidate, res.Kind)
	require.NotNil(t, res.Validation)
	assert.False(t, res.Validation.IsValid)
}

func TestTimeoutRetriesOnceThenSucceeds(t *testing.T) {
	cfg := testConfig()
	cfg.ProcessPoolTaskTimeoutMs = 50
	cfg.ProcessPoolRetryOnTimeout = true
	cfg.ProcessPoolRetryLimit = 1

	disp := events.NewDispatcher()
	log := newEventLog(disp)
	x := New(cfg, telemetry.NoopRecorder{}, disp)
	defer x.Shutdown()

	var mu sync.Mutex
	calls := 0
	release := make(chan struct{})
	x.factory = func() func(taskSpec) poolOutcome {
		return func(spec taskSpec) poolOutcome {
			mu.Lock()
			calls++
			first := calls == 1
			mu.Unlock()
			if first {
				<-release // stall past the timeout
			}
			return poolOutcome{result: &TaskResult{Kind: spec.kind}}
		}
	}

	res, err := x.SubmitParse("x = 1").Result(0)
	require.NoError(t, err)
	require.NotNil(t, res)

	timeouts := log.ofType(events.ExecPoolTimeout)
	require.Len(t, timeouts, 1, "exactly one resubmission")
	completed := log.ofType(events.ExecPoolTaskCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, 1, completed[0].Data["attempt"])

	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()

	close(release)
	time.Sleep(20 * time.Millisecond) // let the stalled worker drain
}

func TestTimeoutWithoutRetryFallsBack(t *testing.T) {
	cfg := testConfig()
	cfg.ProcessPoolTaskTimeoutMs = 30
	cfg.ProcessPoolRetryOnTimeout = false

	disp := events.NewDispatcher()
	log := newEventLog(disp)
	x := New(cfg, telemetry.NoopRecorder{}, disp)
	defer x.Shutdown()

	release := make(chan struct{})
	x.factory = func() func(taskSpec) poolOutcome {
		return func(spec taskSpec) poolOutcome {
			<-release
			return poolOutcome{result: &TaskResult{Kind: spec.kind}}
		}
	}

	_, err := x.SubmitParse("x = 1").Result(0)
	var fb *FallbackError
	require.ErrorAs(t, err, &fb)
	assert.Equal(t, ReasonTimeout, fb.Reason)
	require.Len(t, log.ofType(events.ExecPoolFallback), 1)

	close(release)
	time.Sleep(20 * time.Millisecond)
}

func TestTaskErrorPropagatesUnretried(t *testing.T) {
	cfg := testConfig()
	disp := events.NewDispatcher()
	log := newEventLog(disp)
	x := New(cfg, telemetry.NoopRecorder{}, disp)
	defer x.Shutdown()

	boom := errors.New("boom")
	x.factory = func() func(taskSpec) poolOutcome {
		return func(taskSpec) poolOutcome {
			return poolOutcome{err: boom}
		}
	}

	_, err := x.SubmitParse("x = 1").Result(0)
	require.ErrorIs(t, err, boom, "task-level errors propagate unchanged")

	fallbacks := log.ofType(events.ExecPoolFallback)
	require.Len(t, fallbacks, 1)
	assert.Equal(t, ReasonBrokenPool, fallbacks[0].Data["reason"])
}

func TestShutdownUnblocksSaturatedQueue(t *testing.T) {
	x := New(testConfig(), telemetry.NoopRecorder{}, nil)

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	x.factory = func() func(taskSpec) poolOutcome {
		return func(spec taskSpec) poolOutcome {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
			return poolOutcome{result: &TaskResult{Kind: spec.kind}}
		}
	}

	// One task occupies the single worker, then exactly queueDepth more
	// fill the queue without blocking.
	x.SubmitParse("x = 0")
	<-started
	for i := 0; i < queueDepth; i++ {
		x.SubmitParse("x = 1")
	}

	// The next submission blocks on the saturated queue.
	blocked := make(chan Handle, 1)
	go func() { blocked <- x.SubmitParse("y = 2") }()
	time.Sleep(20 * time.Millisecond)

	shutdownDone := make(chan struct{})
	go func() {
		x.Shutdown()
		close(shutdownDone)
	}()
	select {
	case <-shutdownDone:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown blocked behind a saturated queue")
	}

	var h Handle
	select {
	case h = <-blocked:
	case <-time.After(2 * time.Second):
		t.Fatal("submission stayed blocked after shutdown")
	}
	_, err := h.Result(0)
	var fb *FallbackError
	require.ErrorAs(t, err, &fb)
	assert.Equal(t, ReasonBrokenPool, fb.Reason)

	close(release)
	time.Sleep(20 * time.Millisecond) // let the stalled worker drain
}

func TestShutdownIdempotent(t *testing.T) {
	x := New(testConfig(), telemetry.NoopRecorder{}, nil)

	x.Shutdown() // never initialized
	x.Shutdown()

	_, err := x.SubmitParse("x = 1").Result(0)
	require.NoError(t, err)
	assert.True(t, x.PoolInitialized())

	x.Shutdown()
	assert.False(t, x.PoolInitialized())
	x.Shutdown()
}

func TestSubmitAfterShutdownReinitializes(t *testing.T) {
	x := New(testConfig(), telemetry.NoopRecorder{}, nil)
	defer x.Shutdown()

	_, err := x.SubmitParse("x = 1").Result(0)
	require.NoError(t, err)
	x.Shutdown()

	res, err := x.SubmitParse("y = 2").Result(0)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, x.PoolInitialized())
}
