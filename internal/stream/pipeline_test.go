package stream

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pseudoflow/internal/config"
	"pseudoflow/internal/events"
	"pseudoflow/internal/telemetry"
)

func echoTranslate(_ context.Context, chunk string) (string, error) {
	return chunk, nil
}

func testInput(lines int) string {
	var b strings.Builder
	for i := 0; i < lines; i++ {
		b.WriteString("x = 1  # filler line to give chunks something to carry\n")
	}
	return b.String()
}

func TestSplitChunksLineAligned(t *testing.T) {
	input := testInput(40)
	chunks := splitChunks(input, 100)

	require.NotEmpty(t, chunks)
	for i, c := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasSuffix(c, "\n"), "chunk %d must end on a line break", i)
	}
	assert.Equal(t, input, strings.Join(chunks, ""), "chunks must reassemble the input exactly")
}

func TestStreamSequentialKeepsOrder(t *testing.T) {
	cfg := config.DefaultConfig().Streaming
	cfg.AdaptiveEnabled = false
	cfg.MaxConcurrentChunks = 1
	cfg.ChunkSize = 80

	p := New(cfg, echoTranslate, nil, telemetry.NoopRecorder{})
	input := testInput(30)

	results, err := p.Stream(context.Background(), input)
	require.NoError(t, err)

	var rebuilt strings.Builder
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		rebuilt.WriteString(r.Code)
	}
	assert.Equal(t, input, rebuilt.String())
}

func TestStreamParallelOrderedOutput(t *testing.T) {
	cfg := config.DefaultConfig().Streaming
	cfg.AdaptiveEnabled = false
	cfg.MaxConcurrentChunks = 4
	cfg.ChunkSize = 60

	// Earlier chunks finish last, so output order must not depend on
	// completion order.
	var mu sync.Mutex
	started := 0
	translate := func(_ context.Context, chunk string) (string, error) {
		mu.Lock()
		started++
		order := started
		mu.Unlock()
		if order == 1 {
			time.Sleep(30 * time.Millisecond)
		}
		return strings.ToUpper(chunk), nil
	}

	p := New(cfg, translate, nil, telemetry.NoopRecorder{})
	input := testInput(30)

	results, err := p.Stream(context.Background(), input)
	require.NoError(t, err)

	var rebuilt strings.Builder
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		rebuilt.WriteString(r.Code)
	}
	assert.Equal(t, strings.ToUpper(input), rebuilt.String())
}

func TestStreamParallelQueueBackpressure(t *testing.T) {
	cfg := config.DefaultConfig().Streaming
	cfg.AdaptiveEnabled = false
	cfg.MaxConcurrentChunks = 2
	cfg.MaxQueueSize = 1
	cfg.ChunkSize = 60

	var mu sync.Mutex
	inFlight, peak := 0, 0
	translate := func(_ context.Context, chunk string) (string, error) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return chunk, nil
	}

	p := New(cfg, translate, nil, telemetry.NoopRecorder{})
	input := testInput(30)

	results, err := p.Stream(context.Background(), input)
	require.NoError(t, err)

	var rebuilt strings.Builder
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		rebuilt.WriteString(r.Code)
	}
	assert.Equal(t, input, rebuilt.String())
	assert.LessOrEqual(t, peak, 2, "worker limit bounds concurrent translations")
}

func TestStreamParallelCancelWithFullQueue(t *testing.T) {
	cfg := config.DefaultConfig().Streaming
	cfg.AdaptiveEnabled = false
	cfg.MaxConcurrentChunks = 2
	cfg.MaxQueueSize = 1
	cfg.ChunkSize = 60

	// Every worker stalls, so the queue fills and the feeder blocks.
	// Cancellation must still end the stream promptly.
	translate := func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := New(cfg, translate, nil, telemetry.NoopRecorder{})

	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		_, err = p.Stream(ctx, testInput(40))
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after cancellation with a full queue")
	}
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamAdaptiveCoversWholeInput(t *testing.T) {
	cfg := config.DefaultConfig().Streaming
	cfg.AdaptiveEnabled = true
	cfg.MinSize = 40
	cfg.MaxSize = 400
	cfg.InitialSize = 80

	disp := events.NewDispatcher()
	var mu sync.Mutex
	var decisions []string
	disp.Subscribe(events.StreamDecision, func(ev events.Event) {
		mu.Lock()
		decisions = append(decisions, ev.Data["decision"].(string))
		mu.Unlock()
	})

	p := New(cfg, echoTranslate, disp, telemetry.NoopRecorder{})
	input := testInput(50)

	results, err := p.Stream(context.Background(), input)
	require.NoError(t, err)

	var rebuilt strings.Builder
	for _, r := range results {
		rebuilt.WriteString(r.Source)
	}
	assert.Equal(t, input, rebuilt.String())

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, decisions, len(results), "every chunk reports a sizing decision")
}

func TestChunkErrorDoesNotAbortStream(t *testing.T) {
	cfg := config.DefaultConfig().Streaming
	cfg.AdaptiveEnabled = false
	cfg.MaxConcurrentChunks = 1
	cfg.ChunkSize = 60

	boom := errors.New("backend unavailable")
	var calls int
	translate := func(_ context.Context, chunk string) (string, error) {
		calls++
		if calls == 2 {
			return "", boom
		}
		return chunk, nil
	}

	p := New(cfg, translate, nil, telemetry.NoopRecorder{})
	results, err := p.Stream(context.Background(), testInput(20))
	require.NoError(t, err, "chunk failures are per-chunk, not stream-fatal")

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			assert.ErrorIs(t, r.Err, boom)
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, p.Progress().FailedChunks)
}

func TestStreamCancelled(t *testing.T) {
	cfg := config.DefaultConfig().Streaming
	cfg.AdaptiveEnabled = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(cfg, echoTranslate, nil, telemetry.NoopRecorder{})
	_, err := p.Stream(ctx, testInput(10))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestShouldStreamThreshold(t *testing.T) {
	cfg := config.DefaultConfig().Streaming
	cfg.MinFileSizeForStream = 100

	p := New(cfg, echoTranslate, nil, telemetry.NoopRecorder{})
	assert.False(t, p.ShouldStream(strings.Repeat("a", 99)))
	assert.True(t, p.ShouldStream(strings.Repeat("a", 100)))
}

func TestProgressCallback(t *testing.T) {
	cfg := config.DefaultConfig().Streaming
	cfg.AdaptiveEnabled = false
	cfg.MaxConcurrentChunks = 1
	cfg.ChunkSize = 60

	p := New(cfg, echoTranslate, nil, telemetry.NoopRecorder{})
	var last Progress
	p.OnProgress(func(pr Progress) { last = pr })

	input := testInput(20)
	results, err := p.Stream(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, len(results), last.ProcessedChunks)
	assert.Equal(t, len(input), last.BytesProcessed)
	assert.InDelta(t, 100.0, last.Percentage(), 0.01)
}
