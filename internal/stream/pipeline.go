package stream

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pseudoflow/internal/config"
	"pseudoflow/internal/events"
	"pseudoflow/internal/logging"
	"pseudoflow/internal/telemetry"
)

// TranslateFunc turns one chunk of pseudocode into Python code.
type TranslateFunc func(ctx context.Context, chunk string) (string, error)

// ChunkResult is the outcome of one processed chunk. Results are always
// delivered in source order.
type ChunkResult struct {
	Index      int
	Source     string
	Code       string
	Err        error
	DurationMs float64
}

// Progress is a point-in-time view of a running stream.
type Progress struct {
	TotalChunks     int
	ProcessedChunks int
	FailedChunks    int
	BytesProcessed  int
	TotalBytes      int
}

// Percentage returns completion in [0, 100] based on bytes.
func (p Progress) Percentage() float64 {
	if p.TotalBytes == 0 {
		return 0
	}
	return float64(p.BytesProcessed) / float64(p.TotalBytes) * 100
}

// Pipeline streams a large input through translation chunk by chunk. With
// adaptive sizing enabled, chunks are processed sequentially and the sizer
// picks each next size from observed latency; otherwise fixed-size chunks
// may be processed in parallel, bounded by max_concurrent_chunks with at
// most max_queue_size chunks queued ahead of the workers.
type Pipeline struct {
	cfg       config.StreamingConfig
	translate TranslateFunc
	disp      *events.Dispatcher
	rec       telemetry.Recorder

	mu         sync.Mutex
	progress   Progress
	onProgress func(Progress)
}

// New creates a pipeline. disp may be nil; rec nil uses the process-wide
// recorder.
func New(cfg config.StreamingConfig, translate TranslateFunc, disp *events.Dispatcher, rec telemetry.Recorder) *Pipeline {
	if rec == nil {
		rec = telemetry.Get()
	}
	return &Pipeline{cfg: cfg, translate: translate, disp: disp, rec: rec}
}

// OnProgress registers a callback invoked after every processed chunk.
func (p *Pipeline) OnProgress(fn func(Progress)) {
	p.mu.Lock()
	p.onProgress = fn
	p.mu.Unlock()
}

// ShouldStream reports whether the input is large enough to stream.
func (p *Pipeline) ShouldStream(input string) bool {
	return p.cfg.Enabled && len(input) >= p.cfg.MinFileSizeForStream
}

// Progress returns a copy of the current progress.
func (p *Pipeline) Progress() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

// Stream processes the whole input and returns per-chunk results in source
// order. Chunk-level translation failures are carried in the results;
// only context cancellation aborts the stream.
func (p *Pipeline) Stream(ctx context.Context, input string) ([]ChunkResult, error) {
	p.mu.Lock()
	p.progress = Progress{TotalBytes: len(input)}
	p.mu.Unlock()

	stop := telemetry.TimedSection(p.rec, "stream.total")
	defer stop()
	defer func() {
		p.disp.Dispatch(events.StreamCompleted, "pipeline", map[string]interface{}{
			"chunks": p.Progress().ProcessedChunks,
		})
	}()

	if p.cfg.AdaptiveEnabled {
		return p.streamAdaptive(ctx, input)
	}

	chunks := splitChunks(input, p.cfg.ChunkSize)
	p.mu.Lock()
	p.progress.TotalChunks = len(chunks)
	p.mu.Unlock()

	if p.cfg.MaxConcurrentChunks > 1 {
		return p.streamParallel(ctx, chunks)
	}
	return p.streamSequential(ctx, chunks)
}

// streamAdaptive walks the input with sizes chosen by the feedback
// controller. Sequential on purpose: the controller's latency signal is
// meaningless when chunks overlap.
func (p *Pipeline) streamAdaptive(ctx context.Context, input string) ([]ChunkResult, error) {
	sizer := NewAdaptiveChunkSizer(p.cfg)
	var results []ChunkResult

	pos, idx := 0, 0
	for pos < len(input) {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		desired := sizer.GetNextChunkSize(p.cfg.ChunkSize)
		if desired < 1 {
			desired = 1
		}
		end := chunkEnd(input, pos, desired)
		chunk := input[pos:end]

		res := p.processChunk(ctx, idx, chunk)
		results = append(results, res)

		decision := sizer.UpdateFeedback(len(chunk), res.DurationMs, 0, 0)
		p.disp.Dispatch(events.StreamDecision, "pipeline", map[string]interface{}{
			"decision": string(decision),
			"size":     sizer.CurrentSize(),
			"ema_ms":   sizer.EMA(),
		})

		pos = end
		idx++
	}
	return results, nil
}

func (p *Pipeline) streamSequential(ctx context.Context, chunks []string) ([]ChunkResult, error) {
	var results []ChunkResult
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, p.processChunk(ctx, i, chunk))
	}
	return results, nil
}

// streamParallel fans fixed-size chunks across a bounded worker group fed
// through a queue of at most max_queue_size pending chunks, so a slow
// worker applies backpressure instead of letting the whole input pile up.
// Results land in an index-addressed slice, so output order is source
// order regardless of completion order.
func (p *Pipeline) streamParallel(ctx context.Context, chunks []string) ([]ChunkResult, error) {
	results := make([]ChunkResult, len(chunks))

	depth := p.cfg.MaxQueueSize
	if depth < 1 {
		depth = len(chunks)
	}
	type job struct {
		idx   int
		chunk string
	}
	jobs := make(chan job, depth)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < p.cfg.MaxConcurrentChunks; w++ {
		g.Go(func() error {
			for j := range jobs {
				if err := gctx.Err(); err != nil {
					return err
				}
				results[j.idx] = p.processChunk(gctx, j.idx, j.chunk)
			}
			return nil
		})
	}

	// Feeding inside the group keeps a full queue from wedging shutdown:
	// cancellation unblocks the send.
	g.Go(func() error {
		defer close(jobs)
		for i, chunk := range chunks {
			select {
			case jobs <- job{idx: i, chunk: chunk}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Pipeline) processChunk(ctx context.Context, idx int, chunk string) ChunkResult {
	start := time.Now()
	code, err := p.translate(ctx, chunk)
	durMs := float64(time.Since(start)) / float64(time.Millisecond)

	p.disp.Dispatch(events.StreamChunk, "pipeline", map[string]interface{}{
		"chunk_index": idx + 1,
		"size":        len(chunk),
		"duration_ms": durMs,
	})
	p.rec.RecordEvent("stream.chunk_ms", durMs, nil)
	if err != nil {
		logging.StreamDebug("chunk %d failed: %v", idx+1, err)
	}

	p.mu.Lock()
	p.progress.ProcessedChunks++
	p.progress.BytesProcessed += len(chunk)
	if err != nil {
		p.progress.FailedChunks++
	}
	snapshot := p.progress
	fn := p.onProgress
	p.mu.Unlock()

	p.disp.Dispatch(events.StreamChunkProcessed, "pipeline", map[string]interface{}{
		"processed": snapshot.ProcessedChunks,
		"failed":    snapshot.FailedChunks,
		"total":     snapshot.TotalChunks,
	})
	if fn != nil {
		fn(snapshot)
	}

	return ChunkResult{Index: idx, Source: chunk, Code: code, Err: err, DurationMs: durMs}
}

// chunkEnd extends a desired chunk boundary to the next line break so a
// line is never split across chunks. The extension is capped at twice the
// desired size.
func chunkEnd(input string, pos, desired int) int {
	end := pos + desired
	if end >= len(input) {
		return len(input)
	}
	limit := pos + 2*desired
	if limit > len(input) {
		limit = len(input)
	}
	if nl := strings.IndexByte(input[end:limit], '\n'); nl >= 0 {
		return end + nl + 1
	}
	return limit
}

// splitChunks cuts the input into fixed-size, line-aligned chunks.
func splitChunks(input string, size int) []string {
	if size < 1 {
		size = 1
	}
	var chunks []string
	pos := 0
	for pos < len(input) {
		end := chunkEnd(input, pos, size)
		chunks = append(chunks, input[pos:end])
		pos = end
	}
	return chunks
}
