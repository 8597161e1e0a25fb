// Package translator orchestrates the whole pipeline: parse pseudocode
// into blocks, translate the natural-language ones through a model
// backend, assemble the result into one script, and validate it. Large
// inputs go through the streaming pipeline; parse and validate calls may
// be offloaded to the execution pool with transparent in-process fallback.
package translator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pseudoflow/internal/assembler"
	"pseudoflow/internal/block"
	"pseudoflow/internal/config"
	"pseudoflow/internal/events"
	"pseudoflow/internal/exec"
	"pseudoflow/internal/logging"
	"pseudoflow/internal/model"
	"pseudoflow/internal/parser"
	"pseudoflow/internal/stream"
	"pseudoflow/internal/telemetry"
	"pseudoflow/internal/validator"
)

// Result is the outward-facing outcome of one translation session.
type Result struct {
	Success       bool
	Code          string
	Errors        []string
	Warnings      []string
	TranslationID string
	DurationMs    float64
	Blocks        int
}

// Translator owns one configured pipeline. Safe to reuse across calls.
type Translator struct {
	cfg       *config.Config
	backend   model.Backend
	parser    *parser.Parser
	validator *validator.Validator
	assembler *assembler.Assembler
	executor  *exec.Executor
	disp      *events.Dispatcher
	rec       telemetry.Recorder
}

// Option adjusts a Translator at construction.
type Option func(*Translator)

// WithBackend replaces the configured model backend.
func WithBackend(b model.Backend) Option {
	return func(t *Translator) { t.backend = b }
}

// WithDispatcher attaches an event dispatcher.
func WithDispatcher(d *events.Dispatcher) Option {
	return func(t *Translator) { t.disp = d }
}

// New builds a translator from configuration. The backend comes from the
// process-wide registry unless an option overrides it.
func New(cfg *config.Config, opts ...Option) (*Translator, error) {
	t := &Translator{
		cfg:       cfg,
		parser:    parser.New(),
		validator: validator.New(cfg.Validator),
		assembler: assembler.New(cfg.Assembler),
		rec:       telemetry.Get(),
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.backend == nil {
		backend, err := model.Default().Create(cfg.LLM.Provider, cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("creating backend: %w", err)
		}
		t.backend = backend
	}
	t.executor = exec.New(cfg.Execution, t.rec, t.disp)
	return t, nil
}

// Shutdown releases the worker pool. Idempotent.
func (t *Translator) Shutdown() {
	t.executor.Shutdown()
}

// Translate runs the whole pipeline on input and never panics outward:
// every failure lands in the result's diagnostics.
func (t *Translator) Translate(ctx context.Context, input string) *Result {
	id := uuid.NewString()
	start := time.Now()
	res := &Result{TranslationID: id}

	t.disp.Dispatch(events.TranslationStarted, "translator", map[string]interface{}{
		"translation_id": id,
		"size_chars":     len(input),
	})
	logging.Translator("translation %s started (%d chars)", id, len(input))
	stop := telemetry.TimedSection(t.rec, "translate.total_ms")
	defer stop()

	var blocks []block.Block
	if t.shouldStream(input) {
		blocks = t.streamBlocks(ctx, input, id, res)
	} else {
		translated, warnings := t.translateBlocks(ctx, t.parseBlocks(ctx, input), id)
		blocks = translated
		res.Warnings = append(res.Warnings, warnings...)
	}
	res.Blocks = len(blocks)

	code, warnings, err := t.assembler.Assemble(ctx, blocks)
	res.Warnings = append(res.Warnings, warnings...)
	if err != nil {
		var aerr *assembler.AssemblyError
		if errors.As(err, &aerr) {
			res.Errors = append(res.Errors,
				fmt.Sprintf("Assembly failed at stage '%s': %v", aerr.Stage, aerr.Cause))
			res.Warnings = append(res.Warnings, aerr.Suggestions...)
		} else {
			res.Errors = append(res.Errors, err.Error())
		}
		return t.finish(res, id, start)
	}
	res.Code = code

	if code != "" {
		vres := t.validateScript(ctx, code)
		res.Errors = append(res.Errors, vres.Errors...)
		res.Warnings = append(res.Warnings, vres.Warnings...)
	}
	return t.finish(res, id, start)
}

func (t *Translator) finish(res *Result, id string, start time.Time) *Result {
	res.Success = len(res.Errors) == 0
	res.DurationMs = float64(time.Since(start)) / float64(time.Millisecond)

	if res.Success {
		t.disp.Dispatch(events.TranslationCompleted, "translator", map[string]interface{}{
			"translation_id": id,
			"duration_ms":    res.DurationMs,
			"warnings":       len(res.Warnings),
		})
		logging.Translator("translation %s completed in %.1fms", id, res.DurationMs)
	} else {
		t.disp.Dispatch(events.TranslationFailed, "translator", map[string]interface{}{
			"translation_id": id,
			"errors":         len(res.Errors),
		})
		logging.TranslatorError("translation %s failed: %s", id, strings.Join(res.Errors, "; "))
	}
	return res
}

func (t *Translator) shouldStream(input string) bool {
	return t.cfg.Streaming.Enabled && len(input) >= t.cfg.Streaming.MinFileSizeForStream
}

// parseBlocks identifies blocks, preferring the worker pool and falling
// back to in-process parsing on any pool condition.
func (t *Translator) parseBlocks(ctx context.Context, input string) []block.Block {
	handle := t.executor.SubmitParse(input)
	taskRes, err := handle.Result(0)
	if err == nil && taskRes != nil && taskRes.Parse.OK() {
		return taskRes.Parse.Blocks
	}
	if err != nil {
		var fb *exec.FallbackError
		if !errors.As(err, &fb) {
			logging.TranslatorError("pool parse failed: %v", err)
		}
	}
	// Opaque in-process path: ill-formed code spans stay blocks.
	return t.parser.ParseLenient(input).Blocks
}

// validateScript validates the assembled script, offloading the syntax
// phase when the pool will take it.
func (t *Translator) validateScript(ctx context.Context, code string) *validator.Result {
	handle := t.executor.SubmitValidate(code)
	taskRes, err := handle.Result(0)
	if err == nil && taskRes != nil && taskRes.Validation != nil {
		syntax := taskRes.Validation
		if !syntax.IsValid {
			return syntax
		}
		syntax.Merge(t.validator.ValidateLogic(ctx, code))
		return syntax
	}
	return t.validator.Validate(ctx, code)
}

// translateBlocks replaces natural-language content with generated code,
// carrying a window of already-produced code as context. Code and comment
// blocks pass through untouched.
func (t *Translator) translateBlocks(ctx context.Context, blocks []block.Block, id string) ([]block.Block, []string) {
	var out []block.Block
	var warnings []string
	var prior strings.Builder

	appendCode := func(code string) {
		if prior.Len() > 0 {
			prior.WriteString("\n")
		}
		prior.WriteString(code)
	}

	for i, b := range blocks {
		switch b.Kind {
		case block.Code:
			out = append(out, b)
			appendCode(b.Content)

		case block.Comment:
			if t.cfg.Assembler.PreserveComments {
				out = append(out, block.Block{
					Kind: block.Code, Content: b.Content, Lines: b.Lines,
				})
			}

		case block.NaturalLanguage:
			code, ok := t.translateInstruction(ctx, b.Content, id, t.priorWindow(prior.String()))
			if !ok {
				warnings = append(warnings, fmt.Sprintf("Block %d could not be translated", i+1))
				code = fmt.Sprintf("# Block %d: Translation failed", i+1)
			}
			out = append(out, block.Block{Kind: block.Code, Content: code, Lines: b.Lines})
			appendCode(code)

		case block.Mixed:
			instruction := b.Meta("instruction")
			codePart := b.Meta("code")
			code, ok := t.translateInstruction(ctx, instruction, id, t.priorWindow(prior.String()))
			if !ok {
				warnings = append(warnings, fmt.Sprintf("Block %d could not be translated", i+1))
				code = "# " + instruction
			}
			content := code
			if codePart != "" {
				content = code + "\n" + codePart
			}
			out = append(out, block.Block{Kind: block.Code, Content: content, Lines: b.Lines})
			appendCode(content)
		}
	}
	return out, warnings
}

func (t *Translator) translateInstruction(ctx context.Context, instruction, id, prior string) (string, bool) {
	res, err := t.backend.Translate(ctx, instruction, t.cfg.LLM, model.TranslationContext{
		TranslationID: id,
		PriorCode:     prior,
	})
	if err != nil {
		logging.TranslatorError("backend %s: %v", t.backend.Name(), err)
		return "", false
	}
	if !res.Success || strings.TrimSpace(res.Code) == "" {
		return "", false
	}
	return res.Code, true
}

// priorWindow truncates accumulated code to the configured context window,
// keeping the tail (the most recent code is the most relevant).
func (t *Translator) priorWindow(code string) string {
	window := t.cfg.Streaming.ContextWindowSize
	if window <= 0 || len(code) <= window {
		return code
	}
	return code[len(code)-window:]
}

// streamBlocks runs the chunked path: each chunk is parsed and translated
// independently, and the translated chunk code comes back as blocks for
// one final assembly.
func (t *Translator) streamBlocks(ctx context.Context, input, id string, res *Result) []block.Block {
	// Chunks may be translated concurrently on the fixed-size path.
	var mu sync.Mutex
	var chunkWarnings []string
	translate := func(cctx context.Context, chunk string) (string, error) {
		blocks, warnings := t.translateBlocks(cctx, t.parser.ParseLenient(chunk).Blocks, id)
		mu.Lock()
		chunkWarnings = append(chunkWarnings, warnings...)
		mu.Unlock()
		var parts []string
		for _, b := range blocks {
			parts = append(parts, b.Content)
		}
		return strings.Join(parts, "\n"), nil
	}

	pipe := stream.New(t.cfg.Streaming, translate, t.disp, t.rec)
	chunkResults, err := pipe.Stream(ctx, input)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("streaming aborted: %v", err))
	}
	res.Warnings = append(res.Warnings, chunkWarnings...)

	var blocks []block.Block
	line := 1
	for _, cr := range chunkResults {
		if cr.Err != nil {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("Chunk %d failed: %v", cr.Index+1, cr.Err))
			continue
		}
		n := strings.Count(cr.Source, "\n")
		blocks = append(blocks, block.Block{
			Kind:    block.Code,
			Content: cr.Code,
			Lines:   block.LineRange{Start: line, End: line + n},
		})
		line += n
	}
	return blocks
}
