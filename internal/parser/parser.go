// Package parser splits mixed natural-language/code input into typed
// blocks. Classification is line-based: each line is scored as code-like or
// prose, adjacent lines of the same kind merge into one block, and a block
// never spans a change of kind.
package parser

import (
	"context"
	"strings"

	"pseudoflow/internal/block"
	"pseudoflow/internal/logging"
	"pseudoflow/internal/syntax"
)

// Parser identifies blocks in raw pseudocode. The embedded analyzer is used
// for a sanity parse of spans classified as code.
type Parser struct {
	analyzer *syntax.Analyzer
}

// New creates a parser.
func New() *Parser {
	return &Parser{analyzer: syntax.New()}
}

// Parse splits text into typed blocks. When a span classified as code fails
// the sanity parse, the outcome carries a ParseError with the exact
// location; callers that can treat the span as opaque code should use
// ParseLenient instead.
func (p *Parser) Parse(text string) block.Outcome {
	return p.parse(text, true)
}

// ParseLenient is Parse without the code sanity check: ill-formed code
// spans stay Code blocks and are handed downstream as-is.
func (p *Parser) ParseLenient(text string) block.Outcome {
	return p.parse(text, false)
}

func (p *Parser) parse(text string, sanity bool) block.Outcome {
	lines := strings.Split(text, "\n")
	blocks := p.identifyBlocks(lines)
	logging.ParserDebug("identified %d blocks from %d lines", len(blocks), len(lines))

	if sanity {
		if perr := p.sanityCheck(blocks); perr != nil {
			return block.Outcome{Err: perr}
		}
	}
	return block.Outcome{Blocks: blocks}
}

// sanityCheck parses each Code block and reports the first syntax failure
// with input-relative line numbers.
func (p *Parser) sanityCheck(blocks []block.Block) *block.ParseError {
	for _, b := range blocks {
		if b.Kind != block.Code {
			continue
		}
		iss, err := p.analyzer.Check(context.Background(), b.Content)
		if err != nil {
			return &block.ParseError{
				Line: b.Lines.Start, Column: 1,
				Reason: err.Error(), Span: b.Content,
			}
		}
		if iss != nil {
			return &block.ParseError{
				Line:   b.Lines.Start + iss.Line - 1,
				Column: iss.Column,
				Reason: iss.Message,
				Span:   b.Content,
			}
		}
	}
	return nil
}

// identifyBlocks walks lines, classifying each and merging runs of the same
// kind. Blank lines continue the current block; leading blanks are dropped.
func (p *Parser) identifyBlocks(lines []string) []block.Block {
	var blocks []block.Block
	var current []string
	var currentKind block.Kind
	start := 0 // 1-based start line of the open block; 0 when none open

	flush := func(endLine int) {
		if start == 0 {
			return
		}
		content := strings.TrimRight(strings.Join(current, "\n"), "\n")
		blocks = append(blocks, block.Block{
			Kind:    currentKind,
			Content: content,
			Lines:   block.LineRange{Start: start, End: endLine},
		})
		current = nil
		start = 0
	}

	for i, line := range lines {
		lineno := i + 1
		if strings.TrimSpace(line) == "" {
			if start != 0 {
				current = append(current, line)
			}
			continue
		}

		kind, meta := classifyLine(line)

		// Mixed lines stand alone: the instruction half is replaced by
		// translation, so they never merge with neighbors.
		if kind == block.Mixed {
			flush(lineno - 1)
			blocks = append(blocks, block.Block{
				Kind:     block.Mixed,
				Content:  line,
				Lines:    block.LineRange{Start: lineno, End: lineno},
				Metadata: meta,
			})
			continue
		}

		if start != 0 && kind != currentKind {
			flush(lineno - 1)
		}
		if start == 0 {
			start = lineno
			currentKind = kind
		}
		current = append(current, line)
	}
	flush(len(lines))

	// Trailing blank lines inside the last block are noise.
	for i := range blocks {
		blocks[i].Content = strings.TrimRight(blocks[i].Content, "\n ")
	}
	return blocks
}
