// Package assembler combines translated code blocks into one cohesive
// Python script: imports collected and grouped, top-level statements
// bucketed into sections, duplicate definitions merged last-wins, and the
// result normalized to a consistent indentation.
package assembler

import (
	"context"
	"strings"

	"pseudoflow/internal/block"
	"pseudoflow/internal/config"
	"pseudoflow/internal/logging"
	"pseudoflow/internal/syntax"
)

// sectionJoin separates the top-level script sections (two blank lines).
const sectionJoin = "\n\n\n"

// Assembler builds complete scripts from blocks. Safe for reuse across
// calls; not safe for concurrent use (the underlying parser is locked, but
// call state is not).
type Assembler struct {
	analyzer *syntax.Analyzer

	indentSize         int
	maxLineLength      int
	preserveComments   bool
	preserveDocstrings bool
	autoImportCommon   bool
}

// New creates an assembler from configuration.
func New(cfg config.AssemblerConfig) *Assembler {
	return &Assembler{
		analyzer:           syntax.New(),
		indentSize:         cfg.IndentSize,
		maxLineLength:      cfg.MaxLineLength,
		preserveComments:   cfg.PreserveComments,
		preserveDocstrings: cfg.PreserveDocstrings,
		autoImportCommon:   cfg.AutoImportCommon,
	}
}

// parsedBlock pairs a source block with its syntax tree; tree is nil when
// the block failed to parse.
type parsedBlock struct {
	src  block.Block
	tree *syntax.Tree
}

// Assemble runs the full pipeline and returns the script plus any
// warnings (merge notices, structural failures). No code blocks in the
// input is not an error: the result is an empty script.
func (a *Assembler) Assemble(ctx context.Context, blocks []block.Block) (string, []string, error) {
	codeBlocks := filterCodeBlocks(blocks)
	if len(codeBlocks) == 0 {
		logging.AssemblerWarn("no code blocks found in %d input blocks", len(blocks))
		return "", nil, nil
	}
	logging.Assembler("assembling %d code blocks (%d input)", len(codeBlocks), len(blocks))

	parsed := make([]parsedBlock, 0, len(codeBlocks))
	defer func() {
		for _, pb := range parsed {
			if pb.tree != nil {
				pb.tree.Close()
			}
		}
	}()
	for _, b := range codeBlocks {
		parsed = append(parsed, parsedBlock{src: b, tree: a.parseBlock(ctx, b)})
	}

	// Import collection, part of the sections stage.
	if err := ctx.Err(); err != nil {
		return "", nil, newAssemblyError("sections", err,
			"Check code block structure",
			"Ensure valid Python syntax in all blocks")
	}
	imports := newImportSet()
	var trees []*syntax.Tree
	for _, pb := range parsed {
		if pb.tree == nil {
			logging.AssemblerWarn("could not parse imports from block at lines %d-%d",
				pb.src.Lines.Start, pb.src.Lines.End)
			continue
		}
		collectImports(pb.tree, imports)
		trees = append(trees, pb.tree)
	}
	if a.autoImportCommon {
		addCommonImports(trees, imports)
	}
	importSection := renderImports(imports)

	// Section organization.
	if err := ctx.Err(); err != nil {
		return "", nil, newAssemblyError("sections", err,
			"Check code block structure",
			"Ensure valid Python syntax in all blocks")
	}
	sections := a.organizeSections(parsed)
	warnings := append([]string(nil), sections.failures...)

	// Stitching: merge definitions, organize globals, join in fixed order.
	if err := ctx.Err(); err != nil {
		return "", nil, newAssemblyError("stitching", err,
			"Check for naming conflicts",
			"Ensure function/class definitions are valid")
	}
	functions, classes, mergeWarnings := mergeDefinitions(sections.functions, sections.classes)
	warnings = append(warnings, mergeWarnings...)
	for _, w := range mergeWarnings {
		logging.AssemblerWarn("%s", w)
	}

	var final []string
	appendNonEmpty := func(s string) {
		if s != "" {
			final = append(final, s)
		}
	}
	appendNonEmpty(sections.docstring)
	appendNonEmpty(importSection)
	appendNonEmpty(organizeGlobals(sections.globals))
	appendNonEmpty(strings.Join(functions, sectionJoin))
	appendNonEmpty(strings.Join(classes, sectionJoin))
	appendNonEmpty(strings.Join(sections.main, "\n"))
	assembled := strings.Join(final, sectionJoin)

	// Consistency and cleanup.
	if err := ctx.Err(); err != nil {
		return "", nil, newAssemblyError("consistency", err,
			"Check block compatibility",
			"Verify all blocks contain valid Python syntax")
	}
	result := a.finalCleanup(a.ensureConsistency(assembled))
	warnings = append(warnings, a.longLineWarnings(result)...)

	logging.AssemblerDebug("assembly complete: %d bytes, %d warnings",
		len(result), len(warnings))
	return result, warnings, nil
}

// filterCodeBlocks keeps Code and Mixed blocks, the only kinds carrying
// code at assembly time.
func filterCodeBlocks(blocks []block.Block) []block.Block {
	var out []block.Block
	for _, b := range blocks {
		if b.Kind == block.Code || b.Kind == block.Mixed {
			out = append(out, b)
		}
	}
	return out
}

// parseBlock builds a tree for the block's code, nil when the content does
// not parse cleanly.
func (a *Assembler) parseBlock(ctx context.Context, b block.Block) *syntax.Tree {
	tree, err := a.analyzer.Parse(ctx, blockCode(b))
	if err != nil {
		return nil
	}
	if syntax.FirstIssue(tree) != nil {
		tree.Close()
		return nil
	}
	return tree
}

// blockCode returns the code half of a Mixed block when the translator has
// stored one, else the raw content.
func blockCode(b block.Block) string {
	if b.Kind == block.Mixed {
		if code := b.Meta("code"); code != "" {
			return code
		}
	}
	return b.Content
}
