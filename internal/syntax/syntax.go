// Package syntax wraps tree-sitter's Python grammar behind the small surface
// the validator and assembler need: parse a candidate code string, walk the
// tree, and locate the first syntax error with its line and column.
package syntax

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Analyzer owns a tree-sitter parser instance. A parser is not safe for
// concurrent use, so all parsing goes through the analyzer's lock.
type Analyzer struct {
	mu       sync.Mutex
	parser   *sitter.Parser
	verdicts *verdictCache
}

// New creates an analyzer with the Python grammar loaded.
func New() *Analyzer {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &Analyzer{
		parser:   p,
		verdicts: newVerdictCache(defaultVerdictEntries),
	}
}

// Tree is a parsed syntax tree plus the source it was parsed from.
// Callers must Close it to release the underlying tree-sitter resources.
type Tree struct {
	inner *sitter.Tree
	src   []byte
}

// Root returns the module node.
func (t *Tree) Root() *sitter.Node { return t.inner.RootNode() }

// Text returns the source text covered by a node.
func (t *Tree) Text(n *sitter.Node) string {
	return string(t.src[n.StartByte():n.EndByte()])
}

// Source returns the full source the tree was parsed from.
func (t *Tree) Source() []byte { return t.src }

// Close releases the tree.
func (t *Tree) Close() { t.inner.Close() }

// Parse builds a syntax tree for code. Tree-sitter always produces a tree;
// syntax errors surface as ERROR/MISSING nodes, which Check and FirstIssue
// report. The caller owns the returned tree.
func (a *Analyzer) Parse(ctx context.Context, code string) (*Tree, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	src := []byte(code)
	t, err := a.parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	return &Tree{inner: t, src: src}, nil
}

// Issue describes the first syntax error found in a tree. Line and Column
// are 1-based.
type Issue struct {
	Line    int
	Column  int
	Message string
}

func (i *Issue) String() string {
	return fmt.Sprintf("line %d, col %d: %s", i.Line, i.Column, i.Message)
}

// Check parses code and returns the first syntax issue, or nil when the
// code is well formed. Verdicts are cached by content so validating the
// same string twice does not re-parse it.
func (a *Analyzer) Check(ctx context.Context, code string) (*Issue, error) {
	if iss, ok := a.verdicts.get(code); ok {
		return iss, nil
	}

	tree, err := a.Parse(ctx, code)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	iss := FirstIssue(tree)
	a.verdicts.put(code, iss)
	return iss, nil
}

// FirstIssue walks the tree in document order and returns the first
// ERROR or MISSING node as an Issue, or nil for a clean tree.
func FirstIssue(t *Tree) *Issue {
	root := t.Root()
	if !root.HasError() {
		return nil
	}
	n := firstErrorNode(root)
	if n == nil {
		// HasError with no locatable node; report at the root.
		return &Issue{Line: 1, Column: 1, Message: "invalid syntax"}
	}

	iss := &Issue{
		Line:   int(n.StartPoint().Row) + 1,
		Column: int(n.StartPoint().Column) + 1,
	}
	if n.IsMissing() {
		iss.Message = fmt.Sprintf("missing %s", n.Type())
		return iss
	}
	snippet := strings.TrimSpace(t.Text(n))
	if len(snippet) > 40 {
		snippet = snippet[:40] + "..."
	}
	if snippet == "" {
		iss.Message = "invalid syntax"
	} else {
		iss.Message = fmt.Sprintf("invalid syntax near %q", snippet)
	}
	return iss
}

// firstErrorNode does a depth-first scan over all children (error nodes can
// hide inside otherwise healthy subtrees).
func firstErrorNode(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := firstErrorNode(n.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

// NamedChildren returns the named children of a node in order.
func NamedChildren(n *sitter.Node) []*sitter.Node {
	count := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, n.NamedChild(i))
	}
	return out
}

// Walk visits n and every named descendant in document order; returning
// false from fn prunes descent into that subtree.
func Walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if !fn(n) {
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		Walk(n.NamedChild(i), fn)
	}
}
