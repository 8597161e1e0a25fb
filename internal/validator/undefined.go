package validator

import (
	"fmt"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"

	"pseudoflow/internal/syntax"
)

// checkUndefinedNames reports identifiers read before any binding is visible
// in the lexical scope chain. Bindings are collected per scope before loads
// are checked, so use-before-def within one scope is deliberately not
// flagged (Python resolves names at call time, not line order).
func checkUndefinedNames(tree *syntax.Tree) []string {
	root := tree.Root()

	if hasStarImport(root) {
		return []string{"Star import prevents reliable undefined-name checking"}
	}

	c := &undefChecker{tree: tree, seen: make(map[string]bool)}
	c.analyzeScope(root, newScope(nil))

	sort.Slice(c.findings, func(i, j int) bool {
		a, b := c.findings[i], c.findings[j]
		if a.line != b.line {
			return a.line < b.line
		}
		return a.name < b.name
	})

	out := make([]string, 0, len(c.findings))
	for _, f := range c.findings {
		if f.suggestion != "" {
			out = append(out, fmt.Sprintf(
				"Undefined variable '%s' at line %d, col %d. Did you mean '%s'?",
				f.name, f.line, f.col, f.suggestion))
		} else {
			out = append(out, fmt.Sprintf(
				"Undefined variable '%s' at line %d, col %d",
				f.name, f.line, f.col))
		}
	}
	return out
}

func hasStarImport(root *sitter.Node) bool {
	found := false
	syntax.Walk(root, func(n *sitter.Node) bool {
		if n.Type() == "wildcard_import" {
			found = true
		}
		return !found
	})
	return found
}

type undefFinding struct {
	name       string
	line, col  int
	suggestion string
}

type scope struct {
	parent *scope
	names  map[string]bool
}

func newScope(parent *scope) *scope {
	return &scope{parent: parent, names: make(map[string]bool)}
}

func (s *scope) bind(name string) {
	if name != "" {
		s.names[name] = true
	}
}

func (s *scope) resolves(name string) bool {
	for sc := s; sc != nil; sc = sc.parent {
		if sc.names[name] {
			return true
		}
	}
	return false
}

// visible returns every name reachable through the scope chain, for
// suggestion matching.
func (s *scope) visible() []string {
	var out []string
	for sc := s; sc != nil; sc = sc.parent {
		for name := range sc.names {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

type undefChecker struct {
	tree     *syntax.Tree
	findings []undefFinding
	seen     map[string]bool // "name:line:col" dedupe
}

// analyzeScope runs both passes over one scope body: collect every binding
// the scope introduces, then check loads against the chain.
func (c *undefChecker) analyzeScope(body *sitter.Node, sc *scope) {
	c.collectBindings(body, sc)
	for _, ch := range syntax.NamedChildren(body) {
		c.checkNode(ch, sc)
	}
}

// collectBindings walks a scope body without descending into nested scopes.
// Nested function and class names bind in the enclosing scope; their bodies
// are analyzed later with their own scope.
func (c *undefChecker) collectBindings(n *sitter.Node, sc *scope) {
	switch n.Type() {
	case "function_definition", "class_definition":
		if name := n.ChildByFieldName("name"); name != nil {
			sc.bind(c.tree.Text(name))
		}
		return
	case "lambda":
		return
	case "assignment", "augmented_assignment":
		if left := n.ChildByFieldName("left"); left != nil {
			c.bindTargets(left, sc)
		}
	case "named_expression":
		if name := n.ChildByFieldName("name"); name != nil {
			sc.bind(c.tree.Text(name))
		}
	case "for_statement", "for_in_clause":
		if left := n.ChildByFieldName("left"); left != nil {
			c.bindTargets(left, sc)
		}
	case "as_pattern":
		// "expr as alias": the alias is the binding.
		if count := int(n.NamedChildCount()); count >= 2 {
			c.bindTargets(n.NamedChild(count-1), sc)
		}
	case "import_statement":
		for _, ch := range syntax.NamedChildren(n) {
			c.bindImport(ch, sc)
		}
		return
	case "import_from_statement":
		module := n.ChildByFieldName("module_name")
		for _, ch := range syntax.NamedChildren(n) {
			if module != nil && ch.Equal(module) {
				continue
			}
			c.bindImport(ch, sc)
		}
		return
	case "global_statement", "nonlocal_statement":
		// Declared names are writable here; treat them as bound.
		for _, ch := range syntax.NamedChildren(n) {
			if ch.Type() == "identifier" {
				sc.bind(c.tree.Text(ch))
			}
		}
		return
	}
	for _, ch := range syntax.NamedChildren(n) {
		c.collectBindings(ch, sc)
	}
}

// bindTargets binds every plain name inside an assignment target. Subscript
// and attribute targets mutate existing objects and bind nothing.
func (c *undefChecker) bindTargets(n *sitter.Node, sc *scope) {
	switch n.Type() {
	case "identifier", "as_pattern_target":
		sc.bind(c.tree.Text(n))
	case "subscript", "attribute":
		return
	default:
		for _, ch := range syntax.NamedChildren(n) {
			c.bindTargets(ch, sc)
		}
	}
}

func (c *undefChecker) bindImport(n *sitter.Node, sc *scope) {
	switch n.Type() {
	case "dotted_name":
		// "import a.b.c" binds a.
		if n.NamedChildCount() > 0 {
			sc.bind(c.tree.Text(n.NamedChild(0)))
		}
	case "aliased_import":
		if alias := n.ChildByFieldName("alias"); alias != nil {
			sc.bind(c.tree.Text(alias))
		}
	case "identifier":
		sc.bind(c.tree.Text(n))
	}
}

func (c *undefChecker) bindParams(params *sitter.Node, sc *scope) {
	syntax.Walk(params, func(n *sitter.Node) bool {
		switch n.Type() {
		case "identifier":
			sc.bind(c.tree.Text(n))
			return false
		case "default_parameter", "typed_default_parameter", "typed_parameter":
			// Only the name side binds; the default value and annotation
			// are expressions of the enclosing scope.
			if name := n.ChildByFieldName("name"); name != nil {
				sc.bind(c.tree.Text(name))
			} else if n.NamedChildCount() > 0 {
				c.bindTargets(n.NamedChild(0), sc)
			}
			return false
		}
		return true
	})
}

// checkNode walks statements and expressions resolving identifier loads.
// Store positions and attribute/keyword names are skipped; nested scopes
// recurse through analyzeScope with a child scope.
func (c *undefChecker) checkNode(n *sitter.Node, sc *scope) {
	switch n.Type() {
	case "function_definition", "lambda":
		child := newScope(sc)
		if params := n.ChildByFieldName("parameters"); params != nil {
			c.bindParams(params, child)
		}
		if body := n.ChildByFieldName("body"); body != nil {
			c.collectBindings(body, child)
			c.checkNode(body, child)
		}
		return
	case "class_definition":
		if body := n.ChildByFieldName("body"); body != nil {
			c.analyzeScope(body, newScope(sc))
		}
		return
	case "import_statement", "import_from_statement",
		"global_statement", "nonlocal_statement", "string":
		return
	case "attribute":
		// Only the object side is a load; the attribute name resolves at
		// runtime on the object.
		if obj := n.ChildByFieldName("object"); obj != nil {
			c.checkNode(obj, sc)
		}
		return
	case "keyword_argument":
		if v := n.ChildByFieldName("value"); v != nil {
			c.checkNode(v, sc)
		}
		return
	case "assignment", "augmented_assignment":
		if left := n.ChildByFieldName("left"); left != nil {
			c.checkTarget(left, sc)
		}
		if typ := n.ChildByFieldName("type"); typ != nil {
			c.checkNode(typ, sc)
		}
		if right := n.ChildByFieldName("right"); right != nil {
			c.checkNode(right, sc)
		}
		return
	case "for_statement", "for_in_clause":
		left := n.ChildByFieldName("left")
		if left != nil {
			c.checkTarget(left, sc)
		}
		for _, ch := range syntax.NamedChildren(n) {
			if left != nil && ch.Equal(left) {
				continue
			}
			c.checkNode(ch, sc)
		}
		return
	case "as_pattern":
		// Load the matched expression; the alias is a store.
		if n.NamedChildCount() > 0 {
			c.checkNode(n.NamedChild(0), sc)
		}
		return
	case "identifier":
		c.load(n, sc)
		return
	}
	for _, ch := range syntax.NamedChildren(n) {
		c.checkNode(ch, sc)
	}
}

// checkTarget visits an assignment target: plain names are stores, but the
// container and index of subscript targets and the object of attribute
// targets are ordinary loads.
func (c *undefChecker) checkTarget(n *sitter.Node, sc *scope) {
	switch n.Type() {
	case "identifier":
		return
	case "subscript", "attribute":
		c.checkNode(n, sc)
	default:
		for _, ch := range syntax.NamedChildren(n) {
			c.checkTarget(ch, sc)
		}
	}
}

func (c *undefChecker) load(n *sitter.Node, sc *scope) {
	name := c.tree.Text(n)
	if sc.resolves(name) || builtinNames[name] {
		return
	}

	line := int(n.StartPoint().Row) + 1
	col := int(n.StartPoint().Column) + 1
	key := fmt.Sprintf("%s:%d:%d", name, line, col)
	if c.seen[key] {
		return
	}
	c.seen[key] = true

	c.findings = append(c.findings, undefFinding{
		name:       name,
		line:       line,
		col:        col,
		suggestion: suggestName(name, sc.visible()),
	})
}

// suggestName returns the first visible name within one edit of name, or "".
func suggestName(name string, candidates []string) string {
	for _, cand := range candidates {
		if cand != name && oneEditApart(name, cand) {
			return cand
		}
	}
	return ""
}

// oneEditApart reports whether two names differ by a single substitution,
// insertion, or deletion.
func oneEditApart(a, b string) bool {
	la, lb := len(a), len(b)
	switch {
	case la == lb:
		diffs := 0
		for i := 0; i < la; i++ {
			if a[i] != b[i] {
				diffs++
				if diffs > 1 {
					return false
				}
			}
		}
		return diffs == 1
	case la-lb == 1:
		return oneInsertion(b, a)
	case lb-la == 1:
		return oneInsertion(a, b)
	}
	return false
}

// oneInsertion reports whether long is short with exactly one extra byte.
func oneInsertion(short, long string) bool {
	i, j := 0, 0
	skipped := false
	for i < len(short) && j < len(long) {
		if short[i] == long[j] {
			i++
			j++
			continue
		}
		if skipped {
			return false
		}
		skipped = true
		j++
	}
	return true
}
