package validator

import (
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"pseudoflow/internal/syntax"
)

// checkUnreachableCode walks every statement block and reports each
// non-pass statement following an unconditional return in the same block,
// one finding per line.
func checkUnreachableCode(tree *syntax.Tree) []string {
	var out []string
	syntax.Walk(tree.Root(), func(n *sitter.Node) bool {
		if n.Type() != "block" && n.Type() != "module" {
			return true
		}
		returned := false
		for _, stmt := range syntax.NamedChildren(n) {
			if returned {
				if stmt.Type() == "pass_statement" || stmt.Type() == "comment" {
					continue
				}
				out = append(out, fmt.Sprintf(
					"Unreachable code after return at line %d",
					int(stmt.StartPoint().Row)+1))
				continue
			}
			if stmt.Type() == "return_statement" {
				returned = true
			}
		}
		return true
	})
	return out
}

// checkUnusedVariables reports names assigned inside a function but never
// read afterwards. The discard identifier "_" is conventional and skipped.
func checkUnusedVariables(tree *syntax.Tree) []string {
	var out []string
	syntax.Walk(tree.Root(), func(n *sitter.Node) bool {
		if n.Type() != "function_definition" {
			return true
		}
		body := n.ChildByFieldName("body")
		if body == nil {
			return true
		}
		for _, name := range unusedInFunction(tree, body) {
			out = append(out, "Unused variable: "+name)
		}
		return true
	})
	return out
}

// unusedInFunction collects assignment targets and identifier reads in one
// function body, excluding nested function bodies, and returns the assigned
// names never read, sorted.
func unusedInFunction(tree *syntax.Tree, body *sitter.Node) []string {
	assigned := make(map[string]bool)
	read := make(map[string]bool)

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch n.Type() {
		case "function_definition", "lambda", "class_definition":
			// Nested scopes may read outer locals; count their identifier
			// uses as reads but not their targets as ours.
			syntax.Walk(n, func(inner *sitter.Node) bool {
				if inner.Type() == "identifier" {
					read[tree.Text(inner)] = true
				}
				return true
			})
			return
		case "assignment":
			if left := n.ChildByFieldName("left"); left != nil {
				collectTargetNames(tree, left, assigned)
				if left.Type() != "identifier" {
					// Subscript/attribute targets read their base.
					walkReads(tree, left, read)
				}
			}
			if right := n.ChildByFieldName("right"); right != nil {
				walk(right)
			}
			return
		case "augmented_assignment":
			// "x += 1" both reads and writes x.
			syntax.Walk(n, func(inner *sitter.Node) bool {
				if inner.Type() == "identifier" {
					read[tree.Text(inner)] = true
				}
				return true
			})
			return
		case "identifier":
			read[tree.Text(n)] = true
			return
		}
		for _, ch := range syntax.NamedChildren(n) {
			walk(ch)
		}
	}
	walk(body)

	var unused []string
	for name := range assigned {
		if name == "_" || read[name] {
			continue
		}
		unused = append(unused, name)
	}
	sort.Strings(unused)
	return unused
}

func collectTargetNames(tree *syntax.Tree, n *sitter.Node, into map[string]bool) {
	switch n.Type() {
	case "identifier":
		into[tree.Text(n)] = true
	case "subscript", "attribute":
		return
	default:
		for _, ch := range syntax.NamedChildren(n) {
			collectTargetNames(tree, ch, into)
		}
	}
}

func walkReads(tree *syntax.Tree, n *sitter.Node, into map[string]bool) {
	syntax.Walk(n, func(inner *sitter.Node) bool {
		if inner.Type() == "identifier" {
			into[tree.Text(inner)] = true
		}
		return true
	})
}

// checkInfiniteLoops flags "while True"-style loops containing no break in
// their subtree.
func checkInfiniteLoops(tree *syntax.Tree) []string {
	var out []string
	syntax.Walk(tree.Root(), func(n *sitter.Node) bool {
		if n.Type() != "while_statement" {
			return true
		}
		cond := n.ChildByFieldName("condition")
		if cond == nil || !isAlwaysTrue(tree.Text(cond)) {
			return true
		}
		hasExit := false
		syntax.Walk(n, func(inner *sitter.Node) bool {
			switch inner.Type() {
			case "break_statement", "return_statement", "raise_statement":
				hasExit = true
			}
			return !hasExit
		})
		if !hasExit {
			out = append(out, fmt.Sprintf(
				"Potential infinite loop at line %d",
				int(n.StartPoint().Row)+1))
		}
		return true
	})
	return out
}

func isAlwaysTrue(cond string) bool {
	switch strings.TrimSpace(cond) {
	case "True", "1":
		return true
	}
	return false
}

// conventional side-effect-only prefixes: a function named this way is
// expected to return nothing.
var sideEffectPrefixes = []string{"print", "show", "display", "save", "write"}

// checkMissingReturns flags functions whose body contains no return
// statement at all, unless the name declares a side-effect-only intent or
// the body is an empty placeholder.
func checkMissingReturns(tree *syntax.Tree) []string {
	var out []string
	syntax.Walk(tree.Root(), func(n *sitter.Node) bool {
		if n.Type() != "function_definition" {
			return true
		}
		nameNode := n.ChildByFieldName("name")
		body := n.ChildByFieldName("body")
		if nameNode == nil || body == nil {
			return true
		}
		name := tree.Text(nameNode)
		for _, prefix := range sideEffectPrefixes {
			if strings.HasPrefix(name, prefix) {
				return true
			}
		}
		if strings.HasPrefix(name, "__") || isPlaceholderBody(tree, body) {
			return true
		}
		if !hasOwnReturn(body) {
			out = append(out, fmt.Sprintf(
				"Function '%s' at line %d may be missing return statement",
				name, int(n.StartPoint().Row)+1))
		}
		return true
	})
	return out
}

// isPlaceholderBody reports a body that is only pass, ellipsis, or a
// docstring.
func isPlaceholderBody(tree *syntax.Tree, body *sitter.Node) bool {
	for _, stmt := range syntax.NamedChildren(body) {
		switch stmt.Type() {
		case "pass_statement", "comment":
			continue
		case "expression_statement":
			if stmt.NamedChildCount() == 1 {
				t := stmt.NamedChild(0).Type()
				if t == "string" || t == "ellipsis" {
					continue
				}
			}
		}
		return false
	}
	return true
}

// hasOwnReturn scans a function body without descending into nested
// function definitions or lambdas.
func hasOwnReturn(body *sitter.Node) bool {
	found := false
	syntax.Walk(body, func(n *sitter.Node) bool {
		switch n.Type() {
		case "return_statement":
			found = true
			return false
		case "function_definition", "lambda":
			return false
		}
		return !found
	})
	return found
}
