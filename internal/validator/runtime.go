package validator

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"pseudoflow/internal/syntax"
)

// checkRuntimeRisks flags patterns that correlate with runtime failure:
// indexing with a variable outside any guard, and division by a variable
// with no zero check in sight. Findings come back bare; the caller prefixes
// them as potential runtime errors.
func checkRuntimeRisks(tree *syntax.Tree) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(msg string) {
		if !seen[msg] {
			seen[msg] = true
			out = append(out, msg)
		}
	}

	syntax.Walk(tree.Root(), func(n *sitter.Node) bool {
		switch n.Type() {
		case "subscript":
			idx := n.ChildByFieldName("subscript")
			if idx == nil || idx.Type() != "identifier" {
				return true
			}
			if insideGuard(n) {
				return true
			}
			add(fmt.Sprintf("index '%s' used without bounds check at line %d",
				tree.Text(idx), int(n.StartPoint().Row)+1))
		case "binary_operator":
			op := n.ChildByFieldName("operator")
			right := n.ChildByFieldName("right")
			if op == nil || right == nil {
				return true
			}
			switch tree.Text(op) {
			case "/", "//", "%":
			default:
				return true
			}
			if right.Type() != "identifier" || insideGuard(n) {
				return true
			}
			add(fmt.Sprintf("division by '%s' without zero check at line %d",
				tree.Text(right), int(n.StartPoint().Row)+1))
		}
		return true
	})
	return out
}

// insideGuard reports whether any ancestor is a conditional or exception
// handler; code under one is assumed to be checked, which keeps this
// checker quiet on defensively written code.
func insideGuard(n *sitter.Node) bool {
	for p := n.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case "if_statement", "try_statement", "conditional_expression",
			"while_statement", "assert_statement":
			return true
		}
	}
	return false
}
