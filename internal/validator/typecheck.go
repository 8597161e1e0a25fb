package validator

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"pseudoflow/internal/syntax"
)

// checkTypeConsistency flags operand-type contradictions that are visible
// from literals alone. This is not a type system: only expressions where
// both sides are literals of known, incompatible types are reported.
func checkTypeConsistency(tree *syntax.Tree) []string {
	var out []string
	syntax.Walk(tree.Root(), func(n *sitter.Node) bool {
		if n.Type() != "binary_operator" {
			return true
		}
		left := n.ChildByFieldName("left")
		right := n.ChildByFieldName("right")
		op := n.ChildByFieldName("operator")
		if left == nil || right == nil || op == nil {
			return true
		}

		lt := literalType(left)
		rt := literalType(right)
		if lt == "" || rt == "" || lt == rt {
			return true
		}
		if !incompatibleOperands(lt, rt, tree.Text(op)) {
			return true
		}
		out = append(out, fmt.Sprintf(
			"Type mismatch at line %d: %s and %s operands for '%s'",
			int(n.StartPoint().Row)+1, lt, rt, tree.Text(op)))
		return true
	})
	return out
}

// literalType maps a literal node to a coarse Python type name, or "" when
// the operand's type is not statically known.
func literalType(n *sitter.Node) string {
	switch n.Type() {
	case "string", "concatenated_string":
		return "str"
	case "integer":
		return "int"
	case "float":
		return "float"
	case "true", "false":
		return "bool"
	case "none":
		return "NoneType"
	case "list":
		return "list"
	case "dictionary":
		return "dict"
	}
	return ""
}

// incompatibleOperands applies Python's actual coercion rules: numerics mix
// freely, "s" * 3 and "fmt" % x are legal, everything else mixing str or
// None with a number is a contradiction.
func incompatibleOperands(lt, rt, op string) bool {
	numeric := func(t string) bool {
		return t == "int" || t == "float" || t == "bool"
	}
	if numeric(lt) && numeric(rt) {
		return false
	}
	// str * int repeats, str % anything formats, list * int repeats.
	if op == "*" && ((lt == "str" || lt == "list") && rt == "int" ||
		(rt == "str" || rt == "list") && lt == "int") {
		return false
	}
	if op == "%" && lt == "str" {
		return false
	}
	return true
}
