package assembler

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"pseudoflow/internal/syntax"
)

// codeSections holds top-level statements bucketed by role, in block order.
type codeSections struct {
	docstring string
	functions []string
	classes   []string
	globals   []string
	main      []string
	failures  []string
}

// organizeSections walks each block's tree and buckets its top-level nodes.
// The first top-level string of the very first block becomes the module
// docstring. A block that fails to parse is recorded as a structural
// failure and skipped; the rest of the assembly continues.
func (a *Assembler) organizeSections(blocks []parsedBlock) *codeSections {
	sections := &codeSections{}

	for i, pb := range blocks {
		if pb.tree == nil {
			sections.failures = append(sections.failures, fmt.Sprintf(
				"Block at lines %d-%d could not be parsed and was skipped",
				pb.src.Lines.Start, pb.src.Lines.End))
			continue
		}

		children := syntax.NamedChildren(pb.tree.Root())
		for j, node := range children {
			if i == 0 && j == 0 && a.preserveDocstrings && sections.docstring == "" {
				if doc, ok := moduleDocstring(pb.tree, node); ok {
					sections.docstring = doc
					continue
				}
			}
			a.categorizeNode(pb.tree, node, sections)
		}
	}
	return sections
}

// moduleDocstring returns the literal text when node is a bare top-level
// string expression.
func moduleDocstring(tree *syntax.Tree, node *sitter.Node) (string, bool) {
	if node.Type() != "expression_statement" || node.NamedChildCount() != 1 {
		return "", false
	}
	inner := node.NamedChild(0)
	if inner.Type() != "string" && inner.Type() != "concatenated_string" {
		return "", false
	}
	return tree.Text(node), true
}

func (a *Assembler) categorizeNode(tree *syntax.Tree, node *sitter.Node, sections *codeSections) {
	text := strings.TrimRight(tree.Text(node), "\n")

	switch node.Type() {
	case "import_statement", "import_from_statement", "future_import_statement":
		// Collected separately by the import stage.
		return
	case "comment":
		if a.preserveComments {
			sections.main = append(sections.main, text)
		}
		return
	case "function_definition":
		sections.functions = append(sections.functions, text)
		return
	case "class_definition":
		sections.classes = append(sections.classes, text)
		return
	case "decorated_definition":
		if def := node.ChildByFieldName("definition"); def != nil {
			switch def.Type() {
			case "function_definition":
				sections.functions = append(sections.functions, text)
				return
			case "class_definition":
				sections.classes = append(sections.classes, text)
				return
			}
		}
	case "expression_statement":
		if node.NamedChildCount() == 1 {
			switch node.NamedChild(0).Type() {
			case "assignment", "augmented_assignment":
				sections.globals = append(sections.globals, text)
				return
			}
		}
	}
	sections.main = append(sections.main, text)
}
