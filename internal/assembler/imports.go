package assembler

import (
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"pseudoflow/internal/syntax"
)

// Import group categories, rendered in this order.
const (
	groupStandard   = "standard"
	groupThirdParty = "third_party"
	groupLocal      = "local"
)

var importGroups = []string{groupStandard, groupThirdParty, groupLocal}

// standardLib is the fixed standard-library name set used for categorizing
// imports; anything not here and not relative defaults to third-party.
var standardLib = map[string]bool{
	"abc": true, "argparse": true, "array": true, "ast": true,
	"asyncio": true, "base64": true, "bisect": true, "builtins": true,
	"calendar": true, "collections": true, "configparser": true,
	"contextlib": true, "copy": true, "csv": true, "dataclasses": true,
	"datetime": true, "decimal": true, "difflib": true, "enum": true,
	"functools": true, "glob": true, "gzip": true, "hashlib": true,
	"heapq": true, "html": true, "http": true, "io": true,
	"itertools": true, "json": true, "logging": true, "math": true,
	"multiprocessing": true, "operator": true, "os": true, "pathlib": true,
	"pickle": true, "platform": true, "random": true, "re": true,
	"shutil": true, "socket": true, "sqlite3": true, "statistics": true,
	"string": true, "subprocess": true, "sys": true, "tempfile": true,
	"threading": true, "time": true, "typing": true, "urllib": true,
	"uuid": true, "warnings": true, "weakref": true, "xml": true,
	"zipfile": true,
}

// commonImports maps standard modules to member names whose bare use in a
// block triggers an auto-added from-import when auto_import_common is on.
var commonImports = map[string][]string{
	"math":     {"sin", "cos", "sqrt", "pi", "tan", "log", "exp"},
	"os":       {"getcwd", "listdir", "mkdir"},
	"sys":      {"argv"},
	"datetime": {"datetime", "date", "timedelta"},
	"json":     {"dumps", "loads"},
	"re":       {"match", "search", "findall", "sub"},
	"typing":   {"List", "Dict", "Tuple", "Optional", "Union", "Any"},
}

// importSet accumulates import statements across blocks, deduplicated and
// bucketed by category. Direct imports keep their full rendered line;
// from-imports merge per module so each module renders one line.
type importSet struct {
	direct map[string]map[string]bool            // category -> "import x" line
	from   map[string]map[string]map[string]bool // category -> module -> names
}

func newImportSet() *importSet {
	s := &importSet{
		direct: make(map[string]map[string]bool),
		from:   make(map[string]map[string]map[string]bool),
	}
	for _, g := range importGroups {
		s.direct[g] = make(map[string]bool)
		s.from[g] = make(map[string]map[string]bool)
	}
	return s
}

func (s *importSet) addDirect(module, alias string) {
	line := "import " + module
	if alias != "" {
		line += " as " + alias
	}
	s.direct[categorizeImport(module)][line] = true
}

func (s *importSet) addFrom(module, name string) {
	cat := categorizeImport(module)
	if s.from[cat][module] == nil {
		s.from[cat][module] = make(map[string]bool)
	}
	s.from[cat][module][name] = true
}

// providesName reports whether any collected from-import already exposes
// name, or any direct import binds it as a module alias.
func (s *importSet) providesName(name string) bool {
	for _, g := range importGroups {
		for _, names := range s.from[g] {
			if names[name] {
				return true
			}
		}
		for line := range s.direct[g] {
			if strings.HasSuffix(line, " as "+name) || line == "import "+name {
				return true
			}
		}
	}
	return false
}

// categorizeImport buckets a module path: standard library by the fixed
// set, local for relative or empty modules, third-party otherwise.
func categorizeImport(module string) string {
	top := module
	if i := strings.Index(module, "."); i >= 0 {
		top = module[:i]
	}
	switch {
	case standardLib[top]:
		return groupStandard
	case module == "" || strings.HasPrefix(module, "."):
		return groupLocal
	default:
		return groupThirdParty
	}
}

// collectImports pulls every import statement out of a block's tree.
func collectImports(tree *syntax.Tree, into *importSet) {
	syntax.Walk(tree.Root(), func(n *sitter.Node) bool {
		switch n.Type() {
		case "import_statement":
			for _, ch := range syntax.NamedChildren(n) {
				switch ch.Type() {
				case "dotted_name":
					into.addDirect(tree.Text(ch), "")
				case "aliased_import":
					name := ch.ChildByFieldName("name")
					alias := ch.ChildByFieldName("alias")
					if name != nil && alias != nil {
						into.addDirect(tree.Text(name), tree.Text(alias))
					}
				}
			}
			return false
		case "import_from_statement":
			module := ""
			moduleNode := n.ChildByFieldName("module_name")
			if moduleNode != nil {
				module = tree.Text(moduleNode)
			}
			for _, ch := range syntax.NamedChildren(n) {
				if moduleNode != nil && ch.Equal(moduleNode) {
					continue
				}
				switch ch.Type() {
				case "dotted_name":
					into.addFrom(module, tree.Text(ch))
				case "aliased_import":
					name := ch.ChildByFieldName("name")
					alias := ch.ChildByFieldName("alias")
					if name != nil && alias != nil {
						into.addFrom(module, tree.Text(name)+" as "+tree.Text(alias))
					}
				case "wildcard_import":
					into.addFrom(module, "*")
				}
			}
			return false
		}
		return true
	})
}

// addCommonImports scans identifier uses across blocks and auto-adds a
// from-import for well-known members used without any import providing
// them.
func addCommonImports(trees []*syntax.Tree, into *importSet) {
	used := make(map[string]bool)
	for _, tree := range trees {
		syntax.Walk(tree.Root(), func(n *sitter.Node) bool {
			switch n.Type() {
			case "identifier":
				used[tree.Text(n)] = true
			case "attribute":
				// "math.sqrt" already names its module.
				if obj := n.ChildByFieldName("object"); obj != nil {
					syntax.Walk(obj, func(inner *sitter.Node) bool {
						if inner.Type() == "identifier" {
							used[tree.Text(inner)] = true
						}
						return true
					})
				}
				return false
			case "string":
				return false
			}
			return true
		})
	}

	modules := make([]string, 0, len(commonImports))
	for m := range commonImports {
		modules = append(modules, m)
	}
	sort.Strings(modules)

	for _, module := range modules {
		for _, member := range commonImports[module] {
			if used[member] && !into.providesName(member) && !used[module] {
				into.addFrom(module, member)
			}
		}
	}
}

// renderImports builds the final import section: groups in fixed order,
// lines sorted within each group, one blank line between groups.
func renderImports(s *importSet) string {
	var groups []string
	for _, g := range importGroups {
		var lines []string
		for line := range s.direct[g] {
			lines = append(lines, line)
		}
		for module, names := range s.from[g] {
			sorted := make([]string, 0, len(names))
			for name := range names {
				sorted = append(sorted, name)
			}
			sort.Strings(sorted)
			lines = append(lines, "from "+module+" import "+strings.Join(sorted, ", "))
		}
		if len(lines) == 0 {
			continue
		}
		sort.Strings(lines)
		groups = append(groups, strings.Join(lines, "\n"))
	}
	return strings.Join(groups, "\n\n")
}
