package assembler

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	funcNameRe  = regexp.MustCompile(`(?m)^(?:async\s+)?def\s+([A-Za-z_]\w*)`)
	classNameRe = regexp.MustCompile(`(?m)^class\s+([A-Za-z_]\w*)`)
)

// mergeDefinitions resolves name collisions across blocks: the later
// definition supersedes the earlier one, and every supersession produces a
// warning so nothing is dropped silently.
func mergeDefinitions(functions, classes []string) (mergedFuncs, mergedClasses []string, warnings []string) {
	mergedFuncs, w1 := mergeByName(functions, funcNameRe, "function")
	mergedClasses, w2 := mergeByName(classes, classNameRe, "class")
	return mergedFuncs, mergedClasses, append(w1, w2...)
}

// mergeByName keeps definitions in first-seen position but replaces the
// body with the last definition of each name.
func mergeByName(defs []string, nameRe *regexp.Regexp, kind string) ([]string, []string) {
	var order []string
	byName := make(map[string]string)
	var warnings []string

	for _, def := range defs {
		name := definitionName(def, nameRe)
		if name == "" {
			// Anonymous or unparseable snippet; keep as-is under a
			// synthetic key so it is never merged away.
			key := fmt.Sprintf("\x00anon%d", len(order))
			order = append(order, key)
			byName[key] = def
			continue
		}
		if _, exists := byName[name]; exists {
			warnings = append(warnings, fmt.Sprintf(
				"Duplicate %s '%s': later definition supersedes the earlier one",
				kind, name))
		} else {
			order = append(order, name)
		}
		byName[name] = def
	}

	out := make([]string, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out, warnings
}

// definitionName extracts the defined name, skipping leading decorators.
func definitionName(def string, nameRe *regexp.Regexp) string {
	for _, line := range strings.Split(def, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "@") {
			continue
		}
		if m := nameRe.FindStringSubmatch(line); m != nil {
			return m[1]
		}
		return ""
	}
	return ""
}

// constantAssignment matches ALL-CAPS module-level assignments.
var constantAssignment = regexp.MustCompile(`^[A-Z_]+\s*=`)

// organizeGlobals partitions module-level assignments into a constants
// sub-section and a variables sub-section, each with its header comment
// when non-empty.
func organizeGlobals(globals []string) string {
	var constants, variables []string
	for _, g := range globals {
		if constantAssignment.MatchString(g) {
			constants = append(constants, g)
		} else {
			variables = append(variables, g)
		}
	}

	var parts []string
	if len(constants) > 0 {
		parts = append(parts, "# Constants\n"+strings.Join(constants, "\n"))
	}
	if len(variables) > 0 {
		parts = append(parts, "# Global variables\n"+strings.Join(variables, "\n"))
	}
	return strings.Join(parts, "\n\n")
}
