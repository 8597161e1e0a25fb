package assembler

import (
	"fmt"
	"strings"
)

// Keywords that close over an already-open block. During re-indentation a
// line starting with one of these must sit strictly shallower than the
// block body above it.
var dedentKeywords = []string{"else:", "elif ", "except:", "except ", "finally:", "case "}

func startsWithDedentKeyword(line string) bool {
	trimmed := strings.TrimLeft(line, " \t")
	for _, kw := range dedentKeywords {
		if strings.HasPrefix(trimmed, kw) {
			return true
		}
	}
	return false
}

// ensureConsistency normalizes indentation to the configured width: tabs
// become spaces and each indent level is rescaled from the code's own
// indent unit to indentSize spaces.
func (a *Assembler) ensureConsistency(code string) string {
	lines := strings.Split(code, "\n")

	unit := detectIndentUnit(lines, a.indentSize)
	prevIndent := 0

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		expanded := expandTabs(line, a.indentSize)
		lead := leadingSpaces(expanded)
		level := (lead + unit/2) / unit
		indent := level * a.indentSize

		// A dedent keyword aligned as deep as the body above it would
		// re-open the block it is supposed to close.
		if startsWithDedentKeyword(expanded) && indent >= prevIndent && prevIndent > 0 {
			indent = prevIndent - a.indentSize
			if indent < 0 {
				indent = 0
			}
		}

		lines[i] = strings.Repeat(" ", indent) + strings.TrimLeft(expanded, " ")
		prevIndent = indent
	}
	return strings.Join(lines, "\n")
}

// detectIndentUnit finds the smallest non-zero indentation step in use,
// falling back to the configured size.
func detectIndentUnit(lines []string, fallback int) int {
	unit := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lead := leadingSpaces(expandTabs(line, fallback))
		if lead > 0 && (unit == 0 || lead < unit) {
			unit = lead
		}
	}
	if unit == 0 {
		return fallback
	}
	return unit
}

func expandTabs(line string, width int) string {
	if !strings.Contains(line, "\t") {
		return line
	}
	i := 0
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}
	lead := strings.ReplaceAll(line[:i], "\t", strings.Repeat(" ", width))
	return lead + line[i:]
}

func leadingSpaces(line string) int {
	n := 0
	for n < len(line) && line[n] == ' ' {
		n++
	}
	return n
}

// finalCleanup strips trailing whitespace, collapses runs of more than two
// blank lines, and guarantees a single trailing newline.
func (a *Assembler) finalCleanup(code string) string {
	lines := strings.Split(code, "\n")

	var out []string
	blanks := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			blanks++
			if blanks > 2 {
				continue
			}
		} else {
			blanks = 0
		}
		out = append(out, line)
	}

	result := strings.Join(out, "\n")
	result = strings.TrimRight(result, "\n ")
	if result == "" {
		return ""
	}
	return result + "\n"
}

// longLineWarnings flags lines wider than the configured maximum. Generated
// code is never rewrapped, so overlong lines surface as warnings instead.
func (a *Assembler) longLineWarnings(code string) []string {
	if a.maxLineLength < 1 {
		return nil
	}
	var out []string
	for i, line := range strings.Split(code, "\n") {
		if len(line) > a.maxLineLength {
			out = append(out, fmt.Sprintf(
				"Line %d exceeds %d characters", i+1, a.maxLineLength))
		}
	}
	return out
}
