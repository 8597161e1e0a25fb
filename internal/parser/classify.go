package parser

import (
	"strings"
	"unicode"

	"pseudoflow/internal/block"
)

// Python keywords and statement openers that mark a line as code when they
// lead it.
var codeKeywords = map[string]bool{
	"def": true, "class": true, "import": true, "from": true,
	"return": true, "if": true, "elif": true, "else:": true,
	"for": true, "while": true, "try:": true, "except": true,
	"finally:": true, "with": true, "pass": true, "break": true,
	"continue": true, "lambda": true, "yield": true, "raise": true,
	"assert": true, "global": true, "nonlocal": true, "async": true,
	"await": true, "del": true, "print": true, "match": true, "case": true,
}

const codeSymbols = "=()[]{}<>+-*/%&|^~@"

// classifyLine decides the kind of a single non-blank line. For Mixed lines
// the returned metadata carries the "instruction" and "code" halves.
func classifyLine(line string) (block.Kind, map[string]string) {
	trimmed := strings.TrimSpace(line)

	if strings.HasPrefix(trimmed, "#") {
		return block.Comment, nil
	}

	if instruction, code, ok := splitMixed(trimmed); ok {
		return block.Mixed, map[string]string{
			"instruction": instruction,
			"code":        code,
		}
	}

	if codeScore(line, trimmed) >= 2 {
		return block.Code, nil
	}
	return block.NaturalLanguage, nil
}

// codeScore accumulates code evidence: leading keyword, indentation, symbol
// density, assignment, call syntax, trailing colon.
func codeScore(raw, trimmed string) int {
	score := 0

	first := firstWord(trimmed)
	if codeKeywords[first] {
		score += 2
	}
	if len(raw) > 0 && (raw[0] == ' ' || raw[0] == '\t') {
		score++
	}
	if symbolDensity(trimmed) > 0.12 {
		score += 2
	}
	if strings.Contains(trimmed, " = ") || strings.Contains(trimmed, "==") {
		score++
	}
	if strings.Contains(trimmed, "(") && strings.Contains(trimmed, ")") {
		score++
	}
	if strings.HasSuffix(trimmed, ":") && codeKeywords[strings.TrimSuffix(first, ":")] {
		score++
	}
	return score
}

func firstWord(s string) string {
	if i := strings.IndexFunc(s, unicode.IsSpace); i >= 0 {
		return s[:i]
	}
	return s
}

func symbolDensity(s string) float64 {
	if s == "" {
		return 0
	}
	count := 0
	for _, r := range s {
		if strings.ContainsRune(codeSymbols, r) {
			count++
		}
	}
	return float64(count) / float64(len(s))
}

// splitMixed detects a natural-language instruction followed inline by
// code, e.g. "compute the total: total = sum(values)". The prefix must read
// like prose and the suffix like code.
func splitMixed(trimmed string) (instruction, code string, ok bool) {
	idx := strings.Index(trimmed, ":")
	if idx <= 0 || idx == len(trimmed)-1 {
		return "", "", false
	}

	left := strings.TrimSpace(trimmed[:idx])
	right := strings.TrimSpace(trimmed[idx+1:])
	if left == "" || right == "" {
		return "", "", false
	}

	// A keyword-led prefix is a compound statement header (if x: y = 1),
	// not an instruction.
	if codeKeywords[firstWord(left)] {
		return "", "", false
	}
	if len(strings.Fields(left)) < 2 || symbolDensity(left) > 0.05 {
		return "", "", false
	}
	if codeScore(right, right) < 2 {
		return "", "", false
	}
	return left, right, true
}
