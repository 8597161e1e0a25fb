package model

import (
	"context"
	"strings"

	"pseudoflow/internal/config"
	"pseudoflow/internal/logging"
)

// ruleBased translates pseudocode to Python with pattern rules only: no
// network, no model weights. It is the always-available fallback backend,
// and its confidence reflects how many lines an actual rule matched.
type ruleBased struct{}

func newRuleBased(config.LLMConfig) (Backend, error) {
	return &ruleBased{}, nil
}

func (b *ruleBased) Name() string { return "rulebased" }

// codeIndicators mark a line as code-like enough to pass through verbatim.
var codeIndicators = []string{
	"=", "(", ")", "[", "]", "{", "}", ";",
	"def ", "if ", "for ", "while ", "return ", "print(",
}

func (b *ruleBased) Translate(_ context.Context, instruction string, _ config.LLMConfig, tc TranslationContext) (*TranslationResult, error) {
	lines := strings.Split(instruction, "\n")
	var out []string
	hits := 0
	total := 0

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		total++
		translated, matched := translateLine(line)
		if matched {
			hits++
		}
		out = append(out, tc.Indent+translated)
	}

	confidence := 0.0
	if total > 0 {
		confidence = float64(hits) / float64(total)
	}
	logging.ModelDebug("rulebased: %d/%d lines matched a rule", hits, total)

	return &TranslationResult{
		Success:    true,
		Code:       strings.Join(out, "\n"),
		Language:   "python",
		Confidence: confidence,
		Metadata: map[string]interface{}{
			"backend":   "rulebased",
			"lines":     total,
			"rule_hits": hits,
		},
	}, nil
}

// translateLine applies the pattern rules to one line. The bool reports
// whether a rule matched; unmatched prose becomes a comment so no input is
// silently dropped.
func translateLine(line string) (string, bool) {
	lower := strings.ToLower(line)

	switch {
	case strings.HasPrefix(lower, "if ") && strings.HasSuffix(lower, ":"):
		return "if " + strings.TrimSpace(line[3:len(line)-1]) + ":", true
	case strings.HasPrefix(lower, "for ") && strings.HasSuffix(lower, ":"):
		return "for " + strings.TrimSpace(line[4:len(line)-1]) + ":", true
	case strings.HasPrefix(lower, "while ") && strings.HasSuffix(lower, ":"):
		return "while " + strings.TrimSpace(line[6:len(line)-1]) + ":", true
	case strings.HasPrefix(lower, "function "):
		return "def " + line[len("function "):], true
	case strings.HasPrefix(lower, "def "):
		return line, true
	case lower == "end" || lower == "end if" || lower == "end for" || lower == "end while":
		return "pass", true
	case looksLikeCode(line):
		return line, true
	}
	return "# " + line, false
}

func looksLikeCode(line string) bool {
	for _, ind := range codeIndicators {
		if strings.Contains(line, ind) {
			return true
		}
	}
	return false
}
