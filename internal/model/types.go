// Package model holds the translation backend registry and the backends
// themselves. Backends expose a uniform Translate contract so the
// orchestrating translator can swap them without branching.
package model

import (
	"context"

	"pseudoflow/internal/config"
)

// TranslationResult is the uniform backend output.
type TranslationResult struct {
	Success    bool
	Code       string
	Language   string
	Confidence float64
	Metadata   map[string]interface{}
}

// TranslationContext carries optional surrounding information for a single
// instruction.
type TranslationContext struct {
	// TranslationID correlates all blocks of one translator session.
	TranslationID string
	// PriorCode is already-translated code preceding this instruction,
	// truncated to the configured context window.
	PriorCode string
	// Indent is the leading whitespace the generated code should carry.
	Indent string
}

// Backend translates one natural-language instruction into code.
type Backend interface {
	Name() string
	Translate(ctx context.Context, instruction string, cfg config.LLMConfig, tc TranslationContext) (*TranslationResult, error)
}
