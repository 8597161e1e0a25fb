// Package validator performs syntax and shallow logic analysis of generated
// Python code. The syntax phase builds a tree-sitter tree and fails fast on
// the first error; the logic phase aggregates independent checkers whose
// findings are warnings, never errors, unless a checker is explicitly
// promoted to error level.
package validator

import (
	"context"
	"fmt"

	"pseudoflow/internal/config"
	"pseudoflow/internal/logging"
	"pseudoflow/internal/syntax"
)

// Validator runs the two validation phases. Both are callable standalone.
type Validator struct {
	analyzer       *syntax.Analyzer
	checkUndefined bool
}

// New creates a validator from configuration.
func New(cfg config.ValidatorConfig) *Validator {
	return &Validator{
		analyzer:       syntax.New(),
		checkUndefined: cfg.CheckUndefinedVars,
	}
}

// Validate runs the syntax phase and, only when it passes, the logic phase.
func (v *Validator) Validate(ctx context.Context, code string) *Result {
	res := v.ValidateSyntax(ctx, code)
	if !res.IsValid {
		return res
	}
	res.Merge(v.ValidateLogic(ctx, code))
	return res
}

// ValidateSyntax attempts to build a syntax tree. On failure the result
// carries exactly one error citing line and offset.
func (v *Validator) ValidateSyntax(ctx context.Context, code string) *Result {
	res := NewResult()

	iss, err := v.analyzer.Check(ctx, code)
	if err != nil {
		res.AddError(fmt.Sprintf("syntax check failed: %v", err))
		return res
	}
	if iss != nil {
		res.AddError(fmt.Sprintf("Syntax error at %s", iss.String()))
		logging.ValidatorDebug("syntax error: %s", iss.String())
	}
	return res
}

// ValidateLogic runs the logic checkers on syntactically valid code. Code
// that does not parse yields an invalid result; the logic phase cannot
// proceed without a tree.
func (v *Validator) ValidateLogic(ctx context.Context, code string) *Result {
	res := NewResult()

	iss, err := v.analyzer.Check(ctx, code)
	if err != nil {
		res.AddError(fmt.Sprintf("Cannot validate logic: parsing failed (%v)", err))
		return res
	}
	if iss != nil {
		res.AddError("Cannot validate logic: syntax errors present")
		return res
	}

	tree, err := v.analyzer.Parse(ctx, code)
	if err != nil {
		res.AddError(fmt.Sprintf("Cannot validate logic: parsing failed (%v)", err))
		return res
	}
	defer tree.Close()

	if v.checkUndefined {
		for _, issue := range checkUndefinedNames(tree) {
			res.AddWarning(issue)
		}
	}
	for _, issue := range checkTypeConsistency(tree) {
		res.AddWarning(issue)
	}
	for _, issue := range checkUnreachableCode(tree) {
		res.AddWarning(issue)
	}
	for _, issue := range checkUnusedVariables(tree) {
		res.AddWarning(issue)
	}
	for _, issue := range checkInfiniteLoops(tree) {
		res.AddWarning(issue)
	}
	for _, issue := range checkMissingReturns(tree) {
		res.AddWarning(issue)
	}
	for _, risk := range checkRuntimeRisks(tree) {
		res.AddWarning("Potential runtime error: " + risk)
	}

	logging.ValidatorDebug("logic phase: %d warnings", len(res.Warnings))
	return res
}
