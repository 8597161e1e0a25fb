package validator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pseudoflow/internal/config"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	return New(config.ValidatorConfig{CheckUndefinedVars: true})
}

func TestValidateSyntaxError(t *testing.T) {
	v := newTestValidator(t)

	res := v.Validate(context.Background(), "def broken(:\n    pass")
	assert.False(t, res.IsValid)
	require.Len(t, res.Errors, 1, "syntax failure must yield exactly one error")
	assert.Contains(t, res.Errors[0], "Syntax error at line")
	assert.Empty(t, res.Warnings, "logic phase must not run on syntax errors")
}

func TestValidateIdempotent(t *testing.T) {
	v := newTestValidator(t)
	code := "def f():\n    x = 1\n    return x\n"

	first := v.Validate(context.Background(), code)
	second := v.Validate(context.Background(), code)
	assert.Equal(t, first, second)
}

func TestValidateCleanCode(t *testing.T) {
	v := newTestValidator(t)
	code := strings.Join([]string{
		"def add(a, b):",
		"    return a + b",
		"",
		"result = add(1, 2)",
		"print(result)",
	}, "\n")

	res := v.Validate(context.Background(), code)
	assert.True(t, res.IsValid)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
}

func TestLogicSkippedWithoutTree(t *testing.T) {
	v := newTestValidator(t)

	res := v.ValidateLogic(context.Background(), "def broken(:")
	assert.False(t, res.IsValid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Cannot validate logic: syntax errors present", res.Errors[0])
}

func TestUnreachableAfterReturn(t *testing.T) {
	v := newTestValidator(t)
	code := strings.Join([]string{
		"def run():",
		"    x = 1",
		"    return",
		"    print(\"after\")",
	}, "\n")

	res := v.Validate(context.Background(), code)
	assert.True(t, res.IsValid)
	assert.Contains(t, res.Warnings, "Unreachable code after return at line 4")
}

func TestUnreachableReportsEveryStatement(t *testing.T) {
	v := newTestValidator(t)
	code := strings.Join([]string{
		"def run():",
		"    return",
		"    x = 1",
		"    print(x)",
	}, "\n")

	res := v.Validate(context.Background(), code)
	assert.True(t, res.IsValid)
	assert.Contains(t, res.Warnings, "Unreachable code after return at line 3")
	assert.Contains(t, res.Warnings, "Unreachable code after return at line 4")
}

func TestInfiniteLoopWarningNotError(t *testing.T) {
	v := newTestValidator(t)

	res := v.Validate(context.Background(), "while True:\n    pass")
	assert.True(t, res.IsValid, "infinite loop is a warning, never an error")

	var loopWarnings []string
	for _, w := range res.Warnings {
		if strings.Contains(w, "infinite loop") {
			loopWarnings = append(loopWarnings, w)
		}
	}
	require.Len(t, loopWarnings, 1)
	assert.Equal(t, "Potential infinite loop at line 1", loopWarnings[0])
}

func TestInfiniteLoopWithBreakIsQuiet(t *testing.T) {
	v := newTestValidator(t)
	code := strings.Join([]string{
		"while True:",
		"    cmd = input()",
		"    if cmd == \"quit\":",
		"        break",
		"    print(cmd)",
	}, "\n")

	res := v.Validate(context.Background(), code)
	for _, w := range res.Warnings {
		assert.NotContains(t, w, "infinite loop")
	}
}

func TestUndefinedVariableWithSuggestion(t *testing.T) {
	v := newTestValidator(t)
	code := strings.Join([]string{
		"def total(values):",
		"    count = len(values)",
		"    return cout",
	}, "\n")

	res := v.Validate(context.Background(), code)
	assert.True(t, res.IsValid)

	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "Undefined variable 'cout'") {
			found = true
			assert.Contains(t, w, "Did you mean 'count'?")
		}
	}
	assert.True(t, found, "expected an undefined-variable warning for cout")
}

func TestUndefinedCheckDisabled(t *testing.T) {
	v := New(config.ValidatorConfig{CheckUndefinedVars: false})

	res := v.Validate(context.Background(), "def f():\n    return missing\n")
	for _, w := range res.Warnings {
		assert.NotContains(t, w, "Undefined variable")
	}
}

func TestStarImportDisablesUndefinedCheck(t *testing.T) {
	v := newTestValidator(t)
	code := "from os.path import *\n\nresult = join(\"a\", \"b\")\n"

	res := v.Validate(context.Background(), code)
	assert.Contains(t, res.Warnings,
		"Star import prevents reliable undefined-name checking")
	for _, w := range res.Warnings {
		assert.NotContains(t, w, "Undefined variable")
	}
}

func TestUnusedVariable(t *testing.T) {
	v := newTestValidator(t)
	code := strings.Join([]string{
		"def f(items):",
		"    total = 0",
		"    leftover = 99",
		"    for item in items:",
		"        total += item",
		"    return total",
	}, "\n")

	res := v.Validate(context.Background(), code)
	assert.Contains(t, res.Warnings, "Unused variable: leftover")
	assert.NotContains(t, res.Warnings, "Unused variable: total")
}

func TestDiscardIdentifierNotUnused(t *testing.T) {
	v := newTestValidator(t)
	code := "def f(pairs):\n    for _, value in pairs:\n        print(value)\n"

	res := v.Validate(context.Background(), code)
	for _, w := range res.Warnings {
		assert.NotContains(t, w, "Unused variable: _")
	}
}

func TestMissingReturn(t *testing.T) {
	v := newTestValidator(t)
	code := strings.Join([]string{
		"def compute(a, b):",
		"    c = a + b",
		"    print(c)",
	}, "\n")

	res := v.Validate(context.Background(), code)
	assert.Contains(t, res.Warnings,
		"Function 'compute' at line 1 may be missing return statement")
}

func TestMissingReturnExemptsSideEffectNames(t *testing.T) {
	v := newTestValidator(t)
	code := strings.Join([]string{
		"def print_report(rows):",
		"    for row in rows:",
		"        print(row)",
		"",
		"def save_results(data, path):",
		"    f = open(path, \"w\")",
		"    f.write(str(data))",
	}, "\n")

	res := v.Validate(context.Background(), code)
	for _, w := range res.Warnings {
		assert.NotContains(t, w, "may be missing return")
	}
}

func TestTypeMismatchLiteral(t *testing.T) {
	v := newTestValidator(t)

	res := v.Validate(context.Background(), "x = \"total: \" + 5\n")
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "Type mismatch at line 1") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestStringRepetitionNotMismatch(t *testing.T) {
	v := newTestValidator(t)

	res := v.Validate(context.Background(), "x = \"-\" * 40\n")
	for _, w := range res.Warnings {
		assert.NotContains(t, w, "Type mismatch")
	}
}

func TestRuntimeRiskDivision(t *testing.T) {
	v := newTestValidator(t)
	code := "def avg(total, n):\n    return total / n\n"

	res := v.Validate(context.Background(), code)
	assert.Contains(t, res.Warnings,
		"Potential runtime error: division by 'n' without zero check at line 2")
}

func TestRuntimeRiskGuardedIsQuiet(t *testing.T) {
	v := newTestValidator(t)
	code := strings.Join([]string{
		"def avg(total, n):",
		"    if n != 0:",
		"        return total / n",
		"    return 0",
	}, "\n")

	res := v.Validate(context.Background(), code)
	for _, w := range res.Warnings {
		assert.NotContains(t, w, "division by")
	}
}

func TestRuntimeRiskIndexing(t *testing.T) {
	v := newTestValidator(t)
	code := "def pick(items, i):\n    return items[i]\n"

	res := v.Validate(context.Background(), code)
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "index 'i' used without bounds check") {
			found = true
		}
	}
	assert.True(t, found)
}
