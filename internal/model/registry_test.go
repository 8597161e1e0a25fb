package model

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pseudoflow/internal/config"
)

func stubConstructor(name string) Constructor {
	return func(config.LLMConfig) (Backend, error) {
		return &ruleBased{}, nil
	}
}

func TestResolveNameAndAlias(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Registration{
		Name: "alpha", Aliases: []string{"a", "first"},
		Priority: PriorityLow, New: stubConstructor("alpha"),
	}))

	name, err := r.Resolve("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", name)

	name, err = r.Resolve("first")
	require.NoError(t, err)
	assert.Equal(t, "alpha", name)
}

func TestResolveMissListsKnownNames(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Registration{
		Name: "alpha", Priority: PriorityLow, New: stubConstructor("alpha")}))
	require.NoError(t, r.Register(Registration{
		Name: "beta", Priority: PriorityHigh, New: stubConstructor("beta")}))

	_, err := r.Resolve("gamma")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model 'gamma' not found")
	assert.Contains(t, err.Error(), "alpha")
	assert.Contains(t, err.Error(), "beta")
}

func TestNamesOrderedByPriority(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Registration{
		Name: "low", Priority: PriorityLow, New: stubConstructor("low")}))
	require.NoError(t, r.Register(Registration{
		Name: "high", Priority: PriorityHigh, New: stubConstructor("high")}))
	require.NoError(t, r.Register(Registration{
		Name: "mid", Priority: PriorityMedium, New: stubConstructor("mid")}))

	assert.Equal(t, []string{"high", "mid", "low"}, r.Names())
}

func TestDuplicateRegistrationRejected(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Registration{
		Name: "alpha", Aliases: []string{"a"},
		Priority: PriorityLow, New: stubConstructor("alpha")}))

	assert.Error(t, r.Register(Registration{
		Name: "alpha", Priority: PriorityLow, New: stubConstructor("alpha")}))
	assert.Error(t, r.Register(Registration{
		Name: "beta", Aliases: []string{"a"},
		Priority: PriorityLow, New: stubConstructor("beta")}))
}

func TestDefaultRegistryHasStaticBackends(t *testing.T) {
	r := Default()

	name, err := r.Resolve("rules")
	require.NoError(t, err)
	assert.Equal(t, "rulebased", name)

	name, err = r.Resolve("google")
	require.NoError(t, err)
	assert.Equal(t, "gemini", name)
}

func TestCreateRuleBased(t *testing.T) {
	b, err := Default().Create("rulebased", config.LLMConfig{})
	require.NoError(t, err)
	assert.Equal(t, "rulebased", b.Name())
}

func TestCreateGeminiWithoutKeyFails(t *testing.T) {
	_, err := Default().Create("gemini", config.LLMConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestRuleBasedControlFlow(t *testing.T) {
	b, err := newRuleBased(config.LLMConfig{})
	require.NoError(t, err)

	res, err := b.Translate(context.Background(),
		"if x > 10:\nfor item in items:\nwhile count < limit:\nfunction greet(name):\nend",
		config.LLMConfig{}, TranslationContext{})
	require.NoError(t, err)
	require.True(t, res.Success)

	lines := strings.Split(res.Code, "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "if x > 10:", lines[0])
	assert.Equal(t, "for item in items:", lines[1])
	assert.Equal(t, "while count < limit:", lines[2])
	assert.Equal(t, "def greet(name):", lines[3])
	assert.Equal(t, "pass", lines[4])
	assert.Equal(t, 1.0, res.Confidence, "every line matched a rule")
}

func TestRuleBasedProseBecomesComment(t *testing.T) {
	b, _ := newRuleBased(config.LLMConfig{})

	res, err := b.Translate(context.Background(),
		"add up all the numbers", config.LLMConfig{}, TranslationContext{})
	require.NoError(t, err)
	assert.Equal(t, "# add up all the numbers", res.Code)
	assert.Equal(t, 0.0, res.Confidence)
}

func TestRuleBasedCodePassThrough(t *testing.T) {
	b, _ := newRuleBased(config.LLMConfig{})

	res, err := b.Translate(context.Background(),
		"total = a + b", config.LLMConfig{}, TranslationContext{})
	require.NoError(t, err)
	assert.Equal(t, "total = a + b", res.Code)
}

func TestRuleBasedAppliesIndent(t *testing.T) {
	b, _ := newRuleBased(config.LLMConfig{})

	res, err := b.Translate(context.Background(), "end",
		config.LLMConfig{}, TranslationContext{Indent: "    "})
	require.NoError(t, err)
	assert.Equal(t, "    pass", res.Code)
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, "x = 1", stripCodeFences("```python\nx = 1\n```"))
	assert.Equal(t, "x = 1", stripCodeFences("```\nx = 1\n```"))
	assert.Equal(t, "x = 1", stripCodeFences("x = 1"))
}
