package model

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"pseudoflow/internal/config"
	"pseudoflow/internal/logging"
)

const geminiSystemPrompt = `You translate pseudocode instructions into Python.
Output only Python code, no explanations and no markdown fences.
The code must be syntactically valid on its own.`

// gemini translates instructions through Google's Gemini API.
type gemini struct {
	client *genai.Client
	model  string
}

func newGemini(cfg config.LLMConfig) (Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini backend requires an API key")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &gemini{client: client, model: model}, nil
}

func (b *gemini) Name() string { return "gemini" }

func (b *gemini) Translate(ctx context.Context, instruction string, cfg config.LLMConfig, tc TranslationContext) (*TranslationResult, error) {
	prompt := buildPrompt(instruction, tc)

	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(geminiSystemPrompt, genai.RoleUser),
	}
	if cfg.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(cfg.MaxTokens)
	}
	if cfg.TopP > 0 {
		genCfg.TopP = genai.Ptr(float32(cfg.TopP))
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	resp, err := b.client.Models.GenerateContent(ctx, b.model, contents, genCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate failed: %w", err)
	}

	code := stripCodeFences(resp.Text())
	if strings.TrimSpace(code) == "" {
		return &TranslationResult{
			Success:  false,
			Language: "python",
			Metadata: map[string]interface{}{"backend": "gemini", "model": b.model},
		}, nil
	}
	logging.ModelDebug("gemini: %d chars generated for %d char instruction",
		len(code), len(instruction))

	if tc.Indent != "" {
		code = indentLines(code, tc.Indent)
	}
	return &TranslationResult{
		Success:    true,
		Code:       code,
		Language:   "python",
		Confidence: 0.9,
		Metadata:   map[string]interface{}{"backend": "gemini", "model": b.model},
	}, nil
}

func buildPrompt(instruction string, tc TranslationContext) string {
	var b strings.Builder
	if tc.PriorCode != "" {
		b.WriteString("Code so far:\n```python\n")
		b.WriteString(tc.PriorCode)
		b.WriteString("\n```\n\n")
	}
	b.WriteString("Instruction:\n")
	b.WriteString(instruction)
	return b.String()
}

// stripCodeFences removes a single surrounding markdown fence, which the
// model emits despite being told not to.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func indentLines(code, indent string) string {
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			lines[i] = indent + line
		}
	}
	return strings.Join(lines, "\n")
}
