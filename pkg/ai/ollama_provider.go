package ai

import (
	"context"
	"log/slog"

	"bilichat/pkg/domain"
)

// ollamaProvider serves one concrete runtime model.
type ollamaProvider struct {
	client    *OllamaClient
	modelName string
}

// Generate produces the full completion, degrading to the rule-based
// responder on upstream failure. The user still gets an answer; the real
// error only reaches the logs.
func (p *ollamaProvider) Generate(ctx context.Context, messages []domain.ChatMessage, language domain.Language) (string, error) {
	prompt := BuildPrompt(messages, language)
	text, err := p.client.Generate(ctx, p.modelName, prompt)
	if err != nil {
		slog.Error("ollama generate failed, using fallback", "model", p.modelName, "err", err)
		fallback := &RuleProvider{}
		return fallback.Generate(ctx, messages, language)
	}
	return text, nil
}

// GenerateStream propagates upstream failure instead of falling back:
// once partial output has been shown there is no honest way to swap in a
// canned answer.
func (p *ollamaProvider) GenerateStream(ctx context.Context, messages []domain.ChatMessage, language domain.Language) (<-chan StreamChunk, error) {
	prompt := BuildPrompt(messages, language)
	return p.client.GenerateStream(ctx, p.modelName, prompt)
}
