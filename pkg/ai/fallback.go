package ai

import (
	"context"
	"fmt"

	"bilichat/pkg/domain"
	"bilichat/pkg/i18n"
)

// RuleProvider is the trivial rule-based responder used when no model is
// available. It echoes the question back in the caller's language.
type RuleProvider struct{}

// Generate implements Provider.
func (p *RuleProvider) Generate(_ context.Context, messages []domain.ChatMessage, language domain.Language) (string, error) {
	last := LastUserMessage(messages)
	if last == "" {
		return i18n.T(language, "fallback_no_question"), nil
	}
	if language == domain.LangArabic {
		return fmt.Sprintf("سؤالك كان: \"%s\". هذه إجابة عامة بدون نموذج.", last), nil
	}
	return fmt.Sprintf("You asked: %q. This is a generic response without a model.", last), nil
}

// GenerateStream implements Provider by emitting the whole answer as one chunk.
func (p *RuleProvider) GenerateStream(ctx context.Context, messages []domain.ChatMessage, language domain.Language) (<-chan StreamChunk, error) {
	text, err := p.Generate(ctx, messages, language)
	if err != nil {
		return nil, err
	}
	out := make(chan StreamChunk, 1)
	out <- StreamChunk{Text: text}
	close(out)
	return out, nil
}
