package ai

import (
	"context"
	"fmt"

	"bilichat/pkg/domain"
)

// StreamChunk is one fragment of generated text. A non-nil Err terminates
// the stream; no further chunks follow it.
type StreamChunk struct {
	Text string
	Err  error
}

// Provider generates assistant text from a conversation.
// Generate is the blocking variant; GenerateStream yields fragments as the
// runtime produces them. A stream is finite and not restartable.
type Provider interface {
	Generate(ctx context.Context, messages []domain.ChatMessage, language domain.Language) (string, error)
	GenerateStream(ctx context.Context, messages []domain.ChatMessage, language domain.Language) (<-chan StreamChunk, error)
}

// ModelError is a typed upstream failure carrying the model that caused it.
type ModelError struct {
	Model string
	Err   error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model %s: %v", e.Model, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// Concrete runtime model names behind the enumerated API identifiers.
var modelNames = map[domain.ModelID]string{
	domain.ModelLlama:     "llama3.2:3b",
	domain.ModelMistral:   "mistral:7b",
	domain.ModelDeepseek:  "deepseek-r1:8b",
	domain.ModelPhi3:      "phi3:mini",
	domain.ModelGemma:     "gemma:2b",
	domain.ModelQwen:      "qwen2.5:3b",
	domain.ModelTinyllama: "tinyllama",
}

// ModelName returns the concrete runtime name behind an enumerated
// identifier.
func ModelName(id domain.ModelID) (string, bool) {
	name, ok := modelNames[id]
	return name, ok
}

// Registry selects a provider for an enumerated model identifier.
type Registry struct {
	client *OllamaClient
}

// NewRegistry builds a registry backed by one Ollama client.
func NewRegistry(client *OllamaClient) *Registry {
	return &Registry{client: client}
}

// ProviderFor returns the provider serving the given model. Unknown
// identifiers get the rule-based responder so a request never dead-ends.
func (r *Registry) ProviderFor(model domain.ModelID) Provider {
	if name, ok := modelNames[model]; ok {
		return &ollamaProvider{client: r.client, modelName: name}
	}
	return &RuleProvider{}
}
