package server

import (
	"net/http"
	"strings"

	"bilichat/internal/util"
	"bilichat/pkg/ai"
	"bilichat/pkg/domain"
)

// fallbackModels is served when the model runtime is unreachable so clients
// still render a usable model picker.
var fallbackModels = []domain.ModelInfo{
	{ID: "llama3.2:3b", Type: domain.ModelLlama, Name: "Llama 3.2 3B"},
	{ID: "mistral:7b", Type: domain.ModelMistral, Name: "Mistral 7B"},
	{ID: "deepseek-r1:8b", Type: domain.ModelDeepseek, Name: "DeepSeek R1 8B"},
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	installed, err := s.ollama.ListModels(r.Context())
	if err != nil {
		util.LoggerFromContext(r.Context()).Warn("model listing unavailable", "err", err)
		writeJSON(w, http.StatusOK, map[string]any{
			"models":   fallbackModels,
			"fallback": true,
		})
		return
	}
	models := make([]domain.ModelInfo, 0, len(installed))
	for _, m := range installed {
		models = append(models, modelInfo(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

// modelInfo maps an installed model name onto the API's model identifier by
// name prefix; unrecognized models keep an empty type and are display-only.
func modelInfo(m ai.OllamaModel) domain.ModelInfo {
	info := domain.ModelInfo{
		ID:       m.Name,
		Name:     m.Name,
		Size:     m.Size,
		Modified: m.ModifiedAt,
	}
	switch {
	// tinyllama before llama: both contain "llama".
	case strings.HasPrefix(m.Name, "tinyllama"):
		info.Type = domain.ModelTinyllama
	case strings.HasPrefix(m.Name, "llama"):
		info.Type = domain.ModelLlama
	case strings.HasPrefix(m.Name, "mistral"):
		info.Type = domain.ModelMistral
	case strings.HasPrefix(m.Name, "deepseek"):
		info.Type = domain.ModelDeepseek
	case strings.HasPrefix(m.Name, "phi3"):
		info.Type = domain.ModelPhi3
	case strings.HasPrefix(m.Name, "gemma"):
		info.Type = domain.ModelGemma
	case strings.HasPrefix(m.Name, "qwen"):
		info.Type = domain.ModelQwen
	}
	return info
}
