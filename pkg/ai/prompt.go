package ai

import "bilichat/pkg/domain"

var systemPrompts = map[domain.Language]string{
	domain.LangEnglish: "You are a helpful AI assistant. Answer clearly and politely in English.",
	domain.LangArabic:  "أنت مساعد ذكي مفيد. أجب باللغة العربية بطريقة واضحة ومهذبة.",
}

// LastUserMessage returns the content of the most recent user turn, or "".
func LastUserMessage(messages []domain.ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// BuildPrompt flattens a conversation into the single prompt sent to the
// runtime: the language-specific system instruction plus only the latest
// user message. Earlier turns are intentionally not included.
func BuildPrompt(messages []domain.ChatMessage, language domain.Language) string {
	system, ok := systemPrompts[language]
	if !ok {
		system = systemPrompts[domain.LangEnglish]
	}
	return system + "\n\nUser: " + LastUserMessage(messages) + "\n\nAssistant:"
}
