package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"bilichat/internal/chats"
	"bilichat/pkg/ai"
	"bilichat/pkg/cache"
	"bilichat/pkg/domain"
)

const summaryChatWindow = 50

var summaryPrompts = map[domain.Language]string{
	domain.LangEnglish: "You are an AI assistant. You MUST respond in English only. Summarize the user's interests based on their questions below. Write a brief, clear summary (2-3 sentences) about their topics of interest in English. Do not use any special characters, asterisks, quotes, or markdown formatting. Write plain text only in English.\n\nQuestions:\n%s\n\nWrite the summary in English:",
	domain.LangArabic:  "أنت مساعد ذكي يجب عليك الرد بالعربية فقط. قم بتلخيص اهتمامات المستخدم بناءً على أسئلته التالية. اكتب ملخصاً قصيراً وواضحاً (2-3 جمل) عن مواضيع اهتمامه باللغة العربية. لا تستخدم أي رموز خاصة أو علامات تنصيص أو نجوم. اكتب نصاً عادياً فقط بالعربية.\n\nالأسئلة:\n%s\n\nاكتب الملخص بالعربية فقط:",
}

// Summarizer recomputes the bilingual profile summary for a user. It runs
// as a queue job handler, never inline with a chat exchange.
type Summarizer struct {
	repo   *chats.Repository
	models *ai.Registry
	cache  cache.Cache
}

// NewSummarizer wires the summary job handler.
func NewSummarizer(repo *chats.Repository, models *ai.Registry, c cache.Cache) *Summarizer {
	return &Summarizer{repo: repo, models: models, cache: c}
}

// Recompute gathers the user's recent questions and regenerates both
// language summaries. Summaries always come from llama.
func (s *Summarizer) Recompute(ctx context.Context, userID string) error {
	recent, err := s.repo.ListRecent(userID, summaryChatWindow)
	if err != nil {
		return fmt.Errorf("list chats: %w", err)
	}

	seen := make(map[string]struct{})
	var questions []string
	for _, chat := range recent {
		for _, m := range chat.Messages {
			if m.Role != domain.RoleUser {
				continue
			}
			if _, ok := seen[m.Content]; ok {
				continue
			}
			seen[m.Content] = struct{}{}
			questions = append(questions, m.Content)
		}
	}
	combined := strings.Join(questions, "\n- ")

	provider := s.models.ProviderFor(domain.ModelLlama)
	english, err := s.generate(ctx, provider, domain.LangEnglish, combined)
	if err != nil {
		return fmt.Errorf("english summary: %w", err)
	}
	arabic, err := s.generate(ctx, provider, domain.LangArabic, combined)
	if err != nil {
		return fmt.Errorf("arabic summary: %w", err)
	}

	if err := s.repo.SaveSummary(domain.Summary{
		UserID:    userID,
		English:   english,
		Arabic:    arabic,
		UpdatedAt: time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	s.cache.Delete(ctx, cache.ProfileKey(userID))
	return nil
}

func (s *Summarizer) generate(ctx context.Context, provider ai.Provider, language domain.Language, combined string) (string, error) {
	prompt := fmt.Sprintf(summaryPrompts[language], combined)
	text, err := provider.Generate(ctx, []domain.ChatMessage{{Role: domain.RoleUser, Content: prompt}}, language)
	if err != nil {
		return "", err
	}
	return ai.CleanGeneratedText(text), nil
}

// ProfileSummary returns the stored summary for a user, cached per user.
func (a *App) ProfileSummary(ctx context.Context, userID string) (domain.Summary, bool, error) {
	key := cache.ProfileKey(userID)
	if raw, ok := a.cache.Get(ctx, key); ok {
		var cached domain.Summary
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return cached, true, nil
		}
	}
	summary, ok, err := a.repo.Summary(userID)
	if err != nil || !ok {
		return domain.Summary{}, ok, err
	}
	if raw, err := json.Marshal(summary); err == nil {
		a.cache.Set(ctx, key, string(raw), a.profileTTL)
	}
	return summary, true, nil
}
