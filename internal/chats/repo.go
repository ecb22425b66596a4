// Package chats is the chat persistence repository: it owns chat/message
// records and derives titles for new chats.
package chats

import (
	"context"
	"fmt"
	"time"

	"bilichat/internal/util"
	"bilichat/pkg/ai"
	"bilichat/pkg/domain"
	"bilichat/pkg/store"
)

// ErrChatNotFound covers both a missing chat and a chat owned by another
// user. The two cases are distinguished only in logs; callers cannot tell
// them apart.
var ErrChatNotFound = store.ErrChatNotFound

// Generator produces one completion for a flattened prompt. Satisfied by
// *ai.OllamaClient. Title derivation calls it without any rule-based
// fallback so failures can be told apart and replaced with an excerpt.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Repository persists chats and messages on top of a Store, using the model
// client once per new chat to derive a title.
type Repository struct {
	store store.Store
	gen   Generator
}

// NewRepository wires the repository.
func NewRepository(s store.Store, gen Generator) *Repository {
	return &Repository{store: s, gen: gen}
}

// CreateWithMessages creates a chat with a derived title and attaches the
// given messages. Returns the created chat with messages included.
func (r *Repository) CreateWithMessages(ctx context.Context, userID string, model domain.ModelID, language domain.Language, messages []domain.ChatMessage) (domain.Chat, error) {
	now := time.Now().UTC()
	chat := domain.Chat{
		ID:        util.NewID(),
		UserID:    userID,
		Title:     r.deriveTitle(ctx, messages, language),
		Model:     model,
		Language:  language,
		CreatedAt: now,
		UpdatedAt: now,
	}
	chat.Messages = buildMessages(chat.ID, messages, now)
	if err := r.store.CreateChat(chat); err != nil {
		return domain.Chat{}, fmt.Errorf("create chat: %w", err)
	}
	return chat, nil
}

// AddMessagesToChat appends messages to a chat the caller owns and returns
// the chat with its full message sequence.
func (r *Repository) AddMessagesToChat(ctx context.Context, chatID, userID string, messages []domain.ChatMessage) (domain.Chat, error) {
	chat, ok, err := r.store.GetChat(chatID)
	if err != nil {
		return domain.Chat{}, fmt.Errorf("load chat: %w", err)
	}
	if !ok {
		return domain.Chat{}, ErrChatNotFound
	}
	if chat.UserID != userID {
		util.LoggerFromContext(ctx).Warn("chat access denied", "chat_id", chatID, "owner", chat.UserID, "caller", userID)
		return domain.Chat{}, ErrChatNotFound
	}
	appended := buildMessages(chatID, messages, time.Now().UTC())
	if err := r.store.AppendMessages(chatID, appended); err != nil {
		return domain.Chat{}, fmt.Errorf("append messages: %w", err)
	}
	updated, ok, err := r.store.GetChat(chatID)
	if err != nil {
		return domain.Chat{}, fmt.Errorf("reload chat: %w", err)
	}
	if !ok {
		return domain.Chat{}, ErrChatNotFound
	}
	return updated, nil
}

// ListByUser returns all chats for a user, newest first, with messages.
func (r *Repository) ListByUser(userID string) ([]domain.Chat, error) {
	return r.store.ListChatsByUser(userID, 0)
}

// ListRecent returns up to limit most recent chats for a user.
func (r *Repository) ListRecent(userID string, limit int) ([]domain.Chat, error) {
	return r.store.ListChatsByUser(userID, limit)
}

// Summary returns the stored profile summary for a user.
func (r *Repository) Summary(userID string) (domain.Summary, bool, error) {
	return r.store.GetSummary(userID)
}

// SaveSummary upserts the bilingual profile summary for a user.
func (r *Repository) SaveSummary(s domain.Summary) error {
	return r.store.SaveSummary(s)
}

// Delete removes a chat and its messages, scoped to the owning user.
// A chat that does not belong to the caller fails like a missing one.
func (r *Repository) Delete(ctx context.Context, chatID, userID string) error {
	chat, ok, err := r.store.GetChat(chatID)
	if err != nil {
		return fmt.Errorf("load chat: %w", err)
	}
	if !ok {
		return ErrChatNotFound
	}
	if chat.UserID != userID {
		util.LoggerFromContext(ctx).Warn("chat delete denied", "chat_id", chatID, "owner", chat.UserID, "caller", userID)
		return ErrChatNotFound
	}
	return r.store.DeleteChat(chatID)
}

// deriveTitle asks the llama provider for a 3-6 word title in the language
// of the first user message. Arabic code points in the message override the
// stored preference. Falls back to a truncated excerpt when generation fails.
func (r *Repository) deriveTitle(ctx context.Context, messages []domain.ChatMessage, language domain.Language) string {
	firstUser := "New Chat"
	for _, m := range messages {
		if m.Role == domain.RoleUser {
			firstUser = m.Content
			break
		}
	}
	titleLanguage := detectLanguage(firstUser, language)
	prompt := titlePrompts[titleLanguage] + firstUser

	// Titles always come from llama regardless of the chat's model.
	titleModel, _ := ai.ModelName(domain.ModelLlama)
	generated, err := r.gen.Generate(ctx, titleModel, prompt)
	if err != nil {
		util.LoggerFromContext(ctx).Error("title generation failed, using excerpt", "err", err)
		if len(firstUser) > titleFallback {
			return truncate(firstUser, titleFallback) + "..."
		}
		return firstUser
	}
	title := truncate(ai.CleanGeneratedText(generated), maxTitleLen)
	if title == "" {
		title = truncate(firstUser, titleFallback)
	}
	return title
}

func buildMessages(chatID string, messages []domain.ChatMessage, at time.Time) []domain.Message {
	out := make([]domain.Message, 0, len(messages))
	for i, m := range messages {
		out = append(out, domain.Message{
			ID:      util.NewID(),
			ChatID:  chatID,
			Role:    m.Role,
			Content: m.Content,
			// Nudge timestamps so write order survives a created_at sort.
			CreatedAt: at.Add(time.Duration(i) * time.Microsecond),
		})
	}
	return out
}
