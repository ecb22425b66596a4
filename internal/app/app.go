// Package app coordinates cache, model invocation, persistence, and the
// summary queue behind the chat endpoints.
package app

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"bilichat/internal/chats"
	"bilichat/internal/util"
	"bilichat/pkg/ai"
	"bilichat/pkg/cache"
	"bilichat/pkg/domain"
	"bilichat/pkg/queue"
)

const (
	defaultAIResponseTTL  = time.Hour
	defaultChatHistoryTTL = 10 * time.Minute
	defaultProfileTTL     = 5 * time.Minute
)

// SummaryEnqueuer schedules a background summary recompute for a user.
type SummaryEnqueuer interface {
	Enqueue(ctx context.Context, userID string) (queue.JobStatus, error)
}

// Config wires the orchestrator's collaborators. All services are
// constructed explicitly and injected; tests substitute in-memory fakes.
type Config struct {
	Repo           *chats.Repository
	Cache          cache.Cache
	Models         *ai.Registry
	Summaries      SummaryEnqueuer
	AIResponseTTL  time.Duration
	ChatHistoryTTL time.Duration
	ProfileTTL     time.Duration
}

// App is the chat orchestrator.
//
// Nothing here serializes a user's streams: two overlapping streaming
// requests run independently and each persists its own exchange. Across
// exchanges against the same chat, persistence writes can interleave in
// either order.
type App struct {
	repo           *chats.Repository
	cache          cache.Cache
	models         *ai.Registry
	summaries      SummaryEnqueuer
	aiResponseTTL  time.Duration
	chatHistoryTTL time.Duration
	profileTTL     time.Duration
}

// ChatRequest is the request body shared by the chat endpoints.
type ChatRequest struct {
	ChatID   string               `json:"chatId,omitempty"`
	Model    domain.ModelID       `json:"model"`
	Messages []domain.ChatMessage `json:"messages"`
}

// New constructs the orchestrator.
func New(cfg Config) *App {
	aiTTL := cfg.AIResponseTTL
	if aiTTL <= 0 {
		aiTTL = defaultAIResponseTTL
	}
	historyTTL := cfg.ChatHistoryTTL
	if historyTTL <= 0 {
		historyTTL = defaultChatHistoryTTL
	}
	profileTTL := cfg.ProfileTTL
	if profileTTL <= 0 {
		profileTTL = defaultProfileTTL
	}
	return &App{
		repo:           cfg.Repo,
		cache:          cfg.Cache,
		models:         cfg.Models,
		summaries:      cfg.Summaries,
		aiResponseTTL:  aiTTL,
		chatHistoryTTL: historyTTL,
		profileTTL:     profileTTL,
	}
}

func validateRequest(req ChatRequest) (string, error) {
	if len(req.Messages) == 0 {
		return "", ErrInvalidInput
	}
	last := req.Messages[len(req.Messages)-1]
	if strings.TrimSpace(last.Content) == "" {
		return "", ErrInvalidInput
	}
	return last.Content, nil
}

// ValidateChatRequest reports whether req carries at least one message with
// non-blank latest content. Handlers call it before committing to a response
// format, so validation failures can still become a plain 400.
func ValidateChatRequest(req ChatRequest) error {
	_, err := validateRequest(req)
	return err
}

// SendMessage is the non-streaming exchange. An upstream model failure is
// recovered inside the provider with a degraded rule-based answer; the
// request still succeeds.
func (a *App) SendMessage(ctx context.Context, user domain.User, req ChatRequest) (domain.Chat, error) {
	lastContent, err := validateRequest(req)
	if err != nil {
		return domain.Chat{}, err
	}
	language := user.Language
	key := cache.AIResponseKey(req.Model, language, lastContent)

	reply, hit := a.cache.Get(ctx, key)
	if !hit {
		provider := a.models.ProviderFor(req.Model)
		reply, err = provider.Generate(ctx, req.Messages, language)
		if err != nil {
			return domain.Chat{}, err
		}
		a.cache.Set(ctx, key, reply, a.aiResponseTTL)
	}

	chat, err := a.persistExchange(ctx, user.ID, req, language, reply)
	if err != nil {
		return domain.Chat{}, err
	}
	cache.InvalidateUser(ctx, a.cache, user.ID)
	return chat, nil
}

// ListChats returns the user's chats newest first, cached per user.
func (a *App) ListChats(ctx context.Context, userID string) ([]domain.Chat, error) {
	key := cache.ChatListKey(userID)
	if raw, ok := a.cache.Get(ctx, key); ok {
		var cached []domain.Chat
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return cached, nil
		}
		// Unreadable entries are treated as misses and rewritten below.
	}
	list, err := a.repo.ListByUser(userID)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(list); err == nil {
		a.cache.Set(ctx, key, string(raw), a.chatHistoryTTL)
	}
	return list, nil
}

// DeleteChat removes a chat owned by the user and invalidates their caches.
func (a *App) DeleteChat(ctx context.Context, chatID, userID string) error {
	if err := a.repo.Delete(ctx, chatID, userID); err != nil {
		return err
	}
	cache.InvalidateUser(ctx, a.cache, userID)
	return nil
}

// persistExchange appends the user turn plus the assistant reply to an
// existing chat, or creates a new chat carrying every submitted message.
func (a *App) persistExchange(ctx context.Context, userID string, req ChatRequest, language domain.Language, reply string) (domain.Chat, error) {
	assistant := domain.ChatMessage{Role: domain.RoleAssistant, Content: reply}
	if req.ChatID != "" {
		last := req.Messages[len(req.Messages)-1]
		return a.repo.AddMessagesToChat(ctx, req.ChatID, userID, []domain.ChatMessage{last, assistant})
	}
	messages := append(append([]domain.ChatMessage(nil), req.Messages...), assistant)
	return a.repo.CreateWithMessages(ctx, userID, req.Model, language, messages)
}

// enqueueSummary schedules a background summary recompute. Best effort:
// a queue failure is logged and never affects the exchange.
func (a *App) enqueueSummary(ctx context.Context, userID string) bool {
	if a.summaries == nil {
		return false
	}
	if _, err := a.summaries.Enqueue(ctx, userID); err != nil {
		util.LoggerFromContext(ctx).Warn("summary enqueue failed", "user_id", userID, "err", err)
		return false
	}
	return true
}
