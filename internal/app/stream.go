package app

import (
	"context"
	"strings"

	"bilichat/internal/util"
	"bilichat/pkg/cache"
	"bilichat/pkg/domain"
)

// ChunkEvent relays one fragment mid-stream.
type ChunkEvent struct {
	Chunk string `json:"chunk"`
	Done  bool   `json:"done"`
}

// DoneEvent is the terminal success event. Chat is set when persistence
// succeeded, so the client can adopt the authoritative identity and title.
type DoneEvent struct {
	Chunk           string   `json:"chunk"`
	Done            bool     `json:"done"`
	FullResponse    string   `json:"fullResponse"`
	Chat            *ChatRef `json:"chat,omitempty"`
	SummaryUpdating bool     `json:"summaryUpdating,omitempty"`
}

// ErrorEvent is the terminal failure event.
type ErrorEvent struct {
	Error string `json:"error"`
	Done  bool   `json:"done"`
}

// ChatRef carries the persisted chat identity in the terminal event.
type ChatRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// EventSink receives stream events in order. A sink error aborts the
// exchange (the consumer is gone).
type EventSink func(event any) error

// StreamChat runs one streaming exchange:
//
//	IDLE -> STREAMING -> PERSISTING -> DONE, or FAILED at any point.
//
// Every fragment is relayed downstream before it is persisted anywhere; the
// client sees text strictly before the database does. On upstream
// exhaustion the aggregated text is persisted, the prompt cache written,
// and the user's caches invalidated, all before the terminal done event.
// A failure before the terminal event emits one error event and persists
// nothing. The returned error mirrors what was already reported through
// the sink; callers only log it.
func (a *App) StreamChat(ctx context.Context, user domain.User, req ChatRequest, sink EventSink) error {
	lastContent, err := validateRequest(req)
	if err != nil {
		_ = sink(ErrorEvent{Error: "No messages provided", Done: true})
		return err
	}
	language := user.Language
	key := cache.AIResponseKey(req.Model, language, lastContent)

	var full strings.Builder
	fromCache := false
	if cached, ok := a.cache.Get(ctx, key); ok {
		fromCache = true
		// Cache hit: the whole completion arrives as a single chunk, but
		// the exchange still persists like a fresh generation.
		if err := sink(ChunkEvent{Chunk: cached}); err != nil {
			return err
		}
		full.WriteString(cached)
	} else {
		provider := a.models.ProviderFor(req.Model)
		stream, err := provider.GenerateStream(ctx, req.Messages, language)
		if err != nil {
			_ = sink(ErrorEvent{Error: err.Error(), Done: true})
			return err
		}
		for chunk := range stream {
			if chunk.Err != nil {
				_ = sink(ErrorEvent{Error: chunk.Err.Error(), Done: true})
				return chunk.Err
			}
			// Relay before accumulating; persistence only ever sees text
			// the client has already been sent.
			if err := sink(ChunkEvent{Chunk: chunk.Text}); err != nil {
				return err
			}
			full.WriteString(chunk.Text)
		}
		// The channel can close without an error chunk when the client
		// disconnects mid-generation. The accumulator holds a truncated
		// answer at that point and must not be saved or cached.
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	// Persistence must settle before the terminal event so the done event
	// can carry the authoritative chat identity.
	chat, err := a.persistExchange(ctx, user.ID, req, language, full.String())
	if err != nil {
		util.LoggerFromContext(ctx).Error("stream persistence failed", "err", err)
		_ = sink(ErrorEvent{Error: "Failed to save chat", Done: true})
		return err
	}
	if !fromCache {
		a.cache.Set(ctx, key, full.String(), a.aiResponseTTL)
	}
	cache.InvalidateUser(ctx, a.cache, user.ID)
	summaryUpdating := a.enqueueSummary(ctx, user.ID)

	return sink(DoneEvent{
		Done:            true,
		FullResponse:    full.String(),
		Chat:            &ChatRef{ID: chat.ID, Title: chat.Title},
		SummaryUpdating: summaryUpdating,
	})
}
