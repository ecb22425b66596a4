// Package cache is a best-effort key/value layer over redis. Every operation
// degrades to a cache miss or a no-op when the store is unreachable, so the
// system stays correct (just uncached) without it.
package cache

import (
	"context"
	"encoding/base64"
	"time"

	"bilichat/pkg/domain"
)

// Cache is the narrow contract the rest of the system depends on.
// Get returns ("", false) for a miss; implementations never return errors.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

// AIResponseKey derives the prompt fingerprint for a cached completion.
// The encoded prompt is truncated to 50 bytes; distinct long prompts sharing
// a prefix alias to the same entry.
func AIResponseKey(model domain.ModelID, language domain.Language, prompt string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(prompt))
	if len(encoded) > 50 {
		encoded = encoded[:50]
	}
	return "ai:response:" + string(model) + ":" + string(language) + ":" + encoded
}

// ChatListKey is the per-user chat listing entry.
func ChatListKey(userID string) string { return "user:chats:" + userID }

// ProfileKey is the per-user profile summary entry.
func ProfileKey(userID string) string { return "user:profile:" + userID }

// InvalidateUser drops every per-user entry. Called on any write to a
// user's chats.
func InvalidateUser(ctx context.Context, c Cache, userID string) {
	c.Delete(ctx, ChatListKey(userID))
	c.Delete(ctx, ProfileKey(userID))
}

// Noop satisfies Cache when no redis address is configured.
type Noop struct{}

func (Noop) Get(context.Context, string) (string, bool)         { return "", false }
func (Noop) Set(context.Context, string, string, time.Duration) {}
func (Noop) Delete(context.Context, string)                     {}
