package store

import (
	"sort"
	"sync"
	"time"

	"bilichat/pkg/domain"
)

// MemoryStore keeps everything in-process. It backs tests and lets the
// server run without Postgres.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]domain.User
	email     map[string]string // email -> user ID
	chats     map[string]domain.Chat
	messages  map[string][]domain.Message // chat ID -> write order
	summaries map[string]domain.Summary
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]domain.User),
		email:     make(map[string]string),
		chats:     make(map[string]domain.Chat),
		messages:  make(map[string][]domain.Message),
		summaries: make(map[string]domain.Summary),
	}
}

// SaveUser registers or updates a user.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

// HasUserEmail checks if email exists.
func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// CreateChat stores the chat and its initial messages.
func (m *MemoryStore) CreateChat(chat domain.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	messages := chat.Messages
	chat.Messages = nil
	m.chats[chat.ID] = chat
	m.messages[chat.ID] = append([]domain.Message(nil), messages...)
	return nil
}

// GetChat returns a chat with its messages in write order.
func (m *MemoryStore) GetChat(id string) (domain.Chat, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chat, ok := m.chats[id]
	if !ok {
		return domain.Chat{}, false, nil
	}
	chat.Messages = append([]domain.Message(nil), m.messages[id]...)
	return chat, true, nil
}

// AppendMessages adds messages to an existing chat.
func (m *MemoryStore) AppendMessages(chatID string, messages []domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[chatID]
	if !ok {
		return ErrChatNotFound
	}
	m.messages[chatID] = append(m.messages[chatID], messages...)
	chat.UpdatedAt = time.Now().UTC()
	m.chats[chatID] = chat
	return nil
}

// ListChatsByUser returns a user's chats newest first. limit <= 0 means all.
func (m *MemoryStore) ListChatsByUser(userID string, limit int) ([]domain.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chats := make([]domain.Chat, 0)
	for id, chat := range m.chats {
		if chat.UserID != userID {
			continue
		}
		chat.Messages = append([]domain.Message(nil), m.messages[id]...)
		chats = append(chats, chat)
	}
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})
	if limit > 0 && len(chats) > limit {
		chats = chats[:limit]
	}
	return chats, nil
}

// DeleteChat removes messages then the chat. Missing chats are an error.
func (m *MemoryStore) DeleteChat(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chats[id]; !ok {
		return ErrChatNotFound
	}
	delete(m.messages, id)
	delete(m.chats, id)
	return nil
}

// SaveSummary upserts the bilingual summary.
func (m *MemoryStore) SaveSummary(s domain.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.UpdatedAt = time.Now().UTC()
	m.summaries[s.UserID] = s
	return nil
}

// GetSummary returns the stored summary for a user.
func (m *MemoryStore) GetSummary(userID string) (domain.Summary, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.summaries[userID]
	return s, ok, nil
}
