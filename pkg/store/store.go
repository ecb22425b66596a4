package store

import (
	"errors"

	"bilichat/pkg/domain"
)

// ErrChatNotFound is returned when a chat id does not exist.
var ErrChatNotFound = errors.New("chat not found")

// Store defines persistence operations for users, chats, and summaries.
type Store interface {
	// users
	SaveUser(u domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// chats
	CreateChat(chat domain.Chat) error
	GetChat(id string) (domain.Chat, bool, error)
	AppendMessages(chatID string, messages []domain.Message) error
	ListChatsByUser(userID string, limit int) ([]domain.Chat, error)
	DeleteChat(id string) error

	// summaries
	SaveSummary(s domain.Summary) error
	GetSummary(userID string) (domain.Summary, bool, error)
}
