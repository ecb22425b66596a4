package app

import (
	"errors"

	"bilichat/internal/chats"
)

var (
	// ErrInvalidInput covers an empty message list or a blank latest user
	// message. Maps to 400 with a localized message; no side effects.
	ErrInvalidInput = errors.New("invalid input")
	// ErrChatNotFound maps to 404. Ownership failures surface identically.
	ErrChatNotFound = chats.ErrChatNotFound
)
