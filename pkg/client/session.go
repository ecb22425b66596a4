package client

import (
	"context"
	"errors"
	"sync"

	"bilichat/pkg/domain"
)

// ErrStreamBusy is returned when Send is called while a stream is running.
var ErrStreamBusy = errors.New("client: a message is already streaming")

// Session tracks one conversation's local message history across streamed
// sends. The user message and an empty assistant placeholder are appended
// optimistically; a failed stream rolls both back.
type Session struct {
	client *Client
	model  domain.ModelID

	mu        sync.Mutex
	streaming bool
	chat      *ChatRef
	messages  []domain.ChatMessage
}

// NewSession starts an empty conversation using model.
func NewSession(c *Client, model domain.ModelID) *Session {
	return &Session{client: c, model: model}
}

// Messages returns a copy of the conversation so far.
func (s *Session) Messages() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Chat returns the persisted chat reference once the first send completes.
func (s *Session) Chat() *ChatRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chat
}

// Streaming reports whether a send is in flight.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// Send streams one user message. onChunk, if non-nil, receives the partial
// assistant response after every chunk. Only one Send may run at a time.
func (s *Session) Send(ctx context.Context, content string, onChunk func(partial string)) error {
	s.mu.Lock()
	if s.streaming {
		s.mu.Unlock()
		return ErrStreamBusy
	}
	s.streaming = true
	s.messages = append(s.messages,
		domain.ChatMessage{Role: domain.RoleUser, Content: content},
		domain.ChatMessage{Role: domain.RoleAssistant, Content: ""},
	)
	history := make([]domain.ChatMessage, len(s.messages)-1)
	copy(history, s.messages[:len(s.messages)-1])
	chatID := ""
	if s.chat != nil {
		chatID = s.chat.ID
	}
	s.mu.Unlock()

	var streamErr error
	err := s.client.Stream(ctx, chatID, s.model, history, func(event StreamEvent) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		switch {
		case event.Error != "":
			streamErr = errors.New(event.Error)
		case event.Done:
			if event.FullResponse != "" {
				s.messages[len(s.messages)-1].Content = event.FullResponse
			}
			if event.Chat != nil {
				s.chat = event.Chat
			}
		default:
			s.messages[len(s.messages)-1].Content += event.Chunk
			if onChunk != nil {
				onChunk(s.messages[len(s.messages)-1].Content)
			}
		}
		return nil
	})
	if err == nil {
		err = streamErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming = false
	if err != nil {
		// Roll back the optimistic pair so the history holds only
		// exchanges the server acknowledged.
		s.messages = s.messages[:len(s.messages)-2]
		return err
	}
	return nil
}
