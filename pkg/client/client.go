// Package client is a Go consumer of the chat API, including the SSE
// streaming endpoint.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bilichat/pkg/domain"
)

// Client calls the chat backend over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New returns a client for the API at baseURL authenticating with token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

// StreamEvent is one server-sent event from the streaming endpoint.
type StreamEvent struct {
	Chunk           string   `json:"chunk"`
	Done            bool     `json:"done"`
	FullResponse    string   `json:"fullResponse"`
	Chat            *ChatRef `json:"chat"`
	SummaryUpdating bool     `json:"summaryUpdating"`
	Error           string   `json:"error"`
}

// ChatRef identifies the chat a completed stream was persisted to.
type ChatRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type streamRequest struct {
	ChatID   string               `json:"chatId,omitempty"`
	Model    domain.ModelID       `json:"model"`
	Messages []domain.ChatMessage `json:"messages"`
}

// Stream posts the conversation and invokes handle for every event until the
// stream ends. A non-nil handler error stops reading and is returned.
func (c *Client) Stream(ctx context.Context, chatID string, model domain.ModelID, messages []domain.ChatMessage, handle func(StreamEvent) error) error {
	body, err := json.Marshal(streamRequest{ChatID: chatID, Model: model, Messages: messages})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat/stream", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("stream request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			continue
		}
		if err := handle(event); err != nil {
			return err
		}
		if event.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return errors.New("stream ended without a terminal event")
}
