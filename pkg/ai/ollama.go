package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOllamaBaseURL = "http://127.0.0.1:11434"
	defaultTemperature   = 0.7
	defaultMaxTokens     = 256
	defaultTimeout       = 5 * time.Minute
)

// OllamaClient calls the Ollama HTTP API.
type OllamaClient struct {
	baseURL     string
	httpClient  *http.Client
	temperature float64
	maxTokens   int
}

// OllamaOptions tune generation. Zero values fall back to defaults.
type OllamaOptions struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// NewOllamaClient constructs a client with the provided base URL.
func NewOllamaClient(baseURL string, opts OllamaOptions) *OllamaClient {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &OllamaClient{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: timeout},
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

// Generate produces the full completion for prompt in one round-trip.
func (c *OllamaClient) Generate(ctx context.Context, model, prompt string) (string, error) {
	reqBody := ollamaGenerateRequest{
		Model:  model,
		Prompt: prompt,
		Options: ollamaGenerateOptions{
			Temperature: c.temperature,
			NumPredict:  c.maxTokens,
		},
		Stream: false,
	}
	var resp ollamaGenerateResponse
	if err := c.doJSON(ctx, "/api/generate", reqBody, &resp); err != nil {
		return "", &ModelError{Model: model, Err: err}
	}
	text := strings.TrimSpace(resp.Response)
	if text == "" {
		return "", &ModelError{Model: model, Err: fmt.Errorf("empty response")}
	}
	return text, nil
}

// GenerateStream issues a chunked request and yields text fragments as the
// runtime emits them. The channel is closed after the terminal marker or an
// error chunk. A failure to open the stream is returned directly.
func (c *OllamaClient) GenerateStream(ctx context.Context, model, prompt string) (<-chan StreamChunk, error) {
	reqBody := ollamaGenerateRequest{
		Model:  model,
		Prompt: prompt,
		Options: ollamaGenerateOptions{
			Temperature: c.temperature,
			NumPredict:  c.maxTokens,
		},
		Stream: true,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &ModelError{Model: model, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, &ModelError{Model: model, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ModelError{Model: model, Err: err}
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, &ModelError{Model: model, Err: decodeOllamaError(resp)}
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		// Any exit other than the done:true marker is a failure and must
		// surface as an error chunk, or consumers would mistake a truncated
		// stream for a complete one.
		fail := func(err error) {
			chunk := StreamChunk{Err: &ModelError{Model: model, Err: err}}
			select {
			case out <- chunk:
			case <-ctx.Done():
				select {
				case out <- chunk:
				default:
				}
			}
		}

		// Lines may be split across network reads; the scanner buffers
		// until a full newline-terminated line is available.
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var fragment ollamaGenerateResponse
			if err := json.Unmarshal(line, &fragment); err != nil {
				// Malformed lines are skipped, not fatal.
				continue
			}
			if fragment.Response != "" {
				select {
				case out <- StreamChunk{Text: fragment.Response}:
				case <-ctx.Done():
					fail(ctx.Err())
					return
				}
			}
			if fragment.Done {
				// Stop even if the connection stays open.
				return
			}
		}
		err := scanner.Err()
		if err == nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			} else {
				err = fmt.Errorf("stream ended before terminal marker")
			}
		}
		fail(err)
	}()
	return out, nil
}

// ListModels returns the models the runtime advertises via /api/tags.
func (c *OllamaClient) ListModels(ctx context.Context) ([]OllamaModel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, decodeOllamaError(resp)
	}
	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, err
	}
	return tags.Models, nil
}

func (c *OllamaClient) doJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeOllamaError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeOllamaError(resp *http.Response) error {
	var errResp ollamaErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&errResp)
	if errResp.Error != "" {
		return fmt.Errorf("ollama api error: %s", errResp.Error)
	}
	return fmt.Errorf("ollama api error: %s", resp.Status)
}

// Ollama /api/generate request/response types.

type ollamaGenerateRequest struct {
	Model   string                `json:"model"`
	Prompt  string                `json:"prompt"`
	Options ollamaGenerateOptions `json:"options"`
	Stream  bool                  `json:"stream"`
}

type ollamaGenerateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// OllamaModel is one entry from /api/tags.
type OllamaModel struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	ModifiedAt string `json:"modified_at"`
}

type ollamaTagsResponse struct {
	Models []OllamaModel `json:"models"`
}

type ollamaErrorResponse struct {
	Error string `json:"error"`
}
