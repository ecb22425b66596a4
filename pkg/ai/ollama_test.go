package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bilichat/pkg/domain"
)

func TestGenerateReturnsTrimmedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaGenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Errorf("expected stream=false")
		}
		if req.Model != "llama3.2:3b" {
			t.Errorf("unexpected model %q", req.Model)
		}
		json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "  hello there  ", Done: true})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, OllamaOptions{})
	got, err := c.Generate(context.Background(), "llama3.2:3b", "prompt")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != "hello there" {
		t.Fatalf("got %q", got)
	}
}

func TestGenerateEmptyResponseIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "   ", Done: true})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, OllamaOptions{})
	if _, err := c.Generate(context.Background(), "llama3.2:3b", "prompt"); err == nil {
		t.Fatalf("expected error for empty response")
	}
}

func TestGenerateWrapsAPIErrorWithModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "model not found"})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, OllamaOptions{})
	_, err := c.Generate(context.Background(), "gemma:2b", "prompt")
	if err == nil {
		t.Fatalf("expected error")
	}
	var modelErr *ModelError
	if !errors.As(err, &modelErr) {
		t.Fatalf("expected ModelError, got %T", err)
	}
	if modelErr.Model != "gemma:2b" {
		t.Fatalf("unexpected model in error: %q", modelErr.Model)
	}
}

func TestGenerateStreamYieldsFragmentsInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"response":"Hel","done":false}` + "\n"))
		w.Write([]byte(`{"response":"lo","done":false}` + "\n"))
		w.Write([]byte(`{"response":"","done":true}` + "\n"))
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, OllamaOptions{})
	stream, err := c.GenerateStream(context.Background(), "llama3.2:3b", "prompt")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	var got string
	for chunk := range stream {
		if chunk.Err != nil {
			t.Fatalf("unexpected chunk error: %v", chunk.Err)
		}
		got += chunk.Text
	}
	if got != "Hello" {
		t.Fatalf("got %q", got)
	}
}

func TestGenerateStreamSkipsMalformedLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"response":"ok","done":false}` + "\n"))
		w.Write([]byte("not json at all\n"))
		w.Write([]byte("\n"))
		w.Write([]byte(`{"response":"!","done":true}` + "\n"))
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, OllamaOptions{})
	stream, err := c.GenerateStream(context.Background(), "llama3.2:3b", "prompt")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	var got string
	for chunk := range stream {
		if chunk.Err != nil {
			t.Fatalf("unexpected chunk error: %v", chunk.Err)
		}
		got += chunk.Text
	}
	if got != "ok!" {
		t.Fatalf("got %q", got)
	}
}

func TestGenerateStreamStopsAtTerminalMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"response":"a","done":false}` + "\n"))
		w.Write([]byte(`{"response":"","done":true}` + "\n"))
		// Anything after the marker must be ignored.
		w.Write([]byte(`{"response":"ghost","done":false}` + "\n"))
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, OllamaOptions{})
	stream, err := c.GenerateStream(context.Background(), "llama3.2:3b", "prompt")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	var got string
	for chunk := range stream {
		got += chunk.Text
	}
	if got != "a" {
		t.Fatalf("got %q", got)
	}
}

func TestGenerateStreamOpenFailureIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "out of memory"})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, OllamaOptions{})
	if _, err := c.GenerateStream(context.Background(), "llama3.2:3b", "prompt"); err == nil {
		t.Fatalf("expected open error")
	}
}

func TestGenerateStreamHonorsContextCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"response":"first","done":false}` + "\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	c := NewOllamaClient(srv.URL, OllamaOptions{})
	stream, err := c.GenerateStream(ctx, "llama3.2:3b", "prompt")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	first := <-stream
	if first.Text != "first" {
		t.Fatalf("got %q", first.Text)
	}
	cancel()

	// After cancellation the stream must wind down without delivering more
	// text; only error chunks may still arrive before the close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for chunk := range stream {
			if chunk.Text != "" {
				t.Errorf("unexpected text after cancel: %q", chunk.Text)
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("stream did not close after cancel")
	}
}

func TestGenerateStreamTruncatedWithoutMarkerIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"response":"partial","done":false}` + "\n"))
		// Connection ends without a done:true line.
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, OllamaOptions{})
	stream, err := c.GenerateStream(context.Background(), "llama3.2:3b", "prompt")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	var got string
	var streamErr error
	for chunk := range stream {
		if chunk.Err != nil {
			streamErr = chunk.Err
			continue
		}
		got += chunk.Text
	}
	if got != "partial" {
		t.Fatalf("got %q", got)
	}
	if streamErr == nil {
		t.Fatalf("expected an error chunk for a stream without a terminal marker")
	}
	var modelErr *ModelError
	if !errors.As(streamErr, &modelErr) {
		t.Fatalf("expected ModelError, got %T", streamErr)
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(ollamaTagsResponse{Models: []OllamaModel{
			{Name: "llama3.2:3b", Size: 2019393189},
		}})
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, OllamaOptions{})
	models, err := c.ListModels(context.Background())
	if err != nil {
		t.Fatalf("list models: %v", err)
	}
	if len(models) != 1 || models[0].Name != "llama3.2:3b" {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestOllamaProviderGenerateDegradesToRulesOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewRegistry(NewOllamaClient(srv.URL, OllamaOptions{}))
	p := r.ProviderFor(domain.ModelLlama)
	got, err := p.Generate(context.Background(), []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "anyone home?"},
	}, domain.LangEnglish)
	if err != nil {
		t.Fatalf("expected degraded answer, got error: %v", err)
	}
	if got == "" {
		t.Fatalf("expected non-empty degraded answer")
	}
}

func TestOllamaProviderStreamPropagatesOpenFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := NewRegistry(NewOllamaClient(srv.URL, OllamaOptions{}))
	p := r.ProviderFor(domain.ModelLlama)
	if _, err := p.GenerateStream(context.Background(), []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "anyone home?"},
	}, domain.LangEnglish); err == nil {
		t.Fatalf("expected stream open failure to propagate")
	}
}

func TestProviderForUnknownModelFallsBackToRules(t *testing.T) {
	r := NewRegistry(NewOllamaClient("http://127.0.0.1:1", OllamaOptions{}))
	p := r.ProviderFor(domain.ModelID("gpt-7"))
	if _, ok := p.(*RuleProvider); !ok {
		t.Fatalf("expected rule provider, got %T", p)
	}
	if p = r.ProviderFor(domain.ModelMistral); p == nil {
		t.Fatalf("expected provider for known model")
	}
}
