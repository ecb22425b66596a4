package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"bilichat/pkg/cache"
	"bilichat/pkg/domain"
)

// collectEvents runs StreamChat and gathers every event the sink receives.
func collectEvents(t *testing.T, env *testEnv, user domain.User, req ChatRequest) ([]any, error) {
	t.Helper()
	var events []any
	err := env.app.StreamChat(context.Background(), user, req, func(event any) error {
		events = append(events, event)
		return nil
	})
	return events, err
}

func TestStreamChatRelaysPersistsAndCaches(t *testing.T) {
	fake := &fakeOllama{
		reply: "Chat Title",
		streamLines: []string{
			`{"response":"The sky ","done":false}`,
			`{"response":"is blue.","done":false}`,
			`{"response":"","done":true}`,
		},
	}
	env := newTestEnv(t, fake)
	user := testUser()
	question := "why is the sky blue?"

	events, err := collectEvents(t, env, user, ChatRequest{
		Model:    domain.ModelLlama,
		Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: question}},
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	var concat string
	var done DoneEvent
	doneCount := 0
	for _, e := range events {
		switch ev := e.(type) {
		case ChunkEvent:
			if ev.Done {
				t.Fatalf("chunk event flagged done: %+v", ev)
			}
			concat += ev.Chunk
		case DoneEvent:
			done = ev
			doneCount++
		case ErrorEvent:
			t.Fatalf("unexpected error event: %+v", ev)
		}
	}
	if doneCount != 1 {
		t.Fatalf("expected exactly one done event, got %d", doneCount)
	}
	if concat != "The sky is blue." {
		t.Fatalf("chunk concatenation = %q", concat)
	}
	if done.FullResponse != concat {
		t.Fatalf("fullResponse %q != concatenation %q", done.FullResponse, concat)
	}
	if !done.Done {
		t.Fatalf("terminal event not flagged done")
	}
	if done.Chat == nil || done.Chat.ID == "" || done.Chat.Title == "" {
		t.Fatalf("done event missing chat identity: %+v", done.Chat)
	}
	if !done.SummaryUpdating {
		t.Fatalf("expected summary job to be enqueued")
	}
	if env.summary.count() != 1 {
		t.Fatalf("expected 1 enqueue, got %d", env.summary.count())
	}

	stored, ok, err := env.store.GetChat(done.Chat.ID)
	if err != nil || !ok {
		t.Fatalf("chat not persisted: (%v, %v)", ok, err)
	}
	last := stored.Messages[len(stored.Messages)-1]
	if last.Role != domain.RoleAssistant || last.Content != concat {
		t.Fatalf("persisted assistant turn %q != streamed text %q", last.Content, concat)
	}

	key := cache.AIResponseKey(domain.ModelLlama, user.Language, question)
	if cached, ok := env.cache.Get(context.Background(), key); !ok || cached != concat {
		t.Fatalf("prompt cache not written: (%q, %v)", cached, ok)
	}
}

func TestStreamChatEmptyRequestEmitsErrorEvent(t *testing.T) {
	env := newTestEnv(t, &fakeOllama{})
	events, err := collectEvents(t, env, testUser(), ChatRequest{Model: domain.ModelLlama})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	ev, ok := events[0].(ErrorEvent)
	if !ok || !ev.Done || ev.Error != "No messages provided" {
		t.Fatalf("unexpected event: %+v", events[0])
	}
}

func TestStreamChatOpenFailurePersistsNothing(t *testing.T) {
	fake := &fakeOllama{reply: "Chat Title", failStream: true}
	env := newTestEnv(t, fake)
	user := testUser()

	events, err := collectEvents(t, env, user, ChatRequest{
		Model:    domain.ModelLlama,
		Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: "hello"}},
	})
	if err == nil {
		t.Fatalf("expected stream failure")
	}
	errorCount := 0
	for _, e := range events {
		if _, ok := e.(ErrorEvent); ok {
			errorCount++
		}
		if _, ok := e.(DoneEvent); ok {
			t.Fatalf("done event after failure")
		}
	}
	if errorCount != 1 {
		t.Fatalf("expected exactly one error event, got %d", errorCount)
	}

	if list, _ := env.store.ListChatsByUser(user.ID, 0); len(list) != 0 {
		t.Fatalf("failed stream must not persist, found %d chats", len(list))
	}
	key := cache.AIResponseKey(domain.ModelLlama, user.Language, "hello")
	if _, ok := env.cache.Get(context.Background(), key); ok {
		t.Fatalf("failed stream must not write the prompt cache")
	}
	if env.summary.count() != 0 {
		t.Fatalf("failed stream must not enqueue a summary job")
	}
}

func TestStreamChatMidStreamFailureDiscardsPartialText(t *testing.T) {
	// A line exceeding the scanner's 1MB buffer surfaces as a read error
	// after the first fragment was already relayed.
	fake := &fakeOllama{
		reply: "Chat Title",
		streamLines: []string{
			`{"response":"partial ","done":false}`,
			`{"response":"` + strings.Repeat("x", 2<<20) + `","done":false}`,
		},
	}
	env := newTestEnv(t, fake)
	user := testUser()

	events, err := collectEvents(t, env, user, ChatRequest{
		Model:    domain.ModelLlama,
		Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: "hello"}},
	})
	if err == nil {
		t.Fatalf("expected mid-stream failure")
	}

	sawChunk := false
	errorCount := 0
	for _, e := range events {
		switch e.(type) {
		case ChunkEvent:
			sawChunk = true
		case ErrorEvent:
			errorCount++
		case DoneEvent:
			t.Fatalf("done event after failure")
		}
	}
	if !sawChunk {
		t.Fatalf("expected the first fragment to be relayed before the failure")
	}
	if errorCount != 1 {
		t.Fatalf("expected exactly one error event, got %d", errorCount)
	}
	if list, _ := env.store.ListChatsByUser(user.ID, 0); len(list) != 0 {
		t.Fatalf("partial text must not be persisted")
	}
}

func TestStreamChatClientCancelPersistsNothing(t *testing.T) {
	// The runtime emits one fragment and then holds the connection open;
	// the consumer disconnects after the first relayed chunk.
	fake := &fakeOllama{
		reply: "Chat Title",
		streamLines: []string{
			`{"response":"partial answer ","done":false}`,
		},
		holdStream: true,
	}
	env := newTestEnv(t, fake)
	user := testUser()
	question := "why is the sky blue?"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var events []any
	err := env.app.StreamChat(ctx, user, ChatRequest{
		Model:    domain.ModelLlama,
		Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: question}},
	}, func(event any) error {
		events = append(events, event)
		if len(events) == 1 {
			cancel()
		}
		return nil
	})
	if err == nil {
		t.Fatalf("expected a cancelled stream to fail")
	}

	for _, e := range events {
		if _, ok := e.(DoneEvent); ok {
			t.Fatalf("cancelled stream must not emit a done event")
		}
	}
	if list, _ := env.store.ListChatsByUser(user.ID, 0); len(list) != 0 {
		t.Fatalf("cancelled stream must not persist, found %d chats", len(list))
	}
	key := cache.AIResponseKey(domain.ModelLlama, user.Language, question)
	if env.cache.setCount(key) != 0 {
		t.Fatalf("cancelled stream must not write the prompt cache")
	}
	if env.summary.count() != 0 {
		t.Fatalf("cancelled stream must not enqueue a summary job")
	}
}

func TestStreamChatCacheHitSingleChunk(t *testing.T) {
	fake := &fakeOllama{reply: "Chat Title"}
	env := newTestEnv(t, fake)
	user := testUser()
	question := "what is rain?"
	key := cache.AIResponseKey(domain.ModelLlama, user.Language, question)
	env.cache.put(key, "Rain is water falling from clouds.")

	events, err := collectEvents(t, env, user, ChatRequest{
		Model:    domain.ModelLlama,
		Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: question}},
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	chunkCount := 0
	var done DoneEvent
	for _, e := range events {
		switch ev := e.(type) {
		case ChunkEvent:
			chunkCount++
			if ev.Chunk != "Rain is water falling from clouds." {
				t.Fatalf("unexpected chunk %q", ev.Chunk)
			}
		case DoneEvent:
			done = ev
		}
	}
	if chunkCount != 1 {
		t.Fatalf("cache hit must arrive as a single chunk, got %d", chunkCount)
	}
	if done.FullResponse != "Rain is water falling from clouds." {
		t.Fatalf("unexpected fullResponse %q", done.FullResponse)
	}
	if done.Chat == nil {
		t.Fatalf("cache hit must still persist a chat")
	}
	if fake.streamCalls() != 0 {
		t.Fatalf("cache hit must not reach the model")
	}
	if env.cache.setCount(key) != 0 {
		t.Fatalf("cache hit must not rewrite the prompt entry")
	}
}

func TestStreamChatSinkFailureAborts(t *testing.T) {
	fake := &fakeOllama{
		reply: "Chat Title",
		streamLines: []string{
			`{"response":"a","done":false}`,
			`{"response":"b","done":false}`,
			`{"response":"","done":true}`,
		},
	}
	env := newTestEnv(t, fake)
	user := testUser()

	sinkErr := errors.New("client went away")
	err := env.app.StreamChat(context.Background(), user, ChatRequest{
		Model:    domain.ModelLlama,
		Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: "hello"}},
	}, func(any) error { return sinkErr })
	if !errors.Is(err, sinkErr) {
		t.Fatalf("expected sink error, got %v", err)
	}
	if list, _ := env.store.ListChatsByUser(user.ID, 0); len(list) != 0 {
		t.Fatalf("aborted stream must not persist")
	}
}

func TestStreamChatAppendsToExistingChat(t *testing.T) {
	fake := &fakeOllama{
		reply: "Chat Title",
		streamLines: []string{
			`{"response":"second answer","done":false}`,
			`{"response":"","done":true}`,
		},
	}
	env := newTestEnv(t, fake)
	user := testUser()
	ctx := context.Background()

	first, err := env.app.SendMessage(ctx, user, ChatRequest{
		Model:    domain.ModelLlama,
		Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: "q1"}},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	events, err := collectEvents(t, env, user, ChatRequest{
		ChatID: first.ID,
		Model:  domain.ModelLlama,
		Messages: []domain.ChatMessage{
			{Role: domain.RoleUser, Content: "q1"},
			{Role: domain.RoleAssistant, Content: "Chat Title"},
			{Role: domain.RoleUser, Content: "q2"},
		},
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	var done DoneEvent
	for _, e := range events {
		if ev, ok := e.(DoneEvent); ok {
			done = ev
		}
	}
	if done.Chat == nil || done.Chat.ID != first.ID {
		t.Fatalf("expected stream to land in the existing chat, got %+v", done.Chat)
	}

	stored, _, _ := env.store.GetChat(first.ID)
	if len(stored.Messages) != 4 {
		t.Fatalf("expected 4 messages after append, got %d", len(stored.Messages))
	}
	if stored.Messages[3].Content != "second answer" {
		t.Fatalf("unexpected final message %q", stored.Messages[3].Content)
	}
}
