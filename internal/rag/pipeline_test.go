package rag

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ragdesk/ragdesk/internal/llm"
	"github.com/ragdesk/ragdesk/internal/model"
	"github.com/ragdesk/ragdesk/internal/pkg/errors"
	"github.com/ragdesk/ragdesk/internal/vectordb"
	"github.com/ragdesk/ragdesk/internal/websearch"
	"github.com/stretchr/testify/require"
)

type memChatRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.ChatSession
	messages []model.ChatMessage
}

func (r *memChatRepo) GetSession(ctx context.Context, id string) (*model.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("chat session %s: %w", id, errors.ErrNotFound)
	}
	return session, nil
}

func (r *memChatRepo) ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ChatMessage
	for _, message := range r.messages {
		if message.SessionID == sessionID {
			out = append(out, message)
		}
	}
	return out, nil
}

func (r *memChatRepo) AddMessage(ctx context.Context, message *model.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, *message)
	return nil
}

func (r *memChatRepo) byRole(role string) []model.ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ChatMessage
	for _, message := range r.messages {
		if message.Role == role {
			out = append(out, message)
		}
	}
	return out
}

type memAssistantRepo struct {
	assistant *model.Assistant
	kbs       []model.KnowledgeBase
}

func (r *memAssistantRepo) Get(ctx context.Context, id string) (*model.Assistant, error) {
	if r.assistant == nil || r.assistant.ID != id {
		return nil, fmt.Errorf("assistant %s: %w", id, errors.ErrNotFound)
	}
	return r.assistant, nil
}

func (r *memAssistantRepo) ListKnowledgeBases(ctx context.Context, assistantID string) ([]model.KnowledgeBase, error) {
	return r.kbs, nil
}

type stubSearcher struct {
	hits        []vectordb.ScoredPoint
	err         error
	collections []string
}

func (s *stubSearcher) SearchCollections(ctx context.Context, collections []string, vector []float32, limit int) ([]vectordb.ScoredPoint, error) {
	s.collections = collections
	return s.hits, s.err
}

// scriptedClient embeds the query and streams a fixed completion, recording
// the prompt it was handed.
type scriptedClient struct {
	mu      sync.Mutex
	chunks  []string
	prompts []string
	release chan struct{}
}

func (c *scriptedClient) Name() string { return "scripted" }

func (c *scriptedClient) Embeddings(ctx context.Context, texts []string, model string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{0.5}
	}
	return vectors, nil
}

func (c *scriptedClient) StreamChat(ctx context.Context, req llm.ChatRequest) (*llm.ChatStream, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, req.Prompt)
	c.mu.Unlock()
	stream := llm.NewStream(nil)
	go func() {
		if c.release != nil {
			<-c.release
		}
		for _, chunk := range c.chunks {
			if !stream.Send(ctx, llm.ChatChunk{Content: chunk}) {
				stream.Finish(ctx.Err())
				return
			}
		}
		stream.Finish(nil)
	}()
	return stream, nil
}

func (c *scriptedClient) lastPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.prompts) == 0 {
		return ""
	}
	return c.prompts[len(c.prompts)-1]
}

type clientResolverStub struct {
	client llm.Client
}

func (r *clientResolverStub) ClientForModel(model string) (llm.Client, error) {
	return r.client, nil
}

type stubWeb struct {
	results []websearch.Result
	queries []string
}

func (w *stubWeb) Enabled() bool { return true }

func (w *stubWeb) Search(ctx context.Context, query string, count int) ([]websearch.Result, error) {
	w.queries = append(w.queries, query)
	return w.results, nil
}

type captureSink struct {
	mu     sync.Mutex
	events map[string][]interface{}
}

func newCaptureSink() *captureSink {
	return &captureSink{events: map[string][]interface{}{}}
}

func (s *captureSink) Emit(event string, payload interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event] = append(s.events[event], payload)
}

func (s *captureSink) chunks(sessionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, payload := range s.events[EventStreamChunk(sessionID)] {
		out = append(out, payload.(StreamChunkEvent).Content)
	}
	return out
}

func hitsOf(contents ...string) []vectordb.ScoredPoint {
	hits := make([]vectordb.ScoredPoint, 0, len(contents))
	for i, content := range contents {
		hits = append(hits, vectordb.ScoredPoint{
			ID:      fmt.Sprintf("p%d", i),
			Score:   1 - float64(i)*0.1,
			Payload: map[string]interface{}{"content": content},
		})
	}
	return hits
}

func testFixtures(hits []vectordb.ScoredPoint) (*memChatRepo, *memAssistantRepo, *stubSearcher, *scriptedClient, *captureSink) {
	chats := &memChatRepo{sessions: map[string]*model.ChatSession{
		"s1": {ID: "s1", AssistantID: "a1"},
	}}
	assistants := &memAssistantRepo{
		assistant: &model.Assistant{ID: "a1", Name: "helper", Model: "gpt-4o", SystemPrompt: "Be helpful."},
		kbs: []model.KnowledgeBase{
			{ID: "kb1", EmbeddingModel: "text-embedding-3-small", VectorSize: 1536},
		},
	}
	searcher := &stubSearcher{hits: hits}
	client := &scriptedClient{chunks: []string{"Hello", " there"}}
	return chats, assistants, searcher, client, newCaptureSink()
}

func TestExecuteStreamsAndPersists(t *testing.T) {
	chats, assistants, searcher, client, sink := testFixtures(hitsOf("alpha fact", "beta fact", "gamma fact"))
	pipeline := New(chats, assistants, searcher, &clientResolverStub{client: client}, sink)

	err := pipeline.Execute(context.Background(), "s1", "what is alpha?")
	require.NoError(t, err)

	require.Equal(t, []string{"Hello", " there"}, sink.chunks("s1"))
	require.Equal(t, []string{"knowledge_base_kb1"}, searcher.collections)

	prompt := client.lastPrompt()
	require.Contains(t, prompt, "Be helpful.")
	require.Contains(t, prompt, "Context:\nalpha fact\n\nbeta fact\n\ngamma fact")
	require.Contains(t, prompt, "user: what is alpha?\nassistant: ")

	users := chats.byRole(model.RoleUser)
	require.Len(t, users, 1)
	require.Equal(t, "what is alpha?", users[0].Content)

	replies := chats.byRole(model.RoleAssistant)
	require.Len(t, replies, 2)
	require.Equal(t, "[Context]\nalpha fact\n\nbeta fact\n\ngamma fact", replies[0].Content)
	require.Equal(t, "Hello there", replies[1].Content)
}

func TestExecuteContextMessageDeduplicated(t *testing.T) {
	chats, assistants, searcher, client, sink := testFixtures(hitsOf("alpha fact", "beta fact", "gamma fact"))
	chats.messages = append(chats.messages, model.ChatMessage{
		ID: "m0", SessionID: "s1", Role: model.RoleAssistant,
		Content: "[Context]\nalpha fact\n\nbeta fact\n\ngamma fact",
	})
	pipeline := New(chats, assistants, searcher, &clientResolverStub{client: client}, sink)

	err := pipeline.Execute(context.Background(), "s1", "what is alpha?")
	require.NoError(t, err)

	var contextMessages int
	for _, message := range chats.byRole(model.RoleAssistant) {
		if message.Content == "[Context]\nalpha fact\n\nbeta fact\n\ngamma fact" {
			contextMessages++
		}
	}
	require.Equal(t, 1, contextMessages)
}

func TestExecuteWebFallbackOnThinContext(t *testing.T) {
	chats, assistants, searcher, client, sink := testFixtures(hitsOf("only fact"))
	web := &stubWeb{results: []websearch.Result{
		{Title: "Gopher burrows", URL: "https://example.com/gopher", Snippet: "facts about burrows"},
	}}
	pipeline := New(chats, assistants, searcher, &clientResolverStub{client: client}, sink,
		WithWebSearch(web))

	err := pipeline.Execute(context.Background(), "s1", "Tell me about the gopher burrows!")
	require.NoError(t, err)

	require.Equal(t, []string{"tell about gopher burrows"}, web.queries)
	prompt := client.lastPrompt()
	require.Contains(t, prompt, "Web Search Results:\n1. Gopher burrows\n   facts about burrows\n   Source: https://example.com/gopher")
}

func TestExecuteNoWebWhenContextRich(t *testing.T) {
	chats, assistants, searcher, client, sink := testFixtures(hitsOf("a", "b", "c"))
	web := &stubWeb{}
	pipeline := New(chats, assistants, searcher, &clientResolverStub{client: client}, sink,
		WithWebSearch(web))

	err := pipeline.Execute(context.Background(), "s1", "question about things")
	require.NoError(t, err)
	require.Empty(t, web.queries)
}

func TestExecuteSearchFailureDegrades(t *testing.T) {
	chats, assistants, searcher, client, sink := testFixtures(nil)
	searcher.err = fmt.Errorf("index offline")
	pipeline := New(chats, assistants, searcher, &clientResolverStub{client: client}, sink)

	err := pipeline.Execute(context.Background(), "s1", "what is alpha?")
	require.NoError(t, err)

	prompt := client.lastPrompt()
	require.NotContains(t, prompt, "Context:")
	require.Len(t, chats.byRole(model.RoleUser), 1)
}

func TestExecuteUnknownSession(t *testing.T) {
	chats, assistants, searcher, client, sink := testFixtures(nil)
	pipeline := New(chats, assistants, searcher, &clientResolverStub{client: client}, sink)

	err := pipeline.Execute(context.Background(), "nope", "hello")
	require.True(t, errors.IsNotFound(err))
	require.Len(t, sink.events[EventStreamError("nope")], 1)
}

func TestExecuteConcurrentTurnConflicts(t *testing.T) {
	chats, assistants, searcher, client, sink := testFixtures(hitsOf("a", "b", "c"))
	client.release = make(chan struct{})
	pipeline := New(chats, assistants, searcher, &clientResolverStub{client: client}, sink)

	done := make(chan error, 1)
	go func() {
		done <- pipeline.Execute(context.Background(), "s1", "first turn")
	}()
	require.Eventually(t, func() bool {
		return client.lastPrompt() != ""
	}, time.Second, 5*time.Millisecond)

	err := pipeline.Execute(context.Background(), "s1", "second turn")
	require.True(t, errors.IsConflict(err))

	close(client.release)
	require.NoError(t, <-done)
}

func TestExtractKeywords(t *testing.T) {
	require.Equal(t, "quick brown fox jumps", extractKeywords("The quick brown fox jumps!"))
	require.Equal(t, "", extractKeywords("is it to be?"))
	require.Equal(t, "what kubernetes pods", extractKeywords("What are Kubernetes pods?"))
}

func TestBuildPromptHistoryWindow(t *testing.T) {
	history := make([]model.ChatMessage, 0, 15)
	for i := 0; i < 15; i++ {
		history = append(history, model.ChatMessage{Role: model.RoleUser, Content: fmt.Sprintf("msg-%d", i)})
	}
	prompt := buildPrompt("", history, "final", "", nil)
	require.NotContains(t, prompt, "msg-4")
	require.Contains(t, prompt, "msg-5")
	require.Contains(t, prompt, "msg-14")
	require.Contains(t, prompt, "user: final\nassistant: ")
}
