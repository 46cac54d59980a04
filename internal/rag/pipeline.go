package rag

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ragdesk/ragdesk/internal/events"
	"github.com/ragdesk/ragdesk/internal/llm"
	"github.com/ragdesk/ragdesk/internal/model"
	"github.com/ragdesk/ragdesk/internal/pkg/errors"
	"github.com/ragdesk/ragdesk/internal/pkg/keylock"
	"github.com/ragdesk/ragdesk/internal/vectordb"
	"github.com/ragdesk/ragdesk/internal/websearch"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	searchLimit    = 10
	webResultCount = 5
	// minVectorHits is the threshold below which web search supplements
	// the indexed context.
	minVectorHits = 3
	// contextDedupWindow bounds how far back the transcript is scanned
	// for an identical context message.
	contextDedupWindow = 20
)

// EventStreamChunk returns the per-session event name for completion chunks.
func EventStreamChunk(sessionID string) string {
	return "chat-stream-chunk-" + sessionID
}

// EventStreamError returns the per-session event name for pipeline failures.
func EventStreamError(sessionID string) string {
	return "chat-stream-error-" + sessionID
}

type StreamChunkEvent struct {
	Content string `json:"content"`
}

type StreamErrorEvent struct {
	Error string `json:"error"`
}

type chatRepo interface {
	GetSession(ctx context.Context, id string) (*model.ChatSession, error)
	ListMessages(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
	AddMessage(ctx context.Context, message *model.ChatMessage) error
}

type assistantRepo interface {
	Get(ctx context.Context, id string) (*model.Assistant, error)
	ListKnowledgeBases(ctx context.Context, assistantID string) ([]model.KnowledgeBase, error)
}

type vectorSearcher interface {
	SearchCollections(ctx context.Context, collections []string, vector []float32, limit int) ([]vectordb.ScoredPoint, error)
}

type clientResolver interface {
	ClientForModel(model string) (llm.Client, error)
}

type webSearcher interface {
	Enabled() bool
	Search(ctx context.Context, query string, count int) ([]websearch.Result, error)
}

// Defaults supply generation parameters when the assistant leaves them
// unset.
type Defaults struct {
	Temperature float64
	MaxTokens   int
}

// Pipeline answers one chat turn: retrieve context from the assistant's
// knowledge bases, optionally supplement with web search, stream the
// completion to the event sink, and persist the turn.
type Pipeline struct {
	chats      chatRepo
	assistants assistantRepo
	searcher   vectorSearcher
	resolver   clientResolver
	web        webSearcher
	sink       events.Sink
	defaults   Defaults
	locks      *keylock.KeyLock
	now        func() time.Time
}

type Option func(*Pipeline)

func WithDefaults(defaults Defaults) Option {
	return func(p *Pipeline) {
		p.defaults = defaults
	}
}

func WithWebSearch(web webSearcher) Option {
	return func(p *Pipeline) {
		p.web = web
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

func New(chats chatRepo, assistants assistantRepo, searcher vectorSearcher,
	resolver clientResolver, sink events.Sink, opts ...Option) *Pipeline {
	p := &Pipeline{
		chats:      chats,
		assistants: assistants,
		searcher:   searcher,
		resolver:   resolver,
		sink:       sink,
		defaults:   Defaults{Temperature: 0.7, MaxTokens: 2048},
		locks:      keylock.New(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute runs one full turn for the session. A second turn on the same
// session while one is in flight fails fast with ErrConflict. Any failure
// after that point is reported to the session's error event.
func (p *Pipeline) Execute(ctx context.Context, sessionID, userMessage string) error {
	if !p.locks.TryLock(sessionID) {
		return fmt.Errorf("session %s already has a turn in flight: %w", sessionID, errors.ErrConflict)
	}
	defer p.locks.Unlock(sessionID)

	if err := p.run(ctx, sessionID, userMessage); err != nil {
		logutil.GetLogger(ctx).Error("chat turn failed",
			zap.String("session_id", sessionID), zap.Error(err))
		p.sink.Emit(EventStreamError(sessionID), StreamErrorEvent{
			Error: "An error occurred while processing your request. Please try again.",
		})
		return err
	}
	return nil
}

func (p *Pipeline) run(ctx context.Context, sessionID, userMessage string) error {
	logger := logutil.GetLogger(ctx).With(zap.String("session_id", sessionID))

	session, err := p.chats.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	assistant, err := p.assistants.Get(ctx, session.AssistantID)
	if err != nil {
		return err
	}
	kbs, err := p.assistants.ListKnowledgeBases(ctx, assistant.ID)
	if err != nil {
		return err
	}
	logger.Debug("resolved assistant",
		zap.String("assistant", assistant.Name), zap.String("model", assistant.Model),
		zap.Int("knowledge_bases", len(kbs)))

	contextText, hits := p.retrieveContext(ctx, kbs, userMessage)
	webResults := p.searchWeb(ctx, userMessage, contextText, hits)

	history, err := p.chats.ListMessages(ctx, sessionID)
	if err != nil {
		return err
	}
	prompt := buildPrompt(assistant.SystemPrompt, history, userMessage, contextText, webResults)

	if contextText != "" && contextText != noContextFound {
		if err := p.persistContextMessage(ctx, sessionID, history, contextText); err != nil {
			return err
		}
	}

	client, err := p.resolver.ClientForModel(assistant.Model)
	if err != nil {
		return err
	}
	stream, err := client.StreamChat(ctx, llm.ChatRequest{
		Prompt:      prompt,
		Model:       assistant.Model,
		Temperature: p.temperature(assistant),
		MaxTokens:   p.maxTokens(assistant),
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	var response strings.Builder
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("stream completion: %w", err)
		}
		if chunk.Content == "" {
			continue
		}
		p.sink.Emit(EventStreamChunk(sessionID), StreamChunkEvent{Content: chunk.Content})
		response.WriteString(chunk.Content)
	}

	if err := p.saveMessage(ctx, sessionID, model.RoleUser, userMessage); err != nil {
		return err
	}
	if err := p.saveMessage(ctx, sessionID, model.RoleAssistant, response.String()); err != nil {
		return err
	}
	logger.Info("chat turn completed", zap.Int("response_chars", response.Len()))
	return nil
}

// retrieveContext embeds the query with the first knowledge base's model
// and searches every attached collection. Search failure degrades to "no
// context" instead of failing the turn.
func (p *Pipeline) retrieveContext(ctx context.Context, kbs []model.KnowledgeBase, userMessage string) (string, int) {
	if len(kbs) == 0 {
		return "", 0
	}
	logger := logutil.GetLogger(ctx)

	embeddingModel := kbs[0].EmbeddingModel
	client, err := p.resolver.ClientForModel(embeddingModel)
	if err != nil {
		logger.Warn("no embedding client, continuing without context", zap.Error(err))
		return noContextFound, 0
	}
	vectors, err := client.Embeddings(ctx, []string{userMessage}, embeddingModel)
	if err != nil || len(vectors) == 0 {
		logger.Warn("query embedding failed, continuing without context", zap.Error(err))
		return noContextFound, 0
	}

	collections := make([]string, 0, len(kbs))
	for i := range kbs {
		collections = append(collections, kbs[i].CollectionName())
	}
	hits, err := p.searcher.SearchCollections(ctx, collections, vectors[0], searchLimit)
	if err != nil {
		logger.Warn("vector search failed, continuing without context", zap.Error(err))
		return noContextFound, 0
	}
	if len(hits) == 0 {
		return noContextFound, 0
	}

	parts := make([]string, 0, len(hits))
	for _, hit := range hits {
		if content, ok := hit.Payload["content"].(string); ok && content != "" {
			parts = append(parts, content)
		}
	}
	logger.Debug("vector search completed", zap.Int("hits", len(hits)))
	return strings.Join(parts, "\n\n"), len(hits)
}

// searchWeb fires only when the indexed context is missing or thin. A web
// failure never fails the turn.
func (p *Pipeline) searchWeb(ctx context.Context, userMessage, contextText string, hits int) []websearch.Result {
	if p.web == nil || !p.web.Enabled() {
		return nil
	}
	if contextText != noContextFound && contextText != "" && hits >= minVectorHits {
		return nil
	}
	keywords := extractKeywords(userMessage)
	if keywords == "" {
		return nil
	}
	results, err := p.web.Search(ctx, keywords, webResultCount)
	if err != nil {
		logutil.GetLogger(ctx).Warn("web search failed, continuing without web results", zap.Error(err))
		return nil
	}
	return results
}

// persistContextMessage records the retrieved context as a synthetic
// assistant message, unless an identical one already sits in the recent
// transcript.
func (p *Pipeline) persistContextMessage(ctx context.Context, sessionID string, history []model.ChatMessage, contextText string) error {
	formatted := formatContextMessage(contextText)
	recent := history
	if len(recent) > contextDedupWindow {
		recent = recent[len(recent)-contextDedupWindow:]
	}
	for _, message := range recent {
		if message.Role == model.RoleAssistant && message.Content == formatted {
			return nil
		}
	}
	return p.saveMessage(ctx, sessionID, model.RoleAssistant, formatted)
}

func (p *Pipeline) saveMessage(ctx context.Context, sessionID, role, content string) error {
	return p.chats.AddMessage(ctx, &model.ChatMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Ctime:     p.now().UnixMilli(),
	})
}

func (p *Pipeline) temperature(assistant *model.Assistant) float64 {
	if assistant.Temperature > 0 {
		return assistant.Temperature
	}
	return p.defaults.Temperature
}

func (p *Pipeline) maxTokens(assistant *model.Assistant) int {
	if assistant.MaxTokens > 0 {
		return assistant.MaxTokens
	}
	return p.defaults.MaxTokens
}
