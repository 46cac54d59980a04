package llm

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrUnsupportedCapability is returned when a provider has no native
// endpoint for the requested operation (e.g. Anthropic embeddings). Callers
// must pick a different model rather than receive fabricated vectors.
var ErrUnsupportedCapability = errors.New("capability not supported by provider")

// Client is the uniform surface over one model provider.
type Client interface {
	Name() string
	// Embeddings returns one vector per input text, order preserved.
	Embeddings(ctx context.Context, texts []string, model string) ([][]float32, error)
	// StreamChat opens a streamed completion. The caller owns the returned
	// stream and must drain it with Recv until an error (io.EOF on normal
	// completion) or abandon it with Close.
	StreamChat(ctx context.Context, req ChatRequest) (*ChatStream, error)
}

type ChatRequest struct {
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
}

type ChatChunk struct {
	Content      string
	FinishReason string
}

// ChatStream delivers completion chunks as the provider produces them.
// Close cancels the underlying request; a Recv in flight then returns the
// cancellation error.
type ChatStream struct {
	ch     chan ChatChunk
	mu     sync.Mutex
	err    error
	cancel context.CancelFunc
}

// NewStream builds an empty stream. The producer feeds it with Send and
// ends it with Finish; cancel is invoked when the consumer calls Close.
func NewStream(cancel context.CancelFunc) *ChatStream {
	return &ChatStream{ch: make(chan ChatChunk), cancel: cancel}
}

// Send forwards one chunk to the consumer, giving up when the stream
// context is cancelled. It is the producer half of the API, used by
// provider implementations.
func (s *ChatStream) Send(ctx context.Context, chunk ChatChunk) bool {
	select {
	case s.ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// Finish terminates the stream. A nil err means normal completion.
func (s *ChatStream) Finish(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.ch)
}

func (s *ChatStream) Recv() (ChatChunk, error) {
	chunk, ok := <-s.ch
	if !ok {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.err != nil {
			return ChatChunk{}, s.err
		}
		return ChatChunk{}, io.EOF
	}
	return chunk, nil
}

func (s *ChatStream) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}
