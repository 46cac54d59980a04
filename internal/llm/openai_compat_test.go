package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenAICompatStreamChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n")
		io.WriteString(w, ": keepalive\n\n")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\" world\"}}]}\n\n")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	client, err := New("openai", Config{APIKey: "test-key", BaseURL: server.URL, HTTPClient: server.Client()})
	require.NoError(t, err)

	stream, err := client.StreamChat(context.Background(), ChatRequest{Prompt: "hi", Model: "gpt-4o"})
	require.NoError(t, err)
	defer stream.Close()

	var content string
	var finish string
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content += chunk.Content
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
	}
	require.Equal(t, "Hello world", content)
	require.Equal(t, "stop", finish)
}

func TestOpenAICompatStreamChatErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad key"}}`)
	}))
	defer server.Close()

	client, err := New("openai", Config{APIKey: "bad", BaseURL: server.URL, HTTPClient: server.Client()})
	require.NoError(t, err)

	_, err = client.StreamChat(context.Background(), ChatRequest{Prompt: "hi", Model: "gpt-4o"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad key")
}

func TestOpenAICompatEmbeddingsOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":[{"index":1,"embedding":[0.2]},{"index":0,"embedding":[0.1]}]}`)
	}))
	defer server.Close()

	client, err := New("openai", Config{APIKey: "test-key", BaseURL: server.URL, HTTPClient: server.Client()})
	require.NoError(t, err)

	vectors, err := client.Embeddings(context.Background(), []string{"a", "b"}, "text-embedding-3-small")
	require.NoError(t, err)
	require.Equal(t, [][]float32{{0.1}, {0.2}}, vectors)
}

func TestEmbeddingsUnsupported(t *testing.T) {
	client, err := New("groq", Config{APIKey: "test-key"})
	require.NoError(t, err)
	_, err = client.Embeddings(context.Background(), []string{"a"}, "whatever")
	require.ErrorIs(t, err, ErrUnsupportedCapability)
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New("nonexistent", Config{})
	require.Error(t, err)
}
