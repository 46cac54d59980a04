package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type ollamaClient struct {
	baseURL string
	client  *http.Client
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaGenerateChunk struct {
	Response   string `json:"response"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason"`
}

func (p *ollamaClient) Name() string {
	return "ollama"
}

// The embeddings endpoint takes one prompt per call, so the batch is a loop.
func (p *ollamaClient) Embeddings(ctx context.Context, texts []string, model string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		body, err := json.Marshal(ollamaEmbedRequest{Model: model, Prompt: text})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint("/api/embeddings"), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := p.client.Do(req)
		if err != nil {
			return nil, err
		}
		var out ollamaEmbedResponse
		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, fmt.Errorf("ollama request failed: %s: %s", resp.Status, strings.TrimSpace(string(data)))
		}
		err = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		if len(out.Embedding) == 0 {
			return nil, fmt.Errorf("ollama returned empty embedding for model %s", model)
		}
		vectors = append(vectors, out.Embedding)
	}
	return vectors, nil
}

func (p *ollamaClient) StreamChat(ctx context.Context, chatReq ChatRequest) (*ChatStream, error) {
	options := map[string]interface{}{}
	if chatReq.Temperature > 0 {
		options["temperature"] = chatReq.Temperature
	}
	if chatReq.MaxTokens > 0 {
		options["num_predict"] = chatReq.MaxTokens
	}
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:   chatReq.Model,
		Prompt:  chatReq.Prompt,
		Stream:  true,
		Options: options,
	})
	if err != nil {
		return nil, err
	}
	streamCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodPost, p.endpoint("/api/generate"), bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("ollama request failed: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	stream := NewStream(cancel)
	go func() {
		defer resp.Body.Close()
		stream.Finish(p.relay(streamCtx, resp.Body, stream))
	}()
	return stream, nil
}

// relay consumes the newline-delimited JSON chunks Ollama emits.
func (p *ollamaClient) relay(ctx context.Context, body io.Reader, stream *ChatStream) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var chunk ollamaGenerateChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return fmt.Errorf("decode stream chunk: %w", err)
		}
		if chunk.Response != "" {
			if !stream.Send(ctx, ChatChunk{Content: chunk.Response}) {
				return ctx.Err()
			}
		}
		if chunk.Done {
			if chunk.DoneReason != "" {
				if !stream.Send(ctx, ChatChunk{FinishReason: chunk.DoneReason}) {
					return ctx.Err()
				}
			}
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

func init() {
	Register("ollama", func(cfg Config) (Client, error) {
		baseURL := strings.TrimSpace(cfg.BaseURL)
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return &ollamaClient{baseURL: baseURL, client: cfg.httpClient()}, nil
	})
}

func (p *ollamaClient) endpoint(path string) string {
	return strings.TrimRight(p.baseURL, "/") + path
}
