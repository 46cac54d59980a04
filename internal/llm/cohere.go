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

type cohereClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type cohereEmbedRequest struct {
	Model     string   `json:"model"`
	Texts     []string `json:"texts"`
	InputType string   `json:"input_type"`
}

type cohereEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type cohereChatRequest struct {
	Model       string  `json:"model"`
	Message     string  `json:"message"`
	Stream      bool    `json:"stream"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

type cohereStreamEvent struct {
	EventType    string `json:"event_type"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

func (p *cohereClient) Name() string {
	return "cohere"
}

func (p *cohereClient) Embeddings(ctx context.Context, texts []string, model string) ([][]float32, error) {
	body, err := json.Marshal(cohereEmbedRequest{
		Model:     model,
		Texts:     texts,
		InputType: "search_document",
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint("/v1/embed"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	p.setHeaders(req)
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("cohere request failed: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	var out cohereEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("cohere returned %d embeddings for %d inputs", len(out.Embeddings), len(texts))
	}
	return out.Embeddings, nil
}

func (p *cohereClient) StreamChat(ctx context.Context, chatReq ChatRequest) (*ChatStream, error) {
	body, err := json.Marshal(cohereChatRequest{
		Model:       chatReq.Model,
		Message:     chatReq.Prompt,
		Stream:      true,
		Temperature: chatReq.Temperature,
		MaxTokens:   chatReq.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	streamCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodPost, p.endpoint("/v1/chat"), bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, err
	}
	p.setHeaders(req)
	resp, err := p.client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("cohere request failed: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	stream := NewStream(cancel)
	go func() {
		defer resp.Body.Close()
		stream.Finish(p.relay(streamCtx, resp.Body, stream))
	}()
	return stream, nil
}

// relay consumes the newline-delimited JSON events of the Cohere chat API.
func (p *cohereClient) relay(ctx context.Context, body io.Reader, stream *ChatStream) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var event cohereStreamEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return fmt.Errorf("decode stream event: %w", err)
		}
		switch event.EventType {
		case "text-generation":
			if event.Text == "" {
				continue
			}
			if !stream.Send(ctx, ChatChunk{Content: event.Text}) {
				return ctx.Err()
			}
		case "stream-end":
			if event.FinishReason != "" {
				if !stream.Send(ctx, ChatChunk{FinishReason: event.FinishReason}) {
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

func (p *cohereClient) endpoint(path string) string {
	return strings.TrimRight(p.baseURL, "/") + path
}

func (p *cohereClient) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
}

func init() {
	Register("cohere", func(cfg Config) (Client, error) {
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("cohere: api key is required")
		}
		baseURL := strings.TrimSpace(cfg.BaseURL)
		if baseURL == "" {
			baseURL = "https://api.cohere.com"
		}
		return &cohereClient{
			baseURL: baseURL,
			apiKey:  strings.TrimSpace(cfg.APIKey),
			client:  cfg.httpClient(),
		}, nil
	})
}
