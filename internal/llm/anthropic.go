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

const anthropicVersion = "2023-06-01"

type anthropicClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type anthropicChatRequest struct {
	Model       string          `json:"model"`
	Messages    []compatChatMsg `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature,omitempty"`
	Stream      bool            `json:"stream"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
}

func (p *anthropicClient) Name() string {
	return "anthropic"
}

// Anthropic ships no embeddings endpoint.
func (p *anthropicClient) Embeddings(ctx context.Context, texts []string, model string) ([][]float32, error) {
	return nil, fmt.Errorf("anthropic embeddings: %w", ErrUnsupportedCapability)
}

func (p *anthropicClient) StreamChat(ctx context.Context, chatReq ChatRequest) (*ChatStream, error) {
	maxTokens := chatReq.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	body, err := json.Marshal(anthropicChatRequest{
		Model:       chatReq.Model,
		Messages:    []compatChatMsg{{Role: "user", Content: chatReq.Prompt}},
		MaxTokens:   maxTokens,
		Temperature: chatReq.Temperature,
		Stream:      true,
	})
	if err != nil {
		return nil, err
	}
	streamCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodPost, strings.TrimRight(p.baseURL, "/")+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	resp, err := p.client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("anthropic request failed: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	stream := NewStream(cancel)
	go func() {
		defer resp.Body.Close()
		stream.Finish(p.relay(streamCtx, resp.Body, stream))
	}()
	return stream, nil
}

func (p *anthropicClient) relay(ctx context.Context, body io.Reader, stream *ChatStream) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return fmt.Errorf("decode stream event: %w", err)
		}
		switch event.Type {
		case "content_block_delta":
			if event.Delta.Text == "" {
				continue
			}
			if !stream.Send(ctx, ChatChunk{Content: event.Delta.Text}) {
				return ctx.Err()
			}
		case "message_delta":
			if event.Delta.StopReason != "" {
				if !stream.Send(ctx, ChatChunk{FinishReason: event.Delta.StopReason}) {
					return ctx.Err()
				}
			}
		case "message_stop":
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

func init() {
	Register("anthropic", func(cfg Config) (Client, error) {
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("anthropic: api key is required")
		}
		baseURL := strings.TrimSpace(cfg.BaseURL)
		if baseURL == "" {
			baseURL = "https://api.anthropic.com"
		}
		return &anthropicClient{
			baseURL: baseURL,
			apiKey:  strings.TrimSpace(cfg.APIKey),
			client:  cfg.httpClient(),
		}, nil
	})
}
