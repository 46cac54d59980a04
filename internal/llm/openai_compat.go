package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

// openAICompat speaks the OpenAI wire format. Most hosted providers expose
// the same chat-completions and embeddings endpoints, so one adapter
// configured with a name, base URL and capability flag covers them all.
type openAICompat struct {
	name          string
	baseURL       string
	apiKey        string
	client        *http.Client
	hasEmbeddings bool
}

type compatChatRequest struct {
	Model       string          `json:"model"`
	Messages    []compatChatMsg `json:"messages"`
	Stream      bool            `json:"stream"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type compatChatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type compatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type compatEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type compatEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (p *openAICompat) Name() string {
	return p.name
}

func (p *openAICompat) Embeddings(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if !p.hasEmbeddings {
		return nil, fmt.Errorf("%s embeddings: %w", p.name, ErrUnsupportedCapability)
	}
	body, err := json.Marshal(compatEmbedRequest{Model: model, Input: texts})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint("/embeddings"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	p.setHeaders(req)
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s request failed: %s: %s", p.name, resp.Status, strings.TrimSpace(string(data)))
	}
	var out compatEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("%s returned %d embeddings for %d inputs", p.name, len(out.Data), len(texts))
	}
	sort.Slice(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
	vectors := make([][]float32, 0, len(out.Data))
	for _, item := range out.Data {
		vectors = append(vectors, item.Embedding)
	}
	return vectors, nil
}

func (p *openAICompat) StreamChat(ctx context.Context, chatReq ChatRequest) (*ChatStream, error) {
	body, err := json.Marshal(compatChatRequest{
		Model:       chatReq.Model,
		Messages:    []compatChatMsg{{Role: "user", Content: chatReq.Prompt}},
		Stream:      true,
		Temperature: chatReq.Temperature,
		MaxTokens:   chatReq.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	streamCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodPost, p.endpoint("/chat/completions"), bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, err
	}
	p.setHeaders(req)
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
		return nil, fmt.Errorf("%s request failed: %s: %s", p.name, resp.Status, strings.TrimSpace(string(data)))
	}

	stream := NewStream(cancel)
	go func() {
		defer resp.Body.Close()
		stream.Finish(relaySSE(streamCtx, resp.Body, stream))
	}()
	return stream, nil
}

// relaySSE forwards OpenAI-style "data: {json}" lines until [DONE] or EOF.
func relaySSE(ctx context.Context, body io.Reader, stream *ChatStream) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			if payload == "[DONE]" {
				return nil
			}
			continue
		}
		var chunk compatStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return fmt.Errorf("decode stream chunk: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content == "" && choice.FinishReason == "" {
			continue
		}
		if !stream.Send(ctx, ChatChunk{Content: choice.Delta.Content, FinishReason: choice.FinishReason}) {
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

func (p *openAICompat) endpoint(path string) string {
	return strings.TrimRight(p.baseURL, "/") + path
}

func (p *openAICompat) setHeaders(req *http.Request) {
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
}

func compatFactory(name, defaultBaseURL string, hasEmbeddings, requireKey bool) Factory {
	return func(cfg Config) (Client, error) {
		if requireKey && strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("%s: api key is required", name)
		}
		baseURL := strings.TrimSpace(cfg.BaseURL)
		if baseURL == "" {
			baseURL = defaultBaseURL
		}
		return &openAICompat{
			name:          name,
			baseURL:       baseURL,
			apiKey:        strings.TrimSpace(cfg.APIKey),
			client:        cfg.httpClient(),
			hasEmbeddings: hasEmbeddings,
		}, nil
	}
}

func init() {
	Register("openai", compatFactory("openai", "https://api.openai.com/v1", true, true))
	Register("mistral", compatFactory("mistral", "https://api.mistral.ai/v1", true, true))
	Register("together", compatFactory("together", "https://api.together.xyz/v1", true, true))
	Register("groq", compatFactory("groq", "https://api.groq.com/openai/v1", false, true))
	Register("xai", compatFactory("xai", "https://api.x.ai/v1", false, true))
	Register("deepseek", compatFactory("deepseek", "https://api.deepseek.com/v1", false, true))
	Register("openrouter", compatFactory("openrouter", "https://openrouter.ai/api/v1", false, true))
	Register("lmstudio", compatFactory("lmstudio", "http://localhost:1234/v1", false, false))
}
