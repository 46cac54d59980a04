package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

type googleClient struct {
	apiKey string
}

func (p *googleClient) Name() string {
	return "google"
}

func (p *googleClient) newClient(ctx context.Context) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

func (p *googleClient) Embeddings(ctx context.Context, texts []string, model string) ([][]float32, error) {
	client, err := p.newClient(ctx)
	if err != nil {
		return nil, err
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: text}}})
	}
	resp, err := client.Models.EmbedContent(ctx, model, contents, &genai.EmbedContentConfig{
		TaskType: "RETRIEVAL_DOCUMENT",
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("google returned %d embeddings for %d inputs", len(resp.Embeddings), len(texts))
	}
	vectors := make([][]float32, 0, len(resp.Embeddings))
	for _, embedding := range resp.Embeddings {
		vectors = append(vectors, embedding.Values)
	}
	return vectors, nil
}

func (p *googleClient) StreamChat(ctx context.Context, chatReq ChatRequest) (*ChatStream, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	client, err := p.newClient(streamCtx)
	if err != nil {
		cancel()
		return nil, err
	}
	config := &genai.GenerateContentConfig{}
	if chatReq.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(chatReq.Temperature))
	}
	if chatReq.MaxTokens > 0 {
		config.MaxOutputTokens = int32(chatReq.MaxTokens)
	}
	contents := []*genai.Content{{Parts: []*genai.Part{{Text: chatReq.Prompt}}}}

	stream := NewStream(cancel)
	go func() {
		for resp, err := range client.Models.GenerateContentStream(streamCtx, chatReq.Model, contents, config) {
			if err != nil {
				stream.Finish(err)
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			if !stream.Send(streamCtx, ChatChunk{Content: text}) {
				stream.Finish(streamCtx.Err())
				return
			}
		}
		stream.Finish(nil)
	}()
	return stream, nil
}

func init() {
	Register("google", func(cfg Config) (Client, error) {
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("google: api key is required")
		}
		return &googleClient{apiKey: strings.TrimSpace(cfg.APIKey)}, nil
	})
}
