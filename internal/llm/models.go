package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// ModelLister is implemented by clients whose provider exposes a model
// catalog endpoint. Listing doubles as the connectivity probe.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

func (p *openAICompat) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint("/models"), nil)
	if err != nil {
		return nil, err
	}
	p.setHeaders(req)
	var out struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := decodeJSON(p.client, req, p.name, &out); err != nil {
		return nil, err
	}
	models := make([]string, 0, len(out.Data))
	for _, item := range out.Data {
		models = append(models, item.ID)
	}
	sort.Strings(models)
	return models, nil
}

func (p *anthropicClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(p.baseURL, "/")+"/v1/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	var out struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := decodeJSON(p.client, req, "anthropic", &out); err != nil {
		return nil, err
	}
	models := make([]string, 0, len(out.Data))
	for _, item := range out.Data {
		models = append(models, item.ID)
	}
	return models, nil
}

func (p *ollamaClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint("/api/tags"), nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := decodeJSON(p.client, req, "ollama", &out); err != nil {
		return nil, err
	}
	models := make([]string, 0, len(out.Models))
	for _, item := range out.Models {
		models = append(models, item.Name)
	}
	sort.Strings(models)
	return models, nil
}

func (p *cohereClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint("/v1/models"), nil)
	if err != nil {
		return nil, err
	}
	p.setHeaders(req)
	var out struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := decodeJSON(p.client, req, "cohere", &out); err != nil {
		return nil, err
	}
	models := make([]string, 0, len(out.Models))
	for _, item := range out.Models {
		models = append(models, item.Name)
	}
	return models, nil
}

func decodeJSON(client *http.Client, req *http.Request, provider string, dst interface{}) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s request failed: %s", provider, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
