package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

type braveSearcher struct {
	apiKey string
	client *http.Client
}

func (s *braveSearcher) Name() string { return "brave" }

func (s *braveSearcher) Search(ctx context.Context, query string, count int) ([]Result, error) {
	endpoint := "https://api.search.brave.com/res/v1/web/search?q=" + url.QueryEscape(query) +
		"&count=" + strconv.Itoa(count)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Subscription-Token", s.apiKey)
	req.Header.Set("Accept", "application/json")
	var out struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := fetchJSON(s.client, req, &out); err != nil {
		return nil, fmt.Errorf("brave search: %w", err)
	}
	results := make([]Result, 0, len(out.Web.Results))
	for _, item := range out.Web.Results {
		results = append(results, Result{Title: item.Title, URL: item.URL, Snippet: item.Description})
	}
	return results, nil
}

type googleSearcher struct {
	apiKey   string
	engineID string
	client   *http.Client
}

func (s *googleSearcher) Name() string { return "google" }

func (s *googleSearcher) Search(ctx context.Context, query string, count int) ([]Result, error) {
	endpoint := "https://www.googleapis.com/customsearch/v1?key=" + url.QueryEscape(s.apiKey) +
		"&cx=" + url.QueryEscape(s.engineID) +
		"&q=" + url.QueryEscape(query) +
		"&num=" + strconv.Itoa(count)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Items []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"items"`
	}
	if err := fetchJSON(s.client, req, &out); err != nil {
		return nil, fmt.Errorf("google search: %w", err)
	}
	results := make([]Result, 0, len(out.Items))
	for _, item := range out.Items {
		results = append(results, Result{Title: item.Title, URL: item.Link, Snippet: item.Snippet})
	}
	return results, nil
}

type serpSearcher struct {
	apiKey string
	client *http.Client
}

func (s *serpSearcher) Name() string { return "serpapi" }

func (s *serpSearcher) Search(ctx context.Context, query string, count int) ([]Result, error) {
	endpoint := "https://serpapi.com/search.json?engine=google&q=" + url.QueryEscape(query) +
		"&num=" + strconv.Itoa(count) +
		"&api_key=" + url.QueryEscape(s.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic_results"`
	}
	if err := fetchJSON(s.client, req, &out); err != nil {
		return nil, fmt.Errorf("serpapi search: %w", err)
	}
	results := make([]Result, 0, len(out.OrganicResults))
	for _, item := range out.OrganicResults {
		results = append(results, Result{Title: item.Title, URL: item.Link, Snippet: item.Snippet})
	}
	return results, nil
}

func fetchJSON(client *http.Client, req *http.Request, dst interface{}) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func init() {
	Register("brave", func(cfg Config) (Searcher, error) {
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("brave: api key is required")
		}
		return &braveSearcher{apiKey: strings.TrimSpace(cfg.APIKey), client: cfg.httpClient()}, nil
	})
	Register("google", func(cfg Config) (Searcher, error) {
		if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.EngineID) == "" {
			return nil, fmt.Errorf("google: api key and engine id are required")
		}
		return &googleSearcher{
			apiKey:   strings.TrimSpace(cfg.APIKey),
			engineID: strings.TrimSpace(cfg.EngineID),
			client:   cfg.httpClient(),
		}, nil
	})
	Register("serpapi", func(cfg Config) (Searcher, error) {
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("serpapi: api key is required")
		}
		return &serpSearcher{apiKey: strings.TrimSpace(cfg.APIKey), client: cfg.httpClient()}, nil
	})
}
